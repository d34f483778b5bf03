package enrich

import (
	"testing"

	"github.com/paddockcloud/lt-engine/internal/controllog"
	"github.com/paddockcloud/lt-engine/internal/state"
)

func TestAttributeCar(t *testing.T) {
	cases := []struct {
		name string
		e    controllog.Entry
		want string
	}{
		{"highlighted_wins", controllog.Entry{Cars: []string{"5", "12"}, HighlightedCar: "12"}, "12"},
		{"first_car_fallback", controllog.Entry{Cars: []string{"5", "12"}}, "5"},
		{"no_cars", controllog.Entry{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AttributeCar(tc.e); got != tc.want {
				t.Errorf("AttributeCar = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPenalties(t *testing.T) {
	s := state.NewSessionState(1, 1)
	five := s.Car("5")
	twelve := s.Car("12")

	entries := []controllog.Entry{
		{Cars: []string{"5"}, Penalty: "Warning", Notes: "avoidable contact"},
		{Cars: []string{"5", "12"}, HighlightedCar: "12", Penalty: "2 Laps"},
		{Cars: []string{"12"}, Penalty: "Drive Through"},
		{Cars: []string{"12"}, Notes: "penalty of 1 lap served"},
		{Cars: []string{"99"}, Penalty: "Warning"}, // unknown car, skipped
	}

	Penalties(s, entries)
	if five.PenaltyWarnings != 1 || five.PenaltyLaps != 0 || five.BlackFlags != 0 {
		t.Errorf("car 5 = warnings=%d laps=%d black=%d", five.PenaltyWarnings, five.PenaltyLaps, five.BlackFlags)
	}
	if twelve.PenaltyLaps != 3 || twelve.BlackFlags != 1 {
		t.Errorf("car 12 = laps=%d black=%d, want 3 1", twelve.PenaltyLaps, twelve.BlackFlags)
	}

	// Recomputing from the same list must not accumulate.
	Penalties(s, entries)
	if five.PenaltyWarnings != 1 || twelve.PenaltyLaps != 3 {
		t.Errorf("recompute doubled counters: warnings=%d laps=%d", five.PenaltyWarnings, twelve.PenaltyLaps)
	}
}
