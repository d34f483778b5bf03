package enrich

import (
	"testing"

	"github.com/paddockcloud/lt-engine/internal/state"
)

func TestPositionsGapsAndDifferences(t *testing.T) {
	s := state.NewSessionState(1, 1)

	leader := s.Car("1")
	leader.OverallPosition = 1
	leader.LastLapCompleted = 20
	leader.TotalTimeMs = 1800000

	second := s.Car("2")
	second.OverallPosition = 2
	second.LastLapCompleted = 20
	second.TotalTimeMs = 1802500

	third := s.Car("3")
	third.OverallPosition = 3
	third.LastLapCompleted = 18
	third.TotalTimeMs = 1803000

	Positions(s)

	if leader.OverallGap != "" || leader.OverallDifference != "" {
		t.Errorf("leader gap/diff = %q/%q, want empty", leader.OverallGap, leader.OverallDifference)
	}
	if second.OverallGap != "2.500" || second.OverallDifference != "2.500" {
		t.Errorf("P2 gap/diff = %q/%q, want 2.500/2.500", second.OverallGap, second.OverallDifference)
	}
	if third.OverallGap != "2 laps" || third.OverallDifference != "2 laps" {
		t.Errorf("P3 gap/diff = %q/%q, want 2 laps", third.OverallGap, third.OverallDifference)
	}
}

func TestPositionsClassRanksAndGaps(t *testing.T) {
	s := state.NewSessionState(1, 1)
	add := func(number, class string, pos, laps int, total int64) *state.CarPosition {
		c := s.Car(number)
		c.Class = class
		c.OverallPosition = pos
		c.LastLapCompleted = laps
		c.TotalTimeMs = total
		return c
	}
	gtA := add("1", "GT", 1, 20, 1800000)
	tcA := add("7", "TC", 2, 20, 1801000)
	gtB := add("2", "GT", 3, 19, 1802000)
	tcB := add("8", "TC", 4, 19, 1803000)

	Positions(s)

	if gtA.ClassPosition != 1 || tcA.ClassPosition != 1 || gtB.ClassPosition != 2 || tcB.ClassPosition != 2 {
		t.Errorf("class positions = %d %d %d %d", gtA.ClassPosition, tcA.ClassPosition, gtB.ClassPosition, tcB.ClassPosition)
	}
	if gtB.InClassGap != "1 lap" {
		t.Errorf("GT second gap = %q, want 1 lap", gtB.InClassGap)
	}
	if tcB.InClassDifference != "1 lap" {
		t.Errorf("TC second diff = %q, want 1 lap", tcB.InClassDifference)
	}
	// Overall gap crosses classes; class gap does not.
	if gtB.OverallGap != "1 lap" {
		t.Errorf("GT second overall gap = %q", gtB.OverallGap)
	}
}

func TestMarkBestTimes(t *testing.T) {
	t.Run("single_best_marked", func(t *testing.T) {
		s := state.NewSessionState(1, 1)
		a := s.Car("1")
		a.OverallPosition, a.BestTimeMs, a.Class = 1, 91000, "GT"
		b := s.Car("2")
		b.OverallPosition, b.BestTimeMs, b.Class = 2, 90000, "GT"

		Positions(s)
		if a.IsBestTime || !b.IsBestTime {
			t.Errorf("best flags = %v %v, want false true", a.IsBestTime, b.IsBestTime)
		}
		if !b.IsBestTimeClass {
			t.Error("class best should be set")
		}
	})

	t.Run("tie_marks_none", func(t *testing.T) {
		s := state.NewSessionState(1, 1)
		a := s.Car("1")
		a.OverallPosition, a.BestTimeMs = 1, 90000
		b := s.Car("2")
		b.OverallPosition, b.BestTimeMs = 2, 90000

		Positions(s)
		if a.IsBestTime || b.IsBestTime {
			t.Error("tied best times should mark no car")
		}
	})

	t.Run("zero_times_ignored", func(t *testing.T) {
		s := state.NewSessionState(1, 1)
		a := s.Car("1")
		a.OverallPosition = 1
		b := s.Car("2")
		b.OverallPosition, b.BestTimeMs = 2, 90000

		Positions(s)
		if !b.IsBestTime {
			t.Error("only timed car should hold the best flag")
		}
	})
}

func TestComputeGains(t *testing.T) {
	t.Run("most_gained_unique", func(t *testing.T) {
		s := state.NewSessionState(1, 1)
		a := s.Car("1")
		a.OverallPosition, a.OverallStartingPosition = 1, 4
		b := s.Car("2")
		b.OverallPosition, b.OverallStartingPosition = 2, 3
		c := s.Car("3")
		c.OverallPosition, c.OverallStartingPosition = 3, 1
		d := s.Car("4")
		d.OverallPosition, d.OverallStartingPosition = 4, 2

		Positions(s)
		if a.OverallPositionsGained != 3 || !a.IsOverallMostGained {
			t.Errorf("winner gained = %d most=%v, want 3 true", a.OverallPositionsGained, a.IsOverallMostGained)
		}
		if b.IsOverallMostGained {
			t.Error("only the top gainer should be flagged")
		}
		if c.OverallPositionsGained != -2 {
			t.Errorf("dropped car gained = %d, want -2", c.OverallPositionsGained)
		}
	})

	t.Run("tied_gain_flags_none", func(t *testing.T) {
		s := state.NewSessionState(1, 1)
		a := s.Car("1")
		a.OverallPosition, a.OverallStartingPosition = 1, 2
		b := s.Car("2")
		b.OverallPosition, b.OverallStartingPosition = 2, 3
		c := s.Car("3")
		c.OverallPosition, c.OverallStartingPosition = 3, 1

		Positions(s)
		if a.IsOverallMostGained || b.IsOverallMostGained {
			t.Error("tied gains should flag no car")
		}
	})
}

func TestValidateGain(t *testing.T) {
	cases := []struct {
		name                       string
		start, current, population int
		want                       int
	}{
		{"gained", 5, 2, 10, 3},
		{"lost", 2, 5, 10, -3},
		{"zero_start", 0, 2, 10, state.InvalidPosition},
		{"zero_current", 5, 0, 10, state.InvalidPosition},
		{"magnitude_at_count", 11, 1, 10, state.InvalidPosition},
		{"magnitude_below_count", 10, 1, 10, 9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidateGain(tc.start, tc.current, tc.population); got != tc.want {
				t.Errorf("ValidateGain(%d, %d, %d) = %d, want %d", tc.start, tc.current, tc.population, got, tc.want)
			}
		})
	}
}
