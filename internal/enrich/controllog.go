package enrich

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/paddockcloud/lt-engine/internal/controllog"
	"github.com/paddockcloud/lt-engine/internal/state"
)

var lapPenaltyRe = regexp.MustCompile(`(?i)(\d+)\s+laps?`)

// Penalties recomputes per-car penalty counters from the full
// control-log entry list. Totals are derived from scratch on each pass
// so periodic reloads never double-count.
func Penalties(s *state.SessionState, entries []controllog.Entry) {
	for _, car := range s.Cars {
		car.PenaltyWarnings = 0
		car.PenaltyLaps = 0
		car.BlackFlags = 0
	}

	for _, e := range entries {
		number := AttributeCar(e)
		if number == "" {
			continue
		}
		car, ok := s.Cars[number]
		if !ok {
			continue
		}

		text := strings.ToLower(e.Penalty + " " + e.Notes)
		if strings.Contains(text, "warning") {
			car.PenaltyWarnings++
		}
		if m := lapPenaltyRe.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				car.PenaltyLaps += n
			}
		}
		if strings.Contains(text, "drive through") {
			car.BlackFlags++
		}
	}
}

// AttributeCar picks the car an entry's penalty applies to: the
// highlighted car when present, otherwise the first car mentioned.
func AttributeCar(e controllog.Entry) string {
	if e.HighlightedCar != "" {
		return e.HighlightedCar
	}
	if len(e.Cars) > 0 {
		return e.Cars[0]
	}
	return ""
}
