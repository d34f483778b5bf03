package enrich

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/paddockcloud/lt-engine/internal/state"
)

// LapLogWriter persists a per-lap snapshot of a car position for later
// query.
type LapLogWriter interface {
	InsertCarLap(ctx context.Context, car state.CarPosition) error
}

// LapEvent reports a completed lap, consumed by the in-car driver
// stream.
type LapEvent struct {
	Number    string
	Lap       int
	LapTimeMs int64
	Pitted    bool
}

// Laps watches lastLapCompleted per car and fires on advance.
type Laps struct {
	lastSeen map[string]int
}

func NewLaps() *Laps {
	return &Laps{lastSeen: make(map[string]int)}
}

// Process persists a lap snapshot for every car whose lap counter
// advanced since the previous pass. The pit pass runs first, so
// lapIncludedPit is already correct on the snapshot when the lap record
// is written; the per-lap flags reset afterwards for the new lap.
func (l *Laps) Process(ctx context.Context, s *state.SessionState, w LapLogWriter, log zerolog.Logger) []LapEvent {
	var events []LapEvent
	for number, car := range s.Cars {
		last := l.lastSeen[number]
		if car.LastLapCompleted <= last {
			continue
		}
		l.lastSeen[number] = car.LastLapCompleted

		if w != nil {
			if err := w.InsertCarLap(ctx, *car.Clone()); err != nil {
				log.Warn().Err(err).
					Str("car", number).
					Int("lap", car.LastLapCompleted).
					Msg("failed to persist lap snapshot")
			}
		}

		events = append(events, LapEvent{
			Number:    number,
			Lap:       car.LastLapCompleted,
			LapTimeMs: car.LastLapTimeMs,
			Pitted:    car.LapIncludedPit,
		})

		// New lap: per-lap flags start clean.
		car.LapIncludedPit = car.InPit
		car.LapHadLocalFlag = car.LocalFlag != ""
	}
	return events
}

// Reset drops the lap watermarks (session change).
func (l *Laps) Reset() {
	l.lastSeen = make(map[string]int)
}
