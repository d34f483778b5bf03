package enrich

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/paddockcloud/lt-engine/internal/state"
)

type capturingLapWriter struct {
	laps []state.CarPosition
}

func (w *capturingLapWriter) InsertCarLap(_ context.Context, car state.CarPosition) error {
	w.laps = append(w.laps, car)
	return nil
}

func TestLapsProcess(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()
	w := &capturingLapWriter{}
	l := NewLaps()

	s := state.NewSessionState(1, 1)
	car := s.Car("12")
	car.LastLapCompleted = 5
	car.LastLapTimeMs = 91000
	car.LapIncludedPit = true

	events := l.Process(ctx, s, w, log)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Number != "12" || ev.Lap != 5 || ev.LapTimeMs != 91000 || !ev.Pitted {
		t.Errorf("event = %+v", ev)
	}
	if len(w.laps) != 1 || w.laps[0].LastLapCompleted != 5 {
		t.Errorf("persisted laps = %+v", w.laps)
	}
	// Per-lap pit flag resets for the new lap (car is not in pit now).
	if car.LapIncludedPit {
		t.Error("lapIncludedPit should reset after the lap record")
	}

	// Same lap again: no event, no write.
	if events := l.Process(ctx, s, w, log); len(events) != 0 {
		t.Errorf("repeat pass fired %d events", len(events))
	}

	// Advance fires again; reset forgets the watermark.
	car.LastLapCompleted = 6
	if events := l.Process(ctx, s, w, log); len(events) != 1 {
		t.Fatalf("advance fired %d events", len(events))
	}
	l.Reset()
	if events := l.Process(ctx, s, w, log); len(events) != 1 {
		t.Errorf("post-reset pass fired %d events, want 1", len(events))
	}
}

func TestLapsStillInPitKeepsFlag(t *testing.T) {
	l := NewLaps()
	s := state.NewSessionState(1, 1)
	car := s.Car("12")
	car.LastLapCompleted = 3
	car.InPit = true
	car.LapIncludedPit = true

	l.Process(context.Background(), s, nil, zerolog.Nop())
	if !car.LapIncludedPit {
		t.Error("a car still in the pit starts its next lap pitted")
	}
}
