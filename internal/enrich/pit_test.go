package enrich

import (
	"testing"
	"time"

	"github.com/paddockcloud/lt-engine/internal/protocol/x2"
	"github.com/paddockcloud/lt-engine/internal/state"
)

func pitLoops() []x2.Loop {
	return []x2.Loop{
		{ID: 1, Name: "StartFinish", Order: 0},
		{ID: 2, Name: "PitIn", IsInPit: true, Order: 1},
		{ID: 3, Name: "PitOut", Order: 2},
		{ID: 4, Name: "PitSF", IsInPit: true, IsPitStartFin: true, Order: 1.5},
	}
}

func TestProcessPassingsPitCycle(t *testing.T) {
	s := state.NewSessionState(1, 1)
	car := s.Car("12")
	car.TransponderID = 52474
	car.LastLapCompleted = 7

	p := NewPits()
	p.SetLoops(s, pitLoops())

	now := time.Now()
	pass := func(loopID int, resend bool) x2.Passing {
		return x2.Passing{TransponderID: 52474, LoopID: loopID, Timestamp: now, IsResend: resend}
	}

	// Entry: in-pit loop flips InPit and pulses EnteredPit once.
	p.ProcessPassings(s, []x2.Passing{pass(2, false)})
	if !car.InPit || !car.EnteredPit || car.ExitedPit {
		t.Fatalf("after pit entry: inPit=%v entered=%v exited=%v", car.InPit, car.EnteredPit, car.ExitedPit)
	}
	if !car.LapIncludedPit || car.LastLapPitted != 8 {
		t.Errorf("lapIncludedPit=%v lastLapPitted=%d, want true 8", car.LapIncludedPit, car.LastLapPitted)
	}
	if car.PitStopCount != 0 {
		t.Errorf("stop count = %d before exit", car.PitStopCount)
	}

	ClearPulses(s)
	if car.EnteredPit || car.ExitedPit {
		t.Fatal("pulses should clear between passes")
	}

	// Still in pit: crossing the pit start/finish keeps InPit, no pulse.
	p.ProcessPassings(s, []x2.Passing{pass(4, false)})
	if !car.InPit || car.EnteredPit || !car.PitStartFinish {
		t.Fatalf("mid-pit: inPit=%v entered=%v pitSF=%v", car.InPit, car.EnteredPit, car.PitStartFinish)
	}

	ClearPulses(s)

	// Exit: non-pit loop pulses ExitedPit and counts the stop.
	p.ProcessPassings(s, []x2.Passing{pass(3, false)})
	if car.InPit || !car.ExitedPit || car.PitStopCount != 1 {
		t.Fatalf("after exit: inPit=%v exited=%v stops=%d", car.InPit, car.ExitedPit, car.PitStopCount)
	}
	if car.LastLoopName != "PitOut" {
		t.Errorf("lastLoop = %q", car.LastLoopName)
	}

	ClearPulses(s)

	// Resend updates location only; no transition back into the pit.
	p.ProcessPassings(s, []x2.Passing{pass(2, true)})
	if car.InPit || car.EnteredPit {
		t.Errorf("resend changed pit state: inPit=%v entered=%v", car.InPit, car.EnteredPit)
	}
	if car.LastLoopName != "PitIn" {
		t.Errorf("resend should still update lastLoop, got %q", car.LastLoopName)
	}
}

func TestProcessPassingsUnknownLoopAndCar(t *testing.T) {
	s := state.NewSessionState(1, 1)
	car := s.Car("12")
	car.TransponderID = 52474

	p := NewPits()

	// Unknown transponder is skipped without creating a car.
	p.ProcessPassings(s, []x2.Passing{{TransponderID: 99999, LoopID: 1}})
	if len(s.Cars) != 1 {
		t.Fatalf("unknown transponder grew the roster to %d cars", len(s.Cars))
	}

	// Unknown loop falls back to the passing's own pit attribute.
	p.ProcessPassings(s, []x2.Passing{{TransponderID: 52474, LoopID: 7, LoopName: "Mystery", IsInPit: true}})
	if !car.InPit || car.LastLoopName != "Mystery" {
		t.Errorf("fallback loop: inPit=%v lastLoop=%q", car.InPit, car.LastLoopName)
	}
}

func TestReapplyAfterTopologyChange(t *testing.T) {
	s := state.NewSessionState(1, 1)
	car := s.Car("12")
	car.TransponderID = 52474

	p := NewPits()
	p.SetLoops(s, pitLoops())
	p.ProcessPassings(s, []x2.Passing{{TransponderID: 52474, LoopID: 2}})
	if !car.InPit {
		t.Fatal("expected car in pit")
	}
	ClearPulses(s)

	// The loop the car last crossed is no longer a pit loop.
	changed := pitLoops()
	changed[1].IsInPit = false
	p.SetLoops(s, changed)
	p.Reapply(s)

	if car.InPit || !car.ExitedPit || car.PitStopCount != 1 {
		t.Errorf("reapply: inPit=%v exited=%v stops=%d", car.InPit, car.ExitedPit, car.PitStopCount)
	}
}

func TestSetLoopsMirrorsSections(t *testing.T) {
	s := state.NewSessionState(1, 1)
	p := NewPits()
	p.SetLoops(s, pitLoops())

	if len(s.Sections) != 4 {
		t.Fatalf("sections = %d, want 4", len(s.Sections))
	}
	if !s.Sections[1].IsInPit || s.Sections[1].Name != "PitIn" {
		t.Errorf("section = %+v", s.Sections[1])
	}
}
