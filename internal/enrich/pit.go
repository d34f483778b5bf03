package enrich

import (
	"github.com/paddockcloud/lt-engine/internal/protocol/x2"
	"github.com/paddockcloud/lt-engine/internal/state"
)

// Pits tracks loop topology and derives per-car pit state from
// transponder passings.
type Pits struct {
	loops map[int]x2.Loop
}

func NewPits() *Pits {
	return &Pits{loops: make(map[int]x2.Loop)}
}

// SetLoops replaces the loop topology and mirrors it into the
// snapshot's track sections.
func (p *Pits) SetLoops(s *state.SessionState, loops []x2.Loop) {
	p.loops = make(map[int]x2.Loop, len(loops))
	sections := make([]state.TrackSection, 0, len(loops))
	for _, l := range loops {
		p.loops[l.ID] = l
		sections = append(sections, state.TrackSection{
			LoopID:        l.ID,
			Name:          l.Name,
			IsInPit:       l.IsInPit,
			IsPitStartFin: l.IsPitStartFin,
			Order:         l.Order,
		})
	}
	s.Sections = sections
}

// ProcessPassings folds a passing batch into the snapshot. A car is in
// pit while its most recent crossing was on an in-pit loop; the
// entered/exited pulses fire exactly on the transition, and the stop
// counter increments on exit. Resent passings update location only.
func (p *Pits) ProcessPassings(s *state.SessionState, passings []x2.Passing) {
	for _, pass := range passings {
		car := s.CarByTransponder(pass.TransponderID)
		if car == nil {
			continue
		}

		loop, known := p.loops[pass.LoopID]
		if !known {
			loop = x2.Loop{ID: pass.LoopID, Name: pass.LoopName, IsInPit: pass.IsInPit}
		}

		car.LastLoopName = loop.Name
		if loop.Latitude != 0 || loop.Longitude != 0 {
			car.Lat, car.Lon = loop.Latitude, loop.Longitude
		}
		car.PitStartFinish = loop.IsPitStartFin

		if pass.IsResend {
			continue
		}

		inPit := loop.IsInPit || pass.IsInPit
		if inPit {
			car.LapIncludedPit = true
			car.LastLapPitted = car.LastLapCompleted + 1
		}
		switch {
		case inPit && !car.InPit:
			car.InPit = true
			car.EnteredPit = true
		case !inPit && car.InPit:
			car.InPit = false
			car.ExitedPit = true
			car.PitStopCount++
		}
	}
}

// Reapply recomputes in-pit state for every car from the current
// topology. Called on loop-configuration changes, which can silently
// flip a loop's pit attribute.
func (p *Pits) Reapply(s *state.SessionState) {
	byName := make(map[string]x2.Loop, len(p.loops))
	for _, l := range p.loops {
		byName[l.Name] = l
	}
	for _, car := range s.Cars {
		loop, ok := byName[car.LastLoopName]
		if !ok {
			continue
		}
		inPit := loop.IsInPit
		switch {
		case inPit && !car.InPit:
			car.InPit = true
			car.EnteredPit = true
		case !inPit && car.InPit:
			car.InPit = false
			car.ExitedPit = true
			car.PitStopCount++
		}
		car.PitStartFinish = loop.IsPitStartFin
	}
}

// ClearPulses resets the one-shot pit transition flags. The pipeline
// calls this before each pass so the pulses appear only in the patch
// that records the transition.
func ClearPulses(s *state.SessionState) {
	for _, car := range s.Cars {
		car.EnteredPit = false
		car.ExitedPit = false
	}
}
