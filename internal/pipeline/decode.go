package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paddockcloud/lt-engine/internal/enrich"
	"github.com/paddockcloud/lt-engine/internal/protocol/multiloop"
	"github.com/paddockcloud/lt-engine/internal/protocol/rmonitor"
	"github.com/paddockcloud/lt-engine/internal/state"
)

// decoder keeps result-monitor feed state that spans records: class
// definitions and the registration-to-car-number mapping used by
// position and passing records.
type decoder struct {
	classes  map[int]string
	regToCar map[string]string
}

func newDecoder() *decoder {
	return &decoder{
		classes:  make(map[int]string),
		regToCar: make(map[string]string),
	}
}

func (d *decoder) reset() {
	d.classes = make(map[int]string)
	d.regToCar = make(map[string]string)
}

// carNumber resolves a registration number to the car number, falling
// back to the registration itself for feeds that use them
// interchangeably.
func (d *decoder) carNumber(regNumber string) string {
	if n, ok := d.regToCar[regNumber]; ok {
		return n
	}
	return regNumber
}

// applyRMonitor folds one result-monitor record into the snapshot.
func (p *Pipeline) applyRMonitor(ctx context.Context, s *state.SessionState, line string, now time.Time) error {
	rec, err := rmonitor.Parse(line)
	if err != nil {
		return err
	}

	switch r := rec.(type) {
	case rmonitor.Heartbeat:
		s.LapsToGo = r.LapsToGo
		s.TimeToGo = r.TimeToGo
		s.LocalTimeOfDay = r.TimeOfDay
		s.RunningRaceTime = r.RaceTime
		p.applyFlagStatus(ctx, s, normalizeFlag(r.FlagStatus), now)

	case rmonitor.Competitor:
		car := s.Car(r.Number)
		if r.TransponderID != 0 {
			car.TransponderID = r.TransponderID
		}
		if class, ok := p.dec.classes[r.ClassNumber]; ok {
			car.Class = class
		}
		p.dec.regToCar[r.RegNumber] = r.Number

	case rmonitor.Run:
		s.SessionName = r.Name

	case rmonitor.Class:
		p.dec.classes[r.Number] = r.Description

	case rmonitor.Init:
		// The timing system restarted its result state; timing fields
		// re-derive from the records that follow.
		resetTiming(s)
		p.dec.reset()

	case rmonitor.RacePosition:
		car := s.Car(p.dec.carNumber(r.RegNumber))
		car.OverallPosition = r.Position
		car.LastLapCompleted = r.Laps
		if r.TotalTimeMs > 0 {
			car.TotalTimeMs = r.TotalTimeMs
		}

	case rmonitor.PracticeBest:
		s.IsPracticeOrQualifying = true
		car := s.Car(p.dec.carNumber(r.RegNumber))
		car.OverallPosition = r.Position
		car.BestLap = r.BestLap
		if r.BestTimeMs > 0 {
			car.BestTimeMs = r.BestTimeMs
		}

	case rmonitor.Passing:
		car := s.Car(p.dec.carNumber(r.RegNumber))
		if r.LapTimeMs > 0 {
			car.LastLapTimeMs = r.LapTimeMs
			if car.BestTimeMs == 0 || r.LapTimeMs < car.BestTimeMs {
				car.BestTimeMs = r.LapTimeMs
				car.BestLap = car.LastLapCompleted
			}
		}
		if r.TotalTimeMs > 0 {
			car.TotalTimeMs = r.TotalTimeMs
		}

	case rmonitor.TrackSetting:
		// Track name/length settings carry nothing the snapshot needs.
	}
	return nil
}

// applyMultiloop folds one multiloop record into the snapshot. The
// first record flips the snapshot to multiloop starting positions.
func (p *Pipeline) applyMultiloop(ctx context.Context, s *state.SessionState, line string, now time.Time) error {
	rec, err := multiloop.Parse(line)
	if err != nil {
		return err
	}
	s.MultiloopActive = true

	switch r := rec.(type) {
	case multiloop.Heartbeat:
		s.LapsToGo = r.LapsToGo
		s.TimeToGo = msToClock(r.TimeToGoMs)
		s.RunningRaceTime = msToClock(r.RaceTimeMs)
		p.applyFlagStatus(ctx, s, normalizeFlag(r.FlagStatus), now)

	case multiloop.Entry:
		car := s.Car(r.Number)
		if r.TransponderID != 0 {
			car.TransponderID = r.TransponderID
		}
		if r.DriverName != "" {
			car.DriverName = r.DriverName
		}
		if r.StartPosition > 0 {
			car.OverallStartingPosition = r.StartPosition
		}
		if class, ok := p.dec.classes[r.ClassID]; ok {
			car.Class = class
		}

	case multiloop.CompletedLap:
		if update := p.tracker.Observe(r); update != nil {
			car := s.Car(update.Number)
			car.LastLapCompleted = update.LapNumber
			car.LastLapTimeMs = update.LapTimeMs
			if update.TotalTimeMs > 0 {
				car.TotalTimeMs = update.TotalTimeMs
			}
			if update.Position > 0 {
				car.OverallPosition = update.Position
			}
			if update.LapTimeMs > 0 && (car.BestTimeMs == 0 || update.LapTimeMs < car.BestTimeMs) {
				car.BestTimeMs = update.LapTimeMs
				car.BestLap = update.LapNumber
			}
			car.CompletedSections = nil
		}

	case multiloop.CompletedSection:
		p.tracker.Observe(r)
		car := s.Car(r.Number)
		car.CompletedSections = p.tracker.Sections(r.Number)

	case multiloop.LineCrossing:
		car := s.Car(r.Number)
		car.LastLoopName = r.Loop

	case multiloop.InvalidatedLap:
		car := s.Car(r.Number)
		if car.LastLapCompleted == r.LapNumber {
			car.LastLapTimeMs = 0
		}
		if car.BestLap == r.LapNumber {
			car.BestTimeMs = 0
			car.BestLap = 0
		}

	case multiloop.FlagInformation:
		s.GreenMs = r.GreenMs
		s.YellowMs = r.YellowMs
		s.RedMs = r.RedMs
		s.NumberOfYellows = r.NumberOfYellows
		s.AverageRaceSpeed = r.AverageRaceSpeed
		s.LeadChanges = r.LeadChanges
		if flag := normalizeFlag(r.TrackStatus); flag != "" {
			s.CurrentFlag = flag
		}

	case multiloop.NewLeader:
		p.log.Debug().Str("car", r.Number).Int("lap", r.LapNumber).Msg("new leader")

	case multiloop.RunInformation:
		if r.RunName != "" {
			s.SessionName = r.RunName
		}
		switch strings.ToUpper(r.RunType) {
		case "P", "Q":
			s.IsPracticeOrQualifying = true
		}

	case multiloop.Announcement:
		applyAnnouncement(s, r)

	case multiloop.TrackInformation, multiloop.Version:
		// Informational only.
	}
	return nil
}

func applyAnnouncement(s *state.SessionState, r multiloop.Announcement) {
	if strings.EqualFold(r.Action, "D") {
		for i, a := range s.Announcements {
			if a.Sequence == r.Sequence {
				s.Announcements = append(s.Announcements[:i], s.Announcements[i+1:]...)
				return
			}
		}
		return
	}
	for i, a := range s.Announcements {
		if a.Sequence == r.Sequence {
			s.Announcements[i].Text = r.Text
			return
		}
	}
	s.Announcements = append(s.Announcements, state.Announcement{
		Sequence:  r.Sequence,
		Text:      r.Text,
		Timestamp: time.Now().UTC(),
	})
}

// applyFlagStatus opens a new flag duration when the track flag
// changes; durations and the yellow counter stay consistent through the
// shared flag fold.
func (p *Pipeline) applyFlagStatus(ctx context.Context, s *state.SessionState, flag string, now time.Time) {
	if flag == "" || flag == s.CurrentFlag {
		return
	}
	enrich.Flags(ctx, s, []state.FlagDuration{{Flag: flag, StartTime: now}}, p.db, p.log)
	for _, car := range s.Cars {
		car.TrackFlag = flag
	}
}

// normalizeFlag maps feed flag spellings onto the canonical set.
func normalizeFlag(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "green", "g":
		return state.FlagGreen
	case "yellow", "y", "caution":
		return state.FlagYellow
	case "red", "r":
		return state.FlagRed
	case "white", "w":
		return state.FlagWhite
	case "checkered", "checker", "finish", "c":
		return state.FlagCheckered
	case "cold", "none":
		return state.FlagCold
	}
	return ""
}

// resetTiming clears derived timing fields while keeping the roster.
func resetTiming(s *state.SessionState) {
	for _, car := range s.Cars {
		car.OverallPosition = 0
		car.ClassPosition = 0
		car.LastLapCompleted = 0
		car.LastLapTimeMs = 0
		car.BestTimeMs = 0
		car.BestLap = 0
		car.TotalTimeMs = 0
		car.OverallGap = ""
		car.OverallDifference = ""
		car.InClassGap = ""
		car.InClassDifference = ""
	}
}

func msToClock(ms int64) string {
	if ms <= 0 {
		return ""
	}
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}
