package enrich

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/paddockcloud/lt-engine/internal/state"
)

// FlagLogWriter persists completed flag durations. Failures are logged
// and the in-memory state stays authoritative.
type FlagLogWriter interface {
	InsertFlagDuration(ctx context.Context, eventID, sessionID int, d state.FlagDuration) error
}

// Flags folds a batch of incoming flag durations into the snapshot. An
// incoming open flag (nil EndTime) closes any prior open duration of
// any kind at its start time before opening; completed durations are
// written through. currentFlag and the yellow counter are kept current.
func Flags(ctx context.Context, s *state.SessionState, incoming []state.FlagDuration, w FlagLogWriter, log zerolog.Logger) {
	for _, in := range incoming {
		if in.EndTime == nil {
			openFlag(ctx, s, in, w, log)
			continue
		}
		// A fully-closed duration arriving wholesale (relay resend).
		if !hasDuration(s, in) {
			s.FlagDurations = append(s.FlagDurations, in)
			persist(ctx, s, in, w, log)
			if in.Flag == state.FlagYellow {
				s.NumberOfYellows++
			}
		}
	}
}

func openFlag(ctx context.Context, s *state.SessionState, in state.FlagDuration, w FlagLogWriter, log zerolog.Logger) {
	for i := range s.FlagDurations {
		d := &s.FlagDurations[i]
		if d.EndTime != nil {
			continue
		}
		if d.Flag == in.Flag && d.StartTime.Equal(in.StartTime) {
			return // already open
		}
		end := in.StartTime
		d.EndTime = &end
		persist(ctx, s, *d, w, log)
	}

	s.FlagDurations = append(s.FlagDurations, in)
	s.CurrentFlag = in.Flag
	if in.Flag == state.FlagYellow {
		s.NumberOfYellows++
	}
}

func hasDuration(s *state.SessionState, in state.FlagDuration) bool {
	for _, d := range s.FlagDurations {
		if d.Flag == in.Flag && d.StartTime.Equal(in.StartTime) {
			return true
		}
	}
	return false
}

func persist(ctx context.Context, s *state.SessionState, d state.FlagDuration, w FlagLogWriter, log zerolog.Logger) {
	if w == nil {
		return
	}
	if err := w.InsertFlagDuration(ctx, s.EventID, s.SessionID, d); err != nil {
		log.Warn().Err(err).Str("flag", d.Flag).Msg("failed to persist flag duration")
	}
}

// FlagAggregates recomputes the per-flag time totals from the duration
// list; open durations count up to now.
func FlagAggregates(s *state.SessionState, now time.Time) {
	var green, yellow, red int64
	for _, d := range s.FlagDurations {
		end := now
		if d.EndTime != nil {
			end = *d.EndTime
		}
		ms := end.Sub(d.StartTime).Milliseconds()
		if ms < 0 {
			continue
		}
		switch d.Flag {
		case state.FlagGreen:
			green += ms
		case state.FlagYellow:
			yellow += ms
		case state.FlagRed:
			red += ms
		}
	}
	s.GreenMs, s.YellowMs, s.RedMs = green, yellow, red
}
