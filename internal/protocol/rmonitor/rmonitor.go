// Package rmonitor decodes the line-oriented result-monitor feed: ASCII
// records beginning with a $-prefixed command code, comma separated,
// string fields double-quoted. The producer strips CR/LF before the
// lines reach the stream.
package rmonitor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownRecord marks command codes the decoder does not handle.
// Callers log and skip these.
var ErrUnknownRecord = errors.New("rmonitor: unknown record")

type Kind int

const (
	KindHeartbeat Kind = iota
	KindCompetitor
	KindRun
	KindClass
	KindInit
	KindRacePosition
	KindPracticeBest
	KindPassing
	KindTrackSetting
)

// Record is one decoded result-monitor line.
type Record interface {
	Kind() Kind
}

// Heartbeat is the $F record: global session timing and flag state.
type Heartbeat struct {
	LapsToGo   int
	TimeToGo   string
	TimeOfDay  string
	RaceTime   string
	FlagStatus string
}

func (Heartbeat) Kind() Kind { return KindHeartbeat }

// Competitor is the $A (or $COMP) entry record.
type Competitor struct {
	RegNumber     string
	Number        string
	TransponderID int
	FirstName     string
	LastName      string
	Nationality   string
	ClassNumber   int
}

func (Competitor) Kind() Kind { return KindCompetitor }

// Run is the $B record naming the run within the event.
type Run struct {
	Number int
	Name   string
}

func (Run) Kind() Kind { return KindRun }

// Class is the $C record defining a competition class.
type Class struct {
	Number      int
	Description string
}

func (Class) Kind() Kind { return KindClass }

// Init is the $I record; the feed restarts its state from scratch.
type Init struct {
	TimeOfDay string
	Date      string
}

func (Init) Kind() Kind { return KindInit }

// RacePosition is the $G record: running order with laps and total time.
type RacePosition struct {
	Position    int
	RegNumber   string
	Laps        int
	TotalTimeMs int64
}

func (RacePosition) Kind() Kind { return KindRacePosition }

// PracticeBest is the $H record: qualifying/practice best lap.
type PracticeBest struct {
	Position   int
	RegNumber  string
	BestLap    int
	BestTimeMs int64
}

func (PracticeBest) Kind() Kind { return KindPracticeBest }

// Passing is the $J record: a start/finish crossing with lap and total
// times.
type Passing struct {
	RegNumber   string
	LapTimeMs   int64
	TotalTimeMs int64
}

func (Passing) Kind() Kind { return KindPassing }

// TrackSetting is the $E record: track name/length settings. Carried
// for completeness; the pipeline ignores it.
type TrackSetting struct {
	Setting string
	Value   string
}

func (TrackSetting) Kind() Kind { return KindTrackSetting }

// Parse decodes one record line. Unknown commands return
// ErrUnknownRecord; malformed known commands return a descriptive error.
func Parse(line string) (Record, error) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '$' {
		return nil, fmt.Errorf("rmonitor: not a record: %q", line)
	}

	fields := splitFields(line)
	cmd := fields[0]

	switch cmd {
	case "$F":
		if len(fields) < 6 {
			return nil, fmt.Errorf("rmonitor: short $F record (%d fields)", len(fields))
		}
		lapsToGo, _ := strconv.Atoi(fields[1])
		return Heartbeat{
			LapsToGo:   lapsToGo,
			TimeToGo:   fields[2],
			TimeOfDay:  fields[3],
			RaceTime:   fields[4],
			FlagStatus: strings.TrimSpace(fields[5]),
		}, nil

	case "$A", "$COMP":
		if len(fields) < 7 {
			return nil, fmt.Errorf("rmonitor: short %s record (%d fields)", cmd, len(fields))
		}
		rec := Competitor{
			RegNumber:   fields[1],
			Number:      fields[2],
			FirstName:   fields[4],
			LastName:    fields[5],
			Nationality: fields[6],
		}
		if cmd == "$A" {
			rec.TransponderID, _ = strconv.Atoi(fields[3])
			if len(fields) > 7 {
				rec.ClassNumber, _ = strconv.Atoi(fields[7])
			}
		} else {
			// $COMP carries the class where $A carries the transponder.
			rec.ClassNumber, _ = strconv.Atoi(fields[3])
		}
		return rec, nil

	case "$B":
		if len(fields) < 3 {
			return nil, fmt.Errorf("rmonitor: short $B record (%d fields)", len(fields))
		}
		n, _ := strconv.Atoi(fields[1])
		return Run{Number: n, Name: fields[2]}, nil

	case "$C":
		if len(fields) < 3 {
			return nil, fmt.Errorf("rmonitor: short $C record (%d fields)", len(fields))
		}
		n, _ := strconv.Atoi(fields[1])
		return Class{Number: n, Description: fields[2]}, nil

	case "$E":
		if len(fields) < 3 {
			return nil, fmt.Errorf("rmonitor: short $E record (%d fields)", len(fields))
		}
		return TrackSetting{Setting: fields[1], Value: fields[2]}, nil

	case "$I":
		if len(fields) < 3 {
			return nil, fmt.Errorf("rmonitor: short $I record (%d fields)", len(fields))
		}
		return Init{TimeOfDay: fields[1], Date: fields[2]}, nil

	case "$G":
		if len(fields) < 5 {
			return nil, fmt.Errorf("rmonitor: short $G record (%d fields)", len(fields))
		}
		pos, _ := strconv.Atoi(fields[1])
		laps, _ := strconv.Atoi(fields[3])
		total, err := ParseTimeMs(fields[4])
		if err != nil {
			total = 0
		}
		return RacePosition{
			Position:    pos,
			RegNumber:   fields[2],
			Laps:        laps,
			TotalTimeMs: total,
		}, nil

	case "$H":
		if len(fields) < 5 {
			return nil, fmt.Errorf("rmonitor: short $H record (%d fields)", len(fields))
		}
		pos, _ := strconv.Atoi(fields[1])
		bestLap, _ := strconv.Atoi(fields[3])
		best, err := ParseTimeMs(fields[4])
		if err != nil {
			best = 0
		}
		return PracticeBest{
			Position:   pos,
			RegNumber:  fields[2],
			BestLap:    bestLap,
			BestTimeMs: best,
		}, nil

	case "$J":
		if len(fields) < 4 {
			return nil, fmt.Errorf("rmonitor: short $J record (%d fields)", len(fields))
		}
		lap, err := ParseTimeMs(fields[2])
		if err != nil {
			lap = 0
		}
		total, err := ParseTimeMs(fields[3])
		if err != nil {
			total = 0
		}
		return Passing{RegNumber: fields[1], LapTimeMs: lap, TotalTimeMs: total}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownRecord, cmd)
}

// splitFields splits a record on commas and strips surrounding double
// quotes. The feed never embeds commas inside quoted fields, so a plain
// split is sufficient.
func splitFields(line string) []string {
	parts := strings.Split(line, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"' {
			p = p[1 : len(p)-1]
		}
		parts[i] = p
	}
	return parts
}

// ParseTimeMs converts a feed time of the form "hh:mm:ss.fff",
// "mm:ss.fff" or "ss.fff" to milliseconds.
func ParseTimeMs(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("rmonitor: empty time")
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("rmonitor: bad time %q", s)
	}

	// Only the last component may be fractional.
	var total int64
	for i, part := range parts {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, fmt.Errorf("rmonitor: bad time %q: %w", s, err)
		}
		switch len(parts) - i {
		case 3:
			total += int64(f) * 3600 * 1000
		case 2:
			total += int64(f) * 60 * 1000
		case 1:
			total += int64(f*1000 + 0.5)
		}
	}
	return total, nil
}

// FormatTimeMs renders milliseconds as "ss.fff" under a minute and
// "m:ss.fff" otherwise, matching the gap/difference display format.
func FormatTimeMs(ms int64) string {
	if ms < 0 {
		ms = -ms
	}
	secs := ms / 1000
	frac := ms % 1000
	if secs < 60 {
		return fmt.Sprintf("%d.%03d", secs, frac)
	}
	return fmt.Sprintf("%d:%02d.%03d", secs/60, secs%60, frac)
}
