// Package multiloop decodes the secondary loop-telemetry feed: records
// of the form
//
//	${code}§{recordType}§{sequence}§{preamble}§{record fields…}
//
// where recordType is N (new), R (repeated) or U (updated), sequence is
// hexadecimal, and all integer fields are hexadecimal.
package multiloop

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Delimiter separates record fields on the wire.
const Delimiter = "§"

var ErrUnknownRecord = errors.New("multiloop: unknown record")

// Header is shared by every record.
type Header struct {
	Code       string // single-letter record code
	RecordType string // N, R or U
	Sequence   uint32
	Preamble   string
}

type Record interface {
	Header() Header
}

type Heartbeat struct {
	Hdr        Header
	LapsToGo   int
	TimeToGoMs int64
	RaceTimeMs int64
	TimeOfDay  int64
	FlagStatus string
}

func (r Heartbeat) Header() Header { return r.Hdr }

// Entry is the per-car registration record, including the grid position
// used for positions-gained when the multiloop feed is active.
type Entry struct {
	Hdr           Header
	Number        string
	DriverName    string
	ClassID       int
	StartPosition int
	TransponderID int
}

func (r Entry) Header() Header { return r.Hdr }

type CompletedLap struct {
	Hdr         Header
	Number      string
	LapNumber   int
	LapTimeMs   int64
	TotalTimeMs int64
	Position    int
	LapsLed     int
}

func (r CompletedLap) Header() Header { return r.Hdr }

type CompletedSection struct {
	Hdr         Header
	Number      string
	Section     string
	ElapsedMs   int64
	LastLapTime int64
}

func (r CompletedSection) Header() Header { return r.Hdr }

type LineCrossing struct {
	Hdr         Header
	Number      string
	Loop        string
	TrackStatus string
	CrossingMs  int64
}

func (r LineCrossing) Header() Header { return r.Hdr }

type InvalidatedLap struct {
	Hdr       Header
	Number    string
	LapNumber int
}

func (r InvalidatedLap) Header() Header { return r.Hdr }

// FlagInformation carries the flag-time aggregates. AverageRaceSpeed is
// an opaque passthrough of the feed's value.
type FlagInformation struct {
	Hdr              Header
	TrackStatus      string
	GreenMs          int64
	YellowMs         int64
	RedMs            int64
	NumberOfYellows  int
	AverageRaceSpeed float64
	LeadChanges      int
}

func (r FlagInformation) Header() Header { return r.Hdr }

type NewLeader struct {
	Hdr       Header
	Number    string
	LapNumber int
	ElapsedMs int64
}

func (r NewLeader) Header() Header { return r.Hdr }

type RunInformation struct {
	Hdr      Header
	RunName  string
	RunType  string
	FlagInfo string
}

func (r RunInformation) Header() Header { return r.Hdr }

type SectionDefinition struct {
	Name         string
	LengthInches int64
}

type TrackInformation struct {
	Hdr      Header
	Name     string
	Venue    string
	Sections []SectionDefinition
}

func (r TrackInformation) Header() Header { return r.Hdr }

type Announcement struct {
	Hdr      Header
	Sequence int
	Action   string
	Priority string
	Text     string
}

func (r Announcement) Header() Header { return r.Hdr }

type Version struct {
	Hdr   Header
	Major int
	Minor int
}

func (r Version) Header() Header { return r.Hdr }

// Parse decodes one multiloop record line.
func Parse(line string) (Record, error) {
	line = strings.TrimSpace(line)
	fields := strings.Split(line, Delimiter)
	if len(fields) < 4 || len(fields[0]) < 2 || fields[0][0] != '$' {
		return nil, fmt.Errorf("multiloop: malformed record: %q", line)
	}

	seq, err := strconv.ParseUint(fields[2], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("multiloop: bad sequence %q: %w", fields[2], err)
	}
	hdr := Header{
		Code:       fields[0][1:],
		RecordType: fields[1],
		Sequence:   uint32(seq),
		Preamble:   fields[3],
	}
	body := fields[4:]

	switch hdr.Code {
	case "H":
		if len(body) < 5 {
			return nil, shortRecord(hdr.Code, len(body))
		}
		return Heartbeat{
			Hdr:        hdr,
			LapsToGo:   hexInt(body[0]),
			TimeToGoMs: hexInt64(body[1]),
			RaceTimeMs: hexInt64(body[2]),
			TimeOfDay:  hexInt64(body[3]),
			FlagStatus: body[4],
		}, nil
	case "E":
		if len(body) < 5 {
			return nil, shortRecord(hdr.Code, len(body))
		}
		return Entry{
			Hdr:           hdr,
			Number:        body[0],
			DriverName:    body[1],
			ClassID:       hexInt(body[2]),
			StartPosition: hexInt(body[3]),
			TransponderID: hexInt(body[4]),
		}, nil
	case "C":
		if len(body) < 6 {
			return nil, shortRecord(hdr.Code, len(body))
		}
		return CompletedLap{
			Hdr:         hdr,
			Number:      body[0],
			LapNumber:   hexInt(body[1]),
			LapTimeMs:   hexInt64(body[2]),
			TotalTimeMs: hexInt64(body[3]),
			Position:    hexInt(body[4]),
			LapsLed:     hexInt(body[5]),
		}, nil
	case "S":
		if len(body) < 4 {
			return nil, shortRecord(hdr.Code, len(body))
		}
		return CompletedSection{
			Hdr:         hdr,
			Number:      body[0],
			Section:     body[1],
			ElapsedMs:   hexInt64(body[2]),
			LastLapTime: hexInt64(body[3]),
		}, nil
	case "L":
		if len(body) < 4 {
			return nil, shortRecord(hdr.Code, len(body))
		}
		return LineCrossing{
			Hdr:         hdr,
			Number:      body[0],
			Loop:        body[1],
			TrackStatus: body[2],
			CrossingMs:  hexInt64(body[3]),
		}, nil
	case "I":
		if len(body) < 2 {
			return nil, shortRecord(hdr.Code, len(body))
		}
		return InvalidatedLap{Hdr: hdr, Number: body[0], LapNumber: hexInt(body[1])}, nil
	case "F":
		if len(body) < 7 {
			return nil, shortRecord(hdr.Code, len(body))
		}
		speed, _ := strconv.ParseFloat(body[5], 64)
		return FlagInformation{
			Hdr:              hdr,
			TrackStatus:      body[0],
			GreenMs:          hexInt64(body[1]),
			YellowMs:         hexInt64(body[2]),
			RedMs:            hexInt64(body[3]),
			NumberOfYellows:  hexInt(body[4]),
			AverageRaceSpeed: speed,
			LeadChanges:      hexInt(body[6]),
		}, nil
	case "N":
		if len(body) < 3 {
			return nil, shortRecord(hdr.Code, len(body))
		}
		return NewLeader{
			Hdr:       hdr,
			Number:    body[0],
			LapNumber: hexInt(body[1]),
			ElapsedMs: hexInt64(body[2]),
		}, nil
	case "R":
		if len(body) < 3 {
			return nil, shortRecord(hdr.Code, len(body))
		}
		return RunInformation{Hdr: hdr, RunName: body[0], RunType: body[1], FlagInfo: body[2]}, nil
	case "T":
		if len(body) < 3 {
			return nil, shortRecord(hdr.Code, len(body))
		}
		n := hexInt(body[2])
		rec := TrackInformation{Hdr: hdr, Name: body[0], Venue: body[1]}
		for i := 0; i < n && 3+i*2+1 < len(body); i++ {
			rec.Sections = append(rec.Sections, SectionDefinition{
				Name:         body[3+i*2],
				LengthInches: hexInt64(body[3+i*2+1]),
			})
		}
		return rec, nil
	case "A":
		if len(body) < 4 {
			return nil, shortRecord(hdr.Code, len(body))
		}
		return Announcement{
			Hdr:      hdr,
			Sequence: hexInt(body[0]),
			Action:   body[1],
			Priority: body[2],
			Text:     body[3],
		}, nil
	case "V":
		if len(body) < 2 {
			return nil, shortRecord(hdr.Code, len(body))
		}
		return Version{Hdr: hdr, Major: hexInt(body[0]), Minor: hexInt(body[1])}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownRecord, hdr.Code)
}

func shortRecord(code string, n int) error {
	return fmt.Errorf("multiloop: short %s record (%d fields)", code, n)
}

func hexInt(s string) int {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 16, 64)
	if err != nil {
		return 0
	}
	return int(v)
}

func hexInt64(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 16, 64)
	if err != nil {
		return 0
	}
	return v
}
