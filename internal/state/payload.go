package state

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// Payload is the legacy full-status document sent to subscribers: the
// session snapshot with cars flattened into an array ordered by overall
// position (unplaced cars last, by number).
type Payload struct {
	EventID        int     `json:"eventId"`
	SessionID      int     `json:"sessionId"`
	SessionName    string  `json:"sessionName,omitempty"`
	TimeZoneOffset float64 `json:"timeZoneOffset,omitempty"`

	LapsToGo        int    `json:"lapsToGo"`
	TimeToGo        string `json:"timeToGo,omitempty"`
	RunningRaceTime string `json:"runningRaceTime,omitempty"`
	LocalTimeOfDay  string `json:"localTimeOfDay,omitempty"`

	CurrentFlag      string         `json:"currentFlag,omitempty"`
	FlagDurations    []FlagDuration `json:"flagDurations,omitempty"`
	GreenMs          int64          `json:"greenMs"`
	YellowMs         int64          `json:"yellowMs"`
	RedMs            int64          `json:"redMs"`
	NumberOfYellows  int            `json:"numberOfYellows"`
	AverageRaceSpeed float64        `json:"averageRaceSpeed,omitempty"`
	LeadChanges      int            `json:"leadChanges"`

	CarPositions  []CarPosition     `json:"carPositions"`
	Sections      []TrackSection    `json:"trackSections,omitempty"`
	ClassColors   map[string]string `json:"classColors,omitempty"`
	Announcements []Announcement    `json:"announcements,omitempty"`

	LastUpdated time.Time `json:"lastUpdated"`
}

// ToPayload maps the snapshot to the legacy document. Pure; call under
// at least the read lock.
func ToPayload(s *SessionState) *Payload {
	cars := make([]CarPosition, 0, len(s.Cars))
	for _, c := range s.Cars {
		cars = append(cars, *c.Clone())
	}
	sort.Slice(cars, func(i, j int) bool {
		pi, pj := cars[i].OverallPosition, cars[j].OverallPosition
		if pi == 0 && pj == 0 {
			return cars[i].Number < cars[j].Number
		}
		if pi == 0 {
			return false
		}
		if pj == 0 {
			return true
		}
		return pi < pj
	})

	return &Payload{
		EventID:          s.EventID,
		SessionID:        s.SessionID,
		SessionName:      s.SessionName,
		TimeZoneOffset:   s.TimeZoneOffset,
		LapsToGo:         s.LapsToGo,
		TimeToGo:         s.TimeToGo,
		RunningRaceTime:  s.RunningRaceTime,
		LocalTimeOfDay:   s.LocalTimeOfDay,
		CurrentFlag:      s.CurrentFlag,
		FlagDurations:    append([]FlagDuration(nil), s.FlagDurations...),
		GreenMs:          s.GreenMs,
		YellowMs:         s.YellowMs,
		RedMs:            s.RedMs,
		NumberOfYellows:  s.NumberOfYellows,
		AverageRaceSpeed: s.AverageRaceSpeed,
		LeadChanges:      s.LeadChanges,
		CarPositions:     cars,
		Sections:         append([]TrackSection(nil), s.Sections...),
		ClassColors:      s.ClassColors,
		Announcements:    append([]Announcement(nil), s.Announcements...),
		LastUpdated:      s.LastUpdated,
	}
}

// EncodePayload serializes for the legacy transport:
// base64(gzip(utf8(json(payload)))).
func EncodePayload(p *Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", fmt.Errorf("compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress payload: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodePayload reverses EncodePayload.
func DecodePayload(encoded string) (*Payload, error) {
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &p, nil
}
