// Package x2 carries the transponder passing feed: JSON arrays of loop
// crossings and loop (timing line) definitions.
package x2

import (
	"encoding/json"
	"fmt"
	"time"
)

// Passing is one transponder crossing of a timing loop.
type Passing struct {
	ID             int64     `json:"id"`
	TransponderID  int       `json:"transponderId"`
	LoopID         int       `json:"loopId"`
	LoopName       string    `json:"loopName,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	IsInPit        bool      `json:"isInPit"`
	IsResend       bool      `json:"isResend"`
}

// Loop is a timing line definition.
type Loop struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	IsInPit         bool    `json:"isInPit"`
	IsPitStartFin   bool    `json:"isPitStartFinish"`
	Order           float64 `json:"order"`
	Latitude        float64 `json:"lat,omitempty"`
	Longitude       float64 `json:"lon,omitempty"`
}

// ParsePassings decodes a stream entry payload carrying a batch of
// passings (the relay chunks these to at most 25 per entry).
func ParsePassings(payload []byte) ([]Passing, error) {
	var passings []Passing
	if err := json.Unmarshal(payload, &passings); err != nil {
		return nil, fmt.Errorf("x2: parse passings: %w", err)
	}
	return passings, nil
}

// ParseLoops decodes a loop-definition payload.
func ParseLoops(payload []byte) ([]Loop, error) {
	var loops []Loop
	if err := json.Unmarshal(payload, &loops); err != nil {
		return nil, fmt.Errorf("x2: parse loops: %w", err)
	}
	return loops, nil
}
