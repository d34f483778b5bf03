// Package controllog caches parsed race-control log entries. The
// entries themselves come from an external spreadsheet parser which
// keeps a JSON file current; Provider watches that file and reloads it
// on change. Lookups go through an expirable in-process cache with
// coalesced loads.
package controllog

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Entry is one parsed control-log row. Multi-car entries name every car
// involved; HighlightedCar marks the one the penalty applies to.
type Entry struct {
	ID             string    `json:"id"`
	EventID        int       `json:"eventId"`
	Timestamp      time.Time `json:"timestamp"`
	Cars           []string  `json:"cars"`
	HighlightedCar string    `json:"highlightedCar,omitempty"`
	Status         string    `json:"status,omitempty"`
	Penalty        string    `json:"penalty,omitempty"`
	Notes          string    `json:"notes,omitempty"`
}

// CarControlLogs is the per-car view fanned to control-log subscribers.
type CarControlLogs struct {
	EventID   int     `json:"eventId"`
	CarNumber string  `json:"carNumber"`
	Entries   []Entry `json:"entries"`
}

const cacheTTL = 30 * time.Second

// Cache serves control-log entries per event with an expirable LRU in
// front of the loader; concurrent loads for the same event coalesce.
type Cache struct {
	entries *lru.LRU[int, []Entry]
	group   singleflight.Group
	load    func(eventID int) ([]Entry, error)
}

func NewCache(load func(eventID int) ([]Entry, error)) *Cache {
	return &Cache{
		entries: lru.NewLRU[int, []Entry](64, nil, cacheTTL),
		load:    load,
	}
}

// Entries returns the cached entry list for an event, loading (once)
// on miss. A failed load returns nil entries.
func (c *Cache) Entries(eventID int) ([]Entry, error) {
	if entries, ok := c.entries.Get(eventID); ok {
		return entries, nil
	}

	v, err, _ := c.group.Do(fmt.Sprintf("event-%d", eventID), func() (any, error) {
		entries, err := c.load(eventID)
		if err != nil {
			return nil, err
		}
		c.entries.Add(eventID, entries)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Entry), nil
}

// Invalidate drops the cached entries for an event.
func (c *Cache) Invalidate(eventID int) {
	c.entries.Remove(eventID)
}

// ForCar filters an entry list down to one car.
func ForCar(entries []Entry, carNumber string) []Entry {
	var out []Entry
	for _, e := range entries {
		for _, car := range e.Cars {
			if car == carNumber {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// LoadFile reads a parsed-entries JSON file.
func LoadFile(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read control log: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse control log: %w", err)
	}
	return entries, nil
}
