package multiloop

// SectionStateUpdate is emitted when a car completes a lap: the car's
// accumulated sections for that lap are cleared and reported.
type SectionStateUpdate struct {
	Number      string
	LapNumber   int
	Sections    []string
	LapTimeMs   int64
	TotalTimeMs int64
	Position    int
}

// Tracker keeps per-car multiloop state across records: the latest
// completed lap and the sections crossed since. Reset on relay reset.
type Tracker struct {
	laps     map[string]CompletedLap
	sections map[string][]string
}

func NewTracker() *Tracker {
	return &Tracker{
		laps:     make(map[string]CompletedLap),
		sections: make(map[string][]string),
	}
}

// Observe folds one record into the tracker. A CompletedLap clears the
// car's section set and returns a SectionStateUpdate; everything else
// returns nil.
func (t *Tracker) Observe(rec Record) *SectionStateUpdate {
	switch r := rec.(type) {
	case CompletedSection:
		secs := t.sections[r.Number]
		for _, s := range secs {
			if s == r.Section {
				return nil // repeated section record
			}
		}
		t.sections[r.Number] = append(secs, r.Section)
	case CompletedLap:
		prev, seen := t.laps[r.Number]
		if seen && prev.LapNumber >= r.LapNumber {
			return nil // repeated or stale lap record
		}
		t.laps[r.Number] = r
		cleared := t.sections[r.Number]
		delete(t.sections, r.Number)
		return &SectionStateUpdate{
			Number:      r.Number,
			LapNumber:   r.LapNumber,
			Sections:    cleared,
			LapTimeMs:   r.LapTimeMs,
			TotalTimeMs: r.TotalTimeMs,
			Position:    r.Position,
		}
	}
	return nil
}

// Clone returns an independent copy, used to roll the tracker back
// when a pass is retried.
func (t *Tracker) Clone() *Tracker {
	cp := NewTracker()
	for n, lap := range t.laps {
		cp.laps[n] = lap
	}
	for n, secs := range t.sections {
		cp.sections[n] = append([]string(nil), secs...)
	}
	return cp
}

// LatestLap returns the last completed lap recorded for a car.
func (t *Tracker) LatestLap(number string) (CompletedLap, bool) {
	lap, ok := t.laps[number]
	return lap, ok
}

// Sections returns the sections crossed by a car since its last
// completed lap.
func (t *Tracker) Sections(number string) []string {
	return append([]string(nil), t.sections[number]...)
}

// Reset clears all per-car state (relay reset re-derives from a fresh
// snapshot).
func (t *Tracker) Reset() {
	t.laps = make(map[string]CompletedLap)
	t.sections = make(map[string][]string)
}
