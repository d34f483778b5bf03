package state

import "time"

// InvalidPosition is the sentinel for unknown or invalid positions and
// positions-gained values.
const InvalidPosition = -999

// Track flag states as carried by the timing feeds.
const (
	FlagGreen     = "Green"
	FlagYellow    = "Yellow"
	FlagRed       = "Red"
	FlagWhite     = "White"
	FlagCheckered = "Checkered"
	FlagCold      = "Cold"
)

// FlagDuration records one interval during which a flag state was
// active. A nil EndTime means the flag is still open.
type FlagDuration struct {
	Flag      string     `json:"flag"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// TrackSection is a timing line on the circuit.
type TrackSection struct {
	LoopID        int     `json:"loopId"`
	Name          string  `json:"name"`
	IsInPit       bool    `json:"isInPit"`
	IsPitStartFin bool    `json:"isPitStartFinish"`
	Order         float64 `json:"order"`
}

// Announcement is a race-control message published through the
// multiloop feed.
type Announcement struct {
	Sequence  int       `json:"sequence"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CarPosition is the authoritative per-car record within a session,
// keyed by car number. All lap/total times are milliseconds.
type CarPosition struct {
	Number        string `json:"number"`
	TransponderID int    `json:"transponderId,omitempty"`
	Class         string `json:"class,omitempty"`
	EventID       int    `json:"eventId"`
	SessionID     int    `json:"sessionId"`

	BestTimeMs         int64 `json:"bestTime"`
	BestLap            int   `json:"bestLap"`
	LastLapTimeMs      int64 `json:"lastLapTime"`
	LastLapCompleted   int   `json:"lastLapCompleted"`
	TotalTimeMs        int64 `json:"totalTime"`
	ProjectedLapTimeMs int64 `json:"projectedLapTimeMs,omitempty"`
	LapStartTime       int64 `json:"lapStartTime,omitempty"` // ms since epoch

	OverallPosition         int    `json:"overallPosition"`
	ClassPosition           int    `json:"classPosition"`
	OverallStartingPosition int    `json:"overallStartingPosition"`
	InClassStartingPosition int    `json:"inClassStartingPosition"`
	OverallGap              string `json:"overallGap"`
	OverallDifference       string `json:"overallDifference"`
	InClassGap              string `json:"inClassGap"`
	InClassDifference       string `json:"inClassDifference"`
	OverallPositionsGained  int    `json:"overallPositionsGained"`
	InClassPositionsGained  int    `json:"inClassPositionsGained"`
	IsBestTime              bool   `json:"isBestTime"`
	IsBestTimeClass         bool   `json:"isBestTimeClass"`
	IsOverallMostGained     bool   `json:"isOverallMostPositionsGained"`
	IsClassMostGained       bool   `json:"isClassMostPositionsGained"`

	InPit          bool `json:"inPit"`
	EnteredPit     bool `json:"isEnteredPit"`
	ExitedPit      bool `json:"isExitedPit"`
	PitStartFinish bool `json:"pitStartFinish"`
	LapIncludedPit bool `json:"lapIncludedPit"`
	PitStopCount   int  `json:"pitStopCount"`
	LastLapPitted  int  `json:"lastLapPitted"`

	TrackFlag       string `json:"trackFlag,omitempty"`
	LocalFlag       string `json:"localFlag,omitempty"`
	LapHadLocalFlag bool   `json:"lapHadLocalFlag"`

	PenaltyLaps     int `json:"penaltyLaps"`
	PenaltyWarnings int `json:"penaltyWarnings"`
	BlackFlags      int `json:"blackFlags"`

	DriverName string `json:"driverName,omitempty"`
	DriverID   int    `json:"driverId,omitempty"`

	Lat               float64  `json:"lat,omitempty"`
	Lon               float64  `json:"lon,omitempty"`
	LastLoopName      string   `json:"lastLoopName,omitempty"`
	CompletedSections []string `json:"completedSections,omitempty"`

	InCarVideo    string `json:"inCarVideo,omitempty"`
	CurrentStatus string `json:"currentStatus,omitempty"`
	IsStale       bool   `json:"isStale"`
	ImpactWarning bool   `json:"impactWarning"`
}

// Clone returns a deep copy.
func (c *CarPosition) Clone() *CarPosition {
	cp := *c
	if c.CompletedSections != nil {
		cp.CompletedSections = append([]string(nil), c.CompletedSections...)
	}
	return &cp
}

// Liveness is the session liveness state machine:
// PreLive → Live → Stale → Ended.
type Liveness int

const (
	PreLive Liveness = iota
	Live
	Stale
	Ended
)

func (l Liveness) String() string {
	switch l {
	case PreLive:
		return "pre_live"
	case Live:
		return "live"
	case Stale:
		return "stale"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// SessionState is the authoritative in-memory snapshot for one live
// session. Mutated only under the owning Store's write lock.
type SessionState struct {
	EventID                int     `json:"eventId"`
	SessionID              int     `json:"sessionId"`
	SessionName            string  `json:"sessionName,omitempty"`
	TimeZoneOffset         float64 `json:"timeZoneOffset,omitempty"`
	IsPracticeOrQualifying bool    `json:"isPracticeOrQualifying"`

	LapsToGo        int    `json:"lapsToGo"`
	TimeToGo        string `json:"timeToGo,omitempty"`
	RunningRaceTime string `json:"runningRaceTime,omitempty"`
	LocalTimeOfDay  string `json:"localTimeOfDay,omitempty"`

	CurrentFlag   string         `json:"currentFlag,omitempty"`
	FlagDurations []FlagDuration `json:"flagDurations,omitempty"`

	GreenMs          int64   `json:"greenMs"`
	YellowMs         int64   `json:"yellowMs"`
	RedMs            int64   `json:"redMs"`
	NumberOfYellows  int     `json:"numberOfYellows"`
	AverageRaceSpeed float64 `json:"averageRaceSpeed,omitempty"`
	LeadChanges      int     `json:"leadChanges"`

	// Cars is keyed by car number; at most one entry per number.
	Cars map[string]*CarPosition `json:"carPositions"`

	Sections      []TrackSection    `json:"trackSections,omitempty"`
	ClassColors   map[string]string `json:"classColors,omitempty"`
	Announcements []Announcement    `json:"announcements,omitempty"`

	// MultiloopActive flips on the first multiloop record; starting
	// positions then come from the multiloop entry records instead of
	// the session context.
	MultiloopActive bool `json:"-"`

	Liveness    Liveness  `json:"-"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// NewSessionState returns an empty snapshot for an event/session pair.
func NewSessionState(eventID, sessionID int) *SessionState {
	return &SessionState{
		EventID:   eventID,
		SessionID: sessionID,
		Cars:      make(map[string]*CarPosition),
	}
}

// Car returns the car record for a number, creating it when absent.
func (s *SessionState) Car(number string) *CarPosition {
	if c, ok := s.Cars[number]; ok {
		return c
	}
	c := &CarPosition{
		Number:    number,
		EventID:   s.EventID,
		SessionID: s.SessionID,
	}
	s.Cars[number] = c
	return c
}

// CarByTransponder finds the car currently mapped to a transponder id.
func (s *SessionState) CarByTransponder(transponderID int) *CarPosition {
	for _, c := range s.Cars {
		if c.TransponderID == transponderID {
			return c
		}
	}
	return nil
}

// Clone deep-copies the snapshot.
func (s *SessionState) Clone() *SessionState {
	cp := *s
	cp.Cars = make(map[string]*CarPosition, len(s.Cars))
	for n, c := range s.Cars {
		cp.Cars[n] = c.Clone()
	}
	cp.FlagDurations = append([]FlagDuration(nil), s.FlagDurations...)
	cp.Sections = append([]TrackSection(nil), s.Sections...)
	cp.Announcements = append([]Announcement(nil), s.Announcements...)
	if s.ClassColors != nil {
		cp.ClassColors = make(map[string]string, len(s.ClassColors))
		for k, v := range s.ClassColors {
			cp.ClassColors[k] = v
		}
	}
	return &cp
}

// CheckPositionConsistency verifies that the non-zero overall positions
// form a prefix of the natural numbers starting at 1. Decoder passes
// that leave the snapshot in violation are retried, then escalated to a
// relay reset.
func CheckPositionConsistency(s *SessionState) bool {
	seen := make(map[int]bool)
	max := 0
	for _, c := range s.Cars {
		p := c.OverallPosition
		if p == 0 {
			continue
		}
		if p < 0 || seen[p] {
			return false
		}
		seen[p] = true
		if p > max {
			max = p
		}
	}
	return len(seen) == max
}
