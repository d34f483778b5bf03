package state

import "time"

// CarPositionPatch is a sparse delta for one car: nil fields are
// unchanged. Identified by (SessionID, Number).
type CarPositionPatch struct {
	Number    string `json:"number"`
	EventID   int    `json:"eventId"`
	SessionID int    `json:"sessionId"`

	TransponderID *int    `json:"transponderId,omitempty"`
	Class         *string `json:"class,omitempty"`

	BestTimeMs         *int64 `json:"bestTime,omitempty"`
	BestLap            *int   `json:"bestLap,omitempty"`
	LastLapTimeMs      *int64 `json:"lastLapTime,omitempty"`
	LastLapCompleted   *int   `json:"lastLapCompleted,omitempty"`
	TotalTimeMs        *int64 `json:"totalTime,omitempty"`
	ProjectedLapTimeMs *int64 `json:"projectedLapTimeMs,omitempty"`
	LapStartTime       *int64 `json:"lapStartTime,omitempty"`

	OverallPosition         *int    `json:"overallPosition,omitempty"`
	ClassPosition           *int    `json:"classPosition,omitempty"`
	OverallStartingPosition *int    `json:"overallStartingPosition,omitempty"`
	InClassStartingPosition *int    `json:"inClassStartingPosition,omitempty"`
	OverallGap              *string `json:"overallGap,omitempty"`
	OverallDifference       *string `json:"overallDifference,omitempty"`
	InClassGap              *string `json:"inClassGap,omitempty"`
	InClassDifference       *string `json:"inClassDifference,omitempty"`
	OverallPositionsGained  *int    `json:"overallPositionsGained,omitempty"`
	InClassPositionsGained  *int    `json:"inClassPositionsGained,omitempty"`
	IsBestTime              *bool   `json:"isBestTime,omitempty"`
	IsBestTimeClass         *bool   `json:"isBestTimeClass,omitempty"`
	IsOverallMostGained     *bool   `json:"isOverallMostPositionsGained,omitempty"`
	IsClassMostGained       *bool   `json:"isClassMostPositionsGained,omitempty"`

	InPit          *bool `json:"inPit,omitempty"`
	EnteredPit     *bool `json:"isEnteredPit,omitempty"`
	ExitedPit      *bool `json:"isExitedPit,omitempty"`
	PitStartFinish *bool `json:"pitStartFinish,omitempty"`
	LapIncludedPit *bool `json:"lapIncludedPit,omitempty"`
	PitStopCount   *int  `json:"pitStopCount,omitempty"`
	LastLapPitted  *int  `json:"lastLapPitted,omitempty"`

	TrackFlag       *string `json:"trackFlag,omitempty"`
	LocalFlag       *string `json:"localFlag,omitempty"`
	LapHadLocalFlag *bool   `json:"lapHadLocalFlag,omitempty"`

	PenaltyLaps     *int `json:"penaltyLaps,omitempty"`
	PenaltyWarnings *int `json:"penaltyWarnings,omitempty"`
	BlackFlags      *int `json:"blackFlags,omitempty"`

	DriverName *string `json:"driverName,omitempty"`
	DriverID   *int    `json:"driverId,omitempty"`

	Lat               *float64 `json:"lat,omitempty"`
	Lon               *float64 `json:"lon,omitempty"`
	LastLoopName      *string  `json:"lastLoopName,omitempty"`
	CompletedSections []string `json:"completedSections,omitempty"`

	InCarVideo    *string `json:"inCarVideo,omitempty"`
	CurrentStatus *string `json:"currentStatus,omitempty"`
	IsStale       *bool   `json:"isStale,omitempty"`
	ImpactWarning *bool   `json:"impactWarning,omitempty"`
}

// SessionStatePatch is a sparse delta for session-level fields.
type SessionStatePatch struct {
	EventID   int `json:"eventId"`
	SessionID int `json:"sessionId"`

	SessionName     *string  `json:"sessionName,omitempty"`
	LapsToGo        *int     `json:"lapsToGo,omitempty"`
	TimeToGo        *string  `json:"timeToGo,omitempty"`
	RunningRaceTime *string  `json:"runningRaceTime,omitempty"`
	LocalTimeOfDay  *string  `json:"localTimeOfDay,omitempty"`
	CurrentFlag     *string  `json:"currentFlag,omitempty"`
	GreenMs         *int64   `json:"greenMs,omitempty"`
	YellowMs        *int64   `json:"yellowMs,omitempty"`
	RedMs           *int64   `json:"redMs,omitempty"`
	NumberOfYellows *int     `json:"numberOfYellows,omitempty"`
	AverageSpeed    *float64 `json:"averageRaceSpeed,omitempty"`
	LeadChanges     *int     `json:"leadChanges,omitempty"`

	FlagDurations []FlagDuration `json:"flagDurations,omitempty"`
	Announcements []Announcement `json:"announcements,omitempty"`

	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

func iptr(v int) *int           { return &v }
func i64ptr(v int64) *int64     { return &v }
func sptr(v string) *string     { return &v }
func bptr(v bool) *bool         { return &v }
func fptr(v float64) *float64   { return &v }
func tptr(v time.Time) *time.Time { return &v }

// DiffCar computes the sparse delta taking prev to next. Returns nil
// when nothing changed. Pit pulses (EnteredPit/ExitedPit) appear only
// in the patch that records the transition to true.
func DiffCar(prev, next *CarPosition) *CarPositionPatch {
	p := &CarPositionPatch{
		Number:    next.Number,
		EventID:   next.EventID,
		SessionID: next.SessionID,
	}
	changed := false

	if prev == nil {
		prev = &CarPosition{Number: next.Number}
	}

	if prev.TransponderID != next.TransponderID {
		p.TransponderID = iptr(next.TransponderID)
		changed = true
	}
	if prev.Class != next.Class {
		p.Class = sptr(next.Class)
		changed = true
	}
	if prev.BestTimeMs != next.BestTimeMs {
		p.BestTimeMs = i64ptr(next.BestTimeMs)
		changed = true
	}
	if prev.BestLap != next.BestLap {
		p.BestLap = iptr(next.BestLap)
		changed = true
	}
	if prev.LastLapTimeMs != next.LastLapTimeMs {
		p.LastLapTimeMs = i64ptr(next.LastLapTimeMs)
		changed = true
	}
	if prev.LastLapCompleted != next.LastLapCompleted {
		p.LastLapCompleted = iptr(next.LastLapCompleted)
		changed = true
	}
	if prev.TotalTimeMs != next.TotalTimeMs {
		p.TotalTimeMs = i64ptr(next.TotalTimeMs)
		changed = true
	}
	if prev.ProjectedLapTimeMs != next.ProjectedLapTimeMs {
		p.ProjectedLapTimeMs = i64ptr(next.ProjectedLapTimeMs)
		changed = true
	}
	if prev.LapStartTime != next.LapStartTime {
		p.LapStartTime = i64ptr(next.LapStartTime)
		changed = true
	}
	if prev.OverallPosition != next.OverallPosition {
		p.OverallPosition = iptr(next.OverallPosition)
		changed = true
	}
	if prev.ClassPosition != next.ClassPosition {
		p.ClassPosition = iptr(next.ClassPosition)
		changed = true
	}
	if prev.OverallStartingPosition != next.OverallStartingPosition {
		p.OverallStartingPosition = iptr(next.OverallStartingPosition)
		changed = true
	}
	if prev.InClassStartingPosition != next.InClassStartingPosition {
		p.InClassStartingPosition = iptr(next.InClassStartingPosition)
		changed = true
	}
	if prev.OverallGap != next.OverallGap {
		p.OverallGap = sptr(next.OverallGap)
		changed = true
	}
	if prev.OverallDifference != next.OverallDifference {
		p.OverallDifference = sptr(next.OverallDifference)
		changed = true
	}
	if prev.InClassGap != next.InClassGap {
		p.InClassGap = sptr(next.InClassGap)
		changed = true
	}
	if prev.InClassDifference != next.InClassDifference {
		p.InClassDifference = sptr(next.InClassDifference)
		changed = true
	}
	if prev.OverallPositionsGained != next.OverallPositionsGained {
		p.OverallPositionsGained = iptr(next.OverallPositionsGained)
		changed = true
	}
	if prev.InClassPositionsGained != next.InClassPositionsGained {
		p.InClassPositionsGained = iptr(next.InClassPositionsGained)
		changed = true
	}
	if prev.IsBestTime != next.IsBestTime {
		p.IsBestTime = bptr(next.IsBestTime)
		changed = true
	}
	if prev.IsBestTimeClass != next.IsBestTimeClass {
		p.IsBestTimeClass = bptr(next.IsBestTimeClass)
		changed = true
	}
	if prev.IsOverallMostGained != next.IsOverallMostGained {
		p.IsOverallMostGained = bptr(next.IsOverallMostGained)
		changed = true
	}
	if prev.IsClassMostGained != next.IsClassMostGained {
		p.IsClassMostGained = bptr(next.IsClassMostGained)
		changed = true
	}
	if prev.InPit != next.InPit {
		p.InPit = bptr(next.InPit)
		changed = true
	}
	if prev.EnteredPit != next.EnteredPit {
		p.EnteredPit = bptr(next.EnteredPit)
		changed = true
	}
	if prev.ExitedPit != next.ExitedPit {
		p.ExitedPit = bptr(next.ExitedPit)
		changed = true
	}
	if prev.PitStartFinish != next.PitStartFinish {
		p.PitStartFinish = bptr(next.PitStartFinish)
		changed = true
	}
	if prev.LapIncludedPit != next.LapIncludedPit {
		p.LapIncludedPit = bptr(next.LapIncludedPit)
		changed = true
	}
	if prev.PitStopCount != next.PitStopCount {
		p.PitStopCount = iptr(next.PitStopCount)
		changed = true
	}
	if prev.LastLapPitted != next.LastLapPitted {
		p.LastLapPitted = iptr(next.LastLapPitted)
		changed = true
	}
	if prev.TrackFlag != next.TrackFlag {
		p.TrackFlag = sptr(next.TrackFlag)
		changed = true
	}
	if prev.LocalFlag != next.LocalFlag {
		p.LocalFlag = sptr(next.LocalFlag)
		changed = true
	}
	if prev.LapHadLocalFlag != next.LapHadLocalFlag {
		p.LapHadLocalFlag = bptr(next.LapHadLocalFlag)
		changed = true
	}
	if prev.PenaltyLaps != next.PenaltyLaps {
		p.PenaltyLaps = iptr(next.PenaltyLaps)
		changed = true
	}
	if prev.PenaltyWarnings != next.PenaltyWarnings {
		p.PenaltyWarnings = iptr(next.PenaltyWarnings)
		changed = true
	}
	if prev.BlackFlags != next.BlackFlags {
		p.BlackFlags = iptr(next.BlackFlags)
		changed = true
	}
	if prev.DriverName != next.DriverName {
		p.DriverName = sptr(next.DriverName)
		changed = true
	}
	if prev.DriverID != next.DriverID {
		p.DriverID = iptr(next.DriverID)
		changed = true
	}
	if prev.Lat != next.Lat {
		p.Lat = fptr(next.Lat)
		changed = true
	}
	if prev.Lon != next.Lon {
		p.Lon = fptr(next.Lon)
		changed = true
	}
	if prev.LastLoopName != next.LastLoopName {
		p.LastLoopName = sptr(next.LastLoopName)
		changed = true
	}
	if !stringSlicesEqual(prev.CompletedSections, next.CompletedSections) {
		p.CompletedSections = append([]string(nil), next.CompletedSections...)
		if p.CompletedSections == nil {
			p.CompletedSections = []string{}
		}
		changed = true
	}
	if prev.InCarVideo != next.InCarVideo {
		p.InCarVideo = sptr(next.InCarVideo)
		changed = true
	}
	if prev.CurrentStatus != next.CurrentStatus {
		p.CurrentStatus = sptr(next.CurrentStatus)
		changed = true
	}
	if prev.IsStale != next.IsStale {
		p.IsStale = bptr(next.IsStale)
		changed = true
	}
	if prev.ImpactWarning != next.ImpactWarning {
		p.ImpactWarning = bptr(next.ImpactWarning)
		changed = true
	}

	if !changed {
		return nil
	}
	return p
}

// DiffSession computes the sparse session-level delta taking prev to
// next. Returns nil when nothing changed. Car records are diffed
// separately by DiffCar.
//
// The FlagDurations and Announcements fields carry the FULL next list
// and replace the applier's copy wholesale. A nil slice means
// unchanged, so a list cleared all the way to empty produces no patch
// field; appliers catch up on the next full refresh.
func DiffSession(prev, next *SessionState) *SessionStatePatch {
	p := &SessionStatePatch{EventID: next.EventID, SessionID: next.SessionID}
	changed := false

	if prev.SessionName != next.SessionName {
		p.SessionName = sptr(next.SessionName)
		changed = true
	}
	if prev.LapsToGo != next.LapsToGo {
		p.LapsToGo = iptr(next.LapsToGo)
		changed = true
	}
	if prev.TimeToGo != next.TimeToGo {
		p.TimeToGo = sptr(next.TimeToGo)
		changed = true
	}
	if prev.RunningRaceTime != next.RunningRaceTime {
		p.RunningRaceTime = sptr(next.RunningRaceTime)
		changed = true
	}
	if prev.LocalTimeOfDay != next.LocalTimeOfDay {
		p.LocalTimeOfDay = sptr(next.LocalTimeOfDay)
		changed = true
	}
	if prev.CurrentFlag != next.CurrentFlag {
		p.CurrentFlag = sptr(next.CurrentFlag)
		changed = true
	}
	if prev.GreenMs != next.GreenMs {
		p.GreenMs = i64ptr(next.GreenMs)
		changed = true
	}
	if prev.YellowMs != next.YellowMs {
		p.YellowMs = i64ptr(next.YellowMs)
		changed = true
	}
	if prev.RedMs != next.RedMs {
		p.RedMs = i64ptr(next.RedMs)
		changed = true
	}
	if prev.NumberOfYellows != next.NumberOfYellows {
		p.NumberOfYellows = iptr(next.NumberOfYellows)
		changed = true
	}
	if prev.AverageRaceSpeed != next.AverageRaceSpeed {
		p.AverageSpeed = fptr(next.AverageRaceSpeed)
		changed = true
	}
	if prev.LeadChanges != next.LeadChanges {
		p.LeadChanges = iptr(next.LeadChanges)
		changed = true
	}
	if len(prev.FlagDurations) != len(next.FlagDurations) ||
		(len(next.FlagDurations) > 0 && !flagDurationsEqual(prev.FlagDurations, next.FlagDurations)) {
		p.FlagDurations = append([]FlagDuration(nil), next.FlagDurations...)
		changed = true
	}
	if len(prev.Announcements) != len(next.Announcements) ||
		(len(next.Announcements) > 0 && !announcementsEqual(prev.Announcements, next.Announcements)) {
		p.Announcements = append([]Announcement(nil), next.Announcements...)
		changed = true
	}
	if !prev.LastUpdated.Equal(next.LastUpdated) {
		p.LastUpdated = tptr(next.LastUpdated)
		changed = true
	}

	if !changed {
		return nil
	}
	return p
}

func announcementsEqual(a, b []Announcement) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Sequence != b[i].Sequence || a[i].Text != b[i].Text {
			return false
		}
	}
	return true
}

func flagDurationsEqual(a, b []FlagDuration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Flag != b[i].Flag || !a[i].StartTime.Equal(b[i].StartTime) {
			return false
		}
		ae, be := a[i].EndTime, b[i].EndTime
		if (ae == nil) != (be == nil) {
			return false
		}
		if ae != nil && !ae.Equal(*be) {
			return false
		}
	}
	return true
}

// ApplyCarPatch applies a patch to the snapshot, creating the car when
// absent. Applying DiffCar(prev, next) to prev yields next.
func ApplyCarPatch(s *SessionState, p *CarPositionPatch) {
	c := s.Car(p.Number)

	if p.TransponderID != nil {
		c.TransponderID = *p.TransponderID
	}
	if p.Class != nil {
		c.Class = *p.Class
	}
	if p.BestTimeMs != nil {
		c.BestTimeMs = *p.BestTimeMs
	}
	if p.BestLap != nil {
		c.BestLap = *p.BestLap
	}
	if p.LastLapTimeMs != nil {
		c.LastLapTimeMs = *p.LastLapTimeMs
	}
	if p.LastLapCompleted != nil {
		c.LastLapCompleted = *p.LastLapCompleted
	}
	if p.TotalTimeMs != nil {
		c.TotalTimeMs = *p.TotalTimeMs
	}
	if p.ProjectedLapTimeMs != nil {
		c.ProjectedLapTimeMs = *p.ProjectedLapTimeMs
	}
	if p.LapStartTime != nil {
		c.LapStartTime = *p.LapStartTime
	}
	if p.OverallPosition != nil {
		c.OverallPosition = *p.OverallPosition
	}
	if p.ClassPosition != nil {
		c.ClassPosition = *p.ClassPosition
	}
	if p.OverallStartingPosition != nil {
		c.OverallStartingPosition = *p.OverallStartingPosition
	}
	if p.InClassStartingPosition != nil {
		c.InClassStartingPosition = *p.InClassStartingPosition
	}
	if p.OverallGap != nil {
		c.OverallGap = *p.OverallGap
	}
	if p.OverallDifference != nil {
		c.OverallDifference = *p.OverallDifference
	}
	if p.InClassGap != nil {
		c.InClassGap = *p.InClassGap
	}
	if p.InClassDifference != nil {
		c.InClassDifference = *p.InClassDifference
	}
	if p.OverallPositionsGained != nil {
		c.OverallPositionsGained = *p.OverallPositionsGained
	}
	if p.InClassPositionsGained != nil {
		c.InClassPositionsGained = *p.InClassPositionsGained
	}
	if p.IsBestTime != nil {
		c.IsBestTime = *p.IsBestTime
	}
	if p.IsBestTimeClass != nil {
		c.IsBestTimeClass = *p.IsBestTimeClass
	}
	if p.IsOverallMostGained != nil {
		c.IsOverallMostGained = *p.IsOverallMostGained
	}
	if p.IsClassMostGained != nil {
		c.IsClassMostGained = *p.IsClassMostGained
	}
	if p.InPit != nil {
		c.InPit = *p.InPit
	}
	if p.EnteredPit != nil {
		c.EnteredPit = *p.EnteredPit
	}
	if p.ExitedPit != nil {
		c.ExitedPit = *p.ExitedPit
	}
	if p.PitStartFinish != nil {
		c.PitStartFinish = *p.PitStartFinish
	}
	if p.LapIncludedPit != nil {
		c.LapIncludedPit = *p.LapIncludedPit
	}
	if p.PitStopCount != nil {
		c.PitStopCount = *p.PitStopCount
	}
	if p.LastLapPitted != nil {
		c.LastLapPitted = *p.LastLapPitted
	}
	if p.TrackFlag != nil {
		c.TrackFlag = *p.TrackFlag
	}
	if p.LocalFlag != nil {
		c.LocalFlag = *p.LocalFlag
	}
	if p.LapHadLocalFlag != nil {
		c.LapHadLocalFlag = *p.LapHadLocalFlag
	}
	if p.PenaltyLaps != nil {
		c.PenaltyLaps = *p.PenaltyLaps
	}
	if p.PenaltyWarnings != nil {
		c.PenaltyWarnings = *p.PenaltyWarnings
	}
	if p.BlackFlags != nil {
		c.BlackFlags = *p.BlackFlags
	}
	if p.DriverName != nil {
		c.DriverName = *p.DriverName
	}
	if p.DriverID != nil {
		c.DriverID = *p.DriverID
	}
	if p.Lat != nil {
		c.Lat = *p.Lat
	}
	if p.Lon != nil {
		c.Lon = *p.Lon
	}
	if p.LastLoopName != nil {
		c.LastLoopName = *p.LastLoopName
	}
	if p.CompletedSections != nil {
		if len(p.CompletedSections) == 0 {
			c.CompletedSections = nil
		} else {
			c.CompletedSections = append([]string(nil), p.CompletedSections...)
		}
	}
	if p.InCarVideo != nil {
		c.InCarVideo = *p.InCarVideo
	}
	if p.CurrentStatus != nil {
		c.CurrentStatus = *p.CurrentStatus
	}
	if p.IsStale != nil {
		c.IsStale = *p.IsStale
	}
	if p.ImpactWarning != nil {
		c.ImpactWarning = *p.ImpactWarning
	}
}

// ApplySessionPatch applies a session-level patch.
func ApplySessionPatch(s *SessionState, p *SessionStatePatch) {
	if p.SessionName != nil {
		s.SessionName = *p.SessionName
	}
	if p.LapsToGo != nil {
		s.LapsToGo = *p.LapsToGo
	}
	if p.TimeToGo != nil {
		s.TimeToGo = *p.TimeToGo
	}
	if p.RunningRaceTime != nil {
		s.RunningRaceTime = *p.RunningRaceTime
	}
	if p.LocalTimeOfDay != nil {
		s.LocalTimeOfDay = *p.LocalTimeOfDay
	}
	if p.CurrentFlag != nil {
		s.CurrentFlag = *p.CurrentFlag
	}
	if p.GreenMs != nil {
		s.GreenMs = *p.GreenMs
	}
	if p.YellowMs != nil {
		s.YellowMs = *p.YellowMs
	}
	if p.RedMs != nil {
		s.RedMs = *p.RedMs
	}
	if p.NumberOfYellows != nil {
		s.NumberOfYellows = *p.NumberOfYellows
	}
	if p.AverageSpeed != nil {
		s.AverageRaceSpeed = *p.AverageSpeed
	}
	if p.LeadChanges != nil {
		s.LeadChanges = *p.LeadChanges
	}
	if p.FlagDurations != nil {
		s.FlagDurations = append([]FlagDuration(nil), p.FlagDurations...)
	}
	if p.Announcements != nil {
		s.Announcements = append([]Announcement(nil), p.Announcements...)
	}
	if p.LastUpdated != nil {
		s.LastUpdated = *p.LastUpdated
	}
}

// Consolidate merges a pipeline pass's patches into at most one patch
// per (sessionId, carNumber), later non-nil fields winning, and drops
// empty patches. Order of first appearance is preserved.
func Consolidate(patches []*CarPositionPatch) []*CarPositionPatch {
	type key struct {
		sessionID int
		number    string
	}
	merged := make(map[key]*CarPositionPatch)
	var order []key

	for _, p := range patches {
		if p == nil {
			continue
		}
		k := key{p.SessionID, p.Number}
		existing, ok := merged[k]
		if !ok {
			cp := *p
			merged[k] = &cp
			order = append(order, k)
			continue
		}
		mergeCarPatch(existing, p)
	}

	out := make([]*CarPositionPatch, 0, len(order))
	for _, k := range order {
		if p := merged[k]; !p.Empty() {
			out = append(out, p)
		}
	}
	return out
}

// Empty reports whether the patch carries no field changes.
func (p *CarPositionPatch) Empty() bool {
	return p.TransponderID == nil && p.Class == nil &&
		p.BestTimeMs == nil && p.BestLap == nil && p.LastLapTimeMs == nil &&
		p.LastLapCompleted == nil && p.TotalTimeMs == nil &&
		p.ProjectedLapTimeMs == nil && p.LapStartTime == nil &&
		p.OverallPosition == nil && p.ClassPosition == nil &&
		p.OverallStartingPosition == nil && p.InClassStartingPosition == nil &&
		p.OverallGap == nil && p.OverallDifference == nil &&
		p.InClassGap == nil && p.InClassDifference == nil &&
		p.OverallPositionsGained == nil && p.InClassPositionsGained == nil &&
		p.IsBestTime == nil && p.IsBestTimeClass == nil &&
		p.IsOverallMostGained == nil && p.IsClassMostGained == nil &&
		p.InPit == nil && p.EnteredPit == nil && p.ExitedPit == nil &&
		p.PitStartFinish == nil && p.LapIncludedPit == nil &&
		p.PitStopCount == nil && p.LastLapPitted == nil &&
		p.TrackFlag == nil && p.LocalFlag == nil && p.LapHadLocalFlag == nil &&
		p.PenaltyLaps == nil && p.PenaltyWarnings == nil && p.BlackFlags == nil &&
		p.DriverName == nil && p.DriverID == nil &&
		p.Lat == nil && p.Lon == nil && p.LastLoopName == nil &&
		p.CompletedSections == nil &&
		p.InCarVideo == nil && p.CurrentStatus == nil &&
		p.IsStale == nil && p.ImpactWarning == nil
}

func mergeCarPatch(dst, src *CarPositionPatch) {
	if src.TransponderID != nil {
		dst.TransponderID = src.TransponderID
	}
	if src.Class != nil {
		dst.Class = src.Class
	}
	if src.BestTimeMs != nil {
		dst.BestTimeMs = src.BestTimeMs
	}
	if src.BestLap != nil {
		dst.BestLap = src.BestLap
	}
	if src.LastLapTimeMs != nil {
		dst.LastLapTimeMs = src.LastLapTimeMs
	}
	if src.LastLapCompleted != nil {
		dst.LastLapCompleted = src.LastLapCompleted
	}
	if src.TotalTimeMs != nil {
		dst.TotalTimeMs = src.TotalTimeMs
	}
	if src.ProjectedLapTimeMs != nil {
		dst.ProjectedLapTimeMs = src.ProjectedLapTimeMs
	}
	if src.LapStartTime != nil {
		dst.LapStartTime = src.LapStartTime
	}
	if src.OverallPosition != nil {
		dst.OverallPosition = src.OverallPosition
	}
	if src.ClassPosition != nil {
		dst.ClassPosition = src.ClassPosition
	}
	if src.OverallStartingPosition != nil {
		dst.OverallStartingPosition = src.OverallStartingPosition
	}
	if src.InClassStartingPosition != nil {
		dst.InClassStartingPosition = src.InClassStartingPosition
	}
	if src.OverallGap != nil {
		dst.OverallGap = src.OverallGap
	}
	if src.OverallDifference != nil {
		dst.OverallDifference = src.OverallDifference
	}
	if src.InClassGap != nil {
		dst.InClassGap = src.InClassGap
	}
	if src.InClassDifference != nil {
		dst.InClassDifference = src.InClassDifference
	}
	if src.OverallPositionsGained != nil {
		dst.OverallPositionsGained = src.OverallPositionsGained
	}
	if src.InClassPositionsGained != nil {
		dst.InClassPositionsGained = src.InClassPositionsGained
	}
	if src.IsBestTime != nil {
		dst.IsBestTime = src.IsBestTime
	}
	if src.IsBestTimeClass != nil {
		dst.IsBestTimeClass = src.IsBestTimeClass
	}
	if src.IsOverallMostGained != nil {
		dst.IsOverallMostGained = src.IsOverallMostGained
	}
	if src.IsClassMostGained != nil {
		dst.IsClassMostGained = src.IsClassMostGained
	}
	if src.InPit != nil {
		dst.InPit = src.InPit
	}
	if src.EnteredPit != nil {
		dst.EnteredPit = src.EnteredPit
	}
	if src.ExitedPit != nil {
		dst.ExitedPit = src.ExitedPit
	}
	if src.PitStartFinish != nil {
		dst.PitStartFinish = src.PitStartFinish
	}
	if src.LapIncludedPit != nil {
		dst.LapIncludedPit = src.LapIncludedPit
	}
	if src.PitStopCount != nil {
		dst.PitStopCount = src.PitStopCount
	}
	if src.LastLapPitted != nil {
		dst.LastLapPitted = src.LastLapPitted
	}
	if src.TrackFlag != nil {
		dst.TrackFlag = src.TrackFlag
	}
	if src.LocalFlag != nil {
		dst.LocalFlag = src.LocalFlag
	}
	if src.LapHadLocalFlag != nil {
		dst.LapHadLocalFlag = src.LapHadLocalFlag
	}
	if src.PenaltyLaps != nil {
		dst.PenaltyLaps = src.PenaltyLaps
	}
	if src.PenaltyWarnings != nil {
		dst.PenaltyWarnings = src.PenaltyWarnings
	}
	if src.BlackFlags != nil {
		dst.BlackFlags = src.BlackFlags
	}
	if src.DriverName != nil {
		dst.DriverName = src.DriverName
	}
	if src.DriverID != nil {
		dst.DriverID = src.DriverID
	}
	if src.Lat != nil {
		dst.Lat = src.Lat
	}
	if src.Lon != nil {
		dst.Lon = src.Lon
	}
	if src.LastLoopName != nil {
		dst.LastLoopName = src.LastLoopName
	}
	if src.CompletedSections != nil {
		dst.CompletedSections = src.CompletedSections
	}
	if src.InCarVideo != nil {
		dst.InCarVideo = src.InCarVideo
	}
	if src.CurrentStatus != nil {
		dst.CurrentStatus = src.CurrentStatus
	}
	if src.IsStale != nil {
		dst.IsStale = src.IsStale
	}
	if src.ImpactWarning != nil {
		dst.ImpactWarning = src.ImpactWarning
	}
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
