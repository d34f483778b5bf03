package enrich

import (
	"fmt"
	"sort"

	"github.com/paddockcloud/lt-engine/internal/state"
)

// Positions recomputes every derived position field on the snapshot:
// class ranks, gap/difference strings, best-time flags, positions
// gained. Runs under the write lock after each decoder pass.
func Positions(s *state.SessionState) {
	cars := sortedByOverall(s)
	if len(cars) == 0 {
		return
	}

	assignClassPositions(cars)
	computeGaps(s, cars)
	markBestTimes(cars)
	computeGains(s, cars)
}

// sortedByOverall orders cars by overall position ascending with
// unplaced (position 0) cars last.
func sortedByOverall(s *state.SessionState) []*state.CarPosition {
	cars := make([]*state.CarPosition, 0, len(s.Cars))
	for _, c := range s.Cars {
		cars = append(cars, c)
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
	return cars
}

func assignClassPositions(cars []*state.CarPosition) {
	rank := make(map[string]int)
	for _, c := range cars {
		if c.OverallPosition == 0 {
			c.ClassPosition = 0
			continue
		}
		rank[c.Class]++
		c.ClassPosition = rank[c.Class]
	}
}

// computeGaps fills overall and in-class gap (to the car ahead) and
// difference (to the leader). Cars a lap or more down show "N lap(s)";
// same-lap cars show the time delta as ss.fff or m:ss.fff.
func computeGaps(s *state.SessionState, cars []*state.CarPosition) {
	var leader, prev *state.CarPosition
	for _, c := range cars {
		if c.OverallPosition == 0 {
			c.OverallGap, c.OverallDifference = "", ""
			continue
		}
		if leader == nil {
			leader = c
			c.OverallGap, c.OverallDifference = "", ""
		} else {
			c.OverallGap = gapText(prev, c)
			c.OverallDifference = gapText(leader, c)
		}
		prev = c
	}

	classLeader := make(map[string]*state.CarPosition)
	classPrev := make(map[string]*state.CarPosition)
	for _, c := range cars {
		if c.OverallPosition == 0 {
			c.InClassGap, c.InClassDifference = "", ""
			continue
		}
		if classLeader[c.Class] == nil {
			classLeader[c.Class] = c
			c.InClassGap, c.InClassDifference = "", ""
		} else {
			c.InClassGap = gapText(classPrev[c.Class], c)
			c.InClassDifference = gapText(classLeader[c.Class], c)
		}
		classPrev[c.Class] = c
	}
}

// gapText formats the gap from behind up to ahead.
func gapText(ahead, behind *state.CarPosition) string {
	lapDelta := ahead.LastLapCompleted - behind.LastLapCompleted
	if lapDelta >= 1 {
		if lapDelta == 1 {
			return "1 lap"
		}
		return fmt.Sprintf("%d laps", lapDelta)
	}
	delta := behind.TotalTimeMs - ahead.TotalTimeMs
	if delta <= 0 {
		return ""
	}
	return formatDelta(delta)
}

// formatDelta renders a millisecond delta as ss.fff under one minute,
// m:ss.fff otherwise.
func formatDelta(ms int64) string {
	secs := ms / 1000
	frac := ms % 1000
	if secs < 60 {
		return fmt.Sprintf("%d.%03d", secs, frac)
	}
	return fmt.Sprintf("%d:%02d.%03d", secs/60, secs%60, frac)
}

// markBestTimes sets the overall and per-class best-time flags by
// strict minimum over positive best times. Ties mark no one.
func markBestTimes(cars []*state.CarPosition) {
	var best int64
	bestCount := 0
	var bestCar *state.CarPosition
	classBest := make(map[string]int64)
	classCount := make(map[string]int)
	classCar := make(map[string]*state.CarPosition)

	for _, c := range cars {
		c.IsBestTime = false
		c.IsBestTimeClass = false
		if c.BestTimeMs <= 0 {
			continue
		}
		switch {
		case bestCount == 0 || c.BestTimeMs < best:
			best = c.BestTimeMs
			bestCount = 1
			bestCar = c
		case c.BestTimeMs == best:
			bestCount++
		}
		cb, ok := classBest[c.Class]
		switch {
		case !ok || c.BestTimeMs < cb:
			classBest[c.Class] = c.BestTimeMs
			classCount[c.Class] = 1
			classCar[c.Class] = c
		case c.BestTimeMs == cb:
			classCount[c.Class]++
		}
	}

	if bestCount == 1 {
		bestCar.IsBestTime = true
	}
	for class, n := range classCount {
		if n == 1 {
			classCar[class].IsBestTimeClass = true
		}
	}
}

// computeGains fills positionsGained = startingPosition − position,
// invalidated to the sentinel when either operand is zero or the
// magnitude reaches the participant count. Most-gained flags are set
// only when the maximum positive gain is held by a single car.
func computeGains(s *state.SessionState, cars []*state.CarPosition) {
	if s.MultiloopActive {
		recomputeClassStarts(cars)
	}

	total := len(cars)
	classTotals := make(map[string]int)
	for _, c := range cars {
		classTotals[c.Class]++
	}

	maxOverall, maxOverallCount := 0, 0
	maxClass := make(map[string]int)
	maxClassCount := make(map[string]int)

	for _, c := range cars {
		c.OverallPositionsGained = ValidateGain(c.OverallStartingPosition, c.OverallPosition, total)
		c.InClassPositionsGained = ValidateGain(c.InClassStartingPosition, c.ClassPosition, classTotals[c.Class])

		if g := c.OverallPositionsGained; g != state.InvalidPosition && g > 0 {
			switch {
			case maxOverallCount == 0 || g > maxOverall:
				maxOverall, maxOverallCount = g, 1
			case g == maxOverall:
				maxOverallCount++
			}
		}
		if g := c.InClassPositionsGained; g != state.InvalidPosition && g > 0 {
			switch {
			case maxClassCount[c.Class] == 0 || g > maxClass[c.Class]:
				maxClass[c.Class], maxClassCount[c.Class] = g, 1
			case g == maxClass[c.Class]:
				maxClassCount[c.Class]++
			}
		}
	}

	for _, c := range cars {
		c.IsOverallMostGained = maxOverallCount == 1 &&
			c.OverallPositionsGained == maxOverall && c.OverallPositionsGained > 0
		c.IsClassMostGained = maxClassCount[c.Class] == 1 &&
			c.InClassPositionsGained == maxClass[c.Class] && c.InClassPositionsGained > 0
	}
}

// recomputeClassStarts derives in-class starting positions from overall
// starting positions by class rank (multiloop supplies overall starts
// only).
func recomputeClassStarts(cars []*state.CarPosition) {
	ordered := make([]*state.CarPosition, len(cars))
	copy(ordered, cars)
	sort.Slice(ordered, func(i, j int) bool {
		si, sj := ordered[i].OverallStartingPosition, ordered[j].OverallStartingPosition
		if si == 0 {
			return false
		}
		if sj == 0 {
			return true
		}
		return si < sj
	})
	rank := make(map[string]int)
	for _, c := range ordered {
		if c.OverallStartingPosition == 0 {
			c.InClassStartingPosition = 0
			continue
		}
		rank[c.Class]++
		c.InClassStartingPosition = rank[c.Class]
	}
}

// ValidateGain computes start − current, returning the sentinel when
// either operand is zero or |gain| ≥ participants.
func ValidateGain(start, current, participants int) int {
	if start == 0 || current == 0 {
		return state.InvalidPosition
	}
	gain := start - current
	abs := gain
	if abs < 0 {
		abs = -abs
	}
	if abs >= participants {
		return state.InvalidPosition
	}
	return gain
}
