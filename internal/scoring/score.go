// Package scoring ranks open slots by schedule density and computes
// day-level utilization insights. Everything here is a pure function over its
// inputs; identical inputs always produce identical scores.
package scoring

import (
	"sort"
	"time"

	"github.com/trainwell/scheduling-engine/internal/lifecycle"
	"github.com/trainwell/scheduling-engine/internal/timegrid"
)

// Gap thresholds, in minutes.
const (
	adjacentGapMax = 5  // back-to-back, allowing a short changeover
	nearbyGapMax   = 30 // close enough to keep the day dense
	awkwardGapMax  = 45 // shorter than this and longer than nearby: dead time
)

// Score contributions.
const (
	scoreFillsGap      = 70 // adjacent on both sides: slot exactly plugs a hole
	scoreAdjacent      = 50
	scoreBothNearby    = 40
	scoreNearby        = 30
	awkwardGapPenalty  = 20
	recommendMinScore  = 60
	recommendTopScores = 3
)

// Appointment is an existing booking considered during ranking.
type Appointment struct {
	Start  time.Time
	End    time.Time
	Status string
}

type ScoredSlot struct {
	Time           time.Time
	Score          int
	AdjacentBefore bool
	AdjacentAfter  bool
	NearbyBefore   bool
	NearbyAfter    bool
	IsRecommended  bool
}

// RankSlots scores each candidate start time against the trainer's existing
// appointments. Cancelled appointments are excluded from the windows.
func RankSlots(slots []time.Time, existing []Appointment, slotDuration time.Duration) []ScoredSlot {
	windows := activeWindows(existing)

	scored := make([]ScoredSlot, 0, len(slots))
	for _, start := range slots {
		scored = append(scored, scoreSlot(start, start.Add(slotDuration), windows))
	}
	markRecommended(scored)
	return scored
}

type window struct {
	start time.Time
	end   time.Time
}

func activeWindows(existing []Appointment) []window {
	var out []window
	for _, a := range existing {
		if lifecycle.IsCancelled(a.Status) {
			continue
		}
		out = append(out, window{start: a.Start, end: a.End})
	}
	return out
}

func scoreSlot(slotStart, slotEnd time.Time, windows []window) ScoredSlot {
	s := ScoredSlot{Time: slotStart}
	penalties := 0

	for _, w := range windows {
		gapAfterExisting := timegrid.MinutesBetween(w.end, slotStart)
		gapBeforeExisting := timegrid.MinutesBetween(slotEnd, w.start)

		if gapAfterExisting >= 0 && gapAfterExisting <= adjacentGapMax {
			s.AdjacentBefore = true
		} else if gapAfterExisting > adjacentGapMax && gapAfterExisting <= nearbyGapMax {
			s.NearbyBefore = true
		}
		if gapBeforeExisting >= 0 && gapBeforeExisting <= adjacentGapMax {
			s.AdjacentAfter = true
		} else if gapBeforeExisting > adjacentGapMax && gapBeforeExisting <= nearbyGapMax {
			s.NearbyAfter = true
		}

		// A gap too long to be useful proximity but too short to book
		// anything into is dead time the slot would create.
		if gapAfterExisting > nearbyGapMax && gapAfterExisting < awkwardGapMax {
			penalties++
		}
		if gapBeforeExisting > nearbyGapMax && gapBeforeExisting < awkwardGapMax {
			penalties++
		}
	}

	switch {
	case s.AdjacentBefore && s.AdjacentAfter:
		s.Score = scoreFillsGap
	case s.AdjacentBefore || s.AdjacentAfter:
		s.Score = scoreAdjacent
	case s.NearbyBefore && s.NearbyAfter:
		s.Score = scoreBothNearby
	case s.NearbyBefore || s.NearbyAfter:
		s.Score = scoreNearby
	}
	s.Score -= penalties * awkwardGapPenalty

	if s.Score < 0 {
		s.Score = 0
	} else if s.Score > 100 {
		s.Score = 100
	}
	return s
}

// markRecommended flags every slot scoring at least recommendMinScore and at
// or above the 3rd-highest distinct score. The threshold is inclusive, so
// ties at 3rd place may recommend more than three slots.
func markRecommended(scored []ScoredSlot) {
	distinct := map[int]struct{}{}
	for _, s := range scored {
		distinct[s.Score] = struct{}{}
	}
	if len(distinct) == 0 {
		return
	}

	scores := make([]int, 0, len(distinct))
	for v := range distinct {
		scores = append(scores, v)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(scores)))

	threshold := scores[0]
	if len(scores) >= recommendTopScores {
		threshold = scores[recommendTopScores-1]
	}

	for i := range scored {
		scored[i].IsRecommended = scored[i].Score >= recommendMinScore && scored[i].Score >= threshold
	}
}
