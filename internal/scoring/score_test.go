package scoring

import (
	"testing"
	"time"

	"github.com/trainwell/scheduling-engine/internal/model"
)

var day = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func TestRankSlots_AdjacentBefore(t *testing.T) {
	// Trainer has 09:00-10:00 booked; candidate 10:05-11:00 starts within the
	// 5-minute adjacency window.
	existing := []Appointment{{Start: at(9, 0), End: at(10, 0), Status: model.StatusBooked}}
	got := RankSlots([]time.Time{at(10, 5)}, existing, 55*time.Minute)
	if len(got) != 1 {
		t.Fatalf("expected 1 scored slot, got %d", len(got))
	}
	s := got[0]
	if !s.AdjacentBefore || s.AdjacentAfter {
		t.Fatalf("expected adjacentBefore only, got %+v", s)
	}
	if s.Score != 50 {
		t.Fatalf("expected score 50, got %d", s.Score)
	}
}

func TestRankSlots_FillsGapExactly(t *testing.T) {
	// 09:00-10:00 and 11:00-11:30 booked; candidate 10:00-11:00 plugs the hole.
	existing := []Appointment{
		{Start: at(9, 0), End: at(10, 0), Status: model.StatusConfirmed},
		{Start: at(11, 0), End: at(11, 30), Status: model.StatusBooked},
	}
	got := RankSlots([]time.Time{at(10, 0)}, existing, time.Hour)
	s := got[0]
	if !s.AdjacentBefore || !s.AdjacentAfter {
		t.Fatalf("expected adjacent on both sides, got %+v", s)
	}
	if s.Score != 70 {
		t.Fatalf("expected score 70, got %d", s.Score)
	}
	if !s.IsRecommended {
		t.Fatal("expected the gap-filling slot to be recommended")
	}
}

func TestRankSlots_NearbyScores(t *testing.T) {
	existing := []Appointment{{Start: at(9, 0), End: at(10, 0), Status: model.StatusBooked}}
	// 20 minutes after the existing end: nearby, not adjacent.
	got := RankSlots([]time.Time{at(10, 20)}, existing, time.Hour)
	s := got[0]
	if !s.NearbyBefore || s.AdjacentBefore {
		t.Fatalf("expected nearbyBefore, got %+v", s)
	}
	if s.Score != 30 {
		t.Fatalf("expected score 30, got %d", s.Score)
	}
}

func TestRankSlots_AwkwardGapPenalty(t *testing.T) {
	// 40 minutes after the existing end: too far to be nearby, too close to
	// fit another session.
	existing := []Appointment{{Start: at(9, 0), End: at(10, 0), Status: model.StatusBooked}}
	got := RankSlots([]time.Time{at(10, 40)}, existing, time.Hour)
	if got[0].Score != 0 {
		t.Fatalf("expected penalty to clamp score at 0, got %d", got[0].Score)
	}

	// The same slot adjacent to one appointment but leaving a 40-minute hole
	// before another nets 50-20.
	existing = append(existing, Appointment{Start: at(11, 45), End: at(12, 45), Status: model.StatusBooked})
	got = RankSlots([]time.Time{at(10, 5)}, existing, time.Hour)
	if got[0].Score != 30 {
		t.Fatalf("expected 50-20=30, got %d", got[0].Score)
	}
}

func TestRankSlots_IgnoresCancelled(t *testing.T) {
	existing := []Appointment{
		{Start: at(9, 0), End: at(10, 0), Status: model.StatusEarlyCancel},
		{Start: at(9, 0), End: at(10, 0), Status: model.StatusLateCancel},
	}
	got := RankSlots([]time.Time{at(10, 0)}, existing, time.Hour)
	if got[0].Score != 0 {
		t.Fatalf("cancelled appointments must not contribute, got score %d", got[0].Score)
	}
}

func TestRankSlots_RecommendedThresholdInclusive(t *testing.T) {
	// Two 70-scored gap fillers, several 50s, one 0. Distinct scores are
	// {70, 50, 0}; the 3rd-highest (0) is the threshold, but the 60-point
	// floor keeps low scores out. Ties at or above the threshold are all
	// recommended, even past three slots.
	existing := []Appointment{
		{Start: at(9, 0), End: at(10, 0), Status: model.StatusBooked},
		{Start: at(11, 0), End: at(12, 0), Status: model.StatusBooked},
		{Start: at(13, 0), End: at(14, 0), Status: model.StatusBooked},
		{Start: at(15, 0), End: at(16, 0), Status: model.StatusBooked},
	}
	slots := []time.Time{
		at(10, 0),  // fills 10-11 gap: 70
		at(14, 0),  // fills 14-15 gap: 70
		at(16, 0),  // adjacent after 15-16: 50
		at(8, 0),   // adjacent before 9:00: 50
		at(18, 30), // isolated: 0
	}
	got := RankSlots(slots, existing, time.Hour)

	recommended := 0
	for _, s := range got {
		if s.Score >= 60 && !s.IsRecommended {
			t.Errorf("slot %s score %d: expected recommended", s.Time, s.Score)
		}
		if s.Score < 60 && s.IsRecommended {
			t.Errorf("slot %s score %d: expected not recommended", s.Time, s.Score)
		}
		if s.IsRecommended {
			recommended++
		}
	}
	if recommended != 2 {
		t.Fatalf("expected 2 recommended slots, got %d", recommended)
	}
}

func TestRankSlots_Deterministic(t *testing.T) {
	existing := []Appointment{
		{Start: at(9, 0), End: at(10, 0), Status: model.StatusBooked},
		{Start: at(11, 0), End: at(11, 30), Status: model.StatusArrived},
	}
	slots := []time.Time{at(10, 0), at(10, 15), at(12, 0), at(14, 0)}

	first := RankSlots(slots, existing, time.Hour)
	for i := 0; i < 5; i++ {
		again := RankSlots(slots, existing, time.Hour)
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("run %d slot %d: %+v != %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestComputeInsight(t *testing.T) {
	appointments := []Appointment{
		{Start: at(9, 0), End: at(10, 0), Status: model.StatusBooked},
		{Start: at(10, 15), End: at(11, 15), Status: model.StatusConfirmed},
		{Start: at(13, 0), End: at(14, 0), Status: model.StatusBooked},
		{Start: at(15, 0), End: at(16, 0), Status: model.StatusEarlyCancel}, // ignored
	}
	in := ComputeInsight("2026-03-09", appointments, at(9, 0), at(17, 0))

	if in.BookedMinutes != 180 {
		t.Fatalf("expected 180 booked minutes, got %d", in.BookedMinutes)
	}
	if in.AvailableMinutes != 480 {
		t.Fatalf("expected 480 available minutes, got %d", in.AvailableMinutes)
	}
	// round(180/480*100) = 38
	if in.UtilizationPct != 38 {
		t.Fatalf("expected 38%% utilization, got %d", in.UtilizationPct)
	}
	// 15m gap is ignored; the 105m gap between 11:15 and 13:00 counts.
	if in.GapCount != 1 {
		t.Fatalf("expected 1 gap, got %d", in.GapCount)
	}
	if in.LargestGapMinutes != 105 {
		t.Fatalf("expected largest gap 105, got %d", in.LargestGapMinutes)
	}
}

func TestComputeInsight_UtilizationCapped(t *testing.T) {
	appointments := []Appointment{
		{Start: at(8, 0), End: at(12, 0), Status: model.StatusBooked},
		{Start: at(12, 0), End: at(18, 0), Status: model.StatusBooked},
	}
	in := ComputeInsight("2026-03-09", appointments, at(9, 0), at(17, 0))
	if in.UtilizationPct != 100 {
		t.Fatalf("expected utilization capped at 100, got %d", in.UtilizationPct)
	}
}

func TestComputeInsight_EmptyWindow(t *testing.T) {
	in := ComputeInsight("2026-03-09", nil, time.Time{}, time.Time{})
	if in.UtilizationPct != 0 || in.GapCount != 0 || in.LargestGapMinutes != 0 {
		t.Fatalf("expected zero insight, got %+v", in)
	}
}
