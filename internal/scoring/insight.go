package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/trainwell/scheduling-engine/internal/lifecycle"
	"github.com/trainwell/scheduling-engine/internal/timegrid"
)

// Gaps longer than this between consecutive appointments count as idle time
// worth surfacing to the trainer.
const insightGapMin = 30

type Insight struct {
	Date              string
	UtilizationPct    int
	BookedMinutes     int
	AvailableMinutes  int
	GapCount          int
	LargestGapMinutes int
}

// ComputeInsight summarizes one day of a trainer's schedule: how much of the
// availability window is booked, and where the idle gaps sit. With multiple
// availability blocks the window spans the earliest start to the latest end.
func ComputeInsight(date string, appointments []Appointment, availabilityStart, availabilityEnd time.Time) Insight {
	in := Insight{Date: date}

	var active []window
	for _, a := range appointments {
		if lifecycle.IsCancelled(a.Status) {
			continue
		}
		active = append(active, window{start: a.Start, end: a.End})
		in.BookedMinutes += timegrid.MinutesBetween(a.Start, a.End)
	}

	in.AvailableMinutes = timegrid.MinutesBetween(availabilityStart, availabilityEnd)
	if in.AvailableMinutes > 0 {
		pct := int(math.Round(float64(in.BookedMinutes) / float64(in.AvailableMinutes) * 100))
		if pct > 100 {
			pct = 100
		}
		in.UtilizationPct = pct
	}

	sort.Slice(active, func(i, j int) bool { return active[i].start.Before(active[j].start) })
	for i := 1; i < len(active); i++ {
		gap := timegrid.MinutesBetween(active[i-1].end, active[i].start)
		if gap > insightGapMin {
			in.GapCount++
			if gap > in.LargestGapMinutes {
				in.LargestGapMinutes = gap
			}
		}
	}
	return in
}
