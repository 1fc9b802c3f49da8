// Package availability produces the bookable/blocked slot grid for a
// trainer, service and date.
package availability

import (
	"sort"
	"time"

	"github.com/trainwell/scheduling-engine/internal/timegrid"
)

// StepMinutes is the candidate-slot granularity.
const StepMinutes = 15

// Blocked reasons, in the priority order they are checked.
const (
	ReasonBookingLeadTime     = "booking_lead_time"
	ReasonExistingAppointment = "existing_appointment"
	ReasonBuffer              = "buffer"
	ReasonTravelBuffer        = "travel_buffer"
)

type Slot struct {
	Time          time.Time
	Available     bool
	BlockedReason string // empty when available
}

// Block is one availability window, minutes from midnight UTC.
type Block struct {
	StartMinutes int
	EndMinutes   int
}

// Busy is an existing non-cancelled appointment plus the buffer minutes of
// its own service type.
type Busy struct {
	Start               time.Time
	End                 time.Time
	BufferAfterMinutes  int
	TravelBufferMinutes int
}

type GridInput struct {
	Day                 time.Time // midnight UTC of the requested date
	Blocks              []Block
	DurationMinutes     int
	BufferAfterMinutes  int // buffers of the service being booked
	TravelBufferMinutes int
	Busy                []Busy
	Now                 time.Time
	LeadTimeMinutes     int
}

// Grid walks each availability block at 15-minute steps and classifies every
// candidate start time. Candidates from all blocks are merged and returned in
// chronological order.
func Grid(in GridInput) []Slot {
	if in.DurationMinutes <= 0 {
		return nil
	}
	duration := time.Duration(in.DurationMinutes) * time.Minute
	ownBuffer := time.Duration(in.BufferAfterMinutes+in.TravelBufferMinutes) * time.Minute
	earliestStart := in.Now.Add(time.Duration(in.LeadTimeMinutes) * time.Minute)

	var slots []Slot
	for _, block := range in.Blocks {
		for startMin := block.StartMinutes; startMin+in.DurationMinutes <= block.EndMinutes; startMin += StepMinutes {
			start := in.Day.Add(time.Duration(startMin) * time.Minute)
			end := start.Add(duration)

			slot := Slot{Time: start, Available: true}
			if start.Before(earliestStart) {
				slot.Available = false
				slot.BlockedReason = ReasonBookingLeadTime
			} else if reason, blocked := blockedBy(start, end, ownBuffer, in.Busy); blocked {
				slot.Available = false
				slot.BlockedReason = reason
			}
			slots = append(slots, slot)
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Time.Before(slots[j].Time) })
	return slots
}

// blockedBy tests the candidate (extended by its own trailing buffer) against
// every existing appointment (extended by that appointment's buffers). When
// the conflict touches the appointment body itself the reason is
// existing_appointment; a buffer-only conflict reports whichever buffer
// component caused it, with the setup buffer taking priority over travel.
func blockedBy(start, end time.Time, ownBuffer time.Duration, busy []Busy) (string, bool) {
	for _, b := range busy {
		existingBuffer := time.Duration(b.BufferAfterMinutes+b.TravelBufferMinutes) * time.Minute
		if !timegrid.Overlaps(start, end.Add(ownBuffer), b.Start, b.End.Add(existingBuffer)) {
			continue
		}
		if timegrid.Overlaps(start, end.Add(ownBuffer), b.Start, b.End) {
			return ReasonExistingAppointment, true
		}
		if b.BufferAfterMinutes > 0 {
			return ReasonBuffer, true
		}
		if b.TravelBufferMinutes > 0 {
			return ReasonTravelBuffer, true
		}
		return ReasonBuffer, true
	}
	return "", false
}
