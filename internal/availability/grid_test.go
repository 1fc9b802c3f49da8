package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/trainwell/scheduling-engine/internal/engine"
	"github.com/trainwell/scheduling-engine/internal/model"
	"github.com/trainwell/scheduling-engine/internal/timegrid"
)

var day = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) // a Monday

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

// past returns a clock far enough back that booking_lead_time never fires.
func past() time.Time { return day.Add(-48 * time.Hour) }

func findSlot(t *testing.T, slots []Slot, when time.Time) Slot {
	t.Helper()
	for _, s := range slots {
		if s.Time.Equal(when) {
			return s
		}
	}
	t.Fatalf("no slot at %s", when.Format(time.RFC3339))
	return Slot{}
}

func TestGrid_WalksBlockAtFifteenMinuteSteps(t *testing.T) {
	slots := Grid(GridInput{
		Day:             day,
		Blocks:          []Block{{StartMinutes: 9 * 60, EndMinutes: 11 * 60}},
		DurationMinutes: 60,
		Now:             past(),
	})
	// 09:00..10:00 inclusive: a 60m session must still fit before 11:00.
	if len(slots) != 5 {
		t.Fatalf("expected 5 slots, got %d", len(slots))
	}
	if !slots[0].Time.Equal(at(9, 0)) || !slots[4].Time.Equal(at(10, 0)) {
		t.Fatalf("unexpected slot range %s..%s", slots[0].Time, slots[4].Time)
	}
	for _, s := range slots {
		if !s.Available {
			t.Errorf("expected %s available, blocked by %s", s.Time, s.BlockedReason)
		}
	}
}

func TestGrid_LeadTimeBlocksNearSlots(t *testing.T) {
	now := at(8, 30)
	slots := Grid(GridInput{
		Day:             day,
		Blocks:          []Block{{StartMinutes: 9 * 60, EndMinutes: 12 * 60}},
		DurationMinutes: 60,
		Now:             now,
		LeadTimeMinutes: 60,
	})
	// Earliest bookable start is 09:30.
	for _, s := range slots {
		if s.Time.Before(at(9, 30)) {
			if s.Available || s.BlockedReason != ReasonBookingLeadTime {
				t.Errorf("slot %s: expected booking_lead_time block, got available=%v reason=%q", s.Time, s.Available, s.BlockedReason)
			}
		} else if !s.Available {
			t.Errorf("slot %s: expected available, got %q", s.Time, s.BlockedReason)
		}
	}
}

func TestGrid_ExistingAppointmentBlocks(t *testing.T) {
	slots := Grid(GridInput{
		Day:             day,
		Blocks:          []Block{{StartMinutes: 9 * 60, EndMinutes: 13 * 60}},
		DurationMinutes: 60,
		Busy:            []Busy{{Start: at(10, 0), End: at(11, 0)}},
		Now:             past(),
	})
	// Any candidate whose hour-long body touches 10:00-11:00 is blocked.
	for _, s := range slots {
		overlapsBody := timegrid.Overlaps(s.Time, s.Time.Add(time.Hour), at(10, 0), at(11, 0))
		if overlapsBody && (s.Available || s.BlockedReason != ReasonExistingAppointment) {
			t.Errorf("slot %s: expected existing_appointment, got available=%v reason=%q", s.Time, s.Available, s.BlockedReason)
		}
		if !overlapsBody && !s.Available {
			t.Errorf("slot %s: expected available, got %q", s.Time, s.BlockedReason)
		}
	}
}

func TestGrid_BufferAndTravelBufferReasons(t *testing.T) {
	// Existing appointment 09:00-10:00 with a 15m setup buffer: the 10:00
	// candidate collides with the buffer tail only.
	slots := Grid(GridInput{
		Day:             day,
		Blocks:          []Block{{StartMinutes: 9 * 60, EndMinutes: 13 * 60}},
		DurationMinutes: 60,
		Busy:            []Busy{{Start: at(9, 0), End: at(10, 0), BufferAfterMinutes: 15}},
		Now:             past(),
	})
	if s := findSlot(t, slots, at(10, 0)); s.Available || s.BlockedReason != ReasonBuffer {
		t.Fatalf("10:00: expected buffer block, got available=%v reason=%q", s.Available, s.BlockedReason)
	}
	if s := findSlot(t, slots, at(10, 15)); !s.Available {
		t.Fatalf("10:15: expected available, got %q", s.BlockedReason)
	}

	// Travel-only buffer reports travel_buffer.
	slots = Grid(GridInput{
		Day:             day,
		Blocks:          []Block{{StartMinutes: 9 * 60, EndMinutes: 13 * 60}},
		DurationMinutes: 60,
		Busy:            []Busy{{Start: at(9, 0), End: at(10, 0), TravelBufferMinutes: 30}},
		Now:             past(),
	})
	for _, when := range []time.Time{at(10, 0), at(10, 15)} {
		if s := findSlot(t, slots, when); s.Available || s.BlockedReason != ReasonTravelBuffer {
			t.Fatalf("%s: expected travel_buffer block, got available=%v reason=%q", when, s.Available, s.BlockedReason)
		}
	}
}

func TestGrid_OwnBufferExtendsCandidate(t *testing.T) {
	// The service being booked carries a 15m buffer, so 09:00-10:00(+15)
	// collides with an appointment starting at 10:00.
	slots := Grid(GridInput{
		Day:                day,
		Blocks:             []Block{{StartMinutes: 8 * 60, EndMinutes: 12 * 60}},
		DurationMinutes:    60,
		BufferAfterMinutes: 15,
		Busy:               []Busy{{Start: at(10, 0), End: at(11, 0)}},
		Now:                past(),
	})
	if s := findSlot(t, slots, at(9, 0)); s.Available || s.BlockedReason != ReasonExistingAppointment {
		t.Fatalf("09:00: expected existing_appointment, got available=%v reason=%q", s.Available, s.BlockedReason)
	}
	if s := findSlot(t, slots, at(8, 45)); !s.Available {
		t.Fatalf("08:45: expected available, got %q", s.BlockedReason)
	}
}

func TestGrid_MultipleBlocksSortedChronologically(t *testing.T) {
	// Blocks given out of order must still yield a chronological grid.
	slots := Grid(GridInput{
		Day:             day,
		Blocks:          []Block{{StartMinutes: 14 * 60, EndMinutes: 16 * 60}, {StartMinutes: 9 * 60, EndMinutes: 11 * 60}},
		DurationMinutes: 60,
		Now:             past(),
	})
	for i := 1; i < len(slots); i++ {
		if !slots[i-1].Time.Before(slots[i].Time) {
			t.Fatalf("slots out of order at %d: %s >= %s", i, slots[i-1].Time, slots[i].Time)
		}
	}
	if !slots[0].Time.Equal(at(9, 0)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Time)
	}
}

func TestGrid_NoAvailableSlotOverlapsBusyWindow(t *testing.T) {
	busy := []Busy{
		{Start: at(9, 30), End: at(10, 30), BufferAfterMinutes: 10},
		{Start: at(12, 0), End: at(13, 0), TravelBufferMinutes: 20},
	}
	slots := Grid(GridInput{
		Day:             day,
		Blocks:          []Block{{StartMinutes: 8 * 60, EndMinutes: 15 * 60}},
		DurationMinutes: 45,
		Busy:            busy,
		Now:             past(),
	})
	for _, s := range slots {
		if !s.Available {
			continue
		}
		end := s.Time.Add(45 * time.Minute)
		for _, b := range busy {
			bufEnd := b.End.Add(time.Duration(b.BufferAfterMinutes+b.TravelBufferMinutes) * time.Minute)
			if timegrid.Overlaps(s.Time, end, b.Start, bufEnd) {
				t.Errorf("available slot %s overlaps busy window %s-%s", s.Time, b.Start, bufEnd)
			}
		}
	}
}

type fakeStore struct {
	svc      model.ServiceType
	svcErr   error
	blocks   []model.StaffAvailability
	busy     []Busy
	settings model.TrainerSettings
}

func (f *fakeStore) ServiceType(_ context.Context, _ string) (model.ServiceType, error) {
	return f.svc, f.svcErr
}

func (f *fakeStore) ActiveAvailability(_ context.Context, _ string, _ int) ([]model.StaffAvailability, error) {
	return f.blocks, nil
}

func (f *fakeStore) BusyIntervals(_ context.Context, _ string, _, _ time.Time) ([]Busy, error) {
	return f.busy, nil
}

func (f *fakeStore) TrainerSettings(_ context.Context, _ string) (model.TrainerSettings, error) {
	return f.settings, nil
}

func TestGenerator_EmptyWhenNoAvailability(t *testing.T) {
	store := &fakeStore{
		svc:      model.ServiceType{ID: "svc-1", DurationMinutes: 60},
		settings: model.TrainerSettings{BookingLeadTimeMinutes: 60},
	}
	gen := NewGeneratorAt(store, func() time.Time { return past() })

	res, err := gen.Slots(context.Background(), "trainer-1", "svc-1", "2026-03-09")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Slots) != 0 {
		t.Fatalf("expected empty slot list, got %d", len(res.Slots))
	}
	if res.ServiceDurationMinutes != 60 {
		t.Fatalf("expected duration 60, got %d", res.ServiceDurationMinutes)
	}
}

func TestGenerator_BadDate(t *testing.T) {
	gen := NewGenerator(&fakeStore{})
	_, err := gen.Slots(context.Background(), "trainer-1", "svc-1", "03/09/2026")
	if !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error for malformed date, got %v", err)
	}
}

func TestGenerator_ServiceTypeNotFound(t *testing.T) {
	gen := NewGenerator(&fakeStore{svcErr: engine.NotFoundf("service type missing")})
	_, err := gen.Slots(context.Background(), "trainer-1", "missing", "2026-03-09")
	if !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
