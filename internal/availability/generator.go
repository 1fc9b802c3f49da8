package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/trainwell/scheduling-engine/internal/engine"
	"github.com/trainwell/scheduling-engine/internal/model"
	"github.com/trainwell/scheduling-engine/internal/timegrid"
)

// Store is the slice of the repository the generator reads from. All calls
// are read-only; booking itself is a separate write path guarded by the
// database.
type Store interface {
	ServiceType(ctx context.Context, id string) (model.ServiceType, error)
	ActiveAvailability(ctx context.Context, trainerID string, dayOfWeek int) ([]model.StaffAvailability, error)
	BusyIntervals(ctx context.Context, trainerID string, dayStart, dayEnd time.Time) ([]Busy, error)
	TrainerSettings(ctx context.Context, trainerID string) (model.TrainerSettings, error)
}

type Generator struct {
	store Store
	now   func() time.Time
}

func NewGenerator(store Store) *Generator {
	return &Generator{store: store, now: time.Now}
}

// NewGeneratorAt pins the clock, for tests.
func NewGeneratorAt(store Store, now func() time.Time) *Generator {
	return &Generator{store: store, now: now}
}

type Result struct {
	Slots                  []Slot
	ServiceDurationMinutes int
}

// Slots computes the full bookable/blocked grid for a trainer, service and
// date. A day with no active availability yields an empty slot list, not an
// error.
func (g *Generator) Slots(ctx context.Context, trainerID, serviceTypeID, date string) (Result, error) {
	day, err := timegrid.ParseDate(date)
	if err != nil {
		return Result{}, engine.Validationf("%s", err.Error())
	}

	svc, err := g.store.ServiceType(ctx, serviceTypeID)
	if err != nil {
		return Result{}, fmt.Errorf("load service type %s: %w", serviceTypeID, err)
	}

	settings, err := g.store.TrainerSettings(ctx, trainerID)
	if err != nil {
		return Result{}, fmt.Errorf("load trainer settings %s: %w", trainerID, err)
	}

	blocks, err := g.store.ActiveAvailability(ctx, trainerID, int(day.Weekday()))
	if err != nil {
		return Result{}, fmt.Errorf("load availability %s: %w", trainerID, err)
	}
	if len(blocks) == 0 {
		return Result{Slots: []Slot{}, ServiceDurationMinutes: svc.DurationMinutes}, nil
	}

	busy, err := g.store.BusyIntervals(ctx, trainerID, day, day.Add(24*time.Hour))
	if err != nil {
		return Result{}, fmt.Errorf("load appointments %s: %w", trainerID, err)
	}

	in := GridInput{
		Day:                 day,
		DurationMinutes:     svc.DurationMinutes,
		BufferAfterMinutes:  svc.BufferAfterMinutes,
		TravelBufferMinutes: svc.TravelBufferMinutes,
		Busy:                busy,
		Now:                 g.now().UTC(),
		LeadTimeMinutes:     settings.BookingLeadTimeMinutes,
	}
	for _, b := range blocks {
		in.Blocks = append(in.Blocks, Block{StartMinutes: b.StartMinutes, EndMinutes: b.EndMinutes})
	}

	return Result{Slots: Grid(in), ServiceDurationMinutes: svc.DurationMinutes}, nil
}
