// Package noshow runs the auto no-show sweep: appointments whose start time
// plus the trainer's grace period has passed without an arrival are
// transitioned to no_show and get a visit record, so the fee path can act on
// them later.
package noshow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/trainwell/scheduling-engine/internal/lifecycle"
	"github.com/trainwell/scheduling-engine/internal/model"
	"github.com/trainwell/scheduling-engine/internal/outbox"
	"github.com/trainwell/scheduling-engine/internal/redisx"
	"github.com/trainwell/scheduling-engine/internal/timegrid"
)

// Overdue is one sweep candidate, denormalized so the reconciler never has to
// fetch anything else per row.
type Overdue struct {
	AppointmentID       string
	TrainerID           string
	ClientID            string
	ServiceTypeID       string
	StartAt             time.Time
	EndAt               time.Time
	Status              string
	ClientServiceID     string
	AutoNoShowMinutes   int
	NumSessionsDeducted int
	ServicePriceCents   int64
}

// Store is the repository slice the sweep reads and writes through.
type Store interface {
	OverdueAppointments(ctx context.Context, now time.Time, limit int) ([]Overdue, error)
	TransitionStatus(ctx context.Context, id, to string, from []string) (bool, error)
	InsertVisit(ctx context.Context, v model.Visit) (string, error)
}

// Events mirrors settlement.Events; inserts are best-effort.
type Events interface {
	Insert(ctx context.Context, e outbox.Event) error
}

// Report summarizes one sweep pass.
type Report struct {
	Candidates   int      `json:"candidates"`
	Processed    int      `json:"processed"`
	Skipped      int      `json:"skipped"`
	ProcessedIDs []string `json:"processed_ids,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

type Reconciler struct {
	store     Store
	events    Events
	logger    *slog.Logger
	locker    *redisx.Locker
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type Config struct {
	Interval  time.Duration
	BatchSize int
}

func New(store Store, events Events, locker *redisx.Locker, logger *slog.Logger, cfg Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Reconciler{
		store:     store,
		events:    events,
		logger:    logger,
		locker:    locker,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

// NewAt pins the clock for tests.
func NewAt(store Store, events Events, logger *slog.Logger, cfg Config, now func() time.Time) *Reconciler {
	r := New(store, events, nil, logger, cfg)
	r.now = now
	return r
}

// Run loops the sweep until ctx is cancelled. When a locker is configured,
// only one replica sweeps per tick; losing the lock is not an error.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := r.sweepLocked(ctx)
			if err != nil {
				if err == redisx.ErrLockNotAcquired {
					continue
				}
				r.logger.Error("no-show sweep failed", "err", err)
				continue
			}
			if report.Processed > 0 || len(report.Errors) > 0 {
				r.logger.Info("no-show sweep finished",
					"candidates", report.Candidates,
					"processed", report.Processed,
					"skipped", report.Skipped,
					"errors", len(report.Errors),
				)
			}
		}
	}
}

func (r *Reconciler) sweepLocked(ctx context.Context) (Report, error) {
	if r.locker == nil {
		return r.Sweep(ctx)
	}
	var report Report
	err := r.locker.WithLock(ctx, func(ctx context.Context) error {
		var sweepErr error
		report, sweepErr = r.Sweep(ctx)
		return sweepErr
	})
	return report, err
}

// Sweep processes one batch of overdue appointments. Each item is handled
// independently: one bad row never blocks the rest, and a failed visit insert
// never reverts an already-applied status transition. Re-running a sweep is
// safe because the transition is conditional and the visit insert tolerates
// duplicates.
func (r *Reconciler) Sweep(ctx context.Context) (Report, error) {
	now := r.now().UTC()

	candidates, err := r.store.OverdueAppointments(ctx, now, r.batchSize)
	if err != nil {
		return Report{}, fmt.Errorf("list overdue appointments: %w", err)
	}

	report := Report{Candidates: len(candidates)}
	from := lifecycle.AllowedFrom(model.StatusNoShow)

	for _, o := range candidates {
		if timegrid.MinutesBetween(o.StartAt, now) < o.AutoNoShowMinutes {
			report.Skipped++
			continue
		}

		won, err := r.store.TransitionStatus(ctx, o.AppointmentID, model.StatusNoShow, from)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: transition: %v", o.AppointmentID, err))
			continue
		}
		if !won {
			// Another writer (a checkout, a cancel, a concurrent sweep)
			// got there first.
			report.Skipped++
			continue
		}

		report.Processed++
		report.ProcessedIDs = append(report.ProcessedIDs, o.AppointmentID)

		if _, err := r.store.InsertVisit(ctx, model.Visit{
			AppointmentID:     o.AppointmentID,
			ClientID:          o.ClientID,
			TrainerID:         o.TrainerID,
			VisitStatus:       model.VisitNoShow,
			SessionsDeducted:  o.NumSessionsDeducted,
			ServicePriceCents: o.ServicePriceCents,
			ClientServiceID:   o.ClientServiceID,
		}); err != nil {
			// The status already moved; record the gap and keep going.
			r.logger.Error("no-show visit insert failed", "err", err, "appointment_id", o.AppointmentID)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: visit: %v", o.AppointmentID, err))
		}

		r.emit(ctx, o, now)
	}

	return report, nil
}

func (r *Reconciler) emit(ctx context.Context, o Overdue, now time.Time) {
	if r.events == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"appointment_id": o.AppointmentID,
		"trainer_id":     o.TrainerID,
		"client_id":      o.ClientID,
		"start_at":       o.StartAt.Format(time.RFC3339),
		"occurred_at":    now.Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := r.events.Insert(ctx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   o.AppointmentID,
		EventType:     outbox.EventAppointmentNoShow,
		Payload:       payload,
	}); err != nil {
		r.logger.Warn("outbox insert failed", "err", err, "appointment_id", o.AppointmentID)
	}
}
