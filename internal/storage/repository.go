// Package storage is the engine's Postgres repository. State-changing writes
// are expressed as conditional updates guarded on the expected prior state;
// affected-row counts tell callers whether they won the race. Ledger, sale
// and visit rows are insert-only.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trainwell/scheduling-engine/internal/availability"
	"github.com/trainwell/scheduling-engine/internal/db"
	"github.com/trainwell/scheduling-engine/internal/engine"
	"github.com/trainwell/scheduling-engine/internal/model"
	"github.com/trainwell/scheduling-engine/internal/noshow"
)

// ErrInsufficientSessions is returned when a conditional session decrement
// would take sessions_remaining below zero.
var ErrInsufficientSessions = errors.New("insufficient sessions remaining")

type Repository struct {
	pool *db.Pool
}

func New(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ServiceType(ctx context.Context, id string) (model.ServiceType, error) {
	var s model.ServiceType
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, duration_minutes, buffer_after_minutes, travel_buffer_minutes,
			cancel_window_minutes, base_price_cents, num_sessions_deducted
		FROM service_types
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.BufferAfterMinutes, &s.TravelBufferMinutes,
		&s.CancelWindowMinutes, &s.BasePriceCents, &s.NumSessionsDeducted)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ServiceType{}, engine.NotFoundf("service type %s", id)
	}
	if err != nil {
		return model.ServiceType{}, err
	}
	return s, nil
}

// TrainerSettings returns the trainer's scheduling knobs, falling back to the
// defaults when the trainer has no settings row. An unknown trainer is a
// not-found error.
func (r *Repository) TrainerSettings(ctx context.Context, trainerID string) (model.TrainerSettings, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trainers WHERE id = $1)`, trainerID).Scan(&exists); err != nil {
		return model.TrainerSettings{}, err
	}
	if !exists {
		return model.TrainerSettings{}, engine.NotFoundf("trainer %s", trainerID)
	}

	s := model.TrainerSettings{
		TrainerID:              trainerID,
		AutoNoShowMinutes:      model.DefaultAutoNoShowMinutes,
		BookingLeadTimeMinutes: model.DefaultBookingLeadTimeMinutes,
	}
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(auto_noshow_minutes, $2), COALESCE(booking_lead_time_minutes, $3)
		FROM trainer_settings
		WHERE trainer_id = $1
	`, trainerID, model.DefaultAutoNoShowMinutes, model.DefaultBookingLeadTimeMinutes).
		Scan(&s.AutoNoShowMinutes, &s.BookingLeadTimeMinutes)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.TrainerSettings{}, err
	}
	return s, nil
}

func (r *Repository) ActiveAvailability(ctx context.Context, trainerID string, dayOfWeek int) ([]model.StaffAvailability, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, trainer_id::text, day_of_week,
			EXTRACT(EPOCH FROM start_time)::int / 60,
			EXTRACT(EPOCH FROM end_time)::int / 60,
			COALESCE(facility_id::text, ''), is_active
		FROM staff_availability
		WHERE trainer_id = $1 AND day_of_week = $2 AND is_active
		ORDER BY start_time
	`, trainerID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []model.StaffAvailability
	for rows.Next() {
		var b model.StaffAvailability
		if err := rows.Scan(&b.ID, &b.TrainerID, &b.DayOfWeek, &b.StartMinutes, &b.EndMinutes, &b.FacilityID, &b.IsActive); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// BusyIntervals returns the trainer's non-cancelled appointments in the day
// window, each carrying its own service type's buffer minutes.
func (r *Repository) BusyIntervals(ctx context.Context, trainerID string, dayStart, dayEnd time.Time) ([]availability.Busy, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.start_at, a.end_at, st.buffer_after_minutes, st.travel_buffer_minutes
		FROM appointments a
		JOIN service_types st ON st.id = a.service_type_id
		WHERE a.trainer_id = $1
			AND a.start_at >= $2 AND a.start_at < $3
			AND a.status NOT IN ('early_cancel', 'late_cancel')
		ORDER BY a.start_at
	`, trainerID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []availability.Busy
	for rows.Next() {
		var b availability.Busy
		if err := rows.Scan(&b.Start, &b.End, &b.BufferAfterMinutes, &b.TravelBufferMinutes); err != nil {
			return nil, err
		}
		busy = append(busy, b)
	}
	return busy, rows.Err()
}

func (r *Repository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	var a model.Appointment
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, trainer_id::text, client_id::text, service_type_id::text,
			COALESCE(facility_id::text, ''), start_at, end_at, status,
			arrived_at, completed_at, COALESCE(client_service_id::text, ''), created_at
		FROM appointments
		WHERE id = $1
	`, id).Scan(&a.ID, &a.TrainerID, &a.ClientID, &a.ServiceTypeID, &a.FacilityID,
		&a.StartAt, &a.EndAt, &a.Status, &a.ArrivedAt, &a.CompletedAt, &a.ClientServiceID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, engine.NotFoundf("appointment %s", id)
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// TransitionStatus applies the conditional status update. The returned bool
// reports whether this caller won: false means another writer transitioned
// the row first (or it was never in an expected state), and no side effects
// were applied.
func (r *Repository) TransitionStatus(ctx context.Context, id, to string, from []string) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition to %s has no allowed source statuses", to)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			arrived_at = CASE WHEN $2 = 'arrived' THEN now() ELSE arrived_at END,
			completed_at = CASE WHEN $2 = 'completed' THEN now() ELSE completed_at END,
			updated_at = now()
		WHERE id = $1 AND status = ANY($3)
	`, id, to, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// OverdueAppointments lists candidates for the no-show sweep: still in a
// pre-terminal status, started before now, never marked arrived. The grace
// comparison happens in the reconciler so a sweep report can explain skips.
func (r *Repository) OverdueAppointments(ctx context.Context, now time.Time, limit int) ([]noshow.Overdue, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT a.id::text, a.trainer_id::text, a.client_id::text, a.service_type_id::text,
			a.start_at, a.end_at, a.status, COALESCE(a.client_service_id::text, ''),
			COALESCE(ts.auto_noshow_minutes, $2),
			st.num_sessions_deducted, st.base_price_cents
		FROM appointments a
		JOIN service_types st ON st.id = a.service_type_id
		LEFT JOIN trainer_settings ts ON ts.trainer_id = a.trainer_id
		WHERE a.status IN ('booked', 'confirmed', 'arrived')
			AND a.start_at < $1
			AND a.arrived_at IS NULL
		ORDER BY a.start_at
		LIMIT $3
	`, now, model.DefaultAutoNoShowMinutes, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []noshow.Overdue
	for rows.Next() {
		var o noshow.Overdue
		if err := rows.Scan(&o.AppointmentID, &o.TrainerID, &o.ClientID, &o.ServiceTypeID,
			&o.StartAt, &o.EndAt, &o.Status, &o.ClientServiceID,
			&o.AutoNoShowMinutes, &o.NumSessionsDeducted, &o.ServicePriceCents); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repository) ClientService(ctx context.Context, id string) (model.ClientService, error) {
	var cs model.ClientService
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, client_id::text, trainer_id::text, COALESCE(pricing_option_id::text, ''),
			sessions_remaining, sessions_total, is_active, COALESCE(stripe_subscription_id, '')
		FROM client_services
		WHERE id = $1
	`, id).Scan(&cs.ID, &cs.ClientID, &cs.TrainerID, &cs.PricingOptionID,
		&cs.SessionsRemaining, &cs.SessionsTotal, &cs.IsActive, &cs.StripeSubscriptionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ClientService{}, engine.NotFoundf("client service %s", id)
	}
	if err != nil {
		return model.ClientService{}, err
	}
	return cs, nil
}

// DeductSessions atomically decrements sessions_remaining, refusing to go
// below zero. A NULL sessions_remaining means an unlimited service: the
// deduction is a no-op and nil is returned. The returned pointer is the
// post-deduction balance for pack-backed services.
func (r *Repository) DeductSessions(ctx context.Context, clientServiceID string, n int) (*int, error) {
	if n <= 0 {
		cs, err := r.ClientService(ctx, clientServiceID)
		if err != nil {
			return nil, err
		}
		return cs.SessionsRemaining, nil
	}

	var remaining int
	err := r.pool.QueryRow(ctx, `
		UPDATE client_services
		SET sessions_remaining = sessions_remaining - $2, updated_at = now()
		WHERE id = $1 AND is_active AND sessions_remaining IS NOT NULL AND sessions_remaining >= $2
		RETURNING sessions_remaining
	`, clientServiceID, n).Scan(&remaining)
	if err == nil {
		return &remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// The conditional update matched nothing. Distinguish unlimited services
	// from exhausted packs and missing rows.
	cs, csErr := r.ClientService(ctx, clientServiceID)
	if csErr != nil {
		return nil, csErr
	}
	if !cs.IsActive {
		return nil, engine.Preconditionf("client service %s is inactive", clientServiceID)
	}
	if cs.SessionsRemaining == nil {
		return nil, nil // unlimited
	}
	return nil, fmt.Errorf("client service %s has %d sessions: %w", clientServiceID, *cs.SessionsRemaining, ErrInsufficientSessions)
}

func (r *Repository) ClientBilling(ctx context.Context, clientID string) (model.ClientBilling, error) {
	var b model.ClientBilling
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, trainer_id::text, COALESCE(stripe_customer_id, ''), COALESCE(default_payment_method_id, '')
		FROM clients
		WHERE id = $1
	`, clientID).Scan(&b.ClientID, &b.TrainerID, &b.StripeCustomerID, &b.DefaultPaymentMethodID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ClientBilling{}, engine.NotFoundf("client %s", clientID)
	}
	if err != nil {
		return model.ClientBilling{}, err
	}
	return b, nil
}

func (r *Repository) PoliciesForTrainer(ctx context.Context, trainerID string) ([]model.CancellationPolicy, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, trainer_id::text, COALESCE(service_type_id::text, ''),
			late_cancel_fee_cents, no_show_fee_cents, forfeit_session
		FROM cancellation_policies
		WHERE trainer_id = $1
	`, trainerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []model.CancellationPolicy
	for rows.Next() {
		var p model.CancellationPolicy
		if err := rows.Scan(&p.ID, &p.TrainerID, &p.ServiceTypeID, &p.LateCancelFeeCents, &p.NoShowFeeCents, &p.ForfeitSession); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (r *Repository) InsertSale(ctx context.Context, s model.SaleTransaction) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sale_transactions
			(id, trainer_id, client_id, appointment_id, payment_method,
			 subtotal_cents, tip_cents, discount_cents, total_cents, status, stripe_payment_intent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, id, s.TrainerID, s.ClientID, nullIfEmpty(s.AppointmentID), s.PaymentMethod,
		s.SubtotalCents, s.TipCents, s.DiscountCents, s.TotalCents, s.Status, nullIfEmpty(s.StripePaymentIntentID))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) InsertLedgerEntry(ctx context.Context, e model.LedgerEntry) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ledger_entries
			(id, client_id, trainer_id, entry_type, amount_cents, reason, appointment_id, stripe_payment_intent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, e.ClientID, e.TrainerID, e.EntryType, e.AmountCents, e.Reason,
		nullIfEmpty(e.AppointmentID), nullIfEmpty(e.StripePaymentIntentID))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) InsertVisit(ctx context.Context, v model.Visit) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO visits
			(id, appointment_id, client_id, trainer_id, visit_status,
			 sessions_deducted, service_price_cents, client_service_id, payroll_processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false)
		ON CONFLICT (appointment_id) DO NOTHING
	`, id, v.AppointmentID, v.ClientID, v.TrainerID, v.VisitStatus,
		v.SessionsDeducted, v.ServicePriceCents, nullIfEmpty(v.ClientServiceID))
	if err != nil {
		return "", err
	}
	return id, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
