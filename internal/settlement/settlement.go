// Package settlement finalizes sessions against session packs, card charges
// and ledger entries. The governing policy: once money or session inventory
// has moved, that fact is never lost even if a later bookkeeping write fails;
// conversely nothing is charged or deducted without an explicit precondition
// check first.
package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/trainwell/scheduling-engine/internal/engine"
	"github.com/trainwell/scheduling-engine/internal/lifecycle"
	"github.com/trainwell/scheduling-engine/internal/model"
	"github.com/trainwell/scheduling-engine/internal/outbox"
	"github.com/trainwell/scheduling-engine/internal/payments"
)

// Store is the repository slice the settlement engine writes through.
type Store interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ServiceType(ctx context.Context, id string) (model.ServiceType, error)
	ClientBilling(ctx context.Context, clientID string) (model.ClientBilling, error)
	DeductSessions(ctx context.Context, clientServiceID string, n int) (*int, error)
	TransitionStatus(ctx context.Context, id, to string, from []string) (bool, error)
	PoliciesForTrainer(ctx context.Context, trainerID string) ([]model.CancellationPolicy, error)
	InsertSale(ctx context.Context, s model.SaleTransaction) (string, error)
	InsertLedgerEntry(ctx context.Context, e model.LedgerEntry) (string, error)
	InsertVisit(ctx context.Context, v model.Visit) (string, error)
}

// Events is the outbox hook; inserts are best-effort.
type Events interface {
	Insert(ctx context.Context, e outbox.Event) error
}

type Service struct {
	store  Store
	charge payments.Charger
	events Events
	logger *slog.Logger
}

func New(store Store, charger payments.Charger, events Events, logger *slog.Logger) *Service {
	return &Service{store: store, charge: charger, events: events, logger: logger}
}

var checkoutStatuses = []string{model.StatusArrived, model.StatusConfirmed, model.StatusBooked}

type CheckoutRequest struct {
	AppointmentID   string
	PaymentMethod   string
	ClientServiceID string
	TipCents        int64
	DiscountCents   int64
	Notes           string
}

type CheckoutResult struct {
	SaleTransactionID     string
	SessionsRemaining     *int
	StripePaymentIntentID string
}

func validPaymentMethod(m string) bool {
	switch m {
	case model.PaySessionPack, model.PayCard, model.PayCash, model.PayAccountBalance, model.PaySplit, model.PayComp:
		return true
	}
	return false
}

// ProcessCheckout completes a session. Money and session movement (steps 1-2)
// abort on failure; the bookkeeping writes afterwards log and continue, since
// reverting them would silently lose a charge that already cleared.
func (s *Service) ProcessCheckout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	if req.AppointmentID == "" {
		return CheckoutResult{}, engine.Validationf("appointment_id is required")
	}
	if !validPaymentMethod(req.PaymentMethod) {
		return CheckoutResult{}, engine.Validationf("unsupported payment method %q", req.PaymentMethod)
	}
	if req.TipCents < 0 || req.DiscountCents < 0 {
		return CheckoutResult{}, engine.Validationf("tip and discount must be non-negative")
	}

	appt, err := s.store.GetAppointment(ctx, req.AppointmentID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if !statusIn(appt.Status, checkoutStatuses) {
		return CheckoutResult{}, engine.Preconditionf("appointment %s is %s, not checkable", appt.ID, appt.Status)
	}

	svc, err := s.store.ServiceType(ctx, appt.ServiceTypeID)
	if err != nil {
		return CheckoutResult{}, err
	}

	subtotal := svc.BasePriceCents
	total := subtotal + req.TipCents - req.DiscountCents
	if total < 0 {
		total = 0
	}

	var result CheckoutResult
	sessionsDeducted := 0

	// Step 1: session inventory. A conditional decrement that would go
	// negative aborts before any charge is attempted.
	if req.PaymentMethod == model.PaySessionPack {
		clientServiceID := req.ClientServiceID
		if clientServiceID == "" {
			clientServiceID = appt.ClientServiceID
		}
		if clientServiceID == "" {
			return CheckoutResult{}, engine.Validationf("client_service_id is required for session_pack checkout")
		}
		remaining, err := s.store.DeductSessions(ctx, clientServiceID, svc.NumSessionsDeducted)
		if err != nil {
			return CheckoutResult{}, err
		}
		result.SessionsRemaining = remaining
		sessionsDeducted = svc.NumSessionsDeducted
		req.ClientServiceID = clientServiceID
	}

	// Step 2: money. Checkout requires an affirmative payment; there is no
	// ledger fallback on this path.
	if req.PaymentMethod == model.PayCard && total > 0 {
		billing, err := s.store.ClientBilling(ctx, appt.ClientID)
		if err != nil {
			return CheckoutResult{}, err
		}
		if billing.StripeCustomerID == "" || billing.DefaultPaymentMethodID == "" {
			return CheckoutResult{}, fmt.Errorf("client %s: %w", appt.ClientID, engine.ErrNoPaymentMethod)
		}
		piID, err := s.charge.ChargeOffSession(ctx, payments.ChargeRequest{
			CustomerID:      billing.StripeCustomerID,
			PaymentMethodID: billing.DefaultPaymentMethodID,
			AmountCents:     total,
			Description:     "session checkout",
			IdempotencyKey:  "checkout:" + appt.ID,
			Metadata:        map[string]string{"appointment_id": appt.ID},
		})
		if err != nil {
			return CheckoutResult{}, fmt.Errorf("%s: %w", payments.FailureMessage(err), engine.ErrPaymentDeclined)
		}
		result.StripePaymentIntentID = piID
	}

	// Steps 3-5 are bookkeeping; failures are logged, never reverted.
	saleID, err := s.store.InsertSale(ctx, model.SaleTransaction{
		TrainerID:             appt.TrainerID,
		ClientID:              appt.ClientID,
		AppointmentID:         appt.ID,
		PaymentMethod:         req.PaymentMethod,
		SubtotalCents:         subtotal,
		TipCents:              req.TipCents,
		DiscountCents:         req.DiscountCents,
		TotalCents:            total,
		Status:                "completed",
		StripePaymentIntentID: result.StripePaymentIntentID,
	})
	if err != nil {
		s.logger.Error("checkout sale insert failed", "err", err, "appointment_id", appt.ID)
	}
	result.SaleTransactionID = saleID

	if _, err := s.store.InsertVisit(ctx, model.Visit{
		AppointmentID:     appt.ID,
		ClientID:          appt.ClientID,
		TrainerID:         appt.TrainerID,
		VisitStatus:       model.VisitCompleted,
		SessionsDeducted:  sessionsDeducted,
		ServicePriceCents: svc.BasePriceCents,
		ClientServiceID:   req.ClientServiceID,
	}); err != nil {
		s.logger.Error("checkout visit insert failed", "err", err, "appointment_id", appt.ID)
	}

	won, err := s.store.TransitionStatus(ctx, appt.ID, model.StatusCompleted, lifecycle.AllowedFrom(model.StatusCompleted))
	if err != nil {
		s.logger.Error("checkout status transition failed", "err", err, "appointment_id", appt.ID)
	} else if !won {
		s.logger.Warn("checkout lost status race", "appointment_id", appt.ID)
	}

	s.emit(ctx, outbox.EventAppointmentCompleted, appt.ID, map[string]any{
		"appointment_id":      appt.ID,
		"trainer_id":          appt.TrainerID,
		"client_id":           appt.ClientID,
		"payment_method":      req.PaymentMethod,
		"total_cents":         total,
		"sale_transaction_id": saleID,
	})

	return result, nil
}

func statusIn(status string, set []string) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func (s *Service) emit(ctx context.Context, eventType, appointmentID string, payload map[string]any) {
	if s.events == nil {
		return
	}
	payload["occurred_at"] = time.Now().UTC().Format(time.RFC3339)
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.events.Insert(ctx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     eventType,
		Payload:       raw,
	}); err != nil {
		s.logger.Warn("outbox insert failed", "err", err, "event_type", eventType, "appointment_id", appointmentID)
	}
}

// MarkConfirmed and MarkArrived are the manual lifecycle edges driven by the
// trainer UI.
func (s *Service) MarkConfirmed(ctx context.Context, appointmentID string) error {
	return s.transition(ctx, appointmentID, model.StatusConfirmed)
}

func (s *Service) MarkArrived(ctx context.Context, appointmentID string) error {
	return s.transition(ctx, appointmentID, model.StatusArrived)
}

func (s *Service) transition(ctx context.Context, appointmentID, to string) error {
	if appointmentID == "" {
		return engine.Validationf("appointment_id is required")
	}
	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	won, err := s.store.TransitionStatus(ctx, appointmentID, to, lifecycle.AllowedFrom(to))
	if err != nil {
		return err
	}
	if !won {
		return engine.Preconditionf("appointment %s is %s, cannot move to %s", appointmentID, appt.Status, to)
	}
	return nil
}
