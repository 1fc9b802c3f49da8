package settlement

import (
	"context"

	"github.com/trainwell/scheduling-engine/internal/engine"
	"github.com/trainwell/scheduling-engine/internal/model"
	"github.com/trainwell/scheduling-engine/internal/outbox"
	"github.com/trainwell/scheduling-engine/internal/payments"
)

// OutcomeKind tags the result of a fee attempt so callers cannot mistake a
// recorded-debt outcome for an error.
type OutcomeKind string

const (
	// OutcomeCharged: the processor charge cleared and a sale was recorded.
	OutcomeCharged OutcomeKind = "charged"
	// OutcomeRecordedAsDebt: the fee could not be charged (no payment method
	// or processor decline) and was written to the ledger as a debit instead.
	OutcomeRecordedAsDebt OutcomeKind = "recorded_as_debt"
	// OutcomeNoFee: no applicable policy or a zero fee; nothing moved.
	OutcomeNoFee OutcomeKind = "no_fee"
)

type FeeRequest struct {
	AppointmentID string
	FeeType       string // late_cancel | no_show
}

type FeeResult struct {
	Outcome               OutcomeKind
	FeeAmountCents        int64
	SaleTransactionID     string
	LedgerEntryID         string
	LedgerEntry           *model.LedgerEntry
	StripePaymentIntentID string
	FailureReason         string
}

// Charged reports whether money actually cleared.
func (r FeeResult) Charged() bool { return r.Outcome == OutcomeCharged }

// ChargeCancellationFee enforces a late-cancel or no-show fee. Inability to
// charge is never "no fee owed": when the client has no payment method or the
// processor declines, the obligation is recorded as a ledger debit and the
// operation still succeeds.
func (s *Service) ChargeCancellationFee(ctx context.Context, req FeeRequest) (FeeResult, error) {
	if req.AppointmentID == "" {
		return FeeResult{}, engine.Validationf("appointment_id is required")
	}
	if req.FeeType != model.FeeLateCancel && req.FeeType != model.FeeNoShow {
		return FeeResult{}, engine.Validationf("unsupported fee type %q", req.FeeType)
	}

	appt, err := s.store.GetAppointment(ctx, req.AppointmentID)
	if err != nil {
		return FeeResult{}, err
	}
	svc, err := s.store.ServiceType(ctx, appt.ServiceTypeID)
	if err != nil {
		return FeeResult{}, err
	}

	policies, err := s.store.PoliciesForTrainer(ctx, appt.TrainerID)
	if err != nil {
		return FeeResult{}, err
	}
	policy, found := resolvePolicy(policies, appt.ServiceTypeID)

	fee := int64(0)
	if found {
		switch req.FeeType {
		case model.FeeLateCancel:
			fee = policy.LateCancelFeeCents
		case model.FeeNoShow:
			fee = policy.NoShowFeeCents
		}
	}

	// Session forfeiture is independent of the money path; a failed
	// deduction is logged and fee charging continues.
	if found && policy.ForfeitSession && appt.ClientServiceID != "" {
		if _, err := s.store.DeductSessions(ctx, appt.ClientServiceID, svc.NumSessionsDeducted); err != nil {
			s.logger.Warn("session forfeit failed",
				"err", err,
				"appointment_id", appt.ID,
				"client_service_id", appt.ClientServiceID,
			)
		}
	}

	if fee <= 0 {
		return FeeResult{Outcome: OutcomeNoFee}, nil
	}

	result := FeeResult{FeeAmountCents: fee}
	reason := req.FeeType + " fee"

	billing, billingErr := s.store.ClientBilling(ctx, appt.ClientID)
	if billingErr != nil || billing.StripeCustomerID == "" || billing.DefaultPaymentMethodID == "" {
		return s.recordAsDebt(ctx, appt, result, reason, "no payment method on file")
	}

	piID, chargeErr := s.charge.ChargeOffSession(ctx, payments.ChargeRequest{
		CustomerID:      billing.StripeCustomerID,
		PaymentMethodID: billing.DefaultPaymentMethodID,
		AmountCents:     fee,
		Description:     reason,
		IdempotencyKey:  "fee:" + req.FeeType + ":" + appt.ID,
		Metadata: map[string]string{
			"appointment_id": appt.ID,
			"fee_type":       req.FeeType,
		},
	})
	if chargeErr != nil {
		// Processor failure is data to record, not an error to surface.
		return s.recordAsDebt(ctx, appt, result, reason, payments.FailureMessage(chargeErr))
	}

	result.Outcome = OutcomeCharged
	result.StripePaymentIntentID = piID

	saleID, err := s.store.InsertSale(ctx, model.SaleTransaction{
		TrainerID:             appt.TrainerID,
		ClientID:              appt.ClientID,
		AppointmentID:         appt.ID,
		PaymentMethod:         model.PayCard,
		SubtotalCents:         fee,
		TotalCents:            fee,
		Status:                "completed",
		StripePaymentIntentID: piID,
	})
	if err != nil {
		// The charge already cleared; losing the sale row is an audit gap,
		// not a reason to fail the operation.
		s.logger.Error("fee sale insert failed", "err", err, "appointment_id", appt.ID)
	}
	result.SaleTransactionID = saleID

	s.emit(ctx, outbox.EventFeeRecorded, appt.ID, map[string]any{
		"appointment_id":      appt.ID,
		"fee_type":            req.FeeType,
		"fee_cents":           fee,
		"outcome":             string(OutcomeCharged),
		"sale_transaction_id": saleID,
	})
	return result, nil
}

func (s *Service) recordAsDebt(ctx context.Context, appt model.Appointment, result FeeResult, reason, failure string) (FeeResult, error) {
	entry := model.LedgerEntry{
		ClientID:      appt.ClientID,
		TrainerID:     appt.TrainerID,
		EntryType:     model.EntryDebit,
		AmountCents:   result.FeeAmountCents,
		Reason:        reason + " (uncollected: " + failure + ")",
		AppointmentID: appt.ID,
	}
	id, err := s.store.InsertLedgerEntry(ctx, entry)
	if err != nil {
		// Neither a sale nor a ledger entry exists; this is the one failure
		// the fee path cannot absorb.
		return FeeResult{}, err
	}
	entry.ID = id

	result.Outcome = OutcomeRecordedAsDebt
	result.LedgerEntryID = id
	result.LedgerEntry = &entry
	result.FailureReason = failure

	s.emit(ctx, outbox.EventFeeRecorded, appt.ID, map[string]any{
		"appointment_id":  appt.ID,
		"fee_cents":       result.FeeAmountCents,
		"outcome":         string(OutcomeRecordedAsDebt),
		"ledger_entry_id": id,
		"failure_reason":  failure,
	})
	return result, nil
}

// resolvePolicy implements the flat two-tier precedence: a policy scoped to
// the appointment's service type beats the trainer-global (empty service
// type) fallback.
func resolvePolicy(policies []model.CancellationPolicy, serviceTypeID string) (model.CancellationPolicy, bool) {
	for _, p := range policies {
		if p.ServiceTypeID == serviceTypeID {
			return p, true
		}
	}
	for _, p := range policies {
		if p.ServiceTypeID == "" {
			return p, true
		}
	}
	return model.CancellationPolicy{}, false
}
