// Package payments wraps the payment processor behind the one operation the
// engine needs: charging a stored payment method off-session.
package payments

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

// ChargeRequest describes one off-session charge attempt. AmountCents must be
// positive; callers skip zero-amount charges entirely.
type ChargeRequest struct {
	CustomerID      string
	PaymentMethodID string
	AmountCents     int64
	Description     string
	IdempotencyKey  string
	Metadata        map[string]string
}

// Charger is the processor abstraction the settlement engine talks to.
// Charges are synchronous round-trips with no built-in retry; a failed charge
// is recorded by the caller, never retried here.
type Charger interface {
	ChargeOffSession(ctx context.Context, req ChargeRequest) (paymentIntentID string, err error)
}

type StripeCharger struct {
	logger   *slog.Logger
	currency string
}

func NewStripeCharger(secretKey string, logger *slog.Logger) *StripeCharger {
	// Stripe uses a process-global API key.
	stripe.Key = secretKey
	return &StripeCharger{logger: logger, currency: string(stripe.CurrencyUSD)}
}

func (c *StripeCharger) ChargeOffSession(ctx context.Context, req ChargeRequest) (string, error) {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context:  ctx,
			Metadata: req.Metadata,
		},
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(c.currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
		Description:   stripe.String(req.Description),
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		c.logger.Warn("stripe off-session charge failed",
			"err", err,
			"customer", req.CustomerID,
			"amount_cents", req.AmountCents,
		)
		return "", err
	}
	return pi.ID, nil
}

// FailureMessage extracts the processor's human-readable decline reason for
// audit records, falling back to the raw error text.
func FailureMessage(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
