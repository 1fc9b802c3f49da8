package settlement

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/trainwell/scheduling-engine/internal/model"
	"github.com/trainwell/scheduling-engine/internal/outbox"
)

func feeStore() *fakeStore {
	store := fixtureStore()
	a := store.appointments["appt-1"]
	a.Status = model.StatusNoShow
	store.appointments["appt-1"] = a
	store.policies = []model.CancellationPolicy{{
		ID:                 "pol-global",
		TrainerID:          "trainer-1",
		LateCancelFeeCents: 1500,
		NoShowFeeCents:     2500,
	}}
	return store
}

func TestChargeCancellationFee_Charged(t *testing.T) {
	store := feeStore()
	store.billing["client-1"] = model.ClientBilling{
		ClientID:               "client-1",
		StripeCustomerID:       "cus_1",
		DefaultPaymentMethodID: "pm_1",
	}
	charger := &fakeCharger{}
	events := &fakeEvents{}
	svc := New(store, charger, events, testLogger())

	res, err := svc.ChargeCancellationFee(context.Background(), FeeRequest{
		AppointmentID: "appt-1",
		FeeType:       model.FeeNoShow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Charged() || res.FeeAmountCents != 2500 {
		t.Fatalf("expected a 2500 charge, got %+v", res)
	}
	if len(charger.charges) != 1 || charger.charges[0].AmountCents != 2500 {
		t.Fatalf("unexpected charges %+v", charger.charges)
	}
	if len(store.sales) != 1 || len(store.ledger) != 0 {
		t.Fatalf("a cleared charge records a sale and no ledger debit, got %d/%d", len(store.sales), len(store.ledger))
	}
	if len(events.events) != 1 || events.events[0].EventType != outbox.EventFeeRecorded {
		t.Fatalf("expected a fee event, got %+v", events.events)
	}
}

func TestChargeCancellationFee_DeclineBecomesDebt(t *testing.T) {
	store := feeStore()
	store.billing["client-1"] = model.ClientBilling{
		ClientID:               "client-1",
		StripeCustomerID:       "cus_1",
		DefaultPaymentMethodID: "pm_1",
	}
	charger := &fakeCharger{err: errors.New("card_declined")}
	svc := New(store, charger, nil, testLogger())

	res, err := svc.ChargeCancellationFee(context.Background(), FeeRequest{
		AppointmentID: "appt-1",
		FeeType:       model.FeeNoShow,
	})
	if err != nil {
		t.Fatalf("a decline on the fee path must not be an error: %v", err)
	}
	if res.Outcome != OutcomeRecordedAsDebt || res.Charged() {
		t.Fatalf("expected recorded_as_debt, got %+v", res)
	}
	if res.FeeAmountCents != 2500 || res.LedgerEntryID == "" {
		t.Fatalf("debt must carry the fee amount and a ledger reference, got %+v", res)
	}
	if len(store.sales) != 0 {
		t.Fatal("a declined fee must not record a sale")
	}
	if len(store.ledger) != 1 || store.ledger[0].EntryType != model.EntryDebit {
		t.Fatalf("expected one debit ledger entry, got %+v", store.ledger)
	}
	if !strings.Contains(store.ledger[0].Reason, "uncollected") {
		t.Fatalf("debit reason should name the failure, got %q", store.ledger[0].Reason)
	}
}

func TestChargeCancellationFee_NoPaymentMethodBecomesDebt(t *testing.T) {
	store := feeStore() // no billing row at all
	charger := &fakeCharger{}
	svc := New(store, charger, nil, testLogger())

	res, err := svc.ChargeCancellationFee(context.Background(), FeeRequest{
		AppointmentID: "appt-1",
		FeeType:       model.FeeLateCancel,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeRecordedAsDebt || res.FeeAmountCents != 1500 {
		t.Fatalf("expected 1500 debt, got %+v", res)
	}
	if len(charger.charges) != 0 {
		t.Fatal("no charge may be attempted without a payment method")
	}
	if res.FailureReason != "no payment method on file" {
		t.Fatalf("unexpected failure reason %q", res.FailureReason)
	}
}

func TestChargeCancellationFee_NoPolicyMeansNoFee(t *testing.T) {
	store := feeStore()
	store.policies = nil
	svc := New(store, &fakeCharger{}, nil, testLogger())

	res, err := svc.ChargeCancellationFee(context.Background(), FeeRequest{
		AppointmentID: "appt-1",
		FeeType:       model.FeeNoShow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeNoFee {
		t.Fatalf("expected no_fee, got %+v", res)
	}
	if len(store.sales) != 0 || len(store.ledger) != 0 {
		t.Fatal("no_fee must not touch sales or the ledger")
	}
}

func TestChargeCancellationFee_ServicePolicyBeatsGlobal(t *testing.T) {
	store := feeStore()
	store.policies = append([]model.CancellationPolicy{{
		ID:             "pol-svc",
		TrainerID:      "trainer-1",
		ServiceTypeID:  "svc-1",
		NoShowFeeCents: 4000,
	}}, store.policies...)
	store.billing["client-1"] = model.ClientBilling{
		ClientID:               "client-1",
		StripeCustomerID:       "cus_1",
		DefaultPaymentMethodID: "pm_1",
	}
	svc := New(store, &fakeCharger{}, nil, testLogger())

	res, err := svc.ChargeCancellationFee(context.Background(), FeeRequest{
		AppointmentID: "appt-1",
		FeeType:       model.FeeNoShow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FeeAmountCents != 4000 {
		t.Fatalf("service-scoped policy should win, got %d", res.FeeAmountCents)
	}
}

func TestChargeCancellationFee_ForfeitSessionDeducts(t *testing.T) {
	store := feeStore()
	store.policies[0].ForfeitSession = true
	a := store.appointments["appt-1"]
	a.ClientServiceID = "cs-1"
	store.appointments["appt-1"] = a
	three := 3
	store.sessions["cs-1"] = &three
	svc := New(store, &fakeCharger{}, nil, testLogger())

	if _, err := svc.ChargeCancellationFee(context.Background(), FeeRequest{
		AppointmentID: "appt-1",
		FeeType:       model.FeeNoShow,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := *store.sessions["cs-1"]; got != 2 {
		t.Fatalf("expected forfeit to leave 2 sessions, got %d", got)
	}
}

func TestChargeCancellationFee_ForfeitFailureDoesNotBlockFee(t *testing.T) {
	store := feeStore()
	store.policies[0].ForfeitSession = true
	a := store.appointments["appt-1"]
	a.ClientServiceID = "cs-1"
	store.appointments["appt-1"] = a
	store.deductErr = errors.New("db down")
	svc := New(store, &fakeCharger{}, nil, testLogger())

	res, err := svc.ChargeCancellationFee(context.Background(), FeeRequest{
		AppointmentID: "appt-1",
		FeeType:       model.FeeNoShow,
	})
	if err != nil {
		t.Fatalf("a failed forfeit must not block the fee: %v", err)
	}
	if res.Outcome != OutcomeRecordedAsDebt {
		t.Fatalf("fee path should still run, got %+v", res)
	}
}

func TestChargeCancellationFee_InvalidInput(t *testing.T) {
	svc := New(feeStore(), &fakeCharger{}, nil, testLogger())

	if _, err := svc.ChargeCancellationFee(context.Background(), FeeRequest{FeeType: model.FeeNoShow}); err == nil {
		t.Fatal("expected error for missing appointment id")
	}
	if _, err := svc.ChargeCancellationFee(context.Background(), FeeRequest{AppointmentID: "appt-1", FeeType: "surcharge"}); err == nil {
		t.Fatal("expected error for unknown fee type")
	}
}
