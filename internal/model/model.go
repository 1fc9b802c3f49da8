package model

import "time"

// Appointment statuses. The lifecycle only moves forward:
// booked -> confirmed -> arrived -> completed, with no_show and the two
// cancellation statuses as terminal exits.
const (
	StatusBooked      = "booked"
	StatusConfirmed   = "confirmed"
	StatusArrived     = "arrived"
	StatusCompleted   = "completed"
	StatusNoShow      = "no_show"
	StatusEarlyCancel = "early_cancel"
	StatusLateCancel  = "late_cancel"
)

// Payment methods accepted at checkout.
const (
	PaySessionPack    = "session_pack"
	PayCard           = "card"
	PayCash           = "cash"
	PayAccountBalance = "account_balance"
	PaySplit          = "split"
	PayComp           = "comp"
)

// Ledger entry types.
const (
	EntryCredit = "credit"
	EntryDebit  = "debit"
)

// Fee types for the cancellation-fee path.
const (
	FeeLateCancel = "late_cancel"
	FeeNoShow     = "no_show"
)

// Visit statuses.
const (
	VisitCompleted = "completed"
	VisitNoShow    = "no_show"
)

type Appointment struct {
	ID              string
	TrainerID       string
	ClientID        string
	ServiceTypeID   string
	FacilityID      string
	StartAt         time.Time
	EndAt           time.Time
	Status          string
	ArrivedAt       *time.Time
	CompletedAt     *time.Time
	ClientServiceID string // empty when the appointment is not package-backed
	CreatedAt       time.Time
}

// ServiceType holds the duration and buffer math inputs for a bookable
// service. Current values govern buffer math; no snapshot is taken at booking.
type ServiceType struct {
	ID                  string
	Name                string
	DurationMinutes     int
	BufferAfterMinutes  int
	TravelBufferMinutes int
	CancelWindowMinutes int
	BasePriceCents      int64
	NumSessionsDeducted int
}

// StaffAvailability is one recurring weekly window. Times are minutes from
// midnight UTC; multiple non-overlapping blocks may exist per day.
type StaffAvailability struct {
	ID           string
	TrainerID    string
	DayOfWeek    int // 0 = Sunday
	StartMinutes int
	EndMinutes   int
	FacilityID   string
	IsActive     bool
}

// TrainerSettings carries per-trainer scheduling knobs. Rows are optional;
// callers fall back to the defaults below when none exists.
type TrainerSettings struct {
	TrainerID              string
	AutoNoShowMinutes      int
	BookingLeadTimeMinutes int
}

const (
	DefaultAutoNoShowMinutes      = 10
	DefaultBookingLeadTimeMinutes = 60
)

// ClientService is a purchased pack or subscription. A nil SessionsRemaining
// means unlimited (non-pack) service.
type ClientService struct {
	ID                   string
	ClientID             string
	TrainerID            string
	PricingOptionID      string
	SessionsRemaining    *int
	SessionsTotal        int
	IsActive             bool
	StripeSubscriptionID string
}

// CancellationPolicy defines fee amounts for a trainer. An empty
// ServiceTypeID marks the trainer-global fallback policy.
type CancellationPolicy struct {
	ID                 string
	TrainerID          string
	ServiceTypeID      string
	LateCancelFeeCents int64
	NoShowFeeCents     int64
	ForfeitSession     bool
}

// LedgerEntry is an append-only financial record. Never mutated after insert.
type LedgerEntry struct {
	ID                    string
	ClientID              string
	TrainerID             string
	EntryType             string
	AmountCents           int64
	Reason                string
	AppointmentID         string
	StripePaymentIntentID string
	CreatedAt             time.Time
}

type SaleTransaction struct {
	ID                    string
	TrainerID             string
	ClientID              string
	AppointmentID         string
	PaymentMethod         string
	SubtotalCents         int64
	TipCents              int64
	DiscountCents         int64
	TotalCents            int64
	Status                string
	StripePaymentIntentID string
	CreatedAt             time.Time
}

// Visit is the payroll/reporting record created once per terminal appointment
// outcome. It is best-effort audit data; the appointment status is the source
// of truth.
type Visit struct {
	ID                string
	AppointmentID     string
	ClientID          string
	TrainerID         string
	VisitStatus       string
	SessionsDeducted  int
	ServicePriceCents int64
	ClientServiceID   string
	PayrollProcessed  bool
}

// ClientBilling is the slice of a client row the settlement engine needs to
// talk to the payment processor.
type ClientBilling struct {
	ClientID               string
	TrainerID              string
	StripeCustomerID       string
	DefaultPaymentMethodID string
}
