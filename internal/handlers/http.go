// Package handlers exposes the scheduling engine over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/trainwell/scheduling-engine/internal/availability"
	"github.com/trainwell/scheduling-engine/internal/engine"
	"github.com/trainwell/scheduling-engine/internal/httpx"
	"github.com/trainwell/scheduling-engine/internal/noshow"
	"github.com/trainwell/scheduling-engine/internal/scoring"
	"github.com/trainwell/scheduling-engine/internal/settlement"
)

// SlotGenerator produces the bookable grid for a trainer/service/date.
type SlotGenerator interface {
	Slots(ctx context.Context, trainerID, serviceTypeID, date string) (availability.Result, error)
}

// Settlement is the checkout and fee surface.
type Settlement interface {
	ProcessCheckout(ctx context.Context, req settlement.CheckoutRequest) (settlement.CheckoutResult, error)
	ChargeCancellationFee(ctx context.Context, req settlement.FeeRequest) (settlement.FeeResult, error)
	MarkConfirmed(ctx context.Context, appointmentID string) error
	MarkArrived(ctx context.Context, appointmentID string) error
}

// Sweeper runs one no-show reconciliation pass on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (noshow.Report, error)
}

type Handler struct {
	slots      SlotGenerator
	settlement Settlement
	sweeper    Sweeper
	logger     *slog.Logger
}

func New(slots SlotGenerator, settle Settlement, sweeper Sweeper, logger *slog.Logger) *Handler {
	return &Handler{slots: slots, settlement: settle, sweeper: sweeper, logger: logger}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/slots", h.GetSlots)
	mux.HandleFunc("/v1/slots/rank", h.RankSlots)
	mux.HandleFunc("/v1/schedule/insight", h.ScheduleInsight)
	mux.HandleFunc("/v1/appointments/confirm", h.ConfirmAppointment)
	mux.HandleFunc("/v1/appointments/arrive", h.ArriveAppointment)
	mux.HandleFunc("/v1/checkout", h.Checkout)
	mux.HandleFunc("/v1/cancellation-fee", h.CancellationFee)
	mux.HandleFunc("/internal/reconcile", h.Reconcile)
}

// writeDomainError maps engine sentinels onto status codes. Anything
// unrecognized is a 500 with a generic message; the detail goes to the log.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrPrecondition):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrNoPaymentMethod), errors.Is(err, engine.ErrPaymentDeclined):
		httpx.WriteError(w, http.StatusPaymentRequired, err.Error())
	default:
		h.logger.Error("request failed", "err", err, "path", r.URL.Path)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

type slotResponse struct {
	Time          string `json:"time"`
	Available     bool   `json:"available"`
	BlockedReason string `json:"blocked_reason,omitempty"`
}

func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	trainerID := strings.TrimSpace(q.Get("trainer_id"))
	serviceTypeID := strings.TrimSpace(q.Get("service_type_id"))
	date := strings.TrimSpace(q.Get("date"))
	if trainerID == "" || serviceTypeID == "" || date == "" {
		httpx.WriteError(w, http.StatusBadRequest, "trainer_id, service_type_id and date are required")
		return
	}

	result, err := h.slots.Slots(r.Context(), trainerID, serviceTypeID, date)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]slotResponse, 0, len(result.Slots))
	for _, s := range result.Slots {
		out = append(out, slotResponse{
			Time:          s.Time.UTC().Format(time.RFC3339),
			Available:     s.Available,
			BlockedReason: s.BlockedReason,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"slots":                    out,
		"service_duration_minutes": result.ServiceDurationMinutes,
	})
}

type appointmentJSON struct {
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
	Status  string `json:"status"`
}

func parseAppointments(in []appointmentJSON) ([]scoring.Appointment, error) {
	out := make([]scoring.Appointment, 0, len(in))
	for _, a := range in {
		start, err := time.Parse(time.RFC3339, a.StartAt)
		if err != nil {
			return nil, engine.Validationf("invalid start_at %q", a.StartAt)
		}
		end, err := time.Parse(time.RFC3339, a.EndAt)
		if err != nil {
			return nil, engine.Validationf("invalid end_at %q", a.EndAt)
		}
		out = append(out, scoring.Appointment{Start: start.UTC(), End: end.UTC(), Status: a.Status})
	}
	return out, nil
}

type rankRequest struct {
	Slots                []string          `json:"slots"`
	ExistingAppointments []appointmentJSON `json:"existing_appointments"`
	SlotDurationMinutes  int               `json:"slot_duration_minutes"`
}

type scoredSlotResponse struct {
	Time           string `json:"time"`
	Score          int    `json:"score"`
	AdjacentBefore bool   `json:"adjacent_before"`
	AdjacentAfter  bool   `json:"adjacent_after"`
	NearbyBefore   bool   `json:"nearby_before"`
	NearbyAfter    bool   `json:"nearby_after"`
	IsRecommended  bool   `json:"is_recommended"`
}

func (h *Handler) RankSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req rankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.SlotDurationMinutes <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "slot_duration_minutes must be positive")
		return
	}

	starts := make([]time.Time, 0, len(req.Slots))
	for _, s := range req.Slots {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid slot time "+s)
			return
		}
		starts = append(starts, t.UTC())
	}

	existing, err := parseAppointments(req.ExistingAppointments)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	scored := scoring.RankSlots(starts, existing, time.Duration(req.SlotDurationMinutes)*time.Minute)
	out := make([]scoredSlotResponse, 0, len(scored))
	for _, s := range scored {
		out = append(out, scoredSlotResponse{
			Time:           s.Time.UTC().Format(time.RFC3339),
			Score:          s.Score,
			AdjacentBefore: s.AdjacentBefore,
			AdjacentAfter:  s.AdjacentAfter,
			NearbyBefore:   s.NearbyBefore,
			NearbyAfter:    s.NearbyAfter,
			IsRecommended:  s.IsRecommended,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"slots": out})
}

type insightRequest struct {
	Date              string            `json:"date"`
	Appointments      []appointmentJSON `json:"appointments"`
	AvailabilityStart string            `json:"availability_start"`
	AvailabilityEnd   string            `json:"availability_end"`
}

func (h *Handler) ScheduleInsight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req insightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	start, err := time.Parse(time.RFC3339, req.AvailabilityStart)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid availability_start")
		return
	}
	end, err := time.Parse(time.RFC3339, req.AvailabilityEnd)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid availability_end")
		return
	}

	appts, err := parseAppointments(req.Appointments)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	in := scoring.ComputeInsight(req.Date, appts, start.UTC(), end.UTC())
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"date":                req.Date,
		"utilization_pct":     in.UtilizationPct,
		"booked_minutes":      in.BookedMinutes,
		"available_minutes":   in.AvailableMinutes,
		"gap_count":           in.GapCount,
		"largest_gap_minutes": in.LargestGapMinutes,
	})
}

type appointmentIDRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *Handler) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	h.lifecycleEdge(w, r, h.settlement.MarkConfirmed)
}

func (h *Handler) ArriveAppointment(w http.ResponseWriter, r *http.Request) {
	h.lifecycleEdge(w, r, h.settlement.MarkArrived)
}

func (h *Handler) lifecycleEdge(w http.ResponseWriter, r *http.Request, apply func(context.Context, string) error) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req appointmentIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := apply(r.Context(), strings.TrimSpace(req.AppointmentID)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

type checkoutBody struct {
	AppointmentID   string `json:"appointment_id"`
	PaymentMethod   string `json:"payment_method"`
	ClientServiceID string `json:"client_service_id,omitempty"`
	TipCents        int64  `json:"tip_cents,omitempty"`
	DiscountCents   int64  `json:"discount_cents,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req checkoutBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	result, err := h.settlement.ProcessCheckout(r.Context(), settlement.CheckoutRequest{
		AppointmentID:   strings.TrimSpace(req.AppointmentID),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		ClientServiceID: strings.TrimSpace(req.ClientServiceID),
		TipCents:        req.TipCents,
		DiscountCents:   req.DiscountCents,
		Notes:           req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := map[string]any{
		"success":             true,
		"sale_transaction_id": result.SaleTransactionID,
	}
	if result.SessionsRemaining != nil {
		resp["sessions_remaining"] = *result.SessionsRemaining
	}
	if result.StripePaymentIntentID != "" {
		resp["stripe_payment_intent_id"] = result.StripePaymentIntentID
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type feeBody struct {
	AppointmentID string `json:"appointment_id"`
	FeeType       string `json:"fee_type"`
}

// CancellationFee charges a late-cancel or no-show fee. A processor decline is
// a successful response with charged=false and a ledger entry; only
// validation, lookup and ledger failures produce error statuses.
func (h *Handler) CancellationFee(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req feeBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	result, err := h.settlement.ChargeCancellationFee(r.Context(), settlement.FeeRequest{
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		FeeType:       strings.TrimSpace(req.FeeType),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := map[string]any{
		"success":          true,
		"outcome":          string(result.Outcome),
		"charged":          result.Charged(),
		"fee_amount_cents": result.FeeAmountCents,
	}
	if result.StripePaymentIntentID != "" {
		resp["stripe_payment_intent_id"] = result.StripePaymentIntentID
	}
	if result.SaleTransactionID != "" {
		resp["sale_transaction_id"] = result.SaleTransactionID
	}
	if result.LedgerEntry != nil {
		resp["ledger_entry"] = map[string]any{
			"id":           result.LedgerEntry.ID,
			"entry_type":   result.LedgerEntry.EntryType,
			"amount_cents": result.LedgerEntry.AmountCents,
			"reason":       result.LedgerEntry.Reason,
		}
	}
	if result.FailureReason != "" {
		resp["failure_reason"] = result.FailureReason
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Reconcile triggers one no-show sweep outside the ticker, for ops runbooks.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	report, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}
