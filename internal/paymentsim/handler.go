package paymentsim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brewtab/brewtab/internal/payment"
)

// Charges stay pending until the first confirmation poll resolves them.
// The metadata key "simulate" steers the outcome: "decline" fails the charge
// with decline_reason (default "card_declined"), anything else succeeds.
type Handler struct {
	store         *Store
	apiKey        string
	webhookSecret string
	webhookURL    string
	httpClient    *http.Client
	logger        *slog.Logger
}

func NewHandler(store *Store, apiKey, webhookSecret, webhookURL string, client *http.Client, logger *slog.Logger) *Handler {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Handler{
		store:         store,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		webhookURL:    webhookURL,
		httpClient:    client,
		logger:        logger,
	}
}

func (h *Handler) HandleCreateCharge(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	var req payment.ChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		h.writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}
	if req.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	charge, created, err := h.store.CreateCharge(&ChargeRecord{
		Handle:       "ch_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		OrderID:      req.OrderID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		ClientSecret: "cs_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Metadata:     req.Metadata,
	})
	if err != nil {
		h.logger.Error("failed to create charge", "error", err, "order_id", req.OrderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}

	h.logger.Info("charge created", "handle", charge.Handle, "order_id", charge.OrderID, "amount", charge.Amount, "new", created)
	h.writeJSON(w, status, payment.Charge{
		Handle:       charge.Handle,
		ClientSecret: charge.ClientSecret,
	})
}

func (h *Handler) HandleConfirmCharge(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	handle := r.PathValue("handle")

	charge, err := h.store.GetCharge(handle)
	if err != nil {
		if errors.Is(err, ErrChargeNotFound) {
			h.writeError(w, http.StatusNotFound, "charge not found")
			return
		}
		h.logger.Error("failed to load charge", "error", err, "handle", handle)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if charge.State == ChargePending {
		state, reason := h.simulatedOutcome(charge)

		var resolved bool
		charge, resolved, err = h.store.ResolveCharge(handle, state, reason)
		if err != nil {
			h.logger.Error("failed to resolve charge", "error", err, "handle", handle)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if resolved {
			h.logger.Info("charge resolved", "handle", handle, "state", charge.State)
			go h.deliverWebhook(*charge)
		}
	}

	h.writeJSON(w, http.StatusOK, payment.ChargeStatus{
		Paid:          charge.State == ChargeSucceeded,
		FailureReason: charge.FailureReason,
	})
}

type refundRequest struct {
	Handle string `json:"handle"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (h *Handler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Handle == "" {
		h.writeError(w, http.StatusBadRequest, "handle is required")
		return
	}

	refund, created, err := h.store.CreateRefund(&RefundRecord{
		RefundID: "re_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Handle:   req.Handle,
		Amount:   req.Amount,
		Reason:   req.Reason,
		Status:   "processed",
	})
	if err != nil {
		if errors.Is(err, ErrChargeNotFound) {
			h.writeError(w, http.StatusNotFound, "charge not found")
			return
		}
		h.logger.Error("failed to create refund", "error", err, "handle", req.Handle)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("refund recorded", "refund_id", refund.RefundID, "handle", refund.Handle, "new", created)
	h.writeJSON(w, http.StatusOK, payment.RefundResult{
		RefundID: refund.RefundID,
		Status:   refund.Status,
	})
}

func (h *Handler) simulatedOutcome(charge *ChargeRecord) (ChargeState, string) {
	if charge.Metadata["simulate"] == "decline" {
		reason := charge.Metadata["decline_reason"]
		if reason == "" {
			reason = "card_declined"
		}
		return ChargeFailed, reason
	}
	return ChargeSucceeded, ""
}

// deliverWebhook posts a signed lifecycle event to the configured endpoint.
// Delivery is best-effort: the receiver reconciles pending orders from these
// events, and a miss only delays that reconciliation until a retry or a
// confirmation poll.
func (h *Handler) deliverWebhook(charge ChargeRecord) {
	if h.webhookURL == "" {
		return
	}

	eventType := payment.EventChargeSucceeded
	if charge.State == ChargeFailed {
		eventType = payment.EventChargeFailed
	}

	payload, err := json.Marshal(payment.Event{
		ID:            "evt_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Type:          eventType,
		OrderID:       charge.OrderID,
		Handle:        charge.Handle,
		FailureReason: charge.FailureReason,
	})
	if err != nil {
		h.logger.Error("failed to marshal webhook event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.webhookURL, bytes.NewReader(payload))
	if err != nil {
		h.logger.Error("failed to build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Processor-Signature", payment.SignPayload(payload, h.webhookSecret, time.Now()))

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Error("webhook delivery failed", "error", err, "handle", charge.Handle)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	h.logger.Info("webhook delivered", "handle", charge.Handle, "type", eventType, "status", resp.StatusCode)
}

func (h *Handler) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+h.apiKey
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
