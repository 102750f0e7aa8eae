package settlement

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/brewtab/brewtab/internal/domain"
	"github.com/brewtab/brewtab/internal/payment"
)

// Handler maps the settlement flow onto HTTP. Identity arrives as an
// X-User-ID header from the out-of-scope auth layer and is trusted here.
type Handler struct {
	orchestrator *Orchestrator
	logger       *slog.Logger
}

func NewHandler(orchestrator *Orchestrator, logger *slog.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

type checkoutRequest struct {
	CafeID     string     `json:"cafe_id"`
	Items      []CartItem `json:"items"`
	CouponCode string     `json:"coupon_code,omitempty"`
	UsePoints  bool       `json:"use_points"`
	OrderType  string     `json:"order_type,omitempty"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.orchestrator.Checkout(r.Context(), CheckoutRequest{
		UserID:     userID,
		CafeID:     req.CafeID,
		Items:      req.Items,
		CouponCode: req.CouponCode,
		UsePoints:  req.UsePoints,
		OrderType:  domain.OrderType(req.OrderType),
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	status := http.StatusCreated
	if result.PendingReconciliation {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, result)
}

func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	result, err := h.orchestrator.Confirm(r.Context(), id, r.Header.Get("X-User-ID"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	status := http.StatusOK
	if result.PendingReconciliation {
		status = http.StatusAccepted
	} else if !result.Success {
		status = http.StatusPaymentRequired
	}
	h.writeJSON(w, status, result)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orchestrator.Cancel(r.Context(), id, r.Header.Get("X-User-ID"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// HandleWebhook receives processor events. The raw body is needed for
// signature verification, so it is read before any decoding.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	err = h.orchestrator.HandleWebhookEvent(r.Context(), payload, r.Header.Get("X-Processor-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrSignatureInvalid) {
			h.writeError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		if errors.Is(err, domain.ErrOrderNotFound) {
			// Unknown order id in a signed event: acknowledge so the
			// processor stops retrying, but log it.
			h.logger.Warn("webhook for unknown order", "error", err)
			h.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		h.logger.Error("failed to process webhook", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// writeFailure maps the settlement error taxonomy onto HTTP statuses with
// user-presentable messages. Internal errors are logged and masked.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrItemNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInsufficientPoints):
		h.writeError(w, http.StatusPaymentRequired, "Insufficient points balance")
	case errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrPermissionDenied):
		h.writeError(w, http.StatusForbidden, "order does not belong to caller")
	case errors.Is(err, domain.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrCouponExhausted):
		h.writeError(w, http.StatusConflict, "This coupon has reached its usage limit")
	default:
		var gerr *payment.GatewayError
		if errors.As(err, &gerr) {
			h.writeError(w, http.StatusBadGateway, gerr.Message)
			return
		}
		h.logger.Error("settlement failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Something went wrong, please try again")
	}
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
