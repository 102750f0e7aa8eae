package coupon

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/brewtab/brewtab/internal/domain"
)

// Handler exposes the strict validation endpoint. Unlike checkout, which
// silently drops an invalid coupon, this endpoint fails with the concrete
// reason so the cart UI can show it before payment starts.
type Handler struct {
	repo   *Repository
	logger *slog.Logger
}

func NewHandler(repo *Repository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

type validateRequest struct {
	Code       string `json:"code"`
	CafeID     string `json:"cafe_id"`
	OrderTotal int64  `json:"order_total"`
}

type validateResponse struct {
	Valid          bool   `json:"valid"`
	DiscountAmount int64  `json:"discount_amount"`
	CouponType     string `json:"coupon_type"`
}

func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		h.writeError(w, http.StatusBadRequest, "missing coupon code")
		return
	}

	c, err := h.repo.GetByCode(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, domain.ErrCouponNotFound) {
			h.writeError(w, http.StatusNotFound, "Invalid coupon code")
			return
		}
		h.logger.Error("failed to look up coupon", "error", err, "code", req.Code)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	priorUses, err := h.repo.CountUserUsage(r.Context(), c.ID, userID)
	if err != nil {
		h.logger.Error("failed to count coupon usage", "error", err, "coupon_id", c.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := Validate(c, priorUses, req.CafeID, req.OrderTotal, time.Now().UTC()); err != nil {
		if reason, ok := domain.InvalidCoupon(err); ok {
			h.writeError(w, http.StatusUnprocessableEntity, reason.Reason)
			return
		}
		h.logger.Error("coupon validation failed", "error", err, "code", req.Code)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("coupon validated", "code", c.Code, "user_id", userID)
	h.writeJSON(w, http.StatusOK, validateResponse{
		Valid:          true,
		DiscountAmount: ComputeDiscount(c, req.OrderTotal, nil),
		CouponType:     string(c.Type),
	})
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
