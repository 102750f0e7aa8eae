package rewards

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/brewtab/brewtab/internal/domain"
)

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

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.repo.ListActive(r.Context())
	if err != nil {
		h.logger.Error("failed to list rewards", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, rewards)
}

func (h *Handler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	rewardID := r.PathValue("id")
	if rewardID == "" {
		h.writeError(w, http.StatusBadRequest, "missing reward id")
		return
	}

	redemption, err := h.repo.Redeem(r.Context(), rewardID, userID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRewardNotFound):
			h.writeError(w, http.StatusNotFound, "reward not found")
		case errors.Is(err, domain.ErrRewardSoldOut):
			h.writeError(w, http.StatusConflict, "This reward is sold out")
		case errors.Is(err, domain.ErrInsufficientPoints):
			h.writeError(w, http.StatusPaymentRequired, "Insufficient points balance")
		default:
			h.logger.Error("failed to redeem reward", "error", err, "reward_id", rewardID, "user_id", userID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("reward redeemed", "reward_id", rewardID, "user_id", userID, "points", redemption.PointsCost)
	h.writeJSON(w, http.StatusCreated, redemption)
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
