package ledger

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

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

type balanceResponse struct {
	UserID  string               `json:"user_id"`
	Points  int64                `json:"points"`
	History []domain.LedgerEntry `json:"history"`
}

func (h *Handler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	account, err := h.repo.GetAccount(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get loyalty account", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := balanceResponse{UserID: userID, History: []domain.LedgerEntry{}}
	if account != nil {
		resp.Points = account.Points
	}

	history, err := h.repo.History(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to get points history", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	resp.History = history

	h.logger.Info("loyalty balance retrieved", "user_id", userID, "points", resp.Points)
	h.writeJSON(w, http.StatusOK, resp)
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
