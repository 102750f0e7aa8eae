package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/brewtab/brewtab/internal/domain"
)

// ReceiptHandler turns settlement events into customer notifications. Stock
// and points were already committed by the settlement transaction, so this
// worker only has delivery-side effects and is safe to re-run on redelivery.
type ReceiptHandler struct {
	notifyServiceURL string
	httpClient       *http.Client
	logger           *slog.Logger
}

func NewReceiptHandler(notifyServiceURL string, client *http.Client, logger *slog.Logger) *ReceiptHandler {
	return &ReceiptHandler{
		notifyServiceURL: notifyServiceURL,
		httpClient:       client,
		logger:           logger,
	}
}

func (h *ReceiptHandler) HandleSettled(ctx context.Context, payload []byte) error {
	var event domain.OrderSettledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order settled event: %w", err)
	}

	h.logger.Info("processing order settled event", "order_id", event.OrderID, "user_id", event.UserID)

	body := fmt.Sprintf("Your order %s is confirmed. Total: $%.2f.", event.OrderNumber, float64(event.TotalAmount)/100)
	if event.PointsEarned > 0 {
		body += fmt.Sprintf(" You earned %d points.", event.PointsEarned)
	}

	if err := h.send(ctx, event.UserID, "Receipt for "+event.OrderNumber, body); err != nil {
		h.logger.Error("failed to send receipt", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send receipt: %w", err)
	}

	h.logger.Info("receipt sent", "order_id", event.OrderID)
	return nil
}

func (h *ReceiptHandler) HandleCancelled(ctx context.Context, payload []byte) error {
	var event domain.OrderCancelledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order cancelled event: %w", err)
	}

	h.logger.Info("processing order cancelled event", "order_id", event.OrderID, "user_id", event.UserID)

	body := fmt.Sprintf("Your order %s has been cancelled.", event.OrderNumber)
	switch event.RefundStatus {
	case string(domain.RefundStatusProcessed):
		body += fmt.Sprintf(" A refund of $%.2f is on its way.", float64(event.RefundAmount)/100)
	case string(domain.RefundStatusFailed):
		body += " We could not process your refund automatically; support will reach out."
	}

	if err := h.send(ctx, event.UserID, "Order cancelled: "+event.OrderNumber, body); err != nil {
		h.logger.Error("failed to send cancellation notice", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send cancellation notice: %w", err)
	}

	h.logger.Info("cancellation notice sent", "order_id", event.OrderID)
	return nil
}

func (h *ReceiptHandler) send(ctx context.Context, userID, subject, body string) error {
	payload := map[string]string{
		"to":      userID,
		"subject": subject,
		"body":    body,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.notifyServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify service returned status %d", resp.StatusCode)
	}

	return nil
}
