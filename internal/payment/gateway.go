package payment

import (
	"context"
	"errors"
	"fmt"
)

// ErrOutcomeUnknown marks an ambiguous gateway call (timeout, dropped
// connection after send). The charge may have succeeded on the processor's
// side, so callers must leave the order unconfirmed and wait for the webhook
// rather than retry with a new charge.
var ErrOutcomeUnknown = errors.New("payment outcome unknown")

// ErrSignatureInvalid is returned for webhook payloads that fail HMAC
// verification.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// GatewayError wraps a definite processor-side rejection.
type GatewayError struct {
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway: %s", e.Message)
}

type ChargeRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	OrderID  string            `json:"order_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Charge is the client-facing handle for a created payment intent.
type Charge struct {
	Handle       string `json:"handle"`
	ClientSecret string `json:"client_secret"`
}

type ChargeStatus struct {
	Paid          bool   `json:"paid"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type RefundResult struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"` // processed | failed
}

// Event types delivered by processor webhooks.
const (
	EventChargeSucceeded = "charge.succeeded"
	EventChargeFailed    = "charge.failed"
)

// Event is a verified webhook event. OrderID comes from the charge metadata.
type Event struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	OrderID       string `json:"order_id"`
	Handle        string `json:"handle"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Gateway wraps the third-party payment processor. Implementations are
// injected into the settlement orchestrator so tests can substitute a fake.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	ConfirmCharge(ctx context.Context, handle string) (*ChargeStatus, error)
	Refund(ctx context.Context, handle string, amount int64, reason string) (*RefundResult, error)
	VerifyWebhookSignature(payload []byte, signature string) (*Event, error)
}
