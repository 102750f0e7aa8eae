package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ProcessorClient is the HTTP Gateway implementation talking to the payment
// processor's REST API (the paymentsim service in local setups). The client
// timeout is deliberate: when it fires, the outcome is unknown and the call
// maps to ErrOutcomeUnknown instead of a failure.
type ProcessorClient struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	httpClient    *http.Client
	tolerance     time.Duration
}

func NewProcessorClient(baseURL, apiKey, webhookSecret string, client *http.Client) *ProcessorClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ProcessorClient{
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		httpClient:    client,
		tolerance:     DefaultSignatureTolerance,
	}
}

func (c *ProcessorClient) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	var charge Charge
	if err := c.post(ctx, "/charges", req, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

func (c *ProcessorClient) ConfirmCharge(ctx context.Context, handle string) (*ChargeStatus, error) {
	var status ChargeStatus
	if err := c.get(ctx, "/charges/"+handle, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *ProcessorClient) Refund(ctx context.Context, handle string, amount int64, reason string) (*RefundResult, error) {
	body := map[string]any{
		"handle": handle,
		"amount": amount,
		"reason": reason,
	}

	var result RefundResult
	if err := c.post(ctx, "/refunds", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *ProcessorClient) VerifyWebhookSignature(payload []byte, signature string) (*Event, error) {
	if err := VerifySignature(payload, signature, c.webhookSecret, c.tolerance, time.Now()); err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ErrSignatureInvalid
	}

	return &event, nil
}

func (c *ProcessorClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *ProcessorClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, out)
}

func (c *ProcessorClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A timed-out or interrupted request may still have been processed.
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrOutcomeUnknown
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrOutcomeUnknown
		}
		return &GatewayError{Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = fmt.Sprintf("processor returned status %d", resp.StatusCode)
		}
		return &GatewayError{Message: body.Error}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
