package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FakeGateway is an in-memory Gateway for tests. Charges succeed unless the
// test flips FailNext or marks a specific handle as declined.
type FakeGateway struct {
	mu            sync.Mutex
	seq           int
	charges       map[string]*fakeCharge
	refunds       []RefundResult
	webhookSecret string

	FailNext      bool   // next CreateCharge returns a GatewayError
	TimeoutNext   bool   // next CreateCharge returns ErrOutcomeUnknown
	RefundStatus  string // status for Refund results, default "processed"
	DeclineReason string // when set, ConfirmCharge reports unpaid with this reason
}

type fakeCharge struct {
	req  ChargeRequest
	paid bool
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		charges:       make(map[string]*fakeCharge),
		webhookSecret: "fake-secret",
		RefundStatus:  "processed",
	}
}

func (g *FakeGateway) CreateCharge(_ context.Context, req ChargeRequest) (*Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.TimeoutNext {
		g.TimeoutNext = false
		return nil, ErrOutcomeUnknown
	}
	if g.FailNext {
		g.FailNext = false
		return nil, &GatewayError{Message: "card declined"}
	}

	g.seq++
	handle := fmt.Sprintf("ch_%04d", g.seq)
	g.charges[handle] = &fakeCharge{req: req, paid: g.DeclineReason == ""}

	return &Charge{
		Handle:       handle,
		ClientSecret: handle + "_secret",
	}, nil
}

func (g *FakeGateway) ConfirmCharge(_ context.Context, handle string) (*ChargeStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	charge, ok := g.charges[handle]
	if !ok {
		return nil, &GatewayError{Message: "no such charge"}
	}

	if !charge.paid {
		return &ChargeStatus{Paid: false, FailureReason: g.DeclineReason}, nil
	}
	return &ChargeStatus{Paid: true}, nil
}

func (g *FakeGateway) Refund(_ context.Context, handle string, amount int64, reason string) (*RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.charges[handle]; !ok {
		return nil, &GatewayError{Message: "no such charge"}
	}

	g.seq++
	result := RefundResult{
		RefundID: fmt.Sprintf("re_%04d", g.seq),
		Status:   g.RefundStatus,
	}
	g.refunds = append(g.refunds, result)
	return &result, nil
}

func (g *FakeGateway) VerifyWebhookSignature(payload []byte, signature string) (*Event, error) {
	if err := VerifySignature(payload, signature, g.webhookSecret, 0, time.Now()); err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ErrSignatureInvalid
	}
	return &event, nil
}

// Sign produces a valid signature for a webhook payload against the fake's
// secret, for use in handler tests.
func (g *FakeGateway) Sign(payload []byte) string {
	return SignPayload(payload, g.webhookSecret, time.Now())
}

// ChargeCount reports how many charges were created.
func (g *FakeGateway) ChargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}

// Refunds returns a copy of the refunds issued so far.
func (g *FakeGateway) Refunds() []RefundResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]RefundResult(nil), g.refunds...)
}
