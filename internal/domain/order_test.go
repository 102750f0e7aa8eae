package domain

import "testing"

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
		OrderStatusConfirmed: {OrderStatusPreparing, OrderStatusCancelled},
		OrderStatusPreparing: {OrderStatusReady},
		OrderStatusReady:     {OrderStatusCompleted},
		OrderStatusCompleted: {},
		OrderStatusCancelled: {},
	}

	all := []OrderStatus{
		OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled,
	}

	for from, nexts := range allowed {
		legal := make(map[OrderStatus]bool, len(nexts))
		for _, next := range nexts {
			legal[next] = true
		}
		for _, to := range all {
			if got := from.CanTransitionTo(to); got != legal[to] {
				t.Errorf("%s -> %s: expected %v, got %v", from, to, legal[to], got)
			}
		}
	}
}

func TestOrderStatus_Cancellable(t *testing.T) {
	cancellable := map[OrderStatus]bool{
		OrderStatusPending:   true,
		OrderStatusConfirmed: true,
		OrderStatusPreparing: false,
		OrderStatusReady:     false,
		OrderStatusCompleted: false,
		OrderStatusCancelled: false,
	}

	for status, want := range cancellable {
		if got := status.Cancellable(); got != want {
			t.Errorf("%s: expected %v, got %v", status, want, got)
		}
	}
}

func TestLineItem_LineTotal(t *testing.T) {
	line := LineItem{UnitPrice: 450, Quantity: 3}
	if got := line.LineTotal(); got != 1350 {
		t.Errorf("expected 1350, got %d", got)
	}
}
