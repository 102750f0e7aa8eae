package domain

import "time"

// OrderSettledEvent is published after the settlement commit succeeds.
type OrderSettledEvent struct {
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	UserID        string    `json:"user_id"`
	TotalAmount   int64     `json:"total_amount"`
	PointsEarned  int64     `json:"points_earned"`
	PaymentMethod string    `json:"payment_method"`
	Timestamp     time.Time `json:"timestamp"`
}

// OrderCancelledEvent is published after a cancellation, including the
// refund outcome when the order had been paid.
type OrderCancelledEvent struct {
	OrderID      string    `json:"order_id"`
	OrderNumber  string    `json:"order_number"`
	UserID       string    `json:"user_id"`
	RefundStatus string    `json:"refund_status,omitempty"`
	RefundAmount int64     `json:"refund_amount,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
