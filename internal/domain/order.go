package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition. Terminal states reject everything.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusConfirmed || next == OrderStatusCancelled
	case OrderStatusConfirmed:
		return next == OrderStatusPreparing || next == OrderStatusCancelled
	case OrderStatusPreparing:
		return next == OrderStatusReady
	case OrderStatusReady:
		return next == OrderStatusCompleted
	default:
		return false
	}
}

// Cancellable reports whether a user-initiated cancellation is still allowed.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed
}

type OrderType string

const (
	OrderTypePickup   OrderType = "pickup"
	OrderTypeDelivery OrderType = "delivery"
	OrderTypeDineIn   OrderType = "dine_in"
)

type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodPoints PaymentMethod = "points"
)

// LineKind tags the item variant a line was built from. All kinds resolve
// through the same catalog contract; the kind only selects which
// customization fields are meaningful.
type LineKind string

const (
	LineKindDrink  LineKind = "drink"
	LineKindFood   LineKind = "food"
	LineKindRetail LineKind = "retail"
)

// Extra is an additive customization (syrup shot, topping, side).
type Extra struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// Customizations alter a line's unit price: a recognized size replaces the
// base price with the tier price, extras are summed on top.
type Customizations struct {
	Size   string  `json:"size,omitempty"`
	Extras []Extra `json:"extras,omitempty"`
}

// LineItem is a snapshot of a catalog item at order-creation time. Prices
// are cents. Later catalog price changes never alter historical orders.
type LineItem struct {
	ItemID         string          `json:"item_id"`
	Kind           LineKind        `json:"kind"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Quantity       int             `json:"quantity"`
	UnitPrice      int64           `json:"unit_price"`
	PointsPerUnit  int64           `json:"points_per_unit"`
	Customizations *Customizations `json:"customizations,omitempty"`
}

func (l LineItem) LineTotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

type Discount struct {
	Amount     int64  `json:"amount"`
	CouponID   string `json:"coupon_id,omitempty"`
	CouponCode string `json:"coupon_code,omitempty"`
}

type PaymentInfo struct {
	Method        PaymentMethod `json:"method"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Paid          bool          `json:"paid"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
}

type RefundStatus string

const (
	RefundStatusNone      RefundStatus = "none"
	RefundStatusProcessed RefundStatus = "processed"
	RefundStatusFailed    RefundStatus = "failed"
)

type RefundInfo struct {
	Status   RefundStatus `json:"status"`
	Amount   int64        `json:"amount,omitempty"`
	RefundID string       `json:"refund_id,omitempty"`
}

// Order is the settlement aggregate. Amounts are cents. TotalAmount is
// always max(0, Subtotal - Discount.Amount); TotalPointsEarned is the
// post-discount whole-currency floor, forced to zero on points-funded
// orders. BonusPoints holds points granted by a points_bonus coupon.
type Order struct {
	ID                string      `json:"id"`
	OrderNumber       string      `json:"order_number"`
	UserID            string      `json:"user_id"`
	CafeID            string      `json:"cafe_id,omitempty"`
	Items             []LineItem  `json:"items"`
	Subtotal          int64       `json:"subtotal"`
	Discount          Discount    `json:"discount"`
	TotalAmount       int64       `json:"total_amount"`
	TotalPointsEarned int64       `json:"total_points_earned"`
	BonusPoints       int64       `json:"bonus_points,omitempty"`
	Status            OrderStatus `json:"status"`
	OrderType         OrderType   `json:"order_type"`
	Payment           PaymentInfo `json:"payment"`
	Refund            RefundInfo  `json:"refund"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}
