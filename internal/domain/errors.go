package domain

import (
	"errors"
	"fmt"
)

// Settlement error taxonomy. Validation errors abort before any persistence;
// payment-stage errors are recorded on the pending order and surfaced as
// structured failures. Messages are short enough to show to users directly.
var (
	ErrItemNotFound       = errors.New("item not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrOrderNotFound      = errors.New("order not found")
	ErrPermissionDenied   = errors.New("order does not belong to caller")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrCouponNotFound     = errors.New("coupon not found")
	ErrCouponExhausted    = errors.New("coupon usage limit reached")
	ErrRewardNotFound     = errors.New("reward not found")
	ErrRewardSoldOut      = errors.New("reward is sold out")
)

// InvalidCouponError carries the first failed validation check as a
// user-facing reason.
type InvalidCouponError struct {
	Reason string
}

func (e *InvalidCouponError) Error() string {
	return e.Reason
}

// InvalidCoupon reports whether err is a coupon validation failure.
func InvalidCoupon(err error) (*InvalidCouponError, bool) {
	var ice *InvalidCouponError
	if errors.As(err, &ice) {
		return ice, true
	}
	return nil, false
}

// StockError names the item that failed the stock or existence check so the
// whole checkout can be rejected with a concrete line reference.
type StockError struct {
	ItemID string
	Err    error
}

func (e *StockError) Error() string {
	return fmt.Sprintf("item %s: %s", e.ItemID, e.Err)
}

func (e *StockError) Unwrap() error {
	return e.Err
}
