package domain

import "time"

type CouponType string

const (
	CouponTypePercentage  CouponType = "percentage"
	CouponTypeFixedAmount CouponType = "fixed_amount"
	CouponTypeFreeItem    CouponType = "free_item"
	CouponTypePointsBonus CouponType = "points_bonus"
)

// FreeItemRule qualifies lines for a free_item discount: the cheapest line
// in Category priced at or under MaxValue (cents).
type FreeItemRule struct {
	Category string `json:"category"`
	MaxValue int64  `json:"max_value"`
}

// Coupon. Value is a whole percentage for percentage coupons, cents for
// fixed_amount, and a point count for points_bonus. A nil MaxUses means
// unlimited global uses. Empty ApplicableCafes means valid everywhere.
type Coupon struct {
	ID              string        `json:"id"`
	Code            string        `json:"code"`
	Type            CouponType    `json:"type"`
	Value           int64         `json:"value"`
	MinimumPurchase int64         `json:"minimum_purchase"`
	MaxUses         *int64        `json:"max_uses,omitempty"`
	UsedCount       int64         `json:"used_count"`
	MaxUsesPerUser  int64         `json:"max_uses_per_user"`
	ValidFrom       time.Time     `json:"valid_from"`
	ValidUntil      time.Time     `json:"valid_until"`
	IsActive        bool          `json:"is_active"`
	ApplicableCafes []string      `json:"applicable_cafes,omitempty"`
	FreeItem        *FreeItemRule `json:"free_item,omitempty"`
}

// CouponUsage rows are append-only; used_count on the coupon must always
// equal the number of usage rows.
type CouponUsage struct {
	ID             string    `json:"id"`
	CouponID       string    `json:"coupon_id"`
	UserID         string    `json:"user_id"`
	OrderID        string    `json:"order_id"`
	CafeID         string    `json:"cafe_id,omitempty"`
	DiscountAmount int64     `json:"discount_amount"`
	UsedAt         time.Time `json:"used_at"`
}
