package coupon

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brewtab/brewtab/internal/domain"
)

// Validate runs the eligibility checks in a fixed order and returns an
// *domain.InvalidCouponError carrying the first failure as user-facing text.
// priorUserUses is the caller's count of this user's existing usage rows.
// Usage is not recorded here; that happens in the settlement commit.
func Validate(c *domain.Coupon, priorUserUses int64, cafeID string, orderTotal int64, now time.Time) error {
	if !c.IsActive {
		return &domain.InvalidCouponError{Reason: "This coupon is no longer active"}
	}
	if now.Before(c.ValidFrom) {
		return &domain.InvalidCouponError{Reason: "This coupon is not valid yet"}
	}
	if now.After(c.ValidUntil) {
		return &domain.InvalidCouponError{Reason: "This coupon has expired"}
	}
	if len(c.ApplicableCafes) > 0 && !slices.Contains(c.ApplicableCafes, cafeID) {
		return &domain.InvalidCouponError{Reason: "This coupon is not valid at this café"}
	}
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		return &domain.InvalidCouponError{Reason: "This coupon has reached its usage limit"}
	}
	if priorUserUses >= c.MaxUsesPerUser {
		return &domain.InvalidCouponError{Reason: "You have already used this coupon"}
	}
	if orderTotal < c.MinimumPurchase {
		return &domain.InvalidCouponError{
			Reason: fmt.Sprintf("A minimum purchase of $%.2f is required for this coupon", float64(c.MinimumPurchase)/100),
		}
	}
	return nil
}

// ComputeDiscount returns the discount in cents for an order with the given
// pre-discount total and lines. It never exceeds orderTotal and never goes
// negative. points_bonus coupons always discount zero; they grant points at
// commit time instead.
func ComputeDiscount(c *domain.Coupon, orderTotal int64, items []domain.LineItem) int64 {
	switch c.Type {
	case domain.CouponTypePercentage:
		discount := decimal.NewFromInt(orderTotal).
			Mul(decimal.NewFromInt(c.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
		return min(discount, orderTotal)

	case domain.CouponTypeFixedAmount:
		return min(c.Value, orderTotal)

	case domain.CouponTypeFreeItem:
		if c.FreeItem == nil {
			return 0
		}
		var cheapest int64 = -1
		for _, item := range items {
			if item.Category != c.FreeItem.Category || item.UnitPrice > c.FreeItem.MaxValue {
				continue
			}
			if cheapest < 0 || item.UnitPrice < cheapest {
				cheapest = item.UnitPrice
			}
		}
		if cheapest < 0 {
			return 0
		}
		return min(cheapest, orderTotal)

	case domain.CouponTypePointsBonus:
		return 0
	}

	return 0
}

// BonusPoints returns the points a coupon grants on top of normal earning,
// which is nonzero only for points_bonus coupons.
func BonusPoints(c *domain.Coupon) int64 {
	if c != nil && c.Type == domain.CouponTypePointsBonus {
		return c.Value
	}
	return 0
}
