package coupon

import (
	"testing"
	"time"

	"github.com/brewtab/brewtab/internal/domain"
)

func validCoupon() *domain.Coupon {
	return &domain.Coupon{
		ID:              "c1",
		Code:            "SAVE20",
		Type:            domain.CouponTypePercentage,
		Value:           20,
		MinimumPurchase: 500,
		MaxUsesPerUser:  1,
		ValidFrom:       time.Now().Add(-time.Hour),
		ValidUntil:      time.Now().Add(time.Hour),
		IsActive:        true,
	}
}

func TestValidate(t *testing.T) {
	now := time.Now()

	t.Run("valid coupon passes", func(t *testing.T) {
		if err := Validate(validCoupon(), 0, "cafe-1", 1000, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("inactive", func(t *testing.T) {
		c := validCoupon()
		c.IsActive = false
		assertReason(t, Validate(c, 0, "", 1000, now), "This coupon is no longer active")
	})

	t.Run("not yet valid", func(t *testing.T) {
		c := validCoupon()
		c.ValidFrom = now.Add(time.Hour)
		assertReason(t, Validate(c, 0, "", 1000, now), "This coupon is not valid yet")
	})

	t.Run("expired", func(t *testing.T) {
		c := validCoupon()
		c.ValidUntil = now.Add(-time.Minute)
		assertReason(t, Validate(c, 0, "", 1000, now), "This coupon has expired")
	})

	t.Run("wrong cafe", func(t *testing.T) {
		c := validCoupon()
		c.ApplicableCafes = []string{"cafe-2"}
		assertReason(t, Validate(c, 0, "cafe-1", 1000, now), "This coupon is not valid at this café")
	})

	t.Run("listed cafe passes", func(t *testing.T) {
		c := validCoupon()
		c.ApplicableCafes = []string{"cafe-1", "cafe-2"}
		if err := Validate(c, 0, "cafe-1", 1000, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("global limit reached", func(t *testing.T) {
		c := validCoupon()
		limit := int64(100)
		c.MaxUses = &limit
		c.UsedCount = 100
		assertReason(t, Validate(c, 0, "", 1000, now), "This coupon has reached its usage limit")
	})

	t.Run("nil max uses is unlimited", func(t *testing.T) {
		c := validCoupon()
		c.UsedCount = 1_000_000
		if err := Validate(c, 0, "", 1000, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("per-user limit reached", func(t *testing.T) {
		c := validCoupon()
		assertReason(t, Validate(c, 1, "", 1000, now), "You have already used this coupon")
	})

	t.Run("below minimum purchase", func(t *testing.T) {
		c := validCoupon()
		assertReason(t, Validate(c, 0, "", 499, now), "A minimum purchase of $5.00 is required for this coupon")
	})

	t.Run("expiry wins over minimum purchase", func(t *testing.T) {
		c := validCoupon()
		c.ValidUntil = now.Add(-time.Minute)
		assertReason(t, Validate(c, 0, "", 100, now), "This coupon has expired")
	})
}

func assertReason(t *testing.T, err error, want string) {
	t.Helper()
	ice, ok := domain.InvalidCoupon(err)
	if !ok {
		t.Fatalf("expected InvalidCouponError, got %v", err)
	}
	if ice.Reason != want {
		t.Errorf("expected reason %q, got %q", want, ice.Reason)
	}
}

func TestComputeDiscount(t *testing.T) {
	t.Run("percentage", func(t *testing.T) {
		c := validCoupon() // 20%
		if got := ComputeDiscount(c, 1000, nil); got != 200 {
			t.Errorf("expected 200, got %d", got)
		}
	})

	t.Run("percentage rounds to nearest cent", func(t *testing.T) {
		c := validCoupon()
		c.Value = 15
		// 15% of 333 = 49.95 → 50
		if got := ComputeDiscount(c, 333, nil); got != 50 {
			t.Errorf("expected 50, got %d", got)
		}
	})

	t.Run("percentage capped at total", func(t *testing.T) {
		c := validCoupon()
		c.Value = 150
		if got := ComputeDiscount(c, 1000, nil); got != 1000 {
			t.Errorf("expected cap at 1000, got %d", got)
		}
	})

	t.Run("fixed amount", func(t *testing.T) {
		c := validCoupon()
		c.Type = domain.CouponTypeFixedAmount
		c.Value = 300
		if got := ComputeDiscount(c, 1000, nil); got != 300 {
			t.Errorf("expected 300, got %d", got)
		}
	})

	t.Run("fixed amount capped at total", func(t *testing.T) {
		c := validCoupon()
		c.Type = domain.CouponTypeFixedAmount
		c.Value = 1500
		if got := ComputeDiscount(c, 1000, nil); got != 1000 {
			t.Errorf("expected cap at 1000, got %d", got)
		}
	})

	t.Run("free item picks cheapest qualifying line", func(t *testing.T) {
		c := validCoupon()
		c.Type = domain.CouponTypeFreeItem
		c.FreeItem = &domain.FreeItemRule{Category: "coffee", MaxValue: 600}

		items := []domain.LineItem{
			{ItemID: "mocha", Category: "coffee", UnitPrice: 550, Quantity: 1},
			{ItemID: "drip", Category: "coffee", UnitPrice: 300, Quantity: 2},
			{ItemID: "croissant", Category: "bakery", UnitPrice: 250, Quantity: 1},
			{ItemID: "reserve", Category: "coffee", UnitPrice: 900, Quantity: 1},
		}
		if got := ComputeDiscount(c, 2500, items); got != 300 {
			t.Errorf("expected 300 (cheapest qualifying coffee), got %d", got)
		}
	})

	t.Run("free item with no qualifying line", func(t *testing.T) {
		c := validCoupon()
		c.Type = domain.CouponTypeFreeItem
		c.FreeItem = &domain.FreeItemRule{Category: "coffee", MaxValue: 200}

		items := []domain.LineItem{
			{ItemID: "mocha", Category: "coffee", UnitPrice: 550, Quantity: 1},
		}
		if got := ComputeDiscount(c, 550, items); got != 0 {
			t.Errorf("expected 0, got %d", got)
		}
	})

	t.Run("free item without rule", func(t *testing.T) {
		c := validCoupon()
		c.Type = domain.CouponTypeFreeItem
		c.FreeItem = nil
		if got := ComputeDiscount(c, 1000, nil); got != 0 {
			t.Errorf("expected 0, got %d", got)
		}
	})

	t.Run("points bonus discounts nothing", func(t *testing.T) {
		c := validCoupon()
		c.Type = domain.CouponTypePointsBonus
		c.Value = 50
		if got := ComputeDiscount(c, 1000, nil); got != 0 {
			t.Errorf("expected 0, got %d", got)
		}
	})
}

func TestBonusPoints(t *testing.T) {
	c := validCoupon()
	if got := BonusPoints(c); got != 0 {
		t.Errorf("expected 0 for percentage coupon, got %d", got)
	}

	c.Type = domain.CouponTypePointsBonus
	c.Value = 50
	if got := BonusPoints(c); got != 50 {
		t.Errorf("expected 50, got %d", got)
	}

	if got := BonusPoints(nil); got != 0 {
		t.Errorf("expected 0 for nil coupon, got %d", got)
	}
}
