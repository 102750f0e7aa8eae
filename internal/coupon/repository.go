package coupon

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"

	"github.com/brewtab/brewtab/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetByCode is case-insensitive on the code, matching how codes are typed
// by customers.
func (r *Repository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	c := &domain.Coupon{}
	var maxUses sql.NullInt64
	var freeItemCategory sql.NullString
	var freeItemMaxValue sql.NullInt64
	var cafes pq.StringArray

	err := r.db.QueryRowContext(ctx, `
		SELECT id, code, coupon_type, value, minimum_purchase, max_uses, used_count,
		       max_uses_per_user, valid_from, valid_until, is_active, applicable_cafes,
		       free_item_category, free_item_max_value
		FROM coupons
		WHERE UPPER(code) = $1
	`, strings.ToUpper(code)).Scan(
		&c.ID, &c.Code, &c.Type, &c.Value, &c.MinimumPurchase, &maxUses, &c.UsedCount,
		&c.MaxUsesPerUser, &c.ValidFrom, &c.ValidUntil, &c.IsActive, &cafes,
		&freeItemCategory, &freeItemMaxValue,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrCouponNotFound
		}
		return nil, err
	}

	if maxUses.Valid {
		c.MaxUses = &maxUses.Int64
	}
	c.ApplicableCafes = cafes
	if freeItemCategory.Valid {
		c.FreeItem = &domain.FreeItemRule{
			Category: freeItemCategory.String,
			MaxValue: freeItemMaxValue.Int64,
		}
	}

	return c, nil
}

// CountUserUsage returns how many usage rows this user already has on the
// coupon. Settlement re-checks this under a row lock; the unlocked count is
// only used for validation responses.
func (r *Repository) CountUserUsage(ctx context.Context, couponID, userID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM coupon_usage
		WHERE coupon_id = $1 AND user_id = $2
	`, couponID, userID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListUsage returns the append-only usage trail for a coupon, oldest first.
func (r *Repository) ListUsage(ctx context.Context, couponID string) ([]domain.CouponUsage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, coupon_id, user_id, order_id, cafe_id, discount_amount, used_at
		FROM coupon_usage
		WHERE coupon_id = $1
		ORDER BY used_at
	`, couponID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var usage []domain.CouponUsage
	for rows.Next() {
		var u domain.CouponUsage
		if err := rows.Scan(&u.ID, &u.CouponID, &u.UserID, &u.OrderID, &u.CafeID, &u.DiscountAmount, &u.UsedAt); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return usage, nil
}
