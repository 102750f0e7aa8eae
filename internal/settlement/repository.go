package settlement

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/brewtab/brewtab/internal/domain"
	"github.com/brewtab/brewtab/internal/ledger"
	"github.com/brewtab/brewtab/internal/orders"
)

// Store is the persistence boundary the orchestrator drives. The Postgres
// implementation runs the whole commit as one transaction so points, stock,
// coupon usage and order state can never be applied partially.
type Store interface {
	CreatePending(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	// Settle performs the idempotent commit. The bool result is false when
	// the order had already been settled, in which case nothing changed.
	Settle(ctx context.Context, params SettleParams) (*domain.Order, bool, error)
	RecordPaymentFailure(ctx context.Context, orderID, reason string) error
	SetTransactionID(ctx context.Context, orderID, transactionID string) error
	Cancel(ctx context.Context, orderID string) (*domain.Order, error)
	RecordRefund(ctx context.Context, orderID string, refund domain.RefundInfo) error
	// CreditPoints returns points to a user outside a settlement commit,
	// used when a points-paid order is cancelled.
	CreditPoints(ctx context.Context, userID string, amount int64, description, relatedOrder string) error
}

// SettleParams describes one commit. Exactly one of PointsToDebit /
// PointsToCredit is nonzero depending on the payment path; BonusPoints may
// accompany either.
type SettleParams struct {
	OrderID         string
	Method          domain.PaymentMethod
	TransactionID   string
	PointsToDebit   int64
	MinBalance      int64
	PointsToCredit  int64
	BonusPoints     int64
	BonusCouponCode string
}

type Repository struct {
	db     *sql.DB
	orders *orders.Repository
	ledger *ledger.Repository
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:     db,
		orders: orders.NewRepository(db),
		ledger: ledger.NewRepository(db),
	}
}

func (r *Repository) CreatePending(ctx context.Context, order *domain.Order) error {
	return r.orders.CreatePending(ctx, order)
}

func (r *Repository) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return r.orders.GetByID(ctx, id)
}

// Settle is the single pending→paid gate. The first statement is a
// compare-and-set on payment_paid; both the synchronous confirm path and the
// webhook path funnel through it, and whichever arrives second sees zero
// rows and returns the already-settled order untouched.
func (r *Repository) Settle(ctx context.Context, params SettleParams) (*domain.Order, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_paid = TRUE, payment_method = $2, payment_transaction_id = NULLIF($3, ''),
		    payment_paid_at = NOW(), payment_failure_reason = NULL,
		    total_points_earned = $4, bonus_points = $5,
		    status = $6, updated_at = NOW()
		WHERE id = $1 AND payment_paid = FALSE AND status = $7
	`, params.OrderID, params.Method, params.TransactionID,
		params.PointsToCredit, params.BonusPoints,
		domain.OrderStatusConfirmed, domain.OrderStatusPending)
	if err != nil {
		return nil, false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	if rowsAffected == 0 {
		// Lost the race, or the order is missing/cancelled. Classify.
		order, err := r.orders.GetByID(ctx, params.OrderID)
		if err != nil {
			return nil, false, err
		}
		if order == nil {
			return nil, false, domain.ErrOrderNotFound
		}
		if order.Payment.Paid {
			return order, false, nil
		}
		return nil, false, fmt.Errorf("%w: order is %s", domain.ErrInvalidTransition, order.Status)
	}

	order, err := r.orders.GetByID(ctx, params.OrderID)
	if err != nil {
		return nil, false, err
	}

	if params.PointsToDebit > 0 {
		minBalance := params.MinBalance
		if minBalance < params.PointsToDebit {
			minBalance = params.PointsToDebit
		}
		err = ledger.DebitGuardedTx(ctx, tx, order.UserID, params.PointsToDebit, minBalance,
			"Order "+order.OrderNumber, order.ID, "")
		if err != nil {
			return nil, false, err
		}
	}

	for _, item := range order.Items {
		if err := decrementStock(ctx, tx, item.ItemID, item.Quantity); err != nil {
			return nil, false, err
		}
	}

	if params.PointsToCredit > 0 {
		err = ledger.CreditTx(ctx, tx, order.UserID, params.PointsToCredit,
			"Points earned on order "+order.OrderNumber, order.ID, "")
		if err != nil {
			return nil, false, err
		}
	}

	if params.BonusPoints > 0 {
		err = ledger.CreditTx(ctx, tx, order.UserID, params.BonusPoints,
			"Coupon bonus ("+params.BonusCouponCode+")", order.ID, "")
		if err != nil {
			return nil, false, err
		}
	}

	if order.Discount.CouponID != "" {
		err = recordCouponUsage(ctx, tx, order)
		if err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	settled, err := r.orders.GetByID(ctx, params.OrderID)
	if err != nil {
		return nil, false, err
	}
	return settled, true, nil
}

// RecordPaymentFailure writes the reason onto the pending order without
// touching points or stock. The order stays pending.
func (r *Repository) RecordPaymentFailure(ctx context.Context, orderID, reason string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND payment_paid = FALSE
	`, orderID, reason)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		// Already settled or missing; a stale failure report must not
		// clobber a successful settlement.
		order, err := r.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
	}
	return nil
}

func (r *Repository) SetTransactionID(ctx context.Context, orderID, transactionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders SET payment_transaction_id = $2, updated_at = NOW()
		WHERE id = $1
	`, orderID, transactionID)
	return err
}

// Cancel flips a pending or confirmed order to cancelled and restores each
// line's stock in the same transaction. Refund handling happens in the
// orchestrator afterwards; its outcome is recorded separately.
func (r *Repository) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// RETURNING reads the row the UPDATE actually locked, not the snapshot
	// above: a settlement that committed between the two flips payment_paid,
	// and the stock restore has to see that.
	var paid bool
	err = tx.QueryRowContext(ctx, `
		UPDATE orders SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)
		RETURNING payment_paid
	`, orderID, domain.OrderStatusCancelled, domain.OrderStatusPending, domain.OrderStatusConfirmed).Scan(&paid)
	if err == sql.ErrNoRows {
		current, gerr := r.orders.GetByID(ctx, orderID)
		if gerr != nil {
			return nil, gerr
		}
		if current == nil {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("%w: order is %s", domain.ErrInvalidTransition, current.Status)
	}
	if err != nil {
		return nil, err
	}

	// Stock was only taken at settlement, so only a paid order gives it back.
	if paid {
		for _, item := range order.Items {
			if err := restoreStock(ctx, tx, item.ItemID, item.Quantity); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.orders.GetByID(ctx, orderID)
}

func (r *Repository) RecordRefund(ctx context.Context, orderID string, refund domain.RefundInfo) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET refund_status = $2, refund_amount = $3, refund_id = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $1
	`, orderID, refund.Status, refund.Amount, refund.RefundID)
	return err
}

func (r *Repository) CreditPoints(ctx context.Context, userID string, amount int64, description, relatedOrder string) error {
	return r.ledger.Credit(ctx, userID, amount, description, relatedOrder)
}

func decrementStock(ctx context.Context, tx *sql.Tx, itemID string, quantity int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE items
		SET stock_quantity = stock_quantity - $2,
		    in_stock = (stock_quantity - $2) > 0,
		    updated_at = NOW()
		WHERE id = $1 AND stock_quantity >= $2
	`, itemID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return &domain.StockError{ItemID: itemID, Err: domain.ErrInsufficientStock}
	}
	return nil
}

func restoreStock(ctx context.Context, tx *sql.Tx, itemID string, quantity int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE items
		SET stock_quantity = stock_quantity + $2, in_stock = TRUE, updated_at = NOW()
		WHERE id = $1
	`, itemID, quantity)
	return err
}

// recordCouponUsage appends the usage row and bumps used_count under the
// coupon's usage limits. The coupon row is locked before either limit is
// checked: a racing settlement of the same code blocks on the lock, and the
// usage count taken afterwards runs on a fresh snapshot that includes
// whatever the winner committed. Checking the per-user count in the same
// statement as the increment would not work, since a blocked UPDATE only
// re-reads the coupon row itself, not other tables.
func recordCouponUsage(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	var maxUses sql.NullInt64
	var usedCount, maxUsesPerUser int64
	err := tx.QueryRowContext(ctx, `
		SELECT max_uses, used_count, max_uses_per_user
		FROM coupons
		WHERE id = $1
		FOR UPDATE
	`, order.Discount.CouponID).Scan(&maxUses, &usedCount, &maxUsesPerUser)
	if err != nil {
		return err
	}
	if maxUses.Valid && usedCount >= maxUses.Int64 {
		return domain.ErrCouponExhausted
	}

	var userUses int64
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM coupon_usage WHERE coupon_id = $1 AND user_id = $2
	`, order.Discount.CouponID, order.UserID).Scan(&userUses)
	if err != nil {
		return err
	}
	if userUses >= maxUsesPerUser {
		return domain.ErrCouponExhausted
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE coupons SET used_count = used_count + 1 WHERE id = $1
	`, order.Discount.CouponID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO coupon_usage (id, coupon_id, user_id, order_id, cafe_id, discount_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New().String(), order.Discount.CouponID, order.UserID, order.ID, order.CafeID, order.Discount.Amount)
	return err
}
