package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/brewtab/brewtab/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// NewOrderNumber builds a human-presentable, collision-resistant order
// number. Assigned once at creation and never regenerated.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// CreatePending persists a new order and its lines in one transaction. The
// order id and number are assigned here; the status is forced to pending.
func (r *Repository) CreatePending(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()
	if order.OrderNumber == "" {
		order.OrderNumber = NewOrderNumber(order.CreatedAt)
	}
	order.Status = domain.OrderStatusPending

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, user_id, cafe_id, subtotal, discount_amount,
			coupon_id, coupon_code, total_amount, total_points_earned, bonus_points,
			status, order_type, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, $12, $13, $14, $15, $15)
	`, order.ID, order.OrderNumber, order.UserID, order.CafeID, order.Subtotal,
		order.Discount.Amount, order.Discount.CouponID, order.Discount.CouponCode,
		order.TotalAmount, order.TotalPointsEarned, order.BonusPoints,
		order.Status, order.OrderType, order.Payment.Method, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		var customizations []byte
		if item.Customizations != nil {
			customizations, err = json.Marshal(item.Customizations)
			if err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, item_id, kind, name, category, quantity, unit_price, points_per_unit, customizations)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, uuid.New().String(), order.ID, item.ItemID, item.Kind, item.Name, item.Category,
			item.Quantity, item.UnitPrice, item.PointsPerUnit, customizations)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrder+` WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	items, err := r.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrder+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		order.Items = []domain.LineItem{}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, item_id, kind, name, category, quantity, unit_price, points_per_unit, customizations
		FROM order_items
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		item, err := scanItem(itemRows, &orderID)
		if err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, *item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	result := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *orderMap[id])
	}

	return result, nil
}

// UpdateStatus advances an order along the state machine. The guard repeats
// the current status in the UPDATE so a concurrent transition loses cleanly
// instead of being overwritten.
func (r *Repository) UpdateStatus(ctx context.Context, id string, next domain.OrderStatus) (*domain.Order, error) {
	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	if !order.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, next)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, next, id, order.Status)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: order changed concurrently", domain.ErrInvalidTransition)
	}

	return r.GetByID(ctx, id)
}

const selectOrder = `
	SELECT id, order_number, user_id, cafe_id, subtotal, discount_amount,
	       COALESCE(coupon_id, ''), COALESCE(coupon_code, ''), total_amount,
	       total_points_earned, bonus_points, status, order_type, payment_method,
	       COALESCE(payment_transaction_id, ''), payment_paid, payment_paid_at,
	       COALESCE(payment_failure_reason, ''), refund_status, refund_amount,
	       COALESCE(refund_id, ''), created_at, updated_at
	FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var paidAt sql.NullTime

	err := row.Scan(&order.ID, &order.OrderNumber, &order.UserID, &order.CafeID,
		&order.Subtotal, &order.Discount.Amount, &order.Discount.CouponID,
		&order.Discount.CouponCode, &order.TotalAmount, &order.TotalPointsEarned,
		&order.BonusPoints, &order.Status, &order.OrderType, &order.Payment.Method,
		&order.Payment.TransactionID, &order.Payment.Paid, &paidAt,
		&order.Payment.FailureReason, &order.Refund.Status, &order.Refund.Amount,
		&order.Refund.RefundID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if paidAt.Valid {
		order.Payment.PaidAt = &paidAt.Time
	}

	return order, nil
}

func (r *Repository) loadItems(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id, kind, name, category, quantity, unit_price, points_per_unit, customizations
		FROM order_items
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []domain.LineItem
	for rows.Next() {
		item, err := scanItem(rows, nil)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func scanItem(row rowScanner, orderID *string) (*domain.LineItem, error) {
	item := &domain.LineItem{}
	var customizations []byte

	dest := []any{&item.ItemID, &item.Kind, &item.Name, &item.Category,
		&item.Quantity, &item.UnitPrice, &item.PointsPerUnit, &customizations}
	if orderID != nil {
		dest = append([]any{orderID}, dest...)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if len(customizations) > 0 {
		item.Customizations = &domain.Customizations{}
		if err := json.Unmarshal(customizations, item.Customizations); err != nil {
			return nil, err
		}
	}

	return item, nil
}
