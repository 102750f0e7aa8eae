package ledger

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/brewtab/brewtab/internal/domain"
)

// Repository holds each user's points balance plus the append-only history
// behind it. Debits are guarded in SQL (decrement only where the balance
// covers it) so concurrent redemptions can never overdraw an account.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetAccount(ctx context.Context, userID string) (*domain.LoyaltyAccount, error) {
	account := &domain.LoyaltyAccount{}

	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, email, points
		FROM loyalty_accounts
		WHERE user_id = $1
	`, userID).Scan(&account.UserID, &account.Email, &account.Points)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return account, nil
}

// Credit appends an earned entry and raises the balance. It has no upper
// bound and creates the account row on first use.
func (r *Repository) Credit(ctx context.Context, userID string, amount int64, description, relatedOrder string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := creditTx(ctx, tx, userID, amount, description, relatedOrder, ""); err != nil {
		return err
	}

	return tx.Commit()
}

// Debit appends a redeemed entry and lowers the balance, or returns
// ErrInsufficientPoints without any change. The balance check and decrement
// are one conditional UPDATE, never a read-then-write.
func (r *Repository) Debit(ctx context.Context, userID string, amount int64, description, relatedReward string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := debitGuardedTx(ctx, tx, userID, amount, amount, description, "", relatedReward); err != nil {
		return err
	}

	return tx.Commit()
}

// History returns the user's ledger entries, newest first.
func (r *Repository) History(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, entry_type, amount, description,
		       COALESCE(related_order, ''), COALESCE(related_reward, ''), created_at
		FROM points_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.Description,
			&e.RelatedOrder, &e.RelatedReward, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	return entries, nil
}

// execer covers *sql.Tx and *sql.DB so the ledger mutations can run inside
// a caller-owned settlement transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreditTx applies a credit inside an existing transaction.
func CreditTx(ctx context.Context, tx *sql.Tx, userID string, amount int64, description, relatedOrder, relatedReward string) error {
	return creditTx(ctx, tx, userID, amount, description, relatedOrder, relatedReward)
}

// DebitTx applies a guarded debit inside an existing transaction.
func DebitTx(ctx context.Context, tx *sql.Tx, userID string, amount int64, description, relatedOrder, relatedReward string) error {
	return debitGuardedTx(ctx, tx, userID, amount, amount, description, relatedOrder, relatedReward)
}

// DebitGuardedTx debits amount but requires the balance to cover minBalance.
// The points-pay path debits the whole-unit floor of the total while
// requiring the balance to cover the full total.
func DebitGuardedTx(ctx context.Context, tx *sql.Tx, userID string, amount, minBalance int64, description, relatedOrder, relatedReward string) error {
	return debitGuardedTx(ctx, tx, userID, amount, minBalance, description, relatedOrder, relatedReward)
}

func creditTx(ctx context.Context, q execer, userID string, amount int64, description, relatedOrder, relatedReward string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO loyalty_accounts (user_id, points) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET points = loyalty_accounts.points + $2, updated_at = NOW()
	`, userID, amount)
	if err != nil {
		return err
	}

	return insertEntry(ctx, q, userID, domain.LedgerEntryEarned, amount, description, relatedOrder, relatedReward)
}

func debitGuardedTx(ctx context.Context, q execer, userID string, amount, minBalance int64, description, relatedOrder, relatedReward string) error {
	result, err := q.ExecContext(ctx, `
		UPDATE loyalty_accounts
		SET points = points - $2, updated_at = NOW()
		WHERE user_id = $1 AND points >= $3
	`, userID, amount, minBalance)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrInsufficientPoints
	}

	return insertEntry(ctx, q, userID, domain.LedgerEntryRedeemed, amount, description, relatedOrder, relatedReward)
}

func insertEntry(ctx context.Context, q execer, userID string, entryType domain.LedgerEntryType, amount int64, description, relatedOrder, relatedReward string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO points_history (id, user_id, entry_type, amount, description, related_order, related_reward)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
	`, uuid.New().String(), userID, entryType, amount, description, relatedOrder, relatedReward)
	return err
}
