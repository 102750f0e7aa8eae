package rewards

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/brewtab/brewtab/internal/domain"
	"github.com/brewtab/brewtab/internal/ledger"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListActive(ctx context.Context) ([]domain.Reward, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, points_cost, stock_limit, redeemed_count, is_active, applicable_cafes
		FROM rewards
		WHERE is_active
		ORDER BY points_cost
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var rewards []domain.Reward
	for rows.Next() {
		reward, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, *reward)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if rewards == nil {
		rewards = []domain.Reward{}
	}
	return rewards, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Reward, error) {
	reward, err := scanReward(r.db.QueryRowContext(ctx, `
		SELECT id, name, description, points_cost, stock_limit, redeemed_count, is_active, applicable_cafes
		FROM rewards
		WHERE id = $1
	`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRewardNotFound
		}
		return nil, err
	}
	return reward, nil
}

// Redeem debits the user's points and takes one unit of reward stock in a
// single transaction. Either both happen or neither: the debit is guarded
// on the balance and the count bump is guarded on stock_limit, so
// concurrent redemptions can neither overdraw points nor oversell a
// limited reward.
func (r *Repository) Redeem(ctx context.Context, rewardID, userID string) (*domain.RewardRedemption, error) {
	reward, err := r.GetByID(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if !reward.IsActive {
		return nil, domain.ErrRewardNotFound
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE rewards
		SET redeemed_count = redeemed_count + 1
		WHERE id = $1 AND (stock_limit IS NULL OR redeemed_count < stock_limit)
	`, rewardID)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, domain.ErrRewardSoldOut
	}

	err = ledger.DebitTx(ctx, tx, userID, reward.PointsCost, "Redeemed reward: "+reward.Name, "", rewardID)
	if err != nil {
		return nil, err
	}

	redemption := &domain.RewardRedemption{
		ID:         uuid.New().String(),
		RewardID:   rewardID,
		UserID:     userID,
		PointsCost: reward.PointsCost,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO reward_redemptions (id, reward_id, user_id, points_cost)
		VALUES ($1, $2, $3, $4)
		RETURNING redeemed_at
	`, redemption.ID, rewardID, userID, reward.PointsCost).Scan(&redemption.RedeemedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return redemption, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReward(row rowScanner) (*domain.Reward, error) {
	reward := &domain.Reward{}
	var stockLimit sql.NullInt64
	var cafes pq.StringArray

	err := row.Scan(&reward.ID, &reward.Name, &reward.Description, &reward.PointsCost,
		&stockLimit, &reward.RedeemedCount, &reward.IsActive, &cafes)
	if err != nil {
		return nil, err
	}

	if stockLimit.Valid {
		reward.StockLimit = &stockLimit.Int64
	}
	reward.ApplicableCafes = cafes

	return reward, nil
}
