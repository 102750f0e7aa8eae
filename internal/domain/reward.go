package domain

import "time"

// Reward is redeemable with points. A nil StockLimit means unlimited.
// Redemption debits the ledger and increments RedeemedCount in one
// transaction; RedeemedCount never exceeds StockLimit.
type Reward struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	PointsCost      int64    `json:"points_cost"`
	StockLimit      *int64   `json:"stock_limit,omitempty"`
	RedeemedCount   int64    `json:"redeemed_count"`
	IsActive        bool     `json:"is_active"`
	ApplicableCafes []string `json:"applicable_cafes,omitempty"`
}

type RewardRedemption struct {
	ID         string    `json:"id"`
	RewardID   string    `json:"reward_id"`
	UserID     string    `json:"user_id"`
	PointsCost int64     `json:"points_cost"`
	RedeemedAt time.Time `json:"redeemed_at"`
}
