package domain

import "time"

type LedgerEntryType string

const (
	LedgerEntryEarned   LedgerEntryType = "earned"
	LedgerEntryRedeemed LedgerEntryType = "redeemed"
)

// LedgerEntry is one append-only row of a user's points history. The
// account balance always equals sum(earned) - sum(redeemed).
type LedgerEntry struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Type          LedgerEntryType `json:"type"`
	Amount        int64           `json:"amount"`
	Description   string          `json:"description"`
	RelatedOrder  string          `json:"related_order,omitempty"`
	RelatedReward string          `json:"related_reward,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// LoyaltyAccount is the running balance side of the ledger. Points never go
// negative; debits are refused rather than overdrawing.
type LoyaltyAccount struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Points int64  `json:"points"`
}
