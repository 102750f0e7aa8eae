// Package paymentsim implements a standalone payment processor used in local
// and test environments. Charges live in an embedded BoltDB file so the
// simulator survives restarts, and every write path is idempotent: retrying a
// create returns the stored charge, resolving a resolved charge is a no-op,
// and refunding twice returns the first refund.
package paymentsim

import (
	"encoding/json"
	"errors"
	"time"

	bolt "github.com/boltdb/bolt"
)

const (
	bucketCharges = "charges"
	bucketOrders  = "order_index"
	bucketRefunds = "refunds"
)

var ErrChargeNotFound = errors.New("charge not found")

// ChargeState tracks a charge through its lifecycle.
type ChargeState string

const (
	ChargePending   ChargeState = "pending"
	ChargeSucceeded ChargeState = "succeeded"
	ChargeFailed    ChargeState = "failed"
)

type ChargeRecord struct {
	Handle        string            `json:"handle"`
	OrderID       string            `json:"order_id"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	ClientSecret  string            `json:"client_secret"`
	State         ChargeState       `json:"state"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type RefundRecord struct {
	RefundID  string    `json:"refund_id"`
	Handle    string    `json:"handle"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists charges and refunds in a single BoltDB file.
type Store struct {
	db *bolt.DB
}

func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketCharges, bucketOrders, bucketRefunds} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateCharge persists a new charge unless one already exists for the same
// order. A retried create returns the stored charge unchanged, so the caller
// always sees the same handle and client secret for a given order.
func (s *Store) CreateCharge(c *ChargeRecord) (*ChargeRecord, bool, error) {
	var result ChargeRecord
	created := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		charges := tx.Bucket([]byte(bucketCharges))
		orders := tx.Bucket([]byte(bucketOrders))

		if handle := orders.Get([]byte(c.OrderID)); handle != nil {
			existing := charges.Get(handle)
			if existing != nil {
				return json.Unmarshal(existing, &result)
			}
		}

		now := time.Now().UTC()
		c.State = ChargePending
		c.CreatedAt = now
		c.UpdatedAt = now

		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		if err := charges.Put([]byte(c.Handle), data); err != nil {
			return err
		}
		if err := orders.Put([]byte(c.OrderID), []byte(c.Handle)); err != nil {
			return err
		}

		result = *c
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return &result, created, nil
}

func (s *Store) GetCharge(handle string) (*ChargeRecord, error) {
	var c ChargeRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketCharges)).Get([]byte(handle))
		if v == nil {
			return ErrChargeNotFound
		}
		return json.Unmarshal(v, &c)
	})
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// ResolveCharge moves a pending charge to its terminal state. Resolving an
// already-resolved charge skips the write and returns the stored record, so
// duplicate confirmations cannot flip an outcome.
func (s *Store) ResolveCharge(handle string, state ChargeState, failureReason string) (*ChargeRecord, bool, error) {
	var result ChargeRecord
	resolved := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCharges))

		v := b.Get([]byte(handle))
		if v == nil {
			return ErrChargeNotFound
		}

		var c ChargeRecord
		if err := json.Unmarshal(v, &c); err != nil {
			return err
		}

		if c.State != ChargePending {
			result = c
			return nil
		}

		c.State = state
		c.FailureReason = failureReason
		c.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(c)
		if err != nil {
			return err
		}

		result = c
		resolved = true
		return b.Put([]byte(handle), data)
	})
	if err != nil {
		return nil, false, err
	}

	return &result, resolved, nil
}

// CreateRefund records a refund keyed by charge handle. A second refund for
// the same handle returns the first refund unchanged.
func (s *Store) CreateRefund(r *RefundRecord) (*RefundRecord, bool, error) {
	var result RefundRecord
	created := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		charges := tx.Bucket([]byte(bucketCharges))
		refunds := tx.Bucket([]byte(bucketRefunds))

		if charges.Get([]byte(r.Handle)) == nil {
			return ErrChargeNotFound
		}

		if existing := refunds.Get([]byte(r.Handle)); existing != nil {
			return json.Unmarshal(existing, &result)
		}

		r.CreatedAt = time.Now().UTC()

		data, err := json.Marshal(r)
		if err != nil {
			return err
		}

		result = *r
		created = true
		return refunds.Put([]byte(r.Handle), data)
	})
	if err != nil {
		return nil, false, err
	}

	return &result, created, nil
}
