//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brewtab/brewtab/internal/catalog"
	"github.com/brewtab/brewtab/internal/coupon"
	"github.com/brewtab/brewtab/internal/domain"
	"github.com/brewtab/brewtab/internal/ledger"
	"github.com/brewtab/brewtab/internal/messaging"
	"github.com/brewtab/brewtab/internal/payment"
	"github.com/brewtab/brewtab/internal/rewards"
	"github.com/brewtab/brewtab/internal/settlement"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedItem(t *testing.T, db *sql.DB, id string, price int64, stock int) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO items (id, name, category, kind, price, in_stock, stock_quantity)
		VALUES ($1, $1, 'coffee', 'drink', $2, TRUE, $3)
	`, id, price, stock)
	if err != nil {
		t.Fatalf("failed to seed item %s: %v", id, err)
	}
}

func seedCoupon(t *testing.T, db *sql.DB, c *domain.Coupon) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO coupons (id, code, coupon_type, value, minimum_purchase,
		                     max_uses, max_uses_per_user, valid_from, valid_until, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
	`, c.ID, c.Code, c.Type, c.Value, c.MinimumPurchase,
		c.MaxUses, c.MaxUsesPerUser, c.ValidFrom, c.ValidUntil)
	if err != nil {
		t.Fatalf("failed to seed coupon %s: %v", c.Code, err)
	}
}

func stockQuantity(t *testing.T, db *sql.DB, itemID string) int {
	t.Helper()
	var quantity int
	if err := db.QueryRow(`SELECT stock_quantity FROM items WHERE id = $1`, itemID).Scan(&quantity); err != nil {
		t.Fatalf("failed to read stock for %s: %v", itemID, err)
	}
	return quantity
}

func pointsBalance(t *testing.T, db *sql.DB, userID string) int64 {
	t.Helper()
	var points int64
	err := db.QueryRow(`SELECT points FROM loyalty_accounts WHERE user_id = $1`, userID).Scan(&points)
	if err == sql.ErrNoRows {
		return 0
	}
	if err != nil {
		t.Fatalf("failed to read balance for %s: %v", userID, err)
	}
	return points
}

func newOrchestrator(db *sql.DB, gateway payment.Gateway) *settlement.Orchestrator {
	return settlement.NewOrchestrator(
		settlement.NewRepository(db),
		catalog.NewRepository(db),
		coupon.NewRepository(db),
		gateway,
		nil,
		discardLogger(),
	)
}

func TestCardSettlementFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedItem(t, db, "latte", 500, 10)
	seedCoupon(t, db, &domain.Coupon{
		ID:              "c-save20",
		Code:            "SAVE20",
		Type:            domain.CouponTypePercentage,
		Value:           20,
		MinimumPurchase: 500,
		MaxUsesPerUser:  1,
		ValidFrom:       time.Now().Add(-time.Hour),
		ValidUntil:      time.Now().Add(time.Hour),
	})

	gateway := payment.NewFakeGateway()
	orchestrator := newOrchestrator(db, gateway)

	result, err := orchestrator.Checkout(ctx, settlement.CheckoutRequest{
		UserID:     "user-1",
		Items:      []settlement.CartItem{{ItemID: "latte", Quantity: 2}},
		CouponCode: "SAVE20",
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if result.TotalAmount != 800 {
		t.Fatalf("expected total 800 after discount, got %d", result.TotalAmount)
	}
	if result.DiscountAmount != 200 {
		t.Fatalf("expected discount 200, got %d", result.DiscountAmount)
	}

	confirmed, err := orchestrator.Confirm(ctx, result.OrderID, "user-1")
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if confirmed.Status != domain.OrderStatusConfirmed {
		t.Errorf("expected confirmed, got %s", confirmed.Status)
	}
	if confirmed.TotalPointsEarned != 8 {
		t.Errorf("expected 8 points earned, got %d", confirmed.TotalPointsEarned)
	}

	if got := pointsBalance(t, db, "user-1"); got != 8 {
		t.Errorf("expected balance 8, got %d", got)
	}
	if got := stockQuantity(t, db, "latte"); got != 8 {
		t.Errorf("expected stock 8, got %d", got)
	}

	var usageCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM coupon_usage WHERE coupon_id = 'c-save20'`).Scan(&usageCount); err != nil {
		t.Fatalf("failed to count coupon usage: %v", err)
	}
	if usageCount != 1 {
		t.Errorf("expected one coupon usage row, got %d", usageCount)
	}
}

func TestPointsSettlementFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedItem(t, db, "latte", 400, 10)
	if err := ledger.NewRepository(db).Credit(ctx, "user-1", 8, "signup bonus", ""); err != nil {
		t.Fatalf("failed to seed balance: %v", err)
	}

	gateway := payment.NewFakeGateway()
	orchestrator := newOrchestrator(db, gateway)

	result, err := orchestrator.Checkout(ctx, settlement.CheckoutRequest{
		UserID:    "user-1",
		Items:     []settlement.CartItem{{ItemID: "latte", Quantity: 2}},
		UsePoints: true,
	})
	if err != nil {
		t.Fatalf("points checkout failed: %v", err)
	}
	if result.Status != domain.OrderStatusConfirmed {
		t.Errorf("expected confirmed, got %s", result.Status)
	}
	if result.TotalPointsEarned != 0 {
		t.Errorf("points-paid order must not earn points, got %d", result.TotalPointsEarned)
	}
	if gateway.ChargeCount() != 0 {
		t.Errorf("points path must not touch the processor, saw %d charges", gateway.ChargeCount())
	}

	if got := pointsBalance(t, db, "user-1"); got != 0 {
		t.Errorf("expected balance 0 after redemption, got %d", got)
	}

	// A short balance must leave everything untouched.
	if err := ledger.NewRepository(db).Credit(ctx, "user-2", 5, "signup bonus", ""); err != nil {
		t.Fatalf("failed to seed balance: %v", err)
	}
	_, err = orchestrator.Checkout(ctx, settlement.CheckoutRequest{
		UserID:    "user-2",
		Items:     []settlement.CartItem{{ItemID: "latte", Quantity: 2}},
		UsePoints: true,
	})
	if !errors.Is(err, domain.ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if got := pointsBalance(t, db, "user-2"); got != 5 {
		t.Errorf("expected balance 5 untouched, got %d", got)
	}
}

func TestSettleIsIdempotentUnderRace(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedItem(t, db, "latte", 500, 10)

	gateway := payment.NewFakeGateway()
	orchestrator := newOrchestrator(db, gateway)

	result, err := orchestrator.Checkout(ctx, settlement.CheckoutRequest{
		UserID: "user-1",
		Items:  []settlement.CartItem{{ItemID: "latte", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	// The confirm path and the webhook path race for the same commit; run
	// many settles at once and require exactly one to win.
	repo := settlement.NewRepository(db)
	const workers = 8
	var wg sync.WaitGroup
	settledCount := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, newlySettled, err := repo.Settle(ctx, settlement.SettleParams{
				OrderID:        result.OrderID,
				Method:         domain.PaymentMethodCard,
				TransactionID:  result.PaymentHandle,
				PointsToCredit: 5,
			})
			if err != nil {
				t.Errorf("settle failed: %v", err)
				return
			}
			settledCount <- newlySettled
		}()
	}
	wg.Wait()
	close(settledCount)

	wins := 0
	for settled := range settledCount {
		if settled {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one settlement to win, got %d", wins)
	}

	if got := pointsBalance(t, db, "user-1"); got != 5 {
		t.Errorf("expected points credited exactly once (5), got %d", got)
	}
	if got := stockQuantity(t, db, "latte"); got != 9 {
		t.Errorf("expected stock decremented exactly once (9), got %d", got)
	}
}

func TestGuardedDebitNeverOverdraws(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := ledger.NewRepository(db)
	if err := repo.Credit(ctx, "user-1", 50, "seed", ""); err != nil {
		t.Fatalf("failed to seed balance: %v", err)
	}

	const attempts = 100
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.Debit(ctx, "user-1", 1, "redemption", "")
		}()
	}
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientPoints):
			rejected++
		default:
			t.Errorf("unexpected debit error: %v", err)
		}
	}

	if succeeded != 50 || rejected != 50 {
		t.Errorf("expected 50 successes and 50 rejections, got %d/%d", succeeded, rejected)
	}
	if got := pointsBalance(t, db, "user-1"); got != 0 {
		t.Errorf("expected balance 0, got %d", got)
	}
}

func TestCouponLimitHoldsUnderRace(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedItem(t, db, "latte", 500, 10)
	maxUses := int64(1)
	seedCoupon(t, db, &domain.Coupon{
		ID:             "c-last",
		Code:           "LASTONE",
		Type:           domain.CouponTypeFixedAmount,
		Value:          100,
		MaxUses:        &maxUses,
		MaxUsesPerUser: 1,
		ValidFrom:      time.Now().Add(-time.Hour),
		ValidUntil:     time.Now().Add(time.Hour),
	})

	gateway := payment.NewFakeGateway()
	orchestrator := newOrchestrator(db, gateway)

	// Both users pass validation before either settles; the used_count guard
	// at commit time must still let only one through.
	users := []string{"user-1", "user-2"}
	orderIDs := make([]string, len(users))
	for i, user := range users {
		result, err := orchestrator.Checkout(ctx, settlement.CheckoutRequest{
			UserID:     user,
			Items:      []settlement.CartItem{{ItemID: "latte", Quantity: 1}},
			CouponCode: "LASTONE",
		})
		if err != nil {
			t.Fatalf("checkout for %s failed: %v", user, err)
		}
		orderIDs[i] = result.OrderID
	}

	var wg sync.WaitGroup
	results := make(chan error, len(users))
	for i, user := range users {
		wg.Add(1)
		go func(orderID, userID string) {
			defer wg.Done()
			_, err := orchestrator.Confirm(ctx, orderID, userID)
			results <- err
		}(orderIDs[i], user)
	}
	wg.Wait()
	close(results)

	succeeded, exhausted := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrCouponExhausted):
			exhausted++
		default:
			t.Errorf("unexpected confirm error: %v", err)
		}
	}
	if succeeded != 1 || exhausted != 1 {
		t.Errorf("expected one settlement and one exhaustion, got %d/%d", succeeded, exhausted)
	}

	var usedCount int64
	if err := db.QueryRow(`SELECT used_count FROM coupons WHERE id = 'c-last'`).Scan(&usedCount); err != nil {
		t.Fatalf("failed to read used_count: %v", err)
	}
	if usedCount != 1 {
		t.Errorf("expected used_count 1, got %d", usedCount)
	}
}

func TestCouponPerUserLimitHoldsUnderRace(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedItem(t, db, "latte", 500, 10)
	seedCoupon(t, db, &domain.Coupon{
		ID:             "c-once",
		Code:           "ONCEEACH",
		Type:           domain.CouponTypeFixedAmount,
		Value:          100,
		MaxUsesPerUser: 1,
		ValidFrom:      time.Now().Add(-time.Hour),
		ValidUntil:     time.Now().Add(time.Hour),
	})

	gateway := payment.NewFakeGateway()
	orchestrator := newOrchestrator(db, gateway)

	// One user checks out twice with the coupon before confirming either
	// order; validation sees zero prior uses both times. The settle
	// transaction has to let only one through.
	orderIDs := make([]string, 2)
	for i := range orderIDs {
		result, err := orchestrator.Checkout(ctx, settlement.CheckoutRequest{
			UserID:     "user-1",
			Items:      []settlement.CartItem{{ItemID: "latte", Quantity: 1}},
			CouponCode: "ONCEEACH",
		})
		if err != nil {
			t.Fatalf("checkout %d failed: %v", i, err)
		}
		orderIDs[i] = result.OrderID
	}

	var wg sync.WaitGroup
	results := make(chan error, len(orderIDs))
	for _, orderID := range orderIDs {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			_, err := orchestrator.Confirm(ctx, orderID, "user-1")
			results <- err
		}(orderID)
	}
	wg.Wait()
	close(results)

	succeeded, exhausted := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrCouponExhausted):
			exhausted++
		default:
			t.Errorf("unexpected confirm error: %v", err)
		}
	}
	if succeeded != 1 || exhausted != 1 {
		t.Errorf("expected one settlement and one exhaustion, got %d/%d", succeeded, exhausted)
	}

	var usageRows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM coupon_usage WHERE coupon_id = 'c-once' AND user_id = 'user-1'`).Scan(&usageRows); err != nil {
		t.Fatalf("failed to count coupon usage: %v", err)
	}
	if usageRows != 1 {
		t.Errorf("expected one usage row for the user, got %d", usageRows)
	}
}

func TestStockGuardHoldsUnderRace(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedItem(t, db, "scone", 300, 5)

	gateway := payment.NewFakeGateway()
	orchestrator := newOrchestrator(db, gateway)

	const orders = 8
	orderIDs := make([]string, orders)
	userIDs := make([]string, orders)
	for i := 0; i < orders; i++ {
		userIDs[i] = fmt.Sprintf("user-%d", i)
		result, err := orchestrator.Checkout(ctx, settlement.CheckoutRequest{
			UserID: userIDs[i],
			Items:  []settlement.CartItem{{ItemID: "scone", Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("checkout %d failed: %v", i, err)
		}
		orderIDs[i] = result.OrderID
	}

	var wg sync.WaitGroup
	results := make(chan error, orders)
	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(orderID, userID string) {
			defer wg.Done()
			_, err := orchestrator.Confirm(ctx, orderID, userID)
			results <- err
		}(orderIDs[i], userIDs[i])
	}
	wg.Wait()
	close(results)

	succeeded, outOfStock := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientStock):
			outOfStock++
		default:
			t.Errorf("unexpected confirm error: %v", err)
		}
	}
	if succeeded != 5 || outOfStock != 3 {
		t.Errorf("expected 5 settlements and 3 stock rejections, got %d/%d", succeeded, outOfStock)
	}
	if got := stockQuantity(t, db, "scone"); got != 0 {
		t.Errorf("expected stock 0, got %d", got)
	}
}

func TestCancelPaidOrderRestoresStockAndRefunds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedItem(t, db, "latte", 500, 10)

	gateway := payment.NewFakeGateway()
	orchestrator := newOrchestrator(db, gateway)

	result, err := orchestrator.Checkout(ctx, settlement.CheckoutRequest{
		UserID: "user-1",
		Items:  []settlement.CartItem{{ItemID: "latte", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if _, err := orchestrator.Confirm(ctx, result.OrderID, "user-1"); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if got := stockQuantity(t, db, "latte"); got != 8 {
		t.Fatalf("expected stock 8 after settlement, got %d", got)
	}

	order, err := orchestrator.Cancel(ctx, result.OrderID, "user-1")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Errorf("expected cancelled, got %s", order.Status)
	}
	if order.Refund.Status != "processed" || order.Refund.Amount != 1000 {
		t.Errorf("expected full refund of 1000, got %+v", order.Refund)
	}

	if got := stockQuantity(t, db, "latte"); got != 10 {
		t.Errorf("expected stock restored to 10, got %d", got)
	}
	if refunds := gateway.Refunds(); len(refunds) != 1 {
		t.Errorf("expected one processor refund, got %d", len(refunds))
	}
}

func TestRewardRedemptionFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	_, err = db.Exec(`
		INSERT INTO rewards (id, name, points_cost, stock_limit, is_active)
		VALUES ('r-mug', 'Branded Mug', 30, 1, TRUE)
	`)
	if err != nil {
		t.Fatalf("failed to seed reward: %v", err)
	}
	if err := ledger.NewRepository(db).Credit(ctx, "user-1", 50, "seed", ""); err != nil {
		t.Fatalf("failed to seed balance: %v", err)
	}

	repo := rewards.NewRepository(db)
	handler := rewards.NewHandler(repo, discardLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /rewards", handler.HandleList)
	mux.HandleFunc("POST /rewards/{id}/redeem", handler.HandleRedeem)

	req := httptest.NewRequest(http.MethodPost, "/rewards/r-mug/redeem", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var redemption domain.RewardRedemption
	if err := json.Unmarshal(rec.Body.Bytes(), &redemption); err != nil {
		t.Fatalf("failed to decode redemption: %v", err)
	}
	if redemption.PointsCost != 30 {
		t.Errorf("expected points cost 30, got %d", redemption.PointsCost)
	}
	if got := pointsBalance(t, db, "user-1"); got != 20 {
		t.Errorf("expected balance 20, got %d", got)
	}

	// Stock limit of one, so the next redemption is sold out.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/rewards/r-mug/redeem", nil)
	req.Header.Set("X-User-ID", "user-1")
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status 409 for sold-out reward, got %d", rec.Code)
	}
	if got := pointsBalance(t, db, "user-1"); got != 20 {
		t.Errorf("sold-out attempt must not debit points, balance %d", got)
	}
}

func TestCouponValidateEndpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	seedCoupon(t, db, &domain.Coupon{
		ID:              "c-save20",
		Code:            "SAVE20",
		Type:            domain.CouponTypePercentage,
		Value:           20,
		MinimumPurchase: 500,
		MaxUsesPerUser:  1,
		ValidFrom:       time.Now().Add(-time.Hour),
		ValidUntil:      time.Now().Add(time.Hour),
	})

	handler := coupon.NewHandler(coupon.NewRepository(db), discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /coupons/validate", handler.HandleValidate)

	validate := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/coupons/validate", strings.NewReader(body))
		req.Header.Set("X-User-ID", "user-1")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := validate(`{"code": "SAVE20", "order_total": 1000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Valid          bool  `json:"valid"`
		DiscountAmount int64 `json:"discount_amount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Valid || resp.DiscountAmount != 200 {
		t.Errorf("expected valid with discount 200, got %+v", resp)
	}

	if rec := validate(`{"code": "NOPE", "order_total": 1000}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown code, got %d", rec.Code)
	}

	rec = validate(`{"code": "SAVE20", "order_total": 300}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422 below minimum purchase, got %d", rec.Code)
	}
}

func TestKafkaEventRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers, cleanup := SetupKafka(ctx, t)
	defer cleanup()

	producer := messaging.NewProducer(brokers, messaging.TopicOrderSettled)
	defer func() { _ = producer.Close() }()

	sent := domain.OrderSettledEvent{
		OrderID:       "order-1",
		OrderNumber:   "ORD-20260901-DEADBEEF",
		UserID:        "user-1",
		TotalAmount:   800,
		PointsEarned:  8,
		PaymentMethod: "card",
		Timestamp:     time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := producer.Publish(ctx, sent.OrderID, sent); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderSettled, "integration-test")
	defer func() { _ = consumer.Close() }()

	received := make(chan domain.OrderSettledEvent, 1)
	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = consumer.Consume(consumeCtx, func(_ context.Context, payload []byte) error {
			var event domain.OrderSettledEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return err
			}
			received <- event
			return nil
		})
	}()

	select {
	case event := <-received:
		if event.OrderID != sent.OrderID || event.PointsEarned != sent.PointsEarned {
			t.Errorf("event mismatch: sent %+v, received %+v", sent, event)
		}
	case <-time.After(60 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
