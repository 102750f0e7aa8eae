package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brewtab/brewtab/internal/catalog"
	"github.com/brewtab/brewtab/internal/coupon"
	"github.com/brewtab/brewtab/internal/domain"
	"github.com/brewtab/brewtab/internal/payment"
)

// Catalog resolves line-item references. Read-only from the orchestrator's
// side; stock changes happen inside the Store's commit transaction.
type Catalog interface {
	Resolve(ctx context.Context, itemID string) (*domain.CatalogItem, error)
}

// CouponSource looks up coupons and per-user usage counts for validation.
type CouponSource interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
	CountUserUsage(ctx context.Context, couponID, userID string) (int64, error)
}

// EventPublisher receives settlement lifecycle events. A nil publisher
// disables publication.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Orchestrator runs the settlement control flow: build an order from a
// cart, apply a coupon, pick a payment path, and commit the multi-entity
// side effects exactly once per order.
type Orchestrator struct {
	store     Store
	catalog   Catalog
	coupons   CouponSource
	gateway   payment.Gateway
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

func NewOrchestrator(store Store, catalog Catalog, coupons CouponSource, gateway payment.Gateway, publisher EventPublisher, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		catalog:   catalog,
		coupons:   coupons,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
		metrics:   newMetrics(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type CartItem struct {
	ItemID         string                 `json:"item_id"`
	Quantity       int                    `json:"quantity"`
	Customizations *domain.Customizations `json:"customizations,omitempty"`
}

type CheckoutRequest struct {
	UserID     string
	CafeID     string
	Items      []CartItem
	CouponCode string
	UsePoints  bool
	OrderType  domain.OrderType
}

// Result is the structured outcome handed to the presentation layer.
type Result struct {
	Success               bool               `json:"success"`
	OrderID               string             `json:"order_id"`
	OrderNumber           string             `json:"order_number"`
	Status                domain.OrderStatus `json:"status"`
	TotalAmount           int64              `json:"total_amount"`
	DiscountAmount        int64              `json:"discount_amount"`
	TotalPointsEarned     int64              `json:"total_points_earned"`
	PaymentHandle         string             `json:"payment_handle,omitempty"`
	ClientSecret          string             `json:"client_secret,omitempty"`
	PendingReconciliation bool               `json:"pending_reconciliation,omitempty"`
	FailureReason         string             `json:"failure_reason,omitempty"`
	EstimatedReadyAt      *time.Time         `json:"estimated_ready_at,omitempty"`
}

// Checkout validates the cart, prices it, applies the coupon leniently,
// persists a pending order, and starts the chosen payment path. Validation
// failures abort before anything is written.
func (o *Orchestrator) Checkout(ctx context.Context, req CheckoutRequest) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: empty cart", domain.ErrItemNotFound)
	}
	if req.OrderType == "" {
		req.OrderType = domain.OrderTypePickup
	}

	lines := make([]domain.LineItem, 0, len(req.Items))
	for _, cart := range req.Items {
		if cart.Quantity < 1 {
			return nil, &domain.StockError{ItemID: cart.ItemID, Err: domain.ErrItemNotFound}
		}

		item, err := o.catalog.Resolve(ctx, cart.ItemID)
		if err != nil {
			if errors.Is(err, domain.ErrItemNotFound) {
				return nil, &domain.StockError{ItemID: cart.ItemID, Err: domain.ErrItemNotFound}
			}
			return nil, err
		}

		if !item.InStock || item.StockQuantity < cart.Quantity {
			return nil, &domain.StockError{ItemID: cart.ItemID, Err: domain.ErrInsufficientStock}
		}

		lines = append(lines, domain.LineItem{
			ItemID:         item.ID,
			Kind:           item.Kind,
			Name:           item.Name,
			Category:       item.Category,
			Quantity:       cart.Quantity,
			UnitPrice:      catalog.PriceWithCustomizations(item, cart.Customizations),
			PointsPerUnit:  item.PointsPerUnit,
			Customizations: cart.Customizations,
		})
	}

	var subtotal int64
	for _, line := range lines {
		subtotal += line.LineTotal()
	}

	// Checkout is lenient with coupons: a bad code just means zero discount.
	// The dedicated validation endpoint is the strict path.
	discount := domain.Discount{}
	var bonusPoints int64
	if req.CouponCode != "" {
		c, err := o.coupons.GetByCode(ctx, req.CouponCode)
		switch {
		case errors.Is(err, domain.ErrCouponNotFound):
			o.logger.Info("checkout coupon not found, continuing without discount", "code", req.CouponCode)
		case err != nil:
			return nil, err
		default:
			priorUses, err := o.coupons.CountUserUsage(ctx, c.ID, req.UserID)
			if err != nil {
				return nil, err
			}
			if verr := coupon.Validate(c, priorUses, req.CafeID, subtotal, o.now()); verr != nil {
				o.logger.Info("checkout coupon invalid, continuing without discount",
					"code", req.CouponCode, "reason", verr.Error())
			} else {
				discount = domain.Discount{
					Amount:     coupon.ComputeDiscount(c, subtotal, lines),
					CouponID:   c.ID,
					CouponCode: c.Code,
				}
				bonusPoints = coupon.BonusPoints(c)
			}
		}
	}

	total := subtotal - discount.Amount
	if total < 0 {
		total = 0
	}

	method := domain.PaymentMethodCard
	if req.UsePoints {
		method = domain.PaymentMethodPoints
	}

	order := &domain.Order{
		UserID:      req.UserID,
		CafeID:      req.CafeID,
		Items:       lines,
		Subtotal:    subtotal,
		Discount:    discount,
		TotalAmount: total,
		BonusPoints: bonusPoints,
		OrderType:   req.OrderType,
		Payment:     domain.PaymentInfo{Method: method},
		Refund:      domain.RefundInfo{Status: domain.RefundStatusNone},
		CreatedAt:   o.now(),
	}

	if err := o.store.CreatePending(ctx, order); err != nil {
		return nil, err
	}
	o.logger.Info("order created", "order_id", order.ID, "order_number", order.OrderNumber,
		"user_id", order.UserID, "total", order.TotalAmount, "method", method)

	if req.UsePoints {
		return o.settlePointsPay(ctx, order)
	}
	return o.startProcessorPay(ctx, order)
}

// settlePointsPay debits the ledger and commits in one transaction. The
// balance requirement covers the full total; the debit is the whole-unit
// floor; earning is forced to zero on this path.
func (o *Orchestrator) settlePointsPay(ctx context.Context, order *domain.Order) (*Result, error) {
	settled, newly, err := o.store.Settle(ctx, SettleParams{
		OrderID:         order.ID,
		Method:          domain.PaymentMethodPoints,
		PointsToDebit:   pointsFloor(order.TotalAmount),
		MinBalance:      pointsCeil(order.TotalAmount),
		PointsToCredit:  0,
		BonusPoints:     order.BonusPoints,
		BonusCouponCode: order.Discount.CouponCode,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientPoints) {
			// Order stays pending; the caller may retry with another method.
			return nil, domain.ErrInsufficientPoints
		}
		return nil, err
	}

	if newly {
		o.afterSettle(ctx, settled)
	}

	return o.successResult(settled), nil
}

// startProcessorPay creates a payment intent and leaves the order pending
// until a confirm call or webhook arrives. A zero total needs no charge and
// settles immediately.
func (o *Orchestrator) startProcessorPay(ctx context.Context, order *domain.Order) (*Result, error) {
	if order.TotalAmount == 0 {
		return o.commitProcessorPaid(ctx, order, "")
	}

	charge, err := o.gateway.CreateCharge(ctx, payment.ChargeRequest{
		Amount:   order.TotalAmount,
		Currency: "usd",
		OrderID:  order.ID,
		Metadata: map[string]string{"order_number": order.OrderNumber},
	})
	if err != nil {
		if errors.Is(err, payment.ErrOutcomeUnknown) {
			// The charge may exist on the processor side. Leave the order
			// pending; the webhook or a status check will reconcile it.
			o.logger.Warn("charge outcome unknown", "order_id", order.ID)
			return &Result{
				Success:               false,
				OrderID:               order.ID,
				OrderNumber:           order.OrderNumber,
				Status:                domain.OrderStatusPending,
				TotalAmount:           order.TotalAmount,
				PendingReconciliation: true,
			}, nil
		}

		var gerr *payment.GatewayError
		if errors.As(err, &gerr) {
			if rerr := o.store.RecordPaymentFailure(ctx, order.ID, gerr.Message); rerr != nil {
				o.logger.Error("failed to record payment failure", "error", rerr, "order_id", order.ID)
			}
		}
		return nil, err
	}

	if err := o.store.SetTransactionID(ctx, order.ID, charge.Handle); err != nil {
		return nil, err
	}

	return &Result{
		Success:        true,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         domain.OrderStatusPending,
		TotalAmount:    order.TotalAmount,
		DiscountAmount: order.Discount.Amount,
		PaymentHandle:  charge.Handle,
		ClientSecret:   charge.ClientSecret,
	}, nil
}

// Confirm finalizes a processor-paid order after the client reports payment.
// Confirming an already-settled order is a no-op returning the same result.
func (o *Orchestrator) Confirm(ctx context.Context, orderID, userID string) (*Result, error) {
	order, err := o.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if userID != "" && order.UserID != userID {
		return nil, domain.ErrPermissionDenied
	}

	if order.Payment.Paid {
		return o.successResult(order), nil
	}
	if order.Status == domain.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: order is cancelled", domain.ErrInvalidTransition)
	}

	handle := order.Payment.TransactionID
	if handle == "" {
		return nil, &payment.GatewayError{Message: "no payment attempt on this order"}
	}

	status, err := o.gateway.ConfirmCharge(ctx, handle)
	if err != nil {
		if errors.Is(err, payment.ErrOutcomeUnknown) {
			return &Result{
				Success:               false,
				OrderID:               order.ID,
				OrderNumber:           order.OrderNumber,
				Status:                order.Status,
				TotalAmount:           order.TotalAmount,
				PendingReconciliation: true,
			}, nil
		}
		return nil, err
	}

	if !status.Paid {
		reason := status.FailureReason
		if reason == "" {
			reason = "payment was not completed"
		}
		if rerr := o.store.RecordPaymentFailure(ctx, order.ID, reason); rerr != nil {
			o.logger.Error("failed to record payment failure", "error", rerr, "order_id", order.ID)
		}
		return &Result{
			Success:       false,
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			Status:        order.Status,
			TotalAmount:   order.TotalAmount,
			FailureReason: reason,
		}, nil
	}

	return o.commitProcessorPaid(ctx, order, handle)
}

// HandleWebhookEvent funnels asynchronous processor events into the same
// idempotent commit the confirm path uses. Duplicate and out-of-order
// deliveries are safe: the paid CAS makes the second commit a no-op.
func (o *Orchestrator) HandleWebhookEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := o.gateway.VerifyWebhookSignature(payload, signature)
	if err != nil {
		return err
	}

	switch event.Type {
	case payment.EventChargeSucceeded:
		order, err := o.store.GetOrder(ctx, event.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
		if order.Payment.Paid {
			return nil
		}

		handle := event.Handle
		if handle == "" {
			handle = order.Payment.TransactionID
		}
		_, err = o.commitProcessorPaid(ctx, order, handle)
		if errors.Is(err, domain.ErrInvalidTransition) {
			// The charge was captured but the order already left pending,
			// typically cancelled first. Hand the money back, record the
			// outcome, and acknowledge so the processor stops retrying.
			if order.Refund.Status == domain.RefundStatusProcessed {
				return nil
			}
			refund := o.refundCharge(ctx, order, handle, "charge captured after cancellation")
			if rerr := o.store.RecordRefund(ctx, order.ID, refund); rerr != nil {
				o.logger.Error("failed to record refund", "error", rerr, "order_id", order.ID)
			}
			o.logger.Warn("charge captured for non-payable order, refunded",
				"order_id", order.ID, "handle", handle, "refund_status", refund.Status)
			return nil
		}
		return err

	case payment.EventChargeFailed:
		reason := event.FailureReason
		if reason == "" {
			reason = "charge failed"
		}
		o.logger.Info("charge failed", "order_id", event.OrderID, "reason", reason)
		return o.store.RecordPaymentFailure(ctx, event.OrderID, reason)

	default:
		o.logger.Info("ignoring webhook event", "type", event.Type)
		return nil
	}
}

// commitProcessorPaid runs the commit for a confirmed non-points payment:
// earning is the whole-unit floor of the post-discount total.
func (o *Orchestrator) commitProcessorPaid(ctx context.Context, order *domain.Order, handle string) (*Result, error) {
	settled, newly, err := o.store.Settle(ctx, SettleParams{
		OrderID:         order.ID,
		Method:          domain.PaymentMethodCard,
		TransactionID:   handle,
		PointsToCredit:  pointsFloor(order.TotalAmount),
		BonusPoints:     order.BonusPoints,
		BonusCouponCode: order.Discount.CouponCode,
	})
	if err != nil {
		return nil, err
	}

	if newly {
		o.afterSettle(ctx, settled)
	}

	return o.successResult(settled), nil
}

// Cancel stops an order that has not gone to preparation. A paid order gets
// its stock restored in the cancel transaction and a refund attempt after;
// the refund outcome is recorded but never un-cancels the order.
func (o *Orchestrator) Cancel(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	order, err := o.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if userID != "" && order.UserID != userID {
		return nil, domain.ErrPermissionDenied
	}
	if !order.Status.Cancellable() {
		return nil, fmt.Errorf("%w: order is %s", domain.ErrInvalidTransition, order.Status)
	}

	cancelled, err := o.store.Cancel(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// The refund decision reads the cancelled order, not the snapshot from
	// before the cancel: a webhook settlement may have landed in between,
	// and that payment still has to come back.
	refund := domain.RefundInfo{Status: domain.RefundStatusNone}
	if cancelled.Payment.Paid {
		refund = o.refundPaidOrder(ctx, cancelled)
		if err := o.store.RecordRefund(ctx, orderID, refund); err != nil {
			o.logger.Error("failed to record refund", "error", err, "order_id", orderID)
		}
		cancelled.Refund = refund
	}

	o.logger.Info("order cancelled", "order_id", orderID, "refund_status", refund.Status)
	o.publish(ctx, orderID, domain.OrderCancelledEvent{
		OrderID:      cancelled.ID,
		OrderNumber:  cancelled.OrderNumber,
		UserID:       cancelled.UserID,
		RefundStatus: string(refund.Status),
		RefundAmount: refund.Amount,
		Timestamp:    o.now(),
	})

	return cancelled, nil
}

func (o *Orchestrator) refundPaidOrder(ctx context.Context, order *domain.Order) domain.RefundInfo {
	if order.Payment.Method == domain.PaymentMethodPoints {
		// Points purchases are refunded back onto the ledger.
		debited := pointsFloor(order.TotalAmount)
		if err := o.store.CreditPoints(ctx, order.UserID, debited,
			"Refund for cancelled order "+order.OrderNumber, order.ID); err != nil {
			o.logger.Error("failed to refund points", "error", err, "order_id", order.ID)
			return domain.RefundInfo{Status: domain.RefundStatusFailed, Amount: order.TotalAmount}
		}
		return domain.RefundInfo{Status: domain.RefundStatusProcessed, Amount: order.TotalAmount}
	}

	return o.refundCharge(ctx, order, order.Payment.TransactionID, "order cancelled")
}

// refundCharge sends a full refund for a captured charge and reports the
// outcome without failing the caller.
func (o *Orchestrator) refundCharge(ctx context.Context, order *domain.Order, handle, reason string) domain.RefundInfo {
	if handle == "" || order.TotalAmount == 0 {
		return domain.RefundInfo{Status: domain.RefundStatusNone}
	}

	result, err := o.gateway.Refund(ctx, handle, order.TotalAmount, reason)
	if err != nil {
		// Reported, not retried. A support path picks failed refunds up.
		o.logger.Error("refund request failed", "error", err, "order_id", order.ID)
		return domain.RefundInfo{Status: domain.RefundStatusFailed, Amount: order.TotalAmount}
	}

	status := domain.RefundStatusProcessed
	if result.Status != "processed" {
		status = domain.RefundStatusFailed
	}
	return domain.RefundInfo{Status: status, Amount: order.TotalAmount, RefundID: result.RefundID}
}

func (o *Orchestrator) afterSettle(ctx context.Context, order *domain.Order) {
	o.metrics.recordSettlement(ctx, order)
	o.logger.Info("order settled", "order_id", order.ID, "order_number", order.OrderNumber,
		"total", order.TotalAmount, "points_earned", order.TotalPointsEarned,
		"method", order.Payment.Method)

	o.publish(ctx, order.ID, domain.OrderSettledEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		TotalAmount:   order.TotalAmount,
		PointsEarned:  order.TotalPointsEarned,
		PaymentMethod: string(order.Payment.Method),
		Timestamp:     o.now(),
	})
}

func (o *Orchestrator) publish(ctx context.Context, key string, event any) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, key, event); err != nil {
		o.logger.Error("failed to publish event", "error", err, "key", key)
	}
}

func (o *Orchestrator) successResult(order *domain.Order) *Result {
	result := &Result{
		Success:           true,
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		Status:            order.Status,
		TotalAmount:       order.TotalAmount,
		DiscountAmount:    order.Discount.Amount,
		TotalPointsEarned: order.TotalPointsEarned,
	}

	if order.Status == domain.OrderStatusConfirmed {
		ready := o.now().Add(readyOffset(order.OrderType))
		result.EstimatedReadyAt = &ready
	}

	return result
}

func readyOffset(orderType domain.OrderType) time.Duration {
	switch orderType {
	case domain.OrderTypeDelivery:
		return 40 * time.Minute
	case domain.OrderTypeDineIn:
		return 10 * time.Minute
	default:
		return 15 * time.Minute
	}
}

// pointsFloor is the earning and debit formula: 1 point per whole currency
// unit of the post-discount total.
func pointsFloor(cents int64) int64 {
	return cents / 100
}

// pointsCeil is the balance requirement on the points-pay path: the balance
// must cover the full total, fractional cents included.
func pointsCeil(cents int64) int64 {
	return (cents + 99) / 100
}

