package settlement

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/brewtab/brewtab/internal/domain"
)

// Metrics counts settlement outcomes through the global meter provider.
type Metrics struct {
	ordersSettled  metric.Int64Counter
	amountSettled  metric.Int64Counter
	pointsCredited metric.Int64Counter
}

func newMetrics() *Metrics {
	meter := otel.Meter("settlement")

	ordersSettled, _ := meter.Int64Counter("settlement.orders.settled",
		metric.WithDescription("Orders settled, by payment method"))
	amountSettled, _ := meter.Int64Counter("settlement.amount.cents",
		metric.WithDescription("Settled order totals in cents"))
	pointsCredited, _ := meter.Int64Counter("settlement.points.credited",
		metric.WithDescription("Loyalty points credited by settlements"))

	return &Metrics{
		ordersSettled:  ordersSettled,
		amountSettled:  amountSettled,
		pointsCredited: pointsCredited,
	}
}

func (m *Metrics) recordSettlement(ctx context.Context, order *domain.Order) {
	if m == nil {
		return
	}
	method := attribute.String("payment.method", string(order.Payment.Method))
	m.ordersSettled.Add(ctx, 1, metric.WithAttributes(method))
	m.amountSettled.Add(ctx, order.TotalAmount, metric.WithAttributes(method))
	m.pointsCredited.Add(ctx, order.TotalPointsEarned+order.BonusPoints)
}
