package messaging

import (
	"context"

	"github.com/brewtab/brewtab/internal/domain"
)

// Kafka topics carrying settlement lifecycle events. Producers key
// messages by order ID so events for one order stay ordered within a
// partition.
const (
	TopicOrderSettled   = "order.settled"
	TopicOrderCancelled = "order.cancelled"
)

// Events fans settlement lifecycle events out to their topics. It satisfies
// the settlement orchestrator's publisher interface.
type Events struct {
	settled   *Producer
	cancelled *Producer
}

func NewEvents(brokers []string) *Events {
	return &Events{
		settled:   NewProducer(brokers, TopicOrderSettled),
		cancelled: NewProducer(brokers, TopicOrderCancelled),
	}
}

func (e *Events) Publish(ctx context.Context, key string, event any) error {
	return e.producerFor(event).Publish(ctx, key, event)
}

func (e *Events) producerFor(event any) *Producer {
	if _, ok := event.(domain.OrderCancelledEvent); ok {
		return e.cancelled
	}
	return e.settled
}

func (e *Events) Close() error {
	settledErr := e.settled.Close()
	cancelledErr := e.cancelled.Close()
	if settledErr != nil {
		return settledErr
	}
	return cancelledErr
}
