package compensation

import (
	"context"
	"encoding/json"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/orderflowhq/orderflow-backend/pkg/enums"
	"github.com/orderflowhq/orderflow-backend/pkg/logger"
	"github.com/orderflowhq/orderflow-backend/pkg/outbox"
	"github.com/orderflowhq/orderflow-backend/pkg/outbox/idempotency"
	"github.com/orderflowhq/orderflow-backend/pkg/outbox/payloads"
)

const consumerName = "compensation-worker"

type dedupGuard interface {
	IsProcessed(ctx context.Context, consumer, key string) (bool, error)
	CheckAndMarkProcessed(ctx context.Context, consumer, key string) (bool, error)
}

// Consumer feeds integration failure reports into the coordinator. Delivery
// is at-least-once; the dedup guard keyed on (order, event type) collapses
// broker redeliveries and publisher retries onto one compensation.
type Consumer struct {
	coordinator  *Coordinator
	subscription *pubsub.Subscriber
	dedup        dedupGuard
	logg         *logger.Logger
}

// NewConsumer constructs a consumer watching the integration-failed subscription.
func NewConsumer(coordinator *Coordinator, subscription *pubsub.Subscriber, dedup dedupGuard, logg *logger.Logger) (*Consumer, error) {
	if coordinator == nil {
		return nil, errors.New("coordinator is required")
	}
	if subscription == nil {
		return nil, errors.New("subscription is required")
	}
	if dedup == nil {
		return nil, errors.New("dedup guard is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		coordinator:  coordinator,
		subscription: subscription,
		dedup:        dedup,
		logg:         logg,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.Process(ctx, msg.ID, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Process handles one delivery and reports whether it should be acked.
// Malformed payloads are acked; they would poison the subscription forever.
func (c *Consumer) Process(ctx context.Context, messageID string, data []byte) bool {
	logCtx := c.logg.WithField(ctx, "message_id", messageID)

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "dropping malformed envelope", err)
		return true
	}

	var event payloads.IntegrationFailedEvent
	if err := json.Unmarshal(envelope.Data, &event); err != nil {
		c.logg.Error(logCtx, "dropping malformed integration failure payload", err)
		return true
	}
	if event.OrderID == uuid.Nil {
		c.logg.Error(logCtx, "dropping failure report without order id", errors.New("empty order_id"))
		return true
	}

	logCtx = c.logg.WithOrderID(logCtx, event.OrderID.String())

	key := idempotency.DomainKey(event.OrderID.String(), string(enums.EventOrderIntegrationFailed))
	processed, err := c.dedup.IsProcessed(ctx, consumerName, key)
	if err != nil {
		// the coordinator absorbs duplicate runs, so a broken dedup store
		// costs extra work instead of a dropped compensation
		c.logg.Error(logCtx, "dedup check failed, compensating anyway", err)
	} else if processed {
		c.logg.Info(logCtx, "duplicate failure report, skipping")
		return true
	}

	eventID, _ := uuid.Parse(envelope.EventID)
	if err := c.coordinator.Compensate(ctx, CompensateInput{
		OrderID:   event.OrderID,
		Reason:    event.Reason,
		EventID:   eventID,
		EventType: enums.EventOrderIntegrationFailed,
	}); err != nil {
		c.logg.Error(logCtx, "compensation processing failed", err)
		return false
	}

	// mark only after the outcome is durable; a lost marker reruns an
	// idempotent compensation, an early marker could drop one
	if _, err := c.dedup.CheckAndMarkProcessed(ctx, consumerName, key); err != nil {
		c.logg.Error(logCtx, "recording processed marker failed", err)
	}
	return true
}
