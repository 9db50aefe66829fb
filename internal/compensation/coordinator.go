package compensation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderflowhq/orderflow-backend/internal/orders"
	"github.com/orderflowhq/orderflow-backend/internal/reservation"
	"github.com/orderflowhq/orderflow-backend/pkg/db/models"
	"github.com/orderflowhq/orderflow-backend/pkg/enums"
	pkgerrors "github.com/orderflowhq/orderflow-backend/pkg/errors"
	"github.com/orderflowhq/orderflow-backend/pkg/logger"
	"github.com/orderflowhq/orderflow-backend/pkg/outbox"
	"github.com/orderflowhq/orderflow-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type dlqWriter interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

// CompensateInput identifies the failed order and the delivery that reported
// it. EventID and EventType describe the triggering event for the audit trail.
type CompensateInput struct {
	OrderID   uuid.UUID
	Reason    string
	EventID   uuid.UUID
	EventType enums.OutboxEventType
}

// Coordinator undoes an order that cannot complete: the order is cancelled,
// its items are cancelled, and every hold returns its stock. The whole undo
// is one transaction, so a crash mid-compensation changes nothing.
type Coordinator struct {
	orderRepo    orders.Repository
	reservations reservation.Service
	outbox       outboxPublisher
	dlq          dlqWriter
	tx           txRunner
	logg         *logger.Logger
}

// NewCoordinator wires the compensation coordinator.
func NewCoordinator(
	orderRepo orders.Repository,
	reservations reservation.Service,
	outboxSvc outboxPublisher,
	dlq dlqWriter,
	tx txRunner,
	logg *logger.Logger,
) (*Coordinator, error) {
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if dlq == nil {
		return nil, fmt.Errorf("dlq writer required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Coordinator{
		orderRepo:    orderRepo,
		reservations: reservations,
		outbox:       outboxSvc,
		dlq:          dlq,
		tx:           tx,
		logg:         logg,
	}, nil
}

// Compensate processes one failure report. Repeated deliveries for the same
// order converge on the same state: an already cancelled order only gets the
// compensated notification, which the outbox dedupes.
// When the undo itself fails, the report is dead-lettered and a compensated
// event with success=false goes out; the caller then acks the delivery.
func (c *Coordinator) Compensate(ctx context.Context, input CompensateInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	lctx := c.logg.WithOrderID(ctx, input.OrderID.String())

	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		repo := c.orderRepo.WithTx(tx)

		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
		}

		switch order.Status {
		case enums.OrderStatusCancelled:
			// the undo already happened on another path (a previous delivery
			// or the TTL sweep); the compensated notification still has to go
			// out, and the outbox unique index absorbs repeats
			if err := c.outbox.EmitIfNotExists(ctx, tx, c.compensatedEvent(order.ID, input.Reason, true, now)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queueing compensated event")
			}
			c.logg.Info(lctx, "order already cancelled, nothing left to undo")
			return nil
		case enums.OrderStatusPaid:
			// a stale failure report for an order that settled; nothing to undo
			c.logg.Warn(lctx, "ignoring compensation request for a paid order")
			return nil
		}

		next, err := orders.Cancel(*order, now)
		if err != nil {
			return err
		}
		if err := repo.UpdateStatus(ctx, &next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling order")
		}
		if err := repo.UpdateItemStatuses(ctx, order.ID, enums.OrderItemStatusCancelled, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling order items")
		}

		released, err := c.reservations.ReleaseHeldForOrderInTx(ctx, tx, order.ID, now, reservation.TriggerCompensation)
		if err != nil {
			return err
		}

		if err := c.outbox.EmitIfNotExists(ctx, tx, c.compensatedEvent(order.ID, input.Reason, true, now)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queueing compensated event")
		}

		c.logg.Info(c.logg.WithFields(lctx, map[string]any{
			"released_holds": released,
			"reason":         input.Reason,
		}), "order compensated")
		return nil
	})
	if err == nil {
		return nil
	}
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		// nothing to undo for an order that never committed
		c.logg.Warn(lctx, "compensation target does not exist")
		return nil
	}

	return c.deadLetter(ctx, input, err)
}

// Cancel is the operator-initiated undo. Unlike Compensate it refuses orders
// that are already terminal instead of absorbing the request, so the caller
// learns the cancel did not happen.
func (c *Coordinator) Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	lctx := c.logg.WithOrderID(ctx, orderID.String())

	var cancelled *models.Order
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		repo := c.orderRepo.WithTx(tx)

		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
		}

		next, err := orders.Cancel(*order, now)
		if err != nil {
			return err
		}
		if err := repo.UpdateStatus(ctx, &next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling order")
		}
		if err := repo.UpdateItemStatuses(ctx, order.ID, enums.OrderItemStatusCancelled, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling order items")
		}

		released, err := c.reservations.ReleaseHeldForOrderInTx(ctx, tx, order.ID, now, reservation.TriggerManual)
		if err != nil {
			return err
		}

		if err := c.outbox.EmitIfNotExists(ctx, tx, c.compensatedEvent(order.ID, "manual_cancel", true, now)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queueing compensated event")
		}

		c.logg.Info(c.logg.WithFields(lctx, map[string]any{
			"released_holds": released,
		}), "order cancelled")

		cancelled = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// deadLetter records a compensation that could not complete. The failure is
// terminal for the delivery: the row lands in the dead letter table and the
// compensated event reports success=false for downstream observers.
func (c *Coordinator) deadLetter(ctx context.Context, input CompensateInput, cause error) error {
	lctx := c.logg.WithOrderID(ctx, input.OrderID.String())
	c.logg.Error(lctx, "compensation failed, dead-lettering", cause)

	return c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := time.Now().UTC()

		payload, err := json.Marshal(payloads.IntegrationFailedEvent{
			OrderID: input.OrderID,
			Reason:  input.Reason,
		})
		if err != nil {
			return err
		}

		msg := cause.Error()
		eventType := input.EventType
		if eventType == "" {
			eventType = enums.EventOrderIntegrationFailed
		}
		eventID := input.EventID
		if eventID == uuid.Nil {
			eventID = uuid.New()
		}
		if err := c.dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   input.OrderID,
			Payload:       payload,
			ErrorReason:   enums.OutboxDLQReasonCompensation,
			ErrorMessage:  &msg,
			FailedAt:      now,
		}); err != nil {
			return err
		}

		return c.outbox.EmitIfNotExists(ctx, tx, c.compensatedEvent(input.OrderID, input.Reason, false, now))
	})
}

func (c *Coordinator) compensatedEvent(orderID uuid.UUID, reason string, success bool, now time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventOrderCompensated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Version:       1,
		OccurredAt:    now,
		Data: payloads.OrderCompensatedEvent{
			OrderID: orderID,
			Reason:  reason,
			Success: success,
		},
	}
}
