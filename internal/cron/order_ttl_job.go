package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderflowhq/orderflow-backend/internal/orders"
	"github.com/orderflowhq/orderflow-backend/internal/reservation"
	"github.com/orderflowhq/orderflow-backend/pkg/enums"
	pkgerrors "github.com/orderflowhq/orderflow-backend/pkg/errors"
	"github.com/orderflowhq/orderflow-backend/pkg/logger"
	"github.com/orderflowhq/orderflow-backend/pkg/outbox"
	"github.com/orderflowhq/orderflow-backend/pkg/outbox/payloads"
)

const orderTTLBatchSize = 200

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OrderTTLJobParams configure the stale pending order sweep.
type OrderTTLJobParams struct {
	Logger       *logger.Logger
	DB           txRunner
	Orders       orders.Repository
	Reservations reservation.Service
	Outbox       outboxEmitter
	BatchSize    int
}

// NewOrderTTLJob builds the job that cancels orders whose payment window
// closed without a payment.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = orderTTLBatchSize
	}
	return &orderTTLJob{
		logg:         params.Logger,
		db:           params.DB,
		orderRepo:    params.Orders,
		reservations: params.Reservations,
		outbox:       params.Outbox,
		batchSize:    batch,
		now:          time.Now,
	}, nil
}

type orderTTLJob struct {
	logg         *logger.Logger
	db           txRunner
	orderRepo    orders.Repository
	reservations reservation.Service
	outbox       outboxEmitter
	batchSize    int
	now          func() time.Time
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

// Run expires stale pending orders one transaction at a time. An order paid
// between the list and the lock is left alone.
func (j *orderTTLJob) Run(ctx context.Context) error {
	expired := 0
	for {
		now := j.now().UTC()
		stale, err := j.orderRepo.ListExpiredPending(ctx, now, j.batchSize)
		if err != nil {
			return fmt.Errorf("list expired pending orders: %w", err)
		}
		if len(stale) == 0 {
			break
		}
		for _, order := range stale {
			done, err := j.expireOrder(ctx, order.ID)
			if err != nil {
				return fmt.Errorf("expire order %s: %w", order.ID, err)
			}
			if done {
				expired++
			}
		}
		if len(stale) < j.batchSize {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"expired": expired})
	j.logg.Info(logCtx, "stale order sweep complete")
	return nil
}

func (j *orderTTLJob) expireOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	changed := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		now := j.now().UTC()
		repo := j.orderRepo.WithTx(tx)

		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if order.Status != enums.OrderStatusPending || !order.IsExpired(now) {
			return nil
		}

		next, err := orders.Cancel(*order, now)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
				return nil
			}
			return err
		}
		if err := repo.UpdateStatus(ctx, &next); err != nil {
			return err
		}
		if err := repo.UpdateItemStatuses(ctx, order.ID, enums.OrderItemStatusCancelled, now); err != nil {
			return err
		}
		if _, err := j.reservations.ReleaseHeldForOrderInTx(ctx, tx, order.ID, now, reservation.TriggerExpiry); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderExpiredEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				ExpiredAt:   now,
			},
		}
		if err := j.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}
