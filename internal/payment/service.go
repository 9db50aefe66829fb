package payment

import (
	"context"
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
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PointsDebiter withdraws loyalty points inside the payment transaction.
type PointsDebiter interface {
	Debit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amountCents int) error
}

// PayInput identifies the order being settled.
type PayInput struct {
	OrderID uuid.UUID
}

// Service settles orders. Settlement is one transaction: the order lock, the
// per-line reservation confirmations, the points debit, and the paid event
// commit together or not at all.
type Service interface {
	Pay(ctx context.Context, input PayInput) (*models.Order, error)
	ReportIntegrationFailure(ctx context.Context, orderID uuid.UUID, reason string) error
}

type service struct {
	orderRepo    orders.Repository
	reservations reservation.Service
	outbox       outboxPublisher
	points       PointsDebiter
	tx           txRunner
	logg         *logger.Logger
}

// NewService wires the payment service. points may be nil when no loyalty
// collaborator is deployed; orders that used points then fail settlement.
func NewService(
	orderRepo orders.Repository,
	reservations reservation.Service,
	outboxSvc outboxPublisher,
	points PointsDebiter,
	tx txRunner,
	logg *logger.Logger,
) (Service, error) {
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		orderRepo:    orderRepo,
		reservations: reservations,
		outbox:       outboxSvc,
		points:       points,
		tx:           tx,
		logg:         logg,
	}, nil
}

func (s *service) Pay(ctx context.Context, input PayInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	var paid *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		repo := s.orderRepo.WithTx(tx)

		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
		}

		next, err := orders.Pay(*order, now)
		if err != nil {
			return err
		}

		// every line must still hold its reservation; one expired hold
		// fails the whole payment and the transaction rolls back
		for _, item := range order.Items {
			if _, err := s.reservations.ConfirmInTx(ctx, tx, item.InventoryID, order.ID, now); err != nil {
				if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
					// a pending order line without a reservation row means
					// the two stores disagree, not that the caller was wrong
					return pkgerrors.Wrap(pkgerrors.CodeDataIntegrity, err,
						fmt.Sprintf("order line %s has no reservation", item.InventoryID))
				}
				return err
			}
		}

		if order.UsedPointsCents > 0 {
			if s.points == nil {
				return pkgerrors.New(pkgerrors.CodeDependency, "points are not supported")
			}
			if err := s.points.Debit(ctx, tx, order.UserID, order.UsedPointsCents); err != nil {
				return err
			}
		}

		if err := repo.UpdateStatus(ctx, &next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting paid order")
		}
		if err := repo.UpdateItemStatuses(ctx, order.ID, enums.OrderItemStatusConfirmed, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirming order items")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderPaidEvent{
				OrderID:          order.ID,
				OrderNumber:      order.OrderNumber,
				UserID:           order.UserID,
				FinalAmountCents: order.FinalAmountCents,
				UsedPointsCents:  order.UsedPointsCents,
				PaidAt:           now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queueing order paid event")
		}

		next.Items = order.Items
		paid = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, paid.ID.String()), "order paid")
	return paid, nil
}

// ReportIntegrationFailure records that an external settlement step failed
// after the order was created. The event feeds the compensation worker; one
// failure per order is enough, repeats are absorbed.
func (s *service) ReportIntegrationFailure(ctx context.Context, orderID uuid.UUID, reason string) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if reason == "" {
		reason = "unspecified"
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderIntegrationFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Version:       1,
			OccurredAt:    time.Now().UTC(),
			Data: payloads.IntegrationFailedEvent{
				OrderID: orderID,
				Reason:  reason,
			},
		})
	})
}
