package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderflowhq/orderflow-backend/internal/orders"
	"github.com/orderflowhq/orderflow-backend/internal/reservation"
	"github.com/orderflowhq/orderflow-backend/pkg/config"
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
}

// PriceResolver supplies the unit price snapshot taken at order creation.
type PriceResolver interface {
	UnitPriceCents(ctx context.Context, inventoryID uuid.UUID) (int, error)
}

// CouponRedeemer consumes a coupon inside the order transaction and returns
// the discount it grants. A rejected coupon fails the whole order.
type CouponRedeemer interface {
	Redeem(ctx context.Context, tx *gorm.DB, couponID, userID uuid.UUID, totalCents int) (int, error)
}

// Line is one requested order line.
type Line struct {
	InventoryID uuid.UUID
	Qty         int
}

// CreateOrderInput carries everything the saga needs to build an order.
type CreateOrderInput struct {
	UserID         uuid.UUID
	CouponID       *uuid.UUID
	UsePointsCents int
	Lines          []Line
}

// Saga creates orders. Reserving every line, pricing, coupon redemption, the
// order insert, and the created event share one transaction, so a failure at
// any step leaves no partial state behind: the rollback is the compensation.
type Saga struct {
	orderRepo    orders.Repository
	reservations reservation.Service
	outbox       outboxPublisher
	prices       PriceResolver
	coupons      CouponRedeemer
	tx           txRunner
	logg         *logger.Logger
	orderTTL     time.Duration
}

// NewSaga wires the order creation saga. coupons may be nil when the deploy
// has no coupon collaborator; orders carrying a coupon id are then rejected.
func NewSaga(
	orderRepo orders.Repository,
	reservations reservation.Service,
	outboxSvc outboxPublisher,
	prices PriceResolver,
	coupons CouponRedeemer,
	tx txRunner,
	cfg config.CheckoutConfig,
	logg *logger.Logger,
) (*Saga, error) {
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if prices == nil {
		return nil, fmt.Errorf("price resolver required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.OrderTTL <= 0 {
		return nil, fmt.Errorf("order ttl must be positive")
	}
	return &Saga{
		orderRepo:    orderRepo,
		reservations: reservations,
		outbox:       outboxSvc,
		prices:       prices,
		coupons:      coupons,
		tx:           tx,
		logg:         logg,
		orderTTL:     cfg.OrderTTL,
	}, nil
}

// CreateOrder runs the saga. The first line that cannot be reserved aborts
// the transaction; holds taken for earlier lines roll back with it.
func (s *Saga) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.CouponID != nil && s.coupons == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupons are not supported")
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		order := &models.Order{
			ID:          uuid.New(),
			OrderNumber: orders.NewOrderNumber(now),
			UserID:      input.UserID,
			CouponID:    input.CouponID,
			Status:      enums.OrderStatusPending,
			ExpiresAt:   now.Add(s.orderTTL),
		}

		total := 0
		eventLines := make([]payloads.OrderCreatedLine, 0, len(input.Lines))
		for _, line := range input.Lines {
			unitPrice, err := s.prices.UnitPriceCents(ctx, line.InventoryID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving unit price")
			}

			held, err := s.reservations.ReserveInTx(ctx, tx, reservation.ReserveInput{
				InventoryID: line.InventoryID,
				OrderID:     order.ID,
				Qty:         line.Qty,
			}, now)
			if err != nil {
				return err
			}

			subtotal := unitPrice * line.Qty
			total += subtotal
			order.Items = append(order.Items, models.OrderItem{
				InventoryID:    line.InventoryID,
				ReservationID:  held.ID,
				Qty:            line.Qty,
				UnitPriceCents: unitPrice,
				SubtotalCents:  subtotal,
				Status:         enums.OrderItemStatusPending,
			})
			eventLines = append(eventLines, payloads.OrderCreatedLine{
				InventoryID:    line.InventoryID,
				ReservationID:  held.ID,
				Qty:            line.Qty,
				UnitPriceCents: unitPrice,
				SubtotalCents:  subtotal,
			})
		}

		discount := 0
		if input.CouponID != nil {
			var err error
			discount, err = s.coupons.Redeem(ctx, tx, *input.CouponID, input.UserID, total)
			if err != nil {
				return err
			}
			if discount < 0 || discount > total {
				return pkgerrors.New(pkgerrors.CodeDataIntegrity, "coupon discount out of range")
			}
		}

		final := total - discount - input.UsePointsCents
		if final < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "points exceed the payable amount")
		}

		order.TotalAmountCents = total
		order.DiscountCents = discount
		order.UsedPointsCents = input.UsePointsCents
		order.FinalAmountCents = final

		if err := s.orderRepo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "inserting order")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:          order.ID,
				OrderNumber:      order.OrderNumber,
				UserID:           order.UserID,
				TotalAmountCents: order.TotalAmountCents,
				DiscountCents:    order.DiscountCents,
				FinalAmountCents: order.FinalAmountCents,
				ExpiresAt:        order.ExpiresAt,
				Lines:            eventLines,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queueing order created event")
		}

		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	lctx := s.logg.WithOrderID(ctx, created.ID.String())
	s.logg.Info(s.logg.WithFields(lctx, map[string]any{
		"order_number":       created.OrderNumber,
		"lines":              len(created.Items),
		"final_amount_cents": created.FinalAmountCents,
	}), "order created")

	return created, nil
}

func validateInput(input CreateOrderInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one line")
	}
	if input.UsePointsCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "points must not be negative")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.Lines))
	for _, line := range input.Lines {
		if line.InventoryID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "line inventory id is required")
		}
		if line.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive")
		}
		if _, dup := seen[line.InventoryID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate inventory item in order lines")
		}
		seen[line.InventoryID] = struct{}{}
	}
	return nil
}
