package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/orderflowhq/orderflow-backend/internal/inventory"
	"github.com/orderflowhq/orderflow-backend/internal/orders"
	"github.com/orderflowhq/orderflow-backend/internal/reservation"
	"github.com/orderflowhq/orderflow-backend/pkg/config"
	"github.com/orderflowhq/orderflow-backend/pkg/db"
	"github.com/orderflowhq/orderflow-backend/pkg/db/models"
	"github.com/orderflowhq/orderflow-backend/pkg/enums"
	pkgerrors "github.com/orderflowhq/orderflow-backend/pkg/errors"
	"github.com/orderflowhq/orderflow-backend/pkg/logger"
	"github.com/orderflowhq/orderflow-backend/pkg/metrics"
	"github.com/orderflowhq/orderflow-backend/pkg/outbox"
)

type staticPrices map[uuid.UUID]int

func (p staticPrices) UnitPriceCents(_ context.Context, inventoryID uuid.UUID) (int, error) {
	price, ok := p[inventoryID]
	if !ok {
		return 0, errors.New("unknown inventory item")
	}
	return price, nil
}

type stubCoupons struct {
	discount int
	err      error
	calls    int
}

func (c *stubCoupons) Redeem(_ context.Context, _ *gorm.DB, _, _ uuid.UUID, _ int) (int, error) {
	c.calls++
	return c.discount, c.err
}

type sagaFixture struct {
	conn    *gorm.DB
	saga    *Saga
	prices  staticPrices
	coupons *stubCoupons
	invRepo inventory.Repository
}

func setupSaga(t *testing.T) *sagaFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, conn.AutoMigrate(
		&models.InventoryItem{},
		&models.StockReservation{},
		&models.StockHistory{},
		&models.Order{},
		&models.OrderItem{},
		&models.OutboxEvent{},
	))

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	client := db.NewWithConn(conn)
	cfg := config.CheckoutConfig{ReservationTTL: 15 * time.Minute, OrderTTL: 15 * time.Minute, ReserveMaxAttempts: 3}

	invRepo := inventory.NewRepository(conn)
	resSvc, err := reservation.NewService(
		reservation.NewRepository(conn), invRepo, client, cfg, logg,
		metrics.NewReservationMetrics(nil),
	)
	require.NoError(t, err)

	prices := staticPrices{}
	coupons := &stubCoupons{}
	saga, err := NewSaga(
		orders.NewRepository(conn),
		resSvc,
		outbox.NewService(outbox.NewRepository(conn), logg),
		prices,
		coupons,
		client,
		cfg,
		logg,
	)
	require.NoError(t, err)

	return &sagaFixture{conn: conn, saga: saga, prices: prices, coupons: coupons, invRepo: invRepo}
}

func (f *sagaFixture) seedItem(t *testing.T, stock, priceCents int) *models.InventoryItem {
	t.Helper()
	item := &models.InventoryItem{ID: uuid.New(), SKU: "SKU-" + uuid.NewString()[:8], PhysicalStock: stock}
	require.NoError(t, f.conn.Create(item).Error)
	f.prices[item.ID] = priceCents
	return item
}

func (f *sagaFixture) countRows(t *testing.T, model any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(model).Count(&count).Error)
	return count
}

func TestCreateOrderHappyPath(t *testing.T) {
	f := setupSaga(t)
	ctx := context.Background()

	itemA := f.seedItem(t, 10, 1500)
	itemB := f.seedItem(t, 10, 700)

	order, err := f.saga.CreateOrder(ctx, CreateOrderInput{
		UserID: uuid.New(),
		Lines: []Line{
			{InventoryID: itemA.ID, Qty: 2},
			{InventoryID: itemB.ID, Qty: 3},
		},
	})
	require.NoError(t, err)

	require.Equal(t, enums.OrderStatusPending, order.Status)
	require.Equal(t, 2*1500+3*700, order.TotalAmountCents)
	require.Equal(t, order.TotalAmountCents, order.FinalAmountCents)
	require.Len(t, order.Items, 2)
	for _, item := range order.Items {
		require.NotEqual(t, uuid.Nil, item.ReservationID)
		require.Equal(t, enums.OrderItemStatusPending, item.Status)
	}

	stockA, err := f.invRepo.FindByID(ctx, itemA.ID)
	require.NoError(t, err)
	require.Equal(t, 8, stockA.PhysicalStock)
	stockB, err := f.invRepo.FindByID(ctx, itemB.ID)
	require.NoError(t, err)
	require.Equal(t, 7, stockB.PhysicalStock)

	var event models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", enums.EventOrderCreated).First(&event).Error)
	require.Equal(t, order.ID, event.AggregateID)
	require.Nil(t, event.PublishedAt)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(event.Payload, &envelope))
	require.NotEmpty(t, envelope.EventID)
}

func TestCreateOrderAbortsWhollyOnInsufficientLine(t *testing.T) {
	f := setupSaga(t)
	ctx := context.Background()

	itemA := f.seedItem(t, 10, 1000)
	itemB := f.seedItem(t, 1, 1000)

	_, err := f.saga.CreateOrder(ctx, CreateOrderInput{
		UserID: uuid.New(),
		Lines: []Line{
			{InventoryID: itemA.ID, Qty: 5},
			{InventoryID: itemB.ID, Qty: 2},
		},
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))

	stockA, err := f.invRepo.FindByID(ctx, itemA.ID)
	require.NoError(t, err)
	require.Equal(t, 10, stockA.PhysicalStock, "rollback must restore the first line's hold")
	stockB, err := f.invRepo.FindByID(ctx, itemB.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stockB.PhysicalStock)

	require.Zero(t, f.countRows(t, &models.Order{}))
	require.Zero(t, f.countRows(t, &models.StockReservation{}))
	require.Zero(t, f.countRows(t, &models.OutboxEvent{}), "no event for a rolled back order")
}

func TestCreateOrderWithCouponAndPoints(t *testing.T) {
	f := setupSaga(t)
	ctx := context.Background()

	item := f.seedItem(t, 10, 2000)
	couponID := uuid.New()
	f.coupons.discount = 500

	order, err := f.saga.CreateOrder(ctx, CreateOrderInput{
		UserID:         uuid.New(),
		CouponID:       &couponID,
		UsePointsCents: 300,
		Lines:          []Line{{InventoryID: item.ID, Qty: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.coupons.calls)
	require.Equal(t, 2000, order.TotalAmountCents)
	require.Equal(t, 500, order.DiscountCents)
	require.Equal(t, 300, order.UsedPointsCents)
	require.Equal(t, 1200, order.FinalAmountCents)
}

func TestCreateOrderCouponFailureAborts(t *testing.T) {
	f := setupSaga(t)
	ctx := context.Background()

	item := f.seedItem(t, 10, 2000)
	couponID := uuid.New()
	f.coupons.err = pkgerrors.New(pkgerrors.CodeValidation, "coupon already used")

	_, err := f.saga.CreateOrder(ctx, CreateOrderInput{
		UserID:   uuid.New(),
		CouponID: &couponID,
		Lines:    []Line{{InventoryID: item.ID, Qty: 1}},
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	stock, err := f.invRepo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 10, stock.PhysicalStock)
	require.Zero(t, f.countRows(t, &models.Order{}))
}

func TestCreateOrderPointsExceedPayable(t *testing.T) {
	f := setupSaga(t)
	ctx := context.Background()

	item := f.seedItem(t, 10, 1000)

	_, err := f.saga.CreateOrder(ctx, CreateOrderInput{
		UserID:         uuid.New(),
		UsePointsCents: 1001,
		Lines:          []Line{{InventoryID: item.ID, Qty: 1}},
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	stock, err := f.invRepo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 10, stock.PhysicalStock)
}

func TestCreateOrderInputValidation(t *testing.T) {
	f := setupSaga(t)
	ctx := context.Background()
	item := f.seedItem(t, 10, 1000)

	cases := []CreateOrderInput{
		{Lines: []Line{{InventoryID: item.ID, Qty: 1}}},
		{UserID: uuid.New()},
		{UserID: uuid.New(), Lines: []Line{{InventoryID: uuid.Nil, Qty: 1}}},
		{UserID: uuid.New(), Lines: []Line{{InventoryID: item.ID, Qty: 0}}},
		{UserID: uuid.New(), Lines: []Line{{InventoryID: item.ID, Qty: 1}, {InventoryID: item.ID, Qty: 2}}},
		{UserID: uuid.New(), UsePointsCents: -1, Lines: []Line{{InventoryID: item.ID, Qty: 1}}},
	}
	for i, input := range cases {
		_, err := f.saga.CreateOrder(ctx, input)
		require.Truef(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "case %d: got %v", i, err)
	}
}
