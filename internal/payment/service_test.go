package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/orderflowhq/orderflow-backend/internal/checkout"
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

type mapPrices map[uuid.UUID]int

func (p mapPrices) UnitPriceCents(_ context.Context, inventoryID uuid.UUID) (int, error) {
	price, ok := p[inventoryID]
	if !ok {
		return 0, errors.New("unknown inventory item")
	}
	return price, nil
}

type stubPoints struct {
	err     error
	debits  []int
	userIDs []uuid.UUID
}

func (p *stubPoints) Debit(_ context.Context, _ *gorm.DB, userID uuid.UUID, amountCents int) error {
	if p.err != nil {
		return p.err
	}
	p.debits = append(p.debits, amountCents)
	p.userIDs = append(p.userIDs, userID)
	return nil
}

type paymentFixture struct {
	conn   *gorm.DB
	saga   *checkout.Saga
	svc    Service
	points *stubPoints
	prices mapPrices
}

func setupPayment(t *testing.T) *paymentFixture {
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
		&models.Order{},
		&models.OrderItem{},
		&models.OutboxEvent{},
	))

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	client := db.NewWithConn(conn)
	cfg := config.CheckoutConfig{ReservationTTL: 15 * time.Minute, OrderTTL: 15 * time.Minute, ReserveMaxAttempts: 3}

	resSvc, err := reservation.NewService(
		reservation.NewRepository(conn), inventory.NewRepository(conn), client, cfg, logg,
		metrics.NewReservationMetrics(nil),
	)
	require.NoError(t, err)

	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	prices := mapPrices{}
	saga, err := checkout.NewSaga(
		orders.NewRepository(conn), resSvc, outboxSvc, prices, nil, client, cfg, logg,
	)
	require.NoError(t, err)

	points := &stubPoints{}
	svc, err := NewService(orders.NewRepository(conn), resSvc, outboxSvc, points, client, logg)
	require.NoError(t, err)

	return &paymentFixture{conn: conn, saga: saga, svc: svc, points: points, prices: prices}
}

func (f *paymentFixture) createOrder(t *testing.T, stock, qty, usePoints int) *models.Order {
	t.Helper()
	item := &models.InventoryItem{ID: uuid.New(), SKU: "SKU-" + uuid.NewString()[:8], PhysicalStock: stock}
	require.NoError(t, f.conn.Create(item).Error)
	f.prices[item.ID] = 1000

	order, err := f.saga.CreateOrder(context.Background(), checkout.CreateOrderInput{
		UserID:         uuid.New(),
		UsePointsCents: usePoints,
		Lines:          []checkout.Line{{InventoryID: item.ID, Qty: qty}},
	})
	require.NoError(t, err)
	return order
}

func TestPayHappyPath(t *testing.T) {
	f := setupPayment(t)
	ctx := context.Background()

	order := f.createOrder(t, 10, 2, 0)

	paid, err := f.svc.Pay(ctx, PayInput{OrderID: order.ID})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPaid, paid.Status)

	var res models.StockReservation
	require.NoError(t, f.conn.Where("order_id = ?", order.ID).First(&res).Error)
	require.Equal(t, enums.ReservationStatusConfirmed, res.Status)

	var items []models.OrderItem
	require.NoError(t, f.conn.Where("order_id = ?", order.ID).Find(&items).Error)
	for _, item := range items {
		require.Equal(t, enums.OrderItemStatusConfirmed, item.Status)
	}

	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderPaid).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestPayTwiceIsConflict(t *testing.T) {
	f := setupPayment(t)
	ctx := context.Background()

	order := f.createOrder(t, 10, 1, 0)
	_, err := f.svc.Pay(ctx, PayInput{OrderID: order.ID})
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, PayInput{OrderID: order.ID})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestPayExpiredOrder(t *testing.T) {
	f := setupPayment(t)
	ctx := context.Background()

	order := f.createOrder(t, 10, 1, 0)
	require.NoError(t, f.conn.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error)

	_, err := f.svc.Pay(ctx, PayInput{OrderID: order.ID})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeOrderExpired))

	var loaded models.Order
	require.NoError(t, f.conn.First(&loaded, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPending, loaded.Status)
}

func TestPayWithExpiredReservationRollsBack(t *testing.T) {
	f := setupPayment(t)
	ctx := context.Background()

	order := f.createOrder(t, 10, 1, 0)
	require.NoError(t, f.conn.Model(&models.StockReservation{}).
		Where("order_id = ?", order.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error)

	_, err := f.svc.Pay(ctx, PayInput{OrderID: order.ID})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeReservationExpired))

	var loaded models.Order
	require.NoError(t, f.conn.First(&loaded, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPending, loaded.Status)

	var res models.StockReservation
	require.NoError(t, f.conn.Where("order_id = ?", order.ID).First(&res).Error)
	require.Equal(t, enums.ReservationStatusHeld, res.Status, "failed payment must not confirm lines")
}

func TestPayMissingReservationIsDataIntegrity(t *testing.T) {
	f := setupPayment(t)
	ctx := context.Background()

	order := f.createOrder(t, 10, 1, 0)
	require.NoError(t, f.conn.Where("order_id = ?", order.ID).
		Delete(&models.StockReservation{}).Error)

	_, err := f.svc.Pay(ctx, PayInput{OrderID: order.ID})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDataIntegrity))

	var loaded models.Order
	require.NoError(t, f.conn.First(&loaded, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPending, loaded.Status)
}

func TestPayDebitsPoints(t *testing.T) {
	f := setupPayment(t)
	ctx := context.Background()

	order := f.createOrder(t, 10, 1, 250)

	paid, err := f.svc.Pay(ctx, PayInput{OrderID: order.ID})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPaid, paid.Status)
	require.Equal(t, []int{250}, f.points.debits)
	require.Equal(t, []uuid.UUID{order.UserID}, f.points.userIDs)
}

func TestPayPointsDebitFailureRollsBack(t *testing.T) {
	f := setupPayment(t)
	ctx := context.Background()

	order := f.createOrder(t, 10, 1, 250)
	f.points.err = pkgerrors.New(pkgerrors.CodeValidation, "not enough points")

	_, err := f.svc.Pay(ctx, PayInput{OrderID: order.ID})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	var loaded models.Order
	require.NoError(t, f.conn.First(&loaded, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPending, loaded.Status)

	var res models.StockReservation
	require.NoError(t, f.conn.Where("order_id = ?", order.ID).First(&res).Error)
	require.Equal(t, enums.ReservationStatusHeld, res.Status)
}

func TestReportIntegrationFailureIsIdempotent(t *testing.T) {
	f := setupPayment(t)
	ctx := context.Background()

	orderID := uuid.New()
	require.NoError(t, f.svc.ReportIntegrationFailure(ctx, orderID, "card declined"))
	require.NoError(t, f.svc.ReportIntegrationFailure(ctx, orderID, "card declined"))

	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventOrderIntegrationFailed, orderID).
		Count(&count).Error)
	require.EqualValues(t, 1, count)
}
