package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/orderflowhq/orderflow-backend/pkg/db/models"
	"github.com/orderflowhq/orderflow-backend/pkg/enums"
)

func setupInventoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.InventoryItem{},
		&models.StockReservation{},
		&models.StockHistory{},
	))
	return db
}

func seedItem(t *testing.T, db *gorm.DB, stock int) *models.InventoryItem {
	t.Helper()
	item := &models.InventoryItem{
		ID:            uuid.New(),
		SKU:           "SKU-" + uuid.NewString()[:8],
		PhysicalStock: stock,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestDecrementIfAvailable_ExactStock(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	item := seedItem(t, db, 5)

	ok, err := repo.DecrementIfAvailable(ctx, item.ID, 5)
	require.NoError(t, err)
	require.True(t, ok)

	reloaded, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 0, reloaded.PhysicalStock)
}

func TestDecrementIfAvailable_InsufficientStock(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	item := seedItem(t, db, 3)

	ok, err := repo.DecrementIfAvailable(ctx, item.ID, 4)
	require.NoError(t, err)
	require.False(t, ok)

	reloaded, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 3, reloaded.PhysicalStock, "failed decrement must not touch stock")
}

func TestDecrementIfAvailable_UnknownItem(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)

	ok, err := repo.DecrementIfAvailable(context.Background(), uuid.New(), 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIncrementRestoresStock(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	item := seedItem(t, db, 2)

	require.NoError(t, repo.Increment(ctx, item.ID, 7))

	reloaded, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 9, reloaded.PhysicalStock)

	err = repo.Increment(ctx, uuid.New(), 1)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestHeldQtySumsOnlyActiveHolds(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	item := seedItem(t, db, 10)
	now := time.Now().UTC()

	for _, r := range []models.StockReservation{
		{ID: uuid.New(), InventoryID: item.ID, OrderID: uuid.New(), ReservedQty: 2, Status: enums.ReservationStatusHeld, ReservedAt: now, ExpiresAt: now.Add(time.Hour)},
		{ID: uuid.New(), InventoryID: item.ID, OrderID: uuid.New(), ReservedQty: 3, Status: enums.ReservationStatusHeld, ReservedAt: now, ExpiresAt: now.Add(time.Hour)},
		{ID: uuid.New(), InventoryID: item.ID, OrderID: uuid.New(), ReservedQty: 4, Status: enums.ReservationStatusConfirmed, ReservedAt: now, ExpiresAt: now.Add(time.Hour)},
		{ID: uuid.New(), InventoryID: item.ID, OrderID: uuid.New(), ReservedQty: 5, Status: enums.ReservationStatusReleased, ReservedAt: now, ExpiresAt: now.Add(time.Hour)},
	} {
		require.NoError(t, db.Create(&r).Error)
	}

	held, err := repo.HeldQty(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 5, held)

	other, err := repo.HeldQty(ctx, uuid.New())
	require.NoError(t, err)
	require.Equal(t, 0, other)
}

func TestHistoryRoundTrip(t *testing.T) {
	db := setupInventoryTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	item := seedItem(t, db, 10)

	require.NoError(t, repo.CreateHistory(ctx, &models.StockHistory{
		InventoryID: item.ID,
		ChangeType:  enums.StockChangeIncrease,
		Amount:      10,
		StockAfter:  10,
		Description: "initial load",
	}))

	records, err := repo.ListHistory(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, enums.StockChangeIncrease, records[0].ChangeType)
	require.NotEqual(t, uuid.Nil, records[0].ID)
}
