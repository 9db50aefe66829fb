package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/orderflowhq/orderflow-backend/pkg/db"
	"github.com/orderflowhq/orderflow-backend/pkg/db/models"
	"github.com/orderflowhq/orderflow-backend/pkg/enums"
)

// Repository manages persistence for stock reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, r *models.StockReservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.StockReservation, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.StockReservation, error)
	FindByInventoryAndOrderForUpdate(ctx context.Context, inventoryID, orderID uuid.UUID) (*models.StockReservation, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockReservation, error)
	ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]models.StockReservation, error)
	UpdateStatus(ctx context.Context, r *models.StockReservation) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reservation *models.StockReservation) error {
	if reservation.ID == uuid.Nil {
		reservation.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
	var row models.StockReservation
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
	var row models.StockReservation
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindByInventoryAndOrderForUpdate(ctx context.Context, inventoryID, orderID uuid.UUID) (*models.StockReservation, error) {
	var row models.StockReservation
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("inventory_id = ? AND order_id = ?", inventoryID, orderID).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListExpiredHeld returns holds whose deadline passed, oldest first.
func (r *repository) ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", enums.ReservationStatusHeld, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateStatus persists the status and updated_at of a transitioned value.
func (r *repository) UpdateStatus(ctx context.Context, reservation *models.StockReservation) error {
	return r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("id = ?", reservation.ID).
		Updates(map[string]any{
			"status":     reservation.Status,
			"updated_at": reservation.UpdatedAt,
		}).Error
}
