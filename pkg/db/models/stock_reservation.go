package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/orderflowhq/orderflow-backend/pkg/enums"
)

// StockReservation is a time-bounded hold against physical inventory tied to
// one order line. Rows are treated as immutable values: every transition
// produces a new value that replaces the stored one.
type StockReservation struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	InventoryID uuid.UUID               `gorm:"column:inventory_id;type:uuid;not null;index:idx_reservations_inventory_status"`
	OrderID     uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	ReservedQty int                     `gorm:"column:reserved_qty;not null"`
	Status      enums.ReservationStatus `gorm:"column:status;not null;default:'held';index:idx_reservations_inventory_status"`
	ReservedAt  time.Time               `gorm:"column:reserved_at;not null"`
	ExpiresAt   time.Time               `gorm:"column:expires_at;not null;index"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
}

// IsExpired is evaluated at the moment of a state-changing call, never cached.
func (r StockReservation) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
