package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/orderflowhq/orderflow-backend/pkg/enums"
)

// OrderItem is one line of an order. Each line maps to exactly one stock
// reservation for the lifetime of the order.
type OrderItem struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	InventoryID    uuid.UUID             `gorm:"column:inventory_id;type:uuid;not null"`
	ReservationID  uuid.UUID             `gorm:"column:reservation_id;type:uuid;not null"`
	Qty            int                   `gorm:"column:qty;not null"`
	UnitPriceCents int                   `gorm:"column:unit_price_cents;not null"`
	SubtotalCents  int                   `gorm:"column:subtotal_cents;not null"`
	Status         enums.OrderItemStatus `gorm:"column:status;not null;default:'pending'"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
