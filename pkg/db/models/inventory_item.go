package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem is the source of truth for per-SKU physical stock.
// PhysicalStock is mutated only through the two atomic repository primitives
// and never goes negative.
type InventoryItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SKU            string    `gorm:"column:sku;not null;uniqueIndex"`
	PhysicalStock  int       `gorm:"column:physical_stock;not null;default:0"`
	UnitPriceCents int       `gorm:"column:unit_price_cents;not null;default:0"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
