package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/orderflowhq/orderflow-backend/pkg/enums"
)

// StockHistory is an append-only audit record of manual stock adjustments.
type StockHistory struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	InventoryID uuid.UUID             `gorm:"column:inventory_id;type:uuid;not null;index"`
	ChangeType  enums.StockChangeType `gorm:"column:change_type;not null"`
	Amount      int                   `gorm:"column:amount;not null"`
	StockAfter  int                   `gorm:"column:stock_after;not null"`
	Description string                `gorm:"column:description"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}
