package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/orderflowhq/orderflow-backend/pkg/enums"
)

// Order is the purchase aggregate root. Amounts are integer cents.
// FinalAmountCents = TotalAmountCents - DiscountCents - UsedPointsCents and
// never goes negative.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber      string            `gorm:"column:order_number;not null;uniqueIndex"`
	UserID           uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index:idx_orders_user_status"`
	CouponID         *uuid.UUID        `gorm:"column:coupon_id;type:uuid"`
	TotalAmountCents int               `gorm:"column:total_amount_cents;not null"`
	DiscountCents    int               `gorm:"column:discount_cents;not null;default:0"`
	UsedPointsCents  int               `gorm:"column:used_points_cents;not null;default:0"`
	FinalAmountCents int               `gorm:"column:final_amount_cents;not null"`
	Status           enums.OrderStatus `gorm:"column:status;not null;default:'pending';index:idx_orders_user_status"`
	Items            []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
	ExpiresAt        time.Time         `gorm:"column:expires_at;not null;index"`
}

// IsExpired is a derived predicate, evaluated at call time.
func (o Order) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// CanPay reports whether a payment attempt is currently legal.
func (o Order) CanPay(now time.Time) bool {
	return o.Status == enums.OrderStatusPending && !o.IsExpired(now)
}
