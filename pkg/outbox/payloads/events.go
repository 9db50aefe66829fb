package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderCreatedLine carries the per-line snapshot published with a new order.
type OrderCreatedLine struct {
	InventoryID    uuid.UUID `json:"inventory_id"`
	ReservationID  uuid.UUID `json:"reservation_id"`
	Qty            int       `json:"qty"`
	UnitPriceCents int       `json:"unit_price_cents"`
	SubtotalCents  int       `json:"subtotal_cents"`
}

// OrderCreatedEvent is published once per committed order, never for a
// transaction that rolled back.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID          `json:"order_id"`
	OrderNumber      string             `json:"order_number"`
	UserID           uuid.UUID          `json:"user_id"`
	TotalAmountCents int                `json:"total_amount_cents"`
	DiscountCents    int                `json:"discount_cents"`
	FinalAmountCents int                `json:"final_amount_cents"`
	ExpiresAt        time.Time          `json:"expires_at"`
	Lines            []OrderCreatedLine `json:"lines"`
}

// OrderPaidEvent is published after every reservation of the order confirmed.
type OrderPaidEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	OrderNumber      string    `json:"order_number"`
	UserID           uuid.UUID `json:"user_id"`
	FinalAmountCents int       `json:"final_amount_cents"`
	UsedPointsCents  int       `json:"used_points_cents"`
	PaidAt           time.Time `json:"paid_at"`
}

// OrderExpiredEvent is published when the reaper cancels a stale order.
type OrderExpiredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      uuid.UUID `json:"user_id"`
	ExpiredAt   time.Time `json:"expired_at"`
}

// IntegrationFailedEvent is produced by the external-integration collaborator
// and consumed here to trigger compensation. Delivery is at-least-once.
type IntegrationFailedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

// OrderCompensatedEvent is the terminal notification of a compensation
// attempt. It is emitted even when the compensation itself failed.
type OrderCompensatedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
	Success bool      `json:"success"`
}
