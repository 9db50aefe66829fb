package orders

import (
	"time"

	"github.com/orderflowhq/orderflow-backend/pkg/db/models"
	"github.com/orderflowhq/orderflow-backend/pkg/enums"
	pkgerrors "github.com/orderflowhq/orderflow-backend/pkg/errors"
)

// Transitions are pure functions over order values, mirroring the reservation
// state machine. Paid and cancelled are terminal; repeating a transition is
// always a conflict, never silently absorbed.

// Pay moves a pending order to paid. The TTL is checked at call time, so a
// payment racing the expiry sweep loses cleanly instead of reviving the order.
func Pay(o models.Order, now time.Time) (models.Order, error) {
	if o.Status != enums.OrderStatusPending {
		return models.Order{}, pkgerrors.New(pkgerrors.CodeStateConflict,
			"only a pending order can be paid")
	}
	if o.IsExpired(now) {
		return models.Order{}, pkgerrors.New(pkgerrors.CodeOrderExpired,
			"order payment window has closed")
	}
	next := o
	next.Status = enums.OrderStatusPaid
	next.UpdatedAt = now
	return next, nil
}

// Cancel moves a pending order to cancelled. Expiry does not block
// cancellation; an expired pending order is exactly what compensation cancels.
func Cancel(o models.Order, now time.Time) (models.Order, error) {
	if o.Status != enums.OrderStatusPending {
		return models.Order{}, pkgerrors.New(pkgerrors.CodeStateConflict,
			"only a pending order can be cancelled")
	}
	next := o
	next.Status = enums.OrderStatusCancelled
	next.UpdatedAt = now
	return next, nil
}
