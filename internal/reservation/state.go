package reservation

import (
	"time"

	"github.com/orderflowhq/orderflow-backend/pkg/db/models"
	"github.com/orderflowhq/orderflow-backend/pkg/enums"
	pkgerrors "github.com/orderflowhq/orderflow-backend/pkg/errors"
)

// State transitions are pure functions over reservation values. The caller
// loads a row under lock, applies a transition, and persists the returned
// value. A transition never mutates its input.

// Confirm moves a held reservation to confirmed. Expiry is checked at call
// time; a hold past its deadline can no longer be confirmed even if the
// reaper has not swept it yet.
func Confirm(r models.StockReservation, now time.Time) (models.StockReservation, error) {
	if r.Status != enums.ReservationStatusHeld {
		return models.StockReservation{}, pkgerrors.New(pkgerrors.CodeStateConflict,
			"only a held reservation can be confirmed")
	}
	if r.IsExpired(now) {
		return models.StockReservation{}, pkgerrors.New(pkgerrors.CodeReservationExpired,
			"reservation hold has expired")
	}
	next := r
	next.Status = enums.ReservationStatusConfirmed
	next.UpdatedAt = now
	return next, nil
}

// Release moves a held reservation to released. Confirmed and released
// reservations reject the transition; callers that need skip-if-terminal
// semantics check the status before calling.
func Release(r models.StockReservation, now time.Time) (models.StockReservation, error) {
	if r.Status != enums.ReservationStatusHeld {
		return models.StockReservation{}, pkgerrors.New(pkgerrors.CodeStateConflict,
			"only a held reservation can be released")
	}
	next := r
	next.Status = enums.ReservationStatusReleased
	next.UpdatedAt = now
	return next, nil
}
