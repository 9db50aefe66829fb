package reservation

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orderflowhq/orderflow-backend/pkg/db/models"
	"github.com/orderflowhq/orderflow-backend/pkg/enums"
	pkgerrors "github.com/orderflowhq/orderflow-backend/pkg/errors"
)

func heldReservation(expiresAt time.Time) models.StockReservation {
	return models.StockReservation{
		ID:          uuid.New(),
		InventoryID: uuid.New(),
		OrderID:     uuid.New(),
		ReservedQty: 3,
		Status:      enums.ReservationStatusHeld,
		ReservedAt:  expiresAt.Add(-15 * time.Minute),
		ExpiresAt:   expiresAt,
	}
}

func TestConfirmHeldReservation(t *testing.T) {
	now := time.Now().UTC()
	original := heldReservation(now.Add(time.Minute))

	next, err := Confirm(original, now)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if next.Status != enums.ReservationStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", next.Status)
	}
	if original.Status != enums.ReservationStatusHeld {
		t.Fatalf("input value must not be mutated, got %s", original.Status)
	}
}

func TestConfirmExpiredHold(t *testing.T) {
	now := time.Now().UTC()

	_, err := Confirm(heldReservation(now), now)
	if !pkgerrors.HasCode(err, pkgerrors.CodeReservationExpired) {
		t.Fatalf("expected expired error at exact deadline, got %v", err)
	}

	_, err = Confirm(heldReservation(now.Add(-time.Second)), now)
	if !pkgerrors.HasCode(err, pkgerrors.CodeReservationExpired) {
		t.Fatalf("expected expired error past deadline, got %v", err)
	}
}

func TestConfirmRejectsNonHeldStates(t *testing.T) {
	now := time.Now().UTC()
	for _, status := range []enums.ReservationStatus{
		enums.ReservationStatusConfirmed,
		enums.ReservationStatusReleased,
	} {
		r := heldReservation(now.Add(time.Minute))
		r.Status = status
		if _, err := Confirm(r, now); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			t.Fatalf("status %s: expected state conflict, got %v", status, err)
		}
	}
}

func TestReleaseHeldReservation(t *testing.T) {
	now := time.Now().UTC()
	original := heldReservation(now.Add(time.Minute))

	next, err := Release(original, now)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if next.Status != enums.ReservationStatusReleased {
		t.Fatalf("expected released, got %s", next.Status)
	}
}

func TestReleaseExpiredHoldStillReleases(t *testing.T) {
	// the reaper releases holds after their deadline; expiry never blocks release
	now := time.Now().UTC()
	expired := heldReservation(now.Add(-time.Hour))

	next, err := Release(expired, now)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if next.Status != enums.ReservationStatusReleased {
		t.Fatalf("expected released, got %s", next.Status)
	}
}

func TestReleaseRejectsNonHeldStates(t *testing.T) {
	now := time.Now().UTC()
	for _, status := range []enums.ReservationStatus{
		enums.ReservationStatusConfirmed,
		enums.ReservationStatusReleased,
	} {
		r := heldReservation(now.Add(time.Minute))
		r.Status = status
		if _, err := Release(r, now); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			t.Fatalf("status %s: expected state conflict, got %v", status, err)
		}
	}
}
