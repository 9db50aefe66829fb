package orders

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orderflowhq/orderflow-backend/pkg/db/models"
	"github.com/orderflowhq/orderflow-backend/pkg/enums"
	pkgerrors "github.com/orderflowhq/orderflow-backend/pkg/errors"
)

func pendingOrder(expiresAt time.Time) models.Order {
	return models.Order{
		ID:               uuid.New(),
		OrderNumber:      NewOrderNumber(expiresAt.Add(-15 * time.Minute)),
		UserID:           uuid.New(),
		TotalAmountCents: 5000,
		FinalAmountCents: 5000,
		Status:           enums.OrderStatusPending,
		ExpiresAt:        expiresAt,
	}
}

func TestPayPendingOrder(t *testing.T) {
	now := time.Now().UTC()
	original := pendingOrder(now.Add(time.Minute))

	next, err := Pay(original, now)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if next.Status != enums.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", next.Status)
	}
	if original.Status != enums.OrderStatusPending {
		t.Fatalf("input value must not be mutated, got %s", original.Status)
	}
}

func TestPayExpiredOrder(t *testing.T) {
	now := time.Now().UTC()

	_, err := Pay(pendingOrder(now), now)
	if !pkgerrors.HasCode(err, pkgerrors.CodeOrderExpired) {
		t.Fatalf("expected expired error at exact deadline, got %v", err)
	}
}

func TestPayRejectsTerminalStates(t *testing.T) {
	now := time.Now().UTC()
	for _, status := range []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusCancelled} {
		o := pendingOrder(now.Add(time.Minute))
		o.Status = status
		if _, err := Pay(o, now); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			t.Fatalf("status %s: expected state conflict, got %v", status, err)
		}
	}
}

func TestCancelPendingOrder(t *testing.T) {
	now := time.Now().UTC()

	next, err := Cancel(pendingOrder(now.Add(time.Minute)), now)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if next.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", next.Status)
	}

	// expiry never blocks cancellation
	next, err = Cancel(pendingOrder(now.Add(-time.Hour)), now)
	if err != nil {
		t.Fatalf("Cancel expired: %v", err)
	}
	if next.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", next.Status)
	}
}

func TestCancelRejectsTerminalStates(t *testing.T) {
	now := time.Now().UTC()
	for _, status := range []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusCancelled} {
		o := pendingOrder(now.Add(time.Minute))
		o.Status = status
		if _, err := Cancel(o, now); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			t.Fatalf("status %s: expected state conflict, got %v", status, err)
		}
	}
}

func TestNewOrderNumberShape(t *testing.T) {
	now := time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC)
	n := NewOrderNumber(now)
	if len(n) != len("ORD-20260814-")+10 {
		t.Fatalf("unexpected length for %q", n)
	}
	if n[:13] != "ORD-20260814-" {
		t.Fatalf("unexpected prefix for %q", n)
	}
	if n == NewOrderNumber(now) {
		t.Fatalf("two generated numbers collided")
	}
}
