package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("row locked")
	wrapped := Wrap(CodeConcurrencyConflict, cause, "reserve stock")

	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected wrapped error to unwrap to cause")
	}
	if wrapped.Code() != CodeConcurrencyConflict {
		t.Fatalf("unexpected code %q", wrapped.Code())
	}
}

func TestAsFindsTypedErrorInChain(t *testing.T) {
	t.Parallel()

	inner := New(CodeInsufficientStock, "not enough stock").
		WithDetails(map[string]any{"inventory_id": "abc", "requested": 3})
	outer := fmt.Errorf("create order: %w", inner)

	typed := As(outer)
	if typed == nil {
		t.Fatalf("expected typed error in chain")
	}
	if typed.Code() != CodeInsufficientStock {
		t.Fatalf("unexpected code %q", typed.Code())
	}
	if typed.Details() == nil {
		t.Fatalf("expected details to survive wrapping")
	}
}

func TestBusinessFactsAreNotRetryable(t *testing.T) {
	t.Parallel()

	for _, code := range []Code{
		CodeInsufficientStock,
		CodeStateConflict,
		CodeReservationExpired,
		CodeOrderExpired,
		CodeValidation,
	} {
		if IsRetryable(New(code, "x")) {
			t.Fatalf("code %q must not be retryable", code)
		}
	}
	if !IsRetryable(New(CodeConcurrencyConflict, "x")) {
		t.Fatalf("concurrency conflicts should be retryable")
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	t.Parallel()

	meta := MetadataFor(Code("MYSTERY"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestHasCode(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("pay: %w", New(CodeOrderExpired, "order expired"))
	if !HasCode(err, CodeOrderExpired) {
		t.Fatalf("expected HasCode to match through the chain")
	}
	if HasCode(err, CodeNotFound) {
		t.Fatalf("unexpected match")
	}
	if HasCode(errors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}
