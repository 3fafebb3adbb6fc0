package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeInsufficientStock, status: http.StatusConflict, detailsOK: true},
		{code: CodeEmptyCart, status: http.StatusUnprocessableEntity},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, retryable: true, detailsOK: true},
		{code: CodeTransaction, status: http.StatusServiceUnavailable, retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "quantity must be at least 1")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodeTransaction, cause, "Checkout failed. Please try again.")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatal("wrapped error should unwrap to its cause")
	}
	if wrapped.Message() != "Checkout failed. Please try again." {
		t.Fatalf("unexpected message %q", wrapped.Message())
	}
}

func TestAsFindsTypedErrorThroughFmtWrap(t *testing.T) {
	typed := New(CodeInsufficientStock, "Insufficient stock for product: Widget").
		WithDetails(map[string]any{"product": "Widget"})
	err := fmt.Errorf("add to cart: %w", typed)

	got := As(err)
	if got == nil || got.Code() != CodeInsufficientStock {
		t.Fatalf("expected insufficient stock error, got %v", got)
	}
	if !IsCode(err, CodeInsufficientStock) {
		t.Fatal("IsCode should match through wrapping")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatal("IsCode should not match other codes")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatal("plain errors carry no code")
	}
}

func TestEnsureTyped(t *testing.T) {
	if EnsureTyped(nil, CodeTransaction, "retry") != nil {
		t.Fatal("nil stays nil")
	}

	typed := New(CodeEmptyCart, "Your cart is empty.")
	if got := EnsureTyped(typed, CodeTransaction, "retry"); got != typed {
		t.Fatalf("typed errors should pass through, got %v", got)
	}

	got := EnsureTyped(stdErrors.New("deadlock detected"), CodeTransaction, "retry")
	if !IsCode(got, CodeTransaction) {
		t.Fatalf("expected transaction code, got %v", got)
	}
}

func TestTransactionFailure(t *testing.T) {
	if TransactionFailure(nil, "retry") != nil {
		t.Fatal("nil stays nil")
	}

	stock := New(CodeInsufficientStock, "Insufficient stock for product: Widget")
	if got := TransactionFailure(stock, "retry"); got != stock {
		t.Fatalf("domain errors should pass through, got %v", got)
	}

	dep := Wrap(CodeDependency, stdErrors.New("connection reset"), "deduct stock")
	got := As(TransactionFailure(dep, "Cancellation failed. Please try again."))
	if got == nil || got.Code() != CodeTransaction {
		t.Fatalf("expected transaction code, got %v", got)
	}
	if got.Message() != "Cancellation failed. Please try again." {
		t.Fatalf("unexpected message %q", got.Message())
	}
	if !stdErrors.Is(got, dep) {
		t.Fatal("cause should stay in the chain")
	}

	if !IsCode(TransactionFailure(stdErrors.New("serialization failure"), "retry"), CodeTransaction) {
		t.Fatal("untyped errors become transaction failures")
	}
}
