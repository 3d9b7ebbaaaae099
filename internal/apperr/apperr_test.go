package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := New(KindInsufficientFunds, "balance 30, need 50")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Error("expected errors.Is to match on kind")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("different kinds should not match")
	}

	wrapped := fmt.Errorf("create order: %w", err)
	if !errors.Is(wrapped, ErrInsufficientFunds) {
		t.Error("expected match through wrapping")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(NotFound("task")); got != KindNotFound {
		t.Errorf("KindOf = %q, want %q", got, KindNotFound)
	}
	if got := KindOf(errors.New("disk full")); got != "" {
		t.Errorf("KindOf plain error = %q, want empty", got)
	}
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindInvalidInput, http.StatusBadRequest},
		{KindInsufficientFunds, http.StatusPaymentRequired},
		{KindConflict, http.StatusConflict},
		{KindUnimplemented, http.StatusNotImplemented},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.kind); got != tt.want {
			t.Errorf("HTTPStatus(%q) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestNewfMessage(t *testing.T) {
	err := Newf(KindConflict, "username %q taken", "sam")
	if err.Error() != `username "sam" taken` {
		t.Errorf("message = %q", err.Error())
	}
}
