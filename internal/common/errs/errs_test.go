package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", fmt.Errorf("conversation %w", ErrNotFound), http.StatusNotFound},
		{"forbidden", fmt.Errorf("edit: %w", ErrForbidden), http.StatusForbidden},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"conflict", ErrConflict, http.StatusConflict},
		{"invalid", fmt.Errorf("%w: body is empty", ErrInvalid), http.StatusBadRequest},
		{"unavailable", fmt.Errorf("%w: dial tcp", ErrUnavailable), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPublicMessageHidesInternalErrors(t *testing.T) {
	if got := PublicMessage(errors.New("pq: password authentication failed")); got != "internal error" {
		t.Errorf("PublicMessage() = %q, want generic text", got)
	}
	err := fmt.Errorf("message %w", ErrNotFound)
	if got := PublicMessage(err); got != err.Error() {
		t.Errorf("PublicMessage() = %q, want %q", got, err.Error())
	}
}

func TestNewMatchesKind(t *testing.T) {
	err := New(ErrForbidden, "only the sender may change this message")
	if !errors.Is(err, ErrForbidden) {
		t.Error("New() error does not match its kind")
	}
	if err.Error() != "only the sender may change this message" {
		t.Errorf("Error() = %q", err.Error())
	}
	if Code(err) != "forbidden" {
		t.Errorf("Code() = %q", Code(err))
	}
}

func TestUnavailableHidesDriverError(t *testing.T) {
	err := Unavailable("list messages", errors.New("dial tcp 10.0.0.5:5432: connection refused"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatal("Unavailable() does not match ErrUnavailable")
	}
	if StatusCode(err) != http.StatusServiceUnavailable {
		t.Errorf("StatusCode() = %d", StatusCode(err))
	}
	if PublicMessage(err) != "service unavailable" {
		t.Errorf("PublicMessage() = %q", PublicMessage(err))
	}
}
