package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrDocumentNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("fetching: %w", ErrDocumentNotFound), http.StatusNotFound},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"query rejected", ErrQueryRejected, http.StatusBadRequest},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"storage", ErrStorageFailed, http.StatusInternalServerError},
		{"persistence", ErrPersistenceFailed, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"app error carries its own code", New(ErrQueryRejected, 400, "nope"), 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestAppErrorUnwrapsToSentinel(t *testing.T) {
	err := Newf(ErrInvalidInput, 400, "field %s is bad", "title")
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("AppError should unwrap to its sentinel")
	}
	if err.Error() == "" {
		t.Error("AppError message should not be empty")
	}
}
