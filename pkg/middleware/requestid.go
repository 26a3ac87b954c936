package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/tranhaiminh/docvault/pkg/logger"
)

// RequestID assigns each request a unique identifier, propagates it through
// the request context for log enrichment, and echoes it in the X-Request-ID
// response header. An incoming X-Request-ID header is honoured if present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
