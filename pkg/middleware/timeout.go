package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Timeout bounds the whole request. When the deadline passes before the
// handler has written anything, the client gets a 504; a handler that
// already started writing keeps the connection.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if timeout <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &deadlineWriter{ResponseWriter: w}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(tw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if !tw.wrote() {
					slog.Warn("request deadline exceeded",
						"method", r.Method,
						"path", r.URL.Path,
						"timeout", timeout,
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusGatewayTimeout)
					w.Write([]byte(`{"error":"request timeout"}`))
				}
				<-done
			}
		})
	}
}

type deadlineWriter struct {
	http.ResponseWriter
	mu      sync.Mutex
	written bool
}

func (dw *deadlineWriter) WriteHeader(code int) {
	dw.mu.Lock()
	dw.written = true
	dw.mu.Unlock()
	dw.ResponseWriter.WriteHeader(code)
}

func (dw *deadlineWriter) Write(b []byte) (int, error) {
	dw.mu.Lock()
	dw.written = true
	dw.mu.Unlock()
	return dw.ResponseWriter.Write(b)
}

func (dw *deadlineWriter) wrote() bool {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.written
}
