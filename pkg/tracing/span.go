// Package tracing provides minimal in-process spans for timing pipeline
// stages. A span times one operation and logs its duration when ended.
// Nesting is carried through the context: a child span's logged name is
// prefixed with its parent's, so "ingest" containing "drive.upload" logs
// as "ingest/drive.upload".
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type ctxKey struct{}

// Span times a single named operation.
type Span struct {
	path  string
	start time.Time

	mu    sync.Mutex
	attrs []any
	ended bool
}

// StartSpan begins a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{path: name, start: time.Now()}
	return context.WithValue(ctx, ctxKey{}, span), span
}

// StartChildSpan begins a span nested under the one in ctx, if any.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	path := name
	if parent, ok := ctx.Value(ctxKey{}).(*Span); ok {
		path = parent.path + "/" + name
	}
	span := &Span{path: path, start: time.Now()}
	return context.WithValue(ctx, ctxKey{}, span), span
}

// SetAttr attaches a key-value pair that is logged when the span ends.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// End logs the span's duration. Calling End more than once is a no-op.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	args := append([]any{
		"span", s.path,
		"duration_ms", time.Since(s.start).Milliseconds(),
	}, s.attrs...)
	slog.Debug("span finished", args...)
}
