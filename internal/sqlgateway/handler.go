package sqlgateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/tranhaiminh/docvault/pkg/errors"
	"github.com/tranhaiminh/docvault/pkg/logger"
	"github.com/tranhaiminh/docvault/pkg/metrics"
)

// queryRequest is the JSON body accepted by the gateway endpoint.
type queryRequest struct {
	Query string `json:"query"`
}

// Handler exposes the gateway over HTTP: POST only, CORS handled by the
// shared middleware.
type Handler struct {
	executor *Executor
	cache    *QueryCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler creates a Handler. cache and m may be nil.
func NewHandler(executor *Executor, cache *QueryCache, m *metrics.Metrics) *Handler {
	return &Handler{
		executor: executor,
		cache:    cache,
		metrics:  m,
		logger:   logger.WithComponent("sql-gateway"),
	}
}

// Query handles POST /api/v1/sql. Rejected queries get a 400 with the
// rejection reason; execution errors also map to 400 so the operator sees
// the database's complaint; only infrastructure faults are 500s.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		h.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	if err := ValidateQuery(req.Query); err != nil {
		h.count("rejected")
		var appErr *apperrors.AppError
		reason := "query rejected"
		if errors.As(err, &appErr) {
			reason = appErr.Message
		}
		log.Warn("query rejected", "reason", reason)
		h.writeError(w, http.StatusBadRequest, reason)
		return
	}

	start := time.Now()
	result, err := h.execute(r, req.Query)
	if err != nil {
		h.count("error")
		log.Warn("query execution failed", "error", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":           "SQL error: " + err.Error(),
			"executionTimeMs": time.Since(start).Milliseconds(),
		})
		return
	}

	h.count("ok")
	if h.metrics != nil {
		h.metrics.GatewayQueryDuration.Observe(time.Since(start).Seconds())
	}
	log.Info("query executed", "rows", result.RowCount, "duration_ms", result.ExecutionTimeMs)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) execute(r *http.Request, query string) (*Result, error) {
	ctx := r.Context()
	if h.cache != nil {
		return h.cache.GetOrExecute(ctx, query, func() (*Result, error) {
			return h.executor.Execute(ctx, query)
		})
	}
	return h.executor.Execute(ctx, query)
}

func (h *Handler) count(result string) {
	if h.metrics != nil {
		h.metrics.GatewayQueriesTotal.WithLabelValues(result).Inc()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
