// Package handler exposes the document pipeline over HTTP: upload, read,
// and delete endpoints plus a health probe.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/tranhaiminh/docvault/internal/document"
	"github.com/tranhaiminh/docvault/internal/document/pipeline"
	"github.com/tranhaiminh/docvault/internal/document/validator"
	apperrors "github.com/tranhaiminh/docvault/pkg/errors"
	"github.com/tranhaiminh/docvault/pkg/logger"
)

type Handler struct {
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	onChange func()
}

// New creates a Handler. onChange, if non-nil, runs after every successful
// upload or delete (used to invalidate the gateway's query cache).
func New(p *pipeline.Pipeline, onChange func()) *Handler {
	return &Handler{
		pipeline: p,
		logger:   logger.WithComponent("document-handler"),
		onChange: onChange,
	}
}

// Upload handles POST /api/v1/documents. A submission either commits fully
// (record returned, enrichment possibly degraded) or fails outright with an
// actionable error; there is no state where an upload silently disappears.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req document.SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	applyDefaults(&req)
	req.CreatedBy = bearerToken(r)

	rec, err := h.pipeline.Ingest(ctx, &req)
	if err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("document upload failed", "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, "document upload failed")
		return
	}

	h.changed()
	log.Info("document uploaded",
		"doc_id", rec.ID,
		"file_name", rec.FileName,
		"status", rec.Status,
	)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"document": rec,
	})
}

// Delete handles DELETE /api/v1/documents?id=<record_id>. The Drive outcome
// is reported informationally; only a record-store failure is an error.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	result, err := h.pipeline.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrDocumentNotFound) {
			h.writeError(w, http.StatusNotFound, "document not found")
			return
		}
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("document deletion failed", "doc_id", id, "error", err)
		h.writeError(w, statusCode, "document deletion failed")
		return
	}

	h.changed()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"message":           "document deleted",
		"driveDeleteResult": result.DriveDeleteResult,
	})
}

// Read handles GET /api/v1/documents. With ?id= it returns one document;
// otherwise it lists with filters, search, sorting, and pagination.
func (h *Handler) Read(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if id := q.Get("id"); id != "" {
		rec, err := h.pipeline.Get(ctx, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrDocumentNotFound) {
				h.writeError(w, http.StatusNotFound, "document not found")
				return
			}
			logger.FromContext(ctx).Error("document fetch failed", "doc_id", id, "error", err)
			h.writeError(w, http.StatusInternalServerError, "document fetch failed")
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"document": rec})
		return
	}

	filter := document.ListFilter{
		Search:       q.Get("search"),
		DocumentType: q.Get("document_type"),
		Priority:     q.Get("priority"),
		Status:       q.Get("status"),
		CreatedBy:    q.Get("created_by"),
		SortBy:       q.Get("sort_by"),
		SortOrder:    q.Get("sort_order"),
		Limit:        intParam(q.Get("limit"), 20),
		Offset:       intParam(q.Get("offset"), 0),
	}
	records, total, err := h.pipeline.List(ctx, filter)
	if err != nil {
		logger.FromContext(ctx).Error("document listing failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "document listing failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": records,
		"pagination": map[string]any{
			"total":   total,
			"limit":   filter.Limit,
			"offset":  filter.Offset,
			"hasMore": filter.Offset+len(records) < total,
		},
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) changed() {
	if h.onChange != nil {
		h.onChange()
	}
}

// applyDefaults fills the optional submission fields the way the web client
// does when they are omitted.
func applyDefaults(req *document.SubmissionRequest) {
	if req.DocumentType == "" {
		req.DocumentType = "uploaded"
	}
	if req.Priority == "" {
		req.Priority = "medium"
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}
}

// bearerToken extracts the Authorization bearer token, recorded as the
// creator reference. Authentication itself is handled upstream.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return ""
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
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
