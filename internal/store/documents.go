// Package store implements the document record repository on PostgreSQL.
// All operations are atomic single-record statements; no cross-record
// transactions are needed by the pipeline.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tranhaiminh/docvault/internal/document"
	apperrors "github.com/tranhaiminh/docvault/pkg/errors"
	"github.com/tranhaiminh/docvault/pkg/logger"
	"github.com/tranhaiminh/docvault/pkg/postgres"
)

// recordColumns is the column list used by every SELECT, in scan order.
const recordColumns = `id, title, description, document_type, priority, tags, status,
	file_url, file_name, file_size, file_type, drive_id, drive_url,
	ai_summary, ai_keywords, ai_category, ai_priority_suggestion,
	processing_status, processing_error, created_by, created_at, updated_at`

// sortColumns whitelists the columns the list endpoint may sort by.
var sortColumns = map[string]bool{
	"title":         true,
	"document_type": true,
	"priority":      true,
	"status":        true,
	"file_name":     true,
	"file_size":     true,
	"created_by":    true,
	"created_at":    true,
	"updated_at":    true,
}

// DocumentStore persists document records in the documents table.
type DocumentStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a DocumentStore backed by the given PostgreSQL client.
func New(db *postgres.Client) *DocumentStore {
	return &DocumentStore{
		db:     db,
		logger: logger.WithComponent("document-store"),
	}
}

// Insert assigns the record a fresh ID and timestamps and persists it.
func (s *DocumentStore) Insert(ctx context.Context, rec *document.Record) error {
	rec.ID = uuid.NewString()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Tags == nil {
		rec.Tags = []string{}
	}

	_, err := s.db.DB.ExecContext(ctx, `
		INSERT INTO documents (
			id, title, description, document_type, priority, tags, status,
			file_url, file_name, file_size, file_type, drive_id, drive_url,
			created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		rec.ID, rec.Title, rec.Description, rec.DocumentType, rec.Priority,
		pq.Array(rec.Tags), rec.Status, rec.FileURL, rec.FileName, rec.FileSize,
		rec.FileType, rec.DriveID, rec.DriveURL, nullable(rec.CreatedBy),
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// ApplyEnrichment writes the full enrichment field set in one update and
// completes the record. User-submitted fields are never touched here.
func (s *DocumentStore) ApplyEnrichment(ctx context.Context, id string, analysis *document.Analysis) error {
	keywords := analysis.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	res, err := s.db.DB.ExecContext(ctx, `
		UPDATE documents SET
			status = $2,
			ai_summary = $3,
			ai_keywords = $4,
			ai_category = $5,
			ai_priority_suggestion = $6,
			processing_status = $7,
			processing_error = NULL,
			updated_at = $8
		WHERE id = $1`,
		id, document.StatusCompleted, analysis.Summary, pq.Array(keywords),
		analysis.Category, analysis.Priority, document.ProcessingSucceeded,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("applying enrichment to document %s: %w", id, err)
	}
	return requireRow(res, id)
}

// MarkEnrichmentFailed completes the record while flagging the enrichment
// failure. The AI fields stay null.
func (s *DocumentStore) MarkEnrichmentFailed(ctx context.Context, id, reason string) error {
	res, err := s.db.DB.ExecContext(ctx, `
		UPDATE documents SET
			status = $2,
			processing_status = $3,
			processing_error = $4,
			updated_at = $5
		WHERE id = $1`,
		id, document.StatusCompleted, document.ProcessingFailed, reason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("marking enrichment failed for document %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Complete moves the record to completed without enrichment data, used when
// the enrichment stage is disabled.
func (s *DocumentStore) Complete(ctx context.Context, id string) error {
	res, err := s.db.DB.ExecContext(ctx, `
		UPDATE documents SET status = $2, updated_at = $3 WHERE id = $1`,
		id, document.StatusCompleted, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("completing document %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Get fetches one record by ID.
func (s *DocumentStore) Get(ctx context.Context, id string) (*document.Record, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM documents WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching document %s: %w", id, err)
	}
	return rec, nil
}

// Delete removes one record by ID.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return requireRow(res, id)
}

// List returns the records matching the filter in the requested order, plus
// the total matching count for pagination.
func (s *DocumentStore) List(ctx context.Context, f document.ListFilter) ([]document.Record, int, error) {
	where, args := buildWhere(f)

	var total int
	countQuery := `SELECT COUNT(*) FROM documents` + where
	if err := s.db.DB.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting documents: %w", err)
	}

	sortBy := f.SortBy
	if !sortColumns[sortBy] {
		sortBy = "created_at"
	}
	order := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		order = "ASC"
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + recordColumns + ` FROM documents` + where +
		fmt.Sprintf(` ORDER BY %s %s LIMIT $%d OFFSET $%d`, sortBy, order, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	records := make([]document.Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning document row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating document rows: %w", err)
	}
	return records, total, nil
}

// ListEnrichmentCandidates returns the IDs of records whose enrichment
// failed or never completed, oldest first, for the reprocess worker.
func (s *DocumentStore) ListEnrichmentCandidates(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT id FROM documents
		WHERE processing_status = $1 OR status = $2
		ORDER BY updated_at ASC
		LIMIT $3`,
		document.ProcessingFailed, document.StatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing enrichment candidates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning candidate id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidate ids: %w", err)
	}
	return ids, nil
}

// Ping verifies database connectivity for health checks.
func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.db.DB.PingContext(ctx)
}

// buildWhere assembles the WHERE clause for List from the filter.
func buildWhere(f document.ListFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Search != "" {
		add("(title ILIKE $%[1]d OR description ILIKE $%[1]d)", "%"+f.Search+"%")
	}
	if f.DocumentType != "" {
		add("document_type = $%d", f.DocumentType)
	}
	if f.Priority != "" {
		add("priority = $%d", f.Priority)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.CreatedBy != "" {
		add("created_by = $%d", f.CreatedBy)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*document.Record, error) {
	var rec document.Record
	var tags, keywords pq.StringArray
	var aiSummary, aiCategory, aiPriority, procStatus, procError, createdBy sql.NullString

	err := row.Scan(
		&rec.ID, &rec.Title, &rec.Description, &rec.DocumentType, &rec.Priority,
		&tags, &rec.Status, &rec.FileURL, &rec.FileName, &rec.FileSize,
		&rec.FileType, &rec.DriveID, &rec.DriveURL,
		&aiSummary, &keywords, &aiCategory, &aiPriority,
		&procStatus, &procError, &createdBy, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Tags = tags
	rec.AIKeywords = keywords
	rec.AISummary = nullString(aiSummary)
	rec.AICategory = nullString(aiCategory)
	rec.AIPrioritySuggestion = nullString(aiPriority)
	rec.ProcessingStatus = nullString(procStatus)
	rec.ProcessingError = nullString(procError)
	rec.CreatedBy = createdBy.String
	return &rec, nil
}

// requireRow converts a zero-row update or delete into ErrDocumentNotFound.
func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for document %s: %w", id, err)
	}
	if n == 0 {
		return apperrors.ErrDocumentNotFound
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
