// Package pipeline implements the document ingestion and deletion
// orchestrators. Ingestion runs Validate → Upload → Persist → Enrich, where
// the first three stages are transactional (all must succeed for a record to
// exist) and enrichment is best-effort: its failure is recorded on the
// document, never surfaced to the caller. Deletion runs Fetch → best-effort
// Drive delete → record delete.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tranhaiminh/docvault/internal/document"
	"github.com/tranhaiminh/docvault/internal/document/validator"
	"github.com/tranhaiminh/docvault/pkg/config"
	apperrors "github.com/tranhaiminh/docvault/pkg/errors"
	"github.com/tranhaiminh/docvault/pkg/logger"
	"github.com/tranhaiminh/docvault/pkg/metrics"
	"github.com/tranhaiminh/docvault/pkg/resilience"
	"github.com/tranhaiminh/docvault/pkg/tracing"
)

// ObjectStore is the Drive-backed binary file store.
type ObjectStore interface {
	Upload(ctx context.Context, name, mimeType string, content []byte) (*document.StoredObjectRef, error)
	ExportText(ctx context.Context, id string) (string, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*document.ObjectMetadata, error)
}

// Analyzer produces a structured analysis of extracted document text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*document.Analysis, error)
}

// Repository is the durable store for document records.
type Repository interface {
	Insert(ctx context.Context, rec *document.Record) error
	ApplyEnrichment(ctx context.Context, id string, analysis *document.Analysis) error
	MarkEnrichmentFailed(ctx context.Context, id, reason string) error
	Complete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*document.Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter document.ListFilter) ([]document.Record, int, error)
}

// EventPublisher emits document lifecycle events after mutations commit.
// Publishing is always best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev document.Event) error
}

// Options carries the pipeline's tunables and optional collaborators.
type Options struct {
	Enrichment   config.EnrichmentConfig
	DriveTimeout time.Duration
	Events       EventPublisher
	Metrics      *metrics.Metrics
}

// Pipeline coordinates the object store, the analyzer, and the record
// repository. All collaborators are injected; there is no package-level
// state, so concurrent requests share nothing but the stores themselves.
type Pipeline struct {
	store    ObjectStore
	analyzer Analyzer
	repo     Repository
	opts     Options
	logger   *slog.Logger
}

// New creates a Pipeline. analyzer may be nil when enrichment is disabled;
// Events and Metrics in opts are optional.
func New(store ObjectStore, analyzer Analyzer, repo Repository, opts Options) *Pipeline {
	if opts.DriveTimeout <= 0 {
		opts.DriveTimeout = 30 * time.Second
	}
	return &Pipeline{
		store:    store,
		analyzer: analyzer,
		repo:     repo,
		opts:     opts,
		logger:   logger.WithComponent("pipeline"),
	}
}

// Ingest runs the full ingestion sequence for one submission and returns the
// committed record. The returned record reflects the enrichment outcome:
// enriched, degraded (ProcessingStatus=failed), or still pending when the
// request was cancelled mid-enrichment.
func (p *Pipeline) Ingest(ctx context.Context, req *document.SubmissionRequest) (*document.Record, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	// Stage 1: validate. No external call happens before this passes.
	if err := validator.ValidateSubmission(req); err != nil {
		p.countFailure("validate")
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	content, err := req.File.Bytes()
	if err != nil {
		p.countFailure("validate")
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "file content is not valid base64: %v", err)
	}

	// Stage 2: upload. Failure leaves nothing behind anywhere.
	ctx, span := tracing.StartChildSpan(ctx, "drive.upload")
	ref, err := p.uploadFile(ctx, req.File.Name, req.File.Type, content)
	span.End()
	if err != nil {
		p.countFailure("upload")
		return nil, fmt.Errorf("%w: %w", apperrors.ErrStorageFailed, err)
	}
	if p.opts.Metrics != nil {
		p.opts.Metrics.UploadBytes.Observe(float64(len(content)))
	}

	// Stage 3: persist. This is the commit point: once the insert succeeds
	// the caller gets a record back no matter what enrichment does.
	rec := &document.Record{
		Title:        req.Title,
		Description:  req.Description,
		DocumentType: req.DocumentType,
		Priority:     req.Priority,
		Tags:         req.Tags,
		Status:       document.StatusPending,
		FileURL:      ref.ViewURL,
		FileName:     req.File.Name,
		FileSize:     req.File.Size,
		FileType:     req.File.Type,
		DriveID:      ref.ID,
		DriveURL:     ref.ViewURL,
		CreatedBy:    req.CreatedBy,
	}
	if err := p.repo.Insert(ctx, rec); err != nil {
		p.countFailure("persist")
		p.rollbackUpload(ctx, ref.ID)
		return nil, fmt.Errorf("%w: inserting document record: %w", apperrors.ErrPersistenceFailed, err)
	}
	log.Info("document persisted", "doc_id", rec.ID, "drive_id", rec.DriveID, "file_name", rec.FileName)
	p.publish(ctx, document.Event{
		DocumentID: rec.ID,
		Action:     document.ActionIngested,
		Status:     rec.Status,
		OccurredAt: time.Now().UTC(),
	})

	// Stage 4: enrich, best-effort.
	outcome := p.enrich(ctx, rec)
	if p.opts.Metrics != nil {
		p.opts.Metrics.IngestTotal.WithLabelValues(outcome).Inc()
		p.opts.Metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}
	return rec, nil
}

// uploadFile calls Drive with a per-call deadline.
func (p *Pipeline) uploadFile(ctx context.Context, name, mimeType string, content []byte) (*document.StoredObjectRef, error) {
	var ref *document.StoredObjectRef
	err := resilience.WithTimeout(ctx, p.opts.DriveTimeout, "drive-upload", func(ctx context.Context) error {
		var uploadErr error
		ref, uploadErr = p.store.Upload(ctx, name, mimeType, content)
		return uploadErr
	})
	return ref, err
}

// rollbackUpload removes the just-uploaded Drive file after a failed insert.
// Rollback failure is logged, not returned: the caller already gets the
// persistence error.
func (p *Pipeline) rollbackUpload(ctx context.Context, driveID string) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.DriveTimeout)
	defer cancel()
	if err := p.store.Delete(rbCtx, driveID); err != nil {
		p.logger.Error("rollback of uploaded file failed, file orphaned",
			"drive_id", driveID,
			"error", err,
		)
	}
}

// enrich runs text export, analysis, and the enrichment update. Every
// failure mode ends in a degraded record, never an error to the caller.
// If ctx is cancelled mid-stage the record is left at its last committed
// state: enrichment is additive and its absence is a valid terminal state.
// Returns the outcome label: enriched, degraded, skipped, or cancelled.
func (p *Pipeline) enrich(ctx context.Context, rec *document.Record) string {
	log := logger.FromContext(ctx)

	if !p.opts.Enrichment.Enabled || p.analyzer == nil {
		if err := p.repo.Complete(ctx, rec.ID); err != nil {
			log.Error("completing document without enrichment failed", "doc_id", rec.ID, "error", err)
			return "degraded"
		}
		rec.Status = document.StatusCompleted
		return "skipped"
	}

	start := time.Now()
	enrichCtx := ctx
	if p.opts.Enrichment.Timeout > 0 {
		var cancel context.CancelFunc
		enrichCtx, cancel = context.WithTimeout(ctx, p.opts.Enrichment.Timeout)
		defer cancel()
	}
	enrichCtx, span := tracing.StartChildSpan(enrichCtx, "pipeline.enrich")
	defer span.End()

	analysis, err := p.analyze(enrichCtx, rec.DriveID)
	if p.opts.Metrics != nil {
		p.opts.Metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("enrichment cancelled, document left pending", "doc_id", rec.ID)
			return "cancelled"
		}
		return p.degrade(ctx, rec, err)
	}

	if err := p.repo.ApplyEnrichment(ctx, rec.ID, analysis); err != nil {
		p.countEnrichment("update_failed")
		if ctx.Err() != nil {
			log.Warn("enrichment cancelled, document left pending", "doc_id", rec.ID)
			return "cancelled"
		}
		return p.degrade(ctx, rec, fmt.Errorf("applying enrichment: %w", err))
	}
	p.countEnrichment("ok")

	rec.Status = document.StatusCompleted
	rec.AISummary = &analysis.Summary
	rec.AIKeywords = analysis.Keywords
	rec.AICategory = &analysis.Category
	rec.AIPrioritySuggestion = &analysis.Priority
	status := document.ProcessingSucceeded
	rec.ProcessingStatus = &status

	log.Info("document enriched",
		"doc_id", rec.ID,
		"category", analysis.Category,
		"keywords", len(analysis.Keywords),
	)
	p.publish(ctx, document.Event{
		DocumentID: rec.ID,
		Action:     document.ActionEnriched,
		Status:     rec.Status,
		OccurredAt: time.Now().UTC(),
	})
	return "enriched"
}

// analyze exports the document text from Drive and runs the model analysis.
// Both calls are transient-retried with bounded exponential backoff.
func (p *Pipeline) analyze(ctx context.Context, driveID string) (*document.Analysis, error) {
	retryCfg := resilience.RetryConfig{
		MaxAttempts:  p.opts.Enrichment.MaxAttempts,
		InitialDelay: p.opts.Enrichment.InitialDelay,
	}

	var text string
	err := resilience.Retry(ctx, "drive-export-text", retryCfg, func() error {
		var exportErr error
		text, exportErr = p.store.ExportText(ctx, driveID)
		return exportErr
	})
	if err != nil {
		p.countEnrichment("export_failed")
		return nil, fmt.Errorf("exporting document text: %w", err)
	}

	var analysis *document.Analysis
	err = resilience.Retry(ctx, "analyze-document", retryCfg, func() error {
		var analyzeErr error
		analysis, analyzeErr = p.analyzer.Analyze(ctx, text)
		return analyzeErr
	})
	if err != nil {
		p.countEnrichment("analyze_failed")
		return nil, fmt.Errorf("analyzing document text: %w", err)
	}
	return analysis, nil
}

// degrade records an enrichment failure on the document. User-submitted
// fields are untouched; the record still completes.
func (p *Pipeline) degrade(ctx context.Context, rec *document.Record, cause error) string {
	log := logger.FromContext(ctx)
	log.Warn("enrichment failed, recording degraded document", "doc_id", rec.ID, "error", cause)

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.repo.MarkEnrichmentFailed(markCtx, rec.ID, cause.Error()); err != nil {
		log.Error("recording enrichment failure failed", "doc_id", rec.ID, "error", err)
		return "degraded"
	}
	rec.Status = document.StatusCompleted
	status := document.ProcessingFailed
	rec.ProcessingStatus = &status
	msg := cause.Error()
	rec.ProcessingError = &msg
	return "degraded"
}

// Delete removes a document: Drive file first (best-effort), record second
// (authoritative). A Drive failure never blocks the record delete; refusing
// to remove a user-visible record because a third-party store timed out
// would be worse than an orphaned file.
func (p *Pipeline) Delete(ctx context.Context, id string) (*document.DeleteResult, error) {
	log := logger.FromContext(ctx)

	rec, err := p.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &document.DeleteResult{}
	driveLabel := "no_drive_file"
	if rec.DriveID != "" {
		delCtx, cancel := context.WithTimeout(ctx, p.opts.DriveTimeout)
		err := p.store.Delete(delCtx, rec.DriveID)
		cancel()
		outcome := document.DriveDeleted
		driveLabel = "drive_ok"
		if err != nil {
			log.Warn("drive deletion failed, continuing with record deletion",
				"doc_id", id,
				"drive_id", rec.DriveID,
				"error", err,
			)
			outcome = document.DriveDeleteFailed
			driveLabel = "drive_failed"
		}
		result.DriveDeleteResult = &outcome
	}

	if err := p.repo.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("%w: deleting document record: %w", apperrors.ErrPersistenceFailed, err)
	}
	if p.opts.Metrics != nil {
		p.opts.Metrics.DeletesTotal.WithLabelValues(driveLabel).Inc()
	}
	log.Info("document deleted", "doc_id", id, "drive", driveLabel)
	p.publish(ctx, document.Event{
		DocumentID: id,
		Action:     document.ActionDeleted,
		OccurredAt: time.Now().UTC(),
	})
	return result, nil
}

// Reprocess re-runs the enrichment stage for an existing record whose
// enrichment previously failed or never completed. Returns the outcome
// label from the enrichment stage.
func (p *Pipeline) Reprocess(ctx context.Context, id string) (string, error) {
	rec, err := p.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.DriveID == "" {
		return "", fmt.Errorf("document %s has no drive file to enrich from", id)
	}
	return p.enrich(ctx, rec), nil
}

// Get fetches a single record.
func (p *Pipeline) Get(ctx context.Context, id string) (*document.Record, error) {
	return p.repo.Get(ctx, id)
}

// List returns records matching the filter plus the unfiltered total count.
func (p *Pipeline) List(ctx context.Context, filter document.ListFilter) ([]document.Record, int, error) {
	return p.repo.List(ctx, filter)
}

// publish emits a lifecycle event, logging and absorbing any failure.
func (p *Pipeline) publish(ctx context.Context, ev document.Event) {
	if p.opts.Events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	status := "ok"
	if err := p.opts.Events.Publish(pubCtx, ev); err != nil {
		status = "failed"
		p.logger.Warn("event publish failed", "doc_id", ev.DocumentID, "action", ev.Action, "error", err)
	}
	if p.opts.Metrics != nil {
		p.opts.Metrics.EventsPublishedTotal.WithLabelValues(status).Inc()
	}
}

func (p *Pipeline) countFailure(stage string) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.IngestFailuresTotal.WithLabelValues(stage).Inc()
	}
}

func (p *Pipeline) countEnrichment(result string) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.EnrichmentTotal.WithLabelValues(result).Inc()
	}
}
