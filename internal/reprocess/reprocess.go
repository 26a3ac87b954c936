// Package reprocess re-drives the enrichment stage for documents whose
// enrichment failed or was interrupted, with bounded concurrency.
package reprocess

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tranhaiminh/docvault/internal/document/pipeline"
	"github.com/tranhaiminh/docvault/pkg/logger"
)

// CandidateSource lists the documents eligible for re-enrichment.
type CandidateSource interface {
	ListEnrichmentCandidates(ctx context.Context, limit int) ([]string, error)
}

// Stats summarises one reprocessing run.
type Stats struct {
	Candidates int
	Enriched   int
	Degraded   int
	Failed     int
}

// Reprocessor walks enrichment candidates and re-runs the pipeline's
// enrichment stage for each.
type Reprocessor struct {
	source      CandidateSource
	pipeline    *pipeline.Pipeline
	concurrency int
	logger      *slog.Logger
}

// New creates a Reprocessor running at most concurrency enrichments at once.
func New(source CandidateSource, p *pipeline.Pipeline, concurrency int) *Reprocessor {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Reprocessor{
		source:      source,
		pipeline:    p,
		concurrency: concurrency,
		logger:      logger.WithComponent("reprocess"),
	}
}

// Run fetches up to limit candidates and re-enriches them concurrently.
// Individual failures are counted, not fatal; only context cancellation
// aborts the run.
func (r *Reprocessor) Run(ctx context.Context, limit int) (*Stats, error) {
	ids, err := r.source.ListEnrichmentCandidates(ctx, limit)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Candidates: len(ids)}
	if len(ids) == 0 {
		return stats, nil
	}
	r.logger.Info("reprocessing documents", "candidates", len(ids), "concurrency", r.concurrency)

	var enriched, degraded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outcome, err := r.pipeline.Reprocess(gctx, id)
			if err != nil {
				failed.Add(1)
				r.logger.Warn("reprocess failed", "doc_id", id, "error", err)
				return nil
			}
			switch outcome {
			case "enriched":
				enriched.Add(1)
			case "cancelled":
				failed.Add(1)
			default:
				degraded.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()

	stats.Enriched = int(enriched.Load())
	stats.Degraded = int(degraded.Load())
	stats.Failed = int(failed.Load())
	r.logger.Info("reprocessing finished",
		"candidates", stats.Candidates,
		"enriched", stats.Enriched,
		"degraded", stats.Degraded,
		"failed", stats.Failed,
	)
	return stats, err
}
