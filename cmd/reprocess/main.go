// Command reprocess re-runs AI enrichment for documents whose enrichment
// previously failed or never completed. It is intended to be run as a
// cron job or one-off operational task.
//
// Usage:
//
//	go run ./cmd/reprocess [-config configs/development.yaml] [-limit 50] [-concurrency 4]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tranhaiminh/docvault/internal/document/pipeline"
	"github.com/tranhaiminh/docvault/internal/drive"
	"github.com/tranhaiminh/docvault/internal/reprocess"
	"github.com/tranhaiminh/docvault/internal/store"
	"github.com/tranhaiminh/docvault/internal/vertex"
	"github.com/tranhaiminh/docvault/pkg/config"
	"github.com/tranhaiminh/docvault/pkg/logger"
	"github.com/tranhaiminh/docvault/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	limit := flag.Int("limit", 50, "maximum number of documents to reprocess")
	concurrency := flag.Int("concurrency", 4, "number of concurrent enrichments")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if !cfg.Enrichment.Enabled {
		slog.Error("enrichment is disabled, nothing to reprocess")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	docStore := store.New(db)

	driveClient, err := drive.NewClient(ctx, cfg.Drive)
	if err != nil {
		slog.Error("failed to create drive client", "error", err)
		os.Exit(1)
	}

	analyzer, err := vertex.NewAnalyzer(ctx, cfg.Vertex)
	if err != nil {
		slog.Error("failed to create vertex analyzer", "error", err)
		os.Exit(1)
	}
	defer analyzer.Close()

	pipe := pipeline.New(driveClient, analyzer, docStore, pipeline.Options{
		Enrichment:   cfg.Enrichment,
		DriveTimeout: cfg.Drive.Timeout,
	})

	runner := reprocess.New(docStore, pipe, *concurrency)
	stats, err := runner.Run(ctx, *limit)
	if err != nil {
		slog.Error("reprocess run aborted", "error", err)
		os.Exit(1)
	}
	fmt.Printf("candidates=%d enriched=%d degraded=%d failed=%d\n",
		stats.Candidates, stats.Enriched, stats.Degraded, stats.Failed)
}
