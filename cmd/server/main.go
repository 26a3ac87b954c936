// Command server starts the docvault HTTP service.
//
// The service accepts document uploads via POST /api/v1/documents, stores the
// file in Google Drive, persists a record to PostgreSQL, and enriches the
// document with a Vertex AI analysis on a best-effort basis. It also serves
// document reads, deletions, and the read-only SQL query gateway, with
// health endpoints at GET /health and GET /health/ready.
//
// Usage:
//
//	go run ./cmd/server [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tranhaiminh/docvault/internal/document/handler"
	"github.com/tranhaiminh/docvault/internal/document/pipeline"
	"github.com/tranhaiminh/docvault/internal/drive"
	"github.com/tranhaiminh/docvault/internal/events"
	"github.com/tranhaiminh/docvault/internal/sqlgateway"
	"github.com/tranhaiminh/docvault/internal/store"
	"github.com/tranhaiminh/docvault/internal/vertex"
	"github.com/tranhaiminh/docvault/pkg/config"
	"github.com/tranhaiminh/docvault/pkg/health"
	"github.com/tranhaiminh/docvault/pkg/kafka"
	"github.com/tranhaiminh/docvault/pkg/logger"
	"github.com/tranhaiminh/docvault/pkg/metrics"
	"github.com/tranhaiminh/docvault/pkg/middleware"
	"github.com/tranhaiminh/docvault/pkg/postgres"
	"github.com/tranhaiminh/docvault/pkg/redis"
)

// main loads configuration, connects to PostgreSQL, Drive, Vertex, and the
// optional Redis/Kafka collaborators, wires up the pipeline and handlers,
// and starts the HTTP server. Graceful shutdown is triggered by
// SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting docvault server", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")
	docStore := store.New(db)

	driveClient, err := drive.NewClient(ctx, cfg.Drive)
	if err != nil {
		slog.Error("failed to create drive client", "error", err)
		os.Exit(1)
	}
	slog.Info("drive client initialized", "folder_id", cfg.Drive.FolderID)

	var analyzer pipeline.Analyzer
	if cfg.Enrichment.Enabled {
		va, err := vertex.NewAnalyzer(ctx, cfg.Vertex)
		if err != nil {
			slog.Error("failed to create vertex analyzer", "error", err)
			os.Exit(1)
		}
		defer va.Close()
		analyzer = va
		slog.Info("vertex analyzer initialized", "model", cfg.Vertex.Model)
	} else {
		slog.Info("enrichment disabled, documents will complete without analysis")
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			sdCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(sdCtx)
		}()
	}

	var eventPublisher pipeline.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents)
		pub := events.New(producer)
		defer pub.Close()
		eventPublisher = pub
		slog.Info("kafka event publisher initialized", "topic", cfg.Kafka.Topics.DocumentEvents)
	}

	pipe := pipeline.New(driveClient, analyzer, docStore, pipeline.Options{
		Enrichment:   cfg.Enrichment,
		DriveTimeout: cfg.Drive.Timeout,
		Events:       eventPublisher,
		Metrics:      m,
	})

	gatewayExecutor := sqlgateway.NewExecutor(db, cfg.Gateway)
	var gatewayCache *sqlgateway.QueryCache
	var redisClient *redis.Client
	if cfg.Gateway.CacheEnabled {
		redisClient, err = redis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, gateway cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			gatewayCache = sqlgateway.NewQueryCache(redisClient, cfg.Redis, m)
			slog.Info("gateway cache initialized", "ttl", cfg.Redis.CacheTTL)
		}
	}

	onChange := func() {
		if gatewayCache == nil {
			return
		}
		invCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		gatewayCache.Invalidate(invCtx)
	}

	docHandler := handler.New(pipe, onChange)
	gatewayHandler := sqlgateway.NewHandler(gatewayExecutor, gatewayCache, m)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := docStore.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("drive", func(ctx context.Context) health.ComponentHealth {
		if err := driveClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", docHandler.Upload)
	mux.HandleFunc("GET /api/v1/documents", docHandler.Read)
	mux.HandleFunc("DELETE /api/v1/documents", docHandler.Delete)
	mux.HandleFunc("POST /api/v1/sql", gatewayHandler.Query)
	mux.HandleFunc("GET /health", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	// Middleware chain, outermost first:
	// RequestID, CORS, Metrics, Timeout, then the mux.
	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("docvault server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("docvault server stopped")
}
