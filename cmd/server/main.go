// Command server starts the policy analyzer HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brokerpoint/polizza-analyzer/internal/adapter/ai/openrouter"
	"github.com/brokerpoint/polizza-analyzer/internal/adapter/ai/stub"
	"github.com/brokerpoint/polizza-analyzer/internal/adapter/cache"
	httpserver "github.com/brokerpoint/polizza-analyzer/internal/adapter/httpserver"
	"github.com/brokerpoint/polizza-analyzer/internal/adapter/observability"
	"github.com/brokerpoint/polizza-analyzer/internal/adapter/repo/postgres"
	tikaext "github.com/brokerpoint/polizza-analyzer/internal/adapter/textextractor/tika"
	"github.com/brokerpoint/polizza-analyzer/internal/analyzer"
	"github.com/brokerpoint/polizza-analyzer/internal/app"
	"github.com/brokerpoint/polizza-analyzer/internal/config"
	"github.com/brokerpoint/polizza-analyzer/internal/domain"
	"github.com/brokerpoint/polizza-analyzer/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP and provider instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Infra: DB pool
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Idempotent DDL at boot replaces a separate migration step.
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Repositories
	guaranteeRepo := postgres.NewGuaranteeRepo(pool)
	policyRepo := postgres.NewPolicyRepo(pool)
	extractionRepo := postgres.NewExtractionRepo(pool)
	comparisonRepo := postgres.NewComparisonRepo(pool)

	// Extraction cache (optional; the usecases run fine without it)
	var extCache *cache.ExtractionCache
	if cfg.RedisURL != "" {
		extCache, err = cache.New(cfg.RedisURL, cfg.ExtractionCacheTTL)
		if err != nil {
			slog.Warn("redis connect failed, extraction cache disabled", slog.Any("error", err))
			extCache = nil
		}
	}
	var ucCache usecase.ExtractionCache
	var cachePing app.Pinger
	if extCache != nil {
		ucCache = extCache
		cachePing = extCache
	}

	// Chat client: real provider when credentials exist, deterministic stub
	// otherwise so local runs never need an API key.
	var chat domain.ChatClient
	if cfg.AIConfigured() {
		chat = openrouter.New(cfg)
		slog.Info("AI client initialized", slog.String("model", cfg.AIModel))
	} else {
		chat = stub.New()
		slog.Warn("AI_API_KEY not set, using stub chat client")
	}

	engine := analyzer.NewService(cfg, chat)

	// Catalog seeding (idempotent; exact duplicates are skipped)
	if cfg.CatalogSeedPath != "" {
		inserted, err := seedCatalogFromYAML(ctx, guaranteeRepo, cfg.CatalogSeedPath)
		if err != nil {
			slog.Error("catalog seed failed", slog.Any("error", err), slog.String("path", cfg.CatalogSeedPath))
			os.Exit(1)
		}
		slog.Info("catalog seeded", slog.Int("inserted", inserted), slog.String("path", cfg.CatalogSeedPath))
	}

	// External text extractor (Apache Tika)
	ext := tikaext.New(cfg.TikaURL)

	// Usecases
	uploadSvc := usecase.NewUploadService(ext, policyRepo, ucCache)
	analyzeSvc := usecase.NewAnalyzeService(engine, policyRepo, guaranteeRepo, extractionRepo, ucCache)
	compareSvc := usecase.NewCompareService(engine, extractionRepo, comparisonRepo)
	generateSvc := usecase.NewGenerateService(engine, guaranteeRepo)

	// Readiness checks
	dbCheck, redisCheck, tikaCheck := app.BuildReadinessChecks(cfg, pool, cachePing)

	// HTTP server
	srv := httpserver.NewServer(cfg, uploadSvc, analyzeSvc, compareSvc, generateSvc, dbCheck, redisCheck, tikaCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
