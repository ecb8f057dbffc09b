package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/cache"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/common"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/export"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/fallback"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/ledger"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/llm"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/llm/anthropic"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/llm/gemini"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/llm/openai"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/metrics"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/pipeline"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/repository"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/server"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/storage"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/validate"
)

// attemptRecorder fans each provider attempt out to the cost ledger and
// the Prometheus counters.
type attemptRecorder struct {
	ledger  *ledger.Ledger
	metrics *metrics.Metrics
}

func (r attemptRecorder) Record(a entity.ProviderAttempt) {
	r.ledger.Record(a)
	r.metrics.ObserveAttempt(a.Provider, string(a.Outcome), a.Cost, a.Latency().Seconds())
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		logger.Error("minio init failed", "error", err)
		os.Exit(1)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		logger.Error("database dsn invalid", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error("database pool failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	repo := repository.NewInvoiceRepository(pool, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		os.Exit(1)
	}

	led := ledger.New(logger)
	resultCache := cache.New(cache.Config{
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
	}, logger)

	providers := buildProviders(cfg, logger)
	extractor, err := fallback.New(cfg.Fallback.Order, providers, fallback.Config{
		RetryLimit:  cfg.Fallback.RetryLimit,
		BackoffBase: cfg.Fallback.BackoffBase,
		BackoffCap:  cfg.Fallback.BackoffCap,
		CallTimeout: cfg.Fallback.CallTimeout,
	}, attemptRecorder{ledger: led, metrics: m}, logger)
	if err != nil {
		logger.Error("fallback client init failed", "error", err)
		os.Exit(1)
	}

	engine, err := validate.NewEngine(validate.Config{
		AcceptThreshold: cfg.Pipeline.AcceptThreshold,
		RejectThreshold: cfg.Pipeline.RejectThreshold,
	}, logger)
	if err != nil {
		logger.Error("validation engine init failed", "error", err)
		os.Exit(1)
	}

	proc := pipeline.NewProcessor(logger, resultCache, extractor, engine, repo, m)
	runner := pipeline.NewRunner(logger, store, proc, led, cfg.Pipeline)

	srv := server.New(runner, export.NewService(led, logger), registry, logger)
	go func() {
		logger.Info("http listening", "addr", cfg.Server.HTTPAddr)
		if err := srv.Listen(cfg.Server.HTTPAddr); err != nil {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("stopped")
}

// buildProviders constructs one client per configured provider, skipping
// any without an API key so the fallback order degrades instead of failing.
func buildProviders(cfg *common.Config, logger *slog.Logger) map[string]llm.Provider {
	timeout := cfg.Fallback.CallTimeout
	providers := make(map[string]llm.Provider)
	if pc := cfg.Providers.Gemini; pc.APIKey != "" {
		providers[constants.ProviderGemini] = gemini.FromProviderConfig(pc, timeout, logger)
	} else {
		logger.Warn("provider skipped, no api key", "provider", constants.ProviderGemini)
	}
	if pc := cfg.Providers.OpenAI; pc.APIKey != "" {
		providers[constants.ProviderOpenAI] = openai.FromProviderConfig(pc, timeout, logger)
	} else {
		logger.Warn("provider skipped, no api key", "provider", constants.ProviderOpenAI)
	}
	if pc := cfg.Providers.Anthropic; pc.APIKey != "" {
		providers[constants.ProviderAnthropic] = anthropic.FromProviderConfig(pc, timeout, logger)
	} else {
		logger.Warn("provider skipped, no api key", "provider", constants.ProviderAnthropic)
	}
	return providers
}
