package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/cache"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/common"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/export"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/fallback"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/ledger"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/pipeline"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/repository"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/storage"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/validate"
)

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		prefix = flag.String("prefix", "", "object key prefix to scan for invoices")
		keys   = flag.String("keys", "", "comma-separated object keys to process (overrides --prefix)")
		tenant = flag.String("tenant", "", "tenant to attribute the run to")
		force  = flag.Bool("force", false, "reprocess documents already accepted or queued for review")
		out    = flag.String("out", "", "write a cost report XLSX to this path after the run")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
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

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Error("database pool failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	repo := repository.NewInvoiceRepository(pool, logger)

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
	}, led, logger)
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

	proc := pipeline.NewProcessor(logger, resultCache, extractor, engine, repo, nil)
	runner := pipeline.NewRunner(logger, store, proc, led, cfg.Pipeline)

	req := pipeline.RunRequest{
		Prefix: *prefix,
		Tenant: *tenant,
		Force:  *force,
	}
	if *keys != "" {
		for _, k := range strings.Split(*keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				req.Keys = append(req.Keys, k)
			}
		}
	}

	summary, err := runner.Run(ctx, req)
	if err != nil {
		logger.Error("run failed", "error", err, "run_id", summary.RunID)
		os.Exit(1)
	}

	if *out != "" {
		svc := export.NewService(led, logger)
		b, err := svc.CostReportXLSX(ledger.Window{From: summary.StartedAt, To: summary.FinishedAt})
		if err != nil {
			logger.Error("cost report failed", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, b, 0644); err != nil {
			logger.Error("failed to write output file", "error", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Run %s complete!\n", summary.RunID)
	fmt.Printf("- Documents: %d (batches: %d)\n", summary.Documents, summary.Batches)
	fmt.Printf("- Accepted: %d\n", summary.Accepted)
	fmt.Printf("- Review: %d\n", summary.Review)
	fmt.Printf("- Failed: %d\n", summary.Failed)
	fmt.Printf("- Cached: %d\n", summary.Cached)
	fmt.Printf("- Cost: $%.4f\n", summary.Cost)
	if *out != "" {
		fmt.Printf("- Cost report: %s\n", *out)
	}
}
