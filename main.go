package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/jawher/mow.cli"

	"price-tracker/config"
	"price-tracker/metrics"
	"price-tracker/scraper"
	"price-tracker/services"
	"price-tracker/storage"
	"price-tracker/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn("Invalid LOG_LEVEL %q, keeping info: %v", cfg.LogLevel, err)
	}

	app := cli.App("price-tracker", "Crawl Finnish web stores and record product price history")

	app.Command("run", "Scrape one store or every active store", func(cmd *cli.Cmd) {
		cmd.Spec = "[--store] [--limit]"
		storeName := cmd.StringOpt("store", "", "only scrape the store with this name (e.g. \"Gigantti\")")
		limit := cmd.IntOpt("limit", 0, "stop each store after this many products (0 = no limit)")

		cmd.Action = func() {
			if err := run(cfg, logger, *storeName, *limit); err != nil {
				logger.Error("Run failed: %v", err)
				cli.Exit(1)
			}
		}
	})

	app.Command("cleanup", "Delete products that have no price history", func(cmd *cli.Cmd) {
		cmd.Action = func() {
			if err := cleanup(cfg, logger); err != nil {
				logger.Error("Cleanup failed: %v", err)
				cli.Exit(1)
			}
		}
	})

	app.Command("stores", "Seed the default stores and list them", func(cmd *cli.Cmd) {
		cmd.Action = func() {
			if err := listStores(cfg, logger); err != nil {
				logger.Error("Listing stores failed: %v", err)
				cli.Exit(1)
			}
		}
	})

	if err := app.Run(os.Args); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openRepository(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.Repository, error) {
	if cfg.Storage == "memory" {
		logger.Warn("STORAGE=memory: results are discarded when the process exits")
		return storage.NewMemoryRepository(), nil
	}

	repo, err := storage.NewPostgresRepository(ctx, cfg.DSN())
	if err != nil {
		logger.Error("Make sure PostgreSQL is running: docker compose up -d")
		return nil, err
	}
	return repo, nil
}

func run(cfg *config.Config, logger *utils.Logger, storeName string, limit int) error {
	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("=== Price tracker starting ===")
	logger.Info("Config: timeout %s | rate %dms | retries %d | batch %d | page %d | store concurrency %d",
		cfg.RequestTimeout, cfg.RateLimitMs, cfg.MaxRetries, cfg.BatchSize, cfg.PageSize, cfg.StoreConcurrency)

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	if _, err := services.EnsureDefaultStores(ctx, repo, logger); err != nil {
		return err
	}

	settings := services.Settings{
		Options:     scraper.NewOptions(cfg),
		Currency:    cfg.Currency,
		Concurrency: cfg.StoreConcurrency,
	}
	if cfg.CSVOutputPath != "" {
		csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
		if err != nil {
			return err
		}
		defer csvWriter.Close()
		settings.Sink = csvWriter
		logger.Info("Raw products will be saved to %s", cfg.CSVOutputPath)
	}

	reports := services.NewReportBuilder(cfg.ReportDir, logger)
	orchestrator := services.NewOrchestrator(repo, services.DefaultRegistry(), reports, settings, logger)

	if storeName != "" {
		report, err := orchestrator.RunOne(ctx, storeName, limit)
		if errors.Is(err, storage.ErrNotFound) {
			logger.Error("Store not found: %s", storeName)
			return err
		}
		if report != nil {
			reports.Print(os.Stdout, report)
		}
		return err
	}

	report, err := orchestrator.RunAll(ctx, limit)
	if report != nil {
		reports.Print(os.Stdout, report)
	}
	return err
}

func cleanup(cfg *config.Config, logger *utils.Logger) error {
	ctx, cancel := signalContext()
	defer cancel()

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	reports := services.NewReportBuilder(cfg.ReportDir, logger)
	orchestrator := services.NewOrchestrator(repo, services.DefaultRegistry(), reports, services.Settings{}, logger)
	_, err = orchestrator.Cleanup(ctx)
	return err
}

func listStores(cfg *config.Config, logger *utils.Logger) error {
	ctx, cancel := signalContext()
	defer cancel()

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	if _, err := services.EnsureDefaultStores(ctx, repo, logger); err != nil {
		return err
	}
	stores, err := repo.ListStores(ctx)
	if err != nil {
		return err
	}
	for _, s := range stores {
		state := "active"
		if !s.IsActive {
			state = "inactive"
		}
		logger.Info("%d  %-20s %-22s %-8s %s", s.ID, s.Name, s.ScraperClass, state, s.BaseURL)
	}
	return nil
}

func serveMetrics(addr string, logger *utils.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed: %v", err)
		}
	}()
	return srv
}
