package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"price-tracker/metrics"
	"price-tracker/models"
	"price-tracker/scraper"
	"price-tracker/storage"
	"price-tracker/utils"
)

// Settings tunes an Orchestrator.
type Settings struct {
	Options scraper.Options
	// Currency recorded with every price point.
	Currency string
	// Concurrency is the number of stores scraped at once. Values below 2
	// keep stores strictly sequential.
	Concurrency int
	// Sink, when set, receives every accepted product as scraped.
	Sink storage.ProductWriter
}

// Orchestrator drives store adapters and routes their products into the
// repository.
type Orchestrator struct {
	repo     storage.Repository
	registry *Registry
	ingestor *Ingestor
	reports  *ReportBuilder
	settings Settings
	logger   *utils.Logger
}

// NewOrchestrator wires an Orchestrator.
func NewOrchestrator(repo storage.Repository, registry *Registry, reports *ReportBuilder, settings Settings, logger *utils.Logger) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		registry: registry,
		ingestor: NewIngestor(repo, settings.Currency),
		reports:  reports,
		settings: settings,
		logger:   logger,
	}
}

// RunStoreByName looks the store up and runs it.
func (o *Orchestrator) RunStoreByName(ctx context.Context, name string, limit int) (models.StoreStats, error) {
	store, err := o.repo.FindStoreByName(ctx, name)
	if err != nil {
		return models.StoreStats{Name: name}, fmt.Errorf("store %q: %w", name, err)
	}
	return o.RunStore(ctx, store, limit), nil
}

// RunStore scrapes one store to completion or until limit products were
// persisted (limit <= 0 means no limit). Failures are counted, never returned.
func (o *Orchestrator) RunStore(ctx context.Context, store *models.Store, limit int) models.StoreStats {
	start := time.Now()
	log := o.logger.WithField("store", store.Name)
	stats := models.StoreStats{StoreID: store.ID, Name: store.Name}

	defer func() {
		stats.Duration = time.Since(start)
		metrics.ObserveRun(store.Name, stats.Duration)
	}()

	if limit > 0 {
		log.Info("Starting scraping for store %d with %s (limit: %d)", store.ID, store.ScraperClass, limit)
	} else {
		log.Info("Starting scraping for store %d with %s", store.ID, store.ScraperClass)
	}

	factory, err := o.registry.Lookup(store.ScraperClass)
	if err != nil {
		log.Error("Cannot scrape %s: %v", store.Name, err)
		stats.Aborted = true
		stats.Errors = 1
		metrics.RecordErrors(store.Name, "config", 1)
		return stats
	}

	adapter := factory(store, o.settings.Options, o.logger)
	defer func() {
		if err := adapter.Close(); err != nil {
			log.Warn("Closing adapter: %v", err)
		}
	}()

	for p, err := range adapter.ScrapeAll(ctx) {
		if err != nil {
			lost := scraper.LostRecords(err)
			stats.Errors += lost
			metrics.RecordErrors(store.Name, errorKind(err), lost)
			continue
		}

		if limit > 0 && stats.Products >= limit {
			break
		}

		if _, err := o.ingestor.Ingest(ctx, store.ID, p); err != nil {
			log.Error("Error saving product %s: %v", p.Name, err)
			stats.Errors++
			metrics.RecordErrors(store.Name, "persistence", 1)
			continue
		}
		stats.Products++
		metrics.RecordProduct(store.Name)

		if o.settings.Sink != nil {
			if err := o.settings.Sink.WriteProduct(store.Name, p); err != nil {
				log.Warn("CSV write failed for %s: %v", p.ExternalID, err)
			}
		}

		if stats.Products%100 == 0 {
			log.Info("Scraped %d products so far...", stats.Products)
		}
		if limit > 0 && stats.Products >= limit {
			log.Info("Reached limit of %d products", limit)
			break
		}
	}

	if ctx.Err() != nil {
		log.Warn("Scraping of %s interrupted: %v", store.Name, ctx.Err())
	}
	log.Info("Completed scraping for store %d: %d products, %d errors", store.ID, stats.Products, stats.Errors)
	return stats
}

// RunAll scrapes every active store, removes products that never got a
// price, and writes the run report.
func (o *Orchestrator) RunAll(ctx context.Context, limit int) (*models.RunReport, error) {
	runID := uuid.NewString()
	log := o.logger.WithField("run", runID)
	start := time.Now()

	stores, err := o.repo.ListActiveStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active stores: %w", err)
	}

	log.Info("==================================================")
	log.Info("Starting scraping job for %d stores", len(stores))
	log.Info("==================================================")

	stats := make([]models.StoreStats, len(stores))
	utils.RunBounded(len(stores), o.settings.Concurrency, func(i int) {
		log.Info("Processing store: %s", stores[i].Name)
		stats[i] = o.RunStore(ctx, stores[i], limit)
	})

	report, err := o.finish(ctx, log, runID, start, stats)
	if err != nil {
		return report, err
	}
	log.Info("Scraping job completed: %d products, %d errors in %s",
		report.TotalProducts(), report.TotalErrors(), report.TotalDuration.Round(time.Second))
	return report, nil
}

// RunOne scrapes a single store by name, then cleans up and writes the
// report the same way RunAll does.
func (o *Orchestrator) RunOne(ctx context.Context, name string, limit int) (*models.RunReport, error) {
	runID := uuid.NewString()
	log := o.logger.WithField("run", runID)
	start := time.Now()

	stats, err := o.RunStoreByName(ctx, name, limit)
	if err != nil {
		return nil, err
	}
	return o.finish(ctx, log, runID, start, []models.StoreStats{stats})
}

// finish removes products that never got a price and writes the report.
func (o *Orchestrator) finish(ctx context.Context, log *utils.Logger, runID string, start time.Time, stats []models.StoreStats) (*models.RunReport, error) {
	report := o.reports.Build(stats, time.Since(start))
	report.RunID = runID
	report.StartedAt = start

	cleaned, err := o.repo.DeleteProductsWithoutPriceHistory(ctx)
	if err != nil {
		log.Error("Cleanup failed: %v", err)
	} else if cleaned > 0 {
		log.Info("Removed %d products without price history", cleaned)
	}
	report.Cleaned = cleaned

	if _, err := o.reports.Write(report); err != nil {
		log.Error("Writing report failed: %v", err)
		return report, err
	}
	return report, nil
}

// Cleanup deletes products that have no price history.
func (o *Orchestrator) Cleanup(ctx context.Context) (int64, error) {
	n, err := o.repo.DeleteProductsWithoutPriceHistory(ctx)
	if err != nil {
		return 0, err
	}
	o.logger.Info("Deleted %d products without price history", n)
	return n, nil
}

func errorKind(err error) string {
	var status *scraper.StatusError
	switch {
	case errors.Is(err, scraper.ErrIncomplete), errors.Is(err, scraper.ErrUnparseablePrice):
		return "schema"
	case errors.As(err, &status):
		return "http_status"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}
