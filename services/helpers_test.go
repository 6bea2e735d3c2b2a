package services

import (
	"context"
	"fmt"
	"io"
	"iter"
	"sync"

	"price-tracker/models"
	"price-tracker/scraper"
	"price-tracker/storage"
	"price-tracker/utils"
)

func quietLogger() *utils.Logger {
	l := utils.NewLogger()
	l.SetOutput(io.Discard)
	return l
}

// fakeAdapter yields n products and, after every product listed in failAfter,
// the error stored there.
type fakeAdapter struct {
	name      string
	n         int
	failAfter map[int]error

	mu     sync.Mutex
	pulled int
	closed int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) DiscoverCandidates(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := 0; i < f.n; i++ {
			if !yield(fmt.Sprintf("https://store.example/p/%d", i)) {
				return
			}
		}
	}
}

func (f *fakeAdapter) ScrapeAll(ctx context.Context) iter.Seq2[*models.ScrapedProduct, error] {
	return func(yield func(*models.ScrapedProduct, error) bool) {
		for i := 0; i < f.n; i++ {
			f.mu.Lock()
			f.pulled++
			f.mu.Unlock()

			p := &models.ScrapedProduct{
				ExternalID: fmt.Sprintf("%d", i),
				Name:       fmt.Sprintf("Product %d", i),
				URL:        fmt.Sprintf("https://store.example/p/%d", i),
				Price:      float64(10 + i),
			}
			if !yield(p, nil) {
				return
			}
			if err, ok := f.failAfter[i]; ok {
				if !yield(nil, err) {
					return
				}
			}
		}
	}
}

func (f *fakeAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func registryWith(class string, a *fakeAdapter) *Registry {
	r := NewRegistry()
	r.MustRegister(class, func(*models.Store, scraper.Options, *utils.Logger) scraper.Adapter {
		return a
	})
	return r
}

// flakyRepo fails UpsertProduct for one external id.
type flakyRepo struct {
	*storage.MemoryRepository
	failID string
}

func (r *flakyRepo) UpsertProduct(ctx context.Context, p models.ProductUpsert) (*models.Product, error) {
	if p.ExternalID == r.failID {
		return nil, fmt.Errorf("connection reset")
	}
	return r.MemoryRepository.UpsertProduct(ctx, p)
}
