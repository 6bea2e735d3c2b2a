package services

import (
	"context"
	"fmt"

	"price-tracker/models"
	"price-tracker/storage"
)

// Ingestor reconciles scraped products against the repository: one product
// upsert followed by one price history point. The two writes are not atomic;
// a missing point is filled in by the next run.
type Ingestor struct {
	repo     storage.ProductRepository
	currency string
}

// NewIngestor returns an Ingestor recording prices in currency.
func NewIngestor(repo storage.ProductRepository, currency string) *Ingestor {
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return &Ingestor{repo: repo, currency: currency}
}

// Ingest persists p for the store and returns the stored product.
func (in *Ingestor) Ingest(ctx context.Context, storeID int64, p *models.ScrapedProduct) (*models.Product, error) {
	product, err := in.repo.UpsertProduct(ctx, models.ProductUpsert{
		StoreID:     storeID,
		ExternalID:  p.ExternalID,
		Name:        p.Name,
		URL:         p.URL,
		Brand:       p.Brand,
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		Description: p.Description,
		IsAvailable: p.IsAvailable,
	})
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", p.ExternalID, err)
	}

	if _, err := in.repo.AppendPriceHistory(ctx, product.ID, p.Price, p.OriginalPrice, in.currency); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", p.ExternalID, err)
	}
	return product, nil
}
