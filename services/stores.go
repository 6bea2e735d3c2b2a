package services

import (
	"context"
	"errors"
	"fmt"

	"price-tracker/models"
	"price-tracker/scraper/gigantti"
	"price-tracker/scraper/verkkokauppa"
	"price-tracker/storage"
	"price-tracker/utils"
)

// DefaultStores are seeded on first start. Power has no sitemap.
func DefaultStores() []*models.Store {
	return []*models.Store{
		{
			Name:         "Verkkokauppa.com",
			BaseURL:      "https://www.verkkokauppa.com",
			ScraperClass: "VerkkokauppaScraper",
			SitemapURL:   verkkokauppa.DefaultSitemapURL,
			IsActive:     true,
		},
		{
			Name:         "Gigantti",
			BaseURL:      "https://www.gigantti.fi",
			ScraperClass: "GiganttiScraper",
			SitemapURL:   gigantti.DefaultSitemapURL,
			IsActive:     true,
		},
		{
			Name:         "Power",
			BaseURL:      "https://www.power.fi",
			ScraperClass: "PowerScraper",
			IsActive:     true,
		},
	}
}

// EnsureDefaultStores creates every default store missing from repo and
// returns how many were created. Existing rows are left untouched.
func EnsureDefaultStores(ctx context.Context, repo storage.StoreRepository, logger *utils.Logger) (int, error) {
	created := 0
	for _, s := range DefaultStores() {
		_, err := repo.FindStoreByName(ctx, s.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return created, fmt.Errorf("seed stores: %w", err)
		}

		if _, err := repo.CreateStore(ctx, s); err != nil {
			return created, fmt.Errorf("seed stores: %w", err)
		}
		created++
		logger.Info("Created store: %s", s.Name)
	}
	return created, nil
}
