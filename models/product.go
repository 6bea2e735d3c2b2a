package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the native currency of every tracked store.
const DefaultCurrency = "EUR"

// ScrapedProduct is the canonical record every store adapter produces.
// It is consumed immediately by the ingestion step and never stored as-is.
type ScrapedProduct struct {
	ExternalID    string
	Name          string
	URL           string
	Price         float64
	OriginalPrice *float64
	Brand         string
	Category      string
	ImageURL      string
	Description   string
	IsAvailable   bool
}

// Store is a web store whose catalog is crawled. Adapters only read it.
type Store struct {
	ID           int64
	Name         string
	BaseURL      string
	ScraperClass string
	SitemapURL   string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Product is the persisted entity identified by (StoreID, ExternalID).
type Product struct {
	ID          int64
	StoreID     int64
	ExternalID  string
	Name        string
	URL         string
	Brand       string
	Category    string
	ImageURL    string
	Description string
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductUpsert carries the mutable product fields written on every re-scrape.
type ProductUpsert struct {
	StoreID     int64
	ExternalID  string
	Name        string
	URL         string
	Brand       string
	Category    string
	ImageURL    string
	Description string
	IsAvailable bool
}

// PriceHistoryPoint is one append-only price observation of a product.
type PriceHistoryPoint struct {
	ID            int64
	ProductID     int64
	Price         float64
	OriginalPrice *float64
	Currency      string
	ScrapedAt     time.Time
}

// DiscountPercentage returns the discount of the point, if any.
func (p *PriceHistoryPoint) DiscountPercentage() (float64, bool) {
	return DiscountPercentage(p.Price, p.OriginalPrice)
}

// DiscountPercentage computes (1 - price/original) * 100 rounded to one
// decimal. It is defined only when original > price.
func DiscountPercentage(price float64, original *float64) (float64, bool) {
	if original == nil || *original <= price || *original <= 0 {
		return 0, false
	}
	ratio := decimal.NewFromFloat(price).Div(decimal.NewFromFloat(*original))
	pct := decimal.NewFromInt(1).Sub(ratio).Mul(decimal.NewFromInt(100)).Round(1)
	return pct.InexactFloat64(), true
}

// StoreStats holds the counters of one store's scrape.
type StoreStats struct {
	StoreID  int64
	Name     string
	Products int
	Errors   int
	Duration time.Duration
	// Aborted is set when the store could not be scraped at all,
	// e.g. no adapter is registered for its scraper class.
	Aborted bool
}

// RunReport aggregates the statistics of one run across stores.
type RunReport struct {
	RunID         string
	StartedAt     time.Time
	Stores        []StoreStats
	TotalDuration time.Duration
	Cleaned       int64
	Path          string
}

// TotalProducts sums the products scraped across stores.
func (r *RunReport) TotalProducts() int {
	n := 0
	for _, s := range r.Stores {
		n += s.Products
	}
	return n
}

// TotalErrors sums the errors across stores.
func (r *RunReport) TotalErrors() int {
	n := 0
	for _, s := range r.Stores {
		n += s.Errors
	}
	return n
}
