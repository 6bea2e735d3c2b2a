package storage

import (
	"context"
	"errors"

	"price-tracker/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// StoreRepository reads and seeds the configured stores.
type StoreRepository interface {
	FindStoreByName(ctx context.Context, name string) (*models.Store, error)
	ListActiveStores(ctx context.Context) ([]*models.Store, error)
	ListStores(ctx context.Context) ([]*models.Store, error)
	CreateStore(ctx context.Context, store *models.Store) (*models.Store, error)
}

// ProductRepository persists products and their append-only price history.
type ProductRepository interface {
	// UpsertProduct inserts the product or, when (StoreID, ExternalID)
	// already exists, overwrites its mutable fields and bumps updated_at.
	UpsertProduct(ctx context.Context, p models.ProductUpsert) (*models.Product, error)
	// AppendPriceHistory always inserts a new point.
	AppendPriceHistory(ctx context.Context, productID int64, price float64, original *float64, currency string) (*models.PriceHistoryPoint, error)
	// DeleteProductsWithoutPriceHistory removes orphaned products and
	// returns how many were deleted.
	DeleteProductsWithoutPriceHistory(ctx context.Context) (int64, error)
	// PriceHistory returns up to limit points, newest first. limit <= 0
	// returns every point.
	PriceHistory(ctx context.Context, productID int64, limit int) ([]*models.PriceHistoryPoint, error)
	// LatestPrice returns the most recent point of a product.
	LatestPrice(ctx context.Context, productID int64) (*models.PriceHistoryPoint, error)
}

// Repository is the persistence contract the pipeline runs against.
type Repository interface {
	StoreRepository
	ProductRepository
	Close() error
}

// ProductWriter receives every accepted product of a run, unprocessed.
type ProductWriter interface {
	WriteProduct(storeName string, p *models.ScrapedProduct) error
	Close() error
}
