package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"price-tracker/models"
)

// PostgresRepository persists stores, products and price history to PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository opens a connection to PostgreSQL, runs schema
// migrations, and returns a ready-to-use repository.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	repo := &PostgresRepository{db: db}
	if err := repo.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return repo, nil
}

func (r *PostgresRepository) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS stores (
			id            SERIAL PRIMARY KEY,
			name          VARCHAR(100) UNIQUE NOT NULL,
			base_url      TEXT         NOT NULL,
			scraper_class VARCHAR(100) NOT NULL,
			sitemap_url   TEXT         NOT NULL DEFAULT '',
			is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
			created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS products (
			id           SERIAL PRIMARY KEY,
			store_id     INTEGER      NOT NULL REFERENCES stores(id),
			external_id  VARCHAR(100) NOT NULL,
			name         TEXT         NOT NULL,
			url          TEXT         NOT NULL,
			brand        TEXT         NOT NULL DEFAULT '',
			category     TEXT         NOT NULL DEFAULT '',
			image_url    TEXT         NOT NULL DEFAULT '',
			description  TEXT         NOT NULL DEFAULT '',
			is_available BOOLEAN      NOT NULL DEFAULT TRUE,
			created_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			UNIQUE (store_id, external_id)
		);

		CREATE TABLE IF NOT EXISTS price_history (
			id             SERIAL PRIMARY KEY,
			product_id     INTEGER       NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			price          NUMERIC(10,2) NOT NULL,
			original_price NUMERIC(10,2),
			currency       VARCHAR(3)    NOT NULL DEFAULT 'EUR',
			scraped_at     TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_products_name        ON products(name);
		CREATE INDEX IF NOT EXISTS idx_products_brand       ON products(brand);
		CREATE INDEX IF NOT EXISTS idx_price_history_lookup ON price_history(product_id, scraped_at DESC);
	`)
	return err
}

const storeColumns = `id, name, base_url, scraper_class, sitemap_url, is_active, created_at, updated_at`

func scanStore(row interface{ Scan(...any) error }) (*models.Store, error) {
	s := &models.Store{}
	err := row.Scan(&s.ID, &s.Name, &s.BaseURL, &s.ScraperClass, &s.SitemapURL, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// FindStoreByName returns ErrNotFound when no store has that name.
func (r *PostgresRepository) FindStoreByName(ctx context.Context, name string) (*models.Store, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM stores WHERE name = $1`, name)
	s, err := scanStore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find store %q: %w", name, err)
	}
	return s, nil
}

func (r *PostgresRepository) ListActiveStores(ctx context.Context) ([]*models.Store, error) {
	return r.listStores(ctx, `SELECT `+storeColumns+` FROM stores WHERE is_active ORDER BY id`)
}

func (r *PostgresRepository) ListStores(ctx context.Context) ([]*models.Store, error) {
	return r.listStores(ctx, `SELECT `+storeColumns+` FROM stores ORDER BY id`)
}

func (r *PostgresRepository) listStores(ctx context.Context, query string) ([]*models.Store, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stores: %w", err)
	}
	defer rows.Close()

	var stores []*models.Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan store: %w", err)
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

// CreateStore inserts store and fills in its generated fields.
func (r *PostgresRepository) CreateStore(ctx context.Context, store *models.Store) (*models.Store, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO stores (name, base_url, scraper_class, sitemap_url, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, store.Name, store.BaseURL, store.ScraperClass, store.SitemapURL, store.IsActive,
	).Scan(&store.ID, &store.CreatedAt, &store.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: create store %q: %w", store.Name, err)
	}
	return store, nil
}

// UpsertProduct relies on the (store_id, external_id) unique constraint.
// created_at is only set on insert.
func (r *PostgresRepository) UpsertProduct(ctx context.Context, p models.ProductUpsert) (*models.Product, error) {
	out := &models.Product{
		StoreID:     p.StoreID,
		ExternalID:  p.ExternalID,
		Name:        p.Name,
		URL:         p.URL,
		Brand:       p.Brand,
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		Description: p.Description,
		IsAvailable: p.IsAvailable,
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO products (store_id, external_id, name, url, brand, category, image_url, description, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (store_id, external_id) DO UPDATE SET
			name         = EXCLUDED.name,
			url          = EXCLUDED.url,
			brand        = EXCLUDED.brand,
			category     = EXCLUDED.category,
			image_url    = EXCLUDED.image_url,
			description  = EXCLUDED.description,
			is_available = EXCLUDED.is_available,
			updated_at   = NOW()
		RETURNING id, created_at, updated_at
	`, p.StoreID, p.ExternalID, p.Name, p.URL, p.Brand, p.Category, p.ImageURL, p.Description, p.IsAvailable,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: upsert product %d/%s: %w", p.StoreID, p.ExternalID, err)
	}
	return out, nil
}

func (r *PostgresRepository) AppendPriceHistory(ctx context.Context, productID int64, price float64, original *float64, currency string) (*models.PriceHistoryPoint, error) {
	point := &models.PriceHistoryPoint{
		ProductID:     productID,
		Price:         price,
		OriginalPrice: original,
		Currency:      currency,
	}

	var orig sql.NullFloat64
	if original != nil {
		orig = sql.NullFloat64{Float64: *original, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO price_history (product_id, price, original_price, currency)
		VALUES ($1, $2, $3, $4)
		RETURNING id, scraped_at
	`, productID, price, orig, currency).Scan(&point.ID, &point.ScrapedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: append price for product %d: %w", productID, err)
	}
	return point, nil
}

func (r *PostgresRepository) DeleteProductsWithoutPriceHistory(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM products p
		WHERE NOT EXISTS (SELECT 1 FROM price_history ph WHERE ph.product_id = p.id)
	`)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete orphaned products: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) PriceHistory(ctx context.Context, productID int64, limit int) ([]*models.PriceHistoryPoint, error) {
	query := `
		SELECT id, product_id, price, original_price, currency, scraped_at
		FROM price_history
		WHERE product_id = $1
		ORDER BY scraped_at DESC, id DESC`
	args := []any{productID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: price history of product %d: %w", productID, err)
	}
	defer rows.Close()

	var points []*models.PriceHistoryPoint
	for rows.Next() {
		p := &models.PriceHistoryPoint{}
		var orig sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.ProductID, &p.Price, &orig, &p.Currency, &p.ScrapedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan price point: %w", err)
		}
		if orig.Valid {
			v := orig.Float64
			p.OriginalPrice = &v
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *PostgresRepository) LatestPrice(ctx context.Context, productID int64) (*models.PriceHistoryPoint, error) {
	points, err := r.PriceHistory(ctx, productID, 1)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}
	return points[0], nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
