package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"price-tracker/models"
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PostgresRepository{db: db}, mock
}

func TestPostgresMigrate(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS stores")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresUpsertProduct(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(24 * time.Hour)

	in := models.ProductUpsert{
		StoreID: 3, ExternalID: "4126595", Name: "Lenovo IdeaPad", URL: "https://www.power.fi/p-4126595/",
		Brand: "Lenovo", Category: "Tietotekniikka", IsAvailable: true,
	}
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (store_id, external_id) DO UPDATE")).
		WithArgs(in.StoreID, in.ExternalID, in.Name, in.URL, in.Brand, in.Category, "", "", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(11, created, updated))

	p, err := repo.UpsertProduct(context.Background(), in)
	if err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	if p.ID != 11 || !p.CreatedAt.Equal(created) || !p.UpdatedAt.Equal(updated) {
		t.Errorf("unexpected product: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresAppendPriceHistory(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Now()

	orig := 99.9
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO price_history")).
		WithArgs(int64(11), 79.9, 99.9, "EUR").
		WillReturnRows(sqlmock.NewRows([]string{"id", "scraped_at"}).AddRow(1, at))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO price_history")).
		WithArgs(int64(11), 79.9, nil, "EUR").
		WillReturnRows(sqlmock.NewRows([]string{"id", "scraped_at"}).AddRow(2, at))

	ctx := context.Background()
	a, err := repo.AppendPriceHistory(ctx, 11, 79.9, &orig, "EUR")
	if err != nil {
		t.Fatalf("AppendPriceHistory: %v", err)
	}
	b, err := repo.AppendPriceHistory(ctx, 11, 79.9, nil, "EUR")
	if err != nil {
		t.Fatalf("AppendPriceHistory: %v", err)
	}
	if a.ID == b.ID {
		t.Error("appends must produce distinct points")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresPriceHistory(t *testing.T) {
	repo, mock := newMockRepo(t)
	newer := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	cols := []string{"id", "product_id", "price", "original_price", "currency", "scraped_at"}
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY scraped_at DESC, id DESC LIMIT $2")).
		WithArgs(int64(5), 1).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(9, 5, 80.0, 100.0, "EUR", newer))
	mock.ExpectQuery(regexp.QuoteMeta("FROM price_history")).
		WithArgs(int64(6), 1).
		WillReturnRows(sqlmock.NewRows(cols))

	latest, err := repo.LatestPrice(context.Background(), 5)
	if err != nil {
		t.Fatalf("LatestPrice: %v", err)
	}
	if latest.ID != 9 || latest.OriginalPrice == nil || *latest.OriginalPrice != 100 {
		t.Errorf("unexpected point: %+v", latest)
	}
	if d, ok := latest.DiscountPercentage(); !ok || d != 20 {
		t.Errorf("discount: got %v/%v", d, ok)
	}

	if _, err := repo.LatestPrice(context.Background(), 6); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestPrice without history: got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresDeleteProductsWithoutPriceHistory(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM products p")).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteProductsWithoutPriceHistory(context.Background())
	if err != nil {
		t.Fatalf("DeleteProductsWithoutPriceHistory: %v", err)
	}
	if n != 4 {
		t.Errorf("deleted: got %d, want 4", n)
	}
}

func TestPostgresStores(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	cols := []string{"id", "name", "base_url", "scraper_class", "sitemap_url", "is_active", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM stores WHERE name = $1")).
		WithArgs("Power").
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO stores")).
		WithArgs("Power", "https://www.power.fi", "PowerScraper", "", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(3, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM stores WHERE is_active")).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(3, "Power", "https://www.power.fi", "PowerScraper", "", true, now, now))

	ctx := context.Background()
	if _, err := repo.FindStoreByName(ctx, "Power"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindStoreByName: got %v, want ErrNotFound", err)
	}
	s, err := repo.CreateStore(ctx, &models.Store{Name: "Power", BaseURL: "https://www.power.fi", ScraperClass: "PowerScraper", IsActive: true})
	if err != nil || s.ID != 3 {
		t.Fatalf("CreateStore: %+v, %v", s, err)
	}
	stores, err := repo.ListActiveStores(ctx)
	if err != nil || len(stores) != 1 || stores[0].ScraperClass != "PowerScraper" {
		t.Errorf("ListActiveStores: %+v, %v", stores, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
