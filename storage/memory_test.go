package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"price-tracker/models"
)

func TestMemoryUpsertKeepsNaturalKeyUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	first, err := repo.UpsertProduct(ctx, models.ProductUpsert{StoreID: 1, ExternalID: "42", Name: "Old name", IsAvailable: true})
	if err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	second, err := repo.UpsertProduct(ctx, models.ProductUpsert{StoreID: 1, ExternalID: "42", Name: "New name"})
	if err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	other, _ := repo.UpsertProduct(ctx, models.ProductUpsert{StoreID: 2, ExternalID: "42", Name: "Other store"})

	if first.ID != second.ID {
		t.Errorf("re-upsert created a new row: %d vs %d", first.ID, second.ID)
	}
	if other.ID == first.ID {
		t.Error("same external id in another store must be a different product")
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("created_at must not change on update")
	}

	products := repo.Products()
	if len(products) != 2 {
		t.Fatalf("products: got %d, want 2", len(products))
	}
	if products[0].Name != "New name" || products[0].IsAvailable {
		t.Errorf("mutable fields not overwritten: %+v", products[0])
	}
}

func TestMemoryAppendPriceAlwaysInserts(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	p, _ := repo.UpsertProduct(ctx, models.ProductUpsert{StoreID: 1, ExternalID: "42", Name: "x"})
	orig := 100.0
	a, err := repo.AppendPriceHistory(ctx, p.ID, 80, &orig, models.DefaultCurrency)
	if err != nil {
		t.Fatalf("AppendPriceHistory: %v", err)
	}
	b, err := repo.AppendPriceHistory(ctx, p.ID, 75, nil, models.DefaultCurrency)
	if err != nil {
		t.Fatalf("AppendPriceHistory: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("two appends must create two points")
	}

	history, _ := repo.PriceHistory(ctx, p.ID, 0)
	if len(history) != 2 || history[0].ID != b.ID {
		t.Fatalf("history should be newest first: %+v", history)
	}

	latest, err := repo.LatestPrice(ctx, p.ID)
	if err != nil {
		t.Fatalf("LatestPrice: %v", err)
	}
	if latest.Price != 75 {
		t.Errorf("latest price: got %v, want 75", latest.Price)
	}
	if d, ok := history[1].DiscountPercentage(); !ok || d != 20 {
		t.Errorf("discount of older point: got %v/%v, want 20", d, ok)
	}

	if _, err := repo.AppendPriceHistory(ctx, 999, 1, nil, models.DefaultCurrency); !errors.Is(err, ErrNotFound) {
		t.Errorf("append to unknown product: got %v", err)
	}
}

func TestMemoryDeleteProductsWithoutPriceHistory(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	priced, _ := repo.UpsertProduct(ctx, models.ProductUpsert{StoreID: 1, ExternalID: "1", Name: "priced"})
	repo.AppendPriceHistory(ctx, priced.ID, 10, nil, models.DefaultCurrency)
	repo.UpsertProduct(ctx, models.ProductUpsert{StoreID: 1, ExternalID: "2", Name: "orphan"})

	n, err := repo.DeleteProductsWithoutPriceHistory(ctx)
	if err != nil {
		t.Fatalf("DeleteProductsWithoutPriceHistory: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted: got %d, want 1", n)
	}
	if got := repo.Products(); len(got) != 1 || got[0].ExternalID != "1" {
		t.Errorf("remaining products: %+v", got)
	}

	// the orphan's key is free again
	again, _ := repo.UpsertProduct(ctx, models.ProductUpsert{StoreID: 1, ExternalID: "2", Name: "back"})
	if again.ID == priced.ID {
		t.Error("re-created product reused an existing id")
	}
}

func TestMemoryStores(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	if _, err := repo.FindStoreByName(ctx, "Power"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindStoreByName on empty repo: got %v", err)
	}

	repo.CreateStore(ctx, &models.Store{Name: "Power", IsActive: true})
	repo.CreateStore(ctx, &models.Store{Name: "Gigantti", IsActive: false})
	if _, err := repo.CreateStore(ctx, &models.Store{Name: "Power"}); err == nil {
		t.Error("duplicate store name should fail")
	}

	active, _ := repo.ListActiveStores(ctx)
	if len(active) != 1 || active[0].Name != "Power" {
		t.Errorf("active stores: %+v", active)
	}
	all, _ := repo.ListStores(ctx)
	if len(all) != 2 {
		t.Errorf("all stores: got %d, want 2", len(all))
	}

	s, err := repo.FindStoreByName(ctx, "Gigantti")
	if err != nil || s.ID == 0 {
		t.Errorf("FindStoreByName: %+v, %v", s, err)
	}
}

func TestMemoryLatestPricePropagatesErrors(t *testing.T) {
	repo := NewMemoryRepository()
	p, _ := repo.UpsertProduct(context.Background(), models.ProductUpsert{StoreID: 1, ExternalID: "1", Name: "x"})

	if _, err := repo.LatestPrice(context.Background(), p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("no history: got %v, want ErrNotFound", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := repo.LatestPrice(ctx, p.ID); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: got %v, want context.Canceled", err)
	}
}
