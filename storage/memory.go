package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"price-tracker/models"
)

type productKey struct {
	storeID    int64
	externalID string
}

// MemoryRepository keeps everything in process memory. It backs dry runs
// (STORAGE=memory) and tests. It is safe for concurrent use.
type MemoryRepository struct {
	mu       sync.Mutex
	now      func() time.Time
	stores   []*models.Store
	products map[int64]*models.Product
	byKey    map[productKey]int64
	history  map[int64][]*models.PriceHistoryPoint
	nextID   int64
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:      time.Now,
		products: make(map[int64]*models.Product),
		byKey:    make(map[productKey]int64),
		history:  make(map[int64][]*models.PriceHistoryPoint),
	}
}

func (m *MemoryRepository) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryRepository) FindStoreByName(_ context.Context, name string) (*models.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.stores {
		if s.Name == name {
			c := *s
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) ListActiveStores(_ context.Context) ([]*models.Store, error) {
	return m.list(true), nil
}

func (m *MemoryRepository) ListStores(_ context.Context) ([]*models.Store, error) {
	return m.list(false), nil
}

func (m *MemoryRepository) list(activeOnly bool) []*models.Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Store
	for _, s := range m.stores {
		if activeOnly && !s.IsActive {
			continue
		}
		c := *s
		out = append(out, &c)
	}
	return out
}

func (m *MemoryRepository) CreateStore(_ context.Context, store *models.Store) (*models.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.stores {
		if s.Name == store.Name {
			return nil, fmt.Errorf("memory: store %q already exists", store.Name)
		}
	}
	now := m.now()
	store.ID = m.id()
	store.CreatedAt, store.UpdatedAt = now, now
	c := *store
	m.stores = append(m.stores, &c)
	return store, nil
}

func (m *MemoryRepository) UpsertProduct(_ context.Context, p models.ProductUpsert) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	key := productKey{p.StoreID, p.ExternalID}
	existing, ok := m.products[m.byKey[key]]
	if !ok {
		existing = &models.Product{
			ID:         m.id(),
			StoreID:    p.StoreID,
			ExternalID: p.ExternalID,
			CreatedAt:  now,
		}
		m.products[existing.ID] = existing
		m.byKey[key] = existing.ID
	}

	existing.Name = p.Name
	existing.URL = p.URL
	existing.Brand = p.Brand
	existing.Category = p.Category
	existing.ImageURL = p.ImageURL
	existing.Description = p.Description
	existing.IsAvailable = p.IsAvailable
	existing.UpdatedAt = now

	c := *existing
	return &c, nil
}

func (m *MemoryRepository) AppendPriceHistory(_ context.Context, productID int64, price float64, original *float64, currency string) (*models.PriceHistoryPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[productID]; !ok {
		return nil, fmt.Errorf("memory: append price: product %d: %w", productID, ErrNotFound)
	}
	point := &models.PriceHistoryPoint{
		ID:            m.id(),
		ProductID:     productID,
		Price:         price,
		OriginalPrice: original,
		Currency:      currency,
		ScrapedAt:     m.now(),
	}
	m.history[productID] = append(m.history[productID], point)

	c := *point
	return &c, nil
}

func (m *MemoryRepository) DeleteProductsWithoutPriceHistory(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, p := range m.products {
		if len(m.history[id]) > 0 {
			continue
		}
		delete(m.products, id)
		delete(m.byKey, productKey{p.StoreID, p.ExternalID})
		n++
	}
	return n, nil
}

func (m *MemoryRepository) PriceHistory(ctx context.Context, productID int64, limit int) ([]*models.PriceHistoryPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	points := make([]*models.PriceHistoryPoint, 0, len(m.history[productID]))
	for _, p := range m.history[productID] {
		c := *p
		points = append(points, &c)
	}
	sort.SliceStable(points, func(i, j int) bool {
		if !points[i].ScrapedAt.Equal(points[j].ScrapedAt) {
			return points[i].ScrapedAt.After(points[j].ScrapedAt)
		}
		return points[i].ID > points[j].ID
	})
	if limit > 0 && len(points) > limit {
		points = points[:limit]
	}
	return points, nil
}

func (m *MemoryRepository) LatestPrice(ctx context.Context, productID int64) (*models.PriceHistoryPoint, error) {
	points, err := m.PriceHistory(ctx, productID, 1)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}
	return points[0], nil
}

// Products returns a snapshot of the stored products ordered by id.
func (m *MemoryRepository) Products() []*models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Product, 0, len(m.products))
	for _, p := range m.products {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryRepository) Close() error { return nil }
