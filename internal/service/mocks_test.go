package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MorseWayne/storefront/internal/domain"
	"github.com/MorseWayne/storefront/internal/mq"
)

// mockProductRepository 内存商品仓储
type mockProductRepository struct {
	mu       sync.Mutex
	products map[string]*domain.Product
	order    []string
	nextID   int
	failList bool
}

func newMockProductRepository(seed ...domain.Product) *mockProductRepository {
	m := &mockProductRepository{products: make(map[string]*domain.Product), nextID: 1}
	for i := range seed {
		p := seed[i]
		m.products[p.ID] = &p
		m.order = append(m.order, p.ID)
	}
	return m
}

func (m *mockProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList {
		return nil, errors.New("store unavailable")
	}
	out := make([]domain.Product, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.products[id])
	}
	return out, nil
}

func (m *mockProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepository) filter(keep func(*domain.Product) bool) []domain.Product {
	all, _ := m.List(context.Background())
	out := []domain.Product{}
	for i := range all {
		if keep(&all[i]) {
			out = append(out, all[i])
		}
	}
	return out
}

func (m *mockProductRepository) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return m.filter(func(p *domain.Product) bool { return p.Category == category }), nil
}

func (m *mockProductRepository) ListFeatured(ctx context.Context) ([]domain.Product, error) {
	return m.filter(func(p *domain.Product) bool { return p.IsFeatured }), nil
}

func (m *mockProductRepository) ListDiscounted(ctx context.Context) ([]domain.Product, error) {
	return m.filter(func(p *domain.Product) bool { return p.HasDiscount() }), nil
}

func (m *mockProductRepository) DistinctCategories(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range m.filter(func(*domain.Product) bool { return true }) {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out, nil
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if product.ID == "" {
		product.ID = fmt.Sprintf("p-%d", m.nextID)
		m.nextID++
	}
	if _, exists := m.products[product.ID]; exists {
		return domain.ErrConflict
	}
	now := time.Now().UTC()
	product.CreatedAt, product.UpdatedAt = now, now
	cp := *product
	m.products[product.ID] = &cp
	m.order = append(m.order, product.ID)
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.products[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	cp := *product
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	m.products[product.ID] = &cp
	return nil
}

func (m *mockProductRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(m.products, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockProductRepository) Upsert(ctx context.Context, product *domain.Product) error {
	err := m.Update(ctx, product)
	if errors.Is(err, domain.ErrProductNotFound) {
		return m.Create(ctx, product)
	}
	return err
}

func (m *mockProductRepository) Ping(ctx context.Context) error { return nil }

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []mq.ProductChangedEvent
	err    error
}

func (r *recordingPublisher) PublishProductChanged(ctx context.Context, event mq.ProductChangedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

// countingRefresher 记录刷新次数
type countingRefresher struct {
	calls int
	err   error
}

func (c *countingRefresher) Refresh(ctx context.Context) error {
	c.calls++
	return c.err
}
