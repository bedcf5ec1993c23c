package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/MorseWayne/storefront/internal/domain"
)

// memProductRepo 内存商品仓储，记录每个方法的调用次数
type memProductRepo struct {
	mu       sync.Mutex
	products []domain.Product
	calls    map[string]int
	nextID   int
}

func newMemProductRepo(products ...domain.Product) *memProductRepo {
	return &memProductRepo{products: products, calls: make(map[string]int)}
}

func (m *memProductRepo) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *memProductRepo) where(name string, keep func(domain.Product) bool) []domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
	out := []domain.Product{}
	for _, p := range m.products {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (m *memProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	return m.where("List", func(domain.Product) bool { return true }), nil
}

func (m *memProductRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	found := m.where("GetByID", func(p domain.Product) bool { return p.ID == id })
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (m *memProductRepo) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return m.where("ListByCategory", func(p domain.Product) bool { return p.Category == category }), nil
}

func (m *memProductRepo) ListFeatured(ctx context.Context) ([]domain.Product, error) {
	return m.where("ListFeatured", func(p domain.Product) bool { return p.IsFeatured }), nil
}

func (m *memProductRepo) ListDiscounted(ctx context.Context) ([]domain.Product, error) {
	return m.where("ListDiscounted", func(p domain.Product) bool { return p.HasDiscount() }), nil
}

func (m *memProductRepo) DistinctCategories(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range m.where("DistinctCategories", func(domain.Product) bool { return true }) {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out, nil
}

func (m *memProductRepo) Create(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Create"]++
	m.nextID++
	prepareCreate(product, func() string { return fmt.Sprintf("mem-%d", m.nextID) })
	m.products = append(m.products, *product)
	return nil
}

func (m *memProductRepo) Update(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Update"]++
	for i := range m.products {
		if m.products[i].ID == product.ID {
			product.CreatedAt = m.products[i].CreatedAt
			m.products[i] = *product
			return nil
		}
	}
	return domain.ErrProductNotFound
}

func (m *memProductRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Delete"]++
	for i := range m.products {
		if m.products[i].ID == id {
			m.products = append(m.products[:i], m.products[i+1:]...)
			return nil
		}
	}
	return domain.ErrProductNotFound
}

func (m *memProductRepo) Upsert(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Upsert"]++
	for i := range m.products {
		if m.products[i].ID == product.ID {
			m.products[i] = *product
			return nil
		}
	}
	m.products = append(m.products, *product)
	return nil
}

func (m *memProductRepo) Ping(ctx context.Context) error { return nil }
