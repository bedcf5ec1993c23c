package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MorseWayne/storefront/internal/domain"
)

// memoryProductRepo 进程内商品仓储，用于本地演示与测试，按插入顺序返回
type memoryProductRepo struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	order    []string
}

// NewMemoryProductRepository 创建内存商品仓储，seed 中缺少 ID 的商品会生成 UUID
func NewMemoryProductRepository(seed ...domain.Product) ProductRepository {
	r := &memoryProductRepo{products: make(map[string]domain.Product, len(seed))}
	for i := range seed {
		p := seed[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if _, exists := r.products[p.ID]; !exists {
			r.order = append(r.order, p.ID)
		}
		r.products[p.ID] = p
	}
	return r
}

func (r *memoryProductRepo) where(keep func(*domain.Product) bool) []domain.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Product, 0, len(r.order))
	for _, id := range r.order {
		p := r.products[id]
		if keep(&p) {
			out = append(out, p)
		}
	}
	return out
}

func (r *memoryProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	return r.where(func(*domain.Product) bool { return true }), ctx.Err()
}

func (r *memoryProductRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memoryProductRepo) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return r.where(func(p *domain.Product) bool { return p.Category == category }), ctx.Err()
}

func (r *memoryProductRepo) ListFeatured(ctx context.Context) ([]domain.Product, error) {
	return r.where(func(p *domain.Product) bool { return p.IsFeatured }), ctx.Err()
}

func (r *memoryProductRepo) ListDiscounted(ctx context.Context) ([]domain.Product, error) {
	return r.where(func(p *domain.Product) bool { return p.HasDiscount() }), ctx.Err()
}

func (r *memoryProductRepo) DistinctCategories(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range r.where(func(*domain.Product) bool { return true }) {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out, ctx.Err()
}

func (r *memoryProductRepo) Create(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prepareCreate(product, uuid.NewString)
	if _, exists := r.products[product.ID]; exists {
		return fmt.Errorf("product %s: %w", product.ID, domain.ErrConflict)
	}
	r.products[product.ID] = *product
	r.order = append(r.order, product.ID)
	return nil
}

func (r *memoryProductRepo) Update(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.products[product.ID]
	if !ok {
		return fmt.Errorf("product %s: %w", product.ID, domain.ErrProductNotFound)
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	r.products[product.ID] = *product
	return nil
}

func (r *memoryProductRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return fmt.Errorf("product %s: %w", id, domain.ErrProductNotFound)
	}
	delete(r.products, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *memoryProductRepo) Upsert(ctx context.Context, product *domain.Product) error {
	if product.ID == "" {
		return fmt.Errorf("%w: upsert requires an id", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	merged := *product
	if existing, ok := r.products[product.ID]; ok {
		mergeMissing(&merged, &existing)
	} else {
		if merged.CreatedAt.IsZero() {
			merged.CreatedAt = now
		}
		r.order = append(r.order, product.ID)
	}
	merged.UpdatedAt = now
	r.products[product.ID] = merged
	return nil
}

// mergeMissing 缺失的数值字段和空图片沿用已有记录，与 MySQL/Mongo 的 upsert 一致
func mergeMissing(p, existing *domain.Product) {
	p.CreatedAt = existing.CreatedAt
	if p.Price == nil {
		p.Price = existing.Price
	}
	if p.Discount == nil {
		p.Discount = existing.Discount
	}
	if p.Stock == nil {
		p.Stock = existing.Stock
	}
	if p.Rating == nil {
		p.Rating = existing.Rating
	}
	if p.ReviewCount == nil {
		p.ReviewCount = existing.ReviewCount
	}
	if p.Image == "" {
		p.Image = existing.Image
	}
}

func (r *memoryProductRepo) Ping(ctx context.Context) error { return nil }
