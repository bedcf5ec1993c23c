package listing

import (
	"context"
	"errors"
	"sync"

	"github.com/MorseWayne/storefront/internal/domain"
)

var errStoreDown = errors.New("store down")

// fakeSource 内存商品源，可为某个分类设置阻塞，用于模拟慢请求
type fakeSource struct {
	mu       sync.Mutex
	products []domain.Product
	fail     bool
	gates    map[string]chan struct{}
	calls    map[string]int
}

func newFakeSource(products []domain.Product) *fakeSource {
	return &fakeSource{
		products: products,
		gates:    make(map[string]chan struct{}),
		calls:    make(map[string]int),
	}
}

func (f *fakeSource) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeSource) gate(category string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[category] = ch
	return ch
}

func (f *fakeSource) enter(ctx context.Context, key string) error {
	f.mu.Lock()
	f.calls[key]++
	gate := f.gates[key]
	fail := f.fail
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return errStoreDown
	}
	return nil
}

func (f *fakeSource) filter(keep func(domain.Product) bool) []domain.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Product
	for _, p := range f.products {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeSource) List(ctx context.Context) ([]domain.Product, error) {
	if err := f.enter(ctx, domain.AllCategories); err != nil {
		return nil, err
	}
	return f.filter(func(domain.Product) bool { return true }), nil
}

func (f *fakeSource) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	if err := f.enter(ctx, category); err != nil {
		return nil, err
	}
	return f.filter(func(p domain.Product) bool { return p.Category == category }), nil
}

func (f *fakeSource) ListFeatured(ctx context.Context) ([]domain.Product, error) {
	if err := f.enter(ctx, "featured"); err != nil {
		return nil, err
	}
	return f.filter(func(p domain.Product) bool { return p.IsFeatured }), nil
}

func (f *fakeSource) ListDiscounted(ctx context.Context) ([]domain.Product, error) {
	if err := f.enter(ctx, "discounted"); err != nil {
		return nil, err
	}
	return f.filter(func(p domain.Product) bool { return p.HasDiscount() }), nil
}

func (f *fakeSource) DistinctCategories(ctx context.Context) ([]string, error) {
	if err := f.enter(ctx, "categories"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, p := range f.products {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out, nil
}
