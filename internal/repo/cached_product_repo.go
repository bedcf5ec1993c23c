package repo

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/cache"
	"github.com/MorseWayne/storefront/internal/domain"
)

// 缓存键
const (
	keyProductsAll        = "products:list:all"
	keyProductsFeatured   = "products:list:featured"
	keyProductsDiscounted = "products:list:discounted"
	keyCategories         = "products:categories"
)

func productKey(id string) string            { return "product:id:" + id }
func categoryListKey(category string) string { return "products:list:category:" + category }

// CachedProductRepository 带缓存的商品仓储。
// 读操作先查缓存，写操作成功后删除受影响的键；缓存错误只记录日志，不影响结果。
type CachedProductRepository struct {
	repo   ProductRepository
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProductRepository 创建带缓存的商品仓储
func NewCachedProductRepository(repo ProductRepository, c cache.Cache, ttl time.Duration, logger *zap.Logger) ProductRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProductRepository{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// cachedList 读取列表缓存，未命中时加载并回填
func (r *CachedProductRepository) cachedList(ctx context.Context, key string, load func(context.Context) ([]domain.Product, error)) ([]domain.Product, error) {
	var products []domain.Product
	if err := r.cache.Get(ctx, key, &products); err == nil {
		return products, nil
	}

	products, err := load(ctx)
	if err != nil {
		return nil, err
	}
	r.set(ctx, key, products)
	return products, nil
}

func (r *CachedProductRepository) set(ctx context.Context, key string, value any) {
	if err := r.cache.Set(ctx, key, value, r.ttl); err != nil {
		r.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate 删除与这些商品相关的缓存键
func (r *CachedProductRepository) invalidate(ctx context.Context, products ...*domain.Product) {
	keys := []string{keyProductsAll, keyProductsFeatured, keyProductsDiscounted, keyCategories}
	for _, p := range products {
		if p == nil {
			continue
		}
		keys = append(keys, productKey(p.ID), categoryListKey(p.Category))
	}
	if err := r.cache.Del(ctx, keys...); err != nil {
		r.logger.Warn("cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// List 获取全部商品（带缓存）
func (r *CachedProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	return r.cachedList(ctx, keyProductsAll, r.repo.List)
}

// GetByID 根据ID获取商品（带缓存）
func (r *CachedProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	key := productKey(id)

	var product domain.Product
	if err := r.cache.Get(ctx, key, &product); err == nil {
		return &product, nil
	}

	result, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	r.set(ctx, key, result)
	return result, nil
}

// ListByCategory 获取分类商品（带缓存）
func (r *CachedProductRepository) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return r.cachedList(ctx, categoryListKey(category), func(ctx context.Context) ([]domain.Product, error) {
		return r.repo.ListByCategory(ctx, category)
	})
}

// ListFeatured 获取推荐商品（带缓存）
func (r *CachedProductRepository) ListFeatured(ctx context.Context) ([]domain.Product, error) {
	return r.cachedList(ctx, keyProductsFeatured, r.repo.ListFeatured)
}

// ListDiscounted 获取折扣商品（带缓存）
func (r *CachedProductRepository) ListDiscounted(ctx context.Context) ([]domain.Product, error) {
	return r.cachedList(ctx, keyProductsDiscounted, r.repo.ListDiscounted)
}

// DistinctCategories 获取分类列表（带缓存）
func (r *CachedProductRepository) DistinctCategories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := r.cache.Get(ctx, keyCategories, &categories); err == nil {
		return categories, nil
	}

	categories, err := r.repo.DistinctCategories(ctx)
	if err != nil {
		return nil, err
	}
	r.set(ctx, keyCategories, categories)
	return categories, nil
}

// Create 创建商品（清除列表缓存）
func (r *CachedProductRepository) Create(ctx context.Context, product *domain.Product) error {
	if err := r.repo.Create(ctx, product); err != nil {
		return err
	}
	r.invalidate(ctx, product)
	return nil
}

// Update 更新商品；分类可能变化，因此同时清除旧分类的缓存
func (r *CachedProductRepository) Update(ctx context.Context, product *domain.Product) error {
	old, err := r.repo.GetByID(ctx, product.ID)
	if err != nil {
		return err
	}
	if err := r.repo.Update(ctx, product); err != nil {
		return err
	}
	r.invalidate(ctx, product, old)
	return nil
}

// Delete 删除商品（清除相关缓存）
func (r *CachedProductRepository) Delete(ctx context.Context, id string) error {
	old, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	if old == nil {
		old = &domain.Product{ID: id}
	}
	r.invalidate(ctx, old)
	return nil
}

// Upsert 合并写入（清除相关缓存）
func (r *CachedProductRepository) Upsert(ctx context.Context, product *domain.Product) error {
	old, err := r.repo.GetByID(ctx, product.ID)
	if err != nil {
		return err
	}
	if err := r.repo.Upsert(ctx, product); err != nil {
		return err
	}
	r.invalidate(ctx, product, old)
	return nil
}

// Ping 检查底层存储和缓存
func (r *CachedProductRepository) Ping(ctx context.Context) error {
	if err := r.repo.Ping(ctx); err != nil {
		return err
	}
	return r.cache.Ping(ctx)
}
