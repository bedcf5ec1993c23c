// Package listing 实现商品列表的应用状态和列表控制器。
// Catalog 持有从存储加载的商品快照并通知订阅者；Controller 持有筛选条件并计算当前可见页。
package listing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MorseWayne/storefront/internal/catalog"
	"github.com/MorseWayne/storefront/internal/domain"
)

// LoadErrorMessage 加载失败时展示给用户的提示
const LoadErrorMessage = "Failed to load products. Please try again later."

// ErrSuperseded 请求已被更新的加载请求取代，结果被丢弃
var ErrSuperseded = errors.New("load superseded by a newer request")

// ProductSource Catalog 依赖的只读商品查询接口
type ProductSource interface {
	List(ctx context.Context) ([]domain.Product, error)
	ListByCategory(ctx context.Context, category string) ([]domain.Product, error)
	ListFeatured(ctx context.Context) ([]domain.Product, error)
	ListDiscounted(ctx context.Context) ([]domain.Product, error)
	DistinctCategories(ctx context.Context) ([]string, error)
}

// Snapshot 某一时刻的商品数据，发布后不再修改
type Snapshot struct {
	Products   []domain.Product
	Featured   []domain.Product
	Discounted []domain.Product
	Categories []string
	// Category 当前商品列表对应的分类，全量加载时为哨兵值
	Category string
	Loading  bool
	Loaded   bool
	Error    string
	// Version 每次变更递增；订阅者据此丢弃乱序到达的旧快照
	Version uint64
}

// SnapshotSource 控制器订阅的数据源
type SnapshotSource interface {
	Snapshot() Snapshot
	Subscribe(fn func(Snapshot)) (unsubscribe func())
}

// Catalog 商品列表的共享应用状态
type Catalog struct {
	source ProductSource
	logger *zap.Logger

	mu     sync.RWMutex
	snap   Snapshot
	seq    uint64
	cancel context.CancelFunc

	subMu   sync.Mutex
	subs    map[uint64]func(Snapshot)
	nextSub uint64
}

// NewCatalog 创建应用状态，此时尚未加载任何数据
func NewCatalog(source ProductSource, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		source: source,
		logger: logger,
		snap:   Snapshot{Categories: []string{domain.AllCategories}, Category: domain.AllCategories},
		subs:   make(map[uint64]func(Snapshot)),
	}
}

// Snapshot 返回当前快照
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Subscribe 注册快照变更回调，返回取消函数
func (c *Catalog) Subscribe(fn func(Snapshot)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

func (c *Catalog) publish(s Snapshot) {
	c.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// begin 开始一次新的商品加载：取消仍在进行的旧请求，返回新的序号
func (c *Catalog) begin(ctx context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	seq := c.seq
	c.cancel = cancel
	c.snap.Loading = true
	c.snap.Version++
	s := c.snap
	c.mu.Unlock()

	c.publish(s)
	return ctx, seq
}

// finish 仅当 seq 仍是最新请求时应用结果；返回 false 表示结果已被丢弃
func (c *Catalog) finish(seq uint64, apply func(*Snapshot)) bool {
	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return false
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	apply(&c.snap)
	c.snap.Loading = false
	c.snap.Version++
	s := c.snap
	c.mu.Unlock()

	c.publish(s)
	return true
}

// Refresh 并发加载全部商品、推荐商品、折扣商品和分类。
// 任一查询失败则整体失败，保留上一次成功的数据并设置错误信息，不自动重试。
func (c *Catalog) Refresh(ctx context.Context) error {
	ctx, seq := c.begin(ctx)

	var all, featured, discounted []domain.Product
	var categories []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		all, err = c.source.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		featured, err = c.source.ListFeatured(gctx)
		return err
	})
	g.Go(func() (err error) {
		discounted, err = c.source.ListDiscounted(gctx)
		return err
	})
	g.Go(func() (err error) {
		categories, err = c.source.DistinctCategories(gctx)
		return err
	})
	err := g.Wait()

	applied := c.finish(seq, func(s *Snapshot) {
		if err != nil {
			s.Error = LoadErrorMessage
			return
		}
		s.Products = all
		s.Featured = featured
		s.Discounted = discounted
		s.Categories = catalog.WithSentinel(categories)
		s.Category = domain.AllCategories
		s.Loaded = true
		s.Error = ""
	})
	if !applied {
		c.logger.Debug("catalog refresh superseded")
		return ErrSuperseded
	}
	if err != nil {
		c.logger.Error("catalog refresh failed", zap.Error(err))
		return fmt.Errorf("refresh catalog: %w", err)
	}

	c.logger.Info("catalog refreshed",
		zap.Int("products", len(all)),
		zap.Int("featured", len(featured)),
		zap.Int("discounted", len(discounted)),
		zap.Int("categories", len(categories)),
	)
	return nil
}

// LoadCategory 按分类加载商品列表，哨兵值加载全部商品。
// 新请求会取消并丢弃尚未完成的旧请求，保证最后发起的请求生效。
func (c *Catalog) LoadCategory(ctx context.Context, category string) error {
	ctx, seq := c.begin(ctx)

	var (
		products []domain.Product
		err      error
	)
	if category == "" || category == domain.AllCategories {
		category = domain.AllCategories
		products, err = c.source.List(ctx)
	} else {
		products, err = c.source.ListByCategory(ctx, category)
	}

	applied := c.finish(seq, func(s *Snapshot) {
		if err != nil {
			s.Error = LoadErrorMessage
			return
		}
		s.Products = products
		s.Category = category
		s.Loaded = true
		s.Error = ""
	})
	if !applied {
		c.logger.Debug("category load superseded", zap.String("category", category))
		return ErrSuperseded
	}
	if err != nil {
		c.logger.Error("category load failed", zap.String("category", category), zap.Error(err))
		return fmt.Errorf("load category %q: %w", category, err)
	}
	return nil
}

// HotDeals 从当前快照的折扣商品中选出折扣最大的若干个
func (c *Catalog) HotDeals(limit int) []domain.Product {
	return catalog.HotDeals(c.Snapshot().Discounted, limit)
}
