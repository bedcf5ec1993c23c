// Package importer 将 JSON 商品目录批量写入商品存储。
// 数值字段允许以字符串形式出现，推荐标记在导入时按 ID 列表确定。
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MorseWayne/storefront/internal/domain"
	"github.com/MorseWayne/storefront/internal/mq"
)

// DefaultConcurrency 默认并发写入数
const DefaultConcurrency = 8

// Upserter 按 ID 合并写入商品，由 repo.ProductRepository 实现
type Upserter interface {
	Upsert(ctx context.Context, product *domain.Product) error
}

// EventPublisher 导入完成后通知其他实例刷新目录
type EventPublisher interface {
	PublishProductChanged(ctx context.Context, event mq.ProductChangedEvent) error
}

// Source 解析后的导入数据
type Source struct {
	Products    []domain.Product
	FeaturedIDs []string
}

// catalogFile 导入文件格式；也接受顶层即为商品数组的文件
type catalogFile struct {
	AllProducts      []map[string]any `json:"allProducts"`
	FeaturedProducts []map[string]any `json:"featuredProducts"`
}

// Decode 解析导入文件
func Decode(r io.Reader) (*Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var file catalogFile
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &file.AllProducts)
	} else {
		err = json.Unmarshal(trimmed, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	src := &Source{Products: make([]domain.Product, 0, len(file.AllProducts))}
	for i, raw := range file.AllProducts {
		p, err := toProduct(raw)
		if err != nil {
			return nil, fmt.Errorf("product #%d: %w", i, err)
		}
		src.Products = append(src.Products, p)
	}
	for _, raw := range file.FeaturedProducts {
		if id := recordID(raw); id != "" {
			src.FeaturedIDs = append(src.FeaturedIDs, id)
		}
	}
	return src, nil
}

func recordID(raw map[string]any) string {
	id, err := cast.ToStringE(raw["id"])
	if err != nil {
		return ""
	}
	return strings.TrimSpace(id)
}

// toProduct 将松散类型的记录转换为商品；无法转换的数值字段保持缺失
func toProduct(raw map[string]any) (domain.Product, error) {
	p := domain.Product{
		ID:          recordID(raw),
		Name:        cast.ToString(raw["name"]),
		Description: cast.ToString(raw["description"]),
		Category:    cast.ToString(raw["category"]),
		Image:       cast.ToString(raw["image"]),
	}
	if p.ID == "" {
		return p, errors.New("missing id")
	}

	p.Price = floatField(raw, "price")
	p.Discount = floatField(raw, "discount")
	p.Rating = floatField(raw, "rating")
	p.Stock = intField(raw, "stock")
	p.ReviewCount = intField(raw, "reviewCount")
	if p.ReviewCount == nil {
		p.ReviewCount = intField(raw, "reviews")
	}
	if v, ok := raw["createdAt"]; ok {
		if t, err := cast.ToTimeE(v); err == nil {
			p.CreatedAt = t.UTC()
		}
	}
	return p, nil
}

func floatField(raw map[string]any, key string) *float64 {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil
	}
	return &f
}

func intField(raw map[string]any, key string) *int {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		// "12.0" 之类的值
		f, ferr := cast.ToFloat64E(v)
		if ferr != nil {
			return nil
		}
		n = int(f)
	}
	return &n
}

// Result 导入结果
type Result struct {
	Imported int
	Featured int
	Failed   int
}

// Importer 商品导入器
type Importer struct {
	store       Upserter
	publisher   EventPublisher
	source      string
	concurrency int
	logger      *zap.Logger
}

// Option 导入器选项
type Option func(*Importer)

// WithPublisher 导入完成后发布 imported 事件
func WithPublisher(pub EventPublisher, source string) Option {
	return func(i *Importer) {
		i.publisher = pub
		i.source = source
	}
}

// WithConcurrency 设置并发写入数
func WithConcurrency(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// New 创建导入器
func New(store Upserter, logger *zap.Logger, opts ...Option) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Importer{store: store, concurrency: DefaultConcurrency, logger: logger}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run 写入所有商品：IsFeatured 由 ID 是否在推荐列表中决定。
// 单个商品写入失败只计数，不中断其余写入；全部失败时返回错误。
func (i *Importer) Run(ctx context.Context, src *Source, extraFeatured ...string) (Result, error) {
	featured := make(map[string]struct{}, len(src.FeaturedIDs)+len(extraFeatured))
	for _, id := range append(append([]string{}, src.FeaturedIDs...), extraFeatured...) {
		featured[strings.TrimSpace(id)] = struct{}{}
	}

	var imported, failed, featuredCount atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	start := time.Now()
	for idx := range src.Products {
		p := src.Products[idx]
		_, p.IsFeatured = featured[p.ID]
		g.Go(func() error {
			if err := i.store.Upsert(gctx, &p); err != nil {
				failed.Add(1)
				i.logger.Warn("failed to import product", zap.String("product_id", p.ID), zap.Error(err))
				return nil
			}
			imported.Add(1)
			if p.IsFeatured {
				featuredCount.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("import products: %w", err)
	}

	res := Result{Imported: int(imported.Load()), Featured: int(featuredCount.Load()), Failed: int(failed.Load())}
	i.logger.Info("import finished",
		zap.Int("imported", res.Imported),
		zap.Int("featured", res.Featured),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(start)))

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if res.Imported == 0 && res.Failed > 0 {
		return res, fmt.Errorf("all %d products failed to import", res.Failed)
	}

	if i.publisher != nil && res.Imported > 0 {
		event := mq.NewProductChangedEvent(mq.ActionImported, "", i.source)
		if err := i.publisher.PublishProductChanged(ctx, event); err != nil {
			i.logger.Warn("failed to publish import event", zap.Error(err))
		}
	}
	return res, nil
}
