package api

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/catalog"
	"github.com/MorseWayne/storefront/internal/domain"
	"github.com/MorseWayne/storefront/internal/listing"
	"github.com/MorseWayne/storefront/internal/resp"
)

// ProductReader 商品详情查询，由 service.ProductService 实现
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// HomeData 首页数据
type HomeData struct {
	Featured   []domain.ProductView `json:"featured"`
	HotDeals   []domain.ProductView `json:"hot_deals"`
	Categories []string             `json:"categories"`
	Error      *string              `json:"error"`
}

// ProductList 商品列表响应
type ProductList struct {
	Products []domain.ProductView `json:"products"`
	Total    int                  `json:"total"`
	Error    *string              `json:"error"`
}

// ProductHandler 公开的商品查询接口，列表数据来自共享目录快照
type ProductHandler struct {
	catalog        listing.SnapshotSource
	products       ProductReader
	categorySource listing.ProductSource
	hotDealsLimit  int
	logger         *zap.Logger
}

// ProductHandlerOption 商品处理器选项
type ProductHandlerOption func(*ProductHandler)

// WithCategorySource 按分类查询时由存储端过滤。
// 每个请求使用独立的 listing.Catalog 加载，不影响共享快照。
func WithCategorySource(src listing.ProductSource) ProductHandlerOption {
	return func(h *ProductHandler) { h.categorySource = src }
}

// NewProductHandler 创建商品处理器
func NewProductHandler(src listing.SnapshotSource, products ProductReader, hotDealsLimit int, logger *zap.Logger, opts ...ProductHandlerOption) *ProductHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hotDealsLimit <= 0 {
		hotDealsLimit = catalog.DefaultHotDealsLimit
	}
	h := &ProductHandler{catalog: src, products: products, hotDealsLimit: hotDealsLimit, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// loadedSnapshot 返回已加载的快照；从未成功加载时写入 503
func (h *ProductHandler) loadedSnapshot(c *gin.Context) (listing.Snapshot, bool) {
	snap := h.catalog.Snapshot()
	if !snap.Loaded {
		msg := "catalog is loading"
		if snap.Error != "" {
			msg = snap.Error
		}
		fail(c, resp.CodeUnavailable, msg)
		return snap, false
	}
	return snap, true
}

func snapshotError(s listing.Snapshot) *string {
	if s.Error == "" {
		return nil
	}
	msg := s.Error
	return &msg
}

func productList(s listing.Snapshot, products []domain.Product) ProductList {
	return ProductList{Products: domain.NewProductViews(products), Total: len(products), Error: snapshotError(s)}
}

func inCategory(products []domain.Product, category string) []domain.Product {
	return catalog.ApplyFilters(products, domain.FilterSpec{
		Categories: []string{category},
		PriceRange: domain.UnboundedPriceRange,
		SortKey:    domain.SortFeatured,
	})
}

// ListProducts 商品列表，可按分类过滤
// GET /api/v1/products?category=
func (h *ProductHandler) ListProducts(c *gin.Context) {
	category := strings.TrimSpace(c.Query("category"))
	if category != "" && category != domain.AllCategories && h.categorySource != nil {
		h.listCategory(c, category)
		return
	}

	snap, loaded := h.loadedSnapshot(c)
	if !loaded {
		return
	}
	products := snap.Products
	if category != "" && category != domain.AllCategories {
		products = inCategory(products, category)
	}
	ok(c, productList(snap, products))
}

// listCategory 从存储加载单个分类；失败时退回共享快照并带上错误提示
func (h *ProductHandler) listCategory(c *gin.Context, category string) {
	loader := listing.NewCatalog(h.categorySource, h.logger)
	err := loader.LoadCategory(c.Request.Context(), category)
	if err == nil {
		snap := loader.Snapshot()
		ok(c, productList(snap, snap.Products))
		return
	}

	h.logger.Warn("category load failed, serving cached snapshot",
		zap.String("request_id", requestID(c)),
		zap.String("category", category),
		zap.Error(err))
	snap, loaded := h.loadedSnapshot(c)
	if !loaded {
		return
	}
	list := productList(snap, inCategory(snap.Products, category))
	msg := listing.LoadErrorMessage
	list.Error = &msg
	ok(c, list)
}

// GetProduct 商品详情，附带折后价和占位图
// GET /api/v1/products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, resp.CodeInvalidParam, "invalid product ID")
		return
	}

	product, err := h.products.GetProduct(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "get product", err)
		return
	}
	ok(c, domain.NewProductView(*product))
}

// ListFeatured 推荐商品
// GET /api/v1/products/featured
func (h *ProductHandler) ListFeatured(c *gin.Context) {
	if snap, loaded := h.loadedSnapshot(c); loaded {
		ok(c, productList(snap, snap.Featured))
	}
}

// ListDiscounted 折扣商品
// GET /api/v1/products/discounted
func (h *ProductHandler) ListDiscounted(c *gin.Context) {
	if snap, loaded := h.loadedSnapshot(c); loaded {
		ok(c, productList(snap, snap.Discounted))
	}
}

// HotDeals 折扣最大的若干商品
// GET /api/v1/products/hot-deals?limit=
func (h *ProductHandler) HotDeals(c *gin.Context) {
	limit, set, err := queryInt(c, "limit")
	if err != nil || (set && limit <= 0) {
		fail(c, resp.CodeInvalidParam, "invalid limit")
		return
	}
	if !set {
		limit = h.hotDealsLimit
	}

	if snap, loaded := h.loadedSnapshot(c); loaded {
		ok(c, productList(snap, catalog.HotDeals(snap.Discounted, limit)))
	}
}

// ListCategories 分类列表，首项为"全部分类"
// GET /api/v1/categories
func (h *ProductHandler) ListCategories(c *gin.Context) {
	if snap, loaded := h.loadedSnapshot(c); loaded {
		ok(c, snap.Categories)
	}
}

// Home 首页：推荐商品、热门折扣和分类
// GET /api/v1/home
func (h *ProductHandler) Home(c *gin.Context) {
	snap, loaded := h.loadedSnapshot(c)
	if !loaded {
		return
	}
	ok(c, HomeData{
		Featured:   domain.NewProductViews(snap.Featured),
		HotDeals:   domain.NewProductViews(catalog.HotDeals(snap.Discounted, h.hotDealsLimit)),
		Categories: snap.Categories,
		Error:      snapshotError(snap),
	})
}
