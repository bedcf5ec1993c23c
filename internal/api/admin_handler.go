package api

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/domain"
	"github.com/MorseWayne/storefront/internal/listing"
	"github.com/MorseWayne/storefront/internal/resp"
	"github.com/MorseWayne/storefront/internal/service"
)

// CatalogStatus 目录刷新结果
type CatalogStatus struct {
	Products   int     `json:"products"`
	Featured   int     `json:"featured"`
	Discounted int     `json:"discounted"`
	Categories int     `json:"categories"`
	Error      *string `json:"error"`
}

// RefreshableCatalog 可手动刷新的目录，由 listing.Catalog 实现
type RefreshableCatalog interface {
	Refresh(ctx context.Context) error
	Snapshot() listing.Snapshot
}

// AdminHandler 后台商品维护接口，需要管理员权限
type AdminHandler struct {
	products service.ProductService
	catalog  RefreshableCatalog
	logger   *zap.Logger
}

// NewAdminHandler 创建后台处理器
func NewAdminHandler(products service.ProductService, catalog RefreshableCatalog, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{products: products, catalog: catalog, logger: logger}
}

// CreateProduct 创建商品
// POST /api/v1/admin/products
func (h *AdminHandler) CreateProduct(c *gin.Context) {
	var req domain.CreateProductRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	product, err := h.products.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, "create product", err)
		return
	}
	ok(c, domain.NewProductView(*product))
}

// UpdateProduct 部分更新商品
// PUT /api/v1/admin/products/:id
func (h *AdminHandler) UpdateProduct(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, resp.CodeInvalidParam, "invalid product ID")
		return
	}
	var req domain.UpdateProductRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	product, err := h.products.UpdateProduct(c.Request.Context(), id, &req)
	if err != nil {
		writeError(c, h.logger, "update product", err)
		return
	}
	ok(c, domain.NewProductView(*product))
}

// DeleteProduct 删除商品
// DELETE /api/v1/admin/products/:id
func (h *AdminHandler) DeleteProduct(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, resp.CodeInvalidParam, "invalid product ID")
		return
	}

	if err := h.products.DeleteProduct(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, "delete product", err)
		return
	}
	ok(c, gin.H{"id": id, "deleted": true})
}

// GetProductStats 商品统计
// GET /api/v1/admin/products/stats
func (h *AdminHandler) GetProductStats(c *gin.Context) {
	stats, err := h.products.GetProductStats(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "get product stats", err)
		return
	}
	ok(c, stats)
}

// RefreshCatalog 手动重新加载目录
// POST /api/v1/admin/catalog/refresh
func (h *AdminHandler) RefreshCatalog(c *gin.Context) {
	err := h.catalog.Refresh(c.Request.Context())
	if err != nil && !errors.Is(err, listing.ErrSuperseded) {
		h.logger.Warn("manual catalog refresh failed", zap.String("request_id", requestID(c)), zap.Error(err))
	}

	snap := h.catalog.Snapshot()
	if err != nil && !snap.Loaded {
		fail(c, resp.CodeUnavailable, listing.LoadErrorMessage)
		return
	}
	ok(c, CatalogStatus{
		Products:   len(snap.Products),
		Featured:   len(snap.Featured),
		Discounted: len(snap.Discounted),
		Categories: len(snap.Categories),
		Error:      snapshotError(snap),
	})
}
