// Package service 实现业务逻辑层：后台商品维护、管理员认证和令牌签发。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/domain"
	"github.com/MorseWayne/storefront/internal/mq"
	"github.com/MorseWayne/storefront/internal/repo"
)

// ProductService 定义后台商品业务接口
type ProductService interface {
	CreateProduct(ctx context.Context, req *domain.CreateProductRequest) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, req *domain.UpdateProductRequest) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	GetProductStats(ctx context.Context) (*domain.ProductStats, error)
}

// EventPublisher 发布商品变更事件，由 mq.Producer 实现
type EventPublisher interface {
	PublishProductChanged(ctx context.Context, event mq.ProductChangedEvent) error
}

// CatalogRefresher 写操作成功后重新加载本地目录，由 listing.Catalog 实现
type CatalogRefresher interface {
	Refresh(ctx context.Context) error
}

// ProductServiceOption 商品服务可选项
type ProductServiceOption func(*productService)

// WithEventPublisher 写操作成功后发布事件，source 为本实例标识
func WithEventPublisher(pub EventPublisher, source string) ProductServiceOption {
	return func(s *productService) {
		s.publisher = pub
		s.source = source
	}
}

// WithCatalogRefresher 写操作成功后刷新本地目录
func WithCatalogRefresher(r CatalogRefresher) ProductServiceOption {
	return func(s *productService) { s.refresher = r }
}

type productService struct {
	productRepo repo.ProductRepository
	validate    *validator.Validate
	logger      *zap.Logger

	publisher EventPublisher
	source    string
	refresher CatalogRefresher
}

// NewProductService 创建商品服务实例
func NewProductService(productRepo repo.ProductRepository, logger *zap.Logger, opts ...ProductServiceOption) ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &productService{
		productRepo: productRepo,
		validate:    validator.New(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateProduct 创建商品
func (s *productService) CreateProduct(ctx context.Context, req *domain.CreateProductRequest) (*domain.Product, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	product := &domain.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Category:    strings.TrimSpace(req.Category),
		Price:       domain.Float64(req.Price),
		Discount:    domain.Float64(req.Discount),
		Stock:       domain.Int(req.Stock),
		Rating:      req.Rating,
		ReviewCount: domain.Int(0),
		Image:       req.Image,
		IsFeatured:  req.IsFeatured,
	}
	if err := product.Validate(); err != nil {
		return nil, err
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("product created", zap.String("product_id", product.ID), zap.String("category", product.Category))
	s.afterWrite(ctx, mq.ActionCreated, product.ID)
	return product, nil
}

// GetProduct 获取商品详情
func (s *productService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}
	return product, nil
}

// UpdateProduct 部分更新商品，nil 字段保持不变，创建时间不会改变
func (s *productService) UpdateProduct(ctx context.Context, id string, req *domain.UpdateProductRequest) (*domain.Product, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Category != nil {
		product.Category = strings.TrimSpace(*req.Category)
	}
	if req.Price != nil {
		product.Price = domain.Float64(*req.Price)
	}
	if req.Discount != nil {
		product.Discount = domain.Float64(*req.Discount)
	}
	if req.Stock != nil {
		product.Stock = domain.Int(*req.Stock)
	}
	if req.Rating != nil {
		product.Rating = domain.Float64(*req.Rating)
	}
	if req.Image != nil {
		product.Image = *req.Image
	}
	if req.IsFeatured != nil {
		product.IsFeatured = *req.IsFeatured
	}
	if err := product.Validate(); err != nil {
		return nil, err
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.logger.Info("product updated", zap.String("product_id", id))
	s.afterWrite(ctx, mq.ActionUpdated, id)
	return product, nil
}

// DeleteProduct 删除商品
func (s *productService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.logger.Info("product deleted", zap.String("product_id", id))
	s.afterWrite(ctx, mq.ActionDeleted, id)
	return nil
}

// GetProductStats 统计全部商品
func (s *productService) GetProductStats(ctx context.Context) (*domain.ProductStats, error) {
	products, err := s.productRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	stats := &domain.ProductStats{TotalProducts: len(products)}
	total := decimal.Zero
	for i := range products {
		p := &products[i]
		if p.IsFeatured {
			stats.FeaturedProducts++
		}
		if p.HasDiscount() {
			stats.DiscountedProducts++
		}
		if !p.InStock() {
			stats.OutOfStockProducts++
		}
		total = total.Add(decimal.NewFromFloat(p.PriceValue()))
	}
	if len(products) > 0 {
		stats.AveragePrice = total.Div(decimal.NewFromInt(int64(len(products)))).Round(2).InexactFloat64()
	}
	return stats, nil
}

// afterWrite 刷新本地目录并通知其他实例；失败只记录日志，写操作本身已经成功
func (s *productService) afterWrite(ctx context.Context, action mq.ProductAction, id string) {
	if s.refresher != nil {
		if err := s.refresher.Refresh(ctx); err != nil {
			s.logger.Warn("catalog refresh after write failed", zap.String("product_id", id), zap.Error(err))
		}
	}
	if s.publisher != nil {
		event := mq.NewProductChangedEvent(action, id, s.source)
		if err := s.publisher.PublishProductChanged(ctx, event); err != nil {
			s.logger.Warn("failed to publish product event", zap.String("product_id", id), zap.Error(err))
		}
	}
}

func (s *productService) validateStruct(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed on '%s'", e.Field(), e.Tag()))
			}
			return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}
