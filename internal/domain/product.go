// Package domain 定义商品相关的业务领域模型和核心业务规则。
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PlaceholderImageURL 商品没有图片时展示的占位图，不写入存储
const PlaceholderImageURL = "https://via.placeholder.com/300x200?text=No+Image"

// Product 表示商品领域模型。
// 文档存储中数值字段可能缺失，因此使用指针表示"未设置"，读取时统一按 0 处理。
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required,max=255"`
	Description string    `json:"description"`
	Category    string    `json:"category" validate:"required,max=100"`
	Price       *float64  `json:"price,omitempty"`
	Discount    *float64  `json:"discount,omitempty"`
	Stock       *int      `json:"stock,omitempty"`
	Rating      *float64  `json:"rating,omitempty"`
	ReviewCount *int      `json:"reviewCount,omitempty"`
	Image       string    `json:"image,omitempty"`
	IsFeatured  bool      `json:"isFeatured"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PriceValue 基础价格，缺失时为 0
func (p *Product) PriceValue() float64 {
	if p.Price == nil {
		return 0
	}
	return *p.Price
}

// DiscountValue 折扣百分比，缺失时为 0
func (p *Product) DiscountValue() float64 {
	if p.Discount == nil {
		return 0
	}
	return *p.Discount
}

// StockValue 库存，缺失时为 0
func (p *Product) StockValue() int {
	if p.Stock == nil {
		return 0
	}
	return *p.Stock
}

// RatingValue 平均评分，缺失时为 0
func (p *Product) RatingValue() float64 {
	if p.Rating == nil {
		return 0
	}
	return *p.Rating
}

// ReviewCountValue 评论数，缺失时为 0
func (p *Product) ReviewCountValue() int {
	if p.ReviewCount == nil {
		return 0
	}
	return *p.ReviewCount
}

// HasDiscount 是否有折扣
func (p *Product) HasDiscount() bool {
	return p.DiscountValue() > 0
}

// InStock 是否可以下单（库存大于 0）
func (p *Product) InStock() bool {
	return p.StockValue() > 0
}

// FinalPrice 折后价：price - price*discount/100，保留两位小数。
// 折扣被限制在 [0, 100] 内，保证折后价不高于原价且不为负。
func (p *Product) FinalPrice() float64 {
	price := decimal.NewFromFloat(p.PriceValue())
	discount := p.DiscountValue()
	if discount <= 0 {
		return price.Round(2).InexactFloat64()
	}
	if discount > 100 {
		discount = 100
	}
	off := price.Mul(decimal.NewFromFloat(discount)).Div(decimal.NewFromInt(100))
	final := price.Sub(off).Round(2)
	if final.GreaterThan(price) {
		final = price
	}
	return final.InexactFloat64()
}

// ImageOrPlaceholder 返回用于展示的图片地址
func (p *Product) ImageOrPlaceholder() string {
	if strings.TrimSpace(p.Image) == "" {
		return PlaceholderImageURL
	}
	return p.Image
}

// Validate 校验存储边界上的数值范围
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if p.Price != nil && *p.Price < 0 {
		return fmt.Errorf("%w: price cannot be negative", ErrValidation)
	}
	if p.Discount != nil && (*p.Discount < 0 || *p.Discount > 100) {
		return fmt.Errorf("%w: discount must be within [0, 100]", ErrValidation)
	}
	if p.Stock != nil && *p.Stock < 0 {
		return fmt.Errorf("%w: stock cannot be negative", ErrValidation)
	}
	if p.Rating != nil && (*p.Rating < 0 || *p.Rating > 5) {
		return fmt.Errorf("%w: rating must be within [0, 5]", ErrValidation)
	}
	if p.ReviewCount != nil && *p.ReviewCount < 0 {
		return fmt.Errorf("%w: review count cannot be negative", ErrValidation)
	}
	return nil
}

// Float64 返回指向 v 的指针，便于构造可选字段
func Float64(v float64) *float64 { return &v }

// Int 返回指向 v 的指针
func Int(v int) *int { return &v }

// ProductView 对外展示的商品，附带派生字段
type ProductView struct {
	Product
	FinalPrice   float64 `json:"finalPrice"`
	DisplayImage string  `json:"displayImage"`
	Available    bool    `json:"available"`
}

// NewProductView 构建展示模型
func NewProductView(p Product) ProductView {
	return ProductView{
		Product:      p,
		FinalPrice:   p.FinalPrice(),
		DisplayImage: p.ImageOrPlaceholder(),
		Available:    p.InStock(),
	}
}

// NewProductViews 批量构建展示模型
func NewProductViews(products []Product) []ProductView {
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, NewProductView(p))
	}
	return views
}

// CreateProductRequest 表示创建商品请求
type CreateProductRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=255"`
	Description string   `json:"description"`
	Category    string   `json:"category" validate:"required,max=100"`
	Price       float64  `json:"price" validate:"gte=0"`
	Discount    float64  `json:"discount" validate:"gte=0,lte=100"`
	Stock       int      `json:"stock" validate:"gte=0"`
	Rating      *float64 `json:"rating" validate:"omitempty,gte=0,lte=5"`
	Image       string   `json:"image" validate:"omitempty,url"`
	IsFeatured  bool     `json:"isFeatured"`
}

// UpdateProductRequest 表示更新商品请求，nil 字段保持不变
type UpdateProductRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string  `json:"description"`
	Category    *string  `json:"category" validate:"omitempty,max=100"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Discount    *float64 `json:"discount" validate:"omitempty,gte=0,lte=100"`
	Stock       *int     `json:"stock" validate:"omitempty,gte=0"`
	Rating      *float64 `json:"rating" validate:"omitempty,gte=0,lte=5"`
	Image       *string  `json:"image" validate:"omitempty,url"`
	IsFeatured  *bool    `json:"isFeatured"`
}

// ProductStats 管理后台的商品统计
type ProductStats struct {
	TotalProducts      int     `json:"total_products"`
	FeaturedProducts   int     `json:"featured_products"`
	DiscountedProducts int     `json:"discounted_products"`
	OutOfStockProducts int     `json:"out_of_stock_products"`
	AveragePrice       float64 `json:"average_price"`
}
