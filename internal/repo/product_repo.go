// Package repo 实现商品数据访问层，提供 MySQL、MongoDB、DynamoDB 三种存储和缓存装饰器。
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/MorseWayne/storefront/internal/domain"
)

// ProductRepository 定义商品数据访问接口
type ProductRepository interface {
	// 查询操作
	List(ctx context.Context) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	ListByCategory(ctx context.Context, category string) ([]domain.Product, error)
	ListFeatured(ctx context.Context) ([]domain.Product, error)
	ListDiscounted(ctx context.Context) ([]domain.Product, error)
	DistinctCategories(ctx context.Context) ([]string, error)

	// 写操作
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id string) error
	Upsert(ctx context.Context, product *domain.Product) error

	Ping(ctx context.Context) error
}

// prepareCreate 为新商品分配 ID 和时间戳
func prepareCreate(p *domain.Product, newID func() string) {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = now
	p.UpdatedAt = now
}

// productRepo MySQL 实现
type productRepo struct {
	db *sql.DB
}

// NewProductRepository 创建 MySQL 商品仓储
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepo{db: db}
}

const productColumns = `id, name, description, category, price, discount, stock, rating, review_count, image, is_featured, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Category,
		&p.Price,
		&p.Discount,
		&p.Stock,
		&p.Rating,
		&p.ReviewCount,
		&p.Image,
		&p.IsFeatured,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func (r *productRepo) query(ctx context.Context, where string, args ...any) ([]domain.Product, error) {
	query := "SELECT " + productColumns + " FROM products"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}

// List 获取全部商品，按创建顺序排列
func (r *productRepo) List(ctx context.Context) ([]domain.Product, error) {
	return r.query(ctx, "")
}

// GetByID 根据ID获取商品，不存在时返回 nil, nil
func (r *productRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// ListByCategory 获取指定分类的商品
func (r *productRepo) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return r.query(ctx, "category = ?", category)
}

// ListFeatured 获取推荐商品
func (r *productRepo) ListFeatured(ctx context.Context) ([]domain.Product, error) {
	return r.query(ctx, "is_featured = 1")
}

// ListDiscounted 获取有折扣的商品
func (r *productRepo) ListDiscounted(ctx context.Context) ([]domain.Product, error) {
	return r.query(ctx, "discount > 0")
}

// DistinctCategories 按首次出现顺序返回分类
func (r *productRepo) DistinctCategories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category FROM products
		WHERE category <> ''
		GROUP BY category
		ORDER BY MIN(created_at) ASC, category ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// Create 创建商品，分配 ID 和创建时间
func (r *productRepo) Create(ctx context.Context, product *domain.Product) error {
	prepareCreate(product, uuid.NewString)

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO products ("+productColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		product.ID,
		product.Name,
		product.Description,
		product.Category,
		product.Price,
		product.Discount,
		product.Stock,
		product.Rating,
		product.ReviewCount,
		product.Image,
		product.IsFeatured,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("product %s: %w", product.ID, domain.ErrConflict)
		}
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update 更新商品，created_at 保持不变
func (r *productRepo) Update(ctx context.Context, product *domain.Product) error {
	product.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = ?, description = ?, category = ?, price = ?, discount = ?, stock = ?,
			rating = ?, review_count = ?, image = ?, is_featured = ?, updated_at = ?
		WHERE id = ?
	`,
		product.Name,
		product.Description,
		product.Category,
		product.Price,
		product.Discount,
		product.Stock,
		product.Rating,
		product.ReviewCount,
		product.Image,
		product.IsFeatured,
		product.UpdatedAt,
		product.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return expectAffected(result, product.ID)
}

// Delete 删除商品
func (r *productRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return expectAffected(result, id)
}

// Upsert 按 ID 合并写入：新记录设置创建时间，已有记录只覆盖非空字段
func (r *productRepo) Upsert(ctx context.Context, product *domain.Product) error {
	if product.ID == "" {
		return fmt.Errorf("%w: upsert requires an id", domain.ErrValidation)
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			description = VALUES(description),
			category = VALUES(category),
			price = COALESCE(VALUES(price), price),
			discount = COALESCE(VALUES(discount), discount),
			stock = COALESCE(VALUES(stock), stock),
			rating = COALESCE(VALUES(rating), rating),
			review_count = COALESCE(VALUES(review_count), review_count),
			image = IF(VALUES(image) = '', image, VALUES(image)),
			is_featured = VALUES(is_featured),
			updated_at = VALUES(updated_at)
	`,
		product.ID,
		product.Name,
		product.Description,
		product.Category,
		product.Price,
		product.Discount,
		product.Stock,
		product.Rating,
		product.ReviewCount,
		product.Image,
		product.IsFeatured,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

// Ping 检查数据库连接
func (r *productRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func expectAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("product %s: %w", id, domain.ErrProductNotFound)
	}
	return nil
}

// mysqlDuplicateEntry ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
