package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/MorseWayne/storefront/internal/domain"
)

// ColProducts 商品集合名
const ColProducts = "products"

// ProductDoc 商品文档。数值字段可能缺失，缺失时解码为 nil
type ProductDoc struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	Category    string    `bson:"category"`
	Price       *float64  `bson:"price,omitempty"`
	Discount    *float64  `bson:"discount,omitempty"`
	Stock       *int      `bson:"stock,omitempty"`
	Rating      *float64  `bson:"rating,omitempty"`
	ReviewCount *int      `bson:"review_count,omitempty"`
	Image       string    `bson:"image,omitempty"`
	IsFeatured  bool      `bson:"is_featured"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func fromProductDoc(d ProductDoc) domain.Product {
	return domain.Product{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		Price:       d.Price,
		Discount:    d.Discount,
		Stock:       d.Stock,
		Rating:      d.Rating,
		ReviewCount: d.ReviewCount,
		Image:       d.Image,
		IsFeatured:  d.IsFeatured,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func toProductDoc(p *domain.Product) ProductDoc {
	return ProductDoc{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		Discount:    p.Discount,
		Stock:       p.Stock,
		Rating:      p.Rating,
		ReviewCount: p.ReviewCount,
		Image:       p.Image,
		IsFeatured:  p.IsFeatured,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// mutableFields 更新时写入的字段；created_at 不在其中
func mutableFields(p *domain.Product, mergeOnly bool) (set bson.M, unset bson.M) {
	set = bson.M{
		"name":        p.Name,
		"description": p.Description,
		"category":    p.Category,
		"is_featured": p.IsFeatured,
		"updated_at":  p.UpdatedAt,
	}
	unset = bson.M{}
	optional := []struct {
		key   string
		isNil bool
		value any
	}{
		{"price", p.Price == nil, p.Price},
		{"discount", p.Discount == nil, p.Discount},
		{"stock", p.Stock == nil, p.Stock},
		{"rating", p.Rating == nil, p.Rating},
		{"review_count", p.ReviewCount == nil, p.ReviewCount},
		{"image", p.Image == "", p.Image},
	}
	for _, f := range optional {
		switch {
		case !f.isNil:
			set[f.key] = f.value
		case !mergeOnly:
			unset[f.key] = ""
		}
	}
	return set, unset
}

type mongoProductRepo struct {
	coll      *mongo.Collection
	opTimeout time.Duration
}

// NewMongoProductRepository 创建 MongoDB 商品仓储，每个操作使用独立超时
func NewMongoProductRepository(db *mongo.Database, opTimeout time.Duration) ProductRepository {
	return &mongoProductRepo{
		coll:      db.Collection(ColProducts),
		opTimeout: opTimeout,
	}
}

func (r *mongoProductRepo) find(ctx context.Context, filter bson.M) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("products.find: %w", err)
	}
	defer cur.Close(ctx)

	products := []domain.Product{}
	for cur.Next(ctx) {
		var doc ProductDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("products.decode: %w", err)
		}
		products = append(products, fromProductDoc(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("products.cursor: %w", err)
	}
	return products, nil
}

func (r *mongoProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	return r.find(ctx, bson.M{})
}

func (r *mongoProductRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	var doc ProductDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("products.findOne: %w", err)
	}
	p := fromProductDoc(doc)
	return &p, nil
}

func (r *mongoProductRepo) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return r.find(ctx, bson.M{"category": category})
}

func (r *mongoProductRepo) ListFeatured(ctx context.Context) ([]domain.Product, error) {
	return r.find(ctx, bson.M{"is_featured": true})
}

func (r *mongoProductRepo) ListDiscounted(ctx context.Context) ([]domain.Product, error) {
	return r.find(ctx, bson.M{"discount": bson.M{"$gt": 0}})
}

// DistinctCategories 按最早创建时间排序的分类列表
func (r *mongoProductRepo) DistinctCategories(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"category": bson.M{"$nin": bson.A{"", nil}}}}},
		{{Key: "$group", Value: bson.M{"_id": "$category", "first": bson.M{"$min": "$created_at"}}}},
		{{Key: "$sort", Value: bson.D{{Key: "first", Value: 1}, {Key: "_id", Value: 1}}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("products.categories: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Category string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("products.categories.decode: %w", err)
	}
	categories := make([]string, 0, len(rows))
	for _, row := range rows {
		categories = append(categories, row.Category)
	}
	return categories, nil
}

func (r *mongoProductRepo) Create(ctx context.Context, product *domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	prepareCreate(product, func() string { return primitive.NewObjectID().Hex() })
	if _, err := r.coll.InsertOne(ctx, toProductDoc(product)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("product %s: %w", product.ID, domain.ErrConflict)
		}
		return fmt.Errorf("products.insert: %w", err)
	}
	return nil
}

func (r *mongoProductRepo) Update(ctx context.Context, product *domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	product.UpdatedAt = time.Now().UTC()
	set, unset := mutableFields(product, false)
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": product.ID}, update)
	if err != nil {
		return fmt.Errorf("products.update: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("product %s: %w", product.ID, domain.ErrProductNotFound)
	}
	return nil
}

func (r *mongoProductRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("products.delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("product %s: %w", id, domain.ErrProductNotFound)
	}
	return nil
}

// Upsert 合并写入：缺失字段不覆盖已有值，created_at 仅在插入时设置
func (r *mongoProductRepo) Upsert(ctx context.Context, product *domain.Product) error {
	if product.ID == "" {
		return fmt.Errorf("%w: upsert requires an id", domain.ErrValidation)
	}
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	now := time.Now().UTC()
	createdAt := product.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	product.UpdatedAt = now

	set, _ := mutableFields(product, true)
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": product.ID},
		bson.M{"$set": set, "$setOnInsert": bson.M{"created_at": createdAt}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("products.upsert: %w", err)
	}
	return nil
}

func (r *mongoProductRepo) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, nil)
}

// EnsureProductIndexes 创建商品集合的查询索引
func EnsureProductIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(ColProducts)
	models := []mongo.IndexModel{
		newIndex("category", "products_category"),
		newIndex("is_featured", "products_is_featured"),
		newIndex("discount", "products_discount"),
		newIndex("created_at", "products_created_at"),
	}
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("ensure products indexes: %w", err)
	}
	return nil
}

func newIndex(field, name string) mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetName(name),
	}
}
