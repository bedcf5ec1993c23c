package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/MorseWayne/storefront/internal/domain"
)

// ProductItem DynamoDB 中的商品条目
type ProductItem struct {
	ID          string    `dynamodbav:"id"`
	Name        string    `dynamodbav:"name"`
	Description string    `dynamodbav:"description"`
	Category    string    `dynamodbav:"category"`
	Price       *float64  `dynamodbav:"price,omitempty"`
	Discount    *float64  `dynamodbav:"discount,omitempty"`
	Stock       *int      `dynamodbav:"stock,omitempty"`
	Rating      *float64  `dynamodbav:"rating,omitempty"`
	ReviewCount *int      `dynamodbav:"review_count,omitempty"`
	Image       string    `dynamodbav:"image,omitempty"`
	IsFeatured  bool      `dynamodbav:"is_featured"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
	UpdatedAt   time.Time `dynamodbav:"updated_at"`
}

// ToDomain 转换为领域模型
func (i ProductItem) ToDomain() domain.Product {
	return domain.Product{
		ID:          i.ID,
		Name:        i.Name,
		Description: i.Description,
		Category:    i.Category,
		Price:       i.Price,
		Discount:    i.Discount,
		Stock:       i.Stock,
		Rating:      i.Rating,
		ReviewCount: i.ReviewCount,
		Image:       i.Image,
		IsFeatured:  i.IsFeatured,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

func productItemFromDomain(p *domain.Product) ProductItem {
	return ProductItem{
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

type dynamoProductRepo struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoProductRepository 创建 DynamoDB 商品仓储
func NewDynamoProductRepository(client *dynamodb.Client, table string) ProductRepository {
	return &dynamoProductRepo{client: client, table: table}
}

// scan 分页扫描整表，可选过滤条件；结果按创建时间排序
func (r *dynamoProductRepo) scan(ctx context.Context, filter *expression.ConditionBuilder) ([]domain.Product, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(r.table)}
	if filter != nil {
		expr, err := expression.NewBuilder().WithFilter(*filter).Build()
		if err != nil {
			return nil, fmt.Errorf("products.buildExpr: %w", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	products := []domain.Product{}
	paginator := dynamodb.NewScanPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("products.scan: %w", err)
		}
		var items []ProductItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("products.unmarshal: %w", err)
		}
		for _, item := range items {
			products = append(products, item.ToDomain())
		}
	}

	sortByCreation(products)
	return products, nil
}

// sortByCreation 扫描结果无序，按创建时间和 ID 排序以保证目录顺序稳定
func sortByCreation(products []domain.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.Before(products[j].CreatedAt)
		}
		return products[i].ID < products[j].ID
	})
}

func (r *dynamoProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	return r.scan(ctx, nil)
}

func (r *dynamoProductRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key:       r.key(id),
	})
	if err != nil {
		return nil, fmt.Errorf("products.getItem: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item ProductItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("products.unmarshal: %w", err)
	}
	p := item.ToDomain()
	return &p, nil
}

func (r *dynamoProductRepo) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	cond := expression.Name("category").Equal(expression.Value(category))
	return r.scan(ctx, &cond)
}

func (r *dynamoProductRepo) ListFeatured(ctx context.Context) ([]domain.Product, error) {
	cond := expression.Name("is_featured").Equal(expression.Value(true))
	return r.scan(ctx, &cond)
}

func (r *dynamoProductRepo) ListDiscounted(ctx context.Context) ([]domain.Product, error) {
	cond := expression.Name("discount").GreaterThan(expression.Value(0))
	return r.scan(ctx, &cond)
}

func (r *dynamoProductRepo) DistinctCategories(ctx context.Context) ([]string, error) {
	products, err := r.scan(ctx, nil)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	categories := []string{}
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	return categories, nil
}

func (r *dynamoProductRepo) Create(ctx context.Context, product *domain.Product) error {
	prepareCreate(product, uuid.NewString)

	av, err := attributevalue.MarshalMap(productItemFromDomain(product))
	if err != nil {
		return fmt.Errorf("products.marshal: %w", err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("id"))).
		Build()
	if err != nil {
		return fmt.Errorf("products.buildExpr: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.table),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("product %s: %w", product.ID, domain.ErrConflict)
		}
		return fmt.Errorf("products.putItem: %w", err)
	}
	return nil
}

// updateExpression 构造更新表达式；mergeOnly 时缺失字段保持不变，否则移除
func updateExpression(p *domain.Product, mergeOnly bool) expression.UpdateBuilder {
	update := expression.Set(expression.Name("name"), expression.Value(p.Name)).
		Set(expression.Name("description"), expression.Value(p.Description)).
		Set(expression.Name("category"), expression.Value(p.Category)).
		Set(expression.Name("is_featured"), expression.Value(p.IsFeatured)).
		Set(expression.Name("updated_at"), expression.Value(p.UpdatedAt))

	optional := []struct {
		name  string
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
			update = update.Set(expression.Name(f.name), expression.Value(f.value))
		case !mergeOnly:
			update = update.Remove(expression.Name(f.name))
		}
	}
	return update
}

func (r *dynamoProductRepo) Update(ctx context.Context, product *domain.Product) error {
	product.UpdatedAt = time.Now().UTC()

	expr, err := expression.NewBuilder().
		WithUpdate(updateExpression(product, false)).
		WithCondition(expression.AttributeExists(expression.Name("id"))).
		Build()
	if err != nil {
		return fmt.Errorf("products.buildExpr: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       r.key(product.ID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("product %s: %w", product.ID, domain.ErrProductNotFound)
		}
		return fmt.Errorf("products.updateItem: %w", err)
	}
	return nil
}

func (r *dynamoProductRepo) Delete(ctx context.Context, id string) error {
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("id"))).
		Build()
	if err != nil {
		return fmt.Errorf("products.buildExpr: %w", err)
	}

	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.table),
		Key:                      r.key(id),
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("product %s: %w", id, domain.ErrProductNotFound)
		}
		return fmt.Errorf("products.deleteItem: %w", err)
	}
	return nil
}

// Upsert 合并写入，created_at 仅在条目不存在时设置
func (r *dynamoProductRepo) Upsert(ctx context.Context, product *domain.Product) error {
	if product.ID == "" {
		return fmt.Errorf("%w: upsert requires an id", domain.ErrValidation)
	}
	now := time.Now().UTC()
	createdAt := product.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	product.UpdatedAt = now

	update := updateExpression(product, true).Set(
		expression.Name("created_at"),
		expression.IfNotExists(expression.Name("created_at"), expression.Value(createdAt)),
	)
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("products.buildExpr: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       r.key(product.ID),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("products.upsert: %w", err)
	}
	return nil
}

func (r *dynamoProductRepo) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.table)})
	return err
}

func (r *dynamoProductRepo) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// EnsureProductTable 表不存在时创建商品表（按请求计费）
func EnsureProductTable(ctx context.Context, client *dynamodb.Client, table string) (created bool, err error) {
	_, err = client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return false, nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return false, fmt.Errorf("describe table %s: %w", table, err)
	}

	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return false, fmt.Errorf("create table %s: %w", table, err)
	}
	return true, nil
}
