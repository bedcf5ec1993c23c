package repo

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MorseWayne/storefront/internal/domain"
)

func TestPrepareCreate(t *testing.T) {
	p := &domain.Product{Name: "x"}
	prepareCreate(p, func() string { return "generated" })
	assert.Equal(t, "generated", p.ID)
	assert.False(t, p.CreatedAt.IsZero())
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)

	keep := &domain.Product{ID: "fixed"}
	prepareCreate(keep, func() string { return "generated" })
	assert.Equal(t, "fixed", keep.ID)
}

func TestMutableFields(t *testing.T) {
	p := &domain.Product{
		ID:        "1",
		Name:      "RAM",
		Price:     domain.Float64(100),
		Stock:     domain.Int(2),
		CreatedAt: time.Now(),
	}

	set, unset := mutableFields(p, false)
	assert.NotContains(t, set, "created_at")
	assert.NotContains(t, set, "_id")
	assert.Contains(t, set, "price")
	assert.Contains(t, set, "stock")
	assert.Contains(t, unset, "discount")
	assert.Contains(t, unset, "image")

	set, unset = mutableFields(p, true)
	assert.Contains(t, set, "price")
	assert.NotContains(t, set, "discount")
	assert.Empty(t, unset)
}

func TestUpdateExpression(t *testing.T) {
	p := &domain.Product{ID: "1", Name: "SSD", Discount: domain.Float64(5)}

	expr, err := expression.NewBuilder().WithUpdate(updateExpression(p, false)).Build()
	require.NoError(t, err)
	update := *expr.Update()
	assert.Contains(t, update, "SET")
	assert.Contains(t, update, "REMOVE")

	names := map[string]bool{}
	for _, v := range expr.Names() {
		names[v] = true
	}
	assert.True(t, names["discount"])
	assert.True(t, names["price"])
	assert.False(t, names["created_at"])

	expr, err = expression.NewBuilder().WithUpdate(updateExpression(p, true)).Build()
	require.NoError(t, err)
	assert.NotContains(t, *expr.Update(), "REMOVE")
}

func TestSortByCreation(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	products := []domain.Product{
		{ID: "b", CreatedAt: base.Add(time.Minute)},
		{ID: "c", CreatedAt: base},
		{ID: "a", CreatedAt: base},
	}
	sortByCreation(products)
	assert.Equal(t, "a", products[0].ID)
	assert.Equal(t, "c", products[1].ID)
	assert.Equal(t, "b", products[2].ID)
}

func TestDocumentConversionKeepsMissingFields(t *testing.T) {
	p := domain.Product{ID: "1", Name: "bare"}

	doc := toProductDoc(&p)
	assert.Nil(t, doc.Price)
	back := fromProductDoc(doc)
	assert.Nil(t, back.Price)
	assert.Zero(t, back.PriceValue())

	item := productItemFromDomain(&p)
	assert.Nil(t, item.Stock)
	d := item.ToDomain()
	assert.False(t, d.InStock())
}
