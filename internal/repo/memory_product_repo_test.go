package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MorseWayne/storefront/internal/domain"
)

func TestMemoryProductRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryProductRepository(
		domain.Product{ID: "1", Name: "Laptop", Category: "Electronics", Discount: domain.Float64(10), IsFeatured: true},
		domain.Product{ID: "2", Name: "Shirt", Category: "Clothing"},
		domain.Product{ID: "3", Name: "Phone", Category: "Electronics"},
	)

	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "1", all[0].ID)

	electronics, _ := r.ListByCategory(ctx, "Electronics")
	assert.Len(t, electronics, 2)
	featured, _ := r.ListFeatured(ctx)
	assert.Len(t, featured, 1)
	discounted, _ := r.ListDiscounted(ctx)
	assert.Len(t, discounted, 1)
	cats, _ := r.DistinctCategories(ctx)
	assert.Equal(t, []string{"Electronics", "Clothing"}, cats)

	missing, err := r.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryProductRepository_Writes(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryProductRepository()

	p := &domain.Product{Name: "Lamp", Category: "Home"}
	require.NoError(t, r.Create(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	dup := &domain.Product{ID: p.ID, Name: "Lamp", Category: "Home"}
	assert.ErrorIs(t, r.Create(ctx, dup), domain.ErrConflict)

	created := p.CreatedAt
	p.Price = domain.Float64(30)
	time.Sleep(time.Millisecond)
	require.NoError(t, r.Update(ctx, p))
	got, _ := r.GetByID(ctx, p.ID)
	assert.Equal(t, 30.0, got.PriceValue())
	assert.Equal(t, created, got.CreatedAt)

	assert.ErrorIs(t, r.Update(ctx, &domain.Product{ID: "missing"}), domain.ErrProductNotFound)

	require.NoError(t, r.Upsert(ctx, &domain.Product{
		ID: "ext-1", Name: "Desk", Category: "Home",
		Price: domain.Float64(150), Stock: domain.Int(4), Image: "desk.jpg",
	}))
	require.NoError(t, r.Upsert(ctx, &domain.Product{ID: "ext-1", Name: "Desk v2", Category: "Home", Discount: domain.Float64(10)}))
	all, _ := r.List(ctx)
	assert.Len(t, all, 2)
	desk := all[1]
	assert.Equal(t, "Desk v2", desk.Name)
	assert.Equal(t, 150.0, desk.PriceValue())
	assert.Equal(t, 4, desk.StockValue())
	assert.Equal(t, 10.0, desk.DiscountValue())
	assert.Equal(t, "desk.jpg", desk.Image)
	assert.ErrorIs(t, r.Upsert(ctx, &domain.Product{Name: "x"}), domain.ErrValidation)

	require.NoError(t, r.Delete(ctx, p.ID))
	assert.ErrorIs(t, r.Delete(ctx, p.ID), domain.ErrProductNotFound)
	all, _ = r.List(ctx)
	assert.Len(t, all, 1)
}
