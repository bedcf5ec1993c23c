package importer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MorseWayne/storefront/internal/domain"
	"github.com/MorseWayne/storefront/internal/mq"
	"github.com/MorseWayne/storefront/internal/repo"
)

const sampleCatalog = `{
  "allProducts": [
    {"id": 1, "name": "Laptop", "category": "Electronics", "price": "999.99", "rating": "4.5", "stock": "12", "discount": 10},
    {"id": "2", "name": "Shirt", "category": "Clothing", "price": 25, "stock": 0, "reviews": 7},
    {"id": 3, "name": "Broken", "category": "Misc", "price": "n/a", "stock": "12.0"}
  ],
  "featuredProducts": [{"id": 1}, {"id": "3"}]
}`

func TestDecode(t *testing.T) {
	src, err := Decode(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, src.Products, 3)
	assert.Equal(t, []string{"1", "3"}, src.FeaturedIDs)

	laptop := src.Products[0]
	assert.Equal(t, "1", laptop.ID)
	assert.Equal(t, 999.99, laptop.PriceValue())
	assert.Equal(t, 4.5, laptop.RatingValue())
	assert.Equal(t, 12, laptop.StockValue())
	assert.Equal(t, 10.0, laptop.DiscountValue())

	shirt := src.Products[1]
	assert.Equal(t, 7, shirt.ReviewCountValue())
	require.NotNil(t, shirt.Stock)
	assert.Equal(t, 0, *shirt.Stock)
	assert.Nil(t, shirt.Discount)

	broken := src.Products[2]
	assert.Nil(t, broken.Price, "unparseable numbers stay missing")
	assert.Equal(t, 12, broken.StockValue())
}

func TestDecode_TopLevelArray(t *testing.T) {
	src, err := Decode(strings.NewReader(`[{"id": 10, "name": "Lamp", "category": "Home"}]`))
	require.NoError(t, err)
	require.Len(t, src.Products, 1)
	assert.Equal(t, "10", src.Products[0].ID)
	assert.Empty(t, src.FeaturedIDs)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"allProducts": [{"name": "no id"}]}`))
	assert.ErrorContains(t, err, "missing id")

	_, err = Decode(strings.NewReader(`not json`))
	assert.Error(t, err)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []mq.ProductChangedEvent
}

func (r *recordingPublisher) PublishProductChanged(ctx context.Context, e mq.ProductChangedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type failingUpserter struct{}

func (failingUpserter) Upsert(ctx context.Context, p *domain.Product) error {
	return errors.New("store unavailable")
}

func TestImporter_Run(t *testing.T) {
	ctx := context.Background()
	src, err := Decode(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	store := repo.NewMemoryProductRepository(domain.Product{ID: "2", Name: "Old Shirt", Category: "Clothing", IsFeatured: true})
	pub := &recordingPublisher{}
	res, err := New(store, nil, WithPublisher(pub, "importer"), WithConcurrency(2)).Run(ctx, src, "2")
	require.NoError(t, err)
	assert.Equal(t, Result{Imported: 3, Featured: 3, Failed: 0}, res)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	byID := map[string]domain.Product{}
	for _, p := range all {
		byID[p.ID] = p
	}
	assert.Equal(t, "Shirt", byID["2"].Name)
	assert.True(t, byID["1"].IsFeatured)
	assert.True(t, byID["3"].IsFeatured)

	require.Len(t, pub.events, 1)
	assert.Equal(t, mq.ActionImported, pub.events[0].Action)
	assert.Equal(t, "importer", pub.events[0].Source)
}

func TestImporter_FeaturedIsMembership(t *testing.T) {
	ctx := context.Background()
	src := &Source{Products: []domain.Product{{ID: "a", Name: "A", Category: "X", IsFeatured: true}}}
	store := repo.NewMemoryProductRepository()

	res, err := New(store, nil).Run(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Featured)
	got, _ := store.GetByID(ctx, "a")
	assert.False(t, got.IsFeatured)
}

func TestImporter_AllFailed(t *testing.T) {
	src := &Source{Products: []domain.Product{{ID: "a"}, {ID: "b"}}}
	pub := &recordingPublisher{}
	res, err := New(failingUpserter{}, nil, WithPublisher(pub, "importer")).Run(context.Background(), src)
	assert.Error(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Empty(t, pub.events)
}
