package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/domain"
	"github.com/MorseWayne/storefront/internal/listing"
	"github.com/MorseWayne/storefront/internal/resp"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// fixtureProducts 30 个商品：价格 1000..30000，分类轮换，奇数下标有货，前 4 个推荐
func fixtureProducts() []domain.Product {
	categories := []string{"RAM", "SSD", "GPU"}
	products := make([]domain.Product, 0, 30)
	for i := 0; i < 30; i++ {
		products = append(products, domain.Product{
			ID:         fmt.Sprint(i + 1),
			Name:       fmt.Sprintf("Item %d", i),
			Category:   categories[i%3],
			Price:      domain.Float64(float64(1000 * (i + 1))),
			Discount:   domain.Float64(float64(5 * (i % 5))),
			Stock:      domain.Int(i % 2),
			Rating:     domain.Float64(float64(3 + i%3)),
			IsFeatured: i < 4,
		})
	}
	return products
}

func loadedCatalog(t *testing.T, products []domain.Product) (*listing.Catalog, *stubSource) {
	t.Helper()
	src := &stubSource{products: products}
	cat := listing.NewCatalog(src, zap.NewNop())
	require.NoError(t, cat.Refresh(context.Background()))
	return cat, src
}

func newTestEngine(cat *listing.Catalog, products *mockProductService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	lg := zap.NewNop()
	ph := NewProductHandler(cat, products, 8, lg)
	sh := NewShopHandler(cat, 12, true, lg)
	ah := NewAdminHandler(products, cat, lg)
	auth := NewAuthHandler(mockAuthService{}, lg)

	e := gin.New()
	e.GET("/shop", sh.Shop)
	e.GET("/products", ph.ListProducts)
	e.GET("/products/featured", ph.ListFeatured)
	e.GET("/products/discounted", ph.ListDiscounted)
	e.GET("/products/hot-deals", ph.HotDeals)
	e.GET("/products/:id", ph.GetProduct)
	e.GET("/categories", ph.ListCategories)
	e.GET("/home", ph.Home)
	e.POST("/admin/products", ah.CreateProduct)
	e.PUT("/admin/products/:id", ah.UpdateProduct)
	e.DELETE("/admin/products/:id", ah.DeleteProduct)
	e.GET("/admin/products/stats", ah.GetProductStats)
	e.POST("/admin/catalog/refresh", ah.RefreshCatalog)
	e.POST("/auth/login", auth.Login)
	e.POST("/auth/refresh", auth.RefreshToken)
	return e
}

func do(t *testing.T, h http.Handler, method, target string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func decodeView(t *testing.T, env envelope) listing.ListingView {
	t.Helper()
	var view listing.ListingView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view
}

func TestShopHandler_Listing(t *testing.T) {
	cat, _ := loadedCatalog(t, fixtureProducts())
	e := newTestEngine(cat, newMockProductService())

	tests := []struct {
		name      string
		query     string
		wantTotal int
		wantPage  int
		wantPages int
		check     func(t *testing.T, view listing.ListingView)
	}{
		{
			name: "defaults", query: "", wantTotal: 30, wantPage: 1, wantPages: 3,
			check: func(t *testing.T, view listing.ListingView) {
				assert.Len(t, view.Items, 12)
				assert.Equal(t, domain.AllCategories, view.Categories[0])
				assert.Equal(t, domain.PriceRange{Min: 1000, Max: 30000}, view.PriceBounds)
				assert.Empty(t, view.ActiveFilters)
			},
		},
		{
			name: "search sorted by price", query: "?q=item+1&sort=price-low", wantTotal: 11, wantPage: 1, wantPages: 1,
			check: func(t *testing.T, view listing.ListingView) {
				assert.Equal(t, "2", view.Items[0].ID)
				assert.Equal(t, "item 1", view.Spec.SearchTerm)
			},
		},
		{name: "two categories", query: "?category=RAM&category=SSD", wantTotal: 20, wantPage: 1, wantPages: 2},
		{name: "page is clamped", query: "?page=99", wantTotal: 30, wantPage: 3, wantPages: 3},
		{name: "navigation discount", query: "?discounted=true", wantTotal: 24, wantPage: 1, wantPages: 2},
		{name: "max price only", query: "?max_price=5000", wantTotal: 5, wantPage: 1, wantPages: 1},
		{name: "in stock with rating", query: "?in_stock=true&min_rating=5", wantTotal: 5, wantPage: 1, wantPages: 1},
		{
			name: "final price is derived", query: "?q=item+4&sort=price-high", wantTotal: 1, wantPage: 1, wantPages: 1,
			check: func(t *testing.T, view listing.ListingView) {
				assert.InDelta(t, 4000, view.Items[0].FinalPrice, 1e-9)
				assert.Equal(t, domain.PlaceholderImageURL, view.Items[0].DisplayImage)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, e, http.MethodGet, "/shop"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			view := decodeView(t, env)
			assert.Equal(t, tt.wantTotal, view.TotalItems)
			assert.Equal(t, tt.wantPage, view.CurrentPage)
			assert.Equal(t, tt.wantPages, view.TotalPages)
			assert.Nil(t, view.Error)
			if tt.check != nil {
				tt.check(t, view)
			}
		})
	}
}

func TestShopHandler_InvalidQuery(t *testing.T) {
	cat, _ := loadedCatalog(t, fixtureProducts())
	e := newTestEngine(cat, newMockProductService())

	for _, q := range []string{"?min_price=abc", "?discounted=maybe", "?page=two", "?in_stock=x"} {
		rec, env := do(t, e, http.MethodGet, "/shop"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, resp.CodeInvalidParam, env.Code, q)
	}
}

func TestShopHandler_CatalogStates(t *testing.T) {
	src := &stubSource{products: fixtureProducts(), fail: true}
	cat := listing.NewCatalog(src, zap.NewNop())
	e := newTestEngine(cat, newMockProductService())

	rec, env := do(t, e, http.MethodGet, "/shop", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, resp.CodeUnavailable, env.Code)

	require.Error(t, cat.Refresh(context.Background()))
	rec, env = do(t, e, http.MethodGet, "/shop", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, listing.LoadErrorMessage, env.Message)

	// 加载成功后再次失败，继续返回上一次的数据并附带错误信息
	src.mu.Lock()
	src.fail = false
	src.mu.Unlock()
	require.NoError(t, cat.Refresh(context.Background()))
	src.mu.Lock()
	src.fail = true
	src.mu.Unlock()
	require.Error(t, cat.Refresh(context.Background()))

	rec, env = do(t, e, http.MethodGet, "/shop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeView(t, env)
	assert.Equal(t, 30, view.TotalItems)
	require.NotNil(t, view.Error)
	assert.Equal(t, listing.LoadErrorMessage, *view.Error)
}

func TestProductHandler_Reads(t *testing.T) {
	products := fixtureProducts()
	cat, _ := loadedCatalog(t, products)
	e := newTestEngine(cat, newMockProductService(products...))

	decodeList := func(t *testing.T, env envelope) ProductList {
		var list ProductList
		require.NoError(t, json.Unmarshal(env.Data, &list))
		return list
	}

	t.Run("all products", func(t *testing.T) {
		_, env := do(t, e, http.MethodGet, "/products", nil)
		assert.Equal(t, 30, decodeList(t, env).Total)
	})

	t.Run("by category", func(t *testing.T) {
		_, env := do(t, e, http.MethodGet, "/products?category=GPU", nil)
		list := decodeList(t, env)
		assert.Equal(t, 10, list.Total)
		for _, p := range list.Products {
			assert.Equal(t, "GPU", p.Category)
		}
	})

	t.Run("featured and discounted", func(t *testing.T) {
		_, env := do(t, e, http.MethodGet, "/products/featured", nil)
		assert.Equal(t, 4, decodeList(t, env).Total)
		_, env = do(t, e, http.MethodGet, "/products/discounted", nil)
		assert.Equal(t, 24, decodeList(t, env).Total)
	})

	t.Run("hot deals", func(t *testing.T) {
		_, env := do(t, e, http.MethodGet, "/products/hot-deals?limit=3", nil)
		list := decodeList(t, env)
		require.Len(t, list.Products, 3)
		for _, p := range list.Products {
			assert.Equal(t, 20.0, p.DiscountValue())
		}

		rec, _ := do(t, e, http.MethodGet, "/products/hot-deals?limit=0", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("categories", func(t *testing.T) {
		_, env := do(t, e, http.MethodGet, "/categories", nil)
		var categories []string
		require.NoError(t, json.Unmarshal(env.Data, &categories))
		assert.Equal(t, []string{domain.AllCategories, "RAM", "SSD", "GPU"}, categories)
	})

	t.Run("detail", func(t *testing.T) {
		rec, env := do(t, e, http.MethodGet, "/products/5", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var view domain.ProductView
		require.NoError(t, json.Unmarshal(env.Data, &view))
		assert.InDelta(t, 4000, view.FinalPrice, 1e-9)

		rec, env = do(t, e, http.MethodGet, "/products/404", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, resp.CodeNotFound, env.Code)
	})

	t.Run("home", func(t *testing.T) {
		_, env := do(t, e, http.MethodGet, "/home", nil)
		var home HomeData
		require.NoError(t, json.Unmarshal(env.Data, &home))
		assert.Len(t, home.Featured, 4)
		assert.Len(t, home.HotDeals, 8)
		assert.Equal(t, domain.AllCategories, home.Categories[0])
	})
}

func TestAdminHandler(t *testing.T) {
	products := fixtureProducts()
	cat, src := loadedCatalog(t, products)
	svc := newMockProductService(products...)
	e := newTestEngine(cat, svc)

	t.Run("create", func(t *testing.T) {
		rec, env := do(t, e, http.MethodPost, "/admin/products", domain.CreateProductRequest{Name: "NVMe", Category: "SSD", Price: 100})
		require.Equal(t, http.StatusOK, rec.Code)
		var view domain.ProductView
		require.NoError(t, json.Unmarshal(env.Data, &view))
		assert.Equal(t, "NVMe", view.Name)

		rec, env = do(t, e, http.MethodPost, "/admin/products", domain.CreateProductRequest{Category: "SSD"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, resp.CodeInvalidParam, env.Code)
	})

	t.Run("update and delete", func(t *testing.T) {
		discount := 50.0
		rec, _ := do(t, e, http.MethodPut, "/admin/products/1", domain.UpdateProductRequest{Discount: &discount})
		assert.Equal(t, http.StatusOK, rec.Code)

		rec, _ = do(t, e, http.MethodDelete, "/admin/products/1", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		rec, env := do(t, e, http.MethodDelete, "/admin/products/1", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, resp.CodeNotFound, env.Code)
	})

	t.Run("stats failure is internal", func(t *testing.T) {
		svc.statsErr = fmt.Errorf("boom")
		rec, env := do(t, e, http.MethodGet, "/admin/products/stats", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, resp.CodeInternalError, env.Code)
		svc.statsErr = nil
	})

	t.Run("refresh catalog", func(t *testing.T) {
		src.mu.Lock()
		src.products = src.products[:10]
		src.mu.Unlock()

		rec, env := do(t, e, http.MethodPost, "/admin/catalog/refresh", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var status CatalogStatus
		require.NoError(t, json.Unmarshal(env.Data, &status))
		assert.Equal(t, 10, status.Products)
		assert.Nil(t, status.Error)
	})
}

func TestAuthHandler(t *testing.T) {
	cat, _ := loadedCatalog(t, nil)
	e := newTestEngine(cat, newMockProductService())

	rec, env := do(t, e, http.MethodPost, "/auth/login", domain.LoginRequest{Username: "admin", Password: "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login domain.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.Equal(t, "access", login.AccessToken)

	rec, env = do(t, e, http.MethodPost, "/auth/login", domain.LoginRequest{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, resp.CodeUnauthorized, env.Code)

	rec, _ = do(t, e, http.MethodPost, "/auth/login", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodPost, "/auth/refresh", domain.RefreshTokenRequest{RefreshToken: "refresh"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, e, http.MethodPost, "/auth/refresh", domain.RefreshTokenRequest{RefreshToken: "stale"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProductHandler_CategoryFromStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	products := fixtureProducts()
	cat, src := loadedCatalog(t, products)
	ph := NewProductHandler(cat, newMockProductService(products...), 8, zap.NewNop(), WithCategorySource(src))
	e := gin.New()
	e.GET("/products", ph.ListProducts)

	decode := func(t *testing.T, env envelope) ProductList {
		var list ProductList
		require.NoError(t, json.Unmarshal(env.Data, &list))
		return list
	}

	rec, env := do(t, e, http.MethodGet, "/products?category=SSD", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, env)
	assert.Equal(t, 10, list.Total)
	assert.Nil(t, list.Error)
	assert.Equal(t, 1, src.categoryCalls)

	_, env = do(t, e, http.MethodGet, "/products", nil)
	assert.Equal(t, 30, decode(t, env).Total)
	assert.Equal(t, 1, src.categoryCalls, "unfiltered list is served from the shared snapshot")

	src.mu.Lock()
	src.fail = true
	src.mu.Unlock()
	rec, env = do(t, e, http.MethodGet, "/products?category=SSD", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode(t, env)
	assert.Equal(t, 10, list.Total)
	require.NotNil(t, list.Error)
	assert.Equal(t, listing.LoadErrorMessage, *list.Error)
	assert.Equal(t, domain.AllCategories, cat.Snapshot().Category)
}
