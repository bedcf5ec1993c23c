package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/domain"
	"github.com/MorseWayne/storefront/internal/listing"
	"github.com/MorseWayne/storefront/internal/resp"
)

// ShopHandler 商品列表页：每个请求创建一个控制器，按查询参数依次应用筛选意图
type ShopHandler struct {
	catalog listing.SnapshotSource
	opts    []listing.Option
	logger  *zap.Logger
}

// NewShopHandler 创建列表页处理器
func NewShopHandler(src listing.SnapshotSource, pageSize int, stickyDiscount bool, logger *zap.Logger) *ShopHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShopHandler{
		catalog: src,
		opts: []listing.Option{
			listing.WithPageSize(pageSize),
			listing.WithStickyNavigationDiscount(stickyDiscount),
			listing.WithLogger(logger),
		},
		logger: logger,
	}
}

// shopQuery 解析后的列表查询参数
type shopQuery struct {
	seed       listing.NavigationSeed
	categories []string
	minPrice   *float64
	maxPrice   *float64
	minRating  float64
	inStock    bool
	sortKey    domain.SortKey
	page       int
}

func parseShopQuery(c *gin.Context) (shopQuery, error) {
	q := shopQuery{sortKey: domain.ParseSortKey(c.Query("sort")), page: 1}

	if term, set := c.GetQuery("q"); set {
		q.seed.Search = &term
	}
	discounted, set, err := queryBool(c, "discounted")
	if err != nil {
		return q, fmt.Errorf("invalid discounted: %w", err)
	}
	if set {
		q.seed.Discounted = &discounted
	}

	for _, cat := range c.QueryArray("category") {
		if cat = strings.TrimSpace(cat); cat != "" {
			q.categories = append(q.categories, cat)
		}
	}

	if v, set, err := queryFloat(c, "min_price"); err != nil {
		return q, fmt.Errorf("invalid min_price: %w", err)
	} else if set {
		q.minPrice = &v
	}
	if v, set, err := queryFloat(c, "max_price"); err != nil {
		return q, fmt.Errorf("invalid max_price: %w", err)
	} else if set {
		q.maxPrice = &v
	}

	if q.minRating, _, err = queryFloat(c, "min_rating"); err != nil {
		return q, fmt.Errorf("invalid min_rating: %w", err)
	}
	if q.inStock, _, err = queryBool(c, "in_stock"); err != nil {
		return q, fmt.Errorf("invalid in_stock: %w", err)
	}
	if page, set, err := queryInt(c, "page"); err != nil {
		return q, fmt.Errorf("invalid page: %w", err)
	} else if set {
		q.page = page
	}
	return q, nil
}

// Shop 商品列表页
// GET /api/v1/shop
func (h *ShopHandler) Shop(c *gin.Context) {
	q, err := parseShopQuery(c)
	if err != nil {
		fail(c, resp.CodeInvalidParam, err.Error())
		return
	}

	snap := h.catalog.Snapshot()
	if !snap.Loaded {
		msg := "catalog is loading"
		if snap.Error != "" {
			msg = snap.Error
		}
		fail(c, resp.CodeUnavailable, msg)
		return
	}

	opts := append([]listing.Option{listing.WithSeed(q.seed)}, h.opts...)
	ctrl := listing.NewController(h.catalog, opts...)
	defer ctrl.Close()

	if len(q.categories) > 0 {
		ctrl.SetCategories(q.categories)
	}
	if q.minPrice != nil || q.maxPrice != nil {
		bounds := ctrl.View().PriceBounds
		r := bounds
		if q.minPrice != nil {
			r.Min = *q.minPrice
		}
		if q.maxPrice != nil {
			r.Max = *q.maxPrice
		}
		ctrl.SetPriceRange(r)
	}
	if q.minRating > 0 {
		ctrl.SetMinRating(q.minRating)
	}
	if q.inStock {
		ctrl.SetInStock(true)
	}
	ctrl.SetSortKey(q.sortKey)
	ctrl.SetPage(q.page)

	view := ctrl.View()
	h.logger.Debug("shop listing",
		zap.String("request_id", requestID(c)),
		zap.Int("total_items", view.TotalItems),
		zap.Int("page", view.CurrentPage))
	ok(c, view)
}
