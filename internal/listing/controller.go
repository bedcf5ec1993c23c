package listing

import (
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/catalog"
	"github.com/MorseWayne/storefront/internal/domain"
)

// NavigationSeed 页面跳转时携带的初始参数，nil 表示未提供
type NavigationSeed struct {
	Search     *string
	Discounted *bool
}

// FilterChip 当前生效筛选条件的摘要，用于展示可移除的标签
type FilterChip struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// 筛选标签类型
const (
	ChipSearch     = "search"
	ChipCategory   = "category"
	ChipPrice      = "price"
	ChipRating     = "rating"
	ChipInStock    = "in_stock"
	ChipDiscounted = "discounted"
)

// ListingView 展示层需要的全部输出
type ListingView struct {
	Items         []domain.ProductView `json:"items"`
	TotalPages    int                  `json:"total_pages"`
	CurrentPage   int                  `json:"current_page"`
	TotalItems    int                  `json:"total_items"`
	ActiveFilters []FilterChip         `json:"active_filters"`
	Categories    []string             `json:"categories"`
	PriceBounds   domain.PriceRange    `json:"price_bounds"`
	Loading       bool                 `json:"loading"`
	Error         *string              `json:"error"`
	Spec          domain.FilterSpec    `json:"spec"`
}

type options struct {
	pageSize       int
	stickyDiscount bool
	seed           NavigationSeed
	logger         *zap.Logger
}

// Option 控制器选项
type Option func(*options)

// WithPageSize 设置每页数量，默认 12
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithStickyNavigationDiscount 清除筛选时是否保留由跳转参数开启的"仅看折扣"，默认保留
func WithStickyNavigationDiscount(sticky bool) Option {
	return func(o *options) { o.stickyDiscount = sticky }
}

// WithSeed 跳转参数，在第一次计算之前生效
func WithSeed(seed NavigationSeed) Option {
	return func(o *options) { o.seed = seed }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Controller 商品列表控制器。
// 每个意图都是一次同步的完整更新：修改筛选条件后调用 Recompute，结果通过 View 读取。
type Controller struct {
	opts        options
	unsubscribe func()

	mu             sync.Mutex
	spec           domain.FilterSpec
	priceSet       bool
	seededDiscount bool

	products   []domain.Product
	categories []string
	bounds     domain.PriceRange
	loading    bool
	errMsg     string
	version    uint64

	filtered []domain.Product
}

// NewController 创建控制器并订阅数据源的快照变更
func NewController(src SnapshotSource, opts ...Option) *Controller {
	o := options{
		pageSize:       catalog.ShopPageSize,
		stickyDiscount: true,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Controller{
		opts: o,
		spec: domain.DefaultFilterSpec(domain.PriceRange{}),
	}
	c.seedLocked(o.seed)
	if src != nil {
		c.applySnapshot(src.Snapshot())
		c.unsubscribe = src.Subscribe(c.onSnapshot)
	} else {
		c.Recompute()
	}
	return c
}

// Close 取消订阅
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

func (c *Controller) onSnapshot(s Snapshot) {
	c.applySnapshot(s)
}

func (c *Controller) applySnapshot(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.Version < c.version {
		c.opts.logger.Debug("stale snapshot dropped",
			zap.Uint64("version", s.Version),
			zap.Uint64("current", c.version))
		return
	}
	c.version = s.Version
	c.loading = s.Loading
	c.errMsg = s.Error
	if s.Categories != nil {
		c.categories = s.Categories
	} else {
		c.categories = catalog.ListCategories(s.Products)
	}
	c.setProductsLocked(s.Products)
}

// Seed 使用跳转参数初始化搜索词和"仅看折扣"，随后重新计算
func (c *Controller) Seed(seed NavigationSeed) {
	c.update(func() { c.seedLocked(seed) })
}

func (c *Controller) seedLocked(seed NavigationSeed) {
	if seed.Search != nil {
		c.spec.SearchTerm = *seed.Search
	}
	if seed.Discounted != nil && *seed.Discounted {
		c.spec.DiscountedOnly = true
		c.seededDiscount = true
	}
}

// SetSearchTerm 修改搜索词
func (c *Controller) SetSearchTerm(term string) {
	c.update(func() { c.spec.SearchTerm = term })
}

// ToggleCategory 选中或取消选中一个分类；哨兵值清空分类限制
func (c *Controller) ToggleCategory(category string) {
	c.update(func() {
		if category == domain.AllCategories {
			c.spec.Categories = nil
			return
		}
		for i, existing := range c.spec.Categories {
			if existing == category {
				c.spec.Categories = append(c.spec.Categories[:i:i], c.spec.Categories[i+1:]...)
				return
			}
		}
		c.spec.Categories = append(c.spec.Categories, category)
	})
}

// SetCategories 替换已选分类
func (c *Controller) SetCategories(categories []string) {
	c.update(func() {
		c.spec.Categories = append([]string(nil), categories...)
	})
}

// SetPriceRange 设置价格区间，此后快照变化不再覆盖它
func (c *Controller) SetPriceRange(r domain.PriceRange) {
	c.update(func() {
		c.spec.PriceRange = r
		c.priceSet = true
	})
}

// SetMinRating 设置最低评分，0 表示不限
func (c *Controller) SetMinRating(rating float64) {
	c.update(func() { c.spec.MinRating = rating })
}

// SetInStock 是否只看有货
func (c *Controller) SetInStock(v bool) {
	c.update(func() { c.spec.InStock = v })
}

// SetDiscountedOnly 是否只看折扣商品
func (c *Controller) SetDiscountedOnly(v bool) {
	c.update(func() { c.spec.DiscountedOnly = v })
}

// SetSortKey 修改排序方式
func (c *Controller) SetSortKey(key domain.SortKey) {
	c.update(func() { c.spec.SortKey = key })
}

// update 修改筛选条件，重新计算并回到第一页
func (c *Controller) update(edit func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	edit()
	c.spec.Page = 1
	c.recomputeLocked()
}

// SetPage 只切换页码，不重新筛选；越界页码钳制到有效范围
func (c *Controller) SetPage(page int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spec.Page = catalog.ClampPage(page, c.totalPagesLocked())
}

// SetProducts 替换商品快照，保留用户的其它筛选条件
func (c *Controller) SetProducts(products []domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.categories = catalog.ListCategories(products)
	c.setProductsLocked(products)
}

func (c *Controller) setProductsLocked(products []domain.Product) {
	c.products = products
	c.bounds = catalog.PriceBounds(products)
	if !c.priceSet {
		c.spec.PriceRange = c.bounds
	}
	c.recomputeLocked()
}

// ClearFilters 恢复默认筛选条件
func (c *Controller) ClearFilters() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spec = domain.DefaultFilterSpec(c.bounds)
	c.priceSet = false
	if c.opts.stickyDiscount && c.seededDiscount {
		c.spec.DiscountedOnly = true
	} else {
		c.seededDiscount = false
	}
	c.recomputeLocked()
}

// Recompute 基于当前快照和筛选条件重新计算结果，并把页码钳制到有效范围
func (c *Controller) Recompute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recomputeLocked()
}

func (c *Controller) recomputeLocked() {
	c.filtered = catalog.ApplyFilters(c.products, c.spec)
	c.spec.Page = catalog.ClampPage(c.spec.Page, c.totalPagesLocked())
	c.opts.logger.Debug("listing recomputed",
		zap.Int("products", len(c.products)),
		zap.Int("matched", len(c.filtered)),
		zap.Int("page", c.spec.Page),
	)
}

func (c *Controller) totalPagesLocked() int {
	return catalog.TotalPages(len(c.filtered), c.opts.pageSize)
}

// View 返回当前可见页及状态
func (c *Controller) View() ListingView {
	c.mu.Lock()
	defer c.mu.Unlock()

	page := catalog.Paginate(c.filtered, c.spec.Page, c.opts.pageSize)
	v := ListingView{
		Items:         domain.NewProductViews(page.Items),
		TotalPages:    page.TotalPages,
		CurrentPage:   c.spec.Page,
		TotalItems:    len(c.filtered),
		ActiveFilters: c.chipsLocked(),
		Categories:    append([]string(nil), c.categories...),
		PriceBounds:   c.bounds,
		Loading:       c.loading,
		Spec:          c.spec.Clone(),
	}
	if c.errMsg != "" {
		msg := c.errMsg
		v.Error = &msg
	}
	return v
}

func (c *Controller) chipsLocked() []FilterChip {
	chips := []FilterChip{}
	if c.spec.SearchTerm != "" {
		chips = append(chips, FilterChip{Kind: ChipSearch, Label: fmt.Sprintf("Search: %s", c.spec.SearchTerm), Value: c.spec.SearchTerm})
	}
	for _, cat := range c.spec.Categories {
		chips = append(chips, FilterChip{Kind: ChipCategory, Label: cat, Value: cat})
	}
	if c.priceSet && c.spec.PriceRange != c.bounds {
		r := c.spec.PriceRange
		value := fmt.Sprintf("%s-%s", formatAmount(r.Min), formatAmount(r.Max))
		chips = append(chips, FilterChip{Kind: ChipPrice, Label: "Price: " + value, Value: value})
	}
	if c.spec.MinRating > 0 {
		value := formatAmount(c.spec.MinRating)
		chips = append(chips, FilterChip{Kind: ChipRating, Label: value + "+ stars", Value: value})
	}
	if c.spec.InStock {
		chips = append(chips, FilterChip{Kind: ChipInStock, Label: "In stock", Value: "true"})
	}
	if c.spec.DiscountedOnly {
		chips = append(chips, FilterChip{Kind: ChipDiscounted, Label: "On sale", Value: "true"})
	}
	return chips
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
