package domain

import "strings"

// AllCategories 分类列表中的"全部分类"哨兵值
const AllCategories = "All Categories"

// SortKey 商品列表排序方式
type SortKey string

const (
	SortFeatured  SortKey = "featured"   // 保持目录原始顺序
	SortPriceLow  SortKey = "price-low"  // 价格从低到高
	SortPriceHigh SortKey = "price-high" // 价格从高到低
	SortRating    SortKey = "rating"     // 评分从高到低
	SortNewest    SortKey = "newest"     // 最新上架
)

// ParseSortKey 解析排序参数，未知值回退为 featured
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortPriceLow, SortPriceHigh, SortRating, SortNewest:
		return k
	default:
		return SortFeatured
	}
}

// PriceRange 价格区间，闭区间 [Min, Max]
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// UnboundedPriceRange 不限制价格的区间
var UnboundedPriceRange = PriceRange{Min: 0, Max: -1}

// Contains 价格是否落在区间内；零值区间和 Max < Min 均视为不限制
func (r PriceRange) Contains(price float64) bool {
	if r == (PriceRange{}) || r.Max < r.Min {
		return true
	}
	return price >= r.Min && price <= r.Max
}

// FilterSpec 商品列表的全部筛选、排序和分页选项，只存在于内存中
type FilterSpec struct {
	SearchTerm     string     `json:"searchTerm"`
	Categories     []string   `json:"categories"`
	PriceRange     PriceRange `json:"priceRange"`
	MinRating      float64    `json:"minRating"`
	InStock        bool       `json:"inStock"`
	DiscountedOnly bool       `json:"discountedOnly"`
	SortKey        SortKey    `json:"sortKey"`
	Page           int        `json:"page"`
}

// DefaultFilterSpec 返回默认筛选条件，价格区间取自商品快照
func DefaultFilterSpec(bounds PriceRange) FilterSpec {
	return FilterSpec{
		PriceRange: bounds,
		SortKey:    SortFeatured,
		Page:       1,
	}
}

// CategorySet 返回生效的分类集合；包含哨兵值时视为不限制
func (s FilterSpec) CategorySet() map[string]struct{} {
	if len(s.Categories) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(s.Categories))
	for _, c := range s.Categories {
		if c == AllCategories {
			return nil
		}
		set[c] = struct{}{}
	}
	return set
}

// Clone 深拷贝，避免外部修改分类切片
func (s FilterSpec) Clone() FilterSpec {
	out := s
	if s.Categories != nil {
		out.Categories = append([]string(nil), s.Categories...)
	}
	return out
}
