package catalog

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/MorseWayne/storefront/internal/domain"
)

// DefaultHotDealsLimit 热门折扣默认展示数量
const DefaultHotDealsLimit = 8

// ApplyFilters 依次应用筛选条件后按 SortKey 稳定排序，返回新切片
func ApplyFilters(products []domain.Product, spec domain.FilterSpec) []domain.Product {
	term := strings.ToLower(strings.TrimSpace(spec.SearchTerm))
	categories := spec.CategorySet()

	out := make([]domain.Product, 0, len(products))
	for i := range products {
		p := &products[i]
		if term != "" && !matchesTerm(p, term) {
			continue
		}
		if categories != nil {
			if _, ok := categories[p.Category]; !ok {
				continue
			}
		}
		if !spec.PriceRange.Contains(p.PriceValue()) {
			continue
		}
		if spec.MinRating > 0 && p.RatingValue() < spec.MinRating {
			continue
		}
		if spec.InStock && !p.InStock() {
			continue
		}
		if spec.DiscountedOnly && !p.HasDiscount() {
			continue
		}
		out = append(out, *p)
	}

	sortProducts(out, spec.SortKey)
	return out
}

func matchesTerm(p *domain.Product, term string) bool {
	return strings.Contains(strings.ToLower(p.Name), term) ||
		strings.Contains(strings.ToLower(p.Description), term)
}

func sortProducts(products []domain.Product, key domain.SortKey) {
	switch key {
	case domain.SortPriceLow:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].PriceValue() < products[j].PriceValue()
		})
	case domain.SortPriceHigh:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].PriceValue() > products[j].PriceValue()
		})
	case domain.SortRating:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].RatingValue() > products[j].RatingValue()
		})
	case domain.SortNewest:
		sort.SliceStable(products, func(i, j int) bool {
			return newer(&products[i], &products[j])
		})
	}
}

// newer 定义"最新"排序的全序：
// 数字 ID 按数值降序，且排在所有非数字 ID 之前；非数字 ID 按创建时间降序。
func newer(a, b *domain.Product) bool {
	na, aNumeric := numericID(a.ID)
	nb, bNumeric := numericID(b.ID)
	switch {
	case aNumeric && bNumeric:
		return na > nb
	case aNumeric != bNumeric:
		return aNumeric
	default:
		return a.CreatedAt.After(b.CreatedAt)
	}
}

func numericID(id string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(id), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// HotDeals 返回有折扣的商品，按折扣降序，截断到 limit；limit <= 0 时使用默认值
func HotDeals(products []domain.Product, limit int) []domain.Product {
	if limit <= 0 {
		limit = DefaultHotDealsLimit
	}
	deals := make([]domain.Product, 0, len(products))
	for i := range products {
		if products[i].HasDiscount() {
			deals = append(deals, products[i])
		}
	}
	sort.SliceStable(deals, func(i, j int) bool {
		return deals[i].DiscountValue() > deals[j].DiscountValue()
	})
	if len(deals) > limit {
		deals = deals[:limit]
	}
	return deals
}
