// Package catalog 实现商品列表的纯函数引擎：分类目录、筛选排序、分页和价格区间推导。
// 所有函数只读取传入的快照，不修改入参，不返回错误。
package catalog

import "github.com/MorseWayne/storefront/internal/domain"

// ListCategories 按首次出现顺序返回去重后的分类，首位为"全部分类"哨兵值
func ListCategories(products []domain.Product) []string {
	out := []string{domain.AllCategories}
	seen := make(map[string]struct{}, len(products))
	for i := range products {
		c := products[i].Category
		if c == "" || c == domain.AllCategories {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// WithSentinel 为存储层返回的分类列表补上哨兵值并去重
func WithSentinel(categories []string) []string {
	products := make([]domain.Product, 0, len(categories))
	for _, c := range categories {
		products = append(products, domain.Product{Category: c})
	}
	return ListCategories(products)
}
