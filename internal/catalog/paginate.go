package catalog

// 各列表场景的固定分页大小
const (
	ShopPageSize     = 12
	HotDealsPageSize = 8
)

// Page 分页结果
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalPages int `json:"total_pages"`
}

// TotalPages 计算总页数，空列表为 0
func TotalPages(n, pageSize int) int {
	if n <= 0 || pageSize <= 0 {
		return 0
	}
	return (n + pageSize - 1) / pageSize
}

// Paginate 截取第 page 页（从 1 开始）；越界返回空切片，不做钳制
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	total := TotalPages(len(items), pageSize)
	if page < 1 || page > total {
		return Page[T]{Items: []T{}, TotalPages: total}
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(items))
	return Page[T]{Items: items[start:end], TotalPages: total}
}

// ClampPage 将页码钳制到 [1, totalPages]，无结果时为 1
func ClampPage(page, totalPages int) int {
	if totalPages < 1 || page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}
