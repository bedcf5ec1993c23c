package catalog

import (
	"math"

	"github.com/MorseWayne/storefront/internal/domain"
)

// priceStep 价格区间取整的步长
const priceStep = 1000

// PriceBounds 根据商品基础价格推导价格区间，下界向下、上界向上取整到 1000；空列表为 [0, 0]
func PriceBounds(products []domain.Product) domain.PriceRange {
	if len(products) == 0 {
		return domain.PriceRange{}
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range products {
		v := products[i].PriceValue()
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return domain.PriceRange{
		Min: math.Floor(lo/priceStep) * priceStep,
		Max: math.Ceil(hi/priceStep) * priceStep,
	}
}
