package economy

import "math"

// Price curve constants. A market holding supply s prices a unit at
// max(PriceFloor, 2 / (1 + e^(s/PriceScale))) times its base value.
const (
	PriceFloor = 0.3
	PriceScale = 200.0
)

// Modifier returns the price multiplier for a market holding total units.
func Modifier(total int64) float64 {
	sigmoid := 2.0 / (1.0 + math.Exp(float64(total)/PriceScale))
	return math.Max(PriceFloor, sigmoid)
}

// UnitValue is the current price of one unit of res in this city.
func (c *City) UnitValue(res Resource) float64 {
	return Modifier(c.Market[res]) * res.BaseValue()
}

// BulkBuyPrice is the cost of buying n units one at a time, supply
// falling by one after each unit.
func (c *City) BulkBuyPrice(res Resource, n uint64) float64 {
	return bulkPrice(c.Market[res], res.BaseValue(), n, -1)
}

// BulkSellPrice is the proceeds of selling n units one at a time, supply
// rising by one after each unit.
func (c *City) BulkSellPrice(res Resource, n uint64) float64 {
	return bulkPrice(c.Market[res], res.BaseValue(), n, +1)
}

func bulkPrice(supply int64, base float64, n uint64, step int64) float64 {
	total := 0.0
	for i := uint64(0); i < n; i++ {
		total += Modifier(supply) * base
		supply += step
	}
	return total
}
