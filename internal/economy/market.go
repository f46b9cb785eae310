package economy

// Treasury is the player ledger the market update charges and pays.
type Treasury interface {
	HasPlayer(id PlayerID) bool
	AddMoney(id PlayerID, delta float64)
}

// TierUpTurns is the number of consecutive fed turns that promote a city.
const TierUpTurns = 5

type tierRule struct {
	costs    []Amount // deducted all-or-nothing when promotes is set
	upkeep   []Amount // deducted every turn
	labour   []Amount // produced every turn
	promotes bool
}

var tierRules = [MaxTier]tierRule{
	{
		costs:    []Amount{{Food, 5}, {Lumber, 2}, {Water, 3}},
		labour:   []Amount{{SimpleLabour, 5}},
		promotes: true,
	},
	{
		costs:    []Amount{{Food, 15}, {Lumber, 5}, {Stone, 3}, {Water, 10}, {Glass, 3}, {Textiles, 3}},
		labour:   []Amount{{SimpleLabour, 20}, {ComplexLabour, 5}},
		promotes: true,
	},
	{
		costs: []Amount{
			{Food, 20}, {Lumber, 10}, {Stone, 6}, {Water, 15}, {Glass, 6}, {Textiles, 6},
			{ManufacturedGoods, 3}, {Medicines, 3}, {Transportation, 15}, {Luxuries, 15},
		},
		upkeep:   []Amount{{Drugs, 5}, {Slaves, 5}},
		labour:   []Amount{{SimpleLabour, 45}, {ComplexLabour, 20}},
		promotes: true,
	},
	{
		costs: []Amount{
			{Food, 50}, {Lumber, 20}, {Stone, 15}, {Water, 30}, {Glass, 15}, {Textiles, 15},
			{ManufacturedGoods, 10}, {Medicines, 10}, {Military, 15}, {Transportation, 25}, {Luxuries, 25},
		},
		upkeep:   []Amount{{Drugs, 10}, {Slaves, 10}, {Souls, 2}},
		labour:   []Amount{{SimpleLabour, 80}, {ComplexLabour, 45}},
		promotes: true,
	},
	{
		upkeep: []Amount{
			{Food, 100}, {Lumber, 40}, {Stone, 30}, {Water, 50}, {Glass, 30}, {Textiles, 20},
			{ManufacturedGoods, 20}, {Medicines, 20}, {Drugs, 20}, {Slaves, 20}, {Souls, 5},
			{Military, 50}, {Transportation, 60}, {Luxuries, 60},
		},
		labour: []Amount{{SimpleLabour, 125}, {ComplexLabour, 80}},
	},
}

// ResourceSet is a membership set over all resources.
type ResourceSet [NumResources]bool

// Has reports whether res is in the set.
func (s *ResourceSet) Has(res Resource) bool { return res.Valid() && s[res] }

// AvailableCommodities returns the resources that can be bought here: those
// whose net neutral production is non-negative, and those the market
// currently holds.
func (c *City) AvailableCommodities(table *Table) (ResourceSet, error) {
	var set ResourceSet
	var net [NumResources]int64
	var seen [NumResources]bool

	err := c.slots(func(s Slot) error {
		if !s.Owner.IsNeutral() {
			return nil
		}
		b, err := table.Lookup(s.Building)
		if err != nil {
			return err
		}
		for res, qty := range b.Input {
			net[res] -= qty
			seen[res] = true
		}
		for res, qty := range b.Output {
			net[res] += qty
			seen[res] = true
		}
		return nil
	})
	if err != nil {
		return set, err
	}

	for i := 0; i < NumResources; i++ {
		if (seen[i] && net[i] >= 0) || c.Market[Resource(i)] > 0 {
			set[i] = true
		}
	}
	return set, nil
}

// UpdateResult summarises one city's production step.
type UpdateResult struct {
	Promoted     bool `json:"promoted"`
	PlayerRuns   int  `json:"player_runs"`
	PlayerStalls int  `json:"player_stalls"`
}

// UpdateMarket runs one turn of production for the city: neutral buildings,
// then player buildings, then the population tier check. Unknown buildings
// abort before anything is mutated.
func (c *City) UpdateMarket(table *Table, treasury Treasury) (UpdateResult, error) {
	var res UpdateResult
	if err := c.Validate(table); err != nil {
		return res, err
	}

	// Neutral production runs unconditionally.
	_ = c.slots(func(s Slot) error {
		if !s.Owner.IsNeutral() {
			return nil
		}
		b, _ := table.Lookup(s.Building)
		for _, a := range b.Inputs() {
			c.Market[a.Resource] -= a.Qty
		}
		for _, a := range b.Outputs() {
			c.Market[a.Resource] += a.Qty
		}
		return nil
	})

	err := c.slots(func(s Slot) error {
		if s.Owner.IsNeutral() {
			return nil
		}
		b, _ := table.Lookup(s.Building)
		ran, err := c.runPlayerBuilding(s, b, table, treasury)
		if err != nil {
			return err
		}
		if ran {
			res.PlayerRuns++
		} else {
			res.PlayerStalls++
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	res.Promoted = c.checkTierUp()
	return res, nil
}

func (c *City) runPlayerBuilding(s Slot, b *Building, table *Table, treasury Treasury) (bool, error) {
	owner := s.Owner.Player
	if treasury == nil || !treasury.HasPlayer(owner) {
		return false, nil
	}

	if s.BuysFromMarket {
		avail, err := c.AvailableCommodities(table)
		if err != nil {
			return false, err
		}
		for _, a := range b.Inputs() {
			if !avail.Has(a.Resource) {
				return false, nil
			}
		}
		for _, a := range b.Inputs() {
			treasury.AddMoney(owner, -c.BulkBuyPrice(a.Resource, uint64(a.Qty)))
			c.Market[a.Resource] -= a.Qty
		}
	} else {
		w := c.Warehouses[owner]
		for _, a := range b.Inputs() {
			if w == nil || w[a.Resource] < a.Qty {
				return false, nil
			}
		}
		for _, a := range b.Inputs() {
			w[a.Resource] -= a.Qty
		}
	}

	if s.SellsToMarket {
		for _, a := range b.Outputs() {
			treasury.AddMoney(owner, c.BulkSellPrice(a.Resource, uint64(a.Qty)))
			c.Market[a.Resource] += a.Qty
		}
	} else {
		w := c.EnsureWarehouse(owner)
		for _, a := range b.Outputs() {
			w[a.Resource] += a.Qty
		}
	}
	return true, nil
}

// checkTierUp applies the population tier's costs, upkeep and labour.
// Costs are all-or-nothing: a shortfall leaves the market untouched and
// resets the counter.
func (c *City) checkTierUp() bool {
	rule := tierRules[c.Population-1]
	promoted := false

	if rule.promotes {
		fed := true
		for _, a := range rule.costs {
			if c.Market[a.Resource] < a.Qty {
				fed = false
				break
			}
		}
		if fed {
			for _, a := range rule.costs {
				c.Market[a.Resource] -= a.Qty
			}
			c.TierUpCounter++
			if c.TierUpCounter >= TierUpTurns {
				c.TierUpCounter = 0
				c.Population++
				promoted = true
			}
		} else {
			c.TierUpCounter = 0
		}
	}

	for _, a := range rule.upkeep {
		c.Market[a.Resource] -= a.Qty
	}
	for _, a := range rule.labour {
		c.Market[a.Resource] += a.Qty
	}
	return promoted
}
