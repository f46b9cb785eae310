package economy

import (
	"math/rand"
	"slices"

	"github.com/talgya/tradewinds/internal/errx"
)

// MaxTier is the highest population and building tier.
const MaxTier = 5

// PlayerID identifies a player for the whole session. Zero is never assigned.
type PlayerID uint64

// Faction is a building slot's owner. The zero value is Neutral.
type Faction struct {
	Player PlayerID `json:"player,omitempty"`
}

// Neutral is the city-owned faction.
var Neutral = Faction{}

// PlayerFaction returns the faction of a player.
func PlayerFaction(id PlayerID) Faction { return Faction{Player: id} }

// IsNeutral reports whether the slot is city-owned.
func (f Faction) IsNeutral() bool { return f.Player == 0 }

// Slot is one building instance in a city.
type Slot struct {
	Building       string  `json:"building"`
	Owner          Faction `json:"owner"`
	SellsToMarket  bool    `json:"sells_to_market"`
	BuysFromMarket bool    `json:"buys_from_market"`
}

// City is one node's economic state.
type City struct {
	ID            string             `json:"id"`
	Race          Race               `json:"race"`
	Population    uint8              `json:"population"`
	Buildings     [MaxTier][]Slot    `json:"buildings"` // index 0 = tier 1
	Market        Stock              `json:"market"`
	Warehouses    map[PlayerID]Stock `json:"warehouses"`
	TierUpCounter uint8              `json:"tier_up_counter"`
}

// buildings drawn per tier for a freshly generated city of each population tier.
var buildingsPerTier = [MaxTier][MaxTier]int{
	{1, 0, 0, 0, 0},
	{1, 1, 0, 0, 0},
	{2, 1, 1, 0, 0},
	{2, 2, 1, 1, 0},
	{3, 2, 2, 1, 1},
}

// NewCity generates a city with neutral buildings drawn from its race pools.
// Warehouses are created for each of players.
func NewCity(name string, race Race, tier uint8, table *Table, rng *rand.Rand, players []PlayerID) (*City, error) {
	if tier < 1 || tier > MaxTier {
		return nil, errx.ErrInvalidTier.With("city", name).With("tier", tier)
	}
	c := &City{
		ID:         name,
		Race:       race,
		Population: tier,
		Market:     NewStock(),
		Warehouses: make(map[PlayerID]Stock, len(players)),
	}
	for t, count := range buildingsPerTier[tier-1] {
		if count == 0 {
			continue
		}
		pool := table.Pool(race, uint8(t+1))
		if len(pool) == 0 {
			return nil, errx.ErrEmptyPool.With("race", race.String()).With("tier", t+1)
		}
		for i := 0; i < count; i++ {
			c.Buildings[t] = append(c.Buildings[t], Slot{
				Building: pool[rng.Intn(len(pool))],
				Owner:    Neutral,
			})
		}
	}
	for _, p := range players {
		c.EnsureWarehouse(p)
	}
	return c, nil
}

type capitalDef struct {
	name  string
	tiers [MaxTier][]string
}

var capitals = map[Race]capitalDef{
	Dwarven: {
		name: "Terez-e-Palaz",
		tiers: [MaxTier][]string{
			{"Gem Cutters", "Gem Cutters", "Standard Mines", "Standard Mines", "Standard Mines"},
			{"Growth Vats", "Core Drill", "Preparatory Facilities", "Educated Workers"},
			{"Automation Components", "Megabreweries", "Megabreweries"},
			{"Industrial Smeltery", "Dwarven Assembly Lines"},
			{"The Great Red Forges"},
		},
	},
	Elven: {
		name: "Jewel of All Creation",
		tiers: [MaxTier][]string{
			{"Earth Spirit Aid", "Ironwood Forestry", "Forest Foraging", "Standard Mines", "Standard Mines"},
			{"Amber Plantations", "Amber Plantations", "Gardens of Wonder", "Gardens of Wonder"},
			{"Integrated Farms", "Elemental Springs", "Basic Industry"},
			{"Gaian Meadows", "Self-spinning Weavers"},
			{"Tower of the Luminous Science"},
		},
	},
	Goblin: {
		name: "Tevet Pekhep Dered",
		tiers: [MaxTier][]string{
			{"Deep Mines", "Deep Mines", "Animated Objects", "Alchemical Enhancements", "Alchemical Enhancements"},
			{"Glaziery", "Glaziery", "Charcoal Kilns", "Hill Quarries"},
			{"Artisan District", "Trains", "Apothecary's Workshop"},
			{"Siege-Factories", "Golem Automatons"},
			{"Cauldronworks of the Four Clans"},
		},
	},
	Human: {
		name: "Great Lancastershire",
		tiers: [MaxTier][]string{
			{"Large Industrial District", "Large Industrial District", "Fishing Port", "Fishing Port", "Tree Plantations"},
			{"Water Cleaning Facilities", "Water Cleaning Facilities", "Hired Workforces", "Small-scale Forges"},
			{"Manufactories", "Mercenary Guild", "Apothecary's Workshop"},
			{"Teleportation Circle Network", "Strip Mines"},
			{"Sunstrider Headquarters"},
		},
	},
}

// CapitalName returns the fixed name of race's capital.
func CapitalName(race Race) (string, bool) {
	def, ok := capitals[race]
	return def.name, ok
}

// NewCapital builds the fixed population-5 capital of a playable race.
func NewCapital(race Race, table *Table, players []PlayerID) (*City, error) {
	def, ok := capitals[race]
	if !ok {
		return nil, errx.ErrEmptyPool.With("capital", race.String())
	}
	c := &City{
		ID:         def.name,
		Race:       race,
		Population: MaxTier,
		Market:     NewStock(),
		Warehouses: make(map[PlayerID]Stock, len(players)),
	}
	for t, names := range def.tiers {
		for _, n := range names {
			if _, err := table.Lookup(n); err != nil {
				return nil, err
			}
			c.Buildings[t] = append(c.Buildings[t], Slot{Building: n, Owner: Neutral})
		}
	}
	for _, p := range players {
		c.EnsureWarehouse(p)
	}
	return c, nil
}

// EnsureWarehouse creates an empty warehouse for player if none exists.
func (c *City) EnsureWarehouse(player PlayerID) Stock {
	if c.Warehouses == nil {
		c.Warehouses = make(map[PlayerID]Stock)
	}
	w, ok := c.Warehouses[player]
	if !ok {
		w = NewStock()
		c.Warehouses[player] = w
	}
	return w
}

// SetOwner changes the owner and trade flags of one building slot.
func (c *City) SetOwner(tier uint8, slot int, owner Faction, sellsToMarket, buysFromMarket bool) error {
	if tier < 1 || tier > MaxTier {
		return errx.ErrInvalidTier.With("city", c.ID).With("tier", tier)
	}
	slots := c.Buildings[tier-1]
	if slot < 0 || slot >= len(slots) {
		return errx.ErrUnknownBuilding.With("city", c.ID).With("slot", slot)
	}
	slots[slot].Owner = owner
	slots[slot].SellsToMarket = sellsToMarket
	slots[slot].BuysFromMarket = buysFromMarket
	if !owner.IsNeutral() {
		c.EnsureWarehouse(owner.Player)
	}
	return nil
}

// Overwrite replaces c's contents with other's, used when applying a
// remote CityUpdated.
func (c *City) Overwrite(other *City) {
	cp := other.Clone()
	*c = *cp
}

// Clone returns a deep copy of c.
func (c *City) Clone() *City {
	out := &City{
		ID:            c.ID,
		Race:          c.Race,
		Population:    c.Population,
		Market:        c.Market.Clone(),
		TierUpCounter: c.TierUpCounter,
	}
	for t := range c.Buildings {
		out.Buildings[t] = slices.Clone(c.Buildings[t])
	}
	if c.Warehouses != nil {
		out.Warehouses = make(map[PlayerID]Stock, len(c.Warehouses))
	}
	for p, w := range c.Warehouses {
		out.Warehouses[p] = w.Clone()
	}
	return out
}

// slots calls fn for every slot, tier 1 first, in list order.
func (c *City) slots(fn func(s Slot) error) error {
	for t := range c.Buildings {
		for _, s := range c.Buildings[t] {
			if err := fn(s); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks that the market covers every resource, population is in
// range and every building is in table.
func (c *City) Validate(table *Table) error {
	if c.Population < 1 || c.Population > MaxTier {
		return errx.ErrInvalidTier.With("city", c.ID).With("tier", c.Population)
	}
	for i := 0; i < NumResources; i++ {
		if _, ok := c.Market[Resource(i)]; !ok {
			return errx.ErrUnknownResource.With("city", c.ID).With("missing", Resource(i).String())
		}
	}
	return c.slots(func(s Slot) error {
		_, err := table.Lookup(s.Building)
		if err != nil {
			return errx.ErrUnknownBuilding.With("city", c.ID).With("building", s.Building)
		}
		return nil
	})
}
