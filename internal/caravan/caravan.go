// Package caravan advances player caravans one route hop per turn and
// executes the trades scheduled at each stop.
package caravan

import (
	"github.com/google/uuid"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/errx"
	"github.com/talgya/tradewinds/internal/world"
)

// Trade is one resource line of a stop. Positive amounts acquire, negative
// amounts dispose. ViaMarket trades buy from or sell to the city market at
// bulk prices; the others move goods between cargo and the owner's
// warehouse with no money changing hands.
type Trade struct {
	Amount    int64 `json:"amount"`
	ViaMarket bool  `json:"via_market"`
}

// Order is one stop of a caravan's route.
type Order struct {
	Goal   string                     `json:"goal"`
	Trades map[economy.Resource]Trade `json:"trades"`
}

// Caravan is a player's trading convoy.
type Caravan struct {
	ID       string                      `json:"id"`
	Owner    economy.PlayerID            `json:"owner"`
	Orders   []Order                     `json:"orders"`
	OrderIdx int                         `json:"order_idx"`
	Position string                      `json:"position"`
	Cargo    map[economy.Resource]uint64 `json:"cargo"`
}

// NewID returns a fresh caravan id.
func NewID() string { return uuid.NewString() }

// Directory resolves city ids to arena indices and back.
type Directory interface {
	CityIndex(id string) (int, bool)
	CityAt(idx int) *economy.City
}

// Env is everything a caravan step reads or writes besides the caravan.
type Env struct {
	Graph    *world.Graph
	Cities   Directory
	Table    *economy.Table
	Treasury economy.Treasury
}

// Fill is one executed trade line.
type Fill struct {
	Resource  economy.Resource `json:"resource"`
	Qty       int64            `json:"qty"` // signed like Trade.Amount
	Money     float64          `json:"money"`
	ViaMarket bool             `json:"via_market"`
}

// Step reports what one advancement did.
type Step struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Arrived bool   `json:"arrived"`
	Fills   []Fill `json:"fills,omitempty"`
}

// Moved reports whether the caravan changed city.
func (s Step) Moved() bool { return s.From != s.To }

// Clone returns a deep copy of c.
func (c *Caravan) Clone() *Caravan {
	out := *c
	out.Orders = make([]Order, len(c.Orders))
	for i, o := range c.Orders {
		out.Orders[i] = Order{Goal: o.Goal, Trades: make(map[economy.Resource]Trade, len(o.Trades))}
		for r, t := range o.Trades {
			out.Orders[i].Trades[r] = t
		}
	}
	out.Cargo = make(map[economy.Resource]uint64, len(c.Cargo))
	for r, q := range c.Cargo {
		out.Cargo[r] = q
	}
	return &out
}

// Validate checks that the caravan's position, goals and resources exist.
func (c *Caravan) Validate(dir Directory) error {
	if _, ok := dir.CityIndex(c.Position); !ok {
		return errx.ErrUnknownCity.With("caravan", c.ID).With("city", c.Position)
	}
	for _, o := range c.Orders {
		if _, ok := dir.CityIndex(o.Goal); !ok {
			return errx.ErrUnknownCity.With("caravan", c.ID).With("city", o.Goal)
		}
		for r := range o.Trades {
			if !r.Valid() {
				return errx.ErrUnknownResource.With("caravan", c.ID).With("resource", uint8(r))
			}
		}
	}
	return nil
}

// Advance moves c one hop towards its current goal and, if it is at the
// goal afterwards, executes the stop and moves on to the next order.
func Advance(c *Caravan, env Env) (Step, error) {
	step := Step{From: c.Position, To: c.Position}
	if len(c.Orders) == 0 {
		return step, nil
	}
	c.OrderIdx %= len(c.Orders)
	order := c.Orders[c.OrderIdx]

	cur, ok := env.Cities.CityIndex(c.Position)
	if !ok {
		return step, errx.ErrUnknownCity.With("caravan", c.ID).With("city", c.Position)
	}
	goal, ok := env.Cities.CityIndex(order.Goal)
	if !ok {
		return step, errx.ErrUnknownCity.With("caravan", c.ID).With("city", order.Goal)
	}

	_, path, err := world.ShortestPath(env.Graph, cur, goal)
	if err != nil {
		return step, errx.ErrUnreachable.Wrap(err).With("caravan", c.ID)
	}
	if len(path) > 1 {
		cur = path[1]
		c.Position = env.Cities.CityAt(cur).ID
		step.To = c.Position
	}
	if cur != goal {
		return step, nil
	}

	step.Arrived = true
	fills, err := executeStop(c, order, env.Cities.CityAt(cur), env)
	if err != nil {
		return step, err
	}
	step.Fills = fills
	c.OrderIdx = (c.OrderIdx + 1) % len(c.Orders)
	return step, nil
}

// executeStop runs a stop's trade lines in resource order.
func executeStop(c *Caravan, order Order, city *economy.City, env Env) ([]Fill, error) {
	for r := range order.Trades {
		if !r.Valid() {
			return nil, errx.ErrUnknownResource.With("caravan", c.ID).With("resource", uint8(r))
		}
	}
	avail, err := city.AvailableCommodities(env.Table)
	if err != nil {
		return nil, err
	}
	if c.Cargo == nil {
		c.Cargo = make(map[economy.Resource]uint64)
	}
	paying := env.Treasury != nil && env.Treasury.HasPlayer(c.Owner)

	var fills []Fill
	for _, res := range economy.AllResources() {
		t, ok := order.Trades[res]
		if !ok || t.Amount == 0 {
			continue
		}
		var f Fill
		switch {
		case t.Amount > 0 && t.ViaMarket:
			f = buy(c, city, res, t.Amount, avail, paying, env.Treasury)
		case t.Amount > 0:
			f = withdraw(c, city, res, t.Amount)
		case t.ViaMarket:
			f = sell(c, city, res, -t.Amount, paying, env.Treasury)
		default:
			f = deposit(c, city, res, -t.Amount)
		}
		if f.Qty != 0 {
			fills = append(fills, f)
		}
	}
	return fills, nil
}

func buy(c *Caravan, city *economy.City, res economy.Resource, want int64, avail economy.ResourceSet, paying bool, t economy.Treasury) Fill {
	f := Fill{Resource: res, ViaMarket: true}
	if !paying || !avail.Has(res) {
		return f
	}
	n := min(want, city.Market[res])
	if n <= 0 {
		return f
	}
	f.Money = -city.BulkBuyPrice(res, uint64(n))
	t.AddMoney(c.Owner, f.Money)
	city.Market[res] -= n
	c.Cargo[res] += uint64(n)
	f.Qty = n
	return f
}

func sell(c *Caravan, city *economy.City, res economy.Resource, want int64, paying bool, t economy.Treasury) Fill {
	f := Fill{Resource: res, ViaMarket: true}
	if !paying {
		return f
	}
	n := min(want, int64(c.Cargo[res]))
	if n <= 0 {
		return f
	}
	f.Money = city.BulkSellPrice(res, uint64(n))
	t.AddMoney(c.Owner, f.Money)
	city.Market[res] += n
	c.Cargo[res] -= uint64(n)
	f.Qty = -n
	return f
}

func withdraw(c *Caravan, city *economy.City, res economy.Resource, want int64) Fill {
	f := Fill{Resource: res}
	w := city.Warehouses[c.Owner]
	if w == nil {
		return f
	}
	n := min(want, w[res])
	if n <= 0 {
		return f
	}
	w[res] -= n
	c.Cargo[res] += uint64(n)
	f.Qty = n
	return f
}

func deposit(c *Caravan, city *economy.City, res economy.Resource, want int64) Fill {
	f := Fill{Resource: res}
	n := min(want, int64(c.Cargo[res]))
	if n <= 0 {
		return f
	}
	city.EnsureWarehouse(c.Owner)[res] += n
	c.Cargo[res] -= uint64(n)
	f.Qty = -n
	return f
}
