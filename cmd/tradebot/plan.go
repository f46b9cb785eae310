package main

import (
	"github.com/talgya/tradewinds/internal/caravan"
	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/engine"
)

// route is a two-stop shuttle: buy at From, sell at To.
type route struct {
	From, To string
	Resource economy.Resource
	Margin   float64 // unit value at To minus unit value at From
}

// bestRoute scans every edge in both directions for the resource with the
// widest unit-value gap that the source market actually stocks. Ties go to
// the first found, so the choice is stable for a given world.
func bestRoute(ws *engine.WorldState) (route, bool) {
	var best route
	found := false
	for _, e := range ws.Graph.Edges {
		for _, pair := range [2][2]int{{e.A, e.B}, {e.B, e.A}} {
			from, to := ws.CityAt(pair[0]), ws.CityAt(pair[1])
			for _, res := range economy.AllResources() {
				if from.Market[res] <= 0 {
					continue
				}
				margin := to.UnitValue(res) - from.UnitValue(res)
				if margin > 0 && (!found || margin > best.Margin) {
					best = route{From: from.ID, To: to.ID, Resource: res, Margin: margin}
					found = true
				}
			}
		}
	}
	return best, found
}

// shuttle builds the caravan for r, moving lot units per round trip.
func (r route) shuttle(owner economy.PlayerID, lot int64) *caravan.Caravan {
	return &caravan.Caravan{
		Owner:    owner,
		Position: r.From,
		Orders: []caravan.Order{
			{Goal: r.From, Trades: map[economy.Resource]caravan.Trade{r.Resource: {Amount: lot, ViaMarket: true}}},
			{Goal: r.To, Trades: map[economy.Resource]caravan.Trade{r.Resource: {Amount: -lot, ViaMarket: true}}},
		},
	}
}
