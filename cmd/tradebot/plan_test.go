package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/engine"
	"github.com/talgya/tradewinds/internal/world"
)

func pair(t *testing.T, aStock, bStock int64) *engine.WorldState {
	t.Helper()
	table := economy.DefaultTable()
	g := world.NewGraph()
	g.AddNode(world.Vec2{})
	g.AddNode(world.Vec2{X: 10})
	g.AddEdge(0, 1)

	cities := make([]*economy.City, 2)
	for i, id := range []string{"Saltmarsh", "Highcairn"} {
		cities[i] = &economy.City{ID: id, Race: economy.Human, Population: 1, Market: make(economy.Stock)}
		for _, res := range economy.AllResources() {
			cities[i].Market[res] = 0
		}
	}
	cities[0].Market[economy.Food] = aStock
	cities[1].Market[economy.Food] = bStock
	return engine.Assemble(g, cities, table)
}

func TestBestRoutePrefersScarceDestination(t *testing.T) {
	ws := pair(t, 500, 0)
	r, ok := bestRoute(ws)
	require.True(t, ok)
	assert.Equal(t, "Saltmarsh", r.From)
	assert.Equal(t, "Highcairn", r.To)
	assert.Equal(t, economy.Food, r.Resource)
	assert.Positive(t, r.Margin)

	c := r.shuttle(3, 10)
	assert.Equal(t, economy.PlayerID(3), c.Owner)
	assert.Equal(t, "Saltmarsh", c.Position)
	require.Len(t, c.Orders, 2)
	assert.Equal(t, int64(10), c.Orders[0].Trades[economy.Food].Amount)
	assert.Equal(t, int64(-10), c.Orders[1].Trades[economy.Food].Amount)
	require.NoError(t, c.Validate(ws))
}

func TestBestRouteNeedsStock(t *testing.T) {
	_, ok := bestRoute(pair(t, 0, 0))
	assert.False(t, ok)
}
