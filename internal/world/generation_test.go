package world

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/tradewinds/internal/economy"
)

func testConfig(seed uint64) GenConfig {
	return GenConfig{
		Seed:    seed,
		Names:   GenerateCityNames(rand.New(rand.NewSource(int64(seed))), DefaultNameCounts()),
		Players: []economy.PlayerID{1},
	}
}

func generate(t *testing.T, seed uint64) *World {
	t.Helper()
	w, err := Generate(testConfig(seed))
	require.NoError(t, err)
	return w
}

func TestGenerateIsDeterministic(t *testing.T) {
	a := generate(t, 1234)
	b := generate(t, 1234)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different worlds (-a +b):\n%s", diff)
	}

	c := generate(t, 4321)
	assert.NotEmpty(t, cmp.Diff(a.Graph, c.Graph))
}

func TestGeneratedGraphIsConnected(t *testing.T) {
	for _, seed := range []uint64{1, 2, 3, 99} {
		w := generate(t, seed)
		assert.Equal(t, 1, w.Graph.Components(), "seed %d", seed)
		assert.Len(t, w.Graph.Nodes, len(w.Cities))
		assert.Equal(t, w.Stats.Cities, len(w.Cities))
	}
}

func TestPruneFraction(t *testing.T) {
	w := generate(t, 7)
	total := w.Stats.EdgesBuilt + w.Stats.BridgesAdded
	require.Equal(t, int(0.25*float64(total)), w.Stats.PruneTarget)
	assert.Equal(t, total-w.Stats.EdgesPruned, len(w.Graph.Edges))

	if w.Stats.EdgesPruned < w.Stats.PruneTarget {
		// Under-pruning is only allowed when every remaining edge is a bridge.
		for i := range w.Graph.Edges {
			assert.Greater(t, w.Graph.componentsWithout(i), 1)
		}
	}
}

func TestNoEdgeCrossings(t *testing.T) {
	w := generate(t, 11)
	g := w.Graph
	for i, e := range g.Edges {
		for _, f := range g.Edges[i+1:] {
			if e.A == f.A || e.A == f.B || e.B == f.A || e.B == f.B {
				continue
			}
			require.False(t, Intersect(g.Nodes[e.A].Pos, g.Nodes[e.B].Pos, g.Nodes[f.A].Pos, g.Nodes[f.B].Pos),
				"edge %d-%d crosses %d-%d", e.A, e.B, f.A, f.B)
		}
	}
}

func TestEdgeWeightsAreDistances(t *testing.T) {
	w := generate(t, 5)
	for _, e := range w.Graph.Edges {
		want := w.Graph.Nodes[e.A].Pos.Distance(w.Graph.Nodes[e.B].Pos)
		assert.InDelta(t, want, e.Weight, 1e-9)
		assert.NotEqual(t, e.A, e.B)
	}
}

func TestSatellitesAvoidLakesAndStayOnMap(t *testing.T) {
	w := generate(t, 21)
	capitals := map[string]bool{}
	for _, r := range economy.PlayableRaces {
		name, _ := economy.CapitalName(r)
		capitals[name] = true
	}

	ids := map[string]bool{}
	for i, c := range w.Cities {
		require.False(t, ids[c.ID], "duplicate city id %q", c.ID)
		ids[c.ID] = true
		if capitals[c.ID] {
			assert.Equal(t, uint8(economy.MaxTier), c.Population)
			continue
		}
		assert.True(t, placeable(w.Graph.Nodes[i].Pos), "%s at %s", c.ID, w.Graph.Nodes[i].Pos)
		assert.LessOrEqual(t, c.Population, uint8(4))
	}
	assert.Len(t, capitals, 4)
}

func TestStartingStockFromNoise(t *testing.T) {
	cfg := testConfig(3)
	cfg.StartingStock = 50
	w, err := Generate(cfg)
	require.NoError(t, err)

	nonzero := 0
	for _, c := range w.Cities {
		require.Len(t, c.Market, economy.NumResources)
		for _, qty := range c.Market {
			assert.GreaterOrEqual(t, qty, int64(0))
			assert.LessOrEqual(t, qty, int64(50))
			if qty != 0 {
				nonzero++
			}
		}
	}
	assert.Positive(t, nonzero)
}

func TestPruneKeepsBridges(t *testing.T) {
	g := NewGraph()
	for i := 0; i < 5; i++ {
		g.AddNode(Vec2{float64(i) * 10, 0})
	}
	for i := 0; i < 4; i++ {
		g.AddEdge(i, i+1)
	}
	removed := pruneEdges(g, rand.New(rand.NewSource(1)), 1)
	assert.Zero(t, removed)
	assert.Len(t, g.Edges, 4)
}

func TestPruneRemovesCycleEdge(t *testing.T) {
	g := NewGraph()
	g.AddNode(Vec2{0, 0})
	g.AddNode(Vec2{10, 0})
	g.AddNode(Vec2{0, 10})
	g.AddNode(Vec2{20, 20})
	g.AddEdge(0, 1)
	g.AddEdge(1, 2)
	g.AddEdge(2, 0)
	g.AddEdge(1, 3)

	removed := pruneEdges(g, rand.New(rand.NewSource(2)), 1)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, g.Components())
	assert.True(t, g.HasEdge(1, 3))
}

func TestBridgeComponentsJoinsIslands(t *testing.T) {
	g := NewGraph()
	g.AddNode(Vec2{0, 0})
	g.AddNode(Vec2{1, 0})
	g.AddNode(Vec2{50, 0})
	g.AddNode(Vec2{51, 0})
	g.AddEdge(0, 1)
	g.AddEdge(2, 3)

	assert.Equal(t, 1, bridgeComponents(g))
	assert.Equal(t, 1, g.Components())
	assert.True(t, g.HasEdge(1, 2))
}

func TestIntersect(t *testing.T) {
	cases := []struct {
		name       string
		a, b, c, d Vec2
		want       bool
	}{
		{"cross", Vec2{0, 0}, Vec2{10, 10}, Vec2{0, 10}, Vec2{10, 0}, true},
		{"shared endpoint", Vec2{0, 0}, Vec2{10, 0}, Vec2{10, 0}, Vec2{10, 10}, false},
		{"parallel", Vec2{0, 0}, Vec2{10, 0}, Vec2{0, 5}, Vec2{10, 5}, false},
		{"apart", Vec2{0, 0}, Vec2{1, 1}, Vec2{5, 5}, Vec2{6, 9}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Intersect(tc.a, tc.b, tc.c, tc.d))
		})
	}
}

func TestAngleTo(t *testing.T) {
	assert.InDelta(t, math.Pi/2, Vec2{1, 0}.angleTo(Vec2{0, 1}), 1e-12)
	assert.InDelta(t, -math.Pi/2, Vec2{1, 0}.angleTo(Vec2{0, -1}), 1e-12)
}
