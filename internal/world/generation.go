// World generation: seeded city placement, constrained edge synthesis and
// connectivity-preserving pruning.
package world

import (
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/tradewinds/internal/economy"
)

// Edge synthesis and pruning constants.
const (
	AngularConstraint = math.Pi / 9
	EdgeCandidates    = 10
	EdgesPerNode      = 3
	RemovalFactor     = 0.25
)

// GenConfig holds world generation parameters.
type GenConfig struct {
	Seed          uint64
	Names         [][]string // per-race lists in NameOrder
	StartingStock float64    // amplitude of the noise-seeded opening markets, 0 = empty markets
	Players       []economy.PlayerID
	Table         *economy.Table
}

// Stats records what generation did.
type Stats struct {
	Cities         int `json:"cities"`
	SkippedSlots   int `json:"skipped_slots"`
	EdgesBuilt     int `json:"edges_built"`
	BridgesAdded   int `json:"bridges_added"`
	EdgesPruned    int `json:"edges_pruned"`
	PruneTarget    int `json:"prune_target"`
	FinalEdgeCount int `json:"final_edge_count"`
}

// World is the generated session map. Cities[i] sits at Graph.Nodes[i].
type World struct {
	Graph  *Graph          `json:"graph"`
	Cities []*economy.City `json:"cities"`
	Stats  Stats           `json:"stats"`
}

// Generate builds the world for cfg. The same seed and names always
// produce the same world.
func Generate(cfg GenConfig) (*World, error) {
	table := cfg.Table
	if table == nil {
		table = economy.DefaultTable()
	}
	rng := rand.New(rand.NewSource(int64(cfg.Seed)))
	names := newNamer(cfg.Names)
	for _, a := range anchors {
		if n, ok := economy.CapitalName(a.race); ok {
			names.reserve(n)
		}
	}

	w := &World{Graph: NewGraph()}
	for _, a := range anchors {
		capital, err := economy.NewCapital(a.race, table, cfg.Players)
		if err != nil {
			return nil, err
		}
		w.add(a.pos, capital)

		for ring, count := range RingSizes {
			placed := placeSatellites(rng, a, ring, count)
			w.Stats.SkippedSlots += count - len(placed)
			for _, pos := range placed {
				city, err := economy.NewCity(names.take(a.race), a.race, ringTier(ring), table, rng, cfg.Players)
				if err != nil {
					return nil, err
				}
				w.add(pos, city)
			}
		}
	}
	w.Stats.Cities = len(w.Cities)

	if cfg.StartingStock > 0 {
		seedMarkets(w, int64(cfg.Seed), cfg.StartingStock)
	}

	w.Stats.EdgesBuilt = synthesizeEdges(w.Graph)
	w.Stats.BridgesAdded = bridgeComponents(w.Graph)
	w.Stats.PruneTarget = int(RemovalFactor * float64(len(w.Graph.Edges)))
	w.Stats.EdgesPruned = pruneEdges(w.Graph, rng, w.Stats.PruneTarget)
	w.Stats.FinalEdgeCount = len(w.Graph.Edges)
	return w, nil
}

func (w *World) add(pos Vec2, c *economy.City) {
	w.Graph.AddNode(pos)
	w.Cities = append(w.Cities, c)
}

// seedMarkets fills opening markets from positional simplex noise so that
// neighbouring cities start with similar stock.
func seedMarkets(w *World, seed int64, amplitude float64) {
	noise := opensimplex.NewNormalized(seed)
	for i, c := range w.Cities {
		p := w.Graph.Nodes[i].Pos
		for _, res := range economy.AllResources() {
			v := noise.Eval3(p.X/400, p.Y/400, float64(res)*1.7)
			c.Market[res] = int64(math.Round(v * amplitude))
		}
	}
}

// synthesizeEdges connects every node to up to EdgesPerNode of its
// EdgeCandidates nearest neighbours. A candidate is refused when it runs
// within AngularConstraint of an edge accepted in the same pass, when it
// crosses any existing edge, or when the pair is already connected.
func synthesizeEdges(g *Graph) int {
	built := 0
	order := make([]int, len(g.Nodes))
	for n := range g.Nodes {
		origin := g.Nodes[n].Pos
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			return origin.Distance(g.Nodes[order[i]].Pos) < origin.Distance(g.Nodes[order[j]].Pos)
		})

		var accepted []Vec2
		examined := 0
	candidates:
		for _, other := range order {
			if other == n {
				continue
			}
			if examined == EdgeCandidates || len(accepted) == EdgesPerNode {
				break
			}
			examined++

			dir := g.Nodes[other].Pos.Sub(origin)
			for _, prev := range accepted {
				if math.Abs(dir.angleTo(prev)) < AngularConstraint {
					continue candidates
				}
			}
			if g.HasEdge(n, other) || crossesAny(g, origin, g.Nodes[other].Pos) {
				continue
			}
			accepted = append(accepted, dir)
			g.AddEdge(n, other)
			built++
		}
	}
	return built
}

// bridgeComponents joins any components left by edge synthesis with the
// shortest non-crossing link between them, falling back to the shortest
// link if every candidate crosses.
func bridgeComponents(g *Graph) int {
	added := 0
	for g.Components() > 1 {
		comp := g.componentOf()
		root := comp[0]
		bestA, bestB := -1, -1
		fallA, fallB := -1, -1
		best, fall := math.Inf(1), math.Inf(1)
		for a := range g.Nodes {
			if comp[a] != root {
				continue
			}
			for b := range g.Nodes {
				if comp[b] == root {
					continue
				}
				d := g.Nodes[a].Pos.Distance(g.Nodes[b].Pos)
				if d < fall {
					fall, fallA, fallB = d, a, b
				}
				if d < best && !crossesAny(g, g.Nodes[a].Pos, g.Nodes[b].Pos) {
					best, bestA, bestB = d, a, b
				}
			}
		}
		if bestA < 0 {
			bestA, bestB = fallA, fallB
		}
		g.AddEdge(bestA, bestB)
		added++
	}
	return added
}

// pruneEdges removes up to target random edges without changing the
// component count. An edge whose removal would split the graph is a
// bridge and stays one as other edges go, so it is never retried; the
// loop ends when the target is met or only bridges remain.
func pruneEdges(g *Graph, rng *rand.Rand, target int) int {
	start := g.Components()
	candidates := make([]Edge, len(g.Edges))
	copy(candidates, g.Edges)

	removed := 0
	for removed < target && len(candidates) > 0 {
		i := rng.Intn(len(candidates))
		e := candidates[i]
		candidates[i] = candidates[len(candidates)-1]
		candidates = candidates[:len(candidates)-1]

		idx := g.EdgeIndex(e.A, e.B)
		if idx < 0 {
			continue
		}
		if g.componentsWithout(idx) == start {
			g.RemoveEdge(idx)
			removed++
		}
	}
	return removed
}
