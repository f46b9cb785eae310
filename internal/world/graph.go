package world

import (
	"fmt"
	"math"
	"slices"
)

// Vec2 is a position on the strategic map.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2         { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2         { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(f float64) Vec2    { return Vec2{v.X * f, v.Y * f} }
func (v Vec2) Len() float64            { return math.Hypot(v.X, v.Y) }
func (v Vec2) Distance(o Vec2) float64 { return v.Sub(o).Len() }
func (v Vec2) String() string          { return fmt.Sprintf("(%.1f, %.1f)", v.X, v.Y) }
func fromAngle(theta float64) Vec2     { return Vec2{math.Cos(theta), math.Sin(theta)} }
func (v Vec2) normalize() Vec2         { return v.Scale(1 / v.Len()) }
func (v Vec2) angleTo(o Vec2) float64  { return math.Atan2(v.X*o.Y-v.Y*o.X, v.X*o.X+v.Y*o.Y) }

// Node is a graph vertex. Its index is the city's arena index.
type Node struct {
	Pos Vec2 `json:"pos"`
}

// Edge is an undirected route. Weight is the Euclidean distance between
// the endpoints when the edge was added.
type Edge struct {
	A      int     `json:"a"`
	B      int     `json:"b"`
	Weight float64 `json:"weight"`
}

// Other returns the endpoint opposite n.
func (e Edge) Other(n int) int {
	if e.A == n {
		return e.B
	}
	return e.A
}

// Graph is the undirected trade-route network.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NewGraph returns an empty graph.
func NewGraph() *Graph { return &Graph{} }

// AddNode appends a node and returns its index.
func (g *Graph) AddNode(pos Vec2) int {
	g.Nodes = append(g.Nodes, Node{Pos: pos})
	return len(g.Nodes) - 1
}

// AddEdge connects a and b and returns the edge index.
func (g *Graph) AddEdge(a, b int) int {
	g.Edges = append(g.Edges, Edge{A: a, B: b, Weight: g.Nodes[a].Pos.Distance(g.Nodes[b].Pos)})
	return len(g.Edges) - 1
}

// RemoveEdge deletes edge i, keeping the order of the rest.
func (g *Graph) RemoveEdge(i int) {
	g.Edges = slices.Delete(g.Edges, i, i+1)
}

// EdgeIndex returns the index of the edge joining a and b, or -1.
func (g *Graph) EdgeIndex(a, b int) int {
	for i, e := range g.Edges {
		if (e.A == a && e.B == b) || (e.A == b && e.B == a) {
			return i
		}
	}
	return -1
}

// HasEdge reports whether a and b are adjacent.
func (g *Graph) HasEdge(a, b int) bool { return g.EdgeIndex(a, b) >= 0 }

// Neighbors returns the nodes adjacent to n in edge order.
func (g *Graph) Neighbors(n int) []int {
	var out []int
	for _, e := range g.Edges {
		if e.A == n || e.B == n {
			out = append(out, e.Other(n))
		}
	}
	return out
}

// Components returns the number of connected components.
func (g *Graph) Components() int { return g.componentsWithout(-1) }

// componentsWithout counts components as if edge skip were absent.
func (g *Graph) componentsWithout(skip int) int {
	uf := newUnionFind(len(g.Nodes))
	for i, e := range g.Edges {
		if i == skip {
			continue
		}
		uf.union(e.A, e.B)
	}
	return uf.sets
}

// componentOf labels every node with a component representative.
func (g *Graph) componentOf() []int {
	uf := newUnionFind(len(g.Nodes))
	for _, e := range g.Edges {
		uf.union(e.A, e.B)
	}
	out := make([]int, len(g.Nodes))
	for i := range out {
		out[i] = uf.find(i)
	}
	return out
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	return &Graph{
		Nodes: slices.Clone(g.Nodes),
		Edges: slices.Clone(g.Edges),
	}
}

type unionFind struct {
	parent []int
	rank   []uint8
	sets   int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]uint8, n), sets: n}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
	uf.sets--
}
