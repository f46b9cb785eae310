package world

import (
	"container/heap"
	"math"
	"slices"

	"github.com/talgya/tradewinds/internal/errx"
)

type hop struct {
	to     int
	weight float64
}

type queueItem struct {
	node int
	dist float64
}

type pathQueue []queueItem

func (q pathQueue) Len() int { return len(q) }
func (q pathQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].node < q[j].node
}
func (q pathQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)   { *q = append(*q, x.(queueItem)) }
func (q *pathQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

// ShortestPath returns the cost and node sequence of the cheapest route
// from one node to another, both endpoints included. A path from a node
// to itself is that single node at zero cost.
func ShortestPath(g *Graph, from, to int) (float64, []int, error) {
	n := len(g.Nodes)
	if from < 0 || from >= n {
		return 0, nil, errx.ErrUnknownCity.With("node", from)
	}
	if to < 0 || to >= n {
		return 0, nil, errx.ErrUnknownCity.With("node", to)
	}

	adj := make([][]hop, n)
	for _, e := range g.Edges {
		adj[e.A] = append(adj[e.A], hop{e.B, e.Weight})
		adj[e.B] = append(adj[e.B], hop{e.A, e.Weight})
	}

	dist := make([]float64, n)
	prev := make([]int, n)
	done := make([]bool, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[from] = 0

	q := &pathQueue{{node: from}}
	for q.Len() > 0 {
		cur := heap.Pop(q).(queueItem)
		if done[cur.node] {
			continue
		}
		done[cur.node] = true
		if cur.node == to {
			break
		}
		for _, h := range adj[cur.node] {
			if done[h.to] {
				continue
			}
			if d := cur.dist + h.weight; d < dist[h.to] {
				dist[h.to] = d
				prev[h.to] = cur.node
				heap.Push(q, queueItem{node: h.to, dist: d})
			}
		}
	}

	if math.IsInf(dist[to], 1) {
		return 0, nil, errx.ErrUnreachable.With("from", from).With("to", to)
	}
	var path []int
	for at := to; at != -1; at = prev[at] {
		path = append(path, at)
	}
	slices.Reverse(path)
	return dist[to], path, nil
}
