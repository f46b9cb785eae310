package world

// Rect is an axis-aligned rectangle, inclusive of its border.
type Rect struct {
	Min Vec2 `json:"min"`
	Max Vec2 `json:"max"`
}

func rect(x0, y0, x1, y1 float64) Rect {
	return Rect{Min: Vec2{x0, y0}, Max: Vec2{x1, y1}}
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// endpointEpsilon pulls segment endpoints inwards so that edges sharing a
// city are not reported as crossing.
const endpointEpsilon = 0.0001

func ccw(a, b, c Vec2) bool {
	return (c.Y-a.Y)*(b.X-a.X) > (b.Y-a.Y)*(c.X-a.X)
}

func shorten(a, b Vec2) (Vec2, Vec2) {
	ab := b.Sub(a).normalize()
	return a.Add(ab.Scale(endpointEpsilon)), b.Sub(ab.Scale(endpointEpsilon))
}

// Intersect reports whether segment ab crosses segment cd.
func Intersect(a, b, c, d Vec2) bool {
	a, b = shorten(a, b)
	c, d = shorten(c, d)
	return ccw(a, c, d) != ccw(b, c, d) && ccw(a, b, c) != ccw(a, b, d)
}

// crossesAny reports whether the segment a-b crosses any edge of g.
func crossesAny(g *Graph, a, b Vec2) bool {
	for _, e := range g.Edges {
		if Intersect(g.Nodes[e.A].Pos, g.Nodes[e.B].Pos, a, b) {
			return true
		}
	}
	return false
}
