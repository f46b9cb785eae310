// City placement: each race capital sits at a fixed anchor and its
// satellite cities are scattered over concentric rings around it.
package world

import (
	"math"
	"math/rand"

	"github.com/talgya/tradewinds/internal/economy"
)

// Placement constants.
const (
	RingStep         = 100.0
	Jitter           = 15.0
	MinCityDist      = 25.0
	MapBound         = 2000.0 - 110.0
	placementRetries = 10
)

// RingSizes is the number of satellite slots on each ring, innermost first.
var RingSizes = [...]int{3, 4, 4, 5, 8, 12, 15, 20, 15}

// MapRect bounds every city position.
var MapRect = rect(-MapBound, -MapBound, MapBound, MapBound)

// Lakes are excluded from placement.
var Lakes = []Rect{
	rect(-430, 620, 330, 950),
	rect(-700, 340, 360, 620),
	rect(-650, 220, 160, 340),
	rect(-650, 70, -30, 220),
	rect(-390, -40, -250, 70),
	rect(-250, -270, 130, 70),
	rect(1060, 1200, 1750, 1650),
	rect(1220, 800, 1640, 1200),
}

type anchor struct {
	race     economy.Race
	pos      Vec2
	minAngle float64
	maxAngle float64
}

// Capitals are placed in this order, so arena indices are stable.
var anchors = [...]anchor{
	{economy.Goblin, Vec2{635, -1460}, -math.Pi, math.Pi},
	{economy.Human, Vec2{20, -150}, -math.Pi, math.Pi},
	{economy.Elven, Vec2{-30, 1460}, -math.Pi, math.Pi},
	{economy.Dwarven, Vec2{-1495, 1100}, -260 * math.Pi / 180, 0},
}

// placeable reports whether p is on the map and not under water.
func placeable(p Vec2) bool {
	if !MapRect.Contains(p) {
		return false
	}
	for _, l := range Lakes {
		if l.Contains(p) {
			return false
		}
	}
	return true
}

// ringTier is the population tier of a satellite on ring.
func ringTier(ring int) uint8 {
	switch {
	case ring == 0:
		return 4
	case ring < 3:
		return 3
	case ring < 5:
		return 2
	default:
		return 1
	}
}

// ringCandidate draws a position on ring around a. The angle is drawn
// first, then the x and y jitter.
func ringCandidate(rng *rand.Rand, a anchor, ring int) Vec2 {
	ang := a.minAngle + rng.Float64()*(a.maxAngle-a.minAngle)
	d := float64(ring+1) * RingStep
	jx := -Jitter + rng.Float64()*2*Jitter
	jy := -Jitter + rng.Float64()*2*Jitter
	return a.pos.Add(fromAngle(ang).Scale(d)).Add(Vec2{jx, jy})
}

// placeSatellites scatters one ring's cities. A slot whose candidates stay
// too close to a sibling after all retries, or that lands off the map or
// in a lake, is skipped.
func placeSatellites(rng *rand.Rand, a anchor, ring, count int) []Vec2 {
	var placed []Vec2
	for i := 0; i < count; i++ {
		var pos Vec2
		ok := false
		for attempt := 0; attempt < placementRetries; attempt++ {
			pos = ringCandidate(rng, a, ring)
			if !tooClose(pos, placed) {
				ok = true
				break
			}
		}
		if ok && placeable(pos) {
			placed = append(placed, pos)
		}
	}
	return placed
}

func tooClose(p Vec2, others []Vec2) bool {
	for _, o := range others {
		if p.Distance(o) < MinCityDist {
			return true
		}
	}
	return false
}
