package world

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/talgya/tradewinds/internal/economy"
)

// NameOrder is the race order of the per-race name lists sent in Map.
var NameOrder = [4]economy.Race{economy.Dwarven, economy.Elven, economy.Goblin, economy.Human}

func nameListIndex(r economy.Race) int {
	for i, nr := range NameOrder {
		if nr == r {
			return i
		}
	}
	return -1
}

var (
	dwarvenInitial   = []string{"Ka", "Kal", "Bo", "Bol", "To", "Te", "Tal", "De", "Do", "Don", "Be", "Ge", "Get"}
	dwarvenLatter    = []string{"rak", "raz", "bek", "bak", "rek", "dek", "dak", "bok"}
	dwarvenConnector = []string{"a", "e", "i", "o", "y", "yz", "az", "em", "et", "od", "an"}

	elvenInitial = []string{
		"Dawn", "Sun", "Gem", "Ice", "Frost", "Heart", "Sky", "Heaven", "Winter", "Lore", "Fire",
		"World", "Moon", "Forge", "Flame", "Star", "Mage", "Silver", "Storm", "Amber", "Ash",
		"Brass", "Gold", "Diamond", "Emerald", "Earth", "Jewel",
	}
	elvenLatter = []string{
		"light", "spire", "tower", "haven", "reach", "star", "hearth", "home", "land", "peak", "fire",
		"fall", "rise", "spring", "reign", "garden", "sun", "edge", "crown",
	}
	elvenPlacement = []string{"'s Edge", "'s Crown", "'s Peak", "'s Radiance", "'s Heart"}

	goblinInitial   = []string{"Ke", "Te", "Tre", "Kre", "Ge", "Ze", "Zhe", "Phe", "Pe", "Se"}
	goblinConnector = []string{"t", "z", "r", "g", "p", "kh", "sh", "w", "b", "v"}

	humanInitial = []string{
		"Coven", "Lon", "Wake", "Shef", "Man", "Brad", "Notting", "Birming", "Stoke", "Trent",
		"Chelm", "York", "New", "Canter", "Don", "Bright", "Wolver", "Ply", "Der", "South",
		"North", "Prest", "Chi", "Inver", "Lin", "Wor", "Lan", "Dun",
	}
	humanLatter = []string{
		"try", "don", "field", "sea", "bury", "ham", "port", "ford", "mouth", "deen", "land",
		"fast", "pool", "burg", "diff", "bridge", "hampton", "by", "cast", "cester", "shire",
		"cestershire", "wich", "chester",
	}
)

func pick(rng *rand.Rand, list []string) string { return list[rng.Intn(len(list))] }

// GenerateCityNames produces per-race name lists in NameOrder. Names are
// unique within a list when the syllable space allows it.
func GenerateCityNames(rng *rand.Rand, counts [4]int) [][]string {
	out := make([][]string, len(NameOrder))
	for i, race := range NameOrder {
		used := make(map[string]bool, counts[i])
		names := make([]string, 0, counts[i])
		for len(names) < counts[i] {
			var name string
			for attempt := 0; attempt < 20; attempt++ {
				name = cityName(rng, race)
				if !used[name] {
					break
				}
			}
			used[name] = true
			names = append(names, name)
		}
		out[i] = names
	}
	return out
}

// DefaultNameCounts is one name per satellite slot for every race.
func DefaultNameCounts() [4]int {
	total := 0
	for _, n := range RingSizes {
		total += n
	}
	return [4]int{total, total, total, total}
}

func cityName(rng *rand.Rand, race economy.Race) string {
	switch race {
	case economy.Dwarven:
		return pick(rng, dwarvenInitial) + pick(rng, dwarvenLatter) + "-" +
			pick(rng, dwarvenConnector) + "-" + pick(rng, dwarvenInitial) + pick(rng, dwarvenLatter)
	case economy.Elven:
		switch rng.Intn(10) {
		case 1:
			return pick(rng, elvenInitial) + pick(rng, elvenLatter) + " at " +
				pick(rng, elvenInitial) + pick(rng, elvenPlacement)
		case 2:
			return pick(rng, elvenInitial) + pick(rng, elvenPlacement)
		default:
			return pick(rng, elvenInitial) + pick(rng, elvenLatter)
		}
	case economy.Goblin:
		first := pick(rng, goblinInitial)
		return first + pick(rng, goblinConnector) + strings.ToLower(reverse(first)) + " " +
			pick(rng, goblinInitial) + pick(rng, goblinConnector)
	default:
		var ext string
		switch rng.Intn(10) {
		case 7:
			ext = "-on-Sea"
		case 8:
			ext = "-on-" + pick(rng, humanInitial) + pick(rng, humanLatter)
		case 9:
			ext = " upon " + pick(rng, humanInitial) + pick(rng, humanLatter)
		}
		return pick(rng, humanInitial) + pick(rng, humanLatter) + ext
	}
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// namer hands out city ids from the per-race lists, making them unique
// across the whole world.
type namer struct {
	lists [][]string
	next  [4]int
	taken map[string]bool
	spill [4]int
}

func newNamer(lists [][]string) *namer {
	return &namer{lists: lists, taken: make(map[string]bool)}
}

func (n *namer) reserve(name string) { n.taken[name] = true }

func (n *namer) take(race economy.Race) string {
	i := nameListIndex(race)
	var base string
	if i >= 0 && i < len(n.lists) && n.next[i] < len(n.lists[i]) {
		base = n.lists[i][n.next[i]]
		n.next[i]++
	} else {
		if i < 0 {
			i = 0
		}
		n.spill[i]++
		base = fmt.Sprintf("%s Outpost %d", race, n.spill[i])
	}
	name := base
	for k := 2; n.taken[name]; k++ {
		name = base + " " + roman(k)
	}
	n.taken[name] = true
	return name
}

func roman(n int) string {
	vals := []int{1000, 900, 500, 400, 100, 90, 50, 40, 10, 9, 5, 4, 1}
	syms := []string{"M", "CM", "D", "CD", "C", "XC", "L", "XL", "X", "IX", "V", "IV", "I"}
	var b strings.Builder
	for i, v := range vals {
		for n >= v {
			b.WriteString(syms[i])
			n -= v
		}
	}
	return b.String()
}
