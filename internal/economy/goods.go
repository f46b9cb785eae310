// Package economy provides resources, the building table, city markets,
// sigmoid pricing and the per-turn production step.
package economy

import (
	"fmt"

	"github.com/talgya/tradewinds/internal/errx"
)

// Resource is a tradeable good. Declaration order is the canonical order
// used for every iteration over resources.
type Resource uint8

const (
	Food Resource = iota
	Plants
	CommonOre
	RareOre
	Lumber
	Stone
	Water
	Glass
	Coal
	RefinedValuables
	CommonAlloys
	Textiles
	ManufacturedGoods
	Medicines
	Reagents
	Machinery
	Drugs
	Slaves
	Souls
	SimpleLabour
	Military
	Transportation
	Luxuries
	ComplexLabour
	ExoticAlloys
	Spellwork
	Artifacts

	NumResources = int(Artifacts) + 1
)

var resourceNames = [NumResources]string{
	"Food", "Plants", "CommonOre", "RareOre", "Lumber", "Stone", "Water",
	"Glass", "Coal", "RefinedValuables", "CommonAlloys", "Textiles",
	"ManufacturedGoods", "Medicines", "Reagents", "Machinery", "Drugs",
	"Slaves", "Souls", "SimpleLabour", "Military", "Transportation",
	"Luxuries", "ComplexLabour", "ExoticAlloys", "Spellwork", "Artifacts",
}

// Base values in coins per unit at a modifier of 1.0.
var baseValues = [NumResources]float64{
	Food:              2,
	Plants:            2,
	CommonOre:         3,
	RareOre:           8,
	Lumber:            3,
	Stone:             2,
	Water:             1,
	Glass:             6,
	Coal:              3,
	RefinedValuables:  15,
	CommonAlloys:      10,
	Textiles:          8,
	ManufacturedGoods: 14,
	Medicines:         16,
	Reagents:          12,
	Machinery:         20,
	Drugs:             18,
	Slaves:            30,
	Souls:             40,
	SimpleLabour:      2,
	Military:          25,
	Transportation:    10,
	Luxuries:          22,
	ComplexLabour:     6,
	ExoticAlloys:      45,
	Spellwork:         50,
	Artifacts:         80,
}

// AllResources returns every resource in canonical order.
func AllResources() []Resource {
	out := make([]Resource, NumResources)
	for i := range out {
		out[i] = Resource(i)
	}
	return out
}

// Valid reports whether r is one of the declared resources.
func (r Resource) Valid() bool { return int(r) < NumResources }

func (r Resource) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Resource(%d)", uint8(r))
	}
	return resourceNames[r]
}

// BaseValue returns the unmodified unit value.
func (r Resource) BaseValue() float64 {
	if !r.Valid() {
		return 0
	}
	return baseValues[r]
}

// MarshalText encodes the resource by name so it can key JSON and YAML maps.
func (r Resource) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, errx.ErrUnknownResource.With("resource", uint8(r))
	}
	return []byte(resourceNames[r]), nil
}

// UnmarshalText decodes a resource name.
func (r *Resource) UnmarshalText(text []byte) error {
	res, err := ParseResource(string(text))
	if err != nil {
		return err
	}
	*r = res
	return nil
}

// ParseResource looks a resource up by name. "Vitae" is accepted as an
// alias of Souls.
func ParseResource(name string) (Resource, error) {
	if name == "Vitae" {
		return Souls, nil
	}
	for i, n := range resourceNames {
		if n == name {
			return Resource(i), nil
		}
	}
	return 0, errx.ErrUnknownResource.With("resource", name)
}

// Stock maps resources to signed quantities.
type Stock map[Resource]int64

// NewStock returns a stock holding every resource at zero.
func NewStock() Stock {
	s := make(Stock, NumResources)
	for i := 0; i < NumResources; i++ {
		s[Resource(i)] = 0
	}
	return s
}

// Clone returns a copy of s.
func (s Stock) Clone() Stock {
	out := make(Stock, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Amount is a resource quantity pair used by ordered recipe rows.
type Amount struct {
	Resource Resource
	Qty      int64
}

// sorted returns the entries of s in canonical resource order.
func (s Stock) sorted() []Amount {
	out := make([]Amount, 0, len(s))
	for i := 0; i < NumResources; i++ {
		if v, ok := s[Resource(i)]; ok {
			out = append(out, Amount{Resource(i), v})
		}
	}
	return out
}
