package economy

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/talgya/tradewinds/internal/errx"
)

//go:embed buildings.yaml
var buildingsYAML []byte

// Building is the static recipe of one building type.
type Building struct {
	Name   string `json:"name"`
	Tier   uint8  `json:"tier"`
	Race   Race   `json:"race"`
	Input  Stock  `json:"input"`
	Output Stock  `json:"output"`
}

// Inputs returns the input rows in canonical resource order.
func (b *Building) Inputs() []Amount { return b.Input.sorted() }

// Outputs returns the output rows in canonical resource order.
func (b *Building) Outputs() []Amount { return b.Output.sorted() }

// Table is the immutable building lookup keyed by name.
type Table struct {
	byName map[string]*Building
	pools  map[poolKey][]string
	names  []string
}

type poolKey struct {
	race Race
	tier uint8
}

type buildingRow struct {
	Name   string           `yaml:"name"`
	Tier   uint8            `yaml:"tier"`
	Race   string           `yaml:"race"`
	Input  map[string]int64 `yaml:"input"`
	Output map[string]int64 `yaml:"output"`
}

// LoadTable parses a YAML building table.
func LoadTable(data []byte) (*Table, error) {
	var rows []buildingRow
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, errx.ErrBadTable.Wrap(err)
	}

	t := &Table{
		byName: make(map[string]*Building, len(rows)),
		pools:  make(map[poolKey][]string),
	}
	for _, row := range rows {
		if row.Tier < 1 || row.Tier > MaxTier {
			return nil, errx.ErrInvalidTier.With("building", row.Name).With("tier", row.Tier)
		}
		if _, dup := t.byName[row.Name]; dup {
			return nil, errx.ErrBadTable.With("duplicate", row.Name)
		}
		var race Race
		if err := race.UnmarshalText([]byte(row.Race)); err != nil {
			return nil, errx.ErrBadTable.Wrap(err).With("building", row.Name)
		}
		in, err := parseStock(row.Input)
		if err != nil {
			return nil, fmt.Errorf("building %q input: %w", row.Name, err)
		}
		out, err := parseStock(row.Output)
		if err != nil {
			return nil, fmt.Errorf("building %q output: %w", row.Name, err)
		}
		b := &Building{Name: row.Name, Tier: row.Tier, Race: race, Input: in, Output: out}
		t.byName[b.Name] = b
		t.names = append(t.names, b.Name)
	}
	sort.Strings(t.names)

	// Generic buildings join every race's pool.
	for _, name := range t.names {
		b := t.byName[name]
		if b.Race == Generic {
			for _, r := range PlayableRaces {
				k := poolKey{r, b.Tier}
				t.pools[k] = append(t.pools[k], name)
			}
			continue
		}
		k := poolKey{b.Race, b.Tier}
		t.pools[k] = append(t.pools[k], name)
	}
	for k := range t.pools {
		sort.Strings(t.pools[k])
	}
	return t, nil
}

func parseStock(raw map[string]int64) (Stock, error) {
	s := make(Stock, len(raw))
	for name, qty := range raw {
		res, err := ParseResource(name)
		if err != nil {
			return nil, err
		}
		s[res] += qty
	}
	return s, nil
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// DefaultTable returns the embedded building table, loaded once.
// It panics if the embedded table is malformed, which is a build defect.
func DefaultTable() *Table {
	defaultOnce.Do(func() {
		t, err := LoadTable(buildingsYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded building table: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Lookup returns the building with the given name.
func (t *Table) Lookup(name string) (*Building, error) {
	b, ok := t.byName[name]
	if !ok {
		return nil, errx.ErrUnknownBuilding.With("building", name)
	}
	return b, nil
}

// Names returns every building name, sorted.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// Pool returns the sorted names a city of race may draw for tier.
func (t *Table) Pool(race Race, tier uint8) []string {
	return t.pools[poolKey{race, tier}]
}
