package economy

import "fmt"

// Race is a city's culture and a building's affinity.
type Race uint8

const (
	Human Race = iota
	Elven
	Goblin
	Dwarven
	Generic
	Illegal
	Unique
)

var raceNames = [...]string{"Human", "Elven", "Goblin", "Dwarven", "Generic", "Illegal", "Unique"}

// PlayableRaces are the four races that own a capital and satellite cities.
var PlayableRaces = [4]Race{Human, Elven, Goblin, Dwarven}

func (r Race) String() string {
	if int(r) >= len(raceNames) {
		return fmt.Sprintf("Race(%d)", uint8(r))
	}
	return raceNames[r]
}

func (r Race) MarshalText() ([]byte, error) {
	if int(r) >= len(raceNames) {
		return nil, fmt.Errorf("invalid race %d", uint8(r))
	}
	return []byte(raceNames[r]), nil
}

func (r *Race) UnmarshalText(text []byte) error {
	for i, n := range raceNames {
		if n == string(text) {
			*r = Race(i)
			return nil
		}
	}
	return fmt.Errorf("unknown race %q", text)
}
