// WorldState owns the whole session: the route graph, the city arena,
// caravans and players. Every turn mutation goes through it.
package engine

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"lukechampine.com/blake3"

	"github.com/talgya/tradewinds/internal/caravan"
	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/errx"
	"github.com/talgya/tradewinds/internal/world"
)

// Player is a session participant.
type Player struct {
	ID    economy.PlayerID `json:"id"`
	Name  string           `json:"name"`
	Money float64          `json:"money"`
}

// Event is a notable occurrence in the world.
type Event struct {
	Turn        uint64 `json:"turn"`
	Description string `json:"description"`
	Category    string `json:"category"` // "economy", "caravan", "debt", "session"
}

const maxEvents = 1000

// WorldState holds the complete session state.
type WorldState struct {
	Seed          uint64
	Names         [][]string
	StartingStock float64
	Graph         *world.Graph
	Cities        []*economy.City
	Caravans      map[string]*caravan.Caravan
	Players       map[economy.PlayerID]*Player
	Table         *economy.Table
	Turn          uint64
	Events        []Event
	Stats         world.Stats
	GenesisDigest string // digest right after generation, before any player joined

	cityIndex  map[string]int
	nextPlayer economy.PlayerID
}

// NewWorldState generates the world for seed and names.
func NewWorldState(seed uint64, names [][]string, startingStock float64) (*WorldState, error) {
	w, err := world.Generate(world.GenConfig{
		Seed:          seed,
		Names:         names,
		StartingStock: startingStock,
		Table:         economy.DefaultTable(),
	})
	if err != nil {
		return nil, fmt.Errorf("generate world: %w", err)
	}

	ws := Assemble(w.Graph, w.Cities, economy.DefaultTable())
	ws.Seed = seed
	ws.Names = names
	ws.StartingStock = startingStock
	ws.Stats = w.Stats
	ws.GenesisDigest = ws.Digest()
	return ws, nil
}

// Assemble builds a state around an existing graph and city arena.
// cities[i] must sit at g.Nodes[i].
func Assemble(g *world.Graph, cities []*economy.City, table *economy.Table) *WorldState {
	ws := &WorldState{
		Graph:      g,
		Cities:     cities,
		Caravans:   make(map[string]*caravan.Caravan),
		Players:    make(map[economy.PlayerID]*Player),
		Table:      table,
		cityIndex:  make(map[string]int, len(cities)),
		nextPlayer: 1,
	}
	for i, c := range cities {
		ws.cityIndex[c.ID] = i
	}
	return ws
}

// CityIndex returns the arena index of a city id.
func (ws *WorldState) CityIndex(id string) (int, bool) {
	i, ok := ws.cityIndex[id]
	return i, ok
}

// CityAt returns the city at an arena index.
func (ws *WorldState) CityAt(i int) *economy.City { return ws.Cities[i] }

// City returns the city with the given id.
func (ws *WorldState) City(id string) (*economy.City, error) {
	i, ok := ws.cityIndex[id]
	if !ok {
		return nil, errx.ErrUnknownCity.With("city", id)
	}
	return ws.Cities[i], nil
}

// HasPlayer implements economy.Treasury.
func (ws *WorldState) HasPlayer(id economy.PlayerID) bool {
	_, ok := ws.Players[id]
	return ok
}

// AddMoney implements economy.Treasury.
func (ws *WorldState) AddMoney(id economy.PlayerID, delta float64) {
	if p, ok := ws.Players[id]; ok {
		p.Money += delta
	}
}

// AddPlayer registers a new player with a fresh id and gives it an empty
// warehouse in every city.
func (ws *WorldState) AddPlayer(name string, money float64) *Player {
	id := ws.nextPlayer
	for ws.HasPlayer(id) {
		id++
	}
	return ws.PutPlayer(id, name, money)
}

// PutPlayer registers or updates a player with a known id.
func (ws *WorldState) PutPlayer(id economy.PlayerID, name string, money float64) *Player {
	p, ok := ws.Players[id]
	if !ok {
		p = &Player{ID: id}
		ws.Players[id] = p
		for _, c := range ws.Cities {
			c.EnsureWarehouse(id)
		}
		ws.record("session", fmt.Sprintf("%s joined", name))
	}
	p.Name = name
	p.Money = money
	if id >= ws.nextPlayer {
		ws.nextPlayer = id + 1
	}
	return p
}

// PlayerIDs returns the player ids in ascending order.
func (ws *WorldState) PlayerIDs() []economy.PlayerID {
	ids := make([]economy.PlayerID, 0, len(ws.Players))
	for id := range ws.Players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AddCaravan validates c and stores it under a new id.
func (ws *WorldState) AddCaravan(c *caravan.Caravan) (*caravan.Caravan, error) {
	if !ws.HasPlayer(c.Owner) {
		return nil, errx.ErrUnknownPlayer.With("player", c.Owner)
	}
	if err := c.Validate(ws); err != nil {
		return nil, err
	}
	cp := c.Clone()
	cp.ID = caravan.NewID()
	if cp.Cargo == nil {
		cp.Cargo = make(map[economy.Resource]uint64)
	}
	ws.Caravans[cp.ID] = cp
	ws.record("caravan", fmt.Sprintf("caravan %s created at %s for player %d", cp.ID, cp.Position, cp.Owner))
	return cp, nil
}

// PutCaravan stores an authoritative caravan received from the host.
func (ws *WorldState) PutCaravan(c *caravan.Caravan) {
	ws.Caravans[c.ID] = c.Clone()
}

// UpdateOrders replaces a caravan's orders on its owner's request. The
// order index restarts at the first stop.
func (ws *WorldState) UpdateOrders(id string, requester economy.PlayerID, orders []caravan.Order) (*caravan.Caravan, error) {
	c, ok := ws.Caravans[id]
	if !ok {
		return nil, errx.ErrUnknownCaravan.With("caravan", id)
	}
	if c.Owner != requester {
		return nil, errx.ErrNotOwner.With("caravan", id).With("player", requester)
	}
	next := c.Clone()
	next.Orders = (&caravan.Caravan{Orders: orders}).Clone().Orders
	next.OrderIdx = 0
	if err := next.Validate(ws); err != nil {
		return nil, err
	}
	ws.Caravans[id] = next
	return next, nil
}

// RemoveCaravan deletes a caravan on its owner's request.
func (ws *WorldState) RemoveCaravan(id string, requester economy.PlayerID) error {
	c, ok := ws.Caravans[id]
	if !ok {
		return errx.ErrUnknownCaravan.With("caravan", id)
	}
	if c.Owner != requester {
		return errx.ErrNotOwner.With("caravan", id).With("player", requester)
	}
	delete(ws.Caravans, id)
	ws.record("caravan", fmt.Sprintf("caravan %s disbanded by player %d", id, requester))
	return nil
}

// CaravanIDs returns the caravan ids in ascending order.
func (ws *WorldState) CaravanIDs() []string {
	ids := make([]string, 0, len(ws.Caravans))
	for id := range ws.Caravans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ApplyCity replaces the city with the same id.
func (ws *WorldState) ApplyCity(c *economy.City) error {
	cur, err := ws.City(c.ID)
	if err != nil {
		return err
	}
	if err := c.Validate(ws.Table); err != nil {
		return err
	}
	cur.Overwrite(c)
	return nil
}

// Snapshot is the full per-turn state broadcast to replicas.
type Snapshot struct {
	Turn     uint64                       `json:"turn"`
	Caravans []*caravan.Caravan           `json:"caravans"`
	Economy  map[economy.PlayerID]float64 `json:"economy"`
	Cities   []*economy.City              `json:"cities"`
}

// Snapshot returns a deep copy of the replicated state.
func (ws *WorldState) Snapshot() Snapshot {
	s := Snapshot{
		Turn:     ws.Turn,
		Caravans: make([]*caravan.Caravan, 0, len(ws.Caravans)),
		Economy:  make(map[economy.PlayerID]float64, len(ws.Players)),
		Cities:   make([]*economy.City, len(ws.Cities)),
	}
	for _, id := range ws.CaravanIDs() {
		s.Caravans = append(s.Caravans, ws.Caravans[id].Clone())
	}
	for id, p := range ws.Players {
		s.Economy[id] = p.Money
	}
	for i, c := range ws.Cities {
		s.Cities[i] = c.Clone()
	}
	return s
}

// ApplySnapshot overwrites a replica with the host's state.
func (ws *WorldState) ApplySnapshot(s Snapshot) error {
	for _, c := range s.Cities {
		if err := ws.ApplyCity(c); err != nil {
			return err
		}
	}
	ws.Caravans = make(map[string]*caravan.Caravan, len(s.Caravans))
	for _, c := range s.Caravans {
		ws.PutCaravan(c)
	}
	for id, money := range s.Economy {
		if p, ok := ws.Players[id]; ok {
			p.Money = money
		} else {
			ws.PutPlayer(id, fmt.Sprintf("player-%d", id), money)
		}
	}
	ws.Turn = s.Turn
	return nil
}

// Digest is the hex blake3 hash of the canonical JSON encoding of the
// graph and cities. Two replicas with equal digests hold the same world.
func (ws *WorldState) Digest() string {
	data, err := json.Marshal(struct {
		Graph  *world.Graph    `json:"graph"`
		Cities []*economy.City `json:"cities"`
	}{ws.Graph, ws.Cities})
	if err != nil {
		// Every field is a plain value; this cannot fail.
		panic(fmt.Sprintf("digest: %v", err))
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RecentEvents returns up to n of the latest events, oldest first.
func (ws *WorldState) RecentEvents(n int) []Event {
	if n <= 0 || n > len(ws.Events) {
		n = len(ws.Events)
	}
	return append([]Event(nil), ws.Events[len(ws.Events)-n:]...)
}

func (ws *WorldState) record(category, desc string) {
	ws.Events = append(ws.Events, Event{Turn: ws.Turn, Description: desc, Category: category})
	if len(ws.Events) > maxEvents {
		ws.Events = ws.Events[len(ws.Events)-maxEvents:]
	}
}
