package protocol

import (
	"github.com/talgya/tradewinds/internal/caravan"
	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/engine"
)

// Message types: Host → Client
const (
	MsgConnected      = "connected"
	MsgMap            = "map"
	MsgGameStart      = "game_start"
	MsgPlayerJoined   = "player_joined"
	MsgTurnFinished   = "turn_finished"
	MsgTurnStatus     = "turn_status"
	MsgCaravanCreated = "caravan_created"
	MsgCaravanRemoved = "caravan_removed"
	MsgGameEnd        = "game_end"
	MsgError          = "error"
)

// Message types: Client → Host
const (
	MsgTurnEnded      = "turn_ended"
	MsgCaravanRequest = "caravan_request"
	MsgCaravanRemove  = "caravan_remove"
	MsgWorldReady     = "world_ready"
)

// Message types relayed in both directions.
const (
	MsgCityUpdated    = "city_updated"
	MsgCaravanUpdated = "caravan_updated"
	MsgCityViewing    = "city_viewing"
	MsgNotCityViewing = "not_city_viewing"
)

// Connected is sent to a joining client with its assigned id.
type Connected struct {
	PlayerID        economy.PlayerID `json:"player_id"`
	ExistingPlayers []engine.Player  `json:"existing_players"`
}

// Map carries what a client needs to regenerate the world.
type Map struct {
	Seed          uint64     `json:"seed"`
	CityNames     [][]string `json:"city_names"`
	StartingStock float64    `json:"starting_stock"`
}

// GameStart tells clients to enter the running game.
type GameStart struct {
	Turn uint64 `json:"turn"`
}

// PlayerJoined announces a new session participant to everyone else.
type PlayerJoined struct {
	Player engine.Player `json:"player"`
}

// TurnEnded is a client's end-of-turn signal.
type TurnEnded struct {
	PlayerID economy.PlayerID `json:"player_id"`
	Money    float64          `json:"money"`
}

// TurnFinished is the full authoritative snapshot after a turn.
type TurnFinished struct {
	Turn     uint64                       `json:"turn"`
	Caravans []*caravan.Caravan           `json:"caravans"`
	Economy  map[economy.PlayerID]float64 `json:"economy"`
	Cities   []*economy.City              `json:"cities"`
}

// NewTurnFinished wraps a world snapshot.
func NewTurnFinished(s engine.Snapshot) TurnFinished {
	return TurnFinished(s)
}

// Snapshot converts the message back into an engine snapshot.
func (m TurnFinished) Snapshot() engine.Snapshot {
	return engine.Snapshot(m)
}

// TurnStatus surfaces who the session is waiting on.
type TurnStatus struct {
	Turn    uint64             `json:"turn"`
	Ended   []economy.PlayerID `json:"ended"`
	Waiting []economy.PlayerID `json:"waiting"`
}

// CityUpdated carries a full city after an edit.
type CityUpdated struct {
	UpdatedCity *economy.City `json:"updated_city"`
}

// CaravanRequest asks the host to spawn a caravan.
type CaravanRequest struct {
	PlayerID economy.PlayerID `json:"player_id"`
	Caravan  *caravan.Caravan `json:"caravan"`
}

// CaravanCreated is the host's authoritative record of a new caravan.
type CaravanCreated struct {
	PlayerID  economy.PlayerID `json:"player_id"`
	CaravanID string           `json:"caravan_id"`
	Caravan   *caravan.Caravan `json:"caravan"`
}

// CaravanUpdated replaces a caravan's orders. Clients send it to edit their
// own caravan; the host answers with the authoritative state.
type CaravanUpdated struct {
	CaravanID string           `json:"caravan_id"`
	Caravan   *caravan.Caravan `json:"caravan"`
}

// CaravanRemove asks the host to disband a caravan.
type CaravanRemove struct {
	PlayerID  economy.PlayerID `json:"player_id"`
	CaravanID string           `json:"caravan_id"`
}

// CaravanRemoved confirms a disbanded caravan.
type CaravanRemoved struct {
	CaravanID string `json:"caravan_id"`
}

// CityViewing marks a city as open in a player's detail view.
// NotCityViewing uses the same payload.
type CityViewing struct {
	PlayerID economy.PlayerID `json:"player_id"`
	CityID   string           `json:"city_id"`
}

// WorldReady reports the digest of a client's regenerated world.
type WorldReady struct {
	PlayerID economy.PlayerID `json:"player_id"`
	Digest   string           `json:"digest"`
}

// GameEnd tells a player that their debt ended the game for them.
type GameEnd struct {
	PlayerID economy.PlayerID `json:"player_id"`
	Money    float64          `json:"money"`
}

// ErrorMsg reports a refused request.
type ErrorMsg struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
