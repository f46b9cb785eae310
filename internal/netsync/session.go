package netsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/tradewinds/internal/caravan"
	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/engine"
	"github.com/talgya/tradewinds/internal/errx"
	"github.com/talgya/tradewinds/internal/protocol"
)

// Replica is a client's copy of the host's world. It only changes through
// host messages.
type Replica struct {
	PlayerID economy.PlayerID
	World    *engine.WorldState // nil until Map arrives
	Started  bool
	GameOver bool
	Status   protocol.TurnStatus
	Viewing  map[string]economy.PlayerID // advisory marks relayed by the host
	LastErr  *protocol.ErrorMsg

	roster []engine.Player
}

// NewReplica returns an empty replica.
func NewReplica() *Replica {
	return &Replica{Viewing: make(map[string]economy.PlayerID)}
}

// Apply folds one host message into the replica. It returns a reply to
// send back to the host, if any.
func (r *Replica) Apply(env protocol.Envelope) (*protocol.Envelope, error) {
	switch env.Type {
	case protocol.MsgConnected:
		var m protocol.Connected
		if err := env.Decode(&m); err != nil {
			return nil, err
		}
		r.PlayerID = m.PlayerID
		r.roster = m.ExistingPlayers
		r.putRoster()

	case protocol.MsgMap:
		var m protocol.Map
		if err := env.Decode(&m); err != nil {
			return nil, err
		}
		ws, err := engine.NewWorldState(m.Seed, m.CityNames, m.StartingStock)
		if err != nil {
			return nil, fmt.Errorf("regenerate world: %w", err)
		}
		r.World = ws
		r.putRoster()
		reply, err := protocol.NewEnvelope(protocol.MsgWorldReady, protocol.WorldReady{PlayerID: r.PlayerID, Digest: ws.GenesisDigest})
		if err != nil {
			return nil, err
		}
		return &reply, nil

	case protocol.MsgGameStart:
		r.Started = true

	case protocol.MsgPlayerJoined:
		var m protocol.PlayerJoined
		if err := env.Decode(&m); err != nil {
			return nil, err
		}
		r.roster = append(r.roster, m.Player)
		r.putRoster()

	case protocol.MsgTurnFinished:
		var m protocol.TurnFinished
		if err := env.Decode(&m); err != nil {
			return nil, err
		}
		if err := r.requireWorld(env.Type); err != nil {
			return nil, err
		}
		return nil, r.World.ApplySnapshot(m.Snapshot())

	case protocol.MsgCityUpdated:
		var m protocol.CityUpdated
		if err := env.Decode(&m); err != nil {
			return nil, err
		}
		if err := r.requireWorld(env.Type); err != nil {
			return nil, err
		}
		if m.UpdatedCity == nil {
			return nil, errx.ErrBadPayload.With("type", env.Type)
		}
		return nil, r.World.ApplyCity(m.UpdatedCity)

	case protocol.MsgCaravanCreated:
		var m protocol.CaravanCreated
		if err := env.Decode(&m); err != nil {
			return nil, err
		}
		return nil, r.putCaravan(env.Type, m.Caravan)

	case protocol.MsgCaravanUpdated:
		var m protocol.CaravanUpdated
		if err := env.Decode(&m); err != nil {
			return nil, err
		}
		return nil, r.putCaravan(env.Type, m.Caravan)

	case protocol.MsgCaravanRemoved:
		var m protocol.CaravanRemoved
		if err := env.Decode(&m); err != nil {
			return nil, err
		}
		if err := r.requireWorld(env.Type); err != nil {
			return nil, err
		}
		delete(r.World.Caravans, m.CaravanID)

	case protocol.MsgCityViewing, protocol.MsgNotCityViewing:
		var m protocol.CityViewing
		if err := env.Decode(&m); err != nil {
			return nil, err
		}
		if env.Type == protocol.MsgCityViewing {
			r.Viewing[m.CityID] = m.PlayerID
		} else {
			delete(r.Viewing, m.CityID)
		}

	case protocol.MsgTurnStatus:
		if err := env.Decode(&r.Status); err != nil {
			return nil, err
		}

	case protocol.MsgGameEnd:
		var m protocol.GameEnd
		if err := env.Decode(&m); err != nil {
			return nil, err
		}
		if m.PlayerID == r.PlayerID {
			r.GameOver = true
		}

	case protocol.MsgError:
		var m protocol.ErrorMsg
		if err := env.Decode(&m); err != nil {
			return nil, err
		}
		r.LastErr = &m
		slog.Warn("host rejected request", "code", m.Code, "message", m.Message)

	default:
		return nil, errx.ErrBadPayload.With("type", env.Type)
	}
	return nil, nil
}

// Waiting reports whether the local player has ended the turn and others
// have not.
func (r *Replica) Waiting() bool {
	for _, id := range r.Status.Ended {
		if id == r.PlayerID {
			return len(r.Status.Waiting) > 0
		}
	}
	return false
}

// Money returns the local player's balance.
func (r *Replica) Money() float64 {
	if r.World == nil {
		return 0
	}
	if p, ok := r.World.Players[r.PlayerID]; ok {
		return p.Money
	}
	return 0
}

func (r *Replica) requireWorld(typ string) error {
	if r.World == nil {
		return errx.ErrNotStarted.With("type", typ)
	}
	return nil
}

func (r *Replica) putRoster() {
	if r.World == nil {
		return
	}
	for _, p := range r.roster {
		if existing, ok := r.World.Players[p.ID]; ok {
			existing.Name = p.Name
			continue
		}
		r.World.PutPlayer(p.ID, p.Name, p.Money)
	}
}

func (r *Replica) putCaravan(typ string, c *caravan.Caravan) error {
	if err := r.requireWorld(typ); err != nil {
		return err
	}
	if c == nil || c.ID == "" {
		return errx.ErrBadPayload.With("type", typ)
	}
	r.World.PutCaravan(c)
	return nil
}

// Session is a client connection to a host.
type Session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	replica *Replica

	// OnMessage runs on the read goroutine after each host message has
	// been applied.
	OnMessage func(s *Session, env protocol.Envelope)
}

// JoinURL builds the host's websocket address for a player.
func JoinURL(base, name string, rejoin economy.PlayerID) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse host url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	q := u.Query()
	if name != "" {
		q.Set("name", name)
	}
	if rejoin != 0 {
		q.Set("player", strconv.FormatUint(uint64(rejoin), 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial connects to a host.
func Dial(ctx context.Context, wsURL string) (*Session, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	conn.SetReadLimit(maxMessageSize)
	return &Session{conn: conn, replica: NewReplica()}, nil
}

// Run reads host messages until ctx is cancelled or the connection drops.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		s.writeMu.Unlock()
		s.conn.Close()
	})
	defer stop()

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		env, err := protocol.Parse(frame)
		if err != nil {
			slog.Warn("host frame dropped", "error", err)
			continue
		}

		s.mu.Lock()
		reply, err := s.replica.Apply(env)
		s.mu.Unlock()
		if err != nil {
			if errors.Is(err, errx.ErrBadPayload) {
				slog.Warn("host message dropped", "type", env.Type, "error", err)
				continue
			}
			return fmt.Errorf("apply %s: %w", env.Type, err)
		}
		if reply != nil {
			if err := s.write(*reply); err != nil {
				return err
			}
		}
		if s.OnMessage != nil {
			s.OnMessage(s, env)
		}
	}
}

// View runs fn with the replica locked against the read goroutine.
func (s *Session) View(fn func(r *Replica)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.replica)
}

// PlayerID returns the id the host assigned.
func (s *Session) PlayerID() economy.PlayerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replica.PlayerID
}

// EndTurn signals the host that the local player is done.
func (s *Session) EndTurn() error {
	s.mu.Lock()
	msg := protocol.TurnEnded{PlayerID: s.replica.PlayerID, Money: s.replica.Money()}
	s.mu.Unlock()
	return s.send(protocol.MsgTurnEnded, msg)
}

// RequestCaravan asks the host to spawn c.
func (s *Session) RequestCaravan(c *caravan.Caravan) error {
	return s.send(protocol.MsgCaravanRequest, protocol.CaravanRequest{PlayerID: s.PlayerID(), Caravan: c})
}

// UpdateOrders asks the host to replace a caravan's orders.
func (s *Session) UpdateOrders(id string, orders []caravan.Order) error {
	return s.send(protocol.MsgCaravanUpdated, protocol.CaravanUpdated{CaravanID: id, Caravan: &caravan.Caravan{ID: id, Orders: orders}})
}

// RemoveCaravan asks the host to disband a caravan.
func (s *Session) RemoveCaravan(id string) error {
	return s.send(protocol.MsgCaravanRemove, protocol.CaravanRemove{PlayerID: s.PlayerID(), CaravanID: id})
}

// ViewCity announces that the local player opened a city.
func (s *Session) ViewCity(id string) error {
	return s.send(protocol.MsgCityViewing, protocol.CityViewing{PlayerID: s.PlayerID(), CityID: id})
}

// LeaveCity announces that the local player closed a city.
func (s *Session) LeaveCity(id string) error {
	return s.send(protocol.MsgNotCityViewing, protocol.CityViewing{PlayerID: s.PlayerID(), CityID: id})
}

// UpdateCity submits an edited city. It is applied locally only when the
// host relays it back through the next snapshot.
func (s *Session) UpdateCity(c *economy.City) error {
	return s.send(protocol.MsgCityUpdated, protocol.CityUpdated{UpdatedCity: c})
}

// Close drops the connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) send(typ string, payload any) error {
	env, err := protocol.NewEnvelope(typ, payload)
	if err != nil {
		return err
	}
	return s.write(env)
}

func (s *Session) write(env protocol.Envelope) error {
	frame, err := env.Encode()
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}
