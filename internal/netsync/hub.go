package netsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/engine"
	"github.com/talgya/tradewinds/internal/errx"
	"github.com/talgya/tradewinds/internal/protocol"
)

// Config tunes a host hub.
type Config struct {
	Rules         engine.Rules
	StartingMoney float64
	LocalPlayer   string        // name of the player at the host; empty for a dedicated host
	TurnTimeout   time.Duration // 0 waits for every player forever
}

// TurnResult is handed to OnTurn after every resolved turn.
type TurnResult struct {
	Report   engine.TurnReport
	Snapshot engine.Snapshot
	Digest   string
	Players  []engine.Player
}

// Hub is the authoritative host. One goroutine (Run) owns the gate, the
// locks and every mutation of the world; other goroutines only read the
// world through View.
type Hub struct {
	mu sync.Mutex // guards ws against readers outside Run
	ws *engine.WorldState

	cfg     Config
	gate    *TurnGate
	locks   *CityLocks
	peers   map[*Peer]bool
	local   *Peer
	timeout atomic.Int64
	status  atomic.Pointer[protocol.TurnStatus]

	register   chan *Peer
	unregister chan *Peer
	incoming   chan Incoming
	poll       chan struct{}
	force      chan struct{}
	done       chan struct{}

	now func() time.Time

	// OnTurn runs on the hub goroutine after each turn is broadcast.
	OnTurn func(TurnResult)
}

// NewHub creates a hub around ws. With cfg.LocalPlayer set, the host's own
// player joins immediately and holds the gate like any peer.
func NewHub(ws *engine.WorldState, cfg Config) *Hub {
	h := &Hub{
		ws:         ws,
		cfg:        cfg,
		gate:       NewTurnGate(),
		locks:      NewCityLocks(),
		peers:      make(map[*Peer]bool),
		register:   make(chan *Peer),
		unregister: make(chan *Peer),
		incoming:   make(chan Incoming, 256),
		poll:       make(chan struct{}, 1),
		force:      make(chan struct{}, 1),
		done:       make(chan struct{}),
		now:        time.Now,
	}
	h.timeout.Store(int64(cfg.TurnTimeout))
	if cfg.LocalPlayer != "" {
		p := ws.AddPlayer(cfg.LocalPlayer, cfg.StartingMoney)
		h.local = &Peer{hub: h, PlayerID: p.ID, Name: p.Name}
		h.peers[h.local] = true
		h.gate.Connect(p.ID)
	}
	h.publishStatus()
	return h
}

// Run serves the hub until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()
	slog.Info("hub started", "seed", h.ws.Seed, "local_player", h.cfg.LocalPlayer)
	for {
		select {
		case p := <-h.register:
			h.join(p)
		case p := <-h.unregister:
			h.leave(p)
		case msg := <-h.incoming:
			h.handleMessage(msg)
		case <-h.poll:
			h.checkGate(false)
		case <-h.force:
			h.checkGate(true)
		case <-ctx.Done():
			slog.Info("hub stopped", "turn", h.ws.Turn, "peers", len(h.peers))
			return nil
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	for p := range h.peers {
		if !p.local() {
			close(p.send)
		}
	}
	h.peers = map[*Peer]bool{}
}

// ServePeer attaches an upgraded connection. id is the player a reconnecting
// client claims; 0 joins as a new player.
func (h *Hub) ServePeer(conn *websocket.Conn, id economy.PlayerID, name string) {
	p := newPeer(h, conn, id, name)
	select {
	case h.register <- p:
	case <-h.done:
		conn.Close()
		return
	}
	go p.writePump()
	go p.readPump()
}

// Poll asks the hub to check the turn gate. It never blocks.
func (h *Hub) Poll() {
	select {
	case h.poll <- struct{}{}:
	default:
	}
}

// ForceEndTurn resolves the turn on the next loop iteration regardless of
// which players have ended it.
func (h *Hub) ForceEndTurn() {
	select {
	case h.force <- struct{}{}:
	default:
	}
}

// EndLocalTurn raises the host player's flag.
func (h *Hub) EndLocalTurn() error {
	if h.local == nil {
		return errx.ErrUnknownPlayer.With("reason", "no local player")
	}
	var money float64
	h.View(func(ws *engine.WorldState) {
		money = ws.Players[h.local.PlayerID].Money
	})
	env, err := protocol.NewEnvelope(protocol.MsgTurnEnded, protocol.TurnEnded{PlayerID: h.local.PlayerID, Money: money})
	if err != nil {
		return err
	}
	select {
	case <-h.done:
		return errx.ErrNotStarted.With("reason", "hub stopped")
	default:
	}
	select {
	case h.incoming <- Incoming{Peer: h.local, Envelope: env}:
		return nil
	case <-h.done:
		return errx.ErrNotStarted.With("reason", "hub stopped")
	}
}

// LocalPlayer returns the host player's id.
func (h *Hub) LocalPlayer() (economy.PlayerID, bool) {
	if h.local == nil {
		return 0, false
	}
	return h.local.PlayerID, true
}

// SetTurnTimeout changes how long a round may wait after its first flag.
func (h *Hub) SetTurnTimeout(d time.Duration) {
	h.timeout.Store(int64(d))
	slog.Info("turn timeout changed", "timeout", d)
}

// View runs fn with the world locked against the hub goroutine.
func (h *Hub) View(fn func(ws *engine.WorldState)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.ws)
}

// Status returns the latest published gate state.
func (h *Hub) Status() protocol.TurnStatus {
	return *h.status.Load()
}

func (h *Hub) join(p *Peer) {
	h.mu.Lock()
	rejoin := p.PlayerID != 0 && h.ws.HasPlayer(p.PlayerID)
	if rejoin {
		p.Name = h.ws.Players[p.PlayerID].Name
	} else {
		if p.Name == "" {
			p.Name = "trader"
		}
		p.PlayerID = h.ws.AddPlayer(p.Name, h.cfg.StartingMoney).ID
	}
	roster := h.roster()
	me := *h.ws.Players[p.PlayerID]
	snap := h.ws.Snapshot()
	turn := h.ws.Turn
	h.mu.Unlock()

	h.peers[p] = true
	h.gate.Connect(p.PlayerID)
	slog.Info("peer joined", "player", p.PlayerID, "name", p.Name, "rejoin", rejoin)

	h.sendTo(p, protocol.MsgConnected, protocol.Connected{PlayerID: p.PlayerID, ExistingPlayers: roster})
	h.sendTo(p, protocol.MsgMap, protocol.Map{Seed: h.ws.Seed, CityNames: h.ws.Names, StartingStock: h.ws.StartingStock})
	h.sendTo(p, protocol.MsgGameStart, protocol.GameStart{Turn: turn})
	h.sendTo(p, protocol.MsgTurnFinished, protocol.NewTurnFinished(snap))
	for city, holder := range h.locks.holders {
		h.sendTo(p, protocol.MsgCityViewing, protocol.CityViewing{PlayerID: holder, CityID: city})
	}
	if !rejoin {
		h.broadcast(protocol.MsgPlayerJoined, protocol.PlayerJoined{Player: me}, p)
	}
	h.broadcastStatus()
}

func (h *Hub) leave(p *Peer) {
	if _, ok := h.peers[p]; !ok {
		return
	}
	delete(h.peers, p)
	close(p.send)
	h.gate.Disconnect(p.PlayerID)
	for _, city := range h.locks.ReleaseAll(p.PlayerID) {
		h.broadcast(protocol.MsgNotCityViewing, protocol.CityViewing{PlayerID: p.PlayerID, CityID: city}, nil)
	}
	slog.Info("peer left", "player", p.PlayerID)
	h.broadcastStatus()
}

func (h *Hub) handleMessage(msg Incoming) {
	var err error
	switch msg.Envelope.Type {
	case protocol.MsgTurnEnded:
		err = h.handleTurnEnded(msg)
	case protocol.MsgCaravanRequest:
		err = h.handleCaravanRequest(msg)
	case protocol.MsgCaravanUpdated:
		err = h.handleCaravanUpdated(msg)
	case protocol.MsgCaravanRemove:
		err = h.handleCaravanRemove(msg)
	case protocol.MsgCityViewing:
		err = h.handleCityViewing(msg)
	case protocol.MsgNotCityViewing:
		err = h.handleNotCityViewing(msg)
	case protocol.MsgCityUpdated:
		err = h.handleCityUpdated(msg)
	case protocol.MsgWorldReady:
		err = h.handleWorldReady(msg)
	default:
		err = errx.ErrBadPayload.With("type", msg.Envelope.Type)
	}
	if err != nil {
		h.reject(msg.Peer, msg.Envelope.Type, err)
	}
}

func (h *Hub) handleTurnEnded(msg Incoming) error {
	var te protocol.TurnEnded
	if err := msg.Envelope.Decode(&te); err != nil {
		return err
	}
	if !h.gate.End(msg.Peer.PlayerID, h.now()) {
		return errx.ErrUnknownPlayer.With("player", msg.Peer.PlayerID)
	}
	if te.Money != h.ws.Players[msg.Peer.PlayerID].Money {
		slog.Debug("client money differs from host", "player", msg.Peer.PlayerID, "client", te.Money)
	}
	h.broadcastStatus()
	return nil
}

func (h *Hub) handleCaravanRequest(msg Incoming) error {
	var req protocol.CaravanRequest
	if err := msg.Envelope.Decode(&req); err != nil {
		return err
	}
	if req.Caravan == nil {
		return errx.ErrBadPayload.With("type", msg.Envelope.Type).With("reason", "missing caravan")
	}
	if req.PlayerID != 0 && req.PlayerID != msg.Peer.PlayerID {
		return errx.ErrNotOwner.With("player", req.PlayerID)
	}
	req.Caravan.Owner = msg.Peer.PlayerID

	h.mu.Lock()
	cv, err := h.ws.AddCaravan(req.Caravan)
	if err == nil {
		cv = cv.Clone()
	}
	h.mu.Unlock()
	if err != nil {
		return err
	}
	h.broadcast(protocol.MsgCaravanCreated, protocol.CaravanCreated{PlayerID: cv.Owner, CaravanID: cv.ID, Caravan: cv}, nil)
	return nil
}

func (h *Hub) handleCaravanUpdated(msg Incoming) error {
	var req protocol.CaravanUpdated
	if err := msg.Envelope.Decode(&req); err != nil {
		return err
	}
	if req.Caravan == nil {
		return errx.ErrBadPayload.With("type", msg.Envelope.Type).With("reason", "missing caravan")
	}
	h.mu.Lock()
	cv, err := h.ws.UpdateOrders(req.CaravanID, msg.Peer.PlayerID, req.Caravan.Orders)
	if err == nil {
		cv = cv.Clone()
	}
	h.mu.Unlock()
	if err != nil {
		return err
	}
	h.broadcast(protocol.MsgCaravanUpdated, protocol.CaravanUpdated{CaravanID: cv.ID, Caravan: cv}, nil)
	return nil
}

func (h *Hub) handleCaravanRemove(msg Incoming) error {
	var req protocol.CaravanRemove
	if err := msg.Envelope.Decode(&req); err != nil {
		return err
	}
	h.mu.Lock()
	err := h.ws.RemoveCaravan(req.CaravanID, msg.Peer.PlayerID)
	h.mu.Unlock()
	if err != nil {
		return err
	}
	h.broadcast(protocol.MsgCaravanRemoved, protocol.CaravanRemoved{CaravanID: req.CaravanID}, nil)
	return nil
}

func (h *Hub) handleCityViewing(msg Incoming) error {
	var v protocol.CityViewing
	if err := msg.Envelope.Decode(&v); err != nil {
		return err
	}
	if _, ok := h.ws.CityIndex(v.CityID); !ok {
		return errx.ErrUnknownCity.With("city", v.CityID)
	}
	if !h.locks.View(v.CityID, msg.Peer.PlayerID) {
		holder, _ := h.locks.Holder(v.CityID)
		return errx.ErrCityLocked.With("city", v.CityID).With("holder", holder)
	}
	v.PlayerID = msg.Peer.PlayerID
	h.broadcast(protocol.MsgCityViewing, v, msg.Peer)
	return nil
}

func (h *Hub) handleNotCityViewing(msg Incoming) error {
	var v protocol.CityViewing
	if err := msg.Envelope.Decode(&v); err != nil {
		return err
	}
	if h.locks.Leave(v.CityID, msg.Peer.PlayerID) {
		v.PlayerID = msg.Peer.PlayerID
		h.broadcast(protocol.MsgNotCityViewing, v, msg.Peer)
	}
	return nil
}

// handleCityUpdated applies an edit unless another player holds the city.
// Edits are serialised by the hub goroutine, so the last accepted edit is
// the one every peer ends up with.
func (h *Hub) handleCityUpdated(msg Incoming) error {
	var cu protocol.CityUpdated
	if err := msg.Envelope.Decode(&cu); err != nil {
		return err
	}
	if cu.UpdatedCity == nil {
		return errx.ErrBadPayload.With("type", msg.Envelope.Type).With("reason", "missing city")
	}
	if err := h.locks.CanEdit(cu.UpdatedCity.ID, msg.Peer.PlayerID); err != nil {
		return err
	}
	h.mu.Lock()
	err := h.ws.ApplyCity(cu.UpdatedCity)
	h.mu.Unlock()
	if err != nil {
		return err
	}
	h.broadcast(protocol.MsgCityUpdated, cu, msg.Peer)
	return nil
}

func (h *Hub) handleWorldReady(msg Incoming) error {
	var wr protocol.WorldReady
	if err := msg.Envelope.Decode(&wr); err != nil {
		return err
	}
	if wr.Digest != h.ws.GenesisDigest {
		slog.Warn("world desync", "player", msg.Peer.PlayerID, "client", wr.Digest, "host", h.ws.GenesisDigest)
		return errx.ErrDesync.With("player", msg.Peer.PlayerID)
	}
	slog.Info("peer world verified", "player", msg.Peer.PlayerID)
	return nil
}

// checkGate resolves the turn when every connected player has ended it,
// when the round timed out, or when forced.
func (h *Hub) checkGate(force bool) {
	switch {
	case force:
		slog.Info("turn forced by host", "waiting", h.gate.Waiting())
	case h.gate.Ready():
	case h.gate.Overdue(time.Duration(h.timeout.Load()), h.now()):
		slog.Warn("turn timed out", "waiting", h.gate.Waiting())
	default:
		return
	}
	h.advance()
}

func (h *Hub) advance() {
	h.mu.Lock()
	report, err := h.ws.RunTurn(h.cfg.Rules)
	if err != nil {
		h.mu.Unlock()
		slog.Error("turn failed", "turn", report.Turn, "error", err)
		h.gate.Reset()
		h.broadcast(protocol.MsgError, errorMsg(err), nil)
		h.broadcastStatus()
		return
	}
	snap := h.ws.Snapshot()
	digest := h.ws.Digest()
	players := h.roster()
	h.mu.Unlock()

	h.broadcast(protocol.MsgTurnFinished, protocol.NewTurnFinished(snap), nil)
	for _, id := range report.GameOver {
		h.broadcast(protocol.MsgGameEnd, protocol.GameEnd{PlayerID: id, Money: snap.Economy[id]}, nil)
	}
	h.gate.Reset()
	h.broadcastStatus()

	if h.OnTurn != nil {
		h.OnTurn(TurnResult{Report: report, Snapshot: snap, Digest: digest, Players: players})
	}
}

func (h *Hub) roster() []engine.Player {
	out := make([]engine.Player, 0, len(h.ws.Players))
	for _, id := range h.ws.PlayerIDs() {
		out = append(out, *h.ws.Players[id])
	}
	return out
}

func (h *Hub) publishStatus() *protocol.TurnStatus {
	st := &protocol.TurnStatus{Turn: h.ws.Turn, Ended: h.gate.Ended(), Waiting: h.gate.Waiting()}
	h.status.Store(st)
	return st
}

func (h *Hub) broadcastStatus() {
	h.broadcast(protocol.MsgTurnStatus, h.publishStatus(), nil)
}

// broadcast sends to every peer except skip.
func (h *Hub) broadcast(typ string, payload any, skip *Peer) {
	frame, err := encode(typ, payload)
	if err != nil {
		slog.Error("broadcast encode failed", "type", typ, "error", err)
		return
	}
	for p := range h.peers {
		if p != skip {
			p.deliver(frame)
		}
	}
}

func (h *Hub) sendTo(p *Peer, typ string, payload any) {
	frame, err := encode(typ, payload)
	if err != nil {
		slog.Error("send encode failed", "type", typ, "error", err)
		return
	}
	p.deliver(frame)
}

func (h *Hub) reject(p *Peer, typ string, err error) {
	slog.Warn("request rejected", "player", p.PlayerID, "type", typ, "error", err)
	h.sendTo(p, protocol.MsgError, errorMsg(err))
}

func encode(typ string, payload any) ([]byte, error) {
	env, err := protocol.NewEnvelope(typ, payload)
	if err != nil {
		return nil, err
	}
	return env.Encode()
}

func errorMsg(err error) protocol.ErrorMsg {
	msg := protocol.ErrorMsg{Message: err.Error()}
	var coded *errx.Error
	if errors.As(err, &coded) {
		msg.Code = string(coded.Code())
	}
	return msg
}
