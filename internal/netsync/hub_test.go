package netsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/tradewinds/internal/caravan"
	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/engine"
	"github.com/talgya/tradewinds/internal/errx"
	"github.com/talgya/tradewinds/internal/protocol"
	"github.com/talgya/tradewinds/internal/world"
)

func smallWorld(t *testing.T) *engine.WorldState {
	t.Helper()
	g := world.NewGraph()
	g.AddNode(world.Vec2{})
	g.AddNode(world.Vec2{X: 80})
	g.AddEdge(0, 1)
	cities := []*economy.City{
		{ID: "Amberfield", Race: economy.Human, Population: 1, Market: economy.NewStock()},
		{ID: "Brightwater", Race: economy.Human, Population: 1, Market: economy.NewStock()},
	}
	return engine.Assemble(g, cities, economy.DefaultTable())
}

func testHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	if cfg.Rules == (engine.Rules{}) {
		cfg.Rules = engine.DefaultRules()
	}
	return NewHub(smallWorld(t), cfg)
}

// connect registers a socketless peer directly, as Run would.
func connect(t *testing.T, h *Hub, name string) *Peer {
	t.Helper()
	p := newPeer(h, nil, 0, name)
	h.join(p)
	drain(p)
	return p
}

func drain(p *Peer) []protocol.Envelope {
	var out []protocol.Envelope
	for {
		select {
		case frame, ok := <-p.send:
			if !ok {
				return out
			}
			env, err := protocol.Parse(frame)
			if err != nil {
				panic(err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func types(envs []protocol.Envelope) []string {
	out := make([]string, len(envs))
	for i, e := range envs {
		out[i] = e.Type
	}
	return out
}

func count(envs []protocol.Envelope, typ string) int {
	n := 0
	for _, e := range envs {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func send(h *Hub, p *Peer, typ string, payload any) {
	h.handleMessage(Incoming{Peer: p, Envelope: protocol.MustEnvelope(typ, payload)})
}

func lastError(t *testing.T, envs []protocol.Envelope) protocol.ErrorMsg {
	t.Helper()
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type == protocol.MsgError {
			var m protocol.ErrorMsg
			require.NoError(t, envs[i].Decode(&m))
			return m
		}
	}
	t.Fatalf("no error message in %v", types(envs))
	return protocol.ErrorMsg{}
}

func TestJoinSendsSessionBootstrap(t *testing.T) {
	h := testHub(t, Config{StartingMoney: 250})
	first := connect(t, h, "ann")

	p := newPeer(h, nil, 0, "bob")
	h.join(p)
	got := drain(p)
	require.GreaterOrEqual(t, len(got), 4)
	assert.Equal(t, []string{protocol.MsgConnected, protocol.MsgMap, protocol.MsgGameStart, protocol.MsgTurnFinished}, types(got[:4]))

	var hello protocol.Connected
	require.NoError(t, got[0].Decode(&hello))
	assert.Equal(t, p.PlayerID, hello.PlayerID)
	assert.Len(t, hello.ExistingPlayers, 2)
	assert.Equal(t, 250.0, hello.ExistingPlayers[1].Money)

	announced := drain(first)
	assert.Equal(t, 1, count(announced, protocol.MsgPlayerJoined))
}

func TestGateAdvancesOncePerRound(t *testing.T) {
	h := testHub(t, Config{})
	peers := []*Peer{connect(t, h, "a"), connect(t, h, "b"), connect(t, h, "c")}

	for round := uint64(1); round <= 2; round++ {
		for i, p := range peers {
			send(h, p, protocol.MsgTurnEnded, protocol.TurnEnded{PlayerID: p.PlayerID})
			h.checkGate(false)
			if i < len(peers)-1 {
				assert.Equal(t, round-1, h.ws.Turn, "turn must wait for every player")
			}
		}
		assert.Equal(t, round, h.ws.Turn)

		h.checkGate(false)
		assert.Equal(t, round, h.ws.Turn, "flags are cleared after the turn")
		assert.Empty(t, h.gate.Ended())

		for _, p := range peers {
			assert.Equal(t, 1, count(drain(p), protocol.MsgTurnFinished))
		}
	}
	assert.Equal(t, uint64(2), h.Status().Turn)
	assert.Len(t, h.Status().Waiting, 3)
}

func TestDuplicateTurnEndedDoesNotAdvance(t *testing.T) {
	h := testHub(t, Config{})
	a := connect(t, h, "a")
	connect(t, h, "b")

	send(h, a, protocol.MsgTurnEnded, protocol.TurnEnded{})
	send(h, a, protocol.MsgTurnEnded, protocol.TurnEnded{})
	h.checkGate(false)
	assert.Zero(t, h.ws.Turn)
}

func TestDisconnectReleasesGate(t *testing.T) {
	h := testHub(t, Config{})
	a := connect(t, h, "a")
	b := connect(t, h, "b")

	send(h, a, protocol.MsgTurnEnded, protocol.TurnEnded{})
	h.checkGate(false)
	require.Zero(t, h.ws.Turn)

	h.leave(b)
	h.checkGate(false)
	assert.Equal(t, uint64(1), h.ws.Turn)
	assert.True(t, h.ws.HasPlayer(b.PlayerID), "player outlives its connection")
}

func TestTurnTimeoutAndForce(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := testHub(t, Config{TurnTimeout: time.Minute})
	h.now = func() time.Time { return clock }
	a := connect(t, h, "a")
	connect(t, h, "b")

	h.checkGate(false)
	clock = clock.Add(time.Hour)
	h.checkGate(false)
	assert.Zero(t, h.ws.Turn, "an untouched round never times out")

	send(h, a, protocol.MsgTurnEnded, protocol.TurnEnded{})
	clock = clock.Add(30 * time.Second)
	h.checkGate(false)
	assert.Zero(t, h.ws.Turn)
	clock = clock.Add(31 * time.Second)
	h.checkGate(false)
	assert.Equal(t, uint64(1), h.ws.Turn)

	h.checkGate(true)
	assert.Equal(t, uint64(2), h.ws.Turn)

	h.SetTurnTimeout(0)
	send(h, a, protocol.MsgTurnEnded, protocol.TurnEnded{})
	clock = clock.Add(24 * time.Hour)
	h.checkGate(false)
	assert.Equal(t, uint64(2), h.ws.Turn)
}

func TestCityLockRejectsForeignEdits(t *testing.T) {
	h := testHub(t, Config{})
	a := connect(t, h, "a")
	b := connect(t, h, "b")
	assert.Equal(t, []string{protocol.MsgPlayerJoined, protocol.MsgTurnStatus}, types(drain(a)))

	send(h, a, protocol.MsgCityViewing, protocol.CityViewing{CityID: "Amberfield"})
	assert.Equal(t, 1, count(drain(b), protocol.MsgCityViewing))
	assert.Empty(t, drain(a), "the viewer is not echoed")

	edit := h.ws.Cities[0].Clone()
	edit.Market[economy.Food] = 99
	send(h, b, protocol.MsgCityUpdated, protocol.CityUpdated{UpdatedCity: edit})
	assert.Equal(t, "city_locked", lastError(t, drain(b)).Code)
	assert.Zero(t, h.ws.Cities[0].Market[economy.Food])

	send(h, b, protocol.MsgCityViewing, protocol.CityViewing{CityID: "Amberfield"})
	assert.Equal(t, "city_locked", lastError(t, drain(b)).Code)

	send(h, a, protocol.MsgCityUpdated, protocol.CityUpdated{UpdatedCity: edit})
	assert.Equal(t, int64(99), h.ws.Cities[0].Market[economy.Food])
	assert.Equal(t, 1, count(drain(b), protocol.MsgCityUpdated))
	assert.Empty(t, drain(a))

	h.leave(a)
	assert.Equal(t, 1, count(drain(b), protocol.MsgNotCityViewing))
	edit.Market[economy.Food] = 7
	send(h, b, protocol.MsgCityUpdated, protocol.CityUpdated{UpdatedCity: edit})
	assert.Equal(t, int64(7), h.ws.Cities[0].Market[economy.Food])
}

func TestCityUpdateRejectsUnknownBuilding(t *testing.T) {
	h := testHub(t, Config{})
	a := connect(t, h, "a")

	edit := h.ws.Cities[1].Clone()
	edit.Buildings[0] = []economy.Slot{{Building: "Sky Harbour"}}
	send(h, a, protocol.MsgCityUpdated, protocol.CityUpdated{UpdatedCity: edit})
	assert.Equal(t, "unknown_building", lastError(t, drain(a)).Code)
	assert.Empty(t, h.ws.Cities[1].Buildings[0])
}

func TestCaravanLifecycle(t *testing.T) {
	h := testHub(t, Config{})
	a := connect(t, h, "a")
	b := connect(t, h, "b")

	send(h, a, protocol.MsgCaravanRequest, protocol.CaravanRequest{Caravan: &caravan.Caravan{
		Owner:    b.PlayerID,
		Position: "Amberfield",
		Orders:   []caravan.Order{{Goal: "Brightwater"}},
	}})
	got := drain(b)
	require.Equal(t, 1, count(got, protocol.MsgCaravanCreated))
	var created protocol.CaravanCreated
	require.NoError(t, got[0].Decode(&created))
	assert.Equal(t, a.PlayerID, created.PlayerID, "the requester owns the caravan")
	assert.Equal(t, created.CaravanID, created.Caravan.ID)
	drain(a)

	send(h, b, protocol.MsgCaravanUpdated, protocol.CaravanUpdated{CaravanID: created.CaravanID, Caravan: &caravan.Caravan{}})
	assert.Equal(t, "not_owner", lastError(t, drain(b)).Code)

	send(h, a, protocol.MsgCaravanUpdated, protocol.CaravanUpdated{
		CaravanID: created.CaravanID,
		Caravan:   &caravan.Caravan{Orders: []caravan.Order{{Goal: "Amberfield"}, {Goal: "Brightwater"}}},
	})
	assert.Equal(t, 1, count(drain(b), protocol.MsgCaravanUpdated))
	assert.Len(t, h.ws.Caravans[created.CaravanID].Orders, 2)

	send(h, b, protocol.MsgCaravanRemove, protocol.CaravanRemove{CaravanID: created.CaravanID})
	assert.Equal(t, "not_owner", lastError(t, drain(b)).Code)

	send(h, a, protocol.MsgCaravanRemove, protocol.CaravanRemove{CaravanID: created.CaravanID})
	assert.Equal(t, 1, count(drain(b), protocol.MsgCaravanRemoved))
	assert.Empty(t, h.ws.Caravans)
}

func TestReconnectKeepsPlayer(t *testing.T) {
	h := testHub(t, Config{StartingMoney: 40})
	a := connect(t, h, "a")
	connect(t, h, "b")
	send(h, a, protocol.MsgTurnEnded, protocol.TurnEnded{})
	h.leave(a)

	again := newPeer(h, nil, a.PlayerID, "")
	h.join(again)
	got := drain(again)
	require.GreaterOrEqual(t, len(got), 4)
	assert.Equal(t, protocol.MsgTurnFinished, got[3].Type)
	assert.Equal(t, a.PlayerID, again.PlayerID)
	assert.Equal(t, "a", again.Name)
	assert.Len(t, h.ws.Players, 2)
	assert.Equal(t, []economy.PlayerID{a.PlayerID}, h.gate.Ended(), "flag survives a reconnect")
}

func TestWorldReadyDigestMismatch(t *testing.T) {
	h := testHub(t, Config{})
	h.ws.GenesisDigest = h.ws.Digest()
	a := connect(t, h, "a")

	send(h, a, protocol.MsgWorldReady, protocol.WorldReady{Digest: h.ws.GenesisDigest})
	assert.Empty(t, drain(a))

	send(h, a, protocol.MsgWorldReady, protocol.WorldReady{Digest: "00"})
	assert.Equal(t, "desync", lastError(t, drain(a)).Code)
}

func TestUnknownMessageType(t *testing.T) {
	h := testHub(t, Config{})
	a := connect(t, h, "a")
	h.handleMessage(Incoming{Peer: a, Envelope: protocol.Envelope{Type: "teleport"}})
	assert.Equal(t, "bad_payload", lastError(t, drain(a)).Code)
}

func TestLocalPlayerDrivesSinglePlayer(t *testing.T) {
	h := testHub(t, Config{LocalPlayer: "host", StartingMoney: 10})
	id, ok := h.LocalPlayer()
	require.True(t, ok)

	var results []TurnResult
	h.OnTurn = func(r TurnResult) { results = append(results, r) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.NoError(t, h.EndLocalTurn())
	require.Eventually(t, func() bool {
		h.Poll()
		var turn uint64
		h.View(func(ws *engine.WorldState) { turn = ws.Turn })
		return turn == 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].Report.Turn)
	assert.Equal(t, 10.0, results[0].Snapshot.Economy[id])
	assert.NotEmpty(t, results[0].Digest)
	require.ErrorIs(t, h.EndLocalTurn(), errx.ErrNotStarted)
}
