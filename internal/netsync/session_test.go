package netsync

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/tradewinds/internal/caravan"
	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/engine"
	"github.com/talgya/tradewinds/internal/protocol"
	"github.com/talgya/tradewinds/internal/world"
)

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base   string
		name   string
		rejoin economy.PlayerID
		want   string
	}{
		{"http://localhost:8080", "ann", 0, "ws://localhost:8080/ws?name=ann"},
		{"https://trade.example/ws", "", 4, "wss://trade.example/ws?player=4"},
		{"ws://10.0.0.2:9000/", "b b", 2, "ws://10.0.0.2:9000/ws?name=b+b&player=2"},
	}
	for _, tt := range tests {
		got, err := JoinURL(tt.base, tt.name, tt.rejoin)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestReplicaRequiresMapFirst(t *testing.T) {
	r := NewReplica()
	_, err := r.Apply(protocol.MustEnvelope(protocol.MsgTurnFinished, protocol.TurnFinished{}))
	require.Error(t, err)

	_, err = r.Apply(protocol.MustEnvelope(protocol.MsgCityViewing, protocol.CityViewing{PlayerID: 3, CityID: "x"}))
	require.NoError(t, err)
	assert.Equal(t, economy.PlayerID(3), r.Viewing["x"])
	_, err = r.Apply(protocol.MustEnvelope(protocol.MsgNotCityViewing, protocol.CityViewing{PlayerID: 3, CityID: "x"}))
	require.NoError(t, err)
	assert.Empty(t, r.Viewing)

	_, err = r.Apply(protocol.MustEnvelope(protocol.MsgTurnStatus, protocol.TurnStatus{Turn: 2, Ended: []economy.PlayerID{0}, Waiting: []economy.PlayerID{5}}))
	require.NoError(t, err)
	assert.True(t, r.Waiting())
}

// TestClientReplicaTracksHost runs a host hub behind a real websocket
// server and a client session against it.
func TestClientReplicaTracksHost(t *testing.T) {
	names := world.GenerateCityNames(rand.New(rand.NewSource(3)), world.DefaultNameCounts())
	ws, err := engine.NewWorldState(11, names, 10)
	require.NoError(t, err)
	h := NewHub(ws, Config{Rules: engine.DefaultRules(), StartingMoney: 500})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	wsURL, err := JoinURL(srv.URL, "bot", 0)
	require.NoError(t, err)
	s, err := Dial(ctx, wsURL)
	require.NoError(t, err)
	defer s.Close()

	finished := make(chan uint64, 16)
	s.OnMessage = func(s *Session, env protocol.Envelope) {
		if env.Type == protocol.MsgTurnFinished {
			var m protocol.TurnFinished
			if env.Decode(&m) == nil {
				finished <- m.Turn
			}
		}
	}
	go s.Run(ctx)

	require.Equal(t, uint64(0), waitTurn(t, finished), "join resends the current state")

	var home, away string
	s.View(func(r *Replica) {
		require.NotNil(t, r.World)
		assert.True(t, r.Started)
		assert.Equal(t, ws.GenesisDigest, r.World.GenesisDigest)
		home, away = r.World.Cities[0].ID, r.World.Cities[1].ID
	})
	require.NoError(t, s.RequestCaravan(&caravan.Caravan{
		Position: home,
		Orders:   []caravan.Order{{Goal: away}, {Goal: home}},
	}))
	require.Eventually(t, func() bool {
		n := 0
		s.View(func(r *Replica) { n = len(r.World.Caravans) })
		return n == 1
	}, 5*time.Second, 5*time.Millisecond)

	for turn := uint64(1); turn <= 3; turn++ {
		require.NoError(t, s.EndTurn())
		require.Eventually(t, func() bool {
			h.Poll()
			return h.Status().Turn == turn
		}, 5*time.Second, 5*time.Millisecond)
		require.Equal(t, turn, waitTurn(t, finished))
	}

	var hostDigest string
	var hostMoney float64
	h.View(func(w *engine.WorldState) {
		hostDigest = w.Digest()
		hostMoney = w.Players[s.PlayerID()].Money
	})
	s.View(func(r *Replica) {
		assert.Equal(t, hostDigest, r.World.Digest())
		assert.Equal(t, hostMoney, r.Money())
		assert.Equal(t, uint64(3), r.World.Turn)
	})
}

func waitTurn(t *testing.T, ch <-chan uint64) uint64 {
	t.Helper()
	select {
	case turn := <-ch:
		return turn
	case <-time.After(5 * time.Second):
		t.Fatal("no turn_finished from host")
		return 0
	}
}
