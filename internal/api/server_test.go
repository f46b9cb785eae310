package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/engine"
	"github.com/talgya/tradewinds/internal/netsync"
	"github.com/talgya/tradewinds/internal/persistence"
	"github.com/talgya/tradewinds/internal/world"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testServer(t *testing.T) *Server {
	t.Helper()
	g := world.NewGraph()
	g.AddNode(world.Vec2{})
	g.AddNode(world.Vec2{X: 30, Y: 40})
	g.AddNode(world.Vec2{X: 30, Y: 100})
	g.AddEdge(0, 1)
	g.AddEdge(1, 2)
	mk := func(id string) *economy.City {
		return &economy.City{ID: id, Race: economy.Elven, Population: 1, Market: economy.NewStock()}
	}
	ws := engine.Assemble(g, []*economy.City{mk("Dawnlight"), mk("Skyspire"), mk("Moonwell")}, economy.DefaultTable())
	ws.Cities[0].Market[economy.Food] = 40

	hub := netsync.NewHub(ws, netsync.Config{Rules: engine.DefaultRules(), LocalPlayer: "host", StartingMoney: 1234.5})
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Server{Hub: hub, DB: db, AdminKey: "secret", PlayerKey: "player-pass", PublicURL: "http://trade.example:8080"}
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealthz(t *testing.T) {
	w := get(t, testServer(t), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatusAndPlayers(t *testing.T) {
	s := testServer(t)

	var status map[string]any
	w := get(t, s, "/api/v1/status")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &status)
	assert.EqualValues(t, 3, status["cities"])
	assert.EqualValues(t, 2, status["routes"])
	assert.Equal(t, "1,234.5", status["total_money_display"])
	assert.EqualValues(t, 1, status["local_player"])

	var players []map[string]any
	decode(t, get(t, s, "/api/v1/players"), &players)
	require.Len(t, players, 1)
	assert.Equal(t, "host", players[0]["name"])
	assert.Equal(t, "1,234.5", players[0]["money_display"])
}

func TestCityEndpoints(t *testing.T) {
	s := testServer(t)

	var cities []citySummary
	decode(t, get(t, s, "/api/v1/cities"), &cities)
	require.Len(t, cities, 3)
	assert.Equal(t, []string{"Dawnlight", "Moonwell"}, cities[1].Routes)

	var detail struct {
		City   economy.City `json:"city"`
		Prices []priceLine  `json:"prices"`
	}
	decode(t, get(t, s, "/api/v1/cities/Dawnlight"), &detail)
	assert.Equal(t, int64(40), detail.City.Market[economy.Food])
	require.Len(t, detail.Prices, economy.NumResources)
	assert.True(t, detail.Prices[economy.Food].Available)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/cities/Atlantis").Code)
}

func TestQuote(t *testing.T) {
	s := testServer(t)

	var q map[string]any
	w := get(t, s, "/api/v1/cities/Dawnlight/quote?resource=Food&qty=10")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &q)
	assert.Greater(t, q["buy"].(float64), q["sell"].(float64))

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/cities/Dawnlight/quote?resource=Mithril").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/cities/Dawnlight/quote?resource=Food&qty=0").Code)
}

func TestQuoteBoundsQuantity(t *testing.T) {
	s := testServer(t)

	var q map[string]any
	w := get(t, s, "/api/v1/cities/Dawnlight/quote?resource=Food&qty=10000")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &q)
	want := (&economy.City{Market: economy.Stock{economy.Food: 40}}).BulkBuyPrice(economy.Food, maxQuoteQty)
	assert.InDelta(t, want, q["buy"].(float64), 1e-6)
	assert.EqualValues(t, 40, q["stock"])

	for _, qty := range []string{"10001", "4294967295", "99999999999999999999"} {
		w := get(t, s, "/api/v1/cities/Dawnlight/quote?resource=Food&qty="+qty)
		assert.Equal(t, http.StatusBadRequest, w.Code, qty)
		assert.Contains(t, w.Body.String(), "qty", qty)
	}
}

func TestPath(t *testing.T) {
	s := testServer(t)

	var p struct {
		Cost float64  `json:"cost"`
		Hops int      `json:"hops"`
		Path []string `json:"path"`
	}
	decode(t, get(t, s, "/api/v1/path?from=Dawnlight&to=Moonwell"), &p)
	assert.InDelta(t, 110, p.Cost, 1e-9)
	assert.Equal(t, 2, p.Hops)
	assert.Equal(t, []string{"Dawnlight", "Skyspire", "Moonwell"}, p.Path)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/path?from=Dawnlight&to=Nowhere").Code)

	s.Hub.View(func(ws *engine.WorldState) { ws.Graph.RemoveEdge(ws.Graph.EdgeIndex(1, 2)) })
	assert.Equal(t, http.StatusUnprocessableEntity, get(t, s, "/api/v1/path?from=Dawnlight&to=Moonwell").Code)
}

func TestJournalEndpoints(t *testing.T) {
	s := testServer(t)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/turns/1").Code)

	var snap engine.Snapshot
	s.Hub.View(func(ws *engine.WorldState) {
		_, err := ws.RunTurn(engine.DefaultRules())
		require.NoError(t, err)
		snap = ws.Snapshot()
	})
	require.NoError(t, s.DB.RecordTurn(persistence.TurnRecord{
		Report:   engine.TurnReport{Turn: 1},
		Snapshot: snap,
		Digest:   "abc",
	}))

	var turn struct {
		Digest   string          `json:"digest"`
		Snapshot engine.Snapshot `json:"snapshot"`
	}
	decode(t, get(t, s, "/api/v1/turns/1"), &turn)
	assert.Equal(t, "abc", turn.Digest)
	assert.Equal(t, uint64(1), turn.Snapshot.Turn)

	var hist struct {
		History []persistence.MoneyPoint `json:"history"`
	}
	decode(t, get(t, s, "/api/v1/players/1/history"), &hist)
	assert.Equal(t, []persistence.MoneyPoint{{Turn: 1, Money: 1234.5}}, hist.History)

	s.DB = nil
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/api/v1/turns/1").Code)
}

func post(t *testing.T, s *Server, path, auth string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w.Code
}

func TestAdminEndTurnNeedsToken(t *testing.T) {
	s := testServer(t)
	assert.Equal(t, http.StatusUnauthorized, post(t, s, "/api/v1/admin/end-turn", ""))
	assert.Equal(t, http.StatusUnauthorized, post(t, s, "/api/v1/admin/end-turn", "Bearer nope"))
	assert.Equal(t, http.StatusUnauthorized, post(t, s, "/api/v1/admin/end-turn", "Bearer player-pass"))
	assert.Equal(t, http.StatusAccepted, post(t, s, "/api/v1/admin/end-turn", "Bearer secret"))

	s2 := testServer(t)
	s2.AdminKey = ""
	assert.Equal(t, http.StatusForbidden, post(t, s2, "/api/v1/admin/end-turn", "Bearer secret"))
}

func TestLocalEndTurnNeedsPlayerKey(t *testing.T) {
	s := testServer(t)
	assert.Equal(t, http.StatusUnauthorized, post(t, s, "/api/v1/turn/end", ""))
	assert.Equal(t, http.StatusUnauthorized, post(t, s, "/api/v1/turn/end", "Bearer secret"))
	assert.Equal(t, http.StatusAccepted, post(t, s, "/api/v1/turn/end", "Bearer player-pass"))

	s2 := testServer(t)
	s2.PlayerKey = ""
	assert.Equal(t, http.StatusForbidden, post(t, s2, "/api/v1/turn/end", "Bearer player-pass"))
}

func TestJoinQR(t *testing.T) {
	w := get(t, testServer(t), "/api/v1/join.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "ws://trade.example:8080/ws", w.Header().Get("X-Join-URL"))
	assert.Equal(t, []byte("\x89PNG"), w.Body.Bytes()[:4])
}

func TestCORSPreflight(t *testing.T) {
	s := testServer(t)
	s.CORSOrigins = []string{"https://trade.example"}
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://trade.example")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://trade.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	ok, _ := rl.Allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok)
	ok, wait := rl.Allow("1.2.3.4")
	assert.False(t, ok)
	assert.InDelta(t, time.Second.Seconds(), wait.Seconds(), 0.01)
	ok, _ = rl.Allow("5.6.7.8")
	assert.True(t, ok, "buckets are per IP")

	now = now.Add(time.Second)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok)

	now = now.Add(time.Hour)
	assert.Equal(t, 2, rl.Cleanup(time.Minute))
}

func TestRateLimitMiddleware(t *testing.T) {
	s := testServer(t)
	s.Limiter = NewRateLimiter(0.001, 1)
	assert.Equal(t, http.StatusOK, get(t, s, "/api/v1/status").Code)
	w := get(t, s, "/api/v1/status")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, get(t, s, "/healthz").Code, "health checks are not limited")
}
