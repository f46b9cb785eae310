// Package api provides the HTTP API for observing a session.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token: the admin key for /admin routes,
// the player key for acting as the host's local player.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/talgya/tradewinds/internal/caravan"
	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/engine"
	"github.com/talgya/tradewinds/internal/errx"
	"github.com/talgya/tradewinds/internal/netsync"
	"github.com/talgya/tradewinds/internal/persistence"
	"github.com/talgya/tradewinds/internal/world"
)

// Server serves the session over HTTP.
type Server struct {
	Hub         *netsync.Hub
	DB          *persistence.DB // optional; history endpoints answer 503 without it
	Addr        string
	PublicURL   string // base URL encoded in the join QR code; request host when empty
	AdminKey    string // bearer token for admin endpoints; empty disables them
	PlayerKey   string // bearer token acting as the host's local player; empty disables it
	AllowJoin   bool   // expose /ws for remote players
	CORSOrigins []string
	Limiter     *RateLimiter // nil disables rate limiting

	engine *gin.Engine
}

// Handler builds the gin engine on first use.
func (s *Server) Handler() http.Handler {
	if s.engine == nil {
		s.engine = s.routes()
	}
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(), corsMiddleware(s.CORSOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.AllowJoin {
		r.GET("/ws", gin.WrapF(s.Hub.ServeWS))
	}

	v1 := r.Group("/api/v1")
	if s.Limiter != nil {
		v1.Use(s.Limiter.Middleware())
	}
	v1.GET("/status", s.handleStatus)
	v1.GET("/cities", s.handleCities)
	v1.GET("/cities/:id", s.handleCity)
	v1.GET("/cities/:id/quote", s.handleQuote)
	v1.GET("/caravans", s.handleCaravans)
	v1.GET("/players", s.handlePlayers)
	v1.GET("/players/:id/history", s.handleMoneyHistory)
	v1.GET("/path", s.handlePath)
	v1.GET("/events", s.handleEvents)
	v1.GET("/turns/:n", s.handleTurn)
	v1.GET("/join.png", s.handleJoinQR)
	v1.POST("/turn/end", requireToken(s.PlayerKey, "server.player_key"), s.handleEndTurn)
	v1.POST("/admin/end-turn", requireToken(s.AdminKey, "server.admin_key"), s.handleForceEndTurn)

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "", "join", s.AllowJoin)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	st := s.Hub.Status()
	status := gin.H{
		"name":    "Tradewinds",
		"turn":    st.Turn,
		"ended":   st.Ended,
		"waiting": st.Waiting,
	}
	s.Hub.View(func(ws *engine.WorldState) {
		total := 0.0
		for _, p := range ws.Players {
			total += p.Money
		}
		status["seed"] = ws.Seed
		status["cities"] = len(ws.Cities)
		status["routes"] = len(ws.Graph.Edges)
		status["caravans"] = len(ws.Caravans)
		status["players"] = len(ws.Players)
		status["total_money"] = total
		status["total_money_display"] = humanize.Commaf(total)
		status["genesis_digest"] = ws.GenesisDigest
		status["generation"] = ws.Stats
	})
	if id, ok := s.Hub.LocalPlayer(); ok {
		status["local_player"] = id
	}
	c.JSON(http.StatusOK, status)
}

type citySummary struct {
	ID            string       `json:"id"`
	Race          economy.Race `json:"race"`
	Population    uint8        `json:"population"`
	TierUpCounter uint8        `json:"tier_up_counter"`
	X             float64      `json:"x"`
	Y             float64      `json:"y"`
	Routes        []string     `json:"routes"`
}

func (s *Server) handleCities(c *gin.Context) {
	var out []citySummary
	s.Hub.View(func(ws *engine.WorldState) {
		out = make([]citySummary, len(ws.Cities))
		for i, city := range ws.Cities {
			pos := ws.Graph.Nodes[i].Pos
			sum := citySummary{
				ID:            city.ID,
				Race:          city.Race,
				Population:    city.Population,
				TierUpCounter: city.TierUpCounter,
				X:             pos.X,
				Y:             pos.Y,
			}
			for _, n := range ws.Graph.Neighbors(i) {
				sum.Routes = append(sum.Routes, ws.Cities[n].ID)
			}
			sort.Strings(sum.Routes)
			out[i] = sum
		}
	})
	c.JSON(http.StatusOK, out)
}

type priceLine struct {
	Resource  economy.Resource `json:"resource"`
	Stock     int64            `json:"stock"`
	UnitValue float64          `json:"unit_value"`
	Available bool             `json:"available"`
}

func (s *Server) handleCity(c *gin.Context) {
	var (
		city   *economy.City
		prices []priceLine
		err    error
	)
	s.Hub.View(func(ws *engine.WorldState) {
		var live *economy.City
		live, err = ws.City(c.Param("id"))
		if err != nil {
			return
		}
		var avail economy.ResourceSet
		avail, err = live.AvailableCommodities(ws.Table)
		if err != nil {
			return
		}
		city = live.Clone()
		for _, res := range economy.AllResources() {
			prices = append(prices, priceLine{
				Resource:  res,
				Stock:     live.Market[res],
				UnitValue: live.UnitValue(res),
				Available: avail.Has(res),
			})
		}
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"city": city, "prices": prices})
}

// maxQuoteQty bounds the per-unit walk a bulk quote performs.
const maxQuoteQty = 10000

func (s *Server) handleQuote(c *gin.Context) {
	res, err := economy.ParseResource(c.Query("resource"))
	if err != nil {
		fail(c, errx.ErrBadPayload.With("resource", c.Query("resource")))
		return
	}
	qty, err := strconv.ParseUint(c.DefaultQuery("qty", "1"), 10, 64)
	if err != nil || qty == 0 || qty > maxQuoteQty {
		fail(c, errx.ErrBadPayload.With("qty", c.Query("qty")).With("max", maxQuoteQty))
		return
	}

	// Only the one market line is read under the lock; the walk runs on a
	// detached city.
	var market *economy.City
	s.Hub.View(func(ws *engine.WorldState) {
		var city *economy.City
		city, err = ws.City(c.Param("id"))
		if err != nil {
			return
		}
		market = &economy.City{ID: city.ID, Market: economy.Stock{res: city.Market[res]}}
	})
	if err != nil {
		fail(c, err)
		return
	}

	buy := market.BulkBuyPrice(res, qty)
	sell := market.BulkSellPrice(res, qty)
	c.JSON(http.StatusOK, gin.H{
		"resource":     res,
		"qty":          qty,
		"city":         market.ID,
		"stock":        market.Market[res],
		"unit_value":   market.UnitValue(res),
		"buy":          buy,
		"sell":         sell,
		"buy_display":  humanize.Commaf(buy),
		"sell_display": humanize.Commaf(sell),
	})
}

func (s *Server) handleCaravans(c *gin.Context) {
	var owner economy.PlayerID
	if raw := c.Query("owner"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			fail(c, errx.ErrBadPayload.With("owner", raw))
			return
		}
		owner = economy.PlayerID(n)
	}

	out := []*caravan.Caravan{}
	s.Hub.View(func(ws *engine.WorldState) {
		for _, id := range ws.CaravanIDs() {
			cv := ws.Caravans[id]
			if owner == 0 || cv.Owner == owner {
				out = append(out, cv.Clone())
			}
		}
	})
	c.JSON(http.StatusOK, out)
}

type playerSummary struct {
	engine.Player
	MoneyDisplay string `json:"money_display"`
	Caravans     int    `json:"caravans"`
}

func (s *Server) handlePlayers(c *gin.Context) {
	var out []playerSummary
	s.Hub.View(func(ws *engine.WorldState) {
		counts := make(map[economy.PlayerID]int)
		for _, cv := range ws.Caravans {
			counts[cv.Owner]++
		}
		for _, id := range ws.PlayerIDs() {
			p := ws.Players[id]
			out = append(out, playerSummary{Player: *p, MoneyDisplay: humanize.Commaf(p.Money), Caravans: counts[id]})
		}
	})
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleMoneyHistory(c *gin.Context) {
	if s.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, errx.ErrBadPayload.With("player", c.Param("id")))
		return
	}
	points, err := s.DB.MoneyHistory(economy.PlayerID(id), queryLimit(c, 100, 1000))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"player": id, "history": points})
}

func (s *Server) handlePath(c *gin.Context) {
	var (
		cost  float64
		route []string
		err   error
	)
	s.Hub.View(func(ws *engine.WorldState) {
		from, ok := ws.CityIndex(c.Query("from"))
		if !ok {
			err = errx.ErrUnknownCity.With("city", c.Query("from"))
			return
		}
		to, ok := ws.CityIndex(c.Query("to"))
		if !ok {
			err = errx.ErrUnknownCity.With("city", c.Query("to"))
			return
		}
		var nodes []int
		cost, nodes, err = world.ShortestPath(ws.Graph, from, to)
		for _, n := range nodes {
			route = append(route, ws.Cities[n].ID)
		}
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cost": cost, "hops": len(route) - 1, "path": route})
}

func (s *Server) handleEvents(c *gin.Context) {
	limit := queryLimit(c, 50, 500)
	category := c.Query("category")

	var events []engine.Event
	s.Hub.View(func(ws *engine.WorldState) {
		events = ws.RecentEvents(0)
	})
	if category != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	if events == nil {
		events = []engine.Event{}
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) handleTurn(c *gin.Context) {
	if s.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}
	n, err := strconv.ParseUint(c.Param("n"), 10, 64)
	if err != nil {
		fail(c, errx.ErrBadPayload.With("turn", c.Param("n")))
		return
	}
	snap, digest, err := s.DB.LoadTurn(n)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"turn": n, "digest": digest, "snapshot": snap})
}

// handleJoinQR renders the websocket join address as a QR code.
func (s *Server) handleJoinQR(c *gin.Context) {
	base := s.PublicURL
	if base == "" {
		base = (&url.URL{Scheme: "http", Host: c.Request.Host}).String()
	}
	join, err := netsync.JoinURL(base, "", 0)
	if err != nil {
		fail(c, errx.ErrBadPayload.Wrap(err))
		return
	}
	png, err := qrcode.Encode(join, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "QR generation failed"})
		return
	}
	c.Header("X-Join-URL", join)
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) handleEndTurn(c *gin.Context) {
	if err := s.Hub.EndLocalTurn(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.Hub.Status())
}

func (s *Server) handleForceEndTurn(c *gin.Context) {
	s.Hub.ForceEndTurn()
	slog.Info("turn end forced via API", "ip", c.ClientIP())
	c.JSON(http.StatusAccepted, gin.H{"status": "forcing turn end"})
}

func queryLimit(c *gin.Context, def, max int) int {
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 && n <= max {
		return n
	}
	return def
}

// fail maps an error onto an HTTP status.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errx.ErrUnknownCity),
		errors.Is(err, errx.ErrUnknownPlayer),
		errors.Is(err, errx.ErrUnknownCaravan),
		errors.Is(err, persistence.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errx.ErrUnreachable):
		status = http.StatusUnprocessableEntity
	case errx.IsRequest(err):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error("api request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
