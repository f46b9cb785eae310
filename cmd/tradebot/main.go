// Command tradebot is a headless player. It joins a host, checks that its
// regenerated world matches, runs one shuttle caravan on the most
// profitable neighbouring pair and ends its turn after every resolved turn.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/logging"
	"github.com/talgya/tradewinds/internal/netsync"
	"github.com/talgya/tradewinds/internal/protocol"
)

func main() {
	host := flag.String("host", "http://localhost:8420", "host base URL")
	name := flag.String("name", "tradebot", "player name")
	rejoin := flag.Uint("player", 0, "rejoin as this player id")
	lot := flag.Int64("lot", 10, "units moved per round trip")
	level := flag.String("log", "info", "log level")
	flag.Parse()

	closer := logging.Setup(logging.Config{Level: *level})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := waitForHost(ctx, *host); err != nil {
		slog.Error("host unavailable", "error", err)
		os.Exit(1)
	}

	wsURL, err := netsync.JoinURL(*host, *name, economy.PlayerID(*rejoin))
	if err != nil {
		slog.Error("bad host url", "error", err)
		os.Exit(1)
	}
	sess, err := netsync.Dial(ctx, wsURL)
	if err != nil {
		slog.Error("join failed", "error", err)
		os.Exit(1)
	}
	defer sess.Close()

	b := &bot{lot: *lot}
	sess.OnMessage = b.handle

	slog.Info("tradebot joined", "url", wsURL)
	if err := sess.Run(ctx); err != nil {
		slog.Error("session ended", "error", err)
		os.Exit(1)
	}
	fmt.Println("tradebot stopped.")
}

type bot struct {
	lot       int64
	requested bool
}

func (b *bot) handle(s *netsync.Session, env protocol.Envelope) {
	switch env.Type {
	case protocol.MsgTurnFinished:
		b.planOnce(s)

		var over bool
		var money float64
		var turn uint64
		s.View(func(r *netsync.Replica) {
			over, money, turn = r.GameOver, r.Money(), r.World.Turn
		})
		if over {
			return
		}
		slog.Info("turn resolved", "turn", turn, "money", humanize.Commaf(money))
		if err := s.EndTurn(); err != nil {
			slog.Error("end turn failed", "error", err)
		}

	case protocol.MsgCaravanCreated:
		var m protocol.CaravanCreated
		if err := env.Decode(&m); err == nil && m.PlayerID == s.PlayerID() {
			slog.Info("caravan on the road", "caravan", m.CaravanID)
		}

	case protocol.MsgGameEnd:
		var m protocol.GameEnd
		if err := env.Decode(&m); err == nil && m.PlayerID == s.PlayerID() {
			slog.Warn("bankrupt, no more turns", "money", humanize.Commaf(m.Money))
		}

	case protocol.MsgError:
		var m protocol.ErrorMsg
		if err := env.Decode(&m); err == nil && m.Code == "desync" {
			slog.Error("world differs from host", "message", m.Message)
		}
	}
}

// planOnce requests the shuttle caravan the first time the bot sees a
// snapshot. The join bootstrap always ends with one.
func (b *bot) planOnce(s *netsync.Session) {
	if b.requested {
		return
	}
	b.requested = true

	var r route
	var ok, owned bool
	id := s.PlayerID()
	s.View(func(rep *netsync.Replica) {
		for _, c := range rep.World.Caravans {
			if c.Owner == id {
				owned = true
			}
		}
		r, ok = bestRoute(rep.World)
	})
	if owned {
		return
	}
	if !ok {
		slog.Info("no profitable route yet")
		b.requested = false
		return
	}
	slog.Info("requesting caravan", "from", r.From, "to", r.To, "resource", r.Resource, "margin", fmt.Sprintf("%.2f", r.Margin))
	if err := s.RequestCaravan(r.shuttle(id, b.lot)); err != nil {
		slog.Error("caravan request failed", "error", err)
	}
}

// waitForHost polls /healthz with exponential backoff for up to five minutes.
func waitForHost(ctx context.Context, base string) error {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)
	client := &http.Client{Timeout: 5 * time.Second}

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return errors.New("host did not become ready within 5 minutes")
		}
		slog.Info("host not ready, retrying...", "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
