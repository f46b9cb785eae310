package engine

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/talgya/tradewinds/internal/caravan"
	"github.com/talgya/tradewinds/internal/economy"
)

// Rules are the tunable constants of the turn pipeline.
type Rules struct {
	InterestRate float64 // applied to negative balances each turn
	DebtFloor    float64 // a balance below this ends the game for the player
}

// DefaultRules returns the standard debt rules.
func DefaultRules() Rules {
	return Rules{InterestRate: 1.02, DebtFloor: -10000}
}

// TurnReport summarises one resolved turn.
type TurnReport struct {
	Turn       uint64             `json:"turn"`
	Promotions []string           `json:"promotions,omitempty"`
	Moves      int                `json:"moves"`
	Arrivals   int                `json:"arrivals"`
	GameOver   []economy.PlayerID `json:"game_over,omitempty"`
	Events     []Event            `json:"events,omitempty"`
}

// RunTurn resolves one turn: every city's market update, then every
// caravan's advancement, then debt collection. The pipeline runs on a
// staged copy of the mutable state and is committed only when every step
// succeeds, so a failed turn leaves the world exactly as it was.
func (ws *WorldState) RunTurn(rules Rules) (TurnReport, error) {
	report := TurnReport{Turn: ws.Turn + 1}
	if err := ws.validate(); err != nil {
		slog.Error("turn aborted", "turn", report.Turn, "error", err)
		return report, err
	}

	next := ws.stage()
	if err := next.resolve(rules, &report); err != nil {
		slog.Error("turn aborted", "turn", report.Turn, "error", err)
		return TurnReport{Turn: report.Turn}, err
	}
	ws.commit(next)

	report.Events = ws.eventsSinceTurn(report.Turn)
	ws.logReport(report)
	return report, nil
}

func (ws *WorldState) resolve(rules Rules, report *TurnReport) error {
	ws.Turn++

	for _, c := range ws.Cities {
		res, err := c.UpdateMarket(ws.Table, ws)
		if err != nil {
			return fmt.Errorf("market update %s: %w", c.ID, err)
		}
		if res.Promoted {
			report.Promotions = append(report.Promotions, c.ID)
			ws.record("economy", fmt.Sprintf("%s grew to tier %d", c.ID, c.Population))
		}
	}

	env := caravan.Env{Graph: ws.Graph, Cities: ws, Table: ws.Table, Treasury: ws}
	for _, id := range ws.CaravanIDs() {
		step, err := caravan.Advance(ws.Caravans[id], env)
		if err != nil {
			return fmt.Errorf("caravan %s: %w", id, err)
		}
		if step.Moved() {
			report.Moves++
		}
		if step.Arrived {
			report.Arrivals++
			if len(step.Fills) > 0 {
				ws.record("caravan", fmt.Sprintf("caravan %s traded %d lines at %s", id, len(step.Fills), step.To))
			}
		}
	}

	report.GameOver = ws.collectDebt(rules)
	return nil
}

// stage returns a copy of ws whose cities, caravans, players and event log
// are private. Graph, table and city index are shared; a turn never
// changes them.
func (ws *WorldState) stage() *WorldState {
	next := *ws
	next.Cities = make([]*economy.City, len(ws.Cities))
	for i, c := range ws.Cities {
		next.Cities[i] = c.Clone()
	}
	next.Caravans = make(map[string]*caravan.Caravan, len(ws.Caravans))
	for id, c := range ws.Caravans {
		next.Caravans[id] = c.Clone()
	}
	next.Players = make(map[economy.PlayerID]*Player, len(ws.Players))
	for id, p := range ws.Players {
		cp := *p
		next.Players[id] = &cp
	}
	next.Events = slices.Clone(ws.Events)
	return &next
}

// commit copies a resolved stage back. City and player pointers held by
// ws stay valid.
func (ws *WorldState) commit(next *WorldState) {
	for i, c := range next.Cities {
		ws.Cities[i].Overwrite(c)
	}
	for id, p := range next.Players {
		*ws.Players[id] = *p
	}
	ws.Caravans = next.Caravans
	ws.Events = next.Events
	ws.Turn = next.Turn
}

// collectDebt compounds interest on negative balances and returns the
// players who fell below the floor.
func (ws *WorldState) collectDebt(rules Rules) []economy.PlayerID {
	var out []economy.PlayerID
	for _, id := range ws.PlayerIDs() {
		p := ws.Players[id]
		if p.Money >= 0 {
			continue
		}
		p.Money *= rules.InterestRate
		if p.Money < rules.DebtFloor {
			out = append(out, id)
			ws.record("debt", fmt.Sprintf("%s is bankrupt at %s", p.Name, humanize.Commaf(p.Money)))
		}
	}
	return out
}

func (ws *WorldState) validate() error {
	for _, c := range ws.Cities {
		if err := c.Validate(ws.Table); err != nil {
			return err
		}
	}
	for _, id := range ws.CaravanIDs() {
		if err := ws.Caravans[id].Validate(ws); err != nil {
			return err
		}
	}
	return nil
}

func (ws *WorldState) eventsSinceTurn(turn uint64) []Event {
	var out []Event
	for i := len(ws.Events) - 1; i >= 0 && ws.Events[i].Turn == turn; i-- {
		out = append(out, ws.Events[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (ws *WorldState) logReport(r TurnReport) {
	total := 0.0
	for _, p := range ws.Players {
		total += p.Money
	}
	slog.Info("turn report",
		"turn", r.Turn,
		"cities", len(ws.Cities),
		"caravans", len(ws.Caravans),
		"moves", r.Moves,
		"arrivals", r.Arrivals,
		"promotions", len(r.Promotions),
		"players", len(ws.Players),
		"total_money", humanize.Commaf(total),
		"game_over", len(r.GameOver),
	)
}
