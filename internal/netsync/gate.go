// Package netsync keeps a host-authoritative session consistent: the host
// hub aggregates turn-end signals, serialises city and caravan edits and
// rebroadcasts state; the client session keeps a replica in step.
package netsync

import (
	"slices"
	"time"

	"github.com/talgya/tradewinds/internal/economy"
)

// TurnGate tracks which connected players have ended the current turn.
type TurnGate struct {
	connected map[economy.PlayerID]int // open connections per player
	ended     map[economy.PlayerID]bool
	firstEnd  time.Time // when the first flag of this round was raised
}

// NewTurnGate returns an empty gate.
func NewTurnGate() *TurnGate {
	return &TurnGate{
		connected: make(map[economy.PlayerID]int),
		ended:     make(map[economy.PlayerID]bool),
	}
}

// Connect counts a connection for id.
func (g *TurnGate) Connect(id economy.PlayerID) {
	g.connected[id]++
}

// Disconnect drops one connection for id. A player with no connection left
// no longer holds the gate, but a raised flag stays raised for reconnects.
func (g *TurnGate) Disconnect(id economy.PlayerID) {
	if g.connected[id] <= 1 {
		delete(g.connected, id)
		return
	}
	g.connected[id]--
}

// End raises id's flag. Flags from players that are not connected are ignored.
func (g *TurnGate) End(id economy.PlayerID, now time.Time) bool {
	if _, ok := g.connected[id]; !ok {
		return false
	}
	if !g.anyEnded() {
		g.firstEnd = now
	}
	g.ended[id] = true
	return true
}

// Ready reports whether there is at least one connected player and every
// connected player carries the flag.
func (g *TurnGate) Ready() bool {
	if len(g.connected) == 0 {
		return false
	}
	for id := range g.connected {
		if !g.ended[id] {
			return false
		}
	}
	return true
}

// Overdue reports whether timeout has passed since the first flag of the
// round. A zero timeout never expires, and a round nobody ended never does.
func (g *TurnGate) Overdue(timeout time.Duration, now time.Time) bool {
	if timeout <= 0 || !g.anyEnded() {
		return false
	}
	return now.Sub(g.firstEnd) >= timeout
}

// Reset clears every flag.
func (g *TurnGate) Reset() {
	clear(g.ended)
	g.firstEnd = time.Time{}
}

// Ended returns the connected players whose flag is raised, ascending.
func (g *TurnGate) Ended() []economy.PlayerID {
	return g.collect(true)
}

// Waiting returns the connected players the gate is waiting on, ascending.
func (g *TurnGate) Waiting() []economy.PlayerID {
	return g.collect(false)
}

func (g *TurnGate) collect(ended bool) []economy.PlayerID {
	out := []economy.PlayerID{}
	for id := range g.connected {
		if g.ended[id] == ended {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (g *TurnGate) anyEnded() bool {
	for _, v := range g.ended {
		if v {
			return true
		}
	}
	return false
}
