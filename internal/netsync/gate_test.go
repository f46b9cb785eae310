package netsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/errx"
)

func TestGateNeedsEveryConnectedPlayer(t *testing.T) {
	g := NewTurnGate()
	now := time.Now()
	assert.False(t, g.Ready(), "an empty session never advances")

	g.Connect(1)
	g.Connect(2)
	assert.False(t, g.End(9, now), "strangers cannot end the turn")
	assert.True(t, g.End(1, now))
	assert.False(t, g.Ready())
	assert.Equal(t, []economy.PlayerID{2}, g.Waiting())

	g.End(2, now)
	assert.True(t, g.Ready())
	g.Reset()
	assert.False(t, g.Ready())
	assert.Equal(t, []economy.PlayerID{1, 2}, g.Waiting())
	assert.Empty(t, g.Ended())
}

func TestGateCountsConnections(t *testing.T) {
	g := NewTurnGate()
	g.Connect(1)
	g.Connect(1)
	g.Connect(2)
	g.End(2, time.Now())

	g.Disconnect(1)
	assert.False(t, g.Ready(), "player 1 still has a connection")
	g.Disconnect(1)
	assert.True(t, g.Ready())
}

func TestGateOverdue(t *testing.T) {
	g := NewTurnGate()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.Connect(1)
	g.Connect(2)
	assert.False(t, g.Overdue(time.Second, start.Add(time.Hour)))

	g.End(1, start)
	g.End(1, start.Add(10*time.Second))
	assert.False(t, g.Overdue(time.Minute, start.Add(59*time.Second)))
	assert.True(t, g.Overdue(time.Minute, start.Add(time.Minute)), "measured from the first flag")
	assert.False(t, g.Overdue(0, start.Add(time.Hour)))
}

func TestCityLocks(t *testing.T) {
	l := NewCityLocks()
	assert.True(t, l.View("Ironhold", 1))
	assert.True(t, l.View("Ironhold", 1), "re-viewing is idempotent")
	assert.False(t, l.View("Ironhold", 2))
	assert.NoError(t, l.CanEdit("Ironhold", 1))
	assert.ErrorIs(t, l.CanEdit("Ironhold", 2), errx.ErrCityLocked)
	assert.NoError(t, l.CanEdit("Greenhollow", 2))

	assert.False(t, l.Leave("Ironhold", 2))
	l.View("Greenhollow", 1)
	assert.Equal(t, []string{"Greenhollow", "Ironhold"}, l.ReleaseAll(1))
	_, held := l.Holder("Ironhold")
	assert.False(t, held)
	assert.True(t, l.View("Ironhold", 2))
}
