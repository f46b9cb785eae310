// Package engine provides the world state, the turn pipeline and the poll
// loop that drives turn gating.
package engine

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPollInterval is how often the gate is checked when none is configured.
const DefaultPollInterval = 100 * time.Millisecond

// Engine is the poll loop. Turns are never resolved on a timer; each tick
// only asks the owner whether a turn is due.
type Engine struct {
	Tick     uint64        // monotonic poll counter
	Interval time.Duration // time between polls

	OnTick func(tick uint64)
}

// NewEngine creates an engine polling at interval.
func NewEngine(interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Engine{Interval: interval}
}

// Run polls until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine started", "interval", e.Interval)
	t := time.NewTicker(e.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped", "tick", e.Tick)
			return nil
		case <-t.C:
			e.step()
		}
	}
}

func (e *Engine) step() {
	e.Tick++
	if e.OnTick != nil {
		e.OnTick(e.Tick)
	}
}
