package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "tradewinds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	l, err := Load("")
	require.NoError(t, err)
	cfg := l.Config()

	assert.Equal(t, ModeHost, cfg.Game.Mode)
	assert.Equal(t, 1.02, cfg.Game.InterestRate)
	assert.Equal(t, -10000.0, cfg.Game.DebtFloor)
	assert.Equal(t, 100*time.Millisecond, cfg.Game.PollInterval)
	assert.Zero(t, cfg.Game.TurnTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, l.File())

	rules := cfg.Game.Rules()
	assert.Equal(t, cfg.Game.InterestRate, rules.InterestRate)
	assert.Equal(t, cfg.Game.DebtFloor, rules.DebtFloor)
}

func TestFileAndEnvironment(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
server:
  addr: ":9000"
  cors_origins: ["https://example.org"]
game:
  mode: single
  player_name: Ysolde
  seed: 42
  turn_timeout: 45s
log:
  level: debug
`)
	t.Setenv("TRADEWINDS_GAME_STARTING_MONEY", "250.5")
	t.Setenv("TRADEWINDS_SERVER_ADDR", ":9100")

	l, err := Load(path)
	require.NoError(t, err)
	cfg := l.Config()

	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, []string{"https://example.org"}, cfg.Server.CORSOrigins)
	assert.Equal(t, ModeSingle, cfg.Game.Mode)
	assert.Equal(t, "Ysolde", cfg.Game.PlayerName)
	assert.Equal(t, uint64(42), cfg.Game.Seed)
	assert.Equal(t, 45*time.Second, cfg.Game.TurnTimeout)
	assert.Equal(t, 250.5, cfg.Game.StartingMoney)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, path, l.File())
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown mode", "game:\n  mode: lan\n", "game.mode"},
		{"single without name", "game:\n  mode: single\n", "game.player_name"},
		{"interest below one", "game:\n  interest_rate: 0.5\n", "game.interest_rate"},
		{"positive floor", "game:\n  debt_floor: 10\n", "game.debt_floor"},
		{"negative timeout", "game:\n  turn_timeout: -1s\n", "game.turn_timeout"},
		{"zero burst", "server:\n  rate_burst: 0\n", "server.rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, t.TempDir(), tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "game:\n  turn_timeout: 10s\n")

	l, err := Load(path)
	require.NoError(t, err)

	changes := make(chan Config, 8)
	l.Watch(func(c Config) { changes <- c })

	// An invalid edit keeps the old settings.
	require.NoError(t, os.WriteFile(path, []byte("game:\n  mode: lan\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("game:\n  turn_timeout: 30s\nlog:\n  level: warn\n"), 0o644))

	require.Eventually(t, func() bool {
		select {
		case c := <-changes:
			return c.Game.TurnTimeout == 30*time.Second
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, 30*time.Second, l.Config().Game.TurnTimeout)
	assert.Equal(t, "warn", l.Config().Log.Level)
}

func TestExampleFileMatchesDefaults(t *testing.T) {
	l, err := Load(filepath.Join("..", "..", "configs", "tradewinds.example.yaml"))
	require.NoError(t, err)
	def, err := Load("")
	require.NoError(t, err)

	got, want := l.Config(), def.Config()
	assert.Equal(t, want.Game, got.Game)
	assert.Equal(t, want.Log, got.Log)
	assert.Equal(t, want.Server.Addr, got.Server.Addr)
}
