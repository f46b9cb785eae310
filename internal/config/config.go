// Package config loads host settings from an optional YAML file and
// TRADEWINDS_* environment variables, and hot-reloads the file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/talgya/tradewinds/internal/engine"
	"github.com/talgya/tradewinds/internal/logging"
)

const envPrefix = "TRADEWINDS"

// Game modes.
const (
	ModeHost   = "host"   // accepts remote players over /ws
	ModeSingle = "single" // local player only
)

type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Game    GameConfig     `mapstructure:"game"`
	DB      DBConfig       `mapstructure:"db"`
	Log     logging.Config `mapstructure:"log"`
	Entropy EntropyConfig  `mapstructure:"entropy"`
}

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	PublicURL   string   `mapstructure:"public_url"` // advertised in the join QR code
	AdminKey    string   `mapstructure:"admin_key"`  // empty disables admin routes
	PlayerKey   string   `mapstructure:"player_key"` // bearer token for the local player's API; generated when empty
	RateLimit   float64  `mapstructure:"rate_limit"` // requests per second per IP
	RateBurst   int      `mapstructure:"rate_burst"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type GameConfig struct {
	Mode          string        `mapstructure:"mode"`
	Seed          uint64        `mapstructure:"seed"` // 0 draws a seed from entropy
	PlayerName    string        `mapstructure:"player_name"`
	StartingMoney float64       `mapstructure:"starting_money"`
	StartingStock float64       `mapstructure:"starting_stock"`
	InterestRate  float64       `mapstructure:"interest_rate"`
	DebtFloor     float64       `mapstructure:"debt_floor"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	TurnTimeout   time.Duration `mapstructure:"turn_timeout"`
}

type DBConfig struct {
	Path string `mapstructure:"path"` // empty disables the journal
}

type EntropyConfig struct {
	RandomOrgKey string `mapstructure:"random_org_key"`
}

// Rules returns the turn rules for the game section.
func (g GameConfig) Rules() engine.Rules {
	return engine.Rules{InterestRate: g.InterestRate, DebtFloor: g.DebtFloor}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8420")
	v.SetDefault("server.public_url", "http://localhost:8420")
	v.SetDefault("server.admin_key", "")
	v.SetDefault("server.player_key", "")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.cors_origins", []string{})

	def := engine.DefaultRules()
	v.SetDefault("game.mode", ModeHost)
	v.SetDefault("game.seed", 0)
	v.SetDefault("game.player_name", "")
	v.SetDefault("game.starting_money", 1000.0)
	v.SetDefault("game.starting_stock", 40.0)
	v.SetDefault("game.interest_rate", def.InterestRate)
	v.SetDefault("game.debt_floor", def.DebtFloor)
	v.SetDefault("game.poll_interval", engine.DefaultPollInterval)
	v.SetDefault("game.turn_timeout", time.Duration(0))

	v.SetDefault("db.path", "data/tradewinds.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.no_color", false)

	v.SetDefault("entropy.random_org_key", "")
}

// Validate rejects settings the host cannot run with.
func (c Config) Validate() error {
	switch c.Game.Mode {
	case ModeHost, ModeSingle:
	default:
		return fmt.Errorf("game.mode: unknown mode %q", c.Game.Mode)
	}
	if c.Game.Mode == ModeSingle && c.Game.PlayerName == "" {
		return fmt.Errorf("game.player_name: required in single mode")
	}
	if c.Game.InterestRate < 1 {
		return fmt.Errorf("game.interest_rate: %v is below 1", c.Game.InterestRate)
	}
	if c.Game.DebtFloor > 0 {
		return fmt.Errorf("game.debt_floor: %v is positive", c.Game.DebtFloor)
	}
	if c.Game.StartingStock < 0 {
		return fmt.Errorf("game.starting_stock: %v is negative", c.Game.StartingStock)
	}
	if c.Game.TurnTimeout < 0 {
		return fmt.Errorf("game.turn_timeout: %v is negative", c.Game.TurnTimeout)
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
		return fmt.Errorf("server.rate_limit: limit and burst must be positive")
	}
	return nil
}

// Loader owns the viper instance and the latest valid Config.
type Loader struct {
	v *viper.Viper

	mu  sync.RWMutex
	cur Config
}

// Load reads path (optional) and the environment. A named file that does
// not exist is an error.
func Load(path string) (*Loader, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Loader{v: v, cur: cfg}, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Config returns the current settings.
func (l *Loader) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// File returns the config file in use, or "".
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with each valid edit of the config file. Invalid
// edits are logged and the previous settings stay in force. It does
// nothing when no file was loaded.
func (l *Loader) Watch(onChange func(Config)) {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(l.v)
		if err != nil {
			slog.Error("config reload rejected", "file", e.Name, "error", err)
			return
		}
		l.mu.Lock()
		l.cur = cfg
		l.mu.Unlock()
		slog.Info("config reloaded", "file", e.Name, "op", e.Op.String())
		if onChange != nil {
			onChange(cfg)
		}
	})
	l.v.WatchConfig()
}
