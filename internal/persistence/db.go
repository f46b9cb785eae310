// Package persistence journals a running session to SQLite: world
// metadata, one compressed snapshot per resolved turn, the event log and
// every player's balance over time. Sessions are never resumed from it;
// it backs the observation API.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/engine"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("persistence: not found")

// ErrCorrupt is returned when a stored snapshot fails its checksum.
var ErrCorrupt = errors.New("persistence: snapshot checksum mismatch")

// DB wraps a SQLite connection for the session journal.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		turn INTEGER PRIMARY KEY,
		digest TEXT NOT NULL,
		snapshot BLOB NOT NULL,
		checksum TEXT NOT NULL,
		raw_size INTEGER NOT NULL,
		moves INTEGER NOT NULL,
		arrivals INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS money_history (
		turn INTEGER NOT NULL,
		player_id INTEGER NOT NULL,
		money REAL NOT NULL,
		PRIMARY KEY (turn, player_id)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		turn INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_turn ON events(turn);
	CREATE INDEX IF NOT EXISTS idx_money_player ON money_history(player_id, turn);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %q: %w", key, ErrNotFound)
	}
	return value, err
}

// SaveSession starts the journal for a new session: the previous
// session's turns, players, balances and events are cleared, and what is
// needed to regenerate the new world is recorded.
func (db *DB) SaveSession(ws *engine.WorldState) error {
	prev, err := db.GetMeta("seed")
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return fmt.Errorf("read previous session: %w", err)
	default:
		dropped, err := db.clearJournal()
		if err != nil {
			return err
		}
		slog.Info("previous session cleared from journal", "seed", prev, "turns", dropped)
	}

	names, err := json.Marshal(ws.Names)
	if err != nil {
		return fmt.Errorf("encode names: %w", err)
	}
	meta := map[string]string{
		"seed":           strconv.FormatUint(ws.Seed, 10),
		"city_names":     string(names),
		"starting_stock": strconv.FormatFloat(ws.StartingStock, 'g', -1, 64),
		"genesis_digest": ws.GenesisDigest,
		"cities":         strconv.Itoa(len(ws.Cities)),
		"edges":          strconv.Itoa(len(ws.Graph.Edges)),
	}
	for k, v := range meta {
		if err := db.SaveMeta(k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}
	slog.Info("session recorded", "seed", ws.Seed, "cities", len(ws.Cities))
	return nil
}

func (db *DB) clearJournal() (int64, error) {
	tx, err := db.conn.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var turns int64
	if err := tx.Get(&turns, "SELECT COUNT(*) FROM turns"); err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	for _, table := range []string{"turns", "players", "money_history", "events"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return 0, fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return turns, tx.Commit()
}

// TurnRecord is everything journaled for one resolved turn.
type TurnRecord struct {
	Report   engine.TurnReport
	Snapshot engine.Snapshot
	Digest   string
	Players  []engine.Player
}

// RecordTurn writes a turn's snapshot, events, players and balances in one
// transaction.
func (db *DB) RecordTurn(rec TurnRecord) error {
	raw, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	packed, err := compressLZ4(raw)
	if err != nil {
		return err
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	turn := rec.Report.Turn
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO turns (turn, digest, snapshot, checksum, raw_size, moves, arrivals)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn, rec.Digest, packed, checksum(raw), len(raw), rec.Report.Moves, rec.Report.Arrivals,
	); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	for _, p := range rec.Players {
		if _, err := tx.Exec("INSERT OR REPLACE INTO players (id, name) VALUES (?, ?)", p.ID, p.Name); err != nil {
			return fmt.Errorf("upsert player: %w", err)
		}
	}
	for id, money := range rec.Snapshot.Economy {
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO money_history (turn, player_id, money) VALUES (?, ?, ?)",
			turn, id, money,
		); err != nil {
			return fmt.Errorf("insert money: %w", err)
		}
	}
	for _, e := range rec.Report.Events {
		if _, err := tx.Exec(
			"INSERT INTO events (turn, description, category) VALUES (?, ?, ?)",
			e.Turn, e.Description, e.Category,
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("turn journaled", "turn", turn, "raw", len(raw), "packed", len(packed))
	return nil
}

// LoadTurn returns the stored snapshot and world digest of a turn.
func (db *DB) LoadTurn(turn uint64) (engine.Snapshot, string, error) {
	var row struct {
		Digest   string `db:"digest"`
		Snapshot []byte `db:"snapshot"`
		Checksum string `db:"checksum"`
	}
	err := db.conn.Get(&row, "SELECT digest, snapshot, checksum FROM turns WHERE turn = ?", turn)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Snapshot{}, "", fmt.Errorf("turn %d: %w", turn, ErrNotFound)
	}
	if err != nil {
		return engine.Snapshot{}, "", err
	}

	raw, err := decompressLZ4(row.Snapshot)
	if err != nil {
		return engine.Snapshot{}, "", err
	}
	if checksum(raw) != row.Checksum {
		return engine.Snapshot{}, "", fmt.Errorf("turn %d: %w", turn, ErrCorrupt)
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return engine.Snapshot{}, "", fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, row.Digest, nil
}

// LatestTurn returns the highest journaled turn, or 0 when none is stored.
func (db *DB) LatestTurn() (uint64, error) {
	var turn sql.NullInt64
	if err := db.conn.Get(&turn, "SELECT MAX(turn) FROM turns"); err != nil {
		return 0, err
	}
	return uint64(turn.Int64), nil
}

// MoneyPoint is one player's balance after a turn.
type MoneyPoint struct {
	Turn  uint64  `db:"turn" json:"turn"`
	Money float64 `db:"money" json:"money"`
}

// MoneyHistory returns up to limit of a player's latest balances, oldest first.
func (db *DB) MoneyHistory(player economy.PlayerID, limit int) ([]MoneyPoint, error) {
	var points []MoneyPoint
	err := db.conn.Select(&points,
		`SELECT turn, money FROM (
			SELECT turn, money FROM money_history WHERE player_id = ? ORDER BY turn DESC LIMIT ?
		) ORDER BY turn ASC`,
		player, limit,
	)
	return points, err
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT turn, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}
