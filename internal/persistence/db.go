// Package persistence provides SQLite-based world state storage.
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

	"github.com/VerechoTJI/SimulationGame/internal/agents"
	"github.com/VerechoTJI/SimulationGame/internal/config"
	"github.com/VerechoTJI/SimulationGame/internal/engine"
	"github.com/VerechoTJI/SimulationGame/internal/spatial"
	"github.com/VerechoTJI/SimulationGame/internal/world"
)

// ErrNoMeta is returned by GetMeta when the key has never been saved.
var ErrNoMeta = errors.New("meta key not found")

// Meta keys.
const (
	MetaLastTick = "last_tick"
	MetaConfig   = "config"
)

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

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
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		kind INTEGER NOT NULL,
		name TEXT NOT NULL,
		pos_y REAL NOT NULL,
		pos_x REAL NOT NULL,
		age INTEGER NOT NULL,
		born_tick INTEGER NOT NULL,
		path_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goals (
		goal_row INTEGER NOT NULL,
		goal_col INTEGER NOT NULL,
		PRIMARY KEY (goal_row, goal_col)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type entityRow struct {
	ID       string  `db:"id"`
	Kind     uint8   `db:"kind"`
	Name     string  `db:"name"`
	PosY     float64 `db:"pos_y"`
	PosX     float64 `db:"pos_x"`
	Age      uint32  `db:"age"`
	BornTick uint64  `db:"born_tick"`
	PathJSON string  `db:"path_json"`
}

// SaveEntities writes all live entities to the database (full replace).
func (db *DB) SaveEntities(list []agents.Entity) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM entities"); err != nil {
		return err
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO entities
		(id, kind, name, pos_y, pos_x, age, born_tick, path_json)
		VALUES (:id, :kind, :name, :pos_y, :pos_x, :age, :born_tick, :path_json)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range list {
		if !e.Alive {
			continue
		}
		pathJSON, err := json.Marshal(e.Path)
		if err != nil {
			return fmt.Errorf("encode path of %s: %w", e.Name, err)
		}
		row := entityRow{
			ID:       e.ID.String(),
			Kind:     uint8(e.Type),
			Name:     e.Name,
			PosY:     e.Pos.Y,
			PosX:     e.Pos.X,
			Age:      e.Age,
			BornTick: e.BornTick,
			PathJSON: string(pathJSON),
		}
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("insert entity %s: %w", e.Name, err)
		}
	}

	return tx.Commit()
}

// LoadEntities reads every saved entity, grouped by kind in spawn order.
func (db *DB) LoadEntities() ([]*agents.Entity, error) {
	var rows []entityRow
	if err := db.conn.Select(&rows, "SELECT * FROM entities ORDER BY kind, born_tick, name"); err != nil {
		return nil, fmt.Errorf("select entities: %w", err)
	}

	list := make([]*agents.Entity, 0, len(rows))
	for _, r := range rows {
		id, err := agents.ParseEntityID(r.ID)
		if err != nil {
			return nil, err
		}
		var path []world.Coord
		if err := json.Unmarshal([]byte(r.PathJSON), &path); err != nil {
			return nil, fmt.Errorf("decode path of %s: %w", r.Name, err)
		}
		list = append(list, &agents.Entity{
			ID:       id,
			Type:     spatial.Kind(r.Kind),
			Name:     r.Name,
			Pos:      spatial.Vec{Y: r.PosY, X: r.PosX},
			Age:      r.Age,
			BornTick: r.BornTick,
			Alive:    true,
			Path:     path,
		})
	}
	return list, nil
}

// SaveGoals replaces the stored flow-field goal set.
func (db *DB) SaveGoals(goals []world.Coord) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM goals"); err != nil {
		return err
	}
	for _, g := range goals {
		if _, err := tx.Exec("INSERT INTO goals (goal_row, goal_col) VALUES (?, ?)", g.Row, g.Col); err != nil {
			return fmt.Errorf("insert goal (%d,%d): %w", g.Row, g.Col, err)
		}
	}
	return tx.Commit()
}

// LoadGoals returns the stored goal set sorted by row, then column.
func (db *DB) LoadGoals() ([]world.Coord, error) {
	var rows []struct {
		Row int `db:"goal_row"`
		Col int `db:"goal_col"`
	}
	err := db.conn.Select(&rows, "SELECT goal_row, goal_col FROM goals ORDER BY goal_row, goal_col")
	if err != nil {
		return nil, fmt.Errorf("select goals: %w", err)
	}
	goals := make([]world.Coord, len(rows))
	for i, r := range rows {
		goals[i] = world.Coord{Row: r.Row, Col: r.Col}
	}
	return goals, nil
}

// SaveEvents appends the events newer than anything already stored.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.Get(&last, "SELECT MAX(tick) FROM events"); err != nil {
		return err
	}
	for _, e := range events {
		if last.Valid && int64(e.Tick) <= last.Int64 {
			continue
		}
		_, err := tx.Exec(
			"INSERT INTO events (tick, description, category) VALUES (?, ?, ?)",
			e.Tick, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. Missing keys return ErrNoMeta.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", key, ErrNoMeta)
	}
	return value, err
}

// SaveConfig stores the simulation parameters the world was built with.
func (db *DB) SaveConfig(cfg config.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return db.SaveMeta(MetaConfig, string(data))
}

// LoadConfig decodes a saved configuration over base. Runtime-only fields
// (database path, port, admin key) keep their values from base.
func (db *DB) LoadConfig(base config.Config) (config.Config, error) {
	data, err := db.GetMeta(MetaConfig)
	if err != nil {
		return base, err
	}
	cfg := base
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return base, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// HasWorldState reports whether a world has been saved to this database.
func (db *DB) HasWorldState() bool {
	_, err := db.GetMeta(MetaLastTick)
	return err == nil
}

// LastTick returns the tick of the most recent save.
func (db *DB) LastTick() (uint64, error) {
	v, err := db.GetMeta(MetaLastTick)
	if err != nil {
		return 0, err
	}
	tick, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", MetaLastTick, err)
	}
	return tick, nil
}

// SaveWorldState performs a full save of all world state.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	tick, entities, goals := sim.Snapshot()
	slog.Info("saving world state", "tick", tick, "entities", len(entities), "goals", len(goals))

	if err := db.SaveConfig(sim.Config()); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := db.SaveEntities(entities); err != nil {
		return fmt.Errorf("save entities: %w", err)
	}
	if err := db.SaveGoals(goals); err != nil {
		return fmt.Errorf("save goals: %w", err)
	}
	if err := db.SaveEvents(sim.RecentEvents(0)); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveMeta(MetaLastTick, strconv.FormatUint(tick, 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("world state saved")
	return nil
}

// LoadWorldState restores a saved population and goal set into sim.
func (db *DB) LoadWorldState(sim *engine.Simulation) error {
	tick, err := db.LastTick()
	if err != nil {
		return fmt.Errorf("load world state: %w", err)
	}
	entities, err := db.LoadEntities()
	if err != nil {
		return fmt.Errorf("load world state: %w", err)
	}
	goals, err := db.LoadGoals()
	if err != nil {
		return fmt.Errorf("load world state: %w", err)
	}
	if err := sim.Restore(tick, entities, goals); err != nil {
		return fmt.Errorf("load world state: %w", err)
	}
	slog.Info("world state loaded", "tick", tick, "entities", len(entities), "goals", len(goals))
	return nil
}
