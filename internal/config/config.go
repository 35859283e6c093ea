// Package config holds the simulation's numeric parameters: grid and terrain
// settings, spatial cell size, flow-field chunking and per-tick budgets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/VerechoTJI/SimulationGame/internal/navigation"
	"github.com/VerechoTJI/SimulationGame/internal/world"
)

// EnvPrefix is prepended to every environment override key.
const EnvPrefix = "TILESIM_"

// Config is the full set of construction-time parameters.
type Config struct {
	Terrain  world.GenConfig `json:"terrain"`
	TileSize float64         `json:"tile_size"` // Metres per grid cell

	SpatialCellSize float64               `json:"spatial_cell_size"` // Metres
	Flow            navigation.FlowConfig `json:"flow"`
	NodeBudget      int                   `json:"node_budget"`  // Dijkstra pops per tick
	ChunkBudget     int                   `json:"chunk_budget"` // Chunks regenerated per tick

	TickInterval   time.Duration `json:"tick_interval"`
	ReportInterval uint64        `json:"report_interval"` // Ticks between status reports
	SaveInterval   uint64        `json:"save_interval"`   // Ticks between auto-saves

	Humans          int    `json:"humans"`
	Sheep           int    `json:"sheep"`
	RiceSpawnPeriod uint64 `json:"rice_spawn_period"` // Ticks between rice sprouts
	MaxRice         int    `json:"max_rice"`

	DBPath   string `json:"-"`
	APIPort  int    `json:"-"`
	AdminKey string `json:"-"`
}

// Default returns the standard configuration.
func Default() Config {
	terrain := world.DefaultGenConfig()
	terrain.Seed = 42
	flow := navigation.DefaultFlowConfig()
	flow.Seed = terrain.Seed

	return Config{
		Terrain:         terrain,
		TileSize:        10,
		SpatialCellSize: 20,
		Flow:            flow,
		NodeBudget:      256,
		ChunkBudget:     4,
		TickInterval:    time.Second,
		ReportInterval:  60,
		SaveInterval:    600,
		Humans:          4,
		Sheep:           24,
		RiceSpawnPeriod: 5,
		MaxRice:         30,
		DBPath:          "data/tilesim.db",
		APIPort:         8080,
	}
}

// FromEnv returns base with any TILESIM_* environment overrides applied.
func FromEnv(base Config) (Config, error) {
	return apply(base, os.LookupEnv)
}

func apply(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	integer64 := func(key string, dst *int64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	unsigned := func(key string, dst *uint64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	integer("WIDTH", &cfg.Terrain.Width)
	integer("HEIGHT", &cfg.Terrain.Height)
	integer64("SEED", &cfg.Terrain.Seed)
	float("SEA_LEVEL", &cfg.Terrain.SeaLevel)
	float("MOUNTAIN_LEVEL", &cfg.Terrain.MountainLvl)
	float("TILE_SIZE", &cfg.TileSize)
	float("SPATIAL_CELL_SIZE", &cfg.SpatialCellSize)
	integer("CHUNK_SIZE", &cfg.Flow.ChunkSize)
	integer("NODE_BUDGET", &cfg.NodeBudget)
	integer("CHUNK_BUDGET", &cfg.ChunkBudget)
	duration("TICK_INTERVAL", &cfg.TickInterval)
	unsigned("REPORT_INTERVAL", &cfg.ReportInterval)
	unsigned("SAVE_INTERVAL", &cfg.SaveInterval)
	integer("HUMANS", &cfg.Humans)
	integer("SHEEP", &cfg.Sheep)
	unsigned("RICE_SPAWN_PERIOD", &cfg.RiceSpawnPeriod)
	integer("MAX_RICE", &cfg.MaxRice)
	str("DB_PATH", &cfg.DBPath)
	integer("API_PORT", &cfg.APIPort)
	str("ADMIN_KEY", &cfg.AdminKey)

	cfg.Flow.Seed = cfg.Terrain.Seed

	if err := errors.Join(errs...); err != nil {
		return cfg, fmt.Errorf("config from env: %w", err)
	}
	return cfg, nil
}

// Validate rejects parameter combinations the core cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Terrain.Width <= 0 || c.Terrain.Height <= 0 {
		errs = append(errs, fmt.Errorf("grid size %dx%d must be positive", c.Terrain.Width, c.Terrain.Height))
	}
	if c.TileSize <= 0 {
		errs = append(errs, fmt.Errorf("tile size %v must be positive", c.TileSize))
	}
	if c.SpatialCellSize <= 0 {
		errs = append(errs, fmt.Errorf("spatial cell size %v must be positive", c.SpatialCellSize))
	}
	if c.Flow.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size %d must be positive", c.Flow.ChunkSize))
	}
	if c.NodeBudget <= 0 {
		errs = append(errs, fmt.Errorf("node budget %d must be positive", c.NodeBudget))
	}
	if c.ChunkBudget <= 0 {
		errs = append(errs, fmt.Errorf("chunk budget %d must be positive", c.ChunkBudget))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval %v must be positive", c.TickInterval))
	}
	if c.Humans < 0 || c.Sheep < 0 || c.MaxRice < 0 {
		errs = append(errs, errors.New("population counts must not be negative"))
	}
	return errors.Join(errs...)
}
