// Terrain generation using layered simplex noise.
// Produces the static passability grid the navigation core runs on.
package world

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds terrain generation parameters.
type GenConfig struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Seed        int64   `json:"seed"`         // Random seed (0 = random)
	SeaLevel    float64 `json:"sea_level"`    // Elevation below which cells are water (0.0–1.0)
	MountainLvl float64 `json:"mountain_lvl"` // Elevation above which cells are mountain (0.0–1.0)
	Frequency   float64 `json:"frequency"`    // Base noise frequency per cell
}

// DefaultGenConfig returns the 64×32 map the simulation was designed around.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:       64,
		Height:      32,
		Seed:        0,
		SeaLevel:    0.35,
		MountainLvl: 0.68,
		Frequency:   0.06,
	}
}

// SmallTestConfig returns a tiny map for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Width:       16,
		Height:      12,
		Seed:        42,
		SeaLevel:    0.30,
		MountainLvl: 0.75,
		Frequency:   0.12,
	}
}

// Generate creates a terrain grid. The same non-zero seed always yields the same grid.
func Generate(cfg GenConfig) (*Grid, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	g, err := NewGrid(cfg.Width, cfg.Height, TileLand)
	if err != nil {
		return nil, err
	}

	elevNoise := opensimplex.NewNormalized(seed)
	roughNoise := opensimplex.NewNormalized(seed + 1)

	for r := 0; r < cfg.Height; r++ {
		for c := 0; c < cfg.Width; c++ {
			x, y := float64(c), float64(r)

			elev := octaveNoise(elevNoise, x, y, 4, cfg.Frequency, 0.5)
			// Small high-frequency layer breaks up long straight shorelines.
			elev = elev*0.85 + octaveNoise(roughNoise, x, y, 2, cfg.Frequency*4, 0.5)*0.15

			g.tiles[r*cfg.Width+c] = deriveTile(elev, cfg)
		}
	}

	g.computeMinStepCost()
	return g, nil
}

// deriveTile maps an elevation sample to a terrain tile.
func deriveTile(elev float64, cfg GenConfig) *Tile {
	if elev < cfg.SeaLevel {
		return TileWater
	}
	if elev > cfg.MountainLvl {
		return TileMountain
	}
	return TileLand
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// PassableCells returns every enterable coordinate in row-major order.
func PassableCells(g *Grid) []Coord {
	var cells []Coord
	for i, t := range g.tiles {
		if t.Passable() {
			cells = append(cells, g.CoordAt(i))
		}
	}
	return cells
}
