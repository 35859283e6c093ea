package world

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrOutOfBounds is returned for coordinates or positions outside the grid.
// Callers must not clamp: clamping silently maps distinct inputs onto one edge tile.
var ErrOutOfBounds = errors.New("coordinate out of bounds")

// Grid is a rectangular, row-major matrix of tiles. It is never mutated after
// construction and may be shared freely between readers.
type Grid struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	tiles       []*Tile
	minStepCost float64
}

// NewGrid creates a grid of the given size with every cell set to fill.
func NewGrid(width, height int, fill *Tile) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid size %dx%d: dimensions must be positive", width, height)
	}
	if fill == nil {
		return nil, errors.New("grid fill tile is nil")
	}
	tiles := make([]*Tile, width*height)
	for i := range tiles {
		tiles[i] = fill
	}
	g := &Grid{Width: width, Height: height, tiles: tiles}
	g.computeMinStepCost()
	return g, nil
}

// ParseGrid builds a grid from rows of tile symbols (see TileBySymbol).
// Every row must have the same length.
func ParseGrid(rows []string) (*Grid, error) {
	if len(rows) == 0 {
		return nil, errors.New("parse grid: no rows")
	}
	width := len(rows[0])
	tiles := make([]*Tile, 0, width*len(rows))
	for r, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("parse grid: row %d has %d cells, want %d", r, len(row), width)
		}
		for c, ch := range row {
			t, ok := TileBySymbol[string(ch)]
			if !ok {
				return nil, fmt.Errorf("parse grid: unknown symbol %q at (%d,%d)", ch, r, c)
			}
			tiles = append(tiles, t)
		}
	}
	if width == 0 {
		return nil, errors.New("parse grid: empty rows")
	}
	g := &Grid{Width: width, Height: len(rows), tiles: tiles}
	g.computeMinStepCost()
	return g, nil
}

// computeMinStepCost caches the cheapest possible single-tile move so the A*
// heuristic stays admissible even if a tile faster than speed 1 exists.
func (g *Grid) computeMinStepCost() {
	maxSpeed := 0.0
	for _, t := range g.tiles {
		if t.SpeedFactor > maxSpeed {
			maxSpeed = t.SpeedFactor
		}
	}
	if maxSpeed <= 1 {
		g.minStepCost = 1
		return
	}
	g.minStepCost = 1 / maxSpeed
}

// Size returns the number of cells.
func (g *Grid) Size() int {
	return g.Width * g.Height
}

// InBounds reports whether c addresses a cell of the grid.
func (g *Grid) InBounds(c Coord) bool {
	return c.Row >= 0 && c.Col >= 0 && c.Row < g.Height && c.Col < g.Width
}

// Check returns a wrapped ErrOutOfBounds when c is outside the grid.
func (g *Grid) Check(c Coord) error {
	if !g.InBounds(c) {
		return fmt.Errorf("(%d,%d) in %dx%d grid: %w", c.Row, c.Col, g.Width, g.Height, ErrOutOfBounds)
	}
	return nil
}

// Index returns the flat row-major index of an in-bounds coordinate.
func (g *Grid) Index(c Coord) int {
	return c.Row*g.Width + c.Col
}

// CoordAt is the inverse of Index.
func (g *Grid) CoordAt(idx int) Coord {
	return Coord{Row: idx / g.Width, Col: idx % g.Width}
}

// At returns the tile at c, or nil if out of bounds.
func (g *Grid) At(c Coord) *Tile {
	if !g.InBounds(c) {
		return nil
	}
	return g.tiles[g.Index(c)]
}

// Passable reports whether c is inside the grid and enterable.
func (g *Grid) Passable(c Coord) bool {
	return g.At(c).Passable()
}

// StepCost is the cost of moving into cell to; diagonal steps cost √2 times more.
func (g *Grid) StepCost(to Coord, diagonal bool) float64 {
	cost := g.At(to).MoveCost()
	if diagonal {
		cost *= math.Sqrt2
	}
	return cost
}

// MinStepCost is the lowest cost any unit-distance move can have on this grid.
func (g *Grid) MinStepCost() float64 {
	return g.minStepCost
}

// CanStep reports whether an agent on from may move one step along d.
// The destination must be passable, and a diagonal step is refused when either
// orthogonal cell shared by both endpoints is impassable (no corner cutting).
// The rule is symmetric: CanStep(a, d) == CanStep(a+d, -d) for passable a.
func (g *Grid) CanStep(from Coord, d Dir) bool {
	to := from.Add(d)
	if !g.Passable(to) {
		return false
	}
	if d.Diagonal() {
		if !g.Passable(Coord{Row: from.Row + int(d.DY), Col: from.Col}) ||
			!g.Passable(Coord{Row: from.Row, Col: from.Col + int(d.DX)}) {
			return false
		}
	}
	return true
}

// CoordOf converts a world-space position (metres, y then x) into the cell that
// contains it. Positions outside the grid are rejected rather than clamped.
func (g *Grid) CoordOf(y, x, tileSize float64) (Coord, error) {
	if tileSize <= 0 {
		return Coord{}, fmt.Errorf("tile size %v: must be positive", tileSize)
	}
	c := Coord{Row: int(math.Floor(y / tileSize)), Col: int(math.Floor(x / tileSize))}
	if err := g.Check(c); err != nil {
		return Coord{}, err
	}
	return c, nil
}

// Center returns the world-space centre of cell c.
func Center(c Coord, tileSize float64) (y, x float64) {
	return (float64(c.Row) + 0.5) * tileSize, (float64(c.Col) + 0.5) * tileSize
}

// Counts returns the number of cells per tile name.
func (g *Grid) Counts() map[string]int {
	counts := make(map[string]int)
	for _, t := range g.tiles {
		counts[t.Name]++
	}
	return counts
}

// String renders the grid as rows of tile symbols.
func (g *Grid) String() string {
	var b strings.Builder
	for r := 0; r < g.Height; r++ {
		for c := 0; c < g.Width; c++ {
			b.WriteString(g.tiles[r*g.Width+c].Symbol)
		}
		if r < g.Height-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
