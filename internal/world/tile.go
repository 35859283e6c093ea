// Package world provides the tile grid, terrain, and coordinate types shared by
// the navigation and spatial packages.
// Coordinates are (row, col) pairs; row grows southward.
package world

import "math"

// Tile is an immutable terrain type. Grids hold pointers to shared Tile values.
type Tile struct {
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	Color       string  `json:"color"`
	SpeedFactor float64 `json:"speed_factor"` // 0 = impassable, otherwise relative speed
}

// Passable reports whether agents can enter the tile at all.
func (t *Tile) Passable() bool {
	return t != nil && t.SpeedFactor > 0
}

// MoveCost returns the cost of entering the tile, +Inf when impassable.
func (t *Tile) MoveCost() float64 {
	if !t.Passable() {
		return math.Inf(1)
	}
	return 1.0 / t.SpeedFactor
}

// Standard terrain tiles.
var (
	TileLand     = &Tile{Name: "Land", Symbol: ".", Color: "green", SpeedFactor: 1.0}
	TileWater    = &Tile{Name: "Water", Symbol: "~", Color: "blue", SpeedFactor: 0.0} // Impassable
	TileMountain = &Tile{Name: "Mountain", Symbol: "^", Color: "white", SpeedFactor: 0.5}
)

// TileBySymbol maps display symbols back to the standard tiles.
var TileBySymbol = map[string]*Tile{
	TileLand.Symbol:     TileLand,
	TileWater.Symbol:    TileWater,
	TileMountain.Symbol: TileMountain,
}

// Coord is a grid cell position.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Add returns the coordinate one step along d.
func (c Coord) Add(d Dir) Coord {
	return Coord{Row: c.Row + int(d.DY), Col: c.Col + int(d.DX)}
}

// Sub returns the direction from o to c. Only meaningful for adjacent cells.
func (c Coord) Sub(o Coord) Dir {
	return Dir{DY: int8(c.Row - o.Row), DX: int8(c.Col - o.Col)}
}

// Dir is a unit step in {-1,0,1}². The zero Dir means "stay".
type Dir struct {
	DY int8 `json:"dy"`
	DX int8 `json:"dx"`
}

// IsZero reports whether d is the zero vector.
func (d Dir) IsZero() bool {
	return d.DY == 0 && d.DX == 0
}

// Diagonal reports whether d moves along both axes.
func (d Dir) Diagonal() bool {
	return d.DY != 0 && d.DX != 0
}

// Neighbor enumeration order: N, S, W, E, NW, NE, SW, SE.
// Cardinals come first, so on equal cost a straight step wins over a diagonal.
// Path search, flow-field relaxation and vector regeneration all iterate this
// table, which makes it the tie-break rule for every search in the module.
var Directions = [8]Dir{
	{DY: -1, DX: 0},
	{DY: 1, DX: 0},
	{DY: 0, DX: -1},
	{DY: 0, DX: 1},
	{DY: -1, DX: -1},
	{DY: -1, DX: 1},
	{DY: 1, DX: -1},
	{DY: 1, DX: 1},
}

// Neighbors returns the eight adjacent coordinates in enumeration order.
// Results may lie outside any particular grid.
func (c Coord) Neighbors() [8]Coord {
	var result [8]Coord
	for i, d := range Directions {
		result[i] = c.Add(d)
	}
	return result
}

// Distance returns the straight-line distance between two cells in grid units.
func Distance(a, b Coord) float64 {
	dr := float64(a.Row - b.Row)
	dc := float64(a.Col - b.Col)
	return math.Sqrt(dr*dr + dc*dc)
}
