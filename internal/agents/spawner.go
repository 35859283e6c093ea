// Entity spawning: ids, names, and tile-centre placement.
package agents

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/zyedidia/generic/mapset"

	"github.com/VerechoTJI/SimulationGame/internal/spatial"
	"github.com/VerechoTJI/SimulationGame/internal/world"
)

// Spawner creates entities for the simulation.
// Ids come from the seeded rng, so a seed reproduces the same population.
// Ids already issued or restored are never handed out again.
type Spawner struct {
	rng      *rand.Rand
	tileSize float64
	serial   map[spatial.Kind]int
	issued   mapset.Set[EntityID]
}

// NewSpawner creates an entity spawner with the given seed.
func NewSpawner(seed int64, tileSize float64) *Spawner {
	return &Spawner{
		rng:      rand.New(rand.NewSource(seed + 300)),
		tileSize: tileSize,
		serial:   make(map[spatial.Kind]int),
		issued:   mapset.New[EntityID](),
	}
}

// Rand exposes the spawner's random source for placement decisions.
func (s *Spawner) Rand() *rand.Rand {
	return s.rng
}

// Spawn creates a live entity at the centre of cell c.
func (s *Spawner) Spawn(kind spatial.Kind, c world.Coord, tick uint64) *Entity {
	y, x := world.Center(c, s.tileSize)
	return s.SpawnAt(kind, spatial.Vec{Y: y, X: x}, tick)
}

// SpawnAt creates a live entity at an exact world position.
func (s *Spawner) SpawnAt(kind spatial.Kind, pos spatial.Vec, tick uint64) *Entity {
	id := s.nextID()
	s.serial[kind]++
	return &Entity{
		ID:       id,
		Type:     kind,
		Name:     fmt.Sprintf("%s_%d", KindName(kind), s.serial[kind]),
		Pos:      pos,
		BornTick: tick,
		Alive:    true,
	}
}

// nextID draws ids from the rng until one is unused. A resumed run replays the
// same stream, so it skips over the ids of the restored population.
func (s *Spawner) nextID() EntityID {
	for {
		raw, err := uuid.NewRandomFromReader(s.rng)
		if err != nil {
			raw = uuid.New()
		}
		id := EntityID(raw)
		if !s.issued.Has(id) {
			s.issued.Put(id)
			return id
		}
	}
}

// Restore records the ids of a saved population and bumps the name counters,
// so entities spawned after loading repeat neither.
func (s *Spawner) Restore(entities []*Entity) {
	for _, e := range entities {
		s.issued.Put(e.ID)
		var n int
		if _, err := fmt.Sscanf(e.Name, KindName(e.Type)+"_%d", &n); err == nil && n > s.serial[e.Type] {
			s.serial[e.Type] = n
		}
	}
}

// RandomPassable picks a uniformly random passable cell not in occupied.
// It gives up after a bounded number of tries on crowded maps.
func (s *Spawner) RandomPassable(g *world.Grid, occupied map[world.Coord]bool) (world.Coord, bool) {
	for try := 0; try < 64; try++ {
		c := world.Coord{Row: s.rng.Intn(g.Height), Col: s.rng.Intn(g.Width)}
		if g.Passable(c) && !occupied[c] {
			return c, true
		}
	}
	return world.Coord{}, false
}

// AdjacentWalkable picks a random passable, unoccupied neighbour of c.
func (s *Spawner) AdjacentWalkable(g *world.Grid, c world.Coord, occupied map[world.Coord]bool) (world.Coord, bool) {
	var options []world.Coord
	for _, n := range c.Neighbors() {
		if g.Passable(n) && !occupied[n] {
			options = append(options, n)
		}
	}
	if len(options) == 0 {
		return world.Coord{}, false
	}
	return options[s.rng.Intn(len(options))], true
}

// ShoreCells returns land cells next to water, where rice sprouts.
func ShoreCells(g *world.Grid) []world.Coord {
	var cells []world.Coord
	for r := 0; r < g.Height; r++ {
		for c := 0; c < g.Width; c++ {
			cell := world.Coord{Row: r, Col: c}
			if g.At(cell) != world.TileLand {
				continue
			}
			for _, n := range cell.Neighbors() {
				if g.At(n) == world.TileWater {
					cells = append(cells, cell)
					break
				}
			}
		}
	}
	return cells
}
