// Simulation ties the grid, the navigation core and the entity population
// together and advances them each tick.
package engine

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/sasha-s/go-deadlock"

	"github.com/VerechoTJI/SimulationGame/internal/agents"
	"github.com/VerechoTJI/SimulationGame/internal/config"
	"github.com/VerechoTJI/SimulationGame/internal/navigation"
	"github.com/VerechoTJI/SimulationGame/internal/spatial"
	"github.com/VerechoTJI/SimulationGame/internal/world"
)

// maxEvents bounds the recent-event buffer.
const maxEvents = 1000

// sheepSight is how far, in tiles, a sheep without a flow vector looks for
// mature rice.
const sheepSight = 3

// Simulation holds the complete world state.
//
// Tick takes the write lock; the query methods take the read lock, so the
// HTTP layer can observe a running simulation.
type Simulation struct {
	mu deadlock.RWMutex

	cfg      config.Config
	Grid     *world.Grid
	Paths    *navigation.Pathfinder
	Flow     *navigation.FlowField
	Registry *spatial.Registry[*agents.Entity]
	Spawner  *agents.Spawner

	Entities []*agents.Entity // Spawn order; dead entities are compacted out each tick
	rice     map[world.Coord]*agents.Entity
	shore    []world.Coord

	Events   []Event
	LastTick uint64
	Stats    SimStats
	Flowing  navigation.AdvanceStats // Work done by the last Advance
}

// Event is a notable occurrence in the world.
type Event struct {
	Tick        uint64 `json:"tick"`
	Description string `json:"description"`
	Category    string `json:"category"` // "spawn", "food", "flow"
}

// SimStats tracks aggregate world statistics.
type SimStats struct {
	Humans     int    `json:"humans"`
	Sheep      int    `json:"sheep"`
	Rice       int    `json:"rice"`
	MatureRice int    `json:"mature_rice"`
	Eaten      int    `json:"eaten"`
	Sprouted   int    `json:"sprouted"`
	Routes     int    `json:"routes"`      // A* routes planned
	RouteFails int    `json:"route_fails"` // Destinations with no route
	FlowPasses uint64 `json:"flow_passes"`
}

// NewSimulation creates an empty simulation over g.
func NewSimulation(cfg config.Config, g *world.Grid) (*Simulation, error) {
	flow, err := navigation.NewFlowField(g, cfg.Flow)
	if err != nil {
		return nil, fmt.Errorf("new simulation: %w", err)
	}
	reg, err := spatial.NewRegistry[*agents.Entity](cfg.SpatialCellSize, agents.AllKinds...)
	if err != nil {
		return nil, fmt.Errorf("new simulation: %w", err)
	}
	return &Simulation{
		cfg:      cfg,
		Grid:     g,
		Paths:    navigation.NewPathfinder(g),
		Flow:     flow,
		Registry: reg,
		Spawner:  agents.NewSpawner(cfg.Terrain.Seed, cfg.TileSize),
		rice:     make(map[world.Coord]*agents.Entity),
		shore:    agents.ShoreCells(g),
	}, nil
}

// Config returns the configuration the simulation was built with.
func (s *Simulation) Config() config.Config {
	return s.cfg
}

// Populate spawns the configured number of humans and sheep on random
// passable cells, one entity per cell.
func (s *Simulation) Populate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	occupied := make(map[world.Coord]bool)
	spawn := func(kind spatial.Kind, n int) {
		for i := 0; i < n; i++ {
			c, ok := s.Spawner.RandomPassable(s.Grid, occupied)
			if !ok {
				slog.Warn("no room to spawn", "kind", agents.KindName(kind), "spawned", i, "wanted", n)
				return
			}
			occupied[c] = true
			s.add(s.Spawner.Spawn(kind, c, s.LastTick))
		}
	}
	spawn(agents.KindHuman, s.cfg.Humans)
	spawn(agents.KindSheep, s.cfg.Sheep)
	s.updateStats()

	slog.Info("population spawned", "humans", s.Stats.Humans, "sheep", s.Stats.Sheep)
}

// Restore loads a saved population and goal set. Mature rice is always a goal,
// whether or not goals lists it.
func (s *Simulation) Restore(tick uint64, entities []*agents.Entity, goals []world.Coord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastTick = tick
	for _, e := range entities {
		if !e.Alive {
			continue
		}
		if _, err := s.Grid.CoordOf(e.Pos.Y, e.Pos.X, s.cfg.TileSize); err != nil {
			return fmt.Errorf("restore %s: %w", e.Name, err)
		}
		s.add(e)
	}
	s.Spawner.Restore(entities)

	for _, g := range goals {
		if err := s.Flow.AddGoal(g); err != nil {
			return fmt.Errorf("restore goals: %w", err)
		}
	}
	for c, r := range s.rice {
		if r.Mature() {
			if err := s.Flow.AddGoal(c); err != nil {
				return fmt.Errorf("restore goals: %w", err)
			}
		}
	}
	s.updateStats()
	return nil
}

func (s *Simulation) add(e *agents.Entity) {
	s.Entities = append(s.Entities, e)
	s.Registry.Add(e)
	if e.Type == agents.KindRice {
		if c, err := s.cellOf(e); err == nil {
			s.rice[c] = e
		}
	}
}

func (s *Simulation) cellOf(e *agents.Entity) (world.Coord, error) {
	return s.Grid.CoordOf(e.Pos.Y, e.Pos.X, s.cfg.TileSize)
}

// Tick runs one simulation step: rice grows and sprouts, the flow field does
// one bounded slice of work, sheep follow it, humans walk their A* routes.
func (s *Simulation) Tick(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastTick = tick
	s.growRice(tick)
	s.sproutRice(tick)

	s.Flowing = s.Flow.Advance(s.cfg.NodeBudget, s.cfg.ChunkBudget)
	if s.Flowing.Swapped {
		s.Stats.FlowPasses = s.Flow.Generation()
		slog.Debug("flow field pass complete",
			"tick", tick,
			"generation", s.Flow.Generation(),
			"goals", len(s.Flow.Goals()),
		)
	}

	for _, e := range s.Entities {
		if !e.Alive {
			continue
		}
		switch e.Type {
		case agents.KindSheep:
			s.moveSheep(e, tick)
		case agents.KindHuman:
			s.moveHuman(e)
		}
		e.Age++
	}

	s.compact()
	s.updateStats()
}

// growRice turns rice that has reached maturity into flow-field goals.
func (s *Simulation) growRice(tick uint64) {
	for _, r := range s.Entities {
		if !r.Alive || !r.Mature() {
			continue
		}
		c, err := s.cellOf(r)
		if err != nil || s.Flow.HasGoal(c) {
			continue
		}
		if err := s.Flow.AddGoal(c); err != nil {
			slog.Error("rice goal rejected", "rice", r.Name, "error", err)
			continue
		}
		s.addEvent(tick, "food", fmt.Sprintf("%s ripened", r.Name))
	}
}

// sproutRice plants one rice every spawn period on a free shore cell, or next
// to an existing plant when the drawn shore cell is taken.
func (s *Simulation) sproutRice(tick uint64) {
	if s.cfg.RiceSpawnPeriod == 0 || tick%s.cfg.RiceSpawnPeriod != 0 {
		return
	}
	if len(s.rice) >= s.cfg.MaxRice || len(s.shore) == 0 {
		return
	}
	occupied := make(map[world.Coord]bool, len(s.rice))
	for c := range s.rice {
		occupied[c] = true
	}
	rng := s.Spawner.Rand()
	for try := 0; try < 8; try++ {
		c := s.shore[rng.Intn(len(s.shore))]
		if occupied[c] {
			var ok bool
			if c, ok = s.Spawner.AdjacentWalkable(s.Grid, c, occupied); !ok {
				continue
			}
		}
		r := s.Spawner.Spawn(agents.KindRice, c, tick)
		s.add(r)
		s.Stats.Sprouted++
		s.addEvent(tick, "spawn", fmt.Sprintf("%s sprouted at (%d,%d)", r.Name, c.Row, c.Col))
		return
	}
}

// moveSheep steps a sheep one cell along the flow field and lets it eat any
// mature rice on the cell it ends up on.
func (s *Simulation) moveSheep(e *agents.Entity, tick uint64) {
	cell, err := s.cellOf(e)
	if err != nil {
		slog.Error("sheep off grid", "sheep", e.Name, "error", err)
		return
	}
	dir, err := s.Flow.VectorAt(cell)
	if err != nil {
		slog.Error("flow vector lookup failed", "sheep", e.Name, "error", err)
		return
	}
	if dir.IsZero() {
		dir = s.towardFood(e, cell)
	}
	if !dir.IsZero() && s.Grid.CanStep(cell, dir) {
		cell = cell.Add(dir)
		s.moveTo(e, cell)
	}

	r, ok := s.rice[cell]
	if !ok || !r.Mature() {
		return
	}
	r.Alive = false
	s.Registry.Remove(r)
	delete(s.rice, cell)
	if err := s.Flow.RemoveGoal(cell); err != nil {
		slog.Error("rice goal removal failed", "rice", r.Name, "error", err)
	}
	s.Stats.Eaten++
	s.addEvent(tick, "food", fmt.Sprintf("%s ate %s", e.Name, r.Name))
}

// towardFood steps toward the closest mature rice in sight. It covers cells
// the published flow field does not lead anywhere yet, such as before the
// first pass over a new goal completes.
func (s *Simulation) towardFood(e *agents.Entity, cell world.Coord) world.Dir {
	rice := s.Registry.Index(agents.KindRice)
	r, ok := rice.FindClosestInRadiusFunc(e.Pos, sheepSight*s.cfg.TileSize, (*agents.Entity).Mature)
	if !ok {
		return world.Dir{}
	}
	target, err := s.cellOf(r)
	if err != nil {
		return world.Dir{}
	}
	return world.Dir{DY: int8(cmp.Compare(target.Row, cell.Row)), DX: int8(cmp.Compare(target.Col, cell.Col))}
}

// moveHuman advances a human one cell along its cached route, planning a new
// route to a random destination when the old one is used up.
func (s *Simulation) moveHuman(e *agents.Entity) {
	cell, err := s.cellOf(e)
	if err != nil {
		slog.Error("human off grid", "human", e.Name, "error", err)
		return
	}
	if len(e.Path) == 0 {
		dest, ok := s.Spawner.RandomPassable(s.Grid, nil)
		if !ok || dest == cell {
			return
		}
		path, err := s.Paths.FindPath(cell, dest)
		if err != nil {
			s.Stats.RouteFails++
			slog.Debug("no route", "human", e.Name, "to", dest, "error", err)
			return
		}
		s.Stats.Routes++
		e.Path = path
	}

	next := e.Path[0]
	e.Path = e.Path[1:]
	s.moveTo(e, next)
}

// moveTo places e at the centre of cell c and refiles it in the registry.
func (s *Simulation) moveTo(e *agents.Entity, c world.Coord) {
	old := e.Pos
	y, x := world.Center(c, s.cfg.TileSize)
	e.Pos = spatial.Vec{Y: y, X: x}
	s.Registry.Update(e, old, e.Pos)
}

func (s *Simulation) compact() {
	s.Entities = slices.DeleteFunc(s.Entities, func(e *agents.Entity) bool {
		return !e.Alive
	})
}

func (s *Simulation) addEvent(tick uint64, category, desc string) {
	s.Events = append(s.Events, Event{Tick: tick, Description: desc, Category: category})
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
}

func (s *Simulation) updateStats() {
	humans, sheep, rice, mature := 0, 0, 0, 0
	for _, e := range s.Entities {
		if !e.Alive {
			continue
		}
		switch e.Type {
		case agents.KindHuman:
			humans++
		case agents.KindSheep:
			sheep++
		case agents.KindRice:
			rice++
			if e.Mature() {
				mature++
			}
		}
	}
	s.Stats.Humans = humans
	s.Stats.Sheep = sheep
	s.Stats.Rice = rice
	s.Stats.MatureRice = mature
}

// Status is a read-only summary of the simulation.
type Status struct {
	Tick        uint64                  `json:"tick"`
	Width       int                     `json:"width"`
	Height      int                     `json:"height"`
	Stats       SimStats                `json:"stats"`
	Goals       int                     `json:"goals"`
	CostState   string                  `json:"cost_state"`
	Generation  uint64                  `json:"generation"`
	DirtyChunks int                     `json:"dirty_chunks"`
	Converged   bool                    `json:"converged"`
	Terrain     map[string]int          `json:"terrain"`
	Indexed     map[string]int          `json:"indexed"`
	LastAdvance navigation.AdvanceStats `json:"last_advance"`
}

// Status returns a snapshot of the simulation's counters.
func (s *Simulation) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	indexed := make(map[string]int, len(agents.AllKinds))
	for _, k := range agents.AllKinds {
		indexed[agents.KindName(k)] = s.Registry.Index(k).Len()
	}
	return Status{
		Tick:        s.LastTick,
		Width:       s.Grid.Width,
		Height:      s.Grid.Height,
		Stats:       s.Stats,
		Goals:       len(s.Flow.Goals()),
		CostState:   s.Flow.CostState().String(),
		Generation:  s.Flow.Generation(),
		DirtyChunks: s.Flow.DirtyChunks(),
		Converged:   s.Flow.Converged(),
		Terrain:     s.Grid.Counts(),
		Indexed:     indexed,
		LastAdvance: s.Flowing,
	}
}

// VectorAt returns the published flow direction at c.
func (s *Simulation) VectorAt(c world.Coord) (world.Dir, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Flow.VectorAt(c)
}

// FindPath plans an A* route over the simulation's grid.
func (s *Simulation) FindPath(from, to world.Coord) ([]world.Coord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Paths.FindPath(from, to)
}

// Nearby returns copies of the entities of kind within radius of pos, closest
// first.
func (s *Simulation) Nearby(kind spatial.Kind, pos spatial.Vec, radius float64) ([]agents.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ix := s.Registry.Index(kind)
	if ix == nil {
		return nil, fmt.Errorf("nearby: kind %d not tracked", kind)
	}
	found := ix.FindInRadius(pos, radius)
	slices.SortStableFunc(found, func(a, b *agents.Entity) int {
		return cmp.Compare(a.Pos.DistSq(pos), b.Pos.DistSq(pos))
	})
	out := make([]agents.Entity, len(found))
	for i, e := range found {
		out[i] = *e
		out[i].Path = nil
	}
	return out, nil
}

// Snapshot returns deep copies of the live entities and the goal set, for
// persistence.
func (s *Simulation) Snapshot() (tick uint64, entities []agents.Entity, goals []world.Coord) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entities = make([]agents.Entity, 0, len(s.Entities))
	for _, e := range s.Entities {
		if !e.Alive {
			continue
		}
		cp := *e
		cp.Path = slices.Clone(e.Path)
		entities = append(entities, cp)
	}
	return s.LastTick, entities, s.Flow.Goals()
}

// RecentEvents returns up to limit of the newest events, oldest first.
func (s *Simulation) RecentEvents(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.Events) > limit {
		start = len(s.Events) - limit
	}
	return slices.Clone(s.Events[start:])
}
