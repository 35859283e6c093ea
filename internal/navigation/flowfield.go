package navigation

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"slices"

	"github.com/zyedidia/generic/mapset"

	"github.com/VerechoTJI/SimulationGame/internal/world"
)

// CostState is the phase of the cost-field computation.
type CostState uint8

const (
	StateIdle       CostState = iota // No pending work
	StateNeeded                      // Goals changed, computation not started yet
	StateInProgress                  // Dijkstra running across Advance calls
)

// String returns a human-readable name for the state.
func (s CostState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNeeded:
		return "needed"
	case StateInProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// FlowConfig holds flow-field construction parameters.
type FlowConfig struct {
	ChunkSize int   `json:"chunk_size"` // Side length of a regeneration chunk, in cells
	Seed      int64 `json:"seed"`       // Seeds the dirty-chunk shuffle
}

// DefaultFlowConfig returns the standard flow-field parameters.
func DefaultFlowConfig() FlowConfig {
	return FlowConfig{ChunkSize: 8, Seed: 1}
}

// AdvanceStats reports the work one Advance call performed.
type AdvanceStats struct {
	NodesExpanded     int  `json:"nodes_expanded"`
	ChunksRegenerated int  `json:"chunks_regenerated"`
	Swapped           bool `json:"swapped"` // A new cost field was published this call
}

// costField holds the accumulated cost to the nearest goal per cell, +Inf if unreached.
type costField []float64

func newCostField(size int) costField {
	f := make(costField, size)
	f.reset()
	return f
}

func (f costField) reset() {
	inf := math.Inf(1)
	for i := range f {
		f[i] = inf
	}
}

// FlowField maintains a direction per cell pointing toward the nearest member of
// a dynamic goal set.
//
// Two cost buffers exist: active is the last completed field and is only ever
// read; recalculating is filled by a time-sliced multi-source Dijkstra. When the
// Dijkstra finishes the two are swapped, and direction chunks are regenerated
// from the new active buffer a few at a time. Directions are therefore always
// derived from a complete cost field.
//
// FlowField is not safe for concurrent use; callers drive it from one tick loop.
type FlowField struct {
	grid      *world.Grid
	chunkSize int

	active        costField
	recalculating costField
	directions    []world.Dir

	goals               mapset.Set[world.Coord]
	recalculationNeeded bool
	inProgress          bool
	frontier            *frontier

	dirty      *chunkQueue
	rng        *rand.Rand
	generation uint64 // Completed cost passes
}

// NewFlowField creates a flow field over g with an empty goal set. Until the
// first pass completes every vector is zero.
func NewFlowField(g *world.Grid, cfg FlowConfig) (*FlowField, error) {
	if g == nil {
		return nil, fmt.Errorf("new flow field: nil grid")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("new flow field: chunk size %d must be positive", cfg.ChunkSize)
	}

	chunkRows := (g.Height + cfg.ChunkSize - 1) / cfg.ChunkSize
	chunkCols := (g.Width + cfg.ChunkSize - 1) / cfg.ChunkSize

	return &FlowField{
		grid:          g,
		chunkSize:     cfg.ChunkSize,
		active:        newCostField(g.Size()),
		recalculating: newCostField(g.Size()),
		directions:    make([]world.Dir, g.Size()),
		goals:         mapset.New[world.Coord](),
		frontier:      newFrontier(),
		dirty:         newChunkQueue(chunkRows, chunkCols),
		rng:           rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// AddGoal adds c to the goal set. Impassable goals are accepted but never seeded.
// Adding a goal already in the set does not schedule a new pass.
func (f *FlowField) AddGoal(c world.Coord) error {
	if err := f.grid.Check(c); err != nil {
		return fmt.Errorf("add goal: %w", err)
	}
	if f.goals.Has(c) {
		return nil
	}
	f.goals.Put(c)
	f.recalculationNeeded = true
	return nil
}

// RemoveGoal removes c from the goal set. Removing an absent goal is a no-op
// and does not schedule a new pass.
func (f *FlowField) RemoveGoal(c world.Coord) error {
	if err := f.grid.Check(c); err != nil {
		return fmt.Errorf("remove goal: %w", err)
	}
	if !f.goals.Has(c) {
		return nil
	}
	f.goals.Remove(c)
	f.recalculationNeeded = true
	return nil
}

// HasGoal reports whether c is currently a goal.
func (f *FlowField) HasGoal(c world.Coord) bool {
	return f.goals.Has(c)
}

// Goals returns the current goal set sorted by row, then column.
func (f *FlowField) Goals() []world.Coord {
	goals := make([]world.Coord, 0, f.goals.Size())
	f.goals.Each(func(c world.Coord) {
		goals = append(goals, c)
	})
	slices.SortFunc(goals, func(a, b world.Coord) int {
		if a.Row != b.Row {
			return cmp.Compare(a.Row, b.Row)
		}
		return cmp.Compare(a.Col, b.Col)
	})
	return goals
}

// CostState returns the current phase of the cost computation.
func (f *FlowField) CostState() CostState {
	switch {
	case f.inProgress:
		return StateInProgress
	case f.recalculationNeeded:
		return StateNeeded
	default:
		return StateIdle
	}
}

// Generation returns how many cost passes have been published.
func (f *FlowField) Generation() uint64 {
	return f.generation
}

// DirtyChunks returns the number of chunks waiting for vector regeneration.
func (f *FlowField) DirtyChunks() int {
	return f.dirty.len()
}

// Converged reports whether no cost or vector work is pending.
func (f *FlowField) Converged() bool {
	return !f.recalculationNeeded && !f.inProgress && f.dirty.len() == 0
}

// VectorAt returns the step direction at c. It never blocks and never reflects
// a partially computed cost field.
func (f *FlowField) VectorAt(c world.Coord) (world.Dir, error) {
	if err := f.grid.Check(c); err != nil {
		return world.Dir{}, fmt.Errorf("vector at: %w", err)
	}
	return f.directions[f.grid.Index(c)], nil
}

// Advance performs one tick of bounded work: up to nodeBudget Dijkstra pops,
// then up to chunkBudget chunk regenerations. The host loop calls it once per tick.
func (f *FlowField) Advance(nodeBudget, chunkBudget int) AdvanceStats {
	var stats AdvanceStats

	if f.recalculationNeeded && !f.inProgress {
		f.seed()
	}
	if f.inProgress {
		stats.NodesExpanded = f.expand(nodeBudget)
		if f.frontier.len() == 0 {
			f.swap()
			stats.Swapped = true
		}
	}
	stats.ChunksRegenerated = f.regenerate(chunkBudget)

	return stats
}

// seed starts a fresh multi-source Dijkstra from every passable goal.
func (f *FlowField) seed() {
	f.recalculationNeeded = false
	f.inProgress = true
	f.frontier.reset()

	// Sorted so float accumulation order is identical across runs.
	for _, c := range f.Goals() {
		if !f.grid.Passable(c) {
			continue
		}
		idx := f.grid.Index(c)
		f.recalculating[idx] = 0
		f.frontier.push(idx, 0)
	}
}

// expand pops up to budget frontier cells and relaxes their neighbours.
// Costs mirror the A* model: an agent stepping from a neighbour into the popped
// cell pays that cell's entry cost.
func (f *FlowField) expand(budget int) int {
	g := f.grid
	popped := 0
	for popped < budget {
		entry, ok := f.frontier.pop()
		if !ok {
			break
		}
		popped++

		if entry.priority > f.recalculating[entry.idx] {
			continue // Stale entry
		}

		current := g.CoordAt(entry.idx)
		for _, d := range world.Directions {
			// CanStep is symmetric, so this also validates the reverse move.
			if !g.CanStep(current, d) {
				continue
			}
			nIdx := g.Index(current.Add(d))
			newCost := entry.priority + g.StepCost(current, d.Diagonal())
			if newCost < f.recalculating[nIdx] {
				f.recalculating[nIdx] = newCost
				f.frontier.push(nIdx, newCost)
			}
		}
	}
	return popped
}

// swap publishes the finished buffer and schedules every chunk for regeneration.
func (f *FlowField) swap() {
	f.active, f.recalculating = f.recalculating, f.active
	f.recalculating.reset()
	f.inProgress = false
	f.generation++
	f.dirty.pushAllShuffled(f.rng)

	slog.Debug("flow field published",
		"generation", f.generation,
		"goals", f.goals.Size(),
		"dirty_chunks", f.dirty.len(),
	)
}

// regenerate rebuilds up to budget dirty chunks from the active cost field.
func (f *FlowField) regenerate(budget int) int {
	done := 0
	for done < budget {
		ch, ok := f.dirty.pop()
		if !ok {
			break
		}
		f.regenerateChunk(ch)
		done++
	}
	return done
}

func (f *FlowField) regenerateChunk(ch chunkCoord) {
	g := f.grid
	rowEnd := min((ch.Row+1)*f.chunkSize, g.Height)
	colEnd := min((ch.Col+1)*f.chunkSize, g.Width)

	for r := ch.Row * f.chunkSize; r < rowEnd; r++ {
		for c := ch.Col * f.chunkSize; c < colEnd; c++ {
			cell := world.Coord{Row: r, Col: c}
			f.directions[g.Index(cell)] = f.steepestDescent(cell)
		}
	}
}

// steepestDescent picks the neighbour with the lowest active cost strictly below
// the cell's own. Ties keep the first neighbour in enumeration order. Goal and
// unreachable cells get the zero vector.
func (f *FlowField) steepestDescent(cell world.Coord) world.Dir {
	g := f.grid
	best := f.active[g.Index(cell)]
	if math.IsInf(best, 1) {
		return world.Dir{}
	}

	var bestDir world.Dir
	for _, d := range world.Directions {
		if !g.CanStep(cell, d) {
			continue
		}
		nCost := f.active[g.Index(cell.Add(d))]
		if nCost < best {
			best = nCost
			bestDir = d
		}
	}
	return bestDir
}
