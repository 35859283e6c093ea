package navigation

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VerechoTJI/SimulationGame/internal/world"
)

var (
	north = world.Dir{DY: -1, DX: 0}
	south = world.Dir{DY: 1, DX: 0}
	west  = world.Dir{DY: 0, DX: -1}
	east  = world.Dir{DY: 0, DX: 1}
	still = world.Dir{}
)

func parseGrid(t *testing.T, rows ...string) *world.Grid {
	t.Helper()
	g, err := world.ParseGrid(rows)
	require.NoError(t, err)
	return g
}

func newField(t *testing.T, g *world.Grid, chunkSize int, goals ...world.Coord) *FlowField {
	t.Helper()
	f, err := NewFlowField(g, FlowConfig{ChunkSize: chunkSize, Seed: 1})
	require.NoError(t, err)
	for _, c := range goals {
		require.NoError(t, f.AddGoal(c))
	}
	return f
}

// converge drives f until no work is pending.
func converge(t *testing.T, f *FlowField, nodeBudget, chunkBudget int) int {
	t.Helper()
	limit := 10*f.grid.Size() + 100
	for calls := 1; calls <= limit; calls++ {
		f.Advance(nodeBudget, chunkBudget)
		if f.Converged() {
			return calls
		}
	}
	require.FailNow(t, "flow field did not converge")
	return 0
}

func vec(t *testing.T, f *FlowField, r, c int) world.Dir {
	t.Helper()
	d, err := f.VectorAt(world.Coord{Row: r, Col: c})
	require.NoError(t, err)
	return d
}

var uGrid = []string{
	".....",
	".~~~.",
	"...~.",
	".~~~.",
	".....",
}

func TestFlowFieldSingleGoal(t *testing.T) {
	g := parseGrid(t, uGrid...)
	f := newField(t, g, 2, world.Coord{Row: 2, Col: 2})
	converge(t, f, 1000, 1000)

	assert.Equal(t, south, vec(t, f, 0, 0))
	assert.Equal(t, east, vec(t, f, 2, 0))
	assert.Equal(t, west, vec(t, f, 4, 4))
	assert.Equal(t, still, vec(t, f, 2, 2), "goal")
	assert.Equal(t, still, vec(t, f, 1, 1), "water")
	assert.Equal(t, still, vec(t, f, 3, 3), "water")
}

func TestFlowFieldMultipleGoals(t *testing.T) {
	g := parseGrid(t, uGrid...)
	f := newField(t, g, 2, world.Coord{Row: 0, Col: 4}, world.Coord{Row: 4, Col: 0})
	converge(t, f, 1000, 1000)

	assert.Equal(t, east, vec(t, f, 0, 3))
	assert.Equal(t, north, vec(t, f, 1, 4))
	assert.Equal(t, west, vec(t, f, 4, 1))
	assert.Equal(t, south, vec(t, f, 3, 0))
	assert.Equal(t, west, vec(t, f, 2, 2))
	// Equidistant from both goals: the cardinal listed first wins.
	assert.Equal(t, south, vec(t, f, 0, 0))
}

func TestFlowFieldUnreachableCells(t *testing.T) {
	g := parseGrid(t,
		".~.",
		".~.",
		".~.",
	)
	f := newField(t, g, 8, world.Coord{Row: 1, Col: 2})
	converge(t, f, 1000, 1000)

	for r := 0; r < 3; r++ {
		assert.Equal(t, still, vec(t, f, r, 0), "row %d", r)
		assert.True(t, math.IsInf(f.active[g.Index(world.Coord{Row: r, Col: 0})], 1))
	}
	assert.Equal(t, south, vec(t, f, 0, 2))
	assert.Equal(t, north, vec(t, f, 2, 2))
}

func TestFlowFieldNoGoals(t *testing.T) {
	g := parseGrid(t, "...", "...")
	f := newField(t, g, 2)

	assert.Equal(t, StateIdle, f.CostState())
	assert.True(t, f.Converged())
	stats := f.Advance(100, 100)
	assert.Equal(t, AdvanceStats{}, stats)
	for r := 0; r < g.Height; r++ {
		for c := 0; c < g.Width; c++ {
			assert.Equal(t, still, vec(t, f, r, c))
		}
	}
}

func TestFlowFieldImpassableGoalIgnored(t *testing.T) {
	g := parseGrid(t, "..~", "...")
	f := newField(t, g, 2, world.Coord{Row: 0, Col: 2})
	assert.True(t, f.HasGoal(world.Coord{Row: 0, Col: 2}))

	converge(t, f, 1000, 1000)
	assert.Equal(t, uint64(1), f.Generation())
	for r := 0; r < g.Height; r++ {
		for c := 0; c < g.Width; c++ {
			assert.Equal(t, still, vec(t, f, r, c))
		}
	}
}

func TestFlowFieldGoalOutOfBounds(t *testing.T) {
	g := parseGrid(t, "...")
	f := newField(t, g, 2)

	assert.ErrorIs(t, f.AddGoal(world.Coord{Row: 1, Col: 0}), world.ErrOutOfBounds)
	assert.ErrorIs(t, f.RemoveGoal(world.Coord{Row: 0, Col: -1}), world.ErrOutOfBounds)
	_, err := f.VectorAt(world.Coord{Row: 0, Col: 3})
	assert.ErrorIs(t, err, world.ErrOutOfBounds)
	assert.Equal(t, StateIdle, f.CostState())
}

func TestNewFlowFieldRejectsBadConfig(t *testing.T) {
	g := parseGrid(t, "...")
	_, err := NewFlowField(g, FlowConfig{ChunkSize: 0})
	assert.Error(t, err)
	_, err = NewFlowField(nil, DefaultFlowConfig())
	assert.Error(t, err)
}

func TestFlowFieldGoalSetChanges(t *testing.T) {
	g := parseGrid(t, "....")
	a := world.Coord{Row: 0, Col: 0}
	b := world.Coord{Row: 0, Col: 3}
	f := newField(t, g, 4, a)
	converge(t, f, 100, 100)
	assert.Equal(t, west, vec(t, f, 0, 3))

	// Re-adding an existing goal changes nothing.
	require.NoError(t, f.AddGoal(a))
	assert.Equal(t, StateIdle, f.CostState())
	// Removing an absent goal changes nothing.
	require.NoError(t, f.RemoveGoal(b))
	assert.Equal(t, StateIdle, f.CostState())

	require.NoError(t, f.AddGoal(b))
	require.NoError(t, f.RemoveGoal(a))
	assert.Equal(t, StateNeeded, f.CostState())
	assert.Equal(t, []world.Coord{b}, f.Goals())

	converge(t, f, 100, 100)
	assert.Equal(t, east, vec(t, f, 0, 0))
	assert.Equal(t, still, vec(t, f, 0, 3))

	require.NoError(t, f.RemoveGoal(b))
	converge(t, f, 100, 100)
	assert.Empty(t, f.Goals())
	for c := 0; c < g.Width; c++ {
		assert.Equal(t, still, vec(t, f, 0, c))
	}
}

func TestFlowFieldStateMachine(t *testing.T) {
	g := parseGrid(t,
		"........",
		"........",
		"........",
		"........",
	)
	f := newField(t, g, 4)
	assert.Equal(t, StateIdle, f.CostState())
	assert.Equal(t, "idle", f.CostState().String())

	require.NoError(t, f.AddGoal(world.Coord{Row: 0, Col: 0}))
	assert.Equal(t, StateNeeded, f.CostState())
	assert.Equal(t, "needed", f.CostState().String())

	stats := f.Advance(1, 0)
	assert.Equal(t, 1, stats.NodesExpanded)
	assert.False(t, stats.Swapped)
	assert.Equal(t, StateInProgress, f.CostState())
	assert.Equal(t, "in_progress", f.CostState().String())

	// A change during a pass does not restart it; it queues another.
	require.NoError(t, f.AddGoal(world.Coord{Row: 3, Col: 7}))
	assert.Equal(t, StateInProgress, f.CostState())

	for f.CostState() == StateInProgress {
		f.Advance(1, 0)
	}
	assert.Equal(t, uint64(1), f.Generation())
	assert.Equal(t, StateNeeded, f.CostState())

	converge(t, f, 1, 1)
	assert.Equal(t, uint64(2), f.Generation())
	assert.Equal(t, StateIdle, f.CostState())
	assert.Equal(t, 0, f.DirtyChunks())
}

func TestFlowFieldBudgets(t *testing.T) {
	g := parseGrid(t,
		"........",
		"........",
		"........",
		"........",
	)
	f := newField(t, g, 2, world.Coord{Row: 0, Col: 0})

	for f.CostState() != StateIdle {
		stats := f.Advance(3, 0)
		assert.LessOrEqual(t, stats.NodesExpanded, 3)
		assert.Zero(t, stats.ChunksRegenerated)
	}
	// 4x2 chunks of 2x2 cells.
	assert.Equal(t, 8, f.DirtyChunks())

	stats := f.Advance(3, 3)
	assert.Equal(t, 3, stats.ChunksRegenerated)
	assert.Equal(t, 5, f.DirtyChunks())
	assert.Zero(t, stats.NodesExpanded)

	converge(t, f, 3, 3)
	assert.Equal(t, 0, f.DirtyChunks())
}

func TestFlowFieldDoubleBuffer(t *testing.T) {
	g := parseGrid(t,
		"......",
		"......",
		"......",
		"......",
	)
	left := world.Coord{Row: 1, Col: 0}
	right := world.Coord{Row: 1, Col: 5}
	f := newField(t, g, 2, left)
	converge(t, f, 1000, 1000)

	snapshot := func() []world.Dir {
		return append([]world.Dir(nil), f.directions...)
	}
	before := snapshot()
	assert.Equal(t, west, vec(t, f, 1, 4))

	require.NoError(t, f.RemoveGoal(left))
	require.NoError(t, f.AddGoal(right))

	// While the pass runs, readers keep seeing the last complete field.
	f.Advance(1, 1000)
	require.Equal(t, StateInProgress, f.CostState())
	for f.CostState() == StateInProgress {
		assert.Equal(t, before, snapshot())
		f.Advance(1, 1000)
	}

	// The swap call regenerates chunks from the new field in the same call.
	converge(t, f, 1000, 1000)
	assert.Equal(t, east, vec(t, f, 1, 1))
	assert.Equal(t, still, vec(t, f, 1, 5))
}

func TestFlowFieldStaleVectorsStayConsistent(t *testing.T) {
	g := parseGrid(t,
		"......",
		"......",
	)
	f := newField(t, g, 2, world.Coord{Row: 0, Col: 0})
	converge(t, f, 1000, 1000)

	require.NoError(t, f.RemoveGoal(world.Coord{Row: 0, Col: 0}))
	require.NoError(t, f.AddGoal(world.Coord{Row: 0, Col: 5}))

	// Publish the new cost field but regenerate one chunk at a time; every
	// cell is either from the old field or fully from the new one.
	for f.CostState() != StateIdle {
		f.Advance(1000, 0)
	}
	oldField := append([]world.Dir(nil), f.directions...)
	for f.DirtyChunks() > 0 {
		f.Advance(0, 1)
		for i, d := range f.directions {
			c := g.CoordAt(i)
			if d != oldField[i] {
				assert.Equal(t, f.steepestDescent(c), d, "%v", c)
			}
		}
	}
	assert.Equal(t, east, vec(t, f, 0, 0))
}

func TestFlowFieldDescendsToGoal(t *testing.T) {
	cfg := world.SmallTestConfig()
	cfg.Width, cfg.Height = 40, 30
	g, err := world.Generate(cfg)
	require.NoError(t, err)

	cells := world.PassableCells(g)
	require.GreaterOrEqual(t, len(cells), 3)
	goals := []world.Coord{cells[0], cells[len(cells)/2], cells[len(cells)-1]}

	f := newField(t, g, 8, goals...)
	converge(t, f, 64, 2)

	pf := NewPathfinder(g)
	for _, start := range cells {
		d := vec(t, f, start.Row, start.Col)
		cost := f.active[g.Index(start)]

		if f.HasGoal(start) {
			assert.Equal(t, still, d)
			assert.Zero(t, cost)
			continue
		}

		reachable := false
		for _, goal := range goals {
			if _, err := pf.FindPath(start, goal); err == nil {
				reachable = true
				break
			}
		}
		if !reachable {
			assert.Equal(t, still, d, "unreachable %v", start)
			assert.True(t, math.IsInf(cost, 1))
			continue
		}

		// Following the field strictly lowers cost and ends on a goal.
		require.False(t, d.IsZero(), "reachable %v has no direction", start)
		cur := start
		for steps := 0; !f.HasGoal(cur); steps++ {
			require.Less(t, steps, g.Size(), "loop from %v", start)
			step := vec(t, f, cur.Row, cur.Col)
			require.True(t, g.CanStep(cur, step), "illegal step at %v", cur)
			next := cur.Add(step)
			require.Less(t, f.active[g.Index(next)], f.active[g.Index(cur)])
			cur = next
		}
	}
}

func TestFlowFieldDeterministic(t *testing.T) {
	cfg := world.SmallTestConfig()
	g, err := world.Generate(cfg)
	require.NoError(t, err)
	cells := world.PassableCells(g)
	require.NotEmpty(t, cells)

	run := func() ([]world.Dir, int) {
		f := newField(t, g, 4, cells[0], cells[len(cells)-1])
		calls := converge(t, f, 7, 1)
		return f.directions, calls
	}
	d1, c1 := run()
	d2, c2 := run()
	assert.Equal(t, d1, d2)
	assert.Equal(t, c1, c2)
}

func TestChunkQueue(t *testing.T) {
	q := newChunkQueue(2, 3)
	q.push(chunkCoord{Row: 0, Col: 1})
	q.push(chunkCoord{Row: 0, Col: 1})
	q.push(chunkCoord{Row: 1, Col: 2})
	assert.Equal(t, 2, q.len())

	ch, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, chunkCoord{Row: 0, Col: 1}, ch)

	// Popped chunks can be queued again.
	q.push(chunkCoord{Row: 0, Col: 1})
	assert.Equal(t, 2, q.len())

	q.pushAllShuffled(rand.New(rand.NewSource(3)))
	assert.Equal(t, 6, q.len())

	seen := map[chunkCoord]bool{}
	for q.len() > 0 {
		ch, ok := q.pop()
		require.True(t, ok)
		assert.False(t, seen[ch], "%v twice", ch)
		seen[ch] = true
	}
	assert.Len(t, seen, 6)
	_, ok = q.pop()
	assert.False(t, ok)
}

func TestFrontierOrder(t *testing.T) {
	fr := newFrontier()
	fr.push(4, 2.0)
	fr.push(1, 1.0)
	fr.push(2, 1.0)
	fr.push(3, 0.5)

	var order []int
	for fr.len() > 0 {
		e, ok := fr.pop()
		require.True(t, ok)
		order = append(order, e.idx)
	}
	// Equal priorities pop in insertion order.
	assert.Equal(t, []int{3, 1, 2, 4}, order)

	_, ok := fr.pop()
	assert.False(t, ok)
}
