package spatial

import (
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mob struct {
	name string
	kind Kind
	pos  Vec
}

func (m *mob) Position() Vec { return m.pos }
func (m *mob) Kind() Kind    { return m.kind }

func newIndex(t *testing.T, cellSize float64) *Index[*mob] {
	t.Helper()
	ix, err := New[*mob](cellSize)
	require.NoError(t, err)
	return ix
}

// move updates m's position and refiles it.
func move(ix *Index[*mob], m *mob, to Vec) {
	old := m.pos
	m.pos = to
	ix.Update(m, old, to)
}

func names(ms []*mob) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.name
	}
	slices.Sort(out)
	return out
}

func TestNewRejectsBadCellSize(t *testing.T) {
	for _, size := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := New[*mob](size)
		assert.Error(t, err, "%v", size)
	}
}

func TestKeyOf(t *testing.T) {
	ix := newIndex(t, 10)
	assert.Equal(t, cellKey{Row: 2, Col: 5}, ix.keyOf(Vec{Y: 25, X: 58}))
	assert.Equal(t, cellKey{Row: 0, Col: 0}, ix.keyOf(Vec{Y: 0, X: 9.999}))
	// Negative positions floor away from zero.
	assert.Equal(t, cellKey{Row: -1, Col: -1}, ix.keyOf(Vec{Y: -0.5, X: -10}))
	assert.Equal(t, cellKey{Row: -2, Col: 0}, ix.keyOf(Vec{Y: -10.5, X: 0}))
}

func TestAddRemove(t *testing.T) {
	ix := newIndex(t, 10)
	a := &mob{name: "a", pos: Vec{Y: 5, X: 5}}
	b := &mob{name: "b", pos: Vec{Y: 6, X: 6}}
	c := &mob{name: "c", pos: Vec{Y: 95, X: 95}}

	ix.Add(a)
	ix.Add(b)
	ix.Add(c)
	assert.Equal(t, 3, ix.Len())
	assert.Equal(t, 2, ix.Cells())

	ix.Remove(a)
	assert.Equal(t, 2, ix.Len())
	ix.Remove(a)
	assert.Equal(t, 2, ix.Len(), "removing twice is a no-op")

	ix.Remove(c)
	assert.Equal(t, 1, ix.Cells(), "empty cells are dropped")
	assert.Equal(t, []string{"b"}, names(ix.FindNearby(Vec{Y: 5, X: 5})))
}

func TestFindNearby(t *testing.T) {
	ix := newIndex(t, 10)
	for _, m := range []*mob{
		{name: "same", pos: Vec{Y: 15, X: 15}},
		{name: "north", pos: Vec{Y: 5, X: 15}},
		{name: "southeast", pos: Vec{Y: 29.9, X: 29.9}},
		{name: "west", pos: Vec{Y: 15, X: 0}},
		{name: "far", pos: Vec{Y: 30, X: 15}},
		{name: "farther", pos: Vec{Y: 150, X: 150}},
	} {
		ix.Add(m)
	}

	got := names(ix.FindNearby(Vec{Y: 12, X: 18}))
	assert.Equal(t, []string{"north", "same", "southeast", "west"}, got)
	assert.Empty(t, ix.FindNearby(Vec{Y: -100, X: -100}))
}

func TestUpdateMovesBetweenCells(t *testing.T) {
	ix := newIndex(t, 10)
	m := &mob{name: "m", pos: Vec{Y: 5, X: 5}}
	ix.Add(m)

	move(ix, m, Vec{Y: 8, X: 8})
	assert.Equal(t, 1, ix.Len())
	assert.Equal(t, 1, ix.Cells())

	move(ix, m, Vec{Y: 55, X: 55})
	assert.Equal(t, 1, ix.Len())
	assert.Empty(t, ix.FindNearby(Vec{Y: 5, X: 5}))
	assert.Equal(t, []string{"m"}, names(ix.FindNearby(Vec{Y: 55, X: 55})))

	move(ix, m, Vec{Y: -5, X: -5})
	assert.Equal(t, []string{"m"}, names(ix.FindInRadius(Vec{}, 8)))
}

func TestFindInRadius(t *testing.T) {
	ix := newIndex(t, 10)
	for _, m := range []*mob{
		{name: "origin", pos: Vec{Y: 0, X: 0}},
		{name: "edge", pos: Vec{Y: 0, X: 25}},
		{name: "diag", pos: Vec{Y: 15, X: 15}},
		{name: "outside", pos: Vec{Y: 0, X: 25.01}},
		{name: "behind", pos: Vec{Y: -20, X: -10}},
	} {
		ix.Add(m)
	}

	got := names(ix.FindInRadius(Vec{}, 25))
	assert.Equal(t, []string{"behind", "diag", "edge", "origin"}, got)

	assert.Equal(t, []string{"origin"}, names(ix.FindInRadius(Vec{}, 1)))
	assert.Empty(t, ix.FindInRadius(Vec{}, 0), "zero radius")
	assert.Empty(t, ix.FindInRadius(Vec{}, -5))
	assert.Empty(t, ix.FindInRadius(Vec{}, math.NaN()))
	assert.Len(t, ix.FindInRadius(Vec{}, math.Inf(1)), 5)
	assert.Len(t, ix.FindInRadius(Vec{}, 1e12), 5)
}

func TestFindClosestInRadius(t *testing.T) {
	ix := newIndex(t, 10)
	near := &mob{name: "near", pos: Vec{Y: 3, X: 4}}
	mid := &mob{name: "mid", pos: Vec{Y: 0, X: 12}}
	far := &mob{name: "far", pos: Vec{Y: 40, X: 0}}
	ix.Add(far)
	ix.Add(mid)
	ix.Add(near)

	got, ok := ix.FindClosestInRadius(Vec{}, 50)
	require.True(t, ok)
	assert.Same(t, near, got)

	got, ok = ix.FindClosestInRadiusFunc(Vec{}, 50, func(m *mob) bool { return m != near })
	require.True(t, ok)
	assert.Same(t, mid, got)

	_, ok = ix.FindClosestInRadius(Vec{}, 4.9)
	assert.False(t, ok)
	_, ok = ix.FindClosestInRadius(Vec{}, 0)
	assert.False(t, ok)
	_, ok = ix.FindClosestInRadiusFunc(Vec{}, 50, func(*mob) bool { return false })
	assert.False(t, ok)
}

// The index must answer every query exactly like a linear scan, no matter how
// entities were added, moved and removed.
func TestIndexMatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ix := newIndex(t, 7)

	randomPos := func() Vec {
		return Vec{Y: rng.Float64()*200 - 100, X: rng.Float64()*200 - 100}
	}

	var live []*mob
	for step := 0; step < 2000; step++ {
		switch op := rng.Intn(10); {
		case op < 4 || len(live) == 0:
			m := &mob{name: string(rune('a'+step%26)) + string(rune('0'+step%10)), pos: randomPos()}
			ix.Add(m)
			live = append(live, m)
		case op < 8:
			m := live[rng.Intn(len(live))]
			to := m.pos
			to.Y += rng.Float64()*20 - 10
			to.X += rng.Float64()*20 - 10
			move(ix, m, to)
		default:
			i := rng.Intn(len(live))
			ix.Remove(live[i])
			live = slices.Delete(live, i, i+1)
		}

		if step%50 != 0 {
			continue
		}
		require.Equal(t, len(live), ix.Len())

		center := randomPos()
		radius := rng.Float64() * 40
		var want []*mob
		for _, m := range live {
			if m.pos.DistSq(center) <= radius*radius {
				want = append(want, m)
			}
		}
		got := ix.FindInRadius(center, radius)
		assert.ElementsMatch(t, want, got, "step %d", step)

		ck := ix.keyOf(center)
		var block []*mob
		for _, m := range live {
			k := ix.keyOf(m.pos)
			if abs(k.Row-ck.Row) <= 1 && abs(k.Col-ck.Col) <= 1 {
				block = append(block, m)
			}
		}
		assert.ElementsMatch(t, block, ix.FindNearby(center), "nearby step %d", step)
	}
}

func TestScanOrderDeterministic(t *testing.T) {
	build := func() *Index[*mob] {
		ix := newIndex(t, 5)
		rng := rand.New(rand.NewSource(3))
		for i := 0; i < 300; i++ {
			ix.Add(&mob{name: string(rune('A' + i%26)), pos: Vec{Y: rng.Float64() * 100, X: rng.Float64() * 100}})
		}
		return ix
	}
	a, b := build(), build()

	for _, radius := range []float64{3, 20, 1000} {
		pa := a.FindInRadius(Vec{Y: 50, X: 50}, radius)
		pb := b.FindInRadius(Vec{Y: 50, X: 50}, radius)
		require.Equal(t, len(pa), len(pb))
		for i := range pa {
			assert.Equal(t, pa[i].pos, pb[i].pos, "radius %v item %d", radius, i)
		}
	}
}

func TestRegistry(t *testing.T) {
	const (
		prey Kind = iota
		food
		ghost
	)
	reg, err := NewRegistry[*mob](10, prey, food)
	require.NoError(t, err)

	sheep := &mob{name: "sheep", kind: prey, pos: Vec{Y: 1, X: 1}}
	rice := &mob{name: "rice", kind: food, pos: Vec{Y: 2, X: 2}}
	spirit := &mob{name: "spirit", kind: ghost, pos: Vec{Y: 3, X: 3}}
	reg.Add(sheep)
	reg.Add(rice)
	reg.Add(spirit)

	assert.Equal(t, 2, reg.Len(), "unregistered kinds are ignored")
	assert.Nil(t, reg.Index(ghost))
	assert.Equal(t, []string{"sheep"}, names(reg.Index(prey).FindInRadius(Vec{}, 10)))
	assert.Equal(t, []string{"rice"}, names(reg.Index(food).FindInRadius(Vec{}, 10)))

	old := sheep.pos
	sheep.pos = Vec{Y: 80, X: 80}
	reg.Update(sheep, old, sheep.pos)
	assert.Empty(t, reg.Index(prey).FindInRadius(Vec{}, 10))
	assert.Equal(t, []string{"sheep"}, names(reg.Index(prey).FindNearby(Vec{Y: 80, X: 80})))

	reg.Remove(rice)
	assert.Equal(t, 1, reg.Len())

	_, err = NewRegistry[*mob](0, prey)
	assert.Error(t, err)
}
