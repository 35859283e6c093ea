// Package spatial provides a uniform-grid index for proximity queries over a
// moving entity population.
package spatial

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// Vec is a world-space position in metres, y (south) then x (east).
type Vec struct {
	Y float64 `json:"y"`
	X float64 `json:"x"`
}

// DistSq returns the squared Euclidean distance between v and o.
func (v Vec) DistSq(o Vec) float64 {
	dy := v.Y - o.Y
	dx := v.X - o.X
	return dy*dy + dx*dx
}

// Locatable is anything the index can file by position. Implementations are
// usually pointers, so identity is pointer equality.
type Locatable interface {
	comparable
	Position() Vec
}

// cellKey identifies one index cell: floor(position / cellSize) per axis.
type cellKey struct {
	Row, Col int
}

// Index buckets entities into square cells. Each registered entity lives in
// exactly one cell, chosen from its position at Add or its new position at Update.
// Empty cells are dropped, so memory tracks population rather than world size.
type Index[E Locatable] struct {
	cellSize float64
	cells    map[cellKey][]E
	count    int
}

// New creates an index with the given cell size.
func New[E Locatable](cellSize float64) (*Index[E], error) {
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("spatial index: cell size %v must be positive and finite", cellSize)
	}
	return &Index[E]{
		cellSize: cellSize,
		cells:    make(map[cellKey][]E),
	}, nil
}

// CellSize returns the side length of a cell.
func (ix *Index[E]) CellSize() float64 {
	return ix.cellSize
}

// Len returns the number of registered entities.
func (ix *Index[E]) Len() int {
	return ix.count
}

// Cells returns the number of non-empty cells.
func (ix *Index[E]) Cells() int {
	return len(ix.cells)
}

func (ix *Index[E]) keyOf(p Vec) cellKey {
	return cellKey{
		Row: int(math.Floor(p.Y / ix.cellSize)),
		Col: int(math.Floor(p.X / ix.cellSize)),
	}
}

// Add registers e in the cell containing its current position.
func (ix *Index[E]) Add(e E) {
	ix.insert(ix.keyOf(e.Position()), e)
}

// Remove deregisters e from the cell containing its current position.
// Removing an entity that is not there is a no-op.
func (ix *Index[E]) Remove(e E) {
	ix.delete(ix.keyOf(e.Position()), e)
}

// Update moves e from the cell of oldPos to the cell of newPos. Nothing happens
// when both positions fall in the same cell. Callers invoke it on every move.
func (ix *Index[E]) Update(e E, oldPos, newPos Vec) {
	oldKey := ix.keyOf(oldPos)
	newKey := ix.keyOf(newPos)
	if oldKey == newKey {
		return
	}
	ix.delete(oldKey, e)
	ix.insert(newKey, e)
}

func (ix *Index[E]) insert(k cellKey, e E) {
	ix.cells[k] = append(ix.cells[k], e)
	ix.count++
}

func (ix *Index[E]) delete(k cellKey, e E) bool {
	cell := ix.cells[k]
	for i, other := range cell {
		if other != e {
			continue
		}
		last := len(cell) - 1
		cell[i] = cell[last]
		var zero E
		cell[last] = zero
		cell = cell[:last]
		if len(cell) == 0 {
			delete(ix.cells, k)
		} else {
			ix.cells[k] = cell
		}
		ix.count--
		return true
	}
	return false
}

// FindNearby returns every entity in the 3×3 block of cells centred on the
// cell containing pos. It is a locality query, not a radius test.
func (ix *Index[E]) FindNearby(pos Vec) []E {
	center := ix.keyOf(pos)
	var result []E
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			result = append(result, ix.cells[cellKey{Row: center.Row + dr, Col: center.Col + dc}]...)
		}
	}
	return result
}

// FindInRadius returns every entity within radius of pos (inclusive).
// A non-positive radius matches nothing.
func (ix *Index[E]) FindInRadius(pos Vec, radius float64) []E {
	var result []E
	ix.scan(pos, radius, func(e E, _ float64) {
		result = append(result, e)
	})
	return result
}

// FindClosestInRadius returns the entity nearest to pos within radius.
// The boolean is false when nothing qualifies.
func (ix *Index[E]) FindClosestInRadius(pos Vec, radius float64) (E, bool) {
	var (
		best   E
		found  bool
		bestSq = math.Inf(1)
	)
	ix.scan(pos, radius, func(e E, distSq float64) {
		if distSq < bestSq {
			best, bestSq, found = e, distSq, true
		}
	})
	return best, found
}

// FindClosestInRadiusFunc is FindClosestInRadius restricted to entities
// accepted by keep (for example "mature food only").
func (ix *Index[E]) FindClosestInRadiusFunc(pos Vec, radius float64, keep func(E) bool) (E, bool) {
	var (
		best   E
		found  bool
		bestSq = math.Inf(1)
	)
	ix.scan(pos, radius, func(e E, distSq float64) {
		if distSq < bestSq && keep(e) {
			best, bestSq, found = e, distSq, true
		}
	})
	return best, found
}

// scan visits every entity within radius of pos, walking the square of cells
// ceil(radius/cellSize) around the centre cell.
func (ix *Index[E]) scan(pos Vec, radius float64, visit func(e E, distSq float64)) {
	if !(radius > 0) || len(ix.cells) == 0 {
		return
	}
	center := ix.keyOf(pos)
	reach := int(math.Min(math.Ceil(radius/ix.cellSize), 1<<30))
	radiusSq := radius * radius

	// Huge radii would walk mostly empty cells; filter the occupied ones
	// instead and sort them so visit order matches the window walk.
	if window := (2*reach + 1) * (2*reach + 1); reach > 1<<15 || window > 4*len(ix.cells) {
		keys := make([]cellKey, 0, len(ix.cells))
		for k := range ix.cells {
			if abs(k.Row-center.Row) <= reach && abs(k.Col-center.Col) <= reach {
				keys = append(keys, k)
			}
		}
		slices.SortFunc(keys, func(a, b cellKey) int {
			if a.Row != b.Row {
				return cmp.Compare(a.Row, b.Row)
			}
			return cmp.Compare(a.Col, b.Col)
		})
		for _, k := range keys {
			visitCell(ix.cells[k], pos, radiusSq, visit)
		}
		return
	}

	for dr := -reach; dr <= reach; dr++ {
		for dc := -reach; dc <= reach; dc++ {
			cell, ok := ix.cells[cellKey{Row: center.Row + dr, Col: center.Col + dc}]
			if !ok {
				continue
			}
			visitCell(cell, pos, radiusSq, visit)
		}
	}
}

func visitCell[E Locatable](cell []E, pos Vec, radiusSq float64, visit func(e E, distSq float64)) {
	for _, e := range cell {
		d := e.Position().DistSq(pos)
		if d <= radiusSq {
			visit(e, d)
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
