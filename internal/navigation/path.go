// Package navigation turns "get from A to a goal" into per-tick movement:
// on-demand A* for single agents and an incrementally rebuilt multi-goal
// flow field for crowds.
package navigation

import (
	"errors"
	"fmt"
	"math"

	"github.com/VerechoTJI/SimulationGame/internal/world"
)

var (
	// ErrUnreachable means the start or goal cell itself is impassable.
	ErrUnreachable = errors.New("start or goal is impassable")
	// ErrNoPath means both endpoints are passable but no route connects them.
	ErrNoPath = errors.New("no path exists")
)

// Pathfinder runs A* over a static grid. It keeps no state between calls and
// is safe for concurrent use.
type Pathfinder struct {
	grid *world.Grid
}

// NewPathfinder creates a pathfinder for g.
func NewPathfinder(g *world.Grid) *Pathfinder {
	return &Pathfinder{grid: g}
}

// FindPath returns the cheapest route from start to goal, excluding start and
// including goal. start == goal yields an empty route.
//
// Entering a cell costs 1/speed of that cell, times √2 on diagonals, and
// diagonal moves may not cut the corner of an impassable cell. The heuristic is
// the straight-line distance scaled by the grid's cheapest step, so it never
// overestimates.
func (p *Pathfinder) FindPath(start, goal world.Coord) ([]world.Coord, error) {
	g := p.grid
	if err := g.Check(start); err != nil {
		return nil, fmt.Errorf("find path start: %w", err)
	}
	if err := g.Check(goal); err != nil {
		return nil, fmt.Errorf("find path goal: %w", err)
	}
	if start == goal {
		return []world.Coord{}, nil
	}
	if !g.Passable(start) || !g.Passable(goal) {
		return nil, fmt.Errorf("find path (%d,%d)->(%d,%d): %w",
			start.Row, start.Col, goal.Row, goal.Col, ErrUnreachable)
	}

	size := g.Size()
	gScore := make([]float64, size)
	for i := range gScore {
		gScore[i] = math.Inf(1)
	}
	cameFrom := make([]int32, size)
	closed := make([]bool, size)

	scale := g.MinStepCost()
	heuristic := func(c world.Coord) float64 {
		return world.Distance(c, goal) * scale
	}

	startIdx := g.Index(start)
	goalIdx := g.Index(goal)
	gScore[startIdx] = 0
	cameFrom[startIdx] = -1

	open := newFrontier()
	open.push(startIdx, heuristic(start))

	for open.len() > 0 {
		entry, _ := open.pop()
		if closed[entry.idx] {
			continue // Stale duplicate
		}
		if entry.idx == goalIdx {
			return reconstructPath(g, cameFrom, goalIdx), nil
		}
		closed[entry.idx] = true

		current := g.CoordAt(entry.idx)
		for _, d := range world.Directions {
			if !g.CanStep(current, d) {
				continue
			}
			next := current.Add(d)
			nextIdx := g.Index(next)
			if closed[nextIdx] {
				continue
			}

			tentative := gScore[entry.idx] + g.StepCost(next, d.Diagonal())
			if tentative < gScore[nextIdx] {
				gScore[nextIdx] = tentative
				cameFrom[nextIdx] = int32(entry.idx)
				open.push(nextIdx, tentative+heuristic(next))
			}
		}
	}

	return nil, fmt.Errorf("find path (%d,%d)->(%d,%d): %w",
		start.Row, start.Col, goal.Row, goal.Col, ErrNoPath)
}

// reconstructPath walks cameFrom back from the goal; the start is excluded.
func reconstructPath(g *world.Grid, cameFrom []int32, goalIdx int) []world.Coord {
	var path []world.Coord
	for idx := goalIdx; cameFrom[idx] >= 0; idx = int(cameFrom[idx]) {
		path = append(path, g.CoordAt(idx))
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// PathCost sums the movement cost of following path from start.
// It returns +Inf if any step is not a legal move.
func PathCost(g *world.Grid, start world.Coord, path []world.Coord) float64 {
	total := 0.0
	prev := start
	for _, c := range path {
		if abs(c.Row-prev.Row) > 1 || abs(c.Col-prev.Col) > 1 {
			return math.Inf(1)
		}
		d := c.Sub(prev)
		if d.IsZero() || !g.CanStep(prev, d) {
			return math.Inf(1)
		}
		total += g.StepCost(c, d.Diagonal())
		prev = c
	}
	return total
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
