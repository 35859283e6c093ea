// Package agents provides the tracked entity model: the things that move over
// the grid and get filed in the spatial index.
package agents

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/VerechoTJI/SimulationGame/internal/spatial"
	"github.com/VerechoTJI/SimulationGame/internal/world"
)

// EntityID is a unique identifier for an entity.
type EntityID uuid.UUID

// String returns the canonical UUID form.
func (id EntityID) String() string {
	return uuid.UUID(id).String()
}

// MarshalText encodes the id in canonical UUID form.
func (id EntityID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// UnmarshalText decodes the canonical UUID form.
func (id *EntityID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// ParseEntityID parses the canonical UUID form.
func ParseEntityID(s string) (EntityID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return EntityID{}, fmt.Errorf("parse entity id %q: %w", s, err)
	}
	return EntityID(u), nil
}

// Entity kinds. Each kind gets its own spatial index.
const (
	KindHuman spatial.Kind = iota // Wanders between A* destinations
	KindSheep                     // Follows the food flow field
	KindRice                      // Food; a flow-field goal once mature
)

// AllKinds lists every entity kind.
var AllKinds = []spatial.Kind{KindHuman, KindSheep, KindRice}

// KindName returns a human-readable name for an entity kind.
func KindName(k spatial.Kind) string {
	switch k {
	case KindHuman:
		return "Human"
	case KindSheep:
		return "Sheep"
	case KindRice:
		return "Rice"
	default:
		return "Unknown"
	}
}

// ParseKind is the case-insensitive inverse of KindName.
func ParseKind(name string) (spatial.Kind, error) {
	for _, k := range AllKinds {
		if strings.EqualFold(name, KindName(k)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown entity kind %q", name)
}

// Entity is a tracked object with a world-space position.
type Entity struct {
	ID       EntityID     `json:"id"`
	Type     spatial.Kind `json:"kind"`
	Name     string       `json:"name"`
	Pos      spatial.Vec  `json:"position"`
	Age      uint32       `json:"age"` // Ticks lived
	BornTick uint64       `json:"born_tick"`
	Alive    bool         `json:"alive"`

	// Remaining A* route, first element is the next cell to enter.
	Path []world.Coord `json:"path,omitempty"`
}

// Position implements spatial.Locatable.
func (e *Entity) Position() spatial.Vec {
	return e.Pos
}

// Kind implements spatial.Tagged.
func (e *Entity) Kind() spatial.Kind {
	return e.Type
}

// RiceMaturityAge is the age at which rice becomes edible and a flow goal.
const RiceMaturityAge = 8

// Mature reports whether a rice plant is edible.
func (e *Entity) Mature() bool {
	return e.Type == KindRice && e.Age >= RiceMaturityAge
}

// String returns a short description for logs.
func (e *Entity) String() string {
	return fmt.Sprintf("%s at (%.1f, %.1f)", e.Name, e.Pos.Y, e.Pos.X)
}
