package spatial

import "fmt"

// Kind tags an entity type. Each kind gets its own Index so "nearest food"
// never scans predators and vice versa.
type Kind uint8

// Tagged is a Locatable that carries its kind.
type Tagged interface {
	Locatable
	Kind() Kind
}

// Registry holds one Index per kind, created up front for a fixed kind set.
type Registry[E Tagged] struct {
	indexes map[Kind]*Index[E]
}

// NewRegistry creates an index for every kind in kinds.
func NewRegistry[E Tagged](cellSize float64, kinds ...Kind) (*Registry[E], error) {
	reg := &Registry[E]{indexes: make(map[Kind]*Index[E], len(kinds))}
	for _, k := range kinds {
		ix, err := New[E](cellSize)
		if err != nil {
			return nil, fmt.Errorf("registry kind %d: %w", k, err)
		}
		reg.indexes[k] = ix
	}
	return reg, nil
}

// Index returns the index for kind, or nil if the kind was not registered.
func (r *Registry[E]) Index(kind Kind) *Index[E] {
	return r.indexes[kind]
}

// Add files e under its kind. Entities of unknown kinds are ignored.
func (r *Registry[E]) Add(e E) {
	if ix := r.indexes[e.Kind()]; ix != nil {
		ix.Add(e)
	}
}

// Remove deregisters e from its kind's index.
func (r *Registry[E]) Remove(e E) {
	if ix := r.indexes[e.Kind()]; ix != nil {
		ix.Remove(e)
	}
}

// Update moves e within its kind's index.
func (r *Registry[E]) Update(e E, oldPos, newPos Vec) {
	if ix := r.indexes[e.Kind()]; ix != nil {
		ix.Update(e, oldPos, newPos)
	}
}

// Len returns the number of entities registered across all kinds.
func (r *Registry[E]) Len() int {
	n := 0
	for _, ix := range r.indexes {
		n += ix.Len()
	}
	return n
}
