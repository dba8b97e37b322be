package domain

import (
	"context"
	"fmt"
)

// Store is the valuation store: named worlds registered against one frozen
// schema. Worlds are immutable values, so the store never mutates one in
// place; callers replace by name if a scenario changes.
type Store struct {
	schema *Schema
	worlds map[string]*World
	order  []string
}

// NewStore creates a store bound to a frozen schema.
func NewStore(schema *Schema) (*Store, error) {
	if !schema.Frozen() {
		return nil, &SchemaError{Ref: "store", Reason: "schema must be frozen"}
	}
	return &Store{
		schema: schema,
		worlds: make(map[string]*World),
	}, nil
}

// Schema returns the schema the store is bound to.
func (s *Store) Schema() *Schema { return s.schema }

// AddWorld registers a named world. Unnamed worlds cannot be stored (they
// have no handle for transitions to reference).
func (s *Store) AddWorld(w *World) error {
	if w.Name() == "" {
		return &SchemaError{Ref: "world", Reason: "stored worlds must be named"}
	}
	if _, ok := s.worlds[w.Name()]; ok {
		return &SchemaError{Ref: w.Name(), Reason: "world already registered"}
	}
	s.worlds[w.Name()] = w
	s.order = append(s.order, w.Name())
	return nil
}

// World looks up a world by name.
func (s *Store) World(name string) (*World, bool) {
	w, ok := s.worlds[name]
	return w, ok
}

// Worlds returns all registered worlds in registration order.
func (s *Store) Worlds() []*World {
	out := make([]*World, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.worlds[name])
	}
	return out
}

// Literal pins one ground atom to a fixed truth value during enumeration
// ("background facts" in the modeling sense).
type Literal struct {
	Pred  string
	Tuple []Entity
	Value bool
}

// FixedAttr pins a numeric attribute value for every enumerated world.
type FixedAttr struct {
	Attr  string
	Tuple []Entity
	Value int
}

// ErrStopEnumeration can be returned from an Enumerate visitor to stop the
// walk early without reporting an error to the caller.
var ErrStopEnumeration = fmt.Errorf("domain: stop enumeration")

// Enumerate walks every world consistent with the fixed literals, in a
// deterministic order (free atoms counted in ground-atom order, false
// first). The visitor receives each world as a fresh immutable value.
//
// The walk is 2^free worlds in the worst case; it checks ctx between worlds
// and returns ctx.Err() on cancellation. The caller owns any budget beyond
// that (see the search package).
func (s *Store) Enumerate(ctx context.Context, fixed []Literal, attrs []FixedAttr, visit func(*World) error) error {
	atoms := s.schema.GroundAtoms()

	pinned := make(map[string]bool, len(fixed))
	for _, lit := range fixed {
		if err := s.schema.ValidateBaseTuple(lit.Pred, lit.Tuple); err != nil {
			return err
		}
		pinned[atomKey(lit.Pred, lit.Tuple)] = lit.Value
	}
	attrVals := make(map[string]int, len(attrs))
	for _, fa := range attrs {
		if err := s.schema.ValidateAttrTuple(fa.Attr, fa.Tuple); err != nil {
			return err
		}
		attrVals[atomKey(fa.Attr, fa.Tuple)] = fa.Value
	}

	var free []string
	for _, g := range atoms {
		if _, ok := pinned[g.Key()]; !ok {
			free = append(free, g.Key())
		}
	}

	// Odometer over the free atoms. No counter overflow concern: the odometer
	// is a slice of bits, not an integer.
	bits := make([]bool, len(free))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		truth := make(map[string]bool, len(atoms))
		for k, v := range pinned {
			if v {
				truth[k] = true
			}
		}
		for i, k := range free {
			if bits[i] {
				truth[k] = true
			}
		}
		attrCopy := make(map[string]int, len(attrVals))
		for k, v := range attrVals {
			attrCopy[k] = v
		}
		w := &World{
			truth: truth,
			attrs: attrCopy,
			key:   canonicalKey(s.schema, truth, attrCopy),
		}
		if err := visit(w); err != nil {
			if err == ErrStopEnumeration {
				return nil
			}
			return err
		}

		// Advance the odometer; done when it wraps.
		i := 0
		for ; i < len(bits); i++ {
			bits[i] = !bits[i]
			if bits[i] {
				break
			}
		}
		if i == len(bits) {
			return nil
		}
	}
}
