package domain

import (
	"fmt"
	"strings"
)

// World is a complete assignment of truth values to every ground atom of the
// schema, plus numeric attribute values where set. Worlds are immutable once
// built; equality is structural via the canonical Key.
type World struct {
	name  string
	truth map[string]bool
	attrs map[string]int
	key   string
}

// Name returns the caller-assigned label, which may be empty for enumerated
// worlds.
func (w *World) Name() string { return w.name }

// Holds reports the truth value of a ground atom. The world carries a
// complete valuation, so an atom absent from the map is simply false.
func (w *World) Holds(pred string, tuple ...Entity) bool {
	return w.truth[atomKey(pred, tuple)]
}

// Attr returns the numeric attribute value for a tuple, if one was set.
func (w *World) Attr(name string, tuple ...Entity) (int, bool) {
	v, ok := w.attrs[atomKey(name, tuple)]
	return v, ok
}

// Key returns the canonical structural identity of the world. Two worlds
// with equal keys assign identical values everywhere.
func (w *World) Key() string { return w.key }

// Equal reports structural equality.
func (w *World) Equal(o *World) bool {
	if w == nil || o == nil {
		return w == o
	}
	return w.key == o.key
}

// TrueAtoms returns the keys of all atoms that hold, in canonical order.
// Used for reports and countermodel rendering.
func (w *World) TrueAtoms(schema *Schema) []string {
	var out []string
	for _, g := range schema.GroundAtoms() {
		if w.truth[g.Key()] {
			out = append(out, g.Key())
		}
	}
	return out
}

// FixedAttrs returns the world's attribute assignments as pinned values,
// suitable for passing to Store.Enumerate.
func (w *World) FixedAttrs(schema *Schema) []FixedAttr {
	var out []FixedAttr
	for _, name := range schema.Attributes() {
		attr, ok := schema.Attribute(name)
		if !ok {
			continue
		}
		for _, tuple := range schema.TuplesFor(attr.ArgSorts) {
			if v, ok := w.Attr(name, tuple...); ok {
				out = append(out, FixedAttr{Attr: name, Tuple: tuple, Value: v})
			}
		}
	}
	return out
}

func (w *World) String() string {
	if w.name != "" {
		return fmt.Sprintf("world %s {%s}", w.name, w.key)
	}
	return fmt.Sprintf("world {%s}", w.key)
}

// WorldBuilder assembles a world against a frozen schema, validating every
// reference as it is set. The first error sticks and is returned by Build.
type WorldBuilder struct {
	schema *Schema
	name   string
	truth  map[string]bool
	attrs  map[string]int
	err    error
}

// NewWorldBuilder starts a builder for the given schema. The schema must be
// frozen; building against a mutable schema would let the canonical key
// ordering shift between worlds.
func NewWorldBuilder(schema *Schema, name string) *WorldBuilder {
	b := &WorldBuilder{
		schema: schema,
		name:   name,
		truth:  make(map[string]bool),
		attrs:  make(map[string]int),
	}
	if !schema.Frozen() {
		b.err = &SchemaError{Ref: name, Reason: "schema must be frozen before building worlds"}
	}
	return b
}

// Set assigns a truth value to a ground atom.
func (b *WorldBuilder) Set(pred string, value bool, tuple ...Entity) *WorldBuilder {
	if b.err != nil {
		return b
	}
	if err := b.schema.ValidateBaseTuple(pred, tuple); err != nil {
		b.err = err
		return b
	}
	b.truth[atomKey(pred, tuple)] = value
	return b
}

// SetAttr assigns a numeric attribute value to a tuple.
func (b *WorldBuilder) SetAttr(attr string, value int, tuple ...Entity) *WorldBuilder {
	if b.err != nil {
		return b
	}
	if err := b.schema.ValidateAttrTuple(attr, tuple); err != nil {
		b.err = err
		return b
	}
	b.attrs[atomKey(attr, tuple)] = value
	return b
}

// Build finalizes the world. Unset atoms default to false, completing the
// valuation. The canonical key is computed once here.
func (b *WorldBuilder) Build() (*World, error) {
	if b.err != nil {
		return nil, b.err
	}
	truth := make(map[string]bool, len(b.truth))
	for k, v := range b.truth {
		if v {
			truth[k] = true
		}
	}
	attrs := make(map[string]int, len(b.attrs))
	for k, v := range b.attrs {
		attrs[k] = v
	}
	return &World{
		name:  b.name,
		truth: truth,
		attrs: attrs,
		key:   canonicalKey(b.schema, truth, attrs),
	}, nil
}

// canonicalKey renders the complete valuation as a bit string in ground-atom
// order, followed by sorted attribute assignments.
func canonicalKey(schema *Schema, truth map[string]bool, attrs map[string]int) string {
	var sb strings.Builder
	for _, g := range schema.GroundAtoms() {
		if truth[g.Key()] {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	for _, k := range sortedKeys(attrs) {
		fmt.Fprintf(&sb, ";%s=%d", k, attrs[k])
	}
	return sb.String()
}
