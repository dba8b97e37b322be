// Package domain holds the bounded universe the engine reasons over: sorts
// with finite entity sets, predicate signatures, numeric attributes, and
// complete immutable world valuations. Everything downstream (formulas,
// norms, admissibility, search) is defined relative to a frozen Schema.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Entity is an opaque identifier belonging to a named sort. Entities are
// supplied by the caller defining the domain, never generated internally.
type Entity string

// Sort is a named finite set of entities. Entity order is registration order
// so that enumeration and canonical world keys are deterministic.
type Sort struct {
	Name     string
	Entities []Entity
}

// Has reports whether e belongs to the sort.
func (s *Sort) Has(e Entity) bool {
	for _, x := range s.Entities {
		if x == e {
			return true
		}
	}
	return false
}

// Predicate is a named relation of fixed arity over entity sorts.
type Predicate struct {
	Name     string
	ArgSorts []string
}

// Arity returns the number of arguments the predicate takes.
func (p *Predicate) Arity() int { return len(p.ArgSorts) }

// Attribute is a named numeric per-tuple value (e.g. a due date in days).
// Attributes are not part of the boolean valuation space; they ride along on
// worlds and are only inspected by comparison formulas.
type Attribute struct {
	Name     string
	ArgSorts []string
}

// Arity returns the number of arguments the attribute takes.
func (a *Attribute) Arity() int { return len(a.ArgSorts) }

// SchemaError reports a malformed entity or predicate reference. It is
// always surfaced immediately and never recovered from (a definition error,
// not a runtime default).
type SchemaError struct {
	Ref    string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: %s: %s", e.Ref, e.Reason)
}

// Schema is the registration surface for the bounded domain. It is mutable
// until Freeze is called; all evaluation components require a frozen schema
// so that the ground-atom ordering they cache can never shift underneath
// them.
type Schema struct {
	sorts     map[string]*Sort
	sortOrder []string
	preds     map[string]*Predicate
	predOrder []string
	derived   map[string]*Predicate
	derOrder  []string
	attrs     map[string]*Attribute
	attrOrder []string
	frozen    bool

	groundAtoms []GroundAtom // built on Freeze
}

// NewSchema returns an empty, unfrozen schema.
func NewSchema() *Schema {
	return &Schema{
		sorts:   make(map[string]*Sort),
		preds:   make(map[string]*Predicate),
		derived: make(map[string]*Predicate),
		attrs:   make(map[string]*Attribute),
	}
}

// AddSort registers a sort with its finite entity set.
func (s *Schema) AddSort(name string, entities ...Entity) error {
	if s.frozen {
		return &SchemaError{Ref: name, Reason: "schema is frozen"}
	}
	if name == "" {
		return &SchemaError{Ref: name, Reason: "empty sort name"}
	}
	if _, ok := s.sorts[name]; ok {
		return &SchemaError{Ref: name, Reason: "sort already registered"}
	}
	seen := make(map[Entity]bool, len(entities))
	for _, e := range entities {
		if e == "" {
			return &SchemaError{Ref: name, Reason: "empty entity id"}
		}
		if seen[e] {
			return &SchemaError{Ref: name, Reason: fmt.Sprintf("duplicate entity %q", e)}
		}
		seen[e] = true
	}
	s.sorts[name] = &Sort{Name: name, Entities: append([]Entity(nil), entities...)}
	s.sortOrder = append(s.sortOrder, name)
	return nil
}

// AddPredicate registers a predicate signature. Every argument sort must
// already be registered.
func (s *Schema) AddPredicate(name string, argSorts ...string) error {
	if s.frozen {
		return &SchemaError{Ref: name, Reason: "schema is frozen"}
	}
	if name == "" {
		return &SchemaError{Ref: name, Reason: "empty predicate name"}
	}
	if _, ok := s.preds[name]; ok {
		return &SchemaError{Ref: name, Reason: "predicate already registered"}
	}
	for _, srt := range argSorts {
		if _, ok := s.sorts[srt]; !ok {
			return &SchemaError{Ref: name, Reason: fmt.Sprintf("unknown sort %q", srt)}
		}
	}
	s.preds[name] = &Predicate{Name: name, ArgSorts: append([]string(nil), argSorts...)}
	s.predOrder = append(s.predOrder, name)
	return nil
}

// AddDerived registers a derived predicate signature. Derived predicates may
// appear in formulas but carry no bit in the valuation space: their
// extension in a world is computed by the derive package from Datalog rules,
// never assigned directly.
func (s *Schema) AddDerived(name string, argSorts ...string) error {
	if s.frozen {
		return &SchemaError{Ref: name, Reason: "schema is frozen"}
	}
	if name == "" {
		return &SchemaError{Ref: name, Reason: "empty predicate name"}
	}
	if _, ok := s.preds[name]; ok {
		return &SchemaError{Ref: name, Reason: "name collides with a base predicate"}
	}
	if _, ok := s.derived[name]; ok {
		return &SchemaError{Ref: name, Reason: "derived predicate already registered"}
	}
	for _, srt := range argSorts {
		if _, ok := s.sorts[srt]; !ok {
			return &SchemaError{Ref: name, Reason: fmt.Sprintf("unknown sort %q", srt)}
		}
	}
	s.derived[name] = &Predicate{Name: name, ArgSorts: append([]string(nil), argSorts...)}
	s.derOrder = append(s.derOrder, name)
	return nil
}

// AddAttribute registers a numeric attribute signature.
func (s *Schema) AddAttribute(name string, argSorts ...string) error {
	if s.frozen {
		return &SchemaError{Ref: name, Reason: "schema is frozen"}
	}
	if name == "" {
		return &SchemaError{Ref: name, Reason: "empty attribute name"}
	}
	if _, ok := s.attrs[name]; ok {
		return &SchemaError{Ref: name, Reason: "attribute already registered"}
	}
	if _, ok := s.preds[name]; ok {
		return &SchemaError{Ref: name, Reason: "name collides with a predicate"}
	}
	for _, srt := range argSorts {
		if _, ok := s.sorts[srt]; !ok {
			return &SchemaError{Ref: name, Reason: fmt.Sprintf("unknown sort %q", srt)}
		}
	}
	s.attrs[name] = &Attribute{Name: name, ArgSorts: append([]string(nil), argSorts...)}
	s.attrOrder = append(s.attrOrder, name)
	return nil
}

// Freeze seals the schema and precomputes the deterministic ground-atom
// ordering. Freeze is idempotent.
func (s *Schema) Freeze() {
	if s.frozen {
		return
	}
	s.frozen = true
	for _, pname := range s.predOrder {
		p := s.preds[pname]
		for _, tuple := range s.tuplesFor(p.ArgSorts) {
			s.groundAtoms = append(s.groundAtoms, GroundAtom{Pred: pname, Tuple: tuple})
		}
	}
}

// Frozen reports whether the schema has been sealed.
func (s *Schema) Frozen() bool { return s.frozen }

// Sort looks up a registered sort.
func (s *Schema) Sort(name string) (*Sort, bool) {
	srt, ok := s.sorts[name]
	return srt, ok
}

// Predicate looks up a registered predicate signature, base or derived.
func (s *Schema) Predicate(name string) (*Predicate, bool) {
	if p, ok := s.preds[name]; ok {
		return p, ok
	}
	p, ok := s.derived[name]
	return p, ok
}

// IsDerived reports whether name is a derived predicate.
func (s *Schema) IsDerived(name string) bool {
	_, ok := s.derived[name]
	return ok
}

// Attribute looks up a registered attribute signature.
func (s *Schema) Attribute(name string) (*Attribute, bool) {
	a, ok := s.attrs[name]
	return a, ok
}

// Sorts returns sort names in registration order.
func (s *Schema) Sorts() []string { return append([]string(nil), s.sortOrder...) }

// Predicates returns base predicate names in registration order.
func (s *Schema) Predicates() []string { return append([]string(nil), s.predOrder...) }

// DerivedPredicates returns derived predicate names in registration order.
func (s *Schema) DerivedPredicates() []string { return append([]string(nil), s.derOrder...) }

// Attributes returns attribute names in registration order.
func (s *Schema) Attributes() []string { return append([]string(nil), s.attrOrder...) }

// ValidateTuple checks a ground tuple against a predicate signature (base or
// derived): arity first, then sort membership per position.
func (s *Schema) ValidateTuple(pred string, tuple []Entity) error {
	p, ok := s.Predicate(pred)
	if !ok {
		return &SchemaError{Ref: pred, Reason: "unknown predicate"}
	}
	return s.validateArgs(pred, p.ArgSorts, tuple)
}

// ValidateBaseTuple is ValidateTuple restricted to base predicates: derived
// predicates cannot be assigned, only computed.
func (s *Schema) ValidateBaseTuple(pred string, tuple []Entity) error {
	if s.IsDerived(pred) {
		return &SchemaError{Ref: pred, Reason: "derived predicate cannot be assigned directly"}
	}
	p, ok := s.preds[pred]
	if !ok {
		return &SchemaError{Ref: pred, Reason: "unknown predicate"}
	}
	return s.validateArgs(pred, p.ArgSorts, tuple)
}

// TuplesFor expands the cartesian product of the entity sets of the given
// argument sorts, in entity registration order.
func (s *Schema) TuplesFor(argSorts []string) [][]Entity {
	return s.tuplesFor(argSorts)
}

// ValidateAttrTuple checks a ground tuple against an attribute signature.
func (s *Schema) ValidateAttrTuple(attr string, tuple []Entity) error {
	a, ok := s.attrs[attr]
	if !ok {
		return &SchemaError{Ref: attr, Reason: "unknown attribute"}
	}
	return s.validateArgs(attr, a.ArgSorts, tuple)
}

func (s *Schema) validateArgs(ref string, argSorts []string, tuple []Entity) error {
	if len(tuple) != len(argSorts) {
		return &SchemaError{
			Ref:    ref,
			Reason: fmt.Sprintf("arity mismatch: want %d args, got %d", len(argSorts), len(tuple)),
		}
	}
	for i, e := range tuple {
		srt := s.sorts[argSorts[i]]
		if !srt.Has(e) {
			return &SchemaError{
				Ref:    ref,
				Reason: fmt.Sprintf("entity %q is not in sort %q (arg %d)", e, argSorts[i], i),
			}
		}
	}
	return nil
}

// GroundAtoms returns every (predicate, tuple) pair of the domain in the
// canonical order. The schema must be frozen.
func (s *Schema) GroundAtoms() []GroundAtom {
	if !s.frozen {
		panic("domain: GroundAtoms called on unfrozen schema")
	}
	return s.groundAtoms
}

// WorldCount reports the size of the boolean valuation space, 2^#groundAtoms.
// ok is false when the count overflows uint64; enumeration is still possible
// (the odometer does not depend on this number) but exhaustive search at that
// scale is hopeless and callers should say so.
func (s *Schema) WorldCount() (count uint64, ok bool) {
	n := len(s.GroundAtoms())
	if n >= 64 {
		return 0, false
	}
	return uint64(1) << uint(n), true
}

// tuplesFor expands the cartesian product of the entity sets of the given
// argument sorts, in entity registration order.
func (s *Schema) tuplesFor(argSorts []string) [][]Entity {
	if len(argSorts) == 0 {
		return [][]Entity{nil}
	}
	rest := s.tuplesFor(argSorts[1:])
	first := s.sorts[argSorts[0]]
	out := make([][]Entity, 0, len(first.Entities)*len(rest))
	for _, e := range first.Entities {
		for _, tail := range rest {
			tuple := make([]Entity, 0, 1+len(tail))
			tuple = append(tuple, e)
			tuple = append(tuple, tail...)
			out = append(out, tuple)
		}
	}
	return out
}

// GroundAtom is one (predicate, entity tuple) cell of the valuation space.
type GroundAtom struct {
	Pred  string
	Tuple []Entity
}

// Key returns the canonical textual form, e.g. "borrowed(b1,u1)".
func (g GroundAtom) Key() string {
	return atomKey(g.Pred, g.Tuple)
}

func atomKey(name string, tuple []Entity) string {
	if len(tuple) == 0 {
		return name + "()"
	}
	parts := make([]string, len(tuple))
	for i, e := range tuple {
		parts[i] = string(e)
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
