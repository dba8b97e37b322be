// Package formula defines the property language evaluated against worlds:
// ground atoms, boolean connectives, numeric attribute comparisons, and
// bounded quantifiers expanded over the finite entity sets of a frozen
// schema. Evaluation is total: every formula yields true or false on every
// complete world.
package formula

import (
	"fmt"
	"strings"

	"normcheck/internal/domain"
)

// World is the read surface a formula evaluates against. *domain.World
// satisfies it directly; the derive package wraps it with Datalog-derived
// extensions.
type World interface {
	Holds(pred string, tuple ...domain.Entity) bool
	Attr(name string, tuple ...domain.Entity) (int, bool)
}

// Formula is a property of a single world.
type Formula interface {
	Eval(w World) bool
	String() string
}

// ---- Constants ----

type constant bool

// True is the formula satisfied by every world.
var True Formula = constant(true)

// False is the formula satisfied by no world.
var False Formula = constant(false)

func (c constant) Eval(World) bool { return bool(c) }
func (c constant) String() string {
	if c {
		return "true"
	}
	return "false"
}

// ---- Atoms ----

type atom struct {
	pred  string
	tuple []domain.Entity
}

// Atom builds a ground predicate atom, validating the reference against the
// schema. Referencing an unknown predicate or entity is a *domain.SchemaError,
// not a runtime default.
func Atom(schema *domain.Schema, pred string, tuple ...domain.Entity) (Formula, error) {
	if err := schema.ValidateTuple(pred, tuple); err != nil {
		return nil, err
	}
	return atom{pred: pred, tuple: append([]domain.Entity(nil), tuple...)}, nil
}

func (a atom) Eval(w World) bool { return w.Holds(a.pred, a.tuple...) }
func (a atom) String() string {
	parts := make([]string, len(a.tuple))
	for i, e := range a.tuple {
		parts[i] = string(e)
	}
	return fmt.Sprintf("%s(%s)", a.pred, strings.Join(parts, ","))
}

// ---- Connectives ----

type not struct{ f Formula }

// Not negates a formula.
func Not(f Formula) Formula { return not{f: f} }

func (n not) Eval(w World) bool { return !n.f.Eval(w) }
func (n not) String() string    { return "!" + paren(n.f) }

type and struct{ l, r Formula }

// And conjoins formulas; And() with no arguments is True.
func And(fs ...Formula) Formula {
	return fold(fs, True, func(l, r Formula) Formula { return and{l: l, r: r} })
}

func (a and) Eval(w World) bool { return a.l.Eval(w) && a.r.Eval(w) }
func (a and) String() string    { return paren(a.l) + " && " + paren(a.r) }

type or struct{ l, r Formula }

// Or disjoins formulas; Or() with no arguments is False.
func Or(fs ...Formula) Formula {
	return fold(fs, False, func(l, r Formula) Formula { return or{l: l, r: r} })
}

func (o or) Eval(w World) bool { return o.l.Eval(w) || o.r.Eval(w) }
func (o or) String() string    { return paren(o.l) + " || " + paren(o.r) }

type implies struct{ l, r Formula }

// Implies is material implication.
func Implies(l, r Formula) Formula { return implies{l: l, r: r} }

func (i implies) Eval(w World) bool { return !i.l.Eval(w) || i.r.Eval(w) }
func (i implies) String() string    { return paren(i.l) + " -> " + paren(i.r) }

func fold(fs []Formula, empty Formula, join func(l, r Formula) Formula) Formula {
	switch len(fs) {
	case 0:
		return empty
	case 1:
		return fs[0]
	}
	out := fs[0]
	for _, f := range fs[1:] {
		out = join(out, f)
	}
	return out
}

// ---- Numeric comparisons ----

// CmpOp is a comparison operator over attribute values.
type CmpOp int

const (
	Lt CmpOp = iota
	Le
	Eq
	Ne
	Ge
	Gt
)

func (op CmpOp) String() string {
	switch op {
	case Lt:
		return "<"
	case Le:
		return "<="
	case Eq:
		return "=="
	case Ne:
		return "!="
	case Ge:
		return ">="
	case Gt:
		return ">"
	}
	return "?"
}

type attrCmp struct {
	attr  string
	tuple []domain.Entity
	op    CmpOp
	bound int
}

// AttrCmp compares a numeric attribute against a constant bound. A world
// with no value set for the tuple fails the comparison (there is nothing to
// compare), which keeps evaluation total.
func AttrCmp(schema *domain.Schema, attr string, tuple []domain.Entity, op CmpOp, bound int) (Formula, error) {
	if err := schema.ValidateAttrTuple(attr, tuple); err != nil {
		return nil, err
	}
	return attrCmp{attr: attr, tuple: append([]domain.Entity(nil), tuple...), op: op, bound: bound}, nil
}

func (c attrCmp) Eval(w World) bool {
	v, ok := w.Attr(c.attr, c.tuple...)
	if !ok {
		return false
	}
	switch c.op {
	case Lt:
		return v < c.bound
	case Le:
		return v <= c.bound
	case Eq:
		return v == c.bound
	case Ne:
		return v != c.bound
	case Ge:
		return v >= c.bound
	case Gt:
		return v > c.bound
	}
	return false
}

func (c attrCmp) String() string {
	parts := make([]string, len(c.tuple))
	for i, e := range c.tuple {
		parts[i] = string(e)
	}
	return fmt.Sprintf("%s(%s) %s %d", c.attr, strings.Join(parts, ","), c.op, c.bound)
}

// ---- Bounded quantifiers ----

// Forall expands to the conjunction of body(e) over every entity of the
// sort. The domain is finite, so the expansion happens at construction time
// and the result is an ordinary formula.
func Forall(schema *domain.Schema, sortName string, body func(domain.Entity) (Formula, error)) (Formula, error) {
	srt, ok := schema.Sort(sortName)
	if !ok {
		return nil, &domain.SchemaError{Ref: sortName, Reason: "unknown sort"}
	}
	parts := make([]Formula, 0, len(srt.Entities))
	for _, e := range srt.Entities {
		f, err := body(e)
		if err != nil {
			return nil, err
		}
		parts = append(parts, f)
	}
	return And(parts...), nil
}

// Exists expands to the disjunction of body(e) over every entity of the
// sort. An empty sort yields False: no witness can exist.
func Exists(schema *domain.Schema, sortName string, body func(domain.Entity) (Formula, error)) (Formula, error) {
	srt, ok := schema.Sort(sortName)
	if !ok {
		return nil, &domain.SchemaError{Ref: sortName, Reason: "unknown sort"}
	}
	parts := make([]Formula, 0, len(srt.Entities))
	for _, e := range srt.Entities {
		f, err := body(e)
		if err != nil {
			return nil, err
		}
		parts = append(parts, f)
	}
	return Or(parts...), nil
}

func paren(f Formula) string {
	switch f.(type) {
	case atom, constant, not, attrCmp:
		return f.String()
	default:
		return "(" + f.String() + ")"
	}
}
