// Package derive computes derived predicate extensions for a world using
// Google Mangle (Datalog). A world's true ground atoms and attribute values
// become base facts; the schema's derived predicates are defined by rules;
// evaluation closes the rules over the finite fact set and the result is
// exposed as an augmented view for formula evaluation.
//
// This is bounded Datalog over ground facts, not theorem proving: the closure
// is finite and total, which keeps the engine's termination guarantee intact.
package derive

import (
	"fmt"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"normcheck/internal/domain"
	"normcheck/internal/formula"
)

// Engine compiles the rule program once and evaluates it per world against a
// fresh fact store. The compiled program is immutable, so one Engine may be
// shared across concurrent evaluation runs.
type Engine struct {
	schema      *domain.Schema
	programInfo *analysis.ProgramInfo
	predIndex   map[string]ast.PredicateSym
}

// New compiles Datalog rules defining the schema's derived predicates.
// Declarations for every base predicate, attribute, and derived predicate of
// the schema are generated automatically; rules only contain clauses.
// Predicate and entity names must be valid Mangle identifiers (lowercase
// start) for a schema that uses derived rules.
func New(schema *domain.Schema, rules string) (*Engine, error) {
	if !schema.Frozen() {
		return nil, &domain.SchemaError{Ref: "derive", Reason: "schema must be frozen"}
	}

	src := declBlock(schema) + "\n" + rules
	unit, err := parse.Unit(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("derive: parse rules: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("derive: analyze rules: %w", err)
	}

	predIndex := make(map[string]ast.PredicateSym, len(programInfo.Decls))
	for sym := range programInfo.Decls {
		predIndex[sym.Symbol] = sym
	}

	for _, name := range schema.DerivedPredicates() {
		if _, ok := predIndex[name]; !ok {
			return nil, &domain.SchemaError{Ref: name, Reason: "derived predicate has no declaration after analysis"}
		}
	}

	return &Engine{
		schema:      schema,
		programInfo: programInfo,
		predIndex:   predIndex,
	}, nil
}

// declBlock generates Mangle declarations for the schema's vocabulary.
func declBlock(schema *domain.Schema) string {
	var sb strings.Builder
	writeDecl := func(name string, arity int) {
		sb.WriteString("Decl ")
		sb.WriteString(name)
		sb.WriteByte('(')
		for i := 0; i < arity; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "X%d", i)
		}
		sb.WriteString(").\n")
	}
	for _, name := range schema.Predicates() {
		p, _ := schema.Predicate(name)
		writeDecl(name, p.Arity())
	}
	for _, name := range schema.Attributes() {
		a, _ := schema.Attribute(name)
		writeDecl(name, a.Arity()+1) // trailing value argument
	}
	for _, name := range schema.DerivedPredicates() {
		p, _ := schema.Predicate(name)
		writeDecl(name, p.Arity())
	}
	return sb.String()
}

// View evaluates the rule program against the world's facts and returns the
// augmented read surface. Each call uses a fresh in-memory fact store; the
// returned view is immutable.
func (e *Engine) View(w *domain.World) (formula.World, error) {
	store := factstore.NewSimpleInMemoryStore()

	for _, name := range e.schema.Predicates() {
		p, _ := e.schema.Predicate(name)
		sym, ok := e.predIndex[name]
		if !ok {
			return nil, &domain.SchemaError{Ref: name, Reason: "predicate missing from rule program"}
		}
		for _, tuple := range e.schema.TuplesFor(p.ArgSorts) {
			if !w.Holds(name, tuple...) {
				continue
			}
			atom, err := groundAtom(sym, tuple, nil)
			if err != nil {
				return nil, err
			}
			store.Add(atom)
		}
	}
	for _, name := range e.schema.Attributes() {
		a, _ := e.schema.Attribute(name)
		sym, ok := e.predIndex[name]
		if !ok {
			return nil, &domain.SchemaError{Ref: name, Reason: "attribute missing from rule program"}
		}
		for _, tuple := range e.schema.TuplesFor(a.ArgSorts) {
			v, ok := w.Attr(name, tuple...)
			if !ok {
				continue
			}
			value := ast.Number(int64(v))
			atom, err := groundAtom(sym, tuple, &value)
			if err != nil {
				return nil, err
			}
			store.Add(atom)
		}
	}

	if _, err := mengine.EvalProgramWithStats(e.programInfo, store); err != nil {
		return nil, fmt.Errorf("derive: evaluate rules: %w", err)
	}

	derived := make(map[string]bool)
	for _, name := range e.schema.DerivedPredicates() {
		sym := e.predIndex[name]
		err := store.GetFacts(ast.NewQuery(sym), func(fact ast.Atom) error {
			key, err := factKey(name, fact)
			if err != nil {
				return err
			}
			derived[key] = true
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("derive: read %s facts: %w", name, err)
		}
	}

	return &view{schema: e.schema, base: w, derived: derived}, nil
}

// groundAtom builds a Mangle atom from an entity tuple, with an optional
// trailing numeric value for attribute facts.
func groundAtom(sym ast.PredicateSym, tuple []domain.Entity, value *ast.Constant) (ast.Atom, error) {
	args := make([]ast.BaseTerm, 0, len(tuple)+1)
	for _, e := range tuple {
		name, err := ast.Name("/" + string(e))
		if err != nil {
			return ast.Atom{}, fmt.Errorf("derive: entity %q is not a valid Mangle name: %w", e, err)
		}
		args = append(args, name)
	}
	if value != nil {
		args = append(args, *value)
	}
	return ast.Atom{Predicate: sym, Args: args}, nil
}

// factKey renders a derived fact back into the canonical atom key form used
// by worlds, e.g. "overdue_loan(b1,u1)".
func factKey(name string, fact ast.Atom) (string, error) {
	parts := make([]string, 0, len(fact.Args))
	for _, arg := range fact.Args {
		c, ok := arg.(ast.Constant)
		if !ok {
			return "", fmt.Errorf("derive: non-constant argument in derived fact %s", fact)
		}
		parts = append(parts, strings.TrimPrefix(c.Symbol, "/"))
	}
	return name + "(" + strings.Join(parts, ",") + ")", nil
}

// view layers derived extensions over a base world.
type view struct {
	schema  *domain.Schema
	base    *domain.World
	derived map[string]bool
}

func (v *view) Holds(pred string, tuple ...domain.Entity) bool {
	if v.schema.IsDerived(pred) {
		parts := make([]string, len(tuple))
		for i, e := range tuple {
			parts[i] = string(e)
		}
		return v.derived[pred+"("+strings.Join(parts, ",")+")"]
	}
	return v.base.Holds(pred, tuple...)
}

func (v *view) Attr(name string, tuple ...domain.Entity) (int, bool) {
	return v.base.Attr(name, tuple...)
}
