// Package modelfile loads a complete deontic model from a YAML document:
// the schema, the named worlds, the norm registry with its priority order,
// optional derivation rules, the transition relation, and the claims to
// check against the model.
package modelfile

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"normcheck/internal/derive"
	"normcheck/internal/domain"
	"normcheck/internal/engine"
	"normcheck/internal/formula"
	"normcheck/internal/norms"
	"normcheck/internal/transition"
)

// Claim kinds accepted in the claims section.
const (
	ClaimObligatory = "obligatory"
	ClaimForbidden  = "forbidden"
	ClaimPermitted  = "permitted"
	ClaimRequired   = "required"
	ClaimActionSafe = "action_safe"
)

// Claim is one checkable assertion from the model file.
type Claim struct {
	Kind      string
	Formula   formula.Formula
	Condition formula.Formula // only for conditional obligatory/forbidden
	Action    string          // only for action_safe
	NormID    string          // only for required
	Source    string          // original formula text, for reporting
}

// Model is everything a model file describes, ready to evaluate.
type Model struct {
	Schema   *domain.Schema
	Store    *domain.Store
	Registry *norms.Registry
	Derive   *derive.Engine // nil when the file has no rules
	Relation *transition.Relation
	Claims   []Claim
}

// View returns the evaluation view for this model: the mangle-derived view
// when derivation rules are present, the identity view otherwise.
func (m *Model) View() engine.View {
	if m.Derive == nil {
		return func(w *domain.World) (formula.World, error) { return w, nil }
	}
	return m.Derive.View
}

type fileNorm struct {
	ID          string `yaml:"id"`
	Kind        string `yaml:"kind"`
	Group       string `yaml:"group"`
	Condition   string `yaml:"condition"`
	Consequence string `yaml:"consequence"`
}

type fileWorld struct {
	Facts []string       `yaml:"facts"`
	Attrs map[string]int `yaml:"attrs"`
}

type fileClaim struct {
	Kind      string `yaml:"kind"`
	Formula   string `yaml:"formula"`
	Condition string `yaml:"condition"`
	Action    string `yaml:"action"`
	Norm      string `yaml:"norm"`
}

type fileModel struct {
	Sorts       map[string][]string  `yaml:"sorts"`
	Predicates  map[string][]string  `yaml:"predicates"`
	Attributes  map[string][]string  `yaml:"attributes"`
	Derived     map[string][]string  `yaml:"derived"`
	Rules       string               `yaml:"rules"`
	Norms       []fileNorm           `yaml:"norms"`
	Priority    [][]string           `yaml:"priority"`
	Worlds      map[string]fileWorld `yaml:"worlds"`
	Transitions [][]string           `yaml:"transitions"`
	Claims      []fileClaim          `yaml:"claims"`
}

// Load reads and parses a model file from disk.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse builds a Model from YAML bytes.
func Parse(data []byte) (*Model, error) {
	var f fileModel
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode model file: %w", err)
	}

	schema, err := buildSchema(&f)
	if err != nil {
		return nil, err
	}

	var deriver *derive.Engine
	if f.Rules != "" {
		deriver, err = derive.New(schema, f.Rules)
		if err != nil {
			return nil, err
		}
	} else if len(f.Derived) > 0 {
		return nil, fmt.Errorf("derived predicates declared but no rules given")
	}

	registry, err := buildNorms(schema, &f)
	if err != nil {
		return nil, err
	}

	store, err := buildWorlds(schema, &f)
	if err != nil {
		return nil, err
	}

	relation := transition.NewRelation(store)
	for i, t := range f.Transitions {
		if len(t) != 3 {
			return nil, fmt.Errorf("transition %d: want [from, action, to], got %d elements", i, len(t))
		}
		if err := relation.Add(t[0], t[1], t[2]); err != nil {
			return nil, fmt.Errorf("transition %d: %w", i, err)
		}
	}

	claims, err := buildClaims(schema, registry, &f)
	if err != nil {
		return nil, err
	}

	return &Model{
		Schema:   schema,
		Store:    store,
		Registry: registry,
		Derive:   deriver,
		Relation: relation,
		Claims:   claims,
	}, nil
}

func buildSchema(f *fileModel) (*domain.Schema, error) {
	schema := domain.NewSchema()
	for _, name := range sortedNames(f.Sorts) {
		entities := make([]domain.Entity, len(f.Sorts[name]))
		for i, e := range f.Sorts[name] {
			entities[i] = domain.Entity(e)
		}
		if err := schema.AddSort(name, entities...); err != nil {
			return nil, err
		}
	}
	for _, name := range sortedNames(f.Predicates) {
		if err := schema.AddPredicate(name, f.Predicates[name]...); err != nil {
			return nil, err
		}
	}
	for _, name := range sortedNames(f.Attributes) {
		if err := schema.AddAttribute(name, f.Attributes[name]...); err != nil {
			return nil, err
		}
	}
	for _, name := range sortedNames(f.Derived) {
		if err := schema.AddDerived(name, f.Derived[name]...); err != nil {
			return nil, err
		}
	}
	schema.Freeze()
	return schema, nil
}

func buildNorms(schema *domain.Schema, f *fileModel) (*norms.Registry, error) {
	registry := norms.NewRegistry()
	for _, fn := range f.Norms {
		kind, err := norms.ParseKind(fn.Kind)
		if err != nil {
			return nil, fmt.Errorf("norm %q: %w", fn.ID, err)
		}
		n := norms.Norm{ID: fn.ID, Kind: kind, Group: fn.Group}
		if fn.Consequence == "" {
			return nil, fmt.Errorf("norm %q: missing consequence", fn.ID)
		}
		n.Consequence, err = CompileExpr(schema, fn.Consequence)
		if err != nil {
			return nil, fmt.Errorf("norm %q: consequence: %w", fn.ID, err)
		}
		if fn.Condition != "" {
			n.Condition, err = CompileExpr(schema, fn.Condition)
			if err != nil {
				return nil, fmt.Errorf("norm %q: condition: %w", fn.ID, err)
			}
		}
		if err := registry.Register(n); err != nil {
			return nil, err
		}
	}
	for i, edge := range f.Priority {
		if len(edge) != 2 {
			return nil, fmt.Errorf("priority edge %d: want [higher, lower], got %d elements", i, len(edge))
		}
		if err := registry.Rank(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("priority edge %d: %w", i, err)
		}
	}
	return registry, nil
}

func buildWorlds(schema *domain.Schema, f *fileModel) (*domain.Store, error) {
	store, err := domain.NewStore(schema)
	if err != nil {
		return nil, err
	}
	for _, name := range sortedNames(f.Worlds) {
		fw := f.Worlds[name]
		b := domain.NewWorldBuilder(schema, name)
		for _, fact := range fw.Facts {
			pred, tuple, err := parseGround(fact)
			if err != nil {
				return nil, fmt.Errorf("world %q: fact %q: %w", name, fact, err)
			}
			b.Set(pred, true, tuple...)
		}
		for _, key := range sortedNames(fw.Attrs) {
			attr, tuple, err := parseGround(key)
			if err != nil {
				return nil, fmt.Errorf("world %q: attr %q: %w", name, key, err)
			}
			b.SetAttr(attr, fw.Attrs[key], tuple...)
		}
		w, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("world %q: %w", name, err)
		}
		if err := store.AddWorld(w); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func buildClaims(schema *domain.Schema, registry *norms.Registry, f *fileModel) ([]Claim, error) {
	snapshot := registry.Snapshot()
	claims := make([]Claim, 0, len(f.Claims))
	for i, fc := range f.Claims {
		c := Claim{Kind: fc.Kind, Source: fc.Formula}
		switch fc.Kind {
		case ClaimObligatory, ClaimForbidden, ClaimPermitted:
		case ClaimRequired:
			if fc.Norm == "" {
				return nil, fmt.Errorf("claim %d: required claim needs a norm id", i)
			}
			if _, ok := snapshot.Norm(fc.Norm); !ok {
				return nil, fmt.Errorf("claim %d: unknown norm %q", i, fc.Norm)
			}
			c.NormID = fc.Norm
		case ClaimActionSafe:
			if fc.Action == "" {
				return nil, fmt.Errorf("claim %d: action_safe claim needs an action", i)
			}
			c.Action = fc.Action
		default:
			return nil, fmt.Errorf("claim %d: unknown kind %q", i, fc.Kind)
		}

		var err error
		c.Formula, err = CompileExpr(schema, fc.Formula)
		if err != nil {
			return nil, fmt.Errorf("claim %d: %w", i, err)
		}
		if fc.Condition != "" {
			if fc.Kind != ClaimObligatory && fc.Kind != ClaimForbidden {
				return nil, fmt.Errorf("claim %d: conditions apply only to obligatory and forbidden claims", i)
			}
			c.Condition, err = CompileExpr(schema, fc.Condition)
			if err != nil {
				return nil, fmt.Errorf("claim %d: condition: %w", i, err)
			}
		}
		claims = append(claims, c)
	}
	return claims, nil
}

// parseGround parses "pred(e1,e2)" into a predicate name and entity tuple.
func parseGround(src string) (string, []domain.Entity, error) {
	node, err := parseExpr(src)
	if err != nil {
		return "", nil, err
	}
	atom, ok := node.(atomNode)
	if !ok {
		return "", nil, fmt.Errorf("not a ground atom")
	}
	tuple := make([]domain.Entity, len(atom.args))
	for i, a := range atom.args {
		tuple[i] = domain.Entity(a)
	}
	return atom.name, tuple, nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
