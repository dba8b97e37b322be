// Package engine computes admissibility under a prioritized norm set and
// answers deontic queries against the resulting admissible-world partition.
//
// Override is monotone in priority, not in time: every call recomputes the
// active constraint conjunction fresh from a norm-set snapshot, walking
// priority layers from highest to lowest and dropping conflicting groups
// whole. Nothing accumulates across runs.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"normcheck/internal/domain"
	"normcheck/internal/formula"
	"normcheck/internal/norms"
)

// View projects a stored world into the surface formulas evaluate against.
// The default is the identity; the derive package substitutes a view that
// adds Datalog-derived predicate extensions.
type View func(*domain.World) (formula.World, error)

// Evaluator partitions a candidate world set into admissible and
// inadmissible under one norm-set snapshot. It holds only immutable inputs
// and is safe for concurrent use across independent runs.
type Evaluator struct {
	schema     *domain.Schema
	set        *norms.Set
	candidates []*domain.World
	view       View
	logger     *zap.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger attaches a zap logger. The default is a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithView substitutes the world projection used during formula evaluation.
func WithView(v View) Option {
	return func(e *Evaluator) {
		if v != nil {
			e.view = v
		}
	}
}

// New builds an evaluator over an explicit candidate world set. The schema
// must be frozen. An empty candidate set is legal; every universal query is
// then vacuous and flagged as such.
func New(schema *domain.Schema, set *norms.Set, candidates []*domain.World, opts ...Option) (*Evaluator, error) {
	if !schema.Frozen() {
		return nil, &domain.SchemaError{Ref: "evaluator", Reason: "schema must be frozen"}
	}
	if set == nil {
		return nil, fmt.Errorf("engine: nil norm set")
	}
	e := &Evaluator{
		schema:     schema,
		set:        set,
		candidates: append([]*domain.World(nil), candidates...),
		view:       func(w *domain.World) (formula.World, error) { return w, nil },
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Report is the outcome of one admissibility computation. The admissible
// set is derived, never stored: a new report replaces it wholesale whenever
// the norm set changes.
type Report struct {
	RunID           string
	Admissible      []*domain.World
	DroppedGroups   []string
	EmptyAdmissible bool
	Diagnostics     []Diagnostic

	admissibleKeys map[string]bool
}

// Contains reports whether a world is in the admissible set.
func (r *Report) Contains(w *domain.World) bool {
	return r.admissibleKeys[w.Key()]
}

// AdmissibleSet runs the priority-override algorithm and returns the report.
//
// Layers are walked highest first. Within a layer, groups are tried in tag
// order: a group whose constraints are jointly satisfiable with the active
// conjunction is activated; one that is not is dropped whole. If two
// incomparable groups in the same layer are each individually consistent
// with the active conjunction but jointly inconsistent, the engine refuses
// to pick a winner and fails with *norms.AmbiguousPriorityError.
func (e *Evaluator) AdmissibleSet(ctx context.Context) (*Report, error) {
	report := &Report{RunID: e.set.ID(), admissibleKeys: make(map[string]bool)}

	var active []formula.Formula
	layers := e.set.Layers()
	for depth, layer := range layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Activate groups one at a time, checking joint satisfiability
		// against everything already active (including earlier groups from
		// this same layer).
		var activatedTags []string
		for _, group := range layer {
			constraints := groupConstraints(group)
			if len(constraints) == 0 {
				continue // all permissions; nothing filters
			}

			trial := append(append([]formula.Formula(nil), active...), constraints...)
			sat, err := e.satisfiable(ctx, trial)
			if err != nil {
				return nil, err
			}
			if sat {
				active = trial
				activatedTags = append(activatedTags, group.Tag)
				continue
			}

			// The group conflicts. If it conflicts only because of an
			// incomparable sibling activated moments ago in this layer, the
			// order of activation would have decided the outcome. That is
			// exactly the ambiguity the model leaves undefined.
			for _, sibling := range activatedTags {
				withoutSibling, err := e.satisfiable(ctx, withoutGroup(active, e.set, sibling, constraints))
				if err != nil {
					return nil, err
				}
				if withoutSibling {
					return nil, &norms.AmbiguousPriorityError{GroupA: sibling, GroupB: group.Tag}
				}
			}

			if len(active) == 0 {
				// No higher-priority constraint is active, so nothing
				// overrides this group: the highest effective level is
				// itself unsatisfiable over the candidates. A = empty,
				// reported rather than raised.
				report.EmptyAdmissible = true
				report.Diagnostics = append(report.Diagnostics, Diagnostic{
					Code:   DiagInconsistentTopLevel,
					Detail: fmt.Sprintf("group %q is unsatisfiable over %d candidate worlds", group.Tag, len(e.candidates)),
				})
				e.logger.Warn("top-priority norms unsatisfiable over candidates",
					zap.String("group", group.Tag),
					zap.Int("candidates", len(e.candidates)))
				return report, nil
			}

			report.DroppedGroups = append(report.DroppedGroups, group.Tag)
			report.Diagnostics = append(report.Diagnostics, Diagnostic{
				Code:   DiagDroppedGroup,
				Detail: fmt.Sprintf("group %q overridden by higher-priority norms", group.Tag),
			})
			e.logger.Debug("dropped priority group",
				zap.String("group", group.Tag),
				zap.Int("layer", depth))
		}
	}

	for _, w := range e.candidates {
		ok, err := e.satisfies(w, active)
		if err != nil {
			return nil, err
		}
		if ok {
			report.Admissible = append(report.Admissible, w)
			report.admissibleKeys[w.Key()] = true
		}
	}

	if len(report.Admissible) == 0 {
		report.EmptyAdmissible = true
		report.Diagnostics = append(report.Diagnostics, Diagnostic{
			Code:   DiagEmptyAdmissibleSet,
			Detail: fmt.Sprintf("no admissible world among %d candidates", len(e.candidates)),
		})
	}

	e.logger.Debug("admissible set computed",
		zap.String("run", report.RunID),
		zap.Int("candidates", len(e.candidates)),
		zap.Int("admissible", len(report.Admissible)),
		zap.Strings("dropped", report.DroppedGroups))

	return report, nil
}

// IsAdmissible answers membership for a single world by running the full
// override computation; use Queries for repeated checks against one report.
func (e *Evaluator) IsAdmissible(ctx context.Context, w *domain.World) (bool, error) {
	report, err := e.AdmissibleSet(ctx)
	if err != nil {
		return false, err
	}
	return report.Contains(w), nil
}

func groupConstraints(g norms.Group) []formula.Formula {
	var out []formula.Formula
	for _, n := range g.Norms {
		if c := n.Constraint(); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// withoutGroup rebuilds a trial conjunction with one activated sibling
// group's constraints removed, to test whether an order-dependent conflict
// exists between incomparable groups.
func withoutGroup(active []formula.Formula, set *norms.Set, siblingTag string, add []formula.Formula) []formula.Formula {
	// Formula values are built once per norm within a snapshot; match by
	// canonical string since Formula implementations are not hashable.
	siblingStrings := make(map[string]bool)
	for _, n := range set.Norms() {
		if n.Group == siblingTag {
			if c := n.Constraint(); c != nil {
				siblingStrings[c.String()] = true
			}
		}
	}
	var out []formula.Formula
	for _, c := range active {
		if siblingStrings[c.String()] {
			continue
		}
		out = append(out, c)
	}
	return append(out, add...)
}

// satisfiable reports whether at least one candidate world satisfies the
// conjunction.
func (e *Evaluator) satisfiable(ctx context.Context, conj []formula.Formula) (bool, error) {
	for _, w := range e.candidates {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		ok, err := e.satisfies(w, conj)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (e *Evaluator) satisfies(w *domain.World, conj []formula.Formula) (bool, error) {
	view, err := e.view(w)
	if err != nil {
		return false, err
	}
	for _, f := range conj {
		if !f.Eval(view) {
			return false, nil
		}
	}
	return true, nil
}

// eval projects and evaluates one formula on one world.
func (e *Evaluator) eval(w *domain.World, f formula.Formula) (bool, error) {
	view, err := e.view(w)
	if err != nil {
		return false, err
	}
	return f.Eval(view), nil
}
