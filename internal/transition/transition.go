// Package transition models actions as a labeled relation between stored
// worlds and checks action-indexed safety constraints against an admissible
// set. Transition facts are supplied externally, derived from an
// action-effect description the engine does not author; the engine's job is
// only to check their interaction with admissibility.
package transition

import (
	"fmt"
	"sort"

	"normcheck/internal/domain"
	"normcheck/internal/engine"
	"normcheck/internal/formula"
)

// Triple is one transition fact T(w, a, w').
type Triple struct {
	From   string
	Action string
	To     string
}

// Relation is a finite set of transition triples over the worlds of one
// store. Triples referencing unknown worlds are rejected at Add time.
type Relation struct {
	store    *domain.Store
	triples  []Triple
	byAction map[string][]Triple
}

// NewRelation creates an empty relation over the store's worlds.
func NewRelation(store *domain.Store) *Relation {
	return &Relation{
		store:    store,
		byAction: make(map[string][]Triple),
	}
}

// Add registers a transition fact. Both endpoint worlds must already be
// registered in the store; an unknown reference is a *domain.SchemaError.
func (r *Relation) Add(from, action, to string) error {
	if action == "" {
		return &domain.SchemaError{Ref: "transition", Reason: "empty action label"}
	}
	if _, ok := r.store.World(from); !ok {
		return &domain.SchemaError{Ref: from, Reason: "unknown source world in transition"}
	}
	if _, ok := r.store.World(to); !ok {
		return &domain.SchemaError{Ref: to, Reason: "unknown target world in transition"}
	}
	t := Triple{From: from, Action: action, To: to}
	r.triples = append(r.triples, t)
	r.byAction[action] = append(r.byAction[action], t)
	return nil
}

// Actions returns the registered action labels, sorted.
func (r *Relation) Actions() []string {
	out := make([]string, 0, len(r.byAction))
	for a := range r.byAction {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Triples returns all transition facts in registration order.
func (r *Relation) Triples() []Triple {
	return append([]Triple(nil), r.triples...)
}

// ActionSafe checks O[action]phi: for every transition (w, action, w') whose
// source w is admissible under the report, phi must hold in w'. An action
// with no transitions from any admissible world is vacuously safe, flagged
// the same way as other vacuous truths.
func (r *Relation) ActionSafe(action string, phi formula.Formula, report *engine.Report, view engine.View) (engine.Verdict, error) {
	checked := 0
	for _, t := range r.byAction[action] {
		from, _ := r.store.World(t.From)
		if !report.Contains(from) {
			continue
		}
		to, _ := r.store.World(t.To)
		w, err := view(to)
		if err != nil {
			return engine.Verdict{}, fmt.Errorf("transition %s --%s--> %s: %w", t.From, t.Action, t.To, err)
		}
		checked++
		if !phi.Eval(w) {
			return engine.Verdict{Holds: false}, nil
		}
	}
	if checked == 0 {
		return engine.Verdict{
			Holds:   true,
			Vacuous: true,
			Diagnostics: []engine.Diagnostic{{
				Code:   engine.DiagVacuousTruth,
				Detail: fmt.Sprintf("action %q has no transition from an admissible world", action),
			}},
		}, nil
	}
	return engine.Verdict{Holds: true}, nil
}
