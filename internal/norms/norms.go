// Package norms holds prioritized norm definitions and the registry that
// validates their priority structure. Norms are authored externally and are
// immutable once snapshotted for an evaluation run; the registry hands out
// uuid-stamped snapshots so that every admissible set can be traced back to
// the exact norm set that produced it.
package norms

import (
	"fmt"
	"strings"

	"normcheck/internal/formula"
)

// Kind tags what a norm demands of worlds.
type Kind int

const (
	// Obligation: the consequence must hold in every admissible world.
	Obligation Kind = iota + 1
	// Prohibition: the consequence must hold in no admissible world.
	Prohibition
	// Permission: the consequence must be realizable; permissions shape
	// queries but contribute no world-filtering constraint.
	Permission
	// Requirement: an invariant, obligatory and load-bearing in the sense
	// that removing it strictly enlarges the admissible set.
	Requirement
)

func (k Kind) String() string {
	switch k {
	case Obligation:
		return "obligation"
	case Prohibition:
		return "prohibition"
	case Permission:
		return "permission"
	case Requirement:
		return "requirement"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps the textual kind names used in model files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "obligation":
		return Obligation, nil
	case "prohibition":
		return Prohibition, nil
	case "permission":
		return Permission, nil
	case "requirement":
		return Requirement, nil
	}
	return 0, fmt.Errorf("unknown norm kind %q", s)
}

// Norm is one prioritized rule. Condition may be nil (unconditional).
// Group names the priority group the norm belongs to; override drops whole
// groups, never individual norms within one.
type Norm struct {
	ID          string
	Kind        Kind
	Condition   formula.Formula
	Consequence formula.Formula
	Group       string
}

// Constraint returns the world-filtering formula this norm contributes to
// the admissibility conjunction, or nil for permissions. Conditional norms
// constrain only worlds satisfying the condition (material implication).
func (n Norm) Constraint() formula.Formula {
	var body formula.Formula
	switch n.Kind {
	case Obligation, Requirement:
		body = n.Consequence
	case Prohibition:
		body = formula.Not(n.Consequence)
	case Permission:
		return nil
	default:
		return nil
	}
	if n.Condition != nil {
		return formula.Implies(n.Condition, body)
	}
	return body
}

func (n Norm) String() string {
	if n.Condition != nil {
		return fmt.Sprintf("%s[%s/%s]: %s given %s", n.ID, n.Kind, n.Group, n.Consequence, n.Condition)
	}
	return fmt.Sprintf("%s[%s/%s]: %s", n.ID, n.Kind, n.Group, n.Consequence)
}

// PriorityCycleError reports a cycle in the priority order. Priority must be
// a strict partial order; a cycle is a configuration error, caught at
// registration time.
type PriorityCycleError struct {
	Cycle []string
}

func (e *PriorityCycleError) Error() string {
	return fmt.Sprintf("priority cycle: %s", strings.Join(e.Cycle, " > "))
}

// AmbiguousPriorityError reports two incomparable priority groups whose
// norms are mutually inconsistent. The source model leaves tie-breaking
// within an incomparable level undefined, so the engine refuses to guess.
type AmbiguousPriorityError struct {
	GroupA string
	GroupB string
}

func (e *AmbiguousPriorityError) Error() string {
	return fmt.Sprintf("ambiguous priority: groups %q and %q are incomparable and mutually inconsistent", e.GroupA, e.GroupB)
}
