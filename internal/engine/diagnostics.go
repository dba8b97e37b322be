package engine

import "fmt"

// DiagnosticCode classifies the warnings the engine attaches to verdicts.
// Diagnostics are reports, not errors: evaluation always terminates over a
// finite world set, and callers are expected to inspect these flags rather
// than catch exceptions.
type DiagnosticCode string

const (
	// DiagEmptyAdmissibleSet: the admissible set is empty; every universal
	// verdict derived under it is vacuous.
	DiagEmptyAdmissibleSet DiagnosticCode = "empty_admissible_set"

	// DiagInconsistentTopLevel: even the highest-priority layer is
	// unsatisfiable over the candidate worlds.
	DiagInconsistentTopLevel DiagnosticCode = "inconsistent_top_level"

	// DiagVacuousTruth: the verdict holds only because the quantification
	// domain is empty.
	DiagVacuousTruth DiagnosticCode = "vacuous_truth"

	// DiagConditionUnsatisfiable: no admissible world satisfies the
	// condition of a conditional query. Distinct from an empty admissible
	// set: the condition itself is impossible given the active norms, which
	// is diagnostic information in its own right.
	DiagConditionUnsatisfiable DiagnosticCode = "condition_unsatisfiable"

	// DiagDroppedGroup: a priority group was overridden (dropped whole)
	// because it conflicted with strictly higher-priority norms.
	DiagDroppedGroup DiagnosticCode = "dropped_group"
)

// Diagnostic is one warning attached to a report or verdict.
type Diagnostic struct {
	Code   DiagnosticCode
	Detail string
}

func (d Diagnostic) String() string {
	if d.Detail == "" {
		return string(d.Code)
	}
	return fmt.Sprintf("%s: %s", d.Code, d.Detail)
}

// Verdict is the answer to a deontic query. Vacuous verdicts hold only
// because the admissible set (or a conditional's restriction) is empty;
// callers should treat them as modeling smells, not proofs.
type Verdict struct {
	Holds       bool
	Vacuous     bool
	Diagnostics []Diagnostic
}

func (v Verdict) String() string {
	switch {
	case v.Holds && v.Vacuous:
		return "holds (vacuously)"
	case v.Holds:
		return "holds"
	default:
		return "does not hold"
	}
}
