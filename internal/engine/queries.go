package engine

import (
	"context"
	"fmt"

	"normcheck/internal/domain"
	"normcheck/internal/formula"
)

// QuerySet answers deontic queries against one computed admissible set. All
// queries on a QuerySet share the same report, so repeated questions about
// one norm-set snapshot cost one override computation.
type QuerySet struct {
	eval   *Evaluator
	report *Report
}

// Queries computes the admissible set once and returns the query surface.
func (e *Evaluator) Queries(ctx context.Context) (*QuerySet, error) {
	report, err := e.AdmissibleSet(ctx)
	if err != nil {
		return nil, err
	}
	return &QuerySet{eval: e, report: report}, nil
}

// Report exposes the underlying admissibility report.
func (q *QuerySet) Report() *Report { return q.report }

// Obligatory reports whether phi holds in every admissible world. On an
// empty admissible set the verdict is vacuously true and flagged: a vacuous
// obligation usually means the norm set is over-constrained.
func (q *QuerySet) Obligatory(phi formula.Formula) (Verdict, error) {
	return q.allOf(q.report.Admissible, phi, q.emptyDiag())
}

// Forbidden reports whether phi holds in no admissible world. Vacuously true
// and flagged on an empty admissible set.
func (q *QuerySet) Forbidden(phi formula.Formula) (Verdict, error) {
	return q.allOf(q.report.Admissible, formula.Not(phi), q.emptyDiag())
}

// Permitted reports whether phi holds in at least one admissible world.
// Unlike the universal queries, Permitted is FALSE on an empty admissible
// set (no witness can exist) for every phi, including formula.True.
func (q *QuerySet) Permitted(phi formula.Formula) (Verdict, error) {
	if len(q.report.Admissible) == 0 {
		return Verdict{
			Holds:       false,
			Diagnostics: q.emptyDiag(),
		}, nil
	}
	for _, w := range q.report.Admissible {
		ok, err := q.eval.eval(w, phi)
		if err != nil {
			return Verdict{}, err
		}
		if ok {
			return Verdict{Holds: true}, nil
		}
	}
	return Verdict{Holds: false}, nil
}

// ObligatoryGiven restricts the admissible set to worlds satisfying psi and
// asks Obligatory there. An empty restriction yields a vacuous verdict with
// a DiagConditionUnsatisfiable diagnostic so callers can tell "psi is
// impossible under the active norms" apart from "the admissible set itself
// is empty".
func (q *QuerySet) ObligatoryGiven(phi, psi formula.Formula) (Verdict, error) {
	restricted, err := q.restrict(psi)
	if err != nil {
		return Verdict{}, err
	}
	return q.allOf(restricted, phi, q.conditionDiag(psi, restricted))
}

// ForbiddenGiven is the conditional form of Forbidden.
func (q *QuerySet) ForbiddenGiven(phi, psi formula.Formula) (Verdict, error) {
	restricted, err := q.restrict(psi)
	if err != nil {
		return Verdict{}, err
	}
	return q.allOf(restricted, formula.Not(phi), q.conditionDiag(psi, restricted))
}

// Required reports whether phi is a strong invariant: obligatory, AND the
// norm named by normID is load-bearing: recomputing the admissible set
// without it strictly enlarges A.
func (q *QuerySet) Required(ctx context.Context, phi formula.Formula, normID string) (Verdict, error) {
	if _, ok := q.eval.set.Norm(normID); !ok {
		return Verdict{}, fmt.Errorf("required: norm %q not in snapshot %s", normID, q.eval.set.ID())
	}

	obligatory, err := q.Obligatory(phi)
	if err != nil {
		return Verdict{}, err
	}
	if !obligatory.Holds {
		return Verdict{Holds: false, Diagnostics: obligatory.Diagnostics}, nil
	}

	relaxed, err := New(q.eval.schema, q.eval.set.Without(normID), q.eval.candidates,
		WithView(q.eval.view), WithLogger(q.eval.logger))
	if err != nil {
		return Verdict{}, err
	}
	relaxedReport, err := relaxed.AdmissibleSet(ctx)
	if err != nil {
		return Verdict{}, err
	}

	return Verdict{
		Holds:       len(relaxedReport.Admissible) > len(q.report.Admissible),
		Vacuous:     obligatory.Vacuous,
		Diagnostics: obligatory.Diagnostics,
	}, nil
}

// allOf is the universal quantification core shared by Obligatory and
// Forbidden (and their conditional forms).
func (q *QuerySet) allOf(worlds []*domain.World, phi formula.Formula, emptyDiags []Diagnostic) (Verdict, error) {
	if len(worlds) == 0 {
		return Verdict{
			Holds:       true,
			Vacuous:     true,
			Diagnostics: append(emptyDiags, Diagnostic{Code: DiagVacuousTruth, Detail: "quantification domain is empty"}),
		}, nil
	}
	for _, w := range worlds {
		ok, err := q.eval.eval(w, phi)
		if err != nil {
			return Verdict{}, err
		}
		if !ok {
			return Verdict{Holds: false}, nil
		}
	}
	return Verdict{Holds: true}, nil
}

func (q *QuerySet) restrict(psi formula.Formula) ([]*domain.World, error) {
	var out []*domain.World
	for _, w := range q.report.Admissible {
		ok, err := q.eval.eval(w, psi)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, w)
		}
	}
	return out, nil
}

// emptyDiag carries the empty-admissible-set warning onto verdicts derived
// under an empty A.
func (q *QuerySet) emptyDiag() []Diagnostic {
	if len(q.report.Admissible) > 0 {
		return nil
	}
	return []Diagnostic{{
		Code:   DiagEmptyAdmissibleSet,
		Detail: "admissible set is empty",
	}}
}

// conditionDiag distinguishes an unsatisfiable condition from an empty
// admissible set.
func (q *QuerySet) conditionDiag(psi formula.Formula, restricted []*domain.World) []Diagnostic {
	if len(restricted) > 0 {
		return nil
	}
	if len(q.report.Admissible) == 0 {
		return q.emptyDiag()
	}
	return []Diagnostic{{
		Code:   DiagConditionUnsatisfiable,
		Detail: fmt.Sprintf("no admissible world satisfies condition %s", psi),
	}}
}
