// Package search drives the whole pipeline: it enumerates or verifies
// candidate worlds over the bounded domain, invokes the admissibility
// evaluator, and hunts for countermodels: admissible worlds that falsify a
// claim. Exhaustive enumeration is the one long-running operation in the
// engine, so every entry point takes a context and a budget, and a truncated
// search reports Inconclusive rather than pretending to be a proof of
// absence.
package search

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"normcheck/internal/domain"
	"normcheck/internal/engine"
	"normcheck/internal/formula"
	"normcheck/internal/norms"
)

// ResultKind classifies a search outcome.
type ResultKind int

const (
	// ResultFound: a witness world was located.
	ResultFound ResultKind = iota + 1
	// ResultNotFound: the full bounded space was explored and no witness
	// exists. Only a complete enumeration may report this.
	ResultNotFound
	// ResultInconclusive: the search was cancelled or the budget ran out
	// before the space was covered. Never coerce this to ResultNotFound.
	ResultInconclusive
)

func (r ResultKind) String() string {
	switch r {
	case ResultFound:
		return "found"
	case ResultNotFound:
		return "not found"
	case ResultInconclusive:
		return "inconclusive"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// Budget bounds an exhaustive search. Zero values mean unbounded.
type Budget struct {
	MaxWorlds int
	Timeout   time.Duration
}

// Outcome is the result of one search.
type Outcome struct {
	Result      ResultKind
	World       *domain.World
	Explored    int
	Diagnostics []engine.Diagnostic
}

// Finder enumerates the bounded world space from the domain store and
// answers countermodel, satisfiability, and validity questions. It holds
// immutable inputs only and is safe for concurrent use.
type Finder struct {
	store  *domain.Store
	set    *norms.Set
	fixed  []domain.Literal
	attrs  []domain.FixedAttr
	view   engine.View
	logger *zap.Logger

	mu       sync.Mutex
	cache    []*domain.World // full enumeration, published read-only
	complete bool
}

// Option configures a Finder.
type Option func(*Finder)

// NewFinder builds a finder over the store's schema. Fixed literals and
// attributes bound the enumerated space ("background facts").
func NewFinder(store *domain.Store, set *norms.Set, fixed []domain.Literal, attrs []domain.FixedAttr, opts ...Option) *Finder {
	f := &Finder{
		store:  store,
		set:    set,
		fixed:  fixed,
		attrs:  attrs,
		view:   func(w *domain.World) (formula.World, error) { return w, nil },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithLogger attaches a zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Finder) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithView substitutes the world projection used during evaluation.
func WithView(v engine.View) Option {
	return func(f *Finder) {
		if v != nil {
			f.view = v
		}
	}
}

// FindCountermodel searches the bounded space for an admissible world that
// falsifies the claim. The admissible set is recomputed over the explored
// worlds; when the budget truncates enumeration, any negative answer is
// Inconclusive.
func (f *Finder) FindCountermodel(ctx context.Context, claim formula.Formula, budget Budget) (*Outcome, error) {
	worlds, complete, err := f.enumerate(ctx, budget)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		// The caller cancelled during enumeration. Judging the explored
		// prefix is bounded work, and the contract is a partial Inconclusive
		// result rather than an error.
		ctx = context.Background()
	}

	eval, err := engine.New(f.store.Schema(), f.set, worlds, engine.WithView(f.view), engine.WithLogger(f.logger))
	if err != nil {
		return nil, err
	}
	report, err := eval.AdmissibleSet(ctx)
	if err != nil {
		return nil, err
	}

	witness, err := f.scan(ctx, report.Admissible, formula.Not(claim))
	if err != nil {
		return nil, err
	}

	out := &Outcome{Explored: len(worlds), Diagnostics: report.Diagnostics}
	switch {
	case witness != nil:
		out.Result = ResultFound
		out.World = witness
		if !complete {
			// The override was computed over the explored prefix only; with
			// more candidates fewer groups get dropped and admissibility can
			// tighten. The witness stands for the explored space.
			out.Diagnostics = append(out.Diagnostics, engine.Diagnostic{
				Code:   engine.DiagDroppedGroup,
				Detail: "witness admissibility judged over a truncated enumeration",
			})
		}
	case complete:
		out.Result = ResultNotFound
	default:
		out.Result = ResultInconclusive
	}

	f.logger.Info("countermodel search finished",
		zap.String("claim", claim.String()),
		zap.String("result", out.Result.String()),
		zap.Int("explored", out.Explored))
	return out, nil
}

// CheckSatisfiable reports whether some world in the enumerated space
// satisfies phi. Satisfiability ignores the norm set: it quantifies over the
// full schema-consistent space.
func (f *Finder) CheckSatisfiable(ctx context.Context, phi formula.Formula, budget Budget) (*Outcome, error) {
	worlds, complete, err := f.enumerate(ctx, budget)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	witness, err := f.scan(ctx, worlds, phi)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Explored: len(worlds)}
	switch {
	case witness != nil:
		out.Result = ResultFound
		out.World = witness
	case complete:
		out.Result = ResultNotFound
	default:
		out.Result = ResultInconclusive
	}
	return out, nil
}

// CheckValid reports whether phi holds in every world of the full bounded
// space, admissible or not, distinguishing norm-independent tautologies
// from genuinely admissibility-dependent claims. Found means a refuting
// world exists; NotFound means phi is valid over the space.
func (f *Finder) CheckValid(ctx context.Context, phi formula.Formula, budget Budget) (*Outcome, error) {
	return f.CheckSatisfiable(ctx, formula.Not(phi), budget)
}

// CandidateVerdict is the judged status of one externally supplied world.
type CandidateVerdict struct {
	World      *domain.World
	Admissible bool
	Violates   bool // claim falsified, only meaningful when Admissible
}

// VerifyCandidates is the guided mode: externally supplied candidate worlds
// (an LLM-driven generator, typically) are verified against the norm set and
// the claim. The engine never trusts or fabricates candidates; it only
// judges the ones it is handed, with admissibility computed over the
// supplied pool itself.
func (f *Finder) VerifyCandidates(ctx context.Context, candidates []*domain.World, claim formula.Formula) ([]CandidateVerdict, error) {
	eval, err := engine.New(f.store.Schema(), f.set, candidates, engine.WithView(f.view), engine.WithLogger(f.logger))
	if err != nil {
		return nil, err
	}
	report, err := eval.AdmissibleSet(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]CandidateVerdict, 0, len(candidates))
	for _, w := range candidates {
		v := CandidateVerdict{World: w, Admissible: report.Contains(w)}
		if v.Admissible {
			view, err := f.view(w)
			if err != nil {
				return nil, err
			}
			v.Violates = !claim.Eval(view)
		}
		out = append(out, v)
	}
	return out, nil
}

// enumerate walks the bounded space up to the budget, returning the explored
// worlds and whether the walk covered everything. A completed enumeration is
// cached and shared read-only across subsequent calls.
func (f *Finder) enumerate(ctx context.Context, budget Budget) ([]*domain.World, bool, error) {
	f.mu.Lock()
	if f.complete && (budget.MaxWorlds == 0 || budget.MaxWorlds >= len(f.cache)) {
		worlds := f.cache
		f.mu.Unlock()
		return worlds, true, nil
	}
	f.mu.Unlock()

	if budget.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget.Timeout)
		defer cancel()
	}

	var worlds []*domain.World
	truncated := false
	err := f.store.Enumerate(ctx, f.fixed, f.attrs, func(w *domain.World) error {
		if budget.MaxWorlds > 0 && len(worlds) >= budget.MaxWorlds {
			truncated = true
			return domain.ErrStopEnumeration
		}
		worlds = append(worlds, w)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled or timed out: the explored prefix is still usable,
			// but only for an Inconclusive answer.
			return worlds, false, nil
		}
		return nil, false, err
	}

	if !truncated {
		f.mu.Lock()
		f.cache = worlds
		f.complete = true
		f.mu.Unlock()
	}
	return worlds, !truncated, nil
}

// scan looks for a world satisfying phi, splitting the slice across
// GOMAXPROCS workers. First match wins; which witness is returned is
// unspecified when several exist.
func (f *Finder) scan(ctx context.Context, worlds []*domain.World, phi formula.Formula) (*domain.World, error) {
	if len(worlds) == 0 {
		return nil, nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(worlds) {
		workers = len(worlds)
	}
	chunk := (len(worlds) + workers - 1) / workers

	var mu sync.Mutex
	var witness *domain.World

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		lo := i * chunk
		hi := lo + chunk
		if hi > len(worlds) {
			hi = len(worlds)
		}
		part := worlds[lo:hi]
		g.Go(func() error {
			for _, w := range part {
				if err := gctx.Err(); err != nil {
					return err
				}
				mu.Lock()
				found := witness != nil
				mu.Unlock()
				if found {
					return nil
				}
				view, err := f.view(w)
				if err != nil {
					return err
				}
				if phi.Eval(view) {
					mu.Lock()
					if witness == nil {
						witness = w
					}
					mu.Unlock()
					return nil
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return witness, nil
}
