package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"normcheck/internal/domain"
	"normcheck/internal/formula"
	"normcheck/internal/norms"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	schema *domain.Schema
	store  *domain.Store
	reg    *norms.Registry
}

// Library fixture per the bounded-search scenario: 6 ground atoms, so the
// full space is 64 worlds, and exactly the worlds with an overdue book on
// loan are inadmissible.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := domain.NewSchema()
	require.NoError(t, s.AddSort("Book", "b1", "b2"))
	require.NoError(t, s.AddSort("User", "u1", "u2"))
	require.NoError(t, s.AddPredicate("borrowed", "Book", "User"))
	require.NoError(t, s.AddPredicate("overdue", "Book"))
	s.Freeze()

	store, err := domain.NewStore(s)
	require.NoError(t, err)

	overdueLoan, err := formula.Exists(s, "Book", func(b domain.Entity) (formula.Formula, error) {
		overdue, err := formula.Atom(s, "overdue", b)
		if err != nil {
			return nil, err
		}
		onLoan, err := formula.Exists(s, "User", func(u domain.Entity) (formula.Formula, error) {
			return formula.Atom(s, "borrowed", b, u)
		})
		if err != nil {
			return nil, err
		}
		return formula.And(overdue, onLoan), nil
	})
	require.NoError(t, err)

	reg := norms.NewRegistry()
	require.NoError(t, reg.Register(norms.Norm{
		ID: "no-overdue-loans", Kind: norms.Prohibition, Consequence: overdueLoan, Group: "safety",
	}))
	return &fixture{schema: s, store: store, reg: reg}
}

func (f *fixture) atom(t *testing.T, pred string, tuple ...domain.Entity) formula.Formula {
	t.Helper()
	a, err := formula.Atom(f.schema, pred, tuple...)
	require.NoError(t, err)
	return a
}

func (f *fixture) finder() *Finder {
	return NewFinder(f.store, f.reg.Snapshot(), nil, nil)
}

func TestFindCountermodel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("finds an admissible refuting world", func(t *testing.T) {
		// "No book is ever borrowed" is false in admissible worlds too.
		claim := formula.Not(f.atom(t, "borrowed", "b1", "u1"))
		out, err := f.finder().FindCountermodel(ctx, claim, Budget{})
		require.NoError(t, err)
		assert.Equal(t, ResultFound, out.Result)
		require.NotNil(t, out.World)
		assert.True(t, out.World.Holds("borrowed", "b1", "u1"))
		assert.Equal(t, 64, out.Explored)
	})

	t.Run("witness must itself be admissible", func(t *testing.T) {
		// The only worlds refuting this claim are inadmissible, so the norm
		// enforces it and no countermodel exists.
		claim := formula.Implies(
			formula.And(f.atom(t, "overdue", "b2"), f.atom(t, "borrowed", "b2", "u2")),
			formula.False)
		out, err := f.finder().FindCountermodel(ctx, claim, Budget{})
		require.NoError(t, err)
		assert.Equal(t, ResultNotFound, out.Result)
		assert.Nil(t, out.World)
	})

	t.Run("truncated search is inconclusive, never not-found", func(t *testing.T) {
		claim := formula.Implies(
			formula.And(f.atom(t, "overdue", "b2"), f.atom(t, "borrowed", "b2", "u2")),
			formula.False)
		out, err := f.finder().FindCountermodel(ctx, claim, Budget{MaxWorlds: 8})
		require.NoError(t, err)
		assert.Equal(t, ResultInconclusive, out.Result)
		assert.Equal(t, 8, out.Explored)
	})

	t.Run("cancelled search returns the explored prefix", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		out, err := f.finder().FindCountermodel(cancelled, formula.True, Budget{})
		require.NoError(t, err)
		assert.Equal(t, ResultInconclusive, out.Result)
	})
}

func TestFixedLiteralsRestrictTheSpace(t *testing.T) {
	f := newFixture(t)
	fixed := []domain.Literal{{Pred: "overdue", Tuple: []domain.Entity{"b1"}, Value: true}}
	finder := NewFinder(f.store, f.reg.Snapshot(), fixed, nil)

	out, err := finder.CheckSatisfiable(context.Background(), formula.Not(f.atom(t, "overdue", "b1")), Budget{})
	require.NoError(t, err)
	// overdue(b1) is pinned true everywhere, so its negation has no witness.
	assert.Equal(t, ResultNotFound, out.Result)
	assert.Equal(t, 32, out.Explored)
}

func TestCheckSatisfiableAndValid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("satisfiable ignores the norm set", func(t *testing.T) {
		// Worlds violating the prohibition still exist in the full space.
		phi := formula.And(f.atom(t, "overdue", "b2"), f.atom(t, "borrowed", "b2", "u2"))
		out, err := f.finder().CheckSatisfiable(ctx, phi, Budget{})
		require.NoError(t, err)
		assert.Equal(t, ResultFound, out.Result)
	})

	t.Run("unsatisfiable formula", func(t *testing.T) {
		phi := formula.And(f.atom(t, "overdue", "b1"), formula.Not(f.atom(t, "overdue", "b1")))
		out, err := f.finder().CheckSatisfiable(ctx, phi, Budget{})
		require.NoError(t, err)
		assert.Equal(t, ResultNotFound, out.Result)
	})

	t.Run("valid tautology", func(t *testing.T) {
		phi := formula.Or(f.atom(t, "overdue", "b1"), formula.Not(f.atom(t, "overdue", "b1")))
		out, err := f.finder().CheckValid(ctx, phi, Budget{})
		require.NoError(t, err)
		assert.Equal(t, ResultNotFound, out.Result)
	})

	t.Run("invalid formula yields a refuting world", func(t *testing.T) {
		out, err := f.finder().CheckValid(ctx, f.atom(t, "overdue", "b1"), Budget{})
		require.NoError(t, err)
		assert.Equal(t, ResultFound, out.Result)
		require.NotNil(t, out.World)
		assert.False(t, out.World.Holds("overdue", "b1"))
	})
}

func TestBudgetTimeout(t *testing.T) {
	f := newFixture(t)
	// A timeout that has effectively already expired: whatever prefix gets
	// explored, the answer to an unsatisfiable query must be inconclusive.
	out, err := f.finder().CheckSatisfiable(context.Background(),
		formula.And(f.atom(t, "overdue", "b1"), formula.Not(f.atom(t, "overdue", "b1"))),
		Budget{Timeout: time.Nanosecond})
	require.NoError(t, err)
	if out.Result != ResultNotFound {
		assert.Equal(t, ResultInconclusive, out.Result)
	}
}

func TestEnumerationCache(t *testing.T) {
	f := newFixture(t)
	finder := f.finder()
	ctx := context.Background()

	first, err := finder.CheckSatisfiable(ctx, formula.False, Budget{})
	require.NoError(t, err)
	second, err := finder.CheckSatisfiable(ctx, formula.False, Budget{})
	require.NoError(t, err)

	assert.Equal(t, ResultNotFound, first.Result)
	assert.Equal(t, first.Explored, second.Explored)
}

func TestVerifyCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	good, err := domain.NewWorldBuilder(f.schema, "good").
		Set("borrowed", true, "b1", "u1").
		Build()
	require.NoError(t, err)
	bad, err := domain.NewWorldBuilder(f.schema, "bad").
		Set("borrowed", true, "b2", "u2").
		Set("overdue", true, "b2").
		Build()
	require.NoError(t, err)

	claim := formula.Not(f.atom(t, "borrowed", "b1", "u1"))
	verdicts, err := f.finder().VerifyCandidates(ctx, []*domain.World{good, bad}, claim)
	require.NoError(t, err)
	require.Len(t, verdicts, 2)

	assert.True(t, verdicts[0].Admissible)
	assert.True(t, verdicts[0].Violates, "good world refutes the claim")
	assert.False(t, verdicts[1].Admissible)
	assert.False(t, verdicts[1].Violates, "violation only judged for admissible candidates")
}

func TestResultKindString(t *testing.T) {
	assert.Equal(t, "found", ResultFound.String())
	assert.Equal(t, "not found", ResultNotFound.String())
	assert.Equal(t, "inconclusive", ResultInconclusive.String())
}
