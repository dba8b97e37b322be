package derive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"normcheck/internal/domain"
)

func testSchema(t *testing.T) *domain.Schema {
	t.Helper()
	s := domain.NewSchema()
	require.NoError(t, s.AddSort("Book", "b1", "b2"))
	require.NoError(t, s.AddSort("User", "u1"))
	require.NoError(t, s.AddPredicate("borrowed", "Book", "User"))
	require.NoError(t, s.AddPredicate("overdue", "Book"))
	require.NoError(t, s.AddAttribute("due_days", "Book", "User"))
	require.NoError(t, s.AddDerived("flagged", "Book"))
	require.NoError(t, s.AddDerived("short_loan", "Book"))
	s.Freeze()
	return s
}

const testRules = `
flagged(B) :- overdue(B), borrowed(B, U).
short_loan(B) :- due_days(B, U, 5).
`

func TestEngineCompile(t *testing.T) {
	s := testSchema(t)

	t.Run("valid rules compile", func(t *testing.T) {
		_, err := New(s, testRules)
		require.NoError(t, err)
	})

	t.Run("unfrozen schema rejected", func(t *testing.T) {
		_, err := New(domain.NewSchema(), testRules)
		assert.Error(t, err)
	})

	t.Run("syntax errors surface", func(t *testing.T) {
		_, err := New(s, "flagged(B) :- overdue(B")
		assert.Error(t, err)
	})
}

func TestViewDerivesExtensions(t *testing.T) {
	s := testSchema(t)
	eng, err := New(s, testRules)
	require.NoError(t, err)

	w, err := domain.NewWorldBuilder(s, "w").
		Set("borrowed", true, "b1", "u1").
		Set("overdue", true, "b1").
		SetAttr("due_days", 5, "b2", "u1").
		Build()
	require.NoError(t, err)

	v, err := eng.View(w)
	require.NoError(t, err)

	t.Run("derived facts follow the rules", func(t *testing.T) {
		assert.True(t, v.Holds("flagged", "b1"))
		assert.False(t, v.Holds("flagged", "b2"))
	})

	t.Run("attribute facts feed rules", func(t *testing.T) {
		assert.True(t, v.Holds("short_loan", "b2"))
		assert.False(t, v.Holds("short_loan", "b1"))
	})

	t.Run("base predicates pass through", func(t *testing.T) {
		assert.True(t, v.Holds("borrowed", "b1", "u1"))
		assert.False(t, v.Holds("overdue", "b2"))
	})

	t.Run("attributes delegate to the world", func(t *testing.T) {
		got, ok := v.Attr("due_days", "b2", "u1")
		require.True(t, ok)
		assert.Equal(t, 5, got)
		_, ok = v.Attr("due_days", "b1", "u1")
		assert.False(t, ok)
	})
}

func TestViewIsPerWorld(t *testing.T) {
	s := testSchema(t)
	eng, err := New(s, testRules)
	require.NoError(t, err)

	clean, err := domain.NewWorldBuilder(s, "clean").Build()
	require.NoError(t, err)
	dirty, err := domain.NewWorldBuilder(s, "dirty").
		Set("borrowed", true, "b2", "u1").
		Set("overdue", true, "b2").
		Build()
	require.NoError(t, err)

	vClean, err := eng.View(clean)
	require.NoError(t, err)
	vDirty, err := eng.View(dirty)
	require.NoError(t, err)

	assert.False(t, vClean.Holds("flagged", "b2"))
	assert.True(t, vDirty.Holds("flagged", "b2"))
}
