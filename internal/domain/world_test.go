package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorldBuilder(t *testing.T) {
	s := librarySchema(t)

	t.Run("unset atoms default to false", func(t *testing.T) {
		w, err := NewWorldBuilder(s, "w1").
			Set("borrowed", true, "b1", "u1").
			Build()
		require.NoError(t, err)
		assert.True(t, w.Holds("borrowed", "b1", "u1"))
		assert.False(t, w.Holds("borrowed", "b2", "u2"))
		assert.False(t, w.Holds("overdue", "b1"))
	})

	t.Run("builder errors are sticky", func(t *testing.T) {
		_, err := NewWorldBuilder(s, "bad").
			Set("borrowed", true, "b1").
			Set("overdue", true, "b1").
			Build()
		require.Error(t, err)
		var serr *SchemaError
		assert.ErrorAs(t, err, &serr)
	})

	t.Run("derived predicates cannot be assigned", func(t *testing.T) {
		s2 := NewSchema()
		require.NoError(t, s2.AddSort("Book", "b1"))
		require.NoError(t, s2.AddPredicate("overdue", "Book"))
		require.NoError(t, s2.AddDerived("flagged", "Book"))
		s2.Freeze()

		_, err := NewWorldBuilder(s2, "w").Set("flagged", true, "b1").Build()
		assert.Error(t, err)
	})

	t.Run("attributes ride along", func(t *testing.T) {
		w, err := NewWorldBuilder(s, "w2").
			SetAttr("due_days", 21, "b1", "u1").
			Build()
		require.NoError(t, err)
		v, ok := w.Attr("due_days", "b1", "u1")
		require.True(t, ok)
		assert.Equal(t, 21, v)
		_, ok = w.Attr("due_days", "b2", "u2")
		assert.False(t, ok)
	})
}

func TestWorldEquality(t *testing.T) {
	s := librarySchema(t)

	build := func(name string) *World {
		w, err := NewWorldBuilder(s, name).
			Set("borrowed", true, "b2", "u1").
			SetAttr("due_days", 5, "b2", "u1").
			Build()
		require.NoError(t, err)
		return w
	}

	t.Run("same valuation same key regardless of name", func(t *testing.T) {
		a, b := build("a"), build("b")
		assert.Equal(t, a.Key(), b.Key())
		assert.True(t, a.Equal(b))
	})

	t.Run("attribute change separates keys", func(t *testing.T) {
		a := build("a")
		c, err := NewWorldBuilder(s, "c").
			Set("borrowed", true, "b2", "u1").
			SetAttr("due_days", 6, "b2", "u1").
			Build()
		require.NoError(t, err)
		assert.NotEqual(t, a.Key(), c.Key())
	})
}

func TestWorldFixedAttrs(t *testing.T) {
	s := librarySchema(t)
	w, err := NewWorldBuilder(s, "w").
		SetAttr("due_days", 21, "b1", "u1").
		SetAttr("due_days", 5, "b2", "u2").
		Build()
	require.NoError(t, err)

	fixed := w.FixedAttrs(s)
	require.Len(t, fixed, 2)
	assert.Equal(t, "due_days", fixed[0].Attr)
	assert.Equal(t, []Entity{"b1", "u1"}, fixed[0].Tuple)
	assert.Equal(t, 21, fixed[0].Value)
}

func TestWorldTrueAtoms(t *testing.T) {
	s := librarySchema(t)
	w, err := NewWorldBuilder(s, "w").
		Set("borrowed", true, "b1", "u2").
		Set("overdue", true, "b2").
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"borrowed(b1,u2)", "overdue(b2)"}, w.TrueAtoms(s))
}
