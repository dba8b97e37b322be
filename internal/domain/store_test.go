package domain

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreWorlds(t *testing.T) {
	s := librarySchema(t)
	store, err := NewStore(s)
	require.NoError(t, err)

	w1, err := NewWorldBuilder(s, "w1").Build()
	require.NoError(t, err)
	require.NoError(t, store.AddWorld(w1))

	t.Run("lookup by name", func(t *testing.T) {
		got, ok := store.World("w1")
		require.True(t, ok)
		assert.True(t, got.Equal(w1))
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		dup, err := NewWorldBuilder(s, "w1").Set("overdue", true, "b1").Build()
		require.NoError(t, err)
		assert.Error(t, store.AddWorld(dup))
	})

	t.Run("unnamed worlds rejected", func(t *testing.T) {
		anon, err := NewWorldBuilder(s, "").Build()
		require.NoError(t, err)
		assert.Error(t, store.AddWorld(anon))
	})
}

func TestStoreEnumerate(t *testing.T) {
	s := librarySchema(t)
	store, err := NewStore(s)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("walks the full valuation space", func(t *testing.T) {
		seen := make(map[string]bool)
		err := store.Enumerate(ctx, nil, nil, func(w *World) error {
			seen[w.Key()] = true
			return nil
		})
		require.NoError(t, err)
		// 6 ground atoms, so 64 distinct worlds.
		assert.Len(t, seen, 64)
	})

	t.Run("fixed literals halve the space", func(t *testing.T) {
		fixed := []Literal{{Pred: "overdue", Tuple: []Entity{"b1"}, Value: true}}
		count := 0
		err := store.Enumerate(ctx, fixed, nil, func(w *World) error {
			assert.True(t, w.Holds("overdue", "b1"))
			count++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 32, count)
	})

	t.Run("pinned attributes appear on every world", func(t *testing.T) {
		attrs := []FixedAttr{{Attr: "due_days", Tuple: []Entity{"b2", "u2"}, Value: 5}}
		err := store.Enumerate(ctx, nil, attrs, func(w *World) error {
			v, ok := w.Attr("due_days", "b2", "u2")
			require.True(t, ok)
			assert.Equal(t, 5, v)
			return ErrStopEnumeration
		})
		require.NoError(t, err)
	})

	t.Run("visitor can stop early without error", func(t *testing.T) {
		count := 0
		err := store.Enumerate(ctx, nil, nil, func(w *World) error {
			count++
			if count == 10 {
				return ErrStopEnumeration
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 10, count)
	})

	t.Run("cancellation surfaces as ctx error", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := store.Enumerate(cancelled, nil, nil, func(w *World) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("order is deterministic", func(t *testing.T) {
		var first, second []string
		collect := func(out *[]string) func(*World) error {
			return func(w *World) error {
				if len(*out) < 8 {
					*out = append(*out, w.Key())
					return nil
				}
				return ErrStopEnumeration
			}
		}
		require.NoError(t, store.Enumerate(ctx, nil, nil, collect(&first)))
		require.NoError(t, store.Enumerate(ctx, nil, nil, collect(&second)))
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("enumeration order changed between runs (-first +second):\n%s", diff)
		}
	})
}
