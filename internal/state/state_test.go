package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/applogic/internal/value"
	"github.com/rendis/applogic/pkg/schema"
)

func mustPath(t *testing.T, s string) value.Path {
	t.Helper()
	p, err := value.ParsePath(s)
	require.NoError(t, err)
	return p
}

func TestFromDocAndDoc(t *testing.T) {
	doc := &schema.StateDoc{
		Shared: map[string]any{
			"counter":  float64(3),
			"balances": map[string]any{"alice": float64(50)},
		},
		PerAgent: map[string]map[string]any{
			"alice": {"votes": []any{"a", "b"}},
		},
	}

	s, err := FromDoc(doc)
	require.NoError(t, err)
	assert.True(t, s.Shared["counter"].Equal(value.Num(3)))
	assert.True(t, s.PerAgent["alice"]["votes"].Equal(value.List(value.Str("a"), value.Str("b"))))

	round := s.Doc()
	assert.Equal(t, doc.Shared["counter"], round.Shared["counter"])
	assert.Equal(t, doc.PerAgent["alice"]["votes"], round.PerAgent["alice"]["votes"])

	empty, err := FromDoc(nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Shared)
}

func TestCloneIsolation(t *testing.T) {
	s := New()
	s.Shared["xs"] = value.List(value.Num(1))
	s.AgentPartition("a1")["score"] = value.Num(10)

	cp := s.Clone()
	require.Nil(t, Apply(cp.Shared, mustPath(t, "xs"), schema.OpAppend, value.Num(2)))
	cp.PerAgent["a1"]["score"] = value.Num(0)

	assert.True(t, s.Shared["xs"].Equal(value.List(value.Num(1))))
	assert.True(t, s.PerAgent["a1"]["score"].Equal(value.Num(10)))
}

func TestApplyOperations(t *testing.T) {
	t.Run("set creates and overwrites", func(t *testing.T) {
		part := map[string]value.Value{}
		require.Nil(t, Apply(part, mustPath(t, "counter"), schema.OpSet, value.Num(5)))
		require.Nil(t, Apply(part, mustPath(t, "counter"), schema.OpSet, value.Num(7)))
		assert.True(t, part["counter"].Equal(value.Num(7)))
	})

	t.Run("increment and decrement default absent to zero", func(t *testing.T) {
		part := map[string]value.Value{}
		require.Nil(t, Apply(part, mustPath(t, "n"), schema.OpIncrement, value.Num(3)))
		require.Nil(t, Apply(part, mustPath(t, "n"), schema.OpDecrement, value.Num(1)))
		assert.True(t, part["n"].Equal(value.Num(2)))

		require.Nil(t, Apply(part, mustPath(t, "fresh"), schema.OpDecrement, value.Num(4)))
		assert.True(t, part["fresh"].Equal(value.Num(-4)))
	})

	t.Run("increment on non-number is a type mismatch", func(t *testing.T) {
		part := map[string]value.Value{"s": value.Str("x")}
		err := Apply(part, mustPath(t, "s"), schema.OpIncrement, value.Num(1))
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeTypeMismatch, err.Code)
	})

	t.Run("append and remove", func(t *testing.T) {
		part := map[string]value.Value{"xs": value.List(value.Num(1), value.Num(2), value.Num(1))}
		require.Nil(t, Apply(part, mustPath(t, "xs"), schema.OpAppend, value.Num(3)))
		assert.True(t, part["xs"].Equal(value.List(value.Num(1), value.Num(2), value.Num(1), value.Num(3))))

		// Remove deletes only the first structurally-equal element.
		require.Nil(t, Apply(part, mustPath(t, "xs"), schema.OpRemove, value.Num(1)))
		assert.True(t, part["xs"].Equal(value.List(value.Num(2), value.Num(1), value.Num(3))))

		// Removing an absent element is a no-op.
		require.Nil(t, Apply(part, mustPath(t, "xs"), schema.OpRemove, value.Num(99)))
		assert.True(t, part["xs"].Equal(value.List(value.Num(2), value.Num(1), value.Num(3))))
	})

	t.Run("append to non-list fails", func(t *testing.T) {
		part := map[string]value.Value{"n": value.Num(1)}
		err := Apply(part, mustPath(t, "n"), schema.OpAppend, value.Num(2))
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeTypeMismatch, err.Code)

		err = Apply(part, mustPath(t, "missing"), schema.OpAppend, value.Num(2))
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeTypeMismatch, err.Code)
	})

	t.Run("merge is a shallow union, new keys win", func(t *testing.T) {
		part := map[string]value.Value{"cfg": value.Map(map[string]value.Value{
			"a": value.Num(1),
			"b": value.Num(2),
		})}
		require.Nil(t, Apply(part, mustPath(t, "cfg"), schema.OpMerge,
			value.Map(map[string]value.Value{"b": value.Num(9), "c": value.Num(3)})))
		assert.True(t, part["cfg"].Equal(value.Map(map[string]value.Value{
			"a": value.Num(1),
			"b": value.Num(9),
			"c": value.Num(3),
		})))
	})
}

func TestApplyNestedPaths(t *testing.T) {
	part := map[string]value.Value{
		"balances": value.Map(map[string]value.Value{"alice": value.Num(50)}),
		"rows":     value.List(value.Map(map[string]value.Value{"n": value.Num(1)})),
	}

	t.Run("nested increment", func(t *testing.T) {
		require.Nil(t, Apply(part, mustPath(t, "balances.alice"), schema.OpDecrement, value.Num(20)))
		assert.True(t, part["balances"].Equal(value.Map(map[string]value.Value{"alice": value.Num(30)})))
	})

	t.Run("absent final map key is creatable", func(t *testing.T) {
		require.Nil(t, Apply(part, mustPath(t, "balances.bob"), schema.OpSet, value.Num(10)))
		m, _ := part["balances"].AsMap()
		assert.True(t, m["bob"].Equal(value.Num(10)))
	})

	t.Run("write through list index", func(t *testing.T) {
		require.Nil(t, Apply(part, mustPath(t, "rows[0].n"), schema.OpIncrement, value.Num(1)))
		items, _ := part["rows"].AsList()
		assert.True(t, items[0].Equal(value.Map(map[string]value.Value{"n": value.Num(2)})))
	})

	t.Run("undeclared root is unknown path", func(t *testing.T) {
		err := Apply(part, mustPath(t, "ghost.x"), schema.OpSet, value.Num(1))
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeUnknownPath, err.Code)
	})

	t.Run("missing intermediate is unknown path", func(t *testing.T) {
		err := Apply(part, mustPath(t, "balances.carol.limit"), schema.OpSet, value.Num(1))
		require.NotNil(t, err)
		assert.Equal(t, schema.ErrCodeUnknownPath, err.Code)
	})
}

func TestCheckSize(t *testing.T) {
	s := New()
	s.Shared["blob"] = value.Str(strings.Repeat("x", 100))

	assert.Nil(t, s.CheckSize(1<<20))

	err := s.CheckSize(50)
	require.NotNil(t, err)
	assert.Equal(t, schema.ErrCodeStateSizeLimit, err.Code)
	assert.True(t, err.IsSafetyLimit())
}
