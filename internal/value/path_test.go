package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	t.Run("valid forms", func(t *testing.T) {
		cases := []struct {
			in   string
			segs int
			root string
		}{
			{"balance", 1, "balance"},
			{"balances.alice", 2, "balances"},
			{"items[0].price", 3, "items"},
			{`votes["option a"]`, 2, "votes"},
			{"a.b.c.d", 4, "a"},
			{"xs[2][0]", 3, "xs"},
		}
		for _, c := range cases {
			p, err := ParsePath(c.in)
			require.NoError(t, err, c.in)
			assert.Equal(t, c.root, p.Root(), c.in)
			assert.Len(t, p.Segments(), c.segs, c.in)
			assert.Equal(t, c.in, p.String())
		}
	})

	t.Run("invalid forms", func(t *testing.T) {
		for _, in := range []string{"", ".", "a..b", "a[", "a[1", `a["x`, "a[x]", "[0]", "a.b!", "1a"} {
			_, err := ParsePath(in)
			assert.Error(t, err, in)
		}
	})

	t.Run("rest", func(t *testing.T) {
		p, err := ParsePath("a.b[1]")
		require.NoError(t, err)
		assert.Nil(t, mustParse(t, "a").Rest())
		assert.Len(t, p.Rest(), 2)
	})
}

func mustParse(t *testing.T, s string) Path {
	t.Helper()
	p, err := ParsePath(s)
	require.NoError(t, err)
	return p
}

func TestPathGet(t *testing.T) {
	root := Map(map[string]Value{
		"balances": Map(map[string]Value{"alice": Num(50)}),
		"items":    List(Map(map[string]Value{"price": Num(9.5)})),
		"n":        Num(1),
	})

	t.Run("resolves nested keys and indexes", func(t *testing.T) {
		v, err := Get(root, mustParse(t, "balances.alice").Segments())
		require.NoError(t, err)
		assert.True(t, v.Equal(Num(50)))

		v, err = Get(root, mustParse(t, "items[0].price").Segments())
		require.NoError(t, err)
		assert.True(t, v.Equal(Num(9.5)))
	})

	t.Run("missing key is PathNotFound", func(t *testing.T) {
		_, err := Get(root, mustParse(t, "balances.bob").Segments())
		var perr *PathError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, PathNotFound, perr.Kind)
	})

	t.Run("index out of range is PathNotFound", func(t *testing.T) {
		_, err := Get(root, mustParse(t, "items[3]").Segments())
		var perr *PathError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, PathNotFound, perr.Kind)
	})

	t.Run("descending into a scalar is PathTypeMismatch", func(t *testing.T) {
		_, err := Get(root, mustParse(t, "n.x").Segments())
		var perr *PathError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, PathTypeMismatch, perr.Kind)

		_, err = Get(root, mustParse(t, "balances[0]").Segments())
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, PathTypeMismatch, perr.Kind)
	})
}

func TestPathSet(t *testing.T) {
	newRoot := func() Value {
		return Map(map[string]Value{
			"balances": Map(map[string]Value{"alice": Num(50)}),
			"items":    List(Num(1), Num(2)),
		})
	}

	t.Run("overwrites existing key", func(t *testing.T) {
		root := newRoot()
		require.NoError(t, Set(root, mustParse(t, "balances.alice").Segments(), Num(40)))
		v, err := Get(root, mustParse(t, "balances.alice").Segments())
		require.NoError(t, err)
		assert.True(t, v.Equal(Num(40)))
	})

	t.Run("creates final map key", func(t *testing.T) {
		root := newRoot()
		require.NoError(t, Set(root, mustParse(t, "balances.bob").Segments(), Num(10)))
		v, err := Get(root, mustParse(t, "balances.bob").Segments())
		require.NoError(t, err)
		assert.True(t, v.Equal(Num(10)))
	})

	t.Run("replaces list element in range", func(t *testing.T) {
		root := newRoot()
		require.NoError(t, Set(root, mustParse(t, "items[1]").Segments(), Num(9)))
		v, err := Get(root, mustParse(t, "items[1]").Segments())
		require.NoError(t, err)
		assert.True(t, v.Equal(Num(9)))
	})

	t.Run("missing intermediate is an error", func(t *testing.T) {
		root := newRoot()
		err := Set(root, mustParse(t, "balances.bob.limit").Segments(), Num(1))
		var perr *PathError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, PathNotFound, perr.Kind)
	})

	t.Run("out of range index is an error", func(t *testing.T) {
		root := newRoot()
		err := Set(root, mustParse(t, "items[5]").Segments(), Num(1))
		var perr *PathError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, PathNotFound, perr.Kind)
	})

	t.Run("writing through a scalar is an error", func(t *testing.T) {
		root := newRoot()
		err := Set(root, mustParse(t, "items[0].x").Segments(), Num(1))
		var perr *PathError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, PathTypeMismatch, perr.Kind)
	})
}
