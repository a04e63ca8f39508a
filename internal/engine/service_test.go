package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/applogic/internal/store"
	"github.com/rendis/applogic/pkg/schema"
)

func newTestService(t *testing.T) (*Service, *store.LibSQLStore) {
	t.Helper()
	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return NewService(newEngine(t), st, nil), st
}

func TestServiceCreateApp(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	def, err := svc.CreateApp(ctx, []byte(walletDef))
	require.NoError(t, err)
	assert.Equal(t, "wallet", def.AppID)

	rec, err := st.GetApp(ctx, "wallet")
	require.NoError(t, err)
	assert.Equal(t, "Wallet", rec.Name)

	_, err = svc.CreateApp(ctx, []byte(`{"app_id": "nope"}`))
	var aerr *schema.AppError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, schema.ErrCodeDefinition, aerr.Code)
}

func TestServiceLoadApps(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateApp(ctx, []byte(walletDef))
	require.NoError(t, err)

	// A fresh engine over the same store picks the definitions back up.
	fresh := NewService(newEngine(t), st, nil)
	require.NoError(t, fresh.LoadApps(ctx))
	inst, err := fresh.CreateInstance(ctx, "wallet")
	require.NoError(t, err)
	assert.NotEmpty(t, inst.ID)
}

func TestServiceInvoke(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateApp(ctx, []byte(walletDef))
	require.NoError(t, err)
	inst, err := svc.CreateInstance(ctx, "wallet")
	require.NoError(t, err)

	t.Run("success commits the new state", func(t *testing.T) {
		res, err := svc.Invoke(ctx, inst.ID, "alice", "", "contribute",
			map[string]any{"amount": float64(40)})
		require.NoError(t, err)
		require.True(t, res.Success, "%v", res.Error)

		stored, err := st.GetInstance(ctx, inst.ID)
		require.NoError(t, err)
		assert.Contains(t, string(stored.State), `"pot":40`)
	})

	t.Run("subsequent invocation sees the committed state", func(t *testing.T) {
		res, err := svc.Invoke(ctx, inst.ID, "alice", "", "contribute",
			map[string]any{"amount": float64(10)})
		require.NoError(t, err)
		require.True(t, res.Success, "%v", res.Error)
		assert.Equal(t, float64(50), res.Value)
		assert.Equal(t, float64(50), res.NewState.PerAgent["alice"]["balance"])
	})

	t.Run("failure is logged but discards state", func(t *testing.T) {
		res, err := svc.Invoke(ctx, inst.ID, "alice", "", "contribute",
			map[string]any{"amount": float64(9999)})
		require.NoError(t, err, "an action failure is not a service error")
		require.False(t, res.Success)
		assert.Equal(t, schema.ErrCodeParam, res.Error.Code)

		stored, serr := st.GetInstance(ctx, inst.ID)
		require.NoError(t, serr)
		assert.Contains(t, string(stored.State), `"pot":50`, "failed invocation leaves state untouched")

		invs, lerr := st.ListInvocations(ctx, inst.ID, 10)
		require.NoError(t, lerr)
		require.Len(t, invs, 3)
	})

	t.Run("notifications reach the outbox", func(t *testing.T) {
		pending, err := svc.PendingNotifications(ctx, "bob", 10)
		require.NoError(t, err)
		require.Len(t, pending, 2, "two successful invocations broadcast")

		var ids []int64
		for _, n := range pending {
			ids = append(ids, n.ID)
		}
		require.NoError(t, svc.MarkNotificationsDelivered(ctx, ids))
		pending, err = svc.PendingNotifications(ctx, "bob", 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("unknown instance", func(t *testing.T) {
		_, err := svc.Invoke(ctx, "ghost", "a", "", "contribute", nil)
		var aerr *schema.AppError
		require.ErrorAs(t, err, &aerr)
		assert.Equal(t, schema.ErrCodeNotFound, aerr.Code)
	})
}
