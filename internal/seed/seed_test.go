package seed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dreamerd/internal/gateway"
	"github.com/fyrsmithlabs/dreamerd/internal/knowledge"
	"github.com/fyrsmithlabs/dreamerd/internal/queue"
	"github.com/fyrsmithlabs/dreamerd/internal/registry"
	"github.com/fyrsmithlabs/dreamerd/internal/store"
)

func TestLoad(t *testing.T) {
	journal, err := store.NewJournal(filepath.Join(t.TempDir(), "journal.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	index, err := store.NewIndex(store.IndexConfig{}, zap.NewNop())
	require.NoError(t, err)

	st := store.New(journal, index, zap.NewNop())

	reg, err := registry.New([]knowledge.Namespace{
		{Name: "Project_Alpha", Visibility: knowledge.VisibilityIsolated},
		{Name: "Project_Beta", Visibility: knowledge.VisibilityIsolated},
		{Name: "Shared_Infra", Visibility: knowledge.VisibilityShared},
		{Name: "Global", Visibility: knowledge.VisibilityGlobal},
	})
	require.NoError(t, err)

	signaler := queue.NewInProcess()
	t.Cleanup(func() { _ = signaler.Close() })

	gw := gateway.New(st, reg, signaler, zap.NewNop())

	total, err := Load(context.Background(), gw, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 65, total)

	counts, err := st.CountByNamespace(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 18, counts["Project_Alpha"])
	assert.Equal(t, 19, counts["Project_Beta"])
	assert.Equal(t, 18, counts["Shared_Infra"])
	assert.Equal(t, 10, counts["Global"])

	// Everything lands raw; consolidation happens elsewhere.
	raw, err := st.ListTriplets(context.Background(), []string{"Project_Alpha"}, 100)
	require.NoError(t, err)
	for _, tr := range raw {
		assert.Equal(t, knowledge.StatusRaw, tr.Status)
	}
}

func TestLoad_FailsClosedOnMissingNamespace(t *testing.T) {
	journal, err := store.NewJournal(filepath.Join(t.TempDir(), "journal.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	index, err := store.NewIndex(store.IndexConfig{}, zap.NewNop())
	require.NoError(t, err)

	st := store.New(journal, index, zap.NewNop())

	// Registry missing the demo namespaces.
	reg, err := registry.New([]knowledge.Namespace{
		{Name: "Other", Visibility: knowledge.VisibilityIsolated},
	})
	require.NoError(t, err)

	signaler := queue.NewInProcess()
	t.Cleanup(func() { _ = signaler.Close() })

	gw := gateway.New(st, reg, signaler, zap.NewNop())

	_, err = Load(context.Background(), gw, zap.NewNop())
	require.ErrorIs(t, err, registry.ErrNamespaceNotFound)
}
