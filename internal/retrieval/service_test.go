package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dreamerd/internal/embeddings"
	"github.com/fyrsmithlabs/dreamerd/internal/guard"
	"github.com/fyrsmithlabs/dreamerd/internal/knowledge"
	"github.com/fyrsmithlabs/dreamerd/internal/registry"
	"github.com/fyrsmithlabs/dreamerd/internal/store"
)

type fakeProvider struct {
	vector []float32
	err    error
}

func (f *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeProvider) Dimension() int { return len(f.vector) }
func (f *fakeProvider) Close() error   { return nil }

func testService(t *testing.T, provider embeddings.Provider) (*Service, *store.Store) {
	t.Helper()

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

	if provider == nil {
		provider = &fakeProvider{vector: []float32{1, 0, 0, 0}}
	}
	return New(guard.New(reg), st, reg, provider, zap.NewNop()), st
}

func put(t *testing.T, st *store.Store, namespace, head, relation, tail, note string) knowledge.Triplet {
	t.Helper()
	triplet := knowledge.Triplet{
		Head:      head,
		Relation:  relation,
		Tail:      tail,
		Namespace: namespace,
		Note:      note,
	}
	_, err := st.PutTriplet(context.Background(), &triplet)
	require.NoError(t, err)
	return triplet
}

func TestService_SearchByNamespace_StrictIsolation(t *testing.T) {
	svc, st := testService(t, nil)
	ctx := context.Background()

	alpha := put(t, st, "Project_Alpha", "PostgreSQL RDS", "HAS_PASSWORD", "alpha_pg_2024!secure", "")
	put(t, st, "Project_Beta", "Cloud SQL MySQL", "HAS_PASSWORD", "beta_mysql_h1pp4!", "")
	put(t, st, "Shared_Infra", "Vault", "MANAGES_SECRETS_FOR", "Project_Alpha", "")

	got, err := svc.SearchByNamespace(ctx, "Project_Alpha", "password")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, alpha.ID, got[0].ID)

	// The other project's credentials must stay invisible even though
	// they match the query text.
	for _, tr := range got {
		assert.Equal(t, "Project_Alpha", tr.Namespace)
		assert.NotContains(t, tr.Tail, "beta_mysql")
	}
}

func TestService_SearchByNamespace_UnknownNamespace(t *testing.T) {
	svc, st := testService(t, nil)
	put(t, st, "Project_Alpha", "Alice Chen", "WORKS_ON", "Project_Alpha", "")

	got, err := svc.SearchByNamespace(context.Background(), "Project_Gamma", "Alice")
	require.ErrorIs(t, err, registry.ErrNamespaceNotFound)
	assert.Nil(t, got)
}

func TestService_FindEntityRelations_IncludesShared(t *testing.T) {
	svc, st := testService(t, nil)
	ctx := context.Background()

	put(t, st, "Project_Alpha", "Project_Alpha", "DEPENDS_ON", "Jenkins", "")
	put(t, st, "Shared_Infra", "Jenkins", "SERVES", "Project_Alpha", "")
	put(t, st, "Shared_Infra", "Jenkins", "SERVES", "Project_Beta", "")
	put(t, st, "Project_Beta", "Project_Beta", "DEPENDS_ON", "Jenkins", "")

	got, err := svc.FindEntityRelations(ctx, "Project_Alpha", "Jenkins")
	require.NoError(t, err)

	namespaces := make(map[string]int)
	for _, tr := range got {
		namespaces[tr.Namespace]++
	}
	assert.Equal(t, 1, namespaces["Project_Alpha"])
	assert.Equal(t, 2, namespaces["Shared_Infra"])
	assert.Zero(t, namespaces["Project_Beta"], "other isolated namespaces must stay out of scope")
}

func TestService_ListNamespaces(t *testing.T) {
	svc, st := testService(t, nil)

	put(t, st, "Project_Alpha", "Alice Chen", "WORKS_ON", "Project_Alpha", "")
	put(t, st, "Project_Alpha", "Bob Kumar", "WORKS_ON", "Project_Alpha", "")
	put(t, st, "Global", "Company VPN", "REQUIRED_FOR", "Remote Access", "")

	got, err := svc.ListNamespaces(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 4)

	byName := make(map[string]NamespaceInfo)
	for _, info := range got {
		byName[info.Name] = info
	}
	assert.Equal(t, 2, byName["Project_Alpha"].DocCount)
	assert.Equal(t, 0, byName["Project_Beta"].DocCount)
	assert.Equal(t, 1, byName["Global"].DocCount)
	assert.Equal(t, knowledge.VisibilityShared, byName["Shared_Infra"].Visibility)
}

func TestService_CrossReference_SharedEntity(t *testing.T) {
	svc, st := testService(t, nil)
	ctx := context.Background()

	put(t, st, "Shared_Infra", "Jenkins", "SERVES", "Project_Alpha", "")
	put(t, st, "Shared_Infra", "Jenkins", "SERVES", "Project_Beta", "")
	put(t, st, "Project_Alpha", "Project_Alpha", "DEPENDS_ON", "Jenkins", "")
	put(t, st, "Project_Beta", "Project_Beta", "DEPENDS_ON", "Jenkins", "")
	// Grafana only touches one project.
	put(t, st, "Shared_Infra", "Grafana", "MONITORS", "Project_Alpha", "")
	put(t, st, "Project_Alpha", "Project_Alpha", "DEPENDS_ON", "Grafana", "")

	refs, err := svc.CrossReference(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)

	jenkins := refs[0]
	assert.Equal(t, "Jenkins", jenkins.Entity)
	assert.ElementsMatch(t, []string{"Project_Alpha", "Project_Beta"}, jenkins.Namespaces)
	require.Len(t, jenkins.Triplets, 2)
	for _, tr := range jenkins.Triplets {
		assert.Equal(t, "Shared_Infra", tr.Namespace, "only shared content may cross the boundary")
	}
}

func TestService_CrossReference_SharedEdgesOnly(t *testing.T) {
	svc, st := testService(t, nil)
	ctx := context.Background()

	// The projects hold nothing about Jenkins themselves; the shared
	// SERVES edges alone must establish that both depend on it.
	put(t, st, "Project_Alpha", "Alice Chen", "LEADS", "Project_Alpha", "")
	put(t, st, "Project_Beta", "David Park", "LEADS", "Project_Beta", "")
	put(t, st, "Shared_Infra", "Jenkins", "SERVES", "Project_Alpha", "")
	put(t, st, "Shared_Infra", "Jenkins", "SERVES", "Project_Beta", "")
	put(t, st, "Shared_Infra", "Grafana", "MONITORS", "Project_Alpha", "")

	refs, err := svc.CrossReference(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)

	jenkins := refs[0]
	assert.Equal(t, "Jenkins", jenkins.Entity)
	assert.ElementsMatch(t, []string{"Project_Alpha", "Project_Beta"}, jenkins.Namespaces)
	require.Len(t, jenkins.Triplets, 2)
	for _, tr := range jenkins.Triplets {
		assert.Equal(t, "Shared_Infra", tr.Namespace)
	}
}

func TestService_CrossReference_ExcludesNamespaceEntities(t *testing.T) {
	svc, st := testService(t, nil)

	put(t, st, "Shared_Infra", "Vault", "MANAGES_SECRETS_FOR", "Project_Alpha", "")
	put(t, st, "Shared_Infra", "Vault", "MANAGES_SECRETS_FOR", "Project_Beta", "")

	refs, err := svc.CrossReference(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "Vault", refs[0].Entity, "namespace names are contexts, not shared resources")
}

func TestService_CrossReference_NoSharedTriplets(t *testing.T) {
	svc, st := testService(t, nil)

	put(t, st, "Project_Alpha", "Alice Chen", "WORKS_ON", "Project_Alpha", "")
	put(t, st, "Project_Beta", "David Park", "WORKS_ON", "Project_Beta", "")

	refs, err := svc.CrossReference(context.Background())
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestService_SearchSemantic(t *testing.T) {
	provider := &fakeProvider{vector: []float32{1, 0, 0, 0}}
	svc, st := testService(t, provider)
	ctx := context.Background()

	alpha := put(t, st, "Project_Alpha", "PostgreSQL RDS", "HOSTED_ON", "AWS", "")
	beta := put(t, st, "Project_Beta", "Cloud SQL MySQL", "HOSTED_ON", "GCP", "")
	raw := put(t, st, "Project_Alpha", "Carol Zhang", "WORKS_ON", "Project_Alpha", "")

	require.NoError(t, st.MarkDreamed(ctx, alpha.ID, []float32{1, 0, 0, 0}))
	require.NoError(t, st.MarkDreamed(ctx, beta.ID, []float32{0.9, 0.1, 0, 0}))

	got, err := svc.SearchSemantic(ctx, "Project_Alpha", "where is the database hosted", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, alpha.ID, got[0].Triplet.ID)

	for _, hit := range got {
		assert.NotEqual(t, beta.ID, hit.Triplet.ID, "other namespaces must never rank")
		assert.NotEqual(t, raw.ID, hit.Triplet.ID, "raw triplets are not yet searchable")
	}
}

func TestService_SearchSemantic_EmbedErrorSurfaces(t *testing.T) {
	provider := &fakeProvider{err: embeddings.ErrEmbeddingFailed}
	svc, st := testService(t, provider)
	put(t, st, "Project_Alpha", "Alice Chen", "WORKS_ON", "Project_Alpha", "")

	got, err := svc.SearchSemantic(context.Background(), "Project_Alpha", "anything", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, embeddings.ErrEmbeddingFailed))
	assert.Nil(t, got)
}
