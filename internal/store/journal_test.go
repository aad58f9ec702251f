package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dreamerd/internal/knowledge"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func insertRaw(t *testing.T, j *Journal, head, relation, tail, namespace string) knowledge.Triplet {
	t.Helper()
	trp := knowledge.Triplet{
		ID:        knowledge.NewTripletID(),
		Head:      head,
		Relation:  relation,
		Tail:      tail,
		Namespace: namespace,
		Status:    knowledge.StatusRaw,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, j.InsertTriplet(context.Background(), &trp))
	return trp
}

func TestJournal_InsertAndGet(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	trp := insertRaw(t, j, "Alice Chen", "LEADS", "Project_Alpha", "Project_Alpha")

	got, err := j.GetTriplet(ctx, trp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Chen", got.Head)
	assert.Equal(t, knowledge.StatusRaw, got.Status)
	assert.Nil(t, got.Embedding)
	assert.True(t, got.DreamedAt.IsZero())
}

func TestJournal_GetTriplet_NotFound(t *testing.T) {
	j := testJournal(t)
	_, err := j.GetTriplet(context.Background(), "trp_missing")
	assert.ErrorIs(t, err, ErrTripletNotFound)
}

func TestJournal_MarkDreamed_Idempotent(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	trp := insertRaw(t, j, "Jenkins", "SERVES", "Project_Alpha", "Shared_Infra")

	changed, err := j.MarkDreamed(ctx, trp.ID, []float32{0.1, 0.2}, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, changed)

	// Second call is a no-op, not an error.
	changed, err = j.MarkDreamed(ctx, trp.ID, []float32{0.9, 0.9}, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := j.GetTriplet(ctx, trp.ID)
	require.NoError(t, err)
	assert.Equal(t, knowledge.StatusDreamed, got.Status)
	assert.Equal(t, []float32{0.1, 0.2}, got.Embedding)
	assert.False(t, got.DreamedAt.IsZero())
}

func TestJournal_MarkDreamed_NotFound(t *testing.T) {
	j := testJournal(t)
	_, err := j.MarkDreamed(context.Background(), "trp_missing", []float32{0.1}, time.Now().UTC())
	assert.ErrorIs(t, err, ErrTripletNotFound)
}

func TestJournal_MarkFailedAndDreamFailed(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	trp := insertRaw(t, j, "Vault", "MANAGES_SECRETS_FOR", "Project_Beta", "Shared_Infra")

	next := time.Now().UTC().Add(2 * time.Second)
	require.NoError(t, j.MarkFailed(ctx, trp.ID, 1, "provider timeout", next))

	got, err := j.GetTriplet(ctx, trp.ID)
	require.NoError(t, err)
	assert.Equal(t, knowledge.StatusRaw, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "provider timeout", got.LastError)

	require.NoError(t, j.MarkDreamFailed(ctx, trp.ID, "retries exhausted"))
	got, err = j.GetTriplet(ctx, trp.ID)
	require.NoError(t, err)
	assert.Equal(t, knowledge.StatusDreamFailed, got.Status)
}

func TestJournal_Requeue(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	trp := insertRaw(t, j, "Grafana", "MONITORS", "Project_Alpha", "Shared_Infra")

	require.NoError(t, j.MarkDreamFailed(ctx, trp.ID, "boom"))
	require.NoError(t, j.Requeue(ctx, trp.ID, time.Now().UTC()))

	got, err := j.GetTriplet(ctx, trp.ID)
	require.NoError(t, err)
	assert.Equal(t, knowledge.StatusRaw, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Empty(t, got.LastError)

	// Requeueing a raw triplet is a no-op.
	require.NoError(t, j.Requeue(ctx, trp.ID, time.Now().UTC()))

	// Unknown ids still surface.
	assert.ErrorIs(t, j.Requeue(ctx, "trp_missing", time.Now().UTC()), ErrTripletNotFound)
}

func TestJournal_ClaimDue(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	a := insertRaw(t, j, "Alice Chen", "LEADS", "Project_Alpha", "Project_Alpha")
	b := insertRaw(t, j, "David Park", "LEADS", "Project_Beta", "Project_Beta")

	// Both rows stamp next_attempt_at with their insertion time, so the
	// claim deadline must be taken after the inserts.
	now := time.Now().UTC()

	claimed, err := j.ClaimDue(ctx, 10, time.Minute, now)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	// Claimed triplets are invisible to a second claimer until the
	// claim expires.
	again, err := j.ClaimDue(ctx, 10, time.Minute, now)
	require.NoError(t, err)
	assert.Empty(t, again)

	// An expired claim is reclaimable, so a crashed worker cannot
	// strand a triplet.
	later := now.Add(2 * time.Minute)
	reclaimed, err := j.ClaimDue(ctx, 10, time.Minute, later)
	require.NoError(t, err)
	assert.Len(t, reclaimed, 2)

	_ = a
	_ = b
}

func TestJournal_ClaimDue_RespectsBackoffDeadline(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	now := time.Now().UTC()

	trp := insertRaw(t, j, "Jenkins", "SERVES", "Project_Beta", "Shared_Infra")
	require.NoError(t, j.MarkFailed(ctx, trp.ID, 1, "timeout", now.Add(time.Minute)))

	claimed, err := j.ClaimDue(ctx, 10, time.Minute, now)
	require.NoError(t, err)
	assert.Empty(t, claimed, "triplet claimed before its backoff deadline")

	claimed, err = j.ClaimDue(ctx, 10, time.Minute, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestJournal_ClaimDue_SkipsTerminalStates(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	now := time.Now().UTC()

	dreamed := insertRaw(t, j, "a", "R", "b", "Project_Alpha")
	_, err := j.MarkDreamed(ctx, dreamed.ID, []float32{0.1}, now)
	require.NoError(t, err)

	failed := insertRaw(t, j, "c", "R", "d", "Project_Alpha")
	require.NoError(t, j.MarkDreamFailed(ctx, failed.ID, "exhausted"))

	claimed, err := j.ClaimDue(ctx, 10, time.Minute, now.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestJournal_QueryText(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	insertRaw(t, j, "PostgreSQL RDS", "PASSWORD", "alpha_pg_2024!secure", "Project_Alpha")
	insertRaw(t, j, "Cloud SQL MySQL", "PASSWORD", "beta_mysql_h1pp4!", "Project_Beta")

	// Namespace predicate is mandatory at the SQL layer too.
	got, err := j.QueryText(ctx, []string{"Project_Alpha"}, "PASSWORD", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Project_Alpha", got[0].Namespace)

	_, err = j.QueryText(ctx, nil, "PASSWORD", 10)
	assert.ErrorIs(t, err, ErrEmptyScope)
}

func TestJournal_QueryText_EscapesLikeMetacharacters(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	insertRaw(t, j, "Batch Job", "SUCCESS_RATE", "100%", "Project_Alpha")
	insertRaw(t, j, "PostgreSQL RDS", "PASSWORD", "alpha_pg_2024!secure", "Project_Alpha")

	// "%" and "_" in the query are literal text, not wildcards.
	got, err := j.QueryText(ctx, []string{"Project_Alpha"}, "100%", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Batch Job", got[0].Head)

	got, err = j.QueryText(ctx, []string{"Project_Alpha"}, "a_p", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alpha_pg_2024!secure", got[0].Tail)
}

func TestJournal_QueryEntity(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	insertRaw(t, j, "Jenkins", "SERVES", "Project_Alpha", "Shared_Infra")
	insertRaw(t, j, "Project_Alpha", "DEPENDS_ON", "Jenkins", "Project_Alpha")
	insertRaw(t, j, "Grafana", "MONITORS", "Project_Alpha", "Shared_Infra")

	got, err := j.QueryEntity(ctx, []string{"Shared_Infra", "Project_Alpha"}, "Jenkins", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = j.QueryEntity(ctx, []string{"Project_Alpha"}, "Jenkins", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "DEPENDS_ON", got[0].Relation)

	_, err = j.QueryEntity(ctx, []string{}, "Jenkins", 10)
	assert.ErrorIs(t, err, ErrEmptyScope)
}

func TestJournal_EntityNamespaces(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	insertRaw(t, j, "Project_Alpha", "DEPENDS_ON", "Jenkins", "Project_Alpha")
	insertRaw(t, j, "Project_Beta", "DEPENDS_ON", "Jenkins", "Project_Beta")
	insertRaw(t, j, "Alice Chen", "LEADS", "Project_Alpha", "Project_Alpha")

	got, err := j.EntityNamespaces(ctx, []string{"Project_Alpha", "Project_Beta"}, "Jenkins")
	require.NoError(t, err)
	assert.Equal(t, []string{"Project_Alpha", "Project_Beta"}, got)

	got, err = j.EntityNamespaces(ctx, []string{"Project_Alpha", "Project_Beta"}, "Alice Chen")
	require.NoError(t, err)
	assert.Equal(t, []string{"Project_Alpha"}, got)
}

func TestJournal_CountByNamespace(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	insertRaw(t, j, "a", "R", "b", "Project_Alpha")
	insertRaw(t, j, "c", "R", "d", "Project_Alpha")
	insertRaw(t, j, "e", "R", "f", "Global")

	counts, err := j.CountByNamespace(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Project_Alpha": 2, "Global": 1}, counts)
}

func TestJournal_Incidents(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	inc := knowledge.Incident{
		ID:                      knowledge.NewIncidentID(),
		Namespace:               "Project_Alpha",
		Severity:                "high",
		Description:             "Redis failure",
		AffectedSharedResources: []string{"Jenkins", "Grafana"},
		CreatedAt:               time.Now().UTC(),
	}
	require.NoError(t, j.InsertIncident(ctx, &inc))

	got, err := j.ListIncidents(ctx, "Project_Alpha", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Jenkins", "Grafana"}, got[0].AffectedSharedResources)

	got, err = j.ListIncidents(ctx, "Project_Beta", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
