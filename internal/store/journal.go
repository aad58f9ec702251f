package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dreamerd/internal/knowledge"
)

// Journal is the durable triplet record: every triplet and incident
// lives here regardless of consolidation state. SQLite gives us the
// per-document atomic updates the claim protocol needs.
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS triplets (
	id              TEXT PRIMARY KEY,
	head            TEXT NOT NULL,
	relation        TEXT NOT NULL,
	tail            TEXT NOT NULL,
	namespace       TEXT NOT NULL,
	note            TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'raw',
	embedding       TEXT,
	retry_count     INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	claimed_until   TIMESTAMP,
	next_attempt_at TIMESTAMP NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	dreamed_at      TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_triplets_namespace ON triplets(namespace);
CREATE INDEX IF NOT EXISTS idx_triplets_due ON triplets(status, next_attempt_at);
CREATE INDEX IF NOT EXISTS idx_triplets_entity ON triplets(head, tail);

CREATE TABLE IF NOT EXISTS incidents (
	id          TEXT PRIMARY KEY,
	namespace   TEXT NOT NULL,
	severity    TEXT NOT NULL,
	description TEXT NOT NULL,
	affected    TEXT NOT NULL DEFAULT '[]',
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_incidents_namespace ON incidents(namespace);
`

// NewJournal opens (or creates) the journal database at path. Use
// ":memory:" for an ephemeral journal in tests.
func NewJournal(path string, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return nil, fmt.Errorf("%w: journal path required", knowledge.ErrValidation)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening journal: %v", ErrStoreUnavailable, err)
	}
	// Claim CAS relies on serialized writes; a single connection keeps
	// SQLite from returning SQLITE_BUSY under worker concurrency.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrating journal: %v", ErrStoreUnavailable, err)
	}

	j := &Journal{db: db, logger: logger}
	logger.Info("journal opened", zap.String("path", path))
	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// InsertTriplet persists a new triplet row as-is.
func (j *Journal) InsertTriplet(ctx context.Context, t *knowledge.Triplet) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO triplets (id, head, relation, tail, namespace, note, status, retry_count, last_error, next_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?)`,
		t.ID, t.Head, t.Relation, t.Tail, t.Namespace, t.Note, string(t.Status), t.CreatedAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: inserting triplet: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetTriplet returns the triplet with the given id.
func (j *Journal) GetTriplet(ctx context.Context, id string) (knowledge.Triplet, error) {
	row := j.db.QueryRowContext(ctx, selectTriplet+` WHERE id = ?`, id)
	t, err := scanTriplet(row)
	if err == sql.ErrNoRows {
		return knowledge.Triplet{}, fmt.Errorf("%w: %s", ErrTripletNotFound, id)
	}
	if err != nil {
		return knowledge.Triplet{}, fmt.Errorf("%w: loading triplet: %v", ErrStoreUnavailable, err)
	}
	return t, nil
}

// MarkDreamed atomically transitions a triplet to dreamed. Returns false
// without error when the triplet is already dreamed, making repeat
// processing of the same triplet a safe no-op.
func (j *Journal) MarkDreamed(ctx context.Context, id string, embedding []float32, dreamedAt time.Time) (bool, error) {
	blob, err := json.Marshal(embedding)
	if err != nil {
		return false, fmt.Errorf("encoding embedding: %w", err)
	}

	res, err := j.db.ExecContext(ctx, `
		UPDATE triplets
		SET status = ?, embedding = ?, dreamed_at = ?, claimed_until = NULL, last_error = ''
		WHERE id = ? AND status != ?`,
		string(knowledge.StatusDreamed), string(blob), dreamedAt, id, string(knowledge.StatusDreamed),
	)
	if err != nil {
		return false, fmt.Errorf("%w: marking dreamed: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: marking dreamed: %v", ErrStoreUnavailable, err)
	}
	if n > 0 {
		return true, nil
	}

	// Zero rows means either already dreamed (fine) or unknown id.
	if _, err := j.GetTriplet(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// MarkFailed records a transient consolidation failure and schedules the
// next attempt. The triplet stays raw and the claim is released.
func (j *Journal) MarkFailed(ctx context.Context, id string, retryCount int, lastErr string, nextAttempt time.Time) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE triplets
		SET status = ?, retry_count = ?, last_error = ?, next_attempt_at = ?, claimed_until = NULL
		WHERE id = ?`,
		string(knowledge.StatusRaw), retryCount, lastErr, nextAttempt, id,
	)
	if err != nil {
		return fmt.Errorf("%w: marking failed: %v", ErrStoreUnavailable, err)
	}
	return j.requireRow(res, id)
}

// MarkDreamFailed transitions a triplet to the terminal dream_failed
// state. It stays invisible to semantic search until requeued.
func (j *Journal) MarkDreamFailed(ctx context.Context, id string, lastErr string) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE triplets
		SET status = ?, last_error = ?, claimed_until = NULL
		WHERE id = ?`,
		string(knowledge.StatusDreamFailed), lastErr, id,
	)
	if err != nil {
		return fmt.Errorf("%w: marking dream_failed: %v", ErrStoreUnavailable, err)
	}
	return j.requireRow(res, id)
}

// Requeue resets a dream_failed triplet to raw for another round of
// consolidation. No-op when the triplet is not in dream_failed.
func (j *Journal) Requeue(ctx context.Context, id string, now time.Time) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE triplets
		SET status = ?, retry_count = 0, last_error = '', next_attempt_at = ?, claimed_until = NULL
		WHERE id = ? AND status = ?`,
		string(knowledge.StatusRaw), now, id, string(knowledge.StatusDreamFailed),
	)
	if err != nil {
		return fmt.Errorf("%w: requeueing: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: requeueing: %v", ErrStoreUnavailable, err)
	}
	if n == 0 {
		if _, err := j.GetTriplet(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ClaimDue claims up to n raw triplets whose backoff deadline has passed
// and whose claim is unheld or expired. A claim expires after ttl, so a
// crashed worker's triplets become reclaimable.
func (j *Journal) ClaimDue(ctx context.Context, n int, ttl time.Duration, now time.Time) ([]knowledge.Triplet, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: claiming: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, selectTriplet+`
		WHERE status = ?
		  AND next_attempt_at <= ?
		  AND (claimed_until IS NULL OR claimed_until <= ?)
		ORDER BY next_attempt_at
		LIMIT ?`,
		string(knowledge.StatusRaw), now, now, n,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: claiming: %v", ErrStoreUnavailable, err)
	}
	triplets, err := collectTriplets(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: claiming: %v", ErrStoreUnavailable, err)
	}
	if len(triplets) == 0 {
		return nil, tx.Commit()
	}

	deadline := now.Add(ttl)
	for _, t := range triplets {
		if _, err := tx.ExecContext(ctx,
			`UPDATE triplets SET claimed_until = ? WHERE id = ?`, deadline, t.ID,
		); err != nil {
			return nil, fmt.Errorf("%w: claiming: %v", ErrStoreUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: claiming: %v", ErrStoreUnavailable, err)
	}
	return triplets, nil
}

// QueryText returns triplets in the namespace set whose rendered content
// or fields match the text, newest first.
func (j *Journal) QueryText(ctx context.Context, namespaces []string, text string, limit int) ([]knowledge.Triplet, error) {
	if len(namespaces) == 0 {
		return nil, ErrEmptyScope
	}
	placeholders, args := namespaceArgs(namespaces)
	pattern := "%" + escapeLike(text) + "%"
	args = append(args, pattern, pattern, pattern, pattern, limit)

	rows, err := j.db.QueryContext(ctx, selectTriplet+`
		WHERE namespace IN (`+placeholders+`)
		  AND (head LIKE ? ESCAPE '\' OR relation LIKE ? ESCAPE '\' OR tail LIKE ? ESCAPE '\' OR note LIKE ? ESCAPE '\')
		ORDER BY created_at DESC
		LIMIT ?`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: text query: %v", ErrStoreUnavailable, err)
	}
	return collectTriplets(rows)
}

// QueryEntity returns triplets in the namespace set where the entity
// appears as head or tail.
func (j *Journal) QueryEntity(ctx context.Context, namespaces []string, entity string, limit int) ([]knowledge.Triplet, error) {
	if len(namespaces) == 0 {
		return nil, ErrEmptyScope
	}
	placeholders, args := namespaceArgs(namespaces)
	args = append(args, entity, entity, limit)

	rows, err := j.db.QueryContext(ctx, selectTriplet+`
		WHERE namespace IN (`+placeholders+`)
		  AND (head = ? OR tail = ?)
		ORDER BY created_at DESC
		LIMIT ?`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: entity query: %v", ErrStoreUnavailable, err)
	}
	return collectTriplets(rows)
}

// ListTriplets returns all triplets in the namespace set, newest first.
func (j *Journal) ListTriplets(ctx context.Context, namespaces []string, limit int) ([]knowledge.Triplet, error) {
	if len(namespaces) == 0 {
		return nil, ErrEmptyScope
	}
	placeholders, args := namespaceArgs(namespaces)
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, selectTriplet+`
		WHERE namespace IN (`+placeholders+`)
		ORDER BY created_at DESC
		LIMIT ?`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing triplets: %v", ErrStoreUnavailable, err)
	}
	return collectTriplets(rows)
}

// EntityNamespaces returns the distinct namespaces, within the given
// set, where the entity appears as head or tail. Only namespace names
// cross this boundary, never triplet content.
func (j *Journal) EntityNamespaces(ctx context.Context, namespaces []string, entity string) ([]string, error) {
	if len(namespaces) == 0 {
		return nil, ErrEmptyScope
	}
	placeholders, args := namespaceArgs(namespaces)
	args = append(args, entity, entity)

	rows, err := j.db.QueryContext(ctx, `
		SELECT DISTINCT namespace FROM triplets
		WHERE namespace IN (`+placeholders+`)
		  AND (head = ? OR tail = ?)
		ORDER BY namespace`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: entity namespaces: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("%w: entity namespaces: %v", ErrStoreUnavailable, err)
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// DreamedTriplets returns every triplet in the dreamed state, with its
// stored embedding. The startup index rebuild walks these rows.
func (j *Journal) DreamedTriplets(ctx context.Context) ([]knowledge.Triplet, error) {
	rows, err := j.db.QueryContext(ctx, selectTriplet+` WHERE status = ?`,
		string(knowledge.StatusDreamed),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing dreamed triplets: %v", ErrStoreUnavailable, err)
	}
	return collectTriplets(rows)
}

// CountByNamespace returns triplet counts per namespace.
func (j *Journal) CountByNamespace(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT namespace, COUNT(*) FROM triplets GROUP BY namespace`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: counting: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var ns string
		var n int
		if err := rows.Scan(&ns, &n); err != nil {
			return nil, fmt.Errorf("%w: counting: %v", ErrStoreUnavailable, err)
		}
		counts[ns] = n
	}
	return counts, rows.Err()
}

// InsertIncident appends an incident record. Incidents are never
// updated or deleted.
func (j *Journal) InsertIncident(ctx context.Context, inc *knowledge.Incident) error {
	affected, err := json.Marshal(inc.AffectedSharedResources)
	if err != nil {
		return fmt.Errorf("encoding affected resources: %w", err)
	}
	if _, err := j.db.ExecContext(ctx, `
		INSERT INTO incidents (id, namespace, severity, description, affected, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.Namespace, inc.Severity, inc.Description, string(affected), inc.CreatedAt,
	); err != nil {
		return fmt.Errorf("%w: inserting incident: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ListIncidents returns incidents for a namespace, newest first.
func (j *Journal) ListIncidents(ctx context.Context, namespace string, limit int) ([]knowledge.Incident, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, namespace, severity, description, affected, created_at
		FROM incidents
		WHERE namespace = ?
		ORDER BY created_at DESC
		LIMIT ?`, namespace, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing incidents: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []knowledge.Incident
	for rows.Next() {
		var inc knowledge.Incident
		var affected string
		if err := rows.Scan(&inc.ID, &inc.Namespace, &inc.Severity, &inc.Description, &affected, &inc.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: listing incidents: %v", ErrStoreUnavailable, err)
		}
		if err := json.Unmarshal([]byte(affected), &inc.AffectedSharedResources); err != nil {
			return nil, fmt.Errorf("decoding affected resources: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

const selectTriplet = `
	SELECT id, head, relation, tail, namespace, note, status, embedding, retry_count, last_error, created_at, dreamed_at
	FROM triplets`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTriplet(row rowScanner) (knowledge.Triplet, error) {
	var t knowledge.Triplet
	var status string
	var embedding sql.NullString
	var dreamedAt sql.NullTime
	if err := row.Scan(
		&t.ID, &t.Head, &t.Relation, &t.Tail, &t.Namespace, &t.Note,
		&status, &embedding, &t.RetryCount, &t.LastError, &t.CreatedAt, &dreamedAt,
	); err != nil {
		return knowledge.Triplet{}, err
	}
	t.Status = knowledge.Status(status)
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &t.Embedding); err != nil {
			return knowledge.Triplet{}, fmt.Errorf("decoding embedding: %w", err)
		}
	}
	if dreamedAt.Valid {
		t.DreamedAt = dreamedAt.Time
	}
	return t, nil
}

func collectTriplets(rows *sql.Rows) ([]knowledge.Triplet, error) {
	defer rows.Close()
	var out []knowledge.Triplet
	for rows.Next() {
		t, err := scanTriplet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// escapeLike neutralizes LIKE metacharacters so user text matches
// literally instead of widening the pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func namespaceArgs(namespaces []string) (string, []interface{}) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(namespaces)), ", ")
	args := make([]interface{}, len(namespaces))
	for i, ns := range namespaces {
		args[i] = ns
	}
	return placeholders, args
}

func (j *Journal) requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTripletNotFound, id)
	}
	return nil
}
