// Package knowledge defines the domain model for the triplet knowledge
// graph: triplets, namespaces, incidents, and the deterministic text
// rendering used for embedding and indexing.
package knowledge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrValidation indicates malformed write input. It is rejected
// synchronously at the ingestion boundary and never reaches storage.
var ErrValidation = errors.New("validation failed")

// Status tracks a triplet through the consolidation lifecycle.
type Status string

const (
	// StatusRaw marks a triplet that has been persisted but not yet embedded.
	StatusRaw Status = "raw"
	// StatusDreamed marks a triplet that carries an embedding.
	StatusDreamed Status = "dreamed"
	// StatusDreamFailed marks a triplet whose consolidation exhausted
	// its retries. It stays invisible to semantic search until requeued.
	StatusDreamFailed Status = "dream_failed"
)

// Visibility classifies a namespace.
type Visibility string

const (
	// VisibilityIsolated content never crosses namespace boundaries.
	VisibilityIsolated Visibility = "isolated"
	// VisibilityShared content is visible to every project namespace.
	VisibilityShared Visibility = "shared"
	// VisibilityGlobal content is visible everywhere.
	VisibilityGlobal Visibility = "global"
)

// ParseVisibility validates and converts a visibility string.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case VisibilityIsolated, VisibilityShared, VisibilityGlobal:
		return Visibility(s), nil
	default:
		return "", fmt.Errorf("%w: unknown visibility %q", ErrValidation, s)
	}
}

// Namespace is a declared context with a visibility class. Namespaces
// come from configuration and are immutable for the process lifetime.
type Namespace struct {
	Name        string
	Visibility  Visibility
	Description string
}

// Triplet is the atomic knowledge unit: (head)-[relation]->(tail) within
// one namespace. Head, relation, tail, namespace, note and created_at are
// immutable after creation; only the consolidation worker mutates status,
// embedding and the retry bookkeeping.
type Triplet struct {
	ID        string
	Head      string
	Relation  string
	Tail      string
	Namespace string
	Note      string
	Status    Status
	Embedding []float32
	// RetryCount and LastError track consolidation attempts.
	RetryCount int
	LastError  string
	CreatedAt  time.Time
	DreamedAt  time.Time
}

// NewTripletID returns a fresh triplet identifier.
func NewTripletID() string {
	return "trp_" + uuid.New().String()
}

// Validate checks the fields fixed at creation time.
func (t *Triplet) Validate() error {
	if strings.TrimSpace(t.Head) == "" {
		return fmt.Errorf("%w: head is required", ErrValidation)
	}
	if strings.TrimSpace(t.Relation) == "" {
		return fmt.Errorf("%w: relation is required", ErrValidation)
	}
	if strings.TrimSpace(t.Tail) == "" {
		return fmt.Errorf("%w: tail is required", ErrValidation)
	}
	if strings.TrimSpace(t.Namespace) == "" {
		return fmt.Errorf("%w: namespace is required", ErrValidation)
	}
	return nil
}

// Content renders a triplet as the sentence used for both full-text
// indexing and embedding input. It is a pure function of the immutable
// fields, so re-embedding an identical triplet yields the same vector:
// "<head> <relation, lowercased with underscores spaced> <tail>",
// followed by the note when one is attached.
func (t *Triplet) Content() string {
	var b strings.Builder
	b.WriteString(t.Head)
	b.WriteByte(' ')
	b.WriteString(strings.ToLower(strings.ReplaceAll(t.Relation, "_", " ")))
	b.WriteByte(' ')
	b.WriteString(t.Tail)
	if t.Note != "" {
		b.WriteString(". ")
		b.WriteString(t.Note)
	}
	return b.String()
}

// Incident is an append-only record produced by the log_incident
// workflow. Incidents are metadata about a namespace, not namespaced
// content, and are never mutated or deleted.
type Incident struct {
	ID                      string
	Namespace               string
	Severity                string
	Description             string
	AffectedSharedResources []string
	CreatedAt               time.Time
}

// NewIncidentID returns a fresh incident identifier.
func NewIncidentID() string {
	return "inc_" + uuid.New().String()
}

// Validate checks incident fields before persistence.
func (i *Incident) Validate() error {
	if strings.TrimSpace(i.Namespace) == "" {
		return fmt.Errorf("%w: namespace is required", ErrValidation)
	}
	if strings.TrimSpace(i.Severity) == "" {
		return fmt.Errorf("%w: severity is required", ErrValidation)
	}
	if strings.TrimSpace(i.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	return nil
}
