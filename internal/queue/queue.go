// Package queue provides the dream-work signaling channel between the
// ingestion gateway and the consolidation workers. Signals only wake the
// workers; durability lives in the journal, which the workers also scan
// periodically, so a lost signal delays consolidation but never loses a
// triplet.
package queue

import "context"

// Signaler wakes the consolidation workers when new raw triplets exist.
type Signaler interface {
	// Signal notifies the workers. Best-effort and non-blocking.
	Signal(ctx context.Context) error
	// Wake returns the channel workers select on.
	Wake() <-chan struct{}
	// Close releases resources.
	Close() error
}

// InProcess is the single-process signaler: a coalescing channel of
// capacity one. Many signals while the workers are busy collapse into
// one wake-up.
type InProcess struct {
	ch chan struct{}
}

// NewInProcess creates an in-process signaler.
func NewInProcess() *InProcess {
	return &InProcess{ch: make(chan struct{}, 1)}
}

// Signal wakes the workers if they are not already pending a wake-up.
func (s *InProcess) Signal(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
	default:
	}
	return nil
}

// Wake returns the wake channel.
func (s *InProcess) Wake() <-chan struct{} {
	return s.ch
}

// Close is a no-op.
func (s *InProcess) Close() error {
	return nil
}
