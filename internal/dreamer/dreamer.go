// Package dreamer runs the consolidation worker pool that turns raw
// triplets into dreamed (embedded) triplets. Writers are never blocked
// and no triplet is lost on transient embedding failure: it stays raw
// with a retry counter and a backoff deadline until retries are
// exhausted, then parks in dream_failed awaiting an operator requeue.
package dreamer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dreamerd/internal/embeddings"
	"github.com/fyrsmithlabs/dreamerd/internal/knowledge"
	"github.com/fyrsmithlabs/dreamerd/internal/queue"
	"github.com/fyrsmithlabs/dreamerd/internal/store"
)

// Config holds the worker pool tuning knobs.
type Config struct {
	// Workers is the number of concurrent embedding workers.
	Workers int `koanf:"workers"`
	// MaxRetries is the attempt budget before a triplet is parked in
	// dream_failed.
	MaxRetries int `koanf:"max_retries"`
	// BackoffBase is the delay after the first failure.
	BackoffBase time.Duration `koanf:"backoff_base"`
	// BackoffCap bounds the exponential backoff.
	BackoffCap time.Duration `koanf:"backoff_cap"`
	// ClaimTTL is how long a claim holds before another worker may
	// reclaim the triplet.
	ClaimTTL time.Duration `koanf:"claim_ttl"`
	// BatchSize is the maximum number of triplets claimed per cycle.
	BatchSize int `koanf:"batch_size"`
	// ScanInterval is the due-scan period. The scan backs up the wake
	// signals and recovers expired claims.
	ScanInterval time.Duration `koanf:"scan_interval"`
	// EmbedTimeout bounds each embedding call.
	EmbedTimeout time.Duration `koanf:"embed_timeout"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 60 * time.Second
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = 2 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = 5 * time.Second
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 30 * time.Second
	}
}

// Dreamer is the consolidation worker pool.
//
// Thread safety: Start and Stop are safe for concurrent use; the running
// state is guarded by a mutex.
type Dreamer struct {
	config   Config
	store    *store.Store
	provider embeddings.Provider
	signaler queue.Signaler
	logger   *zap.Logger
	metrics  *Metrics

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Dreamer. The signaler may be shared with the ingestion
// gateway so fresh triplets are picked up without waiting for the scan.
func New(cfg Config, st *store.Store, provider embeddings.Provider, signaler queue.Signaler, logger *zap.Logger) (*Dreamer, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("embedding provider cannot be nil")
	}
	if signaler == nil {
		return nil, fmt.Errorf("signaler cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	return &Dreamer{
		config:   cfg,
		store:    st,
		provider: provider,
		signaler: signaler,
		logger:   logger,
		metrics:  NewMetrics(logger),
	}, nil
}

// Start launches the dispatcher and worker goroutines. Idempotent:
// starting a running Dreamer returns an error without spawning more
// goroutines.
func (d *Dreamer) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("dreamer is already running")
	}
	d.stopCh = make(chan struct{})
	d.running = true

	jobs := make(chan knowledge.Triplet)

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i, jobs)
	}

	d.wg.Add(1)
	go d.dispatch(jobs)

	d.logger.Info("dreamer started",
		zap.Int("workers", d.config.Workers),
		zap.Int("max_retries", d.config.MaxRetries),
		zap.Duration("scan_interval", d.config.ScanInterval),
	)
	return nil
}

// Stop signals shutdown and waits for in-flight work to finish or time
// out. No new triplets are claimed after Stop; held claims expire on
// their own, so nothing is stranded even on a hard crash.
func (d *Dreamer) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("dreamer stopped")
	return nil
}

// Requeue resets a dream_failed triplet to raw and wakes the workers.
// This is the operator-triggered re-enqueue; nothing happens
// automatically after retries are exhausted.
func (d *Dreamer) Requeue(ctx context.Context, id string) error {
	if err := d.store.Requeue(ctx, id); err != nil {
		return err
	}
	return d.signaler.Signal(ctx)
}

// dispatch claims due triplets and feeds the workers. It wakes on
// gateway signals and on the periodic due-scan, which also recovers
// triplets whose claim expired with a crashed worker.
func (d *Dreamer) dispatch(jobs chan<- knowledge.Triplet) {
	defer d.wg.Done()
	defer close(jobs)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatcher panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	ticker := time.NewTicker(d.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-d.signaler.Wake():
		case <-ticker.C:
		}

		for {
			claimed, err := d.store.ClaimDue(context.Background(), d.config.BatchSize, d.config.ClaimTTL)
			if err != nil {
				d.logger.Error("claim cycle failed", zap.Error(err))
				break
			}
			if len(claimed) == 0 {
				break
			}
			d.logger.Debug("claimed triplets", zap.Int("count", len(claimed)))

			for _, t := range claimed {
				select {
				case jobs <- t:
				case <-d.stopCh:
					return
				}
			}
			if len(claimed) < d.config.BatchSize {
				break
			}
		}
	}
}

// worker consolidates triplets one at a time.
func (d *Dreamer) worker(id int, jobs <-chan knowledge.Triplet) {
	defer d.wg.Done()
	logger := d.logger.With(zap.Int("worker", id))

	for t := range jobs {
		d.safeDream(logger, t)
	}
}

// safeDream wraps dream with panic recovery so one bad triplet cannot
// take down the pool.
func (d *Dreamer) safeDream(logger *zap.Logger, t knowledge.Triplet) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dream panicked",
				zap.String("triplet_id", t.ID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	d.dream(logger, t)
}

// dream embeds one claimed triplet and records the outcome.
func (d *Dreamer) dream(logger *zap.Logger, t knowledge.Triplet) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), d.config.EmbedTimeout)
	embedding, err := d.provider.EmbedQuery(ctx, t.Content())
	cancel()

	if err == nil {
		if err := d.store.MarkDreamed(context.Background(), t.ID, embedding); err != nil {
			logger.Error("failed to persist dreamed triplet",
				zap.String("triplet_id", t.ID),
				zap.Error(err),
			)
			d.metrics.RecordDream(context.Background(), "persist_error", time.Since(start))
			return
		}
		logger.Debug("triplet dreamed",
			zap.String("triplet_id", t.ID),
			zap.String("namespace", t.Namespace),
			zap.Duration("duration", time.Since(start)),
		)
		d.metrics.RecordDream(context.Background(), "dreamed", time.Since(start))
		return
	}

	retry := t.RetryCount + 1
	if retry > d.config.MaxRetries {
		if err := d.store.MarkDreamFailed(context.Background(), t.ID, err.Error()); err != nil {
			logger.Error("failed to park triplet", zap.String("triplet_id", t.ID), zap.Error(err))
			return
		}
		logger.Warn("triplet parked after exhausting retries",
			zap.String("triplet_id", t.ID),
			zap.Int("retries", t.RetryCount),
			zap.Error(err),
		)
		d.metrics.RecordDream(context.Background(), "dream_failed", time.Since(start))
		return
	}

	nextAttempt := time.Now().UTC().Add(d.backoff(retry))
	if err := d.store.MarkFailed(context.Background(), t.ID, retry, err.Error(), nextAttempt); err != nil {
		logger.Error("failed to record retry", zap.String("triplet_id", t.ID), zap.Error(err))
		return
	}
	logger.Debug("dream attempt failed, will retry",
		zap.String("triplet_id", t.ID),
		zap.Int("retry", retry),
		zap.Time("next_attempt", nextAttempt),
		zap.Error(err),
	)
	d.metrics.RecordDream(context.Background(), "retry", time.Since(start))
	d.metrics.RecordRetry(context.Background(), retry)
}

// backoff returns the exponential delay for the given attempt number:
// base, 2*base, 4*base... capped at BackoffCap.
func (d *Dreamer) backoff(attempt int) time.Duration {
	delay := d.config.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.config.BackoffCap {
			return d.config.BackoffCap
		}
	}
	if delay > d.config.BackoffCap {
		return d.config.BackoffCap
	}
	return delay
}
