package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConfig configures the NATS-backed signaler.
type NATSConfig struct {
	// URL is the NATS server URL. Empty disables NATS and the daemon
	// falls back to in-process signaling.
	URL string `koanf:"url"`
	// Subject carries the wake signals.
	Subject string `koanf:"subject"`
}

// ApplyDefaults fills in zero values.
func (c *NATSConfig) ApplyDefaults() {
	if c.Subject == "" {
		c.Subject = "dreamer.wake"
	}
}

// NATS signals across processes: one daemon ingests, another dreams.
// Wake messages carry no payload; the claim protocol in the journal
// decides who processes what.
type NATS struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	ch      chan struct{}
	logger  *zap.Logger
}

// NewNATS connects to NATS and subscribes to the wake subject.
func NewNATS(cfg NATSConfig, logger *zap.Logger) (*NATS, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	s := &NATS{
		nc:      nc,
		subject: cfg.Subject,
		ch:      make(chan struct{}, 1),
		logger:  logger,
	}

	sub, err := nc.Subscribe(cfg.Subject, func(msg *nats.Msg) {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.Subject, err)
	}
	s.sub = sub

	logger.Info("connected to NATS",
		zap.String("url", cfg.URL),
		zap.String("subject", cfg.Subject),
	)
	return s, nil
}

// Signal publishes a wake message.
func (s *NATS) Signal(ctx context.Context) error {
	if err := s.nc.Publish(s.subject, nil); err != nil {
		return fmt.Errorf("publishing wake signal: %w", err)
	}
	return nil
}

// Wake returns the wake channel.
func (s *NATS) Wake() <-chan struct{} {
	return s.ch
}

// Close unsubscribes and drains the connection.
func (s *NATS) Close() error {
	if err := s.sub.Unsubscribe(); err != nil {
		s.logger.Warn("failed to unsubscribe", zap.Error(err))
	}
	return s.nc.Drain()
}
