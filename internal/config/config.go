// Package config provides configuration loading for dreamerd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/dreamerd/internal/dreamer"
	"github.com/fyrsmithlabs/dreamerd/internal/embeddings"
	"github.com/fyrsmithlabs/dreamerd/internal/knowledge"
	"github.com/fyrsmithlabs/dreamerd/internal/logging"
	"github.com/fyrsmithlabs/dreamerd/internal/queue"
	"github.com/fyrsmithlabs/dreamerd/internal/store"
)

// Config is the full daemon configuration.
type Config struct {
	Logging    logging.Config    `koanf:"logging"`
	Server     ServerConfig      `koanf:"server"`
	Store      StoreConfig       `koanf:"store"`
	Index      store.IndexConfig `koanf:"index"`
	Embeddings embeddings.Config `koanf:"embeddings"`
	Dreamer    dreamer.Config    `koanf:"dreamer"`
	Queue      QueueConfig       `koanf:"queue"`
	Namespaces []NamespaceConfig `koanf:"namespaces"`
}

// ServerConfig configures the operational HTTP endpoint (health and
// metrics; the agent surface is MCP on stdio).
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StoreConfig configures the journal.
type StoreConfig struct {
	// Path is the SQLite journal file.
	Path string `koanf:"path"`
}

// QueueConfig selects the wake-signal transport for the consolidation
// worker.
type QueueConfig struct {
	// Mode is "inprocess" (default) or "nats".
	Mode string           `koanf:"mode"`
	NATS queue.NATSConfig `koanf:"nats"`
}

// NamespaceConfig declares one namespace. The declaration set is the
// sole source of namespace existence: writes and reads against
// undeclared namespaces are rejected.
type NamespaceConfig struct {
	Name        string `koanf:"name"`
	Visibility  string `koanf:"visibility"`
	Description string `koanf:"description"`
}

const (
	QueueModeInProcess = "inprocess"
	QueueModeNATS      = "nats"
)

// KnowledgeNamespaces converts the declarations into domain namespaces.
func (c *Config) KnowledgeNamespaces() ([]knowledge.Namespace, error) {
	out := make([]knowledge.Namespace, len(c.Namespaces))
	for i, ns := range c.Namespaces {
		vis, err := knowledge.ParseVisibility(ns.Visibility)
		if err != nil {
			return nil, fmt.Errorf("namespace %q: %w", ns.Name, err)
		}
		out[i] = knowledge.Namespace{
			Name:        ns.Name,
			Visibility:  vis,
			Description: ns.Description,
		}
	}
	return out, nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9620
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.config/dreamerd/journal.db"
	}
	// The index persists next to the journal so dreamed triplets stay
	// searchable across restarts.
	if cfg.Index.Path == "" {
		cfg.Index.Path = "~/.config/dreamerd/index"
	}
	if cfg.Queue.Mode == "" {
		cfg.Queue.Mode = QueueModeInProcess
	}
	if cfg.Logging.Level == "" && cfg.Logging.Format == "" && len(cfg.Logging.Redaction.Fields) == 0 {
		cfg.Logging = *logging.NewDefaultConfig()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	cfg.Index.ApplyDefaults()
	cfg.Embeddings.ApplyDefaults()
	cfg.Dreamer.ApplyDefaults()
	cfg.Queue.NATS.ApplyDefaults()

	if len(cfg.Namespaces) == 0 {
		cfg.Namespaces = DefaultNamespaces()
	}
}

// DefaultNamespaces is the out-of-the-box namespace layout: two
// isolated projects, one shared infrastructure namespace and one
// global namespace.
func DefaultNamespaces() []NamespaceConfig {
	return []NamespaceConfig{
		{Name: "Project_Alpha", Visibility: "isolated", Description: "Project Alpha engineering knowledge"},
		{Name: "Project_Beta", Visibility: "isolated", Description: "Project Beta engineering knowledge"},
		{Name: "Shared_Infra", Visibility: "shared", Description: "Infrastructure shared across projects"},
		{Name: "Global", Visibility: "global", Description: "Company-wide knowledge"},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", c.Server.Port)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store: path is required")
	}
	if c.Queue.Mode != QueueModeInProcess && c.Queue.Mode != QueueModeNATS {
		return fmt.Errorf("queue: unknown mode %q", c.Queue.Mode)
	}
	if c.Queue.Mode == QueueModeNATS && c.Queue.NATS.URL == "" {
		return fmt.Errorf("queue: nats mode requires a url")
	}
	if len(c.Namespaces) == 0 {
		return fmt.Errorf("namespaces: at least one namespace must be declared")
	}
	if _, err := c.KnowledgeNamespaces(); err != nil {
		return fmt.Errorf("namespaces: %w", err)
	}
	return nil
}
