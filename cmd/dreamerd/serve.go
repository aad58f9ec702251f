package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dreamerd/internal/config"
	"github.com/fyrsmithlabs/dreamerd/internal/dreamer"
	"github.com/fyrsmithlabs/dreamerd/internal/embeddings"
	"github.com/fyrsmithlabs/dreamerd/internal/gateway"
	"github.com/fyrsmithlabs/dreamerd/internal/guard"
	"github.com/fyrsmithlabs/dreamerd/internal/incident"
	"github.com/fyrsmithlabs/dreamerd/internal/logging"
	"github.com/fyrsmithlabs/dreamerd/internal/mcp"
	"github.com/fyrsmithlabs/dreamerd/internal/queue"
	"github.com/fyrsmithlabs/dreamerd/internal/registry"
	"github.com/fyrsmithlabs/dreamerd/internal/retrieval"
	"github.com/fyrsmithlabs/dreamerd/internal/server"
	"github.com/fyrsmithlabs/dreamerd/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dreamerd daemon",
	Long: `Start the daemon: journal and index, consolidation workers, the
operational HTTP endpoint, and the MCP server on stdio.

The process exits when the MCP client disconnects or on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting dreamerd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("queue_mode", cfg.Queue.Mode),
		zap.Int("namespaces", len(cfg.Namespaces)))

	// Namespace registry: the sole source of namespace existence.
	namespaces, err := cfg.KnowledgeNamespaces()
	if err != nil {
		return err
	}
	reg, err := registry.New(namespaces)
	if err != nil {
		return fmt.Errorf("invalid namespace declarations: %w", err)
	}

	// Two-tier store: SQLite journal plus chromem index.
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	journal, err := store.NewJournal(cfg.Store.Path, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	index, err := store.NewIndex(cfg.Index, logger)
	if err != nil {
		return err
	}

	st := store.New(journal, index, logger)

	// Republish dreamed triplets so semantic search sees everything the
	// journal remembers, whatever happened to the index since.
	if _, err := st.RehydrateIndex(ctx); err != nil {
		return fmt.Errorf("rebuilding vector index: %w", err)
	}

	provider, err := embeddings.NewProvider(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	defer provider.Close()

	logger.Info("embedding provider initialized",
		zap.String("provider", cfg.Embeddings.Provider),
		zap.String("model", cfg.Embeddings.Model),
		zap.Int("dimension", provider.Dimension()))

	var signaler queue.Signaler
	if cfg.Queue.Mode == config.QueueModeNATS {
		signaler, err = queue.NewNATS(cfg.Queue.NATS, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.Queue.NATS.URL, err)
		}
		logger.Info("connected to NATS",
			zap.String("url", cfg.Queue.NATS.URL),
			zap.String("subject", cfg.Queue.NATS.Subject))
	} else {
		signaler = queue.NewInProcess()
	}
	defer signaler.Close()

	d, err := dreamer.New(cfg.Dreamer, st, provider, signaler, logger)
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}
	defer d.Stop()

	gw := gateway.New(st, reg, signaler, logger)
	g := guard.New(reg)
	ret := retrieval.New(g, st, reg, provider, logger)
	inc := incident.New(st, reg, ret, logger)

	ops, err := server.NewServer(st, d, ret, logger, &server.Config{
		Host: "localhost",
		Port: cfg.Server.Port,
	})
	if err != nil {
		return err
	}
	go func() {
		if err := ops.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := ops.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", zap.Error(err))
		}
	}()

	mcpServer, err := mcp.NewServer(&mcp.Config{
		Name:    "dreamerd",
		Version: version,
		Logger:  logger,
	}, gw, ret, inc)
	if err != nil {
		return err
	}

	// Blocks until the MCP client disconnects or a signal cancels ctx.
	if err := mcpServer.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("shutting down")
	return nil
}
