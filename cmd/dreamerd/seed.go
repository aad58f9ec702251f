package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dreamerd/internal/config"
	"github.com/fyrsmithlabs/dreamerd/internal/gateway"
	"github.com/fyrsmithlabs/dreamerd/internal/logging"
	"github.com/fyrsmithlabs/dreamerd/internal/queue"
	"github.com/fyrsmithlabs/dreamerd/internal/registry"
	"github.com/fyrsmithlabs/dreamerd/internal/seed"
	"github.com/fyrsmithlabs/dreamerd/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo knowledge graph into the journal",
	Long: `Load the demo knowledge graph: two isolated projects, a shared
infrastructure namespace and a global namespace. Triplets land raw;
start the daemon afterwards to consolidate them.

Examples:
  # Seed the default journal
  dreamerd seed

  # Seed a specific config's journal
  dreamerd seed --config /etc/dreamerd/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd.Context())
	},
}

func runSeed(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

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

	namespaces, err := cfg.KnowledgeNamespaces()
	if err != nil {
		return err
	}
	reg, err := registry.New(namespaces)
	if err != nil {
		return fmt.Errorf("invalid namespace declarations: %w", err)
	}

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

	signaler := queue.NewInProcess()
	defer signaler.Close()

	gw := gateway.New(st, reg, signaler, logger)

	total, err := seed.Load(ctx, gw, logger)
	if err != nil {
		return err
	}

	logger.Info("seed complete", zap.Int("triplets", total))
	fmt.Printf("Seeded %d triplets across %d namespaces. Run 'dreamerd serve' to consolidate.\n", total, len(cfg.Namespaces))
	return nil
}
