// Dreamerd is a knowledge-triplet daemon with namespace isolation and
// background embedding consolidation.
//
// Agents talk to it over MCP on stdio; operators get an HTTP endpoint
// with health, metrics and requeue actions.
//
// Usage:
//
//	# Start the daemon with defaults
//	dreamerd serve
//
//	# Load the demo knowledge graph
//	dreamerd seed
//
//	# Configure via environment
//	DREAMERD_SERVER_PORT=9700 dreamerd serve
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configPath is the --config flag value; empty means the default
// location under ~/.config/dreamerd/.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "dreamerd",
	Short: "Knowledge-triplet daemon with namespace isolation",
	Long: `dreamerd stores knowledge triplets (head, relation, tail) in isolated
namespaces, consolidates them into embeddings in the background, and
serves retrieval tools over MCP on stdio.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/dreamerd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.SetVersionTemplate("dreamerd by Fyrsmith Labs\nVersion:    {{.Version}}\nCommit:     " + gitCommit + "\nBuild Date: " + buildDate + "\n")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
