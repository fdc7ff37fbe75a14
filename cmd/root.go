package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/copilot-archive/internal"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	dbPath     string
	configPath string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "copilot-archive",
	Short: "Archive and search Copilot chat sessions",
	Long: `A CLI tool that archives chat transcripts from VS Code Copilot Chat
and GitHub Copilot CLI into one queryable SQLite database.

The archive keeps the exact raw bytes of every session alongside the
normalized, indexed form, so the derived tables can always be rebuilt
as parsing improves.

Features:
  • Incremental scans of editor and CLI session storage
  • Full-text search across every archived conversation
  • Workspace-aware session listing and filtering
  • Export to JSON, JSONL, Markdown, or YAML
  • Import of previously exported archives

Quick Start:
  copilot-archive scan                     # Archive all local sessions
  copilot-archive list                     # List archived sessions
  copilot-archive search "error handling"  # Full-text search
  copilot-archive show <session-id>        # View one conversation

For detailed usage, see: https://github.com/iksnae/copilot-archive`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		internal.SetVerbose(verbose)
		return loadConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Archive database path (default ~/.copilot-archive/archive.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ~/.config/copilot-archive/config.yaml)")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
