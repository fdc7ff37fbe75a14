package cmd

import (
	"fmt"
	"strings"

	"github.com/iksnae/copilot-archive/internal"
	"github.com/iksnae/copilot-archive/internal/store"
	"github.com/spf13/cobra"
)

// rebuildCmd represents the rebuild command
var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Regenerate the derived tables from raw sessions",
	Long: `Drop and regenerate every derived table (sessions, messages, the
search index) by re-parsing the stored raw bytes.

Nothing is re-read from disk; the raw layer is the source of truth.
Run this after upgrading to pick up parser improvements. Custom titles
derived on earlier runs are kept when a re-parse no longer yields one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		ctx := cmd.Context()
		var result store.RebuildResult
		err = internal.ShowProgress(ctx, "Rebuilding derived tables", func() error {
			var rebuildErr error
			result, rebuildErr = st.RebuildAll(ctx)
			return rebuildErr
		})
		if err != nil {
			return fmt.Errorf("rebuild failed: %w", err)
		}

		internal.PrintSuccess(fmt.Sprintf("Rebuilt %d session(s)", result.Sessions))
		if result.Errors > 0 {
			failed := result.Failed
			if len(failed) > 5 {
				failed = failed[:5]
			}
			internal.PrintWarning(fmt.Sprintf("%d session(s) failed to re-parse: %s",
				result.Errors, strings.Join(failed, ", ")))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
