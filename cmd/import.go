package cmd

import (
	"fmt"
	"strings"

	"github.com/iksnae/copilot-archive/internal"
	"github.com/iksnae/copilot-archive/internal/scan"
	"github.com/spf13/cobra"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import previously exported sessions",
	Long: `Import sessions from export documents produced by 'copilot-archive
export' (single sessions, JSON lists, or --bundle archives).

Records that carry their original raw bytes are restored verbatim;
plain session documents are archived as-is and survive rebuilds.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		ctx := cmd.Context()
		total := scan.ImportReport{}
		for _, path := range args {
			report, err := scan.Import(ctx, st, path)
			if err != nil {
				return fmt.Errorf("failed to import %s: %w", path, err)
			}
			total.Read += report.Read
			total.Added += report.Added
			total.Updated += report.Updated
			total.Errors += report.Errors
			total.Failed = append(total.Failed, report.Failed...)
		}

		internal.PrintSuccess(fmt.Sprintf("Imported %d session(s): %d added, %d updated",
			total.Added+total.Updated, total.Added, total.Updated))
		if total.Errors > 0 {
			failed := total.Failed
			if len(failed) > 5 {
				failed = failed[:5]
			}
			internal.PrintWarning(fmt.Sprintf("%d record(s) failed: %s",
				total.Errors, strings.Join(failed, ", ")))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
