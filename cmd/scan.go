package cmd

import (
	"fmt"
	"strings"

	"github.com/iksnae/copilot-archive/internal"
	"github.com/iksnae/copilot-archive/internal/scan"
	"github.com/spf13/cobra"
)

var (
	scanStoragePaths []string
	scanEdition      string
	scanSkipCLI      bool
	scanFull         bool
	scanWorkers      int
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Archive sessions from local storage",
	Long: `Scan the local session storage of VS Code Copilot Chat and GitHub
Copilot CLI and archive every session into the database.

Scans are incremental: files whose size and modification time match the
previous run are skipped. Use --full to re-read and rewrite everything.

Extra storage directories can be added with --storage-path, either bare
or tagged with a source ("path:insider", "path:cli").`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		detected, err := internal.DetectStorageRoots()
		if err != nil {
			return err
		}
		roots := internal.FilterRoots(detected, scanEdition, !scanSkipCLI)
		roots = append(roots, parseStorageRoots(config.StoragePaths)...)
		roots = append(roots, parseStorageRoots(scanStoragePaths)...)

		workers := scanWorkers
		if workers <= 0 {
			workers = config.Workers
		}

		opts := scan.Options{
			Roots:       roots,
			Full:        scanFull,
			Concurrency: workers,
			Timeout:     configTimeout(),
		}

		var report *scan.Report
		ctx := cmd.Context()
		err = internal.ShowProgress(ctx, "Scanning session storage", func() error {
			var runErr error
			report, runErr = scan.Run(ctx, st, opts)
			return runErr
		})
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		internal.PrintSuccess(fmt.Sprintf("Scanned %d file(s): %d added, %d updated, %d unchanged",
			report.Artifacts, report.Added, report.Updated, report.Unchanged))
		if report.Skipped > 0 {
			internal.PrintInfo(fmt.Sprintf("%d item(s) skipped (duplicates or unsupported files)", report.Skipped))
		}
		if len(report.UnknownKinds) > 0 {
			internal.PrintWarning(fmt.Sprintf("Unknown message kinds encountered: %s", strings.Join(report.UnknownKinds, ", ")))
		}
		if report.Errors > 0 {
			internal.PrintWarning(fmt.Sprintf("%d file(s) failed to parse; run with --verbose for details", report.Errors))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringArrayVar(&scanStoragePaths, "storage-path", nil, "Extra storage directory to scan, optionally tagged path:source (repeatable)")
	scanCmd.Flags().StringVar(&scanEdition, "edition", "both", "VS Code edition to scan (stable, insider, both)")
	scanCmd.Flags().BoolVar(&scanSkipCLI, "skip-cli", false, "Skip Copilot CLI session storage")
	scanCmd.Flags().BoolVar(&scanFull, "full", false, "Re-read and rewrite every session, ignoring stored fingerprints")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "Parallel parse workers (default 4)")
}
