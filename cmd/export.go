package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/iksnae/copilot-archive/internal"
	"github.com/iksnae/copilot-archive/internal/export"
	"github.com/iksnae/copilot-archive/internal/store"
	"github.com/spf13/cobra"
)

var (
	exportFormat     string
	exportOutputDir  string
	exportWorkspace  string
	exportSessionID  string
	exportBundle     string
	exportDiffs      bool
	exportToolInputs bool
	exportThinking   bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export sessions to files",
	Long: `Export archived sessions to various formats (md, jsonl, yaml, json).

You can export all sessions, filter by workspace, or export a specific
session by ID. A single session goes to stdout unless --output-dir is
set. --bundle writes everything into one importable archive document,
raw bytes included, for moving the archive between machines.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		ctx := cmd.Context()
		sessions, err := collectSessions(cmd, st)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			internal.PrintInfo("Nothing to export")
			return nil
		}

		if exportBundle != "" {
			return writeBundle(cmd, st, sessions)
		}

		exporter, err := export.NewExporter(exportFormat)
		if err != nil {
			return err
		}
		if md, ok := exporter.(*export.MarkdownExporter); ok {
			md.IncludeDiffs = exportDiffs
			md.IncludeToolInputs = exportToolInputs
			md.IncludeThinking = exportThinking
		}

		// A single requested session streams to stdout unless a
		// directory was asked for.
		if exportSessionID != "" && !cmd.Flags().Changed("output-dir") {
			return exporter.Export(sessions[0], os.Stdout)
		}

		if err := os.MkdirAll(exportOutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		exported := 0
		err = internal.ShowProgress(ctx, fmt.Sprintf("Exporting %d session(s) to %s", len(sessions), exportOutputDir), func() error {
			for _, session := range sessions {
				filename := export.SessionFilename(session) + "." + exporter.Extension()
				path := filepath.Join(exportOutputDir, filename)

				file, err := os.Create(path)
				if err != nil {
					internal.PrintError(fmt.Sprintf("Failed to create %s: %v", path, err))
					continue
				}
				if err := exporter.Export(session, file); err != nil {
					_ = file.Close()
					internal.PrintError(fmt.Sprintf("Failed to export session %s: %v", session.SessionID, err))
					continue
				}
				if err := file.Close(); err != nil {
					internal.PrintWarning(fmt.Sprintf("Failed to close %s: %v", path, err))
					continue
				}
				exported++
			}
			return nil
		})
		if err != nil {
			return err
		}

		internal.PrintSuccess(fmt.Sprintf("Export complete: %d session(s) exported to %s", exported, exportOutputDir))
		return nil
	},
}

// collectSessions loads the sessions selected by --session and
// --workspace, most recent first.
func collectSessions(cmd *cobra.Command, st *store.Store) ([]*internal.Session, error) {
	ctx := cmd.Context()

	if exportSessionID != "" {
		id, err := resolveSessionID(cmd, st, exportSessionID)
		if err != nil {
			return nil, err
		}
		session, err := st.GetSession(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		return []*internal.Session{session}, nil
	}

	var matcher glob.Glob
	if exportWorkspace != "" {
		g, err := glob.Compile(exportWorkspace)
		if err != nil {
			return nil, fmt.Errorf("invalid workspace pattern %q: %w", exportWorkspace, err)
		}
		matcher = g
	}

	ids, err := st.SessionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var sessions []*internal.Session
	for _, id := range ids {
		session, err := st.GetSession(ctx, id)
		if err != nil {
			internal.PrintWarning(fmt.Sprintf("Failed to load session %s: %v", id, err))
			continue
		}
		if matcher != nil && !matcher.Match(session.WorkspaceName) {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// writeBundle writes the selected sessions, raw bytes included, into a
// single importable archive document.
func writeBundle(cmd *cobra.Command, st *store.Store, sessions []*internal.Session) error {
	ctx := cmd.Context()
	records := make([]export.SessionRecord, 0, len(sessions))
	for _, session := range sessions {
		record := export.SessionRecord{Session: *session}
		raw, form, err := st.RawSession(ctx, session.SessionID)
		if err == nil {
			record.RawJSON = raw
			record.ArtifactForm = form
		} else if !errors.Is(err, store.ErrNotFound) {
			internal.PrintWarning(fmt.Sprintf("Could not read raw bytes for session %s: %v", session.SessionID, err))
		}
		records = append(records, record)
	}

	file, err := os.Create(exportBundle)
	if err != nil {
		return fmt.Errorf("failed to create bundle file: %w", err)
	}
	if err := export.WriteEnvelope(file, records); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close bundle file: %w", err)
	}
	internal.PrintSuccess(fmt.Sprintf("Wrote %d session(s) to %s", len(records), exportBundle))
	return nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "md", "Export format (md, jsonl, yaml, json)")
	exportCmd.Flags().StringVarP(&exportOutputDir, "output-dir", "o", "./exports", "Output directory")
	exportCmd.Flags().StringVar(&exportWorkspace, "workspace", "", "Filter by workspace name (glob patterns allowed)")
	exportCmd.Flags().StringVar(&exportSessionID, "session", "", "Export a specific session by ID")
	exportCmd.Flags().StringVar(&exportBundle, "bundle", "", "Write one importable archive document to this file")
	exportCmd.Flags().BoolVar(&exportDiffs, "include-diffs", false, "Include file diffs in Markdown output")
	exportCmd.Flags().BoolVar(&exportToolInputs, "include-tool-inputs", false, "Include tool input payloads in Markdown output")
	exportCmd.Flags().BoolVar(&exportThinking, "include-thinking", false, "Include thinking sections in Markdown output")
}
