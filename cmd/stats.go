package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show archive statistics",
	Long: `Summarize the archive: session and message counts, breakdowns by
role and source, the covered date range, and the database size.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		stats, err := st.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to collect stats: %w", err)
		}

		fmt.Println(headerStyle.Render("📊 Archive statistics"))
		fmt.Println()

		w := tabwriter.NewWriter(lipgloss.DefaultRenderer().Output(), 0, 0, 3, ' ', 0)
		row := func(label string, value string) {
			_, _ = fmt.Fprintf(w, "%s\t%s\t\n", dateStyle.Render(label), countStyle.Render(value))
		}

		row("Sessions", strconv.Itoa(stats.Sessions))
		row("Raw sessions", strconv.Itoa(stats.RawSessions))
		row("Messages", strconv.Itoa(stats.Messages))
		for _, role := range sortedKeys(stats.MessagesByRole) {
			row("  "+role, strconv.Itoa(stats.MessagesByRole[role]))
		}
		row("Workspaces", strconv.Itoa(stats.Workspaces))
		row("Tool invocations", strconv.Itoa(stats.ToolInvocations))
		row("File changes", strconv.Itoa(stats.FileChanges))
		row("Command runs", strconv.Itoa(stats.CommandRuns))
		_ = w.Flush()

		if len(stats.SessionsByKind) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("By source"))
			w = tabwriter.NewWriter(lipgloss.DefaultRenderer().Output(), 0, 0, 3, ' ', 0)
			for _, kind := range sortedKeys(stats.SessionsByKind) {
				_, _ = fmt.Fprintf(w, "%s\t%s\t\n", dateStyle.Render(kind), countStyle.Render(strconv.Itoa(stats.SessionsByKind[kind])))
			}
			_ = w.Flush()
		}

		fmt.Println()
		var footer []string
		if stats.EarliestCreated != "" {
			footer = append(footer, fmt.Sprintf("From %s to %s",
				formatRelativeDate(stats.EarliestCreated), formatRelativeDate(stats.LatestUpdated)))
		}
		footer = append(footer, fmt.Sprintf("Database size: %s", formatBytes(stats.DatabaseBytes)))
		fmt.Println(idStyle.Render(strings.Join(footer, " • ")))
		return nil
	},
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
