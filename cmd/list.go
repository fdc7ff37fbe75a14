package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/gobwas/glob"
	"github.com/iksnae/copilot-archive/internal"
	"github.com/iksnae/copilot-archive/internal/store"
	"github.com/spf13/cobra"
)

var (
	listWorkspace string
	listSource    string
	listLimit     int
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	workspaceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)

	sourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("109"))
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived sessions",
	Long: `List archived chat sessions, most recently active first.

The --workspace filter accepts glob patterns, so "api-*" matches every
workspace starting with "api-".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		ctx := cmd.Context()
		opts := store.ListOptions{Kind: listSource, Limit: listLimit}
		if listWorkspace != "" {
			if !strings.ContainsAny(listWorkspace, `*?[{\`) {
				opts.Workspace = listWorkspace
			} else {
				matched, err := matchWorkspaces(cmd, st, listWorkspace)
				if err != nil {
					return err
				}
				if len(matched) == 0 {
					fmt.Println(headerStyle.Render(fmt.Sprintf("📋 No workspaces match %q", listWorkspace)))
					return nil
				}
				opts.Workspaces = matched
			}
		}

		summaries, err := st.ListSessions(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		displaySessions(summaries)
		return nil
	},
}

// matchWorkspaces resolves a glob pattern against the archived
// workspace names.
func matchWorkspaces(cmd *cobra.Command, st *store.Store, pattern string) ([]string, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace pattern %q: %w", pattern, err)
	}
	counts, err := st.Workspaces(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to load workspaces: %w", err)
	}
	var matched []string
	for _, wc := range counts {
		if wc.Name != "" && g.Match(wc.Name) {
			matched = append(matched, wc.Name)
		}
	}
	return matched, nil
}

func displaySessions(summaries []internal.SessionSummary) {
	if len(summaries) == 0 {
		fmt.Println(headerStyle.Render("📋 No sessions found"))
		fmt.Println(idStyle.Render("Run `copilot-archive scan` to archive your local sessions."))
		return
	}

	header := headerStyle.Render(fmt.Sprintf("📋 %d session(s)", len(summaries)))
	fmt.Println(header)
	fmt.Println()

	// Use tabwriter for aligned columns with better spacing
	w := tabwriter.NewWriter(lipgloss.DefaultRenderer().Output(), 0, 0, 3, ' ', tabwriter.AlignRight)

	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Title")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Source")+"\t"+titleStyle.Render("Updated")+"\t"+titleStyle.Render("Workspace")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 120))

	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	for _, sum := range summaries {
		title := sum.Title()
		if title == "" {
			title = "Untitled"
		}
		title = nameStyle.Render(truncate(title, 50))

		msgCount := countStyle.Render(strconv.Itoa(sum.MessageCount))
		source := sourceStyle.Render(sourceLabel(sum.SourceKind))
		updated := dateStyle.Render(formatRelativeDate(sum.UpdatedAt))

		workspace := dateStyle.Render("—")
		if sum.WorkspaceName != "" {
			workspace = workspaceStyle.Render(truncate(sum.WorkspaceName, 25))
		}

		id := idStyle.Render(shortID(sum.SessionID))
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n", id, title, msgCount, source, updated, workspace)
	}

	_ = w.Flush()
	fmt.Println()
	fmt.Println(idStyle.Render("💡 Tip: Use the full ID (e.g., ") +
		lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Render(summaries[0].SessionID) +
		idStyle.Render(") with `copilot-archive show <id>`"))
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listWorkspace, "workspace", "", "Filter by workspace name (glob patterns allowed)")
	listCmd.Flags().StringVar(&listSource, "source", "", "Filter by source (editor, cli, or an exact kind like editor-insider)")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum sessions to list")
}
