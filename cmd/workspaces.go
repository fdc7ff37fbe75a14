package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// workspacesCmd represents the workspaces command
var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "List archived workspaces",
	Long:  `List every workspace in the archive with its session count, busiest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		counts, err := st.Workspaces(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list workspaces: %w", err)
		}

		if len(counts) == 0 {
			fmt.Println(headerStyle.Render("📋 No workspaces found"))
			return nil
		}

		fmt.Println(headerStyle.Render(fmt.Sprintf("📋 %d workspace(s)", len(counts))))
		fmt.Println()

		w := tabwriter.NewWriter(lipgloss.DefaultRenderer().Output(), 0, 0, 3, ' ', tabwriter.AlignRight)
		_, _ = fmt.Fprintln(w, titleStyle.Render("Workspace")+"\t"+titleStyle.Render("Sessions")+"\t"+titleStyle.Render("Last used")+"\t"+titleStyle.Render("Path")+"\t")
		_, _ = fmt.Fprintln(w, strings.Repeat("─", 100))

		for _, wc := range counts {
			name := wc.Name
			if name == "" {
				name = dateStyle.Render("(none)")
			} else {
				name = workspaceStyle.Render(truncate(name, 30))
			}
			path := "—"
			if wc.Path != "" {
				path = truncate(wc.Path, 50)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
				name,
				countStyle.Render(strconv.Itoa(wc.Sessions)),
				dateStyle.Render(formatRelativeDate(wc.LastUsed)),
				dateStyle.Render(path))
		}
		_ = w.Flush()
		fmt.Println()
		fmt.Println(idStyle.Render("💡 Tip: Filter sessions with `copilot-archive list --workspace <name>`"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workspacesCmd)
}
