package cmd

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/copilot-archive/internal/store"
	"github.com/spf13/cobra"
)

var (
	searchRole      string
	searchToolsOnly bool
	searchLimit     int
	searchSort      string
)

var (
	matchStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	snippetStyle = lipgloss.NewStyle().
			Padding(0, 2)

	sourceTagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("109")).
			Italic(true)
)

var markPattern = regexp.MustCompile(`<mark>(.*?)</mark>`)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Search archived conversations",
	Long: `Full-text search across every archived message.

Queries may mix free text with field filters:

  copilot-archive search "connection refused"
  copilot-archive search role:user docker
  copilot-archive search workspace:api-server title:refactor
  copilot-archive search source:cli deploy

Free text supports the FTS5 query syntax, so quoted phrases and OR work.
Tool names and changed file paths are matched too; --tools-only limits
the search to tool invocations.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		raw := strings.Join(args, " ")
		q := store.ParseQuery(raw)
		if searchRole != "" {
			q.Role = strings.ToLower(searchRole)
		}

		results, err := st.Search(cmd.Context(), q, store.SearchOptions{
			Sort:      searchSort,
			Limit:     searchLimit,
			ToolsOnly: searchToolsOnly,
		})
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if len(results) == 0 {
			fmt.Println(headerStyle.Render(fmt.Sprintf("🔎 No results for %q", raw)))
			return nil
		}

		fmt.Println(headerStyle.Render(fmt.Sprintf("🔎 %d result(s) for %q", len(results), raw)))
		fmt.Println()

		for _, r := range results {
			displayResult(r)
		}

		fmt.Println(idStyle.Render("💡 Tip: Use `copilot-archive show <id>` to open a result's session."))
		return nil
	},
}

func displayResult(r store.SearchResult) {
	title := r.Title
	if title == "" {
		title = shortID(r.SessionID)
	}
	header := idStyle.Render(shortID(r.SessionID)) + " " + titleStyle.Render(truncate(title, 50))
	if r.WorkspaceName != "" {
		header += " " + workspaceStyle.Render(r.WorkspaceName)
	}
	header += " " + dateStyle.Render(formatRelativeDate(r.CreatedAt))
	if r.Source != "message" {
		header += " " + sourceTagStyle.Render("["+r.Source+"]")
	}
	fmt.Println(header)

	snippet := strings.TrimSpace(r.Snippet)
	if snippet != "" {
		snippet = strings.ReplaceAll(truncate(snippet, 300), "\n", " ")
		snippet = markPattern.ReplaceAllStringFunc(snippet, func(m string) string {
			return matchStyle.Render(markPattern.FindStringSubmatch(m)[1])
		})
		fmt.Println(snippetStyle.Render(snippet))
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchRole, "role", "", "Only match messages with this role (user, assistant)")
	searchCmd.Flags().BoolVar(&searchToolsOnly, "tools-only", false, "Search tool invocations instead of message text")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum results")
	searchCmd.Flags().StringVar(&searchSort, "sort", "relevance", "Result order (relevance, date)")
}
