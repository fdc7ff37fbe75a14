package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/copilot-archive/internal"
	"github.com/iksnae/copilot-archive/internal/store"
	"github.com/spf13/cobra"
)

var (
	showLimit int
	showSince string
	showRaw   bool
)

var (
	// Styles for show command
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)

	messageExtraStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				Padding(0, 2)

	timestampStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one archived conversation",
	Long: `Display the full conversation of one archived session.

The id may be abbreviated to any unique prefix, so the short ids from
'copilot-archive list' work directly. Use --raw to dump the exact bytes
the session was archived from.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		ctx := cmd.Context()
		sessionID, err := resolveSessionID(cmd, st, args[0])
		if err != nil {
			return err
		}

		if showRaw {
			raw, _, err := st.RawSession(ctx, sessionID)
			if err != nil {
				return fmt.Errorf("failed to read raw session: %w", err)
			}
			fmt.Println(string(raw))
			return nil
		}

		session, err := st.GetSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}

		displaySessionHeader(session)

		messagesToShow := session.Messages

		// Filter by timestamp if --since is provided
		if showSince != "" {
			sinceTime, err := time.Parse(time.RFC3339, showSince)
			if err != nil {
				return fmt.Errorf("invalid --since timestamp format (expected RFC3339): %w", err)
			}
			filtered := make([]internal.Message, 0, len(messagesToShow))
			for _, msg := range messagesToShow {
				if t, ok := parseMessageTime(msg.Timestamp); ok && !t.Before(sinceTime) {
					filtered = append(filtered, msg)
				}
			}
			messagesToShow = filtered
		}

		totalFiltered := len(messagesToShow)
		if showLimit > 0 && showLimit < len(messagesToShow) {
			messagesToShow = messagesToShow[:showLimit]
		}

		for i, msg := range messagesToShow {
			displayMessage(i+1, msg, totalFiltered)
		}

		if showLimit > 0 && showLimit < totalFiltered {
			remaining := totalFiltered - showLimit
			fmt.Println()
			fmt.Println(lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				Italic(true).
				Render(fmt.Sprintf("... (%d more message(s))", remaining)))
		}

		return nil
	},
}

// resolveSessionID expands a unique id prefix into the full session id.
func resolveSessionID(cmd *cobra.Command, st *store.Store, arg string) (string, error) {
	ids, err := st.SessionIDs(cmd.Context())
	if err != nil {
		return "", fmt.Errorf("failed to list session ids: %w", err)
	}
	var matches []string
	for _, id := range ids {
		if id == arg {
			return id, nil
		}
		if strings.HasPrefix(id, arg) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("session not found: %s (use 'copilot-archive list' to see archived sessions)", arg)
	default:
		if len(matches) > 5 {
			matches = matches[:5]
		}
		return "", fmt.Errorf("ambiguous session id %s matches %s", arg, strings.Join(matches, ", "))
	}
}

func displaySessionHeader(session *internal.Session) {
	if session == nil {
		return
	}
	title := session.CustomTitle
	if title == "" {
		for _, msg := range session.Messages {
			if msg.Role == internal.RoleUser && strings.TrimSpace(msg.Content) != "" {
				title = truncate(strings.TrimSpace(msg.Content), 60)
				break
			}
		}
	}
	if title == "" {
		title = session.SessionID
	}
	fmt.Println(sessionHeaderStyle.Render(fmt.Sprintf("💬 %s", title)))

	var metaParts []string
	if session.CreatedAt != "" {
		metaParts = append(metaParts, fmt.Sprintf("Created: %s", formatRelativeDate(session.CreatedAt)))
	}
	metaParts = append(metaParts, fmt.Sprintf("Messages: %d", len(session.Messages)))
	if session.WorkspaceName != "" {
		metaParts = append(metaParts, fmt.Sprintf("Workspace: %s", session.WorkspaceName))
	}
	metaParts = append(metaParts, fmt.Sprintf("Source: %s", sourceLabel(session.SourceKind)))

	fmt.Println(sessionMetaStyle.Render(strings.Join(metaParts, " • ")))
	fmt.Println()
}

func displayMessage(index int, msg internal.Message, total int) {
	var actorStyle lipgloss.Style
	var actorLabel string

	switch msg.Role {
	case internal.RoleUser:
		actorStyle = userMessageStyle
		actorLabel = "👤 User"
	case internal.RoleAssistant:
		actorStyle = assistantMessageStyle
		actorLabel = "🤖 Assistant"
	default:
		actorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
		actorLabel = fmt.Sprintf("🔧 %s", msg.Role)
	}

	header := actorStyle.Render(actorLabel) + " " + timestampStyle.Render(fmt.Sprintf("[%d/%d]", index, total))
	if t, ok := parseMessageTime(msg.Timestamp); ok {
		header += " " + timestampStyle.Render(t.Format("15:04:05"))
	} else if msg.Timestamp != "" {
		header += " " + timestampStyle.Render(msg.Timestamp)
	}
	fmt.Println(header)

	content := strings.TrimSpace(msg.Content)
	if content != "" {
		content = wrapText(content, 80)
		fmt.Println(messageContentStyle.Render(content))
	} else {
		fmt.Println(messageContentStyle.Foreground(lipgloss.Color("240")).Render("(empty message)"))
	}

	for _, tool := range msg.ToolInvocations {
		line := fmt.Sprintf("⚙ %s", tool.Name)
		if tool.Status != "" {
			line += fmt.Sprintf(" (%s)", tool.Status)
		}
		fmt.Println(messageExtraStyle.Render(line))
	}
	for _, run := range msg.CommandRuns {
		fmt.Println(messageExtraStyle.Render(fmt.Sprintf("$ %s", truncate(run.Command, 70))))
	}
	for _, change := range msg.FileChanges {
		fmt.Println(messageExtraStyle.Render(fmt.Sprintf("✎ %s", change.Path)))
	}

	fmt.Println()
}

// parseMessageTime decodes the timestamp spellings the parsers leave
// behind: RFC3339 strings or epoch seconds/milliseconds.
func parseMessageTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		if n > 1e12 {
			n /= 1000
		}
		return time.Unix(int64(n), 0), true
	}
	return time.Time{}, false
}

func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		words := strings.Fields(line)
		currentLine := ""
		for _, word := range words {
			if len(currentLine)+len(word)+1 > width {
				if currentLine != "" {
					wrapped = append(wrapped, currentLine)
					currentLine = word
				} else {
					wrapped = append(wrapped, word)
					currentLine = ""
				}
			} else {
				if currentLine == "" {
					currentLine = word
				} else {
					currentLine += " " + word
				}
			}
		}
		if currentLine != "" {
			wrapped = append(wrapped, currentLine)
		}
	}

	return strings.Join(wrapped, "\n")
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&showLimit, "limit", "n", 0, "Limit number of messages to show")
	showCmd.Flags().StringVar(&showSince, "since", "", "Show messages since timestamp (ISO8601)")
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "Print the stored raw JSON instead of the rendered conversation")
}
