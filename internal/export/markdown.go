package export

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/iksnae/copilot-archive/internal"
)

// MarkdownExporter exports sessions as readable Markdown: a metadata
// header, then messages separated by horizontal rules. Thinking content
// and diffs are collapsed to notices unless switched on.
type MarkdownExporter struct {
	IncludeDiffs      bool
	IncludeToolInputs bool
	IncludeThinking   bool
}

// Export exports a session to Markdown format
func (e *MarkdownExporter) Export(session *internal.Session, w io.Writer) error {
	var b strings.Builder

	b.WriteString("# Chat Session\n\n")
	switch {
	case session.CustomTitle != "":
		fmt.Fprintf(&b, "**Title:** %s\n", session.CustomTitle)
	case session.WorkspaceName != "":
		fmt.Fprintf(&b, "**Workspace:** %s\n", session.WorkspaceName)
	default:
		fmt.Fprintf(&b, "**Session:** %s...\n", idPrefix(session.SessionID, 8))
	}
	b.WriteString("\n## Metadata\n\n")
	fmt.Fprintf(&b, "- **Session ID:** `%s`\n", session.SessionID)
	if session.WorkspaceName != "" {
		fmt.Fprintf(&b, "- **Workspace:** %s\n", session.WorkspaceName)
	}
	if session.WorkspacePath != "" {
		fmt.Fprintf(&b, "- **Path:** `%s`\n", urldecode(session.WorkspacePath))
	}
	if session.CreatedAt != "" {
		fmt.Fprintf(&b, "- **Created:** %s\n", formatTimestamp(session.CreatedAt))
	}
	if session.UpdatedAt != "" {
		fmt.Fprintf(&b, "- **Updated:** %s\n", formatTimestamp(session.UpdatedAt))
	}
	fmt.Fprintf(&b, "- **Source:** `%s`\n", session.SourceKind)
	fmt.Fprintf(&b, "- **Messages:** %d\n", len(session.Messages))
	if session.RequesterUsername != "" {
		fmt.Fprintf(&b, "- **User:** %s\n", session.RequesterUsername)
	}
	if session.ResponderUsername != "" {
		fmt.Fprintf(&b, "- **Assistant:** %s\n", session.ResponderUsername)
	}
	b.WriteString("\n---\n\n")

	for i := range session.Messages {
		b.WriteString(e.messageMarkdown(&session.Messages[i], i+1))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}

func (e *MarkdownExporter) messageMarkdown(msg *internal.Message, number int) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("## Message %d: **%s**", number, strings.ToUpper(msg.Role)), "")
	if msg.Timestamp != "" {
		lines = append(lines, fmt.Sprintf("*%s*", formatTimestamp(msg.Timestamp)), "")
	}
	lines = append(lines, e.messageContent(msg))

	// Inline tool blocks already narrate the tool calls; a trailing
	// summary would repeat them.
	if !hasBlockKind(msg, internal.BlockToolInvocation) {
		if summary := toolSummary(msg, e.IncludeToolInputs); summary != "" {
			lines = append(lines, summary)
		}
		if summary := commandSummary(msg); summary != "" {
			lines = append(lines, summary)
		}
	}
	if summary := fileChangeSummary(msg, e.IncludeDiffs); summary != "" {
		lines = append(lines, summary)
	}

	lines = append(lines, "", "---", "")
	return strings.Join(lines, "\n")
}

func (e *MarkdownExporter) messageContent(msg *internal.Message) string {
	var parts []string

	if len(msg.Blocks) > 0 {
		for _, block := range msg.Blocks {
			switch block.Kind {
			case internal.BlockThinking:
				if e.IncludeThinking {
					quoted := strings.ReplaceAll(block.Content, "\n", "\n> ")
					parts = append(parts, "> **Thinking:**\n> "+quoted)
				}
			case internal.BlockToolInvocation:
				if text := strings.TrimSpace(block.Content); text != "" {
					parts = append(parts, "*"+text+"*")
				}
			default:
				if strings.TrimSpace(block.Content) != "" {
					parts = append(parts, block.Content)
				}
			}
		}
	} else if strings.TrimSpace(msg.Content) != "" {
		parts = append(parts, msg.Content)
	}

	content := strings.Join(parts, "\n\n")
	content = creatingLinkPattern.ReplaceAllString(content, "*Creating $1*")
	content = readingLinkPattern.ReplaceAllString(content, "*Reading $1*")
	content = editedBacktickPattern.ReplaceAllString(content, "*Edited $1*")

	if hasBlockKind(msg, internal.BlockThinking) && !e.IncludeThinking {
		content = "*[Was thinking...]*\n\n" + content
	}
	return content
}

// File reference links inside progress text render poorly outside the
// editor; collapse them to the leaf name.
var (
	creatingLinkPattern   = regexp.MustCompile(`\*Creating \[\]\(file://[^)]+/([^/)]+)\)\*`)
	readingLinkPattern    = regexp.MustCompile(`\*Reading \[\]\(file://[^)]+/([^/)]+)\)\*`)
	editedBacktickPattern = regexp.MustCompile("\\*Edited `([^`]+)`\\*")
)

func hasBlockKind(msg *internal.Message, kind string) bool {
	for _, block := range msg.Blocks {
		if block.Kind == kind {
			return true
		}
	}
	return false
}

func toolSummary(msg *internal.Message, includeInputs bool) string {
	if len(msg.ToolInvocations) == 0 {
		return ""
	}
	names := make([]string, len(msg.ToolInvocations))
	for i, tool := range msg.ToolInvocations {
		names[i] = tool.Name
	}

	var summary string
	switch {
	case len(names) == 1:
		summary = fmt.Sprintf("\n\n*Used tool: %s*", names[0])
	case len(names) <= 3:
		summary = fmt.Sprintf("\n\n*Used tools: %s*", strings.Join(names, ", "))
	default:
		summary = fmt.Sprintf("\n\n*Used %d tools: %s, ...*", len(names), strings.Join(names[:3], ", "))
	}

	if includeInputs {
		for _, tool := range msg.ToolInvocations {
			if tool.Input != "" {
				summary += fmt.Sprintf("\n\n**%s input:**\n```\n%s\n```", tool.Name, tool.Input)
			}
		}
	}
	return summary
}

func commandSummary(msg *internal.Message) string {
	if len(msg.CommandRuns) == 0 {
		return ""
	}
	if len(msg.CommandRuns) == 1 {
		display := msg.CommandRuns[0].Command
		if len(display) > 50 {
			display = display[:50] + "..."
		}
		return fmt.Sprintf("\n\n*Ran command: `%s`*", display)
	}
	return fmt.Sprintf("\n\n*Ran %d commands*", len(msg.CommandRuns))
}

func fileChangeSummary(msg *internal.Message, includeDiffs bool) string {
	if len(msg.FileChanges) == 0 {
		return ""
	}
	paths := make([]string, len(msg.FileChanges))
	for i, change := range msg.FileChanges {
		paths[i] = change.Path
	}

	var summary string
	switch {
	case len(paths) == 1:
		summary = fmt.Sprintf("\n\n*Changed file: %s*", paths[0])
	case len(paths) <= 3:
		summary = fmt.Sprintf("\n\n*Changed files: %s*", strings.Join(paths, ", "))
	default:
		summary = fmt.Sprintf("\n\n*Changed %d files: %s, ...*", len(paths), strings.Join(paths[:3], ", "))
	}

	if includeDiffs {
		for _, change := range msg.FileChanges {
			if change.Diff != "" {
				summary += fmt.Sprintf("\n\n**%s:**\n```diff\n%s\n```", change.Path, change.Diff)
			}
		}
	}
	return summary
}

// Epoch values above this are milliseconds.
const millisecondsThreshold = 1e12

// formatTimestamp renders an epoch (seconds or milliseconds) or RFC3339
// timestamp as a local date string. Unparseable values pass through.
func formatTimestamp(value string) string {
	if value == "" {
		return "Unknown"
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		if n > millisecondsThreshold {
			n /= 1000
		}
		return time.Unix(int64(n), 0).Format("2006-01-02 15:04:05")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.Format("2006-01-02 15:04:05")
	}
	return value
}

func urldecode(text string) string {
	decoded, err := url.PathUnescape(text)
	if err != nil {
		return text
	}
	return decoded
}

func idPrefix(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// SessionFilename builds a filesystem-safe name for a session's export:
// date, then title or workspace or id, then an id prefix for
// uniqueness. The extension is left to the caller.
func SessionFilename(session *internal.Session) string {
	name := session.CustomTitle
	if name == "" {
		name = session.WorkspaceName
	}
	if name == "" {
		name = idPrefix(session.SessionID, 16)
	}

	var dateStr string
	if session.CreatedAt != "" {
		if n, err := strconv.ParseFloat(session.CreatedAt, 64); err == nil {
			if n > millisecondsThreshold {
				n /= 1000
			}
			dateStr = time.Unix(int64(n), 0).Format("20060102")
		} else if t, err := time.Parse(time.RFC3339, session.CreatedAt); err == nil {
			dateStr = t.Format("20060102")
		}
	}

	safe := sanitizeFilename(name, 50)
	if dateStr != "" {
		return fmt.Sprintf("%s_%s_%s", dateStr, safe, idPrefix(session.SessionID, 8))
	}
	return fmt.Sprintf("%s_%s", safe, idPrefix(session.SessionID, 8))
}

func sanitizeFilename(name string, maxLen int) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	safe := b.String()
	if len(safe) > maxLen {
		safe = safe[:maxLen]
	}
	return safe
}
