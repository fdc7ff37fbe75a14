package cmd

import (
	"time"

	"github.com/iksnae/copilot-archive/internal"
)

// formatRelativeDate renders a stored timestamp the way the listing
// shows it: progressively less precise the older it gets.
func formatRelativeDate(value string) string {
	if value == "" {
		return "—"
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		if len(value) >= 10 {
			return value[:10]
		}
		return value
	}
	diff := time.Since(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

// truncate shortens a string to max runes, marking the cut.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

// shortID returns the first 8 characters of a session id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sourceLabel(kind internal.SourceKind) string {
	switch kind {
	case internal.SourceEditorStable:
		return "stable"
	case internal.SourceEditorInsider:
		return "insider"
	case internal.SourceCLICurrent:
		return "cli"
	case internal.SourceCLILegacy:
		return "cli-legacy"
	default:
		return string(kind)
	}
}
