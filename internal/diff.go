package internal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// textEdit is one range-replacement from a textEditGroup item. Positions
// are 1-indexed, matching the editor's on-disk representation.
type textEdit struct {
	startLine int
	startCol  int
	endLine   int
	endCol    int
	text      string
}

// collectEdits flattens textEditGroup edit batches into a single list.
// The on-disk shape is edits: [[{range, text}, ...], ...].
func collectEdits(edits []any) []textEdit {
	var out []textEdit
	for _, batch := range edits {
		for _, e := range listValue(batch) {
			edit := mapValue(e)
			if edit == nil {
				continue
			}
			r := mapValue(edit["range"])
			if r == nil {
				continue
			}
			out = append(out, textEdit{
				startLine: rangePos(r, "startLineNumber"),
				startCol:  rangePos(r, "startColumn"),
				endLine:   rangePos(r, "endLineNumber"),
				endCol:    rangePos(r, "endColumn"),
				text:      str(edit, "text"),
			})
		}
	}
	return out
}

func rangePos(r map[string]any, key string) int {
	if n, ok := numValue(r, key); ok {
		return n
	}
	return 1
}

// applyEdits replays edits against the original file content, last edit
// first so earlier positions stay valid. Edits whose positions fall
// outside the current content are skipped rather than failing the batch.
func applyEdits(original string, edits []textEdit) (string, bool) {
	if len(edits) == 0 || original == "" {
		return "", false
	}
	lines := strings.Split(original, "\n")

	ordered := make([]textEdit, len(edits))
	copy(ordered, edits)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].startLine != ordered[j].startLine {
			return ordered[i].startLine > ordered[j].startLine
		}
		return ordered[i].startCol > ordered[j].startCol
	})

	for _, e := range ordered {
		startLine := e.startLine - 1
		startCol := e.startCol - 1
		endLine := e.endLine - 1
		endCol := e.endCol - 1

		if startLine < 0 || endLine >= len(lines) || startCol < 0 || endCol < 0 {
			continue
		}

		if startLine == endLine {
			line := lines[startLine]
			if startCol > len(line) || endCol > len(line) {
				continue
			}
			lines[startLine] = line[:startCol] + e.text + line[endCol:]
			continue
		}

		first := lines[startLine]
		last := lines[endLine]
		if startCol > len(first) || endCol > len(last) {
			continue
		}
		replacement := strings.Split(first[:startCol]+e.text+last[endCol:], "\n")
		merged := make([]string, 0, len(lines)-(endLine-startLine+1)+len(replacement))
		merged = append(merged, lines[:startLine]...)
		merged = append(merged, replacement...)
		merged = append(merged, lines[endLine+1:]...)
		lines = merged
	}

	return strings.Join(lines, "\n"), true
}

func unifiedDiff(original, modified, filename string) string {
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(modified),
		FromFile: "a/" + filename,
		ToFile:   "b/" + filename,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return out
}

// formatEditsAsDiff renders textEditGroup edits as a diff. With the
// original content on hand (from a readFile result earlier in the same
// response) it produces a real unified diff; otherwise it falls back to
// insertion-only hunks grouped by line proximity.
func formatEditsAsDiff(edits []any, original, filename string) string {
	all := collectEdits(edits)
	if len(all) == 0 {
		return ""
	}

	if original != "" {
		if modified, ok := applyEdits(original, all); ok {
			if diff := unifiedDiff(original, modified, filename); diff != "" {
				return diff
			}
		}
	}

	type insertion struct {
		line int
		text string
	}
	var inserts []insertion
	for _, e := range all {
		if e.text != "" {
			inserts = append(inserts, insertion{line: e.startLine, text: e.text})
		}
	}
	if len(inserts) == 0 {
		return ""
	}
	sort.SliceStable(inserts, func(i, j int) bool { return inserts[i].line < inserts[j].line })

	// Streamed new-file creation shows up as a long run of consecutive
	// single-line inserts.
	newFile := len(inserts) > 5
	limit := len(inserts)
	if limit > 10 {
		limit = 10
	}
	for i := 1; i < limit && newFile; i++ {
		if inserts[i].line != inserts[i-1].line+1 {
			newFile = false
		}
	}
	if newFile {
		var combined strings.Builder
		for _, ins := range inserts {
			combined.WriteString(ins.text)
		}
		lines := []string{"@@ New file @@"}
		for _, line := range strings.Split(combined.String(), "\n") {
			lines = append(lines, "+ "+line)
		}
		return strings.TrimRight(strings.Join(lines, "\n"), " \n")
	}

	// Group inserts within 3 lines of each other into one hunk.
	var groups [][]insertion
	current := []insertion{inserts[0]}
	for _, ins := range inserts[1:] {
		if ins.line-current[len(current)-1].line <= 3 {
			current = append(current, ins)
		} else {
			groups = append(groups, current)
			current = []insertion{ins}
		}
	}
	groups = append(groups, current)

	var lines []string
	for _, group := range groups {
		start := group[0].line
		end := group[len(group)-1].line
		if start == end {
			lines = append(lines, fmt.Sprintf("@@ Line %d @@", start))
		} else {
			lines = append(lines, fmt.Sprintf("@@ Lines %d-%d @@", start, end))
		}
		for _, ins := range group {
			for _, line := range strings.Split(ins.text, "\n") {
				lines = append(lines, "+ "+line)
			}
		}
		lines = append(lines, "")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), " \n")
}

// fileChangeFromEditGroup turns a textEditGroup response item into a
// FileChange with a rendered diff.
func fileChangeFromEditGroup(item map[string]any, contents map[string]string) (FileChange, bool) {
	path := uriPath(item["uri"])
	if path == "" {
		return FileChange{}, false
	}
	filename := uriFilename(item["uri"])
	if filename == "" {
		filename = "file"
	}
	original := cachedContent(contents, path, filename)
	diff := formatEditsAsDiff(listValue(item["edits"]), original, filename)
	return FileChange{Path: path, Diff: diff}, true
}

// cachedContent looks up a prior file read for path, trying the exact
// path, the bare filename, then a basename match.
func cachedContent(contents map[string]string, path, filename string) string {
	if len(contents) == 0 {
		return ""
	}
	if c, ok := contents[path]; ok && c != "" {
		return c
	}
	if c, ok := contents[filename]; ok && c != "" {
		return c
	}
	base := shortenPath(path)
	if base == "" {
		return ""
	}
	for cached, c := range contents {
		if shortenPath(cached) == base {
			return c
		}
	}
	return ""
}

// fileContentFromTool extracts the path and returned content from a
// readFile tool invocation, feeding the per-response content cache.
func fileContentFromTool(item map[string]any) (string, string, bool) {
	toolID := str(item, "toolId")
	if !strings.Contains(toolID, "readFile") && !strings.Contains(strings.ToLower(toolID), "read_file") {
		return "", "", false
	}

	toolData := mapValue(item["toolSpecificData"])
	path := uriPath(mapValue(toolData["file"])["uri"])
	if path == "" {
		return "", "", false
	}

	for _, out := range listValue(mapValue(item["resultDetails"])["output"]) {
		if content := unwrapValue(mapValue(out)["value"]); content != "" {
			return path, content, true
		}
	}
	return "", "", false
}
