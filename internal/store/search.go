package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/iksnae/copilot-archive/internal"
)

// Query is one parsed search request. Text is the full-text match
// expression; an empty Text with filters set runs a filter-only scan.
type Query struct {
	Text      string
	Role      string
	Workspace string
	Title     string
	Kind      string
}

// Empty reports whether the query carries neither text nor filters.
func (q Query) Empty() bool {
	return q.Text == "" && q.Role == "" && q.Workspace == "" && q.Title == "" && q.Kind == ""
}

var (
	fieldPattern = regexp.MustCompile(`(?i)\b(role|workspace|title|source):(?:"([^"]*)"|(\S+))`)
	tokenPattern = regexp.MustCompile(`"[^"]*"|[^\s"]+`)
)

// ParseQuery splits field filters out of a raw query string. Everything
// that is not a field:value pair becomes the full-text expression;
// quoted phrases pass through intact so the index sees them as phrases.
func ParseQuery(raw string) Query {
	var q Query
	rest := fieldPattern.ReplaceAllStringFunc(raw, func(m string) string {
		sub := fieldPattern.FindStringSubmatch(m)
		value := sub[2]
		if value == "" {
			value = sub[3]
		}
		switch strings.ToLower(sub[1]) {
		case "role":
			q.Role = strings.ToLower(value)
		case "workspace":
			q.Workspace = value
		case "title":
			q.Title = value
		case "source":
			q.Kind = strings.ToLower(value)
		}
		return ""
	})
	q.Text = strings.Join(tokenPattern.FindAllString(rest, -1), " ")
	return q
}

// sortClauses whitelists the ORDER BY forms search accepts. Sort keys
// never reach SQL any other way.
var sortClauses = map[string]string{
	"relevance": "ORDER BY rank",
	"date":      "ORDER BY s.created_at DESC",
}

// SearchOptions tune a search run.
type SearchOptions struct {
	Sort      string // relevance (default) or date
	Limit     int
	ToolsOnly bool // match tool invocations only, skip message text
}

// SearchResult is one hit. Snippet is an excerpt with matched terms
// wrapped in <mark> tags for full-text hits; Source tells which table
// matched: message, tool, or file.
type SearchResult struct {
	SessionID     string `json:"session_id"`
	WorkspaceName string `json:"workspace_name,omitempty"`
	Title         string `json:"title,omitempty"`
	Role          string `json:"role,omitempty"`
	MessageIndex  int    `json:"message_index"`
	Snippet       string `json:"snippet"`
	CreatedAt     string `json:"created_at,omitempty"`
	Source        string `json:"source"`
}

// Search runs a parsed query against the archive. Full-text hits come
// first; when they leave room under the limit, tool names and changed
// file paths matching the text fill the rest.
func (s *Store) Search(ctx context.Context, q Query, opts SearchOptions) ([]SearchResult, error) {
	if q.Empty() {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	sort := opts.Sort
	if sort == "" {
		sort = "relevance"
	}
	order, ok := sortClauses[sort]
	if !ok {
		return nil, &internal.StoreError{Op: "query", Err: fmt.Errorf("unknown sort order %q", sort)}
	}

	if opts.ToolsOnly {
		if q.Text == "" {
			return nil, &internal.StoreError{Op: "query", Err: fmt.Errorf("tools-only search needs query text")}
		}
		return s.searchTools(ctx, q, limit)
	}

	var results []SearchResult
	var err error
	if q.Text != "" {
		results, err = s.searchFullText(ctx, q, order, limit)
	} else {
		results, err = s.searchFilterOnly(ctx, q, limit)
	}
	if err != nil {
		return nil, err
	}

	if q.Text != "" && len(results) < limit {
		extra, err := s.searchStructured(ctx, q, limit-len(results))
		if err != nil {
			return nil, err
		}
		results = append(results, extra...)
	}
	return results, nil
}

func (s *Store) searchFullText(ctx context.Context, q Query, order string, limit int) ([]SearchResult, error) {
	query := `
		SELECT m.session_id, s.workspace_name, s.custom_title, m.role, m.message_index,
		       snippet(messages_fts, 0, '<mark>', '</mark>', '...', 16), s.created_at
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		JOIN sessions s ON s.session_id = m.session_id
		WHERE messages_fts MATCH ?`
	args := []any{q.Text}

	conds, condArgs := q.sessionConds()
	if q.Role != "" {
		conds = append(conds, "m.role = ?")
		condArgs = append(condArgs, q.Role)
	}
	if len(conds) > 0 {
		query += " AND " + strings.Join(conds, " AND ")
		args = append(args, condArgs...)
	}
	query += " " + order + " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &internal.StoreError{Op: "query", Err: err}
	}
	defer rows.Close()
	return scanHits(rows, "message", 0)
}

func (s *Store) searchFilterOnly(ctx context.Context, q Query, limit int) ([]SearchResult, error) {
	query := `
		SELECT m.session_id, s.workspace_name, s.custom_title, m.role, m.message_index,
		       m.content, s.created_at
		FROM messages m
		JOIN sessions s ON s.session_id = m.session_id`
	conds, args := q.sessionConds()
	if q.Role != "" {
		conds = append(conds, "m.role = ?")
		args = append(args, q.Role)
	}
	query += whereClause(conds)
	query += " ORDER BY s.created_at DESC, m.message_index LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &internal.StoreError{Op: "query", Err: err}
	}
	defer rows.Close()
	return scanHits(rows, "message", 200)
}

// searchStructured matches the plain text against tool names, tool
// inputs, and changed file paths.
func (s *Store) searchStructured(ctx context.Context, q Query, limit int) ([]SearchResult, error) {
	results, err := s.searchTools(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	if len(results) >= limit {
		return results[:limit], nil
	}
	files, err := s.searchFiles(ctx, q, limit-len(results))
	if err != nil {
		return nil, err
	}
	return append(results, files...), nil
}

func (s *Store) searchTools(ctx context.Context, q Query, limit int) ([]SearchResult, error) {
	like := "%" + strings.ReplaceAll(q.Text, `"`, "") + "%"
	conds, condArgs := q.sessionConds()

	query := `
		SELECT m.session_id, s.workspace_name, s.custom_title, m.role, m.message_index,
		       ti.tool_name, COALESCE(ti.input, ''), s.created_at
		FROM tool_invocations ti
		JOIN messages m ON m.id = ti.message_id
		JOIN sessions s ON s.session_id = m.session_id
		WHERE (ti.tool_name LIKE ? OR ti.input LIKE ?)` + whereAnd(conds) + `
		ORDER BY s.created_at DESC LIMIT ?`
	args := append([]any{like, like}, condArgs...)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &internal.StoreError{Op: "query", Err: err}
	}

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var wsName, title, created sql.NullString
		var name, input string
		if err := rows.Scan(&r.SessionID, &wsName, &title, &r.Role, &r.MessageIndex,
			&name, &input, &created); err != nil {
			rows.Close()
			return nil, &internal.StoreError{Op: "query", Err: err}
		}
		r.WorkspaceName, r.Title, r.CreatedAt = wsName.String, title.String, created.String
		r.Source = "tool"
		r.Snippet = name
		if input != "" {
			r.Snippet += " " + clip(input, 160)
		}
		results = append(results, r)
	}
	if err := closeRows(rows); err != nil {
		return nil, &internal.StoreError{Op: "query", Err: err}
	}
	return results, nil
}

func (s *Store) searchFiles(ctx context.Context, q Query, limit int) ([]SearchResult, error) {
	like := "%" + strings.ReplaceAll(q.Text, `"`, "") + "%"
	conds, condArgs := q.sessionConds()

	query := `
		SELECT m.session_id, s.workspace_name, s.custom_title, m.role, m.message_index,
		       fc.file_path, s.created_at
		FROM file_changes fc
		JOIN messages m ON m.id = fc.message_id
		JOIN sessions s ON s.session_id = m.session_id
		WHERE fc.file_path LIKE ?` + whereAnd(conds) + `
		ORDER BY s.created_at DESC LIMIT ?`
	args := append([]any{like}, condArgs...)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &internal.StoreError{Op: "query", Err: err}
	}

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var wsName, title, created sql.NullString
		if err := rows.Scan(&r.SessionID, &wsName, &title, &r.Role, &r.MessageIndex,
			&r.Snippet, &created); err != nil {
			rows.Close()
			return nil, &internal.StoreError{Op: "query", Err: err}
		}
		r.WorkspaceName, r.Title, r.CreatedAt = wsName.String, title.String, created.String
		r.Source = "file"
		results = append(results, r)
	}
	if err := closeRows(rows); err != nil {
		return nil, &internal.StoreError{Op: "query", Err: err}
	}
	return results, nil
}

// sessionConds builds the session-level filter conditions shared by
// every search path. Role is message-level and handled by callers.
func (q Query) sessionConds() ([]string, []any) {
	var conds []string
	var args []any
	if q.Workspace != "" {
		conds = append(conds, "s.workspace_name = ?")
		args = append(args, q.Workspace)
	}
	if q.Title != "" {
		conds = append(conds, "s.custom_title LIKE ?")
		args = append(args, "%"+q.Title+"%")
	}
	if q.Kind != "" {
		cond, kindArgs := kindFilter("s.source_kind", q.Kind)
		conds = append(conds, cond)
		args = append(args, kindArgs...)
	}
	return conds, args
}

func scanHits(rows *sql.Rows, source string, clipTo int) ([]SearchResult, error) {
	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var wsName, title, snippet, created sql.NullString
		if err := rows.Scan(&r.SessionID, &wsName, &title, &r.Role, &r.MessageIndex,
			&snippet, &created); err != nil {
			return nil, &internal.StoreError{Op: "query", Err: err}
		}
		r.WorkspaceName, r.Title, r.CreatedAt = wsName.String, title.String, created.String
		r.Snippet = snippet.String
		if clipTo > 0 {
			r.Snippet = clip(r.Snippet, clipTo)
		}
		r.Source = source
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &internal.StoreError{Op: "query", Err: err}
	}
	return results, nil
}

// kindFilter matches a source kind exactly, or a whole family when
// given the bare "editor" or "cli" name.
func kindFilter(col, kind string) (string, []any) {
	if kind == "editor" || kind == "cli" {
		return col + " LIKE ?", []any{kind + "-%"}
	}
	return col + " = ?", []any{kind}
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func whereAnd(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " AND " + strings.Join(conds, " AND ")
}

// clip truncates to at most n runes, marking the cut.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
