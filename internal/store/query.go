package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"

	"github.com/iksnae/copilot-archive/internal"
)

// GetSession reconstructs one full session from the derived tables.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*internal.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.session_id, s.workspace_name, s.workspace_path, s.source_kind,
		       s.created_at, s.updated_at, s.custom_title,
		       s.requester_username, s.responder_username, s.source_file,
		       r.source_mtime, r.source_size
		FROM sessions s
		LEFT JOIN raw_sessions r ON r.session_id = s.session_id
		WHERE s.session_id = ?`, sessionID)

	var sess internal.Session
	var wsName, wsPath, created, updated, title, requester, responder, source sql.NullString
	var kind string
	var mtime sql.NullFloat64
	var size sql.NullInt64
	err := row.Scan(&sess.SessionID, &wsName, &wsPath, &kind, &created, &updated,
		&title, &requester, &responder, &source, &mtime, &size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &internal.StoreError{Op: "query", SessionID: sessionID, Err: err}
	}
	sess.WorkspaceName = wsName.String
	sess.WorkspacePath = wsPath.String
	sess.SourceKind = internal.SourceKind(kind)
	sess.CreatedAt = created.String
	sess.UpdatedAt = updated.String
	sess.CustomTitle = title.String
	sess.RequesterUsername = requester.String
	sess.ResponderUsername = responder.String
	sess.SourcePath = source.String
	sess.SourceMtime = mtime.Float64
	sess.SourceSize = size.Int64

	if err := s.loadMessages(ctx, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) loadMessages(ctx context.Context, sess *internal.Session) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_index, role, content, timestamp
		FROM messages WHERE session_id = ? ORDER BY message_index`, sess.SessionID)
	if err != nil {
		return &internal.StoreError{Op: "query", SessionID: sess.SessionID, Err: err}
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		var msg internal.Message
		var content, ts sql.NullString
		if err := rows.Scan(&id, &msg.MessageIndex, &msg.Role, &content, &ts); err != nil {
			return &internal.StoreError{Op: "query", SessionID: sess.SessionID, Err: err}
		}
		msg.Content = content.String
		msg.Timestamp = ts.String
		sess.Messages = append(sess.Messages, msg)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return &internal.StoreError{Op: "query", SessionID: sess.SessionID, Err: err}
	}

	for i, id := range ids {
		if err := s.loadMessageChildren(ctx, id, &sess.Messages[i]); err != nil {
			return &internal.StoreError{Op: "query", SessionID: sess.SessionID, Err: err}
		}
	}
	return nil
}

func (s *Store) loadMessageChildren(ctx context.Context, messageID int64, msg *internal.Message) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool_name, input, result, status, start_time, end_time, source_type, invocation_message
		FROM tool_invocations WHERE message_id = ? ORDER BY id`, messageID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var tool internal.ToolInvocation
		var input, result, status, start, end, srcType, invMsg sql.NullString
		if err := rows.Scan(&tool.Name, &input, &result, &status, &start, &end, &srcType, &invMsg); err != nil {
			rows.Close()
			return err
		}
		tool.Input, tool.Result, tool.Status = input.String, result.String, status.String
		tool.StartTime, tool.EndTime = start.String, end.String
		tool.SourceType, tool.InvocationMessage = srcType.String, invMsg.String
		msg.ToolInvocations = append(msg.ToolInvocations, tool)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT file_path, diff, content, explanation, language_id
		FROM file_changes WHERE message_id = ? ORDER BY id`, messageID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var change internal.FileChange
		var diff, content, explanation, lang sql.NullString
		if err := rows.Scan(&change.Path, &diff, &content, &explanation, &lang); err != nil {
			rows.Close()
			return err
		}
		change.Diff, change.Content = diff.String, content.String
		change.Explanation, change.LanguageID = explanation.String, lang.String
		msg.FileChanges = append(msg.FileChanges, change)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT command, title, result, status, output, timestamp
		FROM command_runs WHERE message_id = ? ORDER BY id`, messageID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var run internal.CommandRun
		var title, result, status, output, ts sql.NullString
		if err := rows.Scan(&run.Command, &title, &result, &status, &output, &ts); err != nil {
			rows.Close()
			return err
		}
		run.Title, run.Result, run.Status = title.String, result.String, status.String
		run.Output, run.Timestamp = output.String, ts.String
		msg.CommandRuns = append(msg.CommandRuns, run)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT kind, content, description
		FROM content_blocks WHERE message_id = ? ORDER BY block_index`, messageID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var blk internal.ContentBlock
		var content, desc sql.NullString
		if err := rows.Scan(&blk.Kind, &content, &desc); err != nil {
			rows.Close()
			return err
		}
		blk.Content, blk.Description = content.String, desc.String
		msg.Blocks = append(msg.Blocks, blk)
	}
	return closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}

// RawSession returns the decompressed raw bytes a session was archived
// from, together with their artifact form.
func (s *Store) RawSession(ctx context.Context, sessionID string) ([]byte, string, error) {
	var blob []byte
	var form string
	err := s.db.QueryRowContext(ctx,
		`SELECT raw_json, artifact_form FROM raw_sessions WHERE session_id = ?`, sessionID).
		Scan(&blob, &form)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", &internal.StoreError{Op: "query", SessionID: sessionID, Err: err}
	}
	raw, err := decompress(blob)
	if err != nil {
		return nil, "", &internal.StoreError{Op: "query", SessionID: sessionID, Err: err}
	}
	return raw, form, nil
}

// SessionIDs returns every archived session id in sorted order.
func (s *Store) SessionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM sessions ORDER BY session_id`)
	if err != nil {
		return nil, &internal.StoreError{Op: "query", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &internal.StoreError{Op: "query", Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &internal.StoreError{Op: "query", Err: err}
	}
	return ids, nil
}

// ListOptions filter a session listing. Workspace matches one name
// exactly; Workspaces matches any of several, for callers that resolve
// a pattern against the workspace list first.
type ListOptions struct {
	Workspace  string
	Workspaces []string
	Kind       string // source kind, exact or "editor"/"cli" family
	Limit      int
}

// ListSessions returns session summaries, most recently active first.
// Activity is the newest message timestamp, falling back to the
// session's own updated_at.
func (s *Store) ListSessions(ctx context.Context, opts ListOptions) ([]internal.SessionSummary, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	query := `
		SELECT s.session_id, s.workspace_name, s.source_kind, s.custom_title,
		       s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.session_id) AS message_count,
		       (SELECT MAX(m.timestamp) FROM messages m WHERE m.session_id = s.session_id) AS last_message_at,
		       (SELECT m.content FROM messages m WHERE m.session_id = s.session_id AND m.role = 'user'
		        ORDER BY m.message_index LIMIT 1) AS first_user_prompt
		FROM sessions s`
	var conds []string
	var args []any
	if opts.Workspace != "" {
		conds = append(conds, "s.workspace_name = ?")
		args = append(args, opts.Workspace)
	}
	if len(opts.Workspaces) > 0 {
		placeholders := strings.Repeat("?,", len(opts.Workspaces))
		conds = append(conds, "s.workspace_name IN ("+placeholders[:len(placeholders)-1]+")")
		for _, name := range opts.Workspaces {
			args = append(args, name)
		}
	}
	if opts.Kind != "" {
		cond, kindArgs := kindFilter("s.source_kind", opts.Kind)
		conds = append(conds, cond)
		args = append(args, kindArgs...)
	}
	query += whereClause(conds)
	query += ` ORDER BY COALESCE(last_message_at, s.updated_at, s.created_at) DESC, s.created_at DESC LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &internal.StoreError{Op: "query", Err: err}
	}
	defer rows.Close()

	var summaries []internal.SessionSummary
	for rows.Next() {
		var sum internal.SessionSummary
		var wsName, title, created, updated, lastMsg, firstPrompt sql.NullString
		var kind string
		if err := rows.Scan(&sum.SessionID, &wsName, &kind, &title, &created, &updated,
			&sum.MessageCount, &lastMsg, &firstPrompt); err != nil {
			return nil, &internal.StoreError{Op: "query", Err: err}
		}
		sum.WorkspaceName = wsName.String
		sum.SourceKind = internal.SourceKind(kind)
		sum.CustomTitle = title.String
		sum.CreatedAt = created.String
		sum.UpdatedAt = lastMsg.String
		if sum.UpdatedAt == "" {
			sum.UpdatedAt = updated.String
		}
		sum.FirstPrompt = firstPrompt.String
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, &internal.StoreError{Op: "query", Err: err}
	}
	return summaries, nil
}

// WorkspaceCount is one row of the workspaces listing.
type WorkspaceCount struct {
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	Sessions int    `json:"sessions"`
	LastUsed string `json:"last_used,omitempty"`
}

// Workspaces groups archived sessions by workspace, busiest first.
// Sessions with no recorded workspace group under the empty name.
func (s *Store) Workspaces(ctx context.Context) ([]WorkspaceCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(workspace_name, ''), COALESCE(workspace_path, ''),
		       COUNT(*), COALESCE(MAX(updated_at), '')
		FROM sessions
		GROUP BY workspace_name, workspace_path
		ORDER BY COUNT(*) DESC, workspace_name`)
	if err != nil {
		return nil, &internal.StoreError{Op: "query", Err: err}
	}
	defer rows.Close()

	var counts []WorkspaceCount
	for rows.Next() {
		var wc WorkspaceCount
		if err := rows.Scan(&wc.Name, &wc.Path, &wc.Sessions, &wc.LastUsed); err != nil {
			return nil, &internal.StoreError{Op: "query", Err: err}
		}
		counts = append(counts, wc)
	}
	if err := rows.Err(); err != nil {
		return nil, &internal.StoreError{Op: "query", Err: err}
	}
	return counts, nil
}

// Stats summarizes archive contents.
type Stats struct {
	Sessions        int            `json:"sessions"`
	RawSessions     int            `json:"raw_sessions"`
	Messages        int            `json:"messages"`
	MessagesByRole  map[string]int `json:"messages_by_role,omitempty"`
	SessionsByKind  map[string]int `json:"sessions_by_kind,omitempty"`
	Workspaces      int            `json:"workspaces"`
	ToolInvocations int            `json:"tool_invocations"`
	FileChanges     int            `json:"file_changes"`
	CommandRuns     int            `json:"command_runs"`
	EarliestCreated string         `json:"earliest_created,omitempty"`
	LatestUpdated   string         `json:"latest_updated,omitempty"`
	DatabaseBytes   int64          `json:"database_bytes"`
}

// Stats reports row counts, role and source breakdowns, and the archive
// date range.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		MessagesByRole: make(map[string]int),
		SessionsByKind: make(map[string]int),
	}

	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM sessions`, &stats.Sessions},
		{`SELECT COUNT(*) FROM raw_sessions`, &stats.RawSessions},
		{`SELECT COUNT(*) FROM messages`, &stats.Messages},
		{`SELECT COUNT(DISTINCT workspace_name) FROM sessions WHERE workspace_name IS NOT NULL`, &stats.Workspaces},
		{`SELECT COUNT(*) FROM tool_invocations`, &stats.ToolInvocations},
		{`SELECT COUNT(*) FROM file_changes`, &stats.FileChanges},
		{`SELECT COUNT(*) FROM command_runs`, &stats.CommandRuns},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return stats, &internal.StoreError{Op: "query", Err: err}
		}
	}

	if err := s.groupCount(ctx, `SELECT role, COUNT(*) FROM messages GROUP BY role`, stats.MessagesByRole); err != nil {
		return stats, err
	}
	if err := s.groupCount(ctx, `SELECT source_kind, COUNT(*) FROM sessions GROUP BY source_kind`, stats.SessionsByKind); err != nil {
		return stats, err
	}

	var earliest, latest sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT MIN(created_at), MAX(COALESCE(updated_at, created_at)) FROM sessions`).
		Scan(&earliest, &latest); err != nil {
		return stats, &internal.StoreError{Op: "query", Err: err}
	}
	stats.EarliestCreated = earliest.String
	stats.LatestUpdated = latest.String

	if info, err := os.Stat(s.path); err == nil {
		stats.DatabaseBytes = info.Size()
	}
	return stats, nil
}

func (s *Store) groupCount(ctx context.Context, query string, dst map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return &internal.StoreError{Op: "query", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return &internal.StoreError{Op: "query", Err: err}
		}
		dst[key] = n
	}
	if err := rows.Err(); err != nil {
		return &internal.StoreError{Op: "query", Err: err}
	}
	return nil
}
