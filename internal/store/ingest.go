package store

import (
	"bytes"
	"compress/zlib"
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/iksnae/copilot-archive/internal"
)

// compressionLevel is fixed so raw blobs stay byte-stable across tool
// versions.
const compressionLevel = 6

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, compressionLevel)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(blob []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ArtifactState classifies a discovered file against the fingerprints
// recorded for sessions previously imported from it.
type ArtifactState int

const (
	ArtifactNew ArtifactState = iota
	ArtifactChanged
	ArtifactUnchanged
)

// CheckArtifact reports whether the file at path needs parsing. A file
// is unchanged only when every session imported from it carries the
// same mtime and size; state databases hold many sessions per file.
func (s *Store) CheckArtifact(ctx context.Context, path string, mtime float64, size int64) (ArtifactState, error) {
	var total, current int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN source_mtime = ? AND source_size = ? THEN 1 ELSE 0 END), 0)
		FROM raw_sessions WHERE source_file = ?`,
		mtime, size, path).Scan(&total, &current)
	if err != nil {
		return ArtifactNew, &internal.StoreError{Op: "query", Err: err}
	}
	switch {
	case total == 0:
		return ArtifactNew, nil
	case current < total:
		return ArtifactChanged, nil
	default:
		return ArtifactUnchanged, nil
	}
}

// NeedsUpdate reports whether the stored copy of sessionID is missing
// or carries a different source fingerprint. Sessions with no recorded
// fingerprint always need an update.
func (s *Store) NeedsUpdate(ctx context.Context, sessionID string, mtime float64, size int64) (bool, error) {
	var m sql.NullFloat64
	var size0 sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT source_mtime, source_size FROM raw_sessions WHERE session_id = ?`,
		sessionID).Scan(&m, &size0)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, &internal.StoreError{Op: "query", SessionID: sessionID, Err: err}
	}
	if !m.Valid || !size0.Valid {
		return true, nil
	}
	return m.Float64 != mtime || size0.Int64 != size, nil
}

// Ingest writes one parsed session: the compressed raw bytes plus all
// derived rows, atomically. An existing session with the same id is
// replaced. Returns true when the session was new to the archive.
func (s *Store) Ingest(ctx context.Context, sess *internal.Session, raw []byte, form internal.ArtifactForm) (bool, error) {
	if sess == nil || sess.SessionID == "" {
		return false, &internal.StoreError{Op: "ingest", Err: errors.New("session has no id")}
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	blob, err := compress(raw)
	if err != nil {
		return false, &internal.StoreError{Op: "ingest", SessionID: sess.SessionID, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, &internal.StoreError{Op: "ingest", SessionID: sess.SessionID, Err: err}
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM raw_sessions WHERE session_id = ?`,
		sess.SessionID).Scan(&existing); err != nil {
		return false, &internal.StoreError{Op: "ingest", SessionID: sess.SessionID, Err: err}
	}
	if existing > 0 {
		// Messages go first so the FTS delete trigger fires for each
		// row; cascades clear the per-message children.
		for _, del := range []string{
			`DELETE FROM messages WHERE session_id = ?`,
			`DELETE FROM sessions WHERE session_id = ?`,
			`DELETE FROM raw_sessions WHERE session_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, del, sess.SessionID); err != nil {
				return false, &internal.StoreError{Op: "ingest", SessionID: sess.SessionID, Err: err}
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO raw_sessions (session_id, raw_json, workspace_name, workspace_path,
			source_kind, artifact_form, source_file, source_mtime, source_size, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, blob, nullable(sess.WorkspaceName), nullable(sess.WorkspacePath),
		string(sess.SourceKind), string(form), nullable(sess.SourcePath),
		sess.SourceMtime, sess.SourceSize, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return false, &internal.StoreError{Op: "ingest", SessionID: sess.SessionID, Err: err}
	}

	if err := insertDerived(ctx, tx, sess); err != nil {
		return false, &internal.StoreError{Op: "ingest", SessionID: sess.SessionID, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return false, &internal.StoreError{Op: "ingest", SessionID: sess.SessionID, Err: err}
	}
	return existing == 0, nil
}

func insertDerived(ctx context.Context, tx *sql.Tx, sess *internal.Session) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, workspace_name, workspace_path, source_kind,
			created_at, updated_at, custom_title, requester_username, responder_username, source_file)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, nullable(sess.WorkspaceName), nullable(sess.WorkspacePath),
		string(sess.SourceKind), nullable(sess.CreatedAt), nullable(sess.UpdatedAt),
		nullable(sess.CustomTitle), nullable(sess.RequesterUsername),
		nullable(sess.ResponderUsername), nullable(sess.SourcePath)); err != nil {
		return err
	}

	for i := range sess.Messages {
		msg := &sess.Messages[i]
		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (session_id, message_index, role, content, timestamp)
			VALUES (?, ?, ?, ?, ?)`,
			sess.SessionID, msg.MessageIndex, msg.Role, msg.Content, nullable(msg.Timestamp))
		if err != nil {
			return err
		}
		messageID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		for _, tool := range msg.ToolInvocations {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tool_invocations (message_id, tool_name, input, result, status,
					start_time, end_time, source_type, invocation_message)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				messageID, tool.Name, nullable(tool.Input), nullable(tool.Result),
				nullable(tool.Status), nullable(tool.StartTime), nullable(tool.EndTime),
				nullable(tool.SourceType), nullable(tool.InvocationMessage)); err != nil {
				return err
			}
		}
		for _, change := range msg.FileChanges {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO file_changes (message_id, file_path, diff, content, explanation, language_id)
				VALUES (?, ?, ?, ?, ?, ?)`,
				messageID, change.Path, nullable(change.Diff), nullable(change.Content),
				nullable(change.Explanation), nullable(change.LanguageID)); err != nil {
				return err
			}
		}
		for _, run := range msg.CommandRuns {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO command_runs (message_id, command, title, result, status, output, timestamp)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				messageID, run.Command, nullable(run.Title), nullable(run.Result),
				nullable(run.Status), nullable(run.Output), nullable(run.Timestamp)); err != nil {
				return err
			}
		}
		for idx, blk := range msg.Blocks {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO content_blocks (message_id, block_index, kind, content, description)
				VALUES (?, ?, ?, ?, ?)`,
				messageID, idx, blk.Kind, blk.Content, nullable(blk.Description)); err != nil {
				return err
			}
		}
	}
	return nil
}
