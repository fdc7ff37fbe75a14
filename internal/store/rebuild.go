package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/iksnae/copilot-archive/internal"
)

// RebuildResult reports one derived-table rebuild.
type RebuildResult struct {
	Sessions int      // sessions whose derived rows were regenerated
	Errors   int      // raw blobs that failed to decompress or parse
	Failed   []string // session ids counted in Errors
}

type rawRow struct {
	sessionID string
	blob      []byte
	wsName    sql.NullString
	wsPath    sql.NullString
	kind      string
	form      string
	source    sql.NullString
	mtime     sql.NullFloat64
	size      sql.NullInt64
}

// RebuildAll drops every derived table and regenerates it by re-parsing
// each stored raw blob. Raw rows that no longer parse are skipped and
// counted; their bytes stay in the archive untouched. The write lock is
// held for the whole rebuild so no scan can interleave.
func (s *Store) RebuildAll(ctx context.Context) (RebuildResult, error) {
	var result RebuildResult

	if err := s.Lock(); err != nil {
		return result, err
	}
	defer func() { _ = s.Unlock() }()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return result, &internal.StoreError{Op: "rebuild", Err: err}
	}
	defer conn.Close()

	raws, err := loadRawRows(ctx, conn)
	if err != nil {
		return result, err
	}
	titles, err := loadCustomTitles(ctx, conn)
	if err != nil {
		return result, err
	}

	// foreign_keys cannot change inside a transaction, so it is toggled
	// on the dedicated connection around the whole rebuild.
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		return result, &internal.StoreError{Op: "rebuild", Err: err}
	}
	defer conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA foreign_keys=ON")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return result, &internal.StoreError{Op: "rebuild", Err: err}
	}
	defer tx.Rollback()

	for _, name := range derivedDrops {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
			return result, &internal.StoreError{Op: "rebuild", Err: err}
		}
	}
	for _, stmt := range derivedSchema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return result, &internal.StoreError{Op: "rebuild", Err: err}
		}
	}

	for _, row := range raws {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		sess, err := reparseRaw(ctx, row)
		if err != nil {
			log.Debug().Str("session", row.sessionID).Err(err).Msg("rebuild skip")
			result.Errors++
			result.Failed = append(result.Failed, row.sessionID)
			continue
		}
		// CLI titles can come from a sidecar file that may be gone by
		// now. The previously derived title fills that gap.
		if sess.CustomTitle == "" {
			sess.CustomTitle = titles[row.sessionID]
		}
		if err := insertDerived(ctx, tx, sess); err != nil {
			return result, &internal.StoreError{Op: "rebuild", SessionID: row.sessionID, Err: err}
		}
		result.Sessions++
	}

	if err := tx.Commit(); err != nil {
		return result, &internal.StoreError{Op: "rebuild", Err: err}
	}
	return result, nil
}

func loadCustomTitles(ctx context.Context, conn *sql.Conn) (map[string]string, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT session_id, custom_title FROM sessions WHERE custom_title IS NOT NULL`)
	if err != nil {
		return nil, &internal.StoreError{Op: "rebuild", Err: err}
	}
	defer rows.Close()

	titles := make(map[string]string)
	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, &internal.StoreError{Op: "rebuild", Err: err}
		}
		titles[id] = title
	}
	if err := rows.Err(); err != nil {
		return nil, &internal.StoreError{Op: "rebuild", Err: err}
	}
	return titles, nil
}

func loadRawRows(ctx context.Context, conn *sql.Conn) ([]rawRow, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT session_id, raw_json, workspace_name, workspace_path,
		       source_kind, artifact_form, source_file, source_mtime, source_size
		FROM raw_sessions ORDER BY session_id`)
	if err != nil {
		return nil, &internal.StoreError{Op: "rebuild", Err: err}
	}
	defer rows.Close()

	var raws []rawRow
	for rows.Next() {
		var r rawRow
		if err := rows.Scan(&r.sessionID, &r.blob, &r.wsName, &r.wsPath,
			&r.kind, &r.form, &r.source, &r.mtime, &r.size); err != nil {
			return nil, &internal.StoreError{Op: "rebuild", Err: err}
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &internal.StoreError{Op: "rebuild", Err: err}
	}
	return raws, nil
}

// reparseRaw regenerates one session from its stored bytes. The stored
// session id always wins over whatever the parser resolves, keeping the
// derived row keyed to its raw row.
func reparseRaw(ctx context.Context, row rawRow) (*internal.Session, error) {
	raw, err := decompress(row.blob)
	if err != nil {
		return nil, err
	}

	art := internal.Artifact{
		Path: row.source.String,
		Kind: internal.SourceKind(row.kind),
		Form: internal.ArtifactForm(row.form),
		Workspace: internal.WorkspaceInfo{
			Name: row.wsName.String,
			Path: row.wsPath.String,
		},
		Mtime: row.mtime.Float64,
		Size:  row.size.Int64,
	}
	if art.Path == "" {
		art.Path = row.sessionID
	}

	parsed, _, err := internal.ParseRaw(ctx, art, raw)
	if err != nil {
		return nil, err
	}
	if len(parsed) == 0 {
		return nil, errors.New("raw bytes produced no session")
	}
	sess := parsed[0].Session
	for _, ps := range parsed {
		if ps.Session.SessionID == row.sessionID {
			sess = ps.Session
			break
		}
	}
	sess.SessionID = row.sessionID
	return sess, nil
}
