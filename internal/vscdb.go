package internal

import (
	"context"
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

// ParseVSCDB extracts chat sessions from an editor state database.
// Copilot chat state lives in ItemTable under keys in the chat and
// sessions namespaces; a value may hold one session document or an
// array of them. Each extracted session keeps its own serialized bytes
// as the raw record, since the database file itself is not a stable
// unit of re-parse.
func ParseVSCDB(ctx context.Context, art Artifact) ([]ParsedSession, ParseStats, error) {
	var stats ParseStats

	db, err := sql.Open("sqlite", art.Path+"?mode=ro")
	if err != nil {
		return nil, stats, &ParseError{Path: art.Path, Kind: art.Kind, Err: err}
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		"SELECT key, value FROM ItemTable WHERE key LIKE '%copilot%chat%' OR key LIKE '%sessions%'")
	if err != nil {
		return nil, stats, &ParseError{Path: art.Path, Kind: art.Kind, Err: err}
	}
	defer rows.Close()

	var sessions []ParsedSession
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			stats.note("")
			continue
		}
		if !value.Valid || value.String == "" {
			continue
		}
		raw := []byte(value.String)

		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			stats.note("")
			continue
		}

		switch doc := decoded.(type) {
		case map[string]any:
			fallback := fmt.Sprintf("%s-%s", fileStem(art.Path), key)
			if sess := sessionFromSnapshot(doc, art, fallback, &stats); sess != nil {
				sessions = append(sessions, ParsedSession{Session: sess, Raw: raw})
			}
		case []any:
			for i, item := range doc {
				entry := mapValue(item)
				if entry == nil {
					continue
				}
				itemRaw, err := json.Marshal(entry)
				if err != nil {
					stats.note("")
					continue
				}
				fallback := fmt.Sprintf("%s-%s-%d", fileStem(art.Path), key, i)
				if sess := sessionFromSnapshot(entry, art, fallback, &stats); sess != nil {
					sessions = append(sessions, ParsedSession{Session: sess, Raw: itemRaw})
				}
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, stats, &ParseError{Path: art.Path, Kind: art.Kind, Err: err}
	}

	return sessions, stats, nil
}
