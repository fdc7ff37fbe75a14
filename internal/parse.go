package internal

import (
	"context"
	"os"

	json "github.com/goccy/go-json"
)

// ParsedSession pairs one normalized session with the exact raw bytes
// that produced it. For database-backed artifacts the bytes are the
// re-serialized entry; otherwise the whole file.
type ParsedSession struct {
	Session *Session
	Raw     []byte
}

// ParseStats counts fragments a parser skipped while recovering from
// partially malformed input. UnknownKinds keeps the distinct item kinds
// and event types that had no handler, so skips stay traceable.
type ParseStats struct {
	SkippedItems int
	UnknownKinds []string
}

// note records one skipped fragment; a non-empty name is kept, deduped,
// in the skip report.
func (s *ParseStats) note(name string) {
	s.SkippedItems++
	if name == "" {
		return
	}
	for _, existing := range s.UnknownKinds {
		if existing == name {
			return
		}
	}
	s.UnknownKinds = append(s.UnknownKinds, name)
}

// ParseArtifact parses one discovered artifact into normalized sessions.
// Recovery is per-fragment; a returned error means the artifact's
// top-level container could not be decoded at all.
func ParseArtifact(ctx context.Context, art Artifact) ([]ParsedSession, ParseStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, ParseStats{}, err
	}
	if art.Form == FormVSCDB {
		return ParseVSCDB(ctx, art)
	}

	raw, err := os.ReadFile(art.Path)
	if err != nil {
		return nil, ParseStats{}, &ParseError{Path: art.Path, Kind: art.Kind, Err: err}
	}
	return ParseRaw(ctx, art, raw)
}

// ParseRaw parses already-loaded artifact bytes according to the
// artifact form. Sessions lifted out of a state database are stored one
// JSON document per row, so they re-parse as snapshots.
func ParseRaw(ctx context.Context, art Artifact, raw []byte) ([]ParsedSession, ParseStats, error) {
	switch art.Form {
	case FormSnapshot, FormVSCDB:
		return ParseSnapshot(ctx, art, raw)
	case FormEditorLog:
		return ParseEditorLog(ctx, art, raw)
	case FormCLIEvents:
		return ParseCLIEvents(ctx, art, raw)
	case FormImport:
		return parseImportedSession(art, raw)
	}
	return nil, ParseStats{}, &UnsupportedArtifactError{Path: art.Path, Reason: "unrecognized artifact form"}
}

// parseImportedSession decodes a session that was archived from an
// export document rather than a live artifact. The document is already
// in normalized shape, so this is a plain decode.
func parseImportedSession(art Artifact, raw []byte) ([]ParsedSession, ParseStats, error) {
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, ParseStats{}, &DecodeError{Path: art.Path, Err: err}
	}
	if sess.SessionID == "" {
		sess.SessionID = fileStem(art.Path)
	}
	sess.Messages = reindexMessages(sess.Messages)
	return []ParsedSession{{Session: &sess, Raw: raw}}, ParseStats{}, nil
}
