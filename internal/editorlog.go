package internal

import (
	"bytes"
	"context"

	json "github.com/goccy/go-json"
)

// logOperation is one incremental mutation from an editor append log.
type logOperation struct {
	kind  int   // 1 sets a value, 2 pushes onto an array
	path  []any // key path of string keys and numeric indexes
	value any
}

// ParseEditorLog replays an editor append-log artifact. The first kind 0
// line carries the base snapshot; kind 1 lines set a value at a path and
// kind 2 lines push onto an array. The replayed document has the same
// shape as a snapshot file and is handed to the snapshot extractor.
func ParseEditorLog(ctx context.Context, art Artifact, raw []byte) ([]ParsedSession, ParseStats, error) {
	var stats ParseStats

	var base map[string]any
	var ops []logOperation

	sc := lineScanner(bytes.NewReader(raw))
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			stats.note("")
			continue
		}
		kind, ok := numValue(entry, "kind")
		if !ok {
			stats.note("")
			continue
		}
		switch {
		case kind == 0 && base == nil:
			base = mapValue(entry["v"])
		case kind == 1 || kind == 2:
			ops = append(ops, logOperation{kind: kind, path: listValue(entry["k"]), value: entry["v"]})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, stats, &DecodeError{Path: art.Path, Err: err}
	}
	if base == nil {
		return nil, stats, nil
	}

	applyLogOperations(base, ops)

	sess := sessionFromSnapshot(base, art, fileStem(art.Path), &stats)
	if sess == nil {
		return nil, stats, nil
	}
	return []ParsedSession{{Session: sess, Raw: raw}}, stats, nil
}

// applyLogOperations replays set and push operations onto the base
// snapshot in order. Operations whose paths no longer resolve are
// dropped; a truncated log must still replay as far as it goes.
func applyLogOperations(base map[string]any, ops []logOperation) {
	for _, op := range ops {
		if len(op.path) == 0 {
			continue
		}
		parent := navigatePath(base, op.path[:len(op.path)-1])
		last := op.path[len(op.path)-1]

		switch op.kind {
		case 1:
			switch t := parent.(type) {
			case map[string]any:
				if key, ok := last.(string); ok {
					t[key] = op.value
				}
			case []any:
				if idx, ok := pathIndex(last); ok && idx >= 0 && idx < len(t) {
					t[idx] = op.value
				}
			}
		case 2:
			items, ok := op.value.([]any)
			if !ok {
				continue
			}
			switch t := parent.(type) {
			case map[string]any:
				key, ok := last.(string)
				if !ok {
					continue
				}
				if arr, ok := t[key].([]any); ok {
					t[key] = append(arr, items...)
				}
			case []any:
				idx, ok := pathIndex(last)
				if !ok || idx < 0 || idx >= len(t) {
					continue
				}
				if arr, ok := t[idx].([]any); ok {
					t[idx] = append(arr, items...)
				}
			}
		}
	}
}

// navigatePath walks a decoded document along string keys and numeric
// indexes, returning nil when any segment fails to resolve.
func navigatePath(root any, path []any) any {
	target := root
	for _, seg := range path {
		switch t := target.(type) {
		case map[string]any:
			key, ok := seg.(string)
			if !ok {
				return nil
			}
			target = t[key]
		case []any:
			idx, ok := pathIndex(seg)
			if !ok || idx < 0 || idx >= len(t) {
				return nil
			}
			target = t[idx]
		default:
			return nil
		}
	}
	return target
}

func pathIndex(seg any) (int, bool) {
	switch v := seg.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}
