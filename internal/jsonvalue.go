package internal

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Helpers for navigating loosely-typed artifact JSON. Upstream writes
// several generations of the same shape, so every accessor tolerates
// missing keys and wrong types.

func mapValue(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func listValue(v any) []any {
	l, _ := v.([]any)
	return l
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// firstString returns the first non-empty string found under keys.
func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := str(m, key); s != "" {
			return s
		}
	}
	return ""
}

// firstValue returns the first truthy value under keys, stringified.
func firstValue(m map[string]any, keys ...string) string {
	if m == nil {
		return ""
	}
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			if s != "" {
				return s
			}
			continue
		}
		if b, ok := v.(bool); ok && !b {
			continue
		}
		if f, ok := v.(float64); ok && f == 0 {
			continue
		}
		return stringify(v)
	}
	return ""
}

// truthy reports whether a decoded JSON value carries content: nil, "",
// 0, false, and empty containers do not.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return true
}

func boolValue(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

// numValue returns an integer field that may arrive as float64 or int.
// ok is false when the key is absent or not numeric.
func numValue(m map[string]any, key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

// unwrapValue resolves the editor's {value: "..."} indirection. Markdown
// strings and their wrapped forms are used interchangeably upstream.
func unwrapValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if inner, ok := val["value"]; ok {
			if s, ok := inner.(string); ok {
				return s
			}
			return stringify(inner)
		}
	case nil:
		return ""
	}
	return stringify(v)
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	switch v.(type) {
	case map[string]any, []any:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("%v", v)
}

// firstRaw returns the first truthy value under keys, undecoded. Used
// where the caller needs the original type, such as timestamps that may
// be strings or epoch numbers.
func firstRaw(m map[string]any, keys ...string) any {
	if m == nil {
		return nil
	}
	for _, key := range keys {
		if v, ok := m[key]; ok && truthy(v) {
			return v
		}
	}
	return nil
}

// uriPath extracts a filesystem path from an editor URI, which may be a
// string ("file:///path") or an object with fsPath/path/external keys.
func uriPath(uri any) string {
	switch u := uri.(type) {
	case string:
		return strings.TrimPrefix(u, "file://")
	case map[string]any:
		path := firstString(u, "fsPath", "path", "external")
		return strings.TrimPrefix(path, "file://")
	}
	return ""
}

// uriFilename extracts just the final path element from a URI.
func uriFilename(uri any) string {
	return shortenPath(uriPath(uri))
}

// timestampString renders a source timestamp field (string or epoch
// millis) for storage. Timestamps are carried verbatim when textual.
func timestampString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == 0 {
			return ""
		}
		return fmt.Sprintf("%.0f", t)
	case nil:
		return ""
	}
	return stringify(v)
}
