package internal

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/iksnae/copilot-archive/testutil"
)

func vscdbArtifact(path string) Artifact {
	return Artifact{
		Path:      path,
		Kind:      SourceEditorStable,
		Form:      FormVSCDB,
		Workspace: WorkspaceInfo{Hash: "a1b2c3d4", Name: "project", Path: "/home/dev/project"},
	}
}

// writeItemTable builds a state database with arbitrary key/value rows,
// for shapes the standard fixture does not cover.
func writeItemTable(t *testing.T, path string, rows map[string]string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec("CREATE TABLE ItemTable (key TEXT PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for key, value := range rows {
		if _, err := db.Exec("INSERT INTO ItemTable (key, value) VALUES (?, ?)", key, value); err != nil {
			t.Fatalf("insert %q: %v", key, err)
		}
	}
}

func TestParseVSCDB_ArrayValue(t *testing.T) {
	tmpDir := testutil.CreateTempDir(t)
	dbPath := filepath.Join(tmpDir, "state.vscdb")
	testutil.CreateVSCDBFixture(t, dbPath,
		testutil.SnapshotSessionDoc("db-session-1"),
		testutil.SnapshotSessionDoc("db-session-2"),
	)

	parsed, stats, err := ParseVSCDB(context.Background(), vscdbArtifact(dbPath))
	if err != nil {
		t.Fatalf("ParseVSCDB() error = %v", err)
	}
	if stats.SkippedItems != 0 {
		t.Errorf("SkippedItems = %d, want 0", stats.SkippedItems)
	}
	if len(parsed) != 2 {
		t.Fatalf("sessions = %d, want 2", len(parsed))
	}

	for i, want := range []string{"db-session-1", "db-session-2"} {
		sess := parsed[i].Session
		if sess.SessionID != want {
			t.Errorf("session %d id = %q, want %q", i, sess.SessionID, want)
		}
		if sess.WorkspaceName != "project" {
			t.Errorf("session %d workspace = %q", i, sess.WorkspaceName)
		}
		if len(sess.Messages) != 2 {
			t.Errorf("session %d messages = %d, want 2", i, len(sess.Messages))
		}

		// Raw must be the re-serialized array entry, not the whole row.
		var doc map[string]any
		if err := json.Unmarshal(parsed[i].Raw, &doc); err != nil {
			t.Fatalf("session %d raw is not JSON: %v", i, err)
		}
		if got := str(doc, "sessionId"); got != want {
			t.Errorf("session %d raw sessionId = %q, want %q", i, got, want)
		}
	}
}

func TestParseVSCDB_FallbackIDs(t *testing.T) {
	tmpDir := testutil.CreateTempDir(t)
	dbPath := filepath.Join(tmpDir, "state.vscdb")
	testutil.CreateVSCDBFixture(t, dbPath, map[string]interface{}{
		"requests": []interface{}{
			map[string]interface{}{
				"message":  map[string]interface{}{"text": "hi"},
				"response": []interface{}{map[string]interface{}{"kind": "markdownContent", "value": "hello"}},
			},
		},
	})

	parsed, _, err := ParseVSCDB(context.Background(), vscdbArtifact(dbPath))
	if err != nil {
		t.Fatalf("ParseVSCDB() error = %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("sessions = %d, want 1", len(parsed))
	}
	if got := parsed[0].Session.SessionID; got != "state-interactive.sessions-0" {
		t.Errorf("SessionID = %q, want %q", got, "state-interactive.sessions-0")
	}
}

func TestParseVSCDB_SingleDocumentValue(t *testing.T) {
	tmpDir := testutil.CreateTempDir(t)
	dbPath := filepath.Join(tmpDir, "state.vscdb")
	writeItemTable(t, dbPath, map[string]string{
		"copilot.chat.sessionStore": `{"requests":[{"message":{"text":"hi"},"response":[{"kind":"markdownContent","value":"hello"}]}]}`,
	})

	parsed, _, err := ParseVSCDB(context.Background(), vscdbArtifact(dbPath))
	if err != nil {
		t.Fatalf("ParseVSCDB() error = %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("sessions = %d, want 1", len(parsed))
	}
	if got := parsed[0].Session.SessionID; got != "state-copilot.chat.sessionStore" {
		t.Errorf("SessionID = %q, want %q", got, "state-copilot.chat.sessionStore")
	}
}

func TestParseVSCDB_SkipsBadValues(t *testing.T) {
	tmpDir := testutil.CreateTempDir(t)
	dbPath := filepath.Join(tmpDir, "state.vscdb")
	writeItemTable(t, dbPath, map[string]string{
		"copilot.chat.corrupt": "not json at all",
		"empty.sessions":       "",
	})

	parsed, stats, err := ParseVSCDB(context.Background(), vscdbArtifact(dbPath))
	if err != nil {
		t.Fatalf("ParseVSCDB() error = %v", err)
	}
	if len(parsed) != 0 {
		t.Errorf("sessions = %d, want 0", len(parsed))
	}
	if stats.SkippedItems != 1 {
		t.Errorf("SkippedItems = %d, want 1", stats.SkippedItems)
	}
}

func TestParseVSCDB_MissingFile(t *testing.T) {
	tmpDir := testutil.CreateTempDir(t)
	art := vscdbArtifact(filepath.Join(tmpDir, "absent.vscdb"))

	_, _, err := ParseVSCDB(context.Background(), art)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
}
