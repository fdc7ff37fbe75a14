package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/iksnae/copilot-archive/internal"
	"github.com/iksnae/copilot-archive/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(testutil.CreateTempDir(t), "archive.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// archivedSession builds a session with every derived table populated.
func archivedSession(id string) *internal.Session {
	return &internal.Session{
		SessionID:         id,
		WorkspaceName:     "project",
		WorkspacePath:     "/home/dev/project",
		SourceKind:        internal.SourceEditorStable,
		CreatedAt:         "2024-03-14T09:26:00Z",
		UpdatedAt:         "2024-03-14T09:31:00Z",
		RequesterUsername: "octocat",
		SourcePath:        "/store/chatSessions/" + id + ".json",
		SourceMtime:       1710408660,
		SourceSize:        2048,
		Messages: []internal.Message{
			{
				MessageIndex: 0,
				Role:         internal.RoleUser,
				Content:      "How do I list files in a directory?",
				Timestamp:    "2024-03-14T09:26:00Z",
			},
			{
				MessageIndex: 1,
				Role:         internal.RoleAssistant,
				Content:      "Use os.ReadDir to enumerate entries.",
				Timestamp:    "2024-03-14T09:27:00Z",
				Blocks: []internal.ContentBlock{
					{Kind: internal.BlockText, Content: "Use os.ReadDir to enumerate entries."},
					{Kind: internal.BlockToolInvocation, Content: "Read `main.go`"},
				},
				ToolInvocations: []internal.ToolInvocation{
					{
						Name:              "copilot_readFile",
						Input:             `{"path":"main.go"}`,
						Result:            "package main",
						Status:            "completed",
						InvocationMessage: "Read `main.go`",
					},
				},
				FileChanges: []internal.FileChange{
					{Path: "/home/dev/project/main.go", Diff: "--- a/main.go\n+++ b/main.go\n-old\n+new\n"},
				},
				CommandRuns: []internal.CommandRun{
					{Command: "go test ./...", Title: "Run tests", Result: "ok", Status: "success", Output: "ok\tproject\t0.5s"},
				},
			},
		},
	}
}

func TestOpen_CreatesParentAndSchema(t *testing.T) {
	tmpDir := testutil.CreateTempDir(t)
	path := filepath.Join(tmpDir, "nested", "deeper", "archive.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}

	// The schema is usable immediately.
	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Sessions != 0 || stats.Messages != 0 {
		t.Errorf("fresh archive stats = %+v", stats)
	}
}

func TestOpen_ExistingArchive(t *testing.T) {
	tmpDir := testutil.CreateTempDir(t)
	path := filepath.Join(tmpDir, "archive.db")

	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := first.Ingest(context.Background(), archivedSession("persisted"), []byte(`{"x":1}`), internal.FormSnapshot); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer second.Close()

	ids, err := second.SessionIDs(context.Background())
	if err != nil {
		t.Fatalf("SessionIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "persisted" {
		t.Errorf("SessionIDs() = %v, want [persisted]", ids)
	}
}

func TestLock(t *testing.T) {
	tmpDir := testutil.CreateTempDir(t)
	path := filepath.Join(tmpDir, "archive.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if err := s.Lock(); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := s.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := s.Lock(); err != nil {
		t.Fatalf("relock error = %v", err)
	}
}

func TestClose_ReleasesLock(t *testing.T) {
	tmpDir := testutil.CreateTempDir(t)
	path := filepath.Join(tmpDir, "archive.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Lock(); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer again.Close()
	if err := again.Lock(); err != nil {
		t.Errorf("Lock() after Close error = %v", err)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetSession(context.Background(), "no-such-session")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestNullable(t *testing.T) {
	if got := nullable(""); got != nil {
		t.Errorf("nullable(\"\") = %v, want nil", got)
	}
	if got := nullable("x"); got != "x" {
		t.Errorf("nullable(\"x\") = %v, want \"x\"", got)
	}
}
