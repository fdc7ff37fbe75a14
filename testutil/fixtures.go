package testutil

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

// CreateWorkspaceFixture creates an editor workspace storage directory
// under basePath/workspaceStorage with its workspace.json identity file
func CreateWorkspaceFixture(t *testing.T, basePath, workspaceHash, folderURI string) string {
	t.Helper()
	workspaceDir := filepath.Join(basePath, "workspaceStorage", workspaceHash)
	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		t.Fatalf("Failed to create workspace directory: %v", err)
	}

	workspaceJSON := map[string]interface{}{
		"folder": folderURI,
	}
	jsonData, _ := json.Marshal(workspaceJSON)
	if err := os.WriteFile(filepath.Join(workspaceDir, "workspace.json"), jsonData, 0644); err != nil {
		t.Fatalf("Failed to write workspace.json: %v", err)
	}

	return workspaceDir
}

// SnapshotSessionDoc builds a chat session document in the requests
// shape: one user prompt and one assistant response carrying a tool call
func SnapshotSessionDoc(sessionID string) map[string]interface{} {
	return map[string]interface{}{
		"sessionId":         sessionID,
		"creationDate":      "2024-03-14T09:26:00Z",
		"lastMessageDate":   "2024-03-14T09:31:00Z",
		"requesterUsername": "octocat",
		"requests": []interface{}{
			map[string]interface{}{
				"timestamp": "2024-03-14T09:26:00Z",
				"message": map[string]interface{}{
					"text": "How do I list files in a directory?",
				},
				"response": []interface{}{
					map[string]interface{}{
						"kind":  "markdownContent",
						"value": "Use `os.ReadDir` to enumerate entries.",
					},
					map[string]interface{}{
						"kind":              "toolInvocationSerialized",
						"toolId":            "copilot_readFile",
						"isComplete":        true,
						"invocationMessage": "Read main.go",
					},
				},
			},
		},
	}
}

// CreateSnapshotFixture writes a session snapshot into the workspace's
// chatSessions directory
func CreateSnapshotFixture(t *testing.T, workspaceDir, sessionID string) string {
	t.Helper()
	return WriteSnapshotFixture(t, workspaceDir, sessionID, SnapshotSessionDoc(sessionID))
}

// WriteSnapshotFixture writes an arbitrary session document into the
// workspace's chatSessions directory
func WriteSnapshotFixture(t *testing.T, workspaceDir, sessionID string, doc map[string]interface{}) string {
	t.Helper()
	chatDir := filepath.Join(workspaceDir, "chatSessions")
	if err := os.MkdirAll(chatDir, 0755); err != nil {
		t.Fatalf("Failed to create chatSessions directory: %v", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Failed to marshal session document: %v", err)
	}
	path := filepath.Join(chatDir, sessionID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write session snapshot: %v", err)
	}
	return path
}

// CreateEditorLogFixture writes an editor append log that replays into a
// session with one user turn, one assistant turn, and a custom title
func CreateEditorLogFixture(t *testing.T, workspaceDir, sessionID string) string {
	t.Helper()
	chatDir := filepath.Join(workspaceDir, "chatSessions")
	if err := os.MkdirAll(chatDir, 0755); err != nil {
		t.Fatalf("Failed to create chatSessions directory: %v", err)
	}

	lines := []string{
		`{"kind":0,"v":{"sessionId":"` + sessionID + `","creationDate":"2024-03-14T10:00:00Z","requests":[]}}`,
		`{"kind":2,"k":["requests"],"v":[{"message":{"text":"Add a retry loop"},"response":[{"kind":"markdownContent","value":"Wrapped the call in a retry loop."}]}]}`,
		`{"kind":1,"k":["customTitle"],"v":"Retry loop"}`,
	}
	path := filepath.Join(chatDir, sessionID+".jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write editor log: %v", err)
	}
	return path
}

// CreateCLIEventsFixture creates a CLI session directory containing an
// event stream and the saved workspace.yaml metadata beside it
func CreateCLIEventsFixture(t *testing.T, baseDir, sessionID string) string {
	t.Helper()
	sessionDir := filepath.Join(baseDir, sessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		t.Fatalf("Failed to create session directory: %v", err)
	}

	lines := []string{
		`{"type":"session.start","data":{"sessionId":"` + sessionID + `","startTime":"2024-03-15T08:00:00Z","context":{"cwd":"/home/dev/project"}},"timestamp":"2024-03-15T08:00:00Z"}`,
		`{"type":"user.message","data":{"content":"Rename the config struct"},"timestamp":"2024-03-15T08:00:05Z"}`,
		`{"type":"assistant.message","data":{"content":"Renamed Config to Settings across the package."},"timestamp":"2024-03-15T08:00:12Z"}`,
	}
	eventsPath := filepath.Join(sessionDir, "events.jsonl")
	if err := os.WriteFile(eventsPath, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write events.jsonl: %v", err)
	}

	workspaceYAML := "id: " + sessionID + "\ncwd: /home/dev/project\nsummary: Rename config struct\n"
	if err := os.WriteFile(filepath.Join(sessionDir, "workspace.yaml"), []byte(workspaceYAML), 0644); err != nil {
		t.Fatalf("Failed to write workspace.yaml: %v", err)
	}

	return sessionDir
}

// CreateVSCDBFixture creates an editor state database whose ItemTable
// holds the given session documents as one array value under a chat
// sessions key
func CreateVSCDBFixture(t *testing.T, dbPath string, docs ...map[string]interface{}) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		t.Fatalf("Failed to create fixture directory: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS ItemTable (
		key TEXT PRIMARY KEY,
		value TEXT
	)`
	if _, err := db.Exec(createTableSQL); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	entries := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc)
	}
	value, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("Failed to marshal sessions value: %v", err)
	}

	insertSQL := "INSERT INTO ItemTable (key, value) VALUES (?, ?)"
	if _, err := db.Exec(insertSQL, "interactive.sessions", string(value)); err != nil {
		t.Fatalf("Failed to insert sessions value: %v", err)
	}
	if _, err := db.Exec(insertSQL, "workbench.activity.state", `{"viewlet":"workbench.view.explorer"}`); err != nil {
		t.Fatalf("Failed to insert unrelated value: %v", err)
	}
}

// CreateMockEditorRoot creates a full editor storage root with one
// workspace containing a snapshot session and a state database. Returns
// the workspaceStorage path
func CreateMockEditorRoot(t *testing.T) string {
	t.Helper()
	tmpDir := CreateTempDir(t)

	workspaceHash := "a1b2c3d4e5f60718"
	workspaceDir := CreateWorkspaceFixture(t, tmpDir, workspaceHash, "file:///home/dev/project")
	CreateSnapshotFixture(t, workspaceDir, "11111111-2222-3333-4444-555555555555")
	CreateVSCDBFixture(t, filepath.Join(workspaceDir, "state.vscdb"),
		SnapshotSessionDoc("66666666-7777-8888-9999-000000000000"))

	return filepath.Join(tmpDir, "workspaceStorage")
}

// CreateMockCLIRoot creates a CLI history root with one session
// directory. Returns the root path
func CreateMockCLIRoot(t *testing.T) string {
	t.Helper()
	tmpDir := CreateTempDir(t)
	CreateCLIEventsFixture(t, tmpDir, "cli-0001")
	return tmpDir
}
