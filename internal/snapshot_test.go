package internal

import (
	"context"
	"errors"
	"testing"
)

func snapshotArtifact(path string) Artifact {
	return Artifact{
		Path:      path,
		Kind:      SourceEditorStable,
		Form:      FormSnapshot,
		Workspace: WorkspaceInfo{Name: "project", Path: "/home/dev/project"},
		Mtime:     1710408360.5,
		Size:      512,
	}
}

func TestParseSnapshot_RequestsFormat(t *testing.T) {
	raw := []byte(`{
		"sessionId": "sess-1",
		"customTitle": "List files",
		"creationDate": "2024-03-14T09:26:00Z",
		"lastMessageDate": "2024-03-14T09:31:00Z",
		"requesterUsername": "octocat",
		"requests": [
			{
				"timestamp": "2024-03-14T09:26:00Z",
				"message": {"text": "How do I list files?"},
				"response": [
					{"kind": "markdownContent", "value": "Use os.ReadDir."},
					{
						"kind": "toolInvocationSerialized",
						"toolId": "copilot_searchCodebase",
						"isComplete": true,
						"invocationMessage": {"value": "Searched the codebase"}
					}
				]
			}
		]
	}`)

	parsed, stats, err := ParseSnapshot(context.Background(), snapshotArtifact("/x/sess-1.json"), raw)
	if err != nil {
		t.Fatalf("ParseSnapshot() error = %v", err)
	}
	if stats.SkippedItems != 0 {
		t.Errorf("SkippedItems = %d, want 0", stats.SkippedItems)
	}
	if len(parsed) != 1 {
		t.Fatalf("parsed = %d sessions, want 1", len(parsed))
	}

	sess := parsed[0].Session
	if sess.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want %q", sess.SessionID, "sess-1")
	}
	if sess.CustomTitle != "List files" {
		t.Errorf("CustomTitle = %q, want %q", sess.CustomTitle, "List files")
	}
	if sess.CreatedAt != "2024-03-14T09:26:00Z" {
		t.Errorf("CreatedAt = %q", sess.CreatedAt)
	}
	if sess.UpdatedAt != "2024-03-14T09:31:00Z" {
		t.Errorf("UpdatedAt = %q", sess.UpdatedAt)
	}
	if sess.RequesterUsername != "octocat" {
		t.Errorf("RequesterUsername = %q", sess.RequesterUsername)
	}
	if sess.WorkspaceName != "project" {
		t.Errorf("WorkspaceName = %q, want %q", sess.WorkspaceName, "project")
	}

	if len(sess.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(sess.Messages))
	}
	user, assistant := sess.Messages[0], sess.Messages[1]
	if user.Role != RoleUser || user.Content != "How do I list files?" {
		t.Errorf("user message = %+v", user)
	}
	if user.MessageIndex != 0 || assistant.MessageIndex != 1 {
		t.Errorf("indexes = %d, %d, want 0, 1", user.MessageIndex, assistant.MessageIndex)
	}
	if assistant.Role != RoleAssistant {
		t.Errorf("assistant role = %q", assistant.Role)
	}
	if assistant.Content != "Use os.ReadDir." {
		t.Errorf("assistant content = %q", assistant.Content)
	}

	if len(assistant.ToolInvocations) != 1 {
		t.Fatalf("tools = %d, want 1", len(assistant.ToolInvocations))
	}
	tool := assistant.ToolInvocations[0]
	if tool.Name != "copilot_searchCodebase" {
		t.Errorf("tool name = %q", tool.Name)
	}
	if tool.Status != "completed" {
		t.Errorf("tool status = %q, want completed", tool.Status)
	}
	if tool.InvocationMessage != "Searched the codebase" {
		t.Errorf("invocation message = %q", tool.InvocationMessage)
	}

	wantBlocks := []string{BlockText, BlockToolInvocation}
	if len(assistant.Blocks) != len(wantBlocks) {
		t.Fatalf("blocks = %+v, want kinds %v", assistant.Blocks, wantBlocks)
	}
	for i, kind := range wantBlocks {
		if assistant.Blocks[i].Kind != kind {
			t.Errorf("block %d kind = %q, want %q", i, assistant.Blocks[i].Kind, kind)
		}
	}
}

func TestParseSnapshot_StandardMessages(t *testing.T) {
	raw := []byte(`{
		"id": "sess-2",
		"messages": [
			{"role": "user", "content": "hello", "timestamp": "2024-01-01T00:00:00Z"},
			{"role": "copilot", "content": "hi there"},
			{"role": "human", "text": "still here"},
			{"role": "system", "content": "ignored"}
		]
	}`)

	parsed, stats, err := ParseSnapshot(context.Background(), snapshotArtifact("/x/sess-2.json"), raw)
	if err != nil {
		t.Fatalf("ParseSnapshot() error = %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("parsed = %d sessions, want 1", len(parsed))
	}

	sess := parsed[0].Session
	if sess.SessionID != "sess-2" {
		t.Errorf("SessionID = %q, want %q", sess.SessionID, "sess-2")
	}
	if len(sess.Messages) != 3 {
		t.Fatalf("messages = %d, want 3 (system skipped)", len(sess.Messages))
	}
	wantRoles := []string{RoleUser, RoleAssistant, RoleUser}
	for i, want := range wantRoles {
		if sess.Messages[i].Role != want {
			t.Errorf("message %d role = %q, want %q", i, sess.Messages[i].Role, want)
		}
	}

	if stats.SkippedItems != 1 {
		t.Errorf("SkippedItems = %d, want 1", stats.SkippedItems)
	}
	if len(stats.UnknownKinds) != 1 || stats.UnknownKinds[0] != "system" {
		t.Errorf("UnknownKinds = %v, want [system]", stats.UnknownKinds)
	}
}

func TestParseSnapshot_ContentFragments(t *testing.T) {
	raw := []byte(`{
		"sessionId": "sess-3",
		"messages": [
			{"role": "user", "content": [{"text": "part one"}, "part two"]}
		]
	}`)

	parsed, _, err := ParseSnapshot(context.Background(), snapshotArtifact("/x/sess-3.json"), raw)
	if err != nil {
		t.Fatalf("ParseSnapshot() error = %v", err)
	}
	got := parsed[0].Session.Messages[0].Content
	if got != "part one\npart two" {
		t.Errorf("content = %q, want %q", got, "part one\npart two")
	}
}

func TestParseSnapshot_IDFallsBackToFilename(t *testing.T) {
	raw := []byte(`{"messages": [{"role": "user", "content": "hi"}]}`)

	parsed, _, err := ParseSnapshot(context.Background(), snapshotArtifact("/x/chat-42.json"), raw)
	if err != nil {
		t.Fatalf("ParseSnapshot() error = %v", err)
	}
	if got := parsed[0].Session.SessionID; got != "chat-42" {
		t.Errorf("SessionID = %q, want %q", got, "chat-42")
	}
}

func TestParseSnapshot_NoMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty document", raw: `{}`},
		{name: "empty containers", raw: `{"requests": [], "messages": []}`},
		{name: "metadata only", raw: `{"sessionId": "x", "customTitle": "t"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, _, err := ParseSnapshot(context.Background(), snapshotArtifact("/x/empty.json"), []byte(tt.raw))
			if err != nil {
				t.Fatalf("ParseSnapshot() error = %v", err)
			}
			if len(parsed) != 0 {
				t.Errorf("parsed = %d sessions, want 0", len(parsed))
			}
		})
	}
}

func TestParseSnapshot_InvalidJSON(t *testing.T) {
	_, _, err := ParseSnapshot(context.Background(), snapshotArtifact("/x/bad.json"), []byte("{truncated"))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error = %v, want DecodeError", err)
	}
}

func TestParseSnapshot_ResponseItemKinds(t *testing.T) {
	raw := []byte(`{
		"sessionId": "sess-4",
		"requests": [
			{
				"message": {"text": "edit it"},
				"response": [
					{"kind": "thinking", "value": "considering", "generatedTitle": "Plan"},
					{"kind": "prepareToolInvocation", "value": "hidden"},
					{"kind": "progressTaskSerialized", "content": {"value": "Working on it"}},
					{"kind": "inlineReference", "inlineReference": {"path": "/src/main.go"}},
					{"kind": "codeblockUri", "uri": {"fsPath": "/src/main.go"}},
					{"kind": "mysteryKind"}
				]
			}
		]
	}`)

	parsed, stats, err := ParseSnapshot(context.Background(), snapshotArtifact("/x/sess-4.json"), raw)
	if err != nil {
		t.Fatalf("ParseSnapshot() error = %v", err)
	}
	assistant := parsed[0].Session.Messages[1]

	wantKinds := []string{BlockThinking, BlockStatus, BlockText, BlockToolInvocation}
	if len(assistant.Blocks) != len(wantKinds) {
		t.Fatalf("blocks = %+v, want %d of kinds %v", assistant.Blocks, len(wantKinds), wantKinds)
	}
	for i, want := range wantKinds {
		if assistant.Blocks[i].Kind != want {
			t.Errorf("block %d kind = %q, want %q", i, assistant.Blocks[i].Kind, want)
		}
	}
	if assistant.Blocks[0].Description != "Plan" {
		t.Errorf("thinking description = %q, want %q", assistant.Blocks[0].Description, "Plan")
	}
	if assistant.Blocks[2].Content != "`main.go`" {
		t.Errorf("inline reference = %q, want %q", assistant.Blocks[2].Content, "`main.go`")
	}
	if assistant.Blocks[3].Content != "Editing `main.go`" {
		t.Errorf("codeblock label = %q, want %q", assistant.Blocks[3].Content, "Editing `main.go`")
	}

	if len(stats.UnknownKinds) != 1 || stats.UnknownKinds[0] != "mysteryKind" {
		t.Errorf("UnknownKinds = %v, want [mysteryKind]", stats.UnknownKinds)
	}
}

func TestParseSnapshot_TextEditGroup(t *testing.T) {
	raw := []byte(`{
		"sessionId": "sess-5",
		"requests": [
			{
				"message": {"text": "add a line"},
				"response": [
					{
						"kind": "textEditGroup",
						"uri": {"fsPath": "/src/config.go"},
						"edits": [[{"range": {"startLineNumber": 3, "startColumn": 1, "endLineNumber": 3, "endColumn": 1}, "text": "added\n"}]]
					}
				]
			}
		]
	}`)

	parsed, _, err := ParseSnapshot(context.Background(), snapshotArtifact("/x/sess-5.json"), raw)
	if err != nil {
		t.Fatalf("ParseSnapshot() error = %v", err)
	}
	assistant := parsed[0].Session.Messages[1]

	if len(assistant.FileChanges) != 1 {
		t.Fatalf("file changes = %d, want 1", len(assistant.FileChanges))
	}
	change := assistant.FileChanges[0]
	if change.Path != "/src/config.go" {
		t.Errorf("path = %q, want %q", change.Path, "/src/config.go")
	}
	if change.Diff == "" {
		t.Error("diff should not be empty")
	}
	if len(assistant.Blocks) != 1 || assistant.Blocks[0].Content != "Edited `config.go`" {
		t.Errorf("blocks = %+v, want one Edited marker", assistant.Blocks)
	}
}

func TestParseSnapshot_LegacyArrays(t *testing.T) {
	raw := []byte(`{
		"sessionId": "sess-6",
		"requests": [
			{
				"message": {"text": "run the build"},
				"toolInvocations": [{"name": "build", "input": "make", "status": "success"}],
				"fileChanges": [{"path": "/src/a.go", "diff": "+ added"}],
				"commandRuns": [{"command": "make test", "status": "success"}]
			}
		]
	}`)

	parsed, _, err := ParseSnapshot(context.Background(), snapshotArtifact("/x/sess-6.json"), raw)
	if err != nil {
		t.Fatalf("ParseSnapshot() error = %v", err)
	}
	sess := parsed[0].Session
	if len(sess.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(sess.Messages))
	}
	assistant := sess.Messages[1]
	if len(assistant.ToolInvocations) != 1 || assistant.ToolInvocations[0].Name != "build" {
		t.Errorf("tools = %+v", assistant.ToolInvocations)
	}
	if len(assistant.FileChanges) != 1 || assistant.FileChanges[0].Path != "/src/a.go" {
		t.Errorf("file changes = %+v", assistant.FileChanges)
	}
	if len(assistant.CommandRuns) != 1 || assistant.CommandRuns[0].Command != "make test" {
		t.Errorf("command runs = %+v", assistant.CommandRuns)
	}
}

func TestToolFromSerialized(t *testing.T) {
	tests := []struct {
		name string
		item map[string]any
		want ToolInvocation
	}{
		{
			name: "terminal command",
			item: map[string]any{
				"toolId":     "run_in_terminal",
				"isComplete": true,
				"toolSpecificData": map[string]any{
					"kind":                  "terminal",
					"commandLine":           map[string]any{"toolEdited": "go test ./...", "original": "go test"},
					"terminalCommandOutput": map[string]any{"text": "ok"},
				},
			},
			want: ToolInvocation{Name: "run_in_terminal", Input: "go test ./...", Result: "ok", Status: "completed"},
		},
		{
			name: "file tool",
			item: map[string]any{
				"toolId": "copilot_readFile",
				"toolSpecificData": map[string]any{
					"file": map[string]any{"uri": map[string]any{"fsPath": "/src/main.go"}},
				},
			},
			want: ToolInvocation{Name: "copilot_readFile", Input: "/src/main.go", Status: "pending"},
		},
		{
			name: "result details input and output",
			item: map[string]any{
				"toolId":     "mcp_query",
				"isComplete": true,
				"resultDetails": map[string]any{
					"input":  map[string]any{"sql": "SELECT 1"},
					"output": []any{map[string]any{"value": "1"}},
				},
			},
			want: ToolInvocation{Name: "mcp_query", Input: `{"sql":"SELECT 1"}`, Result: "1", Status: "completed"},
		},
		{
			name: "empty item",
			item: map[string]any{},
			want: ToolInvocation{Name: "unknown", Status: "pending"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toolFromSerialized(tt.item)
			if got.Name != tt.want.Name || got.Input != tt.want.Input ||
				got.Result != tt.want.Result || got.Status != tt.want.Status {
				t.Errorf("toolFromSerialized() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
