package internal

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/iksnae/copilot-archive/testutil"
)

func TestParseStatsNote(t *testing.T) {
	var stats ParseStats

	stats.note("toolInvocation")
	stats.note("toolInvocation")
	stats.note("undoStop")
	stats.note("")

	if stats.SkippedItems != 4 {
		t.Errorf("SkippedItems = %d, want 4", stats.SkippedItems)
	}
	want := []string{"toolInvocation", "undoStop"}
	if !reflect.DeepEqual(stats.UnknownKinds, want) {
		t.Errorf("UnknownKinds = %v, want %v", stats.UnknownKinds, want)
	}
}

func TestParseRaw_Dispatch(t *testing.T) {
	snapshotDoc := `{"sessionId":"s1","requests":[{"message":{"text":"hi"},"response":[{"kind":"markdownContent","value":"hello"}]}]}`
	editorLog := strings.Join([]string{
		`{"kind":0,"v":{"sessionId":"s2","requests":[]}}`,
		`{"kind":2,"k":["requests"],"v":[{"message":{"text":"hi"},"response":[{"kind":"markdownContent","value":"hello"}]}]}`,
	}, "\n")
	cliEvents := strings.Join([]string{
		`{"type":"session.start","timestamp":"2024-03-15T08:00:00Z","data":{"sessionId":"s3"}}`,
		`{"type":"user.message","timestamp":"2024-03-15T08:00:01Z","data":{"content":"hi"}}`,
		`{"type":"assistant.message","timestamp":"2024-03-15T08:00:02Z","data":{"content":"hello"}}`,
	}, "\n")
	imported := `{"session_id":"s4","source_kind":"cli-copilot","messages":[{"role":"user","content":"hi"}]}`

	tests := []struct {
		name   string
		form   ArtifactForm
		raw    string
		wantID string
	}{
		{name: "snapshot", form: FormSnapshot, raw: snapshotDoc, wantID: "s1"},
		{name: "state database entry", form: FormVSCDB, raw: snapshotDoc, wantID: "s1"},
		{name: "editor log", form: FormEditorLog, raw: editorLog, wantID: "s2"},
		{name: "cli events", form: FormCLIEvents, raw: cliEvents, wantID: "s3"},
		{name: "imported document", form: FormImport, raw: imported, wantID: "s4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art := Artifact{Path: "/store/session.json", Kind: SourceEditorStable, Form: tt.form}
			parsed, _, err := ParseRaw(context.Background(), art, []byte(tt.raw))
			if err != nil {
				t.Fatalf("ParseRaw() error = %v", err)
			}
			if len(parsed) != 1 {
				t.Fatalf("sessions = %d, want 1", len(parsed))
			}
			if parsed[0].Session.SessionID != tt.wantID {
				t.Errorf("SessionID = %q, want %q", parsed[0].Session.SessionID, tt.wantID)
			}
			if len(parsed[0].Session.Messages) == 0 {
				t.Error("session has no messages")
			}
		})
	}
}

func TestParseRaw_UnknownForm(t *testing.T) {
	art := Artifact{Path: "/store/blob.bin", Form: ArtifactForm("holographic")}

	_, _, err := ParseRaw(context.Background(), art, []byte("{}"))

	var unsupported *UnsupportedArtifactError
	if !errors.As(err, &unsupported) {
		t.Fatalf("error = %v, want *UnsupportedArtifactError", err)
	}
	if unsupported.Path != "/store/blob.bin" {
		t.Errorf("Path = %q", unsupported.Path)
	}
}

func TestParseImportedSession(t *testing.T) {
	raw := []byte(`{
		"session_id": "imported-1",
		"workspace_name": "project",
		"source_kind": "editor-stable",
		"custom_title": "Retry loop",
		"messages": [
			{"message_index": 7, "role": "user", "content": "hi"},
			{"message_index": 9, "role": "assistant", "content": "hello"}
		]
	}`)
	art := Artifact{Path: "/exports/imported-1.json", Form: FormImport}

	parsed, stats, err := ParseRaw(context.Background(), art, raw)
	if err != nil {
		t.Fatalf("ParseRaw() error = %v", err)
	}
	if stats.SkippedItems != 0 {
		t.Errorf("SkippedItems = %d, want 0", stats.SkippedItems)
	}
	if len(parsed) != 1 {
		t.Fatalf("sessions = %d, want 1", len(parsed))
	}

	sess := parsed[0].Session
	if sess.SessionID != "imported-1" || sess.WorkspaceName != "project" || sess.CustomTitle != "Retry loop" {
		t.Errorf("session metadata = %+v", sess)
	}
	for i, msg := range sess.Messages {
		if msg.MessageIndex != i {
			t.Errorf("message %d index = %d", i, msg.MessageIndex)
		}
	}
	if !bytes.Equal(parsed[0].Raw, raw) {
		t.Error("Raw should be the decoded input bytes")
	}
}

func TestParseImportedSession_IDFromFilename(t *testing.T) {
	art := Artifact{Path: "/exports/recovered-session.json", Form: FormImport}

	parsed, _, err := ParseRaw(context.Background(), art, []byte(`{"messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatalf("ParseRaw() error = %v", err)
	}
	if got := parsed[0].Session.SessionID; got != "recovered-session" {
		t.Errorf("SessionID = %q, want %q", got, "recovered-session")
	}
}

func TestParseImportedSession_InvalidJSON(t *testing.T) {
	art := Artifact{Path: "/exports/broken.json", Form: FormImport}

	_, _, err := ParseRaw(context.Background(), art, []byte("not json"))

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
}

func TestParseArtifact(t *testing.T) {
	tmpDir := testutil.CreateTempDir(t)
	path := testutil.CreateSnapshotFixture(t, tmpDir, "on-disk-session")
	art := Artifact{Path: path, Kind: SourceEditorStable, Form: FormSnapshot}

	parsed, _, err := ParseArtifact(context.Background(), art)
	if err != nil {
		t.Fatalf("ParseArtifact() error = %v", err)
	}
	if len(parsed) != 1 || parsed[0].Session.SessionID != "on-disk-session" {
		t.Fatalf("parsed = %+v", parsed)
	}
}

func TestParseArtifact_MissingFile(t *testing.T) {
	tmpDir := testutil.CreateTempDir(t)
	art := Artifact{Path: filepath.Join(tmpDir, "gone.json"), Form: FormSnapshot}

	_, _, err := ParseArtifact(context.Background(), art)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
}

func TestParseArtifact_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := ParseArtifact(ctx, Artifact{Path: "/x.json", Form: FormSnapshot})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
