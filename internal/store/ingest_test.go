package store

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/iksnae/copilot-archive/internal"
)

func TestCompressRoundTrip(t *testing.T) {
	raw := []byte(strings.Repeat(`{"requests":[{"message":{"text":"hello"}}]}`, 50))

	blob, err := compress(raw)
	if err != nil {
		t.Fatalf("compress() error = %v", err)
	}
	if len(blob) >= len(raw) {
		t.Errorf("blob = %d bytes, want smaller than %d", len(blob), len(raw))
	}

	back, err := decompress(blob)
	if err != nil {
		t.Fatalf("decompress() error = %v", err)
	}
	if !bytes.Equal(back, raw) {
		t.Error("round trip changed the bytes")
	}
}

func TestDecompress_Garbage(t *testing.T) {
	if _, err := decompress([]byte("not zlib")); err == nil {
		t.Error("decompress() of garbage should fail")
	}
}

func TestIngest_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := archivedSession("round-trip")

	added, err := s.Ingest(ctx, sess, []byte(`{"sessionId":"round-trip"}`), internal.FormSnapshot)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !added {
		t.Error("Ingest() added = false, want true for a new session")
	}

	got, err := s.GetSession(ctx, "round-trip")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.SessionID != sess.SessionID ||
		got.WorkspaceName != sess.WorkspaceName ||
		got.WorkspacePath != sess.WorkspacePath ||
		got.SourceKind != sess.SourceKind ||
		got.CreatedAt != sess.CreatedAt ||
		got.UpdatedAt != sess.UpdatedAt ||
		got.RequesterUsername != sess.RequesterUsername ||
		got.SourcePath != sess.SourcePath {
		t.Errorf("session metadata = %+v", got)
	}
	if got.SourceMtime != sess.SourceMtime || got.SourceSize != sess.SourceSize {
		t.Errorf("fingerprint = (%v, %v), want (%v, %v)",
			got.SourceMtime, got.SourceSize, sess.SourceMtime, sess.SourceSize)
	}

	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(got.Messages))
	}
	user, assistant := got.Messages[0], got.Messages[1]
	if user.Role != internal.RoleUser || user.Content != sess.Messages[0].Content {
		t.Errorf("user message = %+v", user)
	}
	if len(assistant.Blocks) != 2 || assistant.Blocks[1].Kind != internal.BlockToolInvocation {
		t.Errorf("blocks = %+v", assistant.Blocks)
	}
	if len(assistant.ToolInvocations) != 1 {
		t.Fatalf("tool invocations = %d, want 1", len(assistant.ToolInvocations))
	}
	tool := assistant.ToolInvocations[0]
	if tool.Name != "copilot_readFile" || tool.Input != `{"path":"main.go"}` ||
		tool.Result != "package main" || tool.Status != "completed" {
		t.Errorf("tool = %+v", tool)
	}
	if len(assistant.FileChanges) != 1 || assistant.FileChanges[0].Path != "/home/dev/project/main.go" {
		t.Errorf("file changes = %+v", assistant.FileChanges)
	}
	if len(assistant.CommandRuns) != 1 || assistant.CommandRuns[0].Command != "go test ./..." {
		t.Errorf("command runs = %+v", assistant.CommandRuns)
	}
}

func TestIngest_ReplacesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := archivedSession("replace-me")
	if _, err := s.Ingest(ctx, first, []byte(`{"v":1}`), internal.FormSnapshot); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	second := archivedSession("replace-me")
	second.CustomTitle = "Renamed"
	second.Messages = append(second.Messages, internal.Message{
		MessageIndex: 2,
		Role:         internal.RoleUser,
		Content:      "Thanks!",
	})

	added, err := s.Ingest(ctx, second, []byte(`{"v":2}`), internal.FormSnapshot)
	if err != nil {
		t.Fatalf("re-ingest error = %v", err)
	}
	if added {
		t.Error("Ingest() added = true, want false on replace")
	}

	got, err := s.GetSession(ctx, "replace-me")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.CustomTitle != "Renamed" || len(got.Messages) != 3 {
		t.Errorf("replacement not visible: title = %q, messages = %d", got.CustomTitle, len(got.Messages))
	}

	raw, form, err := s.RawSession(ctx, "replace-me")
	if err != nil {
		t.Fatalf("RawSession() error = %v", err)
	}
	if string(raw) != `{"v":2}` || form != string(internal.FormSnapshot) {
		t.Errorf("raw = %q form = %q", raw, form)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Sessions != 1 || stats.RawSessions != 1 {
		t.Errorf("duplicate rows after replace: %+v", stats)
	}
}

func TestIngest_NoID(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Ingest(context.Background(), &internal.Session{}, nil, internal.FormSnapshot); err == nil {
		t.Error("Ingest() of a session without an id should fail")
	}
	if _, err := s.Ingest(context.Background(), nil, nil, internal.FormSnapshot); err == nil {
		t.Error("Ingest() of a nil session should fail")
	}
}

func TestIngest_EmptyRawStored(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := archivedSession("no-raw")
	if _, err := s.Ingest(ctx, sess, nil, internal.FormImport); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	raw, _, err := s.RawSession(ctx, "no-raw")
	if err != nil {
		t.Fatalf("RawSession() error = %v", err)
	}
	if string(raw) != "{}" {
		t.Errorf("raw = %q, want placeholder document", raw)
	}
}

func TestCheckArtifact(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const path = "/store/chatSessions/abc.json"

	state, err := s.CheckArtifact(ctx, path, 100, 2048)
	if err != nil {
		t.Fatalf("CheckArtifact() error = %v", err)
	}
	if state != ArtifactNew {
		t.Errorf("state = %v, want ArtifactNew", state)
	}

	sess := archivedSession("abc")
	sess.SourcePath = path
	sess.SourceMtime = 100
	sess.SourceSize = 2048
	if _, err := s.Ingest(ctx, sess, []byte("{}"), internal.FormSnapshot); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	state, err = s.CheckArtifact(ctx, path, 100, 2048)
	if err != nil {
		t.Fatalf("CheckArtifact() error = %v", err)
	}
	if state != ArtifactUnchanged {
		t.Errorf("state = %v, want ArtifactUnchanged", state)
	}

	state, err = s.CheckArtifact(ctx, path, 200, 4096)
	if err != nil {
		t.Fatalf("CheckArtifact() error = %v", err)
	}
	if state != ArtifactChanged {
		t.Errorf("state = %v, want ArtifactChanged", state)
	}
}

func TestNeedsUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	needs, err := s.NeedsUpdate(ctx, "unseen", 100, 2048)
	if err != nil {
		t.Fatalf("NeedsUpdate() error = %v", err)
	}
	if !needs {
		t.Error("unseen session should need an update")
	}

	sess := archivedSession("seen")
	sess.SourceMtime = 100
	sess.SourceSize = 2048
	if _, err := s.Ingest(ctx, sess, []byte("{}"), internal.FormSnapshot); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	tests := []struct {
		name  string
		mtime float64
		size  int64
		want  bool
	}{
		{name: "same fingerprint", mtime: 100, size: 2048, want: false},
		{name: "newer mtime", mtime: 150, size: 2048, want: true},
		{name: "different size", mtime: 100, size: 4096, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			needs, err := s.NeedsUpdate(ctx, "seen", tt.mtime, tt.size)
			if err != nil {
				t.Fatalf("NeedsUpdate() error = %v", err)
			}
			if needs != tt.want {
				t.Errorf("NeedsUpdate() = %v, want %v", needs, tt.want)
			}
		})
	}
}
