package export

import (
	"testing"

	"github.com/iksnae/copilot-archive/internal"
)

// exportSession builds a fully populated session for exporter tests.
func exportSession() *internal.Session {
	return &internal.Session{
		SessionID:         "11111111-2222-3333-4444-555555555555",
		WorkspaceName:     "my-project",
		WorkspacePath:     "/home/dev/my-project",
		SourceKind:        internal.SourceEditorStable,
		CreatedAt:         "2024-03-14T09:26:00Z",
		UpdatedAt:         "2024-03-14T09:31:00Z",
		RequesterUsername: "octocat",
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
			},
		},
	}
}

func TestNewExporter(t *testing.T) {
	tests := []struct {
		format  string
		wantExt string
		wantErr bool
	}{
		{format: "json", wantExt: "json"},
		{format: "jsonl", wantExt: "jsonl"},
		{format: "md", wantExt: "md"},
		{format: "markdown", wantExt: "md"},
		{format: "yaml", wantExt: "yaml"},
		{format: "xml", wantErr: true},
		{format: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("format "+tt.format, func(t *testing.T) {
			exporter, err := NewExporter(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewExporter(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := exporter.Extension(); got != tt.wantExt {
				t.Errorf("Extension() = %q, want %q", got, tt.wantExt)
			}
		})
	}
}
