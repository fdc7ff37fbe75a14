package internal

// SourceKind identifies which upstream tool and storage generation an
// archived session came from.
type SourceKind string

const (
	SourceEditorStable  SourceKind = "editor-stable"
	SourceEditorInsider SourceKind = "editor-insider"
	SourceCLICurrent    SourceKind = "cli-current"
	SourceCLILegacy     SourceKind = "cli-legacy"
)

// IsEditor reports whether the kind is a VS Code edition.
func (k SourceKind) IsEditor() bool {
	return k == SourceEditorStable || k == SourceEditorInsider
}

// IsCLI reports whether the kind is a Copilot CLI generation.
func (k SourceKind) IsCLI() bool {
	return k == SourceCLICurrent || k == SourceCLILegacy
}

// Block kinds stored in content_blocks.kind. Parsers map upstream
// spellings onto these via the tables in kinds.go.
const (
	BlockText           = "text"
	BlockThinking       = "thinking"
	BlockStatus         = "status"
	BlockSkill          = "skill"
	BlockIntent         = "intent"
	BlockAskUser        = "ask_user"
	BlockToolInvocation = "tool_invocation"
	BlockFileChange     = "file_change"
	BlockCommandRun     = "command_run"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session represents one normalized chat conversation.
type Session struct {
	SessionID         string     `json:"session_id" yaml:"session_id"`
	WorkspaceName     string     `json:"workspace_name,omitempty" yaml:"workspace_name,omitempty"`
	WorkspacePath     string     `json:"workspace_path,omitempty" yaml:"workspace_path,omitempty"`
	SourceKind        SourceKind `json:"source_kind" yaml:"source_kind"`
	CreatedAt         string     `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt         string     `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	CustomTitle       string     `json:"custom_title,omitempty" yaml:"custom_title,omitempty"`
	RequesterUsername string     `json:"requester_username,omitempty" yaml:"requester_username,omitempty"`
	ResponderUsername string     `json:"responder_username,omitempty" yaml:"responder_username,omitempty"`
	SourcePath        string     `json:"source_path,omitempty" yaml:"source_path,omitempty"`
	SourceMtime       float64    `json:"source_mtime,omitempty" yaml:"source_mtime,omitempty"`
	SourceSize        int64      `json:"source_size,omitempty" yaml:"source_size,omitempty"`
	Messages          []Message  `json:"messages" yaml:"messages"`
}

// Message represents one turn within a session. MessageIndex is the
// ordering key; timestamps are best-effort and may be missing.
type Message struct {
	MessageIndex    int              `json:"message_index" yaml:"message_index"`
	Role            string           `json:"role" yaml:"role"`
	Content         string           `json:"content" yaml:"content"`
	Timestamp       string           `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Blocks          []ContentBlock   `json:"blocks,omitempty" yaml:"blocks,omitempty"`
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty" yaml:"tool_invocations,omitempty"`
	FileChanges     []FileChange     `json:"file_changes,omitempty" yaml:"file_changes,omitempty"`
	CommandRuns     []CommandRun     `json:"command_runs,omitempty" yaml:"command_runs,omitempty"`
}

// ContentBlock is one typed fragment of a message, in source order.
type ContentBlock struct {
	Kind        string `json:"kind" yaml:"kind"`
	Content     string `json:"content" yaml:"content"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ToolInvocation is the structured record behind a tool_invocation block.
type ToolInvocation struct {
	Name              string `json:"name" yaml:"name"`
	Input             string `json:"input,omitempty" yaml:"input,omitempty"`
	Result            string `json:"result,omitempty" yaml:"result,omitempty"`
	Status            string `json:"status,omitempty" yaml:"status,omitempty"`
	StartTime         string `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime           string `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	SourceType        string `json:"source_type,omitempty" yaml:"source_type,omitempty"`
	InvocationMessage string `json:"invocation_message,omitempty" yaml:"invocation_message,omitempty"`
}

// FileChange is the structured record behind a file_change block.
type FileChange struct {
	Path        string `json:"path" yaml:"path"`
	Diff        string `json:"diff,omitempty" yaml:"diff,omitempty"`
	Content     string `json:"content,omitempty" yaml:"content,omitempty"`
	Explanation string `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	LanguageID  string `json:"language_id,omitempty" yaml:"language_id,omitempty"`
}

// CommandRun is the structured record behind a command_run block.
type CommandRun struct {
	Command   string `json:"command" yaml:"command"`
	Title     string `json:"title,omitempty" yaml:"title,omitempty"`
	Result    string `json:"result,omitempty" yaml:"result,omitempty"`
	Status    string `json:"status,omitempty" yaml:"status,omitempty"`
	Output    string `json:"output,omitempty" yaml:"output,omitempty"`
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// SessionSummary is the list_sessions projection: session metadata
// without message bodies.
type SessionSummary struct {
	SessionID     string     `json:"session_id" yaml:"session_id"`
	WorkspaceName string     `json:"workspace_name,omitempty" yaml:"workspace_name,omitempty"`
	SourceKind    SourceKind `json:"source_kind" yaml:"source_kind"`
	CustomTitle   string     `json:"custom_title,omitempty" yaml:"custom_title,omitempty"`
	CreatedAt     string     `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt     string     `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	MessageCount  int        `json:"message_count" yaml:"message_count"`
	FirstPrompt   string     `json:"first_prompt,omitempty" yaml:"first_prompt,omitempty"`
}

// Title returns the best display title for a summary.
func (s SessionSummary) Title() string {
	if s.CustomTitle != "" {
		return s.CustomTitle
	}
	if s.FirstPrompt != "" {
		return s.FirstPrompt
	}
	return s.SessionID
}
