package internal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// cliEvent is one decoded line of a CLI event stream.
type cliEvent struct {
	Type      string
	Data      map[string]any
	Timestamp string
}

// cliEventHandlers routes each event type to its builder action. Types
// absent from the table are unknown and land in the skip report.
var cliEventHandlers = map[string]func(*cliSessionBuilder, cliEvent){
	"user.message":                (*cliSessionBuilder).onUserMessage,
	"system.message":              (*cliSessionBuilder).onSystemMessage,
	"assistant.message":           (*cliSessionBuilder).onAssistantMessage,
	"assistant.reasoning":         (*cliSessionBuilder).onReasoning,
	"assistant.turn_start":        (*cliSessionBuilder).onMetadata,
	"assistant.turn_end":          (*cliSessionBuilder).onMetadata,
	"tool.execution_start":        (*cliSessionBuilder).onToolStart,
	"tool.execution_complete":     (*cliSessionBuilder).onMetadata,
	"tool.user_requested":         (*cliSessionBuilder).onMetadata,
	"abort":                       (*cliSessionBuilder).onAbort,
	"session.start":               (*cliSessionBuilder).onMetadata,
	"session.info":                (*cliSessionBuilder).onMetadata,
	"session.error":               (*cliSessionBuilder).onSessionError,
	"session.model_change":        (*cliSessionBuilder).onModelChange,
	"session.truncation":          (*cliSessionBuilder).onMetadata,
	"session.compaction_start":    (*cliSessionBuilder).onMetadata,
	"session.compaction_complete": (*cliSessionBuilder).onCompaction,
	"skill.invoked":               (*cliSessionBuilder).onSkillInvoked,
}

// ParseCLIEvents folds a CLI JSONL event stream into one session. The
// stream is read in three passes: metadata, tool lifecycle joining, and
// the ordered message fold.
func ParseCLIEvents(ctx context.Context, art Artifact, raw []byte) ([]ParsedSession, ParseStats, error) {
	var stats ParseStats

	var events []cliEvent
	sc := lineScanner(bytes.NewReader(raw))
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, ok := decodeCLIEvent(line)
		if !ok {
			stats.note("")
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, stats, &DecodeError{Path: art.Path, Err: err}
	}
	if len(events) == 0 {
		return nil, stats, nil
	}

	meta := cliSessionMetadata(events, art)

	builder := &cliSessionBuilder{
		executions:      collectToolExecutions(events),
		pendingRequests: map[string]map[string]any{},
	}
	for _, ev := range events {
		handler, ok := cliEventHandlers[ev.Type]
		if !ok {
			stats.note(ev.Type)
			log.Debug().Str("type", ev.Type).Msg("unknown CLI event type")
			continue
		}
		handler(builder, ev)
	}
	builder.flush()

	if len(builder.messages) == 0 {
		return nil, stats, nil
	}

	sess := &Session{
		SessionID:         meta.sessionID,
		WorkspaceName:     meta.workspaceName,
		WorkspacePath:     meta.workspacePath,
		SourceKind:        art.Kind,
		CreatedAt:         meta.createdAt,
		UpdatedAt:         events[len(events)-1].Timestamp,
		CustomTitle:       meta.title(builder.messages),
		RequesterUsername: meta.requester,
		SourcePath:        art.Path,
		SourceMtime:       art.Mtime,
		SourceSize:        art.Size,
		Messages:          reindexMessages(builder.messages),
	}
	return []ParsedSession{{Session: sess, Raw: raw}}, stats, nil
}

func decodeCLIEvent(line []byte) (cliEvent, bool) {
	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		return cliEvent{}, false
	}
	typ := str(entry, "type")
	if typ == "" {
		return cliEvent{}, false
	}
	return cliEvent{
		Type:      typ,
		Data:      mapValue(entry["data"]),
		Timestamp: timestampString(entry["timestamp"]),
	}, true
}

// toolExecution joins the lifecycle events of one tool call id.
type toolExecution struct {
	start       cliEvent
	complete    cliEvent
	hasStart    bool
	hasComplete bool
}

func collectToolExecutions(events []cliEvent) map[string]*toolExecution {
	execs := map[string]*toolExecution{}
	get := func(id string) *toolExecution {
		e, ok := execs[id]
		if !ok {
			e = &toolExecution{}
			execs[id] = e
		}
		return e
	}
	for _, ev := range events {
		id := str(ev.Data, "toolCallId")
		if id == "" {
			continue
		}
		switch ev.Type {
		case "tool.execution_start":
			e := get(id)
			e.start, e.hasStart = ev, true
		case "tool.execution_complete":
			e := get(id)
			e.complete, e.hasComplete = ev, true
		}
	}
	return execs
}

// cliAccumState is the fold's position between message boundaries.
type cliAccumState int

const (
	cliAwaitingTurn cliAccumState = iota // nothing accumulating
	cliAccumulating                      // assistant content accruing
)

// cliSessionBuilder folds an ordered CLI event stream into messages.
// Everything the assistant produces between two user turns collapses
// into one assistant message with tool calls inlined, matching how the
// editor renders background sessions. flush is the only transition from
// cliAccumulating back to cliAwaitingTurn.
type cliSessionBuilder struct {
	executions map[string]*toolExecution

	state    cliAccumState
	messages []Message

	blocks    []rawBlock
	tools     []ToolInvocation
	commands  []CommandRun
	timestamp string

	pendingRequests map[string]map[string]any
}

// flush completes the accumulating assistant message, if any.
func (b *cliSessionBuilder) flush() {
	if b.state == cliAwaitingTurn {
		return
	}
	if msg, ok := finishMessage(RoleAssistant, b.timestamp, b.blocks, b.tools, nil, b.commands); ok {
		b.messages = append(b.messages, msg)
	}
	b.blocks = nil
	b.tools = nil
	b.commands = nil
	b.timestamp = ""
	b.state = cliAwaitingTurn
}

func (b *cliSessionBuilder) accumulate(block rawBlock) {
	b.blocks = append(b.blocks, block)
	b.state = cliAccumulating
}

func (b *cliSessionBuilder) onUserMessage(ev cliEvent) {
	b.flush()
	b.pendingRequests = map[string]map[string]any{}

	var blocks []rawBlock
	if content := str(ev.Data, "content"); content != "" {
		blocks = append(blocks, rawBlock{kind: BlockText, content: content})
	}
	if msg, ok := finishMessage(RoleUser, ev.Timestamp, blocks, nil, nil, nil); ok {
		b.messages = append(b.messages, msg)
	}
}

// onSystemMessage folds a system notice into the stream. Notices have no
// role of their own; they open the next assistant accumulation as a
// status block.
func (b *cliSessionBuilder) onSystemMessage(ev cliEvent) {
	b.flush()
	b.pendingRequests = map[string]map[string]any{}

	if content := str(ev.Data, "content"); content != "" {
		b.accumulate(rawBlock{kind: BlockStatus, content: content, description: "system"})
	}
}

func (b *cliSessionBuilder) onAssistantMessage(ev cliEvent) {
	if b.timestamp == "" {
		b.timestamp = ev.Timestamp
	}
	if content := strings.TrimSpace(str(ev.Data, "content")); content != "" {
		b.accumulate(rawBlock{kind: BlockText, content: content})
	}
	for _, r := range listValue(ev.Data["toolRequests"]) {
		req := mapValue(r)
		if id := str(req, "toolCallId"); id != "" {
			b.pendingRequests[id] = req
		}
	}
}

func (b *cliSessionBuilder) onToolStart(ev cliEvent) {
	id := str(ev.Data, "toolCallId")
	name := str(ev.Data, "toolName")
	if name == "" {
		name = "unknown"
	}
	args := mapValue(ev.Data["arguments"])

	// The paired request often carries the arguments the start event
	// omits.
	if req := b.pendingRequests[id]; req != nil {
		if len(args) == 0 {
			args = mapValue(req["arguments"])
		}
		if name == "unknown" {
			if n := str(req, "name"); n != "" {
				name = n
			}
		}
	}
	b.addToolInline(id, name, args)
}

func (b *cliSessionBuilder) onAbort(ev cliEvent) {
	reason := str(ev.Data, "reason")
	if reason == "" {
		reason = "unknown"
	}
	b.accumulate(rawBlock{kind: BlockStatus, content: "Aborted: " + reason, description: "abort"})
}

func (b *cliSessionBuilder) onSessionError(ev cliEvent) {
	content := str(ev.Data, "message")
	if content == "" {
		content = str(ev.Data, "errorType")
	}
	if content == "" {
		content = "unknown"
	}
	b.accumulate(rawBlock{kind: BlockStatus, content: "Error: " + content, description: "error"})
}

func (b *cliSessionBuilder) onModelChange(ev cliEvent) {
	model := str(ev.Data, "newModel")
	if model == "" {
		model = "unknown"
	}
	b.accumulate(rawBlock{kind: BlockStatus, content: "Switched to " + model, description: "model-change"})
}

func (b *cliSessionBuilder) onReasoning(ev cliEvent) {
	if content := strings.TrimSpace(str(ev.Data, "content")); content != "" {
		b.accumulate(rawBlock{kind: BlockThinking, content: content, description: "reasoning"})
	}
}

func (b *cliSessionBuilder) onSkillInvoked(ev cliEvent) {
	name := str(ev.Data, "name")
	if name == "" {
		name = "unknown"
	}
	b.accumulate(rawBlock{
		kind:        BlockSkill,
		content:     "Loaded skill: " + name,
		description: frontmatterDescription(str(ev.Data, "content")),
	})
}

func (b *cliSessionBuilder) onCompaction(ev cliEvent) {
	overview := compactionOverview(str(ev.Data, "summaryContent"))
	if overview == "" {
		n, _ := numValue(ev.Data, "checkpointNumber")
		overview = fmt.Sprintf("Session compacted to checkpoint %d", n)
	}
	b.accumulate(rawBlock{kind: BlockStatus, content: overview, description: "compaction"})
}

// onMetadata covers event types consumed by the metadata and lifecycle
// passes, plus pure boundary markers. Turn boundaries deliberately do
// not flush; all assistant turns between user messages are one message.
func (b *cliSessionBuilder) onMetadata(cliEvent) {}

// addToolInline converts one tool call into inline blocks and records.
// Meta tools become their own block kinds, shell tools become command
// runs, and the internal read-pump tools are dropped.
func (b *cliSessionBuilder) addToolInline(id, name string, args map[string]any) {
	switch name {
	case "report_intent":
		if text := firstString(args, "intent", "description"); text != "" {
			b.accumulate(rawBlock{kind: BlockIntent, content: text})
		}
		return
	case "skill":
		if skillName := firstString(args, "name", "skill"); skillName != "" {
			b.accumulate(rawBlock{kind: BlockSkill, content: skillName})
		}
		return
	case "ask_user":
		if block, ok := b.askUserBlock(id, args); ok {
			b.accumulate(block)
		}
		return
	}
	if internalTools[name] {
		return
	}

	inv, cmd, isCommand := b.buildToolInvocation(id, name, args)
	if isCommand {
		display := cmd.Title
		if len(display) > 60 {
			display = display[:57] + "..."
		}
		if cmd.Command != "" {
			display = "$ " + cmd.Command
		}
		b.accumulate(rawBlock{kind: BlockToolInvocation, content: display, description: cmd.Title})
		b.commands = append(b.commands, cmd)
		return
	}

	display := inv.InvocationMessage
	if display == "" {
		display = inv.Name
	}
	b.accumulate(rawBlock{kind: BlockToolInvocation, content: display, description: inv.Name})
	b.tools = append(b.tools, inv)
}

// buildToolInvocation resolves one tool call against its execution
// lifecycle. Shell tools yield a CommandRun instead of a ToolInvocation.
func (b *cliSessionBuilder) buildToolInvocation(id, name string, args map[string]any) (ToolInvocation, CommandRun, bool) {
	var result, status string
	exec := b.executions[id]
	if exec != nil && exec.hasComplete {
		data := exec.complete.Data
		if boolValue(data, "success") {
			status = "success"
		} else {
			status = "error"
		}
		if resObj := mapValue(data["result"]); resObj != nil {
			result = str(resObj, "content")
		} else {
			result = stringify(data["result"])
		}
	}

	description := ""
	if exec != nil && exec.hasStart {
		description = str(mapValue(exec.start.Data["arguments"]), "description")
	}
	if description == "" {
		description = str(args, "description")
	}

	if shellTools[name] {
		return ToolInvocation{}, CommandRun{
			Command: str(args, "command"),
			Title:   description,
			Result:  result,
			Status:  status,
			Output:  result,
		}, true
	}

	var input string
	if len(args) > 0 {
		if encoded, err := json.Marshal(args); err == nil {
			input = string(encoded)
		} else {
			input = stringify(args)
		}
	}
	return ToolInvocation{
		Name:              name,
		Input:             input,
		Result:            result,
		Status:            status,
		InvocationMessage: FormatToolDisplay(name, args, description),
	}, CommandRun{}, false
}

// askUserBlock renders a question put to the user with its options and,
// when the execution completed, the chosen answer.
func (b *cliSessionBuilder) askUserBlock(id string, args map[string]any) (rawBlock, bool) {
	question := str(args, "question")
	if question == "" {
		return rawBlock{}, false
	}
	var sb strings.Builder
	sb.WriteString(question)

	if choices := listValue(args["choices"]); len(choices) > 0 {
		limit := len(choices)
		if limit > 5 {
			limit = 5
		}
		shown := make([]string, 0, limit)
		for _, c := range choices[:limit] {
			shown = append(shown, stringify(c))
		}
		text := strings.Join(shown, ", ")
		if len(choices) > 5 {
			text += fmt.Sprintf(", ... (+%d more)", len(choices)-5)
		}
		sb.WriteString("\n   Options: " + text)
	}

	if exec := b.executions[id]; exec != nil && exec.hasComplete {
		data := exec.complete.Data
		if boolValue(data, "success") {
			var answer string
			if resObj := mapValue(data["result"]); resObj != nil {
				answer = str(resObj, "content")
			} else {
				answer = stringify(data["result"])
			}
			answer = strings.TrimPrefix(answer, "User responded: ")
			if answer != "" {
				sb.WriteString("\n   Answer: " + answer)
			}
		} else {
			sb.WriteString("\n   Skipped")
		}
	}
	return rawBlock{kind: BlockAskUser, content: sb.String(), description: "user-input"}, true
}

// cliMetadata is what the pre-pass extracts before the message fold.
type cliMetadata struct {
	sessionID     string
	createdAt     string
	workspacePath string
	workspaceName string
	requester     string
	summary       string
}

// cliSessionMetadata extracts session identity from the first
// session.start, workspace and login details from session.info, and the
// saved summary from the workspace.yaml beside the stream.
func cliSessionMetadata(events []cliEvent, art Artifact) cliMetadata {
	var meta cliMetadata

	for _, ev := range events {
		if ev.Type != "session.start" {
			continue
		}
		meta.sessionID = str(ev.Data, "sessionId")
		meta.createdAt = str(ev.Data, "startTime")
		if meta.createdAt == "" {
			meta.createdAt = ev.Timestamp
		}
		startContext := mapValue(ev.Data["context"])
		meta.workspacePath = firstString(startContext, "cwd", "gitRoot")
		break
	}
	if meta.sessionID == "" {
		meta.sessionID = fileStem(art.Path)
	}

	for _, ev := range events {
		if ev.Type != "session.info" {
			continue
		}
		message := str(ev.Data, "message")
		switch str(ev.Data, "infoType") {
		case "folder_trust":
			if meta.workspacePath == "" {
				meta.workspacePath = trustedFolder(message)
			}
		case "authentication":
			if meta.requester == "" {
				meta.requester = loginUser(message)
			}
		}
	}

	if meta.workspacePath != "" {
		meta.workspaceName = shortenPath(strings.TrimRight(meta.workspacePath, `/\`))
	}

	meta.summary = workspaceYAMLSummary(filepath.Dir(art.Path))
	return meta
}

// title prefers the saved summary, then the first intent block.
func (m cliMetadata) title(messages []Message) string {
	if m.summary != "" {
		return m.summary
	}
	for _, msg := range messages {
		for _, block := range msg.Blocks {
			if block.Kind == BlockIntent && block.Content != "" {
				return block.Content
			}
		}
	}
	return ""
}

// trustedFolder parses "Folder <path> has been added to trusted folders."
func trustedFolder(message string) string {
	if !strings.HasPrefix(message, "Folder ") {
		return ""
	}
	idx := strings.Index(message, " has been added")
	if idx < 0 {
		return ""
	}
	return message[len("Folder "):idx]
}

// loginUser parses "Logged in with gh as user: <name>".
func loginUser(message string) string {
	const marker = "as user: "
	idx := strings.LastIndex(message, marker)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(message[idx+len(marker):])
}

// cliWorkspaceMeta is the subset of the CLI's workspace.yaml used here.
type cliWorkspaceMeta struct {
	ID      string `yaml:"id"`
	Cwd     string `yaml:"cwd"`
	Summary string `yaml:"summary"`
}

func workspaceYAMLSummary(dir string) string {
	raw, err := os.ReadFile(filepath.Join(dir, "workspace.yaml"))
	if err != nil {
		return ""
	}
	var meta cliWorkspaceMeta
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("unreadable workspace.yaml")
		return ""
	}
	return strings.TrimSpace(meta.Summary)
}

// frontmatterDescription pulls the description line out of a skill
// file's YAML frontmatter.
func frontmatterDescription(content string) string {
	if !strings.Contains(content, "description:") {
		return ""
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "description:") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "description:"))
		}
	}
	return ""
}

// compactionOverview extracts the overview section of a compaction
// summary, truncated for display.
func compactionOverview(summary string) string {
	start := strings.Index(summary, "<overview>")
	if start < 0 {
		return ""
	}
	rest := summary[start+len("<overview>"):]
	end := strings.Index(rest, "</overview>")
	if end < 0 {
		return ""
	}
	overview := strings.TrimSpace(rest[:end])
	if len(overview) > 200 {
		overview = overview[:197] + "..."
	}
	return overview
}
