package internal

import (
	"context"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// snapshotContainers are the top-level keys that may hold the message
// array, in precedence order. Empty arrays are passed over so documents
// that write several of them still resolve.
var snapshotContainers = [...]string{"requests", "messages", "exchanges", "history"}

// ParseSnapshot decodes one editor full-session JSON document into a
// single session. A document with no extractable messages yields no
// sessions and no error.
func ParseSnapshot(ctx context.Context, art Artifact, raw []byte) ([]ParsedSession, ParseStats, error) {
	var stats ParseStats
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, stats, &DecodeError{Path: art.Path, Err: err}
	}

	sess := sessionFromSnapshot(doc, art, fileStem(art.Path), &stats)
	if sess == nil {
		return nil, stats, nil
	}
	return []ParsedSession{{Session: sess, Raw: raw}}, stats, nil
}

// sessionFromSnapshot builds a session from a decoded snapshot document.
// Shared by the JSON file parser and the state-database parser;
// fallbackID is used when the document carries no id of its own.
func sessionFromSnapshot(doc map[string]any, art Artifact, fallbackID string, stats *ParseStats) *Session {
	var entries []any
	for _, key := range snapshotContainers {
		if vals := listValue(doc[key]); len(vals) > 0 {
			entries = vals
			break
		}
	}

	var messages []Message
	for _, entry := range entries {
		m := mapValue(entry)
		if m == nil {
			stats.note("")
			continue
		}
		if inner := mapValue(m["message"]); inner != nil {
			messages = append(messages, requestMessages(m, inner, stats)...)
		} else if msg, ok := standardMessage(m, stats); ok {
			messages = append(messages, msg)
		}
	}
	if len(messages) == 0 {
		return nil
	}

	sessionID := firstValue(doc, "sessionId", "id")
	if sessionID == "" {
		sessionID = fallbackID
	}

	return &Session{
		SessionID:         sessionID,
		WorkspaceName:     art.Workspace.Name,
		WorkspacePath:     art.Workspace.Path,
		SourceKind:        art.Kind,
		CreatedAt:         timestampString(firstRaw(doc, "createdAt", "created", "creationDate")),
		UpdatedAt:         timestampString(firstRaw(doc, "updatedAt", "lastModified", "lastMessageDate")),
		CustomTitle:       str(doc, "customTitle"),
		RequesterUsername: str(doc, "requesterUsername"),
		ResponderUsername: str(doc, "responderUsername"),
		SourcePath:        art.Path,
		SourceMtime:       art.Mtime,
		SourceSize:        art.Size,
		Messages:          reindexMessages(messages),
	}
}

// requestMessages handles one entry of the requests format: the user
// prompt under message.text and the assistant turn under response[].
func requestMessages(entry, inner map[string]any, stats *ParseStats) []Message {
	var out []Message
	if text := str(inner, "text"); text != "" {
		blocks := []rawBlock{{kind: BlockText, content: text}}
		if msg, ok := finishMessage(RoleUser, timestampString(entry["timestamp"]), blocks, nil, nil, nil); ok {
			out = append(out, msg)
		}
	}

	blocks, tools, changes, commands := walkResponseItems(listValue(entry["response"]), stats)
	tools = append(tools, legacyToolInvocations(listValue(entry["toolInvocations"]))...)
	changes = append(changes, legacyFileChanges(listValue(entry["fileChanges"]))...)
	commands = append(commands, legacyCommandRuns(listValue(entry["commandRuns"]))...)
	if msg, ok := finishMessage(RoleAssistant, "", blocks, tools, changes, commands); ok {
		out = append(out, msg)
	}
	return out
}

// standardMessage handles the plain role/content message shape used by
// older session files.
func standardMessage(m map[string]any, stats *ParseStats) (Message, bool) {
	role, ok := normalizeRole(firstString(m, "role", "type"))
	if !ok {
		stats.note(firstString(m, "role", "type"))
		log.Debug().Str("role", firstString(m, "role", "type")).Msg("skipping message with unrecognized role")
		return Message{}, false
	}

	var blocks []rawBlock
	if content := messageContent(m); content != "" {
		blocks = append(blocks, rawBlock{kind: BlockText, content: content})
	}
	return finishMessage(
		role,
		timestampString(firstRaw(m, "timestamp", "createdAt")),
		blocks,
		legacyToolInvocations(listValue(m["toolInvocations"])),
		legacyFileChanges(listValue(firstRaw(m, "fileChanges", "fileEdits"))),
		legacyCommandRuns(listValue(m["commandRuns"])),
	)
}

func normalizeRole(role string) (string, bool) {
	switch role {
	case "user", "human":
		return RoleUser, true
	case "assistant", "copilot", "ai":
		return RoleAssistant, true
	}
	return "", false
}

// messageContent extracts the text payload, which may be a plain string
// or a list of fragments.
func messageContent(m map[string]any) string {
	v := firstRaw(m, "content", "text", "message")
	parts := listValue(v)
	if parts == nil {
		return stringify(v)
	}
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		text := stringify(part)
		if pm := mapValue(part); pm != nil {
			if s := str(pm, "text"); s != "" {
				text = s
			}
		}
		texts = append(texts, text)
	}
	return strings.Join(texts, "\n")
}

// walkResponseItems converts one response array into raw blocks plus the
// structured records riding alongside them. Item kinds route through
// snapshotItemRules; unknown kinds that carry a value degrade to text.
func walkResponseItems(items []any, stats *ParseStats) ([]rawBlock, []ToolInvocation, []FileChange, []CommandRun) {
	// File reads earlier in the same response feed diff generation for
	// the edits that follow.
	contents := map[string]string{}
	for _, it := range items {
		item := mapValue(it)
		if item == nil || str(item, "kind") != "toolInvocationSerialized" {
			continue
		}
		if path, content, ok := fileContentFromTool(item); ok {
			contents[path] = content
		}
	}

	var blocks []rawBlock
	var tools []ToolInvocation
	var changes []FileChange
	var commands []CommandRun

	for _, it := range items {
		item := mapValue(it)
		if item == nil {
			stats.note("")
			continue
		}
		kind := str(item, "kind")
		rule, known := snapshotItemRules[kind]

		switch {
		case known && rule.Drop:
			// internal marker, nothing user-visible

		case kind == "toolInvocationSerialized":
			inv := toolFromSerialized(item)
			tools = append(tools, inv)
			if inv.InvocationMessage != "" {
				blocks = append(blocks, rawBlock{kind: rule.Block, content: inv.InvocationMessage})
			}

		case kind == "inlineReference":
			if name := inlineReferenceName(item); name != "" {
				blocks = append(blocks, rawBlock{kind: rule.Block, content: name})
			}

		case kind == "textEditGroup":
			if text := editGroupText(item, rule.Label); text != "" {
				blocks = append(blocks, rawBlock{kind: rule.Block, content: text})
			}
			if fc, ok := fileChangeFromEditGroup(item, contents); ok {
				changes = append(changes, fc)
			}

		case known && rule.Label != "": // notebookEditGroup, codeblockUri
			if text := editGroupText(item, rule.Label); text != "" {
				blocks = append(blocks, rawBlock{kind: rule.Block, content: text})
			}

		case kind == "progressTaskSerialized":
			if text := strings.TrimSpace(progressText(item)); text != "" {
				blocks = append(blocks, rawBlock{kind: rule.Block, content: text, description: "progress"})
			}

		case truthy(item["value"]):
			block := rawBlock{kind: BlockText, content: unwrapValue(item["value"])}
			if known {
				block.kind = rule.Block
			}
			if kind == "thinking" {
				block.description = str(item, "generatedTitle")
			}
			blocks = append(blocks, block)

		default:
			stats.note(kind)
			log.Debug().Str("kind", kind).Msg("unhandled response item kind")
		}

		// Legacy nested arrays can ride on any item shape.
		tools = append(tools, legacyToolInvocations(listValue(item["toolInvocations"]))...)
		for _, key := range [...]string{"fileChanges", "fileEdits", "files"} {
			changes = append(changes, legacyFileChanges(listValue(item[key]))...)
		}
		commands = append(commands, legacyCommandRuns(listValue(item["commandRuns"]))...)
	}

	return blocks, tools, changes, commands
}

// toolFromSerialized extracts a ToolInvocation from one
// toolInvocationSerialized item. The input location varies by tool
// family: terminal tools carry commandLine, file tools carry file.uri,
// MCP tools carry resultDetails.input and output.
func toolFromSerialized(item map[string]any) ToolInvocation {
	name := str(item, "toolId")
	if name == "" {
		name = "unknown"
	}

	toolData := mapValue(item["toolSpecificData"])
	resultDetails := mapValue(item["resultDetails"])

	var input string
	if cmdLine, ok := toolData["commandLine"]; ok {
		if cm := mapValue(cmdLine); cm != nil {
			input = firstString(cm, "toolEdited", "original")
		} else {
			input = stringify(cmdLine)
		}
	} else if file := mapValue(toolData["file"]); file != nil {
		input = uriPath(file["uri"])
	} else if v, ok := toolData["input"]; ok {
		input = stringify(v)
	}
	if input == "" {
		input = stringify(resultDetails["input"])
	}

	var outputs []string
	for _, out := range listValue(resultDetails["output"]) {
		if v := unwrapValue(mapValue(out)["value"]); v != "" {
			outputs = append(outputs, v)
		}
	}
	result := strings.Join(outputs, "\n")
	if result == "" && str(toolData, "kind") == "terminal" {
		result = str(mapValue(toolData["terminalCommandOutput"]), "text")
	}

	status := "pending"
	if boolValue(item, "isComplete") {
		status = "completed"
	}

	return ToolInvocation{
		Name:              name,
		Input:             input,
		Result:            result,
		Status:            status,
		SourceType:        str(mapValue(item["source"]), "type"),
		InvocationMessage: unwrapValue(item["invocationMessage"]),
	}
}

// inlineReferenceName renders an inline file reference as backticked
// text the way the editor displays it. The name may sit on the item, on
// the nested reference, or be derived from the referenced path.
func inlineReferenceName(item map[string]any) string {
	name := str(item, "name")
	if ref := mapValue(item["inlineReference"]); ref != nil {
		if name == "" {
			name = str(ref, "name")
		}
		if name == "" {
			if path := firstString(ref, "path", "fsPath", "external"); path != "" {
				name = shortenPath(path)
			}
		}
	}
	if name == "" {
		return ""
	}
	return "`" + name + "`"
}

// editGroupText renders a file-edit marker such as "Edited `main.go`".
func editGroupText(item map[string]any, label string) string {
	filename := uriFilename(item["uri"])
	if filename == "" {
		return ""
	}
	return label + " `" + filename + "`"
}

func progressText(item map[string]any) string {
	if c := mapValue(item["content"]); c != nil {
		return str(c, "value")
	}
	return stringify(item["content"])
}

func legacyToolInvocations(raw []any) []ToolInvocation {
	var out []ToolInvocation
	for _, v := range raw {
		inv := mapValue(v)
		if inv == nil {
			continue
		}
		name := firstString(inv, "name", "toolName")
		if name == "" {
			name = "unknown"
		}
		out = append(out, ToolInvocation{
			Name:      name,
			Input:     firstValue(inv, "input", "arguments"),
			Result:    firstValue(inv, "result", "output"),
			Status:    str(inv, "status"),
			StartTime: timestampString(inv["startTime"]),
			EndTime:   timestampString(inv["endTime"]),
		})
	}
	return out
}

func legacyFileChanges(raw []any) []FileChange {
	var out []FileChange
	for _, v := range raw {
		change := mapValue(v)
		if change == nil {
			continue
		}
		path := str(change, "path")
		if path == "" {
			path = uriPath(change["uri"])
		}
		out = append(out, FileChange{
			Path:        strings.TrimPrefix(path, "file://"),
			Diff:        str(change, "diff"),
			Content:     str(change, "content"),
			Explanation: str(change, "explanation"),
			LanguageID:  str(change, "languageId"),
		})
	}
	return out
}

func legacyCommandRuns(raw []any) []CommandRun {
	var out []CommandRun
	for _, v := range raw {
		cmd := mapValue(v)
		if cmd == nil {
			continue
		}
		command := str(cmd, "command")
		if command == "" {
			command = "unknown"
		}
		out = append(out, CommandRun{
			Command:   command,
			Title:     str(cmd, "title"),
			Result:    stringify(cmd["result"]),
			Status:    str(cmd, "status"),
			Output:    str(cmd, "output"),
			Timestamp: timestampString(cmd["timestamp"]),
		})
	}
	return out
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
