package internal

import "strings"

// Dispatch data for the parsers. Upstream formats grow new kinds and
// event types independently; additions happen here, not in parser
// control flow.

// snapshotItemRule routes one editor response item kind.
type snapshotItemRule struct {
	Block string // resulting block kind; empty means no block
	Label string // display label for uri-bearing edit kinds
	Drop  bool   // internal marker with no user-visible content
}

// snapshotItemRules covers the response item kinds the editor writes.
// Items that fall through the table but carry a value become text;
// anything else is a counted skip.
var snapshotItemRules = map[string]snapshotItemRule{
	"toolInvocationSerialized": {Block: BlockToolInvocation},
	"inlineReference":          {Block: BlockText},
	"textEditGroup":            {Block: BlockToolInvocation, Label: "Edited"},
	"notebookEditGroup":        {Block: BlockToolInvocation, Label: "Edited notebook"},
	"codeblockUri":             {Block: BlockToolInvocation, Label: "Editing"},
	"progressTaskSerialized":   {Block: BlockStatus},
	"thinking":                 {Block: BlockThinking},
	"prepareToolInvocation":    {Drop: true},
	"mcpServersStarting":       {Drop: true},
	"undoStop":                 {Drop: true},
}

// mergeableKinds lists block kinds eligible for adjacent-merge during
// normalization. Every other kind is standalone.
var mergeableKinds = map[string]bool{
	BlockText: true,
}

// shellTools are CLI tools whose invocations become CommandRun records.
var shellTools = map[string]bool{
	"powershell":  true,
	"bash":        true,
	"shell":       true,
	"run_command": true,
}

// internalTools produce no user-visible output and are dropped.
var internalTools = map[string]bool{
	"read_powershell": true,
	"read_bash":       true,
}

// toolDisplay renders a compact invocation line for a tool. Placeholders
// use {key} syntax; {short_path} is derived from the path argument and
// {query_short}/{url_short} are truncated forms.
type toolDisplay struct {
	template string
	keys     []string
}

var toolDisplayFormats = map[string]toolDisplay{
	"view":          {"Viewing `{short_path}`", []string{"path"}},
	"edit":          {"Edited `{short_path}`", []string{"path"}},
	"create":        {"Created `{short_path}`", []string{"path"}},
	"grep":          {"Searching for `{pattern}` in `{short_path}`", []string{"pattern", "path"}},
	"glob":          {"Finding `{pattern}` in `{short_path}`", []string{"pattern", "path"}},
	"web_search":    {"Web search: `{query_short}`", []string{"query"}},
	"web_fetch":     {"Fetching `{url_short}`", []string{"url"}},
	"task":          {"Agent ({agent_type}): {description}", []string{"agent_type", "description"}},
	"update_todo":   {"Updated TODO list", nil},
	"store_memory":  {"Stored memory: {subject}", []string{"subject"}},
	"task_complete": {"Task complete: {summary}", []string{"summary"}},
	"sql":           {"SQL: {description}", []string{"description"}},
}

// FormatToolDisplay renders the display line for a tool invocation from
// its arguments. Falls back to the description, then the bare tool name.
func FormatToolDisplay(toolName string, args map[string]any, description string) string {
	if disp, ok := toolDisplayFormats[toolName]; ok {
		subs := map[string]string{}
		for _, key := range disp.keys {
			subs[key] = stringArg(args, key)
		}
		if path := stringArg(args, "path"); path != "" {
			subs["short_path"] = shortenPath(path)
		} else if _, wants := subs["path"]; wants {
			subs["short_path"] = ""
		}
		for _, key := range []string{"query", "url"} {
			if val, ok := subs[key]; ok {
				if len(val) > 80 {
					val = val[:80] + "..."
				}
				subs[key+"_short"] = val
			}
		}
		return expandTemplate(disp.template, subs)
	}

	// str_replace_editor multiplexes on its command argument.
	if toolName == "str_replace_editor" {
		path := shortenPath(stringArg(args, "path"))
		switch stringArg(args, "command") {
		case "create":
			return "Created `" + path + "`"
		case "str_replace":
			return "Edited `" + path + "`"
		default:
			return "Viewing `" + path + "`"
		}
	}

	if description != "" {
		return description
	}
	return toolName
}

func expandTemplate(template string, subs map[string]string) string {
	out := template
	for key, val := range subs {
		out = strings.ReplaceAll(out, "{"+key+"}", val)
	}
	return out
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return stringify(v)
	}
	return ""
}

// shortenPath extracts the final path element for display, handling both
// separators since artifacts may come from any OS.
func shortenPath(path string) string {
	if path == "" {
		return path
	}
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
