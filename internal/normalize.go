package internal

import "strings"

// rawBlock is one candidate fragment produced while parsing a message,
// before merge rules are applied.
type rawBlock struct {
	kind        string
	content     string
	description string
}

// MergeBlocks produces the final block list for one message. Adjacent
// blocks of a mergeable kind are concatenated with a single newline so
// streaming deltas don't explode into fragments (and bare fragments
// don't glue into one word). Standalone kinds never merge with any
// neighbor. Order is preserved; empty fragments are dropped.
func MergeBlocks(blocks []rawBlock) []ContentBlock {
	var merged []ContentBlock

	for _, b := range blocks {
		if strings.TrimSpace(b.content) == "" {
			continue
		}
		if mergeableKinds[b.kind] && len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.Kind == b.kind {
				last.Content += "\n" + b.content
				if last.Description == "" {
					last.Description = b.description
				}
				continue
			}
		}
		merged = append(merged, ContentBlock{
			Kind:        b.kind,
			Content:     b.content,
			Description: b.description,
		})
	}

	return merged
}

// FlattenText joins the text-kind block contents of a message into the
// flat content column indexed for search. Non-adjacent runs of text are
// separated by a blank line.
func FlattenText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Kind == BlockText && strings.TrimSpace(b.Content) != "" {
			parts = append(parts, b.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// finishMessage assembles a Message from accumulated parser state,
// applying merge rules and deriving the flat content. Returns false when
// nothing user-visible accumulated.
func finishMessage(role string, timestamp string, blocks []rawBlock, tools []ToolInvocation, changes []FileChange, commands []CommandRun) (Message, bool) {
	mergedBlocks := MergeBlocks(blocks)
	if len(mergedBlocks) == 0 && len(tools) == 0 && len(changes) == 0 && len(commands) == 0 {
		return Message{}, false
	}
	return Message{
		Role:            role,
		Timestamp:       timestamp,
		Content:         FlattenText(mergedBlocks),
		Blocks:          mergedBlocks,
		ToolInvocations: tools,
		FileChanges:     changes,
		CommandRuns:     commands,
	}, true
}

// reindexMessages assigns contiguous message indexes in source order.
// The index is the authoritative ordering key; timestamps are advisory.
func reindexMessages(messages []Message) []Message {
	for i := range messages {
		messages[i].MessageIndex = i
	}
	return messages
}
