// Package requestbuilder assembles an upstream conversationState from
// sanitized, pruned client messages, tools, and system prompt: model id
// mapping, system-prompt splicing, history construction, tool-trim
// propagation, current-message assembly, and adjacent-role merging.
package requestbuilder

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/cwbridge/proxy/pkg/anthropic"
	"github.com/cwbridge/proxy/pkg/internal/imageutil"
	"github.com/cwbridge/proxy/pkg/internal/media"
	"github.com/cwbridge/proxy/pkg/toolregistry"
	"github.com/cwbridge/proxy/pkg/upstream"
)

// MaxToolOutputLength caps a tool_result's content before it reaches the
// upstream.
const MaxToolOutputLength = 64_000

// CurrentMessageCap bounds the current message's content.
const CurrentMessageCap = 32_000

// thinkingInstructionTemplate is prepended to the system prompt when
// thinking is requested via prompt injection (the upstream has no typed
// thinking field).
const thinkingInstructionTemplate = "Before responding, think through the problem inside <thinking></thinking> tags, then give your final answer outside those tags.\n\n"

// Input collects everything the request builder needs for one turn.
type Input struct {
	Messages        []anthropic.Message // sanitized + pruned
	Tools           []anthropic.Tool    // raw client tools, pre-filter
	System          string
	ModelID         string
	ThinkingEnabled bool
	Registry        *toolregistry.Registry
	ConversationID  string // propagated from a prior turn, if any
}

// Build assembles the upstream conversationState for one turn.
func Build(in Input) upstream.ConversationState {
	system := in.System
	if in.ThinkingEnabled {
		system = thinkingInstructionTemplate + system
	}

	filter := in.Registry.Filter(in.Tools)
	messages := mergeAdjacentSameRole(in.Messages)
	messages = spliceSystemPrompt(messages, system)

	if len(messages) == 0 {
		messages = []anthropic.Message{{Role: anthropic.RoleUser, Content: []anthropic.ContentPart{&anthropic.TextPart{Text: system}}}}
	}

	last := messages[len(messages)-1]
	historySource := messages[:len(messages)-1]

	keptToolUseIDs := toolUseIDsStillKept(messages, filter.KeptSet)
	history := buildHistory(historySource, in.Registry, filter.KeptSet, keptToolUseIDs)

	var current upstream.UserInputMessage
	if last.Role == anthropic.RoleAssistant {
		history = append(history, upstream.AssistantMessage(assistantFromMessage(last, in.Registry, filter.KeptSet)))
		current = upstream.UserInputMessage{Content: "Continue", ModelID: ResolveModelID(in.ModelID), Origin: upstream.Origin}
	} else {
		current = userFromMessage(last, in.Registry, keptToolUseIDs, in.ModelID)
		current.Content = capCurrentMessage(current.Content)
	}

	if len(filter.Kept) > 0 {
		if current.UserInputMessageContext == nil {
			current.UserInputMessageContext = &upstream.UserInputMessageContext{}
		}
		current.UserInputMessageContext.Tools = toUpstreamTools(filter.Kept)
	}

	history = enforceShape(history)

	conversationID := in.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	return upstream.ConversationState{
		ConversationID:  conversationID,
		History:         history,
		CurrentMessage:  upstream.UserMessage(current),
		ChatTriggerType: upstream.ChatTriggerType,
	}
}

// spliceSystemPrompt concatenates the system prompt into the first user
// message's text, or, if there is no leading user message, prepends a
// standalone leading user message carrying just the system prompt.
func spliceSystemPrompt(messages []anthropic.Message, system string) []anthropic.Message {
	if system == "" {
		return messages
	}
	for i, m := range messages {
		if m.Role != anthropic.RoleUser {
			continue
		}
		firstText := firstTextIndex(m.Content)
		out := make([]anthropic.Message, len(messages))
		copy(out, messages)
		newContent := make([]anthropic.ContentPart, len(m.Content))
		copy(newContent, m.Content)
		if firstText == -1 {
			newContent = append([]anthropic.ContentPart{&anthropic.TextPart{Text: system}}, newContent...)
		} else {
			tp := newContent[firstText].(*anthropic.TextPart)
			newContent[firstText] = &anthropic.TextPart{Text: system + "\n\n" + tp.Text}
		}
		out[i] = anthropic.Message{Role: m.Role, Content: newContent}
		return out
	}
	leading := anthropic.Message{Role: anthropic.RoleUser, Content: []anthropic.ContentPart{&anthropic.TextPart{Text: system}}}
	return append([]anthropic.Message{leading}, messages...)
}

func firstTextIndex(parts []anthropic.ContentPart) int {
	for i, p := range parts {
		if _, ok := p.(*anthropic.TextPart); ok {
			return i
		}
	}
	return -1
}

// mergeAdjacentSameRole concatenates adjacent same-role messages:
// string+string via newline, arrays by append.
func mergeAdjacentSameRole(messages []anthropic.Message) []anthropic.Message {
	if len(messages) == 0 {
		return messages
	}
	out := make([]anthropic.Message, 0, len(messages))
	out = append(out, messages[0])
	for i := 1; i < len(messages); i++ {
		prev := &out[len(out)-1]
		cur := messages[i]
		if prev.Role == cur.Role {
			prev.Content = mergeContent(prev.Content, cur.Content)
			continue
		}
		out = append(out, cur)
	}
	return out
}

func mergeContent(a, b []anthropic.ContentPart) []anthropic.ContentPart {
	if len(a) == 1 && len(b) == 1 {
		at, aOK := a[0].(*anthropic.TextPart)
		bt, bOK := b[0].(*anthropic.TextPart)
		if aOK && bOK {
			return []anthropic.ContentPart{&anthropic.TextPart{Text: at.Text + "\n" + bt.Text}}
		}
	}
	return append(append([]anthropic.ContentPart{}, a...), b...)
}

// toolUseIDsStillKept builds the toolUseId->toolName map from the full
// message set's assistant history and returns the ids whose tool
// survived the registry's size/builtin filter; the tool-trim
// propagation set consulted when emitting tool_use/tool_result pairs.
func toolUseIDsStillKept(messages []anthropic.Message, keptTools map[string]bool) map[string]bool {
	kept := map[string]bool{}
	for _, m := range messages {
		if m.Role != anthropic.RoleAssistant {
			continue
		}
		for _, tu := range m.ToolUses() {
			if keptTools[tu.Name] {
				kept[tu.ID] = true
			}
		}
	}
	return kept
}

// buildHistory walks every message except the last, applying tool-trim
// propagation as it goes.
func buildHistory(messages []anthropic.Message, registry *toolregistry.Registry, keptTools, keptToolUseIDs map[string]bool) []upstream.Message {
	history := make([]upstream.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == anthropic.RoleUser {
			history = append(history, upstream.UserMessage(userFromMessage(m, registry, keptToolUseIDs, "")))
		} else {
			history = append(history, upstream.AssistantMessage(assistantFromMessage(m, registry, keptTools)))
		}
	}
	return history
}

// userFromMessage extracts a UserInputMessage from a client message.
// keptToolUseIDs, when non-nil, restricts emitted tool_results to ids
// that survived tool-trim propagation; Build passes the same set for
// history entries and for the current message.
func userFromMessage(m anthropic.Message, registry *toolregistry.Registry, keptToolUseIDs map[string]bool, modelID string) upstream.UserInputMessage {
	var textParts []string
	var images []upstream.Image
	var toolResults []upstream.ToolResult
	seenToolUseIDs := map[string]bool{}

	for _, p := range m.Content {
		switch part := p.(type) {
		case *anthropic.TextPart:
			textParts = append(textParts, part.Text)
		case *anthropic.ImagePart:
			images = append(images, imageFromPart(part))
		case *anthropic.ToolResultPart:
			if seenToolUseIDs[part.ToolUseID] {
				continue // dedup by toolUseId
			}
			if keptToolUseIDs != nil && !keptToolUseIDs[part.ToolUseID] {
				continue // orphaned by tool-trim propagation
			}
			seenToolUseIDs[part.ToolUseID] = true
			text := truncateToolOutput(part.Text())
			status := upstream.ToolResultSuccess
			if part.IsError {
				status = upstream.ToolResultError
			}
			toolResults = append(toolResults, upstream.ToolResult{
				ToolUseID: part.ToolUseID,
				Status:    status,
				Content:   []upstream.ToolResultContentBlock{{Text: text}},
			})
		}
	}

	content := strings.Join(textParts, "\n")
	if content == "" {
		if len(toolResults) > 0 {
			content = "Tool results provided."
		} else {
			content = "Continue"
		}
	}

	msg := upstream.UserInputMessage{
		Content: content,
		ModelID: ResolveModelID(modelID),
		Origin:  upstream.Origin,
		Images:  images,
	}
	if len(toolResults) > 0 {
		msg.UserInputMessageContext = &upstream.UserInputMessageContext{ToolResults: toolResults}
	}
	return msg
}

func assistantFromMessage(m anthropic.Message, registry *toolregistry.Registry, keptTools map[string]bool) upstream.AssistantResponseMessage {
	var textParts []string
	var toolUses []upstream.ToolUse

	for _, p := range m.Content {
		switch part := p.(type) {
		case *anthropic.TextPart:
			textParts = append(textParts, part.Text)
		case *anthropic.ThinkingPart:
			textParts = append(textParts, "<thinking>"+part.Thinking+"</thinking>")
		case *anthropic.ToolUsePart:
			if keptTools != nil && !keptTools[part.Name] {
				continue // tool-trim propagation: drop dangling tool_use
			}
			input := registry.MapOutbound(part.Name, part.Input)
			upstreamName := part.Name
			if entry, ok := registry.Lookup(part.Name); ok && entry.UpstreamName != "" {
				upstreamName = entry.UpstreamName
			}
			toolUses = append(toolUses, upstream.ToolUse{
				Name:      upstreamName,
				ToolUseID: part.ID,
				Input:     input,
			})
		}
	}

	content := strings.Join(textParts, "\n")
	if content == "" {
		if len(toolUses) > 0 {
			content = "Calling tools..."
		} else {
			content = "..."
		}
	}

	return upstream.AssistantResponseMessage{Content: content, ToolUses: toolUses}
}

func imageFromPart(p *anthropic.ImagePart) upstream.Image {
	format := "png"
	bytesField := p.Source.Data
	if raw, err := base64.StdEncoding.DecodeString(p.Source.Data); err == nil {
		if p.Source.MediaType != "" {
			format = formatFromMediaType(p.Source.MediaType)
		} else {
			format = formatFromMediaType(media.DetectImageMediaType(raw))
		}
		// Re-encode through the canonical encoder rather than forwarding the
		// client's base64 verbatim, so whitespace or alternate padding in the
		// original payload never reaches the upstream.
		bytesField = imageutil.EncodeToBase64(raw)
	} else if p.Source.MediaType != "" {
		format = formatFromMediaType(p.Source.MediaType)
	}
	img := upstream.Image{Format: format}
	img.Source.Bytes = bytesField
	return img
}

func formatFromMediaType(mediaType string) string {
	if idx := strings.Index(mediaType, "/"); idx != -1 {
		return mediaType[idx+1:]
	}
	return mediaType
}

func truncateToolOutput(s string) string {
	if len(s) <= MaxToolOutputLength {
		return s
	}
	return s[:MaxToolOutputLength] + "\n...[truncated]"
}

// capCurrentMessage applies the 32k cap: strip <system-reminder> blocks
// first, then keep 70% head + 30% tail if still over.
func capCurrentMessage(content string) string {
	content = stripSystemReminderBlocks(content)
	if len(content) <= CurrentMessageCap {
		return content
	}
	headLen := CurrentMessageCap * 7 / 10
	tailLen := CurrentMessageCap - headLen
	return content[:headLen] + "\n...[truncated]...\n" + content[len(content)-tailLen:]
}

func stripSystemReminderBlocks(s string) string {
	const openTag = "<system-reminder>"
	const closeTag = "</system-reminder>"
	for {
		start := strings.Index(s, openTag)
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], closeTag)
		if end == -1 {
			return s
		}
		s = s[:start] + s[start+end+len(closeTag):]
	}
}

func toUpstreamTools(tools []anthropic.Tool) []upstream.Tool {
	out := make([]upstream.Tool, 0, len(tools))
	for _, t := range tools {
		schema := toolregistry.CleanseSchema(t.InputSchema)
		if len(schema) == 0 {
			schema = json.RawMessage("{}")
		}
		out = append(out, upstream.Tool{
			ToolSpecification: upstream.ToolSpecification{
				Name:        t.Name,
				Description: toolregistry.TruncateDescription(t.Description),
				InputSchema: upstream.InputSchema{JSON: schema},
			},
		})
	}
	return out
}

// enforceShape re-runs the role-alternation invariant against the
// assembled upstream history, inserting placeholder messages between
// consecutive same-role entries with the sanitizer's rule-5 texts
// ("understood" between two user entries, "Continue" between two
// assistant entries). Tool_use/tool_result pairing is not re-checked.
func enforceShape(history []upstream.Message) []upstream.Message {
	out := make([]upstream.Message, 0, len(history))
	for _, m := range history {
		if len(out) > 0 && sameRole(out[len(out)-1], m) {
			out = append(out, placeholderOppositeRole(m))
		}
		out = append(out, m)
	}
	return out
}

func sameRole(a, b upstream.Message) bool {
	return (a.UserInputMessage != nil) == (b.UserInputMessage != nil)
}

func placeholderOppositeRole(next upstream.Message) upstream.Message {
	if next.UserInputMessage != nil {
		return upstream.AssistantMessage(upstream.AssistantResponseMessage{Content: "understood"})
	}
	return upstream.UserMessage(upstream.UserInputMessage{Content: "Continue", Origin: upstream.Origin})
}
