// Package sanitizer enforces the upstream message-shape invariants on a
// client's message history before it reaches the request builder: role
// alternation, tool_use/tool_result pairing, non-empty content, and
// length caps. Sanitize is idempotent: running it twice is a no-op.
package sanitizer

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/cwbridge/proxy/pkg/anthropic"
)

// ContentLengthCap is the per-message content cap in characters; beyond
// it, content is replaced by a head/tail splice around a truncation
// marker.
const ContentLengthCap = 200_000

const truncationMarker = "\n...[truncated]...\n"

var jsonLikePrefix = regexp.MustCompile(`^[\[{]`)

// Sanitize applies invariants 1-8 in order and returns a new slice; the
// input is never mutated.
func Sanitize(messages []anthropic.Message) []anthropic.Message {
	out := cloneMessages(messages)

	out = dropTruncatedAssistantJSON(out)   // rule 7
	out = stripThinkingParts(out)           // rule 8
	out = ensureStartsWithUser(out)         // rule 1
	out = dropEmptyNonFirstUserMessages(out)// rule 2
	out = alternateRoles(out)               // rules 3,5 (tool_result adjacency falls out of alternation)
	out = pairToolUseAndResult(out)         // rule 4
	out = ensureEndsWithUser(out)           // rule 6
	out = capContentLength(out)             // length cap

	return out
}

func cloneMessages(messages []anthropic.Message) []anthropic.Message {
	out := make([]anthropic.Message, len(messages))
	for i, m := range messages {
		content := make([]anthropic.ContentPart, len(m.Content))
		copy(content, m.Content)
		out[i] = anthropic.Message{Role: m.Role, Content: content}
	}
	return out
}

// rule 7: assistant messages whose string content looks like truncated
// JSON (starts with [ or {) but fails to parse are dropped entirely.
func dropTruncatedAssistantJSON(messages []anthropic.Message) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == anthropic.RoleAssistant && len(m.Content) == 1 {
			if tp, ok := m.Content[0].(*anthropic.TextPart); ok && jsonLikePrefix.MatchString(tp.Text) {
				var probe interface{}
				if json.Unmarshal([]byte(tp.Text), &probe) != nil {
					continue
				}
			}
		}
		out = append(out, m)
	}
	return out
}

// rule 8: thinking parts never survive a hop; their signature is not
// preserved across requests.
func stripThinkingParts(messages []anthropic.Message) []anthropic.Message {
	for i, m := range messages {
		kept := m.Content[:0:0]
		for _, p := range m.Content {
			if _, isThinking := p.(*anthropic.ThinkingPart); isThinking {
				continue
			}
			kept = append(kept, p)
		}
		messages[i].Content = kept
	}
	return messages
}

func ensureStartsWithUser(messages []anthropic.Message) []anthropic.Message {
	if len(messages) > 0 && messages[0].Role == anthropic.RoleUser {
		return messages
	}
	placeholder := anthropic.Message{Role: anthropic.RoleUser, Content: []anthropic.ContentPart{&anthropic.TextPart{Text: "Hello"}}}
	return append([]anthropic.Message{placeholder}, messages...)
}

// rule 2: empty user messages are dropped except possibly the first,
// which is kept as a placeholder.
func dropEmptyNonFirstUserMessages(messages []anthropic.Message) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(messages))
	for i, m := range messages {
		if i > 0 && m.Role == anthropic.RoleUser && isEmptyContent(m.Content) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func isEmptyContent(parts []anthropic.ContentPart) bool {
	if len(parts) == 0 {
		return true
	}
	for _, p := range parts {
		if tp, ok := p.(*anthropic.TextPart); ok {
			if strings.TrimSpace(tp.Text) != "" {
				return false
			}
			continue
		}
		return false
	}
	return true
}

// rule 5: insert a single-token opposite-role placeholder between two
// same-role messages. "understood" between two user-tails, "Continue"
// between two assistant-tails.
func alternateRoles(messages []anthropic.Message) []anthropic.Message {
	if len(messages) == 0 {
		return messages
	}
	out := make([]anthropic.Message, 0, len(messages))
	out = append(out, messages[0])
	for i := 1; i < len(messages); i++ {
		prev := out[len(out)-1]
		cur := messages[i]
		if prev.Role == cur.Role {
			var placeholderRole anthropic.Role
			var placeholderText string
			if cur.Role == anthropic.RoleUser {
				placeholderRole, placeholderText = anthropic.RoleAssistant, "understood"
			} else {
				placeholderRole, placeholderText = anthropic.RoleUser, "Continue"
			}
			out = append(out, anthropic.Message{
				Role:    placeholderRole,
				Content: []anthropic.ContentPart{&anthropic.TextPart{Text: placeholderText}},
			})
		}
		out = append(out, cur)
	}
	return out
}

// rule 4 + 3: every tool_use gets a matching tool_result immediately in
// the following user message; missing ones get a synthesized failure
// result inserted right after the assistant message that invoked them.
func pairToolUseAndResult(messages []anthropic.Message) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(messages))
	for i := 0; i < len(messages); i++ {
		m := messages[i]
		out = append(out, m)
		if m.Role != anthropic.RoleAssistant {
			continue
		}
		toolUses := m.ToolUses()
		if len(toolUses) == 0 {
			continue
		}

		var existingResults map[string]bool
		if i+1 < len(messages) && messages[i+1].Role == anthropic.RoleUser {
			existingResults = map[string]bool{}
			for _, tr := range messages[i+1].ToolResults() {
				existingResults[tr.ToolUseID] = true
			}
		} else {
			existingResults = map[string]bool{}
		}

		var missing []anthropic.ContentPart
		for _, tu := range toolUses {
			if !existingResults[tu.ID] {
				missing = append(missing, &anthropic.ToolResultPart{
					ToolUseID: tu.ID,
					Content:   json.RawMessage(`"Tool execution failed"`),
					IsError:   true,
				})
			}
		}
		if len(missing) == 0 {
			continue
		}
		if i+1 < len(messages) && messages[i+1].Role == anthropic.RoleUser {
			// Results get attached when the next message is processed by
			// the loop; splice synthesized ones in now so ordering is
			// preserved relative to existing results.
			next := &messages[i+1]
			next.Content = append(append([]anthropic.ContentPart{}, missing...), next.Content...)
		} else {
			out = append(out, anthropic.Message{Role: anthropic.RoleUser, Content: missing})
		}
	}
	return out
}

func ensureEndsWithUser(messages []anthropic.Message) []anthropic.Message {
	if len(messages) > 0 && messages[len(messages)-1].Role == anthropic.RoleUser {
		return messages
	}
	return append(messages, anthropic.Message{
		Role:    anthropic.RoleUser,
		Content: []anthropic.ContentPart{&anthropic.TextPart{Text: "Continue"}},
	})
}

func capContentLength(messages []anthropic.Message) []anthropic.Message {
	for i, m := range messages {
		for j, p := range m.Content {
			tp, ok := p.(*anthropic.TextPart)
			if !ok || len(tp.Text) <= ContentLengthCap {
				continue
			}
			headLen := int(float64(ContentLengthCap) * 0.7)
			tailLen := ContentLengthCap - headLen - len(truncationMarker)
			if tailLen < 0 {
				tailLen = 0
			}
			messages[i].Content[j] = &anthropic.TextPart{
				Text: tp.Text[:headLen] + truncationMarker + tp.Text[len(tp.Text)-tailLen:],
			}
		}
	}
	return messages
}
