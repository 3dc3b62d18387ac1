// Package anthropic holds the wire types for the Anthropic Messages schema
// this proxy exposes: requests, messages, the content-part sum type, tool
// definitions, and the streaming event shapes emitted over SSE.
package anthropic

import "encoding/json"

// Role is a message's speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation. Content is always normalized to
// a slice of ContentPart by UnmarshalJSON, even when the wire form is a
// bare string.
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// UnmarshalJSON accepts either a string content body or an array of typed
// parts, matching what real Anthropic clients send for simple turns.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    Role            `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role

	var asString string
	if err := json.Unmarshal(raw.Content, &asString); err == nil {
		if asString != "" {
			m.Content = []ContentPart{&TextPart{Text: asString}}
		}
		return nil
	}

	var rawParts []json.RawMessage
	if err := json.Unmarshal(raw.Content, &rawParts); err != nil {
		return err
	}
	parts := make([]ContentPart, 0, len(rawParts))
	for _, rp := range rawParts {
		part, err := decodeContentPart(rp)
		if err != nil {
			return err
		}
		if part != nil {
			parts = append(parts, part)
		}
	}
	m.Content = parts
	return nil
}

// MarshalJSON emits content as an array of typed parts.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias struct {
		Role    Role          `json:"role"`
		Content []ContentPart `json:"content"`
	}
	return json.Marshal(alias{Role: m.Role, Content: m.Content})
}

// Text concatenates every text part's body, ignoring non-text parts.
func (m Message) Text() string {
	var out string
	for _, p := range m.Content {
		if t, ok := p.(*TextPart); ok {
			out += t.Text
		}
	}
	return out
}

// ToolUses returns every tool_use part in the message, in order.
func (m Message) ToolUses() []*ToolUsePart {
	var out []*ToolUsePart
	for _, p := range m.Content {
		if t, ok := p.(*ToolUsePart); ok {
			out = append(out, t)
		}
	}
	return out
}

// ToolResults returns every tool_result part in the message, in order.
func (m Message) ToolResults() []*ToolResultPart {
	var out []*ToolResultPart
	for _, p := range m.Content {
		if t, ok := p.(*ToolResultPart); ok {
			out = append(out, t)
		}
	}
	return out
}
