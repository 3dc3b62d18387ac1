package anthropic

import "encoding/json"

// ContentPart is the closed sum type for message content: text, image,
// tool_use, tool_result, and thinking. The codec and sanitizer are total
// functions over these variants.
type ContentPart interface {
	ContentType() string
}

// TextPart is a plain text span.
type TextPart struct {
	Text string `json:"text"`
}

func (*TextPart) ContentType() string { return "text" }

func (p TextPart) MarshalJSON() ([]byte, error) {
	type alias struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	return json.Marshal(alias{Type: "text", Text: p.Text})
}

// ImageSource is the base64 (or URL) payload of an ImagePart.
type ImageSource struct {
	Type      string `json:"type"` // "base64" or "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ImagePart is an inline image, base64-encoded or by URL.
type ImagePart struct {
	Source ImageSource `json:"source"`
}

func (*ImagePart) ContentType() string { return "image" }

func (p ImagePart) MarshalJSON() ([]byte, error) {
	type alias struct {
		Type   string      `json:"type"`
		Source ImageSource `json:"source"`
	}
	return json.Marshal(alias{Type: "image", Source: p.Source})
}

// ToolUsePart is a tool invocation, either sent by the assistant in
// history or synthesized by the streaming engine from upstream frames.
type ToolUsePart struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (*ToolUsePart) ContentType() string { return "tool_use" }

func (p ToolUsePart) MarshalJSON() ([]byte, error) {
	type alias struct {
		Type  string          `json:"type"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	}
	input := p.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	return json.Marshal(alias{Type: "tool_use", ID: p.ID, Name: p.Name, Input: input})
}

// ToolResultPart is the client-supplied result of a prior tool_use.
type ToolResultPart struct {
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

func (*ToolResultPart) ContentType() string { return "tool_result" }

func (p ToolResultPart) MarshalJSON() ([]byte, error) {
	type alias struct {
		Type      string          `json:"type"`
		ToolUseID string          `json:"tool_use_id"`
		Content   json.RawMessage `json:"content,omitempty"`
		IsError   bool            `json:"is_error,omitempty"`
	}
	return json.Marshal(alias{Type: "tool_result", ToolUseID: p.ToolUseID, Content: p.Content, IsError: p.IsError})
}

// Text returns the result content as a plain string when it is a JSON
// string or a single text block; otherwise it returns the raw JSON text.
func (p *ToolResultPart) Text() string {
	if len(p.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Content, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(p.Content, &blocks); err == nil {
		var out string
		for _, b := range blocks {
			out += b.Text
		}
		return out
	}
	return string(p.Content)
}

// ThinkingPart carries reasoning text. Never forwarded upstream as a typed
// variant; the request builder inlines it as a <thinking> text prefix and
// the sanitizer strips it from historical messages entirely.
type ThinkingPart struct {
	Thinking  string `json:"thinking"`
	Signature string `json:"signature,omitempty"`
}

func (*ThinkingPart) ContentType() string { return "thinking" }

func (p ThinkingPart) MarshalJSON() ([]byte, error) {
	type alias struct {
		Type      string `json:"type"`
		Thinking  string `json:"thinking"`
		Signature string `json:"signature,omitempty"`
	}
	return json.Marshal(alias{Type: "thinking", Thinking: p.Thinking, Signature: p.Signature})
}

func decodeContentPart(raw json.RawMessage) (ContentPart, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case "text":
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return &TextPart{Text: p.Text}, nil
	case "image":
		var p struct {
			Source ImageSource `json:"source"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return &ImagePart{Source: p.Source}, nil
	case "tool_use":
		var p ToolUsePart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "tool_result":
		var p struct {
			ToolUseID string          `json:"tool_use_id"`
			Content   json.RawMessage `json:"content"`
			IsError   bool            `json:"is_error"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return &ToolResultPart{ToolUseID: p.ToolUseID, Content: p.Content, IsError: p.IsError}, nil
	case "thinking":
		var p ThinkingPart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		// Anthropic builtin server-tool parts (e.g. web_search_tool_result)
		// and any future variant: ignored rather than rejected, matching
		// the sanitizer's forward-compatible stance.
		return nil, nil
	}
}
