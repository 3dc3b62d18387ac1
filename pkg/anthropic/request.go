package anthropic

import "encoding/json"

// Thinking is the optional extended-thinking request flag.
type Thinking struct {
	Type         string `json:"type"` // "enabled"
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Tool is a client-declared tool definition. Builtin tools (web_search,
// computer, etc.) arrive with a Type set to one of Anthropic's reserved
// type strings and are filtered before forwarding upstream.
type Tool struct {
	Type        string          `json:"type,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// IsBuiltin reports whether this tool is one of Anthropic's typed builtin
// tools (web_search_20250305, computer_20250124, ...) rather than a plain
// client-defined function tool.
func (t Tool) IsBuiltin() bool {
	return t.Type != "" && t.Type != "custom"
}

// Request is the inbound POST /v1/messages body.
type Request struct {
	Model     string     `json:"model"`
	Messages  []Message  `json:"messages"`
	System    string     `json:"system,omitempty"`
	Tools     []Tool     `json:"tools,omitempty"`
	MaxTokens int        `json:"max_tokens,omitempty"`
	Stream    bool       `json:"stream,omitempty"`
	Thinking  *Thinking  `json:"thinking,omitempty"`
	Metadata  *Metadata  `json:"metadata,omitempty"`
}

// Metadata carries pass-through identifiers; user_id is the only field
// Anthropic documents and the only one this proxy reads.
type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

// Usage reports token accounting on a Response or message_delta event.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the buffered (non-streaming) reply shape.
type Response struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"` // "message"
	Role         Role          `json:"role"`
	Model        string        `json:"model"`
	Content      []ContentPart `json:"content"`
	StopReason   string        `json:"stop_reason"`
	StopSequence *string       `json:"stop_sequence"`
	Usage        Usage         `json:"usage"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	type alias struct {
		ID           string        `json:"id"`
		Type         string        `json:"type"`
		Role         Role          `json:"role"`
		Model        string        `json:"model"`
		Content      []ContentPart `json:"content"`
		StopReason   string        `json:"stop_reason"`
		StopSequence *string       `json:"stop_sequence"`
		Usage        Usage         `json:"usage"`
	}
	return json.Marshal(alias{
		ID: r.ID, Type: "message", Role: r.Role, Model: r.Model,
		Content: r.Content, StopReason: r.StopReason, StopSequence: r.StopSequence,
		Usage: r.Usage,
	})
}

// ErrorBody is the client-visible error shape for buffered responses, per
// the error handling design's propagation policy; the `error` SSE event
// uses ErrorEvent.
type ErrorBody struct {
	Type  string `json:"type"` // "error"
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewErrorBody builds an ErrorBody for the given Anthropic error type
// (rate_limit_error, permission_error, authentication_error, api_error).
func NewErrorBody(anthropicType, message string) ErrorBody {
	eb := ErrorBody{Type: "error"}
	eb.Error.Type = anthropicType
	eb.Error.Message = message
	return eb
}
