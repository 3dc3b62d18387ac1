package anthropic

import "encoding/json"

// Event is any of the Anthropic streaming event payloads this proxy emits.
// Each concrete type supplies its own EventName for the SSE `event:` line.
type Event interface {
	EventName() string
}

type MessageStart struct {
	Message struct {
		ID      string        `json:"id"`
		Type    string        `json:"type"`
		Role    Role          `json:"role"`
		Model   string        `json:"model"`
		Content []ContentPart `json:"content"`
		Usage   Usage         `json:"usage"`
	} `json:"message"`
}

func (MessageStart) EventName() string { return "message_start" }

func NewMessageStart(id, model string) MessageStart {
	ms := MessageStart{}
	ms.Message.ID = id
	ms.Message.Type = "message"
	ms.Message.Role = RoleAssistant
	ms.Message.Model = model
	ms.Message.Content = []ContentPart{}
	return ms
}

type ContentBlockStart struct {
	Index        int          `json:"index"`
	ContentBlock ContentPart  `json:"content_block"`
}

func (ContentBlockStart) EventName() string { return "content_block_start" }

// Delta is the polymorphic payload of a content_block_delta event.
type Delta struct {
	Type        string `json:"type"` // text_delta | input_json_delta | thinking_delta
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
}

type ContentBlockDelta struct {
	Index int   `json:"index"`
	Delta Delta `json:"delta"`
}

func (ContentBlockDelta) EventName() string { return "content_block_delta" }

func TextDelta(index int, text string) ContentBlockDelta {
	return ContentBlockDelta{Index: index, Delta: Delta{Type: "text_delta", Text: text}}
}

func ThinkingDelta(index int, text string) ContentBlockDelta {
	return ContentBlockDelta{Index: index, Delta: Delta{Type: "thinking_delta", Thinking: text}}
}

func InputJSONDelta(index int, partialJSON string) ContentBlockDelta {
	return ContentBlockDelta{Index: index, Delta: Delta{Type: "input_json_delta", PartialJSON: partialJSON}}
}

type ContentBlockStop struct {
	Index int `json:"index"`
}

func (ContentBlockStop) EventName() string { return "content_block_stop" }

type MessageDeltaPayload struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

type MessageDelta struct {
	Delta MessageDeltaPayload `json:"delta"`
	Usage Usage               `json:"usage"`
}

func (MessageDelta) EventName() string { return "message_delta" }

type MessageStop struct{}

func (MessageStop) EventName() string { return "message_stop" }

// CodeReference is the proxy's documented non-Anthropic extension event
// carrying upstream code-attribution spans.
type CodeReference struct {
	License                  string `json:"license"`
	Repository                string `json:"repository"`
	URL                       string `json:"url"`
	RecommendationContentSpan [2]int `json:"recommendationContentSpan,omitempty"`
}

type CodeReferencesEvent struct {
	References []CodeReference `json:"references"`
}

func (CodeReferencesEvent) EventName() string { return "code_references" }

// ErrorEvent is the streaming counterpart to ErrorBody.
type ErrorEvent struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (ErrorEvent) EventName() string { return "error" }

func NewErrorEvent(anthropicType, message string) ErrorEvent {
	ev := ErrorEvent{}
	ev.Error.Type = anthropicType
	ev.Error.Message = message
	return ev
}

// MarshalEventData serializes an Event's payload for the SSE `data:` line,
// injecting the top-level "type" field the Anthropic wire format requires
// alongside whatever fields the concrete event type already carries.
func MarshalEventData(ev Event) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	typeBytes, err := json.Marshal(ev.EventName())
	if err != nil {
		return nil, err
	}
	fields["type"] = typeBytes
	return json.Marshal(fields)
}
