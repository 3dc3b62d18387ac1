package eventstream

import (
	"encoding/json"

	"github.com/cwbridge/proxy/pkg/cwerr"
)

// UpstreamEvent is the typed, decoded form of a Frame's payload, ready for
// the streaming engine to re-emit as Anthropic events.
type UpstreamEvent struct {
	Kind string // content | toolUse | thinking | codeReference | metering | metadata
	Content
	ToolUse
	Thinking         string
	CodeReferences   []CodeReferenceEntry
	Metering
	ConversationID string
}

type Content struct {
	Text string
}

type ToolUse struct {
	Name      string
	ToolUseID string
	Input     string // possibly partial; caller accumulates across frames
	Stop      bool
}

type CodeReferenceEntry struct {
	LicenseName string
	Repository  string
	URL         string
}

type Metering struct {
	Usage float64
	Unit  string
}

// Interpret maps a decoded Frame to a typed UpstreamEvent according to the
// recognized eventType. Returns (nil, nil) for frames whose eventType is
// unrecognized and a codec error for a recognized type whose payload fails
// to parse; callers skip either kind of frame, never aborting the stream.
func Interpret(f Frame) (*UpstreamEvent, error) {
	switch f.EventType {
	case "assistantResponseEvent":
		var body struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(f.Payload, &body); err != nil {
			return nil, codecErr(f, err)
		}
		return &UpstreamEvent{Kind: "content", Content: Content{Text: body.Content}}, nil

	case "toolUseEvent":
		var body struct {
			Name      string `json:"name"`
			ToolUseID string `json:"toolUseId"`
			Input     string `json:"input"`
			Stop      bool   `json:"stop"`
		}
		if err := json.Unmarshal(f.Payload, &body); err != nil {
			return nil, codecErr(f, err)
		}
		return &UpstreamEvent{Kind: "toolUse", ToolUse: ToolUse{
			Name: body.Name, ToolUseID: body.ToolUseID, Input: body.Input, Stop: body.Stop,
		}}, nil

	case "reasoningContentEvent":
		var body struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(f.Payload, &body); err != nil {
			return nil, codecErr(f, err)
		}
		return &UpstreamEvent{Kind: "thinking", Thinking: body.Content}, nil

	case "codeReferenceEvent":
		var body struct {
			References []struct {
				LicenseName string `json:"licenseName"`
				Repository  string `json:"repository"`
				URL         string `json:"url"`
			} `json:"references"`
		}
		if err := json.Unmarshal(f.Payload, &body); err != nil {
			return nil, codecErr(f, err)
		}
		var refs []CodeReferenceEntry
		for _, r := range body.References {
			if r.LicenseName != "" && r.Repository != "" && r.URL != "" {
				refs = append(refs, CodeReferenceEntry{LicenseName: r.LicenseName, Repository: r.Repository, URL: r.URL})
			}
		}
		if len(refs) == 0 {
			return nil, nil
		}
		return &UpstreamEvent{Kind: "codeReference", CodeReferences: refs}, nil

	case "meteringEvent":
		var body struct {
			Usage float64 `json:"usage"`
			Unit  string  `json:"unit"`
		}
		if err := json.Unmarshal(f.Payload, &body); err != nil {
			return nil, codecErr(f, err)
		}
		return &UpstreamEvent{Kind: "metering", Metering: Metering{Usage: body.Usage, Unit: body.Unit}}, nil

	case "messageMetadataEvent":
		var body struct {
			ConversationID string `json:"conversationId"`
		}
		if err := json.Unmarshal(f.Payload, &body); err != nil {
			return nil, codecErr(f, err)
		}
		return &UpstreamEvent{Kind: "metadata", ConversationID: body.ConversationID}, nil

	case "followupPromptEvent":
		// Recognized but not surfaced to the client; no Anthropic analog.
		return nil, nil

	default:
		return nil, nil
	}
}

func codecErr(f Frame, cause error) error {
	return cwerr.New(cwerr.KindCodecError, 0, "malformed payload for eventType "+f.EventType, cause)
}

// EstimatedOutputTokens converts a metering usage value to a fallback
// output-token estimate, used only when local counting is unavailable.
func (m Metering) EstimatedOutputTokens() int {
	return int(m.Usage * 1000)
}
