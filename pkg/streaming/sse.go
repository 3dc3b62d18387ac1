package streaming

import (
	"net/http"

	"github.com/cwbridge/proxy/pkg/anthropic"
	providersse "github.com/cwbridge/proxy/pkg/providerutils/streaming"
)

// SSEEmitter writes Anthropic events as Server-Sent Events to an
// http.ResponseWriter, flushing after every event so the client observes
// them as they are produced.
type SSEEmitter struct {
	w       *providersse.SSEWriter
	flusher http.Flusher
}

// NewSSEEmitter wraps w for event-stream output. The caller is responsible
// for having set the SSE response headers before the first Emit.
func NewSSEEmitter(w http.ResponseWriter) *SSEEmitter {
	flusher, _ := w.(http.Flusher)
	return &SSEEmitter{w: providersse.NewSSEWriter(w), flusher: flusher}
}

func (e *SSEEmitter) Emit(ev anthropic.Event) error {
	data, err := anthropic.MarshalEventData(ev)
	if err != nil {
		return err
	}
	if err := e.w.WriteNamedEvent(ev.EventName(), string(data)); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// BufferedEmitter accumulates events in memory, for assembling a
// non-streaming Anthropic Messages response from the same event sequence
// the streaming path produces.
type BufferedEmitter struct {
	Message anthropic.Response
	current []anthropic.ContentPart
	usage   anthropic.Usage
}

func (e *BufferedEmitter) Emit(ev anthropic.Event) error {
	switch v := ev.(type) {
	case anthropic.MessageStart:
		e.Message.ID = v.Message.ID
		e.Message.Model = v.Message.Model
		e.Message.Role = v.Message.Role
	case anthropic.ContentBlockStart:
		e.current = append(e.current, v.ContentBlock)
	case anthropic.ContentBlockDelta:
		if v.Index < 0 || v.Index >= len(e.current) {
			return nil
		}
		appendDelta(e.current, v.Index, v.Delta)
	case anthropic.MessageDelta:
		e.Message.StopReason = v.Delta.StopReason
		e.usage = v.Usage
	case anthropic.MessageStop:
		e.Message.Content = e.current
		e.Message.Usage = e.usage
		e.Message.Type = "message"
	}
	return nil
}

func appendDelta(blocks []anthropic.ContentPart, index int, delta anthropic.Delta) {
	switch b := blocks[index].(type) {
	case *anthropic.TextPart:
		b.Text += delta.Text
	case *anthropic.ThinkingPart:
		b.Thinking += delta.Thinking
	case *anthropic.ToolUsePart:
		if delta.PartialJSON != "" {
			b.Input = []byte(delta.PartialJSON)
		}
	}
}
