package streaming

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbridge/proxy/pkg/anthropic"
	"github.com/cwbridge/proxy/pkg/eventstream"
	"github.com/cwbridge/proxy/pkg/toolregistry"
)

type recordingEmitter struct {
	events []anthropic.Event
}

func (r *recordingEmitter) Emit(ev anthropic.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEmitter) names() []string {
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.EventName())
	}
	return out
}

func contentFrame(text string) eventstream.Frame {
	return eventstream.Frame{EventType: "assistantResponseEvent", Payload: []byte(`{"content":` + quoteJSON(text) + `}`)}
}

func toolUseFrame(id, name, input string, stop bool) eventstream.Frame {
	stopStr := "false"
	if stop {
		stopStr = "true"
	}
	return eventstream.Frame{EventType: "toolUseEvent", Payload: []byte(
		`{"toolUseId":"` + id + `","name":"` + name + `","input":` + quoteJSON(input) + `,"stop":` + stopStr + `}`,
	)}
}

func quoteJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestRunEmitsTextOnlySequence(t *testing.T) {
	frames := []eventstream.Frame{contentFrame("hello "), contentFrame("world")}
	body := eventstream.Encode(frames)
	emitter := &recordingEmitter{}
	registry := toolregistry.New(nil)

	stopReason, err := Run(context.Background(), bytes.NewReader(body), emitter, Options{Model: "claude-sonnet-4-20250514", Registry: registry})
	require.NoError(t, err)
	assert.Equal(t, "end_turn", stopReason)
	assert.Equal(t, []string{
		"message_start", "content_block_start", "content_block_delta", "content_block_delta",
		"content_block_stop", "message_delta", "message_stop",
	}, emitter.names())
}

func TestRunEmitsToolUseSequence(t *testing.T) {
	frames := []eventstream.Frame{
		toolUseFrame("tu_1", "search", `{"que`, false),
		toolUseFrame("tu_1", "search", `ry":"go"}`, true),
	}
	body := eventstream.Encode(frames)
	emitter := &recordingEmitter{}
	registry := toolregistry.New(nil)

	stopReason, err := Run(context.Background(), bytes.NewReader(body), emitter, Options{Model: "claude-sonnet-4-20250514", Registry: registry})
	require.NoError(t, err)
	assert.Equal(t, "tool_use", stopReason)
	assert.Equal(t, []string{
		"message_start", "content_block_start", "content_block_delta",
		"content_block_stop", "message_delta", "message_stop",
	}, emitter.names())
}

func TestRunSplicesInjectedThinking(t *testing.T) {
	frames := []eventstream.Frame{
		contentFrame("<thinking>reasoning</thinking>answer"),
	}
	body := eventstream.Encode(frames)
	emitter := &recordingEmitter{}
	registry := toolregistry.New(nil)

	_, err := Run(context.Background(), bytes.NewReader(body), emitter, Options{
		Model: "claude-sonnet-4-20250514", Registry: registry, ThinkingInjected: true,
	})
	require.NoError(t, err)

	var sawThinkingDelta, sawTextDelta bool
	for _, ev := range emitter.events {
		if cbd, ok := ev.(anthropic.ContentBlockDelta); ok {
			if cbd.Delta.Type == "thinking_delta" {
				sawThinkingDelta = true
			}
			if cbd.Delta.Type == "text_delta" {
				sawTextDelta = true
			}
		}
	}
	assert.True(t, sawThinkingDelta)
	assert.True(t, sawTextDelta)
}
