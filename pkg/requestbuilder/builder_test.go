package requestbuilder

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbridge/proxy/pkg/anthropic"
	"github.com/cwbridge/proxy/pkg/toolregistry"
)

func TestBuildSplicesSystemPromptIntoFirstUserMessage(t *testing.T) {
	registry := toolregistry.New(nil)
	in := Input{
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.ContentPart{&anthropic.TextPart{Text: "ping"}}},
		},
		System:   "Be concise.",
		ModelID:  "claude-sonnet-4-20250514",
		Registry: registry,
	}
	state := Build(in)
	assert.Contains(t, state.CurrentMessage.UserInputMessage.Content, "Be concise.")
	assert.Contains(t, state.CurrentMessage.UserInputMessage.Content, "ping")
}

func TestBuildPushesTrailingAssistantIntoHistory(t *testing.T) {
	registry := toolregistry.New(nil)
	in := Input{
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.ContentPart{&anthropic.TextPart{Text: "hi"}}},
			{Role: anthropic.RoleAssistant, Content: []anthropic.ContentPart{&anthropic.TextPart{Text: "hello"}}},
		},
		ModelID:  "claude-sonnet-4-20250514",
		Registry: registry,
	}
	state := Build(in)
	require.Len(t, state.History, 2)
	assert.Equal(t, "Continue", state.CurrentMessage.UserInputMessage.Content)
}

func TestBuildResolvesModelID(t *testing.T) {
	assert.Equal(t, "CLAUDE_SONNET_4_20250514_V1_0", ResolveModelID("claude-sonnet-4-20250514"))
	assert.Equal(t, DefaultUpstreamModelID, ResolveModelID("unknown-model"))
}

func TestBuildToolTrimPropagation(t *testing.T) {
	registry := toolregistry.New(map[string]toolregistry.Entry{
		"deprecated": {Remove: true},
	})
	input := json.RawMessage(`{}`)
	in := Input{
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.ContentPart{&anthropic.TextPart{Text: "go"}}},
			{Role: anthropic.RoleAssistant, Content: []anthropic.ContentPart{
				&anthropic.ToolUsePart{ID: "tu_1", Name: "deprecated", Input: input},
			}},
			{Role: anthropic.RoleUser, Content: []anthropic.ContentPart{
				&anthropic.ToolResultPart{ToolUseID: "tu_1", Content: json.RawMessage(`"ok"`)},
			}},
			{Role: anthropic.RoleAssistant, Content: []anthropic.ContentPart{&anthropic.TextPart{Text: "done"}}},
		},
		ModelID:  "claude-sonnet-4-20250514",
		Registry: registry,
	}
	state := Build(in)
	for _, m := range state.History {
		if m.AssistantResponseMessage != nil {
			assert.Empty(t, m.AssistantResponseMessage.ToolUses)
		}
		if m.UserInputMessage != nil && m.UserInputMessage.UserInputMessageContext != nil {
			assert.Empty(t, m.UserInputMessage.UserInputMessageContext.ToolResults)
		}
	}
}
