package sanitizer

import (
	"encoding/json"
	"testing"

	"github.com/cwbridge/proxy/pkg/anthropic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(s string) []anthropic.ContentPart {
	return []anthropic.ContentPart{&anthropic.TextPart{Text: s}}
}

func TestSanitizeIdempotent(t *testing.T) {
	messages := []anthropic.Message{
		{Role: anthropic.RoleUser, Content: text("hi")},
		{Role: anthropic.RoleUser, Content: text("again")},
		{Role: anthropic.RoleAssistant, Content: text("ok")},
	}
	once := Sanitize(messages)
	twice := Sanitize(once)
	assert.Equal(t, mustJSON(t, once), mustJSON(t, twice))
}

func TestSanitizeEmptyMessagesListBecomesHello(t *testing.T) {
	out := Sanitize(nil)
	require.Len(t, out, 1)
	assert.Equal(t, anthropic.RoleUser, out[0].Role)
	assert.Equal(t, "Hello", out[0].Text())
}

func TestSanitizeSingleAssistantPrependsUser(t *testing.T) {
	out := Sanitize([]anthropic.Message{
		{Role: anthropic.RoleAssistant, Content: text("hi there")},
	})
	require.True(t, len(out) >= 2)
	assert.Equal(t, anthropic.RoleUser, out[0].Role)
}

func TestSanitizeAlternation(t *testing.T) {
	messages := []anthropic.Message{
		{Role: anthropic.RoleUser, Content: text("a")},
		{Role: anthropic.RoleUser, Content: text("b")},
		{Role: anthropic.RoleAssistant, Content: text("c")},
		{Role: anthropic.RoleAssistant, Content: text("d")},
	}
	out := Sanitize(messages)
	for i := 0; i+1 < len(out); i++ {
		assert.NotEqual(t, out[i].Role, out[i+1].Role, "messages %d and %d have the same role", i, i+1)
	}
	assert.Equal(t, anthropic.RoleUser, out[0].Role)
	assert.Equal(t, anthropic.RoleUser, out[len(out)-1].Role)
}

func TestSanitizeEndsWithUser(t *testing.T) {
	out := Sanitize([]anthropic.Message{
		{Role: anthropic.RoleUser, Content: text("hi")},
		{Role: anthropic.RoleAssistant, Content: text("hello")},
	})
	assert.Equal(t, anthropic.RoleUser, out[len(out)-1].Role)
}

func TestSanitizeSyntheticToolResultForMissingPairing(t *testing.T) {
	messages := []anthropic.Message{
		{Role: anthropic.RoleUser, Content: text("run a tool")},
		{Role: anthropic.RoleAssistant, Content: []anthropic.ContentPart{
			&anthropic.ToolUsePart{ID: "tu_1", Name: "Read"},
		}},
		{Role: anthropic.RoleUser, Content: text("thanks")},
	}
	out := Sanitize(messages)

	var sawPairing bool
	for i := 0; i+1 < len(out); i++ {
		if out[i].Role == anthropic.RoleAssistant {
			toolUses := out[i].ToolUses()
			if len(toolUses) == 0 {
				continue
			}
			results := out[i+1].ToolResults()
			ids := map[string]bool{}
			for _, r := range results {
				ids[r.ToolUseID] = true
			}
			for _, tu := range toolUses {
				assert.True(t, ids[tu.ID], "tool_use %s has no paired tool_result", tu.ID)
			}
			sawPairing = true
		}
	}
	assert.True(t, sawPairing)
}

func TestSanitizeDropsUnparseableTruncatedAssistantJSON(t *testing.T) {
	messages := []anthropic.Message{
		{Role: anthropic.RoleUser, Content: text("go")},
		{Role: anthropic.RoleAssistant, Content: text(`{"incomplete": tr`)},
	}
	out := Sanitize(messages)
	for _, m := range out {
		if m.Role == anthropic.RoleAssistant {
			assert.NotEqual(t, `{"incomplete": tr`, m.Text())
		}
	}
}

func mustJSON(t *testing.T, messages []anthropic.Message) string {
	t.Helper()
	b, err := json.Marshal(messages)
	require.NoError(t, err)
	return string(b)
}
