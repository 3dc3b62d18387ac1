package pruner

import (
	"context"
	"strings"
	"testing"

	"github.com/cwbridge/proxy/pkg/anthropic"
	"github.com/stretchr/testify/assert"
)

func bigUserMessage(n int) anthropic.Message {
	return anthropic.Message{
		Role:    anthropic.RoleUser,
		Content: []anthropic.ContentPart{&anthropic.TextPart{Text: strings.Repeat("word ", n)}},
	}
}

func TestPruneStaysWithinBudget(t *testing.T) {
	var messages []anthropic.Message
	for i := 0; i < 40; i++ {
		messages = append(messages, bigUserMessage(2000))
		messages = append(messages, anthropic.Message{
			Role:    anthropic.RoleAssistant,
			Content: []anthropic.ContentPart{&anthropic.TextPart{Text: strings.Repeat("reply ", 2000)}},
		})
	}

	budget := 20_000
	out := Prune(context.Background(), messages, Options{Budget: budget, Reserved: 0})

	assert.LessOrEqual(t, EstimateMessagesTokens(out), budget)
}

func TestPruneBelowBudgetIsUnchanged(t *testing.T) {
	messages := []anthropic.Message{
		{Role: anthropic.RoleUser, Content: []anthropic.ContentPart{&anthropic.TextPart{Text: "hi"}}},
	}
	out := Prune(context.Background(), messages, Options{Budget: MaxContext, Reserved: ReservedResponseTokens})
	assert.Equal(t, messages, out)
}

func TestEstimateTextTokensCJKWeightsHigher(t *testing.T) {
	latin := EstimateTextTokens(strings.Repeat("a", 100))
	cjk := EstimateTextTokens(strings.Repeat("中", 100))
	assert.Greater(t, cjk, latin)
}
