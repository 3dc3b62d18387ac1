// Package pruner token-counts a sanitized message history and, when over
// budget, truncates, summarizes, or drops the oldest messages in stages
// until the history fits the upstream's context window.
package pruner

import (
	"encoding/json"
	"math"

	"github.com/cwbridge/proxy/pkg/anthropic"
)

// MaxContext is the upstream's advertised context window in tokens.
const MaxContext = 200_000

// AutoPruneThreshold is 80% of MaxContext, the trigger point for pruning.
const AutoPruneThreshold = MaxContext * 8 / 10

// ReservedResponseTokens is always reserved for the response itself.
const ReservedResponseTokens = 4096

// jsonOverheadFactor accounts for JSON structural characters around a
// message's serialized form.
const jsonOverheadFactor = 1.10

// imageTokenCost is the flat per-image token charge.
const imageTokenCost = 1500

// EstimateTextTokens applies the fast-path estimator:
// tokens ≈ ceil(cjk_chars*2.5 + other_chars*0.35).
func EstimateTextTokens(text string) int {
	var cjk, other float64
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return int(math.Ceil(cjk*2.5 + other*0.35))
}

func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK Unified Ideographs
		return true
	case r >= 0x3040 && r <= 0x30FF: // Hiragana/Katakana
		return true
	case r >= 0xAC00 && r <= 0xD7A3: // Hangul
		return true
	default:
		return false
	}
}

// EstimateMessageTokens counts every content part (text, tool_result
// payload, tool_use input JSON, thinking), applies the +10% JSON overhead
// factor, and adds +1500 per image.
func EstimateMessageTokens(m anthropic.Message) int {
	var raw float64
	var images int
	for _, p := range m.Content {
		switch part := p.(type) {
		case *anthropic.TextPart:
			raw += float64(EstimateTextTokens(part.Text))
		case *anthropic.ThinkingPart:
			raw += float64(EstimateTextTokens(part.Thinking))
		case *anthropic.ToolUsePart:
			raw += float64(EstimateTextTokens(string(part.Input)))
		case *anthropic.ToolResultPart:
			raw += float64(EstimateTextTokens(part.Text()))
		case *anthropic.ImagePart:
			images++
		}
	}
	return int(math.Ceil(raw*jsonOverheadFactor)) + images*imageTokenCost
}

// EstimateMessagesTokens sums EstimateMessageTokens over a slice.
func EstimateMessagesTokens(messages []anthropic.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateMessageTokens(m)
	}
	return total
}

// EstimateToolsTokens approximates the token cost of a tool declaration
// list: ≈80 base + description + 50 per schema property.
func EstimateToolsTokens(tools []anthropic.Tool) int {
	total := 0
	for _, t := range tools {
		total += 80 + EstimateTextTokens(t.Description)
		total += 50 * countSchemaProperties(t.InputSchema)
	}
	return total
}

func countSchemaProperties(schema json.RawMessage) int {
	if len(schema) == 0 {
		return 0
	}
	var tree struct {
		Properties map[string]interface{} `json:"properties"`
	}
	if err := json.Unmarshal(schema, &tree); err != nil {
		return 0
	}
	return len(tree.Properties)
}

// ReservedTokens computes the reserved budget for a request: response
// tokens plus system-prompt tokens plus tool-declaration tokens.
func ReservedTokens(system string, tools []anthropic.Tool) int {
	return ReservedResponseTokens + EstimateTextTokens(system) + EstimateToolsTokens(tools)
}
