package pruner

import (
	"encoding/json"

	"github.com/cwbridge/proxy/pkg/anthropic"
)

// textTruncateLen is the default text summarization length (first N
// chars + ellipsis).
const textTruncateLen = 1000

// toolResultTruncateLen bounds tool_result content during summarization.
const toolResultTruncateLen = 2000

// isAlreadySummarized matches the marker a prior summarization pass
// leaves behind, so stage 4 can skip messages it already compressed.
func isAlreadySummarized(m anthropic.Message) bool {
	text := m.Text()
	return len(text) <= textTruncateLen+len("...") && hasSuffix(text, "...")
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// Summarizer produces a condensed version of a message. DeterministicSummarizer
// is always available; an AI-assisted Summarizer may be substituted via
// Options.Summarizer for a higher-fidelity (but slower, fallible) pass.
type Summarizer interface {
	Summarize(m anthropic.Message) anthropic.Message
}

// DeterministicSummarizer truncates text parts to textTruncateLen chars
// and tool_result contents to toolResultTruncateLen chars; tool_use parts
// are preserved structurally since the upstream needs the full input to
// keep tool_use/tool_result pairing intact.
type DeterministicSummarizer struct{}

func (DeterministicSummarizer) Summarize(m anthropic.Message) anthropic.Message {
	out := anthropic.Message{Role: m.Role}
	for _, p := range m.Content {
		switch part := p.(type) {
		case *anthropic.TextPart:
			out.Content = append(out.Content, &anthropic.TextPart{Text: truncateWithEllipsis(part.Text, textTruncateLen)})
		case *anthropic.ToolResultPart:
			text := part.Text()
			truncated := truncateWithEllipsis(text, toolResultTruncateLen)
			b, _ := json.Marshal(truncated)
			out.Content = append(out.Content, &anthropic.ToolResultPart{
				ToolUseID: part.ToolUseID,
				Content:   b,
				IsError:   part.IsError,
			})
		default:
			out.Content = append(out.Content, p)
		}
	}
	return out
}

func truncateWithEllipsis(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
