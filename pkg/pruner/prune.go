package pruner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cwbridge/proxy/pkg/anthropic"
)

// minMessagesKeptStage2 is the floor stage 2 (summarize oldest) respects
// before handing off to stage 3 (drop oldest).
const minMessagesKeptStage2 = 5

// minMessagesKeptStage3 is the floor stage 3 respects.
const minMessagesKeptStage3 = 5

// minMessagesKeptStage5 is the floor stage 5 (drop oldest, second pass)
// respects.
const minMessagesKeptStage5 = 1

// aiSummarizeCharCap is the raw-input size limit for an AI-assisted
// summarization call. summarizeOne does not check it: each AI call
// receives one message, whatever its length.
const aiSummarizeCharCap = 50_000

// aiSummarizeMinMessages is the message-count threshold for AI-assisted
// summarization. summarizeOne does not check it; the minimum-interval
// guard is the only one applied before an AI call.
const aiSummarizeMinMessages = 8

// aiSummarizeMinInterval is the guard on elapsed time since the last
// AI-assisted summarization.
const aiSummarizeMinInterval = 3 * time.Minute

// aiSummarizeTimeout bounds a single AI-assisted summarization call;
// exceeding it fails open to deterministic truncation.
const aiSummarizeTimeout = 60 * time.Second

// AISummarizeFunc calls the upstream with a dedicated summarization
// prompt and returns a single synthesized user message covering the
// given messages.
type AISummarizeFunc func(ctx context.Context, messages []anthropic.Message) (anthropic.Message, error)

// Options configures a Prune call.
type Options struct {
	Budget     int
	Reserved   int
	Summarizer Summarizer // defaults to DeterministicSummarizer
	// AISummarize, when set, is tried before DeterministicSummarizer for
	// stage-2/stage-4 summarization, subject to the minimum-interval guard
	// (aiSummarizeMinInterval); no message-count, input-size or
	// failure-count guard is applied.
	AISummarize AISummarizeFunc
	// LastAISummarize tracks the wall-clock time of the last successful
	// AI-assisted summarization, shared across Prune calls by the caller
	// (typically one instance per account or per process). Nil disables
	// the minimum-interval guard's memory, so every call is treated as
	// eligible.
	LastAISummarize *time.Time
}

// Prune applies the staged pruning algorithm until total tokens fit
// within budget-reserved, or no further stage can reduce size. The input
// slice is never mutated; a new slice is returned.
func Prune(ctx context.Context, messages []anthropic.Message, opts Options) []anthropic.Message {
	if opts.Summarizer == nil {
		opts.Summarizer = DeterministicSummarizer{}
	}
	budget := opts.Budget - opts.Reserved
	if budget <= 0 {
		budget = opts.Budget
	}

	out := cloneMessages(messages)
	if EstimateMessagesTokens(out) <= budget {
		return out
	}

	out = stage1TruncateOversized(out, budget)
	if EstimateMessagesTokens(out) <= budget {
		return out
	}

	out = stage2SummarizeOldest(ctx, out, budget, opts)
	if EstimateMessagesTokens(out) <= budget {
		return out
	}

	out = stage3DropOldest(out, budget, minMessagesKeptStage3)
	if EstimateMessagesTokens(out) <= budget {
		return out
	}

	out = stage4ContinueSummarizing(ctx, out, budget, opts)
	if EstimateMessagesTokens(out) <= budget {
		return out
	}

	out = stage3DropOldest(out, budget, minMessagesKeptStage5)
	if EstimateMessagesTokens(out) <= budget {
		return out
	}

	out = stage6FinalTailTrim(out, budget)
	return out
}

func cloneMessages(messages []anthropic.Message) []anthropic.Message {
	out := make([]anthropic.Message, len(messages))
	copy(out, messages)
	return out
}

// stage1: for each message whose tokens exceed MaxContext/3, truncate
// tool_result content to ~500 chars with a marker, or keep the tail of
// its text sized to the remaining delta.
func stage1TruncateOversized(messages []anthropic.Message, budget int) []anthropic.Message {
	threshold := MaxContext / 3
	out := make([]anthropic.Message, len(messages))
	for i, m := range messages {
		if EstimateMessageTokens(m) <= threshold {
			out[i] = m
			continue
		}
		out[i] = truncateOversizedMessage(m, threshold)
	}
	return out
}

func truncateOversizedMessage(m anthropic.Message, threshold int) anthropic.Message {
	hasToolResult := false
	for _, p := range m.Content {
		if _, ok := p.(*anthropic.ToolResultPart); ok {
			hasToolResult = true
			break
		}
	}

	newContent := make([]anthropic.ContentPart, len(m.Content))
	copy(newContent, m.Content)

	if hasToolResult {
		for i, p := range newContent {
			if tr, ok := p.(*anthropic.ToolResultPart); ok {
				text := truncateWithEllipsis(tr.Text(), 500)
				b, _ := json.Marshal(text + " ...[truncated]")
				newContent[i] = &anthropic.ToolResultPart{ToolUseID: tr.ToolUseID, Content: b, IsError: tr.IsError}
			}
		}
	} else {
		for i, p := range newContent {
			if tp, ok := p.(*anthropic.TextPart); ok {
				remaining := estimateCharBudgetForTokens(threshold)
				if len(tp.Text) > remaining {
					newContent[i] = &anthropic.TextPart{Text: "...[truncated]...\n" + tp.Text[len(tp.Text)-remaining:]}
				}
			}
		}
	}
	return anthropic.Message{Role: m.Role, Content: newContent}
}

// estimateCharBudgetForTokens inverts the fast-path estimator assuming
// plain (non-CJK) text, as a conservative sizing heuristic.
func estimateCharBudgetForTokens(tokens int) int {
	return int(float64(tokens) / 0.35)
}

// stage2: while over budget and more than minMessagesKeptStage2 remain,
// summarize the oldest messages one at a time.
func stage2SummarizeOldest(ctx context.Context, messages []anthropic.Message, budget int, opts Options) []anthropic.Message {
	out := cloneMessages(messages)
	for EstimateMessagesTokens(out) > budget && len(out) > minMessagesKeptStage2 {
		idx := firstUnsummarizedIndex(out)
		if idx == -1 {
			break
		}
		out[idx] = summarizeOne(ctx, out[idx], opts)
	}
	return out
}

// stage3: drop oldest messages while keeping at least floor.
func stage3DropOldest(messages []anthropic.Message, budget int, floor int) []anthropic.Message {
	out := cloneMessages(messages)
	for EstimateMessagesTokens(out) > budget && len(out) > floor {
		out = out[1:]
	}
	return out
}

// stage4: continue summarizing remaining messages, skipping ones already
// summarized.
func stage4ContinueSummarizing(ctx context.Context, messages []anthropic.Message, budget int, opts Options) []anthropic.Message {
	out := cloneMessages(messages)
	for EstimateMessagesTokens(out) > budget {
		idx := firstUnsummarizedIndex(out)
		if idx == -1 {
			break
		}
		out[idx] = summarizeOne(ctx, out[idx], opts)
	}
	return out
}

// stage6: final tail-trim of the first remaining message.
func stage6FinalTailTrim(messages []anthropic.Message, budget int) []anthropic.Message {
	if len(messages) == 0 {
		return messages
	}
	out := cloneMessages(messages)
	out[0] = truncateOversizedMessage(out[0], budget)
	return out
}

func firstUnsummarizedIndex(messages []anthropic.Message) int {
	for i, m := range messages {
		if !isAlreadySummarized(m) {
			return i
		}
	}
	return -1
}

func summarizeOne(ctx context.Context, m anthropic.Message, opts Options) anthropic.Message {
	if opts.AISummarize != nil && aiSummarizeGuardsPass(opts) {
		cctx, cancel := context.WithTimeout(ctx, aiSummarizeTimeout)
		defer cancel()
		summarized, err := opts.AISummarize(cctx, []anthropic.Message{m})
		if err == nil {
			if opts.LastAISummarize != nil {
				*opts.LastAISummarize = timeNow()
			}
			return summarized
		}
		// fail-open to deterministic truncation
	}
	return opts.Summarizer.Summarize(m)
}

func aiSummarizeGuardsPass(opts Options) bool {
	if opts.LastAISummarize == nil || opts.LastAISummarize.IsZero() {
		return true
	}
	return timeNow().Sub(*opts.LastAISummarize) >= aiSummarizeMinInterval
}

// timeNow is a seam so tests can freeze time if needed; production code
// always uses the real clock.
var timeNow = time.Now
