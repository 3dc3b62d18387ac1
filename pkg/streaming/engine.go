// Package streaming drives the upstream event-stream response, re-emitting
// it as the Anthropic streaming event grammar: message_start, interleaved
// thinking/text/tool_use content blocks, message_delta, message_stop, and
// the non-Anthropic code_references extension.
package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/cwbridge/proxy/pkg/anthropic"
	"github.com/cwbridge/proxy/pkg/cwerr"
	"github.com/cwbridge/proxy/pkg/eventstream"
	"github.com/cwbridge/proxy/pkg/pruner"
	"github.com/cwbridge/proxy/pkg/toolregistry"
)

// blockKind distinguishes which content block index is currently open for
// free-running (non-tool) content.
type blockKind int

const (
	blockNone blockKind = iota
	blockThinking
	blockText
)

// Emitter receives Anthropic events in emission order. The HTTP handler's
// SSE writer and the buffered (non-streaming) response assembler both
// implement it.
type Emitter interface {
	Emit(ev anthropic.Event) error
}

// ServerSideTool executes a tool server-side (e.g. webSearch) after the
// main stream completes and returns formatted result text to append as a
// trailing text block.
type ServerSideTool func(ctx context.Context, name string, input json.RawMessage) (string, error)

// Options configures one Run call.
type Options struct {
	MessageID          string // defaults to a generated id if empty
	Model              string
	Registry           *toolregistry.Registry
	ThinkingInjected   bool // true when thinking is simulated via <thinking> fences
	ServerSideTools    map[string]ServerSideTool
	DiscardUnparseable bool // cancellation contract: drop tool_use blocks whose input never parsed
}

// engine holds the mutable state of one Run call.
type engine struct {
	emit    Emitter
	opts    Options
	tracker *toolUseTracker

	nextIndex   int
	openKind    blockKind
	openIndex   int
	usedToolUse bool
	localTokens int
	codeRefs    []anthropic.CodeReference
	toolOutputs []string
}

func (e *engine) allocIndex() int {
	idx := e.nextIndex
	e.nextIndex++
	return idx
}

// closeFreeBlock emits content_block_stop for whatever free-running
// thinking/text block is currently open, if any.
func (e *engine) closeFreeBlock() error {
	if e.openKind == blockNone {
		return nil
	}
	idx := e.openIndex
	e.openKind = blockNone
	return e.emit.Emit(anthropic.ContentBlockStop{Index: idx})
}

func (e *engine) emitText(text string) error {
	if text == "" {
		return nil
	}
	if e.openKind != blockText {
		if err := e.closeFreeBlock(); err != nil {
			return err
		}
		e.openIndex = e.allocIndex()
		e.openKind = blockText
		if err := e.emit.Emit(anthropic.ContentBlockStart{Index: e.openIndex, ContentBlock: &anthropic.TextPart{Text: ""}}); err != nil {
			return err
		}
	}
	e.localTokens += pruner.EstimateTextTokens(text)
	return e.emit.Emit(anthropic.TextDelta(e.openIndex, text))
}

func (e *engine) emitThinking(text string) error {
	if text == "" {
		return nil
	}
	if e.openKind != blockThinking {
		if err := e.closeFreeBlock(); err != nil {
			return err
		}
		e.openIndex = e.allocIndex()
		e.openKind = blockThinking
		if err := e.emit.Emit(anthropic.ContentBlockStart{Index: e.openIndex, ContentBlock: &anthropic.ThinkingPart{Thinking: ""}}); err != nil {
			return err
		}
	}
	e.localTokens += pruner.EstimateTextTokens(text)
	return e.emit.Emit(anthropic.ThinkingDelta(e.openIndex, text))
}

func (e *engine) handleToolUse(ue *eventstream.UpstreamEvent) error {
	if err := e.closeFreeBlock(); err != nil {
		return err
	}
	p, first := e.tracker.observe(ue.ToolUse.ToolUseID, ue.ToolUse.Name, ue.ToolUse.Input, e.opts.Registry, e.allocIndex)
	if first {
		if err := e.emit.Emit(anthropic.ContentBlockStart{
			Index:        p.index,
			ContentBlock: &anthropic.ToolUsePart{ID: p.id, Name: p.name, Input: json.RawMessage("{}")},
		}); err != nil {
			return err
		}
	}
	if !ue.ToolUse.Stop {
		return nil
	}

	input, ok := p.finalize(e.opts.Registry, e.opts.DiscardUnparseable)
	if !ok {
		return nil // unparseable at cancellation: discard silently
	}
	e.usedToolUse = true
	e.localTokens += pruner.EstimateTextTokens(string(input))
	if err := e.emit.Emit(anthropic.InputJSONDelta(p.index, string(input))); err != nil {
		return err
	}
	if err := e.emit.Emit(anthropic.ContentBlockStop{Index: p.index}); err != nil {
		return err
	}

	tool, ok := e.opts.ServerSideTools[p.name]
	if !ok {
		return nil
	}
	// ctx is threaded through Run; server-side execution happens inline
	// here since results must land before message_delta's token count.
	result, terr := tool(context.Background(), p.name, input)
	if terr == nil {
		e.toolOutputs = append(e.toolOutputs, result)
	}
	return nil
}

// Run consumes decoded frames from r (an event-stream body) and emits the
// corresponding Anthropic event sequence to emit, until r is exhausted or
// ctx is cancelled. A non-nil error returned after emission has begun is
// the caller's cue to emit a terminal Anthropic error event.
func Run(ctx context.Context, r io.Reader, emit Emitter, opts Options) (stopReason string, err error) {
	if opts.MessageID == "" {
		opts.MessageID = "msg_" + uuid.New().String()
	}
	if err := emit.Emit(anthropic.NewMessageStart(opts.MessageID, opts.Model)); err != nil {
		return "", err
	}

	e := &engine{emit: emit, opts: opts, tracker: newToolUseTracker()}
	var splicer ThinkingSplicer
	var buf []byte
	readBuf := make([]byte, 32*1024)

readLoop:
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, readErr := r.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
			frames, rest, decodeErr := eventstream.Decode(buf)
			if decodeErr != nil {
				return "", decodeErr
			}
			buf = rest

			for _, f := range frames {
				ue, ierr := eventstream.Interpret(f)
				if ierr != nil || ue == nil {
					continue // malformed or unrecognized frame: skip, not fatal
				}

				switch ue.Kind {
				case "thinking":
					if err := e.emitThinking(ue.Thinking); err != nil {
						return "", err
					}

				case "content":
					if opts.ThinkingInjected {
						thinkingText, plainText := splicer.Feed(ue.Content.Text)
						if err := e.emitThinking(thinkingText); err != nil {
							return "", err
						}
						if err := e.emitText(plainText); err != nil {
							return "", err
						}
					} else if err := e.emitText(ue.Content.Text); err != nil {
						return "", err
					}

				case "toolUse":
					if err := e.handleToolUse(ue); err != nil {
						return "", err
					}

				case "codeReference":
					for _, ref := range ue.CodeReferences {
						e.codeRefs = append(e.codeRefs, anthropic.CodeReference{
							License:    ref.LicenseName,
							Repository: ref.Repository,
							URL:        ref.URL,
						})
					}

				case "metering", "metadata":
					// informational only; local token counting is authoritative
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break readLoop
			}
			if cwerr.IsSocketClassError(readErr) {
				return "", cwerr.New(cwerr.KindTransientTransport, 0, "upstream stream read failed", readErr)
			}
			return "", readErr
		}
	}

	if opts.ThinkingInjected {
		thinkingText, plainText := splicer.Flush()
		if err := e.emitThinking(thinkingText); err != nil {
			return "", err
		}
		if err := e.emitText(plainText); err != nil {
			return "", err
		}
	}
	for _, out := range e.toolOutputs {
		if err := e.emitText(out); err != nil {
			return "", err
		}
	}
	if err := e.closeFreeBlock(); err != nil {
		return "", err
	}
	if len(e.codeRefs) > 0 {
		if err := emit.Emit(anthropic.CodeReferencesEvent{References: e.codeRefs}); err != nil {
			return "", err
		}
	}

	stopReason = "end_turn"
	if e.usedToolUse {
		stopReason = "tool_use"
	}
	if err := emit.Emit(anthropic.MessageDelta{
		Delta: anthropic.MessageDeltaPayload{StopReason: stopReason},
		Usage: anthropic.Usage{OutputTokens: e.localTokens},
	}); err != nil {
		return "", err
	}
	return stopReason, emit.Emit(anthropic.MessageStop{})
}
