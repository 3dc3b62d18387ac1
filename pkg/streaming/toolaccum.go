package streaming

import (
	"encoding/json"

	"github.com/cwbridge/proxy/pkg/internal/jsonutil"
	"github.com/cwbridge/proxy/pkg/toolregistry"
)

// pendingToolUse accumulates one tool_use's input string across frames
// until the upstream marks it stopped. name is the client-facing (ccName)
// tool name, already reversed from whatever name the upstream used.
type pendingToolUse struct {
	index  int
	name   string
	id     string
	parser *jsonutil.StreamingParser
}

// toolUseTracker accumulates each toolUseId's input across frames, keyed
// by upstream toolUseId. Block indices come from the engine's shared
// counter, since tool_use blocks share one index sequence with the
// thinking/text blocks that may precede them.
type toolUseTracker struct {
	byID  map[string]*pendingToolUse
	order []string
}

func newToolUseTracker() *toolUseTracker {
	return &toolUseTracker{byID: map[string]*pendingToolUse{}}
}

// observe records one toolUse frame, keyed by the upstream's own name.
// firstSight reports whether this is the first frame seen for this
// toolUseId (the caller should emit content_block_start on first sight,
// after allocating an index from the shared counter).
func (t *toolUseTracker) observe(toolUseID, upstreamName, inputChunk string, registry *toolregistry.Registry, allocIndex func() int) (p *pendingToolUse, firstSight bool) {
	p, ok := t.byID[toolUseID]
	if !ok {
		ccName := registry.CCNameForUpstream(upstreamName)
		p = &pendingToolUse{index: allocIndex(), name: ccName, id: toolUseID, parser: jsonutil.NewStreamingParser()}
		t.byID[toolUseID] = p
		t.order = append(t.order, toolUseID)
		firstSight = true
	}
	if inputChunk != "" {
		p.parser.Append(inputChunk)
	}
	return p, firstSight
}

// finalize parses the accumulated input (falling back to {} on failure),
// reverse-maps it through the tool registry, and returns the bytes for an
// input_json_delta. ok is false when the accumulated input never parsed
// and the block should be discarded rather than emitted (cancellation
// contract).
func (p *pendingToolUse) finalize(registry *toolregistry.Registry, discardUnparseable bool) (input json.RawMessage, ok bool) {
	raw := p.parser.GetCurrent()
	if raw == "" {
		raw = "{}"
	}
	var probe interface{}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		if fixed, ferr := jsonutil.FixJSON(raw); ferr == nil {
			raw = fixed
		} else if discardUnparseable {
			return nil, false
		} else {
			raw = "{}"
		}
	}
	mapped := registry.MapInbound(p.name, json.RawMessage(raw))
	return mapped, true
}
