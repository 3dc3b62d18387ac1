package streaming

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbridge/proxy/pkg/toolregistry"
)

func TestToolUseTrackerAccumulatesAcrossFrames(t *testing.T) {
	registry := toolregistry.New(nil)
	tracker := newToolUseTracker()
	next := 0
	alloc := func() int { idx := next; next++; return idx }

	p, first := tracker.observe("tu_1", "search", `{"quer`, registry, alloc)
	assert.True(t, first)
	p2, second := tracker.observe("tu_1", "search", `y":"go"}`, registry, alloc)
	assert.False(t, second)
	assert.Same(t, p, p2)

	input, ok := p.finalize(registry, false)
	require.True(t, ok)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(input, &decoded))
	assert.Equal(t, "go", decoded["query"])
}

func TestToolUseTrackerFallsBackToEmptyObjectOnUnparseable(t *testing.T) {
	registry := toolregistry.New(nil)
	tracker := newToolUseTracker()
	next := 0
	alloc := func() int { idx := next; next++; return idx }

	p, _ := tracker.observe("tu_2", "broken_tool", `{"not closed`, registry, alloc)
	input, ok := p.finalize(registry, false)
	require.True(t, ok)
	assert.Equal(t, "{}", string(input))
}

func TestToolUseTrackerDiscardsUnparseableWhenRequested(t *testing.T) {
	registry := toolregistry.New(nil)
	tracker := newToolUseTracker()
	next := 0
	alloc := func() int { idx := next; next++; return idx }

	p, _ := tracker.observe("tu_3", "broken_tool", `{"not closed`, registry, alloc)
	_, ok := p.finalize(registry, true)
	assert.False(t, ok)
}

func TestToolUseTrackerResolvesCCNameFromUpstreamRename(t *testing.T) {
	registry := toolregistry.New(map[string]toolregistry.Entry{
		"readFile": {UpstreamName: "fsRead"},
	})
	tracker := newToolUseTracker()
	next := 0
	alloc := func() int { idx := next; next++; return idx }

	p, _ := tracker.observe("tu_4", "fsRead", `{}`, registry, alloc)
	assert.Equal(t, "readFile", p.name)
}
