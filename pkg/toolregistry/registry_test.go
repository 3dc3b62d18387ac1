package toolregistry

import (
	"encoding/json"
	"testing"

	"github.com/cwbridge/proxy/pkg/anthropic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	return New(map[string]Entry{
		"Read": {
			UpstreamName: "readFile",
			ParamMap:     map[string]string{"file_path": "path"},
		},
		"deprecatedTool": {
			Remove:       true,
			RemoveReason: "upstream no longer supports it",
		},
	})
}

func TestRoundTripParamMap(t *testing.T) {
	r := testRegistry()
	input := json.RawMessage(`{"file_path":"/tmp/x","limit":10}`)

	mapped := r.MapOutbound("Read", input)
	back := r.MapInbound("Read", mapped)

	var original, roundTripped map[string]interface{}
	require.NoError(t, json.Unmarshal(input, &original))
	require.NoError(t, json.Unmarshal(back, &roundTripped))
	assert.Equal(t, original, roundTripped)
}

func TestMapOutboundNilInputBecomesEmptyObject(t *testing.T) {
	r := testRegistry()
	mapped := r.MapOutbound("Read", nil)
	assert.JSONEq(t, `{}`, string(mapped))
}

func TestMapInboundStripsUpstreamOnlyParams(t *testing.T) {
	r := testRegistry()
	input := json.RawMessage(`{"path":"/tmp/x","explanation":"because","raw":"y"}`)
	out := r.MapInbound("Read", input)

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &obj))
	assert.Contains(t, obj, "file_path")
	assert.NotContains(t, obj, "explanation")
	assert.NotContains(t, obj, "raw")
}

func TestFilterDropsBuiltinsAndCapsAt25(t *testing.T) {
	r := New(map[string]Entry{})
	tools := []anthropic.Tool{{Type: "web_search_20250305", Name: "web_search"}}
	for i := 0; i < 30; i++ {
		tools = append(tools, anthropic.Tool{Name: fmt400(i)})
	}

	result := r.Filter(tools)
	assert.Len(t, result.Kept, 25)
	for _, kept := range result.Kept {
		assert.NotEqual(t, "web_search", kept.Name)
	}
}

func TestFilterDropsRemovedTools(t *testing.T) {
	r := testRegistry()
	tools := []anthropic.Tool{{Name: "Read"}, {Name: "deprecatedTool"}}
	result := r.Filter(tools)
	assert.Len(t, result.Kept, 1)
	assert.Equal(t, "Read", result.Kept[0].Name)
}

func TestCleanseSchemaRemovesForbiddenKeywords(t *testing.T) {
	schema := json.RawMessage(`{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "enum": ["a","b"]},
			"nested": {"type":"object", "anyOf":[{"type":"string"}], "properties": {"x": {"type":"number","not":{}}}}
		}
	}`)

	out := CleanseSchema(schema)
	var tree map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &tree))

	for forbidden := range forbiddenKeywords {
		assertNoKey(t, tree, forbidden)
	}
	assert.Equal(t, "object", tree["type"])
	assert.Contains(t, tree, "required")
}

func assertNoKey(t *testing.T, node interface{}, key string) {
	switch v := node.(type) {
	case map[string]interface{}:
		if _, ok := v[key]; ok {
			t.Fatalf("found forbidden key %q", key)
		}
		for _, child := range v {
			assertNoKey(t, child, key)
		}
	case []interface{}:
		for _, child := range v {
			assertNoKey(t, child, key)
		}
	}
}

func fmt400(i int) string {
	return "tool_" + string(rune('a'+i%26)) + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
