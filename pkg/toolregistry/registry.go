// Package toolregistry maps client tool names/params to upstream tool
// names/params and back, filters tools the upstream cannot accept, and
// cleanses JSON schemas of keywords the upstream rejects. One canonical
// table drives both directions, replacing the duplicated mapping the
// teacher's provider-format converters kept separately per provider.
package toolregistry

import (
	"encoding/json"
	"strings"
	"sync"
)

// MaxTools is the hard per-request cap; entries beyond this are dropped
// in registration order, not priority order.
const MaxTools = 25

// descriptionCap is the length at which a tool description is truncated
// with an ellipsis before being sent upstream.
const descriptionCap = 500

// Entry is one registry row: either a rename/remap (Map) or a drop
// (Remove:true).
type Entry struct {
	UpstreamName      string
	ParamMap          map[string]string // ccParam -> upstreamParam
	FixedParams       map[string]json.RawMessage
	Description       string
	ServerSideExecute bool
	Remove            bool
	RemoveReason      string
}

// reverseParamMap is cached per entry once, since ParamMap never changes
// after registration.
type compiledEntry struct {
	Entry
	reverse map[string]string
}

// Registry holds the static ccName -> Entry table plus the fixed
// block-list of upstream-only parameter names stripped from inbound
// tool_use input.
type Registry struct {
	mu             sync.RWMutex
	entries        map[string]compiledEntry
	byUpstreamName map[string]string // upstreamName -> ccName, for entries that rename
}

// upstreamOnlyParams is stripped from any tool_use input returned to the
// client, regardless of which tool produced it.
var upstreamOnlyParams = map[string]bool{
	"explanation":         true,
	"ignoreWarning":       true,
	"depth":               true,
	"reason":              true,
	"caseSensitive":       true,
	"excludePattern":      true,
	"includeIgnoredFiles": true,
	"raw":                 true,
	"raw_arguments":       true,
	"value":               true,
}

// builtinToolNames is the fixed allow-list of Anthropic typed builtin
// tools filtered out before forwarding; the upstream rejects them.
var builtinToolNames = map[string]bool{
	"web_search": true,
	"computer":   true,
	"bash":       true,
	"str_replace_based_edit_tool": true,
	"code_execution":              true,
}

// New builds a registry from a set of entries keyed by client tool name.
func New(table map[string]Entry) *Registry {
	r := &Registry{
		entries:        make(map[string]compiledEntry, len(table)),
		byUpstreamName: make(map[string]string, len(table)),
	}
	for name, entry := range table {
		r.register(name, entry)
	}
	return r
}

func (r *Registry) register(name string, entry Entry) {
	reverse := make(map[string]string, len(entry.ParamMap))
	for cc, upstream := range entry.ParamMap {
		reverse[upstream] = cc
	}
	if len(entry.Description) > descriptionCap {
		entry.Description = entry.Description[:descriptionCap] + "..."
	}
	r.entries[name] = compiledEntry{Entry: entry, reverse: reverse}
	if entry.UpstreamName != "" {
		r.byUpstreamName[entry.UpstreamName] = name
	}
}

// CCNameForUpstream reverses a tool_use event's upstream name back to the
// client-facing tool name, for tools the registry renamed. Unrenamed
// upstream names pass through unchanged.
func (r *Registry) CCNameForUpstream(upstreamName string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cc, ok := r.byUpstreamName[upstreamName]; ok {
		return cc
	}
	return upstreamName
}

// Lookup returns the entry for a client tool name, if registered.
func (r *Registry) Lookup(ccName string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ce, ok := r.entries[ccName]
	return ce.Entry, ok
}

// reverseFor returns the cached upstreamParam -> ccParam map built once at
// registration, or nil if ccName isn't registered or has no ParamMap.
func (r *Registry) reverseFor(ccName string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ce, ok := r.entries[ccName]
	if !ok {
		return nil
	}
	return ce.reverse
}

// IsBuiltin reports whether name is one of Anthropic's reserved builtin
// tool type/name strings.
func IsBuiltin(name string) bool {
	return builtinToolNames[name]
}

// MapOutbound rewrites a client tool-call input to upstream shape: every
// present ccParam named in paramMap is renamed, unmatched keys pass
// through unchanged, and fixedParams are merged last (winning on
// collision). A nil/empty input becomes {}.
func (r *Registry) MapOutbound(ccName string, input json.RawMessage) json.RawMessage {
	entry, ok := r.Lookup(ccName)
	if !ok || len(entry.ParamMap) == 0 && len(entry.FixedParams) == 0 {
		if len(input) == 0 || string(input) == "null" {
			return json.RawMessage("{}")
		}
		return input
	}

	obj := decodeObject(input)
	out := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		if upstreamKey, renamed := entry.ParamMap[k]; renamed {
			out[upstreamKey] = v
		} else {
			out[k] = v
		}
	}
	for k, v := range entry.FixedParams {
		out[k] = v
	}
	return encodeObject(out)
}

// MapInbound reverses the mapping applied to an upstream tool_use.input
// for a registered tool, then strips the fixed block-list of
// upstream-only parameter names regardless of registration.
func (r *Registry) MapInbound(ccName string, input json.RawMessage) json.RawMessage {
	rev := r.reverseFor(ccName)
	obj := decodeObject(input)
	out := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		key := k
		if rev != nil {
			if mapped, found := rev[k]; found {
				key = mapped
			}
		}
		if upstreamOnlyParams[key] {
			continue
		}
		out[key] = v
	}
	return encodeObject(out)
}

func decodeObject(input json.RawMessage) map[string]json.RawMessage {
	if len(input) == 0 {
		return map[string]json.RawMessage{}
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(input, &obj); err != nil {
		return map[string]json.RawMessage{}
	}
	return obj
}

func encodeObject(obj map[string]json.RawMessage) json.RawMessage {
	b, err := json.Marshal(obj)
	if err != nil {
		return json.RawMessage("{}")
	}
	return json.RawMessage(b)
}

// TruncateDescription applies the ~500-char compression rule to an
// arbitrary description string, for callers assembling entries outside
// New (e.g. from a dynamically loaded table).
func TruncateDescription(desc string) string {
	if len(desc) <= descriptionCap {
		return desc
	}
	return strings.TrimSpace(desc[:descriptionCap]) + "..."
}
