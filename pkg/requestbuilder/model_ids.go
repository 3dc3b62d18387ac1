package requestbuilder

// DefaultUpstreamModelID is used when a client model id has no entry in
// the mapping table.
const DefaultUpstreamModelID = "CLAUDE_SONNET_4_20250514_V1_0"

// modelIDTable maps a client-facing Anthropic model id to the upstream's
// quirky encoding (dots/underscores/uppercase "V1_0" suffixes preserved
// exactly as AWS defines them (these are not normalized).
var modelIDTable = map[string]string{
	"claude-opus-4-6":             "CLAUDE_OPUS_4_6_V1_0",
	"claude-sonnet-4-6":           "CLAUDE_SONNET_4_6_V1_0",
	"claude-opus-4-5-20251101":    "CLAUDE_OPUS_4_5_20251101_V1_0",
	"claude-opus-4-5":             "CLAUDE_OPUS_4_5_V1_0",
	"claude-opus-4-20250514":      "CLAUDE_OPUS_4_20250514_V1_0",
	"claude-sonnet-4-5-20250929":  "CLAUDE_SONNET_4_5_20250929_V1_0",
	"claude-sonnet-4-5":           "CLAUDE_SONNET_4_5_V1_0",
	"claude-sonnet-4-20250514":    "CLAUDE_SONNET_4_20250514_V1_0",
	"claude-haiku-4-5-20251001":   "CLAUDE_HAIKU_4_5_20251001_V1_0",
	"claude-haiku-4-5":            "CLAUDE_HAIKU_4_5_V1_0",
	"claude-3-7-sonnet-20250219":  "CLAUDE_3_7_SONNET_20250219_V1_0",
	"claude-3-5-haiku-20241022":   "CLAUDE_3_5_HAIKU_20241022_V1_0",
	"claude-3-5-sonnet-20241022":  "CLAUDE_3_5_SONNET_20241022_V1_0",
	"claude-3-opus-20240229":      "CLAUDE_3_OPUS_20240229_V1_0",
	"claude-3-haiku-20240307":     "CLAUDE_3_HAIKU_20240307_V1_0",
}

// ResolveModelID maps a client model id to its upstream encoding,
// falling back to DefaultUpstreamModelID for unrecognized values.
func ResolveModelID(clientModelID string) string {
	if upstream, ok := modelIDTable[clientModelID]; ok {
		return upstream
	}
	return DefaultUpstreamModelID
}
