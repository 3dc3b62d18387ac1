package toolregistry

import "github.com/cwbridge/proxy/pkg/anthropic"

// FilterResult is the outcome of applying the hard limits to a client's
// tool list: builtin tools removed, size-capped, with the set of kept
// names available for tool-trim propagation in the request builder.
type FilterResult struct {
	Kept    []anthropic.Tool
	KeptSet map[string]bool
}

// Filter drops Anthropic builtin tools and caps the remainder at
// MaxTools, preserving registration order. Tools the registry marks
// Remove:true are also dropped here so the request builder never sees
// them.
func (r *Registry) Filter(tools []anthropic.Tool) FilterResult {
	kept := make([]anthropic.Tool, 0, len(tools))
	keptSet := make(map[string]bool)
	for _, t := range tools {
		if t.IsBuiltin() || IsBuiltin(t.Name) {
			continue
		}
		if entry, ok := r.Lookup(t.Name); ok && entry.Remove {
			continue
		}
		if len(kept) >= MaxTools {
			continue
		}
		kept = append(kept, t)
		keptSet[t.Name] = true
	}
	return FilterResult{Kept: kept, KeptSet: keptSet}
}
