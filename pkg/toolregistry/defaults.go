package toolregistry

// DefaultTable is the standard client-tool-name to upstream-tool-name
// mapping for the coding-agent tool surface this proxy forwards. Read's
// rename/paramMap (file_path -> path) sets the shape; the remaining file
// and shell tools follow it.
func DefaultTable() map[string]Entry {
	return map[string]Entry{
		"Read": {
			UpstreamName: "readFile",
			ParamMap:     map[string]string{"file_path": "path"},
		},
		"Write": {
			UpstreamName: "fsWrite",
			ParamMap:     map[string]string{"file_path": "path", "content": "fileText"},
		},
		"Edit": {
			UpstreamName: "fsReplace",
			ParamMap: map[string]string{
				"file_path":  "path",
				"old_string": "oldStr",
				"new_string": "newStr",
			},
		},
		"Bash": {
			UpstreamName: "executeBash",
			ParamMap:     map[string]string{"command": "command"},
		},
		"Glob": {
			UpstreamName: "fileSearch",
			ParamMap:     map[string]string{"pattern": "pattern", "path": "directory"},
		},
		"Grep": {
			UpstreamName: "grepSearch",
			ParamMap:     map[string]string{"pattern": "query", "path": "directory"},
		},
		"WebSearch": {
			UpstreamName:      "webSearch",
			ParamMap:          map[string]string{"query": "query"},
			ServerSideExecute: true,
		},
	}
}
