package toolregistry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// forbiddenKeywords are JSON-schema keywords the upstream rejects outright.
// Everything else (types, required, enum, validators) is preserved.
var forbiddenKeywords = map[string]bool{
	"$schema":              true,
	"$id":                  true,
	"$defs":                true,
	"definitions":          true,
	"examples":             true,
	"allOf":                true,
	"anyOf":                true,
	"oneOf":                true,
	"not":                  true,
	"if":                   true,
	"then":                 true,
	"else":                 true,
	"additionalItems":      true,
	"unevaluatedItems":     true,
	"unevaluatedProperties": true,
	"dependentSchemas":     true,
	"dependentRequired":    true,
}

// CleanseSchema strips forbidden keywords recursively, covering
// properties, items, and object-valued additionalProperties. The input is
// never mutated; a new map tree is returned.
func CleanseSchema(schema json.RawMessage) json.RawMessage {
	if len(schema) == 0 {
		return schema
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(schema, &tree); err != nil {
		return schema
	}
	cleansed := cleanseNode(tree)
	out, err := json.Marshal(cleansed)
	if err != nil {
		return schema
	}
	return out
}

func cleanseNode(node map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(node))
	for k, v := range node {
		if forbiddenKeywords[k] {
			continue
		}
		switch k {
		case "properties":
			if props, ok := v.(map[string]interface{}); ok {
				cleanedProps := make(map[string]interface{}, len(props))
				for name, prop := range props {
					if propMap, ok := prop.(map[string]interface{}); ok {
						cleanedProps[name] = cleanseNode(propMap)
					} else {
						cleanedProps[name] = prop
					}
				}
				out[k] = cleanedProps
				continue
			}
		case "items":
			if itemMap, ok := v.(map[string]interface{}); ok {
				out[k] = cleanseNode(itemMap)
				continue
			}
		case "additionalProperties":
			if apMap, ok := v.(map[string]interface{}); ok {
				out[k] = cleanseNode(apMap)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// ValidateInput diagnostically cross-checks a reconstructed tool_use
// input against the tool's (cleansed) declared schema, using
// santhosh-tekuri/jsonschema/v6. Validation failures are never fatal,
// since the upstream's own enforcement is authoritative; callers should log
// the returned error and continue.
func ValidateInput(schema json.RawMessage, input json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return fmt.Errorf("toolregistry: decode schema: %w", err)
	}
	const resourceName = "tool-input-schema.json"
	if err := compiler.AddResource(resourceName, schemaDoc); err != nil {
		return fmt.Errorf("toolregistry: add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("toolregistry: compile schema: %w", err)
	}

	inputDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(input))
	if err != nil {
		return fmt.Errorf("toolregistry: decode input: %w", err)
	}
	if err := compiled.Validate(inputDoc); err != nil {
		return fmt.Errorf("toolregistry: input does not satisfy schema: %w", err)
	}
	return nil
}
