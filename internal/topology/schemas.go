package topology

import (
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const toolInputSchemaURL = "flowcheck://tool-input.json"

// schemaCache compiles tool input schemas once per distinct document within
// one Check call. It is owned by a single run and needs no locking.
type schemaCache map[string]map[string]any

// compile checks that raw is a valid JSON Schema and returns its top-level
// object.
func (c schemaCache) compile(raw string) (map[string]any, error) {
	if doc, ok := c[raw]; ok {
		return doc, nil
	}

	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("not valid JSON: %w", err)
	}
	doc, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema must be a JSON object")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(toolInputSchemaURL, doc); err != nil {
		return nil, err
	}
	if _, err := compiler.Compile(toolInputSchemaURL); err != nil {
		return nil, err
	}
	c[raw] = doc
	return doc, nil
}
