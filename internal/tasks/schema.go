package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaError reports a value rejected by a task's input or output schema.
type SchemaError struct {
	Slug  string
	Stage string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("task %s: %s does not match schema: %v", e.Slug, e.Stage, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	doc, err := normalizeJSON(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// validateValue checks v against schema. A nil schema accepts everything.
func validateValue(schema *jsonschema.Schema, v any) error {
	if schema == nil {
		return nil
	}
	doc, err := normalizeJSON(v)
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}

// normalizeJSON round-trips v through encoding/json so that script-produced
// values ([]string, int, structs) take the shapes the validator expects.
func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}
