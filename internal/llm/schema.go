package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ExtractionSchema returns the JSON-Schema for the structured-extraction
// response: an object wrapping an array of per-subject standard lists. The
// schema is described to the model in the prompt and enforced locally before
// the response is folded into EvaluationData.
func ExtractionSchema() map[string]any {
	standard := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":   map[string]any{"type": "string", "minLength": 1},
			"text": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []string{"id", "text"},
	}
	subject := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subject": map[string]any{"type": "string", "minLength": 1},
			"standards": map[string]any{
				"type":  "array",
				"items": standard,
			},
		},
		"required": []string{"subject", "standards"},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"subjects": map[string]any{
				"type":  "array",
				"items": subject,
			},
		},
		"required": []string{"subjects"},
	}
}

// validateJSONAgainstSchema validates data against a schema map.
func validateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
