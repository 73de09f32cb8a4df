package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) for the
// single-invoice response shape, as a generic map. It is embedded in the
// recognition prompt and reused locally for advisory validation. Validation
// failures are logged, never fatal: the normalizer tolerates partial records.
func BuildInvoiceJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"supplier_name": map[string]any{"type": "string"},
			"supplier_tax_id": map[string]any{
				"type":    []string{"string", "null"},
				"pattern": `^\d{8}$`,
			},
			"invoice_number": map[string]any{
				"type":    []string{"string", "null"},
				"pattern": `^[A-Z]{2}-?\d{8}$`,
			},
			"invoice_date": map[string]any{
				"type":    []string{"string", "null"},
				"pattern": `^\d{4}-\d{2}-\d{2}$`,
			},
			"category":     map[string]any{"type": "string"},
			"total_amount": map[string]any{"type": "number", "minimum": 0},
			"tax_amount":   map[string]any{"type": "number", "minimum": 0},
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"description": map[string]any{"type": "string"},
						"amount":      map[string]any{"type": "number"},
					},
				},
			},
		},
		"required": []string{"supplier_name", "total_amount"},
	}
}

// ValidateAgainstSchema validates data against schemaMap.
func ValidateAgainstSchema(schemaMap map[string]any, data []byte) error {
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
