package transport

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives a JSON Schema from a Go struct type, shaped for the
// Parameters field of a ToolDef. Inlined with no $ref indirection because
// providers reject referenced schemas.
func SchemaFor[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(&v)

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// ToolDefFor builds a ToolDef whose parameter schema is derived from T.
func ToolDefFor[T any](name, description string) ToolDef {
	return ToolDef{
		Name:        name,
		Description: description,
		Parameters:  SchemaFor[T](),
	}
}
