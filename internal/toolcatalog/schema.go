package toolcatalog

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	jsonschemav6 "github.com/santhosh-tekuri/jsonschema/v6"
)

var reflector = &jsonschema.Reflector{
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: false,
}

// GenerateSchema reflects a parameter struct into its JSON Schema
// representation, used to build each tool's ParameterSchema().
func GenerateSchema(params any) json.RawMessage {
	schema := reflector.Reflect(params)
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("toolcatalog: failed to marshal generated schema: %v", err))
	}
	return raw
}

// ValidateParameters validates a tool call's raw JSON parameters against
// its generated schema before the tool ever runs.
func ValidateParameters(schema json.RawMessage, params json.RawMessage) error {
	compiler := jsonschemav6.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var instance any
	if len(params) == 0 {
		instance = map[string]any{}
	} else if err := json.Unmarshal(params, &instance); err != nil {
		return fmt.Errorf("parameters are not valid JSON: %w", err)
	}
	if err := compiled.Validate(instance); err != nil {
		return err
	}
	return nil
}
