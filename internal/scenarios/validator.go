// Package scenarios validates scenario payloads before they are enqueued.
package scenarios

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/voxmate/backend/internal/models"
)

// Input schemas per resource type. The rationed resource set is small and
// fixed, so the schemas are embedded rather than loaded from a directory.
var inputSchemaSources = map[string]string{
	models.ResourceScenarioBasic: `{
		"type": "object",
		"required": ["text"],
		"properties": {
			"text": {"type": "string", "minLength": 1}
		}
	}`,
	models.ResourceScenarioLLM: `{
		"type": "object",
		"required": ["prompt"],
		"properties": {
			"prompt": {"type": "string", "minLength": 1},
			"max_tokens": {"type": "integer", "minimum": 1}
		}
	}`,
}

type Validator struct {
	inputSchemas map[string]*jsonschema.Schema
}

// NewValidator compiles the embedded input schemas.
func NewValidator() (*Validator, error) {
	schemas := make(map[string]*jsonschema.Schema, len(inputSchemaSources))
	for resourceType, src := range inputSchemaSources {
		id := "https://voxmate.dev/schemas/" + resourceType + ".input"
		sch, err := jsonschema.CompileString(id, src)
		if err != nil {
			return nil, fmt.Errorf("compile input schema %q: %w", resourceType, err)
		}
		schemas[resourceType] = sch
	}
	return &Validator{inputSchemas: schemas}, nil
}

// ValidateInput checks payload against the schema for resourceType. Resource
// types without a schema pass through: the orchestrator already treats
// unknown types as unlimited-with-default-cost, and validation follows suit.
func (v *Validator) ValidateInput(resourceType string, payload json.RawMessage) error {
	sch, ok := v.inputSchemas[resourceType]
	if !ok {
		return nil
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("payload does not match %s schema: %w", resourceType, err)
	}
	return nil
}
