package config

import (
	"encoding/json"
	"fmt"
	"sync"

	invopopSchema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"keyrelay/internal/domain"
)

var (
	schemaOnce     sync.Once
	schemaText     string
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// Schema returns the JSON Schema for a config document, reflected from domain.Config.
// Unknown properties are rejected; no property is required.
func Schema() string {
	loadSchema()
	return schemaText
}

func loadSchema() {
	schemaOnce.Do(func() {
		reflector := invopopSchema.Reflector{
			AllowAdditionalProperties:  false,
			DoNotReference:             true,
			RequiredFromJSONSchemaTags: true,
			Anonymous:                  true,
		}
		data, err := json.MarshalIndent(reflector.Reflect(&domain.Config{}), "", "  ")
		if err != nil {
			schemaErr = fmt.Errorf("config schema: %w", err)
			return
		}
		schemaText = string(data)
		compiledSchema, schemaErr = jsonschema.CompileString("keyrelay.schema.json", schemaText)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("config schema: %w", schemaErr)
		}
	})
}

// Validate checks a JSON config document against Schema.
func Validate(doc []byte) error {
	loadSchema()
	if schemaErr != nil {
		return schemaErr
	}
	var v interface{}
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("config parse: %w", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	return nil
}
