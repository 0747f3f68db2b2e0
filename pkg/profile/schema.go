package profile

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// profileSchema is the structural contract for profile files. Semantic rules
// (semver, self-inheritance, CEL conditions) are checked by Validate.
const profileSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "version": {"type": "string"},
    "visual_rules": {
      "type": "object",
      "additionalProperties": {"type": "boolean"}
    },
    "text_rules": {
      "type": "object",
      "additionalProperties": {"type": "boolean"}
    },
    "redaction_style": {
      "enum": ["solid_black", "solid_white", "pixelated", "blurred", "pattern"]
    },
    "multilingual_support": {
      "type": "array",
      "items": {"type": "string"}
    },
    "confidence_threshold": {"type": "number", "minimum": 0, "maximum": 1},
    "custom_rules": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "replacement_text": {"type": "string"},
          "condition": {"type": "string"}
        },
        "additionalProperties": false
      }
    },
    "inherits_from": {
      "type": "array",
      "items": {"type": "string"}
    },
    "metadata": {"type": "object"}
  },
  "additionalProperties": false
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("profile.schema.json", strings.NewReader(profileSchema)); err != nil {
		return nil, fmt.Errorf("profile: register schema: %w", err)
	}
	return c.Compile("profile.schema.json")
})

// validateSchema checks a raw profile document against the structural schema.
// The document is round-tripped through JSON so YAML-decoded values use the
// type set the validator expects.
func validateSchema(raw map[string]any) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("profile: normalize document: %w", err)
	}
	var doc any
	if err := json.Unmarshal(buf, &doc); err != nil {
		return fmt.Errorf("profile: normalize document: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("profile: schema validation: %w", err)
	}
	return nil
}
