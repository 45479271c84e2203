// Package specvalidate gates inbound SAW specification documents against
// a JSON Schema before they are ever parsed into typed structs. This
// closes the bootstrap hole where a malformed or malicious spec
// document could reach graph construction.
package specvalidate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaDoc describes the SAW document shape: a saw_id, a graph of
// nodes/edges, and a policy_bundle with its own required sub-objects.
const schemaDoc = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["saw_id", "graph", "policy_bundle"],
  "properties": {
    "saw_id": {"type": "string", "minLength": 1},
    "graph": {
      "type": "object",
      "required": ["nodes", "edges"],
      "properties": {
        "nodes": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["id", "type"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "type": {"enum": ["start", "end", "tool_call", "approval_gate"]},
              "tool": {"type": "string"},
              "sensitivity": {"type": "string"},
              "write_action": {"type": "boolean"}
            }
          }
        },
        "edges": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["from", "to"],
            "properties": {
              "from": {"type": "string"},
              "to": {"type": "string"}
            }
          }
        }
      }
    },
    "policy_bundle": {
      "type": "object",
      "required": ["policy_id", "policy_version", "tools", "egress"],
      "properties": {
        "policy_id": {"type": "string", "minLength": 1},
        "policy_version": {"type": "string", "minLength": 1},
        "sensitivity_level": {"type": "string"},
        "tools": {
          "type": "object",
          "required": ["allowlist", "denylist"],
          "properties": {
            "allowlist": {"type": "array", "items": {"type": "string"}},
            "denylist": {"type": "array", "items": {"type": "string"}}
          }
        },
        "egress": {
          "type": "object",
          "required": ["allow_external_http", "allow_email_send", "allow_slack_dm"],
          "properties": {
            "allow_external_http": {"type": "boolean"},
            "allow_email_send": {"type": "boolean"},
            "allow_slack_dm": {"type": "boolean"},
            "allowed_domains": {"type": "array", "items": {"type": "string"}}
          }
        },
        "write_restrictions": {"type": "object"}
      }
    }
  }
}`

const schemaURL = "mem://saw-spec.schema.json"

// Validator compiles the SAW spec schema once and validates documents
// against it.
type Validator struct {
	schema *jsonschema.Schema
}

// New compiles the embedded schema. An error here indicates a bug in the
// schema literal above, never a caller input problem.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader([]byte(schemaDoc))); err != nil {
		return nil, fmt.Errorf("specvalidate: add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("specvalidate: compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks raw (a JSON document) against the SAW spec schema.
func (v *Validator) Validate(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("specvalidate: invalid json: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("specvalidate: schema violation: %w", err)
	}
	return nil
}
