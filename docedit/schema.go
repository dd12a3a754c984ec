package docedit

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// editBatchSchema is the wire contract for a JSON edit batch. Compiled once
// at init; the façade validates every payload against it before decoding so
// handlers never see a structurally bad batch.
const editBatchSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["edits"],
  "additionalProperties": false,
  "properties": {
    "author": {"type": "string", "maxLength": 256},
    "edits": {
      "type": "array",
      "maxItems": 1000,
      "items": {
        "type": "object",
        "required": ["op", "block_id"],
        "additionalProperties": false,
        "properties": {
          "op": {"enum": ["replace", "delete", "insert", "comment"]},
          "block_id": {"type": "string", "minLength": 1, "maxLength": 128},
          "text": {"type": "string"},
          "comment": {"type": "string"}
        },
        "allOf": [
          {
            "if": {"properties": {"op": {"const": "replace"}}},
            "then": {"required": ["text"]}
          },
          {
            "if": {"properties": {"op": {"const": "insert"}}},
            "then": {"required": ["text"]}
          },
          {
            "if": {"properties": {"op": {"const": "comment"}}},
            "then": {"required": ["comment"]}
          }
        ]
      }
    }
  }
}`

var editBatchCompiled = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("inmemory://edit-batch", strings.NewReader(editBatchSchema)); err != nil {
		panic(fmt.Sprintf("redline: edit batch schema resource: %v", err))
	}
	return c.MustCompile("inmemory://edit-batch")
}()

// EditBatch is a decoded JSON edit payload.
type EditBatch struct {
	Author string   `json:"author,omitempty"`
	Edits  []EditOp `json:"edits"`
}

// ValidateEditBatch checks raw against the edit batch schema.
func ValidateEditBatch(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode edit batch: %w", err)
	}
	if err := editBatchCompiled.Validate(v); err != nil {
		return fmt.Errorf("edit batch schema: %w", err)
	}
	return nil
}

// DecodeEditBatch validates and decodes a JSON edit payload.
func DecodeEditBatch(raw []byte) (*EditBatch, error) {
	if err := ValidateEditBatch(raw); err != nil {
		return nil, err
	}
	var batch EditBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("decode edit batch: %w", err)
	}
	return &batch, nil
}
