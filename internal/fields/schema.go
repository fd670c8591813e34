package fields

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/SandySenthilHub/TF-Phase1/internal/document"
)

// pageFieldsSchema describes page_NN.fields.json: a flat string object.
var pageFieldsSchema = map[string]any{
	"$schema":              "http://json-schema.org/draft-07/schema#",
	"type":                 "object",
	"additionalProperties": map[string]any{"type": "string"},
}

// groupFieldsSchema describes <label>/fields.json: one page object per member page.
var groupFieldsSchema = map[string]any{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type":    "array",
	"items": map[string]any{
		"type":                 "object",
		"additionalProperties": map[string]any{"type": "string"},
	},
}

var (
	compileOnce sync.Once
	pageSchema  *jsonschema.Schema
	groupSchema *jsonschema.Schema
	compileErr  error
)

func compileSchemas() {
	pageSchema, compileErr = compile("page_fields.json", pageFieldsSchema)
	if compileErr != nil {
		return
	}
	groupSchema, compileErr = compile("group_fields.json", groupFieldsSchema)
}

func compile(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidatePageFields checks serialized page fields against the page schema
func ValidatePageFields(data []byte) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}
	return validate(pageSchema, data)
}

// ValidateGroupFields checks serialized group fields against the group schema
func ValidateGroupFields(data []byte) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}
	return validate(groupSchema, data)
}

func validate(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// MarshalPage serializes a page FieldSet as indented JSON and validates it
func MarshalPage(fs *document.FieldSet) ([]byte, error) {
	if fs == nil {
		fs = document.NewFieldSet()
	}
	data, err := json.MarshalIndent(fs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal page fields: %w", err)
	}
	if err := ValidatePageFields(data); err != nil {
		return nil, err
	}
	return data, nil
}

// MarshalGroup serializes per-page FieldSets as an indented JSON array and validates it
func MarshalGroup(sets []*document.FieldSet) ([]byte, error) {
	if sets == nil {
		sets = []*document.FieldSet{}
	}
	data, err := json.MarshalIndent(sets, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal group fields: %w", err)
	}
	if err := ValidateGroupFields(data); err != nil {
		return nil, err
	}
	return data, nil
}
