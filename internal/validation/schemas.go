package validation

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// InteractionEvent is the schema for POST /api/v1/interactions bodies.
const InteractionEvent = "interaction-event"

//go:embed schemas/*.json
var embeddedSchemas embed.FS

// SchemaValidator validates request bodies against JSON schemas.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewSchemaValidator loads the schemas bundled with the binary.
func NewSchemaValidator() (*SchemaValidator, error) {
	sv := &SchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema),
	}
	if err := sv.LoadSchemaFromFS(embeddedSchemas, "schemas"); err != nil {
		return nil, err
	}
	return sv, nil
}

// LoadSchemaFromFS loads every *.json file in dir, named after the file
// without its extension.
func (sv *SchemaValidator) LoadSchemaFromFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read schema directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		schemaBytes, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", entry.Name(), err)
		}

		name := strings.TrimSuffix(entry.Name(), ".json")
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
		if err != nil {
			return fmt.Errorf("failed to load schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}

	return nil
}

// ValidateBytes checks a raw JSON document against the named schema.
func (sv *SchemaValidator) ValidateBytes(schemaName string, body []byte) *ValidationResult {
	schema, ok := sv.schemas[schemaName]
	if !ok {
		return invalid("schema", "SCHEMA_NOT_FOUND", fmt.Sprintf("Schema '%s' not found", schemaName))
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return invalid("body", "VALIDATION_ERROR", fmt.Sprintf("Validation error: %v", err))
	}

	vr := &ValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
			Code:    "VALIDATION_ERROR",
			Value:   e.Value(),
			Context: e.Context().String(),
		})
	}
	return vr
}

// AvailableSchemas returns the loaded schema names in order.
func (sv *SchemaValidator) AvailableSchemas() []string {
	names := make([]string, 0, len(sv.schemas))
	for name := range sv.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func invalid(field, code, message string) *ValidationResult {
	return &ValidationResult{Errors: []ValidationError{{Field: field, Message: message, Code: code}}}
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
	Context string      `json:"context,omitempty"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ToAPIError renders the failures in the service's error envelope, with
// messages also grouped by field. It returns nil for a valid result.
func (vr *ValidationResult) ToAPIError() map[string]interface{} {
	if vr.Valid {
		return nil
	}

	byField := make(map[string][]string)
	for _, e := range vr.Errors {
		if e.Field != "" {
			byField[e.Field] = append(byField[e.Field], e.Message)
		}
	}

	details := map[string]interface{}{"validationErrors": vr.Errors}
	if len(byField) > 0 {
		details["fieldErrors"] = byField
	}

	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "VALIDATION_ERROR",
			"message": "Request validation failed",
			"details": details,
		},
	}
}
