// Package schemas validates stored user records against the embedded JSON Schema.
package schemas

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed user_record.schema.json
var userRecordSchema string

var (
	compileOnce    sync.Once
	compiledSchema *gojsonschema.Schema
	compileErr     error
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

func userRecord() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(userRecordSchema))
		if compileErr != nil {
			compileErr = &SchemaLoadError{
				Path:    "user_record.schema.json",
				Message: "schema compilation failed",
				Cause:   compileErr,
			}
		}
	})
	return compiledSchema, compileErr
}

// ValidateRecord validates an encoded user record. Malformed JSON is reported as an
// error from the document loader; shape problems as *ValidationError.
func ValidateRecord(data []byte) error {
	schema, err := userRecord()
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("failed to read record document: %w", err)
	}

	return toValidationError(result)
}

func toValidationError(result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}

	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}

	return validationErr
}
