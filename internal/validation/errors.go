package validation

import "fmt"

// FieldError reports a single field that does not satisfy its rule.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
