package types

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// CodeSubmitRequest is a previously issued user code typed on the code-entry screen.
type CodeSubmitRequest struct {
	Code string `json:"code" validate:"required,len=12,alphanum,uppercase"`
}

// Validate validates the CodeSubmitRequest using the validator.
func (r *CodeSubmitRequest) Validate() error {
	return validate.Struct(r)
}

// MarkerInput describes a marker placed on a diagram.
type MarkerInput struct {
	Type  string  `json:"type" validate:"required,max=32"`
	X     float64 `json:"x" validate:"gte=0,lte=100"`
	Y     float64 `json:"y" validate:"gte=0,lte=100"`
	Label string  `json:"label,omitempty" validate:"max=120"`
}

// Validate validates the MarkerInput using the validator.
func (m *MarkerInput) Validate() error {
	return validate.Struct(m)
}

// FieldUpdateRequest replaces the value of one field. Exactly the member matching
// the field's kind is read.
type FieldUpdateRequest struct {
	Text      *string       `json:"text,omitempty" validate:"omitempty,max=10000"`
	Selected  []string      `json:"selected,omitempty" validate:"omitempty,dive,max=64"`
	OtherText string        `json:"other_text,omitempty" validate:"max=2000"`
	Markers   []MarkerInput `json:"markers,omitempty" validate:"omitempty,max=50,dive"`
	Items     []string      `json:"items,omitempty" validate:"omitempty,max=50,dive,max=2000"`
}

// Validate validates the FieldUpdateRequest using the validator.
func (r *FieldUpdateRequest) Validate() error {
	return validate.Struct(r)
}
