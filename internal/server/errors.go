package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/problem-workshop/internal/activity"
	"github.com/jonathan/problem-workshop/internal/validation"
)

// ErrActivityNotFound indicates the requested activity is not in the catalog
type ErrActivityNotFound struct {
	ID string
}

func (e *ErrActivityNotFound) Error() string {
	return fmt.Sprintf("activity not found: %s", e.ID)
}

// ErrNoUserKey indicates the request carries no usable user key
type ErrNoUserKey struct{}

func (e *ErrNoUserKey) Error() string {
	return "no user key: enter a code or start fresh"
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusInternalServerError
	}

	var notFound *ErrActivityNotFound
	var noKey *ErrNoUserKey
	var reqErr *ErrValidation
	var fieldErr *validation.FieldError
	var structErr validator.ValidationErrors

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &noKey):
		return http.StatusUnauthorized
	case errors.As(err, &reqErr), errors.As(err, &structErr):
		return http.StatusBadRequest
	case errors.As(err, &fieldErr), errors.Is(err, activity.ErrStepInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, activity.ErrUnknownField), errors.Is(err, activity.ErrMarkerNotFound):
		return http.StatusNotFound
	case errors.Is(err, activity.ErrNotReady),
		errors.Is(err, activity.ErrFieldNotOnStep),
		errors.Is(err, activity.ErrAtLastStep),
		errors.Is(err, activity.ErrAtFirstStep),
		errors.Is(err, activity.ErrNotInError):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// userMessage returns the message shown to a user for err.
func userMessage(err error) string {
	var fieldErr *validation.FieldError
	var reqErr *ErrValidation
	switch {
	case errors.As(err, &fieldErr):
		return fieldErr.Message
	case errors.As(err, &reqErr):
		return reqErr.Message
	case errors.Is(err, activity.ErrStepInvalid):
		return "Complete this step before continuing."
	case HTTPStatus(err) == http.StatusInternalServerError:
		return "Something went wrong. Please try again."
	default:
		return err.Error()
	}
}
