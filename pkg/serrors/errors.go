package serrors

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// BaseError is a structured error carrying a stable machine-readable code
// alongside the human message. Codes are shared between the client-side guards
// and the backend so both sides of a rule can be matched identically.
type BaseError struct {
	Code         string
	Message      string
	LocalizedKey string
}

func (e *BaseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches by code so sentinel comparisons survive re-wrapping.
func (e *BaseError) Is(target error) bool {
	var other *BaseError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

func NewError(code, message, localizedKey string) *BaseError {
	return &BaseError{
		Code:         code,
		Message:      message,
		LocalizedKey: localizedKey,
	}
}

// Code extracts the structured code from err, or "" when err carries none.
func Code(err error) string {
	var base *BaseError
	if errors.As(err, &base) {
		return base.Code
	}
	return ""
}

func NewFieldRequiredError(field, localizedKey string) *BaseError {
	return &BaseError{
		Code:         "FIELD_REQUIRED",
		Message:      fmt.Sprintf("field %q is required", field),
		LocalizedKey: localizedKey,
	}
}

type ValidationErrors map[string]*BaseError

// ProcessValidatorErrors converts go-playground validator errors into
// structured per-field errors. getFieldLocaleKey maps a struct field name to
// its message catalog key and may return "".
func ProcessValidatorErrors(errs validator.ValidationErrors, getFieldLocaleKey func(field string) string) ValidationErrors {
	out := make(ValidationErrors, len(errs))
	for _, fieldErr := range errs {
		field := fieldErr.Field()
		switch fieldErr.Tag() {
		case "required":
			out[field] = NewFieldRequiredError(field, getFieldLocaleKey(field))
		default:
			out[field] = &BaseError{
				Code:         "FIELD_INVALID",
				Message:      fmt.Sprintf("field %q failed %q validation", field, fieldErr.Tag()),
				LocalizedKey: getFieldLocaleKey(field),
			}
		}
	}
	return out
}

// Flatten renders validation errors as plain field -> message pairs for
// transport in an API envelope.
func (v ValidationErrors) Flatten() map[string]string {
	out := make(map[string]string, len(v))
	for field, err := range v {
		out[field] = err.Message
	}
	return out
}
