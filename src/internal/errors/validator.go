package errors

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

// Validator collects field-level validation failures
type Validator struct {
	errors []ValidationError
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Code    string      `json:"code"`
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// GetErrors returns all validation errors
func (v *Validator) GetErrors() []ValidationError {
	return v.errors
}

// AddError adds a validation error
func (v *Validator) AddError(field, message, code string, value interface{}) *Validator {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Code:    code,
	})
	return v
}

// Check adds message for field when ok is false
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.AddError(field, message, "INVALID", nil)
	}
	return v
}

// Required validates that a string field is not blank
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, fmt.Sprintf("%s is required", field), "REQUIRED", nil)
	}
	return v
}

// Email validates email format
func (v *Validator) Email(field, value string) *Validator {
	if value == "" {
		return v
	}

	if _, err := mail.ParseAddress(value); err != nil || strings.ContainsAny(value, " <>") {
		v.AddError(field, fmt.Sprintf("%s must be a valid email address", field), "INVALID_EMAIL", value)
	}
	return v
}

// MaxLength validates maximum string length
func (v *Validator) MaxLength(field, value string, max int) *Validator {
	if len(value) > max {
		v.AddError(field, fmt.Sprintf("%s must not exceed %d characters", field, max), "MAX_LENGTH", nil)
	}
	return v
}

// Username validates username format
func (v *Validator) Username(field, value string) *Validator {
	if value == "" {
		return v
	}

	if len(value) < 3 || len(value) > 39 {
		v.AddError(field, "Username must be between 3 and 39 characters", "INVALID_LENGTH", value)
		return v
	}

	if !isAlphanumeric(rune(value[0])) || !isAlphanumeric(rune(value[len(value)-1])) {
		v.AddError(field, "Username must start and end with a letter or number", "INVALID_FORMAT", value)
		return v
	}

	prev := rune(0)
	for i, r := range value {
		if !isAlphanumeric(r) && !isSpecialChar(r) {
			v.AddError(field, "Username can only contain letters, numbers, hyphens, and underscores", "INVALID_CHARACTER", value)
			return v
		}

		// No consecutive special characters
		if i > 0 && isSpecialChar(r) && isSpecialChar(prev) {
			v.AddError(field, "Username cannot have consecutive hyphens or underscores", "INVALID_FORMAT", value)
			return v
		}
		prev = r
	}

	return v
}

// Password validates password length within bcrypt limits
func (v *Validator) Password(field, value string, minLength int) *Validator {
	if len(value) < minLength {
		v.AddError(field, fmt.Sprintf("Password must be at least %d characters long", minLength), "MIN_LENGTH", nil)
	}
	if len(value) > 72 {
		v.AddError(field, "Password must not exceed 72 characters", "MAX_LENGTH", nil)
	}
	return v
}

// CreateValidationError creates a validation error response. The first
// failure becomes the top-level message so forms can show it inline.
func (v *Validator) CreateValidationError() *CustomError {
	if !v.HasErrors() {
		return nil
	}

	first := v.errors[0]
	return NewValidationError(first.Message, first.Field).
		WithDetail("validation_errors", v.GetErrors()).
		WithDetail("error_count", len(v.errors))
}

// Err returns the collected failures as an error, or nil
func (v *Validator) Err() error {
	if ce := v.CreateValidationError(); ce != nil {
		return ce
	}
	return nil
}

func isAlphanumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isSpecialChar(r rune) bool {
	return r == '-' || r == '_'
}
