package server

import (
	"github.com/go-playground/validator/v10"

	apperrors "github.com/casapps/landregistry/src/internal/errors"
)

// EchoValidator wraps go-playground/validator for Echo
type EchoValidator struct {
	validator *validator.Validate
}

// NewEchoValidator creates a new Echo validator
func NewEchoValidator() *EchoValidator {
	return &EchoValidator{
		validator: validator.New(),
	}
}

// Validate implements echo.Validator interface
func (ev *EchoValidator) Validate(i interface{}) error {
	if err := ev.validator.Struct(i); err != nil {
		return apperrors.FromValidation(err)
	}
	return nil
}
