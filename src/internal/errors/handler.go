package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// ErrorHandler renders every error returned by a handler
type ErrorHandler struct {
	production bool
	logger     *slog.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(config *viper.Viper, logger *slog.Logger) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		production: config.GetString("environment") == "production",
		logger:     logger,
	}
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error      string                 `json:"error"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	RequestID  string                 `json:"request_id,omitempty"`
	Path       string                 `json:"path,omitempty"`
	Method     string                 `json:"method,omitempty"`
	StatusCode int                    `json:"status_code"`
}

// CustomError represents a custom application error
type CustomError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code"`
	StatusCode int                    `json:"status_code"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
}

// ErrorType represents different types of errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation_error"
	ErrorTypeDatabase       ErrorType = "database_error"
	ErrorTypeAuthentication ErrorType = "authentication_error"
	ErrorTypeAuthorization  ErrorType = "authorization_error"
	ErrorTypeNotFound       ErrorType = "not_found_error"
	ErrorTypeConflict       ErrorType = "conflict_error"
	ErrorTypeRateLimit      ErrorType = "rate_limit_error"
	ErrorTypeServer         ErrorType = "server_error"
	ErrorTypeExternal       ErrorType = "external_service_error"
)

// Error implements the error interface
func (e *CustomError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the cause to errors.Is and errors.As
func (e *CustomError) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the response status for the error
func (e *CustomError) HTTPStatus() int {
	return e.StatusCode
}

// NewCustomError creates a new custom error
func NewCustomError(errorType ErrorType, message, code string, statusCode int) *CustomError {
	return &CustomError{
		Type:       errorType,
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Details:    make(map[string]interface{}),
	}
}

// WithCause adds a cause to the error
func (e *CustomError) WithCause(cause error) *CustomError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *CustomError) WithDetail(key string, value interface{}) *CustomError {
	e.Details[key] = value
	return e
}

// Common error constructors
func NewValidationError(message, field string) *CustomError {
	err := NewCustomError(ErrorTypeValidation, message, "VALIDATION_FAILED", http.StatusBadRequest)
	if field != "" {
		err.WithDetail("field", field)
	}
	return err
}

func DatabaseError(message string, cause error) *CustomError {
	return NewCustomError(ErrorTypeDatabase, message, "DATABASE_ERROR", http.StatusInternalServerError).
		WithCause(cause)
}

func NotFoundError(resource, id string) *CustomError {
	err := NewCustomError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), "NOT_FOUND", http.StatusNotFound).
		WithDetail("resource", strings.ToLower(resource))
	if id != "" {
		err.WithDetail("id", id)
	}
	return err
}

func UnauthorizedError(message string) *CustomError {
	return NewCustomError(ErrorTypeAuthentication, message, "UNAUTHORIZED", http.StatusUnauthorized)
}

func ForbiddenError(message string) *CustomError {
	return NewCustomError(ErrorTypeAuthorization, message, "FORBIDDEN", http.StatusForbidden)
}

func ConflictError(message, resource string) *CustomError {
	return NewCustomError(ErrorTypeConflict, message, "CONFLICT", http.StatusConflict).
		WithDetail("resource", resource)
}

func RateLimitError(limit int, window string) *CustomError {
	return NewCustomError(ErrorTypeRateLimit, "Rate limit exceeded", "RATE_LIMITED", http.StatusTooManyRequests).
		WithDetail("limit", limit).
		WithDetail("window", window)
}

func ExternalServiceError(service, message string, cause error) *CustomError {
	return NewCustomError(ErrorTypeExternal, fmt.Sprintf("%s service error: %s", service, message), "EXTERNAL_SERVICE_ERROR", http.StatusBadGateway).
		WithDetail("service", service).
		WithCause(cause)
}

// IsType reports whether err is a CustomError of type t
func IsType(err error, t ErrorType) bool {
	var ce *CustomError
	return stderrors.As(err, &ce) && ce.Type == t
}

// FromDB maps gorm errors to the taxonomy
func FromDB(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return NotFoundError(resource, id)
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "Duplicate entry") {
		return ConflictError(fmt.Sprintf("%s already exists", resource), strings.ToLower(resource))
	}
	return DatabaseError(fmt.Sprintf("%s lookup failed", strings.ToLower(resource)), err)
}

// FromValidation converts validator errors into a validation error naming
// the first offending field
func FromValidation(err error) *CustomError {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return NewValidationError(err.Error(), "")
	}

	v := NewValidator()
	for _, fe := range verrs {
		v.AddError(fe.Field(), describeFieldError(fe), strings.ToUpper(fe.Tag()), nil)
	}
	return v.CreateValidationError()
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// HTTPErrorHandler handles HTTP errors for Echo
func (h *ErrorHandler) HTTPErrorHandler(err error, c echo.Context) {
	var (
		code    = http.StatusInternalServerError
		message = "Internal server error"
		details = make(map[string]interface{})
		errCode = "INTERNAL_ERROR"
	)

	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	if requestID == "" {
		requestID = c.Request().Header.Get(echo.HeaderXRequestID)
	}

	path := c.Request().URL.Path
	method := c.Request().Method

	var (
		ce     *CustomError
		he     *echo.HTTPError
		syntax *json.SyntaxError
	)
	switch {
	case stderrors.As(err, &ce):
		code = ce.StatusCode
		message = ce.Message
		errCode = ce.Code
		details = ce.Details

		if code >= http.StatusInternalServerError {
			h.logger.Error("request failed",
				"error", ce.Error(), "type", ce.Type,
				"request_id", requestID, "path", path, "method", method)
		}

	case stderrors.As(err, &he):
		code = he.Code
		message = fmt.Sprintf("%v", he.Message)

		switch code {
		case http.StatusNotFound:
			errCode = "NOT_FOUND"
			message = "Resource not found"
		case http.StatusMethodNotAllowed:
			errCode = "METHOD_NOT_ALLOWED"
			message = "Method not allowed"
		case http.StatusBadRequest:
			errCode = "BAD_REQUEST"
		case http.StatusUnauthorized:
			errCode = "UNAUTHORIZED"
		case http.StatusForbidden:
			errCode = "FORBIDDEN"
		case http.StatusTooManyRequests:
			errCode = "RATE_LIMITED"
		case http.StatusServiceUnavailable:
			errCode = "SERVICE_UNAVAILABLE"
		}

	case stderrors.As(err, &syntax):
		code = http.StatusBadRequest
		message = "Invalid JSON format"
		errCode = "INVALID_JSON"
		details["offset"] = syntax.Offset

	default:
		h.logger.Error("unhandled error",
			"error", err, "request_id", requestID, "path", path, "method", method)
	}

	// Don't expose internal errors in production
	if h.production && code == http.StatusInternalServerError {
		message = "Internal server error"
		details = map[string]interface{}{
			"error_id": requestID,
		}
	}

	errorResponse := ErrorResponse{
		Error:      message,
		Message:    message,
		Code:       errCode,
		Details:    details,
		Timestamp:  time.Now().UTC(),
		RequestID:  requestID,
		Path:       path,
		Method:     method,
		StatusCode: code,
	}

	if !c.Response().Committed {
		if method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, errorResponse)
		}
		if err != nil {
			h.logger.Error("failed to send error response", "error", err)
		}
	}
}

// RecoverMiddleware provides panic recovery
func (h *ErrorHandler) RecoverMiddleware() echo.MiddlewareFunc {
	return middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			h.logger.Error("panic recovered",
				"error", err,
				"stack", string(stack),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"path", c.Request().URL.Path)
			return err
		},
	})
}
