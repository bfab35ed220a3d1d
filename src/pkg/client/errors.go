package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Kind classifies a failed request
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindServer       Kind = "server"
)

// Sentinels matching every APIError of the same kind through errors.Is
var (
	ErrUnauthorized = &APIError{Kind: KindUnauthorized}
	ErrValidation   = &APIError{Kind: KindValidation}
	ErrNotFound     = &APIError{Kind: KindNotFound}
	ErrServer       = &APIError{Kind: KindServer}
)

const genericServerMessage = "the server could not be reached, please try again"

// APIError is a failed request. Message is the server's error text when it
// sent one.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Code    string
	// Field names the offending input of a validation error
	Field   string
	Details map[string]interface{}
	Err     error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind, so errors.Is(err, ErrNotFound) works
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Kind == e.Kind
}

// errorPayload is the server's error body
type errorPayload struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details"`
}

// kindFor maps a status code onto the taxonomy
func kindFor(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{
		Kind:   kindFor(resp.StatusCode),
		Status: resp.StatusCode,
	}

	var payload errorPayload
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &payload); err == nil {
		apiErr.Message = payload.Error
		if apiErr.Message == "" {
			apiErr.Message = payload.Message
		}
		apiErr.Code = payload.Code
		apiErr.Details = payload.Details
		if field, ok := payload.Details["field"].(string); ok {
			apiErr.Field = field
		}
	}

	if apiErr.Message == "" {
		switch apiErr.Kind {
		case KindUnauthorized:
			apiErr.Message = "your session has expired, please sign in again"
		case KindNotFound:
			apiErr.Message = "not found"
		case KindValidation:
			apiErr.Message = http.StatusText(resp.StatusCode)
		default:
			apiErr.Message = genericServerMessage
		}
	}
	return apiErr
}

// IsKind reports whether err is an APIError of kind k
func IsKind(err error, k Kind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == k
}
