// Package errors defines the JSON error body of the admin API.
package errors

import (
	"fmt"
	"net/http"

	apperrors "voxflow/internal/app/errors"
)

// ErrorKind represents different types of API errors
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindNotFound           ErrorKind = "not_found"
	KindConflict           ErrorKind = "conflict"
	KindInternal           ErrorKind = "internal"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindBadRequest         ErrorKind = "bad_request"
)

// APIError represents a structured API error response
type APIError struct {
	Kind      ErrorKind         `json:"kind"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Code      string            `json:"code,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// HTTPStatus returns the appropriate HTTP status code for the error kind
func (e *APIError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error with field details
func NewValidationError(message string, fields map[string]string) *APIError {
	return &APIError{Kind: KindValidation, Message: message, Details: fields}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *APIError {
	return &APIError{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// NewBadRequestError creates a bad request error
func NewBadRequestError(message string) *APIError {
	return &APIError{Kind: KindBadRequest, Message: message}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{Kind: KindServiceUnavailable, Message: message}
}

// FromError maps pipeline errors onto API errors. Store misses become 404,
// coded errors keep their code, anything else is a 500 with a generic body.
func FromError(err error, resource string) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if apperrors.As(err, &apiErr) {
		return apiErr
	}
	if apperrors.IsNotFound(err) {
		return NewNotFoundError(resource)
	}
	var coded *apperrors.CodedError
	if apperrors.As(err, &coded) {
		kind := KindInternal
		switch coded.Code {
		case apperrors.CodeInvalidMessageID, apperrors.CodeInvalidSessionID:
			kind = KindBadRequest
		case apperrors.CodeMessageNotFound, apperrors.CodeSessionNotFound:
			kind = KindNotFound
		case apperrors.CodeStoreUnavailable:
			kind = KindServiceUnavailable
		}
		return &APIError{Kind: kind, Message: coded.Message, Code: string(coded.Code)}
	}
	return &APIError{Kind: KindInternal, Message: "Internal server error"}
}
