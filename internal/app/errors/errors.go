package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies a terminal or retryable pipeline failure. Codes are
// persisted on messages and sessions, so they are part of the data contract.
type Code string

const (
	CodeInvalidMessageID     Code = "invalid_message_id"
	CodeMessageNotFound      Code = "message_not_found"
	CodeInvalidSessionID     Code = "invalid_session_id"
	CodeSessionNotFound      Code = "session_not_found"
	CodeMissingFilePath      Code = "missing_file_path"
	CodeMissingTransport     Code = "missing_transport"
	CodeFileNotFound         Code = "file_not_found"
	CodeProviderKeyMissing   Code = "openai_api_key_missing"
	CodeMaxAttemptsExceeded  Code = "max_attempts_exceeded"
	CodeInsufficientQuota    Code = "insufficient_quota"
	CodeProviderTimeout      Code = "provider_timeout"
	CodeAudioTooLarge        Code = "audio_too_large"
	CodePayloadTooLarge      Code = "payload_too_large"
	CodeTranscriptionFailed  Code = "transcription_failed"
	CodeStoreUnavailable     Code = "store_unavailable"
	CodeCategorizationFailed Code = "categorization_failed"
)

// Common sentinel errors
var (
	ErrNotFound      = New("record not found")
	ErrMissingAPIKey = New("API key is required")
	ErrInvalidConfig = New("invalid configuration")
	ErrFileNotFound  = New("file not found")
	ErrUpdateFailed  = New("update failed")
)

// Error represents a standardized error
type Error struct {
	message string
	cause   error
}

// New creates a new error
func New(message string) *Error {
	return &Error{message: message}
}

// Newf creates a new formatted error
func Newf(format string, args ...interface{}) *Error {
	return &Error{message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{
		message: message,
		cause:   err,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{
		message: fmt.Sprintf(format, args...),
		cause:   err,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// Is checks if the error matches target
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.message == t.message
}

// CodedError is an error that carries a taxonomy code.
type CodedError struct {
	Code    Code
	Message string
	cause   error
}

// Coded creates a CodedError.
func Coded(code Code, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// Codedf creates a CodedError with a formatted message.
func Codedf(code Code, format string, args ...interface{}) *CodedError {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapCoded attaches a code to an underlying error.
func WrapCoded(err error, code Code, message string) *CodedError {
	return &CodedError{Code: code, Message: message, cause: err}
}

func (e *CodedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error {
	return e.cause
}

// CodeOf extracts the taxonomy code of err, falling back to
// transcription_failed for uncoded errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded *CodedError
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return CodeTranscriptionFailed
}

// NotFound returns an error for items that were not found
func NotFound(itemType string, identifier string) error {
	return Wrapf(ErrNotFound, "%s %s", itemType, identifier)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

// As is a passthrough so callers do not need to import both packages.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
