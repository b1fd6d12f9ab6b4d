package provider

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"

	apperrors "voxflow/internal/app/errors"
)

// Error is the closed set of classified provider failures: *QuotaError,
// *PayloadTooLargeError or *FailedError.
type Error interface {
	error
	Code() apperrors.Code
	Retryable() bool
	sealed()
}

// QuotaError is a retryable failure caused by rate or billing limits, or by
// a request timeout.
type QuotaError struct {
	Reason     string
	StatusCode int
	Message    string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("provider quota error (%s, status %d): %s", e.Reason, e.StatusCode, e.Message)
}

func (e *QuotaError) Code() apperrors.Code {
	if e.Reason == "" {
		return apperrors.CodeInsufficientQuota
	}
	return apperrors.Code(e.Reason)
}

func (e *QuotaError) Retryable() bool { return true }
func (e *QuotaError) sealed()         {}

// PayloadTooLargeError means the audio must be segmented.
type PayloadTooLargeError struct {
	StatusCode int
	Message    string
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("provider rejected payload as too large (status %d): %s", e.StatusCode, e.Message)
}

func (e *PayloadTooLargeError) Code() apperrors.Code { return apperrors.CodePayloadTooLarge }
func (e *PayloadTooLargeError) Retryable() bool      { return false }
func (e *PayloadTooLargeError) sealed()              {}

// FailedError is any other provider failure. ProviderCode is the provider's
// own error code or type when it sent one.
type FailedError struct {
	ProviderCode string
	StatusCode   int
	Message      string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("transcription failed (%s, status %d): %s", e.Code(), e.StatusCode, e.Message)
}

func (e *FailedError) Code() apperrors.Code {
	if e.ProviderCode == "" {
		return apperrors.CodeTranscriptionFailed
	}
	return apperrors.Code(e.ProviderCode)
}

func (e *FailedError) Retryable() bool { return false }
func (e *FailedError) sealed()         {}

var (
	quotaShape   = regexp.MustCompile(`(?i)quota|billing|rate[ _-]?limit|insufficient|exhausted`)
	payloadShape = regexp.MustCompile(`(?i)payload too large|maximum content size|request entity too large|file too large`)
)

// Classify maps a raw provider failure onto the closed Error set. Rules are
// checked in order: quota, payload too large, everything else.
func Classify(statusCode int, code, errType, message string) Error {
	if statusCode == http.StatusTooManyRequests &&
		(quotaShape.MatchString(code) || quotaShape.MatchString(errType) || quotaShape.MatchString(message)) {
		return &QuotaError{
			Reason:     string(apperrors.CodeInsufficientQuota),
			StatusCode: statusCode,
			Message:    message,
		}
	}

	if statusCode == http.StatusRequestEntityTooLarge || payloadShape.MatchString(message) {
		return &PayloadTooLargeError{StatusCode: statusCode, Message: message}
	}

	providerCode := strings.TrimSpace(code)
	if providerCode == "" {
		providerCode = strings.TrimSpace(errType)
	}
	return &FailedError{ProviderCode: providerCode, StatusCode: statusCode, Message: message}
}

// ClassifyTransportError handles failures that never produced an HTTP
// response. Timeouts are retryable; anything else is a plain failure.
func ClassifyTransportError(err error) Error {
	var classified Error
	if stderrors.As(err, &classified) {
		return classified
	}
	if IsTimeout(err) {
		return &QuotaError{
			Reason:  string(apperrors.CodeProviderTimeout),
			Message: err.Error(),
		}
	}
	return &FailedError{Message: err.Error()}
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

// MissingCredential is returned when a provider has no API key configured.
func MissingCredential(provider string) Error {
	return &FailedError{
		ProviderCode: string(apperrors.CodeProviderKeyMissing),
		Message:      fmt.Sprintf("%s API key is not configured", provider),
	}
}
