package transcribe

import (
	"time"

	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/model"
)

// RetryPolicy bounds attempts and spaces out retryable failures.
type RetryPolicy struct {
	// MaxAttempts is the hard ceiling for messages not in a quota retry.
	MaxAttempts int
	// MaxQuotaAttempts caps quota-exempt messages. Zero disables the cap.
	MaxQuotaAttempts int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
}

// DefaultRetryPolicy returns the production defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      10,
		MaxQuotaAttempts: 50,
		BaseDelay:        time.Minute,
		MaxDelay:         30 * time.Minute,
	}
}

// Backoff returns min(base * 2^(attempts-1), max).
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= p.MaxDelay || delay <= 0 {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// NotDue reports whether msg is still inside its backoff window.
func (p RetryPolicy) NotDue(msg *model.Message, now time.Time) bool {
	return msg.TranscriptionNextAttemptAt != nil && msg.TranscriptionNextAttemptAt.After(now)
}

// CheckCeiling decides whether attempt number next may run. Messages in a
// quota retry skip MaxAttempts but still respect MaxQuotaAttempts.
func (p RetryPolicy) CheckCeiling(msg *model.Message, next int) error {
	if msg.TranscriptionRetryReason == model.RetryReasonInsufficientQuota {
		if p.MaxQuotaAttempts > 0 && next > p.MaxQuotaAttempts {
			return apperrors.Codedf(apperrors.CodeMaxAttemptsExceeded,
				"quota retries exhausted after %d attempts", next-1)
		}
		return nil
	}
	if next > p.MaxAttempts {
		return apperrors.Codedf(apperrors.CodeMaxAttemptsExceeded,
			"giving up after %d attempts", next-1)
	}
	return nil
}

// ApplyRetryable schedules the next attempt and returns its time.
func (p RetryPolicy) ApplyRetryable(msg *model.Message, reason string, code apperrors.Code, message string, now time.Time) time.Time {
	next := now.Add(p.Backoff(msg.TranscribeAttempts))
	msg.ToTranscribe = true
	msg.TranscriptionRetryReason = reason
	msg.TranscriptionNextAttemptAt = &next
	msg.TranscriptionError = string(code)
	msg.ErrorMessage = message
	msg.ErrorOccurredAt = &now
	return next
}

// ApplyTerminal stops automatic retries until a caller forces one.
func (p RetryPolicy) ApplyTerminal(msg *model.Message, code apperrors.Code, message string, now time.Time) {
	msg.ToTranscribe = false
	msg.TranscriptionRetryReason = ""
	msg.TranscriptionNextAttemptAt = nil
	msg.TranscriptionError = string(code)
	msg.ErrorMessage = message
	msg.ErrorOccurredAt = &now
}

// ApplySuccess clears retry bookkeeping and marks the message transcribed.
func (p RetryPolicy) ApplySuccess(msg *model.Message, method string, now time.Time) {
	msg.ClearTranscriptionError()
	msg.TranscribeAttempts = 0
	msg.ToTranscribe = false
	msg.IsTranscribed = true
	msg.TranscriptionMethod = method
	msg.TranscribedAt = &now
}
