package transcribe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/model"
)

func TestBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	want := []int64{60000, 120000, 240000, 480000, 960000, 1800000, 1800000}
	for i, ms := range want {
		assert.Equal(t, ms, p.Backoff(i+1).Milliseconds(), "attempt %d", i+1)
	}
	assert.Equal(t, time.Minute, p.Backoff(0))
	assert.Equal(t, 30*time.Minute, p.Backoff(200))
}

func TestCheckCeiling(t *testing.T) {
	p := DefaultRetryPolicy()

	msg := &model.Message{TranscribeAttempts: 9}
	assert.NoError(t, p.CheckCeiling(msg, 10))

	err := p.CheckCeiling(msg, 11)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeMaxAttemptsExceeded, apperrors.CodeOf(err))

	quota := &model.Message{TranscriptionRetryReason: model.RetryReasonInsufficientQuota}
	assert.NoError(t, p.CheckCeiling(quota, 11))
	assert.NoError(t, p.CheckCeiling(quota, 50))
	assert.Equal(t, apperrors.CodeMaxAttemptsExceeded, apperrors.CodeOf(p.CheckCeiling(quota, 51)))

	timeout := &model.Message{TranscriptionRetryReason: model.RetryReasonProviderTimeout}
	assert.Error(t, p.CheckCeiling(timeout, 11))

	unlimited := p
	unlimited.MaxQuotaAttempts = 0
	assert.NoError(t, unlimited.CheckCeiling(quota, 1000))
}

func TestNotDue(t *testing.T) {
	p := DefaultRetryPolicy()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Minute)
	earlier := now.Add(-time.Minute)

	assert.False(t, p.NotDue(&model.Message{}, now))
	assert.True(t, p.NotDue(&model.Message{TranscriptionNextAttemptAt: &later}, now))
	assert.False(t, p.NotDue(&model.Message{TranscriptionNextAttemptAt: &earlier}, now))
	assert.False(t, p.NotDue(&model.Message{TranscriptionNextAttemptAt: &now}, now))
}

func TestApplyRetryable(t *testing.T) {
	p := DefaultRetryPolicy()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := &model.Message{TranscribeAttempts: 3}

	next := p.ApplyRetryable(msg, model.RetryReasonInsufficientQuota, apperrors.CodeInsufficientQuota, "quota", now)

	assert.Equal(t, now.Add(4*time.Minute), next)
	assert.True(t, msg.ToTranscribe)
	assert.Equal(t, model.RetryReasonInsufficientQuota, msg.TranscriptionRetryReason)
	assert.Equal(t, "insufficient_quota", msg.TranscriptionError)
	require.NotNil(t, msg.TranscriptionNextAttemptAt)
	assert.Equal(t, next, *msg.TranscriptionNextAttemptAt)
	assert.Equal(t, 3, msg.TranscribeAttempts)
}

func TestApplyTerminalAndSuccess(t *testing.T) {
	p := DefaultRetryPolicy()
	now := time.Now().UTC()
	next := now.Add(time.Hour)
	msg := &model.Message{
		TranscribeAttempts:         4,
		ToTranscribe:               true,
		TranscriptionRetryReason:   model.RetryReasonInsufficientQuota,
		TranscriptionNextAttemptAt: &next,
	}

	p.ApplyTerminal(msg, apperrors.CodeTranscriptionFailed, "boom", now)
	assert.False(t, msg.ToTranscribe)
	assert.Empty(t, msg.TranscriptionRetryReason)
	assert.Nil(t, msg.TranscriptionNextAttemptAt)
	assert.Equal(t, "transcription_failed", msg.TranscriptionError)
	assert.Equal(t, 4, msg.TranscribeAttempts)

	p.ApplySuccess(msg, model.MethodDirect, now)
	assert.True(t, msg.IsTranscribed)
	assert.Zero(t, msg.TranscribeAttempts)
	assert.Empty(t, msg.TranscriptionError)
	assert.Empty(t, msg.ErrorMessage)
	assert.Nil(t, msg.ErrorOccurredAt)
	assert.Equal(t, model.MethodDirect, msg.TranscriptionMethod)
	require.NotNil(t, msg.TranscribedAt)
}
