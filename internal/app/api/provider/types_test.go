package provider

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "voxflow/internal/app/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      string
		errType   string
		message   string
		wantType  string
		wantCode  apperrors.Code
		retryable bool
	}{
		{
			name:      "429 with insufficient_quota code",
			status:    http.StatusTooManyRequests,
			code:      "insufficient_quota",
			message:   "You exceeded your current quota",
			wantType:  "quota",
			wantCode:  apperrors.CodeInsufficientQuota,
			retryable: true,
		},
		{
			name:      "429 with billing message only",
			status:    http.StatusTooManyRequests,
			message:   "Billing hard limit has been reached",
			wantType:  "quota",
			wantCode:  apperrors.CodeInsufficientQuota,
			retryable: true,
		},
		{
			name:      "429 with rate limit type",
			status:    http.StatusTooManyRequests,
			errType:   "rate_limit_error",
			message:   "slow down",
			wantType:  "quota",
			wantCode:  apperrors.CodeInsufficientQuota,
			retryable: true,
		},
		{
			name:     "429 without quota shape is a plain failure",
			status:   http.StatusTooManyRequests,
			code:     "server_busy",
			message:  "try later",
			wantType: "failed",
			wantCode: "server_busy",
		},
		{
			name:     "413 status",
			status:   http.StatusRequestEntityTooLarge,
			message:  "too big",
			wantType: "payload",
			wantCode: apperrors.CodePayloadTooLarge,
		},
		{
			name:     "maximum content size message on 400",
			status:   http.StatusBadRequest,
			message:  "Maximum content size limit (26214400) exceeded",
			wantType: "payload",
			wantCode: apperrors.CodePayloadTooLarge,
		},
		{
			name:     "provider code preferred",
			status:   http.StatusBadRequest,
			code:     "invalid_file_format",
			errType:  "invalid_request_error",
			message:  "bad file",
			wantType: "failed",
			wantCode: "invalid_file_format",
		},
		{
			name:     "provider type used when code missing",
			status:   http.StatusInternalServerError,
			errType:  "server_error",
			wantType: "failed",
			wantCode: "server_error",
		},
		{
			name:     "default code",
			status:   http.StatusBadGateway,
			wantType: "failed",
			wantCode: apperrors.CodeTranscriptionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.status, tt.code, tt.errType, tt.message)
			switch tt.wantType {
			case "quota":
				assert.IsType(t, &QuotaError{}, err)
			case "payload":
				assert.IsType(t, &PayloadTooLargeError{}, err)
			case "failed":
				assert.IsType(t, &FailedError{}, err)
			}
			assert.Equal(t, tt.wantCode, err.Code())
			assert.Equal(t, tt.retryable, err.Retryable())
		})
	}
}

func TestClassifyTransportError(t *testing.T) {
	t.Run("deadline is a retryable timeout", func(t *testing.T) {
		err := ClassifyTransportError(fmt.Errorf("post: %w", context.DeadlineExceeded))
		require.IsType(t, &QuotaError{}, err)
		assert.Equal(t, apperrors.CodeProviderTimeout, err.Code())
		assert.True(t, err.Retryable())
	})

	t.Run("already classified passes through", func(t *testing.T) {
		orig := &PayloadTooLargeError{StatusCode: 413}
		err := ClassifyTransportError(fmt.Errorf("wrapped: %w", orig))
		assert.Same(t, orig, err)
	})

	t.Run("other errors fail", func(t *testing.T) {
		err := ClassifyTransportError(fmt.Errorf("connection refused"))
		require.IsType(t, &FailedError{}, err)
		assert.Equal(t, apperrors.CodeTranscriptionFailed, err.Code())
	})
}

func TestMissingCredential(t *testing.T) {
	err := MissingCredential("openai")
	assert.Equal(t, apperrors.CodeProviderKeyMissing, err.Code())
	assert.False(t, err.Retryable())
}

type stubTranscriber struct {
	err error
}

func (s stubTranscriber) Transcribe(ctx context.Context, path string) (*Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Result{Text: "ok"}, nil
}

func (s stubTranscriber) Name() string { return "stub" }

func TestInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	ok := Instrument(stubTranscriber{}, m)
	_, err := ok.Transcribe(context.Background(), "a.mp3")
	require.NoError(t, err)

	bad := Instrument(stubTranscriber{err: Classify(429, "insufficient_quota", "", "")}, m)
	_, err = bad.Transcribe(context.Background(), "a.mp3")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("stub", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("stub", "insufficient_quota")))
}
