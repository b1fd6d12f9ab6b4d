package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxflow/internal/app/api/provider"
	apperrors "voxflow/internal/app/errors"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "note.ogg")
	require.NoError(t, os.WriteFile(path, []byte("OggS fake"), 0o644))
	return path
}

func TestTranscriber_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "generateContent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":" hello "},{"text":"world"}]}}]}`))
	}))
	defer server.Close()

	tr, err := NewTranscriber(context.Background(), Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	res, err := tr.Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)
	assert.Equal(t, "hello world", res.Text)
	assert.NotEmpty(t, res.Raw)
}

func TestTranscriber_Quota(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	tr, err := NewTranscriber(context.Background(), Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = tr.Transcribe(context.Background(), writeAudio(t))
	var classified provider.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, apperrors.CodeInsufficientQuota, classified.Code())
}

func TestTranscriber_MissingKey(t *testing.T) {
	tr, err := NewTranscriber(context.Background(), Config{})
	require.NoError(t, err)

	_, err = tr.Transcribe(context.Background(), writeAudio(t))
	var classified provider.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, apperrors.CodeProviderKeyMissing, classified.Code())
}

func TestAudioMimeType(t *testing.T) {
	assert.Equal(t, "audio/ogg", audioMimeType("a.oga"))
	assert.Equal(t, "audio/mp3", audioMimeType("a.MP3"))
	assert.Equal(t, "audio/ogg", audioMimeType("noext"))
}
