package whisper_server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxflow/internal/app/api/provider"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "voice.ogg")
	require.NoError(t, os.WriteFile(p, []byte("OggS audio"), 0o644))
	return p
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inference", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		assert.Equal(t, "en", r.FormValue("language"))

		f, header, err := r.FormFile("file")
		if assert.NoError(t, err) {
			defer f.Close()
			data, _ := io.ReadAll(f)
			assert.Equal(t, "voice.ogg", header.Filename)
			assert.Equal(t, "OggS audio", string(data))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" hello there ","language":"en","segments":[{"id":0,"text":"hello there","start":0,"end":3.5}]}`))
	}))
	defer srv.Close()

	tr := NewTranscriber(Config{
		BaseURL:       srv.URL + "/",
		Language:      "en",
		CustomHeaders: map[string]string{"X-Token": "secret"},
	}, srv.Client())

	res, err := tr.Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)
	assert.Equal(t, "hello there", res.Text)
	assert.Equal(t, "en", res.Language)
	assert.InDelta(t, 3.5, res.Duration, 1e-9)
	assert.Contains(t, string(res.Raw), "segments")
}

func TestTranscribeClassifiesErrors(t *testing.T) {
	status := http.StatusRequestEntityTooLarge
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	defer srv.Close()

	tr := NewTranscriber(Config{BaseURL: srv.URL}, srv.Client())

	_, err := tr.Transcribe(context.Background(), writeAudio(t))
	var tooLarge *provider.PayloadTooLargeError
	assert.True(t, errors.As(err, &tooLarge))

	status = http.StatusInternalServerError
	_, err = tr.Transcribe(context.Background(), writeAudio(t))
	var failed *provider.FailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 500, failed.StatusCode)
}

func TestTranscribeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	tr := NewTranscriber(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, srv.Client())
	_, err := tr.Transcribe(context.Background(), writeAudio(t))

	var quota *provider.QuotaError
	require.True(t, errors.As(err, &quota))
	assert.Equal(t, "provider_timeout", quota.Reason)
}

func TestTranscribeMissingConfig(t *testing.T) {
	_, err := NewTranscriber(Config{}, nil).Transcribe(context.Background(), "x.ogg")
	var failed *provider.FailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, "whisper_server_url_missing", failed.ProviderCode)

	_, err = NewTranscriber(Config{BaseURL: "http://127.0.0.1:1"}, nil).Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.ogg"))
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, "form_creation_failed", failed.ProviderCode)
}
