package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxflow/internal/app/transport"
)

const testToken = "123:abc"

func newBotServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bot" + testToken + "/getFile":
			switch r.URL.Query().Get("file_id") {
			case "voice-1":
				_, _ = w.Write([]byte(`{"ok":true,"result":{"file_id":"voice-1","file_unique_id":"u1","file_size":9,"file_path":"voice/file_1.oga"}}`))
			case "no-path":
				_, _ = w.Write([]byte(`{"ok":true,"result":{"file_id":"no-path"}}`))
			case "empty":
				_, _ = w.Write([]byte(`{"ok":true,"result":{"file_id":"empty","file_path":"voice/empty.oga"}}`))
			default:
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: invalid file_id"}`))
			}
		case "/file/bot" + testToken + "/voice/file_1.oga":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte("OggS data"))
		case "/file/bot" + testToken + "/voice/empty.oga":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestResolveAndDownload(t *testing.T) {
	server := newBotServer(t)
	defer server.Close()

	tr := New(Config{BotToken: testToken, BaseURL: server.URL}, server.Client())
	ctx := context.Background()

	url, err := tr.Resolve(ctx, "voice-1")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/file/bot"+testToken+"/voice/file_1.oga", url)

	data, contentType, err := tr.Download(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, "OggS data", string(data))
	assert.Equal(t, "audio/ogg", contentType)
}

func TestResolveErrors(t *testing.T) {
	server := newBotServer(t)
	defer server.Close()

	tests := []struct {
		name   string
		token  string
		fileID string
		code   string
	}{
		{"missing token", "", "voice-1", CodeTokenMissing},
		{"bad file id", testToken, "nope", CodeGetFileFailed},
		{"no file path", testToken, "no-path", CodeFilePathMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(Config{BotToken: tt.token, BaseURL: server.URL}, server.Client())
			_, err := tr.Resolve(context.Background(), tt.fileID)
			var terr *transport.Error
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, tt.code, terr.Code)
			assert.NotContains(t, terr.Message, testToken)
		})
	}
}

func TestDownloadEmpty(t *testing.T) {
	server := newBotServer(t)
	defer server.Close()

	tr := New(Config{BotToken: testToken, BaseURL: server.URL}, server.Client())
	url, err := tr.Resolve(context.Background(), "empty")
	require.NoError(t, err)

	_, _, err = tr.Download(context.Background(), url)
	var terr *transport.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeEmptyFile, terr.Code)
}

func TestDownloadFailureRedactsToken(t *testing.T) {
	server := newBotServer(t)
	defer server.Close()

	tr := New(Config{BotToken: testToken, BaseURL: server.URL}, server.Client())
	_, _, err := tr.Download(context.Background(), server.URL+"/file/bot"+testToken+"/missing.oga")
	var terr *transport.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeDownloadFailed, terr.Code)
	assert.NotContains(t, terr.Error(), testToken)
}
