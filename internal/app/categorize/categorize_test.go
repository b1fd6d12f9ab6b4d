package categorize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/model"
	"voxflow/internal/app/testutil"
)

// chatServer answers every chat completion with answer.
func chatServer(t *testing.T, answer string, status int) (*openai.Client, *[]openai.ChatCompletionRequest) {
	t.Helper()
	var requests []openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req openai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream broke","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: req.Model,
			Choices: []openai.ChatCompletionChoice{{
				Index:   0,
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: answer},
			}},
		})
	}))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg), &requests
}

func seed(t *testing.T, store *testutil.MemoryStore, processors ...string) (*model.Session, *model.Message) {
	t.Helper()
	session := testutil.NewSession()
	session.Processors = processors
	require.NoError(t, store.CreateSession(context.Background(), session))

	msg := testutil.NewMessage(session.ID)
	msg.IsTranscribed = true
	msg.TranscriptionText = "remind me to call the plumber tomorrow"
	require.NoError(t, store.CreateMessage(context.Background(), msg))
	return session, msg
}

func TestHandleCategorizeJob(t *testing.T) {
	store := testutil.NewMemoryStore()
	sink := &testutil.RecordingSink{}
	client, requests := chatServer(t, "Task.", http.StatusOK)
	session, msg := seed(t, store)

	c := New(store, store, client, sink, DefaultConfig(), nil)
	require.NoError(t, c.HandleCategorizeJob(context.Background(), model.CategorizeJob{MessageID: msg.ID, SessionID: session.ID}))

	got, err := store.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "task", got.Category)
	assert.Equal(t, 1, sink.Count())

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, openai.GPT4oMini, req.Model)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[0].Content, "task, idea, note, question, other")
	assert.Equal(t, msg.TranscriptionText, req.Messages[1].Content)

	// Already categorized messages are not sent again.
	require.NoError(t, c.HandleCategorizeJob(context.Background(), model.CategorizeJob{MessageID: msg.ID}))
	assert.Len(t, *requests, 1)
}

func TestHandleCategorizeJobSkips(t *testing.T) {
	client, requests := chatServer(t, "idea", http.StatusOK)

	t.Run("disabled", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		_, msg := seed(t, store)
		cfg := DefaultConfig()
		cfg.Enabled = false
		require.NoError(t, New(store, store, client, nil, cfg, nil).HandleCategorizeJob(context.Background(), model.CategorizeJob{MessageID: msg.ID}))
	})

	t.Run("processor not enabled", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		_, msg := seed(t, store, "summary")
		require.NoError(t, New(store, store, client, nil, DefaultConfig(), nil).HandleCategorizeJob(context.Background(), model.CategorizeJob{MessageID: msg.ID}))
	})

	t.Run("not transcribed", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		_, msg := seed(t, store)
		msg.IsTranscribed = false
		require.NoError(t, store.UpdateMessage(context.Background(), msg))
		require.NoError(t, New(store, store, client, nil, DefaultConfig(), nil).HandleCategorizeJob(context.Background(), model.CategorizeJob{MessageID: msg.ID}))
	})

	assert.Empty(t, *requests)
}

func TestHandleCategorizeJobErrors(t *testing.T) {
	store := testutil.NewMemoryStore()
	client, _ := chatServer(t, "", http.StatusInternalServerError)
	_, msg := seed(t, store)
	c := New(store, store, client, nil, DefaultConfig(), nil)

	err := c.HandleCategorizeJob(context.Background(), model.CategorizeJob{MessageID: msg.ID})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCategorizationFailed, apperrors.CodeOf(err))

	err = c.HandleCategorizeJob(context.Background(), model.CategorizeJob{MessageID: testutil.NewMessage("").ID})
	assert.True(t, apperrors.IsNotFound(err))

	store.SetError("UpdateMessage", errors.New("disk full"))
	okClient, _ := chatServer(t, "note", http.StatusOK)
	err = New(store, store, okClient, nil, DefaultConfig(), nil).HandleCategorizeJob(context.Background(), model.CategorizeJob{MessageID: msg.ID})
	assert.ErrorContains(t, err, "disk full")
}

func TestMatchCategory(t *testing.T) {
	categories := []string{"task", "idea", "other"}
	tests := []struct {
		answer string
		want   string
	}{
		{"task", "task"},
		{"  IDEA.\n", "idea"},
		{"This is a task.", "task"},
		{"banana", "other"},
		{"", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchCategory(tt.answer, categories, "other"))
		})
	}
}
