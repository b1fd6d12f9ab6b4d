package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"voxflow/internal/app/api/provider"
)

// Config configures the OpenAI Whisper transcriber.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// RemoteTranscriber implements remote transcription using the OpenAI API.
type RemoteTranscriber struct {
	client *openai.Client
	config Config
}

// NewRemoteTranscriber creates a new RemoteTranscriber instance.
func NewRemoteTranscriber(client *openai.Client, config Config) *RemoteTranscriber {
	if config.Model == "" {
		config.Model = openai.Whisper1
	}
	return &RemoteTranscriber{client: client, config: config}
}

// Name implements provider.Transcriber.
func (rt *RemoteTranscriber) Name() string {
	return "openai"
}

// Transcribe uploads one audio file and returns the transcript. The raw
// verbose_json payload is kept so segment timings survive.
func (rt *RemoteTranscriber) Transcribe(ctx context.Context, inputFilePath string) (*provider.Result, error) {
	if rt.config.APIKey == "" {
		return nil, provider.MissingCredential(rt.Name())
	}

	if rt.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.config.Timeout)
		defer cancel()
	}

	req := openai.AudioRequest{
		Model:    rt.config.Model,
		FilePath: inputFilePath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	resp, err := rt.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, classifyAPIError(err)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal transcription response: %w", err)
	}

	return &provider.Result{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
		Raw:      raw,
	}, nil
}

// classifyAPIError converts go-openai errors into the provider error set.
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		return provider.Classify(apiErr.HTTPStatusCode, code, apiErr.Type, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		message := string(reqErr.Body)
		if message == "" && reqErr.Err != nil {
			message = reqErr.Err.Error()
		}
		return provider.Classify(reqErr.HTTPStatusCode, "", "", message)
	}

	return provider.ClassifyTransportError(err)
}
