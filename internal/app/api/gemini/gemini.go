package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/genai"

	"voxflow/internal/app/api/provider"
)

const (
	defaultModel  = "gemini-2.0-flash"
	defaultPrompt = "Transcribe this audio verbatim. Return only the transcript text."
)

// Config configures the Gemini transcriber.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Prompt  string
	Timeout time.Duration
}

// Transcriber implements provider.Transcriber using the Gemini API with the
// audio passed inline.
type Transcriber struct {
	client *genai.Client
	config Config
}

// NewTranscriber creates a Gemini transcriber. A missing API key is not an
// error here; Transcribe reports it as a classified failure.
func NewTranscriber(ctx context.Context, config Config) (*Transcriber, error) {
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Prompt == "" {
		config.Prompt = defaultPrompt
	}
	t := &Transcriber{config: config}
	if config.APIKey == "" {
		return t, nil
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	t.client = client
	return t, nil
}

// Name implements provider.Transcriber.
func (t *Transcriber) Name() string {
	return "gemini"
}

// Transcribe implements provider.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, inputFilePath string) (*provider.Result, error) {
	if t.client == nil {
		return nil, provider.MissingCredential(t.Name())
	}

	data, err := os.ReadFile(inputFilePath)
	if err != nil {
		return nil, &provider.FailedError{Message: fmt.Sprintf("read audio: %v", err)}
	}

	if t.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}

	parts := []*genai.Part{
		genai.NewPartFromText(t.config.Prompt),
		genai.NewPartFromBytes(data, audioMimeType(inputFilePath)),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := t.client.Models.GenerateContent(ctx, t.config.Model, contents, nil)
	if err != nil {
		return nil, classifyAPIError(err)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini response: %w", err)
	}

	return &provider.Result{
		Text: strings.TrimSpace(responseText(resp)),
		Raw:  raw,
	}, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func classifyAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return provider.Classify(apiErr.Code, apiErr.Status, "", apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return provider.Classify(apiErrPtr.Code, apiErrPtr.Status, "", apiErrPtr.Message)
	}
	return provider.ClassifyTransportError(err)
}

func audioMimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".ogg", ".oga", ".opus":
		return "audio/ogg"
	case ".mp3":
		return "audio/mp3"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "audio/ogg"
}
