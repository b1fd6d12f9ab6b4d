// Package whisper_server transcribes through a self-hosted whisper.cpp
// server's /inference endpoint.
package whisper_server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voxflow/internal/app/api/provider"
)

// Config configures the whisper-server transcriber.
type Config struct {
	BaseURL       string            `yaml:"base_url"`
	InferencePath string            `yaml:"inference_path"`
	Timeout       time.Duration     `yaml:"timeout"`
	Language      string            `yaml:"language"`
	Temperature   float64           `yaml:"temperature"`
	CustomHeaders map[string]string `yaml:"custom_headers"`
}

// response is the verbose_json body returned by whisper-server.
type response struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []segment `json:"segments,omitempty"`
}

type segment struct {
	ID    int     `json:"id"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcriber implements provider.Transcriber over HTTP.
type Transcriber struct {
	config Config
	client *http.Client
}

// NewTranscriber creates a whisper-server transcriber.
func NewTranscriber(config Config, client *http.Client) *Transcriber {
	if config.InferencePath == "" {
		config.InferencePath = "/inference"
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}
	if client == nil {
		client = &http.Client{}
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Transcriber{config: config, client: client}
}

// Name implements provider.Transcriber.
func (t *Transcriber) Name() string {
	return "whisper_server"
}

// Transcribe implements provider.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, inputFilePath string) (*provider.Result, error) {
	if t.config.BaseURL == "" {
		return nil, &provider.FailedError{ProviderCode: "whisper_server_url_missing", Message: "whisper server base URL is not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	body, contentType, err := t.multipartForm(inputFilePath)
	if err != nil {
		return nil, &provider.FailedError{ProviderCode: "form_creation_failed", Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.BaseURL+t.config.InferencePath, body)
	if err != nil {
		return nil, &provider.FailedError{ProviderCode: "request_creation_failed", Message: err.Error()}
	}
	req.Header.Set("Content-Type", contentType)
	for key, value := range t.config.CustomHeaders {
		req.Header.Set(key, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, provider.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.ClassifyTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.Classify(resp.StatusCode, "", "", fmt.Sprintf("whisper server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	var parsed response
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &provider.FailedError{ProviderCode: "response_parse_failed", StatusCode: resp.StatusCode, Message: err.Error()}
	}

	duration := parsed.Duration
	if duration == 0 && len(parsed.Segments) > 0 {
		duration = parsed.Segments[len(parsed.Segments)-1].End
	}
	return &provider.Result{
		Text:     strings.TrimSpace(parsed.Text),
		Language: parsed.Language,
		Duration: duration,
		Raw:      data,
	}, nil
}

func (t *Transcriber) multipartForm(path string) (*bytes.Buffer, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to copy file content: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
		"temperature":     fmt.Sprintf("%.2f", t.config.Temperature),
	}
	if t.config.Language != "" {
		fields["language"] = t.config.Language
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
