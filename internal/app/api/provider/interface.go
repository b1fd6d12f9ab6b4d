package provider

import (
	"context"
	"encoding/json"
)

// Transcriber submits one audio file to a remote speech-to-text provider.
// Implementations never retry internally; failures are returned as Error.
type Transcriber interface {
	Transcribe(ctx context.Context, inputFilePath string) (*Result, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

// Result is a successful provider response.
type Result struct {
	Text     string          `json:"text"`
	Language string          `json:"language,omitempty"`
	Duration float64         `json:"duration,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}
