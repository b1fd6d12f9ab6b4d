package openai

import (
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ClientConfig holds what is needed to build an OpenAI client.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewClient builds an OpenAI client. The HTTP client timeout is a backstop;
// callers pass their own context deadlines.
func NewClient(cfg ClientConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout + 30*time.Second}
	}
	return openai.NewClientWithConfig(clientConfig)
}
