// Package telegram resolves Telegram Bot API file ids into downloadable URLs.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voxflow/internal/app/transport"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	// Bot API getFile refuses files over 20MB.
	DefaultMaxFileBytes = 20 << 20
	defaultTimeout      = 30 * time.Second
)

// Error codes reported by this transport.
const (
	CodeTokenMissing    = "telegram_token_missing"
	CodeGetFileFailed   = "telegram_get_file_failed"
	CodeFilePathMissing = "telegram_file_path_missing"
	CodeDownloadFailed  = "telegram_download_failed"
	CodeEmptyFile       = "telegram_empty_file"
)

// Config for the Telegram transport.
type Config struct {
	BotToken     string
	BaseURL      string
	Timeout      time.Duration
	MaxFileBytes int64
}

// Transport implements transport.Transport against the Bot API.
type Transport struct {
	config Config
	client *http.Client
}

var _ transport.Transport = (*Transport)(nil)

// New creates a Telegram transport. A nil client gets one with the configured timeout.
func New(config Config, client *http.Client) *Transport {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.MaxFileBytes <= 0 {
		config.MaxFileBytes = DefaultMaxFileBytes
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &Transport{config: config, client: client}
}

type getFileResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		FileID       string `json:"file_id"`
		FileUniqueID string `json:"file_unique_id"`
		FileSize     int64  `json:"file_size"`
		FilePath     string `json:"file_path"`
	} `json:"result"`
}

// Resolve calls getFile and returns the file download URL.
func (t *Transport) Resolve(ctx context.Context, fileID string) (string, error) {
	if t.config.BotToken == "" {
		return "", transport.Errorf(CodeTokenMissing, "telegram bot token is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", t.config.BaseURL, t.config.BotToken, url.QueryEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", transport.Errorf(CodeGetFileFailed, "build request: %v", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", transport.Errorf(CodeGetFileFailed, "getFile request failed: %s", redact(err.Error(), t.config.BotToken))
	}
	defer resp.Body.Close()

	var body getFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", transport.Errorf(CodeGetFileFailed, "decode getFile response (status %d): %v", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !body.OK {
		return "", transport.Errorf(CodeGetFileFailed, "getFile status %d: %s", resp.StatusCode, body.Description)
	}
	if body.Result.FilePath == "" {
		return "", transport.Errorf(CodeFilePathMissing, "getFile returned no file_path for %s", fileID)
	}

	return fmt.Sprintf("%s/file/bot%s/%s", t.config.BaseURL, t.config.BotToken, body.Result.FilePath), nil
}

// Download fetches the bytes behind a resolved URL.
func (t *Transport) Download(ctx context.Context, fileURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	data, contentType, err := transport.Fetch(ctx, t.client, fileURL, t.config.MaxFileBytes, "telegram")
	if err != nil {
		if terr, ok := err.(*transport.Error); ok {
			terr.Message = redact(terr.Message, t.config.BotToken)
		}
		return nil, "", err
	}
	// Telegram serves everything as application/octet-stream.
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimeFromPath(fileURL)
	}
	return data, contentType, nil
}

func mimeFromPath(p string) string {
	switch {
	case strings.HasSuffix(p, ".oga"), strings.HasSuffix(p, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(p, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(p, ".m4a"):
		return "audio/mp4"
	case strings.HasSuffix(p, ".wav"):
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// redact keeps the bot token out of persisted error messages.
func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<token>")
}
