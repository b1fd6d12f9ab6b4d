package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
)

// Transport resolves a remote file handle and downloads its bytes.
type Transport interface {
	Resolve(ctx context.Context, fileHandle string) (string, error)
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// Error is a structured transport failure. It is surfaced to the
// orchestrator as diagnostic context, never thrown past the resolver.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds a transport Error.
func Errorf(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Registry maps message source types to transports.
type Registry struct {
	transports map[string]Transport
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[string]Transport)}
}

// Register adds a transport for a source type, replacing any previous one.
func (r *Registry) Register(sourceType string, t Transport) {
	r.transports[sourceType] = t
}

// Get returns the transport for a source type.
func (r *Registry) Get(sourceType string) (Transport, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.transports[sourceType]
	return t, ok
}

// SourceTypes lists registered source types.
func (r *Registry) SourceTypes() []string {
	types := make([]string, 0, len(r.transports))
	for k := range r.transports {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

// Fetch downloads url with client, enforcing maxBytes when positive. Error
// codes are prefixed with codePrefix ("telegram", "s3").
func Fetch(ctx context.Context, client *http.Client, url string, maxBytes int64, codePrefix string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", Errorf(codePrefix+"_download_failed", "build request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", Errorf(codePrefix+"_download_failed", "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", Errorf(codePrefix+"_download_failed", "unexpected status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", Errorf(codePrefix+"_download_failed", "read body: %v", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, "", Errorf(codePrefix+"_file_too_large", "download exceeds %d bytes", maxBytes)
	}
	if len(data) == 0 {
		return nil, "", Errorf(codePrefix+"_empty_file", "downloaded payload is empty")
	}

	return data, resp.Header.Get("Content-Type"), nil
}
