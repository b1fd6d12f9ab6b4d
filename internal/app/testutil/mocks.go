package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"voxflow/internal/app/api/provider"
	"voxflow/internal/app/transport"
)

// TranscriberResponse is one scripted provider outcome.
type TranscriberResponse struct {
	Result *provider.Result
	Err    error
}

// MockTranscriber returns scripted responses in order, then repeats
// DefaultResponse. Every call is recorded.
type MockTranscriber struct {
	mu sync.Mutex

	Responses       []TranscriberResponse
	DefaultResponse TranscriberResponse
	Calls           []string
}

var _ provider.Transcriber = (*MockTranscriber)(nil)

// NewMockTranscriber answers every call with text.
func NewMockTranscriber(text string) *MockTranscriber {
	return &MockTranscriber{
		DefaultResponse: TranscriberResponse{Result: &provider.Result{
			Text: text,
			Raw:  json.RawMessage(fmt.Sprintf(`{"text":%q}`, text)),
		}},
	}
}

// Then queues one more scripted response.
func (m *MockTranscriber) Then(result *provider.Result, err error) *MockTranscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, TranscriberResponse{Result: result, Err: err})
	return m
}

// Transcribe implements provider.Transcriber.
func (m *MockTranscriber) Transcribe(_ context.Context, inputFilePath string) (*provider.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, inputFilePath)

	resp := m.DefaultResponse
	if len(m.Responses) > 0 {
		resp = m.Responses[0]
		m.Responses = m.Responses[1:]
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	if resp.Result == nil {
		return &provider.Result{}, nil
	}
	cp := *resp.Result
	return &cp, nil
}

// Name implements provider.Transcriber.
func (m *MockTranscriber) Name() string { return "mock" }

// CallCount returns the number of Transcribe calls.
func (m *MockTranscriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// EnqueuedJob is one captured queue submission.
type EnqueuedJob struct {
	Queue    string
	Type     string
	Payload  []byte
	DedupKey string
}

// MockEnqueuer records submissions and drops repeated dedup keys like the
// real queue does.
type MockEnqueuer struct {
	mu   sync.Mutex
	Jobs []EnqueuedJob
	Err  error
	seen map[string]bool
}

// NewMockEnqueuer creates an empty recorder.
func NewMockEnqueuer() *MockEnqueuer {
	return &MockEnqueuer{seen: make(map[string]bool)}
}

// Enqueue implements queue.Enqueuer.
func (e *MockEnqueuer) Enqueue(_ context.Context, queueName, jobType string, payload []byte, dedupKey string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	if dedupKey != "" && e.seen[dedupKey] {
		return nil
	}
	e.seen[dedupKey] = true
	e.Jobs = append(e.Jobs, EnqueuedJob{Queue: queueName, Type: jobType, Payload: payload, DedupKey: dedupKey})
	return nil
}

// JobsOfType filters captured jobs.
func (e *MockEnqueuer) JobsOfType(jobType string) []EnqueuedJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []EnqueuedJob
	for _, j := range e.Jobs {
		if j.Type == jobType {
			out = append(out, j)
		}
	}
	return out
}

// Event is one captured publication.
type Event struct {
	SessionID string
	Type      string
	Payload   interface{}
}

// RecordingSink captures events. Err is returned from every Publish after
// recording.
type RecordingSink struct {
	mu     sync.Mutex
	Events []Event
	Err    error
}

// Publish implements events.Sink.
func (r *RecordingSink) Publish(_ context.Context, sessionID, eventType string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Event{SessionID: sessionID, Type: eventType, Payload: payload})
	return r.Err
}

// Count returns how many events were captured.
func (r *RecordingSink) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Events)
}

// FakeAudio implements audio.Utility without ffmpeg. SplitByDuration writes
// SegmentCount files of SegmentSize bytes each.
type FakeAudio struct {
	mu sync.Mutex

	Duration     float64
	ProbeErr     error
	SegmentCount int
	SegmentSize  int64
	SplitErr     error

	SplitCalls  int
	LastSeconds float64
	LastOutDir  string
}

// ProbeDuration implements audio.Utility.
func (f *FakeAudio) ProbeDuration(context.Context, string) (float64, error) {
	if f.ProbeErr != nil {
		return 0, f.ProbeErr
	}
	return f.Duration, nil
}

// SplitByDuration implements audio.Utility.
func (f *FakeAudio) SplitByDuration(_ context.Context, _ string, segmentSeconds float64, outDir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SplitCalls++
	f.LastSeconds = segmentSeconds
	f.LastOutDir = outDir
	if f.SplitErr != nil {
		return nil, f.SplitErr
	}

	paths := make([]string, 0, f.SegmentCount)
	for i := 0; i < f.SegmentCount; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("segment_%03d.ogg", i))
		if err := os.WriteFile(p, make([]byte, f.SegmentSize), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// MockTransport serves Files keyed by handle. URLs are "mock://<handle>".
type MockTransport struct {
	mu sync.Mutex

	Files       map[string][]byte
	ContentType string
	ResolveErr  *transport.Error
	DownloadErr *transport.Error

	Resolves  int
	Downloads int
}

var _ transport.Transport = (*MockTransport)(nil)

// Resolve implements transport.Transport.
func (t *MockTransport) Resolve(_ context.Context, handle string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Resolves++
	if t.ResolveErr != nil {
		return "", t.ResolveErr
	}
	if _, ok := t.Files[handle]; !ok {
		return "", transport.Errorf("mock_unknown_handle", "no file for %s", handle)
	}
	return "mock://" + handle + "/voice.oga", nil
}

// Download implements transport.Transport.
func (t *MockTransport) Download(_ context.Context, url string) ([]byte, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Downloads++
	if t.DownloadErr != nil {
		return nil, "", t.DownloadErr
	}
	handle := strings.TrimSuffix(strings.TrimPrefix(url, "mock://"), "/voice.oga")
	data := t.Files[handle]
	return append([]byte(nil), data...), t.ContentType, nil
}
