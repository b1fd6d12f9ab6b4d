package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxflow/internal/app/api/provider"
	"voxflow/internal/app/events"
	"voxflow/internal/app/model"
	"voxflow/internal/app/repository/sqlite"
	"voxflow/internal/app/testutil"
	"voxflow/internal/app/transport"
	"voxflow/internal/app/voicecmd"
)

type recordingTrigger struct {
	mu    sync.Mutex
	calls []string
	err   error
	panic bool
}

func (r *recordingTrigger) Handle(_ context.Context, _ *model.Session, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, msg.ID)
	if r.panic {
		panic("trigger exploded")
	}
	return r.err
}

type panicTranscriber struct{}

func (panicTranscriber) Transcribe(context.Context, string) (*provider.Result, error) {
	panic("provider exploded")
}

func (panicTranscriber) Name() string { return "panic" }

type harness struct {
	t           *testing.T
	store       *testutil.MemoryStore
	transcriber *testutil.MockTranscriber
	enqueuer    *testutil.MockEnqueuer
	sink        *testutil.RecordingSink
	audio       *testutil.FakeAudio
	transport   *testutil.MockTransport
	trigger     *recordingTrigger
	metrics     *Metrics
	session     *model.Session
	now         time.Time
	opts        Options
	orch        *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:           t,
		store:       testutil.NewMemoryStore(),
		transcriber: testutil.NewMockTranscriber("hello world"),
		enqueuer:    testutil.NewMockEnqueuer(),
		sink:        &testutil.RecordingSink{},
		audio:       &testutil.FakeAudio{SegmentCount: 2, SegmentSize: 50},
		transport:   &testutil.MockTransport{Files: map[string][]byte{}},
		trigger:     &recordingTrigger{},
		metrics:     NewMetrics(prometheus.NewRegistry()),
		session:     testutil.NewSession(),
		now:         time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, h.store.CreateSession(context.Background(), h.session))

	registry := transport.NewRegistry()
	registry.Register("telegram", h.transport)

	h.opts = Options{
		Messages:    h.store,
		Sessions:    h.store,
		Resolver:    NewTransportResolver(registry, t.TempDir(), nil),
		Segmenter:   NewSegmenter(h.audio, smallSegmentConfig(t), nil),
		Transcriber: h.transcriber,
		Trigger:     h.trigger,
		Enqueuer:    h.enqueuer,
		Events:      h.sink,
		Policy:      DefaultRetryPolicy(),
		Metrics:     h.metrics,
		Now:         func() time.Time { return h.now },
	}
	h.orch = NewOrchestrator(h.opts)
	return h
}

// rebuild applies option changes made after newHarness.
func (h *harness) rebuild() {
	h.orch = NewOrchestrator(h.opts)
}

func (h *harness) audioMessage(size int) *model.Message {
	h.t.Helper()
	msg := testutil.NewMessage(h.session.ID)
	msg.FilePath = testutil.WriteAudioFile(h.t, msg.ID+".ogg", size)
	msg.ToTranscribe = true
	require.NoError(h.t, h.store.CreateMessage(context.Background(), msg))
	return msg
}

func (h *harness) run(msg *model.Message) model.JobResult {
	return h.orch.HandleTranscribeJob(context.Background(), model.TranscribeJob{MessageID: msg.ID, SessionID: msg.SessionID})
}

func (h *harness) load(id string) *model.Message {
	h.t.Helper()
	msg, err := h.store.GetMessage(context.Background(), id)
	require.NoError(h.t, err)
	return msg
}

func (h *harness) loadSession() *model.Session {
	h.t.Helper()
	s, err := h.store.GetSession(context.Background(), h.session.ID)
	require.NoError(h.t, err)
	return s
}

func TestHandleTranscribeJobDirect(t *testing.T) {
	h := newHarness(t)
	msg := h.audioMessage(50)

	res := h.run(msg)
	require.True(t, res.OK, "%+v", res)
	assert.Equal(t, model.MethodDirect, res.Method)
	assert.Equal(t, h.session.ID, res.SessionID)

	got := h.load(msg.ID)
	assert.True(t, got.IsTranscribed)
	assert.False(t, got.ToTranscribe)
	assert.Equal(t, "hello world", got.TranscriptionText)
	assert.Equal(t, model.MethodDirect, got.TranscriptionMethod)
	assert.Zero(t, got.TranscribeAttempts)
	require.NotNil(t, got.Transcription)
	require.Len(t, got.Transcription.Segments, 1)
	assert.Equal(t, ChunkID(msg.ID, 0), got.Transcription.Segments[0].ID)
	require.NotNil(t, got.TranscribedAt)
	assert.True(t, got.TranscribedAt.Equal(h.now))
	assert.JSONEq(t, `{"text":"hello world"}`, string(got.TranscriptionRaw))

	jobs := h.enqueuer.JobsOfType(model.JobTypeCategorize)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.QueueCategorize, jobs[0].Queue)
	assert.Equal(t, msg.ID+"-categorize", jobs[0].DedupKey)

	require.Equal(t, 1, h.sink.Count())
	assert.Equal(t, events.MessageUpdate, h.sink.Events[0].Type)
	assert.Equal(t, h.session.ID, h.sink.Events[0].SessionID)

	assert.Equal(t, []string{msg.ID}, h.trigger.calls)
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.jobs.WithLabelValues(OutcomeSuccess, model.MethodDirect)))
}

func TestHandleTranscribeJobIsIdempotent(t *testing.T) {
	h := newHarness(t)
	msg := h.audioMessage(50)

	require.True(t, h.run(msg).OK)
	before := h.load(msg.ID)

	res := h.run(msg)
	assert.True(t, res.OK)
	assert.True(t, res.Skipped)
	assert.Equal(t, model.ReasonAlreadyTranscribed, res.Reason)

	assert.Equal(t, 1, h.transcriber.CallCount())
	assert.Equal(t, 1, h.sink.Count())
	assert.Len(t, h.enqueuer.Jobs, 1)
	assert.Equal(t, before, h.load(msg.ID))
}

func TestHandleTranscribeJobForceRetranscribes(t *testing.T) {
	h := newHarness(t)
	msg := h.audioMessage(50)
	require.True(t, h.run(msg).OK)

	h.transcriber.Then(&provider.Result{Text: "second pass"}, nil)
	res := h.orch.HandleTranscribeJob(context.Background(), model.TranscribeJob{MessageID: msg.ID, Force: true})
	require.True(t, res.OK)
	assert.False(t, res.Skipped)
	assert.Equal(t, "second pass", h.load(msg.ID).TranscriptionText)
	assert.Equal(t, 2, h.transcriber.CallCount())
}

func TestHandleTranscribeJobReusesIdenticalAudio(t *testing.T) {
	h := newHarness(t)

	first := h.audioMessage(50)
	first.FileHash = "same-audio"
	require.NoError(t, h.store.UpdateMessage(context.Background(), first))
	require.True(t, h.run(first).OK)

	second := testutil.NewMessage(h.session.ID)
	second.FileHash = "same-audio"
	second.ToTranscribe = true
	require.NoError(t, h.store.CreateMessage(context.Background(), second))

	res := h.run(second)
	require.True(t, res.OK, "%+v", res)
	assert.Equal(t, model.MethodReuseByHash, res.Method)
	assert.Equal(t, 1, h.transcriber.CallCount())

	got := h.load(second.ID)
	assert.True(t, got.IsTranscribed)
	assert.Equal(t, "hello world", got.TranscriptionText)
	assert.Empty(t, got.FilePath)
}

func TestHandleTranscribeJobReusesBySecondaryIdentity(t *testing.T) {
	h := newHarness(t)

	first := h.audioMessage(50)
	first.FileHash = "file-hash"
	first.FileUniqueID = "tg-unique"
	require.NoError(t, h.store.UpdateMessage(context.Background(), first))
	require.True(t, h.run(first).OK)

	second := testutil.NewMessage(h.session.ID)
	second.FileUniqueID = "tg-unique"
	second.ToTranscribe = true
	require.NoError(t, h.store.CreateMessage(context.Background(), second))

	res := h.run(second)
	require.True(t, res.OK, "%+v", res)
	assert.Equal(t, model.MethodReuseByHash, res.Method)
	assert.Equal(t, 1, h.transcriber.CallCount())
}

func TestHandleTranscribeJobDoesNotReuseAcrossSessions(t *testing.T) {
	h := newHarness(t)

	first := h.audioMessage(50)
	first.FileHash = "same-audio"
	require.NoError(t, h.store.UpdateMessage(context.Background(), first))
	require.True(t, h.run(first).OK)

	other := testutil.NewSession()
	require.NoError(t, h.store.CreateSession(context.Background(), other))
	msg := testutil.NewMessage(other.ID)
	msg.FileHash = "same-audio"
	msg.FilePath = testutil.WriteAudioFile(t, "other.ogg", 40)
	require.NoError(t, h.store.CreateMessage(context.Background(), msg))

	res := h.run(msg)
	require.True(t, res.OK)
	assert.Equal(t, model.MethodDirect, res.Method)
	assert.Equal(t, 2, h.transcriber.CallCount())
}

func TestHandleTranscribeJobDownloadsFromTransport(t *testing.T) {
	h := newHarness(t)
	h.transport.Files["tg-file"] = make([]byte, 40)
	h.transport.ContentType = "audio/ogg"

	msg := testutil.NewMessage(h.session.ID)
	msg.SourceType = "telegram"
	msg.FileID = "tg-file"
	msg.ToTranscribe = true
	require.NoError(t, h.store.CreateMessage(context.Background(), msg))

	res := h.run(msg)
	require.True(t, res.OK, "%+v", res)
	assert.Equal(t, model.MethodDirect, res.Method)

	got := h.load(msg.ID)
	assert.True(t, got.IsTranscribed)
	assert.NotEmpty(t, got.FilePath)
	assert.FileExists(t, got.FilePath)
	assert.Equal(t, int64(40), got.Transport.Size)
	assert.Equal(t, "audio/ogg", got.MimeType)
	assert.NotEmpty(t, got.SHA256)

	assert.Len(t, h.enqueuer.JobsOfType(model.JobTypeCategorize), 1)
	assert.Equal(t, 1, h.sink.Count())
}

func TestHandleTranscribeJobTransportFailure(t *testing.T) {
	h := newHarness(t)
	h.transport.Files["tg-file"] = []byte("x")
	h.transport.DownloadErr = transport.Errorf("telegram_download_failed", "status 502")

	msg := testutil.NewMessage(h.session.ID)
	msg.SourceType = "telegram"
	msg.FileID = "tg-file"
	require.NoError(t, h.store.CreateMessage(context.Background(), msg))

	res := h.run(msg)
	assert.False(t, res.OK)
	assert.Equal(t, "missing_transport", res.Error)
	assert.Contains(t, res.ErrorMessage, "telegram_download_failed")

	got := h.load(msg.ID)
	assert.Equal(t, "missing_transport", got.TranscriptionError)
	assert.Equal(t, "telegram_download_failed", got.Transport.ErrorCode)
	assert.Zero(t, h.transcriber.CallCount())
	assert.True(t, h.loadSession().IsCorrupted)
}

func TestHandleTranscribeJobTextFallback(t *testing.T) {
	h := newHarness(t)
	msg := testutil.NewMessage(h.session.ID)
	msg.Text = "  typed instead of spoken  "
	require.NoError(t, h.store.CreateMessage(context.Background(), msg))

	res := h.run(msg)
	require.True(t, res.OK)
	assert.Equal(t, model.MethodTextFallback, res.Method)
	assert.Equal(t, "typed instead of spoken", h.load(msg.ID).TranscriptionText)
	assert.Zero(t, h.transcriber.CallCount())
}

func TestHandleTranscribeJobMissingFilePath(t *testing.T) {
	h := newHarness(t)
	msg := testutil.NewMessage(h.session.ID)
	require.NoError(t, h.store.CreateMessage(context.Background(), msg))

	res := h.run(msg)
	assert.Equal(t, "missing_file_path", res.Error)
	assert.False(t, res.Retryable)
}

func TestHandleTranscribeJobQuotaRetry(t *testing.T) {
	h := newHarness(t)
	msg := h.audioMessage(50)
	h.transcriber.Then(nil, &provider.QuotaError{Reason: "insufficient_quota", StatusCode: 429, Message: "You exceeded your current quota"})

	res := h.run(msg)
	assert.False(t, res.OK)
	assert.True(t, res.Retryable)
	assert.Equal(t, "insufficient_quota", res.Error)
	require.NotNil(t, res.NextAttemptAt)
	assert.True(t, res.NextAttemptAt.Equal(h.now.Add(time.Minute)))

	got := h.load(msg.ID)
	assert.False(t, got.IsTranscribed)
	assert.True(t, got.ToTranscribe)
	assert.Equal(t, 1, got.TranscribeAttempts)
	assert.Equal(t, model.RetryReasonInsufficientQuota, got.TranscriptionRetryReason)
	assert.Equal(t, "insufficient_quota", got.TranscriptionError)

	sess := h.loadSession()
	assert.False(t, sess.IsCorrupted)
	assert.Equal(t, "insufficient_quota", sess.ErrorCode)
	assert.Equal(t, msg.ID, sess.ErrorMessageID)
	assert.Equal(t, 1, h.sink.Count())
	assert.Empty(t, h.enqueuer.Jobs)

	// Still inside the backoff window.
	res = h.run(msg)
	assert.True(t, res.Skipped)
	assert.Equal(t, model.ReasonRetryNotDue, res.Reason)
	assert.Equal(t, 1, h.transcriber.CallCount())

	h.now = h.now.Add(2 * time.Minute)
	res = h.run(msg)
	require.True(t, res.OK, "%+v", res)

	got = h.load(msg.ID)
	assert.True(t, got.IsTranscribed)
	assert.Zero(t, got.TranscribeAttempts)
	assert.Empty(t, got.TranscriptionRetryReason)
	assert.Nil(t, got.TranscriptionNextAttemptAt)
	assert.False(t, h.loadSession().HasError())
}

func TestHandleTranscribeJobTimeoutIsRetryable(t *testing.T) {
	h := newHarness(t)
	msg := h.audioMessage(50)
	h.transcriber.Then(nil, context.DeadlineExceeded)

	res := h.run(msg)
	assert.True(t, res.Retryable)
	assert.Equal(t, "provider_timeout", res.Error)
	assert.Equal(t, model.RetryReasonProviderTimeout, h.load(msg.ID).TranscriptionRetryReason)
}

func TestHandleTranscribeJobTerminalFailure(t *testing.T) {
	h := newHarness(t)
	msg := h.audioMessage(50)
	h.transcriber.Then(nil, &provider.FailedError{ProviderCode: "invalid_audio", StatusCode: 400, Message: "bad file"})

	res := h.run(msg)
	assert.False(t, res.OK)
	assert.False(t, res.Retryable)
	assert.Equal(t, "invalid_audio", res.Error)

	got := h.load(msg.ID)
	assert.False(t, got.ToTranscribe)
	assert.Equal(t, "invalid_audio", got.TranscriptionError)
	assert.Nil(t, got.TranscriptionNextAttemptAt)
	assert.Equal(t, 1, got.TranscribeAttempts)

	sess := h.loadSession()
	assert.True(t, sess.IsCorrupted)
	assert.Equal(t, "invalid_audio", sess.ErrorCode)
	assert.Equal(t, msg.ID, sess.ErrorMessageID)
	assert.Empty(t, h.enqueuer.Jobs)
	assert.Empty(t, h.trigger.calls)
	assert.Equal(t, 1, h.sink.Count())
}

func TestHandleTranscribeJobAttemptCeiling(t *testing.T) {
	h := newHarness(t)
	msg := h.audioMessage(50)
	msg.TranscribeAttempts = 10
	require.NoError(t, h.store.UpdateMessage(context.Background(), msg))

	res := h.run(msg)
	assert.Equal(t, "max_attempts_exceeded", res.Error)
	assert.Zero(t, h.transcriber.CallCount())
	assert.False(t, h.load(msg.ID).ToTranscribe)
}

func TestHandleTranscribeJobQuotaRetriesSkipCeiling(t *testing.T) {
	h := newHarness(t)
	msg := h.audioMessage(50)
	msg.TranscribeAttempts = 10
	msg.TranscriptionRetryReason = model.RetryReasonInsufficientQuota
	require.NoError(t, h.store.UpdateMessage(context.Background(), msg))

	res := h.run(msg)
	require.True(t, res.OK, "%+v", res)
	assert.Equal(t, 1, h.transcriber.CallCount())
}

func TestHandleTranscribeJobSegmented(t *testing.T) {
	h := newHarness(t)
	msg := h.audioMessage(150)
	msg.Duration = 20
	require.NoError(t, h.store.UpdateMessage(context.Background(), msg))

	h.transcriber.
		Then(&provider.Result{Text: "first", Duration: 8, Raw: json.RawMessage(`{"text":"first"}`)}, nil).
		Then(&provider.Result{Text: "second", Raw: json.RawMessage(`{"text":"second"}`)}, nil)

	res := h.run(msg)
	require.True(t, res.OK, "%+v", res)
	assert.Equal(t, model.MethodSegmented, res.Method)
	assert.Equal(t, 2, h.transcriber.CallCount())

	got := h.load(msg.ID)
	assert.Equal(t, "first second", got.TranscriptionText)
	require.Len(t, got.TranscriptionChunks, 2)
	assert.Equal(t, ChunkID(msg.ID, 1), got.TranscriptionChunks[1].ID)
	assert.InDelta(t, 8.0, got.TranscriptionChunks[1].Timestamp, 1e-9)
	assert.InDelta(t, 12.0, got.TranscriptionChunks[1].Duration, 1e-9)
	require.NotNil(t, got.Transcription)
	assert.InDelta(t, 20.0, got.Transcription.Duration, 1e-9)

	var raws []json.RawMessage
	require.NoError(t, json.Unmarshal(got.TranscriptionRaw, &raws))
	assert.Len(t, raws, 2)

	_, err := os.Stat(h.audio.LastOutDir)
	assert.True(t, os.IsNotExist(err))
}

func TestHandleTranscribeJobFallsBackToSegmentation(t *testing.T) {
	h := newHarness(t)
	msg := h.audioMessage(100)
	h.transcriber.Then(nil, &provider.PayloadTooLargeError{StatusCode: 413, Message: "Maximum content size limit exceeded"})

	res := h.run(msg)
	require.True(t, res.OK, "%+v", res)
	assert.Equal(t, model.MethodSegmented, res.Method)
	assert.Equal(t, 3, h.transcriber.CallCount())
	assert.Equal(t, 1, h.audio.SplitCalls)
}

func TestHandleTranscribeJobSegmentRejected(t *testing.T) {
	h := newHarness(t)
	msg := h.audioMessage(150)
	h.transcriber.Then(nil, &provider.PayloadTooLargeError{StatusCode: 413})

	res := h.run(msg)
	assert.Equal(t, "audio_too_large", res.Error)
	assert.False(t, res.Retryable)
	assert.True(t, h.loadSession().IsCorrupted)
}

func TestHandleTranscribeJobInvalidIDs(t *testing.T) {
	h := newHarness(t)

	res := h.orch.HandleTranscribeJob(context.Background(), model.TranscribeJob{MessageID: "not-a-uuid"})
	assert.Equal(t, "invalid_message_id", res.Error)

	assert.Zero(t, h.store.CallCount("UpdateMessage"))

	orphan := testutil.NewMessage("")
	orphan.FilePath = testutil.WriteAudioFile(t, "orphan.ogg", 10)
	require.NoError(t, h.store.CreateMessage(context.Background(), orphan))
	res = h.orch.HandleTranscribeJob(context.Background(), model.TranscribeJob{MessageID: orphan.ID, SessionID: "nope"})
	assert.Equal(t, "invalid_session_id", res.Error)
	assert.Equal(t, "invalid_session_id", h.load(orphan.ID).TranscriptionError)
	assert.Zero(t, h.transcriber.CallCount())
}

func TestHandleTranscribeJobPrefersStoredSession(t *testing.T) {
	h := newHarness(t)
	msg := h.audioMessage(10)

	res := h.orch.HandleTranscribeJob(context.Background(), model.TranscribeJob{MessageID: msg.ID, SessionID: "nope"})
	require.True(t, res.OK, "%+v", res)
	assert.Equal(t, h.session.ID, res.SessionID)
}

func TestHandleTranscribeJobNotFound(t *testing.T) {
	h := newHarness(t)

	res := h.orch.HandleTranscribeJob(context.Background(), model.TranscribeJob{MessageID: testutil.NewMessage("").ID})
	assert.Equal(t, "message_not_found", res.Error)

	orphan := testutil.NewMessage(testutil.NewSession().ID)
	orphan.FilePath = testutil.WriteAudioFile(t, "orphan.ogg", 10)
	require.NoError(t, h.store.CreateMessage(context.Background(), orphan))

	res = h.run(orphan)
	assert.Equal(t, "session_not_found", res.Error)
	assert.Equal(t, "session_not_found", h.load(orphan.ID).TranscriptionError)
	assert.Zero(t, h.transcriber.CallCount())
}

func TestHandleTranscribeJobStoreUnavailable(t *testing.T) {
	h := newHarness(t)
	msg := h.audioMessage(10)
	h.store.SetError("GetMessage", errors.New("connection refused"))

	res := h.run(msg)
	assert.Equal(t, "store_unavailable", res.Error)
	assert.Zero(t, h.transcriber.CallCount())
}

func TestHandleTranscribeJobRecoversPanics(t *testing.T) {
	h := newHarness(t)
	h.opts.Transcriber = panicTranscriber{}
	h.rebuild()
	msg := h.audioMessage(10)

	res := h.run(msg)
	assert.False(t, res.OK)
	assert.Equal(t, "transcription_failed", res.Error)
	assert.Contains(t, res.ErrorMessage, "provider exploded")

	done := make(chan model.JobResult, 1)
	go func() { done <- h.run(msg) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("message lock was not released after panic")
	}
}

func TestHandleTranscribeJobIsolatesSideEffects(t *testing.T) {
	h := newHarness(t)
	h.trigger.panic = true
	h.enqueuer.Err = errors.New("redis down")
	h.sink.Err = errors.New("publish failed")
	msg := h.audioMessage(10)

	res := h.run(msg)
	require.True(t, res.OK, "%+v", res)
	assert.True(t, h.load(msg.ID).IsTranscribed)
	assert.Equal(t, 1, h.sink.Count())
}

func TestHandleTranscribeJobCategorizationDisabled(t *testing.T) {
	h := newHarness(t)
	h.session.Processors = []string{"summary"}
	require.NoError(t, h.store.UpdateSession(context.Background(), h.session))
	msg := h.audioMessage(10)

	require.True(t, h.run(msg).OK)
	assert.Empty(t, h.enqueuer.JobsOfType(model.JobTypeCategorize))
}

func TestHandleTranscribeJobSerializesSameMessage(t *testing.T) {
	h := newHarness(t)
	msg := h.audioMessage(10)

	var wg sync.WaitGroup
	results := make([]model.JobResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.run(msg)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, h.transcriber.CallCount())
	skipped := 0
	for _, r := range results {
		assert.True(t, r.OK)
		if r.Skipped {
			skipped++
		}
	}
	assert.Equal(t, len(results)-1, skipped)
}

// gatedTranscriber blocks calls for slow.ogg until release is closed and
// then fails them; other files transcribe to text.
type gatedTranscriber struct {
	text    string
	started chan struct{}
	release chan struct{}
}

func (g *gatedTranscriber) Transcribe(ctx context.Context, path string) (*provider.Result, error) {
	if filepath.Base(path) == "slow.ogg" {
		close(g.started)
		<-g.release
		return nil, &provider.FailedError{StatusCode: 400, Message: "unsupported codec"}
	}
	return &provider.Result{Text: g.text, Duration: 3}, nil
}

func (g *gatedTranscriber) Name() string { return "gated" }

func TestHandleTranscribeJobConcurrentSessionWrites(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))

	session := testutil.NewSession()
	require.NoError(t, store.CreateSession(ctx, session))

	newMessage := func(name string) *model.Message {
		msg := testutil.NewMessage(session.ID)
		msg.FilePath = testutil.WriteAudioFile(t, name, 10)
		msg.ToTranscribe = true
		require.NoError(t, store.CreateMessage(ctx, msg))
		return msg
	}
	fast := newMessage("fast.ogg")
	slow := newMessage("slow.ogg")

	gate := &gatedTranscriber{
		text:    "Codex, create a ticket for login bug",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	orch := NewOrchestrator(Options{
		Messages:    store,
		Sessions:    store,
		Resolver:    NewTransportResolver(transport.NewRegistry(), t.TempDir(), nil),
		Segmenter:   NewSegmenter(&testutil.FakeAudio{SegmentCount: 2, SegmentSize: 50}, smallSegmentConfig(t), nil),
		Transcriber: gate,
		Trigger:     voicecmd.NewTrigger(store, store, store, voicecmd.Config{}, nil),
		Events:      &testutil.RecordingSink{},
		Policy:      DefaultRetryPolicy(),
		Metrics:     NewMetrics(prometheus.NewRegistry()),
	})

	slowDone := make(chan model.JobResult, 1)
	go func() {
		slowDone <- orch.HandleTranscribeJob(ctx, model.TranscribeJob{MessageID: slow.ID, SessionID: session.ID})
	}()
	<-gate.started

	res := orch.HandleTranscribeJob(ctx, model.TranscribeJob{MessageID: fast.ID, SessionID: session.ID})
	require.True(t, res.OK, "%+v", res)

	close(gate.release)
	slowRes := <-slowDone
	assert.False(t, slowRes.OK)

	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, got.VoiceCommands, 1)
	assert.Equal(t, fast.ID, got.VoiceCommands[0].MessageID)
	assert.True(t, got.IsCorrupted)
	assert.Equal(t, slow.ID, got.ErrorMessageID)
}
