// Package transcribe turns a message id into a persisted transcript: dedup
// by content hash, audio materialization, segmentation, provider calls,
// timeline reconstruction and retry bookkeeping.
package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voxflow/internal/app/api/provider"
	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/events"
	"voxflow/internal/app/model"
	"voxflow/internal/app/queue"
	"voxflow/internal/app/repository"
)

// CommandTrigger reacts to a finished transcript.
type CommandTrigger interface {
	Handle(ctx context.Context, session *model.Session, msg *model.Message) error
}

// Options are the orchestrator's collaborators. Trigger, Enqueuer, Events
// and Metrics are optional.
type Options struct {
	Messages    repository.MessageStore
	Sessions    repository.SessionStore
	Resolver    *TransportResolver
	Segmenter   *Segmenter
	Transcriber provider.Transcriber
	Trigger     CommandTrigger
	Enqueuer    queue.Enqueuer
	Events      events.Sink
	Policy      RetryPolicy
	Metrics     *Metrics
	Logger      *zap.Logger
	Now         func() time.Time
}

// Orchestrator runs transcribe jobs. It is safe to call repeatedly and
// concurrently; jobs for the same message id are serialized.
type Orchestrator struct {
	opts   Options
	logger *zap.Logger
	locks  *keyedMutex
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Policy == (RetryPolicy{}) {
		opts.Policy = DefaultRetryPolicy()
	}
	return &Orchestrator{opts: opts, logger: opts.Logger, locks: newKeyedMutex()}
}

// transcript is what a provider pass produced.
type transcript struct {
	method     string
	text       string
	structured *model.StructuredTranscript
	chunks     []model.Chunk
	raw        json.RawMessage
}

// HandleTranscribeJob runs one job to a terminal result. It never panics.
func (o *Orchestrator) HandleTranscribeJob(ctx context.Context, job model.TranscribeJob) (result model.JobResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Transcribe job panicked",
				zap.String("message_id", job.MessageID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			result = model.JobResult{
				MessageID:    job.MessageID,
				SessionID:    job.SessionID,
				Error:        string(apperrors.CodeTranscriptionFailed),
				ErrorMessage: fmt.Sprintf("panic: %v", r),
			}
		}
		o.opts.Metrics.Observe(result)
	}()

	if _, err := uuid.Parse(job.MessageID); err != nil {
		return failure(job.MessageID, job.SessionID, apperrors.CodeInvalidMessageID, "message id is not a UUID")
	}

	unlock := o.locks.Lock(job.MessageID)
	defer unlock()

	return o.run(ctx, job)
}

func (o *Orchestrator) run(ctx context.Context, job model.TranscribeJob) model.JobResult {
	logger := o.logger.With(zap.String("message_id", job.MessageID))

	msg, err := o.opts.Messages.GetMessage(ctx, job.MessageID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return failure(job.MessageID, job.SessionID, apperrors.CodeMessageNotFound, "message does not exist")
		}
		logger.Error("Failed to load message", zap.Error(err))
		return failure(job.MessageID, job.SessionID, apperrors.CodeStoreUnavailable, err.Error())
	}

	// The stored session wins; the job's session id is only a fallback.
	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = job.SessionID
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return o.fail(ctx, msg, nil, apperrors.Codedf(apperrors.CodeInvalidSessionID, "session id %q is not a UUID", sessionID))
	}
	session, err := o.opts.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			msg.SessionID = sessionID
			return o.fail(ctx, msg, nil, apperrors.Codedf(apperrors.CodeSessionNotFound, "session %s does not exist", sessionID))
		}
		logger.Error("Failed to load session", zap.Error(err))
		return failure(msg.ID, sessionID, apperrors.CodeStoreUnavailable, err.Error())
	}

	if msg.IsTranscribed && !job.Force {
		return model.JobResult{OK: true, MessageID: msg.ID, SessionID: session.ID, Skipped: true, Reason: model.ReasonAlreadyTranscribed}
	}

	if o.tryReuse(ctx, msg, session, logger) {
		return o.succeed(ctx, msg, session, model.MethodReuseByHash)
	}

	resolution, err := o.opts.Resolver.Resolve(ctx, msg)
	if err != nil {
		return o.fail(ctx, msg, session, err)
	}
	if resolution.Kind == ResolvedTextFallback {
		msg.TranscriptionText = strings.TrimSpace(msg.Text)
		return o.succeed(ctx, msg, session, model.MethodTextFallback)
	}

	now := o.opts.Now()
	if !job.Force && o.opts.Policy.NotDue(msg, now) {
		if resolution.Kind == ResolvedDownloaded {
			if err := o.opts.Messages.UpdateMessage(ctx, msg); err != nil {
				logger.Warn("Failed to persist downloaded file", zap.Error(err))
			}
		}
		return model.JobResult{
			OK:            true,
			MessageID:     msg.ID,
			SessionID:     session.ID,
			Skipped:       true,
			Reason:        model.ReasonRetryNotDue,
			Retryable:     true,
			NextAttemptAt: msg.TranscriptionNextAttemptAt,
		}
	}

	msg.TranscribeAttempts++
	if !job.Force {
		if err := o.opts.Policy.CheckCeiling(msg, msg.TranscribeAttempts); err != nil {
			return o.fail(ctx, msg, session, err)
		}
	}
	if err := o.opts.Messages.UpdateMessage(ctx, msg); err != nil {
		logger.Error("Failed to record attempt", zap.Error(err))
		return failure(msg.ID, session.ID, apperrors.CodeStoreUnavailable, err.Error())
	}

	info, err := os.Stat(resolution.Path)
	if err != nil {
		return o.fail(ctx, msg, session, apperrors.Codedf(apperrors.CodeFileNotFound, "audio file %s is not readable: %v", resolution.Path, err))
	}

	out, err := o.transcribeFile(ctx, msg, resolution.Path, info.Size(), logger)
	if err != nil {
		return o.fail(ctx, msg, session, err)
	}

	msg.TranscriptionText = out.text
	msg.Transcription = out.structured
	msg.TranscriptionChunks = out.chunks
	msg.TranscriptionRaw = out.raw
	return o.succeed(ctx, msg, session, out.method)
}

func (o *Orchestrator) tryReuse(ctx context.Context, msg *model.Message, session *model.Session, logger *zap.Logger) bool {
	hash := ContentHash(msg)
	if hash == "" {
		return false
	}
	peer, err := o.opts.Messages.FindTranscribedByHash(ctx, session.ID, msg.ID, hash)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			logger.Warn("Content hash lookup failed", zap.Error(err))
		}
		return false
	}
	if !HasUsableTranscript(peer) {
		return false
	}
	copyTranscript(msg, peer)
	logger.Info("Reusing transcript of identical audio", zap.String("source_message_id", peer.ID))
	return true
}

// transcribeFile picks the whole-file or segmented path from the file size.
// A whole-file upload the provider rejects as too large falls back to
// segmentation once.
func (o *Orchestrator) transcribeFile(ctx context.Context, msg *model.Message, path string, size int64, logger *zap.Logger) (*transcript, error) {
	if !o.opts.Segmenter.Config().NeedsSegmentation(size) {
		res, err := o.call(ctx, path)
		if err == nil {
			total := msg.Duration
			if total <= 0 {
				total = res.Duration
			}
			structured, _ := BuildTimeline([]model.Chunk{{
				Index:    0,
				ID:       ChunkID(msg.ID, 0),
				Text:     res.Text,
				Duration: res.Duration,
			}}, total)
			structured.Language = res.Language
			return &transcript{
				method:     model.MethodDirect,
				text:       strings.TrimSpace(res.Text),
				structured: structured,
				raw:        res.Raw,
			}, nil
		}
		var tooLarge *provider.PayloadTooLargeError
		if !errors.As(err, &tooLarge) {
			return nil, err
		}
		logger.Info("Provider rejected whole file, segmenting", zap.Int64("size", size))
	}
	return o.transcribeSegments(ctx, msg, path, size)
}

func (o *Orchestrator) transcribeSegments(ctx context.Context, msg *model.Message, path string, size int64) (*transcript, error) {
	total := o.opts.Segmenter.TotalDuration(ctx, path, msg.Duration)

	var (
		chunks   []model.Chunk
		raws     []json.RawMessage
		language string
	)
	err := o.opts.Segmenter.WithSegments(ctx, path, size, total, func(segments []SegmentFile, _ SegmentPlan) error {
		for _, seg := range segments {
			res, err := o.call(ctx, seg.Path)
			if err != nil {
				var tooLarge *provider.PayloadTooLargeError
				if errors.As(err, &tooLarge) {
					return apperrors.WrapCoded(err, apperrors.CodeAudioTooLarge,
						fmt.Sprintf("provider rejected segment %d of %d bytes", seg.Index, seg.Size))
				}
				return err
			}
			if language == "" {
				language = res.Language
			}
			chunks = append(chunks, model.Chunk{
				Index:    seg.Index,
				ID:       ChunkID(msg.ID, seg.Index),
				Text:     res.Text,
				Duration: res.Duration,
			})
			raws = append(raws, res.Raw)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	structured, chunks := BuildTimeline(chunks, total)
	structured.Language = language
	raw, err := json.Marshal(raws)
	if err != nil {
		return nil, apperrors.WrapCoded(err, apperrors.CodeTranscriptionFailed, "encode provider payloads")
	}
	return &transcript{
		method:     model.MethodSegmented,
		text:       JoinText(chunks),
		structured: structured,
		chunks:     chunks,
		raw:        raw,
	}, nil
}

// call runs the provider and folds unclassified failures into provider.Error.
func (o *Orchestrator) call(ctx context.Context, path string) (*provider.Result, error) {
	res, err := o.opts.Transcriber.Transcribe(ctx, path)
	if err != nil {
		return nil, provider.ClassifyTransportError(err)
	}
	if res == nil {
		return nil, &provider.FailedError{Message: "provider returned no result"}
	}
	return res, nil
}

func (o *Orchestrator) succeed(ctx context.Context, msg *model.Message, session *model.Session, method string) model.JobResult {
	logger := o.logger.With(zap.String("message_id", msg.ID), zap.String("session_id", session.ID))

	o.opts.Policy.ApplySuccess(msg, method, o.opts.Now().UTC())
	if err := o.opts.Messages.UpdateMessage(ctx, msg); err != nil {
		logger.Error("Failed to persist transcript", zap.Error(err))
		return failure(msg.ID, session.ID, apperrors.CodeStoreUnavailable, err.Error())
	}

	if err := o.opts.Sessions.ClearSessionError(ctx, session.ID); err != nil {
		logger.Warn("Failed to clear session error", zap.Error(err))
	} else {
		session.ClearError()
	}

	if o.opts.Trigger != nil {
		o.isolate(logger, "voice_command", func() error {
			return o.opts.Trigger.Handle(ctx, session, msg)
		})
	}
	if o.opts.Enqueuer != nil && session.ProcessorEnabled(model.ProcessorCategorization) {
		o.isolate(logger, "categorize_enqueue", func() error {
			return queue.EnqueueCategorize(ctx, o.opts.Enqueuer, model.CategorizeJob{MessageID: msg.ID, SessionID: session.ID})
		})
	}
	o.publish(ctx, logger, session.ID, msg)

	logger.Info("Transcription complete", zap.String("method", method), zap.Int("chars", len(msg.TranscriptionText)))
	return model.JobResult{OK: true, MessageID: msg.ID, SessionID: session.ID, Method: method}
}

// fail records err on the message and, when known, the session. Retryable
// provider errors schedule a backoff; everything else is terminal.
func (o *Orchestrator) fail(ctx context.Context, msg *model.Message, session *model.Session, err error) model.JobResult {
	now := o.opts.Now().UTC()
	logger := o.logger.With(zap.String("message_id", msg.ID))

	result := model.JobResult{MessageID: msg.ID, SessionID: msg.SessionID}
	if session != nil {
		result.SessionID = session.ID
	}

	code, message := classify(err)
	var perr provider.Error
	if errors.As(err, &perr) && perr.Retryable() {
		next := o.opts.Policy.ApplyRetryable(msg, string(code), code, message, now)
		result.Retryable = true
		result.NextAttemptAt = &next
		logger.Warn("Transcription deferred",
			zap.String("code", string(code)),
			zap.Int("attempts", msg.TranscribeAttempts),
			zap.Time("next_attempt_at", next))
	} else {
		o.opts.Policy.ApplyTerminal(msg, code, message, now)
		logger.Error("Transcription failed",
			zap.String("code", string(code)),
			zap.Int("attempts", msg.TranscribeAttempts),
			zap.String("error", message))
	}
	result.Error = string(code)
	result.ErrorMessage = message

	if uerr := o.opts.Messages.UpdateMessage(ctx, msg); uerr != nil {
		logger.Error("Failed to persist transcription error", zap.Error(uerr))
	}

	if session != nil {
		sessionErr := model.SessionError{
			Corrupted:  !result.Retryable,
			Code:       string(code),
			Message:    message,
			OccurredAt: now,
			MessageID:  msg.ID,
		}
		session.SetError(sessionErr)
		if uerr := o.opts.Sessions.SetSessionError(ctx, session.ID, sessionErr); uerr != nil {
			logger.Warn("Failed to persist session error", zap.Error(uerr))
		}
		o.publish(ctx, logger, session.ID, msg)
	} else if msg.SessionID != "" {
		o.publish(ctx, logger, msg.SessionID, msg)
	}
	return result
}

func (o *Orchestrator) publish(ctx context.Context, logger *zap.Logger, sessionID string, msg *model.Message) {
	o.isolate(logger, "message_update_event", func() error {
		return o.opts.Events.Publish(ctx, sessionID, events.MessageUpdate, msg)
	})
}

// isolate runs a best-effort side effect. Errors and panics are logged and
// never reach the caller.
func (o *Orchestrator) isolate(logger *zap.Logger, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Side effect panicked", zap.String("effect", name), zap.Any("panic", r))
		}
	}()
	if err := fn(); err != nil {
		logger.Warn("Side effect failed", zap.String("effect", name), zap.Error(err))
	}
}

// classify maps an error onto the taxonomy.
func classify(err error) (apperrors.Code, string) {
	var coded *apperrors.CodedError
	if errors.As(err, &coded) {
		msg := coded.Message
		if cause := errors.Unwrap(coded); cause != nil {
			msg = fmt.Sprintf("%s: %v", msg, cause)
		}
		return coded.Code, msg
	}
	var perr provider.Error
	if errors.As(err, &perr) {
		return perr.Code(), perr.Error()
	}
	return apperrors.CodeTranscriptionFailed, err.Error()
}

func failure(messageID, sessionID string, code apperrors.Code, message string) model.JobResult {
	return model.JobResult{MessageID: messageID, SessionID: sessionID, Error: string(code), ErrorMessage: message}
}
