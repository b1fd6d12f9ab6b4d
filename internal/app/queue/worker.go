package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/model"
)

// TranscribeHandler runs one transcribe job. It never returns an error;
// outcomes are in the result.
type TranscribeHandler interface {
	HandleTranscribeJob(ctx context.Context, job model.TranscribeJob) model.JobResult
}

// CategorizeHandler runs one categorize job.
type CategorizeHandler interface {
	HandleCategorizeJob(ctx context.Context, job model.CategorizeJob) error
}

// WorkerConfig sizes the worker pool.
type WorkerConfig struct {
	RedisURL        string
	Concurrency     int
	ShutdownTimeout time.Duration
}

// Handlers wires job types to their implementations. Nil entries are not
// registered.
type Handlers struct {
	Transcribe TranscribeHandler
	Categorize CategorizeHandler
	Sweeper    *Sweeper
}

// Worker is the asynq server processing pipeline queues.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewWorker builds the server and its mux.
func NewWorker(cfg WorkerConfig, handlers Handlers, logger *zap.Logger) (*Worker, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.Concurrency,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Queues: map[string]int{
			model.QueueTranscribe: 6,
			model.QueueCategorize: 3,
			"default":             1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("Task failed",
				zap.String("type", task.Type()),
				zap.Int("retry", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err))
		}),
		Logger: newAsynqLogger(logger),
	})

	mux := asynq.NewServeMux()
	if handlers.Transcribe != nil {
		mux.HandleFunc(model.JobTypeTranscribe, HandleTranscribeTask(handlers.Transcribe, logger))
	}
	if handlers.Categorize != nil {
		mux.HandleFunc(model.JobTypeCategorize, HandleCategorizeTask(handlers.Categorize, logger))
	}
	if handlers.Sweeper != nil {
		mux.HandleFunc(model.JobTypeSweep, HandleSweepTask(handlers.Sweeper, logger))
	}

	logger.Info("Worker configured", zap.Int("concurrency", cfg.Concurrency))
	return &Worker{server: server, mux: mux, logger: logger}, nil
}

// Run blocks until SIGTERM/SIGINT.
func (w *Worker) Run() error {
	return w.server.Run(w.mux)
}

// Start runs the server in the background; Shutdown stops it.
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight jobs up to the shutdown timeout.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// HandleTranscribeTask adapts a TranscribeHandler to asynq. Failed results
// are acknowledged: the message already records the failure and, when
// retryable, its next attempt time. Only store outages go back to asynq.
func HandleTranscribeTask(h TranscribeHandler, logger *zap.Logger) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var job model.TranscribeJob
		if err := json.Unmarshal(task.Payload(), &job); err != nil {
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		result := h.HandleTranscribeJob(ctx, job)
		fields := []zap.Field{
			zap.String("message_id", result.MessageID),
			zap.Bool("ok", result.OK),
			zap.Bool("skipped", result.Skipped),
			zap.String("reason", result.Reason),
			zap.String("error", result.Error),
		}
		switch {
		case result.OK:
			logger.Info("Transcribe job finished", fields...)
			return nil
		case result.Error == string(apperrors.CodeStoreUnavailable):
			logger.Warn("Transcribe job hit store outage", fields...)
			return fmt.Errorf("store unavailable: %s", result.ErrorMessage)
		default:
			logger.Warn("Transcribe job failed", fields...)
			return nil
		}
	}
}

// HandleCategorizeTask adapts a CategorizeHandler to asynq.
func HandleCategorizeTask(h CategorizeHandler, logger *zap.Logger) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var job model.CategorizeJob
		if err := json.Unmarshal(task.Payload(), &job); err != nil {
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}
		if err := h.HandleCategorizeJob(ctx, job); err != nil {
			logger.Warn("Categorize job failed", zap.String("message_id", job.MessageID), zap.Error(err))
			if apperrors.IsNotFound(err) {
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return err
		}
		return nil
	}
}

// HandleSweepTask runs one retry sweep.
func HandleSweepTask(s *Sweeper, logger *zap.Logger) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, _ *asynq.Task) error {
		n, err := s.Sweep(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("Retry sweep enqueued messages", zap.Int("count", n))
		}
		return nil
	}
}
