package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"voxflow/internal/app/model"
)

// PendingLister finds messages whose retry is due.
type PendingLister interface {
	ListPendingRetries(ctx context.Context, now time.Time, limit int) ([]model.Message, error)
}

// Sweeper re-enqueues messages waiting on a quota/timeout backoff.
type Sweeper struct {
	messages PendingLister
	enqueuer Enqueuer
	batch    int
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper creates a Sweeper enqueuing at most batch messages per run.
func NewSweeper(messages PendingLister, enqueuer Enqueuer, batch int, logger *zap.Logger) *Sweeper {
	if batch <= 0 {
		batch = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{messages: messages, enqueuer: enqueuer, batch: batch, logger: logger, now: time.Now}
}

// Sweep enqueues every due message. Dedup keys make overlapping sweeps safe.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	due, err := s.messages.ListPendingRetries(ctx, s.now(), s.batch)
	if err != nil {
		return 0, fmt.Errorf("list pending retries: %w", err)
	}

	enqueued := 0
	for _, msg := range due {
		job := model.TranscribeJob{MessageID: msg.ID, SessionID: msg.SessionID}
		if err := EnqueueTranscribe(ctx, s.enqueuer, job); err != nil {
			s.logger.Warn("Failed to enqueue retry", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// StartScheduler registers the periodic sweep and starts the asynq
// scheduler. The returned func stops it.
func StartScheduler(redisURL string, interval time.Duration, logger *zap.Logger) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if interval <= 0 {
		interval = time.Minute
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		LogLevel: asynq.InfoLevel,
		Logger:   newAsynqLogger(logger),
	})

	task := asynq.NewTask(model.JobTypeSweep, nil,
		asynq.Queue(model.QueueTranscribe),
		asynq.MaxRetry(0),
		asynq.Timeout(interval),
		asynq.Unique(interval),
	)
	entryID, err := scheduler.Register(SweepSpec(interval), task)
	if err != nil {
		return nil, fmt.Errorf("failed to register retry sweep: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info("Scheduler started", zap.Duration("interval", interval), zap.String("entry_id", entryID))
	return scheduler.Shutdown, nil
}

// SweepSpec renders the cron spec for interval.
func SweepSpec(interval time.Duration) string {
	return "@every " + interval.String()
}
