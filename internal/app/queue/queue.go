// Package queue runs pipeline jobs on asynq: enqueueing with dedup keys, the
// worker server and the periodic retry sweep.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"voxflow/internal/app/model"
)

// Enqueuer submits jobs. A job whose dedupKey is held by a pending or
// running job is silently dropped.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName, jobType string, payload []byte, dedupKey string) error
}

// taskClient is the subset of *asynq.Client used here.
type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// taskInspector is the subset of *asynq.Inspector used here.
type taskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
	Close() error
}

// AsynqEnqueuer enqueues onto Redis through asynq.
type AsynqEnqueuer struct {
	client    taskClient
	inspector taskInspector
	timeout   time.Duration
}

// NewAsynqEnqueuer connects to the asynq Redis instance.
func NewAsynqEnqueuer(redisURL string, taskTimeout time.Duration) (*AsynqEnqueuer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &AsynqEnqueuer{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		timeout:   taskTimeout,
	}, nil
}

// Enqueue implements Enqueuer. The dedup key becomes the asynq task id.
// asynq keeps an id reserved while its task sits archived or retained as
// completed; such a task is deleted and the job enqueued again.
func (e *AsynqEnqueuer) Enqueue(ctx context.Context, queueName, jobType string, payload []byte, dedupKey string) error {
	opts := []asynq.Option{
		asynq.Queue(queueName),
		// Only infrastructure errors reach asynq's retry; job failures are
		// recorded on the message and rescheduled by the sweeper.
		asynq.MaxRetry(3),
	}
	if dedupKey != "" {
		opts = append(opts, asynq.TaskID(dedupKey))
	}
	if e.timeout > 0 {
		opts = append(opts, asynq.Timeout(e.timeout))
	}

	task := asynq.NewTask(jobType, payload)
	_, err := e.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) && e.inspector != nil {
		released, rerr := e.releaseFinished(queueName, dedupKey)
		if rerr != nil {
			return rerr
		}
		if !released {
			return nil
		}
		_, err = e.client.EnqueueContext(ctx, task, opts...)
	}
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", jobType, err)
	}
	return nil
}

// releaseFinished deletes the archived or completed task holding id. It
// reports false when the holder is still pending, scheduled, retrying or
// active.
func (e *AsynqEnqueuer) releaseFinished(queueName, id string) (bool, error) {
	info, err := e.inspector.GetTaskInfo(queueName, id)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to inspect task %s: %w", id, err)
	}
	switch info.State {
	case asynq.TaskStateArchived, asynq.TaskStateCompleted:
	default:
		return false, nil
	}
	if err := e.inspector.DeleteTask(queueName, id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, fmt.Errorf("failed to delete finished task %s: %w", id, err)
	}
	return true, nil
}

// Close releases the Redis connections.
func (e *AsynqEnqueuer) Close() error {
	err := e.client.Close()
	if e.inspector != nil {
		err = errors.Join(err, e.inspector.Close())
	}
	return err
}

// EnqueueTranscribe submits a transcribe job under its dedup key.
func EnqueueTranscribe(ctx context.Context, enq Enqueuer, job model.TranscribeJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return enq.Enqueue(ctx, model.QueueTranscribe, model.JobTypeTranscribe, payload, job.DedupKey())
}

// EnqueueCategorize submits a categorize job under its dedup key.
func EnqueueCategorize(ctx context.Context, enq Enqueuer, job model.CategorizeJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return enq.Enqueue(ctx, model.QueueCategorize, model.JobTypeCategorize, payload, job.DedupKey())
}
