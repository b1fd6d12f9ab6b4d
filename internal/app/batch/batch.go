// Package batch runs transcribe jobs inline, outside the queue, for the CLI.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"voxflow/internal/app/model"
)

// JobHandler runs one transcribe job.
type JobHandler interface {
	HandleTranscribeJob(ctx context.Context, job model.TranscribeJob) model.JobResult
}

// SessionLister lists a session's messages.
type SessionLister interface {
	ListSessionMessages(ctx context.Context, sessionID string) ([]model.Message, error)
}

// Summary counts results by outcome. Results keeps input order.
type Summary struct {
	Succeeded int
	Skipped   int
	Retrying  int
	Failed    int
	Results   []model.JobResult
}

func (s Summary) String() string {
	return fmt.Sprintf("%d succeeded, %d skipped, %d retrying, %d failed",
		s.Succeeded, s.Skipped, s.Retrying, s.Failed)
}

// Runner fans jobs out over a bounded number of goroutines.
type Runner struct {
	handler  JobHandler
	progress *ProgressManager
	parallel int
	logger   *zap.Logger
}

func NewRunner(handler JobHandler, progress ProgressConfig, parallel int, logger *zap.Logger) *Runner {
	if parallel <= 0 {
		parallel = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		handler:  handler,
		progress: NewProgressManager(progress),
		parallel: parallel,
		logger:   logger,
	}
}

// Run processes jobs and waits for all of them. Cancelling ctx stops
// starting new jobs; jobs never started are left out of the summary.
func (r *Runner) Run(ctx context.Context, jobs []model.TranscribeJob, description string) Summary {
	results := make([]*model.JobResult, len(jobs))
	bar := r.progress.CreateBar(len(jobs), description)

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.parallel)
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, job model.TranscribeJob) {
			defer func() {
				<-sem
				wg.Done()
			}()
			start := time.Now()
			res := r.handler.HandleTranscribeJob(ctx, job)
			results[i] = &res
			bar.Increment(time.Since(start))
			if !res.OK && !res.Skipped {
				r.logger.Warn("Message not transcribed",
					zap.String("message_id", job.MessageID),
					zap.String("error", res.Error),
					zap.Bool("retryable", res.Retryable))
			}
		}(i, job)
	}
	wg.Wait()
	bar.Complete()
	r.progress.Wait()

	var summary Summary
	for _, res := range results {
		if res == nil {
			continue
		}
		switch {
		case res.Skipped:
			summary.Skipped++
		case res.OK:
			summary.Succeeded++
		case res.Retryable:
			summary.Retrying++
		default:
			summary.Failed++
		}
		summary.Results = append(summary.Results, *res)
	}
	return summary
}

// SessionJobs builds jobs for a session's messages still waiting for a
// transcript, or for every message when force is set.
func SessionJobs(ctx context.Context, store SessionLister, sessionID string, force bool) ([]model.TranscribeJob, error) {
	messages, err := store.ListSessionMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	jobs := make([]model.TranscribeJob, 0, len(messages))
	for _, msg := range messages {
		if msg.IsTranscribed && !force {
			continue
		}
		jobs = append(jobs, model.TranscribeJob{MessageID: msg.ID, SessionID: msg.SessionID, Force: force})
	}
	return jobs, nil
}
