// Package worker runs the Temporal worker for pipeline jobs.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"voxflow/internal/app/model"
	"voxflow/internal/app/temporal/activities"
	"voxflow/internal/app/temporal/workflows"
)

// Options sizes the worker.
type Options struct {
	TaskQueue     string
	Concurrency   int
	SweepInterval time.Duration
	Identity      string
}

// New creates a worker with every workflow and the non-nil activities
// registered.
func New(c client.Client, opts Options, acts *activities.Activities) sdkworker.Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	w := sdkworker.New(c, opts.TaskQueue, sdkworker.Options{
		Identity:                               opts.Identity,
		MaxConcurrentActivityExecutionSize:     opts.Concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: opts.Concurrency,
	})
	workflows.Register(w)
	acts.Register(w)
	return w
}

// StartSweep starts the retry sweep workflow unless it is already running.
func StartSweep(ctx context.Context, c client.Client, opts Options, logger *zap.Logger) error {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflows.SweepWorkflowID,
		TaskQueue: opts.TaskQueue,
	}, model.JobTypeSweep, opts.SweepInterval)
	if err != nil {
		return fmt.Errorf("failed to start retry sweep: %w", err)
	}
	logger.Info("Retry sweep workflow running",
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
		zap.Duration("interval", opts.SweepInterval))
	return nil
}

// Run starts the sweep and blocks until an interrupt signal.
func Run(ctx context.Context, c client.Client, opts Options, acts *activities.Activities, logger *zap.Logger) error {
	w := New(c, opts, acts)
	if acts.Sweeper != nil {
		if err := StartSweep(ctx, c, opts, logger); err != nil {
			return err
		}
	}
	logger.Info("Starting Temporal worker",
		zap.String("task_queue", opts.TaskQueue),
		zap.Int("concurrency", opts.Concurrency))
	return w.Run(sdkworker.InterruptCh())
}
