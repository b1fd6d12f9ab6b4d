// Package workflows holds the Temporal workflows for pipeline jobs. Each
// workflow runs a single activity; the orchestrator owns retries.
package workflows

import (
	"encoding/json"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"voxflow/internal/app/model"
)

// Activity names.
const (
	ActivityTranscribe = "TranscribeMessage"
	ActivityCategorize = "CategorizeMessage"
	ActivitySweep      = "SweepRetries"
)

// SweepWorkflowID is the fixed id of the long-running sweep workflow.
const SweepWorkflowID = "voxflow-retry-sweep"

// sweepsPerRun bounds history before the sweep continues as new.
const sweepsPerRun = 100

// activityOptions retries only activity errors, which the activities
// return for store outages.
func activityOptions(timeout, heartbeat time.Duration) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    heartbeat,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
}

// TranscribeWorkflow runs one transcribe job.
func TranscribeWorkflow(ctx workflow.Context, payload json.RawMessage) (model.JobResult, error) {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, activityOptions(30*time.Minute, time.Minute))

	var result model.JobResult
	if err := workflow.ExecuteActivity(ctx, ActivityTranscribe, payload).Get(ctx, &result); err != nil {
		logger.Error("Transcribe activity failed", "error", err)
		return result, err
	}

	logger.Info("Transcribe job finished",
		"messageId", result.MessageID,
		"ok", result.OK,
		"skipped", result.Skipped,
		"error", result.Error)
	return result, nil
}

// CategorizeWorkflow runs one categorize job.
func CategorizeWorkflow(ctx workflow.Context, payload json.RawMessage) error {
	ctx = workflow.WithActivityOptions(ctx, activityOptions(5*time.Minute, 0))
	return workflow.ExecuteActivity(ctx, ActivityCategorize, payload).Get(ctx, nil)
}

// SweepWorkflow re-enqueues due retries every interval, forever. It
// continues as new after sweepsPerRun sweeps.
func SweepWorkflow(ctx workflow.Context, interval time.Duration) error {
	logger := workflow.GetLogger(ctx)
	if interval <= 0 {
		interval = time.Minute
	}
	actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: interval,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	for i := 0; i < sweepsPerRun; i++ {
		var enqueued int
		if err := workflow.ExecuteActivity(actx, ActivitySweep).Get(actx, &enqueued); err != nil {
			logger.Warn("Retry sweep failed", "error", err)
		} else if enqueued > 0 {
			logger.Info("Retry sweep enqueued messages", "count", enqueued)
		}
		if err := workflow.Sleep(ctx, interval); err != nil {
			return err
		}
	}
	return workflow.NewContinueAsNewError(ctx, model.JobTypeSweep, interval)
}

// Register binds the workflows to their job-type names on r.
func Register(r interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
}) {
	r.RegisterWorkflowWithOptions(TranscribeWorkflow, workflow.RegisterOptions{Name: model.JobTypeTranscribe})
	r.RegisterWorkflowWithOptions(CategorizeWorkflow, workflow.RegisterOptions{Name: model.JobTypeCategorize})
	r.RegisterWorkflowWithOptions(SweepWorkflow, workflow.RegisterOptions{Name: model.JobTypeSweep})
}
