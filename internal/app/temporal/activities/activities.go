// Package activities adapts the pipeline handlers to Temporal activities.
package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/model"
	"voxflow/internal/app/queue"
	"voxflow/internal/app/temporal/workflows"
)

const heartbeatInterval = 10 * time.Second

// Activities runs pipeline jobs inside Temporal. Nil handlers are not
// registered.
type Activities struct {
	Transcriber queue.TranscribeHandler
	Categorizer queue.CategorizeHandler
	Sweeper     *queue.Sweeper
}

// TranscribeMessage runs the orchestrator with heartbeats. Failed results
// are returned, not raised: the message records them. Store outages are
// raised so Temporal retries the activity.
func (a *Activities) TranscribeMessage(ctx context.Context, payload json.RawMessage) (model.JobResult, error) {
	logger := activity.GetLogger(ctx)

	var job model.TranscribeJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return model.JobResult{}, temporal.NewNonRetryableApplicationError("invalid payload", "invalid_payload", err)
	}
	activity.RecordHeartbeat(ctx, job.MessageID)

	done := make(chan model.JobResult, 1)
	go func() {
		done <- a.Transcriber.HandleTranscribeJob(ctx, job)
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case result := <-done:
			if result.Error == string(apperrors.CodeStoreUnavailable) {
				return result, fmt.Errorf("store unavailable: %s", result.ErrorMessage)
			}
			logger.Info("Transcribe job finished", "messageId", result.MessageID, "ok", result.OK, "error", result.Error)
			return result, nil
		case <-ticker.C:
			activity.RecordHeartbeat(ctx, job.MessageID)
		case <-ctx.Done():
			return model.JobResult{MessageID: job.MessageID}, ctx.Err()
		}
	}
}

// CategorizeMessage runs one categorize job.
func (a *Activities) CategorizeMessage(ctx context.Context, payload json.RawMessage) error {
	var job model.CategorizeJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return temporal.NewNonRetryableApplicationError("invalid payload", "invalid_payload", err)
	}
	err := a.Categorizer.HandleCategorizeJob(ctx, job)
	if apperrors.IsNotFound(err) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "not_found", err)
	}
	return err
}

// SweepRetries enqueues every message whose retry is due.
func (a *Activities) SweepRetries(ctx context.Context) (int, error) {
	return a.Sweeper.Sweep(ctx)
}

// Register binds the activities to the names the workflows call.
func (a *Activities) Register(r interface {
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}) {
	if a.Transcriber != nil {
		r.RegisterActivityWithOptions(a.TranscribeMessage, activity.RegisterOptions{Name: workflows.ActivityTranscribe})
	}
	if a.Categorizer != nil {
		r.RegisterActivityWithOptions(a.CategorizeMessage, activity.RegisterOptions{Name: workflows.ActivityCategorize})
	}
	if a.Sweeper != nil {
		r.RegisterActivityWithOptions(a.SweepRetries, activity.RegisterOptions{Name: workflows.ActivitySweep})
	}
}
