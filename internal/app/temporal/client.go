// Package temporal is the alternative queue backend: jobs become Temporal
// workflows whose id is the job's dedup key.
package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"voxflow/internal/app/queue"
)

// Config holds Temporal client configuration.
type Config struct {
	HostPort  string
	Namespace string
	TaskQueue string
}

// DefaultConfig returns a local development configuration.
func DefaultConfig() Config {
	return Config{
		HostPort:  client.DefaultHostPort,
		Namespace: client.DefaultNamespace,
		TaskQueue: "voxflow",
	}
}

// Dial creates a Temporal client logging through logger.
func Dial(config Config, logger *zap.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  config.HostPort,
		Namespace: config.Namespace,
		Logger:    NewLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Temporal client: %w", err)
	}
	return c, nil
}

// Enqueuer starts one workflow per job. The workflow type is the job type
// and the workflow id is the dedup key, so a job already running is not
// started twice.
type Enqueuer struct {
	client    client.Client
	taskQueue string
}

var _ queue.Enqueuer = (*Enqueuer)(nil)

// NewEnqueuer creates an Enqueuer on taskQueue.
func NewEnqueuer(c client.Client, taskQueue string) *Enqueuer {
	return &Enqueuer{client: c, taskQueue: taskQueue}
}

// Enqueue implements queue.Enqueuer. queueName is ignored; every job runs
// on the configured task queue.
func (e *Enqueuer) Enqueue(ctx context.Context, _ string, jobType string, payload []byte, dedupKey string) error {
	options := client.StartWorkflowOptions{
		ID:        dedupKey,
		TaskQueue: e.taskQueue,
	}
	_, err := e.client.ExecuteWorkflow(ctx, options, jobType, json.RawMessage(payload))
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to start workflow %s: %w", jobType, err)
	}
	return nil
}
