package activities

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"voxflow/internal/app/model"
)

type echoTranscriber struct{}

func (echoTranscriber) HandleTranscribeJob(_ context.Context, job model.TranscribeJob) model.JobResult {
	return model.JobResult{OK: true, MessageID: job.MessageID, Method: model.MethodTextFallback}
}

func TestTranscribeMessageActivity(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	acts := &Activities{Transcriber: echoTranscriber{}}
	env.RegisterActivity(acts.TranscribeMessage)

	payload, err := json.Marshal(model.TranscribeJob{MessageID: "m1"})
	require.NoError(t, err)

	value, err := env.ExecuteActivity(acts.TranscribeMessage, json.RawMessage(payload))
	require.NoError(t, err)

	var result model.JobResult
	require.NoError(t, value.Get(&result))
	assert.True(t, result.OK)
	assert.Equal(t, "m1", result.MessageID)
}

func TestTranscribeMessageActivityBadPayload(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	acts := &Activities{Transcriber: echoTranscriber{}}
	env.RegisterActivity(acts.TranscribeMessage)

	_, err := env.ExecuteActivity(acts.TranscribeMessage, json.RawMessage(`"not an object"`))
	assert.Error(t, err)
}
