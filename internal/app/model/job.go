package model

import "time"

// Job types and queue names.
const (
	JobTypeTranscribe = "transcribe:message"
	JobTypeCategorize = "categorize:message"
	JobTypeSweep      = "transcribe:sweep"

	QueueTranscribe = "voice"
	QueueCategorize = "categorization"
)

// TranscribeJob identifies one unit of transcription work.
type TranscribeJob struct {
	MessageID string `json:"message_id"`
	SessionID string `json:"session_id,omitempty"`
	Force     bool   `json:"force,omitempty"`
}

// DedupKey is the queue deduplication key for this job.
func (j TranscribeJob) DedupKey() string {
	return j.MessageID + "-transcribe"
}

// CategorizeJob is the payload of the follow-up categorization job.
type CategorizeJob struct {
	MessageID string `json:"message_id"`
	SessionID string `json:"session_id"`
}

// DedupKey is the queue deduplication key for this job.
func (j CategorizeJob) DedupKey() string {
	return j.MessageID + "-categorize"
}

// Skip and failure reasons that are not error codes.
const (
	ReasonAlreadyTranscribed = "already_transcribed"
	ReasonRetryNotDue        = "retry_not_due"
)

// JobResult is what the orchestrator returns for every exit path.
type JobResult struct {
	OK            bool       `json:"ok"`
	MessageID     string     `json:"message_id"`
	SessionID     string     `json:"session_id,omitempty"`
	Skipped       bool       `json:"skipped,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Error         string     `json:"error,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	Method        string     `json:"method,omitempty"`
	Retryable     bool       `json:"retryable,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}
