package model

import (
	"encoding/json"
	"time"
)

// Transcription methods recorded on a message.
const (
	MethodDirect       = "direct"
	MethodSegmented    = "segmented"
	MethodReuseByHash  = "reuse_by_file_hash"
	MethodTextFallback = "text_fallback"
)

// Retry reasons recorded on a message.
const (
	RetryReasonInsufficientQuota = "insufficient_quota"
	RetryReasonProviderTimeout   = "provider_timeout"
)

// Message is one recorded utterance belonging to a Session.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`

	// Audio source
	FilePath   string  `json:"file_path,omitempty"`
	FileID     string  `json:"file_id,omitempty"`
	SourceType string  `json:"source_type,omitempty"`
	Text       string  `json:"text,omitempty"`
	MimeType   string  `json:"mime_type,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	FileSize   int64   `json:"file_size,omitempty"`

	// Content identity, first non-empty wins
	FileHash     string `json:"file_hash,omitempty"`
	FileUniqueID string `json:"file_unique_id,omitempty"`
	SHA256       string `json:"sha256,omitempty"`

	Transport TransportInfo `json:"transport"`

	// Transcription state
	IsTranscribed              bool                  `json:"is_transcribed"`
	ToTranscribe               bool                  `json:"to_transcribe"`
	TranscribeAttempts         int                   `json:"transcribe_attempts"`
	TranscriptionMethod        string                `json:"transcription_method,omitempty"`
	TranscriptionText          string                `json:"transcription_text,omitempty"`
	Transcription              *StructuredTranscript `json:"transcription,omitempty"`
	TranscriptionChunks        []Chunk               `json:"transcription_chunks,omitempty"`
	TranscriptionRaw           json.RawMessage       `json:"transcription_raw,omitempty"`
	TranscriptionError         string                `json:"transcription_error,omitempty"`
	ErrorMessage               string                `json:"error_message,omitempty"`
	ErrorOccurredAt            *time.Time            `json:"error_occurred_at,omitempty"`
	TranscriptionRetryReason   string                `json:"transcription_retry_reason,omitempty"`
	TranscriptionNextAttemptAt *time.Time            `json:"transcription_next_attempt_at,omitempty"`
	TranscribedAt              *time.Time            `json:"transcribed_at,omitempty"`

	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransportInfo records what the audio transport did for a message.
type TransportInfo struct {
	Size         int64      `json:"size,omitempty"`
	MimeType     string     `json:"mime_type,omitempty"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// StructuredTranscript is the timeline form of a transcript.
type StructuredTranscript struct {
	Segments []Segment `json:"segments"`
	Duration float64   `json:"duration"`
	Language string    `json:"language,omitempty"`
}

// Segment is one timeline-ordered span, offsets in seconds from message start.
type Segment struct {
	ID        string  `json:"id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Speaker   string  `json:"speaker,omitempty"`
	Text      string  `json:"text"`
	IsDeleted bool    `json:"is_deleted,omitempty"`
}

// Chunk is one transcribed sub-interval produced by segmentation.
type Chunk struct {
	Index     int     `json:"index"`
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
	Duration  float64 `json:"duration"`
}

// ClearTranscriptionError resets every error and retry bookkeeping field.
func (m *Message) ClearTranscriptionError() {
	m.TranscriptionError = ""
	m.ErrorMessage = ""
	m.ErrorOccurredAt = nil
	m.TranscriptionRetryReason = ""
	m.TranscriptionNextAttemptAt = nil
}
