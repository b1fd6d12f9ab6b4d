package model

import "time"

// ProcessorCategorization is the processor name gating the categorization job.
const ProcessorCategorization = "categorization"

// Session is a container of related messages.
type Session struct {
	ID              string         `json:"id"`
	ProjectID       string         `json:"project_id,omitempty"`
	Processors      []string       `json:"processors,omitempty"`
	IsCorrupted     bool           `json:"is_corrupted"`
	ErrorCode       string         `json:"error_code,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	ErrorOccurredAt *time.Time     `json:"error_occurred_at,omitempty"`
	ErrorMessageID  string         `json:"error_message_id,omitempty"`
	VoiceCommands   []VoiceCommand `json:"voice_commands,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ProcessorEnabled reports whether a processor runs for this session. An
// empty allow-list enables everything.
func (s *Session) ProcessorEnabled(name string) bool {
	if len(s.Processors) == 0 {
		return true
	}
	for _, p := range s.Processors {
		if p == name {
			return true
		}
	}
	return false
}

// ClearError drops the corruption flag and the mirrored error.
func (s *Session) ClearError() {
	s.IsCorrupted = false
	s.ErrorCode = ""
	s.ErrorMessage = ""
	s.ErrorOccurredAt = nil
	s.ErrorMessageID = ""
}

// HasError reports whether any error state is recorded.
func (s *Session) HasError() bool {
	return s.IsCorrupted || s.ErrorCode != "" || s.ErrorMessage != ""
}

// VoiceCommand is a detected trigger recorded on the session.
type VoiceCommand struct {
	Trigger        string    `json:"trigger"`
	RawText        string    `json:"raw_text"`
	NormalizedText string    `json:"normalized_text"`
	SessionID      string    `json:"session_id"`
	MessageID      string    `json:"message_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// SessionError is a job failure mirrored onto its session.
type SessionError struct {
	Corrupted  bool
	Code       string
	Message    string
	OccurredAt time.Time
	MessageID  string
}

// SetError mirrors e onto the session.
func (s *Session) SetError(e SessionError) {
	occurred := e.OccurredAt
	s.IsCorrupted = e.Corrupted
	s.ErrorCode = e.Code
	s.ErrorMessage = e.Message
	s.ErrorOccurredAt = &occurred
	s.ErrorMessageID = e.MessageID
}
