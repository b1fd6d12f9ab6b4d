package model

import "time"

// TaskSourceVoiceCommand marks tasks created from transcripts.
const TaskSourceVoiceCommand = "voice_command"

// Task is an automation task created from a voice command.
type Task struct {
	ID             string    `json:"id"`
	Trigger        string    `json:"trigger"`
	MessageID      string    `json:"message_id"`
	SessionID      string    `json:"session_id"`
	ProjectID      string    `json:"project_id"`
	PerformerID    string    `json:"performer_id,omitempty"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	RawText        string    `json:"raw_text"`
	NormalizedText string    `json:"normalized_text"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}

// Project is a directory entry tasks are filed under.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Performer is a directory entry tasks can be assigned to.
type Performer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
