package repository

import (
	"context"
	"time"

	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/model"
)

// ErrDuplicate is returned when a unique constraint rejects an insert.
var ErrDuplicate = apperrors.New("duplicate record")

// MessageStore reads and writes messages. Writes are single-row.
type MessageStore interface {
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	CreateMessage(ctx context.Context, msg *model.Message) error
	UpdateMessage(ctx context.Context, msg *model.Message) error
	// FindTranscribedByHash returns the most recently transcribed message in
	// the session with hash in any identity field, excluding excludeID.
	FindTranscribedByHash(ctx context.Context, sessionID, excludeID, hash string) (*model.Message, error)
	// ListPendingRetries returns messages waiting for a retry that is due at now.
	ListPendingRetries(ctx context.Context, now time.Time, limit int) ([]model.Message, error)
	ListSessionMessages(ctx context.Context, sessionID string) ([]model.Message, error)
}

// SessionStore reads and writes sessions. Jobs for different messages of
// one session run concurrently, so pipeline writes touch only the columns
// they own.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
	CreateSession(ctx context.Context, session *model.Session) error
	UpdateSession(ctx context.Context, session *model.Session) error
	SetSessionError(ctx context.Context, id string, e model.SessionError) error
	ClearSessionError(ctx context.Context, id string) error
	// AppendVoiceCommand adds vc unless an entry for the same session,
	// trigger and message exists; it reports whether a row was added.
	AppendVoiceCommand(ctx context.Context, vc model.VoiceCommand) (bool, error)
}

// TaskStore persists automation tasks. At most one task exists per
// (trigger, message id).
type TaskStore interface {
	FindTask(ctx context.Context, trigger, messageID string) (*model.Task, error)
	CreateTask(ctx context.Context, task *model.Task) error
}

// Directory looks up projects and performers.
type Directory interface {
	ProjectByID(ctx context.Context, id string) (*model.Project, error)
	// ProjectByName does a case-insensitive substring match.
	ProjectByName(ctx context.Context, pattern string) (*model.Project, error)
	PerformerByName(ctx context.Context, pattern string) (*model.Performer, error)
}

// Store is everything the pipeline persists.
type Store interface {
	MessageStore
	SessionStore
	TaskStore
	Directory
	Migrate(ctx context.Context) error
	Close() error
}
