package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"voxflow/internal/app/model"
)

// NewSession returns a session with a fresh UUID.
func NewSession() *model.Session {
	return &model.Session{ID: uuid.NewString()}
}

// NewMessage returns a message in session with a fresh UUID.
func NewMessage(sessionID string) *model.Message {
	return &model.Message{ID: uuid.NewString(), SessionID: sessionID}
}

// WriteAudioFile creates a file of size bytes under t.TempDir().
func WriteAudioFile(t *testing.T, name string, size int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, make([]byte, size), 0o644); err != nil {
		t.Fatalf("Failed to write audio fixture: %v", err)
	}
	return p
}
