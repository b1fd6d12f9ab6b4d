package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/model"
	"voxflow/internal/app/repository"
)

// MemoryStore is an in-memory repository.Store. Records are deep-copied
// on the way in and out so tests observe persisted state only.
type MemoryStore struct {
	mu sync.RWMutex

	messages   map[string]*model.Message
	sessions   map[string]*model.Session
	tasks      []*model.Task
	projects   []*model.Project
	performers []*model.Performer

	// ErrorMap injects an error for a method name, e.g. "UpdateSession".
	ErrorMap map[string]error
	// Calls counts invocations per method name.
	Calls map[string]int
}

var _ repository.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]*model.Message),
		sessions: make(map[string]*model.Session),
		ErrorMap: make(map[string]error),
		Calls:    make(map[string]int),
	}
}

func (s *MemoryStore) track(method string) error {
	s.Calls[method]++
	return s.ErrorMap[method]
}

// CallCount returns how often method was invoked.
func (s *MemoryStore) CallCount(method string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Calls[method]
}

// SetError injects err for method; nil clears it.
func (s *MemoryStore) SetError(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.ErrorMap, method)
		return
	}
	s.ErrorMap[method] = err
}

func cloneMessage(m *model.Message) *model.Message {
	b, _ := json.Marshal(m)
	var out model.Message
	_ = json.Unmarshal(b, &out)
	return &out
}

func cloneSession(in *model.Session) *model.Session {
	b, _ := json.Marshal(in)
	var out model.Session
	_ = json.Unmarshal(b, &out)
	return &out
}

// GetMessage implements repository.MessageStore.
func (s *MemoryStore) GetMessage(_ context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("GetMessage"); err != nil {
		return nil, err
	}
	m, ok := s.messages[id]
	if !ok {
		return nil, apperrors.NotFound("message", id)
	}
	return cloneMessage(m), nil
}

// CreateMessage implements repository.MessageStore.
func (s *MemoryStore) CreateMessage(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("CreateMessage"); err != nil {
		return err
	}
	if _, ok := s.messages[msg.ID]; ok {
		return apperrors.Wrapf(repository.ErrDuplicate, "message %s", msg.ID)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.ID] = cloneMessage(msg)
	return nil
}

// UpdateMessage implements repository.MessageStore.
func (s *MemoryStore) UpdateMessage(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("UpdateMessage"); err != nil {
		return err
	}
	if _, ok := s.messages[msg.ID]; !ok {
		return apperrors.NotFound("message", msg.ID)
	}
	msg.UpdatedAt = time.Now().UTC()
	s.messages[msg.ID] = cloneMessage(msg)
	return nil
}

// FindTranscribedByHash implements repository.MessageStore.
func (s *MemoryStore) FindTranscribedByHash(_ context.Context, sessionID, excludeID, hash string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("FindTranscribedByHash"); err != nil {
		return nil, err
	}
	var best *model.Message
	for _, m := range s.messages {
		if m.SessionID != sessionID || m.ID == excludeID || !m.IsTranscribed || !hasIdentity(m, hash) {
			continue
		}
		if best == nil || (m.TranscribedAt != nil && (best.TranscribedAt == nil || m.TranscribedAt.After(*best.TranscribedAt))) {
			best = m
		}
	}
	if best == nil {
		return nil, apperrors.NotFound("message with hash", hash)
	}
	return cloneMessage(best), nil
}

// ListPendingRetries implements repository.MessageStore.
func (s *MemoryStore) ListPendingRetries(_ context.Context, now time.Time, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("ListPendingRetries"); err != nil {
		return nil, err
	}
	var out []model.Message
	for _, m := range s.sortedMessages() {
		if !m.ToTranscribe || m.IsTranscribed {
			continue
		}
		if m.TranscriptionNextAttemptAt != nil && m.TranscriptionNextAttemptAt.After(now) {
			continue
		}
		out = append(out, *cloneMessage(m))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListSessionMessages implements repository.MessageStore.
func (s *MemoryStore) ListSessionMessages(_ context.Context, sessionID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("ListSessionMessages"); err != nil {
		return nil, err
	}
	var out []model.Message
	for _, m := range s.sortedMessages() {
		if m.SessionID == sessionID {
			out = append(out, *cloneMessage(m))
		}
	}
	return out, nil
}

func (s *MemoryStore) sortedMessages() []*model.Message {
	all := make([]*model.Message, 0, len(s.messages))
	for _, m := range s.messages {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return all
}

// GetSession implements repository.SessionStore.
func (s *MemoryStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("GetSession"); err != nil {
		return nil, err
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session", id)
	}
	return cloneSession(sess), nil
}

// CreateSession implements repository.SessionStore.
func (s *MemoryStore) CreateSession(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("CreateSession"); err != nil {
		return err
	}
	if _, ok := s.sessions[session.ID]; ok {
		return apperrors.Wrapf(repository.ErrDuplicate, "session %s", session.ID)
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

// UpdateSession implements repository.SessionStore.
func (s *MemoryStore) UpdateSession(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("UpdateSession"); err != nil {
		return err
	}
	existing, ok := s.sessions[session.ID]
	if !ok {
		return apperrors.NotFound("session", session.ID)
	}
	updated := cloneSession(session)
	updated.VoiceCommands = existing.VoiceCommands
	s.sessions[session.ID] = updated
	return nil
}

// SetSessionError implements repository.SessionStore.
func (s *MemoryStore) SetSessionError(_ context.Context, id string, e model.SessionError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("SetSessionError"); err != nil {
		return err
	}
	sess, ok := s.sessions[id]
	if !ok {
		return apperrors.NotFound("session", id)
	}
	sess.SetError(e)
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// ClearSessionError implements repository.SessionStore.
func (s *MemoryStore) ClearSessionError(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("ClearSessionError"); err != nil {
		return err
	}
	if sess, ok := s.sessions[id]; ok && sess.HasError() {
		sess.ClearError()
		sess.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// AppendVoiceCommand implements repository.SessionStore.
func (s *MemoryStore) AppendVoiceCommand(_ context.Context, vc model.VoiceCommand) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("AppendVoiceCommand"); err != nil {
		return false, err
	}
	sess, ok := s.sessions[vc.SessionID]
	if !ok {
		return false, apperrors.NotFound("session", vc.SessionID)
	}
	for _, existing := range sess.VoiceCommands {
		if existing.Trigger == vc.Trigger && existing.MessageID == vc.MessageID {
			return false, nil
		}
	}
	sess.VoiceCommands = append(sess.VoiceCommands, vc)
	return true, nil
}

// FindTask implements repository.TaskStore.
func (s *MemoryStore) FindTask(_ context.Context, trigger, messageID string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("FindTask"); err != nil {
		return nil, err
	}
	for _, t := range s.tasks {
		if t.Trigger == trigger && t.MessageID == messageID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("task", trigger+"/"+messageID)
}

// CreateTask implements repository.TaskStore.
func (s *MemoryStore) CreateTask(_ context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("CreateTask"); err != nil {
		return err
	}
	for _, t := range s.tasks {
		if t.Trigger == task.Trigger && t.MessageID == task.MessageID {
			return apperrors.Wrapf(repository.ErrDuplicate, "task %s/%s", task.Trigger, task.MessageID)
		}
	}
	cp := *task
	s.tasks = append(s.tasks, &cp)
	return nil
}

// Tasks returns a copy of every stored task.
func (s *MemoryStore) Tasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}

// AddProject seeds the directory.
func (s *MemoryStore) AddProject(p model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = append(s.projects, &p)
}

// AddPerformer seeds the directory.
func (s *MemoryStore) AddPerformer(p model.Performer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.performers = append(s.performers, &p)
}

// ProjectByID implements repository.Directory.
func (s *MemoryStore) ProjectByID(_ context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("ProjectByID"); err != nil {
		return nil, err
	}
	for _, p := range s.projects {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("project", id)
}

// ProjectByName implements repository.Directory.
func (s *MemoryStore) ProjectByName(_ context.Context, pattern string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("ProjectByName"); err != nil {
		return nil, err
	}
	for _, p := range s.projects {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(pattern)) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("project", pattern)
}

// PerformerByName implements repository.Directory.
func (s *MemoryStore) PerformerByName(_ context.Context, pattern string) (*model.Performer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track("PerformerByName"); err != nil {
		return nil, err
	}
	for _, p := range s.performers {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(pattern)) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("performer", pattern)
}

// Migrate is a no-op.
func (s *MemoryStore) Migrate(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func hasIdentity(m *model.Message, hash string) bool {
	return hash != "" && (m.FileHash == hash || m.FileUniqueID == hash || m.SHA256 == hash)
}
