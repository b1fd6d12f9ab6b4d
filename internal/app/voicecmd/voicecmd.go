// Package voicecmd turns transcripts that start with a trigger word into
// automation tasks.
package voicecmd

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/model"
	"voxflow/internal/app/repository"
)

// DefaultTrigger is used when no triggers are configured.
const DefaultTrigger = "codex"

const maxTaskNameRunes = 80

// Config selects trigger words and directory lookups.
type Config struct {
	Triggers         []string
	ProjectPattern   string
	PerformerPattern string
}

// Detection is a recognized command.
type Detection struct {
	Trigger        string
	RawText        string
	NormalizedText string
}

// DetectTrigger matches a trigger word at the very start of text, case
// insensitively. The trigger must be followed by punctuation or whitespace
// and then a non-empty command.
func DetectTrigger(text string, triggers []string) (Detection, bool) {
	raw := strings.TrimSpace(text)
	runes := []rune(raw)
	for _, trigger := range triggers {
		trigger = strings.TrimSpace(trigger)
		// Case folding can change a rune's byte width, so compare by runes.
		n := utf8.RuneCountInString(trigger)
		if trigger == "" || len(runes) <= n {
			continue
		}
		if !strings.EqualFold(string(runes[:n]), trigger) {
			continue
		}
		rest := string(runes[n:])
		next, _ := utf8.DecodeRuneInString(rest)
		if !unicode.IsPunct(next) && !unicode.IsSpace(next) {
			continue
		}
		command := strings.TrimSpace(strings.TrimLeftFunc(rest, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSpace(r)
		}))
		if command == "" {
			continue
		}
		return Detection{
			Trigger:        strings.ToLower(trigger),
			RawText:        raw,
			NormalizedText: command,
		}, true
	}
	return Detection{}, false
}

// Trigger records voice commands on sessions and creates tasks for them.
type Trigger struct {
	sessions  repository.SessionStore
	tasks     repository.TaskStore
	directory repository.Directory
	config    Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewTrigger creates a Trigger. Empty Triggers default to DefaultTrigger.
func NewTrigger(sessions repository.SessionStore, tasks repository.TaskStore, directory repository.Directory, config Config, logger *zap.Logger) *Trigger {
	config.Triggers = lo.Filter(config.Triggers, func(t string, _ int) bool { return strings.TrimSpace(t) != "" })
	if len(config.Triggers) == 0 {
		config.Triggers = []string{DefaultTrigger}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{
		sessions:  sessions,
		tasks:     tasks,
		directory: directory,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle inspects msg's transcript. It is idempotent per (trigger, message):
// the session command list and the task table each get at most one entry.
// The returned error is informational; callers log it and move on.
func (t *Trigger) Handle(ctx context.Context, session *model.Session, msg *model.Message) error {
	detection, ok := DetectTrigger(msg.TranscriptionText, t.config.Triggers)
	if !ok {
		return nil
	}

	logger := t.logger.With(
		zap.String("message_id", msg.ID),
		zap.String("session_id", session.ID),
		zap.String("trigger", detection.Trigger))

	var errs []error
	if err := t.recordOnSession(ctx, session, msg, detection); err != nil {
		logger.Warn("Failed to record voice command on session", zap.Error(err))
		errs = append(errs, err)
	}
	if err := t.createTask(ctx, session, msg, detection, logger); err != nil {
		logger.Warn("Failed to create voice command task", zap.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (t *Trigger) recordOnSession(ctx context.Context, session *model.Session, msg *model.Message, d Detection) error {
	vc := model.VoiceCommand{
		Trigger:        d.Trigger,
		RawText:        d.RawText,
		NormalizedText: d.NormalizedText,
		SessionID:      session.ID,
		MessageID:      msg.ID,
		CreatedAt:      t.now().UTC(),
	}
	added, err := t.sessions.AppendVoiceCommand(ctx, vc)
	if err != nil {
		return err
	}
	if added {
		session.VoiceCommands = append(session.VoiceCommands, vc)
	}
	return nil
}

func (t *Trigger) createTask(ctx context.Context, session *model.Session, msg *model.Message, d Detection, logger *zap.Logger) error {
	if _, err := t.tasks.FindTask(ctx, d.Trigger, msg.ID); err == nil {
		return nil
	} else if !apperrors.IsNotFound(err) {
		return err
	}

	project := t.resolveProject(ctx, session, logger)
	if project == nil {
		logger.Info("No eligible project for voice command, task not created")
		return nil
	}

	task := &model.Task{
		ID:             uuid.NewString(),
		Trigger:        d.Trigger,
		MessageID:      msg.ID,
		SessionID:      session.ID,
		ProjectID:      project.ID,
		Name:           taskName(d.NormalizedText),
		Description:    d.NormalizedText,
		RawText:        d.RawText,
		NormalizedText: d.NormalizedText,
		Source:         model.TaskSourceVoiceCommand,
		CreatedAt:      t.now().UTC(),
	}
	if t.config.PerformerPattern != "" {
		if performer, err := t.directory.PerformerByName(ctx, t.config.PerformerPattern); err == nil {
			task.PerformerID = performer.ID
		} else {
			logger.Debug("Automation performer not found", zap.String("pattern", t.config.PerformerPattern), zap.Error(err))
		}
	}

	if err := t.tasks.CreateTask(ctx, task); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil
		}
		return err
	}
	logger.Info("Created voice command task", zap.String("task_id", task.ID), zap.String("project_id", project.ID))
	return nil
}

// resolveProject prefers the session's own project, then the name pattern.
func (t *Trigger) resolveProject(ctx context.Context, session *model.Session, logger *zap.Logger) *model.Project {
	if session.ProjectID != "" {
		p, err := t.directory.ProjectByID(ctx, session.ProjectID)
		if err == nil {
			return p
		}
		logger.Debug("Session project lookup failed", zap.String("project_id", session.ProjectID), zap.Error(err))
	}
	if t.config.ProjectPattern == "" {
		return nil
	}
	p, err := t.directory.ProjectByName(ctx, t.config.ProjectPattern)
	if err != nil {
		logger.Debug("Project lookup by name failed", zap.String("pattern", t.config.ProjectPattern), zap.Error(err))
		return nil
	}
	return p
}

func taskName(text string) string {
	runes := []rune(text)
	if len(runes) <= maxTaskNameRunes {
		return text
	}
	return strings.TrimSpace(string(runes[:maxTaskNameRunes-1])) + "…"
}
