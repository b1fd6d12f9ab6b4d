package repository

import (
	"context"
	"fmt"
	"time"

	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/model"
)

// FindTask returns the task created for (trigger, messageID).
func (c *CommonDB) FindTask(ctx context.Context, trigger, messageID string) (*model.Task, error) {
	query := fmt.Sprintf(
		`SELECT id, trigger_word, message_id, session_id, project_id, performer_id,
		        name, description, raw_text, normalized_text, source, created_at
		 FROM tasks WHERE trigger_word = %s AND message_id = %s`,
		c.placeholders(1), c.placeholders(2),
	)
	var t model.Task
	err := c.db.QueryRowContext(ctx, query, trigger, messageID).Scan(
		&t.ID, &t.Trigger, &t.MessageID, &t.SessionID, &t.ProjectID, &t.PerformerID,
		&t.Name, &t.Description, &t.RawText, &t.NormalizedText, &t.Source, &t.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err, "task", trigger+"/"+messageID)
	}
	return &t, nil
}

// CreateTask inserts a task. A second task for the same (trigger, message)
// fails with ErrDuplicate.
func (c *CommonDB) CreateTask(ctx context.Context, t *model.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(
		`INSERT INTO tasks (id, trigger_word, message_id, session_id, project_id, performer_id,
		                    name, description, raw_text, normalized_text, source, created_at)
		 VALUES (%s)`,
		c.placeholderList(1, 12),
	)
	_, err := c.db.ExecContext(ctx, query,
		t.ID, t.Trigger, t.MessageID, t.SessionID, t.ProjectID, t.PerformerID,
		t.Name, t.Description, t.RawText, t.NormalizedText, t.Source, t.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Wrapf(ErrDuplicate, "task %s/%s", t.Trigger, t.MessageID)
		}
		return apperrors.Wrap(err, "insert task")
	}
	return nil
}

// ProjectByID loads a project.
func (c *CommonDB) ProjectByID(ctx context.Context, id string) (*model.Project, error) {
	query := fmt.Sprintf("SELECT id, name FROM projects WHERE id = %s", c.placeholders(1))
	var p model.Project
	if err := c.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name); err != nil {
		return nil, notFound(err, "project", id)
	}
	return &p, nil
}

// ProjectByName returns the first project whose name contains pattern.
func (c *CommonDB) ProjectByName(ctx context.Context, pattern string) (*model.Project, error) {
	query := fmt.Sprintf(
		"SELECT id, name FROM projects WHERE name %s %s ORDER BY name LIMIT 1",
		c.likeOperator(), c.placeholders(1),
	)
	var p model.Project
	if err := c.db.QueryRowContext(ctx, query, "%"+pattern+"%").Scan(&p.ID, &p.Name); err != nil {
		return nil, notFound(err, "project", pattern)
	}
	return &p, nil
}

// PerformerByName returns the first performer whose name contains pattern.
func (c *CommonDB) PerformerByName(ctx context.Context, pattern string) (*model.Performer, error) {
	query := fmt.Sprintf(
		"SELECT id, name FROM performers WHERE name %s %s ORDER BY name LIMIT 1",
		c.likeOperator(), c.placeholders(1),
	)
	var p model.Performer
	if err := c.db.QueryRowContext(ctx, query, "%"+pattern+"%").Scan(&p.ID, &p.Name); err != nil {
		return nil, notFound(err, "performer", pattern)
	}
	return &p, nil
}

// CreateProject inserts a directory project.
func (c *CommonDB) CreateProject(ctx context.Context, p *model.Project) error {
	query := fmt.Sprintf("INSERT INTO projects (id, name) VALUES (%s)", c.placeholderList(1, 2))
	if _, err := c.db.ExecContext(ctx, query, p.ID, p.Name); err != nil {
		return apperrors.Wrap(err, "insert project")
	}
	return nil
}

// CreatePerformer inserts a directory performer.
func (c *CommonDB) CreatePerformer(ctx context.Context, p *model.Performer) error {
	query := fmt.Sprintf("INSERT INTO performers (id, name) VALUES (%s)", c.placeholderList(1, 2))
	if _, err := c.db.ExecContext(ctx, query, p.ID, p.Name); err != nil {
		return apperrors.Wrap(err, "insert performer")
	}
	return nil
}
