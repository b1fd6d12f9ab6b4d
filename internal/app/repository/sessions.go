package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/model"
)

var sessionColumns = []string{
	"id", "project_id", "processors", "is_corrupted", "error_code", "error_message",
	"error_occurred_at", "error_message_id", "created_at", "updated_at",
}

var voiceCommandColumns = []string{
	"session_id", "trigger_word", "message_id", "raw_text", "normalized_text", "created_at",
}

// GetSession loads a session by id together with its voice commands.
func (c *CommonDB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE id = %s", strings.Join(sessionColumns, ", "), c.placeholders(1))

	var (
		s               model.Session
		processors      sql.NullString
		errorOccurredAt sql.NullTime
	)
	err := c.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.ProjectID, &processors, &s.IsCorrupted, &s.ErrorCode, &s.ErrorMessage,
		&errorOccurredAt, &s.ErrorMessageID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "session", id)
	}
	if err := unmarshalColumn(processors, &s.Processors); err != nil {
		return nil, err
	}
	s.ErrorOccurredAt = timePtr(errorOccurredAt)

	if s.VoiceCommands, err = c.listVoiceCommands(ctx, id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *CommonDB) listVoiceCommands(ctx context.Context, sessionID string) ([]model.VoiceCommand, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM session_voice_commands WHERE session_id = %s ORDER BY created_at, message_id, trigger_word",
		strings.Join(voiceCommandColumns, ", "), c.placeholders(1),
	)
	rows, err := c.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, apperrors.Wrapf(err, "query voice commands %s", sessionID)
	}
	defer rows.Close()

	var out []model.VoiceCommand
	for rows.Next() {
		var vc model.VoiceCommand
		if err := rows.Scan(&vc.SessionID, &vc.Trigger, &vc.MessageID, &vc.RawText, &vc.NormalizedText, &vc.CreatedAt); err != nil {
			return nil, apperrors.Wrap(err, "scan voice command")
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

// CreateSession inserts a new session and any voice commands it carries.
func (c *CommonDB) CreateSession(ctx context.Context, s *model.Session) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	args, err := sessionArgs(s)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		"INSERT INTO sessions (%s) VALUES (%s)",
		strings.Join(sessionColumns, ", "),
		c.placeholderList(1, len(sessionColumns)),
	)
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apperrors.Wrapf(ErrDuplicate, "session %s", s.ID)
		}
		return apperrors.Wrap(err, "insert session")
	}
	for _, vc := range s.VoiceCommands {
		vc.SessionID = s.ID
		if _, err := c.AppendVoiceCommand(ctx, vc); err != nil {
			return err
		}
	}
	return nil
}

// UpdateSession overwrites the project, processors and error columns of the
// session row. Voice commands are only ever added through AppendVoiceCommand.
func (c *CommonDB) UpdateSession(ctx context.Context, s *model.Session) error {
	s.UpdatedAt = time.Now().UTC()
	args, err := sessionArgs(s)
	if err != nil {
		return err
	}
	// id and created_at are immutable.
	cols := []string{
		"project_id", "processors", "is_corrupted", "error_code", "error_message",
		"error_occurred_at", "error_message_id", "updated_at",
	}
	setArgs := []interface{}{args[1], args[2], args[3], args[4], args[5], args[6], args[7], args[9], args[0]}

	query := fmt.Sprintf(
		"UPDATE sessions SET %s WHERE id = %s",
		c.assignments(cols, 1),
		c.placeholders(len(cols)+1),
	)
	res, err := c.db.ExecContext(ctx, query, setArgs...)
	if err != nil {
		return apperrors.Wrap(err, "update session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NotFound("session", s.ID)
	}
	return nil
}

// SetSessionError writes the mirrored error columns of one session and
// nothing else.
func (c *CommonDB) SetSessionError(ctx context.Context, id string, e model.SessionError) error {
	query := fmt.Sprintf(
		"UPDATE sessions SET is_corrupted = %s, error_code = %s, error_message = %s, error_occurred_at = %s, error_message_id = %s, updated_at = %s WHERE id = %s",
		c.placeholders(1), c.placeholders(2), c.placeholders(3), c.placeholders(4),
		c.placeholders(5), c.placeholders(6), c.placeholders(7),
	)
	res, err := c.db.ExecContext(ctx, query,
		e.Corrupted, e.Code, e.Message, e.OccurredAt.UTC(), e.MessageID, time.Now().UTC(), id)
	if err != nil {
		return apperrors.Wrap(err, "set session error")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NotFound("session", id)
	}
	return nil
}

// ClearSessionError resets the mirrored error of a session. Rows without
// an error are left untouched.
func (c *CommonDB) ClearSessionError(ctx context.Context, id string) error {
	query := fmt.Sprintf(
		"UPDATE sessions SET is_corrupted = %s, error_code = '', error_message = '', error_occurred_at = NULL, error_message_id = '', updated_at = %s "+
			"WHERE id = %s AND (is_corrupted = %s OR error_code <> '' OR error_message <> '')",
		c.placeholders(1), c.placeholders(2), c.placeholders(3), c.placeholders(4),
	)
	if _, err := c.db.ExecContext(ctx, query, false, time.Now().UTC(), id, true); err != nil {
		return apperrors.Wrap(err, "clear session error")
	}
	return nil
}

// AppendVoiceCommand records vc on its session. It reports false when the
// (session, trigger, message) entry already exists.
func (c *CommonDB) AppendVoiceCommand(ctx context.Context, vc model.VoiceCommand) (bool, error) {
	if vc.CreatedAt.IsZero() {
		vc.CreatedAt = time.Now()
	}
	query := fmt.Sprintf(
		"INSERT INTO session_voice_commands (%s) VALUES (%s)",
		strings.Join(voiceCommandColumns, ", "),
		c.placeholderList(1, len(voiceCommandColumns)),
	)
	_, err := c.db.ExecContext(ctx, query,
		vc.SessionID, vc.Trigger, vc.MessageID, vc.RawText, vc.NormalizedText, vc.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, apperrors.Wrap(err, "insert voice command")
	}
	return true, nil
}

func sessionArgs(s *model.Session) ([]interface{}, error) {
	var processors sql.NullString
	if len(s.Processors) > 0 {
		var err error
		if processors, err = marshalColumn(s.Processors); err != nil {
			return nil, err
		}
	}
	return []interface{}{
		s.ID, s.ProjectID, processors, s.IsCorrupted, s.ErrorCode, s.ErrorMessage,
		nullTime(s.ErrorOccurredAt), s.ErrorMessageID,
		s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	}, nil
}

// ListSessionIDs pages through session ids in ascending order after afterID.
func (c *CommonDB) ListSessionIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	query := fmt.Sprintf("SELECT id FROM sessions WHERE id > %s ORDER BY id LIMIT %d", c.placeholders(1), limit)
	rows, err := c.db.QueryContext(ctx, query, afterID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
