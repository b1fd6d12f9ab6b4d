package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/model"
)

var messageColumns = []string{
	"id", "session_id", "file_path", "file_id", "source_type", "fallback_text",
	"mime_type", "duration", "file_size", "file_hash", "file_unique_id", "sha256",
	"transport", "is_transcribed", "to_transcribe", "transcribe_attempts",
	"transcription_method", "transcription_text", "transcription",
	"transcription_chunks", "transcription_raw", "transcription_error",
	"error_message", "error_occurred_at", "transcription_retry_reason",
	"transcription_next_attempt_at", "transcribed_at", "category",
	"created_at", "updated_at",
}

var selectMessage = "SELECT " + strings.Join(messageColumns, ", ") + " FROM messages"

// GetMessage loads a message by id.
func (c *CommonDB) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	query := fmt.Sprintf("%s WHERE id = %s", selectMessage, c.placeholders(1))
	msg, err := scanMessage(c.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "message", id)
	}
	return msg, nil
}

// CreateMessage inserts a new message. Zero timestamps are filled in.
func (c *CommonDB) CreateMessage(ctx context.Context, msg *model.Message) error {
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = now
	}

	args, err := messageArgs(msg)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		"INSERT INTO messages (%s) VALUES (%s)",
		strings.Join(messageColumns, ", "),
		c.placeholderList(1, len(messageColumns)),
	)
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apperrors.Wrapf(ErrDuplicate, "message %s", msg.ID)
		}
		return apperrors.Wrap(err, "insert message")
	}
	return nil
}

// UpdateMessage overwrites every mutable column of the message row.
func (c *CommonDB) UpdateMessage(ctx context.Context, msg *model.Message) error {
	msg.UpdatedAt = time.Now().UTC()

	args, err := messageArgs(msg)
	if err != nil {
		return err
	}
	// id is the first column; move it to the WHERE clause.
	cols := messageColumns[1:]
	query := fmt.Sprintf(
		"UPDATE messages SET %s WHERE id = %s",
		c.assignments(cols, 1),
		c.placeholders(len(cols)+1),
	)
	args = append(args[1:], args[0])

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.Wrap(err, "update message")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NotFound("message", msg.ID)
	}
	return nil
}

// FindTranscribedByHash looks for a transcribed sibling carrying hash in any
// of its identity columns.
func (c *CommonDB) FindTranscribedByHash(ctx context.Context, sessionID, excludeID, hash string) (*model.Message, error) {
	if hash == "" {
		return nil, apperrors.NotFound("message with hash", hash)
	}
	query := fmt.Sprintf(
		`%s WHERE session_id = %s AND id <> %s AND is_transcribed = %s
		 AND (file_hash = %s OR file_unique_id = %s OR sha256 = %s)
		 ORDER BY transcribed_at DESC LIMIT 1`,
		selectMessage, c.placeholders(1), c.placeholders(2), c.placeholders(3),
		c.placeholders(4), c.placeholders(5), c.placeholders(6),
	)
	msg, err := scanMessage(c.db.QueryRowContext(ctx, query, sessionID, excludeID, true, hash, hash, hash))
	if err != nil {
		return nil, notFound(err, "message with hash", hash)
	}
	return msg, nil
}

// ListPendingRetries returns messages flagged for retry whose backoff has elapsed.
func (c *CommonDB) ListPendingRetries(ctx context.Context, now time.Time, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(
		`%s WHERE to_transcribe = %s AND is_transcribed = %s
		 AND (transcription_next_attempt_at IS NULL OR transcription_next_attempt_at <= %s)
		 ORDER BY transcription_next_attempt_at LIMIT %d`,
		selectMessage, c.placeholders(1), c.placeholders(2), c.placeholders(3), limit,
	)
	return c.queryMessages(ctx, query, true, false, now.UTC())
}

// ListSessionMessages returns a session's messages in creation order.
func (c *CommonDB) ListSessionMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	query := fmt.Sprintf("%s WHERE session_id = %s ORDER BY created_at, id", selectMessage, c.placeholders(1))
	return c.queryMessages(ctx, query, sessionID)
}

func (c *CommonDB) queryMessages(ctx context.Context, query string, args ...interface{}) ([]model.Message, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return messages, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var (
		m                                             model.Message
		transport, transcription, chunks, raw         sql.NullString
		errorOccurredAt, nextAttemptAt, transcribedAt sql.NullTime
	)
	err := row.Scan(
		&m.ID, &m.SessionID, &m.FilePath, &m.FileID, &m.SourceType, &m.Text,
		&m.MimeType, &m.Duration, &m.FileSize, &m.FileHash, &m.FileUniqueID, &m.SHA256,
		&transport, &m.IsTranscribed, &m.ToTranscribe, &m.TranscribeAttempts,
		&m.TranscriptionMethod, &m.TranscriptionText, &transcription,
		&chunks, &raw, &m.TranscriptionError,
		&m.ErrorMessage, &errorOccurredAt, &m.TranscriptionRetryReason,
		&nextAttemptAt, &transcribedAt, &m.Category,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalColumn(transport, &m.Transport); err != nil {
		return nil, err
	}
	if transcription.Valid && transcription.String != "" && transcription.String != "null" {
		m.Transcription = &model.StructuredTranscript{}
		if err := json.Unmarshal([]byte(transcription.String), m.Transcription); err != nil {
			return nil, fmt.Errorf("decode transcription: %w", err)
		}
	}
	if err := unmarshalColumn(chunks, &m.TranscriptionChunks); err != nil {
		return nil, err
	}
	if raw.Valid && raw.String != "" {
		m.TranscriptionRaw = json.RawMessage(raw.String)
	}
	m.ErrorOccurredAt = timePtr(errorOccurredAt)
	m.TranscriptionNextAttemptAt = timePtr(nextAttemptAt)
	m.TranscribedAt = timePtr(transcribedAt)
	return &m, nil
}

func messageArgs(m *model.Message) ([]interface{}, error) {
	transport, err := marshalColumn(m.Transport)
	if err != nil {
		return nil, err
	}
	var transcription sql.NullString
	if m.Transcription != nil {
		if transcription, err = marshalColumn(m.Transcription); err != nil {
			return nil, err
		}
	}
	var chunks sql.NullString
	if len(m.TranscriptionChunks) > 0 {
		if chunks, err = marshalColumn(m.TranscriptionChunks); err != nil {
			return nil, err
		}
	}
	var raw sql.NullString
	if len(m.TranscriptionRaw) > 0 {
		raw = sql.NullString{String: string(m.TranscriptionRaw), Valid: true}
	}

	return []interface{}{
		m.ID, m.SessionID, m.FilePath, m.FileID, m.SourceType, m.Text,
		m.MimeType, m.Duration, m.FileSize, m.FileHash, m.FileUniqueID, m.SHA256,
		transport, m.IsTranscribed, m.ToTranscribe, m.TranscribeAttempts,
		m.TranscriptionMethod, m.TranscriptionText, transcription,
		chunks, raw, m.TranscriptionError,
		m.ErrorMessage, nullTime(m.ErrorOccurredAt), m.TranscriptionRetryReason,
		nullTime(m.TranscriptionNextAttemptAt), nullTime(m.TranscribedAt), m.Category,
		m.CreatedAt.UTC(), m.UpdatedAt.UTC(),
	}, nil
}

func marshalColumn(v interface{}) (sql.NullString, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode column: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalColumn(col sql.NullString, v interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), v); err != nil {
		return fmt.Errorf("decode column: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
