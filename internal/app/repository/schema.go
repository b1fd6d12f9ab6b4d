package repository

import (
	"context"
	"strings"

	apperrors "voxflow/internal/app/errors"
)

// Column types differ per dialect; the table layout does not.
type dialect struct {
	json      string
	timestamp string
	boolean   string
	real      string
	bigint    string
}

var dialects = map[string]dialect{
	"sqlite3":  {json: "TEXT", timestamp: "TIMESTAMP", boolean: "BOOLEAN", real: "REAL", bigint: "INTEGER"},
	"postgres": {json: "JSONB", timestamp: "TIMESTAMPTZ", boolean: "BOOLEAN", real: "DOUBLE PRECISION", bigint: "BIGINT"},
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS sessions (
	id                TEXT PRIMARY KEY,
	project_id        TEXT NOT NULL DEFAULT '',
	processors        {json},
	is_corrupted      {bool} NOT NULL DEFAULT FALSE,
	error_code        TEXT NOT NULL DEFAULT '',
	error_message     TEXT NOT NULL DEFAULT '',
	error_occurred_at {ts},
	error_message_id  TEXT NOT NULL DEFAULT '',
	created_at        {ts} NOT NULL,
	updated_at        {ts} NOT NULL
);

CREATE TABLE IF NOT EXISTS session_voice_commands (
	session_id      TEXT NOT NULL,
	trigger_word    TEXT NOT NULL,
	message_id      TEXT NOT NULL,
	raw_text        TEXT NOT NULL DEFAULT '',
	normalized_text TEXT NOT NULL DEFAULT '',
	created_at      {ts} NOT NULL,
	PRIMARY KEY (session_id, trigger_word, message_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id                             TEXT PRIMARY KEY,
	session_id                     TEXT NOT NULL,
	file_path                      TEXT NOT NULL DEFAULT '',
	file_id                        TEXT NOT NULL DEFAULT '',
	source_type                    TEXT NOT NULL DEFAULT '',
	fallback_text                  TEXT NOT NULL DEFAULT '',
	mime_type                      TEXT NOT NULL DEFAULT '',
	duration                       {real} NOT NULL DEFAULT 0,
	file_size                      {bigint} NOT NULL DEFAULT 0,
	file_hash                      TEXT NOT NULL DEFAULT '',
	file_unique_id                 TEXT NOT NULL DEFAULT '',
	sha256                         TEXT NOT NULL DEFAULT '',
	transport                      {json},
	is_transcribed                 {bool} NOT NULL DEFAULT FALSE,
	to_transcribe                  {bool} NOT NULL DEFAULT FALSE,
	transcribe_attempts            INTEGER NOT NULL DEFAULT 0,
	transcription_method           TEXT NOT NULL DEFAULT '',
	transcription_text             TEXT NOT NULL DEFAULT '',
	transcription                  {json},
	transcription_chunks           {json},
	transcription_raw              {json},
	transcription_error            TEXT NOT NULL DEFAULT '',
	error_message                  TEXT NOT NULL DEFAULT '',
	error_occurred_at              {ts},
	transcription_retry_reason     TEXT NOT NULL DEFAULT '',
	transcription_next_attempt_at  {ts},
	transcribed_at                 {ts},
	category                       TEXT NOT NULL DEFAULT '',
	created_at                     {ts} NOT NULL,
	updated_at                     {ts} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_retry ON messages (to_transcribe, is_transcribed, transcription_next_attempt_at);

CREATE TABLE IF NOT EXISTS tasks (
	id              TEXT PRIMARY KEY,
	trigger_word    TEXT NOT NULL,
	message_id      TEXT NOT NULL,
	session_id      TEXT NOT NULL,
	project_id      TEXT NOT NULL,
	performer_id    TEXT NOT NULL DEFAULT '',
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	raw_text        TEXT NOT NULL DEFAULT '',
	normalized_text TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL DEFAULT '',
	created_at      {ts} NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_trigger_message ON tasks (trigger_word, message_id);

CREATE TABLE IF NOT EXISTS projects (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS performers (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);
`

// Schema renders the DDL for a driver.
func Schema(driverName string) string {
	d, ok := dialects[driverName]
	if !ok {
		d = dialects["sqlite3"]
	}
	return strings.NewReplacer(
		"{json}", d.json,
		"{ts}", d.timestamp,
		"{bool}", d.boolean,
		"{real}", d.real,
		"{bigint}", d.bigint,
	).Replace(schemaTemplate)
}

// Migrate creates tables and indexes if they do not exist.
func (c *CommonDB) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema(c.driverName), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.Wrap(err, "migrate schema")
		}
	}
	return nil
}
