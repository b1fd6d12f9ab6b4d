// Package events pushes live updates to UI clients over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MessageUpdate is published whenever a message's transcription state changes.
const MessageUpdate = "message_update"

// Sink publishes session-scoped events. Publishing is fire-and-forget for
// callers; the returned error is for logging only.
type Sink interface {
	Publish(ctx context.Context, sessionID, eventType string, payload interface{}) error
}

// Envelope is the wire shape of every event.
type Envelope struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Payload   interface{} `json:"payload"`
	SentAt    time.Time   `json:"sent_at"`
}

// Channel names the pub/sub channel for a session.
func Channel(sessionID string) string {
	return "session:" + sessionID
}

// RedisSink publishes envelopes with PUBLISH session:<id>.
type RedisSink struct {
	rdb    redis.UniversalClient
	logger *zap.Logger
}

// NewRedisSink wraps an existing client.
func NewRedisSink(rdb redis.UniversalClient, logger *zap.Logger) *RedisSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSink{rdb: rdb, logger: logger}
}

// NewRedisSinkFromURL parses a redis:// URL and creates a sink.
func NewRedisSinkFromURL(redisURL string, logger *zap.Logger) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return NewRedisSink(redis.NewClient(opts), logger), nil
}

// Publish sends one event.
func (s *RedisSink) Publish(ctx context.Context, sessionID, eventType string, payload interface{}) error {
	body, err := json.Marshal(Envelope{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := s.rdb.Publish(ctx, Channel(sessionID), body).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	s.logger.Debug("Published event",
		zap.String("session_id", sessionID),
		zap.String("type", eventType),
		zap.Int64("receivers", receivers))
	return nil
}

// Close closes the Redis client.
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}

// Nop discards events.
type Nop struct{}

// Publish implements Sink.
func (Nop) Publish(context.Context, string, string, interface{}) error { return nil }
