// Package categorize files transcribed messages under one of a fixed set of
// categories using an OpenAI chat model.
package categorize

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/samber/lo"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "voxflow/internal/app/errors"
	"voxflow/internal/app/events"
	"voxflow/internal/app/model"
	"voxflow/internal/app/repository"
)

// ChatCompleter is the part of *openai.Client used here.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config controls the categorization job.
type Config struct {
	Enabled    bool
	Model      string
	Categories []string
	// Fallback is used when the model answers outside Categories.
	Fallback string
	Timeout  time.Duration
	// MaxChars truncates long transcripts before they are sent.
	MaxChars int
}

// DefaultConfig returns the built-in category set.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Model:      openai.GPT4oMini,
		Categories: []string{"task", "idea", "note", "question", "other"},
		Fallback:   "other",
		Timeout:    30 * time.Second,
		MaxChars:   4000,
	}
}

// Categorizer handles categorize jobs.
type Categorizer struct {
	messages repository.MessageStore
	sessions repository.SessionStore
	chat     ChatCompleter
	events   events.Sink
	config   Config
	logger   *zap.Logger
}

// New creates a Categorizer.
func New(messages repository.MessageStore, sessions repository.SessionStore, chat ChatCompleter, sink events.Sink, config Config, logger *zap.Logger) *Categorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = events.Nop{}
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxChars <= 0 {
		config.MaxChars = 4000
	}
	return &Categorizer{
		messages: messages,
		sessions: sessions,
		chat:     chat,
		events:   sink,
		config:   config,
		logger:   logger,
	}
}

// HandleCategorizeJob categorizes one message. Messages already
// categorized, not yet transcribed, or in sessions without the
// categorization processor are left alone.
func (c *Categorizer) HandleCategorizeJob(ctx context.Context, job model.CategorizeJob) error {
	if !c.config.Enabled || c.chat == nil {
		return nil
	}
	logger := c.logger.With(zap.String("message_id", job.MessageID))

	msg, err := c.messages.GetMessage(ctx, job.MessageID)
	if err != nil {
		return err
	}
	if msg.Category != "" {
		return nil
	}
	text := strings.TrimSpace(msg.TranscriptionText)
	if !msg.IsTranscribed || text == "" {
		logger.Debug("Nothing to categorize")
		return nil
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = job.SessionID
	}
	session, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.ProcessorEnabled(model.ProcessorCategorization) {
		return nil
	}

	category, err := c.Classify(ctx, text)
	if err != nil {
		return apperrors.WrapCoded(err, apperrors.CodeCategorizationFailed, "chat completion failed")
	}

	msg.Category = category
	if err := c.messages.UpdateMessage(ctx, msg); err != nil {
		return fmt.Errorf("persist category: %w", err)
	}
	if err := c.events.Publish(ctx, session.ID, events.MessageUpdate, msg); err != nil {
		logger.Warn("Failed to publish message update", zap.Error(err))
	}

	logger.Info("Message categorized", zap.String("category", category))
	return nil
}

// Classify asks the model for one category of text.
func (c *Categorizer) Classify(ctx context.Context, text string) (string, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	if runes := []rune(text); len(runes) > c.config.MaxChars {
		text = string(runes[:c.config.MaxChars])
	}

	request := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: 0,
		MaxTokens:   16,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt(c.config.Categories),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	}
	resp, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return MatchCategory(resp.Choices[0].Message.Content, c.config.Categories, c.config.Fallback), nil
}

func systemPrompt(categories []string) string {
	return "Classify the user's voice message transcript into exactly one of these categories: " +
		strings.Join(categories, ", ") +
		". Answer with the category name only."
}

// MatchCategory maps a free-form model answer onto categories: exact match
// first, then the first category the answer mentions, then fallback.
func MatchCategory(answer string, categories []string, fallback string) string {
	normalized := strings.ToLower(strings.TrimFunc(answer, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}))
	if normalized == "" {
		return fallback
	}

	if exact, ok := lo.Find(categories, func(c string) bool {
		return strings.EqualFold(c, normalized)
	}); ok {
		return exact
	}
	if mentioned, ok := lo.Find(categories, func(c string) bool {
		return strings.Contains(normalized, strings.ToLower(c))
	}); ok {
		return mentioned
	}
	return fallback
}
