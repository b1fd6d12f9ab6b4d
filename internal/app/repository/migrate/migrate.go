// Package migrate copies sessions and their messages between stores, e.g.
// from a local sqlite file into postgres.
package migrate

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"voxflow/internal/app/model"
	"voxflow/internal/app/repository"
)

const defaultBatchSize = 1000

// Source is the store being copied from.
type Source interface {
	ListSessionIDs(ctx context.Context, afterID string, limit int) ([]string, error)
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessionMessages(ctx context.Context, sessionID string) ([]model.Message, error)
}

// Target is the store being copied into.
type Target interface {
	CreateSession(ctx context.Context, session *model.Session) error
	CreateMessage(ctx context.Context, msg *model.Message) error
}

// Stats summarizes a copy run.
type Stats struct {
	Sessions int
	Messages int
	Skipped  int
	LastID   string
}

// Copy moves every session after afterID and its messages from src to dst.
// Rows already present in dst are skipped, so a run can be resumed from
// Stats.LastID.
func Copy(ctx context.Context, src Source, dst Target, afterID string, logger *zap.Logger) (Stats, error) {
	stats := Stats{LastID: afterID}
	for {
		ids, err := src.ListSessionIDs(ctx, stats.LastID, defaultBatchSize)
		if err != nil {
			return stats, err
		}
		if len(ids) == 0 {
			return stats, nil
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if err := copySession(ctx, src, dst, id, &stats, logger); err != nil {
				return stats, err
			}
			stats.LastID = id
		}
	}
}

func copySession(ctx context.Context, src Source, dst Target, id string, stats *Stats, logger *zap.Logger) error {
	session, err := src.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if err := dst.CreateSession(ctx, session); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		stats.Skipped++
	} else {
		stats.Sessions++
	}

	messages, err := src.ListSessionMessages(ctx, id)
	if err != nil {
		return err
	}
	for i := range messages {
		if err := dst.CreateMessage(ctx, &messages[i]); err != nil {
			if !errors.Is(err, repository.ErrDuplicate) {
				logger.Warn("Failed to copy message",
					zap.String("session_id", id),
					zap.String("message_id", messages[i].ID),
					zap.Error(err))
				return err
			}
			stats.Skipped++
			continue
		}
		stats.Messages++
	}
	return nil
}
