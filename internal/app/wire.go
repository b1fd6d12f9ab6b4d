//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"voxflow/internal/config"
)

var pipelineSet = wire.NewSet(
	provideStore,
	provideRegistry,
	provideEvents,
	provideBackend,
	provideEnqueuer,
	provideTransports,
	provideResolver,
	provideSegmenter,
	provideTranscriber,
	provideTrigger,
	provideRetryPolicy,
	provideOrchestrator,
	provideCategorizer,
	provideSweeper,
)

// InitializeApp wires the pipeline from cfg. The cleanup func closes the
// store, the queue client and the event sink.
func InitializeApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, func(), error) {
	wire.Build(pipelineSet, wire.Struct(new(App), "*"))
	return nil, nil, nil
}
