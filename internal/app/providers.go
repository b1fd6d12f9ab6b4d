package app

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"voxflow/internal/app/api/gemini"
	openaiapi "voxflow/internal/app/api/openai"
	"voxflow/internal/app/api/openai/whisper"
	"voxflow/internal/app/api/provider"
	"voxflow/internal/app/api/whisper_server"
	"voxflow/internal/app/audio"
	"voxflow/internal/app/categorize"
	"voxflow/internal/app/events"
	"voxflow/internal/app/queue"
	"voxflow/internal/app/repository"
	"voxflow/internal/app/repository/pg"
	"voxflow/internal/app/repository/sqlite"
	"voxflow/internal/app/temporal"
	"voxflow/internal/app/transcribe"
	"voxflow/internal/app/transport"
	"voxflow/internal/app/transport/objectstore"
	"voxflow/internal/app/transport/telegram"
	"voxflow/internal/app/voicecmd"
	"voxflow/internal/config"
)

// Message source types with a registered transport.
const (
	SourceTelegram = "telegram"
	SourceS3       = "s3"
)

// App is the fully wired pipeline shared by the worker, the admin server
// and the CLI.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Store        *repository.CommonDB
	Registry     *prometheus.Registry
	Events       events.Sink
	Backend      *Backend
	Orchestrator *transcribe.Orchestrator
	Categorizer  *categorize.Categorizer
	Sweeper      *queue.Sweeper
}

// Backend is the configured job queue. Temporal is nil for asynq.
type Backend struct {
	Name     string
	Enqueuer queue.Enqueuer
	Temporal client.Client
}

// OpenStore opens the configured database and creates missing tables.
func OpenStore(ctx context.Context, cfg *config.Config) (*repository.CommonDB, error) {
	var (
		db  *repository.CommonDB
		err error
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err = pg.Open(cfg.Database.DSN)
	default:
		db, err = sqlite.Open(cfg.Database.DSN)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func provideStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repository.CommonDB, func(), error) {
	db, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Store opened", zap.String("driver", db.DriverName()))
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideEvents(cfg *config.Config, logger *zap.Logger) (events.Sink, func(), error) {
	if !cfg.Redis.Events {
		return events.Nop{}, func() {}, nil
	}
	sink, err := events.NewRedisSinkFromURL(cfg.Redis.URL, logger)
	if err != nil {
		return nil, nil, err
	}
	return sink, func() { _ = sink.Close() }, nil
}

func provideBackend(cfg *config.Config, logger *zap.Logger) (*Backend, func(), error) {
	switch cfg.Queue.Backend {
	case "temporal":
		c, err := temporal.Dial(temporal.Config{
			HostPort:  cfg.Queue.Temporal.HostPort,
			Namespace: cfg.Queue.Temporal.Namespace,
			TaskQueue: cfg.Queue.Temporal.TaskQueue,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return &Backend{
			Name:     "temporal",
			Enqueuer: temporal.NewEnqueuer(c, cfg.Queue.Temporal.TaskQueue),
			Temporal: c,
		}, c.Close, nil
	default:
		enq, err := queue.NewAsynqEnqueuer(cfg.Redis.URL, cfg.Queue.TaskTimeout)
		if err != nil {
			return nil, nil, err
		}
		return &Backend{Name: "asynq", Enqueuer: enq}, func() { _ = enq.Close() }, nil
	}
}

func provideEnqueuer(b *Backend) queue.Enqueuer {
	return b.Enqueuer
}

func provideTransports(cfg *config.Config) (*transport.Registry, error) {
	registry := transport.NewRegistry()
	tg := cfg.Transports.Telegram
	registry.Register(SourceTelegram, telegram.New(telegram.Config{
		BotToken:     tg.BotToken,
		BaseURL:      tg.BaseURL,
		Timeout:      tg.Timeout,
		MaxFileBytes: tg.MaxFileBytes,
	}, nil))

	if s3 := cfg.Transports.S3; s3.Enabled {
		store, err := objectstore.New(objectstore.Config{
			Endpoint:      s3.Endpoint,
			AccessKey:     s3.AccessKey,
			SecretKey:     s3.SecretKey,
			Bucket:        s3.Bucket,
			Region:        s3.Region,
			UseSSL:        s3.UseSSL,
			PathStyle:     s3.PathStyle,
			PresignExpiry: s3.PresignExpiry,
			MaxFileBytes:  s3.MaxFileBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure object storage transport: %w", err)
		}
		registry.Register(SourceS3, store)
	}
	return registry, nil
}

func provideResolver(cfg *config.Config, transports *transport.Registry, logger *zap.Logger) *transcribe.TransportResolver {
	return transcribe.NewTransportResolver(transports, cfg.Storage.AudioDir, logger)
}

func provideSegmenter(cfg *config.Config, logger *zap.Logger) *transcribe.Segmenter {
	seg := cfg.Segmentation
	tempDir := cfg.Storage.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return transcribe.NewSegmenter(audio.NewFFmpeg(seg.FFmpegPath, seg.FFprobePath), transcribe.SegmentConfig{
		MaxPayloadBytes:       seg.MaxPayloadBytes,
		TargetSegmentBytes:    seg.TargetSegmentBytes,
		MinSegmentSeconds:     seg.MinSegmentSeconds,
		DefaultSegmentSeconds: seg.DefaultSegmentSeconds,
		TempDir:               tempDir,
	}, logger)
}

func provideTranscriber(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) (provider.Transcriber, error) {
	p := cfg.Provider
	var t provider.Transcriber
	switch p.Name {
	case "gemini":
		g, err := gemini.NewTranscriber(ctx, gemini.Config{
			APIKey:  p.APIKey,
			Model:   p.Model,
			BaseURL: p.BaseURL,
			Prompt:  p.Prompt,
			Timeout: p.Timeout,
		})
		if err != nil {
			return nil, err
		}
		t = g
	case "whisper_server":
		t = whisper_server.NewTranscriber(whisper_server.Config{
			BaseURL:  p.BaseURL,
			Timeout:  p.Timeout,
			Language: p.Language,
		}, nil)
	default:
		c := openaiapi.NewClient(openaiapi.ClientConfig{APIKey: p.APIKey, BaseURL: p.BaseURL, Timeout: p.Timeout})
		t = whisper.NewRemoteTranscriber(c, whisper.Config{APIKey: p.APIKey, Model: p.Model, Timeout: p.Timeout})
	}
	return provider.Instrument(t, provider.NewMetrics(reg)), nil
}

func provideTrigger(cfg *config.Config, store *repository.CommonDB, logger *zap.Logger) transcribe.CommandTrigger {
	vc := cfg.VoiceCommands
	if !vc.Enabled {
		return nil
	}
	return voicecmd.NewTrigger(store, store, store, voicecmd.Config{
		Triggers:         vc.Triggers,
		ProjectPattern:   vc.ProjectPattern,
		PerformerPattern: vc.PerformerPattern,
	}, logger)
}

func provideRetryPolicy(cfg *config.Config) transcribe.RetryPolicy {
	return transcribe.RetryPolicy{
		MaxAttempts:      cfg.Retry.MaxAttempts,
		MaxQuotaAttempts: cfg.Retry.MaxQuotaAttempts,
		BaseDelay:        cfg.Retry.BaseDelay,
		MaxDelay:         cfg.Retry.MaxDelay,
	}
}

func provideOrchestrator(
	store *repository.CommonDB,
	resolver *transcribe.TransportResolver,
	segmenter *transcribe.Segmenter,
	transcriber provider.Transcriber,
	trigger transcribe.CommandTrigger,
	enqueuer queue.Enqueuer,
	sink events.Sink,
	policy transcribe.RetryPolicy,
	reg *prometheus.Registry,
	logger *zap.Logger,
) *transcribe.Orchestrator {
	return transcribe.NewOrchestrator(transcribe.Options{
		Messages:    store,
		Sessions:    store,
		Resolver:    resolver,
		Segmenter:   segmenter,
		Transcriber: transcriber,
		Trigger:     trigger,
		Enqueuer:    enqueuer,
		Events:      sink,
		Policy:      policy,
		Metrics:     transcribe.NewMetrics(reg),
		Logger:      logger,
	})
}

func provideCategorizer(cfg *config.Config, store *repository.CommonDB, sink events.Sink, logger *zap.Logger) *categorize.Categorizer {
	c := cfg.Categorization
	chat := openaiapi.NewClient(openaiapi.ClientConfig{APIKey: c.APIKey, BaseURL: c.BaseURL, Timeout: c.Timeout})
	return categorize.New(store, store, chat, sink, categorize.Config{
		Enabled:    c.Enabled,
		Model:      c.Model,
		Categories: c.Categories,
		Fallback:   c.Fallback,
		Timeout:    c.Timeout,
		MaxChars:   c.MaxChars,
	}, logger)
}

func provideSweeper(cfg *config.Config, store *repository.CommonDB, enqueuer queue.Enqueuer, logger *zap.Logger) *queue.Sweeper {
	return queue.NewSweeper(store, enqueuer, cfg.Queue.SweepBatch, logger)
}
