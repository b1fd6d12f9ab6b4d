package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voxflow/cmd/voxflow/cmd/bootstrap"
	"voxflow/cmd/voxflow/cmd/serve"
	"voxflow/internal/app"
	"voxflow/internal/app/queue"
	"voxflow/internal/app/temporal/activities"
	tworker "voxflow/internal/app/temporal/worker"
)

var withServer bool

func init() {
	Cmd.Flags().BoolVar(&withServer, "serve", false, "also serve the admin HTTP API")
}

// Cmd represents the worker command
var Cmd = &cobra.Command{
	Use:   "worker",
	Short: "Run transcription and categorization jobs from the queue",
	Long: `Run transcription and categorization jobs from the configured queue backend.

With asynq the retry sweep is registered on the asynq scheduler; with
Temporal it runs as a long-lived workflow.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, cleanup, err := bootstrap.App(ctx, cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if withServer {
			srv := serve.NewServer(a)
			srv.Start()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		if a.Backend.Temporal != nil {
			return runTemporal(ctx, a)
		}
		return runAsynq(a)
	},
}

func runAsynq(a *app.App) error {
	cfg := a.Config
	w, err := queue.NewWorker(queue.WorkerConfig{
		RedisURL:        cfg.Redis.URL,
		Concurrency:     cfg.Queue.Concurrency,
		ShutdownTimeout: cfg.Queue.ShutdownTimeout,
	}, queue.Handlers{
		Transcribe: a.Orchestrator,
		Categorize: a.Categorizer,
		Sweeper:    a.Sweeper,
	}, a.Logger)
	if err != nil {
		return err
	}

	stopScheduler, err := queue.StartScheduler(cfg.Redis.URL, cfg.Queue.SweepInterval, a.Logger)
	if err != nil {
		return err
	}
	defer stopScheduler()

	a.Logger.Info("Starting asynq worker", zap.Int("concurrency", cfg.Queue.Concurrency))
	return w.Run()
}

func runTemporal(ctx context.Context, a *app.App) error {
	cfg := a.Config
	hostname, _ := os.Hostname()
	return tworker.Run(ctx, a.Backend.Temporal, tworker.Options{
		TaskQueue:     cfg.Queue.Temporal.TaskQueue,
		Concurrency:   cfg.Queue.Concurrency,
		SweepInterval: cfg.Queue.SweepInterval,
		Identity:      "voxflow@" + hostname,
	}, &activities.Activities{
		Transcriber: a.Orchestrator,
		Categorizer: a.Categorizer,
		Sweeper:     a.Sweeper,
	}, a.Logger)
}
