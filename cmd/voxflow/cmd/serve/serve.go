package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"voxflow/cmd/voxflow/cmd/bootstrap"
	"voxflow/internal/api/server"
	"voxflow/internal/app"
)

var addr string

func init() {
	Cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
}

// Cmd represents the serve command
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health, metrics and the enqueue API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, cleanup, err := bootstrap.App(ctx, cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if addr != "" {
			a.Config.Server.Addr = addr
		}
		srv := NewServer(a)
		errCh := srv.Start()
		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// NewServer builds the admin server over a wired app.
func NewServer(a *app.App) *server.Server {
	checks := map[string]server.HealthCheck{
		"store": a.Store.Ping,
	}
	if a.Backend.Temporal != nil {
		c := a.Backend.Temporal
		checks["temporal"] = func(ctx context.Context) error {
			_, err := c.CheckHealth(ctx, &client.CheckHealthRequest{})
			return err
		}
	}

	environment := "production"
	if a.Config.Log.Development {
		environment = "development"
	}
	a.Logger.Debug("Admin server configured", zap.String("addr", a.Config.Server.Addr))
	return server.NewServer(server.Config{
		Addr:         a.Config.Server.Addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		Environment:  environment,
	}, server.Deps{
		Messages: a.Store,
		Enqueuer: a.Backend.Enqueuer,
		Checks:   checks,
		Gatherer: a.Registry,
	}, a.Logger)
}
