package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"voxflow/cmd/voxflow/cmd/bootstrap"
	"voxflow/internal/app"
	storemigrate "voxflow/internal/app/repository/migrate"
	"voxflow/internal/app/repository/sqlite"
)

var copyFrom string
var afterID string

func init() {
	Cmd.Flags().StringVar(&copyFrom, "copy-from", "", "sqlite file whose sessions and messages are copied into the configured store")
	Cmd.Flags().StringVar(&afterID, "after", "", "resume copying after this session id")
}

// Cmd represents the migrate command
var Cmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the schema and optionally copy data from a sqlite file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap.Config(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		dst, err := app.OpenStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dst.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", dst.DriverName())

		if copyFrom == "" {
			return nil
		}
		src, err := sqlite.Open(copyFrom)
		if err != nil {
			return err
		}
		defer src.Close()

		stats, err := storemigrate.Copy(cmd.Context(), src, dst, afterID, logger)
		fmt.Fprintf(cmd.OutOrStdout(), "copied %d sessions, %d messages, skipped %d (last session %s)\n",
			stats.Sessions, stats.Messages, stats.Skipped, stats.LastID)
		return err
	},
}
