package export

import (
	"fmt"

	"github.com/spf13/cobra"

	"voxflow/cmd/voxflow/cmd/bootstrap"
	"voxflow/internal/app"
	xlsxexport "voxflow/internal/app/export"
)

var sessionID string
var outputFilePath string

func init() {
	Cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session whose transcripts are exported")
	Cmd.Flags().StringVarP(&outputFilePath, "outputFilePath", "o", "", "set outputFilePath")

	_ = Cmd.MarkFlagRequired("session")
	_ = Cmd.MarkFlagRequired("outputFilePath")
}

// Cmd represents the export command
var Cmd = &cobra.Command{
	Use:   "export",
	Short: "Export a session's transcripts to excel",
	Long: `Export a session's transcripts to excel

- One row per timeline segment, in message order`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap.Config(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		store, err := app.OpenStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		messages, err := store.ListSessionMessages(cmd.Context(), sessionID)
		if err != nil {
			return err
		}
		if err := xlsxexport.ToExcel(messages, outputFilePath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "export finished, %d messages, exported file path: %v\n", len(messages), outputFilePath)
		return nil
	},
}
