package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"voxflow/cmd/voxflow/cmd/export"
	"voxflow/cmd/voxflow/cmd/migrate"
	"voxflow/cmd/voxflow/cmd/serve"
	"voxflow/cmd/voxflow/cmd/transcribe"
	"voxflow/cmd/voxflow/cmd/version"
	"voxflow/cmd/voxflow/cmd/worker"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "voxflow",
	Short: "Voice-message transcription pipeline",
	Long: `voxflow transcribes recorded voice messages.

- worker runs queued transcription and categorization jobs
- serve exposes health, metrics and an enqueue endpoint
- transcribe runs the pipeline inline for one message or a whole session`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(worker.Cmd)
	rootCmd.AddCommand(serve.Cmd)
	rootCmd.AddCommand(transcribe.Cmd)
	rootCmd.AddCommand(export.Cmd)
	rootCmd.AddCommand(migrate.Cmd)
	rootCmd.AddCommand(version.Cmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "verbose output")
}
