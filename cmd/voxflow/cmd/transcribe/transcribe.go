package transcribe

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"voxflow/cmd/voxflow/cmd/bootstrap"
	"voxflow/internal/app/batch"
	"voxflow/internal/app/model"
)

var (
	sessionID string
	force     bool
	parallel  int
	progress  bool
	jsonOut   bool
)

func init() {
	Cmd.Flags().StringVarP(&sessionID, "session", "s", "", "transcribe every pending message of this session")
	Cmd.Flags().BoolVarP(&force, "force", "f", false, "re-run even if already transcribed or the attempt ceiling is reached")
	Cmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "number of messages processed at once")
	Cmd.Flags().BoolVar(&progress, "progress", false, "show a progress bar even when not attached to a terminal")
	Cmd.Flags().BoolVar(&jsonOut, "json", false, "print every job result as JSON")
}

// Cmd represents the transcribe command
var Cmd = &cobra.Command{
	Use:   "transcribe [message-id...]",
	Short: "Run the transcription pipeline inline",
	Long: `Run the transcription pipeline inline, without the queue.

- Pass message ids, or --session to process every message of a session
  that has no transcript yet.
- Results are persisted exactly as the worker would persist them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && sessionID == "" {
			return fmt.Errorf("pass at least one message id or --session")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, cleanup, err := bootstrap.App(ctx, cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		jobs := make([]model.TranscribeJob, 0, len(args))
		for _, id := range args {
			jobs = append(jobs, model.TranscribeJob{MessageID: id, Force: force})
		}
		if sessionID != "" {
			sessionJobs, err := batch.SessionJobs(ctx, a.Store, sessionID, force)
			if err != nil {
				return err
			}
			jobs = append(jobs, sessionJobs...)
		}
		if len(jobs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to transcribe")
			return nil
		}

		runner := batch.NewRunner(a.Orchestrator, batch.ProgressConfig{
			Enabled: batch.ShouldShowProgress(progress),
			Writer:  cmd.ErrOrStderr(),
		}, parallel, a.Logger)
		summary := runner.Run(ctx, jobs, "Transcribing")

		if jsonOut {
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, res := range summary.Results {
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), summary.String())
		if summary.Failed > 0 {
			return fmt.Errorf("%d message(s) failed", summary.Failed)
		}
		return nil
	},
}
