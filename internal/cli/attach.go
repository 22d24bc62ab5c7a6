package cli

import (
	"context"
	"errors"
	"jobtracker/internal/apperrors"
	"jobtracker/internal/tracker"

	"github.com/spf13/cobra"
)

// NewAttachCmd creates the 'attach' command for following a job started
// elsewhere
// Args: job-id (required)
func NewAttachCmd(a *App) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "attach <job-id>",
		Short: "Follow a running job until it finishes",
		Long: `Attach to an existing job and poll its status until it finishes.

When a status fetch fails, polling stops. Use --reattach to resume
automatically with exponential backoff between attempts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle := tracker.JobHandle(args[0])

			return a.runSession(cmd, func(ctx context.Context, tr *tracker.Tracker, waiter *sessionWaiter) error {
				// Fetch failures come back through the waiter.
				if err := tr.Attach(ctx, handle); err != nil && !errors.Is(err, apperrors.ErrTransport) {
					return err
				}
				return watch(ctx, tr, waiter, opts)
			})
		},
	}

	addWatchFlags(cmd, &opts)

	return cmd
}

// NewStatusCmd creates the 'status' command: one fetch, no polling
// Args: job-id (required)
func NewStatusCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current status of a job once",
		Long: `Fetch and render the status of a job once.

The exit status is non-zero when the fetch fails or the job failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle := tracker.JobHandle(args[0])

			return a.runSession(cmd, func(ctx context.Context, tr *tracker.Tracker, _ *sessionWaiter) error {
				if err := tr.Attach(ctx, handle); err != nil {
					return &ExitError{
						Code:     ExitFailure,
						Err:      err,
						Reported: errors.Is(err, apperrors.ErrTransport),
					}
				}
				snap := tr.Snapshot()
				if snap.State.Terminal() {
					return exitForSnapshot(snap)
				}
				return nil
			})
		},
	}

	return cmd
}
