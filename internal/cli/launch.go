package cli

import (
	"context"
	"encoding/json"
	"errors"
	"jobtracker/internal/apperrors"
	"jobtracker/internal/tracker"

	"github.com/spf13/cobra"
)

// NewLaunchCmd creates the 'launch' command
// Args: workflow-key (required)
// Flags: --payload (JSON object), --reattach, --reattach-delay
func NewLaunchCmd(a *App) *cobra.Command {
	var payload string
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "launch <workflow-key>",
		Short: "Start a job and follow it until it finishes",
		Long: `Start a job for the given workflow key and poll its status until it
completes, fails or errors. Press Ctrl-C to stop watching; the job keeps
running on the backend and can be resumed with 'jobwatch attach'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := launchParams(args[0], payload)
			if err != nil {
				return err
			}

			return a.runSession(cmd, func(ctx context.Context, tr *tracker.Tracker, waiter *sessionWaiter) error {
				if _, err := tr.Launch(ctx, params); err != nil {
					return &ExitError{
						Code:     ExitFailure,
						Err:      err,
						Reported: errors.Is(err, apperrors.ErrLaunch),
					}
				}
				return watch(ctx, tr, waiter, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&payload, "payload", "p", "", "Job payload as a JSON object")
	addWatchFlags(cmd, &opts)

	return cmd
}

func launchParams(workflowKey, payload string) (tracker.LaunchParams, error) {
	params := tracker.LaunchParams{WorkflowKey: workflowKey}
	if payload == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(payload), &params.Payload); err != nil {
		return params, apperrors.Validation("payload", "payload must be a JSON object: "+err.Error())
	}
	return params, nil
}
