package cli

import (
	"context"
	"jobtracker/internal/tracker"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// sessionFunc drives one tracking session.
type sessionFunc func(ctx context.Context, tr *tracker.Tracker, waiter *sessionWaiter) error

// runSession loads the configuration, wires the runtime and runs fn with a
// tracker rendering to the command output. ctx is cancelled on SIGINT and
// SIGTERM. The tracker is closed before the runtime so that final events
// still reach the webhook dispatcher.
func (a *App) runSession(cmd *cobra.Command, fn sessionFunc) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := a.wire(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	waiter := newSessionWaiter()
	tr := rt.NewTracker(NewRenderer(cmd.OutOrStdout()), waiter)
	defer tr.Close()

	if err := rt.Serve(tr); err != nil {
		return err
	}
	return fn(ctx, tr, waiter)
}
