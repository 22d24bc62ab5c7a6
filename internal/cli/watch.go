package cli

import (
	"context"
	"errors"
	"fmt"
	"jobtracker/internal/apperrors"
	"jobtracker/internal/tracker"
	"jobtracker/pkg/backoff"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

// watchOptions controls how a session is followed after it started.
type watchOptions struct {
	reattach int            // re-attaches allowed after polling failures
	backoff  backoff.Config // delay between re-attaches
}

func addWatchFlags(cmd *cobra.Command, opts *watchOptions) {
	cmd.Flags().IntVar(&opts.reattach, "reattach", 0,
		"Re-attach this many times after a status fetch fails")
	cmd.Flags().DurationVar(&opts.backoff.Initial, "reattach-delay", time.Second,
		"Delay before the first re-attach, doubled on each further one")
}

// sessionWaiter forwards the notification that ends a refresh cycle: the
// job reached a terminal status, or polling stopped on an error.
type sessionWaiter struct {
	ch chan tracker.Event
}

func newSessionWaiter() *sessionWaiter {
	return &sessionWaiter{ch: make(chan tracker.Event, 4)}
}

// Notify implements tracker.Observer.
func (w *sessionWaiter) Notify(e tracker.Event) {
	if e.Type != tracker.EventNotification {
		return
	}
	if e.Snapshot.State.Terminal() || e.Snapshot.Err != nil {
		w.ch <- e
	}
}

// watch blocks until the session ends. It returns nil when the job
// completed and an *ExitError otherwise. Polling failures re-attach to the
// job up to opts.reattach times with exponential backoff in between.
func watch(ctx context.Context, tr *tracker.Tracker, waiter *sessionWaiter, opts watchOptions) error {
	logger := slog.With("component", "cli")
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return interrupt(tr)

		case e := <-waiter.ch:
			snap := e.Snapshot
			if snap.State.Terminal() {
				return exitForSnapshot(snap)
			}

			failures++
			if failures > opts.reattach {
				return &ExitError{
					Code:     ExitFailure,
					Err:      fmt.Errorf("tracking job %s: %w", snap.Handle, snap.Err),
					Reported: true,
				}
			}

			delay := backoff.Exponential(failures, &opts.backoff)
			logger.Warn("Re-attaching after failure", "jobId", snap.Handle, "attempt", failures, "delay", delay, "error", snap.Err)
			if err := backoff.Wait(ctx, failures, &opts.backoff); err != nil {
				return interrupt(tr)
			}

			// Fetch failures come back through the waiter.
			if err := tr.Attach(ctx, snap.Handle); err != nil && !errors.Is(err, apperrors.ErrTransport) {
				return err
			}
		}
	}
}

// interrupt stops polling after a signal.
func interrupt(tr *tracker.Tracker) error {
	if err := tr.Stop(); err != nil {
		slog.Debug("Stop after interrupt", "error", err)
	}
	return &ExitError{Code: ExitInterrupted, Err: errors.New("interrupted")}
}

// exitForSnapshot maps a terminal session to the command result.
func exitForSnapshot(snap tracker.Snapshot) error {
	if snap.State == tracker.StateCompleted {
		return nil
	}
	status := string(snap.State)
	if snap.View != nil {
		status = string(snap.View.Status)
	}
	return &ExitError{
		Code:     ExitFailure,
		Err:      fmt.Errorf("job %s finished with status %s", snap.Handle, status),
		Reported: true,
	}
}
