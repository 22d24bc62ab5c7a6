// Package notify provides tracker observers that forward session events
// to logs and webhooks.
package notify

import (
	"context"
	"jobtracker/internal/tracker"
	"log/slog"
)

// LogObserver writes session events to a structured logger.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver returns an observer logging through logger, or through the
// default logger when logger is nil.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger.With("component", "session")}
}

// Notify implements tracker.Observer.
func (o *LogObserver) Notify(e tracker.Event) {
	snap := e.Snapshot
	attrs := []any{"jobId", string(snap.Handle), "state", string(snap.State)}

	switch e.Type {
	case tracker.EventLaunched:
		o.logger.Info("Job launched", attrs...)
	case tracker.EventAttached:
		o.logger.Info("Attached to job", attrs...)
	case tracker.EventUpdated:
		if snap.View != nil {
			attrs = append(attrs, "status", string(snap.View.Status), "duration", snap.View.Duration)
		}
		o.logger.Debug("Job status refreshed", attrs...)
	case tracker.EventError:
		o.logger.Warn("Job tracking failed", append(attrs, "error", snap.Err)...)
	case tracker.EventStopped:
		o.logger.Info("Polling stopped", attrs...)
	case tracker.EventTerminal:
		if snap.View != nil {
			attrs = append(attrs, "status", string(snap.View.Status), "duration", snap.View.Duration)
			if snap.View.Message != "" {
				attrs = append(attrs, "message", snap.View.Message)
			}
		}
		o.logger.Info("Job finished", attrs...)
	case tracker.EventNotification:
		if e.Notification == nil {
			return
		}
		level := slog.LevelInfo
		if e.Notification.Severity == tracker.SeverityError {
			level = slog.LevelWarn
		}
		o.logger.Log(context.Background(), level, e.Notification.Message, "title", e.Notification.Title, "jobId", string(snap.Handle))
	}
}

var _ tracker.Observer = (*LogObserver)(nil)
