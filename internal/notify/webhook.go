package notify

import (
	"errors"
	"jobtracker/internal/dispatcher"
	"jobtracker/internal/tracker"
	"jobtracker/pkg/cloudevent"
	"log/slog"
	"time"
)

// Event source and type prefix of webhook deliveries.
const (
	EventSource     = "jobtracker/cli"
	EventTypePrefix = "jobtracker.session."
)

// WebhookConfig configures a WebhookObserver.
type WebhookConfig struct {
	URL        string              // destination, required
	SigningKey string              // HMAC-SHA256 key, empty = unsigned
	Types      []tracker.EventType // event types to forward, empty = all
}

// WebhookObserver turns session events into CloudEvents and queues them on a
// dispatcher. Notify never blocks on the network.
type WebhookObserver struct {
	dispatcher dispatcher.Dispatcher
	cfg        WebhookConfig
	types      map[tracker.EventType]bool
	logger     *slog.Logger
}

// NewWebhookObserver returns an observer delivering through d.
func NewWebhookObserver(d dispatcher.Dispatcher, cfg WebhookConfig) *WebhookObserver {
	o := &WebhookObserver{
		dispatcher: d,
		cfg:        cfg,
		logger:     slog.With("component", "webhook"),
	}
	if len(cfg.Types) > 0 {
		o.types = make(map[tracker.EventType]bool, len(cfg.Types))
		for _, t := range cfg.Types {
			o.types[t] = true
		}
	}
	return o
}

// Notify implements tracker.Observer.
func (o *WebhookObserver) Notify(e tracker.Event) {
	if o.types != nil && !o.types[e.Type] {
		return
	}

	err := o.dispatcher.Dispatch(&dispatcher.Event{
		Payload:     ToCloudEvent(e),
		Destination: o.cfg.URL,
		SigningKey:  o.cfg.SigningKey,
	})
	switch {
	case err == nil:
	case errors.Is(err, dispatcher.ErrClosed):
		o.logger.Debug("Webhook skipped, dispatcher closed", "type", string(e.Type))
	default:
		o.logger.Warn("Webhook not queued", "type", string(e.Type), "error", err)
	}
}

// ToCloudEvent converts a session event. The subject is the job handle.
func ToCloudEvent(e tracker.Event) *cloudevent.CloudEvent {
	ce := cloudevent.New(EventTypePrefix+string(e.Type), EventSource, string(e.Snapshot.Handle), eventData(e))
	if !e.Time.IsZero() {
		ce.Time = e.Time.UTC()
	}
	return ce
}

func eventData(e tracker.Event) map[string]any {
	data := SnapshotData(e.Snapshot)
	if n := e.Notification; n != nil {
		data["notification"] = map[string]any{
			"title":    n.Title,
			"message":  n.Message,
			"severity": string(n.Severity),
		}
	}
	return data
}

// SnapshotData renders a session snapshot as a JSON-ready map. Optional
// fields are omitted when unset.
func SnapshotData(snap tracker.Snapshot) map[string]any {
	data := map[string]any{
		"state":   string(snap.State),
		"polling": snap.Polling,
	}
	if snap.Handle != "" {
		data["jobId"] = string(snap.Handle)
	}
	if !snap.LastRefreshed.IsZero() {
		data["lastRefreshed"] = snap.LastRefreshed.UTC().Format(time.RFC3339Nano)
	}
	if snap.Err != nil {
		data["error"] = snap.Err.Error()
	}
	if v := snap.View; v != nil {
		phases := make([]map[string]any, 0, len(v.Phases))
		for _, p := range v.Phases {
			phase := map[string]any{"name": p.Name, "status": p.Status, "icon": string(p.Icon)}
			if p.Duration != "" {
				phase["duration"] = p.Duration
			}
			phases = append(phases, phase)
		}
		view := map[string]any{
			"status":    string(v.Status),
			"rawStatus": v.RawStatus,
			"phases":    phases,
		}
		if v.Duration != "" {
			view["duration"] = v.Duration
		}
		if v.Message != "" {
			view["message"] = v.Message
		}
		data["view"] = view
	}
	return data
}

var _ tracker.Observer = (*WebhookObserver)(nil)
