package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"jobtracker/internal/dispatcher"
	"jobtracker/internal/testutil"
	"jobtracker/internal/tracker"
	"jobtracker/pkg/cloudevent"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	events []*dispatcher.Event
	err    error
}

func (f *fakeDispatcher) Dispatch(e *dispatcher.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeDispatcher) Stats() dispatcher.Stats     { return dispatcher.Stats{} }
func (f *fakeDispatcher) Close(context.Context) error { return nil }

func (f *fakeDispatcher) queued() []*dispatcher.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*dispatcher.Event(nil), f.events...)
}

func TestToCloudEvent(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 1, 15, 4, 5, 0, time.FixedZone("CET", 3600))
	e := tracker.Event{
		Type: tracker.EventTerminal,
		Time: at,
		Snapshot: tracker.Snapshot{
			Handle:        "J1",
			State:         tracker.StateFailed,
			LastRefreshed: at,
			View: &tracker.ViewModel{
				Status:    tracker.StatusFailed,
				RawStatus: "FAILED",
				Duration:  "4.57s",
				Message:   "boom",
				Phases: []tracker.PhaseView{
					{Name: "build", Status: "SUCCESS", Icon: tracker.IconSuccess, Duration: "1.00s"},
					{Name: "deploy", Status: "FAILED", Icon: tracker.IconError},
				},
			},
		},
	}

	ce := ToCloudEvent(e)

	assert.Equal(t, "jobtracker.session.terminal", ce.Type)
	assert.Equal(t, EventSource, ce.Source)
	assert.Equal(t, "J1", ce.Subject)
	assert.Equal(t, at.UTC(), ce.Time)
	assert.Equal(t, "FAILED", ce.Data["state"])
	assert.Equal(t, false, ce.Data["polling"])
	assert.Equal(t, "2026-03-01T14:04:05Z", ce.Data["lastRefreshed"])
	assert.NotContains(t, ce.Data, "error")

	view, ok := ce.Data["view"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "FAILED", view["status"])
	assert.Equal(t, "4.57s", view["duration"])
	assert.Equal(t, "boom", view["message"])

	phases, ok := view["phases"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, phases, 2)
	assert.Equal(t, "1.00s", phases[0]["duration"])
	assert.NotContains(t, phases[1], "duration")
}

func TestToCloudEvent_Notification(t *testing.T) {
	t.Parallel()
	ce := ToCloudEvent(tracker.Event{
		Type:         tracker.EventNotification,
		Snapshot:     tracker.Snapshot{State: tracker.StateIdle, Err: errors.New("quota exceeded")},
		Notification: &tracker.Notification{Title: "Error", Message: "Failed to start job: quota exceeded", Severity: tracker.SeverityError},
	})

	assert.Empty(t, ce.Subject)
	assert.NotContains(t, ce.Data, "jobId")
	assert.NotContains(t, ce.Data, "view")
	assert.Equal(t, "quota exceeded", ce.Data["error"])
	assert.Equal(t, map[string]any{
		"title":    "Error",
		"message":  "Failed to start job: quota exceeded",
		"severity": "error",
	}, ce.Data["notification"])
}

func TestWebhookObserver_Filters(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{}
	obs := NewWebhookObserver(d, WebhookConfig{
		URL:        "https://hooks.example.com/jobs",
		SigningKey: "k",
		Types:      []tracker.EventType{tracker.EventTerminal},
	})

	obs.Notify(tracker.Event{Type: tracker.EventUpdated})
	obs.Notify(tracker.Event{Type: tracker.EventTerminal, Snapshot: tracker.Snapshot{Handle: "J9"}})

	events := d.queued()
	require.Len(t, events, 1)
	assert.Equal(t, "https://hooks.example.com/jobs", events[0].Destination)
	assert.Equal(t, "k", events[0].SigningKey)
	assert.Equal(t, "J9", events[0].Payload.Subject)
}

func TestWebhookObserver_DispatchErrorIsSwallowed(t *testing.T) {
	t.Parallel()
	for _, err := range []error{dispatcher.ErrBufferFull, dispatcher.ErrClosed} {
		obs := NewWebhookObserver(&fakeDispatcher{err: err}, WebhookConfig{URL: "http://localhost"})
		assert.NotPanics(t, func() { obs.Notify(tracker.Event{Type: tracker.EventUpdated}) })
	}
}

type completingClient struct{}

func (completingClient) StartJob(context.Context, string, map[string]any) (tracker.JobHandle, error) {
	return "J-42", nil
}

func (completingClient) FetchStatus(context.Context, tracker.JobHandle) (tracker.RawStatus, error) {
	total := 4567.0
	return tracker.RawStatus{Status: "COMPLETED", TotalOrchestrationTime: &total}, nil
}

func TestWebhookObserver_DeliversTrackerSession(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var received []cloudevent.CloudEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !cloudevent.Verify(body, r.Header.Get(cloudevent.SignatureHeader), "secret") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var ce cloudevent.CloudEvent
		if err := json.Unmarshal(body, &ce); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, ce)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := dispatcher.NewMemory(dispatcher.MemoryConfig{}, nil)
	defer d.Close(context.Background())

	tr := tracker.New(completingClient{},
		tracker.WithInterval(10*time.Millisecond),
		tracker.WithObserver(NewWebhookObserver(d, WebhookConfig{
			URL:        server.URL,
			SigningKey: "secret",
			Types:      []tracker.EventType{tracker.EventLaunched, tracker.EventTerminal},
		})),
	)
	defer tr.Close()

	_, err := tr.Launch(context.Background(), tracker.LaunchParams{WorkflowKey: "deploy"})
	require.NoError(t, err)

	testutil.MustWaitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	byType := map[string]cloudevent.CloudEvent{}
	for _, ce := range received {
		byType[ce.Type] = ce
	}
	require.Contains(t, byType, "jobtracker.session.launched")
	terminal, ok := byType["jobtracker.session.terminal"]
	require.True(t, ok)
	assert.Equal(t, "J-42", terminal.Subject)
	assert.Equal(t, "COMPLETED", terminal.Data["state"])
	view, ok := terminal.Data["view"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "4.57s", view["duration"])
}
