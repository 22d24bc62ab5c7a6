package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"jobtracker/internal/apperrors"
	"jobtracker/internal/config"
	"jobtracker/internal/dispatcher"
	"jobtracker/internal/health"
	"jobtracker/internal/observability"
	"jobtracker/internal/statusclient"
	"jobtracker/internal/testutil"
	"jobtracker/internal/tracker"
	"jobtracker/pkg/circuitbreaker"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient is a tracker.Client with scripted statuses.
type stubClient struct {
	mu       sync.Mutex
	statuses []tracker.RawStatus
	fetches  int
	readyErr error
	closed   atomic.Bool
}

func (c *stubClient) StartJob(ctx context.Context, workflowKey string, payload map[string]any) (tracker.JobHandle, error) {
	return "stub-1", nil
}

func (c *stubClient) FetchStatus(ctx context.Context, handle tracker.JobHandle) (tracker.RawStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.statuses) == 0 {
		return tracker.RawStatus{Status: "RUNNING"}, nil
	}
	raw := c.statuses[min(c.fetches, len(c.statuses)-1)]
	c.fetches++
	return raw, nil
}

func (c *stubClient) Ready(ctx context.Context) error { return c.readyErr }

func (c *stubClient) Close() error {
	c.closed.Store(true)
	return nil
}

func testApp(client tracker.Client) *App {
	app := New()
	app.newBackend = func(*config.TrackerConfig, statusclient.RequestRecorder) (tracker.Client, error) {
		return client, nil
	}
	app.newMetrics = func() (*observability.Metrics, http.Handler, error) {
		return observability.NewMetricsWithRegistry(promclient.NewRegistry())
	}
	return app
}

func testConfig() *config.TrackerConfig {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://jobs.test"
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func TestWire_Minimal(t *testing.T) {
	t.Parallel()
	client := &stubClient{}
	cfg := testConfig()
	cfg.Breaker.Threshold = 0

	rt, err := testApp(client).wire(cfg)
	require.NoError(t, err)

	assert.Nil(t, rt.Metrics)
	assert.Nil(t, rt.Breaker)
	assert.Nil(t, rt.Dispatcher)
	assert.Same(t, client, rt.Client)
	assert.Equal(t, []string{"backend"}, rt.Health.Readiness(context.Background()).Names())

	require.NoError(t, rt.Serve(nil))
	assert.Empty(t, rt.Addr())

	rt.Close()
	assert.True(t, client.closed.Load())
}

func TestWire_BackendError(t *testing.T) {
	t.Parallel()
	app := New()
	app.newBackend = func(*config.TrackerConfig, statusclient.RequestRecorder) (tracker.Client, error) {
		return nil, errors.New("no daemon")
	}

	_, err := app.wire(testConfig())
	assert.EqualError(t, err, "no daemon")
}

func TestWire_StatusMatching(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		lenient bool
		want    tracker.State
	}{
		{"exact by default", false, tracker.StatePolling},
		{"lenient", true, tracker.StateCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			cfg.PollInterval = time.Hour
			cfg.LenientStatus = tt.lenient

			rt, err := testApp(&stubClient{statuses: []tracker.RawStatus{{Status: "succeeded"}}}).wire(cfg)
			require.NoError(t, err)
			defer rt.Close()

			tr := rt.NewTracker()
			defer tr.Close()
			require.NoError(t, tr.Attach(context.Background(), "stub-1"))
			assert.Equal(t, tt.want, tr.Snapshot().State)
		})
	}
}

func TestWire_MetricsSetupError(t *testing.T) {
	t.Parallel()
	app := testApp(&stubClient{})
	app.newMetrics = func() (*observability.Metrics, http.Handler, error) {
		return nil, nil, errors.New("exporter unavailable")
	}
	cfg := testConfig()
	cfg.MetricsPort = "0"

	_, err := app.wire(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInternal)
	assert.EqualError(t, err, "failed to set up metrics: exporter unavailable")
}

func TestWire_ServeListenError(t *testing.T) {
	t.Parallel()
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()
	_, port, err := net.SplitHostPort(busy.Addr().String())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.MetricsPort = port
	rt, err := testApp(&stubClient{}).wire(cfg)
	require.NoError(t, err)
	defer rt.Close()

	err = rt.Serve(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInternal)
	assert.Empty(t, rt.Addr())
}

func TestWire_BreakerWrapsClient(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Breaker = config.BreakerConfig{Threshold: 2, Cooldown: time.Minute}

	rt, err := testApp(&stubClient{}).wire(cfg)
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.Breaker)
	_, ok := rt.Client.(*statusclient.BreakerClient)
	assert.True(t, ok, "client should be wrapped, got %T", rt.Client)

	rt.Breaker.RecordFailure()
	rt.Breaker.RecordFailure()
	resp := rt.Health.Readiness(context.Background())
	assert.Equal(t, health.StatusDegraded, resp.Status)
	assert.Contains(t, resp.Checks["circuit"].Message, "circuit open")
}

func TestWire_StatusServer(t *testing.T) {
	t.Parallel()
	client := &stubClient{statuses: []tracker.RawStatus{{Status: "RUNNING"}}}
	cfg := testConfig()
	cfg.MetricsPort = "0"
	cfg.StatusToken = "tok"

	rt, err := testApp(client).wire(cfg)
	require.NoError(t, err)
	require.NotNil(t, rt.Metrics)

	tr := rt.NewTracker()
	defer tr.Close()
	require.NoError(t, rt.Serve(tr))
	require.NotEmpty(t, rt.Addr())
	base := "http://" + rt.Addr()

	_, err = tr.Launch(context.Background(), tracker.LaunchParams{WorkflowKey: "w"})
	require.NoError(t, err)
	testutil.MustWaitFor(t, func() bool { return tr.Snapshot().View != nil })

	get := func(path, token string) (int, string) {
		req, err := http.NewRequest(http.MethodGet, base+path, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	code, _ := get("/healthz", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = get("/readyz", "")
	assert.Equal(t, http.StatusOK, code)

	code, body := get("/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "tracker_launches_total")

	code, _ = get("/v1/session", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = get("/v1/session", "tok")
	require.Equal(t, http.StatusOK, code)
	var session map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &session))
	assert.Equal(t, "stub-1", session["jobId"])
	assert.Equal(t, "POLLING", session["state"])

	rt.Close()
	_, err = http.Get(base + "/healthz")
	assert.Error(t, err, "server should be shut down")
}

func TestWire_WebhookDelivery(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var types []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		types = append(types, r.Header.Get("Ce-Type"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	client := &stubClient{statuses: []tracker.RawStatus{{Status: "COMPLETED"}}}
	cfg := testConfig()
	cfg.Webhook = config.WebhookConfig{URL: hook.URL, Events: []string{"Terminal"}}

	rt, err := testApp(client).wire(cfg)
	require.NoError(t, err)
	require.NotNil(t, rt.Dispatcher)

	waiter := newSessionWaiter()
	tr := rt.NewTracker(waiter)
	_, err = tr.Launch(context.Background(), tracker.LaunchParams{WorkflowKey: "w"})
	require.NoError(t, err)

	select {
	case e := <-waiter.ch:
		assert.Equal(t, tracker.StateCompleted, e.Snapshot.State)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not complete")
	}
	tr.Close()
	rt.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"jobtracker.session.terminal"}, types)
	assert.Equal(t, dispatcher.Stats{Queued: 1, Delivered: 1}, statsWithoutBreakers(rt.Dispatcher.Stats()))
}

func statsWithoutBreakers(s dispatcher.Stats) dispatcher.Stats {
	s.BreakersTotal = 0
	s.BreakersOpen = 0
	return s
}

func TestEventTypes(t *testing.T) {
	t.Parallel()
	assert.Nil(t, eventTypes(nil))
	assert.Equal(t,
		[]tracker.EventType{tracker.EventTerminal, tracker.EventError},
		eventTypes([]string{" Terminal", "ERROR "}),
	)
}

func TestBreakerCheck(t *testing.T) {
	t.Parallel()
	b := circuitbreaker.New(circuitbreaker.Config{Threshold: 1, Cooldown: time.Hour})
	check := breakerCheck(b)

	assert.NoError(t, check(context.Background()))
	b.RecordFailure()
	err := check(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "circuit open"), err.Error())
}

func TestReadiness_ClientWithoutReadyMethod(t *testing.T) {
	t.Parallel()
	var c tracker.Client = struct{ tracker.Client }{}
	assert.NoError(t, readiness(c).Ready(context.Background()))

	down := &stubClient{readyErr: errors.New("down")}
	assert.EqualError(t, readiness(down).Ready(context.Background()), "down")
}
