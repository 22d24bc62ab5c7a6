package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"jobtracker/internal/api"
	"jobtracker/internal/apperrors"
	"jobtracker/internal/config"
	"jobtracker/internal/dispatcher"
	"jobtracker/internal/health"
	"jobtracker/internal/notify"
	"jobtracker/internal/observability"
	"jobtracker/internal/statusclient"
	dockerclient "jobtracker/internal/statusclient/docker"
	"jobtracker/internal/tracker"
	"jobtracker/pkg/circuitbreaker"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// shutdownTimeout bounds webhook flushing and server shutdown on exit.
const shutdownTimeout = 10 * time.Second

// backendFactory builds the status client selected by cfg. rec is nil when
// metrics are disabled.
type backendFactory func(cfg *config.TrackerConfig, rec statusclient.RequestRecorder) (tracker.Client, error)

func defaultBackend(cfg *config.TrackerConfig, rec statusclient.RequestRecorder) (tracker.Client, error) {
	switch cfg.Backend {
	case config.BackendDocker:
		c, err := dockerclient.New(dockerclient.Config{
			PullImages: cfg.Docker.PullImages,
			ExtraHosts: cfg.Docker.ExtraHosts,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		c, err := statusclient.NewHTTPClient(statusclient.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.RequestTimeout,
			Metrics: rec,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func defaultMetrics() (*observability.Metrics, http.Handler, error) {
	return observability.NewMetrics(context.Background())
}

// Runtime holds the components wired for one command invocation.
type Runtime struct {
	Config     *config.TrackerConfig
	Client     tracker.Client
	Health     *health.Checker
	Breaker    *circuitbreaker.Breaker      // nil when disabled
	Metrics    *observability.Metrics       // nil without a metrics port
	Dispatcher *dispatcher.MemoryDispatcher // nil without a webhook

	metricsHandler http.Handler
	observers      tracker.Observers
	server         *http.Server
	listener       net.Listener
	closers        []io.Closer
	logger         *slog.Logger
}

// wire assembles the runtime for cfg.
func (a *App) wire(cfg *config.TrackerConfig) (*Runtime, error) {
	rt := &Runtime{
		Config: cfg,
		logger: slog.With("component", "cli"),
	}

	var rec statusclient.RequestRecorder
	if cfg.MetricsPort != "" {
		metrics, handler, err := a.newMetrics()
		if err != nil {
			return nil, apperrors.Internal("failed to set up metrics", err)
		}
		rt.Metrics = metrics
		rt.metricsHandler = handler
		rec = metrics
	}

	client, err := a.newBackend(cfg, rec)
	if err != nil {
		return nil, err
	}
	if c, ok := client.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}

	checks := []health.Check{{Name: "backend", Checker: readiness(client)}}

	if cfg.Breaker.Threshold > 0 {
		rt.Breaker = circuitbreaker.New(circuitbreaker.Config{
			Threshold: cfg.Breaker.Threshold,
			Cooldown:  cfg.Breaker.Cooldown,
			OnStateChange: func(_ string, from, to circuitbreaker.State) {
				rt.logger.Warn("Backend circuit changed", "from", from.String(), "to", to.String())
			},
		})
		client = statusclient.WithBreaker(client, rt.Breaker)
		checks = append(checks, health.Check{
			Name:     "circuit",
			Checker:  breakerCheck(rt.Breaker),
			Optional: true,
		})
	}
	rt.Client = client
	rt.Health = health.NewChecker(checks...)

	if cfg.Webhook.URL != "" {
		var drec dispatcher.MetricsRecorder
		if rt.Metrics != nil {
			drec = rt.Metrics
		}
		rt.Dispatcher = dispatcher.NewMemory(dispatcher.LoadConfigFromEnv(), drec)
		rt.observers = append(rt.observers, notify.NewWebhookObserver(rt.Dispatcher, notify.WebhookConfig{
			URL:        cfg.Webhook.URL,
			SigningKey: cfg.Webhook.SigningKey,
			Types:      eventTypes(cfg.Webhook.Events),
		}))
		rt.logger.Info("Webhook delivery enabled", "url", cfg.Webhook.URL, "signed", cfg.Webhook.SigningKey != "")
	}

	if cfg.SlogLevel() <= slog.LevelDebug {
		rt.observers = append(rt.observers, notify.NewLogObserver(nil))
	}

	return rt, nil
}

// NewTracker creates a tracker reporting to the runtime's observers
// followed by extra.
func (rt *Runtime) NewTracker(extra ...tracker.Observer) *tracker.Tracker {
	opts := []tracker.Option{
		tracker.WithInterval(rt.Config.PollInterval),
		tracker.WithReconciler(tracker.Reconciler{
			StrictIcons:   rt.Config.StrictIcons,
			LenientStatus: rt.Config.LenientStatus,
		}),
	}
	for _, o := range rt.observers {
		opts = append(opts, tracker.WithObserver(o))
	}
	for _, o := range extra {
		opts = append(opts, tracker.WithObserver(o))
	}
	if rt.Metrics != nil {
		opts = append(opts, tracker.WithMetrics(rt.Metrics))
	}
	return tracker.New(rt.Client, opts...)
}

// Serve starts the status server when a metrics port is configured.
// session may be nil for commands without a session.
func (rt *Runtime) Serve(session api.SessionSource) error {
	if rt.Config.MetricsPort == "" {
		return nil
	}

	var d dispatcher.Dispatcher
	if rt.Dispatcher != nil {
		d = rt.Dispatcher
	}
	router := api.NewRouter(api.RouterConfig{
		Session:       session,
		Metrics:       rt.metricsHandler,
		HealthChecker: rt.Health,
		Dispatcher:    d,
		Token:         rt.Config.StatusToken,
	})

	ln, err := net.Listen("tcp", ":"+rt.Config.MetricsPort)
	if err != nil {
		return apperrors.Internal("failed to listen on metrics port", err)
	}
	rt.listener = ln
	rt.server = &http.Server{
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		rt.logger.Info("Starting status server", "addr", ln.Addr().String())
		if err := rt.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("Status server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the address of the status server, "" when it is not running.
func (rt *Runtime) Addr() string {
	if rt.listener == nil {
		return ""
	}
	return rt.listener.Addr().String()
}

// Close shuts the runtime down: the status server first, then pending
// webhook deliveries, metrics and the backend client.
func (rt *Runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	rt.Health.SetShuttingDown()

	if rt.server != nil {
		if err := rt.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("Status server shutdown error", "error", err)
		}
	}

	if rt.Dispatcher != nil {
		if err := rt.Dispatcher.Close(ctx); err != nil {
			rt.logger.Error("Dispatcher shutdown error", "error", err)
		}
		stats := rt.Dispatcher.Stats()
		rt.logger.Info("Dispatcher stopped",
			"delivered", stats.Delivered,
			"failed", stats.Failed,
			"dropped", stats.Dropped,
		)
	}

	if rt.Metrics != nil {
		if err := rt.Metrics.Shutdown(ctx); err != nil {
			rt.logger.Debug("Metrics shutdown error", "error", err)
		}
	}

	for _, c := range rt.closers {
		if err := c.Close(); err != nil {
			rt.logger.Debug("Backend close error", "error", err)
		}
	}
}

// readiness adapts a client to a readiness check. Clients without a Ready
// method are always ready.
func readiness(client tracker.Client) health.ReadinessChecker {
	if r, ok := client.(health.ReadinessChecker); ok {
		return r
	}
	return health.CheckFunc(func(context.Context) error { return nil })
}

func breakerCheck(b *circuitbreaker.Breaker) health.CheckFunc {
	return func(context.Context) error {
		if state := b.State(); state != circuitbreaker.Closed {
			return fmt.Errorf("circuit %s after %d failures", state, b.Failures())
		}
		return nil
	}
}

// eventTypes maps configured webhook event names to tracker event types.
func eventTypes(names []string) []tracker.EventType {
	if len(names) == 0 {
		return nil
	}
	types := make([]tracker.EventType, 0, len(names))
	for _, name := range names {
		types = append(types, tracker.EventType(strings.ToLower(strings.TrimSpace(name))))
	}
	return types
}
