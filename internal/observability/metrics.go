package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the tracker, backend and webhook metrics:
// - Latency: poll and backend request durations
// - Traffic: launches, polls, requests, deliveries
// - Errors: failed polls, backend errors, failed deliveries
// - Saturation: active sessions, skipped polls, dispatcher queue size
type Metrics struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider

	// Tracker metrics
	LaunchesTotal     metric.Int64Counter
	PollsTotal        metric.Int64Counter
	PollDuration      metric.Float64Histogram
	PollsSkippedTotal metric.Int64Counter
	SessionsActive    metric.Int64UpDownCounter
	TerminalTotal     metric.Int64Counter

	// Backend HTTP metrics
	BackendRequestDuration metric.Float64Histogram
	BackendRequestsTotal   metric.Int64Counter
	BackendErrorsTotal     metric.Int64Counter

	// Dispatcher metrics
	DispatcherDuration  metric.Float64Histogram
	DispatcherDelivered metric.Int64Counter
	DispatcherFailed    metric.Int64Counter
	DispatcherDropped   metric.Int64Counter
	DispatcherRequeued  metric.Int64Counter
	DispatcherQueueSize metric.Int64Gauge
}

// NewMetrics creates all metrics, registers them with the default Prometheus
// registry and installs the meter provider globally. The returned handler
// serves the registry.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	m, err := newMetrics(promclient.DefaultRegisterer)
	if err != nil {
		return nil, nil, err
	}
	otel.SetMeterProvider(m.provider)
	return m, promhttp.Handler(), nil
}

// NewMetricsWithRegistry is like NewMetrics but uses reg and leaves the
// global meter provider untouched.
func NewMetricsWithRegistry(reg *promclient.Registry) (*Metrics, http.Handler, error) {
	m, err := newMetrics(reg)
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

func newMetrics(reg promclient.Registerer) (*Metrics, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("jobtracker")
	m := &Metrics{meter: meter, provider: provider}

	// Tracker metrics
	m.LaunchesTotal, err = meter.Int64Counter(
		"tracker_launches_total",
		metric.WithDescription("Total number of job launches"),
	)
	if err != nil {
		return nil, err
	}

	m.PollsTotal, err = meter.Int64Counter(
		"tracker_polls_total",
		metric.WithDescription("Total number of status fetches"),
	)
	if err != nil {
		return nil, err
	}

	m.PollDuration, err = meter.Float64Histogram(
		"tracker_poll_duration_seconds",
		metric.WithDescription("Status fetch latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.PollsSkippedTotal, err = meter.Int64Counter(
		"tracker_polls_skipped_total",
		metric.WithDescription("Ticks skipped because a fetch was still in flight"),
	)
	if err != nil {
		return nil, err
	}

	m.SessionsActive, err = meter.Int64UpDownCounter(
		"tracker_sessions_active",
		metric.WithDescription("Number of sessions currently polling (saturation)"),
	)
	if err != nil {
		return nil, err
	}

	m.TerminalTotal, err = meter.Int64Counter(
		"tracker_terminal_total",
		metric.WithDescription("Jobs observed reaching a terminal status"),
	)
	if err != nil {
		return nil, err
	}

	// Backend HTTP metrics
	m.BackendRequestDuration, err = meter.Float64Histogram(
		"backend_request_duration_seconds",
		metric.WithDescription("Job API request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.BackendRequestsTotal, err = meter.Int64Counter(
		"backend_requests_total",
		metric.WithDescription("Total number of job API requests"),
	)
	if err != nil {
		return nil, err
	}

	m.BackendErrorsTotal, err = meter.Int64Counter(
		"backend_errors_total",
		metric.WithDescription("Job API requests without a 2xx response"),
	)
	if err != nil {
		return nil, err
	}

	// Dispatcher metrics
	m.DispatcherDuration, err = meter.Float64Histogram(
		"dispatcher_duration_seconds",
		metric.WithDescription("Webhook delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.DispatcherDelivered, err = meter.Int64Counter(
		"dispatcher_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	)
	if err != nil {
		return nil, err
	}

	m.DispatcherFailed, err = meter.Int64Counter(
		"dispatcher_failed_total",
		metric.WithDescription("Total events failed after retries"),
	)
	if err != nil {
		return nil, err
	}

	m.DispatcherDropped, err = meter.Int64Counter(
		"dispatcher_dropped_total",
		metric.WithDescription("Total events dropped (buffer full or max requeues)"),
	)
	if err != nil {
		return nil, err
	}

	m.DispatcherRequeued, err = meter.Int64Counter(
		"dispatcher_requeued_total",
		metric.WithDescription("Total events requeued due to open circuit"),
	)
	if err != nil {
		return nil, err
	}

	m.DispatcherQueueSize, err = meter.Int64Gauge(
		"dispatcher_queue_size",
		metric.WithDescription("Current number of events in dispatcher queue (saturation)"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordLaunch records a job start attempt.
func (m *Metrics) RecordLaunch(ctx context.Context, workflowKey string, success bool) {
	m.LaunchesTotal.Add(ctx, 1, metric.WithAttributes(workflowAttr(workflowKey), successAttr(success)))
}

// RecordPoll records a completed status fetch.
func (m *Metrics) RecordPoll(ctx context.Context, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(outcomeAttr(success))
	m.PollsTotal.Add(ctx, 1, attrs)
	m.PollDuration.Record(ctx, durationSeconds, attrs)
}

// RecordPollSkipped records a tick dropped by the in-flight guard.
func (m *Metrics) RecordPollSkipped(ctx context.Context) {
	m.PollsSkippedTotal.Add(ctx, 1)
}

// RecordSessionActive adjusts the number of polling sessions.
func (m *Metrics) RecordSessionActive(ctx context.Context, delta int64) {
	m.SessionsActive.Add(ctx, delta)
}

// RecordTerminal records a job reaching a terminal status.
func (m *Metrics) RecordTerminal(ctx context.Context, status string) {
	m.TerminalTotal.Add(ctx, 1, metric.WithAttributes(terminalStatusAttr(status)))
}

// RecordBackendRequest records a job API round-trip.
func (m *Metrics) RecordBackendRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.BackendRequestDuration.Record(ctx, durationSeconds, attrs)
	m.BackendRequestsTotal.Add(ctx, 1, attrs)

	if statusCode < 200 || statusCode >= 300 {
		m.BackendErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordDispatcherDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordDispatcherDelivered(ctx context.Context, durationSeconds float64) {
	m.DispatcherDelivered.Add(ctx, 1)
	m.DispatcherDuration.Record(ctx, durationSeconds)
}

// RecordDispatcherFailed records a failed event delivery.
func (m *Metrics) RecordDispatcherFailed(ctx context.Context) {
	m.DispatcherFailed.Add(ctx, 1)
}

// RecordDispatcherDropped records a dropped event.
func (m *Metrics) RecordDispatcherDropped(ctx context.Context) {
	m.DispatcherDropped.Add(ctx, 1)
}

// RecordDispatcherRequeued records an event requeued due to an open circuit.
func (m *Metrics) RecordDispatcherRequeued(ctx context.Context) {
	m.DispatcherRequeued.Add(ctx, 1)
}

// RecordDispatcherQueueSize records the current queue size.
func (m *Metrics) RecordDispatcherQueueSize(ctx context.Context, size int64) {
	m.DispatcherQueueSize.Record(ctx, size)
}
