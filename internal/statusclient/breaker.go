package statusclient

import (
	"context"
	"errors"
	"jobtracker/internal/apperrors"
	"jobtracker/internal/tracker"
	"jobtracker/pkg/circuitbreaker"
	"net/http"
)

// ErrCircuitOpen is the cause of calls rejected while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerClient decorates a tracker.Client with a circuit breaker.
// While the breaker is open calls fail immediately without reaching the backend.
type BreakerClient struct {
	next    tracker.Client
	breaker *circuitbreaker.Breaker
}

// WithBreaker wraps next with breaker.
func WithBreaker(next tracker.Client, breaker *circuitbreaker.Breaker) *BreakerClient {
	return &BreakerClient{next: next, breaker: breaker}
}

// StartJob implements tracker.Client.
func (c *BreakerClient) StartJob(ctx context.Context, workflowKey string, payload map[string]any) (tracker.JobHandle, error) {
	if !c.breaker.Allow() {
		return "", apperrors.Launch("", ErrCircuitOpen)
	}
	handle, err := c.next.StartJob(ctx, workflowKey, payload)
	c.record(err)
	return handle, err
}

// FetchStatus implements tracker.Client.
func (c *BreakerClient) FetchStatus(ctx context.Context, handle tracker.JobHandle) (tracker.RawStatus, error) {
	if !c.breaker.Allow() {
		return tracker.RawStatus{}, apperrors.Transport("fetchStatus", "", ErrCircuitOpen)
	}
	raw, err := c.next.FetchStatus(ctx, handle)
	c.record(err)
	return raw, err
}

// Ready delegates to the wrapped client when it supports readiness probes.
func (c *BreakerClient) Ready(ctx context.Context) error {
	if r, ok := c.next.(interface{ Ready(context.Context) error }); ok {
		return r.Ready(ctx)
	}
	return nil
}

// Breaker returns the underlying breaker.
func (c *BreakerClient) Breaker() *circuitbreaker.Breaker {
	return c.breaker
}

func (c *BreakerClient) record(err error) {
	if isBackendFailure(err) {
		c.breaker.RecordFailure()
		return
	}
	c.breaker.RecordSuccess()
}

// isBackendFailure reports whether err means the backend is unhealthy.
// A 4xx answer or a rejection carrying a server message proves the backend
// is up and does not count.
func isBackendFailure(err error) bool {
	if err == nil {
		return false
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		return true
	}
	switch {
	case appErr.StatusCode >= http.StatusInternalServerError:
		return true
	case appErr.StatusCode >= http.StatusBadRequest:
		return false
	default:
		return appErr.Cause != nil
	}
}
