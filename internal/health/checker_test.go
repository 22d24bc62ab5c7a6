package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type countingChecker struct {
	calls atomic.Int32
	err   error
}

func (c *countingChecker) Ready(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker()

	response := checker.Liveness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_NoBackend(t *testing.T) {
	t.Parallel()
	response := NewChecker().Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}
	check, ok := response.Checks["backend"]
	if !ok {
		t.Fatal("Expected backend check to be present")
	}
	if check.Message != "backend not configured" {
		t.Errorf("unexpected message %q", check.Message)
	}
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		checks   []Check
		expected Status
	}{
		{
			name:     "healthy backend",
			checks:   []Check{{Name: "backend", Checker: &countingChecker{}}},
			expected: StatusHealthy,
		},
		{
			name:     "failing backend",
			checks:   []Check{{Name: "backend", Checker: &countingChecker{err: errors.New("connection refused")}}},
			expected: StatusUnhealthy,
		},
		{
			name:     "nil checker",
			checks:   []Check{{Name: "backend"}},
			expected: StatusUnhealthy,
		},
		{
			name: "failing optional check degrades",
			checks: []Check{
				{Name: "backend", Checker: &countingChecker{}},
				{Name: "circuit", Checker: &countingChecker{err: errors.New("open")}, Optional: true},
			},
			expected: StatusDegraded,
		},
		{
			name: "required failure wins over degraded",
			checks: []Check{
				{Name: "circuit", Checker: &countingChecker{err: errors.New("open")}, Optional: true},
				{Name: "backend", Checker: &countingChecker{err: errors.New("down")}},
			},
			expected: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := NewChecker(tt.checks...).Readiness(context.Background())
			if response.Status != tt.expected {
				t.Errorf("Status = %s, want %s (checks %+v)", response.Status, tt.expected, response.Checks)
			}
			if len(response.Checks) != len(tt.checks) {
				t.Errorf("got %d check results, want %d", len(response.Checks), len(tt.checks))
			}
		})
	}
}

func TestChecker_ReadinessIsCached(t *testing.T) {
	t.Parallel()
	backend := &countingChecker{}
	checker := NewChecker(Check{Name: "backend", Checker: backend})

	checker.Readiness(context.Background())
	checker.Readiness(context.Background())

	if got := backend.calls.Load(); got != 1 {
		t.Errorf("expected one backend call within the cache window, got %d", got)
	}
}

func TestChecker_Timeout(t *testing.T) {
	t.Parallel()
	slow := CheckFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	checker := NewChecker(Check{Name: "backend", Checker: slow}).WithTimeout(20 * time.Millisecond)

	response := checker.Readiness(context.Background())
	if response.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", response.Status)
	}
	if msg := response.Checks["backend"].Message; msg != context.DeadlineExceeded.Error() {
		t.Errorf("Message = %q", msg)
	}
}

func TestChecker_SetShuttingDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(Check{Name: "backend", Checker: &countingChecker{}})
	if !checker.Readiness(context.Background()).IsHealthy() {
		t.Fatal("expected healthy before shutdown")
	}

	checker.SetShuttingDown()

	response := checker.Readiness(context.Background())
	if response.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy after shutdown, got %s", response.Status)
	}
	if _, ok := response.Checks["shutdown"]; !ok {
		t.Error("expected shutdown check")
	}
}

func TestChecker_ReadinessHandler(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		checks   []Check
		wantCode int
	}{
		{"healthy", []Check{{Name: "backend", Checker: &countingChecker{}}}, http.StatusOK},
		{"degraded", []Check{
			{Name: "backend", Checker: &countingChecker{}},
			{Name: "circuit", Checker: &countingChecker{err: errors.New("open")}, Optional: true},
		}, http.StatusOK},
		{"unhealthy", []Check{{Name: "backend", Checker: &countingChecker{err: errors.New("down")}}}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			NewChecker(tt.checks...).ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body Response
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if string(body.Status) != tt.name {
				t.Errorf("status = %s, want %s", body.Status, tt.name)
			}
		})
	}
}

func TestChecker_LivenessHandler(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	NewChecker().LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d", rec.Code)
	}
}

func TestResponse_Names(t *testing.T) {
	t.Parallel()
	r := &Response{Checks: map[string]CheckResult{"circuit": {}, "backend": {}}}
	names := r.Names()
	if len(names) != 2 || names[0] != "backend" || names[1] != "circuit" {
		t.Errorf("Names() = %v", names)
	}
}

func TestResponse_IsHealthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"healthy", StatusHealthy, true},
		{"unhealthy", StatusUnhealthy, false},
		{"degraded", StatusDegraded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := &Response{Status: tt.status}
			if response.IsHealthy() != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", response.IsHealthy(), tt.expected)
			}
		})
	}
}
