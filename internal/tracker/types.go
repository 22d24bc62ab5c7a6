// Package tracker implements client-side tracking of asynchronous jobs.
//
// A Tracker launches a job (or attaches to one started elsewhere), polls its
// status through a Client, reconciles each raw payload into a ViewModel and
// stops polling once the job reaches a terminal status.
//
// # Session lifecycle
//
//	IDLE -> LAUNCHING -> POLLING -> COMPLETED | FAILED | ERRORED
//	                        \-> STOPPED
//
// Attach enters POLLING directly after one synchronous status fetch.
// Failures during background polling stop the scheduler and are recorded on
// the session; callers observe them the same way they observe progress.
package tracker

import (
	"context"
	"time"
)

// DefaultInterval is the polling interval used when none is configured.
const DefaultInterval = 3 * time.Second

// JobHandle identifies a job on the backend. The zero value means no job.
type JobHandle string

// Client is the request/response boundary to a job backend.
// Implementations perform a single round-trip per call and never retry.
type Client interface {
	// StartJob starts a new job and returns its handle.
	// Failures are classified as apperrors.ErrLaunch.
	StartJob(ctx context.Context, workflowKey string, payload map[string]any) (JobHandle, error)

	// FetchStatus returns the current raw status of a job.
	// Failures are classified as apperrors.ErrTransport.
	FetchStatus(ctx context.Context, handle JobHandle) (RawStatus, error)
}

// LaunchParams describes a job to start.
type LaunchParams struct {
	WorkflowKey string
	Payload     map[string]any
}

// RawStatus is the unprocessed status payload returned by a backend.
// Every field may be absent.
type RawStatus struct {
	Status                 string        `json:"status"`
	PhaseResults           []PhaseResult `json:"phaseResults,omitempty"`
	TotalOrchestrationTime *float64      `json:"totalOrchestrationTime,omitempty"` // milliseconds
	Error                  string        `json:"error,omitempty"`
}

// PhaseResult is one entry of RawStatus.PhaseResults.
type PhaseResult struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	ElapsedMs *float64 `json:"elapsedMs,omitempty"`
}

// OverallStatus is the normalized status of a job.
type OverallStatus string

const (
	StatusRunning   OverallStatus = "RUNNING"
	StatusCompleted OverallStatus = "COMPLETED"
	StatusFailed    OverallStatus = "FAILED"
	StatusError     OverallStatus = "ERROR"
	StatusUnknown   OverallStatus = "UNKNOWN"
)

// Terminal reports whether no further progress is expected.
func (s OverallStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError:
		return true
	default:
		return false
	}
}

// Icon names the display icon of a phase.
type Icon string

const (
	IconSuccess    Icon = "check"
	IconError      Icon = "error"
	IconInProgress Icon = "spinner"
	IconUnknown    Icon = "unknown" // only produced with strict icons
)

// ViewModel is the reconciled, display-ready form of a RawStatus.
// A published ViewModel is never modified; each refresh replaces it.
type ViewModel struct {
	Status    OverallStatus
	RawStatus string // status code as reported by the backend
	Phases    []PhaseView
	Duration  string // e.g. "4.57s"
	Message   string // backend error text, if any
}

// PhaseView is one display row of a ViewModel.
type PhaseView struct {
	Name     string
	Status   string
	Icon     Icon
	Duration string // empty when the phase carries no timing
}

func (v *ViewModel) clone() *ViewModel {
	if v == nil {
		return nil
	}
	c := *v
	if v.Phases != nil {
		c.Phases = make([]PhaseView, len(v.Phases))
		copy(c.Phases, v.Phases)
	}
	return &c
}

// State is the lifecycle state of a tracking session.
type State string

const (
	StateIdle      State = "IDLE"
	StateLaunching State = "LAUNCHING"
	StatePolling   State = "POLLING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateErrored   State = "ERRORED"
	StateStopped   State = "STOPPED"
)

// Terminal reports whether the backend reported a final outcome.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateErrored:
		return true
	default:
		return false
	}
}

func terminalState(s OverallStatus) State {
	switch s {
	case StatusCompleted:
		return StateCompleted
	case StatusFailed:
		return StateFailed
	default:
		return StateErrored
	}
}

// Severity is the display severity of a session or notification.
type Severity string

const (
	SeverityNeutral Severity = "neutral"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// SeverityOf maps a view to its display severity. A nil view is neutral.
func SeverityOf(v *ViewModel) Severity {
	if v == nil {
		return SeverityNeutral
	}
	switch v.Status {
	case StatusCompleted:
		return SeveritySuccess
	case StatusFailed, StatusError:
		return SeverityError
	default:
		return SeverityWarning
	}
}

// Snapshot is a point-in-time copy of a tracking session.
type Snapshot struct {
	Handle        JobHandle
	State         State
	View          *ViewModel // nil until the first successful refresh
	LastRefreshed time.Time  // zero until the first successful refresh
	Err           error      // last recorded error, cleared by a successful refresh
	Polling       bool
}

// Running reports whether the session is non-terminal and actively polling.
func (s Snapshot) Running() bool {
	return s.State == StatePolling && s.Polling
}
