package docker

import (
	"fmt"
	"jobtracker/internal/tracker"
	"time"

	"github.com/docker/docker/api/types/container"
)

// Phase names reported for every container job.
const (
	PhaseCreate = "create"
	PhaseRun    = "run"
)

// rawStatus maps a container state onto the status payload shape the
// tracker reconciles. created is the container's creation timestamp.
func rawStatus(st *container.State, created string, now time.Time) tracker.RawStatus {
	createdAt := parseTime(created)
	startedAt := parseTime(st.StartedAt)
	finishedAt := parseTime(st.FinishedAt)

	createPhase := tracker.PhaseResult{Name: PhaseCreate, Status: "COMPLETED", ElapsedMs: elapsedMs(createdAt, startedAt)}
	runPhase := tracker.PhaseResult{Name: PhaseRun}

	var raw tracker.RawStatus
	switch st.Status {
	case "created":
		raw.Status = "PENDING"
		createPhase.Status = "ACTIVE"
		createPhase.ElapsedMs = nil
		runPhase.Status = "PENDING"
		raw.TotalOrchestrationTime = elapsedMs(createdAt, now)

	case "running", "restarting", "removing":
		raw.Status = "RUNNING"
		runPhase.Status = "IN_PROGRESS"
		runPhase.ElapsedMs = elapsedMs(startedAt, now)
		raw.TotalOrchestrationTime = elapsedMs(createdAt, now)

	case "paused":
		raw.Status = "RUNNING"
		runPhase.Status = "PAUSED"
		runPhase.ElapsedMs = elapsedMs(startedAt, now)
		raw.TotalOrchestrationTime = elapsedMs(createdAt, now)

	case "exited", "dead":
		runPhase.ElapsedMs = elapsedMs(startedAt, finishedAt)
		raw.TotalOrchestrationTime = elapsedMs(createdAt, finishedAt)
		if st.ExitCode == 0 && st.Status == "exited" {
			raw.Status = "COMPLETED"
			runPhase.Status = "COMPLETED"
		} else {
			raw.Status = "FAILED"
			runPhase.Status = "FAILED"
			raw.Error = failureMessage(st)
		}

	default:
		raw.Status = string(st.Status)
		runPhase.Status = string(st.Status)
	}

	raw.PhaseResults = []tracker.PhaseResult{createPhase, runPhase}
	return raw
}

func failureMessage(st *container.State) string {
	switch {
	case st.Error != "":
		return st.Error
	case st.OOMKilled:
		return fmt.Sprintf("container killed (out of memory), exit code %d", st.ExitCode)
	default:
		return fmt.Sprintf("container exited with code %d", st.ExitCode)
	}
}

// parseTime parses a Docker timestamp. Docker reports unset times as the
// zero time, which is returned as-is.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// elapsedMs returns the milliseconds between from and to, or nil when either
// end is unknown or the interval is negative.
func elapsedMs(from, to time.Time) *float64 {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil
	}
	ms := float64(to.Sub(from)) / float64(time.Millisecond)
	return &ms
}
