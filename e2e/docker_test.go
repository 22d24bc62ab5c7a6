//go:build e2e

package e2e

import (
	"context"
	"errors"
	"jobtracker/internal/apperrors"
	dockerclient "jobtracker/internal/statusclient/docker"
	"jobtracker/internal/testutil"
	"jobtracker/internal/tracker"
	"testing"
	"time"
)

// newDockerClient connects to the local Docker daemon, skipping the test
// when none is reachable.
func newDockerClient(t *testing.T) *dockerclient.Client {
	t.Helper()
	client, err := dockerclient.New(dockerclient.Config{PullImages: true})
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ready(ctx); err != nil {
		client.Close()
		t.Skipf("Docker not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestDocker_ContainerRunsToCompletion(t *testing.T) {
	client := newDockerClient(t)

	tr := tracker.New(client, tracker.WithInterval(250*time.Millisecond))
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	handle, err := tr.Launch(ctx, tracker.LaunchParams{
		WorkflowKey: "alpine:latest",
		Payload:     map[string]any{"source": "e2e"},
	})
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	t.Logf("Started container %s", handle)

	testutil.MustWaitFor(t, func() bool {
		return tr.Snapshot().State.Terminal()
	}, testutil.WithTimeout(time.Minute), testutil.WithInterval(250*time.Millisecond))

	snap := tr.Snapshot()
	if snap.State != tracker.StateCompleted {
		t.Fatalf("Expected COMPLETED, got %s (view: %+v)", snap.State, snap.View)
	}
	if snap.View == nil || len(snap.View.Phases) != 2 {
		t.Fatalf("Expected two phases, got %+v", snap.View)
	}
	for _, p := range snap.View.Phases {
		if p.Icon != tracker.IconSuccess {
			t.Errorf("Phase %s: expected success icon, got %s", p.Name, p.Icon)
		}
	}
}

func TestDocker_UnknownImage(t *testing.T) {
	client := newDockerClient(t)

	tr := tracker.New(client)
	defer tr.Close()

	_, err := tr.Launch(context.Background(), tracker.LaunchParams{
		WorkflowKey: "jobtracker-e2e/does-not-exist:never",
	})
	if !errors.Is(err, apperrors.ErrLaunch) {
		t.Fatalf("Expected a launch error, got %v", err)
	}
	if tr.HasSession() {
		t.Error("A failed launch must not start a session")
	}
}
