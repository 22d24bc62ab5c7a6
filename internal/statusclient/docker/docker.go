// Package docker implements tracker.Client on top of the Docker API.
// Every job is a single labelled container on the host daemon: the workflow
// key names the image and the payload is handed over as JSON in the
// JOB_PAYLOAD environment variable.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"jobtracker/internal/apperrors"
	"jobtracker/internal/tracker"
	"log/slog"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Labels set on every container started by the client.
const (
	LabelManagedBy = "managed-by"
	LabelWorkflow  = "job.workflow"
	managedBy      = "jobtracker"
)

// PayloadEnv is the environment variable carrying the JSON payload.
const PayloadEnv = "JOB_PAYLOAD"

// dockerAPI is the subset of the Docker client used here.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// Config holds settings for the Docker client.
type Config struct {
	PullImages bool     // pull the image before every start
	ExtraHosts []string // extra /etc/hosts entries (e.g. "api.test:host-gateway")
}

// Client starts jobs as containers and reports their state.
type Client struct {
	api    dockerAPI
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// New connects to the daemon configured by the DOCKER_* environment.
func New(cfg Config) (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newWithAPI(cli, cfg), nil
}

func newWithAPI(api dockerAPI, cfg Config) *Client {
	return &Client{
		api:    api,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.With("component", "statusclient.docker"),
	}
}

// StartJob creates and starts a container running image workflowKey.
func (c *Client) StartJob(ctx context.Context, workflowKey string, payload map[string]any) (tracker.JobHandle, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", apperrors.Launch("", fmt.Errorf("failed to marshal payload: %w", err))
	}

	if c.cfg.PullImages {
		if err := c.pullImage(ctx, workflowKey); err != nil {
			return "", apperrors.Launch(notFoundMessage(err, "image not found: "+workflowKey), fmt.Errorf("pull image: %w", err))
		}
	}

	containerConfig := &container.Config{
		Image: workflowKey,
		Env:   []string{fmt.Sprintf("%s=%s", PayloadEnv, data)},
		Labels: map[string]string{
			LabelManagedBy: managedBy,
			LabelWorkflow:  workflowKey,
		},
	}
	hostConfig := &container.HostConfig{
		ExtraHosts: c.cfg.ExtraHosts,
	}

	name := "jobtracker-" + uuid.NewString()
	resp, err := c.api.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return "", apperrors.Launch(notFoundMessage(err, "image not found: "+workflowKey), fmt.Errorf("create container: %w", err))
	}

	if err := c.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = c.api.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})
		return "", apperrors.Launch("", fmt.Errorf("start container: %w", err))
	}

	c.logger.Info("Container started", "image", workflowKey, "containerId", resp.ID, "name", name)
	return tracker.JobHandle(resp.ID), nil
}

// FetchStatus inspects the container and reports it as a two-phase job.
func (c *Client) FetchStatus(ctx context.Context, handle tracker.JobHandle) (tracker.RawStatus, error) {
	const op = "docker.fetchStatus"

	inspect, err := c.api.ContainerInspect(ctx, string(handle))
	if err != nil {
		return tracker.RawStatus{}, apperrors.Transport(op, notFoundMessage(err, "container not found: "+string(handle)), err)
	}
	if inspect.ContainerJSONBase == nil || inspect.State == nil {
		return tracker.RawStatus{}, apperrors.Transport(op, "", fmt.Errorf("inspect returned no state"))
	}

	return rawStatus(inspect.State, inspect.Created, c.now()), nil
}

// Ready checks if the Docker daemon is reachable and responsive.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.api.Ping(ctx)
	return err
}

// Close releases the daemon connection.
func (c *Client) Close() error {
	return c.api.Close()
}

func (c *Client) pullImage(ctx context.Context, ref string) error {
	reader, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func notFoundMessage(err error, msg string) string {
	if cerrdefs.IsNotFound(err) {
		return msg
	}
	return ""
}
