// Package statusclient provides tracker.Client implementations that talk to a
// remote job service.
package statusclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"jobtracker/internal/apperrors"
	"jobtracker/internal/tracker"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseBodySize limits how much of a response body is read.
const maxResponseBodySize = 1 << 20 // 1 MB

// DefaultTimeout bounds a single request when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// RequestRecorder is an optional interface for recording backend request
// metrics. statusCode is 0 when no response was received.
type RequestRecorder interface {
	RecordBackendRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64)
}

// Config holds settings for an HTTPClient.
type Config struct {
	BaseURL string          // e.g. http://localhost:8080
	APIKey  string          // sent as a Bearer token when set
	Timeout time.Duration   // per request (default: DefaultTimeout)
	Metrics RequestRecorder // optional
}

// HTTPClient starts and inspects jobs through the jobs HTTP API:
//
//	POST {base}/v1/jobs          {"workflowKey": "...", "payload": {...}}
//	GET  {base}/v1/jobs/{jobId}  status payload
//	GET  {base}/readyz           readiness probe
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	metrics RequestRecorder
	logger  *slog.Logger
}

// NewHTTPClient creates a client with pooled transport settings.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperrors.Validation("baseURL", fmt.Sprintf("invalid base URL %q", cfg.BaseURL))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		metrics: cfg.Metrics,
		logger:  slog.With("component", "statusclient", "baseURL", cfg.BaseURL),
	}, nil
}

type startRequest struct {
	WorkflowKey string         `json:"workflowKey"`
	Payload     map[string]any `json:"payload"`
}

// startResponse covers both {ok, jobId, error} and the {id, status}
// acceptance shape of the jobs service.
type startResponse struct {
	OK    *bool  `json:"ok"`
	JobID string `json:"jobId"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// StartJob submits a workflow. Failures are classified as apperrors.ErrLaunch.
func (c *HTTPClient) StartJob(ctx context.Context, workflowKey string, payload map[string]any) (tracker.JobHandle, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(startRequest{WorkflowKey: workflowKey, Payload: payload})
	if err != nil {
		return "", apperrors.Launch("", fmt.Errorf("failed to marshal request: %w", err))
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "/v1/jobs", body)
	if err != nil {
		return "", apperrors.Launch("", err)
	}
	if status < 200 || status >= 300 {
		return "", apperrors.LaunchFromHTTPStatus(status, errorMessage(respBody))
	}

	var resp startResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", apperrors.Launch("", fmt.Errorf("invalid response: %w", err))
	}
	if resp.OK != nil && !*resp.OK {
		return "", apperrors.Launch(resp.Error, nil)
	}

	id := resp.JobID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return "", apperrors.Launch(resp.Error, errors.New("response has no job id"))
	}

	c.logger.Debug("Job submitted", "workflowKey", workflowKey, "jobId", id)
	return tracker.JobHandle(id), nil
}

// FetchStatus reads the current status of a job. The body is decoded
// leniently; failures are classified as apperrors.ErrTransport.
func (c *HTTPClient) FetchStatus(ctx context.Context, handle tracker.JobHandle) (tracker.RawStatus, error) {
	const op = "http.fetchStatus"

	status, body, err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(string(handle)), nil)
	if err != nil {
		return tracker.RawStatus{}, apperrors.Transport(op, "", err)
	}
	if status < 200 || status >= 300 {
		return tracker.RawStatus{}, apperrors.FromHTTPStatus(op, status, errorMessage(body))
	}

	return tracker.ParseRawStatus(body), nil
}

// Ready probes the service's readiness endpoint.
func (c *HTTPClient) Ready(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, "/readyz", nil)
	if err != nil {
		return fmt.Errorf("readiness probe failed: %w", err)
	}
	if status != http.StatusOK {
		return apperrors.FromHTTPStatus("http.ready", status, errorMessage(body))
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.record(ctx, method, path, 0, start)
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.record(ctx, method, path, resp.StatusCode, start)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("HTTP request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return resp.StatusCode, respBody, nil
}

func (c *HTTPClient) record(ctx context.Context, method, path string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordBackendRequest(ctx, method, path, status, time.Since(start).Seconds())
	}
}

// errorMessage extracts the "error" field of a JSON error body. Plain-text
// bodies (such as http.Error output) are returned trimmed.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		return payload.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
