// Package backend is the typed request/response shim over the remote agent
// backend's HTTP endpoints. It holds no state beyond the base URL and client;
// preflight gating happens in the app layer before any call lands here.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to the remote agent backend.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the given base URL. A zero timeout defaults to 60s,
// the hard deadline for feature calls.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health probes GET /health. Any non-2xx or transport failure is an error.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]any
	return c.get(ctx, "/health", &out)
}

// Evaluate scores an output against a goal via POST /evaluate.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResponse, error) {
	var out EvaluateResponse
	if err := c.post(ctx, "/evaluate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Mutate requests a workflow mutation via POST /mutate.
func (c *Client) Mutate(ctx context.Context, req MutateRequest) (*MutateResponse, error) {
	var out MutateResponse
	if err := c.post(ctx, "/mutate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BanditStatus fetches arm statistics via GET /bandit/status.
func (c *Client) BanditStatus(ctx context.Context) (*BanditStatus, error) {
	var out BanditStatus
	if err := c.get(ctx, "/bandit/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMemorySnapshot stores a memory snapshot via POST /memory/snapshot.
func (c *Client) CreateMemorySnapshot(ctx context.Context, req SnapshotRequest) (*MemorySnapshot, error) {
	var out MemorySnapshot
	if err := c.post(ctx, "/memory/snapshot", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WorkflowDAG fetches the current workflow graph via GET /workflow/dag.
func (c *Client) WorkflowDAG(ctx context.Context) (*WorkflowDAG, error) {
	var out WorkflowDAG
	if err := c.get(ctx, "/workflow/dag", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TelemetryMetrics fetches live metrics via GET /telemetry/metrics.
func (c *Client) TelemetryMetrics(ctx context.Context) (*TelemetryMetrics, error) {
	var out TelemetryMetrics
	if err := c.get(ctx, "/telemetry/metrics", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	return c.do(req, path, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend %s: HTTP %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}
