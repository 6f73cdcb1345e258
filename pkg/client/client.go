package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/api"
	"github.com/cuemby/shepherd/pkg/events"
	"github.com/cuemby/shepherd/pkg/types"
)

// Client talks to the agent operator API for CLI usage
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the agent API at addr ("host:port" or a URL)
func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Status returns the node report
func (c *Client) Status(ctx context.Context) (*types.NodeReport, error) {
	var report types.NodeReport
	if err := c.do(ctx, http.MethodGet, "/status", nil, &report, http.StatusOK); err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return &report, nil
}

// Health runs the node diagnostics. A degraded node is not an error.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp, http.StatusOK, http.StatusServiceUnavailable); err != nil {
		return nil, fmt.Errorf("failed to get health: %w", err)
	}
	return &resp, nil
}

// Notices returns the most recent event deliveries
func (c *Client) Notices(ctx context.Context) ([]events.Notice, error) {
	var notices []events.Notice
	if err := c.do(ctx, http.MethodGet, "/events", nil, &notices, http.StatusOK); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return notices, nil
}

// SendEvent delivers a lifecycle event to the agent
func (c *Client) SendEvent(ctx context.Context, kind events.Kind, metadata map[string]string) (*api.Accepted, error) {
	var body io.Reader
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		body = strings.NewReader(string(data))
	}

	var acc api.Accepted
	if err := c.do(ctx, http.MethodPost, "/events/"+string(kind), body, &acc, http.StatusAccepted); err != nil {
		return nil, fmt.Errorf("failed to send %s event: %w", kind, err)
	}
	return &acc, nil
}

// RollingRestart asks the leader to restart every node in turn
func (c *Client) RollingRestart(ctx context.Context) (*api.Accepted, error) {
	var acc api.Accepted
	if err := c.do(ctx, http.MethodPost, "/actions/rolling-restart", nil, &acc, http.StatusAccepted); err != nil {
		return nil, fmt.Errorf("failed to start rolling restart: %w", err)
	}
	return &acc, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}, accept ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	ok := false
	for _, code := range accept {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		var e api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected HTTP %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
