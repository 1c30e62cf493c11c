package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAddr is the control API address used when none is configured.
const DefaultAddr = "127.0.0.1:8765"

// Client calls the control API of a running daemon.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for addr, which may be a host:port pair or a
// full base URL.
func NewClient(addr string) *Client {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		base: strings.TrimRight(addr, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// ClientError is a non-2xx response from the daemon.
type ClientError struct {
	Status  int
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

// Health checks that the daemon is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/health", nil, nil)
}

// Speak submits an announcement.
func (c *Client) Speak(ctx context.Context, req SpeakRequest) (SpeakResponse, error) {
	var resp SpeakResponse
	err := c.do(ctx, http.MethodPost, "/v1/speak", req, &resp)
	return resp, err
}

// Instances returns the status of every instance.
func (c *Client) Instances(ctx context.Context) ([]InstanceStatus, error) {
	var resp InstancesResponse
	if err := c.do(ctx, http.MethodGet, "/v1/instances", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Instances, nil
}

// Instance returns the status of one instance.
func (c *Client) Instance(ctx context.Context, name string) (InstanceStatus, error) {
	var resp InstanceStatus
	err := c.do(ctx, http.MethodGet, "/v1/instances/"+url.PathEscape(name), nil, &resp)
	return resp, err
}

// Clear drops an instance's pending announcements and returns how many
// were dropped.
func (c *Client) Clear(ctx context.Context, name string) (int, error) {
	var resp ClearResponse
	err := c.do(ctx, http.MethodPost, "/v1/instances/"+url.PathEscape(name)+"/clear", nil, &resp)
	return resp.Dropped, err
}

// Skip stops an instance's current announcement.
func (c *Client) Skip(ctx context.Context, name string) (SkipResponse, error) {
	var resp SkipResponse
	err := c.do(ctx, http.MethodPost, "/v1/instances/"+url.PathEscape(name)+"/skip", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxRequestBody))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &ClientError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
