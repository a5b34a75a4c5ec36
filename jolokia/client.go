package jolokia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// ClientOptions configures the HTTP transport.
type ClientOptions struct {
	URL        string
	Timeout    time.Duration
	Username   string
	Password   string
	HTTPClient *http.Client
}

// Client is a Transport, Batcher and Watcher talking JSON over HTTP POST.
type Client struct {
	url      string
	username string
	password string
	http     *http.Client

	mu         sync.Mutex
	watches    map[int]watch
	nextHandle int
}

type watch struct {
	req Request
	cb  Callback
}

// NewClient creates an HTTP transport for the agent at opts.URL.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("jolokia url is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		url:      opts.URL,
		username: opts.Username,
		password: opts.Password,
		http:     httpClient,
		watches:  make(map[int]watch),
	}, nil
}

// URL returns the agent URL.
func (c *Client) URL() string {
	return c.url
}

// Do sends a single request.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var resp Response
	if err := c.post(ctx, "request", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Bulk sends all requests in one HTTP round trip.
func (c *Client) Bulk(ctx context.Context, reqs []Request) ([]*Response, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	var resps []*Response
	if err := c.post(ctx, "bulk", reqs, &resps); err != nil {
		return nil, err
	}
	if len(resps) != len(reqs) {
		return nil, &TransportError{Op: "bulk", URL: c.url, Err: fmt.Errorf("expected %d responses, got %d", len(reqs), len(resps))}
	}
	return resps, nil
}

func (c *Client) post(ctx context.Context, op string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Op: op, URL: c.url, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		httpReq.SetBasicAuth(c.username, c.password)
	}

	slog.Debug("Sending Jolokia request", "op", op, "url", c.url, "bytes", len(body))
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return &TransportError{Op: op, URL: c.url, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &TransportError{Op: op, URL: c.url, Err: err}
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return &TransportError{Op: op, URL: c.url, Err: fmt.Errorf("unexpected HTTP status %d", httpResp.StatusCode)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, URL: c.url, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// Register adds a request polled by Poll and returns its handle.
func (c *Client) Register(req Request, cb Callback) (int, error) {
	if cb == nil {
		return 0, fmt.Errorf("callback is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextHandle++
	c.watches[c.nextHandle] = watch{req: req, cb: cb}
	return c.nextHandle, nil
}

// Unregister removes a registered request.
func (c *Client) Unregister(handle int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.watches[handle]; !ok {
		return fmt.Errorf("no watch registered with handle %d", handle)
	}
	delete(c.watches, handle)
	return nil
}

// Poll sends every registered request in one bulk call and dispatches the
// responses to their callbacks.
func (c *Client) Poll(ctx context.Context) error {
	c.mu.Lock()
	handles := make([]int, 0, len(c.watches))
	for h := range c.watches {
		handles = append(handles, h)
	}
	sort.Ints(handles)
	reqs := make([]Request, len(handles))
	cbs := make([]Callback, len(handles))
	for i, h := range handles {
		reqs[i] = c.watches[h].req
		cbs[i] = c.watches[h].cb
	}
	c.mu.Unlock()

	if len(reqs) == 0 {
		return nil
	}
	resps, err := c.Bulk(ctx, reqs)
	if err != nil {
		return err
	}
	for i, resp := range resps {
		cbs[i](resp)
	}
	return nil
}

// Run polls registered requests every interval until ctx is done.
func (c *Client) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Poll(ctx); err != nil {
				slog.Warn("Polling registered requests failed", "url", c.url, "error", err)
			}
		}
	}
}
