package waflog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError represents a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string // "error" field of the body, if any
	Details    string // "details" field of the body, if any
	Body       string // first 512 bytes
	retryAfter string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		if e.Details != "" {
			return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Message, e.Details)
		}
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetry sets the number of retries for reads and the first backoff delay,
// which doubles on each attempt. Values below zero mean no retries. Default:
// 3 retries starting at 1s.
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.backoffBase = base
	}
}

// Client talks to a waflog server.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	backoffBase time.Duration
}

// New creates a Client for the server at baseURL, e.g. "http://localhost:5000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		backoffBase: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Logs returns every entry in the log, oldest first.
func (c *Client) Logs(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := c.do(ctx, http.MethodGet, "/api/logs", nil, &entries); err != nil {
		return nil, fmt.Errorf("waflog: logs: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// SimulateLog asks the server to generate and append one synthetic entry and
// returns the server's confirmation message.
func (c *Client) SimulateLog(ctx context.Context) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/simulate-log", nil, &resp); err != nil {
		return "", fmt.Errorf("waflog: simulate: %w", err)
	}
	return resp.Message, nil
}

// Append stores e and returns the entry as the server persisted it.
func (c *Client) Append(ctx context.Context, e Entry) (Entry, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("waflog: append: %w", err)
	}
	var stored Entry
	if err := c.do(ctx, http.MethodPost, "/api/logs", body, &stored); err != nil {
		return Entry{}, fmt.Errorf("waflog: append: %w", err)
	}
	return stored, nil
}

// Health reports server status and the number of stored entries.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return Health{}, fmt.Errorf("waflog: health: %w", err)
	}
	return h, nil
}

// do sends one request and decodes a 2xx JSON body into dest. GETs are
// retried on 429 (honoring Retry-After) and 5xx.
func (c *Client) do(ctx context.Context, method, path string, body []byte, dest any) error {
	retries := 0
	if method == http.MethodGet {
		// A negative setting still makes the first attempt.
		retries = max(c.maxRetries, 0)
	}

	var lastErr *APIError
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(c.backoffDelay(attempt, lastErr))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return json.Unmarshal(data, dest)
		}

		apiErr := newAPIError(resp.StatusCode, data)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			apiErr.retryAfter = resp.Header.Get("Retry-After")
			lastErr = apiErr
		case resp.StatusCode >= 500:
			lastErr = apiErr
		default:
			return apiErr
		}
	}
	return lastErr
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}
	var parsed struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		e.Message, e.Details = parsed.Error, parsed.Details
	}
	s := string(body)
	if len(s) > 512 {
		s = s[:512]
	}
	e.Body = s
	return e
}

// backoffDelay returns the wait before a retry attempt.
func (c *Client) backoffDelay(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.StatusCode == http.StatusTooManyRequests && lastErr.retryAfter != "" {
		if secs, err := strconv.Atoi(lastErr.retryAfter); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.backoffBase << (attempt - 1)
}
