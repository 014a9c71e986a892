package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const userAgent = "Ghostarr/1.0"

// ErrNotConfigured is returned by clients missing credentials. The
// pipeline treats it as a skip, not a failure.
var ErrNotConfigured = errors.New("integration not configured")

// StatusError carries the HTTP status of a failed request so callers can
// distinguish client errors (never retried) from transient ones.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Service, e.Status, e.Body)
}

// RetryableError marks an error as transient.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

func retryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}

// Client is the shared HTTP layer for all service integrations: JSON
// requests with bounded retries, exponential backoff and no retry on
// 4xx responses.
type Client struct {
	Service string
	BaseURL string
	Logger  *slog.Logger

	HTTPClient *http.Client
	MaxRetries int
	Backoff    time.Duration

	// Headers set on every request, on top of the defaults.
	Headers map[string]string
}

// NewClient builds a client for a service. baseURL may be empty for an
// unconfigured service; requests then fail with ErrNotConfigured.
func NewClient(service, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		Service:    service,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Logger:     logger.With("integration", service),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		MaxRetries: 3,
		Backoff:    time.Second,
	}
}

// GetJSON performs a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	return c.DoJSON(ctx, http.MethodGet, path, params, nil, out)
}

// DoJSON performs a request with an optional JSON body, retrying
// transient failures. The attempt loop follows exponential backoff
// (1s, 2s, 4s) and gives up immediately on 4xx responses.
func (c *Client) DoJSON(ctx context.Context, method, path string, params url.Values, body interface{}, out interface{}) error {
	if c.BaseURL == "" {
		return ErrNotConfigured
	}

	var lastErr error
	for attempt := 0; attempt < c.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(c.Backoff) * math.Pow(2, float64(attempt-1)))
			c.Logger.Debug("retrying request", "path", path, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return fmt.Errorf("request cancelled: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		err := c.doOnce(ctx, method, path, params, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
	}

	return fmt.Errorf("%s request failed after %d attempts: %w", c.Service, c.MaxRetries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, params url.Values, body interface{}, out interface{}) error {
	reqURL := c.BaseURL + path
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &RetryableError{Err: fmt.Errorf("%s request error: %w", c.Service, err)}
	}
	defer resp.Body.Close()

	elapsed := time.Since(start).Milliseconds()
	c.Logger.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "elapsed_ms", elapsed)

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{Service: c.Service, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		if resp.StatusCode >= 500 {
			return &RetryableError{Err: statusErr}
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s response decode failed: %w", c.Service, err)
	}
	return nil
}

// ConnectionStatus is the result of a TestConnection probe.
type ConnectionStatus struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
}
