// Package embedhttp is the JSON transport shared by the HTTP embedding
// providers. It retries throttled and unavailable responses and turns
// provider error bodies into APIError values.
package embedhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/logger"
)

// Retry defaults.
const (
	DefaultMaxRetries = 2
	DefaultBackoff    = 500 * time.Millisecond

	// maxRetryAfter caps how long a Retry-After header can park a caller.
	maxRetryAfter = 30 * time.Second

	maxErrorBody = 4096
)

// APIError is a non-2xx answer from an embedding provider.
// It matches domain.ErrEmbedding with errors.Is.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return domain.ErrEmbedding }

// Temporary reports whether the request may succeed when repeated.
func (e *APIError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsUnauthorized reports whether err is a rejected credential.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// Client sends JSON requests to one provider.
type Client struct {
	Provider   string
	BaseURL    string
	HTTP       *http.Client
	Header     http.Header
	MaxRetries int
	Backoff    time.Duration

	// sleep is replaced in tests.
	sleep func(context.Context, time.Duration) error
}

// New creates a client for provider rooted at baseURL.
func New(provider, baseURL string, timeout time.Duration) *Client {
	return &Client{
		Provider:   provider,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTP:       &http.Client{Timeout: timeout},
		Header:     make(http.Header),
		MaxRetries: DefaultMaxRetries,
		Backoff:    DefaultBackoff,
		sleep:      sleepContext,
	}
}

// PostJSON posts in to path and decodes the answer into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %s: encoding request: %v", domain.ErrEmbedding, c.Provider, err)
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Get requests path and discards a successful body.
func (c *Client) Get(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodGet, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.Backoff << (attempt - 1)
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			logger.Debug("%s: retrying %s in %s (attempt %d): %v", c.Provider, path, wait, attempt+1, lastErr)
			if err := c.sleep(ctx, wait); err != nil {
				return fmt.Errorf("%w: %s: %v", domain.ErrEmbedding, c.Provider, err)
			}
		}

		lastErr = c.once(ctx, method, path, body, out)
		var apiErr *APIError
		if lastErr == nil || !errors.As(lastErr, &apiErr) || !apiErr.Temporary() {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %s: building request: %v", domain.ErrEmbedding, c.Provider, err)
	}
	for k, v := range c.Header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s unreachable: %v", domain.ErrEmbedding, c.Provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Provider:   c.Provider,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decoding response: %v", domain.ErrEmbedding, c.Provider, err)
	}
	return nil
}

// errorMessage pulls the message out of the error shapes providers use:
// {"error":{"message":...}}, {"error":"..."} or a plain text body.
func errorMessage(raw []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}
	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &flat) == nil && flat.Error != "" {
		return flat.Error
	}
	return strings.TrimSpace(string(raw))
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
