package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
	"github.com/DanielTromp/atlas/internal/logger"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the number of records per listing request.
	DefaultPageSize = 50

	// MaxPageSize is the largest page the REST API accepts.
	MaxPageSize = 100

	// MaxRetries is the maximum number of retries for transient errors.
	MaxRetries = 3

	// RetryDelay is the initial delay between retries.
	RetryDelay = time.Second
)

// Ensure Client implements the corpus port.
var _ driven.CorpusSource = (*Client)(nil)

// Config holds connection settings for a Confluence site.
type Config struct {
	// BaseURL is the wiki root, e.g. https://example.atlassian.net/wiki.
	BaseURL string

	// Username selects basic auth with Token as the API token.
	// When empty, Token is sent as a bearer personal access token.
	Username string
	Token    string

	PageSize          int
	RequestsPerSecond float64
	Timeout           time.Duration

	// RetryDelay overrides the first backoff step. Zero uses RetryDelay.
	RetryDelay time.Duration
}

// ConfigFromSettings builds a Config from settings.
func ConfigFromSettings(s domain.ConfluenceSettings) Config {
	return Config{
		BaseURL:           s.BaseURL,
		Username:          s.Username,
		Token:             s.Token,
		PageSize:          s.PageSize,
		RequestsPerSecond: s.RequestsPerSecond,
		Timeout:           s.Timeout,
	}
}

// Client talks to the Confluence REST API with rate limiting and retries.
type Client struct {
	baseURL     string
	username    string
	token       string
	pageSize    int
	retryDelay  time.Duration
	http        *http.Client
	rateLimiter *RateLimiter
}

// NewClient creates a Confluence client. Bearer tokens go through an
// oauth2 transport; basic auth is added per request.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrCorpus, ErrNotConfigured)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("%w: invalid base URL %q: %v", domain.ErrInvalidInput, cfg.BaseURL, err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	cfg.PageSize = min(cfg.PageSize, MaxPageSize)
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = RetryDelay
	}

	var hc *http.Client
	if cfg.Username == "" && cfg.Token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"},
		)
		hc = oauth2.NewClient(ctx, ts)
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = cfg.Timeout

	return &Client{
		baseURL:     base,
		username:    cfg.Username,
		token:       cfg.Token,
		pageSize:    cfg.PageSize,
		retryDelay:  cfg.RetryDelay,
		http:        hc,
		rateLimiter: NewRateLimiter(cfg.RequestsPerSecond),
	}, nil
}

// BaseURL is the wiki root used to absolutise page links.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RateLimiter returns the rate limiter for external access.
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// ValidateCredentials checks the credentials by fetching one space.
func (c *Client) ValidateCredentials(ctx context.Context) error {
	var out struct {
		Results []json.RawMessage `json:"results"`
	}
	return c.get(ctx, "/rest/api/space?limit=1", &out)
}

// get fetches path (relative to the base URL) and decodes JSON into out.
// Throttled and server errors are retried with exponential backoff.
func (c *Client) get(ctx context.Context, path string, out any) error {
	target := c.baseURL + path
	delay := c.retryDelay

	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limit wait: %w", domain.ErrCorpus, err)
		}

		status, wait, err := c.attempt(ctx, target, out)
		if err == nil {
			return nil
		}
		if status == 0 || !retryable(status) || attempt >= MaxRetries {
			if status == http.StatusTooManyRequests {
				err = &RateLimitError{RetryAt: c.rateLimiter.RetryAt()}
			}
			return fmt.Errorf("%w: %w", domain.ErrCorpus, err)
		}

		if wait <= 0 {
			wait = delay
			delay *= 2
		}
		logger.Debug("Confluence %s returned %d, retrying in %s", path, status, wait)
		c.rateLimiter.Backoff(wait)
	}
}

// attempt performs one request. It returns the HTTP status (0 for transport
// errors) and any server-requested wait.
func (c *Client) attempt(ctx context.Context, target string, out any) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("request %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		wait, _ := retryAfter(resp)
		return resp.StatusCode, wait, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, resp.Status),
			URL:        target,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, 0, fmt.Errorf("decode %s: %w", target, err)
	}
	return resp.StatusCode, 0, nil
}

// errorMessage extracts the "message" field of an error body.
func errorMessage(body []byte, fallback string) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		return parsed.Message
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return fallback
}
