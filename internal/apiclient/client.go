// Package apiclient calls the studio's REST endpoints on behalf of the CLI.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/estate-studio/internal/domain"
)

// ErrUnauthorized matches APIErrors with status 401.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

func (e *APIError) retryable() bool {
	return e.Status >= http.StatusInternalServerError
}

// Client talks to the studio server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialProvider
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets the attempt count and first backoff delay for retried calls.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for baseURL (e.g. http://localhost:8080).
func New(baseURL string, creds CredentialProvider, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		creds:      creds,
		logger:     slog.Default(),
		maxRetries: 3,
		baseDelay:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxRetries < 1 {
		c.maxRetries = 1
	}
	return c
}

// GenerateListing asks the server to write a listing description.
func (c *Client) GenerateListing(ctx context.Context, req domain.ListingRequest) (*domain.ListingResponse, error) {
	var out domain.ListingResponse
	if err := c.do(ctx, http.MethodPost, "/api/listings/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSmartProperty submits the details form.
func (c *Client) CreateSmartProperty(ctx context.Context, details domain.PropertyDetails) (*domain.SmartPropertyResponse, error) {
	var out domain.SmartPropertyResponse
	if err := c.do(ctx, http.MethodPost, "/api/smart-properties", details, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile fetches the caller's profile, retrying transport failures and 5xx
// responses with exponential backoff.
func (c *Client) Profile(ctx context.Context) (*domain.Profile, error) {
	var out domain.Profile
	for i := 0; i < c.maxRetries; i++ {
		err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out)
		if err == nil {
			return &out, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return nil, err
		}
		if i == c.maxRetries-1 {
			return nil, fmt.Errorf("fetch profile after %d attempts: %w", c.maxRetries, err)
		}

		delay := c.baseDelay * time.Duration(1<<i)
		c.logger.Debug("Profile fetch failed, retrying", "attempt", i+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, errors.New("fetch profile: no attempts made")
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

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil {
		tok, err := c.creds.Token(ctx)
		switch {
		case err == nil:
			req.Header.Set("Authorization", "Bearer "+tok)
		case !errors.Is(err, ErrNoToken):
			return fmt.Errorf("load credentials: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Detail: extractDetail(raw)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// extractDetail returns the "detail" field of an error body. Non-string
// details (validation error lists) are returned as raw JSON.
func extractDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}
	return string(body.Detail)
}
