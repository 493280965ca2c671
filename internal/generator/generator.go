// Package generator calls the content generation service that writes
// branding, visuals, images, posts and listings.
package generator

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

// Generator produces the content for each workflow step.
type Generator interface {
	Branding(ctx context.Context, input string) (string, error)
	Visuals(ctx context.Context, input, brand string) (string, error)
	Image(ctx context.Context, prompt string) (string, error)
	Post(ctx context.Context, req PostRequest) (string, error)
	Publish(ctx context.Context, content, imagePath string) (string, error)
	Listing(ctx context.Context, req domain.ListingRequest) (string, error)
}

// PostRequest carries everything the launch post is written from.
type PostRequest struct {
	Input        string                 `json:"input"`
	Brand        string                 `json:"brand"`
	VisualPrompt string                 `json:"visual_prompt"`
	ImagePath    string                 `json:"image_path"`
	Details      domain.PropertyDetails `json:"details"`
}

// ErrEmptyResult is returned when the service answers 200 without content.
var ErrEmptyResult = errors.New("generator returned no content")

// Error is a non-2xx answer from the generation service.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("generator request failed with status %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("generator request failed with status %d", e.Status)
}

// HTTPClient implements Generator over the service's JSON API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates a client for baseURL. Each request is bounded by
// timeout.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type textResponse struct {
	Text string `json:"text"`
}

func (c *HTTPClient) Branding(ctx context.Context, input string) (string, error) {
	var out textResponse
	if err := c.call(ctx, "/v1/branding", map[string]string{"input": input}, &out); err != nil {
		return "", fmt.Errorf("branding: %w", err)
	}
	return nonEmpty(out.Text)
}

func (c *HTTPClient) Visuals(ctx context.Context, input, brand string) (string, error) {
	var out textResponse
	if err := c.call(ctx, "/v1/visuals", map[string]string{"input": input, "brand": brand}, &out); err != nil {
		return "", fmt.Errorf("visuals: %w", err)
	}
	return nonEmpty(out.Text)
}

func (c *HTTPClient) Image(ctx context.Context, prompt string) (string, error) {
	var out struct {
		ImagePath string `json:"image_path"`
	}
	if err := c.call(ctx, "/v1/images", map[string]string{"prompt": prompt}, &out); err != nil {
		return "", fmt.Errorf("image: %w", err)
	}
	return nonEmpty(out.ImagePath)
}

func (c *HTTPClient) Post(ctx context.Context, req PostRequest) (string, error) {
	var out textResponse
	if err := c.call(ctx, "/v1/posts", req, &out); err != nil {
		return "", fmt.Errorf("post: %w", err)
	}
	return nonEmpty(out.Text)
}

func (c *HTTPClient) Publish(ctx context.Context, content, imagePath string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	body := map[string]string{"content": content, "image_path": imagePath}
	if err := c.call(ctx, "/v1/publish", body, &out); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	return nonEmpty(out.Message)
}

func (c *HTTPClient) Listing(ctx context.Context, req domain.ListingRequest) (string, error) {
	var out textResponse
	if err := c.call(ctx, "/v1/listings", req, &out); err != nil {
		return "", fmt.Errorf("listing: %w", err)
	}
	return nonEmpty(out.Text)
}

func (c *HTTPClient) call(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call generator: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Generator request failed", "path", path, "status", resp.StatusCode, "duration", time.Since(start))
		return &Error{Status: resp.StatusCode, Detail: detail(raw)}
	}
	c.logger.Debug("Generator request complete", "path", path, "duration", time.Since(start))

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func detail(raw []byte) string {
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.Error != "" {
			return body.Error
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func nonEmpty(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", ErrEmptyResult
	}
	return s, nil
}
