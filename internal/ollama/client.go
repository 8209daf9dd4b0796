package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/leasescan/internal/logger"
)

const (
	// DefaultEndpoint is the default Ollama API endpoint
	DefaultEndpoint = "http://localhost:11434"

	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 5 * time.Minute

	// DefaultMaxRetries is the default number of retries
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the initial delay between retries
	DefaultRetryDelay = 1 * time.Second
)

// Client is an HTTP client for the Ollama API
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *logger.Logger
	maxRetries int
	retryDelay time.Duration
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithEndpoint sets the Ollama API endpoint
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		c.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithMaxRetries sets the maximum number of retries
func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// WithRetryDelay sets the initial retry delay
func WithRetryDelay(delay time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = delay
	}
}

// NewClient creates a new Ollama client
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		endpoint: DefaultEndpoint,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:     logger.Get(),
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Endpoint returns the API endpoint the client talks to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// APIError is a non-2xx answer from the Ollama API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ollama API error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}

// IsModelNotFound reports whether err says the requested model is not installed.
func IsModelNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound &&
		strings.Contains(strings.ToLower(apiErr.Message), "not found")
}

func newAPIError(status int, body []byte) *APIError {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{StatusCode: status, Message: errResp.Error}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

// backoff returns the delay before retry n (1-based), doubling each time.
func (c *Client) backoff(n int) time.Duration {
	return c.retryDelay << uint(n-1)
}

// doRequest sends a JSON request, retrying transport failures and 5xx
// answers with exponential backoff.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, response interface{}) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Debugf("Retrying %s %s (attempt %d/%d) after %v: %v", method, path, attempt, c.maxRetries, delay, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		retry, err := c.send(ctx, method, path, payload, response)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retry {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// send performs one attempt and reports whether a failure is worth retrying.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, response interface{}) (bool, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(resp.StatusCode, respBody)
		return apiErr.Retryable(), apiErr
	}

	if response != nil {
		if err := json.Unmarshal(respBody, response); err != nil {
			return false, fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return false, nil
}

// Generate sends a text generation request to Ollama
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	var resp GenerateResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateWithVision sends a vision model inference request with image input
// and asks for a JSON response.
func (c *Client) GenerateWithVision(ctx context.Context, model, system, prompt string, images []string, temperature float64) (*GenerateResponse, error) {
	req := &GenerateRequest{
		Model:   model,
		System:  system,
		Prompt:  prompt,
		Images:  images,
		Stream:  false,
		Format:  "json",
		Options: &Options{Temperature: temperature},
	}
	return c.Generate(ctx, req)
}

// ListModels lists available models
func (c *Client) ListModels(ctx context.Context) (*ListModelsResponse, error) {
	var resp ListModelsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/tags", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HasModel reports whether the model is installed locally. A bare name also
// matches its ":latest" tag.
func (c *Client) HasModel(ctx context.Context, name string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models.Models {
		if m.Name == name || m.Name == name+":latest" {
			return true, nil
		}
	}
	return false, nil
}

// PullModel downloads a model, calling progress (if not nil) for every
// status line the server streams. Pulls are not retried and are bounded
// only by ctx, since large models take longer than the client timeout.
func (c *Client) PullModel(ctx context.Context, modelName string, progress func(PullResponse)) error {
	payload, err := json.Marshal(&PullRequest{Name: modelName, Stream: true})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/pull", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := *c.httpClient
	httpClient.Timeout = 0

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to pull %s: %w", modelName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, body)
	}

	dec := json.NewDecoder(resp.Body)
	var last PullResponse
	for {
		var line PullResponse
		if err := dec.Decode(&line); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to read pull progress: %w", err)
		}
		if line.Error != "" {
			return fmt.Errorf("failed to pull %s: %s", modelName, line.Error)
		}
		if progress != nil {
			progress(line)
		}
		last = line
	}

	if last.Status != "success" {
		return fmt.Errorf("pull of %s ended with status %q", modelName, last.Status)
	}
	return nil
}

// HealthCheck verifies that Ollama is running and accessible
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama is not accessible: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check failed with status: %d", resp.StatusCode)
	}

	return nil
}

// EncodeBytesToBase64 encodes raw bytes to base64 string
func EncodeBytesToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
