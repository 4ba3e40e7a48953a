// Package transport implements the HTTP and GraphQL collaborators the
// adapters perform I/O through. On any non-2xx response the client raises
// an *apierr.StatusError carrying the status code, raw body, and
// Retry-After hint; classification into the taxonomy happens at the
// adapter boundary, not here. Retry policy (429 backoff) lives in this
// layer and nowhere else.
package transport

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

	"github.com/nhle/pmbridge/internal/apierr"
)

// Client is a thin JSON-over-HTTP client with Bearer token authentication
// and automatic retry with exponential backoff on HTTP 429.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a new HTTP client. The baseURL should be the root URL
// of the backend instance; token is used for Bearer authentication.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
	}
}

// BaseURL returns the configured root URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(ctx context.Context, path string, result any) error {
	_, err := c.do(ctx, http.MethodGet, c.baseURL+path, nil, result)
	return err
}

// GetURL performs an HTTP GET against an absolute URL and returns the
// response headers alongside the decoded body. Pagination uses it to
// follow Link headers across pages.
func (c *Client) GetURL(
	ctx context.Context,
	url string,
	result any,
) (http.Header, error) {
	return c.do(ctx, http.MethodGet, url, nil, result)
}

// Post performs an HTTP POST request with a JSON body and unmarshals the
// JSON response.
func (c *Client) Post(ctx context.Context, path string, body, result any) error {
	_, err := c.do(ctx, http.MethodPost, c.baseURL+path, body, result)
	return err
}

// Put performs an HTTP PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, result any) error {
	_, err := c.do(ctx, http.MethodPut, c.baseURL+path, body, result)
	return err
}

// Patch performs an HTTP PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, result any) error {
	_, err := c.do(ctx, http.MethodPatch, c.baseURL+path, body, result)
	return err
}

// Delete performs an HTTP DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, c.baseURL+path, nil, nil)
	return err
}

// do is the core HTTP method that builds the request, handles auth, rate
// limiting with exponential backoff, and JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	url string,
	body any,
	result any,
) (http.Header, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("executing request %s %s: %w", method, url, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := retryAfterHint(resp)
			lastErr = &apierr.StatusError{
				StatusCode: resp.StatusCode,
				Body:       respBody,
				RetryAfter: retryAfter,
			}

			if attempt == c.maxRetries {
				return nil, lastErr
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDuration(retryAfter, attempt)):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &apierr.StatusError{
				StatusCode: resp.StatusCode,
				Body:       respBody,
				RetryAfter: retryAfterHint(resp),
			}
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent {
			return resp.Header, nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, fmt.Errorf(
				"unmarshaling response from %s %s: %w", method, url, err,
			)
		}

		return resp.Header, nil
	}

	return nil, lastErr
}

// retryAfterHint reads the Retry-After header, when present, as a
// duration hint for the rate-limit error.
func retryAfterHint(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// backoffDuration prefers the server's Retry-After hint and falls back to
// exponential backoff: 1s, 2s, 4s, capped at 30s.
func backoffDuration(hint time.Duration, attempt int) time.Duration {
	if hint > 0 {
		return hint
	}
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
