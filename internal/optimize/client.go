package optimize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Service is the external optimization endpoint.
type Service interface {
	Optimize(ctx context.Context, req Request) ([]Result, error)
}

// Client is a minimal HTTP client for the optimization endpoint.
type Client struct {
	Endpoint    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// NewClient creates a client with sane defaults.
func NewClient(endpoint string) *Client {
	timeout := 30 * time.Second
	return &Client{Endpoint: endpoint, Timeout: timeout, HTTPClient: &http.Client{Timeout: timeout}}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("optimizer error: status=%d body=%s", e.StatusCode, e.Body)
}

// Optimize posts req and decodes the ordered result array.
func (c *Client) Optimize(ctx context.Context, req Request) ([]Result, error) {
	var resp []Result
	if err := c.do(ctx, http.MethodPost, req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("optimizer endpoint is not configured")
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return nil
}
