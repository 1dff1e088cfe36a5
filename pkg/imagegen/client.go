package imagegen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Renderer turns a text prompt into raw image bytes.
type Renderer interface {
	Render(ctx context.Context, prompt string) ([]byte, error)
}

const maxImageBytes = 32 << 20

// Client calls a text-to-image endpoint that accepts a URL-encoded prompt
// over plain HTTP GET and responds with the image bytes.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs an image render client.
// apiKey can be empty for providers that do not require authentication.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Render implements Renderer.
func (c *Client) Render(ctx context.Context, prompt string) ([]byte, error) {
	renderURL := c.baseURL + "?prompt=" + url.QueryEscape(prompt)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, renderURL, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image render request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("image render api error: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("image render read: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response from image render api")
	}
	return data, nil
}
