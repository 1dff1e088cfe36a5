package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"inkforge/pkg/domain"
)

// Client calls the hosted identity/billing provider over HTTP.
// It reads a subscriber's plan tier and free-usage counter, and writes
// counter updates back.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// APIError represents a provider error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a billing provider client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Subscriber returns plan metadata for a user. Unknown plan values and
// missing subscribers resolve to the free tier with zero usage.
func (c *Client) Subscriber(ctx context.Context, userID string) (domain.Subscriber, error) {
	var resp subscriberResponse
	path := fmt.Sprintf("/v1/subscribers/%s", userID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusNotFound {
			return domain.Subscriber{Plan: domain.PlanFree}, nil
		}
		return domain.Subscriber{}, err
	}
	sub := domain.Subscriber{
		Plan:      domain.PlanFree,
		FreeUsage: resp.FreeUsage,
	}
	if strings.EqualFold(strings.TrimSpace(resp.Plan), string(domain.PlanPremium)) {
		sub.Plan = domain.PlanPremium
	}
	if sub.FreeUsage < 0 {
		sub.FreeUsage = 0
	}
	return sub, nil
}

// SetFreeUsage writes the free-usage counter for a user.
func (c *Client) SetFreeUsage(ctx context.Context, userID string, usage int) error {
	payload := map[string]int{"freeUsage": usage}
	path := fmt.Sprintf("/v1/subscribers/%s", userID)
	return c.doJSON(ctx, http.MethodPatch, path, payload, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type subscriberResponse struct {
	Plan      string `json:"plan"`
	FreeUsage int    `json:"freeUsage"`
}
