// Package client is a typed HTTP client for the items API. It decodes the
// server's error bodies back into the error taxonomy so callers can branch on
// not-found, validation, and age-restriction conditions without string
// matching.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cellar/internal/item"
	"cellar/internal/logging"
)

// Config configures a Client.
type Config struct {
	// BaseURL of the cellar server. Empty means http://localhost:8080.
	BaseURL string

	// Timeout for each request. Zero means 10s.
	Timeout time.Duration
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return nil
}

// Client calls the items API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	cfg.validate()
	return &Client{
		baseURL: cfg.BaseURL,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	// ItemAge carries the fractional age from an age-restriction response,
	// nil otherwise.
	ItemAge *float64
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cellar: server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is the server's not-found condition.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsAgeRestricted reports whether err is the server's age-restriction
// condition.
func IsAgeRestricted(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden
}

// IsValidation reports whether err is the server's validation condition.
func IsValidation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest
}

// Health is the server's liveness report.
type Health struct {
	Status string `json:"status"`
	Items  int64  `json:"items"`
}

// List fetches all items, newest first.
func (c *Client) List(ctx context.Context) ([]item.Item, error) {
	var items []item.Item
	if err := c.do(ctx, http.MethodGet, "/api/items", nil, &items); err != nil {
		return nil, err
	}
	logging.ClientDebug("Listed %d items", len(items))
	return items, nil
}

// Create adds a new item and returns the server-assigned record.
func (c *Client) Create(ctx context.Context, name string) (item.Item, error) {
	var created item.Item
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, "/api/items", body, &created); err != nil {
		return item.Item{}, err
	}
	logging.Client("Created item #%d: %q", created.ID, created.Name)
	return created, nil
}

// Delete removes an item. An age-restricted delete returns an *APIError with
// StatusCode 403 and ItemAge set.
func (c *Client) Delete(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/items/%d", id), nil, nil); err != nil {
		return err
	}
	logging.Client("Deleted item #%d", id)
	return nil
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &h); err != nil {
		return Health{}, err
	}
	return h, nil
}

// do performs one request, decoding a success body into out and a failure
// body into *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logging.ClientDebug("%s %s failed: %v", method, path, err)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Error   string   `json:"error"`
			ItemAge *float64 `json:"itemAge"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if jsonErr := json.Unmarshal(raw, &errBody); jsonErr == nil && errBody.Error != "" {
			apiErr.Message = errBody.Error
			apiErr.ItemAge = errBody.ItemAge
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		logging.ClientDebug("%s %s -> %d: %s", method, path, resp.StatusCode, apiErr.Message)
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
