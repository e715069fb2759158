// Package api is the HTTP client for the TrackLab service, reduced to the
// calls the launch core needs: pushing run specs onto a run queue, popping
// claimed queue items, acknowledging consumed items, and reporting run status.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"resty.dev/v3"
)

// Settings configures a Client.
type Settings struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the TrackLab service. Safe for concurrent use.
type Client struct {
	http    *resty.Client
	baseURL string
}

// StatusError is a non-2xx response from the service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("tracklab api: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("tracklab api: %s (status %d)", e.Message, e.Code)
}

// IsAuthError reports whether err is a terminal authentication or
// authorization failure. The agent stops its poll loop on these instead of
// retrying.
func IsAuthError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden
}

// apiError is the service's error response body.
type apiError struct {
	Error string `json:"error"`
}

// NewClient builds a Client for the given settings.
func NewClient(settings Settings) *Client {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(settings.BaseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", "tracklab-launch")
	if settings.APIKey != "" {
		httpClient.SetAuthToken(settings.APIKey)
	}

	return &Client{http: httpClient, baseURL: settings.BaseURL}
}

// BaseURL returns the configured service base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Close releases resources held by the underlying HTTP client.
func (c *Client) Close() {
	_ = c.http.Close()
}

// PushToQueue appends a serialized run spec to the named run queue.
func (c *Client) PushToQueue(ctx context.Context, queue string, runSpec any) (*QueueResponse, error) {
	var out QueueResponse
	var apiErr apiError
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("queue", queue).
		SetBody(runSpec).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/v1/queues/{queue}/items")
	if err != nil {
		return nil, fmt.Errorf("push to queue %q: %w", queue, err)
	}
	if res.IsError() {
		return nil, &StatusError{Code: res.StatusCode(), Message: apiErr.Error}
	}
	return &out, nil
}

// PopFromQueue claims the next pending item for the entity/project across the
// given queues. Returns (nil, nil) when every queue is empty.
func (c *Client) PopFromQueue(ctx context.Context, entity, project string, queues []string) (*QueueItem, error) {
	var out QueueItem
	var apiErr apiError
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(popRequest{Entity: entity, Project: project, Queues: queues}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/v1/queues/pop")
	if err != nil {
		return nil, fmt.Errorf("pop from queue: %w", err)
	}
	if res.StatusCode() == http.StatusNoContent {
		return nil, nil
	}
	if res.IsError() {
		return nil, &StatusError{Code: res.StatusCode(), Message: apiErr.Error}
	}
	return &out, nil
}

// Ack acknowledges a claimed queue item so the service drops it permanently.
func (c *Client) Ack(ctx context.Context, itemID string) error {
	var apiErr apiError
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", itemID).
		SetError(&apiErr).
		Post("/api/v1/queue-items/{id}/ack")
	if err != nil {
		return fmt.Errorf("ack queue item %q: %w", itemID, err)
	}
	if res.IsError() {
		return &StatusError{Code: res.StatusCode(), Message: apiErr.Error}
	}
	return nil
}

// ReportStatus reports the terminal or running status of a launched run.
func (c *Client) ReportStatus(ctx context.Context, runID, status string) error {
	var apiErr apiError
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", runID).
		SetBody(statusReport{Status: status}).
		SetError(&apiErr).
		Post("/api/v1/runs/{id}/status")
	if err != nil {
		return fmt.Errorf("report status for run %q: %w", runID, err)
	}
	if res.IsError() {
		return &StatusError{Code: res.StatusCode(), Message: apiErr.Error}
	}
	return nil
}
