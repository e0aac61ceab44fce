// Package calendar talks to the external calendar provider. Failures are
// reported to the caller, which treats calendar sync as best effort.
package calendar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fieldops_backend/platform/config"
	"fieldops_backend/platform/logger"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 10 * time.Second

// Event is what the provider needs to block out a visit.
type Event struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartAt     time.Time `json:"startAt"`
	EndAt       time.Time `json:"endAt"`
	Reference   string    `json:"reference"`
}

type createEventResponse struct {
	ID string `json:"id"`
}

// Client creates and deletes provider events. A Client without a base URL
// is disabled and every call is a no-op.
type Client struct {
	http    *resty.Client
	enabled bool
	log     *logger.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg config.CalendarConfig, log *logger.Logger) *Client {
	if !cfg.IsCalendarEnabled() {
		return &Client{log: log}
	}

	timeout := cfg.GetCalendarTimeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.GetCalendarBaseURL(), "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token := cfg.GetCalendarToken(); token != "" {
		httpClient.SetAuthToken(token)
	}

	return &Client{http: httpClient, enabled: true, log: log}
}

// Enabled reports whether a provider is configured.
func (c *Client) Enabled() bool {
	return c.enabled
}

// CreateEvent returns the provider's id for the new event. An empty id with
// a nil error means the provider accepted the event without returning one.
func (c *Client) CreateEvent(ctx context.Context, event Event) (string, error) {
	if !c.enabled {
		return "", nil
	}

	var out createEventResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(event).
		SetResult(&out).
		Post("/events")
	if err != nil {
		return "", fmt.Errorf("calendar create event: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("calendar create event: status %d", resp.StatusCode())
	}

	c.log.Info("calendar event created", "reference", event.Reference, "externalId", out.ID)
	return out.ID, nil
}

// DeleteEvent removes an event. Deleting an event the provider no longer
// knows about is not an error.
func (c *Client) DeleteEvent(ctx context.Context, externalID string) error {
	if !c.enabled || externalID == "" {
		return nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", externalID).
		Delete("/events/{id}")
	if err != nil {
		return fmt.Errorf("calendar delete event: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusGone {
		return nil
	}
	if resp.IsError() {
		return fmt.Errorf("calendar delete event: status %d", resp.StatusCode())
	}
	return nil
}
