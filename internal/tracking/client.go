// Package tracking forwards lead conversions to the marketing endpoint.
package tracking

import (
	"context"
	"fmt"
	"time"

	"fieldops_backend/platform/config"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Conversion is one attributed lead.
type Conversion struct {
	LeadID      uuid.UUID `json:"leadId"`
	UTMSource   string    `json:"utmSource,omitempty"`
	UTMMedium   string    `json:"utmMedium,omitempty"`
	UTMCampaign string    `json:"utmCampaign,omitempty"`
	Referrer    string    `json:"referrer,omitempty"`
	Services    []string  `json:"services,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Client posts conversions. A Client without a URL drops them.
type Client struct {
	http *resty.Client
	url  string
}

// NewClient creates a Client from cfg.
func NewClient(cfg config.TrackingConfig) *Client {
	if !cfg.IsTrackingEnabled() {
		return &Client{}
	}
	return &Client{
		http: resty.New().
			SetTimeout(5*time.Second).
			SetRetryCount(1).
			SetHeader("Content-Type", "application/json"),
		url: cfg.GetConversionPingURL(),
	}
}

// Ping sends c.
func (c *Client) Ping(ctx context.Context, conv Conversion) error {
	if c.http == nil {
		return nil
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(conv).Post(c.url)
	if err != nil {
		return fmt.Errorf("conversion ping: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("conversion ping: status %d", resp.StatusCode())
	}
	return nil
}
