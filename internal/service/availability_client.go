package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/pkg/config"
)

// AvailabilityClient queries the external availability API used when
// building pod rosters.
type AvailabilityClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewAvailabilityClient constructs an AvailabilityClient.
func NewAvailabilityClient(cfg config.DutyConfig, logger *zap.Logger) *AvailabilityClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.AvailabilityTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AvailabilityClient{
		baseURL: cfg.AvailabilityURL,
		token:   cfg.AvailabilityToken,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Enabled reports whether an endpoint is configured.
func (c *AvailabilityClient) Enabled() bool {
	return c.baseURL != ""
}

// Fetch returns the available teachers for (day, period). Callers fall
// back to the local directory when the API is unreachable.
func (c *AvailabilityClient) Fetch(ctx context.Context, dayCode, period string) ([]models.AvailabilityEntry, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("availability API not configured")
	}

	endpoint := fmt.Sprintf("%s?day=%s&period=%s", c.baseURL, url.QueryEscape(dayCode), url.QueryEscape(period))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build availability request: %w", err)
	}
	// The endpoint sits behind the schedule service's JWT middleware, so
	// the client carries a service credential.
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch availability: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("availability API returned %d", resp.StatusCode)
	}

	var payload struct {
		Available []models.AvailabilityEntry `json:"available"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode availability payload: %w", err)
	}
	return payload.Available, nil
}
