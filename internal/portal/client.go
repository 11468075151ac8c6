package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/karimadel/giu-portal-monitor/internal/config"
)

const (
	EndpointGrades     = "grades"
	EndpointAttendance = "attendance"
	EndpointTranscript = "transcript"
)

// SummaryEndpoints is the fixed set of endpoints fetched for every snapshot,
// in fetch order.
var SummaryEndpoints = []string{EndpointGrades, EndpointAttendance, EndpointTranscript}

// Client issues parameterized requests against the portal API. Credentials
// are merged into every request body; transport errors, non-200 statuses and
// unsuccessful response envelopes are retried up to the configured bound.
type Client struct {
	baseURL    string
	username   string
	password   string
	retryCount int
	retryDelay time.Duration
	client     *http.Client
	logger     zerolog.Logger
	sleep      func(time.Duration)
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func NewClient(cfg config.PortalConfig, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Request posts the merged credential and caller params to the named endpoint
// and returns the envelope's data field on the first successful attempt.
// After all attempts are exhausted it returns an error; callers treat that
// as "no data for this request", never as fatal.
func (c *Client) Request(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error) {
	payload := map[string]string{
		"username": c.username,
		"password": c.password,
	}
	for k, v := range params {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, endpoint)

	var lastErr error
	for attempt := 1; attempt <= c.retryCount; attempt++ {
		if attempt > 1 {
			c.sleep(c.retryDelay)
		}

		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Msg("Fetching portal endpoint")

		data, err := c.do(ctx, url, body)
		if err == nil {
			return data, nil
		}

		lastErr = err
		c.logger.Warn().
			Err(err).
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Msg("Portal request failed")
	}

	return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", endpoint, c.retryCount, lastErr)
}

func (c *Client) do(ctx context.Context, url string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("portal returned status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if env.Status != "success" {
		return nil, fmt.Errorf("portal returned status %q", env.Status)
	}

	return env.Data, nil
}
