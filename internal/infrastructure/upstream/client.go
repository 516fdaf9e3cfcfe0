package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/enercompare/backend/internal/domain/shared"
	"github.com/enercompare/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// endpoint names used as rate-limiter keys
const endpointMonthlyProduction = "production/monthly"

// Client calls the third-party statistics API. Every call goes through the
// outbound limiter first; a 429 from the upstream feeds the limiter's
// backoff state so subsequent calls wait instead of hammering.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *Limiter
	logger     *zap.Logger
}

// NewClient creates an upstream API client. The base URL and token are
// required; a missing value is a configuration error surfaced at
// construction, not at first use.
func NewClient(cfg config.UpstreamConfig, limiter *Limiter, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("upstream.base_url is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("upstream.token is required")
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// MonthlyProduction fetches monthly production figures for a date range.
// The raw JSON body is returned untouched; the caller caches and serves it
// verbatim.
func (c *Client) MonthlyProduction(ctx context.Context, from, to string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	return c.get(ctx, endpointMonthlyProduction, "/v1/production/monthly?"+q.Encode())
}

func (c *Client) get(ctx context.Context, endpoint, path string) (json.RawMessage, error) {
	if allowed, retryAfter := c.limiter.CanMakeRequest(endpoint); !allowed {
		c.logger.Warn("outbound call denied by rate limiter",
			zap.String("endpoint", endpoint),
			zap.Duration("retry_after", retryAfter))
		return nil, fmt.Errorf("%w: retry after %s", shared.ErrUpstreamThrottled, retryAfter.Round(time.Second))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstreamFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	c.limiter.RecordRequest(endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: reading body: %v", shared.ErrUpstreamFailed, err)
		}
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.limiter.Record429(endpoint, retryAfter)
		c.logger.Warn("upstream throttled request",
			zap.String("endpoint", endpoint),
			zap.Duration("retry_after", retryAfter))
		return nil, shared.ErrUpstreamThrottled

	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, shared.ErrUpstreamUnavailable

	default:
		// Anything else is terminal; retrying will not help.
		return nil, fmt.Errorf("%w: status %d", shared.ErrUpstreamFailed, resp.StatusCode)
	}
}

// parseRetryAfter interprets a Retry-After header given in seconds.
// Zero means "not provided" and lets the limiter apply its default.
func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	secs, err := strconv.Atoi(h)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
