// internal/supplier/client.go

// Package supplier fetches raw product payloads from the external
// marketplace data API and normalizes them into canonical records.
package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ozstock/reseller-backend/internal/config"
	"github.com/ozstock/reseller-backend/internal/throttle"
)

// Fetcher is the lookup surface consumed by the sync pipeline.
type Fetcher interface {
	FetchProduct(ctx context.Context, asin, country string) (map[string]interface{}, error)
}

// Client issues throttled product lookups against the supplier API.
// Every call is serialized through an internal queue so the upstream
// never sees requests closer together than the configured delay.
type Client struct {
	cfg        config.SupplierConfig
	httpClient *http.Client
	queue      *throttle.Queue
	logger     *logrus.Entry

	// wait is swapped out by tests to observe the backoff schedule.
	wait func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg config.SupplierConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		queue:      throttle.New(cfg.RequestDelay),
		logger:     logrus.WithField("component", "supplier"),
		wait:       sleepContext,
	}
}

// FetchProduct looks up one product by its supplier identifier. The full
// retry loop runs inside a single throttle slot, so a flaky upstream can
// stall the queue only for the bounded backoff window.
func (c *Client) FetchProduct(ctx context.Context, asin, country string) (map[string]interface{}, error) {
	if country == "" {
		country = c.cfg.DefaultCountry
	}

	value, err := c.queue.Do(ctx, func() (interface{}, error) {
		return c.fetchWithRetry(ctx, asin, country)
	})
	if err != nil {
		return nil, err
	}

	payload, ok := value.(map[string]interface{})
	if !ok {
		return nil, ErrNoData
	}
	return payload, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, asin, country string) (interface{}, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		payload, err := c.fetchDetails(ctx, asin, country)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"asin":    asin,
				"attempt": attempt,
			}).Debug("Product details lookup failed, trying search fallback")
			payload, err = c.searchFallback(ctx, asin, country)
		}
		if err == nil {
			return payload, nil
		}
		lastErr = err

		if errors.Is(err, ErrNoData) {
			// Retrying will not conjure up data the upstream does not have.
			return nil, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		if IsRateLimited(err) {
			backoff := c.cfg.BackoffBase << (attempt - 1)
			c.logger.WithFields(logrus.Fields{
				"asin":    asin,
				"attempt": attempt,
				"backoff": backoff.String(),
				"queued":  c.queue.Len(),
			}).Warn("Rate limited by supplier API, backing off")
			if waitErr := c.wait(ctx, backoff); waitErr != nil {
				return nil, waitErr
			}
		}
	}

	return nil, fmt.Errorf("product fetch for %s failed after %d attempts: %w", asin, c.cfg.MaxRetries, lastErr)
}

// fetchDetails hits the primary product-details endpoint.
func (c *Client) fetchDetails(ctx context.Context, asin, country string) (map[string]interface{}, error) {
	params := url.Values{}
	params.Set("asin", asin)
	params.Set("country", country)

	data, err := c.get(ctx, "/product-details", params)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNoData
	}
	return data, nil
}

// searchFallback queries the search endpoint and picks the entry whose
// identifier matches exactly, falling back to the first result.
func (c *Client) searchFallback(ctx context.Context, asin, country string) (map[string]interface{}, error) {
	params := url.Values{}
	params.Set("query", asin)
	params.Set("page", "1")
	params.Set("country", country)
	params.Set("sort_by", "RELEVANCE")

	data, err := c.get(ctx, "/search", params)
	if err != nil {
		return nil, err
	}

	rawProducts, _ := data["products"].([]interface{})
	var first map[string]interface{}
	for _, raw := range rawProducts {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if first == nil {
			first = entry
		}
		if id, _ := entry["asin"].(string); id == asin {
			return entry, nil
		}
	}
	if first == nil {
		return nil, ErrNoData
	}
	return first, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (map[string]interface{}, error) {
	endpoint := fmt.Sprintf("%s%s?%s", c.cfg.BaseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build supplier request: %w", err)
	}
	req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	req.Header.Set("X-RapidAPI-Host", c.cfg.APIHost)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supplier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{StatusCode: resp.StatusCode, Endpoint: path}
	}

	var envelope struct {
		Status string                 `json:"status"`
		Data   map[string]interface{} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode supplier response: %w", err)
	}

	return envelope.Data, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
