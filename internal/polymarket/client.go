// Package polymarket provides a client for the Polymarket Gamma API.
//
// Transient upstream failures (429 and 5xx) are retried with exponential
// backoff. When retries are exhausted mid-pagination the client returns the
// partial batch collected so far instead of failing the caller; the core
// pipeline treats a short batch the same as a quiet market day. Malformed
// market records are dropped with a debug note, never fatal to the batch.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/samayp01/polyarb-engine/internal/logger"
	"github.com/samayp01/polyarb-engine/internal/models"
)

// Client provides access to the Polymarket Gamma API.
type Client struct {
	apiBaseURL     string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
	pageSize       int
	maxPages       int
}

// ClientConfig tunes retry and paging behavior.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
	PageSize       int
	MaxPages       int
}

// MarketFilters restricts which active markets are returned.
type MarketFilters struct {
	MinLiquidity float64
	MinVolume    float64
}

// gammaMarket mirrors the wire format. Numeric fields arrive as either JSON
// numbers or quoted strings depending on the endpoint, so they are decoded
// leniently.
type gammaMarket struct {
	ID            string          `json:"id"`
	Question      string          `json:"question"`
	Description   string          `json:"description"`
	Slug          string          `json:"slug"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	Volume        json.RawMessage `json:"volume"`
	Liquidity     json.RawMessage `json:"liquidity"`
	EndDate       string          `json:"endDate"`
	Closed        bool            `json:"closed"`
}

// NewClient creates a new Polymarket client.
func NewClient(apiBaseURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = 500 * time.Millisecond
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}

	return &Client{
		apiBaseURL:     apiBaseURL,
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
		pageSize:       cfg.PageSize,
		maxPages:       cfg.MaxPages,
	}
}

// FetchMarkets retrieves active markets passing the filters. On retry
// exhaustion it returns whatever pages were collected; the error is non-nil
// only when the context is canceled.
func (c *Client) FetchMarkets(ctx context.Context, filters MarketFilters) ([]models.Market, error) {
	var markets []models.Market

	for page := 0; page < c.maxPages; page++ {
		batch, err := c.fetchBatch(ctx, page*c.pageSize, false)
		if err != nil {
			if ctx.Err() != nil {
				return markets, ctx.Err()
			}
			logger.Warn("Fetch of active markets stopped at page %d: %v", page, err)
			break
		}

		for _, raw := range batch {
			market, ok := parseMarket(raw)
			if !ok {
				continue
			}
			if market.Liquidity >= filters.MinLiquidity && market.Volume >= filters.MinVolume {
				markets = append(markets, market)
			}
		}

		if len(batch) < c.pageSize {
			break
		}
	}

	logger.Info("Fetched %d active markets", len(markets))
	return markets, nil
}

// FetchClosedMarkets retrieves closed/resolved markets, up to maxPages pages.
// Partial results are returned on retry exhaustion.
func (c *Client) FetchClosedMarkets(ctx context.Context) ([]models.Market, error) {
	var markets []models.Market

	for page := 0; page < c.maxPages; page++ {
		batch, err := c.fetchBatch(ctx, page*c.pageSize, true)
		if err != nil {
			if ctx.Err() != nil {
				return markets, ctx.Err()
			}
			logger.Warn("Fetch of closed markets stopped at page %d: %v", page, err)
			break
		}

		for _, raw := range batch {
			if market, ok := parseMarket(raw); ok {
				markets = append(markets, market)
			}
		}

		if len(batch) < c.pageSize {
			break
		}
	}

	logger.Info("Fetched %d closed markets", len(markets))
	return markets, nil
}

func (c *Client) fetchBatch(ctx context.Context, offset int, closed bool) ([]gammaMarket, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	params.Set("offset", strconv.Itoa(offset))
	if closed {
		params.Set("closed", "true")
	} else {
		params.Set("closed", "false")
		params.Set("active", "true")
	}

	endpoint := fmt.Sprintf("%s/markets?%s", c.apiBaseURL, params.Encode())

	resp, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var batch []gammaMarket
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to decode markets: %w", err)
	}
	return batch, nil
}

// doRequest performs a GET with exponential backoff on transient failures.
func (c *Client) doRequest(ctx context.Context, endpoint string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelayBase * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "polyarb-engine/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("upstream error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// parseMarket converts a wire record into a Market. Malformed records return
// ok=false and are skipped by the caller.
func parseMarket(raw gammaMarket) (models.Market, bool) {
	if raw.ID == "" {
		logger.Debug("Dropping market with empty id (question: %q)", raw.Question)
		return models.Market{}, false
	}

	prices, ok := parsePrices(raw.OutcomePrices)
	if !ok {
		logger.Debug("Dropping market %s: unparseable outcome prices", raw.ID)
		return models.Market{}, false
	}

	volume, _ := parseLenientFloat(raw.Volume)
	liquidity, _ := parseLenientFloat(raw.Liquidity)

	var endDate time.Time
	if raw.EndDate != "" {
		parsed, err := time.Parse(time.RFC3339, raw.EndDate)
		if err != nil {
			logger.Debug("Market %s has unparseable end date %q", raw.ID, raw.EndDate)
		} else {
			endDate = parsed
		}
	}

	return models.Market{
		ID:          raw.ID,
		Question:    raw.Question,
		Description: raw.Description,
		Slug:        raw.Slug,
		YesPrice:    prices[0],
		Volume:      volume,
		Liquidity:   liquidity,
		EndDate:     endDate,
		Closed:      raw.Closed,
	}, true
}

// parsePrices decodes the outcomePrices field, which arrives either as a JSON
// array of strings or as a string containing such an array.
func parsePrices(raw json.RawMessage) ([]float64, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	encoded := raw
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		encoded = json.RawMessage(asString)
	}

	var strValues []string
	if err := json.Unmarshal(encoded, &strValues); err != nil {
		var numValues []float64
		if err := json.Unmarshal(encoded, &numValues); err != nil || len(numValues) == 0 {
			return nil, false
		}
		return numValues, true
	}
	if len(strValues) == 0 {
		return nil, false
	}

	prices := make([]float64, len(strValues))
	for i, s := range strValues {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		prices[i] = v
	}
	return prices, true
}

// parseLenientFloat accepts a JSON number or a quoted numeric string.
func parseLenientFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
