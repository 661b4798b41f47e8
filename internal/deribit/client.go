// Package deribit fetches option quotes and reference prices from the public
// Deribit REST API. No authentication is required for any endpoint used here.
package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ivsentinel/internal/config"
	"ivsentinel/internal/models"
)

// Client provides access to the Deribit public API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// rpcEnvelope is Deribit's JSON-RPC response wrapper: {jsonrpc, id, result}
// on success, {jsonrpc, id, error} on failure.
type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type indexPriceResult struct {
	IndexPrice float64 `json:"index_price"`
}

type instrumentInfo struct {
	InstrumentName string `json:"instrument_name"`
}

// bookSummary is one row of get_book_summary_by_currency. IVs come back as
// percentages (43.12 = 43.12%) and may be null on untraded strikes. Greeks
// arrive nested on some endpoints and at the top level on others.
type bookSummary struct {
	InstrumentName string        `json:"instrument_name"`
	MarkIV         *float64      `json:"mark_iv"`
	BidIV          *float64      `json:"bid_iv"`
	AskIV          *float64      `json:"ask_iv"`
	MarkPrice      float64       `json:"mark_price"`
	OpenInterest   float64       `json:"open_interest"`
	Greeks         *greeksResult `json:"greeks"`
	Delta          *float64      `json:"delta"`
	Gamma          *float64      `json:"gamma"`
	Theta          *float64      `json:"theta"`
	Vega           *float64      `json:"vega"`
}

type greeksResult struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// NewClient creates a Deribit client from configuration.
func NewClient(cfg config.DeribitConfig) *Client {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: maxRetries,
	}
}

// IndexPrice returns the current index (spot) price for an index name such
// as "btc_usd".
func (c *Client) IndexPrice(ctx context.Context, indexName string) (float64, error) {
	params := url.Values{}
	params.Set("index_name", indexName)

	result, err := c.doRequest(ctx, "/public/get_index_price", params)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch index price: %w", err)
	}

	var out indexPriceResult
	if err := json.Unmarshal(result, &out); err != nil {
		return 0, fmt.Errorf("failed to decode index price: %w", err)
	}
	return out.IndexPrice, nil
}

// InstrumentNames lists the live option instruments for a currency.
func (c *Client) InstrumentNames(ctx context.Context, currency string) ([]string, error) {
	params := url.Values{}
	params.Set("currency", currency)
	params.Set("kind", "option")
	params.Set("expired", "false")

	result, err := c.doRequest(ctx, "/public/get_instruments", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instruments: %w", err)
	}

	var infos []instrumentInfo
	if err := json.Unmarshal(result, &infos); err != nil {
		return nil, fmt.Errorf("failed to decode instruments: %w", err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.InstrumentName)
	}
	return names, nil
}

// OptionQuotes fetches the book summary for every option of a currency in a
// single call and normalizes the rows: percentage IVs become fractions and
// greeks are taken from the nested object when present, falling back to the
// top-level fields.
func (c *Client) OptionQuotes(ctx context.Context, currency string) ([]models.Quote, error) {
	params := url.Values{}
	params.Set("currency", currency)
	params.Set("kind", "option")

	result, err := c.doRequest(ctx, "/public/get_book_summary_by_currency", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch book summary: %w", err)
	}

	var summaries []bookSummary
	if err := json.Unmarshal(result, &summaries); err != nil {
		return nil, fmt.Errorf("failed to decode book summary: %w", err)
	}

	quotes := make([]models.Quote, 0, len(summaries))
	for _, s := range summaries {
		q := models.Quote{
			Instrument:   s.InstrumentName,
			MarkIV:       fraction(s.MarkIV),
			BidIV:        fraction(s.BidIV),
			AskIV:        fraction(s.AskIV),
			MarkPrice:    s.MarkPrice,
			OpenInterest: s.OpenInterest,
		}
		if s.Greeks != nil {
			q.Delta = s.Greeks.Delta
			q.Gamma = s.Greeks.Gamma
			q.Theta = s.Greeks.Theta
			q.Vega = s.Greeks.Vega
		} else {
			q.Delta = deref(s.Delta)
			q.Gamma = deref(s.Gamma)
			q.Theta = deref(s.Theta)
			q.Vega = deref(s.Vega)
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// MarketContext resolves the reference prices for a currency. Deribit has no
// traditional perpetual, so the index price stands in for both legs and the
// funding rate is zero.
func (c *Client) MarketContext(ctx context.Context, currency string) (models.MarketContext, error) {
	indexName := strings.ToLower(currency) + "_usd"
	spot, err := c.IndexPrice(ctx, indexName)
	if err != nil {
		return models.MarketContext{}, err
	}
	return models.MarketContext{
		Underlying:     currency,
		SpotPrice:      spot,
		PerpetualPrice: spot,
		FundingRate:    0,
		UpdatedAt:      time.Now().UTC(),
	}, nil
}

// doRequest performs a GET against the JSON-RPC-over-REST API with retry on
// server errors, returning the unwrapped result payload.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	urlStr := c.baseURL + endpoint
	if len(params) > 0 {
		urlStr += "?" + params.Encode()
	}

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}

		var envelope rpcEnvelope
		err = json.NewDecoder(resp.Body).Decode(&envelope)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if envelope.Error != nil {
			return nil, fmt.Errorf("deribit API error: %s", envelope.Error.Message)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}
		return envelope.Result, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func fraction(pct *float64) float64 {
	if pct == nil {
		return 0
	}
	return *pct / 100
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
