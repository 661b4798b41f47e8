// Package binance fetches option quotes from the Binance European options
// API and reference prices from the spot and USD-M futures APIs.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	bapi "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"ivsentinel/internal/config"
	"ivsentinel/internal/models"
)

// Client provides access to the Binance options, spot, and futures APIs.
// Option quotes come from the raw eapi REST surface; the spot and perpetual
// reference legs go through the exchange SDK.
type Client struct {
	optionsBaseURL string
	apiKey         string
	apiSecret      string
	httpClient     *http.Client
	limiter        *rate.Limiter
	spot           *bapi.Client
	perp           *futures.Client
}

type exchangeInfo struct {
	OptionSymbols []struct {
		Symbol string `json:"symbol"`
	} `json:"optionSymbols"`
}

// markRow is one row of /eapi/v1/mark. The options API encodes every number
// as a string and carries no open interest.
type markRow struct {
	Symbol    string `json:"symbol"`
	MarkPrice string `json:"markPrice"`
	BidIV     string `json:"bidIV"`
	AskIV     string `json:"askIV"`
	MarkIV    string `json:"markIV"`
	Delta     string `json:"delta"`
	Theta     string `json:"theta"`
	Gamma     string `json:"gamma"`
	Vega      string `json:"vega"`
}

// NewClient creates a Binance client from configuration. The futures leg
// uses only public endpoints and needs no credentials.
func NewClient(cfg config.BinanceConfig) *Client {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		optionsBaseURL: strings.TrimRight(cfg.OptionsBaseURL, "/"),
		apiKey:         cfg.APIKey,
		apiSecret:      cfg.APISecret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
		spot:    bapi.NewClient(cfg.APIKey, cfg.APISecret),
		perp:    futures.NewClient("", ""),
	}
}

// InstrumentNames lists the live option symbols for an underlying. Binance
// symbols share the BTC-251226-96000-C layout, so they feed the instrument
// parser unchanged.
func (c *Client) InstrumentNames(ctx context.Context, currency string) ([]string, error) {
	body, err := c.doRequest(ctx, "/eapi/v1/exchangeInfo", nil, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchange info: %w", err)
	}

	var info exchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode exchange info: %w", err)
	}

	prefix := currency + "-"
	var names []string
	for _, s := range info.OptionSymbols {
		if strings.HasPrefix(s.Symbol, prefix) {
			names = append(names, s.Symbol)
		}
	}
	return names, nil
}

// OptionQuotes fetches mark data for every option in one call. IVs arrive as
// fractions already; open interest is absent from this endpoint, so quotes
// report zero.
func (c *Client) OptionQuotes(ctx context.Context, currency string) ([]models.Quote, error) {
	body, err := c.doRequest(ctx, "/eapi/v1/mark", nil, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mark data: %w", err)
	}

	var rows []markRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode mark data: %w", err)
	}

	prefix := currency + "-"
	quotes := make([]models.Quote, 0, len(rows))
	for _, row := range rows {
		if !strings.HasPrefix(row.Symbol, prefix) {
			continue
		}
		quotes = append(quotes, models.Quote{
			Instrument: row.Symbol,
			MarkIV:     num(row.MarkIV),
			BidIV:      num(row.BidIV),
			AskIV:      num(row.AskIV),
			MarkPrice:  num(row.MarkPrice),
			Delta:      num(row.Delta),
			Gamma:      num(row.Gamma),
			Theta:      num(row.Theta),
			Vega:       num(row.Vega),
		})
	}
	return quotes, nil
}

// MarketContext resolves the spot price from the spot API and the perpetual
// mark price and funding rate from the futures premium index, both for the
// USDT pair of the underlying.
func (c *Client) MarketContext(ctx context.Context, currency string) (models.MarketContext, error) {
	symbol := currency + "USDT"

	prices, err := c.spot.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return models.MarketContext{}, fmt.Errorf("failed to fetch spot price: %w", err)
	}
	if len(prices) == 0 {
		return models.MarketContext{}, fmt.Errorf("no spot price for %s", symbol)
	}
	spot, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return models.MarketContext{}, fmt.Errorf("bad spot price %q: %w", prices[0].Price, err)
	}

	rows, err := c.perp.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return models.MarketContext{}, fmt.Errorf("failed to fetch premium index: %w", err)
	}
	if len(rows) == 0 {
		return models.MarketContext{}, fmt.Errorf("no premium index for %s", symbol)
	}
	perp, err := strconv.ParseFloat(rows[0].MarkPrice, 64)
	if err != nil {
		return models.MarketContext{}, fmt.Errorf("bad perpetual mark price %q: %w", rows[0].MarkPrice, err)
	}
	funding, err := strconv.ParseFloat(rows[0].LastFundingRate, 64)
	if err != nil {
		return models.MarketContext{}, fmt.Errorf("bad funding rate %q: %w", rows[0].LastFundingRate, err)
	}

	return models.MarketContext{
		Underlying:     currency,
		SpotPrice:      spot,
		PerpetualPrice: perp,
		FundingRate:    funding,
		UpdatedAt:      time.Now().UTC(),
	}, nil
}

// VerifyCredentials performs a signed account request to confirm the API key
// works. Quotes come from public endpoints, so the monitor runs fine without
// credentials.
func (c *Client) VerifyCredentials(ctx context.Context) error {
	if c.apiKey == "" || c.apiSecret == "" {
		return fmt.Errorf("api credentials not configured")
	}
	if _, err := c.doRequest(ctx, "/eapi/v1/account", nil, true); err != nil {
		return fmt.Errorf("account request failed: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, signed bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	}
	query := params.Encode()
	if signed {
		// The signature covers the query string exactly as transmitted.
		query += "&signature=" + c.sign(query)
	}

	urlStr := c.optionsBaseURL + endpoint
	if query != "" {
		urlStr += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// num parses one of the API's stringly-typed numbers; malformed or empty
// values decode as zero.
func num(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
