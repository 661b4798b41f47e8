// Package models defines the domain types shared across the monitor:
// normalized option quotes, market context, historical ATM records,
// statistics, and outbound alerts.
package models

import (
	"errors"
	"strings"
	"time"
)

// Option side markers as they appear in the last field of instrument
// identifiers such as "BTC-251226-88000-C".
const (
	SideCall = "C"
	SidePut  = "P"
)

// Quote is one instrument's market snapshot for a single polling cycle.
// Exchange adapters normalize before handing quotes to the monitor: IVs are
// fractions (0.52, not 52), the mark price is in the exchange's quote
// currency, and greeks are spot-referenced.
type Quote struct {
	Instrument   string  `json:"instrument"`
	MarkIV       float64 `json:"mark_iv"`
	BidIV        float64 `json:"bid_iv"`
	AskIV        float64 `json:"ask_iv"`
	MarkPrice    float64 `json:"mark_price"`
	OpenInterest float64 `json:"open_interest"`
	Delta        float64 `json:"delta"`
	Gamma        float64 `json:"gamma"`
	Theta        float64 `json:"theta"`
	Vega         float64 `json:"vega"`
}

// Validate checks quote invariants. Adapters drop quotes that fail.
func (q *Quote) Validate() error {
	if q.Instrument == "" {
		return errors.New("instrument name cannot be empty")
	}
	if q.MarkIV < 0 || q.BidIV < 0 || q.AskIV < 0 {
		return errors.New("implied volatility cannot be negative")
	}
	if q.MarkIV > 10 {
		return errors.New("mark IV looks like a percentage, expected a fraction")
	}
	if q.MarkPrice < 0 {
		return errors.New("mark price cannot be negative")
	}
	if q.OpenInterest < 0 {
		return errors.New("open interest cannot be negative")
	}
	if q.Delta < -1.0 || q.Delta > 1.0 {
		return errors.New("delta must be between -1.0 and 1.0")
	}
	return nil
}

// IsCall reports whether the instrument identifier names a call.
func (q *Quote) IsCall() bool {
	return strings.HasSuffix(q.Instrument, "-"+SideCall)
}

// IsPut reports whether the instrument identifier names a put.
func (q *Quote) IsPut() bool {
	return strings.HasSuffix(q.Instrument, "-"+SidePut)
}

// MarketContext carries the underlying's price environment. It refreshes on
// a slower cadence than quotes and may be stale or empty early in a run.
type MarketContext struct {
	Underlying     string    `json:"underlying"`
	SpotPrice      float64   `json:"spot_price"`
	PerpetualPrice float64   `json:"perpetual_price"`
	FundingRate    float64   `json:"funding_rate"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Ready reports whether both reference prices are usable. Statistical
// analysis is skipped for the cycle until this holds.
func (mc MarketContext) Ready() bool {
	return mc.SpotPrice > 0 && mc.PerpetualPrice > 0
}

// Basis returns the perpetual-minus-spot basis in quote currency units.
func (mc MarketContext) Basis() float64 {
	return mc.PerpetualPrice - mc.SpotPrice
}

// BasisPct returns the basis as a percentage of spot, or 0 when spot is
// unknown.
func (mc MarketContext) BasisPct() float64 {
	if mc.SpotPrice <= 0 {
		return 0
	}
	return mc.Basis() / mc.SpotPrice * 100
}

// AnnualizedFunding converts the periodic 8-hour funding rate to an annual
// rate, three settlement cycles per day over 365 days.
func (mc MarketContext) AnnualizedFunding() float64 {
	return mc.FundingRate * 3 * 365
}
