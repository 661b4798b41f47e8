package models

import (
	"fmt"
	"time"
)

// HistoricalRecord is one synthetic ATM IV observation for an expiry,
// persisted once per polling cycle. Rows are unique on (Expiry, Timestamp).
// IV fields are stored as fractions.
type HistoricalRecord struct {
	Expiry         string    `json:"expiry"`
	Timestamp      time.Time `json:"timestamp"`
	SyntheticATMIV float64   `json:"synthetic_atm_iv"`
	SpotPrice      float64   `json:"spot_price"`
	PerpetualPrice float64   `json:"perpetual_price"`
	Basis          float64   `json:"basis"`
	BasisPct       float64   `json:"basis_pct"`
	FundingRate    float64   `json:"funding_rate"`
	ATMStrike      float64   `json:"atm_strike"`
	Call25dIV      float64   `json:"call_25d_iv"`
	Put25dIV       float64   `json:"put_25d_iv"`
}

// IVStatistics compares the current synthetic ATM IV against the recent
// history window. Unlike HistoricalRecord, every IV-like field here is a
// percentage, ready for display.
type IVStatistics struct {
	Expiry      string  `json:"expiry"`
	CurrentIV   float64 `json:"current_iv"`
	MeanIV      float64 `json:"mean_iv"`
	StdDev      float64 `json:"std_dev"`
	ZScore      float64 `json:"z_score"`
	Percentile  float64 `json:"percentile"`
	DailyLowIV  float64 `json:"daily_low_iv"`
	DailyHighIV float64 `json:"daily_high_iv"`
	Call25dIV   float64 `json:"call_25d_iv"`
	Put25dIV    float64 `json:"put_25d_iv"`
	SkewLabel   string  `json:"skew_label"`
	SampleCount int     `json:"sample_count"`
	NoVariance  bool    `json:"no_variance"`
	Abnormal    bool    `json:"abnormal"`
}

// RankLabel renders the percentile with a position hint for display.
func (s IVStatistics) RankLabel() string {
	switch {
	case s.Percentile > 80:
		return fmt.Sprintf("%.0f%% (Near Daily Highs)", s.Percentile)
	case s.Percentile < 20:
		return fmt.Sprintf("%.0f%% (Near Daily Lows)", s.Percentile)
	default:
		return fmt.Sprintf("%.0f%% (Mid-Range)", s.Percentile)
	}
}

// SkewComparison holds the 25-delta skew measured under both delta reference
// frames plus their divergence. IVs and skews are percentages; skews are in
// percentage points (call IV minus put IV).
type SkewComparison struct {
	SpotCallIV        float64 `json:"spot_call_25d_iv"`
	SpotPutIV         float64 `json:"spot_put_25d_iv"`
	SpotCallStrike    float64 `json:"spot_call_strike"`
	SpotPutStrike     float64 `json:"spot_put_strike"`
	SpotSkew          float64 `json:"spot_skew"`
	ForwardCallIV     float64 `json:"forward_call_25d_iv"`
	ForwardPutIV      float64 `json:"forward_put_25d_iv"`
	ForwardCallStrike float64 `json:"forward_call_strike"`
	ForwardPutStrike  float64 `json:"forward_put_strike"`
	ForwardSkew       float64 `json:"forward_skew"`
	GhostSkew         float64 `json:"ghost_skew"`
	ForwardPrice      float64 `json:"forward_price"`
}
