package models

import "time"

// AlertKind distinguishes the alerting paths.
type AlertKind string

const (
	// AlertThreshold fires the first time an expiry's strikes cross the
	// simple-mode IV threshold.
	AlertThreshold AlertKind = "threshold"
	// AlertThresholdRising fires when an already-alerted expiry's IV keeps
	// climbing past the increase threshold.
	AlertThresholdRising AlertKind = "threshold_rising"
	// AlertAbnormal is a statistical-mode Z-score spike.
	AlertAbnormal AlertKind = "abnormal"
)

// TrackerState is the per-expiry hysteresis memory of the alert tracker.
// The zero value means idle: no active alert, no baseline.
type TrackerState struct {
	LastAlertIV    float64 `json:"last_alert_iv"`
	InitialAlertIV float64 `json:"initial_alert_iv"`
}

// Armed reports whether an alert sequence is active for the expiry.
func (t TrackerState) Armed() bool {
	return t.LastAlertIV > 0
}

// TriggeredQuote is one strike that crossed the simple-mode threshold.
// MarkIV is a percentage.
type TriggeredQuote struct {
	Instrument   string  `json:"instrument"`
	MarkIV       float64 `json:"mark_iv"`
	OpenInterest float64 `json:"open_interest"`
	Delta        float64 `json:"delta"`
	MarkPrice    float64 `json:"mark_price"`
}

// Opportunity is one sellable strike scored by the opportunity ranker.
// MarkIV is a percentage; Delta and Theta are absolute values.
type Opportunity struct {
	Instrument   string  `json:"instrument"`
	MarkIV       float64 `json:"mark_iv"`
	Delta        float64 `json:"delta"`
	Theta        float64 `json:"theta"`
	Vega         float64 `json:"vega"`
	MarkPrice    float64 `json:"mark_price"`
	DaysToExpiry int     `json:"days_to_expiry"`
	DailyRentPct float64 `json:"daily_rent_pct"`
	Score        float64 `json:"score"`
}

// Alert is the outbound payload handed to notifiers and recorded in storage.
// Simple-mode alerts populate Triggered and the threshold fields; abnormal
// alerts populate Stats, Skew, and Opportunities.
type Alert struct {
	ID            string           `json:"id"`
	Kind          AlertKind        `json:"kind"`
	Underlying    string           `json:"underlying"`
	Expiry        string           `json:"expiry"`
	ExpiryDate    time.Time        `json:"expiry_date"`
	DaysToExpiry  int              `json:"days_to_expiry"`
	ThresholdIV   float64          `json:"threshold_iv"`
	MaxIV         float64          `json:"max_iv"`
	PreviousIV    float64          `json:"previous_iv"`
	Triggered     []TriggeredQuote `json:"triggered,omitempty"`
	Stats         *IVStatistics    `json:"stats,omitempty"`
	Skew          *SkewComparison  `json:"skew,omitempty"`
	Opportunities []Opportunity    `json:"opportunities,omitempty"`
	Context       MarketContext    `json:"context"`
	CreatedAt     time.Time        `json:"created_at"`
}
