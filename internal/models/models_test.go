package models

import (
	"math"
	"testing"
)

func TestQuoteValidate(t *testing.T) {
	valid := Quote{
		Instrument:   "BTC-251226-88000-C",
		MarkIV:       0.52,
		BidIV:        0.50,
		AskIV:        0.54,
		MarkPrice:    1250.5,
		OpenInterest: 15000,
		Delta:        0.48,
	}

	tests := []struct {
		name    string
		mutate  func(q *Quote)
		wantErr bool
	}{
		{"valid quote", func(q *Quote) {}, false},
		{"empty instrument", func(q *Quote) { q.Instrument = "" }, true},
		{"negative mark IV", func(q *Quote) { q.MarkIV = -0.1 }, true},
		{"negative bid IV", func(q *Quote) { q.BidIV = -0.1 }, true},
		{"IV in percent units", func(q *Quote) { q.MarkIV = 52.0 }, true},
		{"negative mark price", func(q *Quote) { q.MarkPrice = -1 }, true},
		{"negative open interest", func(q *Quote) { q.OpenInterest = -5 }, true},
		{"delta above one", func(q *Quote) { q.Delta = 1.2 }, true},
		{"delta below minus one", func(q *Quote) { q.Delta = -1.2 }, true},
		{"put delta", func(q *Quote) { q.Delta = -0.3 }, false},
		{"zero IV allowed", func(q *Quote) { q.MarkIV = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)
			err := q.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Quote.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestQuoteSide(t *testing.T) {
	call := Quote{Instrument: "BTC-251226-88000-C"}
	if !call.IsCall() || call.IsPut() {
		t.Errorf("expected %s to be a call", call.Instrument)
	}

	put := Quote{Instrument: "BTC-27DEC24-88000-P"}
	if !put.IsPut() || put.IsCall() {
		t.Errorf("expected %s to be a put", put.Instrument)
	}
}

func TestMarketContextReady(t *testing.T) {
	tests := []struct {
		name string
		mc   MarketContext
		want bool
	}{
		{"both prices set", MarketContext{SpotPrice: 97400, PerpetualPrice: 97550}, true},
		{"missing spot", MarketContext{PerpetualPrice: 97550}, false},
		{"missing perpetual", MarketContext{SpotPrice: 97400}, false},
		{"empty", MarketContext{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mc.Ready(); got != tt.want {
				t.Errorf("Ready() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarketContextBasis(t *testing.T) {
	mc := MarketContext{SpotPrice: 100000, PerpetualPrice: 100250, FundingRate: 0.0001}

	if got := mc.Basis(); got != 250 {
		t.Errorf("Basis() = %v, want 250", got)
	}
	if got := mc.BasisPct(); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("BasisPct() = %v, want 0.25", got)
	}
	if got := mc.AnnualizedFunding(); math.Abs(got-0.1095) > 1e-9 {
		t.Errorf("AnnualizedFunding() = %v, want 0.1095", got)
	}

	zeroSpot := MarketContext{PerpetualPrice: 100250}
	if got := zeroSpot.BasisPct(); got != 0 {
		t.Errorf("BasisPct() with zero spot = %v, want 0", got)
	}
}

func TestIVStatisticsRankLabel(t *testing.T) {
	tests := []struct {
		percentile float64
		want       string
	}{
		{95, "95% (Near Daily Highs)"},
		{81, "81% (Near Daily Highs)"},
		{80, "80% (Mid-Range)"},
		{50, "50% (Mid-Range)"},
		{20, "20% (Mid-Range)"},
		{19, "19% (Near Daily Lows)"},
		{0, "0% (Near Daily Lows)"},
	}

	for _, tt := range tests {
		s := IVStatistics{Percentile: tt.percentile}
		if got := s.RankLabel(); got != tt.want {
			t.Errorf("RankLabel() with percentile %.0f = %q, want %q", tt.percentile, got, tt.want)
		}
	}
}

func TestTrackerStateArmed(t *testing.T) {
	if (TrackerState{}).Armed() {
		t.Error("zero state should not be armed")
	}
	if !(TrackerState{LastAlertIV: 46.2, InitialAlertIV: 46.2}).Armed() {
		t.Error("state with a last alert IV should be armed")
	}
}
