package monitor

import (
	"math"
	"testing"
	"time"

	"ivsentinel/internal/models"
)

func TestRankOpportunities_DeltaBand(t *testing.T) {
	now := time.Date(2025, 12, 20, 15, 0, 0, 0, time.UTC)
	quotes := []models.Quote{
		{Instrument: "BTC-251230-90000-C", MarkIV: 0.50, Delta: 0.80},
		{Instrument: "BTC-251230-96000-C", MarkIV: 0.51, Delta: 0.65},
		{Instrument: "BTC-251230-100000-C", MarkIV: 0.52, Delta: 0.30},
		{Instrument: "BTC-251230-110000-C", MarkIV: 0.55, Delta: 0.05},
		{Instrument: "BTC-251230-120000-C", MarkIV: 0.60, Delta: 0.04},
		{Instrument: "BTC-251230-94000-P", MarkIV: 0.53, Delta: -0.25},
	}

	opps := RankOpportunities(quotes, 97400, 0.05, 0.65, now)
	if len(opps) != 4 {
		t.Fatalf("got %d opportunities, want 4 (band ends inclusive)", len(opps))
	}
	for _, o := range opps {
		if o.Delta < 0.05 || o.Delta > 0.65 {
			t.Errorf("%s: delta %v escaped the band", o.Instrument, o.Delta)
		}
		if o.Delta < 0 {
			t.Errorf("%s: delta %v should be absolute", o.Instrument, o.Delta)
		}
	}
}

func TestRankOpportunities_SkipsUnparsable(t *testing.T) {
	now := time.Date(2025, 12, 20, 15, 0, 0, 0, time.UTC)
	quotes := []models.Quote{
		{Instrument: "BTC-PERPETUAL", MarkIV: 0.50, Delta: 0.30},
		{Instrument: "BTC-BADDATE-96000-C", MarkIV: 0.51, Delta: 0.30},
		{Instrument: "BTC-251230-96000-C", MarkIV: 0.52, Delta: 0.30},
	}

	opps := RankOpportunities(quotes, 97400, 0.05, 0.65, now)
	if len(opps) != 1 || opps[0].Instrument != "BTC-251230-96000-C" {
		t.Fatalf("opps = %+v, want only the well-formed instrument", opps)
	}
}

func TestRankOpportunities_DailyRent(t *testing.T) {
	now := time.Date(2025, 12, 20, 15, 0, 0, 0, time.UTC)
	quotes := []models.Quote{
		// Ten days out, premium 1000 on spot 100000: 1% total, 0.1%/day.
		{Instrument: "BTC-251230-100000-C", MarkIV: 0.52, Delta: 0.30, MarkPrice: 1000},
	}

	opps := RankOpportunities(quotes, 100000, 0.05, 0.65, now)
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	if opps[0].DaysToExpiry != 10 {
		t.Fatalf("DaysToExpiry = %d, want 10", opps[0].DaysToExpiry)
	}
	if math.Abs(opps[0].DailyRentPct-0.1) > 1e-9 {
		t.Errorf("DailyRentPct = %v, want 0.1", opps[0].DailyRentPct)
	}

	opps = RankOpportunities(quotes, 0, 0.05, 0.65, now)
	if len(opps) != 1 || opps[0].DailyRentPct != 0 {
		t.Errorf("with no spot price DailyRentPct should be 0, got %+v", opps)
	}
}

func TestRankOpportunities_FloorsExpiredDays(t *testing.T) {
	now := time.Date(2025, 12, 20, 15, 0, 0, 0, time.UTC)
	quotes := []models.Quote{
		{Instrument: "BTC-251220-96000-C", MarkIV: 0.50, Delta: 0.30, MarkPrice: 500},
	}

	opps := RankOpportunities(quotes, 100000, 0.05, 0.65, now)
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	if opps[0].DaysToExpiry != 1 {
		t.Errorf("expiry-day DaysToExpiry = %d, want floor of 1", opps[0].DaysToExpiry)
	}
	if math.Abs(opps[0].DailyRentPct-0.5) > 1e-9 {
		t.Errorf("DailyRentPct = %v, want 0.5", opps[0].DailyRentPct)
	}
}

func TestRankOpportunities_ScoreAndOrder(t *testing.T) {
	now := time.Date(2025, 12, 20, 15, 0, 0, 0, time.UTC)
	quotes := []models.Quote{
		// theta/vega*ivPct: 20/80*52 = 13.
		{Instrument: "BTC-251230-100000-C", MarkIV: 0.52, Delta: 0.30, Theta: -20, Vega: 80},
		// 45/60*51 = 38.25, ranks first.
		{Instrument: "BTC-251230-98000-C", MarkIV: 0.51, Delta: 0.45, Theta: -45, Vega: 60},
		// No vega: score falls back to the IV percentage, 55.
		{Instrument: "BTC-251230-110000-C", MarkIV: 0.55, Delta: 0.08, Theta: -5, Vega: 0},
	}

	opps := RankOpportunities(quotes, 97400, 0.05, 0.65, now)
	if len(opps) != 3 {
		t.Fatalf("got %d opportunities, want 3", len(opps))
	}

	want := []struct {
		instrument string
		score      float64
	}{
		{"BTC-251230-110000-C", 55},
		{"BTC-251230-98000-C", 38.25},
		{"BTC-251230-100000-C", 13},
	}
	for i, w := range want {
		if opps[i].Instrument != w.instrument {
			t.Errorf("rank %d = %s, want %s", i, opps[i].Instrument, w.instrument)
		}
		if math.Abs(opps[i].Score-w.score) > 1e-9 {
			t.Errorf("rank %d score = %v, want %v", i, opps[i].Score, w.score)
		}
	}
	if opps[1].Theta != 45 {
		t.Errorf("Theta = %v, want absolute value 45", opps[1].Theta)
	}
}
