package monitor

import (
	"math"
	"testing"
	"time"

	"ivsentinel/internal/models"
)

func historyWindow(base time.Time, step time.Duration, ivs []float64) []models.HistoricalRecord {
	records := make([]models.HistoricalRecord, len(ivs))
	for i, iv := range ivs {
		records[i] = models.HistoricalRecord{
			Expiry:         "251226",
			Timestamp:      base.Add(time.Duration(i) * step),
			SyntheticATMIV: iv,
		}
	}
	return records
}

func TestStatistics_InsufficientSamples(t *testing.T) {
	m := New(nil, DefaultConfig())
	base := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)

	history := historyWindow(base, time.Hour, []float64{0.42, 0.43, 0.41, 0.42, 0.44, 0.42, 0.43, 0.42, 0.41})
	if _, insufficiency := m.statistics("251226", history, 0.50, 0, 0); insufficiency != InsufficientSamples {
		t.Errorf("9 samples: insufficiency = %q, want %q", insufficiency, InsufficientSamples)
	}
}

func TestStatistics_InsufficientSpan(t *testing.T) {
	m := New(nil, DefaultConfig())
	base := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)

	// Twelve samples crammed into 99 minutes: enough observations, not
	// enough wall-clock history.
	ivs := []float64{0.42, 0.43, 0.41, 0.42, 0.44, 0.42, 0.43, 0.42, 0.41, 0.43, 0.42, 0.44}
	history := historyWindow(base, 9*time.Minute, ivs)
	if _, insufficiency := m.statistics("251226", history, 0.50, 0, 0); insufficiency != InsufficientSpan {
		t.Errorf("99-minute span: insufficiency = %q, want %q", insufficiency, InsufficientSpan)
	}

	// The same samples spread over 11 hours are decidable.
	history = historyWindow(base, time.Hour, ivs)
	if _, insufficiency := m.statistics("251226", history, 0.50, 0, 0); insufficiency != "" {
		t.Errorf("11-hour span: insufficiency = %q, want decidable", insufficiency)
	}
}

func TestStatistics_AbnormalSpike(t *testing.T) {
	m := New(nil, DefaultConfig())
	base := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)

	ivs := []float64{0.40, 0.41, 0.42, 0.43, 0.44, 0.45, 0.46, 0.47, 0.48, 0.49}
	history := historyWindow(base, time.Hour, ivs)

	stats, insufficiency := m.statistics("251226", history, 0.60, 0.55, 0.50)
	if insufficiency != "" {
		t.Fatalf("unexpected insufficiency: %q", insufficiency)
	}

	if math.Abs(stats.CurrentIV-60) > 1e-9 {
		t.Errorf("CurrentIV = %v, want 60 (percent units)", stats.CurrentIV)
	}
	if math.Abs(stats.MeanIV-44.5) > 1e-9 {
		t.Errorf("MeanIV = %v, want 44.5", stats.MeanIV)
	}
	// Sample std dev of 0.40..0.49 is sqrt(0.00825/9).
	wantStd := math.Sqrt(0.00825/9.0) * 100
	if math.Abs(stats.StdDev-wantStd) > 1e-9 {
		t.Errorf("StdDev = %v, want %v", stats.StdDev, wantStd)
	}
	wantZ := (0.60 - 0.445) / math.Sqrt(0.00825/9.0)
	if math.Abs(stats.ZScore-wantZ) > 1e-9 {
		t.Errorf("ZScore = %v, want %v", stats.ZScore, wantZ)
	}
	if !stats.Abnormal {
		t.Error("a five-sigma spike should be abnormal")
	}
	if stats.Percentile != 100 {
		t.Errorf("Percentile = %v, want clamped 100", stats.Percentile)
	}
	if stats.DailyLowIV != 40 || stats.DailyHighIV != 49 {
		t.Errorf("daily range = %v-%v, want 40-49", stats.DailyLowIV, stats.DailyHighIV)
	}
	if stats.SampleCount != 10 {
		t.Errorf("SampleCount = %d, want 10", stats.SampleCount)
	}
	if stats.NoVariance {
		t.Error("NoVariance should be false for a varied window")
	}
	if math.Abs(stats.Call25dIV-55) > 1e-9 || math.Abs(stats.Put25dIV-50) > 1e-9 {
		t.Errorf("25d IVs = (%v, %v), want (55, 50)", stats.Call25dIV, stats.Put25dIV)
	}
	if stats.SkewLabel != "Calls > Puts (Bullish Vol)" {
		t.Errorf("SkewLabel = %q", stats.SkewLabel)
	}
}

func TestStatistics_CurrentAtMeanIsNormal(t *testing.T) {
	m := New(nil, DefaultConfig())
	base := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)

	ivs := []float64{0.40, 0.41, 0.42, 0.43, 0.44, 0.45, 0.46, 0.47, 0.48, 0.49}
	history := historyWindow(base, time.Hour, ivs)

	stats, insufficiency := m.statistics("251226", history, 0.445, 0, 0)
	if insufficiency != "" {
		t.Fatalf("unexpected insufficiency: %q", insufficiency)
	}
	if math.Abs(stats.ZScore) > 1e-9 {
		t.Errorf("ZScore at the mean = %v, want 0", stats.ZScore)
	}
	if stats.Abnormal {
		t.Error("the mean is not abnormal")
	}
	if math.Abs(stats.Percentile-50) > 1e-9 {
		t.Errorf("Percentile at mid-range = %v, want 50", stats.Percentile)
	}
}

func TestStatistics_OneSidedDetection(t *testing.T) {
	m := New(nil, DefaultConfig())
	base := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)

	ivs := []float64{0.40, 0.41, 0.42, 0.43, 0.44, 0.45, 0.46, 0.47, 0.48, 0.49}
	history := historyWindow(base, time.Hour, ivs)

	// A crash far below the mean yields a large negative Z but no alert;
	// only spikes upward count.
	stats, insufficiency := m.statistics("251226", history, 0.20, 0, 0)
	if insufficiency != "" {
		t.Fatalf("unexpected insufficiency: %q", insufficiency)
	}
	if stats.ZScore >= 0 {
		t.Errorf("ZScore = %v, want negative", stats.ZScore)
	}
	if stats.Abnormal {
		t.Error("an IV crash should not flag as abnormal")
	}
	if stats.Percentile != 0 {
		t.Errorf("Percentile = %v, want clamped 0", stats.Percentile)
	}
}

func TestStatistics_FlatWindow(t *testing.T) {
	m := New(nil, DefaultConfig())
	base := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)

	ivs := []float64{0.42, 0.42, 0.42, 0.42, 0.42, 0.42, 0.42, 0.42, 0.42, 0.42}
	history := historyWindow(base, time.Hour, ivs)

	stats, insufficiency := m.statistics("251226", history, 0.42, 0, 0)
	if insufficiency != "" {
		t.Fatalf("unexpected insufficiency: %q", insufficiency)
	}
	if stats.ZScore != 0 {
		t.Errorf("ZScore on flat window = %v, want 0", stats.ZScore)
	}
	if stats.Percentile != 50 {
		t.Errorf("Percentile on flat window = %v, want 50", stats.Percentile)
	}
	if !stats.NoVariance {
		t.Error("flat window should be tagged NoVariance")
	}
	if stats.Abnormal {
		t.Error("flat window cannot be abnormal")
	}
}

func TestSkewLabel(t *testing.T) {
	tests := []struct {
		callIV, putIV float64
		want          string
	}{
		{0.55, 0.50, "Calls > Puts (Bullish Vol)"},
		{0.50, 0.55, "Puts > Calls (Bearish Vol)"},
		{0.52, 0.50, "Balanced"}, // within the 5% dominance band
		{0.50, 0.52, "Balanced"},
		{0.50, 0.50, "Balanced"},
		{0, 0, "Balanced"},
	}
	for _, tt := range tests {
		if got := skewLabel(tt.callIV, tt.putIV); got != tt.want {
			t.Errorf("skewLabel(%v, %v) = %q, want %q", tt.callIV, tt.putIV, got, tt.want)
		}
	}
}
