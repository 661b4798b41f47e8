package monitor

import (
	"math"
	"testing"

	"ivsentinel/internal/models"
)

func TestForwardPrice(t *testing.T) {
	// Zero funding keeps the forward exactly on the perpetual.
	if got := ForwardPrice(100000, 0, 0.5); got != 100000 {
		t.Errorf("ForwardPrice with zero funding = %v, want 100000", got)
	}

	// Positive funding discounts the forward below the perpetual.
	got := ForwardPrice(100000, 0.0001, 30.0/365.0)
	want := 100000 * math.Exp(-0.0001*3*365*30.0/365.0)
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("ForwardPrice = %v, want %v", got, want)
	}
	if got >= 100000 {
		t.Error("positive funding should discount the forward")
	}

	// Negative funding lifts it.
	if got := ForwardPrice(100000, -0.0001, 30.0/365.0); got <= 100000 {
		t.Error("negative funding should lift the forward")
	}
}

func TestForwardDelta(t *testing.T) {
	// Forward below spot scales absolute delta up.
	got := ForwardDelta(0.25, 100000, 99000)
	want := 0.25 * 100000 / 99000
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("ForwardDelta = %v, want %v", got, want)
	}

	// Unusable prices pass the spot delta through.
	if got := ForwardDelta(0.25, 0, 99000); got != 0.25 {
		t.Errorf("ForwardDelta with zero perp = %v, want 0.25", got)
	}
	if got := ForwardDelta(0.25, 100000, 0); got != 0.25 {
		t.Errorf("ForwardDelta with zero forward = %v, want 0.25", got)
	}
}

func skewQuote(name string, iv, delta float64) models.Quote {
	return models.Quote{Instrument: name, MarkIV: iv, Delta: delta}
}

func TestDualSkew_GhostZeroWithoutFunding(t *testing.T) {
	quotes := []models.Quote{
		skewQuote("BTC-251226-98000-C", 0.50, 0.30),
		skewQuote("BTC-251226-104000-C", 0.53, 0.22),
		skewQuote("BTC-251226-92000-P", 0.55, -0.27),
		skewQuote("BTC-251226-86000-P", 0.58, -0.15),
	}

	// With zero funding the forward equals the perpetual, both frames pick
	// the same strikes, and the ghost skew vanishes exactly.
	cmp := DualSkew(quotes, 100000, 0, 30.0/365.0)
	if cmp.GhostSkew != 0 {
		t.Errorf("ghost skew without funding = %v, want 0", cmp.GhostSkew)
	}
	if cmp.SpotCallStrike != cmp.ForwardCallStrike || cmp.SpotPutStrike != cmp.ForwardPutStrike {
		t.Error("frames picked different strikes despite identical deltas")
	}
	if cmp.SpotCallStrike != 98000 {
		t.Errorf("spot call strike = %v, want 98000 (delta 0.30 is nearest 0.25)", cmp.SpotCallStrike)
	}
	if cmp.SpotPutStrike != 92000 {
		t.Errorf("spot put strike = %v, want 92000 (delta 0.27 is nearest 0.25)", cmp.SpotPutStrike)
	}
}

func TestDualSkew_FramesDiverge(t *testing.T) {
	quotes := []models.Quote{
		skewQuote("BTC-261225-98000-C", 0.50, 0.30),
		skewQuote("BTC-261225-110000-C", 0.60, 0.10),
		skewQuote("BTC-261225-95000-P", 0.55, -0.25),
		skewQuote("BTC-261225-80000-P", 0.70, -0.08),
	}

	// Extreme funding over a year crushes the forward, inflating forward
	// deltas far above 0.25; the forward frame then prefers the smallest
	// spot deltas while the spot frame keeps the ones nearest 0.25.
	cmp := DualSkew(quotes, 100000, 0.01, 1.0)

	if cmp.SpotCallStrike != 98000 || cmp.SpotPutStrike != 95000 {
		t.Errorf("spot frame strikes = (%v, %v), want (98000, 95000)",
			cmp.SpotCallStrike, cmp.SpotPutStrike)
	}
	if cmp.ForwardCallStrike != 110000 || cmp.ForwardPutStrike != 80000 {
		t.Errorf("forward frame strikes = (%v, %v), want (110000, 80000)",
			cmp.ForwardCallStrike, cmp.ForwardPutStrike)
	}

	if math.Abs(cmp.SpotSkew-(-5)) > 1e-9 {
		t.Errorf("spot skew = %v, want -5", cmp.SpotSkew)
	}
	if math.Abs(cmp.ForwardSkew-(-10)) > 1e-9 {
		t.Errorf("forward skew = %v, want -10", cmp.ForwardSkew)
	}
	if math.Abs(cmp.GhostSkew-5) > 1e-9 {
		t.Errorf("ghost skew = %v, want +5", cmp.GhostSkew)
	}
}

func TestDualSkew_MissingSide(t *testing.T) {
	quotes := []models.Quote{
		skewQuote("BTC-251226-98000-C", 0.50, 0.25),
	}

	cmp := DualSkew(quotes, 100000, 0, 30.0/365.0)
	if cmp.SpotPutIV != 0 || cmp.SpotPutStrike != 0 {
		t.Errorf("missing put side should report zeros, got IV %v strike %v",
			cmp.SpotPutIV, cmp.SpotPutStrike)
	}
	if math.Abs(cmp.SpotSkew-50) > 1e-9 {
		t.Errorf("spot skew with missing puts = %v, want 50", cmp.SpotSkew)
	}
}

func TestDualSkew_TieKeepsFirst(t *testing.T) {
	quotes := []models.Quote{
		skewQuote("BTC-251226-98000-C", 0.50, 0.30),
		skewQuote("BTC-251226-102000-C", 0.52, 0.20),
	}

	// Both deltas sit 0.05 from the target; the earlier quote wins.
	cmp := DualSkew(quotes, 100000, 0, 30.0/365.0)
	if cmp.SpotCallStrike != 98000 {
		t.Errorf("tie-break picked strike %v, want first quote's 98000", cmp.SpotCallStrike)
	}
}

func TestDualSkew_IVsReportedAsPercent(t *testing.T) {
	quotes := []models.Quote{
		skewQuote("BTC-251226-98000-C", 0.50, 0.25),
		skewQuote("BTC-251226-92000-P", 0.55, -0.25),
	}

	cmp := DualSkew(quotes, 100000, 0, 30.0/365.0)
	if math.Abs(cmp.SpotCallIV-50) > 1e-9 || math.Abs(cmp.SpotPutIV-55) > 1e-9 {
		t.Errorf("IVs = (%v, %v), want percent units (50, 55)", cmp.SpotCallIV, cmp.SpotPutIV)
	}
}
