package notify

import "testing"

func TestExpiryDisplay(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"251226", "Dec 26, 2025"},
		{"260109", "Jan 9, 2026"},
		{"27DEC24", "Dec 27, 2024"},
		{"garbage", "garbage"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := expiryDisplay(tt.token); got != tt.expected {
			t.Errorf("expiryDisplay(%q) = %q, want %q", tt.token, got, tt.expected)
		}
	}
}

func TestSkewSentiment(t *testing.T) {
	tests := []struct {
		skew     float64
		expected string
	}{
		{2.5, "Bullish (Calls > Puts)"},
		{1.01, "Bullish (Calls > Puts)"},
		{1.0, "Neutral"}, // dead band is inclusive
		{0, "Neutral"},
		{-1.0, "Neutral"},
		{-1.01, "Bearish (Puts > Calls)"},
		{-3.2, "Bearish (Puts > Calls)"},
	}

	for _, tt := range tests {
		if got := skewSentiment(tt.skew); got != tt.expected {
			t.Errorf("skewSentiment(%v) = %q, want %q", tt.skew, got, tt.expected)
		}
	}
}

func TestGhostAssessment(t *testing.T) {
	tests := []struct {
		ghost              float64
		wantAssessment     string
		wantInterpretation string
	}{
		{0.5, "Minimal Ghost Skew - sentiment is genuine", "Most of the skew is real volatility sentiment"},
		{-0.99, "Minimal Ghost Skew - sentiment is genuine", "Most of the skew is real volatility sentiment"},
		{1.0, "Moderate Ghost Skew - some basis distortion", "Skew partly caused by market structure (basis/funding)"},
		{-1.5, "Moderate Ghost Skew - some basis distortion", "Skew partly caused by market structure (basis/funding)"},
		{2.0, "Significant Ghost Skew - heavy basis/funding distortion", "Skew heavily distorted by basis/funding - use caution"},
		{-4.7, "Significant Ghost Skew - heavy basis/funding distortion", "Skew heavily distorted by basis/funding - use caution"},
	}

	for _, tt := range tests {
		assessment, interpretation := ghostAssessment(tt.ghost)
		if assessment != tt.wantAssessment {
			t.Errorf("ghostAssessment(%v) assessment = %q, want %q", tt.ghost, assessment, tt.wantAssessment)
		}
		if interpretation != tt.wantInterpretation {
			t.Errorf("ghostAssessment(%v) interpretation = %q, want %q", tt.ghost, interpretation, tt.wantInterpretation)
		}
	}
}

func TestBasisSignal(t *testing.T) {
	tests := []struct {
		basis    float64
		expected string
	}{
		{150.0, "Contango (Bullish)"},
		{-80.0, "Backwardation (Bearish)"},
		{0, "Flat"},
	}

	for _, tt := range tests {
		if got := basisSignal(tt.basis); got != tt.expected {
			t.Errorf("basisSignal(%v) = %q, want %q", tt.basis, got, tt.expected)
		}
	}
}

func TestFundingSignal(t *testing.T) {
	tests := []struct {
		rate     float64
		expected string
	}{
		{0.0001, "Longs Pay Shorts (Bullish)"},
		{-0.0003, "Shorts Pay Longs (Bearish)"},
		{0, "Neutral"},
	}

	for _, tt := range tests {
		if got := fundingSignal(tt.rate); got != tt.expected {
			t.Errorf("fundingSignal(%v) = %q, want %q", tt.rate, got, tt.expected)
		}
	}
}
