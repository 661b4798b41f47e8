package monitor

import (
	"math"

	"ivsentinel/internal/models"
)

// varianceEpsilon is the floor below which a standard deviation or IV range
// is treated as flat.
const varianceEpsilon = 1e-6

// Insufficiency names the reason a history window could not be judged.
// An empty value means the statistics are decidable.
type Insufficiency string

const (
	// InsufficientSamples means the window holds fewer observations than
	// the configured minimum.
	InsufficientSamples Insufficiency = "not enough samples"
	// InsufficientSpan means the observations cover too little wall-clock
	// time; a burst of polls right after startup is not a day of history.
	InsufficientSpan Insufficiency = "history span too short"
)

// statistics judges the current synthetic ATM IV against the history window.
// History IVs and the current IV arrive as fractions; the returned fields
// are percentages. The 25-delta IVs only annotate the result.
func (m *Monitor) statistics(expiry string, history []models.HistoricalRecord, currentIV, call25IV, put25IV float64) (models.IVStatistics, Insufficiency) {
	if len(history) < m.config.MinSamples {
		return models.IVStatistics{}, InsufficientSamples
	}

	oldest, newest := history[0].Timestamp, history[0].Timestamp
	for _, rec := range history[1:] {
		if rec.Timestamp.Before(oldest) {
			oldest = rec.Timestamp
		}
		if rec.Timestamp.After(newest) {
			newest = rec.Timestamp
		}
	}
	if newest.Sub(oldest) < m.config.MinHistorySpan {
		return models.IVStatistics{}, InsufficientSpan
	}

	var sum float64
	low, high := history[0].SyntheticATMIV, history[0].SyntheticATMIV
	for _, rec := range history {
		sum += rec.SyntheticATMIV
		if rec.SyntheticATMIV < low {
			low = rec.SyntheticATMIV
		}
		if rec.SyntheticATMIV > high {
			high = rec.SyntheticATMIV
		}
	}
	mean := sum / float64(len(history))

	var sqSum float64
	for _, rec := range history {
		d := rec.SyntheticATMIV - mean
		sqSum += d * d
	}
	// Sample standard deviation; MinSamples >= 2 keeps the divisor positive.
	std := math.Sqrt(sqSum / float64(len(history)-1))

	zScore := 0.0
	noVariance := false
	if std > varianceEpsilon {
		zScore = (currentIV - mean) / std
	} else {
		noVariance = true
	}

	percentile := 50.0
	if ivRange := high - low; ivRange > varianceEpsilon {
		percentile = (currentIV - low) / ivRange * 100
		if percentile < 0 {
			percentile = 0
		} else if percentile > 100 {
			percentile = 100
		}
	} else {
		noVariance = true
	}

	return models.IVStatistics{
		Expiry:      expiry,
		CurrentIV:   currentIV * 100,
		MeanIV:      mean * 100,
		StdDev:      std * 100,
		ZScore:      zScore,
		Percentile:  percentile,
		DailyLowIV:  low * 100,
		DailyHighIV: high * 100,
		Call25dIV:   call25IV * 100,
		Put25dIV:    put25IV * 100,
		SkewLabel:   skewLabel(call25IV, put25IV),
		SampleCount: len(history),
		NoVariance:  noVariance,
		Abnormal:    zScore > m.config.ZScoreThreshold,
	}, ""
}

// skewLabel classifies 25-delta call/put dominance. One side must exceed the
// other by 5% to count as dominant.
func skewLabel(callIV, putIV float64) string {
	switch {
	case callIV > putIV*1.05:
		return "Calls > Puts (Bullish Vol)"
	case putIV > callIV*1.05:
		return "Puts > Calls (Bearish Vol)"
	default:
		return "Balanced"
	}
}
