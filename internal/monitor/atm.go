package monitor

import (
	"math"
	"sort"

	"ivsentinel/internal/instrument"
	"ivsentinel/internal/models"
)

type strikeIV struct {
	strike float64
	iv     float64
}

// SyntheticATMIV estimates the at-the-money IV for one expiry's quotes by
// linear interpolation between the strikes bracketing spot. IVs are
// fractions in and out.
//
// The second return is the reference strike: the spot price itself when the
// value is interpolated, or the concrete strike when a single quote stood
// in. A zero IV means the expiry had no usable quotes this cycle.
func SyntheticATMIV(quotes []models.Quote, spot float64) (float64, float64) {
	var pairs []strikeIV
	for _, q := range quotes {
		if q.MarkIV <= 0 {
			continue
		}
		strike, ok := instrument.Strike(q.Instrument)
		if !ok {
			continue
		}
		pairs = append(pairs, strikeIV{strike: strike, iv: q.MarkIV})
	}

	if len(pairs) == 1 {
		return pairs[0].iv, pairs[0].strike
	}
	if len(pairs) == 0 {
		// No quote carried both a numeric strike and a positive IV. Fall
		// back to the quote nearest spot so the caller sees whatever IV it
		// has, usually zero.
		nearest, found := 0.0, false
		bestDist := math.MaxFloat64
		for _, q := range quotes {
			strike, ok := instrument.Strike(q.Instrument)
			if !ok {
				continue
			}
			if d := math.Abs(strike - spot); d < bestDist {
				bestDist, nearest, found = d, q.MarkIV, true
			}
		}
		if found {
			return nearest, spot
		}
		return 0, spot
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].strike < pairs[j].strike })

	var lower, upper *strikeIV
	for i := range pairs {
		if pairs[i].strike <= spot {
			lower = &pairs[i]
		} else {
			upper = &pairs[i]
			break
		}
	}

	// Spot sits outside the strike ladder; the nearest endpoint stands in.
	if lower == nil {
		return pairs[0].iv, pairs[0].strike
	}
	if upper == nil {
		last := pairs[len(pairs)-1]
		return last.iv, last.strike
	}

	// lower.strike <= spot < upper.strike keeps the width positive.
	width := upper.strike - lower.strike
	weightLower := (upper.strike - spot) / width
	weightUpper := 1 - weightLower
	return weightLower*lower.iv + weightUpper*upper.iv, spot
}
