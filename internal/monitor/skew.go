package monitor

import (
	"math"

	"ivsentinel/internal/instrument"
	"ivsentinel/internal/models"
)

// targetDelta is the moneyness the skew measurement anchors on.
const targetDelta = 0.25

// DualSkew measures one expiry's 25-delta call/put skew under both delta
// reference frames. The spot frame takes exchange deltas as quoted; the
// forward frame rescales them against a funding-derived forward price, so
// the two frames can disagree about which strike is the 25-delta one. The
// divergence between the frames' skews is the ghost skew: apparent sentiment
// created by basis and funding rather than by option demand.
//
// Sides with no quotes report zero IVs and strikes. All IVs and skews in the
// result are percentages.
func DualSkew(quotes []models.Quote, perpPrice, fundingRate, yearsToExpiry float64) models.SkewComparison {
	var calls, puts []models.Quote
	for _, q := range quotes {
		switch {
		case q.IsCall():
			calls = append(calls, q)
		case q.IsPut():
			puts = append(puts, q)
		}
	}

	forward := ForwardPrice(perpPrice, fundingRate, yearsToExpiry)
	spotMeasure := func(q models.Quote) float64 {
		return math.Abs(q.Delta)
	}
	forwardMeasure := func(q models.Quote) float64 {
		return ForwardDelta(math.Abs(q.Delta), perpPrice, forward)
	}

	cmp := models.SkewComparison{ForwardPrice: forward}

	if q := nearest25Delta(calls, spotMeasure); q != nil {
		cmp.SpotCallIV = q.MarkIV * 100
		cmp.SpotCallStrike, _ = instrument.Strike(q.Instrument)
	}
	if q := nearest25Delta(puts, spotMeasure); q != nil {
		cmp.SpotPutIV = q.MarkIV * 100
		cmp.SpotPutStrike, _ = instrument.Strike(q.Instrument)
	}
	if q := nearest25Delta(calls, forwardMeasure); q != nil {
		cmp.ForwardCallIV = q.MarkIV * 100
		cmp.ForwardCallStrike, _ = instrument.Strike(q.Instrument)
	}
	if q := nearest25Delta(puts, forwardMeasure); q != nil {
		cmp.ForwardPutIV = q.MarkIV * 100
		cmp.ForwardPutStrike, _ = instrument.Strike(q.Instrument)
	}

	cmp.SpotSkew = cmp.SpotCallIV - cmp.SpotPutIV
	cmp.ForwardSkew = cmp.ForwardCallIV - cmp.ForwardPutIV
	cmp.GhostSkew = cmp.SpotSkew - cmp.ForwardSkew
	return cmp
}

// nearest25Delta returns the quote whose measured delta is closest to the
// target, keeping the earliest quote on exact ties.
func nearest25Delta(quotes []models.Quote, measure func(models.Quote) float64) *models.Quote {
	var best *models.Quote
	bestDist := math.MaxFloat64
	for i := range quotes {
		if d := math.Abs(measure(quotes[i]) - targetDelta); d < bestDist {
			best, bestDist = &quotes[i], d
		}
	}
	return best
}
