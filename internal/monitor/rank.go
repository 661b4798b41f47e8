package monitor

import (
	"math"
	"sort"
	"time"

	"ivsentinel/internal/instrument"
	"ivsentinel/internal/models"
)

// RankOpportunities filters an expiry's quotes to the sellable delta band
// and orders them by opportunity score, best first. The score prefers high
// theta decay per unit of vega exposure, scaled by the IV level; quotes with
// no vega fall back to the bare IV. Days to expiry are floored at one so the
// daily-rent metric never divides by zero on expiry day.
func RankOpportunities(quotes []models.Quote, spot, deltaMin, deltaMax float64, now time.Time) []models.Opportunity {
	var opps []models.Opportunity
	for _, q := range quotes {
		delta := math.Abs(q.Delta)
		if delta < deltaMin || delta > deltaMax {
			continue
		}
		parts, ok := instrument.Parse(q.Instrument)
		if !ok {
			continue
		}
		days, ok := instrument.DaysToExpiry(parts.Expiry, now)
		if !ok {
			continue
		}
		if days < 1 {
			days = 1
		}

		ivPct := q.MarkIV * 100
		theta := math.Abs(q.Theta)

		rentPct := 0.0
		if spot > 0 {
			rentPct = (q.MarkPrice / spot) / float64(days) * 100
		}

		score := ivPct
		if q.Vega > 0 {
			score = theta / q.Vega * ivPct
		}

		opps = append(opps, models.Opportunity{
			Instrument:   q.Instrument,
			MarkIV:       ivPct,
			Delta:        delta,
			Theta:        theta,
			Vega:         q.Vega,
			MarkPrice:    q.MarkPrice,
			DaysToExpiry: days,
			DailyRentPct: rentPct,
			Score:        score,
		})
	}

	sort.SliceStable(opps, func(i, j int) bool { return opps[i].Score > opps[j].Score })
	return opps
}
