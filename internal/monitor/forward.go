package monitor

import "math"

// fundingCyclesPerYear annualizes a periodic 8-hour funding rate: three
// settlement cycles per day over 365 days.
const fundingCyclesPerYear = 3 * 365

// ForwardPrice derives a forward from the perpetual mark price, treating the
// funding stream as a continuous yield: F = S * exp(-r_annual * T), with T
// in years.
func ForwardPrice(perpPrice, fundingRate, yearsToExpiry float64) float64 {
	annual := fundingRate * fundingCyclesPerYear
	return perpPrice * math.Exp(-annual*yearsToExpiry)
}

// ForwardDelta rescales a spot-referenced delta against the forward price:
// delta_f = delta_s * (S / F). When either price is unusable the spot delta
// passes through unchanged.
func ForwardDelta(spotDelta, perpPrice, forwardPrice float64) float64 {
	if perpPrice <= 0 || forwardPrice <= 0 {
		return spotDelta
	}
	return spotDelta * (perpPrice / forwardPrice)
}
