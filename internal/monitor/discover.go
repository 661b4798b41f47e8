package monitor

import (
	"math"
	"path"
	"sort"
	"strings"
	"time"

	"ivsentinel/internal/instrument"
	"ivsentinel/internal/logger"
)

// atmMarker in a pattern's strike field selects the window of strikes
// nearest spot instead of matching literally.
const atmMarker = "ATM"

// SelectInstruments filters the exchange's instrument universe down to the
// configured symbol patterns. Plain patterns match case-insensitively with
// shell-style wildcards. A pattern with an ATM strike marker instead picks,
// per expiry, the configured window of strikes around the current spot,
// constrained by the day-to-expiry bounds.
func (m *Monitor) SelectInstruments(names []string, spot float64, now time.Time) []string {
	matched := make(map[string]struct{})
	for _, pattern := range m.config.SymbolPatterns {
		if isATMPattern(pattern) {
			for _, name := range m.selectATMWindow(names, pattern, spot, now) {
				matched[name] = struct{}{}
			}
			continue
		}
		lowered := strings.ToLower(pattern)
		for _, name := range names {
			if ok, err := path.Match(lowered, strings.ToLower(name)); err == nil && ok {
				matched[name] = struct{}{}
			}
		}
	}

	selected := make([]string, 0, len(matched))
	for name := range matched {
		selected = append(selected, name)
	}
	sort.Strings(selected)
	return selected
}

func isATMPattern(pattern string) bool {
	parts, ok := instrument.Parse(pattern)
	return ok && strings.EqualFold(parts.Strike, atmMarker)
}

// selectATMWindow resolves one ATM pattern against the instrument universe:
// group candidates by expiry, then keep the window of strikes around the one
// closest to spot.
func (m *Monitor) selectATMWindow(names []string, pattern string, spot float64, now time.Time) []string {
	want, ok := instrument.Parse(pattern)
	if !ok {
		return nil
	}
	if spot <= 0 {
		logger.Warn("No spot price for %s yet, skipping ATM selection", want.Underlying)
		return nil
	}

	type strikeName struct {
		strike float64
		name   string
	}
	byExpiry := make(map[string][]strikeName)

	for _, name := range names {
		parts, ok := instrument.Parse(name)
		if !ok {
			continue
		}
		if parts.Underlying != want.Underlying || parts.Side != want.Side {
			continue
		}
		if want.Expiry != "*" && parts.Expiry != want.Expiry {
			continue
		}
		if m.config.MinDaysToExpiry > 0 || m.config.MaxDaysToExpiry > 0 {
			days, ok := instrument.DaysToExpiry(parts.Expiry, now)
			if !ok {
				continue
			}
			if m.config.MinDaysToExpiry > 0 && days < m.config.MinDaysToExpiry {
				continue
			}
			if m.config.MaxDaysToExpiry > 0 && days > m.config.MaxDaysToExpiry {
				continue
			}
		}
		strike, ok := instrument.Strike(name)
		if !ok {
			continue
		}
		byExpiry[parts.Expiry] = append(byExpiry[parts.Expiry], strikeName{strike: strike, name: name})
	}

	var selected []string
	for expiry, strikes := range byExpiry {
		sort.Slice(strikes, func(i, j int) bool { return strikes[i].strike < strikes[j].strike })

		atmIdx := 0
		bestDist := math.MaxFloat64
		for i, s := range strikes {
			if d := math.Abs(s.strike - spot); d < bestDist {
				atmIdx, bestDist = i, d
			}
		}

		lo := atmIdx - m.config.ATMWindow
		if lo < 0 {
			lo = 0
		}
		hi := atmIdx + m.config.ATMWindow + 1
		if hi > len(strikes) {
			hi = len(strikes)
		}

		for _, s := range strikes[lo:hi] {
			selected = append(selected, s.name)
		}

		days, _ := instrument.DaysToExpiry(expiry, now)
		logger.Info("Expiry %s (%d days): ATM strike %.0f, selected %d strikes from %.0f to %.0f",
			expiry, days, strikes[atmIdx].strike, hi-lo, strikes[lo].strike, strikes[hi-1].strike)
	}
	return selected
}
