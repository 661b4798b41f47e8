// Package instrument parses exchange option instrument identifiers of the
// form UNDERLYING-EXPIRY-STRIKE-SIDE, e.g. "BTC-251226-88000-C" or
// "BTC-27DEC24-88000-P". All functions return ok=false for malformed input
// instead of panicking; a polling cycle must survive any identifier an
// exchange hands back.
package instrument

import (
	"strconv"
	"strings"
	"time"
)

// Parts is a decomposed instrument identifier. Strike stays a string because
// configured patterns may carry non-numeric markers such as "ATM" in that
// field; use the Strike function when a number is required.
type Parts struct {
	Underlying string
	Expiry     string
	Strike     string
	Side       string
}

// Parse splits an identifier into its four dash-separated fields. ok is
// false when the field count is wrong.
func Parse(name string) (Parts, bool) {
	fields := strings.Split(name, "-")
	if len(fields) != 4 {
		return Parts{}, false
	}
	return Parts{
		Underlying: fields[0],
		Expiry:     fields[1],
		Strike:     fields[2],
		Side:       fields[3],
	}, true
}

// Strike extracts the numeric strike from an identifier. ok is false when
// the identifier is malformed or the strike field is not a plain number.
func Strike(name string) (float64, bool) {
	p, ok := Parse(name)
	if !ok {
		return 0, false
	}
	strike, err := strconv.ParseFloat(p.Strike, 64)
	if err != nil {
		return 0, false
	}
	return strike, true
}

var months = map[string]time.Month{
	"JAN": time.January,
	"FEB": time.February,
	"MAR": time.March,
	"APR": time.April,
	"MAY": time.May,
	"JUN": time.June,
	"JUL": time.July,
	"AUG": time.August,
	"SEP": time.September,
	"OCT": time.October,
	"NOV": time.November,
	"DEC": time.December,
}

// ParseExpiry parses an expiry token in either exchange encoding: six-digit
// YYMMDD ("251226") or seven-character DDMMMYY ("27DEC24"). The result is
// midnight UTC. Anything else, including month names with a one-digit day,
// is unparsable.
func ParseExpiry(token string) (time.Time, bool) {
	switch {
	case len(token) == 6 && isDigits(token):
		t, err := time.Parse("060102", token)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case len(token) == 7:
		day, err := strconv.Atoi(token[:2])
		if err != nil {
			return time.Time{}, false
		}
		month, ok := months[strings.ToUpper(token[2:5])]
		if !ok {
			return time.Time{}, false
		}
		year, err := strconv.Atoi(token[5:])
		if err != nil {
			return time.Time{}, false
		}
		t := time.Date(2000+year, month, day, 0, 0, 0, 0, time.UTC)
		// time.Date normalizes out-of-range days ("32DEC24" becomes Jan 1);
		// reject those instead.
		if t.Day() != day || t.Month() != month {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

// Expiry extracts and parses the expiry field of a full identifier.
func Expiry(name string) (time.Time, bool) {
	p, ok := Parse(name)
	if !ok {
		return time.Time{}, false
	}
	return ParseExpiry(p.Expiry)
}

// DaysToExpiry returns whole days between now's UTC midnight and the token's
// expiry date. Same-day expiries yield 0 and already-expired tokens go
// negative; callers decide how to treat those. ok is false when the token is
// unparsable.
func DaysToExpiry(token string, now time.Time) (int, bool) {
	expiry, ok := ParseExpiry(token)
	if !ok {
		return 0, false
	}
	midnight := now.UTC().Truncate(24 * time.Hour)
	return int(expiry.Sub(midnight).Hours() / 24), true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
