// Package notify delivers alert payloads to the configured channel. Both
// channels render the same alert content: Telegram as MarkdownV2 text,
// Discord as webhook embeds.
package notify

import (
	"math"

	"ivsentinel/internal/instrument"
	"ivsentinel/internal/models"
)

// Notifier is the outbound side of the daemon: it formats and delivers the
// payloads the monitor decided to raise, plus operational messages.
type Notifier interface {
	SendAlert(alert *models.Alert) error
	SendStartup(symbolCount int) error
	SendError(cycleErr error) error
	SendRecovery(failureCount int) error
	SendTest() error
}

// expiryDisplay renders an expiry token as "Dec 26, 2025". Unparsable tokens
// pass through unchanged so a malformed alert still says something.
func expiryDisplay(token string) string {
	t, ok := instrument.ParseExpiry(token)
	if !ok {
		return token
	}
	return t.Format("Jan 2, 2006")
}

// skewSentiment labels a call-minus-put skew in percentage points. The ±1pp
// dead band keeps noise from reading as conviction.
func skewSentiment(skew float64) string {
	switch {
	case skew > 1:
		return "Bullish (Calls > Puts)"
	case skew < -1:
		return "Bearish (Puts > Calls)"
	default:
		return "Neutral"
	}
}

// ghostAssessment grades the spot-minus-forward skew divergence and explains
// what it means for the headline skew numbers.
func ghostAssessment(ghost float64) (assessment, interpretation string) {
	switch magnitude := math.Abs(ghost); {
	case magnitude < 1:
		return "Minimal Ghost Skew - sentiment is genuine",
			"Most of the skew is real volatility sentiment"
	case magnitude < 2:
		return "Moderate Ghost Skew - some basis distortion",
			"Skew partly caused by market structure (basis/funding)"
	default:
		return "Significant Ghost Skew - heavy basis/funding distortion",
			"Skew heavily distorted by basis/funding - use caution"
	}
}

func basisSignal(basis float64) string {
	switch {
	case basis > 0:
		return "Contango (Bullish)"
	case basis < 0:
		return "Backwardation (Bearish)"
	default:
		return "Flat"
	}
}

func fundingSignal(rate float64) string {
	switch {
	case rate > 0:
		return "Longs Pay Shorts (Bullish)"
	case rate < 0:
		return "Shorts Pay Longs (Bearish)"
	default:
		return "Neutral"
	}
}
