package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ivsentinel/internal/config"
	"ivsentinel/internal/models"
)

// Telegram delivers alerts as MarkdownV2 messages through a bot.
type Telegram struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegram creates a Telegram notifier. Constructing the bot performs a
// getMe call, so a bad token fails here rather than on the first alert.
func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelayBase := cfg.RetryDelayBase
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Telegram{
		bot:            bot,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and
// handles bot commands. It returns immediately; the goroutine stops when ctx
// is cancelled.
func (t *Telegram) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				t.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					t.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (t *Telegram) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		t.bot.Send(reply) //nolint:errcheck
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (t *Telegram) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(t.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", t.maxRetries, lastErr)
}

// SendAlert renders and delivers one alert decision.
func (t *Telegram) SendAlert(alert *models.Alert) error {
	return t.sendMarkdownV2(alertMarkdownV2(alert))
}

// SendStartup announces how many symbols the monitor is watching.
func (t *Telegram) SendStartup(symbolCount int) error {
	text := fmt.Sprintf("✅ *IV Monitor Started*\nMonitoring *%d* option symbols", symbolCount)
	return t.sendMarkdownV2(text)
}

// SendError sends a monitoring error notification. Call this only on the
// first occurrence of a consecutive error sequence.
func (t *Telegram) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return t.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (t *Telegram) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Monitoring recovered* after %d consecutive failure\\(s\\)", failureCount)
	return t.sendMarkdownV2(text)
}

// SendTest verifies the bot token and chat wiring end to end.
func (t *Telegram) SendTest() error {
	return t.sendMarkdownV2("🧪 *Test Message*\nTelegram notification channel is working\\!")
}

// alertMarkdownV2 renders an alert of any kind. Values are formatted plain
// and escaped wholesale; only the markdown markup itself stays unescaped.
func alertMarkdownV2(a *models.Alert) string {
	if a.Kind == models.AlertAbnormal {
		return abnormalMarkdownV2(a)
	}
	return simpleMarkdownV2(a)
}

func simpleMarkdownV2(a *models.Alert) string {
	var b strings.Builder

	if a.Kind == models.AlertThresholdRising {
		fmt.Fprintf(&b, "📈 *%s ATM IV Increasing: %s*\n",
			escapeMarkdownV2(a.Underlying), escapeMarkdownV2(expiryDisplay(a.Expiry)))
		b.WriteString(escapeMarkdownV2(fmt.Sprintf(
			"IV continuing to rise: %.1f%% → %.1f%% (+%.1fpp)\nExpiry: %d days",
			a.PreviousIV, a.MaxIV, a.MaxIV-a.PreviousIV, a.DaysToExpiry)))
	} else {
		fmt.Fprintf(&b, "🚨 *%s ATM IV Spike: %s*\n",
			escapeMarkdownV2(a.Underlying), escapeMarkdownV2(expiryDisplay(a.Expiry)))
		b.WriteString(escapeMarkdownV2(fmt.Sprintf(
			"%d strikes above %.0f%% IV (max %.1f%%)\nExpiry: %d days",
			len(a.Triggered), a.ThresholdIV, a.MaxIV, a.DaysToExpiry)))
	}
	b.WriteString("\n\n*Triggered Strikes*\n")

	for i, s := range a.Triggered {
		if i == 10 {
			b.WriteString(escapeMarkdownV2(fmt.Sprintf("… and %d more", len(a.Triggered)-10)))
			b.WriteString("\n")
			break
		}
		fmt.Fprintf(&b, "`%s`\n", escapeMarkdownV2(s.Instrument))
		b.WriteString(escapeMarkdownV2(fmt.Sprintf(
			"  IV: %.2f%% | OI: %.0f | Δ: %.2f | Price: $%.2f\n",
			s.MarkIV, s.OpenInterest, s.Delta, s.MarkPrice)))
	}
	return b.String()
}

func abnormalMarkdownV2(a *models.Alert) string {
	stats, skew := a.Stats, a.Skew
	var b strings.Builder

	fmt.Fprintf(&b, "🚨 *Abnormal IV Alert: %s*\n", escapeMarkdownV2(expiryDisplay(a.Expiry)))
	b.WriteString(escapeMarkdownV2(fmt.Sprintf(
		"ATM volatility spike detected - premium selling opportunity\nExpiry: %d days | Spot: $%.0f | Perp: $%.0f",
		a.DaysToExpiry, a.Context.SpotPrice, a.Context.PerpetualPrice)))
	b.WriteString("\n\n")

	b.WriteString("📊 *ATM IV Statistics*\n")
	abnormalTag := ""
	if stats.Abnormal {
		abnormalTag = " (ABNORMAL)"
	}
	b.WriteString(escapeMarkdownV2(fmt.Sprintf(
		"Current ATM IV: %.2f%%\n24h Average: %.2f%%\nZ-Score: %.2fσ%s\nIV Rank: %s\n24h Range: %.2f%% - %.2f%%\nSamples: %d data points",
		stats.CurrentIV, stats.MeanIV, stats.ZScore, abnormalTag,
		stats.RankLabel(), stats.DailyLowIV, stats.DailyHighIV, stats.SampleCount)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%s *Spot Delta Skew*\n", skewEmoji(skew.SpotSkew))
	b.WriteString(escapeMarkdownV2(fmt.Sprintf(
		"25Δ Call: %.2f%% @ $%.0f\n25Δ Put: %.2f%% @ $%.0f\nSkew: %+.2f pp\nSentiment: %s",
		skew.SpotCallIV, skew.SpotCallStrike, skew.SpotPutIV, skew.SpotPutStrike,
		skew.SpotSkew, skewSentiment(skew.SpotSkew))))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%s *Forward Delta Skew*\n", skewEmoji(skew.ForwardSkew))
	b.WriteString(escapeMarkdownV2(fmt.Sprintf(
		"25Δ Call: %.2f%% @ $%.0f\n25Δ Put: %.2f%% @ $%.0f\nSkew: %+.2f pp\nSentiment: %s",
		skew.ForwardCallIV, skew.ForwardCallStrike, skew.ForwardPutIV, skew.ForwardPutStrike,
		skew.ForwardSkew, skewSentiment(skew.ForwardSkew))))
	b.WriteString("\n\n")

	assessment, interpretation := ghostAssessment(skew.GhostSkew)
	b.WriteString("👻 *Ghost Skew Analysis*\n")
	b.WriteString(escapeMarkdownV2(fmt.Sprintf(
		"Divergence: %+.2f pp (Spot - Forward)\n%s\n%s",
		skew.GhostSkew, assessment, interpretation)))
	b.WriteString("\n\n")

	b.WriteString("🏗 *Market Structure*\n")
	b.WriteString(escapeMarkdownV2(fmt.Sprintf(
		"Basis: $%+.2f (%+.2f%%)\n└ %s\nFunding: %.4f%% (8h) = %.2f%% (annual)\n└ %s\nForward Price: $%.0f",
		a.Context.Basis(), a.Context.BasisPct(), basisSignal(a.Context.Basis()),
		a.Context.FundingRate*100, a.Context.AnnualizedFunding()*100, fundingSignal(a.Context.FundingRate),
		skew.ForwardPrice)))
	b.WriteString("\n\n")

	b.WriteString("💰 *Best Strikes to Sell*\n")
	for i, opp := range a.Opportunities {
		if i == 10 {
			break
		}
		marker := "•"
		if i < 3 {
			marker = "⭐"
		}
		fmt.Fprintf(&b, "%s `%s`\n", marker, escapeMarkdownV2(opp.Instrument))
		b.WriteString(escapeMarkdownV2(fmt.Sprintf(
			"  IV: %.1f%% | Δ: %.2f | θ: %.2f | Daily Rent: %.3f%%\n",
			opp.MarkIV, opp.Delta, opp.Theta, opp.DailyRentPct)))
	}
	return b.String()
}

func skewEmoji(skew float64) string {
	switch {
	case skew < 0:
		return "📉"
	case skew > 0:
		return "📈"
	default:
		return "➖"
	}
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
