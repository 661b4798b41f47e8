package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ivsentinel/internal/config"
	"ivsentinel/internal/models"
)

// Embed accent colors.
const (
	colorAlert    = 0xFF5733
	colorGreen    = 0x28A745
	colorRed      = 0xDC3545
	colorBlue     = 0x17A2B8
	discordSender = "IV Monitor"
)

// Discord caps embed field values at 1024 characters; truncate before that.
const fieldValueLimit = 1000

type webhookMessage struct {
	Content  string  `json:"content,omitempty"`
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// Discord delivers alerts as rich embeds through a webhook. A webhook needs
// no bot process, so unlike Telegram there is no command listener.
type Discord struct {
	webhookURL    string
	mentionRoleID string
	client        *http.Client
}

// NewDiscord creates a Discord webhook notifier.
func NewDiscord(cfg config.DiscordConfig) *Discord {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Discord{
		webhookURL:    cfg.WebhookURL,
		mentionRoleID: cfg.MentionRoleID,
		client:        &http.Client{Timeout: timeout},
	}
}

// mention renders the configured role mention, or "" when none is set.
// "@everyone" passes through unchanged; anything else is treated as a role ID.
func (d *Discord) mention() string {
	if d.mentionRoleID == "" {
		return ""
	}
	if strings.EqualFold(d.mentionRoleID, "@everyone") {
		return "@everyone"
	}
	return fmt.Sprintf("<@&%s>", d.mentionRoleID)
}

func (d *Discord) post(msg webhookMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	// Webhooks answer 204 without ?wait=true and 200 with it.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// SendAlert renders and delivers one alert decision.
func (d *Discord) SendAlert(alert *models.Alert) error {
	var e embed
	if alert.Kind == models.AlertAbnormal {
		e = abnormalEmbed(alert)
	} else {
		e = simpleEmbed(alert)
	}
	return d.post(webhookMessage{
		Content:  d.mention(),
		Username: discordSender,
		Embeds:   []embed{e},
	})
}

// SendStartup announces how many symbols the monitor is watching.
func (d *Discord) SendStartup(symbolCount int) error {
	return d.post(systemMessage(
		"✅ IV Monitor Started",
		fmt.Sprintf("Monitoring **%d** option symbols", symbolCount),
		colorGreen,
	))
}

// SendError sends a monitoring error notification. Call this only on the
// first occurrence of a consecutive error sequence.
func (d *Discord) SendError(cycleErr error) error {
	return d.post(systemMessage("❌ Monitor Error", cycleErr.Error(), colorRed))
}

// SendRecovery sends a recovery notification after consecutive failures.
func (d *Discord) SendRecovery(failureCount int) error {
	return d.post(systemMessage(
		"✅ Monitoring Recovered",
		fmt.Sprintf("Resumed after **%d** consecutive failure(s)", failureCount),
		colorGreen,
	))
}

// SendTest verifies the webhook wiring end to end.
func (d *Discord) SendTest() error {
	return d.post(systemMessage("🧪 Test Message", "Discord webhook connection is working!", colorBlue))
}

func systemMessage(title, description string, color int) webhookMessage {
	return webhookMessage{
		Username: discordSender,
		Embeds: []embed{{
			Title:       title,
			Description: description,
			Color:       color,
			Footer:      &embedFooter{Text: discordSender},
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	}
}

func embedTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func abnormalEmbed(a *models.Alert) embed {
	stats, skew := a.Stats, a.Skew

	abnormalTag := ""
	if stats.Abnormal {
		abnormalTag = " (ABNORMAL)"
	}
	statsField := embedField{
		Name: "📊 ATM IV Statistics",
		Value: fmt.Sprintf(
			"**Current ATM IV:** %.2f%%\n**24h Average:** %.2f%%\n**Z-Score:** %.2fσ%s\n**IV Rank:** %s\n**24h Range:** %.2f%% - %.2f%%\n**Samples:** %d data points",
			stats.CurrentIV, stats.MeanIV, stats.ZScore, abnormalTag,
			stats.RankLabel(), stats.DailyLowIV, stats.DailyHighIV, stats.SampleCount),
	}

	spotField := embedField{
		Name: skewEmoji(skew.SpotSkew) + " Spot Delta Skew",
		Value: fmt.Sprintf(
			"**25Δ Call:** %.2f%% @ $%.0f\n**25Δ Put:** %.2f%% @ $%.0f\n**Skew:** %+.2f pp\n**Sentiment:** %s",
			skew.SpotCallIV, skew.SpotCallStrike, skew.SpotPutIV, skew.SpotPutStrike,
			skew.SpotSkew, skewSentiment(skew.SpotSkew)),
		Inline: true,
	}
	forwardField := embedField{
		Name: skewEmoji(skew.ForwardSkew) + " Forward Delta Skew",
		Value: fmt.Sprintf(
			"**25Δ Call:** %.2f%% @ $%.0f\n**25Δ Put:** %.2f%% @ $%.0f\n**Skew:** %+.2f pp\n**Sentiment:** %s",
			skew.ForwardCallIV, skew.ForwardCallStrike, skew.ForwardPutIV, skew.ForwardPutStrike,
			skew.ForwardSkew, skewSentiment(skew.ForwardSkew)),
		Inline: true,
	}

	assessment, interpretation := ghostAssessment(skew.GhostSkew)
	ghostField := embedField{
		Name: ghostTier(skew.GhostSkew) + " Ghost Skew Analysis",
		Value: fmt.Sprintf(
			"**Divergence:** %+.2f pp (Spot - Forward)\n**Assessment:** %s\n**Interpretation:** %s",
			skew.GhostSkew, assessment, interpretation),
	}

	structureField := embedField{
		Name: "🏗️ Market Structure",
		Value: fmt.Sprintf(
			"**Basis:** $%+.2f (%+.2f%%)\n└ %s\n**Funding:** %.4f%% (8h) = %.2f%% (annual)\n└ %s\n**Forward Price:** $%.0f",
			a.Context.Basis(), a.Context.BasisPct(), basisSignal(a.Context.Basis()),
			a.Context.FundingRate*100, a.Context.AnnualizedFunding()*100, fundingSignal(a.Context.FundingRate),
			skew.ForwardPrice),
	}

	fields := []embedField{statsField, spotField, forwardField, ghostField, structureField}
	if len(a.Opportunities) > 0 {
		fields = append(fields, embedField{
			Name:  "💰 Best Strikes to Sell",
			Value: opportunitiesText(a.Opportunities),
		})
	}

	return embed{
		Title: "🚨 Abnormal IV Alert: " + expiryDisplay(a.Expiry),
		Description: fmt.Sprintf(
			"ATM volatility spike detected - premium selling opportunity\n**Expiry:** %d days  |  **Spot:** $%.0f  |  **Perp:** $%.0f",
			a.DaysToExpiry, a.Context.SpotPrice, a.Context.PerpetualPrice),
		Color:     colorAlert,
		Fields:    fields,
		Footer:    &embedFooter{Text: "Ghost Skew = Basis/Funding Distortion"},
		Timestamp: embedTimestamp(a.CreatedAt),
	}
}

func simpleEmbed(a *models.Alert) embed {
	var title, description string
	if a.Kind == models.AlertThresholdRising {
		title = fmt.Sprintf("📈 %s ATM IV Increasing: %s", a.Underlying, expiryDisplay(a.Expiry))
		description = fmt.Sprintf(
			"**IV continuing to rise** - increased by %+.1fpp\n**Expiry:** %d days\n**Previous:** %.1f%% → **Now:** %.1f%%",
			a.MaxIV-a.PreviousIV, a.DaysToExpiry, a.PreviousIV, a.MaxIV)
	} else {
		title = fmt.Sprintf("🚨 %s ATM IV Spike: %s", a.Underlying, expiryDisplay(a.Expiry))
		description = fmt.Sprintf(
			"**%d ATM strikes** spiked above %.0f%% IV\n**Expiry:** %d days\n**Current IV:** %.1f%%",
			len(a.Triggered), a.ThresholdIV, a.DaysToExpiry, a.MaxIV)
	}

	return embed{
		Title:       title,
		Description: description,
		Color:       colorAlert,
		Fields: []embedField{{
			Name:  "Triggered Strikes",
			Value: triggeredText(a.Triggered),
		}},
		Footer:    &embedFooter{Text: "Simple Threshold Alert - No Historical Tracking"},
		Timestamp: embedTimestamp(a.CreatedAt),
	}
}

func triggeredText(triggered []models.TriggeredQuote) string {
	var b strings.Builder
	for i, s := range triggered {
		if i == 10 {
			break
		}
		fmt.Fprintf(&b, "**%s**\n└ IV: %.2f%% | OI: %.0f | Δ: %.2f | Price: $%.2f\n\n",
			s.Instrument, s.MarkIV, s.OpenInterest, s.Delta, s.MarkPrice)
	}
	return truncateField(b.String())
}

func opportunitiesText(opps []models.Opportunity) string {
	var b strings.Builder
	b.WriteString("**Top Opportunities (Θ/IV rank):**\n\n")
	for i, opp := range opps {
		if i == 10 {
			break
		}
		marker := "•"
		if i < 3 {
			marker = "⭐"
		}
		fmt.Fprintf(&b, "%s `%s`\n   IV: %.1f%% | Δ: %.2f | θ: %.2f | Daily Rent: %.3f%%\n",
			marker, opp.Instrument, opp.MarkIV, opp.Delta, opp.Theta, opp.DailyRentPct)
	}
	return truncateField(b.String())
}

func truncateField(text string) string {
	if len(text) <= fieldValueLimit {
		return text
	}
	cut := fieldValueLimit - 3
	for cut > 0 && !utf8RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

func ghostTier(ghost float64) string {
	magnitude := ghost
	if magnitude < 0 {
		magnitude = -magnitude
	}
	switch {
	case magnitude < 1:
		return "🟢"
	case magnitude < 2:
		return "🟡"
	default:
		return "🔴"
	}
}
