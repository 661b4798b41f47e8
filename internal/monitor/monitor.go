package monitor

import (
	"time"

	"ivsentinel/internal/instrument"
	"ivsentinel/internal/logger"
	"ivsentinel/internal/models"
)

// Modes of operation.
const (
	// ModeSimple alerts on fixed IV thresholds with per-expiry hysteresis.
	ModeSimple = "simple"
	// ModeStatistical alerts on Z-score spikes against persisted history.
	ModeStatistical = "statistical"
)

type Config struct {
	Mode              string
	IVThreshold       float64 // percent, simple-mode trigger
	IncreaseThreshold float64 // percentage points between repeat alerts
	MinOpenInterest   float64
	DeltaMin          float64
	DeltaMax          float64
	ZScoreThreshold   float64
	MinSamples        int
	MinHistorySpan    time.Duration
	Lookback          time.Duration
	RealertCooldown   time.Duration // 0 = re-alert every cycle while abnormal
	SymbolPatterns    []string
	ATMWindow         int
	MinDaysToExpiry   int
	MaxDaysToExpiry   int
}

func DefaultConfig() Config {
	return Config{
		Mode:              ModeStatistical,
		IVThreshold:       45.0,
		IncreaseThreshold: 1.0,
		MinOpenInterest:   10000,
		DeltaMin:          0.05,
		DeltaMax:          0.65,
		ZScoreThreshold:   2.0,
		MinSamples:        10,
		MinHistorySpan:    4 * time.Hour,
		Lookback:          24 * time.Hour,
		ATMWindow:         2,
	}
}

// HistoryStore is the slice of the persistence layer the monitor touches:
// one insert and one range read per expiry per cycle. The daemon owns the
// store's lifetime and retention.
type HistoryStore interface {
	InsertRecord(rec *models.HistoricalRecord) error
	History(expiry string, since time.Time) ([]models.HistoricalRecord, error)
}

// Monitor turns quote snapshots into alert decisions. It owns the per-expiry
// tracker states; everything else is computed fresh each cycle. Methods are
// called from a single polling goroutine.
type Monitor struct {
	storage  HistoryStore
	config   Config
	trackers map[string]models.TrackerState
	lastSent map[string]time.Time
}

// New creates a Monitor. storage may be nil in simple mode, which keeps no
// history.
func New(s HistoryStore, config Config) *Monitor {
	return &Monitor{
		storage:  s,
		config:   config,
		trackers: make(map[string]models.TrackerState),
		lastSent: make(map[string]time.Time),
	}
}

// GroupByExpiry buckets quotes by the expiry field of their instrument
// identifiers. Quotes with malformed identifiers are dropped.
func GroupByExpiry(quotes []models.Quote) map[string][]models.Quote {
	groups := make(map[string][]models.Quote)
	for _, q := range quotes {
		parts, ok := instrument.Parse(q.Instrument)
		if !ok {
			continue
		}
		groups[parts.Expiry] = append(groups[parts.Expiry], q)
	}
	return groups
}

// Evaluate runs one polling cycle's quotes through the configured mode and
// returns the alerts to deliver. A cycle that alerts on nothing returns nil.
func (m *Monitor) Evaluate(quotes []models.Quote, mktCtx models.MarketContext) []models.Alert {
	groups := GroupByExpiry(quotes)
	if m.config.Mode == ModeSimple {
		return m.evaluateSimple(groups, mktCtx)
	}
	return m.evaluateStatistical(groups, mktCtx)
}

// TrackerStates returns a copy of the per-expiry hysteresis states.
func (m *Monitor) TrackerStates() map[string]models.TrackerState {
	out := make(map[string]models.TrackerState, len(m.trackers))
	for expiry, st := range m.trackers {
		out[expiry] = st
	}
	return out
}

func (m *Monitor) evaluateSimple(groups map[string][]models.Quote, mktCtx models.MarketContext) []models.Alert {
	now := time.Now().UTC()
	var alerts []models.Alert

	for expiry, group := range groups {
		var triggered []models.TriggeredQuote
		maxIV := 0.0
		for _, q := range group {
			ivPct := q.MarkIV * 100
			if ivPct <= m.config.IVThreshold || q.OpenInterest <= m.config.MinOpenInterest {
				continue
			}
			if !m.inDeltaBand(q.Delta) {
				continue
			}
			triggered = append(triggered, models.TriggeredQuote{
				Instrument:   q.Instrument,
				MarkIV:       ivPct,
				OpenInterest: q.OpenInterest,
				Delta:        q.Delta,
				MarkPrice:    q.MarkPrice,
			})
			if ivPct > maxIV {
				maxIV = ivPct
			}
		}
		if len(triggered) == 0 {
			continue
		}

		prior := m.trackers[expiry]
		action, next := advanceTracker(prior, maxIV, m.config.IncreaseThreshold)
		m.trackers[expiry] = next

		switch action {
		case trackerReset:
			logger.Info("Expiry %s: IV fell to %.2f%%, resetting tracking (was from %.2f%%)",
				expiry, maxIV, prior.InitialAlertIV)
			continue
		case trackerHold:
			logger.Debug("Expiry %s: IV %.2f%% within %.1fpp of last alert %.2f%%, holding",
				expiry, maxIV, m.config.IncreaseThreshold, prior.LastAlertIV)
			continue
		}

		kind := models.AlertThreshold
		previousIV := 0.0
		if action == trackerRisingAlert {
			kind = models.AlertThresholdRising
			previousIV = prior.LastAlertIV
			logger.Warn("Expiry %s: IV rose from %.2f%% to %.2f%% (+%.2fpp)",
				expiry, previousIV, maxIV, maxIV-previousIV)
		} else {
			logger.Warn("Expiry %s: %d strikes above %.1f%% IV (max %.2f%%)",
				expiry, len(triggered), m.config.IVThreshold, maxIV)
		}

		expiryDate, _ := instrument.ParseExpiry(expiry)
		days, _ := instrument.DaysToExpiry(expiry, now)
		alerts = append(alerts, models.Alert{
			Kind:         kind,
			Underlying:   underlyingOf(group),
			Expiry:       expiry,
			ExpiryDate:   expiryDate,
			DaysToExpiry: days,
			ThresholdIV:  m.config.IVThreshold,
			MaxIV:        maxIV,
			PreviousIV:   previousIV,
			Triggered:    triggered,
			Context:      mktCtx,
			CreatedAt:    now,
		})
	}
	return alerts
}

func (m *Monitor) evaluateStatistical(groups map[string][]models.Quote, mktCtx models.MarketContext) []models.Alert {
	if !mktCtx.Ready() {
		logger.Warn("No reference prices yet, skipping ATM analysis this cycle")
		return nil
	}
	if m.storage == nil {
		logger.Error("Statistical mode needs a history store, none configured")
		return nil
	}

	now := time.Now().UTC()
	var alerts []models.Alert

	for expiry, group := range groups {
		syntheticIV, atmStrike := SyntheticATMIV(group, mktCtx.SpotPrice)
		if syntheticIV == 0 {
			continue
		}

		days, ok := instrument.DaysToExpiry(expiry, now)
		if !ok || days <= 0 {
			logger.Warn("Skipping expiry %s: no usable days to expiry", expiry)
			continue
		}
		yearsToExpiry := float64(days) / 365.0

		skew := DualSkew(group, mktCtx.PerpetualPrice, mktCtx.FundingRate, yearsToExpiry)
		call25IV := skew.SpotCallIV / 100
		put25IV := skew.SpotPutIV / 100

		rec := models.HistoricalRecord{
			Expiry:         expiry,
			Timestamp:      now,
			SyntheticATMIV: syntheticIV,
			SpotPrice:      mktCtx.SpotPrice,
			PerpetualPrice: mktCtx.PerpetualPrice,
			Basis:          mktCtx.Basis(),
			BasisPct:       mktCtx.BasisPct(),
			FundingRate:    mktCtx.FundingRate,
			ATMStrike:      atmStrike,
			Call25dIV:      call25IV,
			Put25dIV:       put25IV,
		}
		if err := m.storage.InsertRecord(&rec); err != nil {
			logger.Error("Failed to record ATM IV for %s: %v", expiry, err)
			continue
		}

		history, err := m.storage.History(expiry, now.Add(-m.config.Lookback))
		if err != nil {
			logger.Error("Failed to load ATM history for %s: %v", expiry, err)
			continue
		}

		stats, insufficiency := m.statistics(expiry, history, syntheticIV, call25IV, put25IV)
		if insufficiency != "" {
			logger.Debug("Expiry %s: %s (%d samples)", expiry, insufficiency, len(history))
			continue
		}
		if !stats.Abnormal {
			logger.Debug("Expiry %s: IV normal, Z=%.2f (threshold %.1f)",
				expiry, stats.ZScore, m.config.ZScoreThreshold)
			continue
		}

		opportunities := RankOpportunities(group, mktCtx.SpotPrice, m.config.DeltaMin, m.config.DeltaMax, now)
		if len(opportunities) == 0 {
			logger.Info("Expiry %s: abnormal IV but no sellable strikes in delta band %.2f-%.2f",
				expiry, m.config.DeltaMin, m.config.DeltaMax)
			continue
		}

		if cooldown := m.config.RealertCooldown; cooldown > 0 {
			if last, seen := m.lastSent[expiry]; seen && now.Sub(last) < cooldown {
				logger.Debug("Expiry %s: abnormal IV suppressed, %s left on cooldown",
					expiry, (cooldown - now.Sub(last)).Round(time.Second))
				continue
			}
		}
		m.lastSent[expiry] = now

		logger.Warn("Expiry %s: abnormal IV, Z=%.2f, IV=%.2f%%, rank=%.0f%%",
			expiry, stats.ZScore, stats.CurrentIV, stats.Percentile)

		statsCopy := stats
		skewCopy := skew
		expiryDate, _ := instrument.ParseExpiry(expiry)
		alerts = append(alerts, models.Alert{
			Kind:          models.AlertAbnormal,
			Underlying:    underlyingOf(group),
			Expiry:        expiry,
			ExpiryDate:    expiryDate,
			DaysToExpiry:  days,
			MaxIV:         stats.CurrentIV,
			Stats:         &statsCopy,
			Skew:          &skewCopy,
			Opportunities: opportunities,
			Context:       mktCtx,
			CreatedAt:     now,
		})
	}
	return alerts
}

func (m *Monitor) inDeltaBand(delta float64) bool {
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	return abs >= m.config.DeltaMin && abs <= m.config.DeltaMax
}

func underlyingOf(group []models.Quote) string {
	if len(group) == 0 {
		return ""
	}
	parts, ok := instrument.Parse(group[0].Instrument)
	if !ok {
		return ""
	}
	return parts.Underlying
}
