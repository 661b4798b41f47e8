package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ivsentinel/internal/binance"
	"ivsentinel/internal/config"
	"ivsentinel/internal/deribit"
	"ivsentinel/internal/logger"
	"ivsentinel/internal/models"
	"ivsentinel/internal/monitor"
	"ivsentinel/internal/notify"
	"ivsentinel/internal/storage"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	testNotify = flag.Bool("test-notify", false, "Send a test notification and exit")
)

// exchange is the slice of an options venue the polling loop needs. Both the
// deribit and binance clients satisfy it.
type exchange interface {
	InstrumentNames(ctx context.Context, currency string) ([]string, error)
	OptionQuotes(ctx context.Context, currency string) ([]models.Quote, error)
	MarketContext(ctx context.Context, currency string) (models.MarketContext, error)
}

func main() {
	flag.Parse()

	// Development setups keep bot tokens in .env; production passes real
	// environment variables, so a missing file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File,
		cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
	logger.Info("Configuration loaded from %s", *configPath)

	var notifier notify.Notifier
	if cfg.Notify.Enabled {
		notifier, err = buildNotifier(cfg.Notify)
		if err != nil {
			logger.Fatal("Failed to initialize %s notifier: %v", cfg.Notify.Channel, err)
		}
		logger.Info("Notifier initialized (channel: %s)", cfg.Notify.Channel)
	} else {
		logger.Debug("Notifications disabled")
	}

	if *testNotify {
		if notifier == nil {
			logger.Fatal("Cannot send a test notification: notifications are disabled")
		}
		if err := notifier.SendTest(); err != nil {
			logger.Fatal("Test notification failed: %v", err)
		}
		logger.Info("Test notification sent")
		return
	}

	var client exchange
	switch cfg.Exchange.Name {
	case "deribit":
		client = deribit.NewClient(cfg.Exchange.Deribit)
	case "binance":
		client = binance.NewClient(cfg.Exchange.Binance)
	}
	logger.Info("Using %s options data", cfg.Exchange.Name)

	// Simple mode keeps no history, so the store stays nil and the monitors
	// get a nil interface rather than a typed nil pointer.
	var store *storage.Storage
	var history monitor.HistoryStore
	if cfg.Statistics.Mode == monitor.ModeStatistical {
		store, err = storage.New(cfg.Database.Path)
		if err != nil {
			logger.Fatal("Failed to initialize storage: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
		history = store
		logHistoryState(store)
	}

	svc := &service{
		client:   client,
		monitors: buildMonitors(cfg, history),
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		selected: make(map[string]struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if telegram, ok := notifier.(*notify.Telegram); ok {
		telegram.ListenForCommands(ctx)
	}

	if err := svc.refreshMarket(ctx); err != nil {
		logger.Warn("Initial price refresh failed: %v", err)
	}
	if err := svc.refreshInstruments(ctx); err != nil {
		logger.Warn("Initial instrument selection failed: %v", err)
	}

	if notifier != nil && cfg.Monitoring.StartupNotification {
		if err := notifier.SendStartup(len(svc.selected)); err != nil {
			logger.Warn("Failed to send startup notification: %v", err)
		}
	}

	logger.Info("Starting monitoring service (mode: %s, interval: %v, %d instruments)",
		cfg.Statistics.Mode, cfg.Monitoring.CheckInterval, len(svc.selected))

	quoteTicker := time.NewTicker(cfg.Monitoring.CheckInterval)
	defer quoteTicker.Stop()
	priceTicker := time.NewTicker(cfg.Monitoring.PriceRefreshInterval)
	defer priceTicker.Stop()
	cleanupTicker := time.NewTicker(cfg.Monitoring.CleanupInterval)
	defer cleanupTicker.Stop()

	consecutiveFailures := 0
	handleCycleResult := func(err error) {
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			consecutiveFailures++
			logger.Error("Monitoring cycle failed: %v", err)
			if consecutiveFailures == 1 && notifier != nil {
				if sendErr := notifier.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 {
			logger.Info("Monitoring recovered after %d consecutive failure(s)", consecutiveFailures)
			if notifier != nil {
				if sendErr := notifier.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification: %v", sendErr)
				}
			}
		}
		consecutiveFailures = 0
	}

	logger.Debug("Running initial monitoring cycle")
	handleCycleResult(svc.cycle(ctx))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-quoteTicker.C:
			handleCycleResult(svc.cycle(ctx))

		case <-priceTicker.C:
			if err := svc.refreshMarket(ctx); err != nil {
				logger.Warn("Price refresh failed: %v", err)
				continue
			}
			// The ATM strike window tracks spot, so re-resolve after every
			// successful price refresh.
			if err := svc.refreshInstruments(ctx); err != nil {
				logger.Warn("Instrument refresh failed: %v", err)
			}

		case <-cleanupTicker.C:
			svc.cleanup()
		}
	}
}

func buildNotifier(cfg config.NotifyConfig) (notify.Notifier, error) {
	switch cfg.Channel {
	case "telegram":
		return notify.NewTelegram(cfg.Telegram)
	case "discord":
		return notify.NewDiscord(cfg.Discord), nil
	default:
		return nil, fmt.Errorf("unknown notify channel %q", cfg.Channel)
	}
}

// buildMonitors creates the primary monitor plus one simple-mode monitor per
// extra threshold. Extra monitors watch the same instruments but alert at
// their own fixed level and keep their own hysteresis state.
func buildMonitors(cfg *config.Config, history monitor.HistoryStore) []*monitor.Monitor {
	base := monitor.Config{
		Mode:              cfg.Statistics.Mode,
		IVThreshold:       cfg.Monitoring.IVThreshold,
		IncreaseThreshold: cfg.Monitoring.IVIncreaseThreshold,
		MinOpenInterest:   cfg.Monitoring.MinOpenInterest,
		DeltaMin:          cfg.Filtering.DeltaMin,
		DeltaMax:          cfg.Filtering.DeltaMax,
		ZScoreThreshold:   cfg.Statistics.ZScoreThreshold,
		MinSamples:        cfg.Statistics.MinSamples,
		MinHistorySpan:    time.Duration(cfg.Statistics.MinHistoryHours * float64(time.Hour)),
		Lookback:          time.Duration(cfg.Statistics.LookbackHours) * time.Hour,
		RealertCooldown:   cfg.Statistics.RealertCooldown,
		SymbolPatterns:    cfg.Monitoring.Symbols,
		ATMWindow:         cfg.Monitoring.ATMWindow,
		MinDaysToExpiry:   cfg.Monitoring.MinDaysToExpiry,
		MaxDaysToExpiry:   cfg.Monitoring.MaxDaysToExpiry,
	}

	monitors := []*monitor.Monitor{monitor.New(history, base)}
	for _, threshold := range cfg.Monitoring.ExtraThresholds {
		extra := base
		extra.Mode = monitor.ModeSimple
		extra.IVThreshold = threshold
		monitors = append(monitors, monitor.New(nil, extra))
	}
	return monitors
}

// logHistoryState reports what the history store already holds at startup.
func logHistoryState(store *storage.Storage) {
	count, err := store.RecordCount("")
	if err != nil {
		logger.Warn("Could not read history state: %v", err)
		return
	}
	expiries, err := store.Expiries()
	if err != nil {
		logger.Warn("Could not read history state: %v", err)
		return
	}
	logger.Info("History store ready: %d records across %d expiries", count, len(expiries))
}

// service holds the polling loop's cross-cycle state: the cached market
// context and the currently selected instrument set.
type service struct {
	client   exchange
	monitors []*monitor.Monitor
	store    *storage.Storage
	notifier notify.Notifier
	cfg      *config.Config

	mktCtx   models.MarketContext
	selected map[string]struct{}
}

func (s *service) refreshMarket(ctx context.Context) error {
	mktCtx, err := s.client.MarketContext(ctx, s.cfg.Monitoring.Underlying)
	if err != nil {
		return fmt.Errorf("failed to refresh market context: %w", err)
	}
	s.mktCtx = mktCtx
	logger.Info("Market context: spot $%.2f, perp $%.2f, basis %+.3f%%, funding %.4f%% (%.1f%% annualized)",
		mktCtx.SpotPrice, mktCtx.PerpetualPrice, mktCtx.BasisPct(),
		mktCtx.FundingRate*100, mktCtx.AnnualizedFunding()*100)
	return nil
}

func (s *service) refreshInstruments(ctx context.Context) error {
	names, err := s.client.InstrumentNames(ctx, s.cfg.Monitoring.Underlying)
	if err != nil {
		return fmt.Errorf("failed to list instruments: %w", err)
	}
	selected := s.monitors[0].SelectInstruments(names, s.mktCtx.SpotPrice, time.Now().UTC())
	set := make(map[string]struct{}, len(selected))
	for _, name := range selected {
		set[name] = struct{}{}
	}
	s.selected = set
	logger.Info("Selected %d of %d instruments to monitor", len(selected), len(names))
	return nil
}

func (s *service) cycle(ctx context.Context) error {
	start := time.Now()

	// Selection can come up empty at startup when the first price refresh
	// failed; retry before giving up on the cycle.
	if len(s.selected) == 0 {
		if err := s.refreshInstruments(ctx); err != nil {
			return err
		}
		if len(s.selected) == 0 {
			logger.Warn("No instruments match the configured symbols yet")
			return nil
		}
	}

	quotes, err := s.client.OptionQuotes(ctx, s.cfg.Monitoring.Underlying)
	if err != nil {
		return fmt.Errorf("failed to fetch option quotes: %w", err)
	}

	kept := make([]models.Quote, 0, len(s.selected))
	for _, q := range quotes {
		if _, ok := s.selected[q.Instrument]; ok {
			kept = append(kept, q)
		}
	}
	logger.Debug("Fetched %d quotes, %d in the monitored selection", len(quotes), len(kept))

	sent := 0
	for _, mon := range s.monitors {
		alerts := mon.Evaluate(kept, s.mktCtx)
		sent += len(alerts)
		s.deliver(alerts)
	}

	if sent > 0 {
		logger.Info("Cycle delivered %d alert(s) in %v", sent, time.Since(start))
	} else {
		logger.Debug("Cycle completed in %v, nothing to report", time.Since(start))
	}
	return nil
}

// deliver records each alert before notifying, so an unreachable channel
// never loses the alert history.
func (s *service) deliver(alerts []models.Alert) {
	for i := range alerts {
		alert := &alerts[i]
		if s.store != nil {
			if err := s.store.AddAlert(alert); err != nil {
				logger.Warn("Failed to record alert for %s: %v", alert.Expiry, err)
			}
		}
		if s.notifier == nil {
			logger.Debug("Alert for %s detected but notifications are disabled", alert.Expiry)
			continue
		}
		if err := s.notifier.SendAlert(alert); err != nil {
			logger.Error("Failed to send %s alert for %s: %v", alert.Kind, alert.Expiry, err)
		} else {
			logger.Info("Sent %s alert for %s (IV %.1f%%)", alert.Kind, alert.Expiry, alert.MaxIV)
		}
	}
}

func (s *service) cleanup() {
	if s.store == nil {
		return
	}
	retention := time.Duration(s.cfg.Database.RetentionHours) * time.Hour
	deleted, err := s.store.Cleanup(retention)
	if err != nil {
		logger.Error("History cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		logger.Info("Cleaned up %d history records older than %v", deleted, retention)
	}
}
