package config

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ivsentinel/internal/instrument"
)

// Config represents the complete application configuration
type Config struct {
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Filtering  FilteringConfig  `mapstructure:"filtering"`
	Statistics StatisticsConfig `mapstructure:"statistics"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ExchangeConfig selects and configures the options data source
type ExchangeConfig struct {
	Name    string        `mapstructure:"name"` // "deribit" or "binance"
	Deribit DeribitConfig `mapstructure:"deribit"`
	Binance BinanceConfig `mapstructure:"binance"`
}

// DeribitConfig holds Deribit API configuration
type DeribitConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RateLimit  float64       `mapstructure:"rate_limit"` // requests per second
	RateBurst  int           `mapstructure:"rate_burst"`
}

// BinanceConfig holds Binance API configuration. Spot and futures prices go
// through the official SDK; only the options API needs a base URL here.
type BinanceConfig struct {
	OptionsBaseURL string        `mapstructure:"options_base_url"`
	APIKey         string        `mapstructure:"api_key"`
	APISecret      string        `mapstructure:"api_secret"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

// MonitoringConfig holds symbol selection and polling cadence configuration
type MonitoringConfig struct {
	Underlying           string        `mapstructure:"underlying"`
	Symbols              []string      `mapstructure:"symbols"`
	CheckInterval        time.Duration `mapstructure:"check_interval"`
	PriceRefreshInterval time.Duration `mapstructure:"price_refresh_interval"`
	CleanupInterval      time.Duration `mapstructure:"cleanup_interval"`
	IVThreshold          float64       `mapstructure:"iv_threshold"`
	IVIncreaseThreshold  float64       `mapstructure:"iv_increase_threshold"`
	ExtraThresholds      []float64     `mapstructure:"extra_thresholds"`
	MinOpenInterest      float64       `mapstructure:"min_open_interest"`
	ATMWindow            int           `mapstructure:"atm_window"`
	MinDaysToExpiry      int           `mapstructure:"min_days_to_expiry"` // 0 = no bound
	MaxDaysToExpiry      int           `mapstructure:"max_days_to_expiry"` // 0 = no bound
	StartupNotification  bool          `mapstructure:"startup_notification"`
}

// FilteringConfig holds the sellable delta band
type FilteringConfig struct {
	DeltaMin float64 `mapstructure:"delta_min"`
	DeltaMax float64 `mapstructure:"delta_max"`
}

// StatisticsConfig holds statistical-mode tuning
type StatisticsConfig struct {
	Mode            string        `mapstructure:"mode"` // "simple" or "statistical"
	ZScoreThreshold float64       `mapstructure:"z_score_threshold"`
	MinSamples      int           `mapstructure:"min_samples"`
	MinHistoryHours float64       `mapstructure:"min_history_hours"`
	LookbackHours   int           `mapstructure:"lookback_hours"`
	RealertCooldown time.Duration `mapstructure:"realert_cooldown"` // 0 = re-alert every cycle
}

// DatabaseConfig holds IV history persistence configuration
type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	RetentionHours int    `mapstructure:"retention_hours"`
}

// NotifyConfig selects and configures the alert channel
type NotifyConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channel  string         `mapstructure:"channel"` // "telegram" or "discord"
	Telegram TelegramConfig `mapstructure:"telegram"`
	Discord  DiscordConfig  `mapstructure:"discord"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// DiscordConfig holds Discord webhook configuration
type DiscordConfig struct {
	WebhookURL    string        `mapstructure:"webhook_url"`
	MentionRoleID string        `mapstructure:"mention_role_id"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"` // empty = console only
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set config file
	v.SetConfigFile(path)

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g.
	// IVSENTINEL_NOTIFY_TELEGRAM_BOT_TOKEN overrides notify.telegram.bot_token
	v.SetEnvPrefix("IVSENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Exchange defaults
	v.SetDefault("exchange.name", "deribit")
	v.SetDefault("exchange.deribit.base_url", "https://www.deribit.com/api/v2")
	v.SetDefault("exchange.deribit.timeout", "30s")
	v.SetDefault("exchange.deribit.max_retries", 3)
	v.SetDefault("exchange.deribit.rate_limit", 5.0)
	v.SetDefault("exchange.deribit.rate_burst", 2)
	v.SetDefault("exchange.binance.options_base_url", "https://eapi.binance.com")
	v.SetDefault("exchange.binance.api_key", "")
	v.SetDefault("exchange.binance.api_secret", "")
	v.SetDefault("exchange.binance.timeout", "30s")
	v.SetDefault("exchange.binance.rate_limit", 5.0)
	v.SetDefault("exchange.binance.rate_burst", 2)

	// Monitoring defaults
	v.SetDefault("monitoring.underlying", "BTC")
	v.SetDefault("monitoring.symbols", []string{"BTC-*-ATM-C", "BTC-*-ATM-P"})
	v.SetDefault("monitoring.check_interval", "10s")
	v.SetDefault("monitoring.price_refresh_interval", "5m")
	v.SetDefault("monitoring.cleanup_interval", "1h")
	v.SetDefault("monitoring.iv_threshold", 45.0)
	v.SetDefault("monitoring.iv_increase_threshold", 1.0)
	v.SetDefault("monitoring.extra_thresholds", []float64{})
	v.SetDefault("monitoring.min_open_interest", 10000.0)
	v.SetDefault("monitoring.atm_window", 2)
	v.SetDefault("monitoring.min_days_to_expiry", 0)
	v.SetDefault("monitoring.max_days_to_expiry", 0)
	v.SetDefault("monitoring.startup_notification", true)

	// Filtering defaults
	v.SetDefault("filtering.delta_min", 0.05)
	v.SetDefault("filtering.delta_max", 0.65)

	// Statistics defaults
	v.SetDefault("statistics.mode", "statistical")
	v.SetDefault("statistics.z_score_threshold", 2.0)
	v.SetDefault("statistics.min_samples", 10)
	v.SetDefault("statistics.min_history_hours", 4.0)
	v.SetDefault("statistics.lookback_hours", 24)
	v.SetDefault("statistics.realert_cooldown", "0s")

	// Database defaults
	v.SetDefault("database.path", "./data/atm_iv.db")
	v.SetDefault("database.retention_hours", 48)

	// Notify defaults
	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.channel", "telegram")
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")
	v.SetDefault("notify.telegram.max_retries", 3)
	v.SetDefault("notify.telegram.retry_delay_base", "1s")
	v.SetDefault("notify.discord.webhook_url", "")
	v.SetDefault("notify.discord.mention_role_id", "")
	v.SetDefault("notify.discord.timeout", "15s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "logs/ivsentinel.log")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Exchange config
	switch c.Exchange.Name {
	case "deribit":
		if c.Exchange.Deribit.BaseURL == "" {
			return fmt.Errorf("exchange.deribit.base_url is required")
		}
		if c.Exchange.Deribit.Timeout < time.Second {
			return fmt.Errorf("exchange.deribit.timeout must be at least 1 second")
		}
		if c.Exchange.Deribit.MaxRetries < 1 {
			return fmt.Errorf("exchange.deribit.max_retries must be at least 1")
		}
		if c.Exchange.Deribit.RateLimit <= 0 {
			return fmt.Errorf("exchange.deribit.rate_limit must be positive")
		}
		if c.Exchange.Deribit.RateBurst < 1 {
			return fmt.Errorf("exchange.deribit.rate_burst must be at least 1")
		}
	case "binance":
		if c.Exchange.Binance.OptionsBaseURL == "" {
			return fmt.Errorf("exchange.binance.options_base_url is required")
		}
		if c.Exchange.Binance.Timeout < time.Second {
			return fmt.Errorf("exchange.binance.timeout must be at least 1 second")
		}
		if c.Exchange.Binance.RateLimit <= 0 {
			return fmt.Errorf("exchange.binance.rate_limit must be positive")
		}
		if c.Exchange.Binance.RateBurst < 1 {
			return fmt.Errorf("exchange.binance.rate_burst must be at least 1")
		}
	default:
		return fmt.Errorf("exchange.name must be one of: deribit, binance")
	}

	// Validate Monitoring config
	if c.Monitoring.Underlying == "" {
		return fmt.Errorf("monitoring.underlying is required")
	}
	if len(c.Monitoring.Symbols) == 0 {
		return fmt.Errorf("monitoring.symbols must contain at least one pattern")
	}
	for _, pattern := range c.Monitoring.Symbols {
		if err := validateSymbolPattern(pattern); err != nil {
			return err
		}
	}
	if c.Monitoring.CheckInterval < time.Second {
		return fmt.Errorf("monitoring.check_interval must be at least 1 second")
	}
	if c.Monitoring.PriceRefreshInterval < time.Minute {
		return fmt.Errorf("monitoring.price_refresh_interval must be at least 1 minute")
	}
	if c.Monitoring.CleanupInterval < time.Minute {
		return fmt.Errorf("monitoring.cleanup_interval must be at least 1 minute")
	}
	if c.Monitoring.IVThreshold <= 0 || c.Monitoring.IVThreshold > 500 {
		return fmt.Errorf("monitoring.iv_threshold must be between 0 and 500 percent")
	}
	if c.Monitoring.IVIncreaseThreshold <= 0 {
		return fmt.Errorf("monitoring.iv_increase_threshold must be positive")
	}
	for _, threshold := range c.Monitoring.ExtraThresholds {
		if threshold <= 0 || threshold > 500 {
			return fmt.Errorf("monitoring.extra_thresholds entries must be between 0 and 500 percent")
		}
	}
	if c.Monitoring.MinOpenInterest < 0 {
		return fmt.Errorf("monitoring.min_open_interest must not be negative")
	}
	if c.Monitoring.ATMWindow < 1 {
		return fmt.Errorf("monitoring.atm_window must be at least 1")
	}
	if c.Monitoring.MinDaysToExpiry < 0 || c.Monitoring.MaxDaysToExpiry < 0 {
		return fmt.Errorf("monitoring day-to-expiry bounds must not be negative")
	}
	if c.Monitoring.MaxDaysToExpiry > 0 && c.Monitoring.MaxDaysToExpiry < c.Monitoring.MinDaysToExpiry {
		return fmt.Errorf("monitoring.max_days_to_expiry must not be below min_days_to_expiry")
	}

	// Validate Filtering config
	if c.Filtering.DeltaMin < 0 || c.Filtering.DeltaMin >= 1 {
		return fmt.Errorf("filtering.delta_min must be in [0, 1)")
	}
	if c.Filtering.DeltaMax <= c.Filtering.DeltaMin || c.Filtering.DeltaMax > 1 {
		return fmt.Errorf("filtering.delta_max must be above delta_min and at most 1")
	}

	// Validate Statistics config
	if c.Statistics.Mode != "simple" && c.Statistics.Mode != "statistical" {
		return fmt.Errorf("statistics.mode must be one of: simple, statistical")
	}
	if c.Statistics.ZScoreThreshold <= 0 {
		return fmt.Errorf("statistics.z_score_threshold must be positive")
	}
	if c.Statistics.MinSamples < 2 {
		return fmt.Errorf("statistics.min_samples must be at least 2")
	}
	if c.Statistics.MinHistoryHours < 0 {
		return fmt.Errorf("statistics.min_history_hours must not be negative")
	}
	if c.Statistics.LookbackHours < 1 {
		return fmt.Errorf("statistics.lookback_hours must be at least 1")
	}
	if c.Statistics.RealertCooldown < 0 {
		return fmt.Errorf("statistics.realert_cooldown must not be negative")
	}

	// Validate Database config
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.RetentionHours < 1 {
		return fmt.Errorf("database.retention_hours must be at least 1")
	}

	// Validate Notify config
	if c.Notify.Enabled {
		switch c.Notify.Channel {
		case "telegram":
			if c.Notify.Telegram.BotToken == "" {
				return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
			}
			if c.Notify.Telegram.ChatID == "" {
				return fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled")
			}
		case "discord":
			if c.Notify.Discord.WebhookURL == "" {
				return fmt.Errorf("notify.discord.webhook_url is required when discord is enabled")
			}
		default:
			return fmt.Errorf("notify.channel must be one of: telegram, discord")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	if c.Logging.File != "" {
		if c.Logging.MaxSizeMB < 1 {
			return fmt.Errorf("logging.max_size_mb must be at least 1")
		}
		if c.Logging.MaxBackups < 0 {
			return fmt.Errorf("logging.max_backups must not be negative")
		}
	}

	return nil
}

// validateSymbolPattern checks that a monitoring symbol is a well-formed
// four-field instrument pattern, e.g. "BTC-*-ATM-C" or "BTC-251226-88000-C".
// The expiry field must be "*" or a parseable date, the strike "*", "ATM" or
// a positive number, the side "*", "C" or "P".
func validateSymbolPattern(pattern string) error {
	parts := strings.Split(pattern, "-")
	if len(parts) != 4 {
		return fmt.Errorf("monitoring.symbols entry %q must have four dash-separated fields", pattern)
	}
	if _, err := path.Match(strings.ToLower(pattern), ""); err != nil {
		return fmt.Errorf("monitoring.symbols entry %q is not a valid pattern: %w", pattern, err)
	}
	if expiry := parts[1]; expiry != "*" {
		if _, ok := instrument.ParseExpiry(expiry); !ok {
			return fmt.Errorf("monitoring.symbols entry %q has an invalid expiry field %q", pattern, expiry)
		}
	}
	if strike := parts[2]; strike != "*" && !strings.EqualFold(strike, "ATM") {
		if v, err := strconv.ParseFloat(strike, 64); err != nil || v <= 0 {
			return fmt.Errorf("monitoring.symbols entry %q has an invalid strike field %q", pattern, strike)
		}
	}
	if side := strings.ToUpper(parts[3]); side != "*" && side != "C" && side != "P" {
		return fmt.Errorf("monitoring.symbols entry %q has an invalid side field %q", pattern, parts[3])
	}
	return nil
}

// GetExchangeConfig returns the Exchange configuration
func (c *Config) GetExchangeConfig() ExchangeConfig {
	return c.Exchange
}

// GetMonitoringConfig returns the Monitoring configuration
func (c *Config) GetMonitoringConfig() MonitoringConfig {
	return c.Monitoring
}

// GetStatisticsConfig returns the Statistics configuration
func (c *Config) GetStatisticsConfig() StatisticsConfig {
	return c.Statistics
}

// GetNotifyConfig returns the Notify configuration
func (c *Config) GetNotifyConfig() NotifyConfig {
	return c.Notify
}

// GetLoggingConfig returns the Logging configuration
func (c *Config) GetLoggingConfig() LoggingConfig {
	return c.Logging
}
