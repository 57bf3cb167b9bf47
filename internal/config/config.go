// Package config provides configuration management for the strangle engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"nifty-strangler/internal/logging"
	"nifty-strangler/pkg/utils"
)

// Config holds all application configuration.
type Config struct {
	Trading       TradingConfig      `mapstructure:"trading"`
	Strategy      StrategyConfig     `mapstructure:"strategy"`
	Gamma         GammaConfig        `mapstructure:"gamma"`
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
	Gateway       GatewayConfig      `mapstructure:"gateway"`
	Store         StoreConfig        `mapstructure:"store"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       logging.LogConfig  `mapstructure:"logging"`
	Credentials   Credentials        `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds instrument, capital and session configuration.
type TradingConfig struct {
	Mode              string  `mapstructure:"mode"` // "paper", "live"
	Underlying        string  `mapstructure:"underlying"`
	SpotSymbol        string  `mapstructure:"spot_symbol"`
	LotSize           int     `mapstructure:"lot_size"`
	StrikeStep        int     `mapstructure:"strike_step"`
	Lots              int     `mapstructure:"lots"`
	Capital           float64 `mapstructure:"capital"`
	RiskPct           float64 `mapstructure:"risk_pct"`
	MaxTradesPerDay   int     `mapstructure:"max_trades_per_day"`
	MaxOpenStructures int     `mapstructure:"max_open_structures"`
	SessionStart      string  `mapstructure:"session_start"`
	SessionEnd        string  `mapstructure:"session_end"`
	ExpiryWeekday     string  `mapstructure:"expiry_weekday"`
	ExpiryCutoff      string  `mapstructure:"expiry_cutoff"`
	RiskFreeRate      float64 `mapstructure:"risk_free_rate"`
	DefaultIV         float64 `mapstructure:"default_iv"`
	MinTimeToExpiry   float64 `mapstructure:"min_time_to_expiry"` // years
}

// StrategyConfig holds strike selection and trend settings.
type StrategyConfig struct {
	CEDeltaTarget        float64 `mapstructure:"ce_delta_target"`
	PEDeltaTarget        float64 `mapstructure:"pe_delta_target"`
	HedgeDeltaTarget     float64 `mapstructure:"hedge_delta_target"`
	RollDeltaTarget      float64 `mapstructure:"roll_delta_target"`
	StrikeSearchRange    int     `mapstructure:"strike_search_range"`
	SupertrendPeriod     int     `mapstructure:"supertrend_period"`
	SupertrendMultiplier float64 `mapstructure:"supertrend_multiplier"`
	CandleInterval       string  `mapstructure:"candle_interval"`
	CandleLookbackDays   int     `mapstructure:"candle_lookback_days"`
	ExpiryOTMOffset      int     `mapstructure:"expiry_otm_offset"`
	ExpiryHedgeOffset    int     `mapstructure:"expiry_hedge_offset"`
	ExpiryTargetPct      float64 `mapstructure:"expiry_target_pct"`
	ExpiryStopMult       float64 `mapstructure:"expiry_stop_mult"`
}

// GammaConfig holds the three-level defense thresholds.
type GammaConfig struct {
	L1SpotMove   float64       `mapstructure:"l1_spot_move"`
	L1PremiumPct float64       `mapstructure:"l1_premium_pct"`
	L2DeltaLimit float64       `mapstructure:"l2_delta_limit"`
	L3SpotMove   float64       `mapstructure:"l3_spot_move"`
	L3TimeWindow time.Duration `mapstructure:"l3_time_window"`
}

// SchedulerConfig holds cron specs (with seconds field) for lifecycle jobs.
type SchedulerConfig struct {
	Timezone        string        `mapstructure:"timezone"`
	MarketOpen      string        `mapstructure:"market_open"`
	NoNewTrades     string        `mapstructure:"no_new_trades"`
	ForceClose      string        `mapstructure:"force_close"`
	EODReport       string        `mapstructure:"eod_report"`
	DayReset        string        `mapstructure:"day_reset"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
}

// GatewayConfig bounds every market-data call.
type GatewayConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	BreakerFailures  int           `mapstructure:"breaker_failures"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
	QuoteConcurrency int           `mapstructure:"quote_concurrency"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, trades_only, errors_only
	Timeout  time.Duration  `mapstructure:"timeout"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds Zerodha Kite Connect credentials. The access
// token is produced by an external login flow.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Trading: TradingConfig{
			Mode:              "paper",
			Underlying:        "NIFTY",
			SpotSymbol:        "NSE:NIFTY 50",
			LotSize:           65,
			StrikeStep:        50,
			Lots:              1,
			Capital:           1000000,
			RiskPct:           2.0,
			MaxTradesPerDay:   2,
			MaxOpenStructures: 1,
			SessionStart:      "09:20",
			SessionEnd:        "14:45",
			ExpiryWeekday:     "thursday",
			ExpiryCutoff:      "09:45",
			RiskFreeRate:      0.065,
			DefaultIV:         0.15,
			MinTimeToExpiry:   0.001,
		},
		Strategy: StrategyConfig{
			CEDeltaTarget:        0.22,
			PEDeltaTarget:        0.22,
			HedgeDeltaTarget:     0.10,
			RollDeltaTarget:      0.20,
			StrikeSearchRange:    1500,
			SupertrendPeriod:     10,
			SupertrendMultiplier: 3.0,
			CandleInterval:       "5minute",
			CandleLookbackDays:   5,
			ExpiryOTMOffset:      100,
			ExpiryHedgeOffset:    150,
			ExpiryTargetPct:      0.5,
			ExpiryStopMult:       1.0,
		},
		Gamma: GammaConfig{
			L1SpotMove:   0.006,
			L1PremiumPct: 0.40,
			L2DeltaLimit: 35,
			L3SpotMove:   0.012,
			L3TimeWindow: 45 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Timezone:        "Asia/Kolkata",
			MarketOpen:      "0 20 9 * * MON-FRI",
			NoNewTrades:     "0 45 14 * * MON-FRI",
			ForceClose:      "0 10 15 * * MON-FRI",
			EODReport:       "0 20 15 * * MON-FRI",
			DayReset:        "0 0 9 * * MON-FRI",
			MonitorInterval: 30 * time.Second,
		},
		Gateway: GatewayConfig{
			Timeout:          5 * time.Second,
			MaxRetries:       2,
			RetryDelay:       200 * time.Millisecond,
			BreakerFailures:  5,
			BreakerCooldown:  30 * time.Second,
			QuoteConcurrency: 4,
		},
		Store: StoreConfig{
			DBPath: filepath.Join(DefaultConfigDir(), "strangler.db"),
		},
		Notifications: NotificationConfig{
			Level:   "all",
			Timeout: 8 * time.Second,
		},
		Logging: logging.DefaultLogConfig(),
	}
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/nifty-strangler"
	}
	return filepath.Join(home, ".config", "nifty-strangler")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// A .env next to the config files seeds the environment overrides.
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create template and keep defaults
			return createTemplateConfig(configDir)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv("STRANGLER_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("STRANGLER_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	t := c.Trading
	if t.Mode != "live" && t.Mode != "paper" {
		return fmt.Errorf("invalid trading mode: %s (must be 'live' or 'paper')", t.Mode)
	}
	if t.LotSize <= 0 || t.StrikeStep <= 0 || t.Lots <= 0 {
		return fmt.Errorf("lot_size, strike_step and lots must be positive")
	}
	if t.Capital <= 0 {
		return fmt.Errorf("capital must be positive")
	}
	if t.RiskPct <= 0 || t.RiskPct > 100 {
		return fmt.Errorf("risk_pct must be between 0 and 100")
	}
	if t.MaxTradesPerDay < 0 || t.MaxOpenStructures < 1 {
		return fmt.Errorf("max_trades_per_day must be non-negative and max_open_structures at least 1")
	}
	for name, s := range map[string]string{
		"session_start": t.SessionStart,
		"session_end":   t.SessionEnd,
		"expiry_cutoff": t.ExpiryCutoff,
	} {
		if _, err := utils.ParseTimeOfDay(s); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if _, err := utils.ParseWeekday(t.ExpiryWeekday); err != nil {
		return err
	}
	if t.DefaultIV <= 0 || t.MinTimeToExpiry <= 0 {
		return fmt.Errorf("default_iv and min_time_to_expiry must be positive")
	}

	s := c.Strategy
	for name, d := range map[string]float64{
		"ce_delta_target":    s.CEDeltaTarget,
		"pe_delta_target":    s.PEDeltaTarget,
		"hedge_delta_target": s.HedgeDeltaTarget,
		"roll_delta_target":  s.RollDeltaTarget,
	} {
		if d <= 0 || d >= 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if s.HedgeDeltaTarget >= s.CEDeltaTarget || s.HedgeDeltaTarget >= s.PEDeltaTarget {
		return fmt.Errorf("hedge_delta_target must be below the short delta targets")
	}
	if s.SupertrendPeriod <= 0 || s.SupertrendMultiplier <= 0 {
		return fmt.Errorf("supertrend period and multiplier must be positive")
	}
	if s.StrikeSearchRange < t.StrikeStep {
		return fmt.Errorf("strike_search_range must cover at least one strike step")
	}

	g := c.Gamma
	if g.L1SpotMove <= 0 || g.L3SpotMove <= 0 || g.L1PremiumPct <= 0 || g.L2DeltaLimit <= 0 {
		return fmt.Errorf("gamma thresholds must be positive")
	}
	if g.L3SpotMove < g.L1SpotMove {
		return fmt.Errorf("l3_spot_move must not be below l1_spot_move")
	}

	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}
	if c.Scheduler.MonitorInterval <= 0 {
		return fmt.Errorf("monitor_interval must be positive")
	}

	switch strings.ToLower(c.Notifications.Level) {
	case "", "all", "trades_only", "errors_only":
	default:
		return fmt.Errorf("invalid notification level: %s", c.Notifications.Level)
	}

	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}

// RiskBudget is the maximum daily loss in rupees.
func (c *Config) RiskBudget() float64 {
	return c.Trading.Capital * c.Trading.RiskPct / 100
}

// Quantity is the per-leg contract quantity.
func (c *Config) Quantity() int {
	return c.Trading.LotSize * c.Trading.Lots
}
