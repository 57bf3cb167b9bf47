package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# NIFTY Strangle Engine Configuration

[trading]
# Trading mode: "live" or "paper"
mode = "paper"
underlying = "NIFTY"
spot_symbol = "NSE:NIFTY 50"
lot_size = 65
strike_step = 50
lots = 1
# Capital in INR
capital = 1000000
# Daily risk budget as percent of capital
risk_pct = 2.0
max_trades_per_day = 2
max_open_structures = 1
# Entry window (IST)
session_start = "09:20"
session_end = "14:45"
# Weekly expiry weekday and the latest expiry-day entry time
expiry_weekday = "thursday"
expiry_cutoff = "09:45"
risk_free_rate = 0.065
default_iv = 0.15
# Floor for time to expiry, in years
min_time_to_expiry = 0.001

[strategy]
ce_delta_target = 0.22
pe_delta_target = 0.22
hedge_delta_target = 0.10
roll_delta_target = 0.20
# Strikes scanned either side of ATM
strike_search_range = 1500
supertrend_period = 10
supertrend_multiplier = 3.0
candle_interval = "5minute"
candle_lookback_days = 5
expiry_otm_offset = 100
expiry_hedge_offset = 150
# Close expiry structures at this fraction of premium collected
expiry_target_pct = 0.5
# Stop expiry structures when loss reaches premium collected times this
expiry_stop_mult = 1.0

[gamma]
l1_spot_move = 0.006
l1_premium_pct = 0.40
# Net delta limit, in delta points per short leg pair
l2_delta_limit = 35
l3_spot_move = 0.012
l3_time_window = "45m"

[scheduler]
timezone = "Asia/Kolkata"
# Cron specs with a leading seconds field
market_open = "0 20 9 * * MON-FRI"
no_new_trades = "0 45 14 * * MON-FRI"
force_close = "0 10 15 * * MON-FRI"
eod_report = "0 20 15 * * MON-FRI"
day_reset = "0 0 9 * * MON-FRI"
monitor_interval = "30s"

[gateway]
timeout = "5s"
max_retries = 2
retry_delay = "200ms"
breaker_failures = 5
breaker_cooldown = "30s"
quote_concurrency = 4

[store]
# db_path = "~/.config/nifty-strangler/strangler.db"

[notifications]
enabled = false
# Notification level: all, trades_only, errors_only
level = "all"
timeout = "8s"

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
enabled = false
# Set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID in the environment or .env
bot_token = ""
chat_id = ""

[logging]
level = "info"
console = true
file = true
max_size = 100
max_backups = 7
max_age = 30
`

const credentialsTemplate = `# NIFTY Strangle Engine Credentials
# WARNING: Keep this file secure and never commit it to version control

[kite]
api_key = ""
api_secret = ""
# Produced by the daily Kite login flow
access_token = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(configTemplate), 0644); err != nil {
			return fmt.Errorf("writing config template: %w", err)
		}
	}

	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	credsPath := filepath.Join(configDir, "credentials.toml")
	if _, err := os.Stat(credsPath); os.IsNotExist(err) {
		if err := os.WriteFile(credsPath, []byte(credentialsTemplate), 0600); err != nil {
			return fmt.Errorf("writing credentials template: %w", err)
		}
	}

	return nil
}
