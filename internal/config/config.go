// Package config defines all configuration for the market-making bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via PMM_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun     bool             `mapstructure:"dry_run"`
	Venue      VenueConfig      `mapstructure:"venue"`
	Instrument InstrumentConfig `mapstructure:"instrument"`
	Distances  DistanceConfig   `mapstructure:"distances"`
	Skew       SkewConfig       `mapstructure:"skew"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Spread     SpreadConfig     `mapstructure:"spread"`
	Staleness  StalenessConfig  `mapstructure:"staleness"`
	Fills      FillsConfig      `mapstructure:"fills"`
	StopLoss   StopLossConfig   `mapstructure:"stop_loss"`
	Imbalance  ImbalanceConfig  `mapstructure:"imbalance"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

// VenueConfig holds the REST/WS endpoints and bearer-token credential for
// the DEX venue and the CEX reference feed. The wallet signature handshake
// and bearer-token renewal are out of scope here — the token is supplied
// directly, not derived.
type VenueConfig struct {
	RESTBaseURL   string `mapstructure:"rest_base_url"`
	WSMarketURL   string `mapstructure:"ws_market_url"`
	WSUserURL     string `mapstructure:"ws_user_url"`
	CEXWSURL      string `mapstructure:"cex_ws_url"`
	BearerToken   string `mapstructure:"bearer_token"`
	APIKey        string `mapstructure:"api_key"`
}

// InstrumentConfig describes the single perpetual-swap instrument quoted.
type InstrumentConfig struct {
	Symbol        string  `mapstructure:"symbol"`
	OrderSize     float64 `mapstructure:"order_size"`
	MaxPosition   float64 `mapstructure:"max_position"`
	TickSize      float64 `mapstructure:"tick_size"`
	PriceDecimals int     `mapstructure:"price_decimals"`
	LotSize       float64 `mapstructure:"lot_size"`
	SizeDecimals  int     `mapstructure:"size_decimals"`
	MinOrderSize  float64 `mapstructure:"min_order_size"`
}

// DistanceConfig tunes the bid/ask distance interpolation.
type DistanceConfig struct {
	TightMinBps      float64 `mapstructure:"order_distance_tight_min_bps"`
	TightMaxBps      float64 `mapstructure:"order_distance_tight_max_bps"`
	FarMinBps        float64 `mapstructure:"order_distance_far_min_bps"`
	FarMaxBps        float64 `mapstructure:"order_distance_far_max_bps"`
	CancelMinBps     float64 `mapstructure:"cancel_distance_min_bps"`
	CancelMaxBps     float64 `mapstructure:"cancel_distance_max_bps"`
	RebalanceBps     float64 `mapstructure:"rebalance_distance_bps"`
}

// SkewConfig tunes inventory-driven quote skew.
type SkewConfig struct {
	MaxSkewBps float64 `mapstructure:"max_skew_bps"`
}

// RiskConfig tunes the Risk Evaluator's thresholds.
type RiskConfig struct {
	VolatilityWindowSec         int     `mapstructure:"volatility_window_sec"`
	VolatilityThresholdBps      float64 `mapstructure:"volatility_threshold_bps"`
	AmplitudeWindowSec          int     `mapstructure:"amplitude_window_sec"`
	AmplitudeRatioThreshold     float64 `mapstructure:"amplitude_ratio_threshold"`
	AmplitudeWarnRatioThreshold float64 `mapstructure:"amplitude_warn_ratio_threshold"`
	VelocityCheckWindowSec      int     `mapstructure:"velocity_check_window_sec"`
	VelocityTickThreshold       int     `mapstructure:"velocity_tick_threshold"`
	VelocityWarnTickThreshold   int     `mapstructure:"velocity_warn_tick_threshold"`
	VolumeWindowSec             int     `mapstructure:"volume_window_sec"`
	VolumeMinSamples            int     `mapstructure:"volume_min_samples"`
	VolumeWarnRatio             float64 `mapstructure:"volume_warn_ratio"`
	VolumeGuardRatio            float64 `mapstructure:"volume_guard_ratio"`
	GuardCooldownSec            int     `mapstructure:"risk_guard_cooldown_sec"`
	RecoveryStableSec           int     `mapstructure:"risk_recovery_stable_sec"`
	CautionOtherSideEnabled     bool    `mapstructure:"caution_other_side_enabled"`

	// ConsecutiveGuardBackoff widens GuardCooldownSec geometrically after
	// repeated Guard trips within a short span, to avoid a reconnect-storm
	// of short cooldowns thrashing the quotes. Off by default; never changes
	// the regime priority order.
	ConsecutiveGuardBackoffEnabled bool    `mapstructure:"consecutive_guard_backoff_enabled"`
	ConsecutiveGuardBackoffFactor  float64 `mapstructure:"consecutive_guard_backoff_factor"`
	ConsecutiveGuardBackoffMaxSec  int     `mapstructure:"consecutive_guard_backoff_max_sec"`
}

// SpreadConfig tunes CEX/DEX spread guard thresholds.
type SpreadConfig struct {
	ThresholdBps float64 `mapstructure:"spread_threshold_bps"`
	WarnBps      float64 `mapstructure:"spread_warn_bps"`
	RecoveryBps  float64 `mapstructure:"spread_recovery_bps"`
	RecoverySec  int     `mapstructure:"spread_recovery_sec"`
}

// StalenessConfig tunes feed-freshness thresholds.
type StalenessConfig struct {
	DEXStalenessSec int `mapstructure:"dex_staleness_sec"`
	CEXStalenessSec int `mapstructure:"cex_staleness_sec"`
}

// FillsConfig tunes exit pricing and requoting cooldown.
type FillsConfig struct {
	TakerFeeRate   float64 `mapstructure:"taker_fee_rate"`
	MinProfitBps   float64 `mapstructure:"min_profit_bps"`
	FillCooldownSec int    `mapstructure:"fill_cooldown_sec"`
	MinProfitUSD   float64 `mapstructure:"min_profit_usd"`
}

// StopLossConfig tunes stop-loss and Recovery-regime thresholds.
type StopLossConfig struct {
	StopLossUSD             float64 `mapstructure:"stop_loss_usd"`
	StopLossCooldownSec     int     `mapstructure:"stop_loss_cooldown_sec"`
	RecoveryWindowSec       int     `mapstructure:"recovery_window_sec"`
	RecoveryVolatilityBps   float64 `mapstructure:"recovery_volatility_bps"`
	RecoveryCheckIntervalSec int    `mapstructure:"recovery_check_interval_sec"`
}

// ImbalanceConfig tunes the optional depth-imbalance guard.
type ImbalanceConfig struct {
	GuardEnabled    bool    `mapstructure:"imbalance_guard_enabled"`
	DepthLevels     int     `mapstructure:"imbalance_depth_levels"`
	WindowSec       int     `mapstructure:"imbalance_window_sec"`
	GuardThreshold  float64 `mapstructure:"imbalance_guard_threshold"`
	WarnThreshold   float64 `mapstructure:"imbalance_warn_threshold"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NotifyConfig configures the optional Telegram CRITICAL-priority notifier.
type NotifyConfig struct {
	TelegramEnabled bool   `mapstructure:"telegram_enabled"`
	TelegramToken   string `mapstructure:"telegram_token"`
	TelegramChatID  int64  `mapstructure:"telegram_chat_id"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: PMM_BEARER_TOKEN, PMM_API_KEY, PMM_TELEGRAM_TOKEN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PMM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if token := os.Getenv("PMM_BEARER_TOKEN"); token != "" {
		cfg.Venue.BearerToken = token
	}
	if key := os.Getenv("PMM_API_KEY"); key != "" {
		cfg.Venue.APIKey = key
	}
	if token := os.Getenv("PMM_TELEGRAM_TOKEN"); token != "" {
		cfg.Notify.TelegramToken = token
	}
	if os.Getenv("PMM_DRY_RUN") == "true" || os.Getenv("PMM_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Venue.RESTBaseURL == "" {
		return fmt.Errorf("venue.rest_base_url is required")
	}
	if c.Venue.BearerToken == "" {
		return fmt.Errorf("venue.bearer_token is required (set PMM_BEARER_TOKEN)")
	}
	if c.Instrument.Symbol == "" {
		return fmt.Errorf("instrument.symbol is required")
	}
	if c.Instrument.OrderSize <= 0 {
		return fmt.Errorf("instrument.order_size must be > 0")
	}
	if c.Instrument.MaxPosition <= 0 {
		return fmt.Errorf("instrument.max_position must be > 0")
	}
	if c.Instrument.TickSize <= 0 {
		return fmt.Errorf("instrument.tick_size must be > 0")
	}
	if c.Distances.TightMinBps <= 0 || c.Distances.TightMaxBps < c.Distances.TightMinBps {
		return fmt.Errorf("distances.order_distance_tight_{min,max}_bps must be positive and max >= min")
	}
	if c.Risk.VolatilityThresholdBps <= 0 {
		return fmt.Errorf("risk.volatility_threshold_bps must be > 0")
	}
	return nil
}

// DurationSec is a small helper for storing seconds as plain ints in YAML
// and converting to time.Duration at the point of use, rather than relying
// on viper's duration parsing for every field.
func DurationSec(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
