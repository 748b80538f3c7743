// Package config defines the top-level configuration for the gap monitor and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ODDSGAP_* environment variables.
type Config struct {
	Detection DetectionConfig `toml:"detection"`
	Capture   CaptureConfig   `toml:"capture"`
	Oracle    OracleConfig    `toml:"oracle"`
	Venue     VenueConfig     `toml:"venue"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// DetectionConfig holds the trigger-rule thresholds and the per-game cooldown.
type DetectionConfig struct {
	PriceWindowSeconds int     `toml:"price_window_seconds"`
	PriceThreshold     float64 `toml:"price_threshold"`
	SpreadThreshold    float64 `toml:"spread_threshold"`
	SumThreshold       float64 `toml:"sum_threshold"`
	CooldownMinutes    int     `toml:"cooldown_minutes"`
	// OracleMoveThreshold is the minimum implied-probability move between two
	// reference polls that opens a reference_move event.
	OracleMoveThreshold float64 `toml:"oracle_move_threshold"`
	PollSeconds         int     `toml:"poll_seconds"`
}

// CaptureConfig holds the delayed-capture schedule.
type CaptureConfig struct {
	// OffsetsSeconds are the delayed capture offsets after the baseline.
	// Offset 0 is always captured and must not be listed.
	OffsetsSeconds []int `toml:"offsets_seconds"`
	// StalenessSeconds bounds how old the latest observation may be before a
	// snapshot counts as not-found and samples are written with null fields.
	StalenessSeconds int `toml:"staleness_seconds"`
	// ActionableGap is the gap level at (or above) which a finalized sample
	// additionally raises an operator notification.
	ActionableGap float64 `toml:"actionable_gap"`
}

// OracleConfig holds The Odds API endpoints, credentials, and retry policy.
type OracleConfig struct {
	BaseURL        string  `toml:"base_url"`
	ApiKey         string  `toml:"api_key"`
	Sport          string  `toml:"sport"`
	Bookmaker      string  `toml:"bookmaker"`
	Region         string  `toml:"region"`
	LineTolerance  float64 `toml:"line_tolerance"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MaxAttempts    int     `toml:"max_attempts"`
	BackoffBaseMs  int     `toml:"backoff_base_ms"`
}

// VenueConfig holds the Polymarket feed endpoint and the set of instruments
// to watch. Each instrument binds a venue asset ID to the game/market/outcome
// coordinates the rest of the pipeline speaks in.
type VenueConfig struct {
	WsHost      string             `toml:"ws_host"`
	Instruments []InstrumentConfig `toml:"instruments"`
}

// InstrumentConfig is one watched venue asset.
type InstrumentConfig struct {
	AssetID    string  `toml:"asset_id"`
	GameID     string  `toml:"game_id"`
	MarketType string  `toml:"market_type"`
	Outcome    string  `toml:"outcome"`
	Line       float64 `toml:"line"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for exports.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Validate checks the configuration for values that would make the monitor
// misbehave silently. It returns the first problem found.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "monitor", "export", "full":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	d := c.Detection
	if d.PriceWindowSeconds <= 0 {
		return fmt.Errorf("config: detection.price_window_seconds must be positive, got %d", d.PriceWindowSeconds)
	}
	if d.PriceThreshold <= 0 || d.PriceThreshold >= 1 {
		return fmt.Errorf("config: detection.price_threshold must be in (0,1), got %g", d.PriceThreshold)
	}
	if d.SpreadThreshold <= 0 || d.SpreadThreshold >= 1 {
		return fmt.Errorf("config: detection.spread_threshold must be in (0,1), got %g", d.SpreadThreshold)
	}
	if d.SumThreshold <= 0 || d.SumThreshold >= 1 {
		return fmt.Errorf("config: detection.sum_threshold must be in (0,1), got %g", d.SumThreshold)
	}
	if d.CooldownMinutes <= 0 {
		return fmt.Errorf("config: detection.cooldown_minutes must be positive, got %d", d.CooldownMinutes)
	}

	cap := c.Capture
	if len(cap.OffsetsSeconds) == 0 {
		return fmt.Errorf("config: capture.offsets_seconds must not be empty")
	}
	seen := map[int]bool{}
	for _, off := range cap.OffsetsSeconds {
		if off <= 0 {
			return fmt.Errorf("config: capture offset %d must be positive (0 is implicit)", off)
		}
		if seen[off] {
			return fmt.Errorf("config: duplicate capture offset %d", off)
		}
		seen[off] = true
	}
	if cap.StalenessSeconds <= 0 {
		return fmt.Errorf("config: capture.staleness_seconds must be positive, got %d", cap.StalenessSeconds)
	}

	o := c.Oracle
	if o.BaseURL == "" {
		return fmt.Errorf("config: oracle.base_url is required")
	}
	if strings.ToLower(c.Mode) != "export" && o.ApiKey == "" {
		return fmt.Errorf("config: oracle.api_key is required in %s mode", c.Mode)
	}
	if o.LineTolerance < 0 {
		return fmt.Errorf("config: oracle.line_tolerance must not be negative, got %g", o.LineTolerance)
	}
	if o.MaxAttempts <= 0 {
		return fmt.Errorf("config: oracle.max_attempts must be positive, got %d", o.MaxAttempts)
	}

	if strings.ToLower(c.Mode) != "export" && len(c.Venue.Instruments) == 0 {
		return fmt.Errorf("config: venue.instruments must not be empty in %s mode", c.Mode)
	}
	for i, inst := range c.Venue.Instruments {
		if inst.AssetID == "" || inst.GameID == "" {
			return fmt.Errorf("config: venue.instruments[%d] requires asset_id and game_id", i)
		}
		switch inst.MarketType {
		case "moneyline", "total", "spread":
		default:
			return fmt.Errorf("config: venue.instruments[%d] has unsupported market_type %q", i, inst.MarketType)
		}
	}

	if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "") {
		return fmt.Errorf("config: postgres requires either dsn or host/database/user")
	}

	return nil
}
