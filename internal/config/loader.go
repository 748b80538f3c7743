package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Defaults returns the built-in configuration. The thresholds mirror the
// values the lag study was calibrated with: a 5%p move within 5 minutes, a
// 5%p spread, a 3%p complementary-sum deviation, and a 30 minute per-game
// oracle cooldown.
func Defaults() Config {
	return Config{
		Detection: DetectionConfig{
			PriceWindowSeconds:  300,
			PriceThreshold:      0.05,
			SpreadThreshold:     0.05,
			SumThreshold:        0.03,
			CooldownMinutes:     30,
			OracleMoveThreshold: 0.04,
			PollSeconds:         60,
		},
		Capture: CaptureConfig{
			OffsetsSeconds:   []int{3, 10, 30},
			StalenessSeconds: 120,
			ActionableGap:    0.04,
		},
		Oracle: OracleConfig{
			BaseURL:        "https://api.the-odds-api.com/v4",
			Sport:          "basketball_nba",
			Bookmaker:      "pinnacle",
			Region:         "us",
			LineTolerance:  0.5,
			TimeoutSeconds: 10,
			MaxAttempts:    3,
			BackoffBaseMs:  500,
		},
		Venue: VenueConfig{
			WsHost: "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		},
		Postgres: PostgresConfig{
			Port:          5432,
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 8,
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ODDSGAP_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ODDSGAP_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Detection ──
	setInt(&cfg.Detection.PriceWindowSeconds, "ODDSGAP_DETECTION_PRICE_WINDOW_SECONDS")
	setFloat64(&cfg.Detection.PriceThreshold, "ODDSGAP_DETECTION_PRICE_THRESHOLD")
	setFloat64(&cfg.Detection.SpreadThreshold, "ODDSGAP_DETECTION_SPREAD_THRESHOLD")
	setFloat64(&cfg.Detection.SumThreshold, "ODDSGAP_DETECTION_SUM_THRESHOLD")
	setInt(&cfg.Detection.CooldownMinutes, "ODDSGAP_DETECTION_COOLDOWN_MINUTES")
	setFloat64(&cfg.Detection.OracleMoveThreshold, "ODDSGAP_DETECTION_ORACLE_MOVE_THRESHOLD")
	setInt(&cfg.Detection.PollSeconds, "ODDSGAP_DETECTION_POLL_SECONDS")

	// ── Capture ──
	setIntSlice(&cfg.Capture.OffsetsSeconds, "ODDSGAP_CAPTURE_OFFSETS_SECONDS")
	setInt(&cfg.Capture.StalenessSeconds, "ODDSGAP_CAPTURE_STALENESS_SECONDS")
	setFloat64(&cfg.Capture.ActionableGap, "ODDSGAP_CAPTURE_ACTIONABLE_GAP")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "ODDSGAP_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.ApiKey, "ODDSGAP_ORACLE_API_KEY")
	setStr(&cfg.Oracle.Sport, "ODDSGAP_ORACLE_SPORT")
	setStr(&cfg.Oracle.Bookmaker, "ODDSGAP_ORACLE_BOOKMAKER")
	setStr(&cfg.Oracle.Region, "ODDSGAP_ORACLE_REGION")
	setFloat64(&cfg.Oracle.LineTolerance, "ODDSGAP_ORACLE_LINE_TOLERANCE")
	setInt(&cfg.Oracle.TimeoutSeconds, "ODDSGAP_ORACLE_TIMEOUT_SECONDS")
	setInt(&cfg.Oracle.MaxAttempts, "ODDSGAP_ORACLE_MAX_ATTEMPTS")
	setInt(&cfg.Oracle.BackoffBaseMs, "ODDSGAP_ORACLE_BACKOFF_BASE_MS")

	// ── Venue ──
	setStr(&cfg.Venue.WsHost, "ODDSGAP_VENUE_WS_HOST")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ODDSGAP_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ODDSGAP_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ODDSGAP_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ODDSGAP_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ODDSGAP_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ODDSGAP_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ODDSGAP_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ODDSGAP_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ODDSGAP_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ODDSGAP_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ODDSGAP_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ODDSGAP_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ODDSGAP_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ODDSGAP_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ODDSGAP_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ODDSGAP_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ODDSGAP_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ODDSGAP_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ODDSGAP_S3_REGION")
	setStr(&cfg.S3.Bucket, "ODDSGAP_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ODDSGAP_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ODDSGAP_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "ODDSGAP_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "ODDSGAP_S3_PREFIX")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ODDSGAP_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ODDSGAP_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ODDSGAP_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ODDSGAP_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ODDSGAP_MODE")
	setStr(&cfg.LogLevel, "ODDSGAP_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setIntSlice(dst *[]int, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return
			}
			out = append(out, n)
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
