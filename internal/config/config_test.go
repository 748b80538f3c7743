package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Oracle.ApiKey = "test-key"
	cfg.Postgres.Host = "localhost"
	cfg.Postgres.Database = "oddsgap"
	cfg.Postgres.User = "oddsgap"
	cfg.Venue.Instruments = []InstrumentConfig{
		{
			AssetID:    "0xabc",
			GameID:     "nba-bos-mia-20260301",
			MarketType: "moneyline",
			Outcome:    "Celtics",
		},
	}
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "replay" },
			wantMsg: "unsupported mode",
		},
		{
			name:    "zero price threshold",
			mutate:  func(c *Config) { c.Detection.PriceThreshold = 0 },
			wantMsg: "price_threshold",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Detection.SpreadThreshold = 1.5 },
			wantMsg: "spread_threshold",
		},
		{
			name:    "no capture offsets",
			mutate:  func(c *Config) { c.Capture.OffsetsSeconds = nil },
			wantMsg: "offsets_seconds",
		},
		{
			name:    "duplicate capture offset",
			mutate:  func(c *Config) { c.Capture.OffsetsSeconds = []int{3, 10, 10} },
			wantMsg: "duplicate capture offset",
		},
		{
			name:    "offset zero is implicit",
			mutate:  func(c *Config) { c.Capture.OffsetsSeconds = []int{0, 3} },
			wantMsg: "must be positive",
		},
		{
			name:    "missing api key in monitor mode",
			mutate:  func(c *Config) { c.Oracle.ApiKey = "" },
			wantMsg: "api_key",
		},
		{
			name:    "no instruments in monitor mode",
			mutate:  func(c *Config) { c.Venue.Instruments = nil },
			wantMsg: "instruments",
		},
		{
			name: "bad instrument market type",
			mutate: func(c *Config) {
				c.Venue.Instruments[0].MarketType = "futures"
			},
			wantMsg: "market_type",
		},
		{
			name: "postgres without connection info",
			mutate: func(c *Config) {
				c.Postgres.DSN = ""
				c.Postgres.Host = ""
			},
			wantMsg: "postgres",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateExportModeNeedsNoApiKeyOrInstruments(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "export"
	cfg.Oracle.ApiKey = ""
	cfg.Venue.Instruments = nil
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "full"
log_level = "debug"

[detection]
price_threshold = 0.08

[capture]
offsets_seconds = [5, 15]

[[venue.instruments]]
asset_id = "0xabc"
game_id = "nba-bos-mia-20260301"
market_type = "total"
outcome = "over"
line = 225.5
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 0.08, cfg.Detection.PriceThreshold)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.05, cfg.Detection.SpreadThreshold)
	assert.Equal(t, []int{5, 15}, cfg.Capture.OffsetsSeconds)

	require.Len(t, cfg.Venue.Instruments, 1)
	assert.Equal(t, "total", cfg.Venue.Instruments[0].MarketType)
	assert.Equal(t, 225.5, cfg.Venue.Instruments[0].Line)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = \"monitor\"\n"), 0o600))

	t.Setenv("ODDSGAP_ORACLE_API_KEY", "from-env")
	t.Setenv("ODDSGAP_DETECTION_COOLDOWN_MINUTES", "45")
	t.Setenv("ODDSGAP_CAPTURE_OFFSETS_SECONDS", "3,10,30,60")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Oracle.ApiKey)
	assert.Equal(t, 45, cfg.Detection.CooldownMinutes)
	assert.Equal(t, []int{3, 10, 30, 60}, cfg.Capture.OffsetsSeconds)
}
