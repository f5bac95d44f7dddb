// Package config defines the top-level configuration for the arbitrage finder
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBFINDER_* environment variables.
type Config struct {
	Scan     ScanConfig     `toml:"scan"`
	Stake    StakeConfig    `toml:"stake"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ScanConfig controls what a scan reads, evaluates and writes.
type ScanConfig struct {
	// Market is the provider key of the market to evaluate: h2h, totals or spreads.
	Market string `toml:"market"`
	// Cutoff is the minimum accepted profit margin in percent.
	Cutoff           float64 `toml:"cutoff"`
	NameCutoff       float64 `toml:"name_cutoff"`
	IncludeLinks     bool    `toml:"include_links"`
	IncludeBetLimits bool    `toml:"include_bet_limits"`
	// SnapshotPath is a local odds document; SnapshotKey an object key in S3.
	// SnapshotKey wins when both are set.
	SnapshotPath string   `toml:"snapshot_path"`
	SnapshotKey  string   `toml:"snapshot_key"`
	ResultsPath  string   `toml:"results_path"`
	ResultsKey   string   `toml:"results_key"`
	Workers      int      `toml:"workers"`
	Interval     duration `toml:"interval"`
	LockTTL      duration `toml:"lock_ttl"`
}

// MarketType parses Market. Validate reports the error.
func (s ScanConfig) MarketType() domain.MarketType {
	m, _ := domain.ParseMarketType(s.Market)
	return m
}

// StakeConfig holds stake calculator parameters.
type StakeConfig struct {
	Wager float64 `toml:"wager"`
	// Rounding is the stake unit; 0 disables rounding.
	Rounding float64 `toml:"rounding"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects /api routes; empty disables authentication.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per RateWindow per client; 0 disables limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
	// WSReplay is how many recent opportunities a new WebSocket client gets.
	WSReplay int `toml:"ws_replay"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// DedupTTL suppresses repeat alerts for an unchanged opportunity; 0 alerts
	// on every sighting.
	DedupTTL duration `toml:"dedup_ttl"`
}

// ArchiveConfig controls export of old opportunities to object storage.
type ArchiveConfig struct {
	// RetentionDays is how long opportunities stay hot; 0 disables archiving.
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Scan: ScanConfig{
			Market:       "h2h",
			Cutoff:       0,
			NameCutoff:   0.6,
			SnapshotPath: "odds_data.json",
			ResultsPath:  "arbitrage_results.json",
			Workers:      4,
			LockTTL:      duration{2 * time.Minute},
		},
		Stake: StakeConfig{
			Wager:    100,
			Rounding: 0,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbfinder",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbfinder-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
			WSReplay:    20,
		},
		Notify: NotifyConfig{
			Events:   []string{"arb_detected", "scan_failed"},
			DedupTTL: duration{30 * time.Minute},
		},
		Archive: ArchiveConfig{
			RetentionDays: 0,
			Interval:      duration{24 * time.Hour},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":   true,
	"calc":   true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, calc, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Scan
	if _, err := domain.ParseMarketType(c.Scan.Market); err != nil {
		errs = append(errs, fmt.Sprintf("scan: unsupported market %q (valid: h2h, totals, spreads)", c.Scan.Market))
	}
	if c.Scan.Cutoff < 0 {
		errs = append(errs, "scan: cutoff must be >= 0")
	}
	if c.Scan.NameCutoff < 0 || c.Scan.NameCutoff > 1 {
		errs = append(errs, "scan: name_cutoff must be between 0 and 1")
	}
	if c.Scan.Workers < 1 {
		errs = append(errs, "scan: workers must be >= 1")
	}
	if c.Scan.Interval.Duration < 0 {
		errs = append(errs, "scan: interval must not be negative")
	}
	if mode == "scan" || mode == "full" {
		if c.Scan.SnapshotPath == "" && c.Scan.SnapshotKey == "" {
			errs = append(errs, "scan: snapshot_path or snapshot_key must be set for mode "+mode)
		}
	}
	if (c.Scan.SnapshotKey != "" || c.Scan.ResultsKey != "") && !c.S3.Enabled {
		errs = append(errs, "scan: snapshot_key and results_key require s3.enabled")
	}

	// Stake
	if c.Stake.Wager <= 0 {
		errs = append(errs, "stake: wager must be > 0")
	}
	if c.Stake.Rounding < 0 {
		errs = append(errs, "stake: rounding must be >= 0")
	}
	if mode == "calc" && c.Scan.ResultsPath == "" && c.Scan.ResultsKey == "" {
		errs = append(errs, "calc: scan.results_path or scan.results_key must point at a results document")
	}

	// Postgres
	if mode == "server" || mode == "full" {
		if !c.Postgres.Enabled {
			errs = append(errs, "postgres: must be enabled for mode "+mode)
		}
	}
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if mode == "server" || mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
		if c.Server.WSReplay < 0 {
			errs = append(errs, "server: ws_replay must be >= 0")
		}
	}

	// Notify
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
	}

	// Archive
	if c.Archive.RetentionDays < 0 {
		errs = append(errs, "archive: retention_days must be >= 0")
	}
	if c.Archive.RetentionDays > 0 && (!c.S3.Enabled || !c.Postgres.Enabled) {
		errs = append(errs, "archive: retention_days requires postgres.enabled and s3.enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
