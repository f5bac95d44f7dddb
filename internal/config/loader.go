package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBFINDER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBFINDER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Scan ──
	setStr(&cfg.Scan.Market, "ARBFINDER_SCAN_MARKET")
	setFloat64(&cfg.Scan.Cutoff, "ARBFINDER_SCAN_CUTOFF")
	setFloat64(&cfg.Scan.NameCutoff, "ARBFINDER_SCAN_NAME_CUTOFF")
	setBool(&cfg.Scan.IncludeLinks, "ARBFINDER_SCAN_INCLUDE_LINKS")
	setBool(&cfg.Scan.IncludeBetLimits, "ARBFINDER_SCAN_INCLUDE_BET_LIMITS")
	setStr(&cfg.Scan.SnapshotPath, "ARBFINDER_SCAN_SNAPSHOT_PATH")
	setStr(&cfg.Scan.SnapshotKey, "ARBFINDER_SCAN_SNAPSHOT_KEY")
	setStr(&cfg.Scan.ResultsPath, "ARBFINDER_SCAN_RESULTS_PATH")
	setStr(&cfg.Scan.ResultsKey, "ARBFINDER_SCAN_RESULTS_KEY")
	setInt(&cfg.Scan.Workers, "ARBFINDER_SCAN_WORKERS")
	setDuration(&cfg.Scan.Interval, "ARBFINDER_SCAN_INTERVAL")
	setDuration(&cfg.Scan.LockTTL, "ARBFINDER_SCAN_LOCK_TTL")

	// ── Stake ──
	setFloat64(&cfg.Stake.Wager, "ARBFINDER_STAKE_WAGER")
	setFloat64(&cfg.Stake.Rounding, "ARBFINDER_STAKE_ROUNDING")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBFINDER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBFINDER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBFINDER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBFINDER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBFINDER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBFINDER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBFINDER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBFINDER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBFINDER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBFINDER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBFINDER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBFINDER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBFINDER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBFINDER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBFINDER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBFINDER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBFINDER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBFINDER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBFINDER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBFINDER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBFINDER_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBFINDER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBFINDER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBFINDER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBFINDER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBFINDER_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "ARBFINDER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBFINDER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBFINDER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ARBFINDER_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ARBFINDER_SERVER_RATE_WINDOW")
	setInt(&cfg.Server.WSReplay, "ARBFINDER_SERVER_WS_REPLAY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBFINDER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBFINDER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBFINDER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBFINDER_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.DedupTTL, "ARBFINDER_NOTIFY_DEDUP_TTL")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "ARBFINDER_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "ARBFINDER_ARCHIVE_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBFINDER_MODE")
	setStr(&cfg.LogLevel, "ARBFINDER_LOG_LEVEL")
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
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
