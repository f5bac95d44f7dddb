package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/arbfinder/internal/blob/s3"
	"github.com/alanyoungcy/arbfinder/internal/cache/redis"
	"github.com/alanyoungcy/arbfinder/internal/config"
	"github.com/alanyoungcy/arbfinder/internal/domain"
	"github.com/alanyoungcy/arbfinder/internal/notify"
	"github.com/alanyoungcy/arbfinder/internal/server/handler"
	"github.com/alanyoungcy/arbfinder/internal/store/postgres"
)

// Dependencies bundles the collaborators the modes need. Every backend is
// optional; fields stay nil when their backend is disabled.
type Dependencies struct {
	// Stores
	Opportunities domain.OpportunityStore
	ScanRuns      domain.ScanRunStore
	Audit         domain.AuditStore

	// Caches
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager
	Bus         domain.SignalBus
	Names       domain.NameCacheStore

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Health checks per enabled backend.
	Health map[string]handler.Pinger
}

// Wire constructs the enabled backends and returns them together with a
// cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Health: map[string]handler.Pinger{}}

	// --- PostgreSQL ---
	var oppStore *postgres.OpportunityStore
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		oppStore = postgres.NewOpportunityStore(pool)
		deps.Opportunities = oppStore
		deps.ScanRuns = postgres.NewScanRunStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Health["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Names = redis.NewNameCacheStore(redisClient)
		deps.Health["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobWriter = writer
		deps.BlobReader = reader
		deps.Health["s3"] = s3Client.Health

		// The archiver needs the opportunity history and the audit log.
		if oppStore != nil {
			deps.Archiver = s3blob.NewArchiver(writer, reader, oppStore, oppStore, deps.Audit, logger)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			// A bad token should not keep scans from running.
			logger.WarnContext(ctx, "telegram notifications disabled", slog.String("error", err.Error()))
		} else {
			senders = append(senders, tg)
		}
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
		if ttl := cfg.Notify.DedupTTL.Duration; ttl > 0 {
			deps.Notifier.WithDedup(notify.NewDedup(ttl))
		}
	}

	return deps, cleanup, nil
}
