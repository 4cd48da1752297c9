package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/nouslabs/nous/internal/blob/s3"
	"github.com/nouslabs/nous/internal/config"
	"github.com/nouslabs/nous/internal/domain"
	"github.com/nouslabs/nous/internal/notify"
	"github.com/nouslabs/nous/internal/platform/alpaca"
	"github.com/nouslabs/nous/internal/platform/finnhub"
	"github.com/nouslabs/nous/internal/platform/gemini"
	"github.com/nouslabs/nous/internal/platform/newsapi"
	redisq "github.com/nouslabs/nous/internal/queue/redis"
	"github.com/nouslabs/nous/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store       domain.ActionStore
	Queue       *redisq.Queue
	RateLimiter domain.RateLimiter

	Finnhub *finnhub.Client
	Alpaca  *alpaca.Client
	News    *newsapi.Client
	Gemini  *gemini.Client

	// Notifier is nil when no social credentials are configured.
	Notifier *notify.Notifier

	// Archiver is nil when S3 cold storage is disabled.
	Archiver *s3blob.ArchiveImpl
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
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
	deps.Store = postgres.NewActionStore(pgClient)

	// --- Redis ---
	redisClient, err := redisq.New(ctx, redisq.ClientConfig{
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

	deps.Queue = redisq.NewQueue(redisClient, cfg.Queue.Key)
	deps.RateLimiter = redisq.NewRateLimiter(redisClient)

	// --- Platform clients ---
	deps.Finnhub = finnhub.New(cfg.Finnhub.BaseURL, cfg.Finnhub.ApiKey)
	deps.Alpaca = alpaca.New(cfg.Alpaca.TradingURL, cfg.Alpaca.DataURL, cfg.Alpaca.ApiKey, cfg.Alpaca.ApiSecret)
	deps.News = newsapi.New(cfg.News.BaseURL, cfg.News.ApiKey, cfg.News.PageSize)
	deps.Gemini = gemini.New(cfg.Gemini.BaseURL, cfg.Gemini.ApiKey, cfg.Gemini.Model)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TwitterApiKey != "" {
		senders = append(senders, notify.NewTwitterSender(
			cfg.Notify.TwitterApiKey,
			cfg.Notify.TwitterApiSecret,
			cfg.Notify.TwitterAccessToken,
			cfg.Notify.TwitterAccessTokenSecret,
		))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, logger)
	}

	// --- S3 cold storage ---
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

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Store)
	}

	return deps, cleanup, nil
}
