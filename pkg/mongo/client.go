package mongo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

// New connects and pings the server, retrying transient failures.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*mongo.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}
	if log == nil {
		log = slog.Default()
	}

	opts := options.Client().
		ApplyURI(cfg.ConnectionURL).
		SetRetryWrites(true).
		SetRetryReads(true)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.MinPoolSize > 0 {
		opts.SetMinPoolSize(cfg.MinPoolSize)
	}
	if cfg.MaxConnIdleTime > 0 {
		opts.SetMaxConnIdleTime(cfg.MaxConnIdleTime)
	}

	var client *mongo.Client
	err := retry.Do(
		func() error {
			c, err := mongo.Connect(opts)
			if err != nil {
				return err
			}
			if err := c.Ping(ctx, nil); err != nil {
				_ = c.Disconnect(context.WithoutCancel(ctx))
				return err
			}
			client = c
			return nil
		},
		retry.Attempts(max(cfg.RetryAttempts, 1)),
		retry.Delay(cfg.RetryInterval),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.LogAttrs(ctx, slog.LevelWarn, "mongo not ready, retrying",
				slog.Uint64("attempt", uint64(n+1)),
				logger.Error(err),
			)
		}),
	)
	if err != nil {
		return nil, errors.Join(ErrFailedToConnectToMongo, err)
	}
	return client, nil
}

// NewWithDatabase connects and returns the named database handle.
func NewWithDatabase(ctx context.Context, cfg Config, database string, log *slog.Logger) (*mongo.Database, error) {
	client, err := New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return client.Database(database), nil
}
