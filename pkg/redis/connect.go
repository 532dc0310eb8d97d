package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

// Connect parses cfg.ConnectionURL and pings the server until it answers or
// the retry budget (bounded by ConnectTimeout) runs out.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*redis.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}
	if log == nil {
		log = slog.Default()
	}

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	client := redis.NewClient(opts)
	err = retry.Do(
		func() error { return client.Ping(ctx).Err() },
		retry.Attempts(max(cfg.RetryAttempts, 1)),
		retry.Delay(cfg.RetryInterval),
		retry.MaxDelay(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.LogAttrs(ctx, slog.LevelWarn, "redis not ready, retrying",
				slog.Uint64("attempt", uint64(n+1)),
				logger.Error(err),
			)
		}),
	)
	if err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrRedisNotReady, err)
	}
	return client, nil
}
