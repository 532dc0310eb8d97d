package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	mongoclient "github.com/dmitrymomot/notifyhub/pkg/mongo"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
	"github.com/dmitrymomot/notifyhub/pkg/notify/mongostore"
	"github.com/dmitrymomot/notifyhub/pkg/notify/pgstore"
	"github.com/dmitrymomot/notifyhub/pkg/notify/redisbus"
	"github.com/dmitrymomot/notifyhub/pkg/notify/sqlitestore"
	"github.com/dmitrymomot/notifyhub/pkg/pg"
	"github.com/dmitrymomot/notifyhub/pkg/redis"
)

// Backend is everything Open connected: storage, an optional shared
// sequencer and the Redis client behind it.
type Backend struct {
	Storage notify.Storage
	// Sequencer is nil when the router's default should be used.
	Sequencer notify.Sequencer
	// Redis is nil unless the redis sequencer or fan-out is enabled.
	Redis *goredis.Client

	cfg     Config
	probes  []func(context.Context) error
	closers []func() error
	log     *slog.Logger
}

// Open validates cfg and connects the configured backends. On error anything
// already opened is closed again.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	b := &Backend{cfg: cfg, log: log}
	if err := b.openStorage(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	if cfg.usesRedis() {
		if err := b.openRedis(ctx); err != nil {
			_ = b.Close()
			return nil, err
		}
	}

	log.LogAttrs(ctx, slog.LevelInfo, "notification backend ready",
		logger.Backend(cfg.StorageType),
		slog.String("sequencer", cfg.Sequencer),
		slog.Bool("redis_fanout", cfg.RedisFanout),
	)
	return b, nil
}

func (b *Backend) openStorage(ctx context.Context) error {
	cfg := b.cfg
	switch cfg.StorageType {
	case StorageMemory:
		b.Storage = notify.NewMemoryStorage(cfg.MaxHistory)

	case StorageSQLite:
		path, err := expandHome(cfg.SQLitePath)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return notify.StorageError("create sqlite directory", err)
		}
		store, err := sqlitestore.Open(ctx, path,
			sqlitestore.WithMaxHistory(cfg.MaxHistory),
			sqlitestore.WithLogger(b.log),
		)
		if err != nil {
			return err
		}
		b.Storage = store
		b.probes = append(b.probes, store.Ping)
		b.closers = append(b.closers, store.Close)

	case StoragePostgres:
		pgCfg := pg.DefaultConfig(cfg.PostgresURL)
		pgCfg.RetryAttempts = cfg.ConnectRetries
		pgCfg.RetryInterval = cfg.RetryInterval
		pool, err := pg.Connect(ctx, pgCfg, b.log)
		if err != nil {
			return notify.StorageError("connect postgres", err)
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		b.probes = append(b.probes, pg.Healthcheck(pool))

		store := pgstore.New(pool, pgstore.WithMaxHistory(cfg.MaxHistory), pgstore.WithLogger(b.log))
		if err := store.Migrate(ctx, pgCfg.MigrationsTable); err != nil {
			return err
		}
		b.Storage = store

	case StorageMongo:
		client, err := mongoclient.New(ctx, mongoclient.Config{
			ConnectionURL: cfg.MongoURL,
			RetryAttempts: cfg.ConnectRetries,
			RetryInterval: cfg.RetryInterval,
		}, b.log)
		if err != nil {
			return notify.StorageError("connect mongo", err)
		}
		b.closers = append(b.closers, func() error {
			return client.Disconnect(context.Background())
		})
		b.probes = append(b.probes, mongoclient.Healthcheck(client))

		store, err := mongostore.New(ctx, client.Database(cfg.MongoDatabase),
			mongostore.WithMaxHistory(cfg.MaxHistory),
			mongostore.WithLogger(b.log),
		)
		if err != nil {
			return err
		}
		b.Storage = store
		// Counters live next to the data so several instances agree.
		b.Sequencer = store.Sequencer()

	default:
		return fmt.Errorf("%w: unknown storage type %q", notify.ErrConfiguration, cfg.StorageType)
	}
	return nil
}

func (b *Backend) openRedis(ctx context.Context) error {
	client, err := redis.Connect(ctx, redis.Config{
		ConnectionURL: b.cfg.RedisURL,
		RetryAttempts: b.cfg.ConnectRetries,
		RetryInterval: b.cfg.RetryInterval,
	}, b.log)
	if err != nil {
		return notify.StorageError("connect redis", err)
	}
	b.Redis = client
	b.closers = append(b.closers, client.Close)
	b.probes = append(b.probes, redis.Healthcheck(client))

	if b.cfg.Sequencer == SequencerRedis {
		opts := []redisbus.SequencerOption{redisbus.WithSequencePrefix(b.cfg.RedisPrefix)}
		if src, ok := b.Storage.(notify.SequenceSource); ok {
			opts = append(opts, redisbus.WithSeed(src))
		}
		b.Sequencer = redisbus.NewSequencer(client, opts...)
	}
	return nil
}

// RouterOptions returns the router options implied by the backend.
func (b *Backend) RouterOptions() []notify.RouterOption {
	if b.Sequencer == nil {
		return nil
	}
	return []notify.RouterOption{notify.WithSequencer(b.Sequencer)}
}

// Deliverer returns what the router should deliver to. With Redis fan-out
// enabled, deliveries go through Redis and come back to local via the relay
// returned by Relay; otherwise local is used directly.
func (b *Backend) Deliverer(local notify.Deliverer) notify.Deliverer {
	if b.cfg.RedisFanout && b.Redis != nil {
		return redisbus.NewPublisher(b.Redis, b.cfg.RedisPrefix)
	}
	return local
}

// Relay returns the Redis relay feeding local, or nil without fan-out.
func (b *Backend) Relay(local notify.Deliverer) *redisbus.Relay {
	if !b.cfg.RedisFanout || b.Redis == nil {
		return nil
	}
	return redisbus.NewRelay(b.Redis, local,
		redisbus.WithRelayPrefix(b.cfg.RedisPrefix),
		redisbus.WithRelayLogger(b.log),
	)
}

// Probes returns readiness checks for every connected service.
func (b *Backend) Probes() []func(context.Context) error {
	return slices.Clone(b.probes)
}

// Close releases connections in reverse order of opening.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
