package backend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

// Storage types accepted by NOTIFY_STORAGE_TYPE.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
)

// Sequencer types accepted by NOTIFY_SEQUENCER.
const (
	SequencerMemory = "memory"
	SequencerRedis  = "redis"
)

// Config selects and configures the storage, sequencer and fan-out.
type Config struct {
	StorageType   string `env:"NOTIFY_STORAGE_TYPE" envDefault:"memory"`
	SQLitePath    string `env:"NOTIFY_SQLITE_PATH" envDefault:"~/.notify-hub/storage.db"`
	PostgresURL   string `env:"NOTIFY_POSTGRES_URL"`
	MongoURL      string `env:"NOTIFY_MONGO_URL"`
	MongoDatabase string `env:"NOTIFY_MONGO_DATABASE" envDefault:"notifyhub"`
	MaxHistory    int    `env:"NOTIFY_MAX_HISTORY" envDefault:"1000"`

	Sequencer   string `env:"NOTIFY_SEQUENCER" envDefault:"memory"`
	RedisURL    string `env:"NOTIFY_REDIS_URL"`
	RedisPrefix string `env:"NOTIFY_REDIS_PREFIX" envDefault:"notifyhub"`
	RedisFanout bool   `env:"NOTIFY_REDIS_FANOUT" envDefault:"false"`

	ConnectRetries uint          `env:"NOTIFY_CONNECT_RETRIES" envDefault:"3"`
	RetryInterval  time.Duration `env:"NOTIFY_CONNECT_RETRY_INTERVAL" envDefault:"1s"`
}

// DefaultConfig matches the env defaults.
func DefaultConfig() Config {
	return Config{
		StorageType:    StorageMemory,
		SQLitePath:     "~/.notify-hub/storage.db",
		MongoDatabase:  "notifyhub",
		MaxHistory:     notify.DefaultMaxHistory,
		Sequencer:      SequencerMemory,
		RedisPrefix:    "notifyhub",
		ConnectRetries: 3,
		RetryInterval:  time.Second,
	}
}

// Validate reports every problem at once, each wrapped in
// notify.ErrConfiguration.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{notify.ErrConfiguration}, args...)...))
	}

	switch c.StorageType {
	case StorageMemory:
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			add("NOTIFY_SQLITE_PATH is required for sqlite storage")
		}
	case StoragePostgres:
		if c.PostgresURL == "" {
			add("NOTIFY_POSTGRES_URL is required for postgres storage")
		} else if !strings.HasPrefix(c.PostgresURL, "postgres://") && !strings.HasPrefix(c.PostgresURL, "postgresql://") {
			add("NOTIFY_POSTGRES_URL must start with postgres:// or postgresql://")
		}
	case StorageMongo:
		if c.MongoURL == "" {
			add("NOTIFY_MONGO_URL is required for mongo storage")
		}
		if c.MongoDatabase == "" {
			add("NOTIFY_MONGO_DATABASE is required for mongo storage")
		}
	default:
		add("unknown storage type %q", c.StorageType)
	}

	if c.MaxHistory < 1 {
		add("NOTIFY_MAX_HISTORY must be at least 1, got %d", c.MaxHistory)
	}
	if !slices.Contains([]string{SequencerMemory, SequencerRedis}, c.Sequencer) {
		add("unknown sequencer %q", c.Sequencer)
	}
	if (c.Sequencer == SequencerRedis || c.RedisFanout) && c.RedisURL == "" {
		add("NOTIFY_REDIS_URL is required for the redis sequencer or fan-out")
	}
	return errors.Join(errs...)
}

// usesRedis reports whether Open must connect to Redis.
func (c Config) usesRedis() bool {
	return c.Sequencer == SequencerRedis || c.RedisFanout
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: resolve home directory: %w", notify.ErrConfiguration, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
