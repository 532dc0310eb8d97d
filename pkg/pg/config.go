package pg

import "time"

// Config describes the connection pool. The notification backend fills it from
// its own environment block; field tags make it usable standalone too.
type Config struct {
	ConnectionString  string        `env:"PG_CONN_URL"`
	MaxOpenConns      int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns      int32         `env:"PG_MAX_IDLE_CONNS" envDefault:"2"`
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`

	RetryAttempts uint          `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"1s"`

	MigrationsTable string `env:"PG_MIGRATIONS_TABLE" envDefault:"notifyhub_migrations"`
}

// DefaultConfig returns the values the env defaults would produce.
func DefaultConfig(connString string) Config {
	return Config{
		ConnectionString:  connString,
		MaxOpenConns:      10,
		MaxIdleConns:      2,
		HealthCheckPeriod: time.Minute,
		MaxConnIdleTime:   10 * time.Minute,
		MaxConnLifetime:   30 * time.Minute,
		RetryAttempts:     3,
		RetryInterval:     time.Second,
		MigrationsTable:   "notifyhub_migrations",
	}
}
