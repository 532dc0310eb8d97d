// Package pg wraps pgx/v5 pool setup, goose migrations from an embedded
// filesystem, health probes and PostgreSQL error classification.
//
//	pool, err := pg.Connect(ctx, pg.DefaultConfig(url), log)
//	if err != nil { ... }
//	defer pool.Close()
//
//	//go:embed migrations/*.sql
//	var migrations embed.FS
//	err = pg.Migrate(ctx, pool, migrations, "migrations", "notifyhub_migrations", log)
package pg
