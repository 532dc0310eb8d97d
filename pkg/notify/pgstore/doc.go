// Package pgstore stores channels, subscriptions and notification history in
// PostgreSQL. The schema ships as embedded goose migrations; apply them with
// Store.Migrate before first use.
//
//	pool, err := pg.Connect(ctx, cfg, log)
//	store := pgstore.New(pool, pgstore.WithMaxHistory(1000))
//	if err := store.Migrate(ctx, cfg.MigrationsTable); err != nil { ... }
//	hub := notify.NewHub(store)
package pgstore
