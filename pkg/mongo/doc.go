// Package mongo connects the official v2 driver with retry and pool settings
// taken from Config, and exposes a health probe.
//
//	db, err := mongo.NewWithDatabase(ctx, mongo.Config{ConnectionURL: url}, "notifyhub", log)
//	if err != nil { ... }
//	defer db.Client().Disconnect(context.Background())
package mongo
