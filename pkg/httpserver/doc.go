// Package httpserver runs an http.Handler with graceful shutdown on context
// cancellation or SIGINT/SIGTERM, and provides liveness and readiness
// handlers.
//
//	srv := httpserver.NewFromConfig(cfg,
//	    httpserver.WithLogger(log),
//	    httpserver.WithStopHook(func() { _ = closer.Close() }),
//	)
//	if err := srv.Run(ctx, router); err != nil { ... }
package httpserver
