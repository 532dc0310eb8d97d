package httpserver

import (
	"log/slog"
	"time"
)

// Option configures a Server.
type Option func(*options)

type options struct {
	addr              string
	readHeaderTimeout time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	shutdownTimeout   time.Duration
	logger            *slog.Logger
	startHooks        []func(addr string)
	stopHooks         []func()
}

// WithAddr sets the listen address. Panics on an empty string.
func WithAddr(addr string) Option {
	if addr == "" {
		panic("httpserver: empty addr")
	}
	return func(o *options) { o.addr = addr }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("httpserver: shutdown timeout must be positive")
	}
	return func(o *options) { o.shutdownTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStartHook runs h with the bound address once the listener is open.
func WithStartHook(h func(addr string)) Option {
	return func(o *options) { o.startHooks = append(o.startHooks, h) }
}

// WithStopHook runs h after shutdown completes. Use it to close storage.
func WithStopHook(h func()) Option {
	return func(o *options) { o.stopHooks = append(o.stopHooks, h) }
}
