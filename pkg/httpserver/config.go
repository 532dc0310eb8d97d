package httpserver

import "time"

// Config holds listener settings. WriteTimeout defaults to zero because the
// notification stream keeps responses open indefinitely.
type Config struct {
	Addr              string        `env:"NOTIFY_HTTP_ADDR" envDefault:":8000"`
	ReadHeaderTimeout time.Duration `env:"NOTIFY_HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"NOTIFY_HTTP_WRITE_TIMEOUT" envDefault:"0s"`
	IdleTimeout       time.Duration `env:"NOTIFY_HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout   time.Duration `env:"NOTIFY_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// NewFromConfig applies the non-zero fields of cfg, then opts.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	base := []Option{func(c *options) {
		if cfg.Addr != "" {
			c.addr = cfg.Addr
		}
		if cfg.ReadHeaderTimeout > 0 {
			c.readHeaderTimeout = cfg.ReadHeaderTimeout
		}
		c.writeTimeout = cfg.WriteTimeout
		if cfg.IdleTimeout > 0 {
			c.idleTimeout = cfg.IdleTimeout
		}
		if cfg.ShutdownTimeout > 0 {
			c.shutdownTimeout = cfg.ShutdownTimeout
		}
	}}
	return New(append(base, opts...)...)
}
