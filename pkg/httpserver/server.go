package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

// Server runs an http.Server until its context is cancelled or the process
// receives SIGINT or SIGTERM, then drains connections.
type Server struct {
	opts *options

	mu   sync.Mutex
	srv  *http.Server
	once sync.Once
}

func New(opts ...Option) *Server {
	o := &options{
		addr:              ":8000",
		readHeaderTimeout: 10 * time.Second,
		idleTimeout:       2 * time.Minute,
		shutdownTimeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Server{opts: o}
}

// Run blocks until shutdown. It returns ErrStart if the listener cannot be
// opened or the server fails while running.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, ErrAlreadyRunning)
	}
	srv := &http.Server{
		Addr:              s.opts.addr,
		Handler:           handler,
		ReadHeaderTimeout: s.opts.readHeaderTimeout,
		WriteTimeout:      s.opts.writeTimeout,
		IdleTimeout:       s.opts.idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.srv = srv
	s.mu.Unlock()

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return errors.Join(ErrStart, err)
	}

	addr := ln.Addr().String()
	s.opts.logger.LogAttrs(ctx, slog.LevelInfo, "http server listening", slog.String("addr", addr))
	for _, h := range s.opts.startHooks {
		h(addr)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		if err := s.Shutdown(context.WithoutCancel(ctx)); err != nil {
			s.opts.logger.LogAttrs(ctx, slog.LevelError, "http server shutdown", logger.Error(err))
		}
		err = <-errCh
	case err = <-errCh:
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Join(ErrStart, err)
	}
	return nil
}

// Shutdown drains the server and runs stop hooks. Repeated calls are no-ops.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	var err error
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(ctx)
		for _, h := range s.opts.stopHooks {
			h()
		}
		s.opts.logger.LogAttrs(ctx, slog.LevelInfo, "http server stopped")
	})
	if err != nil {
		return errors.Join(ErrShutdown, err)
	}
	return nil
}
