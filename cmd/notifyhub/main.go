// Command notifyhub serves the notification hub over HTTP.
//
// Configuration comes from NOTIFY_* environment variables, optionally
// loaded from a .env file in the working directory.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/config"
	"github.com/dmitrymomot/notifyhub/pkg/httpserver"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
	"github.com/dmitrymomot/notifyhub/pkg/notify/backend"
	"github.com/dmitrymomot/notifyhub/pkg/notify/bootstrap"
	"github.com/dmitrymomot/notifyhub/pkg/notify/httpapi"
)

type appConfig struct {
	Env             string        `env:"NOTIFY_ENV" envDefault:"development"`
	ServiceName     string        `env:"NOTIFY_SERVICE_NAME" envDefault:"notifyhub"`
	SeedFile        string        `env:"NOTIFY_SEED_FILE"`
	DeliveryTimeout time.Duration `env:"NOTIFY_DELIVERY_TIMEOUT" envDefault:"5s"`
	StreamBuffer    int           `env:"NOTIFY_STREAM_BUFFER" envDefault:"64"`
	StreamHeartbeat time.Duration `env:"NOTIFY_STREAM_HEARTBEAT" envDefault:"15s"`

	HTTP    httpserver.Config
	Backend backend.Config
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.ServiceName),
		logger.WithContextExtractors(httpapi.RequestIDExtractor()),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.LogAttrs(ctx, slog.LevelError, "notifyhub stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	b, err := backend.Open(ctx, cfg.Backend, log)
	if err != nil {
		return err
	}

	streams := notify.NewBroadcastDeliverer(cfg.StreamBuffer, notify.WithBroadcastLogger(log))

	if relay := b.Relay(streams); relay != nil {
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.LogAttrs(ctx, slog.LevelError, "redis relay stopped", logger.Error(err))
			}
		}()
	}

	routerOpts := append(b.RouterOptions(),
		notify.WithDeliverer(b.Deliverer(streams)),
		notify.WithDeliveryTimeout(cfg.DeliveryTimeout),
	)
	hub := notify.NewHub(b.Storage,
		notify.WithHubLogger(log),
		notify.WithMaxHistory(cfg.Backend.MaxHistory),
		notify.WithRouterOptions(routerOpts...),
	)

	if err := bootstrap.Run(ctx, hub, cfg.SeedFile, log); err != nil {
		_ = b.Close()
		return err
	}

	api := httpapi.New(hub,
		httpapi.WithStreams(streams),
		httpapi.WithReadinessProbes(b.Probes()...),
		httpapi.WithHeartbeat(cfg.StreamHeartbeat),
		httpapi.WithLogger(log),
	)

	srv := httpserver.NewFromConfig(cfg.HTTP,
		httpserver.WithLogger(log),
		httpserver.WithStopHook(func() {
			_ = streams.Close()
			if err := b.Close(); err != nil {
				log.LogAttrs(context.Background(), slog.LevelError, "failed to close backend", logger.Error(err))
			}
		}),
	)
	if err := srv.Run(ctx, api.Handle()); err != nil {
		// Stop hooks only run after a clean shutdown.
		_ = b.Close()
		return err
	}
	return nil
}
