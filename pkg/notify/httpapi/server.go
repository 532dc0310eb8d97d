package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifyhub/pkg/binder"
	"github.com/dmitrymomot/notifyhub/pkg/broadcast"
	"github.com/dmitrymomot/notifyhub/pkg/handler"
	"github.com/dmitrymomot/notifyhub/pkg/httpserver"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

// ClientIDHeader carries the caller's client id.
const ClientIDHeader = "X-Client-ID"

// Hub is the subset of *notify.Hub the API calls.
type Hub interface {
	CreateChannelWithOptions(ctx context.Context, p notify.CreateChannelParams) (*notify.Channel, error)
	ListChannels(ctx context.Context) ([]notify.Channel, error)
	GetChannel(ctx context.Context, id string) (*notify.Channel, error)
	ChannelInfo(ctx context.Context, id string) (*notify.Channel, error)
	DeleteChannel(ctx context.Context, id string) error
	Subscribe(ctx context.Context, clientID, channel string, filter *notify.SubscriptionFilter) (*notify.Subscription, error)
	Unsubscribe(ctx context.Context, clientID, channel string) (bool, error)
	ListSubscriptions(ctx context.Context, clientID string) ([]notify.Subscription, error)
	Publish(ctx context.Context, req notify.PublishRequest) (notify.PublishResult, error)
	RecentNotifications(ctx context.Context, channel string, limit int) ([]notify.Notification, error)
}

// Streams opens per-client notification streams. *notify.BroadcastDeliverer
// implements it.
type Streams interface {
	Subscribe(ctx context.Context, clientID string) broadcast.Subscriber[notify.Notification]
}

// Server serves the hub's HTTP API.
type Server struct {
	hub       Hub
	streams   Streams
	probes    []func(context.Context) error
	heartbeat time.Duration
	logger    *slog.Logger
}

type Option func(*Server)

// WithStreams enables GET /stream. Without it the route answers 404.
func WithStreams(s Streams) Option {
	return func(srv *Server) { srv.streams = s }
}

// WithReadinessProbes adds checks run by GET /readyz.
func WithReadinessProbes(probes ...func(context.Context) error) Option {
	return func(srv *Server) { srv.probes = append(srv.probes, probes...) }
}

// WithHeartbeat sets the stream keep-alive interval. Default 15s.
func WithHeartbeat(d time.Duration) Option {
	return func(srv *Server) {
		if d > 0 {
			srv.heartbeat = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) {
		if l != nil {
			srv.logger = l
		}
	}
}

func New(hub Hub, opts ...Option) *Server {
	srv := &Server{
		hub:       hub,
		heartbeat: 15 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Handle returns the router with every route mounted.
func (s *Server) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, s.accessLog)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = handler.JSONError(handler.ErrNotFound).Render(w, r)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = handler.JSONError(handler.NewHTTPError(http.StatusMethodNotAllowed, "method_not_allowed")).Render(w, r)
	})

	path := binder.Path(chi.URLParam)
	header := binder.Header()

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(s.logger, s.probes...))
	r.Get("/schema/notification", route(s, s.schema))

	r.Route("/channels", func(r chi.Router) {
		r.Get("/", route(s, s.listChannels))
		r.Post("/", route(s, s.createChannel, header, binder.JSON()))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", route(s, s.getChannel, path))
			r.Delete("/", route(s, s.deleteChannel, path))

			r.Get("/notifications", route(s, s.recentNotifications, path, binder.Query()))
			r.Post("/notifications", route(s, s.publish, path, binder.JSON()))

			r.Post("/subscriptions", route(s, s.subscribe, path, header, binder.JSON()))
			r.Delete("/subscriptions", route(s, s.unsubscribe, path, header))
		})
	})

	r.Get("/subscriptions", route(s, s.listSubscriptions, header))
	r.Get("/stream", route(s, s.stream, header))

	return r
}

func route[R any](s *Server, h handler.HandlerFunc[handler.Context, R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](s.handleError),
	)
}

// handleError renders binder and render failures through the same mapping
// as handler errors.
func (s *Server) handleError(ctx handler.Context, err error) {
	_ = s.fail(ctx, err).Render(ctx.ResponseWriter(), ctx.Request())
}
