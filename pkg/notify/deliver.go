package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/notifyhub/pkg/broadcast"
	"github.com/dmitrymomot/notifyhub/pkg/cache"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

// Deliverer hands a routed notification to the transport serving clientID.
// Implementations should honour ctx cancellation; the router bounds each call
// with a timeout.
type Deliverer interface {
	Deliver(ctx context.Context, clientID string, n Notification) error
}

// DelivererFunc adapts a plain function to Deliverer.
type DelivererFunc func(ctx context.Context, clientID string, n Notification) error

func (f DelivererFunc) Deliver(ctx context.Context, clientID string, n Notification) error {
	return f(ctx, clientID, n)
}

// NoOpDeliverer accepts every notification and drops it.
type NoOpDeliverer struct{}

func (NoOpDeliverer) Deliver(context.Context, string, Notification) error { return nil }

// MultiDeliverer calls every deliverer in order and joins their errors.
type MultiDeliverer struct {
	deliverers []Deliverer
}

func NewMultiDeliverer(deliverers ...Deliverer) *MultiDeliverer {
	return &MultiDeliverer{deliverers: deliverers}
}

func (m *MultiDeliverer) Deliver(ctx context.Context, clientID string, n Notification) error {
	var errs []error
	for _, d := range m.deliverers {
		if err := d.Deliver(ctx, clientID, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BroadcastDeliverer fans notifications out to in-process streams, one
// broadcaster per client. Broadcasters live in an LRU cache; the least
// recently used client's streams are closed once maxClients is exceeded.
type BroadcastDeliverer struct {
	clients    *cache.LRU[string, *broadcast.MemoryBroadcaster[Notification]]
	bufferSize int
	maxClients int
	logger     *slog.Logger
}

type BroadcastDelivererOption func(*BroadcastDeliverer)

func WithBroadcastLogger(l *slog.Logger) BroadcastDelivererOption {
	return func(b *BroadcastDeliverer) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMaxClients bounds how many clients keep a broadcaster. Default 10000.
func WithMaxClients(limit int) BroadcastDelivererOption {
	return func(b *BroadcastDeliverer) {
		if limit > 0 {
			b.maxClients = limit
		}
	}
}

// NewBroadcastDeliverer creates a deliverer whose streams buffer bufferSize
// notifications each; a stream that falls further behind is disconnected.
func NewBroadcastDeliverer(bufferSize int, opts ...BroadcastDelivererOption) *BroadcastDeliverer {
	b := &BroadcastDeliverer{
		bufferSize: bufferSize,
		maxClients: 10000,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.clients = cache.NewLRU[string, *broadcast.MemoryBroadcaster[Notification]](b.maxClients)
	b.clients.OnEvict(func(clientID string, bc *broadcast.MemoryBroadcaster[Notification]) {
		if err := bc.Close(); err != nil {
			b.logger.LogAttrs(context.Background(), slog.LevelError, "failed to close client stream",
				logger.ClientID(clientID),
				logger.Error(err),
			)
		}
	})
	return b
}

// Deliver pushes n to every open stream of clientID. A client with no open
// stream is not an error: the notification stays in channel history.
func (d *BroadcastDeliverer) Deliver(ctx context.Context, clientID string, n Notification) error {
	bc, ok := d.clients.Get(clientID)
	if !ok {
		d.logger.LogAttrs(ctx, slog.LevelDebug, "no open stream for client",
			logger.ClientID(clientID),
			logger.NotificationID(n.Metadata.ID),
		)
		return nil
	}
	if accepted := bc.Broadcast(n); accepted == 0 && bc.Len() == 0 {
		d.logger.LogAttrs(ctx, slog.LevelDebug, "client streams closed before delivery",
			logger.ClientID(clientID),
			logger.NotificationID(n.Metadata.ID),
		)
	}
	return nil
}

// Subscribe opens a stream for clientID that lives until ctx is done.
func (d *BroadcastDeliverer) Subscribe(ctx context.Context, clientID string) broadcast.Subscriber[Notification] {
	bc := d.clients.GetOrCreate(clientID, func() *broadcast.MemoryBroadcaster[Notification] {
		return broadcast.NewMemoryBroadcaster[Notification](d.bufferSize)
	})
	return bc.Subscribe(ctx)
}

// Clients returns the IDs that currently hold a broadcaster.
func (d *BroadcastDeliverer) Clients() []string {
	return d.clients.Keys()
}

// Close shuts every client stream.
func (d *BroadcastDeliverer) Close() error {
	d.clients.Clear()
	return nil
}
