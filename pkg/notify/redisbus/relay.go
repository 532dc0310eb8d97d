package redisbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

// Relay forwards notifications published by any process to a local
// Deliverer.
type Relay struct {
	client redis.UniversalClient
	local  notify.Deliverer
	prefix string
	logger *slog.Logger
	ready  chan struct{}
}

type RelayOption func(*Relay)

func WithRelayPrefix(prefix string) RelayOption {
	return func(r *Relay) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

func WithRelayLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRelay(client redis.UniversalClient, local notify.Deliverer, opts ...RelayOption) *Relay {
	r := &Relay{
		client: client,
		local:  local,
		prefix: DefaultPrefix,
		logger: slog.Default(),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ready is closed once the pattern subscription is confirmed.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run blocks until ctx is done or the subscription fails.
func (r *Relay) Run(ctx context.Context) error {
	ps := r.client.PSubscribe(ctx, clientPattern(r.prefix))
	defer ps.Close()

	// Receive returns the subscription confirmation.
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	close(r.ready)
	r.logger.LogAttrs(ctx, slog.LevelInfo, "redis relay subscribed",
		logger.Component("redisbus"),
		slog.String("pattern", clientPattern(r.prefix)),
	)

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.forward(ctx, msg)
		}
	}
}

func (r *Relay) forward(ctx context.Context, msg *redis.Message) {
	clientID, ok := clientFromTopic(r.prefix, msg.Channel)
	if !ok {
		return
	}
	var n notify.Notification
	if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
		r.logger.LogAttrs(ctx, slog.LevelWarn, "dropping undecodable relay message",
			logger.ClientID(clientID),
			logger.Error(err),
		)
		return
	}
	if err := r.local.Deliver(ctx, clientID, n); err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "relay delivery failed",
			logger.ClientID(clientID),
			logger.NotificationID(n.Metadata.ID),
			logger.Error(err),
		)
	}
}
