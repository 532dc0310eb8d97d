package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

// SubscriptionRegistry records which clients listen on which channels.
// Duplicate subscriptions are kept as independent records.
type SubscriptionRegistry struct {
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
}

type SubscriptionRegistryOption func(*SubscriptionRegistry)

func WithSubscriptionLogger(l *slog.Logger) SubscriptionRegistryOption {
	return func(r *SubscriptionRegistry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSubscriptionClock overrides time.Now, for tests.
func WithSubscriptionClock(now func() time.Time) SubscriptionRegistryOption {
	return func(r *SubscriptionRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewSubscriptionRegistry(storage Storage, opts ...SubscriptionRegistryOption) *SubscriptionRegistry {
	r := &SubscriptionRegistry{
		storage: storage,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe always creates a new subscription, even if an identical one
// already exists. A nil filter matches everything.
func (r *SubscriptionRegistry) Subscribe(ctx context.Context, clientID, channel string, filter *SubscriptionFilter) (*Subscription, error) {
	if channel == "" {
		return nil, ErrChannelRequired
	}

	sub := Subscription{
		ID:           NewSubscriptionID(),
		ClientID:     clientID,
		Channel:      channel,
		SubscribedAt: r.now().UTC(),
	}
	if filter != nil {
		sub.Filter = filter.Clone()
	}
	if err := r.storage.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	r.logger.LogAttrs(ctx, slog.LevelInfo, "client subscribed",
		logger.SubscriptionID(sub.ID),
		logger.ClientID(clientID),
		logger.ChannelID(channel),
	)
	return &sub, nil
}

// Unsubscribe removes the client's oldest subscription to channel and reports
// whether one existed. Further duplicates stay in place.
func (r *SubscriptionRegistry) Unsubscribe(ctx context.Context, clientID, channel string) (bool, error) {
	subs, err := r.storage.SubscriptionsByClient(ctx, clientID)
	if err != nil {
		return false, err
	}
	for _, sub := range subs {
		if sub.Channel != channel {
			continue
		}
		if err := r.storage.DeleteSubscription(ctx, sub.ID); err != nil {
			return false, err
		}
		r.logger.LogAttrs(ctx, slog.LevelInfo, "client unsubscribed",
			logger.SubscriptionID(sub.ID),
			logger.ClientID(clientID),
			logger.ChannelID(channel),
		)
		return true, nil
	}
	return false, nil
}

func (r *SubscriptionRegistry) SubscribersOf(ctx context.Context, channel string) ([]Subscription, error) {
	return r.storage.SubscriptionsByChannel(ctx, channel)
}

func (r *SubscriptionRegistry) SubscriptionsOf(ctx context.Context, clientID string) ([]Subscription, error) {
	return r.storage.SubscriptionsByClient(ctx, clientID)
}
