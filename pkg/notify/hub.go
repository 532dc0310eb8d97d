package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

// DefaultRecentLimit is used when RecentNotifications gets a limit <= 0.
const DefaultRecentLimit = 50

// SystemCreator is recorded as the creator of channels made without a client.
const SystemCreator = "system"

// PublishRequest carries the client-supplied parts of a notification.
type PublishRequest struct {
	Channel     string      `json:"channel"`
	Sender      Sender      `json:"sender"`
	Context     Context     `json:"context"`
	Information Information `json:"information"`
	Actions     []Action    `json:"actions,omitempty"`
	Visibility  Visibility  `json:"visibility"`
	ReplyTo     string      `json:"replyTo,omitempty"`
	Version     string      `json:"version,omitempty"`
}

// Notification builds the unenriched envelope for r.
func (r PublishRequest) Notification() Notification {
	return Notification{
		SchemaVersion: SchemaVersion,
		Sender:        r.Sender,
		Context:       r.Context,
		Information:   r.Information,
		Metadata:      Metadata{ReplyTo: r.ReplyTo, Version: r.Version},
		Actions:       r.Actions,
		Visibility:    r.Visibility,
	}
}

// Hub is the operation surface transports call. It wires the registries, the
// router and storage together and keeps channel stats current.
type Hub struct {
	storage    Storage
	channels   *ChannelRegistry
	subs       *SubscriptionRegistry
	router     *Router
	maxHistory int
	logger     *slog.Logger
}

type hubOptions struct {
	logger     *slog.Logger
	maxHistory int
	routerOpts []RouterOption
	clock      func() time.Time
}

type HubOption func(*hubOptions)

func WithHubLogger(l *slog.Logger) HubOption {
	return func(o *hubOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxHistory caps RecentNotifications limits. It should match the
// storage retention.
func WithMaxHistory(n int) HubOption {
	return func(o *hubOptions) {
		if n > 0 {
			o.maxHistory = n
		}
	}
}

// WithRouterOptions passes options to the hub's Router.
func WithRouterOptions(opts ...RouterOption) HubOption {
	return func(o *hubOptions) { o.routerOpts = append(o.routerOpts, opts...) }
}

// WithClock overrides time.Now for channel and subscription timestamps.
func WithClock(now func() time.Time) HubOption {
	return func(o *hubOptions) { o.clock = now }
}

func NewHub(storage Storage, opts ...HubOption) *Hub {
	o := &hubOptions{
		logger:     slog.Default(),
		maxHistory: DefaultMaxHistory,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	channels := NewChannelRegistry(storage,
		WithChannelLogger(o.logger),
		WithChannelClock(o.clock),
	)
	subs := NewSubscriptionRegistry(storage,
		WithSubscriptionLogger(o.logger),
		WithSubscriptionClock(o.clock),
	)
	router := NewRouter(storage, subs, append([]RouterOption{WithRouterLogger(o.logger)}, o.routerOpts...)...)

	return &Hub{
		storage:    storage,
		channels:   channels,
		subs:       subs,
		router:     router,
		maxHistory: o.maxHistory,
		logger:     o.logger,
	}
}

// CreateChannel creates a channel owned by SystemCreator with default
// permissions. It returns ErrAlreadyExists if id is taken.
func (h *Hub) CreateChannel(ctx context.Context, id, name, description string) (*Channel, error) {
	return h.channels.Create(ctx, CreateChannelParams{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedBy:   SystemCreator,
	})
}

// CreateChannelWithOptions exposes every channel field a creator may set.
func (h *Hub) CreateChannelWithOptions(ctx context.Context, p CreateChannelParams) (*Channel, error) {
	if p.CreatedBy == "" {
		p.CreatedBy = SystemCreator
	}
	return h.channels.Create(ctx, p)
}

func (h *Hub) ListChannels(ctx context.Context) ([]Channel, error) {
	return h.channels.List(ctx)
}

// GetChannel returns nil, nil when the channel does not exist.
func (h *Hub) GetChannel(ctx context.Context, id string) (*Channel, error) {
	return h.channels.Get(ctx, id)
}

// ChannelInfo is GetChannel with the counts read live from storage rather
// than from the cached stats.
func (h *Hub) ChannelInfo(ctx context.Context, id string) (*Channel, error) {
	ch, err := h.channels.Get(ctx, id)
	if err != nil || ch == nil {
		return ch, err
	}
	subs, err := h.subs.SubscribersOf(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := h.storage.CountNotifications(ctx, id)
	if err != nil {
		return nil, err
	}
	ch.SubscriberCount = len(subs)
	ch.NotificationCount = count
	return ch, nil
}

// DeleteChannel removes the channel with its subscriptions and history.
// Deleting a missing channel is a no-op.
func (h *Hub) DeleteChannel(ctx context.Context, id string) error {
	return h.channels.Delete(ctx, id)
}

// Subscribe adds a new subscription for clientID. The channel must exist.
func (h *Hub) Subscribe(ctx context.Context, clientID, channel string, filter *SubscriptionFilter) (*Subscription, error) {
	if err := h.requireChannel(ctx, channel); err != nil {
		return nil, err
	}
	sub, err := h.subs.Subscribe(ctx, clientID, channel, filter)
	if err != nil {
		return nil, err
	}
	h.syncSubscriberCount(ctx, channel)
	return sub, nil
}

// Unsubscribe removes one of clientID's subscriptions to channel and reports
// whether there was one.
func (h *Hub) Unsubscribe(ctx context.Context, clientID, channel string) (bool, error) {
	removed, err := h.subs.Unsubscribe(ctx, clientID, channel)
	if err != nil || !removed {
		return removed, err
	}
	h.syncSubscriberCount(ctx, channel)
	return true, nil
}

func (h *Hub) ListSubscriptions(ctx context.Context, clientID string) ([]Subscription, error) {
	return h.subs.SubscriptionsOf(ctx, clientID)
}

// Publish validates, stores and routes a notification, then refreshes the
// channel's cached stats.
func (h *Hub) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	if err := h.requireChannel(ctx, req.Channel); err != nil {
		return PublishResult{}, err
	}

	res, err := h.router.Publish(ctx, req.Channel, req.Notification())
	if err != nil {
		return res, err
	}

	count, err := h.storage.CountNotifications(ctx, req.Channel)
	if err == nil {
		err = h.channels.RefreshStats(ctx, req.Channel, &count)
	}
	if err != nil {
		// The notification is stored and routed; stale stats are not fatal.
		h.logger.LogAttrs(ctx, slog.LevelWarn, "failed to refresh channel stats",
			logger.ChannelID(req.Channel),
			logger.Error(err),
		)
	}
	return res, nil
}

// RecentNotifications returns up to limit notifications, newest first. A
// limit <= 0 means DefaultRecentLimit; limits above the retention are capped.
func (h *Hub) RecentNotifications(ctx context.Context, channel string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	limit = min(limit, h.maxHistory)
	return h.storage.RecentNotifications(ctx, channel, limit)
}

func (h *Hub) requireChannel(ctx context.Context, id string) error {
	if id == "" {
		return ErrChannelRequired
	}
	ch, err := h.channels.Get(ctx, id)
	if err != nil {
		return err
	}
	if ch == nil {
		return ErrChannelNotFound
	}
	return nil
}

func (h *Hub) syncSubscriberCount(ctx context.Context, channel string) {
	subs, err := h.subs.SubscribersOf(ctx, channel)
	if err == nil {
		err = h.channels.SetSubscriberCount(ctx, channel, len(subs))
	}
	if err != nil {
		h.logger.LogAttrs(ctx, slog.LevelWarn, "failed to refresh subscriber count",
			logger.ChannelID(channel),
			logger.Error(err),
		)
	}
}
