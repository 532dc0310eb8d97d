package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/async"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

// DefaultDeliveryTimeout bounds one publish's deliveries.
const DefaultDeliveryTimeout = 5 * time.Second

// Router runs the publish pipeline: validate, sequence, enrich, persist,
// match each subscriber and hand matches to the Deliverer.
type Router struct {
	storage   Storage
	subs      *SubscriptionRegistry
	validator *Validator
	sequencer Sequencer
	deliverer Deliverer
	timeout   time.Duration
	logger    *slog.Logger
}

type RouterOption func(*Router)

func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSequencer replaces the in-process MemorySequencer. By default a storage
// implementing SequenceSource seeds it.
func WithSequencer(s Sequencer) RouterOption {
	return func(r *Router) {
		if s != nil {
			r.sequencer = s
		}
	}
}

// WithDeliverer sets where matched notifications go. Without one, publishes
// are persisted and matched subscribers are reported as Undelivered.
func WithDeliverer(d Deliverer) RouterOption {
	return func(r *Router) { r.deliverer = d }
}

// WithDeliveryTimeout bounds how long a publish waits for its deliveries.
func WithDeliveryTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithValidator(v *Validator) RouterOption {
	return func(r *Router) {
		if v != nil {
			r.validator = v
		}
	}
}

func NewRouter(storage Storage, subs *SubscriptionRegistry, opts ...RouterOption) *Router {
	r := &Router{
		storage:   storage,
		subs:      subs,
		validator: NewValidator(),
		sequencer: defaultSequencer(storage),
		timeout:   DefaultDeliveryTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish stores n on channel and routes it to the channel's subscribers.
//
// Validation happens before a sequence number is taken, so rejected
// notifications never leave a gap. A storage failure after sequencing does:
// that number is never reused. Once stored, a notification is never
// rolled back; delivery failures are logged and counted in Failed but never
// returned as errors.
func (r *Router) Publish(ctx context.Context, channel string, n Notification) (PublishResult, error) {
	if channel == "" {
		return PublishResult{}, ErrChannelRequired
	}

	n.ApplyDefaults()
	if err := r.validator.Validate(n); err != nil {
		return PublishResult{}, err
	}

	seq, err := r.sequencer.Next(ctx, channel)
	if err != nil {
		return PublishResult{}, StorageError("assign sequence", err)
	}

	n = r.validator.Enrich(n, channel, seq)
	if err := CheckEnriched(n); err != nil {
		return PublishResult{}, err
	}
	if err := r.storage.SaveNotification(ctx, n); err != nil {
		return PublishResult{}, err
	}

	res := PublishResult{ID: n.Metadata.ID, Sequence: seq}

	subs, err := r.subs.SubscribersOf(ctx, channel)
	if err != nil {
		return res, fmt.Errorf("list subscribers: %w", err)
	}

	var matched []Subscription
	for _, sub := range subs {
		if Matches(n, sub.Filter) {
			matched = append(matched, sub)
		} else {
			res.Filtered++
		}
	}

	if len(matched) > 0 {
		if r.deliverer == nil {
			res.Undelivered = len(matched)
			r.logger.LogAttrs(ctx, slog.LevelWarn, "no deliverer configured, notification stored only",
				logger.ChannelID(channel),
				logger.NotificationID(n.Metadata.ID),
				logger.Count("matched", len(matched)),
			)
		} else {
			res.Delivered = len(matched)
			res.Failed = r.deliver(ctx, n, matched)
		}
	}

	r.logger.LogAttrs(ctx, slog.LevelInfo, "notification routed",
		logger.ChannelID(channel),
		logger.NotificationID(n.Metadata.ID),
		logger.Sequence(seq),
		logger.Count("delivered", res.Delivered),
		logger.Count("filtered", res.Filtered),
		logger.Count("failed", res.Failed),
	)
	return res, nil
}

// deliver hands n to every matched subscriber concurrently and waits at most
// r.timeout overall. It returns how many handoffs failed or timed out.
func (r *Router) deliver(ctx context.Context, n Notification, matched []Subscription) int {
	// The notification is committed; a caller going away must not cut
	// deliveries short.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	deadline := time.Now().Add(r.timeout)

	futures := make([]*async.Future[struct{}], len(matched))
	for i, sub := range matched {
		clientID := sub.ClientID
		futures[i] = async.Go(dctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.deliverer.Deliver(ctx, clientID, n.Clone())
		})
	}

	failed := 0
	for i, f := range futures {
		if _, err := f.AwaitWithTimeout(max(time.Until(deadline), 0)); err != nil {
			failed++
			r.logger.LogAttrs(ctx, slog.LevelError, "delivery failed",
				logger.ClientID(matched[i].ClientID),
				logger.SubscriptionID(matched[i].ID),
				logger.NotificationID(n.Metadata.ID),
				logger.Error(err),
			)
		}
	}
	return failed
}
