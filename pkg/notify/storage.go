package notify

import "context"

// DefaultMaxHistory is how many notifications each channel retains unless
// configured otherwise.
const DefaultMaxHistory = 1000

// Storage persists channels, subscriptions and notification history.
//
// Implementations must make SaveNotification and its trim to the configured
// history size atomic with respect to readers of the same channel, and wrap
// I/O failures with StorageError.
type Storage interface {
	// SaveChannel inserts or replaces the channel with the same ID.
	SaveChannel(ctx context.Context, ch Channel) error
	// GetChannel returns nil, nil when the channel does not exist.
	GetChannel(ctx context.Context, id string) (*Channel, error)
	// DeleteChannel removes the channel with its subscriptions and history.
	// Deleting a missing channel is not an error.
	DeleteChannel(ctx context.Context, id string) error
	// ListChannels returns all channels ordered by ID.
	ListChannels(ctx context.Context) ([]Channel, error)

	// SaveSubscription appends a subscription; IDs are always fresh.
	SaveSubscription(ctx context.Context, sub Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
	// SubscriptionsByChannel and SubscriptionsByClient return oldest first.
	SubscriptionsByChannel(ctx context.Context, channel string) ([]Subscription, error)
	SubscriptionsByClient(ctx context.Context, clientID string) ([]Subscription, error)

	// SaveNotification appends n to its channel's history and evicts the
	// oldest entries beyond the retention limit.
	SaveNotification(ctx context.Context, n Notification) error
	// RecentNotifications returns up to limit entries, newest first.
	RecentNotifications(ctx context.Context, channel string, limit int) ([]Notification, error)
	CountNotifications(ctx context.Context, channel string) (int, error)
}
