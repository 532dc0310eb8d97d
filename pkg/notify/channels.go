package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

// CreateChannelParams describes a new channel. Zero Permissions and nil
// Metadata get defaults.
type CreateChannelParams struct {
	ID          string
	Name        string
	Description string
	CreatedBy   string
	Permissions *ChannelPermissions
	Metadata    map[string]any
}

// ChannelRegistry owns channel lifecycle and cached stats.
type ChannelRegistry struct {
	storage Storage
	logger  *slog.Logger
	now     func() time.Time

	// statsMu serialises read-modify-write of cached stats with Delete, so a
	// late refresh cannot save a deleted channel back.
	statsMu sync.Mutex
}

// ChannelRegistryOption configures a ChannelRegistry.
type ChannelRegistryOption func(*ChannelRegistry)

func WithChannelLogger(l *slog.Logger) ChannelRegistryOption {
	return func(r *ChannelRegistry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithChannelClock overrides time.Now, for tests.
func WithChannelClock(now func() time.Time) ChannelRegistryOption {
	return func(r *ChannelRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewChannelRegistry(storage Storage, opts ...ChannelRegistryOption) *ChannelRegistry {
	r := &ChannelRegistry{
		storage: storage,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create stores a new channel with zero counts. It returns ErrAlreadyExists
// if the ID is taken.
func (r *ChannelRegistry) Create(ctx context.Context, p CreateChannelParams) (*Channel, error) {
	if p.ID == "" {
		return nil, ErrChannelRequired
	}

	existing, err := r.storage.GetChannel(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyExists
	}

	perms := DefaultPermissions()
	if p.Permissions != nil {
		perms = *p.Permissions
	}
	meta := p.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	name := p.Name
	if name == "" {
		name = p.ID
	}

	ch := Channel{
		ID:          p.ID,
		Name:        name,
		Description: p.Description,
		CreatedAt:   r.now().UTC(),
		CreatedBy:   p.CreatedBy,
		Permissions: perms,
		Metadata:    meta,
	}
	if err := r.storage.SaveChannel(ctx, ch); err != nil {
		return nil, err
	}

	r.logger.LogAttrs(ctx, slog.LevelInfo, "channel created",
		logger.ChannelID(ch.ID),
		slog.String("created_by", ch.CreatedBy),
	)
	return &ch, nil
}

// Get returns nil, nil when the channel does not exist.
func (r *ChannelRegistry) Get(ctx context.Context, id string) (*Channel, error) {
	return r.storage.GetChannel(ctx, id)
}

// Delete removes the channel, its subscriptions and its history.
func (r *ChannelRegistry) Delete(ctx context.Context, id string) error {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	if err := r.storage.DeleteChannel(ctx, id); err != nil {
		return err
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "channel deleted", logger.ChannelID(id))
	return nil
}

// List returns all channels ordered by ID.
func (r *ChannelRegistry) List(ctx context.Context) ([]Channel, error) {
	return r.storage.ListChannels(ctx)
}

// RefreshStats overwrites the cached notification count and stamps
// LastNotificationAt. A nil count or a missing channel makes it a no-op.
func (r *ChannelRegistry) RefreshStats(ctx context.Context, id string, notificationCount *int) error {
	if notificationCount == nil {
		return nil
	}
	return r.update(ctx, id, func(ch *Channel) {
		now := r.now().UTC()
		ch.NotificationCount = *notificationCount
		ch.LastNotificationAt = &now
	})
}

// SetSubscriberCount overwrites the cached subscriber count.
func (r *ChannelRegistry) SetSubscriberCount(ctx context.Context, id string, count int) error {
	return r.update(ctx, id, func(ch *Channel) { ch.SubscriberCount = count })
}

func (r *ChannelRegistry) update(ctx context.Context, id string, fn func(*Channel)) error {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	ch, err := r.storage.GetChannel(ctx, id)
	if err != nil || ch == nil {
		return err
	}
	fn(ch)
	return r.storage.SaveChannel(ctx, *ch)
}
