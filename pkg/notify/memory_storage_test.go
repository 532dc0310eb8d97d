package notify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/notify"
	"github.com/dmitrymomot/notifyhub/pkg/notify/storagetest"
)

func TestMemoryStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, maxHistory int) notify.Storage {
		return notify.NewMemoryStorage(maxHistory)
	})
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := notify.NewMemoryStorage(10)

	ch := storagetest.Channel("ops")
	require.NoError(t, s.SaveChannel(ctx, ch))
	ch.Metadata["team"] = "mutated"

	got, err := s.GetChannel(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, "ops", got.Metadata["team"])

	n := storagetest.Notification("ops", 1)
	require.NoError(t, s.SaveNotification(ctx, n))
	n.Context.Tags[0] = "mutated"

	recent, err := s.RecentNotifications(ctx, "ops", 1)
	require.NoError(t, err)
	recent[0].Context.Tags[1] = "also mutated"

	again, err := s.RecentNotifications(ctx, "ops", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "prod"}, again[0].Context.Tags)
}

func TestMemoryStorage_DefaultHistory(t *testing.T) {
	ctx := context.Background()
	s := notify.NewMemoryStorage(0)
	require.NoError(t, s.SaveChannel(ctx, storagetest.Channel("ops")))

	for seq := int64(1); seq <= notify.DefaultMaxHistory+1; seq++ {
		require.NoError(t, s.SaveNotification(ctx, storagetest.Notification("ops", seq)))
	}
	count, err := s.CountNotifications(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, notify.DefaultMaxHistory, count)
}

func TestMemoryStorage_RejectsSavesForDeletedChannel(t *testing.T) {
	ctx := context.Background()
	s := notify.NewMemoryStorage(10)
	require.NoError(t, s.SaveChannel(ctx, storagetest.Channel("ops")))
	require.NoError(t, s.SaveNotification(ctx, storagetest.Notification("ops", 1)))
	require.NoError(t, s.DeleteChannel(ctx, "ops"))

	err := s.SaveNotification(ctx, storagetest.Notification("ops", 2))
	assert.ErrorIs(t, err, notify.ErrStorage)
	assert.ErrorIs(t, err, notify.ErrChannelNotFound)

	err = s.SaveSubscription(ctx, notify.Subscription{ID: "sub-1", ClientID: "a", Channel: "ops"})
	assert.ErrorIs(t, err, notify.ErrChannelNotFound)

	count, err := s.CountNotifications(ctx, "ops")
	require.NoError(t, err)
	assert.Zero(t, count)
	subs, err := s.SubscriptionsByChannel(ctx, "ops")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestMemoryStorage_DuplicateSequence(t *testing.T) {
	ctx := context.Background()
	s := notify.NewMemoryStorage(10)
	require.NoError(t, s.SaveChannel(ctx, storagetest.Channel("ops")))
	require.NoError(t, s.SaveNotification(ctx, storagetest.Notification("ops", 1)))

	err := s.SaveNotification(ctx, storagetest.Notification("ops", 1))
	assert.ErrorIs(t, err, notify.ErrDuplicateSequence)
}
