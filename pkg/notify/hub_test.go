package notify_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

func newHub(t *testing.T, opts ...notify.HubOption) *notify.Hub {
	t.Helper()
	opts = append([]notify.HubOption{notify.WithHubLogger(logger.Discard())}, opts...)
	hub := notify.NewHub(notify.NewMemoryStorage(notify.DefaultMaxHistory), opts...)
	_, err := hub.CreateChannel(context.Background(), "ops", "Operations", "on-call alerts")
	require.NoError(t, err)
	return hub
}

func TestHub_FilteredFanOut(t *testing.T) {
	ctx := context.Background()
	d := &MockDeliverer{}
	d.On("Deliver", mock.Anything, "client-b", mock.Anything).Return(nil).Twice()
	d.On("Deliver", mock.Anything, "client-a", mock.Anything).Return(nil).Once()

	hub := newHub(t, notify.WithRouterOptions(notify.WithDeliverer(d)))

	_, err := hub.Subscribe(ctx, "client-a", "ops", &notify.SubscriptionFilter{
		Priorities: []notify.Priority{notify.PriorityHigh, notify.PriorityCritical},
	})
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, "client-b", "ops", nil)
	require.NoError(t, err)

	res, err := hub.Publish(ctx, publishRequest("ops", notify.PriorityMedium))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Filtered)
	assert.Equal(t, int64(1), res.Sequence)

	res, err = hub.Publish(ctx, publishRequest("ops", notify.PriorityCritical))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered)
	assert.Zero(t, res.Filtered)
	assert.Equal(t, int64(2), res.Sequence)

	d.AssertExpectations(t)

	recent, err := hub.RecentNotifications(ctx, "ops", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, notify.PriorityCritical, recent[0].Context.Priority)
	assert.Equal(t, notify.PriorityMedium, recent[1].Context.Priority)

	ch, err := hub.GetChannel(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, 2, ch.NotificationCount)
	assert.Equal(t, 2, ch.SubscriberCount)
	assert.NotNil(t, ch.LastNotificationAt)
}

func TestHub_DuplicateSubscriptions(t *testing.T) {
	ctx := context.Background()
	d := &MockDeliverer{}
	d.On("Deliver", mock.Anything, "client-a", mock.Anything).Return(nil)

	hub := newHub(t, notify.WithRouterOptions(notify.WithDeliverer(d)))

	filter := &notify.SubscriptionFilter{Tags: []string{"db"}}
	first, err := hub.Subscribe(ctx, "client-a", "ops", filter)
	require.NoError(t, err)
	second, err := hub.Subscribe(ctx, "client-a", "ops", filter)
	require.NoError(t, err)

	res, err := hub.Publish(ctx, publishRequest("ops", notify.PriorityLow, "db"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered, "each subscription receives its own copy")

	removed, err := hub.Unsubscribe(ctx, "client-a", "ops")
	require.NoError(t, err)
	assert.True(t, removed)

	subs, err := hub.ListSubscriptions(ctx, "client-a")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, second.ID, subs[0].ID)
	assert.NotEqual(t, first.ID, subs[0].ID)

	res, err = hub.Publish(ctx, publishRequest("ops", notify.PriorityLow, "db"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)

	ch, err := hub.GetChannel(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, 1, ch.SubscriberCount)

	removed, err = hub.Unsubscribe(ctx, "client-a", "dev")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestHub_StreamDelivery(t *testing.T) {
	ctx := context.Background()
	streams := notify.NewBroadcastDeliverer(8, notify.WithBroadcastLogger(logger.Discard()))
	t.Cleanup(func() { _ = streams.Close() })

	hub := newHub(t, notify.WithRouterOptions(notify.WithDeliverer(streams)))
	_, err := hub.Subscribe(ctx, "client-a", "ops", nil)
	require.NoError(t, err)

	stream := streams.Subscribe(ctx, "client-a")

	req := publishRequest("ops", notify.PriorityHigh, "db")
	req.ReplyTo = "notif-000000000001"
	res, err := hub.Publish(ctx, req)
	require.NoError(t, err)

	got, ok := receive(t, stream.Receive())
	require.True(t, ok)
	assert.Equal(t, res.ID, got.Metadata.ID)
	assert.Equal(t, "notif-000000000001", got.Metadata.ReplyTo)
	assert.Equal(t, []string{"db"}, got.Context.Tags)
}

func TestHub_RecentNotificationsLimit(t *testing.T) {
	ctx := context.Background()
	hub := notify.NewHub(notify.NewMemoryStorage(60),
		notify.WithHubLogger(logger.Discard()),
		notify.WithMaxHistory(60),
	)
	_, err := hub.CreateChannel(ctx, "ops", "", "")
	require.NoError(t, err)

	for range 70 {
		_, err := hub.Publish(ctx, publishRequest("ops", notify.PriorityLow))
		require.NoError(t, err)
	}

	recent, err := hub.RecentNotifications(ctx, "ops", 0)
	require.NoError(t, err)
	assert.Len(t, recent, notify.DefaultRecentLimit)
	assert.Equal(t, int64(70), recent[0].Metadata.Sequence)

	recent, err = hub.RecentNotifications(ctx, "ops", 1000)
	require.NoError(t, err)
	require.Len(t, recent, 60)
	assert.Equal(t, int64(11), recent[59].Metadata.Sequence)

	info, err := hub.ChannelInfo(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, 60, info.NotificationCount)
}

func TestHub_ChannelLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	hub := newHub(t, notify.WithClock(func() time.Time { return now }))

	ch, err := hub.GetChannel(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, notify.SystemCreator, ch.CreatedBy)
	assert.Equal(t, now, ch.CreatedAt)
	assert.Equal(t, "on-call alerts", ch.Description)

	_, err = hub.CreateChannel(ctx, "ops", "Again", "")
	assert.ErrorIs(t, err, notify.ErrAlreadyExists)

	custom, err := hub.CreateChannelWithOptions(ctx, notify.CreateChannelParams{
		ID:       "dev",
		Metadata: map[string]any{"owner": "platform"},
	})
	require.NoError(t, err)
	assert.Equal(t, notify.SystemCreator, custom.CreatedBy)
	assert.Equal(t, "platform", custom.Metadata["owner"])

	list, err := hub.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "dev", list[0].ID)
	assert.Equal(t, "ops", list[1].ID)

	_, err = hub.Subscribe(ctx, "client-a", "ops", nil)
	require.NoError(t, err)
	_, err = hub.Publish(ctx, publishRequest("ops", notify.PriorityHigh))
	require.NoError(t, err)

	info, err := hub.ChannelInfo(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, 1, info.SubscriberCount)
	assert.Equal(t, 1, info.NotificationCount)
	require.NotNil(t, info.LastNotificationAt)
	assert.Equal(t, now, *info.LastNotificationAt)

	require.NoError(t, hub.DeleteChannel(ctx, "ops"))

	ch, err = hub.GetChannel(ctx, "ops")
	require.NoError(t, err)
	assert.Nil(t, ch)

	info, err = hub.ChannelInfo(ctx, "ops")
	require.NoError(t, err)
	assert.Nil(t, info)

	subs, err := hub.ListSubscriptions(ctx, "client-a")
	require.NoError(t, err)
	assert.Empty(t, subs)

	recent, err := hub.RecentNotifications(ctx, "ops", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestHub_UnknownChannel(t *testing.T) {
	ctx := context.Background()
	hub := newHub(t)

	_, err := hub.Publish(ctx, publishRequest("missing", notify.PriorityHigh))
	assert.ErrorIs(t, err, notify.ErrChannelNotFound)

	_, err = hub.Publish(ctx, publishRequest("", notify.PriorityHigh))
	assert.ErrorIs(t, err, notify.ErrChannelRequired)

	_, err = hub.Subscribe(ctx, "client-a", "missing", nil)
	assert.ErrorIs(t, err, notify.ErrChannelNotFound)

	_, err = hub.CreateChannel(ctx, "", "", "")
	assert.ErrorIs(t, err, notify.ErrChannelRequired)
}

func TestHub_DeleteDuringPublish(t *testing.T) {
	ctx := context.Background()
	hub := newHub(t)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := hub.Publish(ctx, publishRequest("ops", notify.PriorityHigh))
			if err != nil {
				assert.ErrorIs(t, err, notify.ErrChannelNotFound)
			}
		}()
	}
	require.NoError(t, hub.DeleteChannel(ctx, "ops"))
	wg.Wait()

	ch, err := hub.GetChannel(ctx, "ops")
	require.NoError(t, err)
	assert.Nil(t, ch, "a late stats refresh must not bring the channel back")

	recent, err := hub.RecentNotifications(ctx, "ops", 10)
	require.NoError(t, err)
	assert.Empty(t, recent, "no history may outlive its channel")
}

func TestHub_PublishInvalid(t *testing.T) {
	ctx := context.Background()
	hub := newHub(t)

	req := publishRequest("ops", notify.PriorityHigh)
	req.Sender.Role = "intern"
	_, err := hub.Publish(ctx, req)

	var verr *notify.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"sender.role"}, verr.Fields())

	ch, err := hub.GetChannel(ctx, "ops")
	require.NoError(t, err)
	assert.Zero(t, ch.NotificationCount)
}
