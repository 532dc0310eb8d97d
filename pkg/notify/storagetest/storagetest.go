// Package storagetest is a conformance suite for notify.Storage backends.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

// Factory returns an empty storage retaining maxHistory notifications per
// channel. It should register its own cleanup on t.
type Factory func(t *testing.T, maxHistory int) notify.Storage

// Run exercises every Storage method against storages built by newStorage.
func Run(t *testing.T, newStorage Factory) {
	t.Run("channels", func(t *testing.T) { testChannels(t, newStorage(t, 10)) })
	t.Run("subscriptions", func(t *testing.T) { testSubscriptions(t, newStorage(t, 10)) })
	t.Run("history retention", func(t *testing.T) { testRetention(t, newStorage(t, 3)) })
	t.Run("history round trip", func(t *testing.T) { testRoundTrip(t, newStorage(t, 10)) })
	t.Run("out of order saves", func(t *testing.T) { testOutOfOrder(t, newStorage(t, 3)) })
	t.Run("cascade delete", func(t *testing.T) { testCascade(t, newStorage(t, 10)) })
	t.Run("concurrent saves", func(t *testing.T) { testConcurrentSaves(t, newStorage(t, 5)) })
	t.Run("duplicate sequence is rejected", func(t *testing.T) { testDuplicateSequence(t, newStorage(t, 10)) })
	t.Run("saves require a channel", func(t *testing.T) { testRequiresChannel(t, newStorage(t, 10)) })
}

// Channel returns a channel fixture with every field set.
func Channel(id string) notify.Channel {
	return notify.Channel{
		ID:          id,
		Name:        "Channel " + id,
		Description: "fixture",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		CreatedBy:   "system",
		Permissions: notify.DefaultPermissions(),
		Metadata:    map[string]any{"team": "ops"},
	}
}

// Notification returns a fully populated, enriched notification fixture.
func Notification(channel string, seq int64) notify.Notification {
	validity := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return notify.Notification{
		SchemaVersion: notify.SchemaVersion,
		Sender: notify.Sender{
			ID: "alice", Name: "Alice", Role: notify.RoleDev,
			AITool: notify.AIToolClaude, Email: "alice@example.com",
		},
		Context: notify.Context{
			Theme:                 notify.ThemeStateUpdate,
			Priority:              notify.PriorityHigh,
			Validity:              &validity,
			Tags:                  []string{"db", "prod"},
			RelatedConversationID: "conv-1",
			ProjectID:             "proj-1",
		},
		Information: notify.Information{
			Title:  fmt.Sprintf("update %d", seq),
			Body:   "body",
			Format: notify.FormatMarkdown,
			Attachments: []notify.Attachment{
				{Type: "link", URL: "https://example.com/runbook", Name: "runbook"},
			},
		},
		Metadata: notify.Metadata{
			ID:        fmt.Sprintf("notif-%012d", seq),
			Timestamp: time.Date(2026, 1, 2, 3, 4, 5, int(seq)*1000, time.UTC),
			Channel:   channel,
			Sequence:  seq,
			ReplyTo:   "notif-parent",
		},
		Actions: []notify.Action{
			{Type: notify.ActionAcknowledge, Label: "Ack", Data: map[string]any{"k": "v"}},
		},
		Visibility: notify.Visibility{
			Teams:        []notify.Team{notify.TeamDev},
			Private:      true,
			AllowedUsers: []string{"bob"},
		},
	}
}

func sequences(ns []notify.Notification) []int64 {
	out := make([]int64, len(ns))
	for i, n := range ns {
		out[i] = n.Metadata.Sequence
	}
	return out
}

func testChannels(t *testing.T, s notify.Storage) {
	ctx := context.Background()

	got, err := s.GetChannel(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SaveChannel(ctx, Channel("b")))
	require.NoError(t, s.SaveChannel(ctx, Channel("a")))

	got, err = s.GetChannel(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Channel a", got.Name)
	assert.Equal(t, notify.DefaultPermissions(), got.Permissions)
	assert.Equal(t, "ops", got.Metadata["team"])
	assert.True(t, got.CreatedAt.Equal(Channel("a").CreatedAt))
	assert.Nil(t, got.LastNotificationAt)

	updated := *got
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	updated.NotificationCount = 7
	updated.SubscriberCount = 2
	updated.LastNotificationAt = &now
	require.NoError(t, s.SaveChannel(ctx, updated))

	got, err = s.GetChannel(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 7, got.NotificationCount)
	assert.Equal(t, 2, got.SubscriberCount)
	require.NotNil(t, got.LastNotificationAt)
	assert.True(t, got.LastNotificationAt.Equal(now))

	list, err := s.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	require.NoError(t, s.DeleteChannel(ctx, "a"))
	require.NoError(t, s.DeleteChannel(ctx, "a"), "deleting a missing channel is a no-op")

	list, err = s.ListChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testSubscriptions(t *testing.T, s notify.Storage) {
	ctx := context.Background()
	require.NoError(t, s.SaveChannel(ctx, Channel("ops")))
	require.NoError(t, s.SaveChannel(ctx, Channel("dev")))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	subs := []notify.Subscription{
		{ID: "sub-1", ClientID: "a", Channel: "ops", SubscribedAt: base,
			Filter: notify.SubscriptionFilter{Priorities: []notify.Priority{notify.PriorityHigh}, Tags: []string{"db"}}},
		{ID: "sub-2", ClientID: "b", Channel: "ops", SubscribedAt: base.Add(time.Second)},
		{ID: "sub-3", ClientID: "a", Channel: "dev", SubscribedAt: base.Add(2 * time.Second)},
		{ID: "sub-4", ClientID: "a", Channel: "ops", SubscribedAt: base.Add(3 * time.Second)},
	}
	for _, sub := range subs {
		require.NoError(t, s.SaveSubscription(ctx, sub))
	}

	byChannel, err := s.SubscriptionsByChannel(ctx, "ops")
	require.NoError(t, err)
	require.Len(t, byChannel, 3)
	assert.Equal(t, "sub-1", byChannel[0].ID)
	assert.Equal(t, "sub-2", byChannel[1].ID)
	assert.Equal(t, "sub-4", byChannel[2].ID)
	assert.Equal(t, []notify.Priority{notify.PriorityHigh}, byChannel[0].Filter.Priorities)
	assert.Equal(t, []string{"db"}, byChannel[0].Filter.Tags)
	assert.Empty(t, byChannel[1].Filter.Tags)

	byClient, err := s.SubscriptionsByClient(ctx, "a")
	require.NoError(t, err)
	require.Len(t, byClient, 3)
	assert.Equal(t, []string{"sub-1", "sub-3", "sub-4"}, []string{byClient[0].ID, byClient[1].ID, byClient[2].ID})

	require.NoError(t, s.DeleteSubscription(ctx, "sub-1"))
	require.NoError(t, s.DeleteSubscription(ctx, "sub-1"))

	byClient, err = s.SubscriptionsByClient(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, byClient, 2)

	none, err := s.SubscriptionsByClient(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testRetention(t *testing.T, s notify.Storage) {
	ctx := context.Background()
	require.NoError(t, s.SaveChannel(ctx, Channel("ops")))

	// max history 3, k = 2
	for seq := int64(1); seq <= 5; seq++ {
		require.NoError(t, s.SaveNotification(ctx, Notification("ops", seq)))
	}

	count, err := s.CountNotifications(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	recent, err := s.RecentNotifications(ctx, "ops", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4, 3}, sequences(recent))

	recent, err = s.RecentNotifications(ctx, "ops", 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4}, sequences(recent))

	empty, err := s.RecentNotifications(ctx, "unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testRoundTrip(t *testing.T, s notify.Storage) {
	ctx := context.Background()
	require.NoError(t, s.SaveChannel(ctx, Channel("ops")))

	want := Notification("ops", 1)
	require.NoError(t, s.SaveNotification(ctx, want))

	recent, err := s.RecentNotifications(ctx, "ops", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	got := recent[0]

	assert.True(t, want.Metadata.Timestamp.Equal(got.Metadata.Timestamp))
	assert.True(t, want.Context.Validity.Equal(*got.Context.Validity))
	got.Metadata.Timestamp = want.Metadata.Timestamp
	got.Context.Validity = want.Context.Validity
	assert.Equal(t, want, got)
}

func testOutOfOrder(t *testing.T, s notify.Storage) {
	ctx := context.Background()
	require.NoError(t, s.SaveChannel(ctx, Channel("ops")))

	for _, seq := range []int64{2, 1, 4, 3} {
		require.NoError(t, s.SaveNotification(ctx, Notification("ops", seq)))
	}

	recent, err := s.RecentNotifications(ctx, "ops", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 3, 2}, sequences(recent))
}

func testCascade(t *testing.T, s notify.Storage) {
	ctx := context.Background()
	require.NoError(t, s.SaveChannel(ctx, Channel("ops")))
	require.NoError(t, s.SaveChannel(ctx, Channel("dev")))

	for i, ch := range []string{"ops", "dev"} {
		require.NoError(t, s.SaveSubscription(ctx, notify.Subscription{
			ID: fmt.Sprintf("sub-%d", i), ClientID: "a", Channel: ch, SubscribedAt: time.Now().UTC(),
		}))
		require.NoError(t, s.SaveNotification(ctx, Notification(ch, 1)))
	}

	require.NoError(t, s.DeleteChannel(ctx, "ops"))

	subs, err := s.SubscriptionsByChannel(ctx, "ops")
	require.NoError(t, err)
	assert.Empty(t, subs)
	recent, err := s.RecentNotifications(ctx, "ops", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)

	subs, err = s.SubscriptionsByClient(ctx, "a")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "dev", subs[0].Channel)

	count, err := s.CountNotifications(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testConcurrentSaves(t *testing.T, s notify.Storage) {
	ctx := context.Background()
	require.NoError(t, s.SaveChannel(ctx, Channel("ops")))

	const total = 40
	var wg sync.WaitGroup
	errs := make(chan error, total)
	for seq := int64(1); seq <= total; seq++ {
		wg.Add(1)
		go func(seq int64) {
			defer wg.Done()
			if err := s.SaveNotification(ctx, Notification("ops", seq)); err != nil {
				errs <- err
			}
		}(seq)
	}

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if recent, err := s.RecentNotifications(ctx, "ops", total); err == nil {
				assert.LessOrEqual(t, len(recent), 5+1, "reader saw history beyond the retention limit")
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-readerDone
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	count, err := s.CountNotifications(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func testDuplicateSequence(t *testing.T, s notify.Storage) {
	ctx := context.Background()
	require.NoError(t, s.SaveChannel(ctx, Channel("ops")))

	first := Notification("ops", 1)
	require.NoError(t, s.SaveNotification(ctx, first))

	second := Notification("ops", 1)
	second.Metadata.ID = "notif-other"
	second.Information.Title = "replacement"
	assert.ErrorIs(t, s.SaveNotification(ctx, second), notify.ErrStorage)

	recent, err := s.RecentNotifications(ctx, "ops", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, first.Metadata.ID, recent[0].Metadata.ID)
	assert.Equal(t, first.Information.Title, recent[0].Information.Title)

	count, err := s.CountNotifications(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testRequiresChannel(t *testing.T, s notify.Storage) {
	ctx := context.Background()

	err := s.SaveNotification(ctx, Notification("missing", 1))
	assert.ErrorIs(t, err, notify.ErrStorage)

	err = s.SaveSubscription(ctx, notify.Subscription{
		ID: "sub-1", ClientID: "a", Channel: "missing", SubscribedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, notify.ErrStorage)

	count, err := s.CountNotifications(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, count)
	subs, err := s.SubscriptionsByClient(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, subs)
}
