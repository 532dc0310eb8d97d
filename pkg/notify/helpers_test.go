package notify_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

func newNotification(priority notify.Priority, tags ...string) notify.Notification {
	if tags == nil {
		tags = []string{}
	}
	return notify.Notification{
		SchemaVersion: notify.SchemaVersion,
		Sender:        notify.Sender{ID: "alice", Name: "Alice", Role: notify.RoleDev},
		Context: notify.Context{
			Theme:    notify.ThemeAlert,
			Priority: priority,
			Tags:     tags,
		},
		Information: notify.Information{
			Title:       "Disk almost full",
			Body:        "db-1 is at 91%",
			Format:      notify.FormatText,
			Attachments: []notify.Attachment{},
		},
		Actions:    []notify.Action{},
		Visibility: notify.Visibility{Teams: []notify.Team{notify.TeamAll}, AllowedUsers: []string{}},
	}
}

func publishRequest(channel string, priority notify.Priority, tags ...string) notify.PublishRequest {
	n := newNotification(priority, tags...)
	return notify.PublishRequest{
		Channel:     channel,
		Sender:      n.Sender,
		Context:     n.Context,
		Information: n.Information,
		Visibility:  n.Visibility,
	}
}

func enriched(channel string, seq int64, priority notify.Priority) notify.Notification {
	return notify.NewValidator().Enrich(newNotification(priority), channel, seq)
}

type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) Deliver(ctx context.Context, clientID string, n notify.Notification) error {
	args := m.Called(ctx, clientID, n)
	return args.Error(0)
}

// failingStorage wraps MemoryStorage and lets tests break single methods.
type failingStorage struct {
	*notify.MemoryStorage
	saveNotificationErr error
	subscriptionsErr    error
}

func (s *failingStorage) SaveNotification(ctx context.Context, n notify.Notification) error {
	if s.saveNotificationErr != nil {
		return notify.StorageError("save notification", s.saveNotificationErr)
	}
	return s.MemoryStorage.SaveNotification(ctx, n)
}

func (s *failingStorage) SubscriptionsByChannel(ctx context.Context, channel string) ([]notify.Subscription, error) {
	if s.subscriptionsErr != nil {
		return nil, notify.StorageError("list subscriptions", s.subscriptionsErr)
	}
	return s.MemoryStorage.SubscriptionsByChannel(ctx, channel)
}
