package notify_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

func newRouter(t *testing.T, storage notify.Storage, opts ...notify.RouterOption) (*notify.Router, *notify.SubscriptionRegistry) {
	t.Helper()
	require.NoError(t, storage.SaveChannel(context.Background(), notify.Channel{ID: "ops"}))
	subs := notify.NewSubscriptionRegistry(storage, notify.WithSubscriptionLogger(logger.Discard()))
	opts = append([]notify.RouterOption{notify.WithRouterLogger(logger.Discard())}, opts...)
	return notify.NewRouter(storage, subs, opts...), subs
}

type failingSequencer struct{}

func (failingSequencer) Next(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestRouter_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("matches and delivers", func(t *testing.T) {
		d := &MockDeliverer{}
		d.On("Deliver", mock.Anything, "b", mock.AnythingOfType("notify.Notification")).Return(nil).Once()

		storage := notify.NewMemoryStorage(10)
		router, subs := newRouter(t, storage, notify.WithDeliverer(d))
		_, err := subs.Subscribe(ctx, "a", "ops", &notify.SubscriptionFilter{Priorities: []notify.Priority{notify.PriorityCritical}})
		require.NoError(t, err)
		_, err = subs.Subscribe(ctx, "b", "ops", nil)
		require.NoError(t, err)

		res, err := router.Publish(ctx, "ops", newNotification(notify.PriorityLow))
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Sequence)
		assert.Equal(t, 1, res.Delivered)
		assert.Equal(t, 1, res.Filtered)
		assert.Zero(t, res.Failed)
		assert.NotEmpty(t, res.ID)
		d.AssertExpectations(t)

		delivered := d.Calls[0].Arguments.Get(2).(notify.Notification)
		assert.Equal(t, res.ID, delivered.Metadata.ID)
		assert.Equal(t, "ops", delivered.Metadata.Channel)
	})

	t.Run("no deliverer", func(t *testing.T) {
		storage := notify.NewMemoryStorage(10)
		router, subs := newRouter(t, storage)
		_, err := subs.Subscribe(ctx, "a", "ops", nil)
		require.NoError(t, err)

		res, err := router.Publish(ctx, "ops", newNotification(notify.PriorityLow))
		require.NoError(t, err)
		assert.Zero(t, res.Delivered)
		assert.Equal(t, 1, res.Undelivered)

		count, err := storage.CountNotifications(ctx, "ops")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("delivery failure is counted not returned", func(t *testing.T) {
		d := &MockDeliverer{}
		d.On("Deliver", mock.Anything, "a", mock.Anything).Return(errors.New("stream gone"))
		d.On("Deliver", mock.Anything, "b", mock.Anything).Return(nil)

		router, subs := newRouter(t, notify.NewMemoryStorage(10), notify.WithDeliverer(d))
		for _, client := range []string{"a", "b"} {
			_, err := subs.Subscribe(ctx, client, "ops", nil)
			require.NoError(t, err)
		}

		res, err := router.Publish(ctx, "ops", newNotification(notify.PriorityHigh))
		require.NoError(t, err)
		assert.Equal(t, 2, res.Delivered)
		assert.Equal(t, 1, res.Failed)
	})

	t.Run("delivery timeout", func(t *testing.T) {
		slow := notify.DelivererFunc(func(ctx context.Context, clientID string, n notify.Notification) error {
			<-ctx.Done()
			return ctx.Err()
		})
		router, subs := newRouter(t, notify.NewMemoryStorage(10),
			notify.WithDeliverer(slow),
			notify.WithDeliveryTimeout(50*time.Millisecond),
		)
		_, err := subs.Subscribe(ctx, "a", "ops", nil)
		require.NoError(t, err)

		start := time.Now()
		res, err := router.Publish(ctx, "ops", newNotification(notify.PriorityHigh))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("rejected notification takes no sequence", func(t *testing.T) {
		storage := notify.NewMemoryStorage(10)
		router, _ := newRouter(t, storage)

		bad := newNotification(notify.PriorityHigh)
		bad.Information.Title = ""
		_, err := router.Publish(ctx, "ops", bad)
		require.ErrorIs(t, err, notify.ErrInvalidNotification)

		res, err := router.Publish(ctx, "ops", newNotification(notify.PriorityHigh))
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Sequence)

		count, err := storage.CountNotifications(ctx, "ops")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("defaults applied before validation", func(t *testing.T) {
		storage := notify.NewMemoryStorage(10)
		router, _ := newRouter(t, storage)

		n := newNotification("")
		n.Information.Format = ""
		_, err := router.Publish(ctx, "ops", n)
		require.NoError(t, err)

		recent, err := storage.RecentNotifications(ctx, "ops", 1)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, notify.PriorityMedium, recent[0].Context.Priority)
		assert.Equal(t, notify.FormatText, recent[0].Information.Format)
	})

	t.Run("empty channel", func(t *testing.T) {
		router, _ := newRouter(t, notify.NewMemoryStorage(10))
		_, err := router.Publish(ctx, "", newNotification(notify.PriorityHigh))
		assert.ErrorIs(t, err, notify.ErrChannelRequired)
	})

	t.Run("storage failure", func(t *testing.T) {
		storage := &failingStorage{MemoryStorage: notify.NewMemoryStorage(10), saveNotificationErr: errors.New("disk full")}
		router, _ := newRouter(t, storage)

		_, err := router.Publish(ctx, "ops", newNotification(notify.PriorityHigh))
		assert.ErrorIs(t, err, notify.ErrStorage)

		// The failed save keeps its sequence number.
		storage.saveNotificationErr = nil
		res, err := router.Publish(ctx, "ops", newNotification(notify.PriorityHigh))
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Sequence)

		count, err := storage.CountNotifications(ctx, "ops")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("sequencer failure", func(t *testing.T) {
		router, _ := newRouter(t, notify.NewMemoryStorage(10), notify.WithSequencer(failingSequencer{}))

		_, err := router.Publish(ctx, "ops", newNotification(notify.PriorityHigh))
		assert.ErrorIs(t, err, notify.ErrStorage)
	})

	t.Run("subscriber lookup failure keeps the stored notification", func(t *testing.T) {
		storage := &failingStorage{MemoryStorage: notify.NewMemoryStorage(10), subscriptionsErr: errors.New("timeout")}
		router, _ := newRouter(t, storage)

		res, err := router.Publish(ctx, "ops", newNotification(notify.PriorityHigh))
		require.ErrorIs(t, err, notify.ErrStorage)
		assert.Equal(t, int64(1), res.Sequence)

		count, err := storage.CountNotifications(ctx, "ops")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestRouter_ConcurrentPublishes(t *testing.T) {
	ctx := context.Background()
	storage := notify.NewMemoryStorage(100)
	router, _ := newRouter(t, storage, notify.WithDeliverer(notify.NoOpDeliverer{}))

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seqs []int64
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := router.Publish(ctx, "ops", newNotification(notify.PriorityHigh))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seqs = append(seqs, res.Sequence)
			mu.Unlock()
		}()
	}
	wg.Wait()

	slices.Sort(seqs)
	want := make([]int64, n)
	for i := range want {
		want[i] = int64(i + 1)
	}
	assert.Equal(t, want, seqs)

	recent, err := storage.RecentNotifications(ctx, "ops", n)
	require.NoError(t, err)
	require.Len(t, recent, n)
	for i, note := range recent {
		assert.Equal(t, int64(n-i), note.Metadata.Sequence)
	}
}
