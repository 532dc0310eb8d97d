package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/async"
)

func TestGo(t *testing.T) {
	t.Run("returns result", func(t *testing.T) {
		f := async.Go(context.Background(), func(context.Context) (int, error) { return 42, nil })
		v, err := f.Await()
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("returns error", func(t *testing.T) {
		boom := errors.New("boom")
		f := async.Go(context.Background(), func(context.Context) (int, error) { return 0, boom })
		_, err := f.Await()
		assert.ErrorIs(t, err, boom)
	})

	t.Run("canceled context skips fn", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		f := async.Go(ctx, func(context.Context) (int, error) { called = true; return 1, nil })
		_, err := f.Await()
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}

func TestAwaitWithTimeout(t *testing.T) {
	t.Run("completes in time", func(t *testing.T) {
		f := async.Go(context.Background(), func(context.Context) (string, error) { return "ok", nil })
		v, err := f.AwaitWithTimeout(time.Second)
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
	})

	t.Run("times out", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		f := async.Go(context.Background(), func(context.Context) (string, error) {
			<-release
			return "late", nil
		})
		v, err := f.AwaitWithTimeout(20 * time.Millisecond)
		assert.ErrorIs(t, err, async.ErrTimeout)
		assert.Empty(t, v)

		select {
		case <-f.Done():
			t.Fatal("future should still be running")
		default:
		}
	})
}

func TestWaitAll(t *testing.T) {
	boom := errors.New("boom")
	f1 := async.Go(context.Background(), func(context.Context) (int, error) { return 1, nil })
	f2 := async.Go(context.Background(), func(context.Context) (int, error) { return 0, boom })
	f3 := async.Go(context.Background(), func(context.Context) (int, error) { return 3, nil })

	results, errs := async.WaitAll(f1, f2, f3)
	assert.Equal(t, []int{1, 0, 3}, results)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	assert.NoError(t, errs[2])
}
