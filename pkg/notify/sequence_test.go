package notify_test

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

func TestMemorySequencer(t *testing.T) {
	ctx := context.Background()
	s := notify.NewMemorySequencer()

	assert.Zero(t, s.Current("ops"))

	const n = 100
	var (
		mu   sync.Mutex
		got  []int64
		wg   sync.WaitGroup
		errs = make(chan error, n)
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := s.Next(ctx, "ops")
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			got = append(got, seq)
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	slices.Sort(got)
	want := make([]int64, n)
	for i := range want {
		want[i] = int64(i + 1)
	}
	assert.Equal(t, want, got)
	assert.Equal(t, int64(n), s.Current("ops"))

	seq, err := s.Next(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq, "channels are numbered independently")
}

type fixedSource map[string]int64

func (f fixedSource) LastSequence(_ context.Context, channel string) (int64, error) {
	return f[channel], nil
}

func TestSeededSequencer(t *testing.T) {
	ctx := context.Background()
	s := notify.NewSeededSequencer(fixedSource{"ops": 41})

	seq, err := s.Next(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)

	seq, err = s.Next(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}
