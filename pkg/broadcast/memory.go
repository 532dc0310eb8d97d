package broadcast

import (
	"context"
	"sync"
)

// MemoryBroadcaster fans messages out to in-process subscribers. A subscriber
// whose buffer is full misses the message and is disconnected, so one slow
// reader never stalls the others. Safe for concurrent use.
type MemoryBroadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[*subscriber[T]]struct{}
	bufferSize  int
	closed      bool
	watchers    sync.WaitGroup
}

// NewMemoryBroadcaster creates a broadcaster whose subscribers buffer up to
// bufferSize messages each (minimum 1).
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	return &MemoryBroadcaster[T]{
		subscribers: make(map[*subscriber[T]]struct{}),
		bufferSize:  max(bufferSize, 1),
	}
}

// Subscribe registers a subscriber that lives until ctx is done or Close is
// called on it. After the broadcaster is closed it returns an already-closed
// subscriber.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	sub := newSubscriber[T](b.bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.shut()
		return sub
	}
	sub.owner = b
	b.subscribers[sub] = struct{}{}

	if ctx.Done() != nil {
		b.watchers.Add(1)
		go func() {
			defer b.watchers.Done()
			select {
			case <-ctx.Done():
				b.remove(sub)
			case <-sub.closedSignal():
			}
		}()
	}
	return sub
}

// Broadcast offers msg to every subscriber and returns how many accepted it.
func (b *MemoryBroadcaster[T]) Broadcast(msg T) int {
	b.mu.RLock()
	var slow []*subscriber[T]
	accepted := 0
	for sub := range b.subscribers {
		if sub.offer(msg) {
			accepted++
		} else {
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		b.remove(sub)
	}
	return accepted
}

// Len returns the number of live subscribers.
func (b *MemoryBroadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close disconnects every subscriber. It is idempotent.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subscribers
	b.subscribers = make(map[*subscriber[T]]struct{})
	b.mu.Unlock()

	for sub := range subs {
		sub.shut()
	}
	b.watchers.Wait()
	return nil
}

func (b *MemoryBroadcaster[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
	sub.shut()
}
