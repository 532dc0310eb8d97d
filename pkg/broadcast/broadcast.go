package broadcast

import "sync"

// Subscriber receives broadcast messages until it is closed.
type Subscriber[T any] interface {
	// Receive returns the message channel. It is closed when the subscriber
	// is closed, dropped as a slow consumer, or the broadcaster shuts down.
	Receive() <-chan T
	// Close is idempotent.
	Close() error
}

type subscriber[T any] struct {
	mu     sync.RWMutex
	ch     chan T
	done   chan struct{}
	closed bool
	owner  *MemoryBroadcaster[T]
}

func newSubscriber[T any](size int) *subscriber[T] {
	return &subscriber[T]{ch: make(chan T, size), done: make(chan struct{})}
}

func (s *subscriber[T]) Receive() <-chan T {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	if s.owner != nil {
		s.owner.remove(s)
		return nil
	}
	s.shut()
	return nil
}

func (s *subscriber[T]) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
		close(s.done)
	}
}

func (s *subscriber[T]) closedSignal() <-chan struct{} {
	return s.done
}

// offer never blocks; it reports false when the buffer is full or the
// subscriber is closed.
func (s *subscriber[T]) offer(msg T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
