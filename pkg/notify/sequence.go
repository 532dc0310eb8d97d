package notify

import (
	"context"
	"sync"
)

// Sequencer hands out per-channel sequence numbers starting at 1. Next must
// be atomic: concurrent callers on one channel never get the same number and
// never leave a gap.
type Sequencer interface {
	Next(ctx context.Context, channel string) (int64, error)
}

// SequenceSource reports the highest sequence already stored for a channel,
// 0 if none. Persistent storages implement it so numbering survives restarts.
type SequenceSource interface {
	LastSequence(ctx context.Context, channel string) (int64, error)
}

// MemorySequencer keeps counters for the life of the process. When seeded,
// a channel's counter starts from its SequenceSource on first use.
type MemorySequencer struct {
	mu       sync.Mutex
	counters map[string]int64
	source   SequenceSource
}

func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{counters: make(map[string]int64)}
}

// NewSeededSequencer continues each channel's numbering from src.
func NewSeededSequencer(src SequenceSource) *MemorySequencer {
	s := NewMemorySequencer()
	s.source = src
	return s
}

func (s *MemorySequencer) Next(ctx context.Context, channel string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.counters[channel]; !ok && s.source != nil {
		last, err := s.source.LastSequence(ctx, channel)
		if err != nil {
			return 0, err
		}
		s.counters[channel] = last
	}
	s.counters[channel]++
	return s.counters[channel], nil
}

// Current returns the last number handed out for channel, 0 if none.
func (s *MemorySequencer) Current(channel string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[channel]
}

func defaultSequencer(storage Storage) Sequencer {
	if src, ok := storage.(SequenceSource); ok {
		return NewSeededSequencer(src)
	}
	return NewMemorySequencer()
}
