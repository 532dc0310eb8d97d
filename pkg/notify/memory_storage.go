package notify

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryStorage keeps everything in process memory. Data is lost on exit.
// All methods are safe for concurrent use.
type MemoryStorage struct {
	mu         sync.RWMutex
	maxHistory int

	channels      map[string]Channel
	subscriptions map[string]Subscription
	byChannel     map[string][]string // subscription ids, oldest first
	byClient      map[string][]string
	history       map[string][]Notification // ascending sequence
}

// NewMemoryStorage retains up to maxHistory notifications per channel;
// values below 1 fall back to DefaultMaxHistory.
func NewMemoryStorage(maxHistory int) *MemoryStorage {
	if maxHistory < 1 {
		maxHistory = DefaultMaxHistory
	}
	return &MemoryStorage{
		maxHistory:    maxHistory,
		channels:      make(map[string]Channel),
		subscriptions: make(map[string]Subscription),
		byChannel:     make(map[string][]string),
		byClient:      make(map[string][]string),
		history:       make(map[string][]Notification),
	}
}

func (s *MemoryStorage) SaveChannel(_ context.Context, ch Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch.ID] = ch.Clone()
	return nil
}

func (s *MemoryStorage) GetChannel(_ context.Context, id string) (*Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, nil
	}
	c := ch.Clone()
	return &c, nil
}

func (s *MemoryStorage) DeleteChannel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, subID := range s.byChannel[id] {
		sub := s.subscriptions[subID]
		delete(s.subscriptions, subID)
		s.byClient[sub.ClientID] = without(s.byClient[sub.ClientID], subID)
		if len(s.byClient[sub.ClientID]) == 0 {
			delete(s.byClient, sub.ClientID)
		}
	}
	delete(s.byChannel, id)
	delete(s.history, id)
	delete(s.channels, id)
	return nil
}

func (s *MemoryStorage) ListChannels(_ context.Context) ([]Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch.Clone())
	}
	slices.SortFunc(out, func(a, b Channel) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStorage) SaveSubscription(_ context.Context, sub Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[sub.Channel]; !ok {
		return StorageError("save subscription", ErrChannelNotFound)
	}
	sub.Filter = sub.Filter.Clone()
	if _, exists := s.subscriptions[sub.ID]; !exists {
		s.byChannel[sub.Channel] = append(s.byChannel[sub.Channel], sub.ID)
		s.byClient[sub.ClientID] = append(s.byClient[sub.ClientID], sub.ID)
	}
	s.subscriptions[sub.ID] = sub
	return nil
}

func (s *MemoryStorage) DeleteSubscription(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil
	}
	delete(s.subscriptions, id)
	s.byChannel[sub.Channel] = without(s.byChannel[sub.Channel], id)
	if len(s.byChannel[sub.Channel]) == 0 {
		delete(s.byChannel, sub.Channel)
	}
	s.byClient[sub.ClientID] = without(s.byClient[sub.ClientID], id)
	if len(s.byClient[sub.ClientID]) == 0 {
		delete(s.byClient, sub.ClientID)
	}
	return nil
}

func (s *MemoryStorage) SubscriptionsByChannel(_ context.Context, channel string) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byChannel[channel]), nil
}

func (s *MemoryStorage) SubscriptionsByClient(_ context.Context, clientID string) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byClient[clientID]), nil
}

// caller holds mu
func (s *MemoryStorage) collect(ids []string) []Subscription {
	out := make([]Subscription, 0, len(ids))
	for _, id := range ids {
		sub := s.subscriptions[id]
		sub.Filter = sub.Filter.Clone()
		out = append(out, sub)
	}
	return out
}

// SaveNotification appends and trims under one write lock, so readers never
// see more than maxHistory entries. Like the SQL backends it refuses
// notifications for unknown channels and sequences already held.
func (s *MemoryStorage) SaveNotification(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := n.Metadata.Channel
	if _, ok := s.channels[ch]; !ok {
		return StorageError("save notification", ErrChannelNotFound)
	}
	h := s.history[ch]
	// Concurrent publishers may save out of sequence order.
	i, found := slices.BinarySearchFunc(h, n.Metadata.Sequence, func(e Notification, seq int64) int {
		return cmp.Compare(e.Metadata.Sequence, seq)
	})
	if found {
		return StorageError("save notification", ErrDuplicateSequence)
	}
	h = slices.Insert(h, i, n.Clone())
	if over := len(h) - s.maxHistory; over > 0 {
		h = slices.Delete(h, 0, over)
	}
	s.history[ch] = h
	return nil
}

func (s *MemoryStorage) RecentNotifications(_ context.Context, channel string, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.history[channel]
	if limit <= 0 || limit > len(h) {
		limit = len(h)
	}
	out := make([]Notification, 0, limit)
	for i := len(h) - 1; i >= len(h)-limit; i-- {
		out = append(out, h[i].Clone())
	}
	return out, nil
}

func (s *MemoryStorage) CountNotifications(_ context.Context, channel string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history[channel]), nil
}

func without(ids []string, id string) []string {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}
