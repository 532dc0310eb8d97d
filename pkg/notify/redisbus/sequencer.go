package redisbus

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

// Sequencer is a notify.Sequencer shared by every process using the same
// Redis and prefix.
type Sequencer struct {
	client redis.UniversalClient
	prefix string
	seed   notify.SequenceSource
	seeded sync.Map // channel -> struct{}
}

var _ notify.Sequencer = (*Sequencer)(nil)

type SequencerOption func(*Sequencer)

func WithSequencePrefix(prefix string) SequencerOption {
	return func(s *Sequencer) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithSeed initialises a missing counter from src before its first use, so
// a fresh Redis continues the numbering already in storage.
func WithSeed(src notify.SequenceSource) SequencerOption {
	return func(s *Sequencer) { s.seed = src }
}

func NewSequencer(client redis.UniversalClient, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sequencer) Next(ctx context.Context, channel string) (int64, error) {
	key := sequenceKey(s.prefix, channel)
	if err := s.ensureSeeded(ctx, channel, key); err != nil {
		return 0, err
	}
	seq, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, notify.StorageError("next sequence", err)
	}
	return seq, nil
}

// ensureSeeded uses SETNX so that racing processes agree on one seed.
func (s *Sequencer) ensureSeeded(ctx context.Context, channel, key string) error {
	if s.seed == nil {
		return nil
	}
	if _, ok := s.seeded.Load(channel); ok {
		return nil
	}
	last, err := s.seed.LastSequence(ctx, channel)
	if err != nil {
		return err
	}
	if err := s.client.SetNX(ctx, key, last, 0).Err(); err != nil {
		return notify.StorageError("seed sequence", err)
	}
	s.seeded.Store(channel, struct{}{})
	return nil
}
