package mongostore

import (
	"context"

	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

// Sequencer numbers publishes with one counter document per channel, so
// several hub instances sharing a database never hand out the same number.
type Sequencer struct {
	store *Store
}

var _ notify.Sequencer = (*Sequencer)(nil)

// Sequencer returns a notify.Sequencer backed by the store's counters.
func (s *Store) Sequencer() *Sequencer {
	return &Sequencer{store: s}
}

func (q *Sequencer) Next(ctx context.Context, channel string) (int64, error) {
	seq, err := q.store.increment(ctx, "seq:"+channel)
	if err != nil {
		return 0, notify.StorageError("next sequence", err)
	}
	return seq, nil
}
