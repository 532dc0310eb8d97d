package redisbus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifyhub/pkg/notify"
)

// Publisher is a notify.Deliverer that publishes to the client's topic. A
// client with no listening process is not an error.
type Publisher struct {
	client redis.UniversalClient
	prefix string
}

var _ notify.Deliverer = (*Publisher)(nil)

func NewPublisher(client redis.UniversalClient, prefix ...string) *Publisher {
	p := &Publisher{client: client, prefix: DefaultPrefix}
	if len(prefix) > 0 && prefix[0] != "" {
		p.prefix = prefix[0]
	}
	return p
}

func (p *Publisher) Deliver(ctx context.Context, clientID string, n notify.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, clientTopic(p.prefix, clientID), payload).Err()
}
