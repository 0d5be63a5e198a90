package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/showfloor/cybergenesis/internal/event"
)

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type NotifierConfig struct {
	EventBus *event.Bus
	Redis    Redis
	Prefix   string
}

// Notifier mirrors the change feed onto a Redis channel per session, so
// clients connected to another instance still see every update.
type Notifier struct {
	redis  Redis
	prefix string
}

func NewNotifier(c NotifierConfig) *Notifier {
	n := &Notifier{
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	for _, name := range feedEvents {
		name := name
		c.EventBus.Subscribe(name, func(ctx context.Context, e event.Event) error {
			sessionID, msg, ok := notification(name, e)
			if !ok {
				return nil
			}
			return n.publish(ctx, sessionID, msg)
		})
	}

	return n
}

func (n *Notifier) publish(ctx context.Context, sessionID string, msg Notification) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", msg.Event, err)
	}

	return n.redis.Publish(ctx, fmt.Sprintf("%s:session:%s", n.prefix, sessionID), b).Err()
}
