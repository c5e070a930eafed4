package events

import (
	"context"

	"github.com/wavechat/gateway/internal/svc/redis"
	"go.uber.org/zap"
)

type redisInst struct {
	redis redis.Instance
}

type RedisOptions struct {
	Redis redis.Instance
}

// NewRedis returns a bus backed by redis pub/sub.
func NewRedis(opt RedisOptions) Instance {
	return &redisInst{redis: opt.Redis}
}

func (b *redisInst) key(topic string) string {
	return b.redis.ComposeKey("events", topic).String()
}

func (b *redisInst) Publish(ctx context.Context, topic string, payload Payload) error {
	j, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.redis.RawClient().Publish(ctx, b.key(topic), j).Err()
}

func (b *redisInst) Subscribe(ctx context.Context, topic string, handler Handler) (func(), error) {
	msgs, cancel := b.redis.Subscribe(ctx, b.key(topic))

	go func() {
		for raw := range msgs {
			var payload Payload
			if err := json.Unmarshal([]byte(raw), &payload); err != nil {
				zap.S().Errorw("events, dropped malformed bus payload",
					"topic", topic,
					"error", err,
				)

				continue
			}

			handler(payload)
		}
	}()

	return cancel, nil
}
