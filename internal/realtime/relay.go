// internal/realtime/relay.go
// Cross-node fan-out over a single Redis pub/sub channel

package realtime

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/logging"
)

const DefaultRelayChannel = "ewers:realtime:events"

// RedisRelay publishes hub envelopes to Redis and feeds them back to every node
type RedisRelay struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisRelay creates a relay on channel (DefaultRelayChannel when empty)
func NewRedisRelay(client *redis.Client, channel string, logger *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	logger = logging.OrNop(logger)
	return &RedisRelay{
		client:  client,
		channel: channel,
		logger:  logger.Named("relay"),
	}
}

// Publish sends payload to every subscribed node
func (r *RedisRelay) Publish(ctx context.Context, payload []byte) error {
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe blocks, passing each received payload to handler, until ctx is
// cancelled or the subscription breaks.
func (r *RedisRelay) Subscribe(ctx context.Context, handler func(payload []byte)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation before consuming.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	r.logger.Info("relay subscribed", zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			handler([]byte(msg.Payload))
		}
	}
}
