package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher is the subset of the redis client used to fan events out.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisForwarder mirrors committed events onto a Redis pub/sub channel.
type RedisForwarder struct {
	client  Publisher
	channel string
	logger  *zap.Logger
}

// NewRedisForwarder builds a forwarder. channel must be non-empty.
func NewRedisForwarder(client Publisher, channel string, logger *zap.Logger) *RedisForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisForwarder{client: client, channel: channel, logger: logger}
}

// Register subscribes the forwarder to every event on dispatcher.
func (f *RedisForwarder) Register(dispatcher Dispatcher) {
	if f == nil || f.client == nil || dispatcher == nil {
		return
	}
	dispatcher.SubscribeAll(f.Forward)
}

// Forward JSON-encodes event and publishes it.
func (f *RedisForwarder) Forward(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	if err := f.client.Publish(ctx, f.channel, body).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	f.logger.Debug("event forwarded",
		zap.String("channel", f.channel),
		zap.String("event_type", string(event.Type)),
		zap.Int64("subject_id", event.SubjectID))
	return nil
}
