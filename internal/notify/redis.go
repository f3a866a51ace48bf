package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"facility-service/internal/models"

	"github.com/redis/go-redis/v9"
)

// Emitter is the outbound notification port. Delivery is fire-and-forget:
// emit failures are the caller's to log, never to propagate into the
// transaction outcome.
type Emitter interface {
	Emit(ctx context.Context, event models.Event) error
}

type RedisEmitter struct {
	client  *redis.Client
	channel string
}

func NewRedisEmitter(redisAddr, channel string) (*RedisEmitter, error) {
	const op = "notify.NewRedisEmitter"

	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisEmitter{client: client, channel: channel}, nil
}

func (e *RedisEmitter) Emit(ctx context.Context, event models.Event) error {
	const op = "notify.RedisEmitter.Emit"

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := e.client.Publish(ctx, e.channel, payload).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (e *RedisEmitter) Close() error {
	return e.client.Close()
}
