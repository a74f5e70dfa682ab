// Package queue consumes the three dispatch channels feeding the call
// orchestration: new-call intake, SMS intake and post-call processing.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty reports that no message was available within the receive window.
var ErrEmpty = errors.New("queue empty")

// Transport moves messages through named queues. Delivery is at-least-once;
// redelivery and backoff belong to the transport, not to the handlers.
type Transport interface {
	Send(ctx context.Context, queue, payload string) error
	// Receive blocks for a bounded window and returns ErrEmpty when nothing
	// arrived, so consumer loops can observe cancellation.
	Receive(ctx context.Context, queue string) (string, error)
}

// RedisTransport implements Transport on Redis lists.
type RedisTransport struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedisTransport(redisURL string) (*RedisTransport, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisTransport{
		client:  redis.NewClient(opts),
		timeout: 5 * time.Second,
	}, nil
}

func (t *RedisTransport) Send(ctx context.Context, queue, payload string) error {
	if err := t.client.LPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue on %s: %w", queue, err)
	}
	return nil
}

func (t *RedisTransport) Receive(ctx context.Context, queue string) (string, error) {
	res, err := t.client.BRPop(ctx, t.timeout, queue).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", fmt.Errorf("receive from %s: %w", queue, err)
	}
	// BRPOP returns [key, value].
	return res[1], nil
}

func (t *RedisTransport) Close() error {
	return t.client.Close()
}

// Ping checks connectivity for readiness probes.
func (t *RedisTransport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}
