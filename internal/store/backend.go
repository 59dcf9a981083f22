package store

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Backend persists objects and carries messages between the daemon and
// its clients.
type Backend interface {
	// Replace overwrites the hash at key with fields.
	Replace(ctx context.Context, key string, fields map[string]string) error
	Delete(ctx context.Context, key string) error
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe delivers the payloads published on channel until ctx is
	// done.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RedisBackend stores objects as Redis hashes and uses Redis pub/sub.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects to the Redis server at addr.
func NewRedisBackend(addr string, db int) *RedisBackend {
	return &RedisBackend{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
	}
}

// Ping checks the connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) Replace(ctx context.Context, key string, fields map[string]string) error {
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(fields) > 0 {
		args := make([]interface{}, 0, len(fields)*2)
		for k, v := range fields {
			args = append(args, k, v)
		}
		pipe.HSet(ctx, key, args...)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing on %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBackend) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(m.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
