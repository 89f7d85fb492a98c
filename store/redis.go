package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisMaxRetries = 16

// RedisBackend stores each document as a JSON string under "<prefix>doc:<key>"
// and tracks collection membership in "<prefix>idx:<collection>" sets. Every
// committed write is published on "<prefix>changes" so that other instances
// can notify their own subscribers.
type RedisBackend struct {
	client *redis.Client
	prefix string
	origin string
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{
		client: client,
		prefix: prefix,
		origin: uuid.NewString(),
	}
}

func (r *RedisBackend) docKey(key string) string {
	return r.prefix + "doc:" + key
}

func (r *RedisBackend) indexKey(collection string) string {
	return r.prefix + "idx:" + collection
}

func (r *RedisBackend) channel() string {
	return r.prefix + "changes"
}

func (r *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.docKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read from Redis: %w", err)
	}
	return data, nil
}

func (r *RedisBackend) List(ctx context.Context, collection string) (map[string][]byte, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s from Redis: %w", collection, err)
	}
	out := make(map[string][]byte, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(collection + "/" + id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from Redis: %w", collection, err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Indexed but gone: a concurrent delete between SMEMBERS and MGET.
			continue
		}
		out[ids[i]] = []byte(s)
	}
	return out, nil
}

func (r *RedisBackend) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	collection, id, ok := strings.Cut(key, "/")
	if !ok {
		return fmt.Errorf("%w: %q is not a document key", ErrInvalidPath, key)
	}
	rk := r.docKey(key)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, rk).Bytes()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("failed to read from Redis: %w", err)
		}
		if err == redis.Nil {
			current = nil
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, rk)
				pipe.SRem(ctx, r.indexKey(collection), id)
			} else {
				pipe.Set(ctx, rk, next, 0)
				pipe.SAdd(ctx, r.indexKey(collection), id)
			}
			pipe.Publish(ctx, r.channel(), r.origin+"|"+key)
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := r.client.Watch(ctx, txf, rk)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrConflict, key)
}

// Changes subscribes to the change channel and yields keys written by other
// instances. The channel closes when ctx is done.
func (r *RedisBackend) Changes(ctx context.Context) (<-chan string, error) {
	pubsub := r.client.Subscribe(ctx, r.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel(), err)
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				origin, key, found := strings.Cut(msg.Payload, "|")
				if !found || origin == r.origin {
					continue
				}
				select {
				case out <- key:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
