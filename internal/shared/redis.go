package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the document as a Redis hash (one field per top-level
// document field) and announces changes on a pub/sub channel.
type RedisStore struct {
	client  *redis.Client
	key     string
	channel string
}

// NewRedisStore connects to Redis.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:  client,
		key:     "agencyos:doc:" + Path,
		channel: "agencyos:doc-changes:" + Path,
	}
}

// UpsertMerge sets the patch's fields and publishes a change
// notification in one transaction.
func (s *RedisStore) UpsertMerge(ctx context.Context, patch Patch) error {
	fields, err := patch.Fields()
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields))
	for name, raw := range fields {
		values[name] = string(raw)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key, values)
		pipe.Publish(ctx, s.channel, Path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert shared document: %w", err)
	}
	return nil
}

// Subscribe delivers the current document and then re-reads it on every
// change notification. Callbacks run on a single goroutine.
func (s *RedisStore) Subscribe(ctx context.Context, onChange func(Document)) (Subscription, error) {
	subCtx, cancel := context.WithCancel(context.Background())
	pubsub := s.client.Subscribe(subCtx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe shared document: %w", err)
	}

	go func() {
		deliver := func() {
			doc, err := s.read(subCtx)
			if err != nil {
				if subCtx.Err() == nil {
					log.Printf("shared: read document: %v", err)
				}
				return
			}
			if subCtx.Err() == nil {
				onChange(doc)
			}
		}

		deliver()
		messages := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()

	var once sync.Once
	return subscriptionFunc(func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
		})
	}), nil
}

// Read returns the current document.
func (s *RedisStore) Read(ctx context.Context) (Document, error) {
	return s.read(ctx)
}

func (s *RedisStore) read(ctx context.Context) (Document, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Document{}, fmt.Errorf("read shared document: %w", err)
	}
	fields := make(map[string]json.RawMessage, len(values))
	for name, value := range values {
		fields[name] = json.RawMessage(value)
	}
	return DecodeFields(fields), nil
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
