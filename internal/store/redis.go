package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/medkiosk/consult-core/config"
)

const (
	keyPrefix     = "sig:"
	channelPrefix = "sigch:"
)

// RedisStore implements Store on Redis. Values live under "sig:<path>";
// every write and delete publishes the new value (empty payload for a
// delete) on "sigch:<path>" so watchers on other boxes see it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Write(ctx context.Context, path string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", path, err)
	}

	if err := s.client.Set(ctx, keyPrefix+path, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := s.client.Publish(ctx, channelPrefix+path, data).Err(); err != nil {
		return fmt.Errorf("failed to publish change for %s: %w", path, err)
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context, path string, out interface{}) (bool, error) {
	data, err := s.client.Get(ctx, keyPrefix+path).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to parse value at %s: %w", path, err)
	}
	return true, nil
}

func (s *RedisStore) Delete(ctx context.Context, path string) error {
	// Remove the path itself plus the whole subtree under it.
	keys := []string{keyPrefix + path}
	iter := s.client.Scan(ctx, 0, keyPrefix+path+"/*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan subtree of %s: %w", path, err)
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}

	for _, key := range keys {
		channel := channelPrefix + strings.TrimPrefix(key, keyPrefix)
		if err := s.client.Publish(ctx, channel, "").Err(); err != nil {
			log.Printf("Failed to publish delete for %s: %v", key, err)
		}
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, path string, fn func(data []byte)) (Subscription, error) {
	pubsub := s.client.Subscribe(ctx, channelPrefix+path)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}

	sub := &redisSubscription{pubsub: pubsub}

	// Replay the current value so subscribers see existing state, the way
	// value watches behave on the doctor's side of the store.
	current, err := s.client.Get(ctx, keyPrefix+path).Bytes()
	switch {
	case err == redis.Nil:
		sub.deliver(func() { fn(nil) })
	case err != nil:
		pubsub.Close()
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	default:
		sub.deliver(func() { fn(current) })
	}

	go func() {
		for msg := range pubsub.Channel() {
			payload := []byte(msg.Payload)
			if len(payload) == 0 {
				payload = nil
			}
			sub.deliver(func() { fn(payload) })
		}
	}()

	return sub, nil
}

func (s *RedisStore) SubscribeChildren(ctx context.Context, path string, fn func(key string, data []byte)) (Subscription, error) {
	pubsub := s.client.PSubscribe(ctx, channelPrefix+path+"/*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to children of %s: %w", path, err)
	}

	sub := &redisSubscription{pubsub: pubsub}

	// Replay existing children in key order before live delivery starts.
	var keys []string
	iter := s.client.Scan(ctx, 0, keyPrefix+path+"/*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to scan children of %s: %w", path, err)
	}
	sort.Strings(keys)

	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		child := strings.TrimPrefix(key, keyPrefix+path+"/")
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		seen[child] = true
		sub.deliver(func() { fn(child, data) })
	}

	go func() {
		for msg := range pubsub.Channel() {
			if len(msg.Payload) == 0 {
				continue // child deletes are not child-added events
			}
			child := strings.TrimPrefix(msg.Channel, channelPrefix+path+"/")
			sub.mu.Lock()
			replayed := seen[child]
			seen[child] = true
			sub.mu.Unlock()
			if replayed {
				continue
			}
			payload := []byte(msg.Payload)
			sub.deliver(func() { fn(child, payload) })
		}
	}()

	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	mu     sync.Mutex
	closed bool
}

// deliver runs fn unless the subscription is closed. The closed check sits
// outside the call so a callback may close its own subscription.
func (s *redisSubscription) deliver(fn func()) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	fn()
}

func (s *redisSubscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.pubsub.Close()
}
