// Package cache provides short-lived read caches for dashboard queries.
// Entries are whole query results; staleness up to the TTL is acceptable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Store caches values of a single type by string key.
type Store[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, value T)
	Purge(ctx context.Context)
}

// MemoryStore is an in-process LRU with per-entry expiry.
type MemoryStore[T any] struct {
	lru *lru.LRU[string, T]
}

// NewMemory creates an in-process store holding at most size entries for ttl.
func NewMemory[T any](size int, ttl time.Duration) *MemoryStore[T] {
	if size <= 0 {
		size = 128
	}
	return &MemoryStore[T]{lru: lru.NewLRU[string, T](size, nil, ttl)}
}

// Get returns a cached value.
func (s *MemoryStore[T]) Get(_ context.Context, key string) (T, bool) {
	return s.lru.Get(key)
}

// Set stores a value.
func (s *MemoryStore[T]) Set(_ context.Context, key string, value T) {
	s.lru.Add(key, value)
}

// Purge drops every entry.
func (s *MemoryStore[T]) Purge(context.Context) {
	s.lru.Purge()
}

// RedisStore shares cached values between instances as JSON documents.
// Redis errors degrade to cache misses.
type RedisStore[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a store writing keys under prefix with the given ttl.
func NewRedis[T any](client *redis.Client, prefix string, ttl time.Duration) *RedisStore[T] {
	if prefix == "" {
		prefix = "blogpulse:cache:"
	}
	return &RedisStore[T]{client: client, prefix: prefix, ttl: ttl}
}

// Get returns a cached value.
func (s *RedisStore[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		return zero, false
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		s.client.Del(ctx, s.prefix+key)
		return zero, false
	}
	return value, true
}

// Set stores a value.
func (s *RedisStore[T]) Set(ctx context.Context, key string, value T) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.client.Set(ctx, s.prefix+key, data, s.ttl)
}

// Purge deletes every key under the store prefix.
func (s *RedisStore[T]) Purge(ctx context.Context) {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		s.client.Del(ctx, iter.Val())
	}
}

// ErrNoRedis is returned by Connect when no url is configured.
var ErrNoRedis = errors.New("redis url not configured")

// Connect creates a Redis client and verifies connectivity.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, ErrNoRedis
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
