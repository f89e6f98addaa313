package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

var ErrStoreUnavailable = errors.New("session store unavailable")

// Store persists session data by id. Save refreshes the idle TTL.
type Store interface {
	Get(ctx context.Context, id string) (Data, error)
	Save(ctx context.Context, id string, d Data, ttl time.Duration) error
	Destroy(ctx context.Context, id string) error
}

// ---- In-memory ----

// MemoryStore keeps encoded sessions in a bounded LRU. Entries expire after the
// idle TTL given at construction; the ttl passed to Save is ignored.
type MemoryStore struct {
	lru *expirable.LRU[string, []byte]
}

func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{lru: expirable.NewLRU[string, []byte](capacity, nil, ttl)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (Data, error) {
	b, ok := m.lru.Get(id)
	if !ok {
		return Data{}, ErrNotFound
	}
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return Data{}, err
	}
	return d, nil
}

func (m *MemoryStore) Save(_ context.Context, id string, d Data, _ time.Duration) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	// Add resets the entry's expiry.
	m.lru.Add(id, b)
	return nil
}

func (m *MemoryStore) Destroy(_ context.Context, id string) error {
	m.lru.Remove(id)
	return nil
}

func (m *MemoryStore) Len() int {
	return m.lru.Len()
}

// ---- Redis ----

type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "frontend:sess:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (Data, error) {
	b, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Data{}, ErrNotFound
	}
	if err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return Data{}, err
	}
	return d, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, d Data, ttl time.Duration) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(id), b, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
