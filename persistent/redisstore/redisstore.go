// Package redisstore implements persistent.Store against Redis, using
// native Redis sets for TopicSet/ClientTopicSet and native Redis hashes
// for TopicHash — grounded on the teacher's own Redis-backed storage
// hook and its historical cluster/persistence/redis package, both of
// which keep MQTT subscriptions in Redis hashes keyed by client or
// topic.
package redisstore

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Store is a persistent.Store backed by a Redis client.
type Store struct {
	db *redis.Client
}

// New wraps an already-connected *redis.Client. Use Open to also
// establish the connection from Options.
func New(db *redis.Client) *Store {
	return &Store{db: db}
}

// Open connects to Redis using opts and returns a ready Store.
func Open(ctx context.Context, opts *redis.Options) (*Store, error) {
	db := redis.NewClient(opts)
	if _, err := db.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying Redis client.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SetAdd(ctx context.Context, key, member string) error {
	return s.db.SAdd(ctx, key, member).Err()
}

func (s *Store) SetRemove(ctx context.Context, key, member string) error {
	return s.db.SRem(ctx, key, member).Err()
}

func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.db.SMembers(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return members, nil
}

func (s *Store) SetDelete(ctx context.Context, key string) error {
	return s.db.Del(ctx, key).Err()
}

func (s *Store) HashPut(ctx context.Context, key, field, value string) error {
	return s.db.HSet(ctx, key, field, value).Err()
}

func (s *Store) HashRemove(ctx context.Context, key, field string) error {
	return s.db.HDel(ctx, key, field).Err()
}

func (s *Store) HashEntries(ctx context.Context, key string) (map[string]string, error) {
	entries, err := s.db.HGetAll(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) HashDelete(ctx context.Context, key string) error {
	return s.db.Del(ctx, key).Err()
}
