// Package redisstore implements volatile.Store on Redis with go-redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"community-bot/backend/internal/volatile"
)

const scanCount = 500

// Store implements volatile.Store using a shared Redis client.
type Store struct {
	client redis.UniversalClient
}

// New parses a redis:// URL, connects and pings. Caller must call Close when done.
func New(ctx context.Context, url string) (*Store, error) {
	if url == "" {
		return nil, errors.New("redisstore: REDIS_URL is not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}
	return &Store{client: client}, nil
}

// NewFromClient wraps an existing client (tests, shared pools).
func NewFromClient(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

var _ volatile.Store = (*Store)(nil)

func (s *Store) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.IncrBy(ctx, key, delta)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) GetDel(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.client.GetDel(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return v, true, nil
}

func (s *Store) HIncrBy(ctx context.Context, key string, incr, set map[string]int64, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	for field, delta := range incr {
		pipe.HIncrBy(ctx, key, field, delta)
	}
	if len(set) > 0 {
		values := make(map[string]interface{}, len(set))
		for field, v := range set {
			values[field] = v
		}
		pipe.HSet(ctx, key, values)
	}
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// HGetAllDel reads and deletes inside MULTI/EXEC so no HINCRBY lands between the two.
func (s *Store) HGetAllDel(ctx context.Context, key string) (map[string]int64, error) {
	pipe := s.client.TxPipeline()
	get := pipe.HGetAll(ctx, key)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	raw := get.Val()
	out := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redisstore: field %s of %s: %w", field, key, err)
		}
		out[field] = n
	}
	return out, nil
}

func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", volatile.ErrNil
	}
	return v, err
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *Store) RPush(ctx context.Context, key string, values ...[]byte) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return s.client.RPush(ctx, key, args...).Err()
}

func (s *Store) LPopN(ctx context.Context, key string, n int) ([][]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := s.client.LPopCount(ctx, key, n).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// ScanPrefix walks the keyspace with SCAN MATCH prefix*; prefix must not contain glob characters.
func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	seen := make(map[string]struct{})
	for {
		batch, next, err := s.client.Scan(ctx, cursor, prefix+"*", scanCount).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			// SCAN may return a key more than once.
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
