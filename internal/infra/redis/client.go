// Package redis implements storage.Store on Redis, for deployments where the
// durable queue lives next to the client rather than on the device.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/faceguard/internal/infra/storage"
)

// Config holds Redis connection configuration.
type Config struct {
	URL       string `yaml:"url"       env:"FACEGUARD_REDIS_URL"`
	Password  string `yaml:"password"  env:"FACEGUARD_REDIS_PASSWORD"`
	Namespace string `yaml:"namespace"`
}

// Store keeps every key under a namespace so Clear never touches foreign data.
type Store struct {
	rdb       *redis.Client
	namespace string
}

// NewStore creates a new Redis-backed store and checks the connection.
func NewStore(cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "faceguard"
	}
	return &Store{rdb: rdb, namespace: namespace + ":"}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping reports whether the server answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) key(k string) string {
	return s.namespace + k
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	return val, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.scan(ctx, "")
	if err != nil {
		return err
	}
	for chunk := range slices.Chunk(keys, 500) {
		if err := s.rdb.Del(ctx, chunk...).Err(); err != nil {
			return fmt.Errorf("del failed: %w", err)
		}
	}
	return nil
}

func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	raw, err := s.scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, s.namespace))
	}
	slices.Sort(keys)
	return keys, nil
}

// scan returns the raw (namespaced) keys matching prefix.
func (s *Store) scan(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(s.namespace+prefix) + "*"
	var keys []string
	iter := s.rdb.Scan(ctx, 0, match, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return keys, nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
