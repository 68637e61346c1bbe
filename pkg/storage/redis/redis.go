// Package redis implements storage.Store on Redis.
//
// Configs are stored as JSON strings and images as hashes with "data" and
// "content_type" fields. Keys follow the storage key layout with an optional
// namespace prefix:
//
//	chartcn:configs/ab/<id>/config.json
//	chartcn:images/cd/<id>/<key>
//
// When Config.TTL is set every key expires after that duration, turning the
// durable tier into a shared cache for multi-instance deployments.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/storage"
)

// DefaultPrefix namespaces all keys.
const DefaultPrefix = "chartcn:"

const (
	fieldData        = "data"
	fieldContentType = "content_type"
)

// Config configures the Redis store.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Store is a Redis-backed storage.Store.
type Store struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client. The store takes ownership and
// closes it on Close.
func NewWithClient(client goredis.UniversalClient, cfg Config) *Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: cfg.TTL}
}

func (s *Store) SaveConfig(ctx context.Context, id string, req *chart.Request) error {
	if err := storage.CheckID(id); err != nil {
		return err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return storage.Wrap(err, "encode", id)
	}
	key := s.key(storage.ConfigPath(id))
	return storage.Wrap(s.client.Set(ctx, key, data, s.ttl).Err(), "save config", id)
}

func (s *Store) GetConfig(ctx context.Context, id string) (*chart.Request, bool, error) {
	if err := storage.CheckID(id); err != nil {
		return nil, false, err
	}
	data, err := s.client.Get(ctx, s.key(storage.ConfigPath(id))).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.Wrap(err, "get config", id)
	}

	var req chart.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, false, storage.Wrap(err, "decode", id)
	}
	return &req, true, nil
}

func (s *Store) SaveImage(ctx context.Context, id, key string, data []byte, contentType string) error {
	if err := storage.CheckImage(id, key); err != nil {
		return err
	}
	k := s.key(storage.ImagePath(id, key))
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, k, fieldData, data, fieldContentType, contentType)
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	return storage.Wrap(err, "save image", id)
}

func (s *Store) GetImage(ctx context.Context, id, key string) (*storage.Image, bool, error) {
	if err := storage.CheckImage(id, key); err != nil {
		return nil, false, err
	}
	fields, err := s.client.HGetAll(ctx, s.key(storage.ImagePath(id, key))).Result()
	if err != nil {
		return nil, false, storage.Wrap(err, "get image", id)
	}
	data, ok := fields[fieldData]
	if !ok {
		return nil, false, nil
	}
	return &storage.Image{Data: []byte(data), ContentType: fields[fieldContentType]}, true, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Ensure Store implements storage.Store.
var _ storage.Store = (*Store)(nil)
