// Package redisstore implements kv.Store on top of Redis.
//
// Strings and integers are plain Redis strings; string lists are Redis lists
// replaced atomically inside a MULTI/EXEC pipeline. Integer increments use
// INCRBY, so usage counters stay exact across processes.
package redisstore

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/arcana/pkg/kv"
)

// Store is a Redis-backed kv.Store.
type Store struct {
	db     redis.UniversalClient
	prefix string
}

var (
	_ kv.Store         = (*Store)(nil)
	_ kv.Incrementer   = (*Store)(nil)
	_ kv.Healthchecker = (*Store)(nil)
)

// New wraps an existing client. Keys are namespaced with prefix.
func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{db: client, prefix: prefix}
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", kv.ErrEmptyKey
	}
	val, err := s.db.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", mapErr(err)
	}
	return val, nil
}

func (s *Store) SetString(ctx context.Context, key, value string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	return mapErr(s.db.Set(ctx, s.key(key), value, 0).Err())
}

func (s *Store) GetInt(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, kv.ErrEmptyKey
	}
	val, err := s.db.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, kv.ErrNotFound
	}
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, errors.Join(kv.ErrTypeMismatch, err)
	}
	return n, nil
}

func (s *Store) SetInt(ctx context.Context, key string, value int64) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	return mapErr(s.db.Set(ctx, s.key(key), value, 0).Err())
}

func (s *Store) GetStrings(ctx context.Context, key string) ([]string, error) {
	if key == "" {
		return nil, kv.ErrEmptyKey
	}
	list, err := s.db.LRange(ctx, s.key(key), 0, -1).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list, nil
}

// SetStrings replaces the list stored at key in a single transaction.
func (s *Store) SetStrings(ctx context.Context, key string, values []string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	k := s.key(key)
	_, err := s.db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		if len(values) > 0 {
			args := make([]any, len(values))
			for i, v := range values {
				args[i] = v
			}
			pipe.RPush(ctx, k, args...)
		}
		return nil
	})
	return mapErr(err)
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return mapErr(s.db.Del(ctx, full...).Err())
}

// Incr adds delta to the integer at key using INCRBY.
func (s *Store) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	if key == "" {
		return 0, kv.ErrEmptyKey
	}
	n, err := s.db.IncrBy(ctx, s.key(key), delta).Result()
	if err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

// Healthcheck pings the server.
func (s *Store) Healthcheck(ctx context.Context) error {
	if err := s.db.Ping(ctx).Err(); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.db.Close()
}

// mapErr converts WRONGTYPE and non-integer replies into kv.ErrTypeMismatch.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var redisErr redis.Error
	if !errors.As(err, &redisErr) {
		return err
	}
	msg := redisErr.Error()
	if strings.HasPrefix(msg, "WRONGTYPE") || strings.Contains(msg, "not an integer") {
		return errors.Join(kv.ErrTypeMismatch, err)
	}
	return err
}
