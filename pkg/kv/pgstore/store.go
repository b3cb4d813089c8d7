// Package pgstore implements kv.Store on a single PostgreSQL table.
//
// Every key is one row; exactly one of str_value, int_value or list_value is
// set. Increments run as a single upsert, so concurrent sessions never lose
// updates.
package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/arcana/pkg/kv"
)

// Store is a PostgreSQL-backed kv.Store.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ kv.Store         = (*Store)(nil)
	_ kv.Incrementer   = (*Store)(nil)
	_ kv.Healthchecker = (*Store)(nil)
)

// New returns a store using pool. Run Migrate before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const (
	upsertString = `INSERT INTO kv_entries (key, str_value, int_value, list_value, updated_at)
VALUES ($1, $2, NULL, NULL, now())
ON CONFLICT (key) DO UPDATE SET str_value = EXCLUDED.str_value, int_value = NULL, list_value = NULL, updated_at = now()`

	upsertInt = `INSERT INTO kv_entries (key, str_value, int_value, list_value, updated_at)
VALUES ($1, NULL, $2, NULL, now())
ON CONFLICT (key) DO UPDATE SET str_value = NULL, int_value = EXCLUDED.int_value, list_value = NULL, updated_at = now()`

	upsertList = `INSERT INTO kv_entries (key, str_value, int_value, list_value, updated_at)
VALUES ($1, NULL, NULL, $2, now())
ON CONFLICT (key) DO UPDATE SET str_value = NULL, int_value = NULL, list_value = EXCLUDED.list_value, updated_at = now()`

	incrInt = `INSERT INTO kv_entries (key, int_value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET int_value = COALESCE(kv_entries.int_value, 0) + EXCLUDED.int_value, str_value = NULL, list_value = NULL, updated_at = now()
RETURNING int_value`
)

func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", kv.ErrEmptyKey
	}
	var v *string
	err := s.pool.QueryRow(ctx, `SELECT str_value FROM kv_entries WHERE key = $1`, key).Scan(&v)
	if isNotFound(err) {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", kv.ErrTypeMismatch
	}
	return *v, nil
}

func (s *Store) SetString(ctx context.Context, key, value string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	_, err := s.pool.Exec(ctx, upsertString, key, value)
	return err
}

func (s *Store) GetInt(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, kv.ErrEmptyKey
	}
	var v *int64
	err := s.pool.QueryRow(ctx, `SELECT int_value FROM kv_entries WHERE key = $1`, key).Scan(&v)
	if isNotFound(err) {
		return 0, kv.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, kv.ErrTypeMismatch
	}
	return *v, nil
}

func (s *Store) SetInt(ctx context.Context, key string, value int64) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	_, err := s.pool.Exec(ctx, upsertInt, key, value)
	return err
}

func (s *Store) GetStrings(ctx context.Context, key string) ([]string, error) {
	if key == "" {
		return nil, kv.ErrEmptyKey
	}
	var list []string
	var isList bool
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(list_value, '{}'), list_value IS NOT NULL FROM kv_entries WHERE key = $1`, key,
	).Scan(&list, &isList)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !isList {
		return nil, kv.ErrTypeMismatch
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list, nil
}

func (s *Store) SetStrings(ctx context.Context, key string, values []string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	if values == nil {
		values = []string{}
	}
	_, err := s.pool.Exec(ctx, upsertList, key, values)
	return err
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = ANY($1)`, keys)
	return err
}

// Incr adds delta to the integer at key in one statement.
func (s *Store) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	if key == "" {
		return 0, kv.ErrEmptyKey
	}
	var n int64
	if err := s.pool.QueryRow(ctx, incrInt, key, delta).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Healthcheck pings the database.
func (s *Store) Healthcheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
