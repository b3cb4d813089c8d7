package kv

import "context"

// Store is a durable key-value store.
//
// GetString and GetInt return ErrNotFound for missing keys. GetStrings
// returns a nil slice and no error for missing keys, since an absent list
// and an empty list mean the same thing to every caller.
type Store interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error

	GetInt(ctx context.Context, key string) (int64, error)
	SetInt(ctx context.Context, key string, value int64) error

	GetStrings(ctx context.Context, key string) ([]string, error)
	SetStrings(ctx context.Context, key string, values []string) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// Incrementer is implemented by stores that can add to an integer key
// atomically. A missing key is treated as zero.
type Incrementer interface {
	Incr(ctx context.Context, key string, delta int64) (int64, error)
}

// Healthchecker is implemented by networked stores.
type Healthchecker interface {
	Healthcheck(ctx context.Context) error
}
