package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var defaultEnvLoaded sync.Once

type options struct {
	prefix      string
	environment map[string]string
	files       []string
}

// Option customizes a single Load call.
type Option func(*options)

// WithPrefix prepends prefix to every env tag, e.g. "RECOVERY_".
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithEnvironment parses from the given map instead of the process
// environment. The default .env file is not consulted.
func WithEnvironment(m map[string]string) Option {
	return func(o *options) { o.environment = m }
}

// WithEnvFiles loads the given .env files before parsing. Variables already
// set in the process take precedence.
func WithEnvFiles(paths ...string) Option {
	return func(o *options) { o.files = append(o.files, paths...) }
}

// Load parses the environment into a new T using its `env` struct tags.
//
// The .env file in the working directory is loaded once per process if it
// exists. Missing files passed through WithEnvFiles are an error.
//
//	type StoreConfig struct {
//		Driver string `env:"STORE_DRIVER" envDefault:"memory"`
//	}
//
//	cfg, err := config.Load[StoreConfig]()
func Load[T any](opts ...Option) (T, error) {
	var zero T
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.environment == nil {
		defaultEnvLoaded.Do(func() {
			// The default file is optional.
			_ = godotenv.Load()
		})
		if len(o.files) > 0 {
			if err := godotenv.Load(o.files...); err != nil {
				return zero, errors.Join(ErrLoadingEnvFile, err)
			}
		}
	}

	cfg, err := env.ParseAsWithOptions[T](env.Options{
		Prefix:      o.prefix,
		Environment: o.environment,
	})
	if err != nil {
		return zero, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// MustLoad works like Load but panics on failure. Use it for configuration
// the process cannot start without.
func MustLoad[T any](opts ...Option) T {
	cfg, err := Load[T](opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
	return cfg
}
