package subsync

import "time"

// Config is the sync schedule. Load it with config.Load[subsync.Config]().
type Config struct {
	Interval   time.Duration `env:"SYNC_INTERVAL" envDefault:"60m"`
	MaxRetries int           `env:"SYNC_MAX_RETRIES" envDefault:"3"`
	RetryDelay time.Duration `env:"SYNC_RETRY_DELAY" envDefault:"5s"`
}

// Option configures a Service.
type Option func(*Service)

// WithConfig applies every non-zero field of cfg.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		if cfg.Interval > 0 {
			s.interval = cfg.Interval
		}
		if cfg.MaxRetries > 0 {
			s.maxRetries = cfg.MaxRetries
		}
		if cfg.RetryDelay > 0 {
			s.retryDelay = cfg.RetryDelay
		}
	}
}

// WithInterval sets the period between scheduled syncs.
func WithInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxRetries sets the number of attempts per sync. Default 3.
func WithMaxRetries(n int) Option {
	return func(s *Service) { s.maxRetries = max(n, 1) }
}

// WithRetryDelay sets the delay unit; attempt n waits n times this long.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Service) { s.retryDelay = max(d, 0) }
}
