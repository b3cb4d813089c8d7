package recovery

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/sethvargo/go-retry"
)

// Config controls retries, caching and degraded operation.
// Load it with config.Load[recovery.Config](config.WithPrefix("RECOVERY_")).
type Config struct {
	MaxRetries          int           `env:"MAX_RETRIES" envDefault:"3"`
	BaseDelay           time.Duration `env:"BASE_DELAY" envDefault:"1s"`
	MaxDelay            time.Duration `env:"MAX_DELAY" envDefault:"30s"`
	BackoffMultiplier   float64       `env:"BACKOFF_MULTIPLIER" envDefault:"2.0"`
	JitterFactor        float64       `env:"JITTER_FACTOR" envDefault:"0.1"`
	CacheTTL            time.Duration `env:"CACHE_TTL" envDefault:"30m"`
	OperationTimeout    time.Duration `env:"OPERATION_TIMEOUT" envDefault:"15s"`
	GracefulDegradation bool          `env:"GRACEFUL_DEGRADATION" envDefault:"true"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxRetries:          3,
		BaseDelay:           time.Second,
		MaxDelay:            30 * time.Second,
		BackoffMultiplier:   2.0,
		JitterFactor:        0.1,
		CacheTTL:            30 * time.Minute,
		OperationTimeout:    15 * time.Second,
		GracefulDegradation: true,
	}
}

// Delay returns the backoff before retry n without jitter. The first
// attempt (n == 0) is not delayed. For n >= 1 the result lies within
// [BaseDelay, MaxDelay] and never decreases as n grows.
func (c Config) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	d := float64(c.BaseDelay) * math.Pow(c.BackoffMultiplier, float64(n-1))
	d = max(d, float64(c.BaseDelay))
	if c.MaxDelay > 0 {
		d = min(d, float64(c.MaxDelay))
	}
	return time.Duration(d)
}

// jittered adds a random share of up to JitterFactor to d.
func (c Config) jittered(d time.Duration) time.Duration {
	if c.JitterFactor <= 0 || d <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*c.JitterFactor*float64(d))
}

// Backoff returns a fresh go-retry backoff yielding Delay(1), Delay(2), ...
// plus jitter, stopping after MaxRetries retries.
func (c Config) Backoff() retry.Backoff {
	n := 0
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return c.jittered(c.Delay(n)), false
	})
	return retry.WithMaxRetries(uint64(max(c.MaxRetries, 0)), next)
}
