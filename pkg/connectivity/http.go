package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrymomot/arcana/pkg/broadcast"
	"github.com/dmitrymomot/arcana/pkg/logger"
)

// Config controls the HTTP probe.
type Config struct {
	ProbeURL string        `env:"CONNECTIVITY_PROBE_URL" envDefault:"https://api.paddle.com/"`
	Interval time.Duration `env:"CONNECTIVITY_INTERVAL" envDefault:"30s"`
	Timeout  time.Duration `env:"CONNECTIVITY_TIMEOUT" envDefault:"5s"`
}

// HTTPMonitor considers the platform reachable when a request to ProbeURL
// gets any response below 500 within Timeout.
type HTTPMonitor struct {
	state
	cfg    Config
	client *http.Client
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// HTTPOption configures an HTTPMonitor.
type HTTPOption func(*HTTPMonitor)

// WithHTTPClient sets the client used for reachability checks.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(m *HTTPMonitor) {
		if c != nil {
			m.client = c
		}
	}
}

// WithLogger sets the logger. Nil selects a discarding logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(m *HTTPMonitor) { m.logger = logger.OrDiscard(l) }
}

// NewHTTPMonitor creates a monitor that probes cfg.ProbeURL. It reports
// StateUnknown until Start runs the first check.
func NewHTTPMonitor(cfg Config, opts ...HTTPOption) *HTTPMonitor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	m := &HTTPMonitor{
		state:  newState(),
		cfg:    cfg,
		client: http.DefaultClient,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("connectivity"))
	return m
}

// Start probes immediately and then every Interval until ctx ends or Close
// is called. Calling Start on a running monitor is a no-op.
func (m *HTTPMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		m.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

// Current returns the last observed state.
func (m *HTTPMonitor) Current() State { return m.current() }

// Subscribe replays the current state and every change after it.
func (m *HTTPMonitor) Subscribe(ctx context.Context) broadcast.Subscriber[State] {
	return m.stream.Subscribe(ctx)
}

// Check probes ProbeURL once and publishes the result.
func (m *HTTPMonitor) Check(ctx context.Context) State {
	s := m.probe(ctx)
	if ctx.Err() != nil {
		return m.current()
	}
	if m.set(ctx, s) {
		m.logger.InfoContext(ctx, "connectivity changed", slog.String("state", s.String()))
	}
	return s
}

func (m *HTTPMonitor) probe(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.cfg.ProbeURL, nil)
	if err != nil {
		m.logger.ErrorContext(ctx, "invalid probe request", logger.Error(err))
		return StateDisconnected
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.DebugContext(ctx, "probe failed", logger.Error(err))
		return StateDisconnected
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return StateDisconnected
	}
	return StateConnected
}

// Close stops probing and closes all subscriptions.
func (m *HTTPMonitor) Close() error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
	return m.stream.Close()
}
