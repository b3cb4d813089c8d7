package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/arcana/pkg/clock"
	"github.com/dmitrymomot/arcana/pkg/kv"
	"github.com/dmitrymomot/arcana/pkg/logger"
)

const (
	countKeyPrefix = "usage:count:"
	featuresKey    = "usage:features"
	historyKey     = "usage:history"
	lastResetKey   = "usage:last_reset"

	// DefaultHistoryLimit is how many archived periods are kept per feature.
	DefaultHistoryLimit = 12
)

// HistoryRecord is one archived monthly counter.
type HistoryRecord struct {
	Count       int        `json:"count"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	ArchivedAt  time.Time  `json:"archived_at"`
}

// Tracker meters feature usage. It is safe for concurrent use.
type Tracker struct {
	store        kv.Store
	clock        clock.Clock
	logger       *slog.Logger
	historyLimit int

	// mu serializes the tracked-feature registry and resets against
	// increments issued by this process.
	mu sync.Mutex
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock that decides the current month.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = clock.OrSystem(c) }
}

// WithLogger sets the logger. Nil selects a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger.OrDiscard(l) }
}

// WithHistoryLimit sets how many periods are archived per feature.
// Values below 1 are ignored.
func WithHistoryLimit(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.historyLimit = n
		}
	}
}

// New creates a Tracker over store.
func New(store kv.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:        store,
		clock:        clock.System(),
		logger:       logger.Discard(),
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(logger.Component("usage"))
	return t
}

func countKey(feature string) string { return countKeyPrefix + feature }

// GetUsageCount returns the current monthly count of feature. Missing
// counters and storage failures read as 0.
func (t *Tracker) GetUsageCount(ctx context.Context, feature string) int {
	n, err := t.store.GetInt(ctx, countKey(feature))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			t.logger.WarnContext(ctx, "failed to read usage counter", logger.Feature(feature), logger.Error(err))
		}
		return 0
	}
	return int(max(n, 0))
}

// IncrementUsage adds one use of feature and returns the new count.
func (t *Tracker) IncrementUsage(ctx context.Context, feature string) (int, error) {
	if feature == "" {
		return 0, ErrEmptyFeature
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.track(ctx, feature); err != nil {
		return 0, err
	}

	if inc, ok := t.store.(kv.Incrementer); ok {
		n, err := inc.Incr(ctx, countKey(feature), 1)
		if err != nil {
			return 0, errors.Join(ErrStorage, err)
		}
		return int(n), nil
	}

	next := t.GetUsageCount(ctx, feature) + 1
	if err := t.store.SetInt(ctx, countKey(feature), int64(next)); err != nil {
		return 0, errors.Join(ErrStorage, err)
	}
	return next, nil
}

// track adds feature to the tracked set. Caller holds t.mu.
func (t *Tracker) track(ctx context.Context, feature string) error {
	features, err := t.store.GetStrings(ctx, featuresKey)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	if slices.Contains(features, feature) {
		return nil
	}
	if err := t.store.SetStrings(ctx, featuresKey, append(features, feature)); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

// TrackedFeatures returns every feature that has been incremented since the
// last clear.
func (t *Tracker) TrackedFeatures(ctx context.Context) []string {
	features, err := t.store.GetStrings(ctx, featuresKey)
	if err != nil {
		t.logger.WarnContext(ctx, "failed to read tracked features", logger.Error(err))
		return nil
	}
	return features
}

// GetAllUsage returns a snapshot of every tracked counter.
func (t *Tracker) GetAllUsage(ctx context.Context) map[string]int {
	features := t.TrackedFeatures(ctx)
	out := make(map[string]int, len(features))
	for _, f := range features {
		out[f] = t.GetUsageCount(ctx, f)
	}
	return out
}

// ResetMonthlyUsage archives every tracked counter, zeroes it and records
// the reset time. The archive is written in a single store operation.
func (t *Tracker) ResetMonthlyUsage(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reset(ctx)
}

func (t *Tracker) reset(ctx context.Context) error {
	now := t.clock.Now()
	features := t.TrackedFeatures(ctx)
	history := t.loadHistory(ctx)

	var periodStart *time.Time
	if last, ok := t.LastReset(ctx); ok {
		periodStart = &last
	}

	for _, f := range features {
		records := append(history[f], HistoryRecord{
			Count:       t.GetUsageCount(ctx, f),
			PeriodStart: periodStart,
			ArchivedAt:  now,
		})
		if over := len(records) - t.historyLimit; over > 0 {
			records = records[over:]
		}
		history[f] = records
	}

	blob, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode usage history: %w", err)
	}
	if err := t.store.SetString(ctx, historyKey, string(blob)); err != nil {
		return errors.Join(ErrStorage, err)
	}

	var errs []error
	for _, f := range features {
		if err := t.store.SetInt(ctx, countKey(f), 0); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.store.SetString(ctx, lastResetKey, now.Format(time.RFC3339Nano)); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrStorage}, errs...)...)
	}

	t.logger.InfoContext(ctx, "monthly usage reset", slog.Int("features", len(features)))
	return nil
}

// ShouldResetMonthlyUsage reports whether no reset has happened yet or the
// last one was in an earlier calendar month, in the clock's location.
func (t *Tracker) ShouldResetMonthlyUsage(ctx context.Context) bool {
	last, ok := t.LastReset(ctx)
	if !ok {
		return true
	}
	now := t.clock.Now()
	last = last.In(now.Location())
	return last.Year() != now.Year() || last.Month() != now.Month()
}

// ResetIfNeeded resets the counters when a new month has started. It
// reports whether a reset happened.
func (t *Tracker) ResetIfNeeded(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ShouldResetMonthlyUsage(ctx) {
		return false, nil
	}
	if err := t.reset(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// LastReset returns when the counters were last reset.
func (t *Tracker) LastReset(ctx context.Context) (time.Time, bool) {
	raw, err := t.store.GetString(ctx, lastResetKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			t.logger.WarnContext(ctx, "failed to read last reset", logger.Error(err))
		}
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		t.logger.WarnContext(ctx, "malformed last reset timestamp", slog.String("value", raw), logger.Error(err))
		return time.Time{}, false
	}
	return ts, true
}

// GetUsageHistory returns the archived counts of feature, oldest first.
func (t *Tracker) GetUsageHistory(ctx context.Context, feature string) []HistoryRecord {
	return slices.Clone(t.loadHistory(ctx)[feature])
}

// loadHistory never fails: unreadable history is logged and treated as empty.
func (t *Tracker) loadHistory(ctx context.Context) map[string][]HistoryRecord {
	history := make(map[string][]HistoryRecord)

	raw, err := t.store.GetString(ctx, historyKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			t.logger.WarnContext(ctx, "failed to read usage history", logger.Error(err))
		}
		return history
	}
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		t.logger.WarnContext(ctx, "discarding malformed usage history", logger.Error(err))
		return make(map[string][]HistoryRecord)
	}
	if history == nil {
		// A stored JSON null decodes to a nil map.
		history = make(map[string][]HistoryRecord)
	}
	return history
}

// ClearAllUsage removes counters, history, the tracked set and the reset time.
func (t *Tracker) ClearAllUsage(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := []string{featuresKey, historyKey, lastResetKey}
	for _, f := range t.TrackedFeatures(ctx) {
		keys = append(keys, countKey(f))
	}
	if err := t.store.Delete(ctx, keys...); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}
