package subscription

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/arcana/pkg/broadcast"
	"github.com/dmitrymomot/arcana/pkg/clock"
)

// PurchaseTerm is how long a MockPlatform purchase stays valid.
const PurchaseTerm = 30 * 24 * time.Hour

// MockPlatform is an in-memory billing platform. It behaves like a store
// billing backend and supports deterministic fault injection, which makes it
// the reference Service for tests and local development.
type MockPlatform struct {
	mu           sync.Mutex
	clock        clock.Clock
	faults       FaultPolicy
	latency      time.Duration
	products     []Product
	status       Status
	lastPurchase *Status
	lastProduct  string
	history      []HistoryEntry
	calls        map[Op]int
	cancelNext   bool
	pending      bool
	autoRenew    bool
	disposed     bool
	stream       *broadcast.Replay[Status]
}

var _ Service = (*MockPlatform)(nil)

// MockOption configures a MockPlatform.
type MockOption func(*MockPlatform)

// WithMockClock sets the clock used for purchase and expiry times.
func WithMockClock(c clock.Clock) MockOption {
	return func(m *MockPlatform) { m.clock = clock.OrSystem(c) }
}

// WithFaults installs a fault policy. Nil restores NoFaults.
func WithFaults(p FaultPolicy) MockOption {
	return func(m *MockPlatform) {
		if p == nil {
			p = NoFaults()
		}
		m.faults = p
	}
}

// WithLatency delays every operation by d.
func WithLatency(d time.Duration) MockOption {
	return func(m *MockPlatform) { m.latency = max(d, 0) }
}

// WithProducts replaces the default catalog.
func WithProducts(products []Product) MockOption {
	return func(m *MockPlatform) { m.products = slices.Clone(products) }
}

// WithInitialStatus sets the status before any purchase.
func WithInitialStatus(s Status) MockOption {
	return func(m *MockPlatform) { m.status = s.Clone() }
}

// NewMockPlatform creates a platform with the default catalog and a free status.
func NewMockPlatform(opts ...MockOption) *MockPlatform {
	m := &MockPlatform{
		clock:    clock.System(),
		faults:   NoFaults(),
		products: DefaultProducts(),
		calls:    make(map[Op]int),
	}
	m.status = FreeStatus(time.Time{})
	for _, opt := range opts {
		opt(m)
	}
	if m.status.LastUpdated.IsZero() {
		m.status = m.status.WithLastUpdated(m.clock.Now())
	}
	m.stream = broadcast.NewReplayWith(8, m.status.Clone())
	return m
}

// Calls returns how many times op reached the platform, faults included.
func (m *MockPlatform) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// SetFaults replaces the fault policy.
func (m *MockPlatform) SetFaults(p FaultPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	WithFaults(p)(m)
}

// SimulateCancel makes the next purchase end as if the user backed out.
func (m *MockPlatform) SimulateCancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelNext = true
}

// SetPending marks a completed but unreconciled purchase.
func (m *MockPlatform) SetPending(pending bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = pending
}

// SetStatus replaces the platform status and publishes it.
func (m *MockPlatform) SetStatus(ctx context.Context, s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatus(ctx, s)
}

// AutoRenew reports whether the current subscription renews.
func (m *MockPlatform) AutoRenew() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autoRenew
}

func (m *MockPlatform) GetSubscriptionStatus(ctx context.Context) (Status, error) {
	if err := m.begin(ctx, OpStatus); err != nil {
		return Status{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Clone(), nil
}

func (m *MockPlatform) SubscriptionStatusStream(ctx context.Context) broadcast.Subscriber[Status] {
	return m.stream.Subscribe(ctx)
}

func (m *MockPlatform) GetAvailableProducts(ctx context.Context) ([]Product, error) {
	if err := m.begin(ctx, OpProducts); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.products), nil
}

func (m *MockPlatform) PurchaseSubscription(ctx context.Context, productID string) (bool, error) {
	if err := m.begin(ctx, OpPurchase); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	product, ok := FindProduct(m.products, productID)
	if !ok {
		return false, NewError(KindInvalidProduct, string(OpPurchase), "product "+productID+" is not available", nil)
	}
	now := m.clock.Now()
	if m.status.IsValidAt(now) && m.status.Tier == product.Tier && m.status.PlatformSubscriptionID != nil {
		return false, NewError(KindAlreadySubscribed, string(OpPurchase), "already subscribed to "+product.Tier.String(), nil)
	}
	if m.cancelNext {
		m.cancelNext = false
		return false, nil
	}

	exp := now.Add(PurchaseTerm)
	next := Status{
		Tier:        product.Tier,
		IsActive:    true,
		UsageCounts: m.status.UsageCounts,
		LastUpdated: now,
	}.WithExpiration(&exp).WithPlatformSubscriptionID(uuid.NewString())

	purchased := next.Clone()
	m.lastPurchase = &purchased
	m.lastProduct = product.ID
	m.autoRenew = true
	m.pending = false
	m.history = append(m.history, newHistoryEntry(product.Tier, product.ID, EventPurchased, now))
	m.setStatus(ctx, next)
	return true, nil
}

func (m *MockPlatform) RestoreSubscriptions(ctx context.Context) (bool, error) {
	if err := m.begin(ctx, OpRestore); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastPurchase == nil {
		return false, nil
	}
	now := m.clock.Now()
	restored := m.lastPurchase.WithUsageCounts(m.status.UsageCounts).WithLastUpdated(now)
	m.history = append(m.history, newHistoryEntry(restored.Tier, m.lastProduct, EventRestored, now))
	m.setStatus(ctx, restored)
	return true, nil
}

func (m *MockPlatform) RefreshSubscriptionStatus(ctx context.Context) error {
	if err := m.begin(ctx, OpRefresh); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatus(ctx, m.status.WithLastUpdated(m.clock.Now()))
	return nil
}

// VerifySubscriptionStatus deactivates an expired paid subscription and
// records the expiry in the history.
func (m *MockPlatform) VerifySubscriptionStatus(ctx context.Context) (Status, error) {
	if err := m.begin(ctx, OpVerify); err != nil {
		return Status{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	next := m.status.WithLastUpdated(now)
	if next.IsActive && next.IsExpiredAt(now) {
		next = next.WithActive(false)
		m.autoRenew = false
		m.history = append(m.history, newHistoryEntry(next.Tier, m.lastProduct, EventExpired, now))
	}
	m.pending = false
	m.setStatus(ctx, next)
	return next.Clone(), nil
}

// CancelSubscription turns auto-renew off. Access continues until expiry.
func (m *MockPlatform) CancelSubscription(ctx context.Context) error {
	if err := m.begin(ctx, OpCancel); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status.PlatformSubscriptionID == nil {
		return NewError(KindUnknown, string(OpCancel), "nothing to cancel", ErrNoSubscription)
	}
	m.autoRenew = false
	m.history = append(m.history, newHistoryEntry(m.status.Tier, m.lastProduct, EventCancelled, m.clock.Now()))
	return nil
}

func (m *MockPlatform) OpenSubscriptionManagement(ctx context.Context) error {
	return m.begin(ctx, OpManage)
}

func (m *MockPlatform) GetSubscriptionHistory(ctx context.Context) ([]HistoryEntry, error) {
	if err := m.begin(ctx, OpHistory); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history), nil
}

func (m *MockPlatform) HasPendingChanges(ctx context.Context) (bool, error) {
	if err := m.begin(ctx, OpPending); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, nil
}

func (m *MockPlatform) Dispose() error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil
	}
	m.disposed = true
	m.mu.Unlock()
	return m.stream.Close()
}

// begin counts the call, applies latency and consults the fault policy.
func (m *MockPlatform) begin(ctx context.Context, op Op) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return NewError(KindUnknown, string(op), "", ErrDisposed)
	}
	m.calls[op]++
	call := m.calls[op]
	faults := m.faults
	latency := m.latency
	m.mu.Unlock()

	if latency > 0 {
		t := time.NewTimer(latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return NewError(KindNetwork, string(op), "request aborted", ctx.Err())
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return NewError(KindNetwork, string(op), "request aborted", err)
	}
	return faults.Fault(op, call)
}

func (m *MockPlatform) setStatus(ctx context.Context, s Status) {
	m.status = s.Clone()
	_ = m.stream.Publish(ctx, s.Clone())
}
