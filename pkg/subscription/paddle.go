package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/dmitrymomot/arcana/pkg/broadcast"
	"github.com/dmitrymomot/arcana/pkg/clock"
)

// PaddleSignatureHeader carries the webhook HMAC signature.
const PaddleSignatureHeader = "Paddle-Signature"

// PaddleConfig holds configuration for the Paddle billing platform.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	CustomerID    string `env:"PADDLE_CUSTOMER_ID"` // Paddle customer (ctm_...) this instance serves
	MysticPriceID string `env:"PADDLE_PRICE_MYSTIC"`
	OraclePriceID string `env:"PADDLE_PRICE_ORACLE"`
	CheckoutURL   string `env:"PADDLE_CHECKOUT_URL"` // approved domain page hosting Paddle.js
}

// LinkOpener presents a URL to the user, e.g. a checkout or portal page.
type LinkOpener interface {
	OpenLink(ctx context.Context, url string) error
}

// LinkOpenerFunc adapts a function to LinkOpener.
type LinkOpenerFunc func(ctx context.Context, url string) error

func (f LinkOpenerFunc) OpenLink(ctx context.Context, url string) error { return f(ctx, url) }

// PaddlePlatform is a webhook-driven Service backed by Paddle Billing.
// Purchases open a hosted checkout; the resulting status arrives later
// through HandleWebhook.
type PaddlePlatform struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
	opener   LinkOpener
	clock    clock.Clock
	logger   *slog.Logger
	products []Product

	mu       sync.Mutex
	status   Status
	history  []HistoryEntry
	pending  bool
	disposed bool
	stream   *broadcast.Replay[Status]
}

var _ Service = (*PaddlePlatform)(nil)

// PaddleOption configures a PaddlePlatform.
type PaddleOption func(*PaddlePlatform)

// WithPaddleClock sets the clock used for status timestamps.
func WithPaddleClock(c clock.Clock) PaddleOption {
	return func(p *PaddlePlatform) { p.clock = clock.OrSystem(c) }
}

// WithPaddleLogger sets the platform logger.
func WithPaddleLogger(l *slog.Logger) PaddleOption {
	return func(p *PaddlePlatform) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithLinkOpener sets where checkout and portal links are sent.
func WithLinkOpener(o LinkOpener) PaddleOption {
	return func(p *PaddlePlatform) {
		if o != nil {
			p.opener = o
		}
	}
}

// NewPaddlePlatform creates a Paddle-backed platform. No network calls are
// made until an operation needs the Paddle API.
func NewPaddlePlatform(config PaddleConfig, opts ...PaddleOption) (*PaddlePlatform, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingSecret
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnv, config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	p := &PaddlePlatform{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		config:   config,
		opener:   LinkOpenerFunc(func(context.Context, string) error { return ErrUnsupported }),
		clock:    clock.System(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.products = p.catalog()
	p.status = FreeStatus(p.clock.Now())
	p.stream = broadcast.NewReplayWith(8, p.status.Clone())
	return p, nil
}

// catalog maps configured price ids onto the default products.
func (p *PaddlePlatform) catalog() []Product {
	var out []Product
	for _, prod := range DefaultProducts() {
		if id := p.priceFor(prod.Tier); id != "" {
			prod.ID = id
			out = append(out, prod)
		}
	}
	return out
}

func (p *PaddlePlatform) priceFor(t Tier) string {
	switch t {
	case TierMystic:
		return p.config.MysticPriceID
	case TierOracle:
		return p.config.OraclePriceID
	default:
		return ""
	}
}

// TierForPrice resolves a Paddle price id to a tier.
func (p *PaddlePlatform) TierForPrice(priceID string) (Tier, bool) {
	for _, prod := range p.products {
		if prod.ID == priceID {
			return prod.Tier, true
		}
	}
	return TierSeeker, false
}

func (p *PaddlePlatform) GetSubscriptionStatus(ctx context.Context) (Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return Status{}, NewError(KindUnknown, "status", "", ErrDisposed)
	}
	return p.status.Clone(), nil
}

func (p *PaddlePlatform) SubscriptionStatusStream(ctx context.Context) broadcast.Subscriber[Status] {
	return p.stream.Subscribe(ctx)
}

// GetAvailableProducts lists the products that have a configured price id.
func (p *PaddlePlatform) GetAvailableProducts(ctx context.Context) ([]Product, error) {
	return slices.Clone(p.products), nil
}

// PurchaseSubscription creates a Paddle transaction and opens its checkout.
// The purchase stays pending until a webhook confirms it.
func (p *PaddlePlatform) PurchaseSubscription(ctx context.Context, productID string) (bool, error) {
	const op = "purchase"

	product, ok := FindProduct(p.products, productID)
	if !ok {
		return false, NewError(KindInvalidProduct, op, "unknown price "+productID, nil)
	}
	current, _ := p.GetSubscriptionStatus(ctx)
	if current.IsValidAt(p.clock.Now()) && current.Tier == product.Tier && current.PlatformSubscriptionID != nil {
		return false, NewError(KindAlreadySubscribed, op, "already subscribed to "+product.Tier.String(), nil)
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  product.ID,
		Quantity: 1,
	})
	req := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{"tier": product.Tier.String()},
	}
	if p.config.CustomerID != "" {
		req.CustomerID = paddle.PtrTo(p.config.CustomerID)
	}
	if p.config.CheckoutURL != "" {
		req.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(p.config.CheckoutURL)}
	}

	txn, err := p.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return false, NewError(KindPlatform, op, "create transaction", err)
	}
	if txn.Checkout == nil || txn.Checkout.URL == nil {
		return false, NewError(KindPlatform, op, "", ErrNoCheckoutURL)
	}
	if err := p.opener.OpenLink(ctx, *txn.Checkout.URL); err != nil {
		return false, NewError(KindPlatform, op, "open checkout", err)
	}

	p.mu.Lock()
	p.pending = true
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "paddle checkout opened",
		slog.String("transaction_id", txn.ID),
		slog.String("price_id", product.ID))
	return true, nil
}

// RestoreSubscriptions reports whether a paid subscription is on record.
// Paddle has no client-side restore flow; webhooks are the source of truth.
func (p *PaddlePlatform) RestoreSubscriptions(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.PlatformSubscriptionID == nil || p.status.Tier == TierSeeker {
		return false, nil
	}
	p.history = append(p.history, newHistoryEntry(p.status.Tier, "", EventRestored, p.clock.Now()))
	p.publish(ctx, p.status.WithLastUpdated(p.clock.Now()))
	return true, nil
}

func (p *PaddlePlatform) RefreshSubscriptionStatus(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publish(ctx, p.status.WithLastUpdated(p.clock.Now()))
	return nil
}

func (p *PaddlePlatform) VerifySubscriptionStatus(ctx context.Context) (Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	next := p.status.WithLastUpdated(now)
	if next.IsActive && next.IsExpiredAt(now) {
		next = next.WithActive(false)
		p.history = append(p.history, newHistoryEntry(next.Tier, "", EventExpired, now))
	}
	p.publish(ctx, next)
	return next.Clone(), nil
}

// CancelSubscription opens the customer portal's cancellation page.
func (p *PaddlePlatform) CancelSubscription(ctx context.Context) error {
	urls, err := p.portal(ctx, "cancel")
	if err != nil {
		return err
	}
	target := urls.general
	if urls.cancel != "" {
		target = urls.cancel
	}
	if err := p.opener.OpenLink(ctx, target); err != nil {
		return NewError(KindPlatform, "cancel", "open portal", err)
	}
	return nil
}

func (p *PaddlePlatform) OpenSubscriptionManagement(ctx context.Context) error {
	urls, err := p.portal(ctx, "manage")
	if err != nil {
		return err
	}
	if err := p.opener.OpenLink(ctx, urls.general); err != nil {
		return NewError(KindPlatform, "manage", "open portal", err)
	}
	return nil
}

type portalURLs struct {
	general string
	cancel  string
}

func (p *PaddlePlatform) portal(ctx context.Context, op string) (portalURLs, error) {
	if p.config.CustomerID == "" {
		return portalURLs{}, NewError(KindPlatform, op, "", ErrMissingCustomerID)
	}
	status, _ := p.GetSubscriptionStatus(ctx)
	subID := status.SubscriptionID()
	if subID == "" {
		return portalURLs{}, NewError(KindUnknown, op, "", ErrNoSubscription)
	}

	session, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, &paddle.CreateCustomerPortalSessionRequest{
		CustomerID:      p.config.CustomerID,
		SubscriptionIDs: []string{subID},
	})
	if err != nil {
		return portalURLs{}, NewError(KindPlatform, op, "create portal session", err)
	}

	urls := portalURLs{general: session.URLs.General.Overview}
	for _, s := range session.URLs.Subscriptions {
		if s.ID == subID {
			urls.cancel = s.CancelSubscription
			break
		}
	}
	if urls.general == "" {
		return portalURLs{}, NewError(KindPlatform, op, "", ErrNoPortalURL)
	}
	return urls, nil
}

// GetSubscriptionHistory returns the purchases seen by this process.
func (p *PaddlePlatform) GetSubscriptionHistory(ctx context.Context) ([]HistoryEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.history), nil
}

func (p *PaddlePlatform) HasPendingChanges(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending, nil
}

func (p *PaddlePlatform) Dispose() error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil
	}
	p.disposed = true
	p.mu.Unlock()
	return p.stream.Close()
}

// paddleEvent is the subset of a Paddle notification payload we consume.
type paddleEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       struct {
		ID             string  `json:"id"`
		Status         string  `json:"status"`
		SubscriptionID *string `json:"subscription_id"`
		Items          []struct {
			PriceID string `json:"price_id"`
			Price   struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"items"`
		CurrentBillingPeriod *struct {
			EndsAt time.Time `json:"ends_at"`
		} `json:"current_billing_period"`
	} `json:"data"`
}

func (e paddleEvent) priceID() string {
	for _, it := range e.Data.Items {
		if it.Price.ID != "" {
			return it.Price.ID
		}
		if it.PriceID != "" {
			return it.PriceID
		}
	}
	return ""
}

// HandleWebhook verifies a Paddle notification and applies it to the status.
// Unhandled event types are acknowledged and ignored.
func (p *PaddlePlatform) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhooks/paddle", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set(PaddleSignatureHeader, signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWebhookSignature, err)
	}
	if !valid {
		return ErrWebhookSignature
	}

	var evt paddleEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return ErrDisposed
	}

	now := p.clock.Now()
	switch {
	case strings.HasPrefix(evt.EventType, "subscription."):
		p.applySubscription(ctx, evt, now)
	case evt.EventType == "transaction.completed":
		// The subscription.* notification that follows carries the period.
		p.pending = evt.Data.SubscriptionID != nil
	default:
		p.logger.DebugContext(ctx, "paddle webhook ignored", slog.String("event_type", evt.EventType))
	}
	return nil
}

func (p *PaddlePlatform) applySubscription(ctx context.Context, evt paddleEvent, now time.Time) {
	priceID := evt.priceID()
	tier, ok := p.TierForPrice(priceID)
	if !ok {
		p.logger.WarnContext(ctx, "paddle webhook for unknown price",
			slog.String("event_type", evt.EventType),
			slog.String("price_id", priceID))
		return
	}

	next := Status{
		Tier:        tier,
		UsageCounts: p.status.UsageCounts,
		LastUpdated: now,
	}.WithPlatformSubscriptionID(evt.Data.ID)
	if evt.Data.CurrentBillingPeriod != nil {
		next = next.WithExpiration(&evt.Data.CurrentBillingPeriod.EndsAt)
	}

	var event HistoryEvent
	switch evt.Data.Status {
	case "active", "trialing", "past_due":
		next.IsActive = true
		event = EventRenewed
		if evt.EventType == "subscription.created" || p.status.SubscriptionID() != evt.Data.ID {
			event = EventPurchased
		}
	case "canceled":
		next = FreeStatus(now).WithUsageCounts(p.status.UsageCounts)
		event = EventCancelled
	default: // paused
		next.IsActive = false
		event = EventExpired
	}

	p.pending = false
	p.history = append(p.history, newHistoryEntry(tier, priceID, event, now))
	p.publish(ctx, next)
	p.logger.InfoContext(ctx, "paddle subscription updated",
		slog.String("event_type", evt.EventType),
		slog.String("subscription_id", evt.Data.ID),
		slog.String("tier", next.Tier.String()),
		slog.Bool("active", next.IsActive))
}

func (p *PaddlePlatform) publish(ctx context.Context, s Status) {
	p.status = s.Clone()
	_ = p.stream.Publish(ctx, s.Clone())
}
