package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arcana/pkg/connectivity"
	"github.com/dmitrymomot/arcana/pkg/feature"
	"github.com/dmitrymomot/arcana/pkg/kv"
	"github.com/dmitrymomot/arcana/pkg/limits"
	"github.com/dmitrymomot/arcana/pkg/recovery"
	"github.com/dmitrymomot/arcana/pkg/subscription"
	"github.com/dmitrymomot/arcana/pkg/usage"
	"github.com/dmitrymomot/arcana/svc/api"
	"github.com/dmitrymomot/arcana/svc/resilient"
	"github.com/dmitrymomot/arcana/svc/subsync"
)

// portalPlatform sends management requests to a fixed portal URL.
type portalPlatform struct {
	*subscription.MockPlatform
}

func (p portalPlatform) OpenSubscriptionManagement(ctx context.Context) error {
	if err := p.MockPlatform.OpenSubscriptionManagement(ctx); err != nil {
		return err
	}
	return api.LinkCollector().OpenLink(ctx, "https://portal.example/overview")
}

type stubWebhooks struct{ err error }

func (s stubWebhooks) HandleWebhook(context.Context, []byte, string) error { return s.err }

type env struct {
	srv      *httptest.Server
	platform *subscription.MockPlatform
	monitor  *connectivity.ManualMonitor
	gate     *feature.Gate
}

func setup(t *testing.T, opts ...api.Option) env {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	cfg := recovery.DefaultConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond

	store := kv.NewMemory()
	platform := subscription.NewMockPlatform()
	monitor := connectivity.NewManualMonitor(connectivity.StateConnected)
	handler := recovery.NewHandler(cfg, recovery.WithStore(store))
	svc := resilient.New(portalPlatform{platform}, monitor, handler, resilient.WithSettleDelay(time.Millisecond))
	gate := feature.NewGate(limits.DefaultPolicy(), usage.New(store))
	sync := subsync.New(svc, handler, store,
		subsync.WithRetryDelay(time.Millisecond),
		subsync.WithMaxRetries(1),
		subsync.WithStatusListener(gate.UpdateSubscriptionStatus))

	go func() { _ = gate.Follow(ctx, svc.SubscriptionStatusStream(ctx)) }()

	srv := httptest.NewServer(api.New(gate, svc, sync, opts...).Router())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		_ = sync.Close()
		_ = svc.Dispose()
	})
	return env{srv: srv, platform: platform, monitor: monitor, gate: gate}
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *api.ErrorDetail `json:"error"`
}

func do(t *testing.T, e env, method, path, body string) (*http.Response, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestStatus(t *testing.T) {
	t.Parallel()
	e := setup(t)

	resp, body := do(t, e, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[struct {
		Tier   string                 `json:"tier"`
		Access limits.FeatureAccess   `json:"access"`
		Usage  []feature.UsageSummary `json:"usage"`
	}](t, body.Data)
	assert.Equal(t, "seeker", got.Tier)
	assert.Equal(t, 10, got.Access.MaxReadings)
	assert.Len(t, got.Usage, len(limits.UsageLimitedFeatures()))
}

func TestConsumeUntilLimit(t *testing.T) {
	t.Parallel()
	e := setup(t)

	for i := 1; i <= 5; i++ {
		resp, _ := do(t, e, http.MethodPost, "/features/manual_interpretations/consume", "")
		require.Equal(t, http.StatusOK, resp.StatusCode, "use %d", i)
	}

	resp, body := do(t, e, http.MethodPost, "/features/manual_interpretations/consume", "")
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "upgrade_required", body.Error.Code)

	got := decode[struct {
		Allowed bool                       `json:"allowed"`
		Upgrade feature.UpgradeRequirement `json:"upgrade"`
	}](t, body.Data)
	assert.False(t, got.Allowed)
	assert.Equal(t, feature.ReasonUsageLimit, got.Upgrade.Reason)
	assert.Equal(t, subscription.TierMystic, got.Upgrade.RequiredTier)
	require.NotNil(t, got.Upgrade.CurrentUsage)
	assert.Equal(t, 5, *got.Upgrade.CurrentUsage)
}

func TestFeatureQueries(t *testing.T) {
	t.Parallel()
	e := setup(t)

	tests := []struct {
		path    string
		allowed bool
		tier    string
	}{
		{"/features/readings", true, ""},
		{"/features/audio_reading", false, "oracle"},
		{"/features/no_such_feature", false, "oracle"},
		{"/spreads/three_card", true, ""},
		{"/spreads/celtic_cross", false, "mystic"},
		{"/guides/kabbalah", false, "oracle"},
	}
	for _, tt := range tests {
		resp, body := do(t, e, http.MethodGet, tt.path, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, tt.path)

		got := decode[struct {
			Allowed bool `json:"allowed"`
			Upgrade *struct {
				RequiredTier string `json:"required_tier"`
			} `json:"upgrade"`
		}](t, body.Data)
		assert.Equal(t, tt.allowed, got.Allowed, tt.path)
		if tt.tier == "" {
			assert.Nil(t, got.Upgrade, tt.path)
		} else if assert.NotNil(t, got.Upgrade, tt.path) {
			assert.Equal(t, tt.tier, got.Upgrade.RequiredTier, tt.path)
		}
	}

	resp, body := do(t, e, http.MethodGet, "/features/customization/upgrade", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	up := decode[struct {
		Upgrade feature.UpgradeRequirement `json:"upgrade"`
		Changes limits.Comparison          `json:"changes"`
	}](t, body.Data)
	assert.Equal(t, feature.ReasonPremiumFeature, up.Upgrade.Reason)
	assert.Equal(t, subscription.TierSeeker, up.Changes.From)
	assert.Equal(t, up.Upgrade.RequiredTier, up.Changes.To)
	assert.Contains(t, up.Changes.NewCapabilities, limits.Customization)
	assert.False(t, up.Changes.IsDowngrade())

	resp, body = do(t, e, http.MethodGet, "/features/readings/upgrade", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body.Data), `"changes"`)
}

func TestPurchaseFlow(t *testing.T) {
	t.Parallel()
	e := setup(t)

	resp, body := do(t, e, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]subscription.Product](t, body.Data), 2)

	resp, body = do(t, e, http.MethodPost, "/purchases", `{"product_id":"`+subscription.ProductMysticMonthly+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"purchased":true}`, string(body.Data))

	require.Eventually(t, func() bool {
		return e.gate.CurrentTier() == subscription.TierMystic
	}, time.Second, 5*time.Millisecond)

	resp, body = do(t, e, http.MethodPost, "/purchases", `{"product_id":"`+subscription.ProductMysticMonthly+`"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "already_subscribed", body.Error.Code)

	resp, body = do(t, e, http.MethodGet, "/history", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]subscription.HistoryEntry](t, body.Data), 1)
}

func TestPurchaseValidation(t *testing.T) {
	t.Parallel()
	e := setup(t)

	tests := []struct {
		name string
		body string
		code int
		err  string
	}{
		{"unknown field", `{"product":"x"}`, http.StatusBadRequest, "bad_request"},
		{"trailing data", `{"product_id":"x"}{}`, http.StatusBadRequest, "bad_request"},
		{"missing product", `{}`, http.StatusUnprocessableEntity, "validation_error"},
		{"unknown product", `{"product_id":"gold"}`, http.StatusBadRequest, "invalid_product"},
	}
	for _, tt := range tests {
		resp, body := do(t, e, http.MethodPost, "/purchases", tt.body)
		assert.Equal(t, tt.code, resp.StatusCode, tt.name)
		if assert.NotNil(t, body.Error, tt.name) {
			assert.Equal(t, tt.err, body.Error.Code, tt.name)
		}
	}

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/purchases", strings.NewReader(`{"product_id":"x"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOfflinePurchase(t *testing.T) {
	t.Parallel()
	e := setup(t)
	e.monitor.Set(connectivity.StateDisconnected)

	resp, body := do(t, e, http.MethodPost, "/purchases", `{"product_id":"`+subscription.ProductOracleMonthly+`"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "network", body.Error.Code)
	assert.NotEmpty(t, body.Error.Message)
	assert.NotEmpty(t, body.Error.Suggestions)
	assert.Zero(t, e.platform.Calls(subscription.OpPurchase))
}

func TestManageReturnsPortalLink(t *testing.T) {
	t.Parallel()
	e := setup(t)

	resp, body := do(t, e, http.MethodPost, "/manage", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"redirect_url":"https://portal.example/overview"}`, string(body.Data))

	assert.ErrorIs(t, api.LinkCollector().OpenLink(context.Background(), "https://x"), subscription.ErrUnsupported)
}

func TestRestoreAndSync(t *testing.T) {
	t.Parallel()
	e := setup(t)

	resp, body := do(t, e, http.MethodPost, "/restore", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"result":"no_subscriptions_found"}`, string(body.Data))

	resp, _ = do(t, e, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, body = do(t, e, http.MethodGet, "/sync", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body.Data), `"overdue":true`)

	resp, body = do(t, e, http.MethodPost, "/sync", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[struct {
		Status   string     `json:"status"`
		LastSync *time.Time `json:"last_sync"`
		Overdue  bool       `json:"overdue"`
	}](t, body.Data)
	assert.Equal(t, "success", got.Status)
	assert.NotNil(t, got.LastSync)
	assert.False(t, got.Overdue)

	resp, _ = do(t, e, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, e, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	e.platform.SetFaults(subscription.FailAlways(subscription.KindServer, subscription.OpRefresh))
	resp, body = do(t, e, http.MethodPost, "/sync", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "sync_failed", body.Error.Code)
}

func TestWebhooks(t *testing.T) {
	t.Parallel()

	t.Run("not mounted without handler", func(t *testing.T) {
		t.Parallel()
		e := setup(t)
		resp, _ := do(t, e, http.MethodPost, "/webhooks/paddle", `{}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()
		e := setup(t, api.WithWebhooks(stubWebhooks{}))
		resp, _ := do(t, e, http.MethodPost, "/webhooks/paddle", `{}`)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()
		e := setup(t, api.WithWebhooks(stubWebhooks{err: subscription.ErrWebhookSignature}))
		resp, body := do(t, e, http.MethodPost, "/webhooks/paddle", `{}`)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotNil(t, body.Error)
		assert.Equal(t, "invalid_signature", body.Error.Code)
	})

	t.Run("processing failure", func(t *testing.T) {
		t.Parallel()
		e := setup(t, api.WithWebhooks(stubWebhooks{err: errors.New("decode")}))
		resp, _ := do(t, e, http.MethodPost, "/webhooks/paddle", `{}`)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	e := setup(t)

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/health/live", nil)
	require.NoError(t, err)
	req.Header.Set(api.RequestIDHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(api.RequestIDHeader))

	req.Header.Set(api.RequestIDHeader, "bad id!")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEqual(t, "bad id!", resp.Header.Get(api.RequestIDHeader))
	assert.Len(t, resp.Header.Get(api.RequestIDHeader), 36)

	extract := api.RequestIDExtractor()
	_, found := extract(context.Background())
	assert.False(t, found)
}
