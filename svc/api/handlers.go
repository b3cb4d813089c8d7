package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/arcana/pkg/feature"
	"github.com/dmitrymomot/arcana/pkg/limits"
	"github.com/dmitrymomot/arcana/pkg/logger"
	"github.com/dmitrymomot/arcana/pkg/subscription"
	"github.com/dmitrymomot/arcana/svc/subsync"
)

const maxWebhookBody = 1 << 20

type statusResponse struct {
	Subscription subscription.Status    `json:"subscription"`
	Tier         subscription.Tier      `json:"tier"`
	Access       limits.FeatureAccess   `json:"access"`
	Usage        []feature.UsageSummary `json:"usage"`
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := statusResponse{
		Subscription: a.gate.CurrentStatus(),
		Tier:         a.gate.CurrentTier(),
		Access:       a.gate.FeatureAccess(),
	}
	for _, key := range limits.UsageLimitedFeatures() {
		resp.Usage = append(resp.Usage, a.gate.UsageSummary(ctx, key))
	}
	ok(w, resp)
}

type accessResponse struct {
	Feature string                      `json:"feature"`
	Allowed bool                        `json:"allowed"`
	Upgrade *feature.UpgradeRequirement `json:"upgrade,omitempty"`
	Usage   *feature.UsageSummary       `json:"usage,omitempty"`
}

func (a *API) accessFor(r *http.Request, key string) accessResponse {
	ctx := r.Context()
	resp := accessResponse{
		Feature: key,
		Allowed: a.gate.CanAccessFeature(ctx, key),
		Upgrade: a.gate.GetUpgradeRequirement(ctx, key),
	}
	if limits.IsUsageLimited(key) {
		s := a.gate.UsageSummary(ctx, key)
		resp.Usage = &s
	}
	return resp
}

func (a *API) featureAccess(w http.ResponseWriter, r *http.Request) {
	ok(w, a.accessFor(r, chi.URLParam(r, "key")))
}

// consume records one use. A denied use answers 402 with the upgrade
// requirement as data.
func (a *API) consume(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	allowed, err := a.gate.ValidateAndConsumeUsage(r.Context(), key)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "failed to record usage", logger.Feature(key), logger.Error(err))
		fail(w, http.StatusInternalServerError, "storage_error", "usage could not be recorded")
		return
	}
	resp := a.accessFor(r, key)
	resp.Allowed = allowed
	if !allowed {
		writeJSON(w, http.StatusPaymentRequired, Envelope{
			Data:  resp,
			Error: &ErrorDetail{Code: "upgrade_required", Message: "this feature requires a higher tier"},
		})
		return
	}
	ok(w, resp)
}

// upgrade reports what would unlock key. When an upgrade is needed the
// response also lists everything the required tier changes.
func (a *API) upgrade(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	req := a.gate.GetUpgradeRequirement(r.Context(), key)
	resp := map[string]any{"feature": key, "upgrade": req}
	if req != nil {
		resp["changes"] = a.gate.UpgradePreview(req.RequiredTier)
	}
	ok(w, resp)
}

type contentAccess struct {
	ID      string                      `json:"id"`
	Allowed bool                        `json:"allowed"`
	Upgrade *feature.UpgradeRequirement `json:"upgrade,omitempty"`
}

func (a *API) spread(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok(w, contentAccess{ID: id, Allowed: a.gate.CanAccessSpread(id), Upgrade: a.gate.GetUpgradeRequirementForSpread(id)})
}

func (a *API) guide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok(w, contentAccess{ID: id, Allowed: a.gate.CanAccessGuide(id), Upgrade: a.gate.GetUpgradeRequirementForGuide(id)})
}

func (a *API) products(w http.ResponseWriter, r *http.Request) {
	products, err := a.svc.GetAvailableProducts(r.Context())
	if err != nil {
		platformError(w, err)
		return
	}
	ok(w, products)
}

type purchaseRequest struct {
	ProductID string `json:"product_id"`
}

type redirectResponse struct {
	Purchased   *bool  `json:"purchased,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

func (a *API) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := bindJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.ProductID == "" {
		fail(w, http.StatusUnprocessableEntity, "validation_error", ErrMissingProductID.Error())
		return
	}

	ctx, sink := withLinkSink(r.Context())
	purchased, err := a.svc.PurchaseSubscription(ctx, req.ProductID)
	if err != nil {
		platformError(w, err)
		return
	}
	ok(w, redirectResponse{Purchased: &purchased, RedirectURL: sink.get()})
}

func (a *API) restore(w http.ResponseWriter, r *http.Request) {
	res := a.sync.RestoreSubscriptions(r.Context())
	status := http.StatusOK
	switch res {
	case subsync.RestoreNetworkError:
		status = http.StatusServiceUnavailable
	case subsync.RestorePlatformError:
		status = http.StatusBadGateway
	case subsync.RestoreUnknownError:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, Envelope{Data: map[string]any{"result": res}})
}

func (a *API) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, sink := withLinkSink(r.Context())
	if err := a.svc.CancelSubscription(ctx); err != nil {
		platformError(w, err)
		return
	}
	ok(w, redirectResponse{RedirectURL: sink.get()})
}

func (a *API) manage(w http.ResponseWriter, r *http.Request) {
	ctx, sink := withLinkSink(r.Context())
	if err := a.svc.OpenSubscriptionManagement(ctx); err != nil {
		platformError(w, err)
		return
	}
	ok(w, redirectResponse{RedirectURL: sink.get()})
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	entries, err := a.svc.GetSubscriptionHistory(r.Context())
	if err != nil {
		platformError(w, err)
		return
	}
	ok(w, entries)
}

type syncResponse struct {
	Status   subsync.SyncStatus `json:"status"`
	LastSync *time.Time         `json:"last_sync,omitempty"`
	Overdue  bool               `json:"overdue"`
}

func (a *API) syncSnapshot(r *http.Request) syncResponse {
	resp := syncResponse{
		Status:  a.sync.Status(),
		Overdue: a.sync.IsSyncOverdue(r.Context()),
	}
	if t, found := a.sync.LastSyncTime(r.Context()); found {
		resp.LastSync = &t
	}
	return resp
}

func (a *API) syncState(w http.ResponseWriter, r *http.Request) {
	ok(w, a.syncSnapshot(r))
}

func (a *API) syncNow(w http.ResponseWriter, r *http.Request) {
	if err := a.sync.SyncNow(r.Context()); err != nil {
		a.logger.WarnContext(r.Context(), "manual sync failed", logger.Error(err))
		writeJSON(w, statusForKind(subscription.KindOf(err)), Envelope{
			Data:  a.syncSnapshot(r),
			Error: &ErrorDetail{Code: "sync_failed", Message: err.Error()},
		})
		return
	}
	ok(w, a.syncSnapshot(r))
}

func (a *API) paddleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		fail(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	if len(body) > maxWebhookBody {
		fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", ErrPayloadTooLarge.Error())
		return
	}

	if err := a.webhooks.HandleWebhook(r.Context(), body, r.Header.Get("Paddle-Signature")); err != nil {
		if errors.Is(err, subscription.ErrWebhookSignature) {
			fail(w, http.StatusUnauthorized, "invalid_signature", "webhook signature verification failed")
			return
		}
		a.logger.ErrorContext(r.Context(), "webhook processing failed", logger.Error(err))
		fail(w, http.StatusInternalServerError, "webhook_failed", "webhook could not be processed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
