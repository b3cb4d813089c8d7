package subscription

import (
	"context"

	"github.com/dmitrymomot/arcana/pkg/broadcast"
)

// Service is the contract every billing platform adapter implements.
type Service interface {
	// GetSubscriptionStatus returns the current status known to the platform.
	GetSubscriptionStatus(ctx context.Context) (Status, error)

	// SubscriptionStatusStream returns a subscriber that receives the current
	// status immediately and every change after it. The subscription ends
	// when ctx is cancelled.
	SubscriptionStatusStream(ctx context.Context) broadcast.Subscriber[Status]

	GetAvailableProducts(ctx context.Context) ([]Product, error)

	// PurchaseSubscription starts a purchase. It returns false without an
	// error when the user cancelled the flow.
	PurchaseSubscription(ctx context.Context, productID string) (bool, error)

	// RestoreSubscriptions re-applies earlier purchases. It returns false
	// when nothing could be restored.
	RestoreSubscriptions(ctx context.Context) (bool, error)

	// RefreshSubscriptionStatus re-reads the status and publishes it.
	RefreshSubscriptionStatus(ctx context.Context) error

	// VerifySubscriptionStatus performs a deeper check than a refresh,
	// including expiry, and returns the verified status.
	VerifySubscriptionStatus(ctx context.Context) (Status, error)

	// CancelSubscription redirects the user to the platform's cancellation
	// flow. It does not revoke access by itself.
	CancelSubscription(ctx context.Context) error

	// OpenSubscriptionManagement opens the platform's management UI.
	OpenSubscriptionManagement(ctx context.Context) error

	GetSubscriptionHistory(ctx context.Context) ([]HistoryEntry, error)

	// HasPendingChanges reports purchases that completed on the platform but
	// have not been reflected in the status yet.
	HasPendingChanges(ctx context.Context) (bool, error)

	// Dispose releases resources. It is idempotent.
	Dispose() error
}
