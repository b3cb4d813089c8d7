package subsync

import (
	"context"

	"github.com/dmitrymomot/arcana/pkg/statemachine"
	"github.com/dmitrymomot/arcana/pkg/subscription"
)

// SyncStatus is the state of the synchronizer.
type SyncStatus string

const (
	StatusIdle      SyncStatus = "idle"
	StatusSyncing   SyncStatus = "syncing"
	StatusSuccess   SyncStatus = "success"
	StatusFailed    SyncStatus = "failed"
	StatusExpired   SyncStatus = "expired"
	StatusRestoring SyncStatus = "restoring"
)

func (s SyncStatus) String() string { return string(s) }

type event string

const (
	evStart   event = "start"
	evSucceed event = "succeed"
	evFail    event = "fail"
	evExpire  event = "expire"
	evRestore event = "restore"
	evNothing event = "nothing_restored"
)

var settled = []SyncStatus{StatusIdle, StatusSuccess, StatusFailed, StatusExpired}

// newMachine builds the sync lifecycle. The expire event carries the
// subscription.Status being judged: it is taken only when that status is an
// expired paid tier, and the downgrade runs before the state changes.
func (s *Service) newMachine() *statemachine.Machine[SyncStatus, event] {
	return statemachine.MustNew(StatusIdle,
		statemachine.FromAny(settled, StatusSyncing, evStart),
		statemachine.FromAny(settled, StatusRestoring, evRestore),
		statemachine.FromAny([]SyncStatus{StatusSyncing, StatusRestoring}, StatusSuccess, evSucceed),
		statemachine.FromAny([]SyncStatus{StatusSyncing, StatusRestoring}, StatusFailed, evFail),
		statemachine.FromAny([]SyncStatus{StatusSyncing, StatusFailed}, StatusExpired, evExpire,
			statemachine.WithGuard(s.paidAndExpired),
			statemachine.WithAction(s.downgradeAction)),
		statemachine.WithTransition(StatusRestoring, StatusIdle, evNothing),
		statemachine.WithListener(s.onStateChange),
	)
}

func (s *Service) paidAndExpired(_ context.Context, _ SyncStatus, _ event, data any) bool {
	status, ok := data.(subscription.Status)
	return ok && status.Tier != subscription.TierSeeker && status.IsExpiredAt(s.clock.Now())
}

func (s *Service) downgradeAction(ctx context.Context, _, _ SyncStatus, _ event, data any) error {
	s.downgrade(ctx, data.(subscription.Status))
	return nil
}
