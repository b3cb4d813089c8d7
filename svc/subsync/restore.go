package subsync

import (
	"context"

	"github.com/dmitrymomot/arcana/pkg/logger"
	"github.com/dmitrymomot/arcana/pkg/subscription"
)

// RestoreResult tells a benign "nothing to restore" apart from failures.
type RestoreResult string

const (
	RestoreSuccess              RestoreResult = "success"
	RestoreNoSubscriptionsFound RestoreResult = "no_subscriptions_found"
	RestoreNetworkError         RestoreResult = "network_error"
	RestorePlatformError        RestoreResult = "platform_error"
	RestoreUnknownError         RestoreResult = "unknown_error"
)

// RestoreSubscriptions restores earlier purchases and, when something was
// restored, re-reads and caches the status.
func (s *Service) RestoreSubscriptions(ctx context.Context) RestoreResult {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if err := s.machine.Fire(ctx, evRestore, nil); err != nil {
		return RestoreUnknownError
	}

	restored, err := s.svc.RestoreSubscriptions(ctx)
	if err != nil {
		_ = s.machine.Fire(ctx, evFail, nil)
		s.logger.WarnContext(ctx, "restore failed", logger.ErrorKind(subscription.KindOf(err)), logger.Error(err))
		return restoreFailure(err)
	}
	if !restored {
		_ = s.machine.Fire(ctx, evNothing, nil)
		return RestoreNoSubscriptionsFound
	}

	status, err := s.svc.GetSubscriptionStatus(ctx)
	if err != nil {
		_ = s.machine.Fire(ctx, evFail, nil)
		return restoreFailure(err)
	}
	s.cache(ctx, status)
	s.notify(status)
	s.recordSuccess(ctx, s.clock.Now())
	_ = s.machine.Fire(ctx, evSucceed, nil)
	return RestoreSuccess
}

func restoreFailure(err error) RestoreResult {
	switch subscription.KindOf(err) {
	case subscription.KindNetwork:
		return RestoreNetworkError
	case subscription.KindPlatform, subscription.KindServer,
		subscription.KindVerificationFailed, subscription.KindRestorationFailed:
		return RestorePlatformError
	default:
		return RestoreUnknownError
	}
}
