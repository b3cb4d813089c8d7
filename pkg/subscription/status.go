package subscription

import (
	"maps"
	"time"
)

// Status is a snapshot of the user's subscription. Values are immutable by
// convention: use the With* helpers to derive a modified copy.
type Status struct {
	Tier                   Tier           `json:"tier"`
	IsActive               bool           `json:"is_active"`
	ExpirationDate         *time.Time     `json:"expiration_date,omitempty"`
	PlatformSubscriptionID *string        `json:"platform_subscription_id,omitempty"`
	UsageCounts            map[string]int `json:"usage_counts,omitempty"`
	LastUpdated            time.Time      `json:"last_updated"`
}

// FreeStatus returns the default seeker status: active and never expiring.
func FreeStatus(now time.Time) Status {
	return Status{
		Tier:        TierSeeker,
		IsActive:    true,
		UsageCounts: map[string]int{},
		LastUpdated: now,
	}
}

// IsExpiredAt reports whether the expiration date lies strictly before now.
// A status without an expiration date never expires.
func (s Status) IsExpiredAt(now time.Time) bool {
	return s.ExpirationDate != nil && now.After(*s.ExpirationDate)
}

// IsValidAt reports whether the status grants its tier at now.
func (s Status) IsValidAt(now time.Time) bool {
	return s.IsActive && !s.IsExpiredAt(now)
}

// IsExpired is IsExpiredAt with the wall clock.
func (s Status) IsExpired() bool { return s.IsExpiredAt(time.Now()) }

// IsValid is IsValidAt with the wall clock.
func (s Status) IsValid() bool { return s.IsValidAt(time.Now()) }

// EffectiveTier returns the tier when the status is valid at now, else seeker.
func (s Status) EffectiveTier(now time.Time) Tier {
	if s.IsValidAt(now) {
		return s.Tier
	}
	return TierSeeker
}

// Clone returns a deep copy of s.
func (s Status) Clone() Status {
	out := s
	if s.ExpirationDate != nil {
		exp := *s.ExpirationDate
		out.ExpirationDate = &exp
	}
	if s.PlatformSubscriptionID != nil {
		id := *s.PlatformSubscriptionID
		out.PlatformSubscriptionID = &id
	}
	if s.UsageCounts != nil {
		out.UsageCounts = maps.Clone(s.UsageCounts)
	}
	return out
}

// WithTier returns a copy of s with tier t.
func (s Status) WithTier(t Tier) Status {
	out := s.Clone()
	out.Tier = t
	return out
}

// WithActive returns a copy of s with IsActive set.
func (s Status) WithActive(active bool) Status {
	out := s.Clone()
	out.IsActive = active
	return out
}

// WithExpiration sets the expiration date. Nil clears it.
func (s Status) WithExpiration(exp *time.Time) Status {
	out := s.Clone()
	if exp == nil {
		out.ExpirationDate = nil
	} else {
		e := *exp
		out.ExpirationDate = &e
	}
	return out
}

// WithPlatformSubscriptionID sets the billing platform id. An empty id clears it.
func (s Status) WithPlatformSubscriptionID(id string) Status {
	out := s.Clone()
	if id == "" {
		out.PlatformSubscriptionID = nil
	} else {
		out.PlatformSubscriptionID = &id
	}
	return out
}

// WithUsageCounts returns a copy of s holding a copy of counts.
func (s Status) WithUsageCounts(counts map[string]int) Status {
	out := s.Clone()
	out.UsageCounts = maps.Clone(counts)
	return out
}

// WithLastUpdated returns a copy of s stamped at t.
func (s Status) WithLastUpdated(t time.Time) Status {
	out := s.Clone()
	out.LastUpdated = t
	return out
}

// SubscriptionID returns the platform subscription id or an empty string.
func (s Status) SubscriptionID() string {
	if s.PlatformSubscriptionID == nil {
		return ""
	}
	return *s.PlatformSubscriptionID
}
