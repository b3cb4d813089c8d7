package limits

import (
	"slices"

	"github.com/dmitrymomot/arcana/pkg/subscription"
)

// Comparison lists what changes when moving from one tier to another.
type Comparison struct {
	From             subscription.Tier      `json:"from"`
	To               subscription.Tier      `json:"to"`
	NewCapabilities  []string               `json:"new_capabilities"`
	LostCapabilities []string               `json:"lost_capabilities"`
	NewSpreads       []string               `json:"new_spreads"`
	LostSpreads      []string               `json:"lost_spreads"`
	NewGuides        []string               `json:"new_guides"`
	LostGuides       []string               `json:"lost_guides"`
	IncreasedLimits  map[string]LimitChange `json:"increased_limits"`
	DecreasedLimits  map[string]LimitChange `json:"decreased_limits"`
}

// LimitChange is a change of a monthly limit. 0 means unlimited.
type LimitChange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// IsDowngrade reports whether anything is lost.
func (c Comparison) IsDowngrade() bool {
	return len(c.LostCapabilities) > 0 || len(c.LostSpreads) > 0 ||
		len(c.LostGuides) > 0 || len(c.DecreasedLimits) > 0
}

// Compare returns the differences between the entitlements of two tiers.
func (p *Policy) Compare(from, to subscription.Tier) Comparison {
	cur, next := p.rules(from), p.rules(to)
	c := Comparison{
		From:             from,
		To:               to,
		NewCapabilities:  diff(next.Capabilities, cur.Capabilities),
		LostCapabilities: diff(cur.Capabilities, next.Capabilities),
		NewSpreads:       diff(next.Spreads, cur.Spreads),
		LostSpreads:      diff(cur.Spreads, next.Spreads),
		NewGuides:        diff(next.Guides, cur.Guides),
		LostGuides:       diff(cur.Guides, next.Guides),
		IncreasedLimits:  make(map[string]LimitChange),
		DecreasedLimits:  make(map[string]LimitChange),
	}

	for _, key := range usageLimited {
		was, now := cur.Limits[key], next.Limits[key]
		if was == now {
			continue
		}
		change := LimitChange{From: was, To: now}
		// Unlimited compares above every finite limit.
		switch {
		case was == Unlimited:
			c.DecreasedLimits[key] = change
		case now == Unlimited, now > was:
			c.IncreasedLimits[key] = change
		default:
			c.DecreasedLimits[key] = change
		}
	}
	return c
}

// diff returns the elements of a missing from b, in a's order.
func diff(a, b []string) []string {
	out := make([]string, 0)
	for _, v := range a {
		if !slices.Contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}
