package limits

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/arcana/pkg/subscription"
)

//go:embed tiers.yaml
var defaultTiers []byte

// TierRules is the YAML shape of one tier's entitlements.
type TierRules struct {
	Limits       map[string]int `yaml:"limits"`
	Capabilities []string       `yaml:"capabilities"`
	Spreads      []string       `yaml:"spreads"`
	Guides       []string       `yaml:"guides"`
}

type policyFile struct {
	Tiers map[string]TierRules `yaml:"tiers"`
}

// Policy maps tiers to entitlements. It is immutable after loading and safe
// for concurrent use.
type Policy struct {
	tiers      map[subscription.Tier]TierRules
	spreadMin  map[string]subscription.Tier
	guideMin   map[string]subscription.Tier
	featureMin map[string]subscription.Tier
}

var defaultPolicy = sync.OnceValue(func() *Policy {
	p, err := LoadPolicy(bytes.NewReader(defaultTiers))
	if err != nil {
		panic(fmt.Sprintf("limits: embedded tiers.yaml is invalid: %v", err))
	}
	return p
})

// DefaultPolicy returns the built-in entitlement table.
func DefaultPolicy() *Policy {
	return defaultPolicy()
}

// LoadPolicyFile reads and validates a policy from a YAML file.
func LoadPolicyFile(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoad, err)
	}
	defer f.Close()
	return LoadPolicy(f)
}

// LoadPolicy decodes and validates a policy. Every tier must be present,
// limits must be non-negative and access must never shrink on a higher tier.
func LoadPolicy(r io.Reader) (*Policy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file policyFile
	if err := dec.Decode(&file); err != nil {
		return nil, errors.Join(ErrFailedToLoad, err)
	}

	p := &Policy{
		tiers:      make(map[subscription.Tier]TierRules, len(file.Tiers)),
		spreadMin:  make(map[string]subscription.Tier),
		guideMin:   make(map[string]subscription.Tier),
		featureMin: make(map[string]subscription.Tier),
	}
	for name, rules := range file.Tiers {
		tier, err := subscription.ParseTier(name)
		if err != nil {
			return nil, errors.Join(ErrInvalidPolicy, err)
		}
		p.tiers[tier] = rules
	}
	if err := p.validate(); err != nil {
		return nil, errors.Join(ErrInvalidPolicy, err)
	}
	p.index()
	return p, nil
}

func (p *Policy) validate() error {
	var prev *TierRules
	var prevTier subscription.Tier
	for _, tier := range subscription.Tiers() {
		rules, ok := p.tiers[tier]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingTier, tier)
		}
		for key, limit := range rules.Limits {
			if !IsUsageLimited(key) {
				return fmt.Errorf("%w: %s limit %q", ErrUnknownFeature, tier, key)
			}
			if limit < 0 {
				return fmt.Errorf("%w: %s %s = %d", ErrNegativeLimit, tier, key, limit)
			}
		}
		for _, key := range usageLimited {
			if _, ok := rules.Limits[key]; !ok {
				return fmt.Errorf("%w: %s has no %s limit", ErrInvalidPolicy, tier, key)
			}
		}
		for _, key := range rules.Capabilities {
			if !IsCapability(key) {
				return fmt.Errorf("%w: %s capability %q", ErrUnknownFeature, tier, key)
			}
		}
		if prev != nil {
			if err := superset(prevTier, tier, "capability", prev.Capabilities, rules.Capabilities); err != nil {
				return err
			}
			if err := superset(prevTier, tier, "spread", prev.Spreads, rules.Spreads); err != nil {
				return err
			}
			if err := superset(prevTier, tier, "guide", prev.Guides, rules.Guides); err != nil {
				return err
			}
		}
		prev, prevTier = &rules, tier
	}
	return nil
}

func superset(lower, higher subscription.Tier, kind string, lowerSet, higherSet []string) error {
	for _, id := range lowerSet {
		if !slices.Contains(higherSet, id) {
			return fmt.Errorf("%w: %s %q granted to %s but not to %s", ErrNonMonotonic, kind, id, lower, higher)
		}
	}
	return nil
}

// index records the lowest tier granting each spread, guide and capability.
// Tiers are walked in ascending order so the first hit is the minimum.
func (p *Policy) index() {
	for _, tier := range subscription.Tiers() {
		rules := p.tiers[tier]
		for _, id := range rules.Spreads {
			if _, ok := p.spreadMin[id]; !ok {
				p.spreadMin[id] = tier
			}
		}
		for _, id := range rules.Guides {
			if _, ok := p.guideMin[id]; !ok {
				p.guideMin[id] = tier
			}
		}
		for _, key := range rules.Capabilities {
			if _, ok := p.featureMin[key]; !ok {
				p.featureMin[key] = tier
			}
		}
	}
	// Metered features are available to everyone, within limits.
	for _, key := range usageLimited {
		p.featureMin[key] = subscription.TierSeeker
	}
}

func (p *Policy) rules(t subscription.Tier) TierRules {
	if r, ok := p.tiers[t]; ok {
		return r
	}
	return p.tiers[subscription.TierSeeker]
}

// Access returns the entitlement snapshot for t. Unknown tiers get seeker access.
func (p *Policy) Access(t subscription.Tier) FeatureAccess {
	r := p.rules(t)
	return FeatureAccess{
		MaxReadings:              r.Limits[Readings],
		MaxManualInterpretations: r.Limits[ManualInterpretations],
		HasAudioReadings:         slices.Contains(r.Capabilities, AudioReading),
		HasCustomization:         slices.Contains(r.Capabilities, Customization),
		HasEarlyAccess:           slices.Contains(r.Capabilities, EarlyAccess),
		IsAdFree:                 slices.Contains(r.Capabilities, AdFree),
		AvailableSpreads:         slices.Clone(r.Spreads),
		AvailableGuides:          slices.Clone(r.Guides),
	}
}

// LimitFor returns the monthly limit of key at t. 0 means unlimited and is
// also returned for keys that are not metered.
func (p *Policy) LimitFor(t subscription.Tier, key string) int {
	return p.rules(t).Limits[key]
}

// HasCapability reports whether t grants a capability key.
func (p *Policy) HasCapability(t subscription.Tier, key string) bool {
	return slices.Contains(p.rules(t).Capabilities, key)
}

// MinTierForSpread returns the lowest tier that includes spread id.
func (p *Policy) MinTierForSpread(id string) (subscription.Tier, bool) {
	t, ok := p.spreadMin[id]
	return t, ok
}

// MinTierForGuide returns the lowest tier that includes guide id.
func (p *Policy) MinTierForGuide(id string) (subscription.Tier, bool) {
	t, ok := p.guideMin[id]
	return t, ok
}

// MinTierForFeature returns the lowest tier granting a capability. Metered
// features report seeker.
func (p *Policy) MinTierForFeature(key string) (subscription.Tier, bool) {
	t, ok := p.featureMin[key]
	return t, ok
}

// Spreads returns every spread id known to the policy.
func (p *Policy) Spreads() []string {
	return slices.Clone(p.rules(subscription.TierOracle).Spreads)
}

// Guides returns every guide id known to the policy.
func (p *Policy) Guides() []string {
	return slices.Clone(p.rules(subscription.TierOracle).Guides)
}
