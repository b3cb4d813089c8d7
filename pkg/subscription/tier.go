package subscription

import (
	"fmt"
	"strings"
)

// Tier is a subscription level. Tiers are ordered by privilege and the zero
// value is the free tier.
type Tier int

const (
	TierSeeker Tier = iota
	TierMystic
	TierOracle
)

var tierNames = [...]string{
	TierSeeker: "seeker",
	TierMystic: "mystic",
	TierOracle: "oracle",
}

// Tiers returns every tier in ascending order.
func Tiers() []Tier {
	return []Tier{TierSeeker, TierMystic, TierOracle}
}

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t >= TierSeeker && t <= TierOracle
}

// Next returns the next more privileged tier. Oracle is its own successor.
func (t Tier) Next() Tier {
	if t >= TierOracle {
		return TierOracle
	}
	if t < TierSeeker {
		return TierSeeker
	}
	return t + 1
}

// AtLeast reports whether t grants everything required grants.
func (t Tier) AtLeast(required Tier) bool {
	return t >= required
}

// ParseTier parses a lowercase tier name. Matching is case-insensitive.
func ParseTier(s string) (Tier, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range tierNames {
		if n == name {
			return Tier(i), nil
		}
	}
	return TierSeeker, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTier, int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
