package limits

import "slices"

// Usage-limited feature keys. Their monthly consumption is metered.
const (
	Readings              = "readings"
	ManualInterpretations = "manual_interpretations"
)

// Capability feature keys. They are either granted by a tier or not.
const (
	AudioReading  = "audio_reading"
	Customization = "customization"
	EarlyAccess   = "early_access"
	AdFree        = "ad_free"
)

// Spread identifiers.
const (
	SpreadSingleCard    = "single_card"
	SpreadThreeCard     = "three_card"
	SpreadCelticCross   = "celtic_cross"
	SpreadRelationship  = "relationship"
	SpreadCareerPath    = "career_path"
	SpreadYearAhead     = "year_ahead"
	SpreadChakraBalance = "chakra_balance"
	SpreadShadowWork    = "shadow_work"
)

// Guide identifiers.
const (
	GuideMajorArcana       = "major_arcana"
	GuideMinorArcana       = "minor_arcana"
	GuideNumerology        = "numerology"
	GuideAstrology         = "astrology"
	GuideKabbalah          = "kabbalah"
	GuideAdvancedSymbolism = "advanced_symbolism"
)

var (
	usageLimited = []string{Readings, ManualInterpretations}
	capabilities = []string{AudioReading, Customization, EarlyAccess, AdFree}
)

// UsageLimitedFeatures returns the metered feature keys.
func UsageLimitedFeatures() []string { return slices.Clone(usageLimited) }

// Capabilities returns the capability feature keys.
func Capabilities() []string { return slices.Clone(capabilities) }

// IsUsageLimited reports whether key is metered monthly.
func IsUsageLimited(key string) bool { return slices.Contains(usageLimited, key) }

// IsCapability reports whether key is an on/off tier capability.
func IsCapability(key string) bool { return slices.Contains(capabilities, key) }
