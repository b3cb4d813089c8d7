package limits

// FeatureAccess is the entitlement snapshot for one tier. Zero limits mean
// unlimited.
type FeatureAccess struct {
	MaxReadings              int      `json:"max_readings"`
	MaxManualInterpretations int      `json:"max_manual_interpretations"`
	HasAudioReadings         bool     `json:"has_audio_readings"`
	HasCustomization         bool     `json:"has_customization"`
	HasEarlyAccess           bool     `json:"has_early_access"`
	IsAdFree                 bool     `json:"is_ad_free"`
	AvailableSpreads         []string `json:"available_spreads"`
	AvailableGuides          []string `json:"available_guides"`
}
