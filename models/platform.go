package models

import "strings"

// Platform identifies an external ad/lead source
type Platform string

const (
	PlatformGoogleAds Platform = "GOOGLE_ADS"
	PlatformMeta      Platform = "META"
	PlatformLinkedIn  Platform = "LINKEDIN"
	PlatformWhatsApp  Platform = "WHATSAPP"
)

// Platforms lists every platform an integration can be configured for
var Platforms = []Platform{PlatformGoogleAds, PlatformMeta, PlatformLinkedIn, PlatformWhatsApp}

// ParsePlatform accepts enum names and the lowercased URL forms (google_ads, google-ads, meta, ...)
func ParsePlatform(s string) (Platform, bool) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, p := range Platforms {
		if string(p) == normalized {
			return p, true
		}
	}
	return "", false
}

// PathSegment is the form used in generated webhook URLs
func (p Platform) PathSegment() string {
	return strings.ToLower(string(p))
}

// SubscriptionTier is the tenant's plan level, used for integration quotas
type SubscriptionTier string

const (
	TierStarter SubscriptionTier = "STARTER"
	TierPro     SubscriptionTier = "PRO"
	TierMax     SubscriptionTier = "MAX"
)

// LeadStatus is the pipeline stage of a lead
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "NEW"
	LeadStatusContacted LeadStatus = "CONTACTED"
	LeadStatusQualified LeadStatus = "QUALIFIED"
	LeadStatusConverted LeadStatus = "CONVERTED"
	LeadStatusLost      LeadStatus = "LOST"
)

// LeadSourceUnknown is stored when a lead has no platform attribution
const LeadSourceUnknown = "UNKNOWN"
