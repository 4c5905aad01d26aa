package services

import "leadsync/models"

// Unlimited marks a quota with no cap
const Unlimited = -1

// integrationQuotas caps the number of integrations per platform for each tier
var integrationQuotas = map[models.Platform]map[models.SubscriptionTier]int{
	models.PlatformGoogleAds: {
		models.TierStarter: 1,
		models.TierPro:     3,
		models.TierMax:     Unlimited,
	},
	models.PlatformMeta: {
		models.TierStarter: 1,
		models.TierPro:     3,
		models.TierMax:     Unlimited,
	},
	models.PlatformLinkedIn: {
		models.TierStarter: 1,
		models.TierPro:     2,
		models.TierMax:     Unlimited,
	},
	models.PlatformWhatsApp: {
		models.TierStarter: 1,
		models.TierPro:     2,
		models.TierMax:     Unlimited,
	},
}

// QuotaLimit returns the cap for platform at tier. Unknown tiers fall back to STARTER.
func QuotaLimit(platform models.Platform, tier models.SubscriptionTier) int {
	limits, ok := integrationQuotas[platform]
	if !ok {
		return 0
	}
	if limit, ok := limits[tier]; ok {
		return limit
	}
	return limits[models.TierStarter]
}

// QuotaDecision is the result of a quota check
type QuotaDecision struct {
	Allowed bool                    `json:"allowed"`
	Reason  string                  `json:"reason,omitempty"`
	Current int64                   `json:"current"`
	Limit   int                     `json:"limit"`
	Tier    models.SubscriptionTier `json:"tier"`
}

// decideQuota is a pure decision over the current count
func decideQuota(platform models.Platform, tier models.SubscriptionTier, current int64) QuotaDecision {
	limit := QuotaLimit(platform, tier)
	decision := QuotaDecision{Current: current, Limit: limit, Tier: tier}
	switch {
	case limit == Unlimited:
		decision.Allowed = true
	case current < int64(limit):
		decision.Allowed = true
	default:
		decision.Reason = (&QuotaExceededError{Platform: platform, Tier: tier, Current: current, Limit: limit}).Error()
	}
	return decision
}
