package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"leadsync/models"
)

func TestQuotaLimit(t *testing.T) {
	assert.Equal(t, 1, QuotaLimit(models.PlatformMeta, models.TierStarter))
	assert.Equal(t, 3, QuotaLimit(models.PlatformMeta, models.TierPro))
	assert.Equal(t, Unlimited, QuotaLimit(models.PlatformMeta, models.TierMax))
	assert.Equal(t, 2, QuotaLimit(models.PlatformLinkedIn, models.TierPro))

	// unknown tiers fall back to STARTER, unknown platforms allow nothing
	assert.Equal(t, 1, QuotaLimit(models.PlatformGoogleAds, "ENTERPRISE"))
	assert.Equal(t, 0, QuotaLimit("TIKTOK", models.TierMax))
}

func TestEveryPlatformHasQuotaForEveryTier(t *testing.T) {
	for _, platform := range models.Platforms {
		for _, tier := range []models.SubscriptionTier{models.TierStarter, models.TierPro, models.TierMax} {
			limit, ok := integrationQuotas[platform][tier]
			assert.True(t, ok, "%s/%s", platform, tier)
			assert.True(t, limit == Unlimited || limit > 0, "%s/%s", platform, tier)
		}
	}
}

func TestDecideQuota(t *testing.T) {
	tests := []struct {
		name    string
		tier    models.SubscriptionTier
		current int64
		allowed bool
	}{
		{"starter empty", models.TierStarter, 0, true},
		{"starter at limit", models.TierStarter, 1, false},
		{"pro below limit", models.TierPro, 2, true},
		{"pro at limit", models.TierPro, 3, false},
		{"max unlimited", models.TierMax, 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := decideQuota(models.PlatformGoogleAds, tt.tier, tt.current)
			assert.Equal(t, tt.allowed, decision.Allowed)
			assert.Equal(t, tt.current, decision.Current)
			assert.Equal(t, tt.tier, decision.Tier)
			if tt.allowed {
				assert.Empty(t, decision.Reason)
			} else {
				assert.Contains(t, decision.Reason, "limit reached")
			}
		})
	}
}
