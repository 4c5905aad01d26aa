package models

import "gorm.io/gorm"

// Tenant represents an institution account. Everything else is scoped to exactly one tenant.
type Tenant struct {
	gorm.Model
	Name             string           `gorm:"not null" json:"name"`
	Slug             string           `gorm:"uniqueIndex;not null" json:"slug"`
	SubscriptionTier SubscriptionTier `gorm:"default:'STARTER'" json:"subscription_tier"` // STARTER, PRO, MAX

	// Relations
	Integrations []IntegrationConfig `gorm:"foreignKey:TenantID" json:"integrations,omitempty"`
}
