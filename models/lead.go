package models

import (
	"gorm.io/gorm"
)

// Lead represents a single prospective student/contact owned by one tenant
type Lead struct {
	gorm.Model
	TenantID uint `gorm:"not null;index;index:idx_lead_tenant_email;index:idx_lead_tenant_phone" json:"tenant_id"`

	Name  string `gorm:"not null" json:"name"`
	Email string `gorm:"index:idx_lead_tenant_email" json:"email"`
	Phone string `gorm:"index:idx_lead_tenant_phone" json:"phone"` // digits only

	// Status
	Source string     `gorm:"not null;default:'UNKNOWN'" json:"source"` // platform name or UNKNOWN
	Status LeadStatus `gorm:"not null;default:'NEW'" json:"status"`
	Score  int        `gorm:"default:0" json:"score"`

	// Relations
	SourceTrackings []LeadSourceTracking `gorm:"foreignKey:LeadID" json:"source_trackings,omitempty"`
}

// LeadSourceTracking attributes a lead to the integration and campaign that produced it.
// At most one row exists per (platform, external id).
type LeadSourceTracking struct {
	gorm.Model
	LeadID        uint     `gorm:"not null;index" json:"lead_id"`
	IntegrationID uint     `gorm:"not null;index" json:"integration_id"`
	Platform      Platform `gorm:"not null;uniqueIndex:idx_tracking_platform_external,where:external_id <> ''" json:"platform"`
	ExternalID    string   `gorm:"uniqueIndex:idx_tracking_platform_external,where:external_id <> ''" json:"external_id"`
	CampaignID    string   `json:"campaign_id"`
	Metadata      JSONMap  `gorm:"type:text" json:"metadata"`

	// Relations
	Lead        Lead              `json:"-"`
	Integration IntegrationConfig `json:"-"`
}

// WebhookLeadData is the canonical shape every platform adapter produces.
// It is never persisted directly.
type WebhookLeadData struct {
	Source     Platform       `json:"source"`
	ExternalID string         `json:"external_id,omitempty"`
	Name       string         `json:"name"`
	Email      string         `json:"email,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	CampaignID string         `json:"campaign_id,omitempty"`
	AdGroupID  string         `json:"ad_group_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
