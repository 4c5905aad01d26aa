package models

import (
	"time"

	"gorm.io/gorm"
)

// IntegrationConfig is one configured ad platform connection for a tenant
type IntegrationConfig struct {
	gorm.Model
	TenantID uint     `gorm:"not null;uniqueIndex:idx_integration_tenant_platform_name" json:"tenant_id"`
	Platform Platform `gorm:"not null;uniqueIndex:idx_integration_tenant_platform_name" json:"platform"`
	Name     string   `gorm:"not null;uniqueIndex:idx_integration_tenant_platform_name" json:"name"`

	Credentials string `gorm:"type:text;not null" json:"-"` // Vault token, never plaintext
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	// Webhook
	WebhookURL    string `json:"webhook_url"`
	WebhookSecret string `gorm:"not null" json:"-"` // generated once at creation

	// Sync bookkeeping
	LastSyncAt     *time.Time `json:"last_sync_at"`
	LastSyncStatus string     `json:"last_sync_status"` // "success" or an error message

	Metadata JSONMap `gorm:"type:text" json:"metadata"`

	// Relations
	Tenant Tenant `json:"-"`
}
