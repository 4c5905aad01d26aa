package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leadsync/models"
	"leadsync/utils"
)

// IntegrationManager owns the tenant-scoped lifecycle of integration configurations
type IntegrationManager struct {
	DB      *gorm.DB
	Vault   *utils.Vault
	BaseURL string
	Logger  *logrus.Entry
}

func NewIntegrationManager(db *gorm.DB, vault *utils.Vault, baseURL string, logger *logrus.Entry) *IntegrationManager {
	return &IntegrationManager{
		DB:      db,
		Vault:   vault,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Logger:  logger,
	}
}

// CreateIntegrationInput is everything needed to configure a new integration
type CreateIntegrationInput struct {
	TenantID    uint            `validate:"required"`
	Platform    models.Platform `validate:"required,oneof=GOOGLE_ADS META LINKEDIN WHATSAPP"`
	Name        string          `validate:"required,max=100"`
	Credentials map[string]any  `validate:"required"`
	Metadata    map[string]any
}

// ResolveTenant finds a tenant by slug, falling back to its numeric id
func (m *IntegrationManager) ResolveTenant(ctx context.Context, ref string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := m.DB.WithContext(ctx).Where("slug = ?", ref).First(&tenant).Error
	if err == nil {
		return &tenant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}

	id, ok := utils.ParseUint(ref)
	if !ok {
		return nil, ErrTenantNotFound
	}
	if err := m.DB.WithContext(ctx).First(&tenant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}
	return &tenant, nil
}

// CanAddIntegration reports whether the tenant's tier allows another integration for platform
func (m *IntegrationManager) CanAddIntegration(ctx context.Context, tenantID uint, platform models.Platform) (QuotaDecision, error) {
	return m.canAdd(m.DB.WithContext(ctx), tenantID, platform, false)
}

// lockTenant makes concurrent quota checks for one tenant queue behind each other
// until the surrounding transaction ends.
func lockTenant(db *gorm.DB, lock bool) *gorm.DB {
	if !lock {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (m *IntegrationManager) canAdd(db *gorm.DB, tenantID uint, platform models.Platform, lock bool) (QuotaDecision, error) {
	var tenant models.Tenant
	if err := lockTenant(db, lock).First(&tenant, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return QuotaDecision{}, ErrTenantNotFound
		}
		return QuotaDecision{}, fmt.Errorf("failed to load tenant: %w", err)
	}

	var current int64
	if err := db.Model(&models.IntegrationConfig{}).
		Where("tenant_id = ? AND platform = ?", tenantID, platform).
		Count(&current).Error; err != nil {
		return QuotaDecision{}, fmt.Errorf("failed to count integrations: %w", err)
	}

	return decideQuota(platform, tenant.SubscriptionTier, current), nil
}

// WebhookURL is the deterministic inbound URL for a tenant's platform
func (m *IntegrationManager) WebhookURL(tenantID uint, platform models.Platform) string {
	return fmt.Sprintf("%s/api/webhooks/leads/%d/%s", m.BaseURL, tenantID, platform.PathSegment())
}

// CreateIntegration re-checks the quota inside the insert transaction; callers' earlier checks are not trusted.
func (m *IntegrationManager) CreateIntegration(ctx context.Context, input CreateIntegrationInput) (*models.IntegrationConfig, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	encrypted, err := m.Vault.EncryptJSON(input.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	secret, err := utils.GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate webhook secret: %w", err)
	}

	integration := models.IntegrationConfig{
		TenantID:      input.TenantID,
		Platform:      input.Platform,
		Name:          strings.TrimSpace(input.Name),
		Credentials:   encrypted,
		IsActive:      true,
		WebhookURL:    m.WebhookURL(input.TenantID, input.Platform),
		WebhookSecret: secret,
		Metadata:      models.JSONMap(input.Metadata),
	}

	err = m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		decision, err := m.canAdd(tx, input.TenantID, input.Platform, true)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return &QuotaExceededError{
				Platform: input.Platform,
				Tier:     decision.Tier,
				Current:  decision.Current,
				Limit:    decision.Limit,
			}
		}
		if err := tx.Create(&integration).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrIntegrationExists
			}
			return fmt.Errorf("failed to create integration: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.Logger.WithFields(logrus.Fields{
		"tenant_id":      integration.TenantID,
		"integration_id": integration.ID,
		"platform":       integration.Platform,
	}).Info("Integration created")

	return &integration, nil
}

// GetIntegration loads an integration owned by tenantID
func (m *IntegrationManager) GetIntegration(ctx context.Context, tenantID, integrationID uint) (*models.IntegrationConfig, error) {
	var integration models.IntegrationConfig
	if err := m.DB.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", integrationID, tenantID).
		First(&integration).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}
	return &integration, nil
}

// FindActiveIntegration returns the tenant's active integration for platform
func (m *IntegrationManager) FindActiveIntegration(ctx context.Context, tenantID uint, platform models.Platform) (*models.IntegrationConfig, error) {
	var integration models.IntegrationConfig
	if err := m.DB.WithContext(ctx).
		Where("tenant_id = ? AND platform = ? AND is_active = ?", tenantID, platform, true).
		Order("id ASC").
		First(&integration).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}
	return &integration, nil
}

func (m *IntegrationManager) ListIntegrations(ctx context.Context, tenantID uint) ([]models.IntegrationConfig, error) {
	var integrations []models.IntegrationConfig
	if err := m.DB.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&integrations).Error; err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	return integrations, nil
}

// ListActiveByPlatform is used by background jobs; it spans tenants and never mutates.
func (m *IntegrationManager) ListActiveByPlatform(ctx context.Context, platform models.Platform) ([]models.IntegrationConfig, error) {
	var integrations []models.IntegrationConfig
	if err := m.DB.WithContext(ctx).
		Where("platform = ? AND is_active = ?", platform, true).
		Find(&integrations).Error; err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	return integrations, nil
}

// GetIntegrationCredentials decrypts and parses an integration's credentials.
// Decryption failures are data-integrity errors and are never treated as "no credentials".
func (m *IntegrationManager) GetIntegrationCredentials(ctx context.Context, integrationID uint) (map[string]any, error) {
	var integration models.IntegrationConfig
	if err := m.DB.WithContext(ctx).First(&integration, integrationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}

	credentials := map[string]any{}
	if err := m.Vault.DecryptJSON(integration.Credentials, &credentials); err != nil {
		utils.LogError("credential_decrypt_failed", err, map[string]interface{}{
			"integration_id": integration.ID,
			"tenant_id":      integration.TenantID,
			"platform":       integration.Platform,
		})
		return nil, err
	}
	return credentials, nil
}

// UpdateCredentials replaces the encrypted credentials. The webhook secret is left untouched.
func (m *IntegrationManager) UpdateCredentials(ctx context.Context, tenantID, integrationID uint, credentials map[string]any) error {
	encrypted, err := m.Vault.EncryptJSON(credentials)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	return m.updateScoped(ctx, tenantID, integrationID, map[string]interface{}{
		"credentials": encrypted,
	})
}

func (m *IntegrationManager) SetActive(ctx context.Context, tenantID, integrationID uint, active bool) error {
	return m.updateScoped(ctx, tenantID, integrationID, map[string]interface{}{
		"is_active": active,
	})
}

func (m *IntegrationManager) updateScoped(ctx context.Context, tenantID, integrationID uint, updates map[string]interface{}) error {
	result := m.DB.WithContext(ctx).Model(&models.IntegrationConfig{}).
		Where("id = ? AND tenant_id = ?", integrationID, tenantID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update integration: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrIntegrationNotFound
	}
	return nil
}

// DeleteIntegration removes the integration and its source tracking rows
func (m *IntegrationManager) DeleteIntegration(ctx context.Context, tenantID, integrationID uint) error {
	return m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var integration models.IntegrationConfig
		if err := tx.Where("id = ? AND tenant_id = ?", integrationID, tenantID).First(&integration).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrIntegrationNotFound
			}
			return fmt.Errorf("failed to load integration: %w", err)
		}
		if err := tx.Unscoped().Where("integration_id = ?", integration.ID).
			Delete(&models.LeadSourceTracking{}).Error; err != nil {
			return fmt.Errorf("failed to delete source tracking: %w", err)
		}
		if err := tx.Unscoped().Delete(&integration).Error; err != nil {
			return fmt.Errorf("failed to delete integration: %w", err)
		}
		return nil
	})
}

// RecordSync always stamps last_sync_at; the status is errMessage when given, else status.
func (m *IntegrationManager) RecordSync(ctx context.Context, integrationID uint, status, errMessage string) error {
	syncStatus := status
	if errMessage != "" {
		syncStatus = errMessage
	}
	if err := m.DB.WithContext(ctx).Model(&models.IntegrationConfig{}).
		Where("id = ?", integrationID).
		Updates(map[string]interface{}{
			"last_sync_at":     time.Now(),
			"last_sync_status": syncStatus,
		}).Error; err != nil {
		return fmt.Errorf("failed to record sync: %w", err)
	}
	return nil
}
