package services

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leadsync/config"
	"leadsync/models"
	"leadsync/utils"
)

const testPassphrase = "test-passphrase-that-is-long-enough-000"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every pooled connection would otherwise get its own empty in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.Migrate(db))
	return db
}

func newTestVault(t *testing.T) *utils.Vault {
	t.Helper()
	v, err := utils.NewVault(testPassphrase, 1000)
	require.NoError(t, err)
	return v
}

func newTestManager(t *testing.T, db *gorm.DB) *IntegrationManager {
	t.Helper()
	return NewIntegrationManager(db, newTestVault(t), "https://leads.example.com/", utils.NewLogger("test"))
}

func seedTenant(t *testing.T, db *gorm.DB, slug string, tier models.SubscriptionTier) models.Tenant {
	t.Helper()
	tenant := models.Tenant{Name: slug, Slug: slug, SubscriptionTier: tier}
	require.NoError(t, db.Create(&tenant).Error)
	return tenant
}

func seedIntegration(t *testing.T, m *IntegrationManager, tenantID uint, platform models.Platform, name string) *models.IntegrationConfig {
	t.Helper()
	integration, err := m.CreateIntegration(context.Background(), CreateIntegrationInput{
		TenantID:    tenantID,
		Platform:    platform,
		Name:        name,
		Credentials: map[string]any{"access_token": "tok-" + name},
	})
	require.NoError(t, err)
	return integration
}
