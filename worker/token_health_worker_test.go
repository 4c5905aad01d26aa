package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leadsync/config"
	"leadsync/models"
	"leadsync/services"
	"leadsync/utils"
)

type fakeValidator struct {
	valid string
}

func (f fakeValidator) ValidateAccessToken(_ context.Context, token string) error {
	if token != f.valid {
		return errors.New("revoked")
	}
	return nil
}

func setup(t *testing.T) (*gorm.DB, *services.IntegrationManager, models.Tenant) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db))

	vault, err := utils.NewVault("worker-test-passphrase-long-enough-0000", 1000)
	require.NoError(t, err)

	tenant := models.Tenant{Name: "acme", Slug: "acme", SubscriptionTier: models.TierMax}
	require.NoError(t, db.Create(&tenant).Error)

	return db, services.NewIntegrationManager(db, vault, "https://leads.example.com", utils.NewLogger("test")), tenant
}

func createLinkedIn(t *testing.T, m *services.IntegrationManager, tenantID uint, name, token string) *models.IntegrationConfig {
	t.Helper()
	integration, err := m.CreateIntegration(context.Background(), services.CreateIntegrationInput{
		TenantID:    tenantID,
		Platform:    models.PlatformLinkedIn,
		Name:        name,
		Credentials: map[string]any{"access_token": token},
	})
	require.NoError(t, err)
	return integration
}

func syncStatus(t *testing.T, db *gorm.DB, id uint) models.IntegrationConfig {
	t.Helper()
	var integration models.IntegrationConfig
	require.NoError(t, db.First(&integration, id).Error)
	return integration
}

func TestRunOnceRecordsTokenHealth(t *testing.T) {
	db, manager, tenant := setup(t)

	healthy := createLinkedIn(t, manager, tenant.ID, "healthy", "good")
	revoked := createLinkedIn(t, manager, tenant.ID, "revoked", "stale")
	corrupted := createLinkedIn(t, manager, tenant.ID, "corrupted", "good")
	inactive := createLinkedIn(t, manager, tenant.ID, "inactive", "good")

	require.NoError(t, db.Model(&models.IntegrationConfig{}).Where("id = ?", corrupted.ID).
		Update("credentials", "bm90LXZhbGlk").Error)
	require.NoError(t, manager.SetActive(context.Background(), tenant.ID, inactive.ID, false))

	w := NewTokenHealthWorker(manager, map[models.Platform]TokenValidator{
		models.PlatformLinkedIn: fakeValidator{valid: "good"},
	}, time.Hour, utils.NewLogger("test"))
	w.RunOnce(context.Background())

	got := syncStatus(t, db, healthy.ID)
	assert.Equal(t, SyncStatusTokenValid, got.LastSyncStatus)
	assert.NotNil(t, got.LastSyncAt)

	assert.Equal(t, SyncStatusTokenInvalid, syncStatus(t, db, revoked.ID).LastSyncStatus)
	assert.Equal(t, "credentials corrupted or tampered", syncStatus(t, db, corrupted.ID).LastSyncStatus)

	skipped := syncStatus(t, db, inactive.ID)
	assert.Empty(t, skipped.LastSyncStatus)
	assert.Nil(t, skipped.LastSyncAt)
}

func TestRunOnceIgnoresPlatformsWithoutValidator(t *testing.T) {
	db, manager, tenant := setup(t)

	integration, err := manager.CreateIntegration(context.Background(), services.CreateIntegrationInput{
		TenantID:    tenant.ID,
		Platform:    models.PlatformMeta,
		Name:        "page",
		Credentials: map[string]any{"page_access_token": "x"},
	})
	require.NoError(t, err)

	NewTokenHealthWorker(manager, map[models.Platform]TokenValidator{
		models.PlatformLinkedIn: fakeValidator{valid: "good"},
	}, time.Hour, utils.NewLogger("test")).RunOnce(context.Background())

	assert.Nil(t, syncStatus(t, db, integration.ID).LastSyncAt)
}

func TestStartStopsOnCancel(t *testing.T) {
	db, manager, tenant := setup(t)
	integration := createLinkedIn(t, manager, tenant.ID, "main", "good")

	w := NewTokenHealthWorker(manager, map[models.Platform]TokenValidator{
		models.PlatformLinkedIn: fakeValidator{valid: "good"},
	}, time.Hour, utils.NewLogger("test"))
	w.StartupDelay = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return syncStatus(t, db, integration.ID).LastSyncStatus == SyncStatusTokenValid
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
