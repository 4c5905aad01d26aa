package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leadsync/config"
	"leadsync/models"
	"leadsync/services"
	"leadsync/utils"
)

const testPassphrase = "test-passphrase-that-is-long-enough-000"

type testEnv struct {
	db           *gorm.DB
	integrations *services.IntegrationManager
	dedup        *services.DedupEngine
}

func newTestEnv(t *testing.T) *testEnv {
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

	vault, err := utils.NewVault(testPassphrase, 1000)
	require.NoError(t, err)

	return &testEnv{
		db:           db,
		integrations: services.NewIntegrationManager(db, vault, "https://leads.example.com", utils.NewLogger("test")),
		dedup:        services.NewDedupEngine(db, utils.NewLogger("test")),
	}
}

func (e *testEnv) seedTenant(t *testing.T, slug string, tier models.SubscriptionTier) models.Tenant {
	t.Helper()
	tenant := models.Tenant{Name: slug, Slug: slug, SubscriptionTier: tier}
	require.NoError(t, e.db.Create(&tenant).Error)
	return tenant
}

func (e *testEnv) seedIntegration(t *testing.T, tenantID uint, platform models.Platform) *models.IntegrationConfig {
	t.Helper()
	integration, err := e.integrations.CreateIntegration(context.Background(), services.CreateIntegrationInput{
		TenantID:    tenantID,
		Platform:    platform,
		Name:        string(platform) + " main",
		Credentials: map[string]any{"access_token": "tok"},
	})
	require.NoError(t, err)
	return integration
}

func (e *testEnv) countLeads(t *testing.T, tenantID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Lead{}).Where("tenant_id = ?", tenantID).Count(&n).Error)
	return n
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, body
}

func decodeJSON(t *testing.T, body []byte) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}
