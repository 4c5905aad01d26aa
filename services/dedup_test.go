package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"leadsync/models"
	"leadsync/utils"
)

type dedupFixture struct {
	db          *gorm.DB
	engine      *DedupEngine
	tenant      models.Tenant
	integration *models.IntegrationConfig
}

func newDedupFixture(t *testing.T) dedupFixture {
	t.Helper()
	db := newTestDB(t)
	m := newTestManager(t, db)
	tenant := seedTenant(t, db, "college", models.TierMax)
	return dedupFixture{
		db:          db,
		engine:      NewDedupEngine(db, utils.NewLogger("test")),
		tenant:      tenant,
		integration: seedIntegration(t, m, tenant.ID, models.PlatformMeta, "page"),
	}
}

func (f dedupFixture) ingest(t *testing.T, tenantID uint, lead models.WebhookLeadData) *IngestResult {
	t.Helper()
	result, err := f.engine.CreateOrUpdateLead(context.Background(), tenantID, f.integration.ID, lead)
	require.NoError(t, err)
	return result
}

func (f dedupFixture) count(model any) int64 {
	var n int64
	f.db.Model(model).Count(&n)
	return n
}

func metaLead(externalID, email, phone string) models.WebhookLeadData {
	return models.WebhookLeadData{
		Source:     models.PlatformMeta,
		ExternalID: externalID,
		Name:       "Test Lead",
		Email:      email,
		Phone:      phone,
		CampaignID: "CAMP1",
		AdGroupID:  "ADSET1",
		Metadata:   map[string]any{"form_id": "FORM1"},
	}
}

func TestCreateOrUpdateLeadCreatesLeadAndTracking(t *testing.T) {
	f := newDedupFixture(t)

	result := f.ingest(t, f.tenant.ID, metaLead("ext-1", "a@example.com", "15550001"))
	assert.False(t, result.Duplicate)
	require.NotNil(t, result.Lead)
	assert.Equal(t, models.LeadStatusNew, result.Lead.Status)
	assert.Equal(t, 0, result.Lead.Score)
	assert.Equal(t, "META", result.Lead.Source)
	assert.Equal(t, f.tenant.ID, result.Lead.TenantID)

	var tracking models.LeadSourceTracking
	require.NoError(t, f.db.Where("lead_id = ?", result.Lead.ID).First(&tracking).Error)
	assert.Equal(t, f.integration.ID, tracking.IntegrationID)
	assert.Equal(t, models.PlatformMeta, tracking.Platform)
	assert.Equal(t, "ext-1", tracking.ExternalID)
	assert.Equal(t, "CAMP1", tracking.CampaignID)
	assert.Equal(t, "FORM1", tracking.Metadata["form_id"])
	assert.Equal(t, "ADSET1", tracking.Metadata["ad_group_id"])
}

func TestCreateOrUpdateLeadIsIdempotent(t *testing.T) {
	f := newDedupFixture(t)
	lead := metaLead("ext-1", "a@example.com", "")

	first := f.ingest(t, f.tenant.ID, lead)
	second := f.ingest(t, f.tenant.ID, lead)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, ReasonDuplicateExternalID, second.Reason)
	assert.Equal(t, first.Lead.ID, second.Lead.ID)
	assert.Equal(t, int64(1), f.count(&models.Lead{}))
	assert.Equal(t, int64(1), f.count(&models.LeadSourceTracking{}))
}

func TestExternalIDMatchTakesPrecedence(t *testing.T) {
	f := newDedupFixture(t)

	byExternalID := f.ingest(t, f.tenant.ID, metaLead("ext-1", "first@example.com", ""))
	byEmail := f.ingest(t, f.tenant.ID, metaLead("ext-2", "second@example.com", ""))

	check, err := f.engine.CheckDuplicate(context.Background(), f.tenant.ID, metaLead("ext-1", "second@example.com", ""))
	require.NoError(t, err)
	assert.True(t, check.IsDuplicate)
	assert.Equal(t, byExternalID.Lead.ID, check.ExistingLeadID)
	assert.NotEqual(t, byEmail.Lead.ID, check.ExistingLeadID)
	assert.Equal(t, ReasonDuplicateExternalID, check.Reason)
}

func TestContactMatchIsEmailOrPhone(t *testing.T) {
	f := newDedupFixture(t)
	existing := f.ingest(t, f.tenant.ID, metaLead("ext-1", "a@example.com", "15550001"))

	byPhone := f.ingest(t, f.tenant.ID, metaLead("ext-2", "different@example.com", "15550001"))
	assert.True(t, byPhone.Duplicate)
	assert.Equal(t, ReasonMatchingContact, byPhone.Reason)
	assert.Equal(t, existing.Lead.ID, byPhone.Lead.ID)

	byEmail := f.ingest(t, f.tenant.ID, metaLead("", "a@example.com", ""))
	assert.True(t, byEmail.Duplicate)
	assert.Equal(t, existing.Lead.ID, byEmail.Lead.ID)

	// empty fields never match other empty fields
	noContact := f.ingest(t, f.tenant.ID, metaLead("", "", ""))
	assert.False(t, noContact.Duplicate)
	another := f.ingest(t, f.tenant.ID, metaLead("", "", ""))
	assert.False(t, another.Duplicate)

	// contact duplicates do not get a second attribution row
	assert.Equal(t, int64(3), f.count(&models.LeadSourceTracking{}))
}

func TestDuplicateOnlyTouchesExistingLead(t *testing.T) {
	f := newDedupFixture(t)
	first := f.ingest(t, f.tenant.ID, metaLead("ext-1", "a@example.com", ""))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.db.Model(&models.Lead{}).Where("id = ?", first.Lead.ID).UpdateColumn("updated_at", past).Error)

	repeat := metaLead("ext-1", "changed@example.com", "999")
	repeat.Name = "Changed Name"
	second := f.ingest(t, f.tenant.ID, repeat)
	require.True(t, second.Duplicate)

	var reloaded models.Lead
	require.NoError(t, f.db.First(&reloaded, first.Lead.ID).Error)
	assert.True(t, reloaded.UpdatedAt.After(past.Add(time.Hour)))
	assert.Equal(t, "Test Lead", reloaded.Name)
	assert.Equal(t, "a@example.com", reloaded.Email)
	assert.Empty(t, reloaded.Phone)
}

func TestDeduplicationIsTenantScoped(t *testing.T) {
	f := newDedupFixture(t)
	other := seedTenant(t, f.db, "other-college", models.TierMax)

	f.ingest(t, f.tenant.ID, metaLead("", "shared@example.com", "15550001"))
	result := f.ingest(t, other.ID, metaLead("", "shared@example.com", "15550001"))

	assert.False(t, result.Duplicate)
	assert.Equal(t, other.ID, result.Lead.TenantID)
	assert.Equal(t, int64(2), f.count(&models.Lead{}))
}

func TestExternalIDOwnedByAnotherTenantIsRejected(t *testing.T) {
	f := newDedupFixture(t)
	other := seedTenant(t, f.db, "other-college", models.TierMax)

	f.ingest(t, f.tenant.ID, metaLead("ext-1", "a@example.com", ""))

	_, err := f.engine.CreateOrUpdateLead(context.Background(), other.ID, f.integration.ID, metaLead("ext-1", "b@example.com", ""))
	assert.ErrorIs(t, err, ErrExternalIDConflict)

	// the transaction rolled back the lead insert
	var otherLeads int64
	f.db.Model(&models.Lead{}).Where("tenant_id = ?", other.ID).Count(&otherLeads)
	assert.Zero(t, otherLeads)
}

func TestLeadWithoutSourceIsUnknown(t *testing.T) {
	f := newDedupFixture(t)

	result := f.ingest(t, f.tenant.ID, models.WebhookLeadData{Name: "Walk-in"})
	assert.Equal(t, models.LeadSourceUnknown, result.Lead.Source)
}

func TestConcurrentDeliveriesCreateOneLead(t *testing.T) {
	f := newDedupFixture(t)
	lead := metaLead("ext-race", "race@example.com", "")

	const deliveries = 8
	var wg sync.WaitGroup
	results := make([]*IngestResult, deliveries)
	errs := make([]error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.engine.CreateOrUpdateLead(context.Background(), f.tenant.ID, f.integration.ID, lead)
		}(i)
	}
	wg.Wait()

	created := 0
	for i := range results {
		require.NoError(t, errs[i])
		if !results[i].Duplicate {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, int64(1), f.count(&models.Lead{}))
	assert.Equal(t, int64(1), f.count(&models.LeadSourceTracking{}))
}

// A second writer commits the same (platform, external id) between our check and our
// insert. The tracking insert hits the unique index, our transaction rolls back, and the
// retry resolves the lead as a duplicate of the committed winner.
func TestLosingWriterResolvesAsDuplicateOfWinner(t *testing.T) {
	f := newDedupFixture(t)

	var (
		phase    int
		inHook   bool
		winnerID uint
	)
	insertWinner := func(tx *gorm.DB) {
		inHook = true
		defer func() { inHook = false }()

		winner := models.Lead{
			TenantID: f.tenant.ID,
			Name:     "Winner",
			Email:    "winner@example.com",
			Source:   string(models.PlatformMeta),
			Status:   models.LeadStatusNew,
		}
		require.NoError(t, tx.Create(&winner).Error)
		require.NoError(t, tx.Create(&models.LeadSourceTracking{
			LeadID:        winner.ID,
			IntegrationID: f.integration.ID,
			Platform:      models.PlatformMeta,
			ExternalID:    "RACE-1",
		}).Error)
		winnerID = winner.ID
	}

	// The winner's rows land inside our first transaction right before our tracking
	// insert, so that insert fails on the unique index and everything rolls back.
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:winner_before_tracking", func(tx *gorm.DB) {
		if inHook || phase != 0 {
			return
		}
		if _, ok := tx.Statement.Dest.(*models.LeadSourceTracking); !ok {
			return
		}
		phase = 1
		insertWinner(tx.Session(&gorm.Session{NewDB: true}))
	}))
	// The winner is committed by the time the retry looks again.
	require.NoError(t, f.db.Callback().Query().Before("gorm:query").Register("test:winner_committed", func(tx *gorm.DB) {
		if inHook || phase != 1 {
			return
		}
		phase = 2
		insertWinner(tx.Session(&gorm.Session{NewDB: true}))
	}))

	result, err := f.engine.CreateOrUpdateLead(context.Background(), f.tenant.ID, f.integration.ID,
		metaLead("RACE-1", "loser@example.com", ""))
	require.NoError(t, err)
	require.Equal(t, 2, phase)

	assert.True(t, result.Duplicate)
	assert.Equal(t, ReasonDuplicateExternalID, result.Reason)
	assert.Equal(t, winnerID, result.Lead.ID)
	assert.Equal(t, "winner@example.com", result.Lead.Email)

	var leads []models.Lead
	require.NoError(t, f.db.Where("tenant_id = ?", f.tenant.ID).Find(&leads).Error)
	require.Len(t, leads, 1)
	assert.Equal(t, winnerID, leads[0].ID)

	var trackings int64
	require.NoError(t, f.db.Model(&models.LeadSourceTracking{}).Where("external_id = ?", "RACE-1").Count(&trackings).Error)
	assert.Equal(t, int64(1), trackings)
}
