package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"leadsync/models"
)

const (
	ReasonDuplicateExternalID = "Duplicate external ID from same platform"
	ReasonMatchingContact     = "Matching email or phone number"
)

// DuplicateCheck is the outcome of matching a canonical lead against existing records
type DuplicateCheck struct {
	IsDuplicate    bool   `json:"is_duplicate"`
	ExistingLeadID uint   `json:"existing_lead_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// IngestResult is what CreateOrUpdateLead did with one canonical lead
type IngestResult struct {
	Lead      *models.Lead
	Duplicate bool
	Reason    string
}

// DedupEngine decides NEW vs DUPLICATE for incoming leads and persists accordingly
type DedupEngine struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewDedupEngine(db *gorm.DB, logger *logrus.Entry) *DedupEngine {
	return &DedupEngine{
		DB:     db,
		Logger: logger,
	}
}

func (e *DedupEngine) CheckDuplicate(ctx context.Context, tenantID uint, lead models.WebhookLeadData) (DuplicateCheck, error) {
	return checkDuplicate(e.DB.WithContext(ctx), tenantID, lead)
}

// checkDuplicate matches by (platform, external id) first, then by email OR phone within the tenant.
// An external id match short-circuits the contact match.
func checkDuplicate(db *gorm.DB, tenantID uint, lead models.WebhookLeadData) (DuplicateCheck, error) {
	if lead.ExternalID != "" {
		var tracking models.LeadSourceTracking
		err := db.Joins("JOIN leads ON leads.id = lead_source_trackings.lead_id AND leads.deleted_at IS NULL").
			Where("lead_source_trackings.platform = ? AND lead_source_trackings.external_id = ?", lead.Source, lead.ExternalID).
			Where("leads.tenant_id = ?", tenantID).
			First(&tracking).Error
		if err == nil {
			return DuplicateCheck{
				IsDuplicate:    true,
				ExistingLeadID: tracking.LeadID,
				Reason:         ReasonDuplicateExternalID,
			}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return DuplicateCheck{}, fmt.Errorf("failed to look up source tracking: %w", err)
		}
	}

	if lead.Email == "" && lead.Phone == "" {
		return DuplicateCheck{}, nil
	}

	query := db.Where("tenant_id = ?", tenantID)
	switch {
	case lead.Email != "" && lead.Phone != "":
		query = query.Where("email = ? OR phone = ?", lead.Email, lead.Phone)
	case lead.Email != "":
		query = query.Where("email = ?", lead.Email)
	default:
		query = query.Where("phone = ?", lead.Phone)
	}

	var existing models.Lead
	err := query.Order("id ASC").First(&existing).Error
	if err == nil {
		return DuplicateCheck{
			IsDuplicate:    true,
			ExistingLeadID: existing.ID,
			Reason:         ReasonMatchingContact,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return DuplicateCheck{}, fmt.Errorf("failed to look up leads: %w", err)
	}
	return DuplicateCheck{}, nil
}

// CreateOrUpdateLead checks and writes inside one transaction. If a concurrent delivery wins
// the unique (platform, external id) slot first, this call resolves as a duplicate of it.
func (e *DedupEngine) CreateOrUpdateLead(ctx context.Context, tenantID, integrationID uint, lead models.WebhookLeadData) (*IngestResult, error) {
	var result *IngestResult
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := ingest(tx, tenantID, integrationID, lead)
		result = r
		return err
	})
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, err
	}

	e.Logger.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"platform":    lead.Source,
		"external_id": lead.ExternalID,
	}).Info("Concurrent delivery already attributed lead, resolving as duplicate")

	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		check, err := checkDuplicate(tx, tenantID, lead)
		if err != nil {
			return err
		}
		if !check.IsDuplicate {
			return ErrExternalIDConflict
		}
		existing, err := touchLead(tx, tenantID, check.ExistingLeadID)
		if err != nil {
			return err
		}
		result = &IngestResult{Lead: existing, Duplicate: true, Reason: check.Reason}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func ingest(tx *gorm.DB, tenantID, integrationID uint, lead models.WebhookLeadData) (*IngestResult, error) {
	check, err := checkDuplicate(tx, tenantID, lead)
	if err != nil {
		return nil, err
	}

	// Duplicates are touched, not merged: a human may have edited the record since.
	if check.IsDuplicate {
		existing, err := touchLead(tx, tenantID, check.ExistingLeadID)
		if err != nil {
			return nil, err
		}
		return &IngestResult{Lead: existing, Duplicate: true, Reason: check.Reason}, nil
	}

	source := string(lead.Source)
	if source == "" {
		source = models.LeadSourceUnknown
	}

	created := models.Lead{
		TenantID: tenantID,
		Name:     lead.Name,
		Email:    lead.Email,
		Phone:    lead.Phone,
		Source:   source,
		Status:   models.LeadStatusNew,
		Score:    0,
	}
	if err := tx.Create(&created).Error; err != nil {
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}

	tracking := models.LeadSourceTracking{
		LeadID:        created.ID,
		IntegrationID: integrationID,
		Platform:      lead.Source,
		ExternalID:    lead.ExternalID,
		CampaignID:    lead.CampaignID,
		Metadata:      trackingMetadata(lead),
	}
	if err := tx.Create(&tracking).Error; err != nil {
		return nil, fmt.Errorf("failed to create source tracking: %w", err)
	}

	return &IngestResult{Lead: &created}, nil
}

func touchLead(tx *gorm.DB, tenantID, leadID uint) (*models.Lead, error) {
	result := tx.Model(&models.Lead{}).
		Where("id = ? AND tenant_id = ?", leadID, tenantID).
		Update("updated_at", time.Now())
	if result.Error != nil {
		return nil, fmt.Errorf("failed to touch lead: %w", result.Error)
	}

	var existing models.Lead
	if err := tx.Where("id = ? AND tenant_id = ?", leadID, tenantID).First(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to reload lead: %w", err)
	}
	return &existing, nil
}

func trackingMetadata(lead models.WebhookLeadData) models.JSONMap {
	metadata := models.JSONMap{}
	for k, v := range lead.Metadata {
		metadata[k] = v
	}
	if lead.AdGroupID != "" {
		metadata["ad_group_id"] = lead.AdGroupID
	}
	return metadata
}
