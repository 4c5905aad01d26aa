package adapters

import (
	"encoding/json"
	"net/http"

	"leadsync/models"
	"leadsync/utils"
)

// GoogleAdsAdapter handles lead form extension webhooks.
// Google authenticates deliveries with a shared "google_key" inside the body.
type GoogleAdsAdapter struct{}

func NewGoogleAdsAdapter() *GoogleAdsAdapter {
	return &GoogleAdsAdapter{}
}

type googleAdsPayload struct {
	LeadID         flexString        `json:"lead_id"`
	APIVersion     string            `json:"api_version"`
	FormID         flexString        `json:"form_id"`
	CampaignID     flexString        `json:"campaign_id"`
	AdGroupID      flexString        `json:"adgroup_id"`
	CreativeID     flexString        `json:"creative_id"`
	GCLID          string            `json:"gcl_id"`
	GoogleKey      string            `json:"google_key"`
	IsTest         bool              `json:"is_test"`
	UserColumnData []googleAdsColumn `json:"user_column_data"`
}

// googleAdsKnownKeys are consumed by googleAdsPayload; google_key must never reach metadata.
var googleAdsKnownKeys = []string{
	"lead_id", "api_version", "form_id", "campaign_id", "adgroup_id",
	"creative_id", "gcl_id", "google_key", "is_test", "user_column_data",
}

type googleAdsColumn struct {
	ColumnName  string `json:"column_name"`
	StringValue string `json:"string_value"`
	ColumnID    string `json:"column_id"`
}

func (a *GoogleAdsAdapter) Platform() models.Platform {
	return models.PlatformGoogleAds
}

func (a *GoogleAdsAdapter) decode(raw []byte) (*googleAdsPayload, error) {
	if err := requireObject(a.Platform(), raw); err != nil {
		return nil, err
	}
	var payload googleAdsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, badPayload(a.Platform(), "invalid json", err)
	}
	return &payload, nil
}

func (a *GoogleAdsAdapter) Parse(raw []byte) ([]models.WebhookLeadData, error) {
	payload, err := a.decode(raw)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{}
	extraFields, err := unknownFields(raw, googleAdsKnownKeys...)
	if err != nil {
		return nil, badPayload(a.Platform(), "invalid json", err)
	}
	if extraFields != nil {
		metadata["extra"] = extraFields
	}
	if payload.APIVersion != "" {
		metadata["api_version"] = payload.APIVersion
	}
	if payload.FormID != "" {
		metadata["form_id"] = payload.FormID.String()
	}
	if payload.CreativeID != "" {
		metadata["creative_id"] = payload.CreativeID.String()
	}
	if payload.GCLID != "" {
		metadata["gcl_id"] = payload.GCLID
	}
	if payload.IsTest {
		metadata["is_test"] = true
	}

	var contact contactFields
	extra := map[string]any{}
	for _, column := range payload.UserColumnData {
		key := column.ColumnID
		if key == "" {
			key = column.ColumnName
		}
		if !contact.assign(key, column.StringValue) {
			extra[key] = column.StringValue
		}
	}
	if len(extra) > 0 {
		metadata["user_column_data"] = extra
	}

	name, email, phone := contact.apply(metadata)

	return []models.WebhookLeadData{{
		Source:     models.PlatformGoogleAds,
		ExternalID: payload.LeadID.String(),
		Name:       name,
		Email:      email,
		Phone:      phone,
		CampaignID: payload.CampaignID.String(),
		AdGroupID:  payload.AdGroupID.String(),
		Metadata:   metadata,
	}}, nil
}

// Authenticate compares the body's google_key with the integration secret.
// The google_key never leaves this method; it is not copied into metadata.
func (a *GoogleAdsAdapter) Authenticate(raw []byte, _ http.Header, secret string) AuthResult {
	payload, err := a.decode(raw)
	if err != nil || payload.GoogleKey == "" {
		return AuthMissing
	}
	if utils.SecureCompare(payload.GoogleKey, secret) {
		return AuthVerified
	}
	return AuthFailed
}
