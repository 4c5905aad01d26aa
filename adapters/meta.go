package adapters

import (
	"encoding/json"
	"net/http"
	"strings"

	"leadsync/models"
	"leadsync/utils"
)

const (
	metaSignatureHeader = "X-Hub-Signature-256"
	metaLeadgenField    = "leadgen"
)

// MetaAdapter handles Facebook/Instagram lead ads page webhooks.
// One delivery can carry several entries, each with several change events.
type MetaAdapter struct{}

func NewMetaAdapter() *MetaAdapter {
	return &MetaAdapter{}
}

type metaPayload struct {
	Object string       `json:"object"`
	Entry  *[]metaEntry `json:"entry"`
}

type metaEntry struct {
	ID      flexString   `json:"id"`
	Time    int64        `json:"time"`
	Changes []metaChange `json:"changes"`
}

type metaChange struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

var metaLeadgenKnownKeys = []string{
	"leadgen_id", "page_id", "form_id", "ad_id", "adgroup_id",
	"campaign_id", "created_time", "field_data",
}

type metaLeadgenValue struct {
	LeadgenID   flexString      `json:"leadgen_id"`
	PageID      flexString      `json:"page_id"`
	FormID      flexString      `json:"form_id"`
	AdID        flexString      `json:"ad_id"`
	AdGroupID   flexString      `json:"adgroup_id"`
	CampaignID  flexString      `json:"campaign_id"`
	CreatedTime int64           `json:"created_time"`
	FieldData   []metaFieldData `json:"field_data"`
}

type metaFieldData struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

func (a *MetaAdapter) Platform() models.Platform {
	return models.PlatformMeta
}

// Parse returns one lead per leadgen change; other change fields are skipped.
func (a *MetaAdapter) Parse(raw []byte) ([]models.WebhookLeadData, error) {
	if err := requireObject(a.Platform(), raw); err != nil {
		return nil, err
	}

	var payload metaPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, badPayload(a.Platform(), "invalid json", err)
	}
	if payload.Entry == nil {
		return nil, badPayload(a.Platform(), "missing entry array", nil)
	}

	leads := []models.WebhookLeadData{}
	for _, entry := range *payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != metaLeadgenField {
				continue
			}
			lead, err := a.toLead(payload.Object, entry, change.Value)
			if err != nil {
				return nil, err
			}
			leads = append(leads, lead)
		}
	}
	return leads, nil
}

func (a *MetaAdapter) toLead(object string, entry metaEntry, raw json.RawMessage) (models.WebhookLeadData, error) {
	if err := requireObject(a.Platform(), raw); err != nil {
		return models.WebhookLeadData{}, err
	}
	var value metaLeadgenValue
	if err := json.Unmarshal(raw, &value); err != nil {
		return models.WebhookLeadData{}, badPayload(a.Platform(), "invalid leadgen value", err)
	}
	extraFields, err := unknownFields(raw, metaLeadgenKnownKeys...)
	if err != nil {
		return models.WebhookLeadData{}, badPayload(a.Platform(), "invalid leadgen value", err)
	}

	metadata := map[string]any{}
	if extraFields != nil {
		metadata["extra"] = extraFields
	}
	if object != "" {
		metadata["object"] = object
	}
	if entry.ID != "" {
		metadata["entry_id"] = entry.ID.String()
	}
	if value.PageID != "" {
		metadata["page_id"] = value.PageID.String()
	}
	if value.FormID != "" {
		metadata["form_id"] = value.FormID.String()
	}
	if value.AdID != "" {
		metadata["ad_id"] = value.AdID.String()
	}
	if value.CreatedTime != 0 {
		metadata["created_time"] = value.CreatedTime
	}

	var contact contactFields
	extra := map[string]any{}
	for _, field := range value.FieldData {
		joined := strings.Join(field.Values, ", ")
		if !contact.assign(field.Name, joined) {
			extra[field.Name] = field.Values
		}
	}
	if len(extra) > 0 {
		metadata["field_data"] = extra
	}

	name, email, phone := contact.apply(metadata)

	return models.WebhookLeadData{
		Source:     models.PlatformMeta,
		ExternalID: value.LeadgenID.String(),
		Name:       name,
		Email:      email,
		Phone:      phone,
		CampaignID: value.CampaignID.String(),
		AdGroupID:  value.AdGroupID.String(),
		Metadata:   metadata,
	}, nil
}

func (a *MetaAdapter) Authenticate(raw []byte, headers http.Header, secret string) AuthResult {
	signature := headers.Get(metaSignatureHeader)
	if signature == "" {
		return AuthMissing
	}
	if utils.VerifyWebhookSignature(raw, signature, secret) {
		return AuthVerified
	}
	return AuthFailed
}
