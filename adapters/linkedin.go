package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"leadsync/models"
	"leadsync/utils"
)

const (
	linkedInSignatureHeader = "X-LI-Signature"
	linkedInSignaturePrefix = "hmacsha256="

	DefaultLinkedInUserInfoURL = "https://api.linkedin.com/v2/userinfo"
)

// LinkedInAdapter handles Lead Gen Forms notifications and validates member access tokens
type LinkedInAdapter struct {
	userInfoURL string
	timeout     time.Duration
}

func NewLinkedInAdapter(userInfoURL string, timeout time.Duration) *LinkedInAdapter {
	if userInfoURL == "" {
		userInfoURL = DefaultLinkedInUserInfoURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LinkedInAdapter{
		userInfoURL: userInfoURL,
		timeout:     timeout,
	}
}

type linkedInPayload struct {
	LeadID       flexString `json:"leadId"`
	ID           flexString `json:"id"`
	FormID       flexString `json:"formId"`
	CampaignID   flexString `json:"campaignId"`
	CreativeID   flexString `json:"creativeId"`
	AccountID    flexString `json:"accountId"`
	LeadType     string     `json:"leadType"`
	SubmittedAt  int64      `json:"submittedAt"`
	TestLead     bool       `json:"testLead"`
	FullName     string     `json:"fullName"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	EmailAddress string     `json:"emailAddress"`
	PhoneNumber  string     `json:"phoneNumber"`
	FormResponse *struct {
		Answers []linkedInAnswer `json:"answers"`
	} `json:"formResponse"`
}

var linkedInKnownKeys = []string{
	"leadId", "id", "formId", "campaignId", "creativeId", "accountId", "leadType",
	"submittedAt", "testLead", "fullName", "firstName", "lastName",
	"emailAddress", "phoneNumber", "formResponse",
}

type linkedInAnswer struct {
	QuestionID flexString `json:"questionId"`
	Name       string     `json:"name"`
	Answer     string     `json:"answer"`
}

func (a *LinkedInAdapter) Platform() models.Platform {
	return models.PlatformLinkedIn
}

func (a *LinkedInAdapter) Parse(raw []byte) ([]models.WebhookLeadData, error) {
	if err := requireObject(a.Platform(), raw); err != nil {
		return nil, err
	}

	var payload linkedInPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, badPayload(a.Platform(), "invalid json", err)
	}

	externalID := payload.LeadID.String()
	if externalID == "" {
		externalID = payload.ID.String()
	}

	metadata := map[string]any{}
	extraFields, err := unknownFields(raw, linkedInKnownKeys...)
	if err != nil {
		return nil, badPayload(a.Platform(), "invalid json", err)
	}
	if extraFields != nil {
		metadata["extra"] = extraFields
	}
	if payload.FormID != "" {
		metadata["form_id"] = payload.FormID.String()
	}
	if payload.CreativeID != "" {
		metadata["creative_id"] = payload.CreativeID.String()
	}
	if payload.AccountID != "" {
		metadata["account_id"] = payload.AccountID.String()
	}
	if payload.LeadType != "" {
		metadata["lead_type"] = payload.LeadType
	}
	if payload.SubmittedAt != 0 {
		metadata["submitted_at"] = payload.SubmittedAt
	}
	if payload.TestLead {
		metadata["test_lead"] = true
	}

	contact := contactFields{
		fullName:  payload.FullName,
		firstName: payload.FirstName,
		lastName:  payload.LastName,
		email:     payload.EmailAddress,
		phone:     payload.PhoneNumber,
	}

	// Form answers only fill fields left empty at the top level.
	if payload.FormResponse != nil {
		extra := map[string]any{}
		for _, answer := range payload.FormResponse.Answers {
			key := answer.Name
			if key == "" {
				key = answer.QuestionID.String()
			}
			var fromAnswer contactFields
			if fromAnswer.assign(key, answer.Answer) {
				contact.fillFrom(fromAnswer)
				continue
			}
			extra[key] = answer.Answer
		}
		if len(extra) > 0 {
			metadata["answers"] = extra
		}
	}

	name, email, phone := contact.apply(metadata)

	return []models.WebhookLeadData{{
		Source:     models.PlatformLinkedIn,
		ExternalID: externalID,
		Name:       name,
		Email:      email,
		Phone:      phone,
		CampaignID: payload.CampaignID.String(),
		Metadata:   metadata,
	}}, nil
}

func (a *LinkedInAdapter) Authenticate(raw []byte, headers http.Header, secret string) AuthResult {
	signature := headers.Get(linkedInSignatureHeader)
	if signature == "" {
		return AuthMissing
	}
	if utils.VerifyPrefixedSignature(raw, signature, secret, linkedInSignaturePrefix) {
		return AuthVerified
	}
	return AuthFailed
}

// ValidateAccessToken asks LinkedIn's identity endpoint whether token is usable.
// Network failures and rejections both return ErrTokenInvalid.
func (a *LinkedInAdapter) ValidateAccessToken(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return fmt.Errorf("%w: empty access token", ErrTokenInvalid)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userInfoURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: identity endpoint returned %d", ErrTokenInvalid, resp.StatusCode)
	}
	return nil
}
