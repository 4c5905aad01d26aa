package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadsync/models"
	"leadsync/utils"
)

const linkedInLeadPayload = `{
	"leadId": "urn:li:leadFormResponse:1",
	"formId": 9876,
	"campaignId": "urn:li:sponsoredCampaign:42",
	"creativeId": "urn:li:sponsoredCreative:7",
	"leadType": "SPONSORED",
	"submittedAt": 1700000000000,
	"testLead": true,
	"firstName": "Grace",
	"lastName": "Hopper",
	"formResponse": {
		"answers": [
			{"questionId": 1, "name": "emailAddress", "answer": "grace@navy.mil"},
			{"questionId": 2, "name": "phoneNumber", "answer": "(555) 010-9999"},
			{"questionId": 3, "name": "firstName", "answer": "Ignored"},
			{"questionId": 4, "name": "degree", "answer": "PhD"},
			{"questionId": 5, "answer": "no name"}
		]
	}
}`

func TestLinkedInParse(t *testing.T) {
	leads, err := NewLinkedInAdapter("", 0).Parse([]byte(linkedInLeadPayload))
	require.NoError(t, err)
	require.Len(t, leads, 1)

	lead := leads[0]
	assert.Equal(t, models.PlatformLinkedIn, lead.Source)
	assert.Equal(t, "urn:li:leadFormResponse:1", lead.ExternalID)
	assert.Equal(t, "Grace Hopper", lead.Name)
	assert.Equal(t, "grace@navy.mil", lead.Email)
	assert.Equal(t, "5550109999", lead.Phone)
	assert.Equal(t, "urn:li:sponsoredCampaign:42", lead.CampaignID)
	assert.Equal(t, "9876", lead.Metadata["form_id"])
	assert.Equal(t, true, lead.Metadata["test_lead"])
	assert.Equal(t, map[string]any{"degree": "PhD", "5": "no name"}, lead.Metadata["answers"])
}

func TestLinkedInParseFallsBackToID(t *testing.T) {
	leads, err := NewLinkedInAdapter("", 0).Parse([]byte(`{"id":"abc","fullName":"Alan Turing","emailAddress":"bad address"}`))
	require.NoError(t, err)

	assert.Equal(t, "abc", leads[0].ExternalID)
	assert.Equal(t, "Alan Turing", leads[0].Name)
	assert.Empty(t, leads[0].Email)
	assert.Equal(t, "bad address", leads[0].Metadata["invalid_email"])
}

func TestLinkedInAuthenticate(t *testing.T) {
	adapter := NewLinkedInAdapter("", 0)
	raw := []byte(linkedInLeadPayload)

	headers := http.Header{}
	headers.Set("X-LI-Signature", utils.SignWebhookPayload(raw, "li-secret", "hmacsha256="))
	assert.Equal(t, AuthVerified, adapter.Authenticate(raw, headers, "li-secret"))
	assert.Equal(t, AuthFailed, adapter.Authenticate(raw, headers, "wrong"))
	assert.Equal(t, AuthMissing, adapter.Authenticate(raw, http.Header{}, "li-secret"))
}

func newUserInfoServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			time.Sleep(delay)
		}
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"member-1"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLinkedInValidateAccessToken(t *testing.T) {
	server := newUserInfoServer(t, 0)
	adapter := NewLinkedInAdapter(server.URL, time.Second)

	assert.NoError(t, adapter.ValidateAccessToken(context.Background(), "good-token"))
	assert.ErrorIs(t, adapter.ValidateAccessToken(context.Background(), "revoked-token"), ErrTokenInvalid)
	assert.ErrorIs(t, adapter.ValidateAccessToken(context.Background(), ""), ErrTokenInvalid)
}

func TestLinkedInValidateAccessTokenTimeout(t *testing.T) {
	server := newUserInfoServer(t, 300*time.Millisecond)
	adapter := NewLinkedInAdapter(server.URL, 50*time.Millisecond)

	err := adapter.ValidateAccessToken(context.Background(), "good-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestLinkedInValidateAccessTokenNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	adapter := NewLinkedInAdapter(url, time.Second)
	assert.ErrorIs(t, adapter.ValidateAccessToken(context.Background(), "good-token"), ErrTokenInvalid)
}

func TestLinkedInParseKeepsUnknownFields(t *testing.T) {
	leads, err := NewLinkedInAdapter("", 0).Parse([]byte(`{
		"leadId": "LI-1",
		"ownerUrn": "urn:li:org:1",
		"versionedForm": 3,
		"emailAddress": "x@y.com"
	}`))
	require.NoError(t, err)
	require.Len(t, leads, 1)

	assert.Equal(t, map[string]any{
		"ownerUrn":      "urn:li:org:1",
		"versionedForm": float64(3),
	}, leads[0].Metadata["extra"])
}
