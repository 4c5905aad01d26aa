package services

import (
	"errors"
	"fmt"

	"leadsync/models"
)

var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrIntegrationExists   = errors.New("an integration with this name already exists for the platform")
	ErrExternalIDConflict  = errors.New("external id is already attributed to another tenant's lead")
	ErrInvalidInput        = errors.New("invalid integration input")
)

// QuotaExceededError is returned when a tenant's tier does not allow another integration
type QuotaExceededError struct {
	Platform models.Platform
	Tier     models.SubscriptionTier
	Current  int64
	Limit    int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s integration limit reached for %s tier (%d/%d)", e.Platform, e.Tier, e.Current, e.Limit)
}
