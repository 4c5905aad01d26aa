package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"leadsync/models"
	"leadsync/services"
	"leadsync/utils"
)

const (
	SyncStatusTokenValid   = "success"
	SyncStatusTokenInvalid = "token invalid"

	SyncStatusCredentialsUnavailable = "credentials unavailable"
)

// TokenValidator checks a stored platform access token
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, accessToken string) error
}

// TokenHealthWorker periodically re-validates stored access tokens and records the outcome as sync status
type TokenHealthWorker struct {
	Integrations *services.IntegrationManager
	Validators   map[models.Platform]TokenValidator
	Interval     time.Duration
	StartupDelay time.Duration
	Logger       *logrus.Entry
}

func NewTokenHealthWorker(integrations *services.IntegrationManager, validators map[models.Platform]TokenValidator, interval time.Duration, logger *logrus.Entry) *TokenHealthWorker {
	return &TokenHealthWorker{
		Integrations: integrations,
		Validators:   validators,
		Interval:     interval,
		StartupDelay: 10 * time.Second,
		Logger:       logger,
	}
}

func (w *TokenHealthWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	select {
	case <-ctx.Done():
		return
	case <-time.After(w.StartupDelay):
	}

	w.Logger.WithField("interval", w.Interval.String()).Info("Token health worker started")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Token health worker shutting down...")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce checks every active integration of every platform with a validator
func (w *TokenHealthWorker) RunOnce(ctx context.Context) {
	for platform, validator := range w.Validators {
		integrations, err := w.Integrations.ListActiveByPlatform(ctx, platform)
		if err != nil {
			w.Logger.WithError(err).WithField("platform", platform).Error("Error fetching active integrations")
			continue
		}

		for _, integration := range integrations {
			if ctx.Err() != nil {
				return
			}
			status := w.checkIntegration(ctx, integration, validator)
			if err := w.Integrations.RecordSync(ctx, integration.ID, status, ""); err != nil {
				w.Logger.WithError(err).WithField("integration_id", integration.ID).Error("Failed to record token health")
			}
		}
	}
}

func (w *TokenHealthWorker) checkIntegration(ctx context.Context, integration models.IntegrationConfig, validator TokenValidator) string {
	log := w.Logger.WithFields(logrus.Fields{
		"integration_id": integration.ID,
		"tenant_id":      integration.TenantID,
		"platform":       integration.Platform,
	})

	credentials, err := w.Integrations.GetIntegrationCredentials(ctx, integration.ID)
	if err != nil {
		if errors.Is(err, utils.ErrCredentialsCorrupted) {
			return utils.ErrCredentialsCorrupted.Error()
		}
		log.WithError(err).Error("Failed to load credentials")
		return SyncStatusCredentialsUnavailable
	}

	token, _ := credentials["access_token"].(string)
	if err := validator.ValidateAccessToken(ctx, token); err != nil {
		log.WithError(err).Warn("Stored access token failed validation")
		return SyncStatusTokenInvalid
	}
	return SyncStatusTokenValid
}
