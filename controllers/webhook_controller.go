package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"leadsync/adapters"
	"leadsync/models"
	"leadsync/services"
	"leadsync/utils"
)

const (
	SyncStatusSuccess        = "success"
	SyncStatusInvalidPayload = "invalid payload"

	DeliveryIDHeader = "X-Delivery-ID"
)

// WebhookOptions are the router's process-wide settings
type WebhookOptions struct {
	RequireSignatures bool
	MetaVerifyToken   string
	IngestConcurrency int
}

// WebhookController receives platform lead deliveries and sequences adapter, dedup and sync bookkeeping
type WebhookController struct {
	Integrations *services.IntegrationManager
	Dedup        *services.DedupEngine
	Adapters     *adapters.Registry
	Options      WebhookOptions
	Logger       *logrus.Entry
}

func NewWebhookController(
	integrations *services.IntegrationManager,
	dedup *services.DedupEngine,
	registry *adapters.Registry,
	options WebhookOptions,
	logger *logrus.Entry,
) *WebhookController {
	if options.IngestConcurrency < 1 {
		options.IngestConcurrency = 1
	}
	return &WebhookController{
		Integrations: integrations,
		Dedup:        dedup,
		Adapters:     registry,
		Options:      options,
		Logger:       logger,
	}
}

// IngestSummary aggregates the per-lead outcomes of one delivery
type IngestSummary struct {
	Total      int
	Processed  int
	Failed     int
	Duplicates int
}

func (s IngestSummary) Message() string {
	return fmt.Sprintf("Processed %d leads, %d failed", s.Processed, s.Failed)
}

func (s IngestSummary) SyncStatus() string {
	if s.Failed == 0 {
		return SyncStatusSuccess
	}
	return fmt.Sprintf("%d of %d leads failed", s.Failed, s.Total)
}

// HandleLeadWebhook handles POST /api/webhooks/leads/:tenant/:platform
func (wc *WebhookController) HandleLeadWebhook(c *fiber.Ctx) error {
	deliveryID := uuid.NewString()
	c.Set(DeliveryIDHeader, deliveryID)

	log := wc.Logger.WithFields(logrus.Fields{
		"delivery_id": deliveryID,
		"tenant":      c.Params("tenant"),
		"platform":    c.Params("platform"),
	})

	platform, ok := models.ParsePlatform(c.Params("platform"))
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unsupported platform", nil)
	}
	adapter, err := wc.Adapters.Lookup(platform)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unsupported platform", nil)
	}

	ctx := c.UserContext()

	tenant, err := wc.Integrations.ResolveTenant(ctx, c.Params("tenant"))
	if err != nil {
		return wc.lookupError(c, log, err, "Tenant not found")
	}

	integration, err := wc.Integrations.FindActiveIntegration(ctx, tenant.ID, platform)
	if err != nil {
		return wc.lookupError(c, log, err, "No active integration for this platform")
	}

	log = log.WithFields(logrus.Fields{
		"tenant_id":      tenant.ID,
		"integration_id": integration.ID,
	})

	// Fiber reuses the request buffer once the handler returns.
	raw := append([]byte(nil), c.Body()...)

	switch adapter.Authenticate(raw, requestHeaders(c), integration.WebhookSecret) {
	case adapters.AuthFailed:
		utils.LogEvent("webhook_signature_rejected", map[string]interface{}{
			"delivery_id":    deliveryID,
			"integration_id": integration.ID,
			"platform":       platform,
			"ip":             c.IP(),
		})
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid webhook signature", nil)
	case adapters.AuthMissing:
		if wc.Options.RequireSignatures {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Webhook signature required", nil)
		}
	}

	leads, err := adapter.Parse(raw)
	if err != nil {
		log.WithError(err).Warn("Rejected malformed webhook payload")
		wc.recordSync(ctx, log, integration.ID, SyncStatusInvalidPayload)
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook payload", nil)
	}

	summary := wc.ingest(ctx, log, tenant.ID, integration.ID, leads)
	wc.recordSync(ctx, log, integration.ID, summary.SyncStatus())

	log.WithFields(logrus.Fields{
		"total":      summary.Total,
		"processed":  summary.Processed,
		"failed":     summary.Failed,
		"duplicates": summary.Duplicates,
	}).Info("Webhook delivery processed")

	// Every lead failing signals a server-side problem; a non-2xx asks the platform to redeliver.
	status := fiber.StatusOK
	if summary.Total > 0 && summary.Processed == 0 {
		status = fiber.StatusInternalServerError
	}

	return c.Status(status).JSON(fiber.Map{
		"success":     summary.Failed == 0,
		"message":     summary.Message(),
		"processed":   summary.Processed,
		"failed":      summary.Failed,
		"duplicates":  summary.Duplicates,
		"delivery_id": deliveryID,
	})
}

// ingest runs every lead to completion; one lead failing never cancels its siblings
func (wc *WebhookController) ingest(ctx context.Context, log *logrus.Entry, tenantID, integrationID uint, leads []models.WebhookLeadData) IngestSummary {
	var processed, failed, duplicates int64

	var g errgroup.Group
	g.SetLimit(wc.Options.IngestConcurrency)
	for _, lead := range leads {
		g.Go(func() error {
			result, err := wc.Dedup.CreateOrUpdateLead(ctx, tenantID, integrationID, lead)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				utils.LogError("lead_ingest_failed", err, map[string]interface{}{
					"tenant_id":      tenantID,
					"integration_id": integrationID,
					"platform":       lead.Source,
					"external_id":    lead.ExternalID,
				})
				return nil
			}
			atomic.AddInt64(&processed, 1)
			if result.Duplicate {
				atomic.AddInt64(&duplicates, 1)
				log.WithFields(logrus.Fields{
					"lead_id": result.Lead.ID,
					"reason":  result.Reason,
				}).Debug("Duplicate lead touched")
			}
			return nil
		})
	}
	_ = g.Wait()

	return IngestSummary{
		Total:      len(leads),
		Processed:  int(processed),
		Failed:     int(failed),
		Duplicates: int(duplicates),
	}
}

func (wc *WebhookController) recordSync(ctx context.Context, log *logrus.Entry, integrationID uint, status string) {
	if err := wc.Integrations.RecordSync(ctx, integrationID, status, ""); err != nil {
		log.WithError(err).Error("Failed to record sync status")
	}
}

func (wc *WebhookController) lookupError(c *fiber.Ctx, log *logrus.Entry, err error, notFound string) error {
	if errors.Is(err, services.ErrTenantNotFound) || errors.Is(err, services.ErrIntegrationNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, notFound, nil)
	}
	log.WithError(err).Error("Webhook lookup failed")
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process webhook", nil)
}

// VerifyMetaSubscription answers Meta's one-time hub.challenge handshake
func (wc *WebhookController) VerifyMetaSubscription(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if wc.Options.MetaVerifyToken == "" || mode != "subscribe" ||
		!utils.SecureCompare(token, wc.Options.MetaVerifyToken) {
		utils.LogEvent("meta_verification_rejected", map[string]interface{}{
			"tenant": c.Params("tenant"),
			"mode":   mode,
			"ip":     c.IP(),
		})
		return c.Status(fiber.StatusForbidden).SendString("Forbidden")
	}

	wc.Logger.WithField("tenant", c.Params("tenant")).Info("Meta webhook subscription verified")
	return c.Status(fiber.StatusOK).SendString(challenge)
}

func requestHeaders(c *fiber.Ctx) http.Header {
	headers := http.Header{}
	for key, values := range c.GetReqHeaders() {
		for _, v := range values {
			headers.Add(key, v)
		}
	}
	return headers
}
