package controller

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"leadsync/adapters"
	"leadsync/middleware"
	"leadsync/models"
	"leadsync/services"
	"leadsync/utils"
)

// TokenValidator checks a platform access token before it is stored
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, accessToken string) error
}

type IntegrationController struct {
	Integrations *services.IntegrationManager
	// TokenValidators is keyed by platform; platforms without an entry are stored unchecked.
	TokenValidators map[models.Platform]TokenValidator
	Logger          *logrus.Entry
}

func NewIntegrationController(integrations *services.IntegrationManager, validators map[models.Platform]TokenValidator, logger *logrus.Entry) *IntegrationController {
	return &IntegrationController{
		Integrations:    integrations,
		TokenValidators: validators,
		Logger:          logger,
	}
}

// ListIntegrations returns the tenant's integrations without credentials
func (ic *IntegrationController) ListIntegrations(c *fiber.Ctx) error {
	integrations, err := ic.Integrations.ListIntegrations(c.UserContext(), middleware.TenantID(c))
	if err != nil {
		ic.Logger.WithError(err).Error("Failed to list integrations")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list integrations", nil)
	}
	return c.JSON(utils.SuccessResponse(integrations))
}

// GetQuota reports whether another integration can be added for a platform
func (ic *IntegrationController) GetQuota(c *fiber.Ctx) error {
	platform, ok := models.ParsePlatform(c.Params("platform"))
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unsupported platform", nil)
	}

	decision, err := ic.Integrations.CanAddIntegration(c.UserContext(), middleware.TenantID(c), platform)
	if err != nil {
		return ic.serviceError(c, err, "Failed to check quota")
	}
	return c.JSON(utils.SuccessResponse(decision))
}

// CreateIntegration stores encrypted credentials and returns the webhook secret once
func (ic *IntegrationController) CreateIntegration(c *fiber.Ctx) error {
	var input struct {
		Platform    string         `json:"platform" validate:"required"`
		Name        string         `json:"name" validate:"required,max=100"`
		Credentials map[string]any `json:"credentials" validate:"required"`
		Metadata    map[string]any `json:"metadata"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	platform, ok := models.ParsePlatform(input.Platform)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unsupported platform", nil)
	}

	if err := ic.validateToken(c.UserContext(), platform, input.Credentials); err != nil {
		return ic.serviceError(c, err, "Failed to validate access token")
	}

	integration, err := ic.Integrations.CreateIntegration(c.UserContext(), services.CreateIntegrationInput{
		TenantID:    middleware.TenantID(c),
		Platform:    platform,
		Name:        input.Name,
		Credentials: input.Credentials,
		Metadata:    input.Metadata,
	})
	if err != nil {
		return ic.serviceError(c, err, "Failed to create integration")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":        true,
		"data":           integration,
		"webhook_secret": integration.WebhookSecret,
	})
}

func (ic *IntegrationController) SetStatus(c *fiber.Ctx) error {
	id, ok := utils.ParseUint(c.Params("id"))
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid integration ID", nil)
	}

	var input struct {
		IsActive *bool `json:"is_active" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if err := ic.Integrations.SetActive(c.UserContext(), middleware.TenantID(c), id, *input.IsActive); err != nil {
		return ic.serviceError(c, err, "Failed to update integration")
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"is_active": *input.IsActive,
	})
}

// UpdateCredentials re-encrypts credentials; the webhook secret is not rotated
func (ic *IntegrationController) UpdateCredentials(c *fiber.Ctx) error {
	id, ok := utils.ParseUint(c.Params("id"))
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid integration ID", nil)
	}

	var input struct {
		Credentials map[string]any `json:"credentials" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	tenantID := middleware.TenantID(c)
	integration, err := ic.Integrations.GetIntegration(c.UserContext(), tenantID, id)
	if err != nil {
		return ic.serviceError(c, err, "Failed to update credentials")
	}
	if err := ic.validateToken(c.UserContext(), integration.Platform, input.Credentials); err != nil {
		return ic.serviceError(c, err, "Failed to validate access token")
	}

	if err := ic.Integrations.UpdateCredentials(c.UserContext(), tenantID, id, input.Credentials); err != nil {
		return ic.serviceError(c, err, "Failed to update credentials")
	}
	return c.JSON(fiber.Map{"success": true})
}

func (ic *IntegrationController) DeleteIntegration(c *fiber.Ctx) error {
	id, ok := utils.ParseUint(c.Params("id"))
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid integration ID", nil)
	}

	if err := ic.Integrations.DeleteIntegration(c.UserContext(), middleware.TenantID(c), id); err != nil {
		return ic.serviceError(c, err, "Failed to delete integration")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (ic *IntegrationController) validateToken(ctx context.Context, platform models.Platform, credentials map[string]any) error {
	validator, ok := ic.TokenValidators[platform]
	if !ok {
		return nil
	}
	token, _ := credentials["access_token"].(string)
	if token == "" {
		return nil
	}
	if err := validator.ValidateAccessToken(ctx, token); err != nil {
		ic.Logger.WithError(err).WithField("platform", platform).Warn("Access token validation failed")
		return err
	}
	return nil
}

func (ic *IntegrationController) serviceError(c *fiber.Ctx, err error, fallback string) error {
	var quotaErr *services.QuotaExceededError
	switch {
	case errors.As(err, &quotaErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   quotaErr.Error(),
			"current": quotaErr.Current,
			"limit":   quotaErr.Limit,
		})
	case errors.Is(err, services.ErrInvalidInput):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, services.ErrIntegrationExists):
		return utils.ErrorResponse(c, fiber.StatusConflict, err.Error(), nil)
	case errors.Is(err, services.ErrTenantNotFound), errors.Is(err, services.ErrIntegrationNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, err.Error(), nil)
	case errors.Is(err, adapters.ErrTokenInvalid):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Access token rejected by platform", nil)
	}

	ic.Logger.WithError(err).Error(fallback)
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, fallback, nil)
}
