package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	controller "leadsync/controllers"
	"leadsync/middleware"
)

// Dependencies are the constructed handlers and settings the routes are bound to
type Dependencies struct {
	DB               *gorm.DB
	Webhooks         *controller.WebhookController
	Integrations     *controller.IntegrationController
	JWTSecret        string
	WebhookRateLimit int
	RateLimitStorage fiber.Storage
}

var requestLogFormat = "[${time}] ${status} - ${latency} ${method} ${path}\n"

// SetupWebhookRoutes registers the public, signature-authenticated lead webhooks
func SetupWebhookRoutes(app *fiber.App, deps Dependencies) {
	webhooks := app.Group("/api/webhooks/leads",
		logger.New(logger.Config{Format: requestLogFormat}),
		middleware.WebhookRateLimiter(deps.WebhookRateLimit, deps.RateLimitStorage),
	)

	webhooks.Get("/:tenant/meta", deps.Webhooks.VerifyMetaSubscription)
	webhooks.Post("/:tenant/:platform", deps.Webhooks.HandleLeadWebhook)
}

// SetupAPIRoutes registers the tenant-admin integration API
func SetupAPIRoutes(app *fiber.App, deps Dependencies) {
	api := app.Group("/api/v1", middleware.Protected(deps.JWTSecret), logger.New(logger.Config{
		Format: requestLogFormat,
	}))

	integrations := api.Group("/integrations")
	integrations.Get("/", deps.Integrations.ListIntegrations)
	integrations.Get("/quota/:platform", deps.Integrations.GetQuota)
	integrations.Post("/", deps.Integrations.CreateIntegration)
	integrations.Patch("/:id/status", deps.Integrations.SetStatus)
	integrations.Put("/:id/credentials", deps.Integrations.UpdateCredentials)
	integrations.Delete("/:id", deps.Integrations.DeleteIntegration)
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	app.Get("/health", func(c *fiber.Ctx) error {
		sqlDB, err := deps.DB.DB()
		if err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupWebhookRoutes(app, deps)
	SetupAPIRoutes(app, deps)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
