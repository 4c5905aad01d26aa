package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"leadsync/adapters"
	"leadsync/config"
	controller "leadsync/controllers"
	"leadsync/middleware"
	"leadsync/models"
	"leadsync/routes"
	"leadsync/services"
	"leadsync/utils"
	"leadsync/worker"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logger := utils.NewLogger("main")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if !cfg.IsProduction() {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			logger.WithError(err).Warn("Sentry initialization failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	vault, err := utils.NewVault(cfg.EncryptionKey, cfg.KDFIterations)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize credential vault")
	}

	// Initialize database connection
	db, err := config.ConnectDB(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	linkedIn := adapters.NewLinkedInAdapter(cfg.LinkedInUserInfoURL, cfg.OAuthValidationTimeout)
	registry := adapters.DefaultRegistry(linkedIn)

	integrations := services.NewIntegrationManager(db, vault, cfg.BaseURL, utils.NewLogger("integrations"))
	dedup := services.NewDedupEngine(db, utils.NewLogger("dedup"))

	webhookController := controller.NewWebhookController(integrations, dedup, registry, controller.WebhookOptions{
		RequireSignatures: cfg.RequireWebhookSignatures,
		MetaVerifyToken:   cfg.MetaVerifyToken,
		IngestConcurrency: cfg.IngestConcurrency,
	}, utils.NewLogger("webhooks"))
	integrationController := controller.NewIntegrationController(integrations, map[models.Platform]controller.TokenValidator{
		models.PlatformLinkedIn: linkedIn,
	}, utils.NewLogger("integration_api"))

	rateLimitStorage := middleware.NewRateLimitStorage(cfg.Redis)
	if rateLimitStorage != nil {
		defer rateLimitStorage.Close()
	}

	app := fiber.New(fiber.Config{
		AppName:      "leadsync",
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	app.Use(recover.New())
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   middleware.DefaultCORSConfig().AllowedMethods,
		AllowedHeaders:   middleware.DefaultCORSConfig().AllowedHeaders,
		ExposedHeaders:   middleware.DefaultCORSConfig().ExposedHeaders,
		MaxAge:           3600,
	}))

	routes.SetupRoutes(app, routes.Dependencies{
		DB:               db,
		Webhooks:         webhookController,
		Integrations:     integrationController,
		JWTSecret:        cfg.JWTSecret,
		WebhookRateLimit: cfg.WebhookRateLimit,
		RateLimitStorage: rateLimitStorage,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokenWorker := worker.NewTokenHealthWorker(integrations, map[models.Platform]worker.TokenValidator{
		models.PlatformLinkedIn: linkedIn,
	}, cfg.TokenHealthInterval, utils.NewLogger("token_health"))
	go tokenWorker.Start(ctx)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down server...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	logger.WithField("port", cfg.ServerPort).Info("Server starting")
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.WithError(err).Fatal("Failed to start server")
	}
}
