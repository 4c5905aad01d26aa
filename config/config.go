package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"leadsync/models"
	"leadsync/utils"
)

const minKDFIterations = utils.DefaultKDFIterations

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`
	BaseURL     string `json:"base_url"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	EncryptionKey   string `json:"-"`
	KDFIterations   int    `json:"kdf_iterations"`
	JWTSecret       string `json:"-"`
	MetaVerifyToken string `json:"-"`

	RequireWebhookSignatures bool          `json:"require_webhook_signatures"`
	OAuthValidationTimeout   time.Duration `json:"oauth_validation_timeout"`
	TokenHealthInterval      time.Duration `json:"token_health_interval"`
	IngestConcurrency        int           `json:"ingest_concurrency"`
	WebhookRateLimit         int           `json:"webhook_rate_limit"`
	LinkedInUserInfoURL      string        `json:"linkedin_userinfo_url"`

	CORSAllowedOrigins []string `json:"cors_allowed_origins"`

	Redis     RedisConfig `json:"redis"`
	SentryDSN string      `json:"-"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

// LoadConfig reads the environment and validates it. Any error is fatal for the process.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:5000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "leadsync"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		EncryptionKey:   getEnv("INTEGRATION_ENCRYPTION_KEY", ""),
		KDFIterations:   getEnvAsInt("ENCRYPTION_KDF_ITERATIONS", utils.DefaultKDFIterations),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		MetaVerifyToken: getEnv("META_VERIFY_TOKEN", ""),

		RequireWebhookSignatures: getEnvAsBool("REQUIRE_WEBHOOK_SIGNATURES", false),
		OAuthValidationTimeout:   getEnvAsDuration("OAUTH_VALIDATION_TIMEOUT", 10*time.Second),
		TokenHealthInterval:      getEnvAsDuration("TOKEN_HEALTH_INTERVAL", 6*time.Hour),
		IngestConcurrency:        getEnvAsInt("INGEST_CONCURRENCY", 8),
		WebhookRateLimit:         getEnvAsInt("WEBHOOK_RATE_LIMIT", 120),
		LinkedInUserInfoURL:      getEnv("LINKEDIN_USERINFO_URL", ""),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SentryDSN: getEnv("SENTRY_DSN", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logConfig(cfg)
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.EncryptionKey) < utils.MinPassphraseLength {
		return utils.ErrInvalidEncryptionKey
	}
	if c.KDFIterations < minKDFIterations {
		return fmt.Errorf("ENCRYPTION_KDF_ITERATIONS must be at least %d", minKDFIterations)
	}
	if c.IngestConcurrency < 1 {
		return fmt.Errorf("INGEST_CONCURRENCY must be at least 1")
	}
	if c.WebhookRateLimit < 1 {
		return fmt.Errorf("WEBHOOK_RATE_LIMIT must be at least 1")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost,
		c.DBPort,
		c.DBUser,
		c.DBPassword,
		c.DBName,
		c.DBSSLMode,
	)
}

// ConnectDB opens the Postgres pool and migrates the schema
func ConnectDB(cfg *Config) (*gorm.DB, error) {
	log := utils.NewLogger("database")
	dsn := cfg.DSN()
	log.WithField("dsn", maskPassword(dsn)).Info("Connecting to database")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("Starting database migration")
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	log.Info("Database migration completed")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Tenant{},
		&models.IntegrationConfig{},
		&models.Lead{},
		&models.LeadSourceTracking{},
	)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsSlice(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

// getEnvAsDuration accepts Go durations ("90s", "6h") or a bare number of seconds
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	if d, err := time.ParseDuration(valueStr); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig(cfg *Config) {
	utils.NewLogger("config").WithFields(logrus.Fields{
		"environment":         cfg.Environment,
		"server_port":         cfg.ServerPort,
		"database":            fmt.Sprintf("%s@%s:%s/%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName),
		"redis_enabled":       cfg.Redis.Enabled,
		"require_signatures":  cfg.RequireWebhookSignatures,
		"ingest_concurrency":  cfg.IngestConcurrency,
		"token_health_period": cfg.TokenHealthInterval.String(),
		"sentry_enabled":      cfg.SentryDSN != "",
	}).Info("Loaded configuration")
}
