// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development" validate:"oneof=development staging production test"`
	AppPort int    `env:"APP_PORT" envDefault:"8080" validate:"min=1,max=65535"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080" validate:"url"`

	// Database (PostgreSQL)
	DatabaseURL         string `env:"DATABASE_URL,required" validate:"required"`
	DatabaseAutoMigrate bool   `env:"DATABASE_AUTO_MIGRATE" envDefault:"true"`

	// Cache (Redis)
	RedisURL        string        `env:"REDIS_URL,required" validate:"required"`
	RedisPoolSize   int           `env:"REDIS_POOL_SIZE" envDefault:"10" validate:"min=1,max=500"`
	ListingCacheTTL time.Duration `env:"LISTING_CACHE_TTL" envDefault:"60s" validate:"min=0"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`

	// Server timeouts. Uploads stream through the write path, so it is generous.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s" validate:"gt=0"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool `env:"TRUST_PROXY" envDefault:"false"`

	// Request body size limit for JSON endpoints in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576" validate:"gt=0"`

	ObjectStore ObjectStore `envPrefix:"OBJECT_STORE_"`
	Limits      Limits
	Session     Session
	OTP         OTP `envPrefix:"OTP_"`
	Mailer      Mailer
	Tracing     Tracing
	GC          GC `envPrefix:"GC_"`
}

// ObjectStore selects and configures the blob backend.
type ObjectStore struct {
	Driver         string `env:"DRIVER" envDefault:"minio" validate:"oneof=minio s3 memory"`
	Endpoint       string `env:"ENDPOINT" envDefault:"localhost:9000"`
	PublicEndpoint string `env:"PUBLIC_ENDPOINT" envDefault:"http://localhost:9000" validate:"url"`
	Region         string `env:"REGION" envDefault:"us-east-1"`
	Bucket         string `env:"BUCKET" envDefault:"stowbox" validate:"required"`
	Project        string `env:"PROJECT" envDefault:"stowbox" validate:"required"`
	AccessKey      string `env:"ACCESS_KEY"`
	SecretKey      string `env:"SECRET_KEY"`
	UseSSL         bool   `env:"USE_SSL" envDefault:"false"`
}

// Limits bound what a single account may store.
type Limits struct {
	MaxFileSize       int64 `env:"MAX_FILE_SIZE" envDefault:"52428800" validate:"gt=0"`
	AccountCapacity   int64 `env:"ACCOUNT_CAPACITY_BYTES" envDefault:"2147483648" validate:"gtefield=MaxFileSize"`
	UploadConcurrency int   `env:"UPLOAD_CONCURRENCY" envDefault:"4" validate:"min=1,max=64"`
	MaxFilesPerUpload int   `env:"MAX_FILES_PER_UPLOAD" envDefault:"20" validate:"min=1,max=100"`
}

// Session configures the session credential.
type Session struct {
	SigningKey string        `env:"SESSION_SIGNING_KEY,required" validate:"required,min=32"`
	TTL        time.Duration `env:"SESSION_TTL" envDefault:"720h" validate:"gt=0"`
	CookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"stowbox-session" validate:"required"`
	LoginPath  string        `env:"LOGIN_PATH" envDefault:"/sign-in" validate:"startswith=/"`
	// AvatarPlaceholderURL is stored on users created at registration.
	AvatarPlaceholderURL string `env:"AVATAR_PLACEHOLDER_URL" envDefault:"https://img.freepik.com/free-psd/3d-illustration-person-with-sunglasses_23-2149436188.jpg"`
}

// OTP configures one-time login codes.
type OTP struct {
	Length      int           `env:"LENGTH" envDefault:"6" validate:"min=4,max=10"`
	TTL         time.Duration `env:"TTL" envDefault:"10m" validate:"gt=0"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"5" validate:"min=1"`
	// Per-minute request budgets, keyed by email and by client IP.
	EmailPerMinute int `env:"EMAIL_PER_MINUTE" envDefault:"3" validate:"min=1"`
	IPPerMinute    int `env:"IP_PER_MINUTE" envDefault:"20" validate:"min=1"`
	// VerifyPerMinute budgets code checks per client IP.
	VerifyPerMinute int `env:"VERIFY_PER_MINUTE" envDefault:"10" validate:"min=1"`
}

// Mailer configures OTP delivery.
type Mailer struct {
	Driver      string        `env:"MAILER_DRIVER" envDefault:"log" validate:"oneof=log relay"`
	RelayURL    string        `env:"MAIL_RELAY_URL" validate:"required_if=Driver relay"`
	RelaySecret string        `env:"MAIL_RELAY_SECRET" validate:"required_if=Driver relay"`
	From        string        `env:"MAIL_FROM" envDefault:"no-reply@stowbox.local"`
	Timeout     time.Duration `env:"MAIL_TIMEOUT" envDefault:"10s" validate:"gt=0"`
}

// Tracing configures the OTLP exporter.
type Tracing struct {
	Enabled      bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTLPInsecure bool    `env:"OTLP_INSECURE" envDefault:"true"`
	ServiceName  string  `env:"SERVICE_NAME" envDefault:"stowbox"`
	SampleRatio  float64 `env:"TRACING_SAMPLE_RATIO" envDefault:"1" validate:"min=0,max=1"`
}

// GC configures the orphaned blob sweeper.
type GC struct {
	Enabled     bool          `env:"ENABLED" envDefault:"true"`
	Interval    time.Duration `env:"INTERVAL" envDefault:"1h" validate:"gt=0"`
	// GracePeriod must outlast the slowest upload, or in-flight blobs get reaped.
	GracePeriod time.Duration `env:"GRACE_PERIOD" envDefault:"24h" validate:"gte=1m"`
	BatchSize   int           `env:"BATCH_SIZE" envDefault:"100" validate:"min=1"`
	DryRun      bool          `env:"DRY_RUN" envDefault:"false"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing or values are out of range.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
