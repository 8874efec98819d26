// Package config loads application settings from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the application needs.
type Config struct {
	// Server settings
	Port    string // HTTP listen port
	GinMode string // gin run mode (debug, release, test)
	BaseURL string // absolute base URL used in outgoing mail links

	// Session settings
	SessionSecret string // cookie signing key
	SessionMaxAge int    // session lifetime in seconds

	// Storage settings
	MongoURI      string // MongoDB connection string
	MongoDatabase string // database name
	RedisURL      string // redis URL for the login limiter and the mail queue

	// Mail settings
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string // From address on every outgoing message

	// Upload settings
	UploadDir     string // directory for stored avatar images
	MaxUploadSize int64  // single upload limit in bytes

	// Auth settings
	BcryptCost    int           // bcrypt work factor for interactive auth
	ResetTokenTTL time.Duration // validity window of a password-reset token
}

// Load reads settings from the environment.
// A .env.local file is read first when one exists.
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		// Server settings
		Port:    getEnv("PORT", "3000"),
		GinMode: getEnv("GIN_MODE", "debug"),
		BaseURL: getEnv("BASE_URL", "http://localhost:3000"),

		// Session settings
		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionMaxAge: getEnvAsInt("SESSION_MAX_AGE", 86400),

		// Storage settings
		MongoURI:      getEnv("MONGODB_URI", "mongodb://127.0.0.1:27017"),
		MongoDatabase: getEnv("MONGODB_DATABASE", "shop"),
		RedisURL:      getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),

		// Mail settings
		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		MailFrom:     getEnv("MAIL_FROM", "noreply@course-market.local"),

		// Upload settings
		UploadDir:     getEnv("UPLOAD_DIR", "images"),
		MaxUploadSize: getEnvAsInt64("MAX_UPLOAD_SIZE", 5*1024*1024),

		// Auth settings
		BcryptCost:    getEnvAsInt("BCRYPT_COST", 10),
		ResetTokenTTL: time.Duration(getEnvAsInt("RESET_TOKEN_TTL_SECONDS", 3600)) * time.Second,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate checks the configuration. Release mode is strict; local
// development may run with the defaults.
func (c *Config) Validate() error {
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required in release mode")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required in release mode")
		}
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required in release mode")
		}
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if c.ResetTokenTTL <= 0 {
		return fmt.Errorf("RESET_TOKEN_TTL_SECONDS must be positive")
	}

	return nil
}

// getEnv returns the variable value or the default when unset.
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt reads the variable as an integer.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 reads the variable as a 64-bit integer.
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
